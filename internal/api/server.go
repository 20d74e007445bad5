package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ZilDuck/nft-marketplace/internal/bank"
	"github.com/ZilDuck/nft-marketplace/internal/daemon"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/internal/metrics"
	"github.com/ZilDuck/nft-marketplace/internal/registry"
	"github.com/ZilDuck/nft-marketplace/internal/repository"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

type Server struct {
	market    *marketplace.Marketplace
	registry  *registry.Registry
	bank      *bank.Bank
	events    *event.Log
	sequencer *daemon.Sequencer
	metrics   *metrics.Metrics
	history   repository.MarketplaceActionRepository
}

func NewServer(
	market *marketplace.Marketplace,
	registry *registry.Registry,
	bank *bank.Bank,
	events *event.Log,
	sequencer *daemon.Sequencer,
	metrics *metrics.Metrics,
) Server {
	return Server{market: market, registry: registry, bank: bank, events: events, sequencer: sequencer, metrics: metrics}
}

// WithHistory enables the search backed history routes.
func (s Server) WithHistory(history repository.MarketplaceActionRepository) Server {
	s.history = history
	return s
}

func (s Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	r.HandleFunc("/marketplace", s.handleMarketplace).Methods("GET")

	r.HandleFunc("/collections/{collection}/tokens", s.handleMint).Methods("POST")
	r.HandleFunc("/collections/{collection}/tokens/{tokenId}/approve", s.handleApprove).Methods("POST")
	r.HandleFunc("/collections/{collection}/tokens/{tokenId}/owner", s.handleOwner).Methods("GET")
	r.HandleFunc("/collections/{collection}/operators", s.handleSetOperator).Methods("POST")

	r.HandleFunc("/listings/{collection}/{tokenId}", s.handleGetListing).Methods("GET")
	r.HandleFunc("/listings/{collection}/{tokenId}", s.handleListItem).Methods("POST")
	r.HandleFunc("/listings/{collection}/{tokenId}", s.handleUpdateListing).Methods("PUT")
	r.HandleFunc("/listings/{collection}/{tokenId}", s.handleDeleteListing).Methods("DELETE")
	r.HandleFunc("/listings/{collection}/{tokenId}/buy", s.handleBuyItem).Methods("POST")

	r.HandleFunc("/proceeds/withdraw", s.handleWithdrawProceeds).Methods("POST")
	r.HandleFunc("/proceeds/{principal}", s.handleGetProceeds).Methods("GET")

	r.HandleFunc("/accounts/{principal}/fund", s.handleFund).Methods("POST")
	r.HandleFunc("/accounts/{principal}/balance", s.handleBalance).Methods("GET")

	r.HandleFunc("/events", s.handleEvents).Methods("GET")

	if s.history != nil {
		r.HandleFunc("/listings/{collection}/{tokenId}/history", s.handleHistory).Methods("GET")
		r.HandleFunc("/collections/{collection}/listings", s.handleCollectionListings).Methods("GET")
	}

	r.NotFoundHandler = notFoundHandler()

	return r
}

func (s Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s Server) handleMarketplace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MarketplaceResponse{Address: s.market.Address()})
}

func (s Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, collection, err := callerAndCollection(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req MintRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to := caller
	if req.To != "" {
		if to, err = entity.ParsePrincipal(req.To); err != nil {
			writeError(w, err)
			return
		}
	}

	var tokenId *uint256.Int
	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) (err error) {
		tokenId, err = s.registry.Mint(ctx, collection, to)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MintResponse{Collection: collection, TokenId: tokenId.Dec()})
}

func (s Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, key, err := callerAndAsset(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req ApproveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	operator := entity.ZeroPrincipal
	if req.Operator != "" {
		if operator, err = entity.ParsePrincipal(req.Operator); err != nil {
			writeError(w, err)
			return
		}
	}

	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) error {
		return s.registry.Approve(ctx, caller, key.Collection, key.TokenIdValue(), operator)
	})
	writeStatus(w, err)
}

func (s Server) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	caller, collection, err := callerAndCollection(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req OperatorRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	operator, err := entity.ParsePrincipal(req.Operator)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) error {
		return s.registry.SetApprovalForAll(ctx, caller, collection, operator, req.Approved)
	})
	writeStatus(w, err)
}

func (s Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	key, err := getAssetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var owner entity.Principal
	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) (err error) {
		owner, err = s.registry.OwnerOf(ctx, key.Collection, key.TokenIdValue())
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, OwnerResponse{Owner: owner})
}

func (s Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	key, err := getAssetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var listing entity.Listing
	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) (err error) {
		listing, err = s.market.GetListing(ctx, key.Collection, key.TokenIdValue())
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

func (s Server) handleListItem(w http.ResponseWriter, r *http.Request) {
	s.handlePriceCall(w, r, "ListItem", http.StatusCreated, s.market.ListItem)
}

func (s Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	s.handlePriceCall(w, r, "UpdateListing", http.StatusOK, s.market.UpdateListing)
}

type priceCall func(ctx context.Context, cc marketplace.CallContext, collection entity.Principal, tokenId, price *uint256.Int) error

func (s Server) handlePriceCall(w http.ResponseWriter, r *http.Request, name string, status int, call priceCall) {
	caller, key, err := callerAndAsset(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req PriceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := entity.ParseValue(req.Price)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) error {
		return call(ctx, marketplace.NewCallContext(caller), key.Collection, key.TokenIdValue(), price)
	})
	s.metrics.ObserveCall(name, err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, status, entity.Listing{Price: price, Seller: caller})
}

func (s Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	caller, key, err := callerAndAsset(r)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) error {
		return s.market.DeleteListing(ctx, marketplace.NewCallContext(caller), key.Collection, key.TokenIdValue())
	})
	s.metrics.ObserveCall("DeleteListing", err)
	writeStatus(w, err)
}

func (s Server) handleBuyItem(w http.ResponseWriter, r *http.Request) {
	caller, key, err := callerAndAsset(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req BuyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	value, err := entity.ParseValue(req.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) error {
		return s.market.BuyItem(ctx, marketplace.NewCallContext(caller).WithValue(value), key.Collection, key.TokenIdValue())
	})
	s.metrics.ObserveCall("BuyItem", err)
	writeStatus(w, err)
}

func (s Server) handleWithdrawProceeds(w http.ResponseWriter, r *http.Request) {
	caller, err := getCaller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) error {
		return s.market.WithdrawProceeds(ctx, marketplace.NewCallContext(caller))
	})
	s.metrics.ObserveCall("WithdrawProceeds", err)
	writeStatus(w, err)
}

func (s Server) handleGetProceeds(w http.ResponseWriter, r *http.Request) {
	principal, err := getPrincipal(r, "principal")
	if err != nil {
		writeError(w, err)
		return
	}

	var proceeds *uint256.Int
	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) (err error) {
		proceeds, err = s.market.GetProceeds(ctx, principal)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ProceedsResponse{Principal: principal, Proceeds: proceeds.Dec()})
}

func (s Server) handleFund(w http.ResponseWriter, r *http.Request) {
	principal, err := getPrincipal(r, "principal")
	if err != nil {
		writeError(w, err)
		return
	}

	var req FundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := entity.ParseValue(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) error {
		return s.bank.Fund(ctx, principal, amount)
	})
	writeStatus(w, err)
}

func (s Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	principal, err := getPrincipal(r, "principal")
	if err != nil {
		writeError(w, err)
		return
	}

	var balance *uint256.Int
	err = s.sequencer.Submit(r.Context(), func(ctx context.Context) (err error) {
		balance, err = s.bank.BalanceOf(ctx, principal)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{Principal: principal, Balance: balance.Dec()})
}

func (s Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		var err error
		if since, err = strconv.ParseUint(v, 10, 64); err != nil {
			writeError(w, fmt.Errorf("%w: since must be a sequence number", ErrBadRequest))
			return
		}
	}

	var events []entity.Event
	err := s.sequencer.Submit(r.Context(), func(ctx context.Context) (err error) {
		events, err = s.events.Since(ctx, since)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// Search reads bypass the sequencer: they never touch the state tree.
func (s Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key, err := getAssetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	size, err := getSize(r)
	if err != nil {
		writeError(w, err)
		return
	}

	actions, err := s.history.GetActionsForAsset(r.Context(), key.Collection, key.TokenIdValue(), size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, actions)
}

func (s Server) handleCollectionListings(w http.ResponseWriter, r *http.Request) {
	collection, err := getPrincipal(r, "collection")
	if err != nil {
		writeError(w, err)
		return
	}
	size, err := getSize(r)
	if err != nil {
		writeError(w, err)
		return
	}

	status := entity.ListingStatus(r.URL.Query().Get("status"))
	switch status {
	case "", entity.ListingActive, entity.ListingCanceled, entity.ListingSold:
	default:
		writeError(w, fmt.Errorf("%w: unknown status %q", ErrBadRequest, status))
		return
	}

	listings, err := s.history.GetListingsForCollection(r.Context(), collection, status, size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listings)
}

func getSize(r *http.Request) (int, error) {
	v := r.URL.Query().Get("size")
	if v == "" {
		return 0, nil
	}

	size, err := strconv.Atoi(v)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: size must be a positive number", ErrBadRequest)
	}

	return size, nil
}

func getCaller(r *http.Request) (entity.Principal, error) {
	header := r.Header.Get(CallerHeader)
	if header == "" {
		return entity.ZeroPrincipal, ErrMissingCaller
	}

	return entity.ParsePrincipal(header)
}

func getPrincipal(r *http.Request, name string) (entity.Principal, error) {
	return entity.ParsePrincipal(mux.Vars(r)[name])
}

func getAssetKey(r *http.Request) (entity.AssetKey, error) {
	collection, err := getPrincipal(r, "collection")
	if err != nil {
		return entity.AssetKey{}, err
	}

	tokenId, err := uint256.FromDecimal(mux.Vars(r)["tokenId"])
	if err != nil {
		return entity.AssetKey{}, fmt.Errorf("%w: tokenId: %v", entity.ErrInvalidValue, err)
	}

	return entity.NewAssetKey(collection, tokenId), nil
}

func callerAndCollection(r *http.Request) (entity.Principal, entity.Principal, error) {
	caller, err := getCaller(r)
	if err != nil {
		return entity.ZeroPrincipal, entity.ZeroPrincipal, err
	}

	collection, err := getPrincipal(r, "collection")

	return caller, collection, err
}

func callerAndAsset(r *http.Request) (entity.Principal, entity.AssetKey, error) {
	caller, err := getCaller(r)
	if err != nil {
		return entity.ZeroPrincipal, entity.AssetKey{}, err
	}

	key, err := getAssetKey(r)

	return caller, key, err
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().With(zap.Error(err)).Warn("Api: Failed to write response")
	}
}

func writeStatus(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().With(zap.Error(err)).Error("Api: Request failed")
	} else {
		zap.L().With(zap.Error(err)).Debug("Api: Request rejected")
	}

	writeJSON(w, status, errorResponse(err))
}

func notFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "NotFound", Message: "Page not found"})
	})
}
