package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ZilDuck/nft-marketplace/internal/api"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

var (
	collection = entity.MustParsePrincipal("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	seller     = entity.MustParsePrincipal("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

func newClient(t *testing.T, r *mux.Router) *Client {
	t.Helper()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, 5, false)
	require.NoError(t, err)

	return c.As(seller)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientRequiresUrl(t *testing.T) {
	_, err := NewClient("", 5, false)
	require.Error(t, err)
}

func TestListItemSendsCallerAndPrice(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/listings/{collection}/{tokenId}", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, seller.Hex(), req.Header.Get(api.CallerHeader))
		require.Equal(t, collection.Hex(), mux.Vars(req)["collection"])
		require.Equal(t, "3", mux.Vars(req)["tokenId"])

		var body api.PriceRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		require.Equal(t, "100", body.Price)

		writeJSON(w, http.StatusCreated, entity.Listing{Price: entity.NewValue(100), Seller: seller})
	}).Methods("POST")

	c := newClient(t, r)
	require.NoError(t, c.ListItem(context.Background(), collection, entity.NewValue(3), entity.NewValue(100)))
}

func TestErrorsMatchMarketplaceKinds(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/listings/{collection}/{tokenId}/buy", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, api.ErrorResponse{
			Error:   "PriceNotMet",
			Message: "PriceNotMet(0x5FbDB2315678afecb367f032d93F642f64180aa3, 0, 100)",
			Price:   "100",
		})
	}).Methods("POST")

	c := newClient(t, r)
	err := c.BuyItem(context.Background(), collection, entity.NewValue(0), entity.NewValue(1))
	require.ErrorIs(t, err, marketplace.ErrPriceNotMet)
	require.NotErrorIs(t, err, marketplace.ErrNotListed)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	require.Equal(t, "100", apiErr.Response.Price)
}

func TestWritesAreNotRetriedOnServerError(t *testing.T) {
	var calls int32
	r := mux.NewRouter()
	r.HandleFunc("/proceeds/withdraw", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadGateway, api.ErrorResponse{Error: "TransferFailed", Message: "TransferFailed: rejected"})
	}).Methods("POST")

	c := newClient(t, r)
	err := c.WithdrawProceeds(context.Background())
	require.ErrorIs(t, err, marketplace.ErrTransferFailed)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnavailableIsRetried(t *testing.T) {
	var calls int32
	r := mux.NewRouter()
	r.HandleFunc("/proceeds/{principal}", func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: "Service Unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, api.ProceedsResponse{Principal: seller, Proceeds: "42"})
	}).Methods("GET")

	c := newClient(t, r)
	proceeds, err := c.GetProceeds(context.Background(), seller)
	require.NoError(t, err)
	require.Equal(t, uint64(42), proceeds.Uint64())
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEvents(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "2", req.URL.Query().Get("since"))
		writeJSON(w, http.StatusOK, []entity.Event{
			{Seq: 2, Type: entity.ItemBoughtEvent, Caller: seller, Collection: collection, TokenId: entity.NewValue(1), Price: entity.NewValue(5)},
		})
	}).Methods("GET")

	c := newClient(t, r)
	events, err := c.Events(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, entity.ItemBoughtEvent, events[0].Type)
	require.Equal(t, uint64(5), events[0].Price.Uint64())
}

func TestHistoryAndCollectionListings(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/listings/{collection}/{tokenId}/history", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, []entity.MarketplaceAction{
			{Seq: 0, Action: entity.MarketplaceListingAction, TokenId: mux.Vars(req)["tokenId"]},
			{Seq: 1, Action: entity.MarketplaceSaleAction, TokenId: mux.Vars(req)["tokenId"]},
		})
	}).Methods("GET")
	r.HandleFunc("/collections/{collection}/listings", func(w http.ResponseWriter, req *http.Request) {
		status := entity.ListingStatus(req.URL.Query().Get("status"))
		writeJSON(w, http.StatusOK, []entity.MarketplaceListing{{Asset: "a", Status: status}})
	}).Methods("GET")

	c := newClient(t, r)

	actions, err := c.History(context.Background(), collection, entity.NewValue(7))
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, "7", actions[1].TokenId)
	require.Equal(t, entity.MarketplaceSaleAction, actions[1].Action)

	listings, err := c.CollectionListings(context.Background(), collection, entity.ListingActive)
	require.NoError(t, err)
	require.Equal(t, entity.ListingActive, listings[0].Status)
}
