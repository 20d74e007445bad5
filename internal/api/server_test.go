package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZilDuck/nft-marketplace/internal/bank"
	"github.com/ZilDuck/nft-marketplace/internal/daemon"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/internal/metrics"
	"github.com/ZilDuck/nft-marketplace/internal/registry"
	"github.com/ZilDuck/nft-marketplace/internal/repository"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	"github.com/holiman/uint256"
	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"
)

var (
	marketAddr = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	collection = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	seller     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	buyer      = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	return newServerWithHistory(t, nil)
}

func newServerWithHistory(t *testing.T, history repository.MarketplaceActionRepository) *httptest.Server {
	t.Helper()

	tree := state.NewTree(ds_sync.MutexWrap(ds.NewMapDatastore()))
	reg := registry.NewRegistry(tree)
	b := bank.NewBank(tree)
	manager := event.NewManager()
	log := event.NewLog(tree, manager)
	m := metrics.New()
	manager.AddEventListener(event.AnyEvent, m.ObserveEvent)

	address := entity.MustParsePrincipal(marketAddr)
	market := marketplace.NewMarketplace(
		address,
		tree,
		repository.NewListingRepository(tree),
		repository.NewProceedsRepository(tree),
		reg,
		b.Account(address),
		log,
	)

	sequencer := daemon.NewSequencer(market, m, 16)
	sequencer.Start()

	server := NewServer(market, reg, b, log, sequencer, m)
	if history != nil {
		server = server.WithHistory(history)
	}

	srv := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		srv.Close()
		sequencer.Stop()
		manager.Close()
	})

	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, caller string, body interface{}, out interface{}) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var market MarketplaceResponse
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/marketplace", "", nil, &market))
	require.Equal(t, entity.MustParsePrincipal(marketAddr), market.Address)
}

func TestMarketplaceRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	price := "100000000000000000"

	var minted MintResponse
	require.Equal(t, http.StatusCreated, do(t, srv, "POST", "/collections/"+collection+"/tokens", seller, nil, &minted))
	require.Equal(t, "0", minted.TokenId)
	asset := collection + "/" + minted.TokenId
	token := collection + "/tokens/" + minted.TokenId

	var failure ErrorResponse
	require.Equal(t, http.StatusForbidden, do(t, srv, "POST", "/listings/"+asset, seller, PriceRequest{Price: price}, &failure))
	require.Equal(t, "NotApprovedForMarketplace", failure.Error)

	require.Equal(t, http.StatusOK, do(t, srv, "POST", "/collections/"+token+"/approve", seller, ApproveRequest{Operator: marketAddr}, nil))
	require.Equal(t, http.StatusCreated, do(t, srv, "POST", "/listings/"+asset, seller, PriceRequest{Price: price}, nil))

	failure = ErrorResponse{}
	require.Equal(t, http.StatusConflict, do(t, srv, "POST", "/listings/"+asset, seller, PriceRequest{Price: price}, &failure))
	require.Equal(t, "AlreadyListed", failure.Error)
	require.Equal(t, "0", failure.TokenId)

	var listing entity.Listing
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/listings/"+asset, "", nil, &listing))
	require.Equal(t, price, listing.Price.Dec())
	require.Equal(t, entity.MustParsePrincipal(seller), listing.Seller)

	require.Equal(t, http.StatusOK, do(t, srv, "POST", "/accounts/"+buyer+"/fund", "", FundRequest{Amount: price}, nil))

	failure = ErrorResponse{}
	require.Equal(t, http.StatusPaymentRequired, do(t, srv, "POST", "/listings/"+asset+"/buy", buyer, BuyRequest{Value: "1"}, &failure))
	require.Equal(t, "PriceNotMet", failure.Error)
	require.Equal(t, price, failure.Price)

	require.Equal(t, http.StatusOK, do(t, srv, "POST", "/listings/"+asset+"/buy", buyer, BuyRequest{Value: price}, nil))

	var owner OwnerResponse
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/collections/"+token+"/owner", "", nil, &owner))
	require.Equal(t, entity.MustParsePrincipal(buyer), owner.Owner)

	var proceeds ProceedsResponse
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/proceeds/"+seller, "", nil, &proceeds))
	require.Equal(t, price, proceeds.Proceeds)

	require.Equal(t, http.StatusOK, do(t, srv, "POST", "/proceeds/withdraw", seller, nil, nil))

	failure = ErrorResponse{}
	require.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/proceeds/withdraw", seller, nil, &failure))
	require.Equal(t, "NoProceeds", failure.Error)

	var balance BalanceResponse
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/accounts/"+seller+"/balance", "", nil, &balance))
	require.Equal(t, price, balance.Balance)

	var events []entity.Event
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/events?since=1", "", nil, &events))
	require.Len(t, events, 2)
	require.Equal(t, entity.ItemBoughtEvent, events[0].Type)
	require.Equal(t, entity.ProceedsWithdrawnEvent, events[1].Type)
}

func TestUpdateAndDeleteListing(t *testing.T) {
	srv := newTestServer(t)

	var minted MintResponse
	require.Equal(t, http.StatusCreated, do(t, srv, "POST", "/collections/"+collection+"/tokens", seller, nil, &minted))
	require.Equal(t, http.StatusOK, do(t, srv, "POST", "/collections/"+collection+"/operators", seller, OperatorRequest{Operator: marketAddr, Approved: true}, nil))

	asset := collection + "/" + minted.TokenId
	require.Equal(t, http.StatusCreated, do(t, srv, "POST", "/listings/"+asset, seller, PriceRequest{Price: "10"}, nil))

	var failure ErrorResponse
	require.Equal(t, http.StatusForbidden, do(t, srv, "PUT", "/listings/"+asset, buyer, PriceRequest{Price: "20"}, &failure))
	require.Equal(t, "NotOwner", failure.Error)

	require.Equal(t, http.StatusOK, do(t, srv, "PUT", "/listings/"+asset, seller, PriceRequest{Price: "20"}, nil))

	var listing entity.Listing
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/listings/"+asset, "", nil, &listing))
	require.Equal(t, "20", listing.Price.Dec())

	require.Equal(t, http.StatusOK, do(t, srv, "DELETE", "/listings/"+asset, seller, nil, nil))

	failure = ErrorResponse{}
	require.Equal(t, http.StatusNotFound, do(t, srv, "DELETE", "/listings/"+asset, seller, nil, &failure))
	require.Equal(t, "NotListed", failure.Error)
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t)

	var failure ErrorResponse
	require.Equal(t, http.StatusUnauthorized, do(t, srv, "POST", "/proceeds/withdraw", "", nil, &failure))

	require.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/proceeds/withdraw", "not-a-principal", nil, nil))
	require.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/listings/"+collection+"/abc", "", nil, nil))
	require.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/events?since=-1", "", nil, nil))
	require.Equal(t, http.StatusNotFound, do(t, srv, "GET", "/collections/"+collection+"/tokens/9/owner", "", nil, nil))
	require.Equal(t, http.StatusNotFound, do(t, srv, "GET", "/nowhere", "", nil, nil))

	failure = ErrorResponse{}
	require.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/listings/"+collection+"/0", seller, PriceRequest{Price: "0"}, &failure))
	require.Equal(t, "PriceMustBeAboveZero", failure.Error)
}

type stubHistory struct {
	status entity.ListingStatus
	size   int
}

func (h *stubHistory) GetActionsForAsset(_ context.Context, c entity.Principal, tokenId *uint256.Int, size int) ([]entity.MarketplaceAction, error) {
	h.size = size
	return []entity.MarketplaceAction{{Seq: 0, Action: entity.MarketplaceListingAction, Collection: entity.PrincipalKey(c), TokenId: tokenId.Dec()}}, nil
}

func (h *stubHistory) GetIndexedListing(context.Context, entity.Principal, *uint256.Int) (entity.MarketplaceListing, error) {
	return entity.MarketplaceListing{}, repository.ErrListingNotIndexed
}

func (h *stubHistory) GetListingsForCollection(_ context.Context, _ entity.Principal, status entity.ListingStatus, size int) ([]entity.MarketplaceListing, error) {
	h.status = status
	h.size = size
	return []entity.MarketplaceListing{{Asset: "a", Status: status}}, nil
}

func TestHistoryRoutes(t *testing.T) {
	require.Equal(t, http.StatusNotFound, do(t, newTestServer(t), "GET", "/listings/"+collection+"/1/history", "", nil, nil))

	history := &stubHistory{}
	srv := newServerWithHistory(t, history)

	var actions []entity.MarketplaceAction
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/listings/"+collection+"/1/history?size=5", "", nil, &actions))
	require.Len(t, actions, 1)
	require.Equal(t, "1", actions[0].TokenId)
	require.Equal(t, 5, history.size)

	var listings []entity.MarketplaceListing
	require.Equal(t, http.StatusOK, do(t, srv, "GET", "/collections/"+collection+"/listings?status=sold", "", nil, &listings))
	require.Equal(t, entity.ListingSold, history.status)
	require.Equal(t, entity.ListingSold, listings[0].Status)

	var failure ErrorResponse
	require.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/collections/"+collection+"/listings?status=pending", "", nil, &failure))
	require.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/listings/"+collection+"/1/history?size=-1", "", nil, nil))
}
