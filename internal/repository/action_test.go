package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/require"
)

type searchStub struct {
	mu       sync.Mutex
	throttle int32
	calls    int32
	paths    []string
	bodies   []string
	sources  []interface{}
}

func (s *searchStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.calls, 1)
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.bodies = append(s.bodies, string(body))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if atomic.AddInt32(&s.throttle, -1) >= 0 {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"es_rejected_execution_exception"},"status":429}`))
		return
	}

	hits := make([]map[string]interface{}, 0)
	for i, source := range s.sources {
		hits = append(hits, map[string]interface{}{"_index": "idx", "_id": fmt.Sprint(i), "_source": source})
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"took": 1,
		"hits": map[string]interface{}{"total": map[string]interface{}{"value": len(hits), "relation": "eq"}, "hits": hits},
	})
}

func (s *searchStub) request(i int) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.paths[i], s.bodies[i]
}

func newActionRepository(t *testing.T, stub *searchStub) (MarketplaceActionRepository, elastic_search.Index) {
	t.Helper()

	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	client, err := elastic.NewClient(elastic.SetURL(srv.URL), elastic.SetSniff(false), elastic.SetHealthcheck(false))
	require.NoError(t, err)

	index := elastic_search.NewIndex(client, config.ElasticSearchConfig{})
	return NewMarketplaceActionRepository(index), index
}

func TestGetActionsForAsset(t *testing.T) {
	stub := &searchStub{sources: []interface{}{
		entity.MarketplaceAction{Seq: 0, Action: entity.MarketplaceListingAction, Cost: "100"},
		entity.MarketplaceAction{Seq: 1, Action: entity.MarketplaceSaleAction, Cost: "100"},
	}}
	repo, _ := newActionRepository(t, stub)

	actions, err := repo.GetActionsForAsset(context.Background(), collection, entity.NewValue(3), 0)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, entity.MarketplaceSaleAction, actions[1].Action)

	path, body := stub.request(0)
	require.True(t, strings.HasSuffix(path, "/"+elastic_search.ActionIndex.Get()+"/_search"))
	require.Contains(t, body, entity.CreateAssetSlug(collection, entity.NewValue(3)))
	require.Contains(t, body, `"size":100`)
}

func TestGetIndexedListingPrefersPendingRequest(t *testing.T) {
	stub := &searchStub{}
	repo, index := newActionRepository(t, stub)

	_, err := repo.GetIndexedListing(context.Background(), collection, entity.NewValue(1))
	require.ErrorIs(t, err, ErrListingNotIndexed)

	pending := entity.MarketplaceListing{
		Asset:  entity.CreateAssetSlug(collection, entity.NewValue(1)),
		Seller: entity.PrincipalKey(seller),
		Price:  "5",
		Status: entity.ListingActive,
	}
	index.AddIndexRequest(elastic_search.ListingIndex.Get(), pending, elastic_search.ListingCreate)

	calls := atomic.LoadInt32(&stub.calls)
	listing, err := repo.GetIndexedListing(context.Background(), collection, entity.NewValue(1))
	require.NoError(t, err)
	require.Equal(t, pending, listing)
	require.Equal(t, calls, atomic.LoadInt32(&stub.calls), "pending requests are served from the buffer")
}

func TestGetListingsForCollectionFiltersStatus(t *testing.T) {
	stub := &searchStub{sources: []interface{}{
		entity.MarketplaceListing{Asset: "a", Buyer: entity.PrincipalKey(buyer), Status: entity.ListingSold},
	}}
	repo, _ := newActionRepository(t, stub)

	listings, err := repo.GetListingsForCollection(context.Background(), collection, entity.ListingSold, 10)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, entity.ListingSold, listings[0].Status)
	_, body := stub.request(0)
	require.Contains(t, body, `"status":"sold"`)
	require.Contains(t, body, entity.PrincipalKey(collection))
}

func TestSearchRetriesWhenThrottled(t *testing.T) {
	searchBackoff = time.Millisecond
	t.Cleanup(func() { searchBackoff = 5 * time.Second })

	stub := &searchStub{throttle: 1}
	repo, _ := newActionRepository(t, stub)

	_, err := repo.GetActionsForAsset(context.Background(), collection, entity.NewValue(0), 1)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&stub.calls))

	stub = &searchStub{throttle: searchRetries}
	repo, _ = newActionRepository(t, stub)

	_, err = repo.GetActionsForAsset(context.Background(), collection, entity.NewValue(0), 1)
	require.True(t, elastic.IsStatusCode(err, http.StatusTooManyRequests))
	require.Equal(t, int32(searchRetries), atomic.LoadInt32(&stub.calls))
}
