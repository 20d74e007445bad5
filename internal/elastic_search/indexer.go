package elastic_search

import (
	"context"
	"sync"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"go.uber.org/zap"
)

// Indexer turns committed marketplace events into action and listing documents.
type Indexer struct {
	elastic     Index
	marketplace entity.Principal
	mu          sync.Mutex
}

func NewIndexer(elastic Index, marketplace entity.Principal) *Indexer {
	return &Indexer{elastic: elastic, marketplace: marketplace}
}

// HandleEvent is registered as an event listener for every type.
func (i *Indexer) HandleEvent(e entity.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.elastic.AddIndexRequest(ActionIndex.Get(), entity.NewMarketplaceAction(i.marketplace, e), MarketplaceAction)

	listing := entity.MarketplaceListing{
		Asset:      e.Key().Slug(),
		Collection: entity.PrincipalKey(e.Collection),
		TokenId:    entity.ValueString(e.TokenId),
		UpdatedAt:  e.Time,
	}

	switch e.Type {
	case entity.ItemListedEvent:
		listing.Seller = entity.PrincipalKey(e.Caller)
		listing.Price = entity.ValueString(e.Price)
		listing.Status = entity.ListingActive
		i.elastic.AddIndexRequest(ListingIndex.Get(), listing, ListingCreate)
	case entity.ItemUpdatedEvent:
		listing.Price = entity.ValueString(e.Price)
		listing.Status = entity.ListingActive
		i.elastic.AddUpdateRequest(ListingIndex.Get(), listing, ListingUpdatePrice)
	case entity.ItemCanceledEvent:
		listing.Status = entity.ListingCanceled
		i.elastic.AddUpdateRequest(ListingIndex.Get(), listing, ListingUpdateStatus)
	case entity.ItemBoughtEvent:
		listing.Buyer = entity.PrincipalKey(e.Caller)
		listing.Status = entity.ListingSold
		i.elastic.AddUpdateRequest(ListingIndex.Get(), listing, ListingUpdateStatus)
	}

	i.elastic.BatchPersist(context.Background())
}

// Run persists buffered requests on every tick until ctx is done, then flushes what is left.
func (i *Indexer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			i.Flush(context.Background())
			return
		case <-ticker.C:
			i.Flush(ctx)
		}
	}
}

func (i *Indexer) Flush(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if n, err := i.elastic.Persist(ctx); err != nil {
		zap.L().With(zap.Error(err), zap.Int("persisted", n)).Warn("Indexer: Persist incomplete")
	}
}
