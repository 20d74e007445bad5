package repository

import (
	"context"
	"errors"

	"github.com/ZilDuck/nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/holiman/uint256"
	"github.com/olivere/elastic/v7"
	"go.uber.org/zap"
)

var (
	ErrListingNotIndexed = errors.New("listing not indexed")
)

const defaultSearchSize = 100

// MarketplaceActionRepository reads the search index built from committed events. Results lag
// the ledger by up to one indexer flush.
type MarketplaceActionRepository interface {
	GetActionsForAsset(ctx context.Context, collection entity.Principal, tokenId *uint256.Int, size int) ([]entity.MarketplaceAction, error)
	GetIndexedListing(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.MarketplaceListing, error)
	GetListingsForCollection(ctx context.Context, collection entity.Principal, status entity.ListingStatus, size int) ([]entity.MarketplaceListing, error)
}

type marketplaceActionRepository struct {
	elastic elastic_search.Index
}

func NewMarketplaceActionRepository(elastic elastic_search.Index) MarketplaceActionRepository {
	return marketplaceActionRepository{elastic}
}

func (r marketplaceActionRepository) GetActionsForAsset(ctx context.Context, collection entity.Principal, tokenId *uint256.Int, size int) ([]entity.MarketplaceAction, error) {
	query := elastic.NewBoolQuery().Must(
		elastic.NewTermQuery("asset", entity.CreateAssetSlug(collection, tokenId)),
	)

	results, err := search(ctx, r.elastic.GetClient().
		Search(elastic_search.ActionIndex.Get()).
		Query(query).
		Sort("seq", true).
		Size(searchSize(size)))
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("collection", collection.Hex())).Error("Repository: Failed to search actions")
		return nil, err
	}

	return decodeHits[entity.MarketplaceAction](results)
}

func (r marketplaceActionRepository) GetIndexedListing(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.MarketplaceListing, error) {
	slug := entity.CreateAssetSlug(collection, tokenId)
	if pending := r.elastic.GetRequest(slug); pending != nil {
		if listing, ok := pending.Doc.(entity.MarketplaceListing); ok {
			return listing, nil
		}
	}

	results, err := search(ctx, r.elastic.GetClient().
		Search(elastic_search.ListingIndex.Get()).
		Query(elastic.NewTermQuery("asset", slug)).
		Size(1))
	if err != nil {
		return entity.MarketplaceListing{}, err
	}

	listings, err := decodeHits[entity.MarketplaceListing](results)
	if err != nil {
		return entity.MarketplaceListing{}, err
	}
	if len(listings) == 0 {
		return entity.MarketplaceListing{}, ErrListingNotIndexed
	}

	return listings[0], nil
}

func (r marketplaceActionRepository) GetListingsForCollection(ctx context.Context, collection entity.Principal, status entity.ListingStatus, size int) ([]entity.MarketplaceListing, error) {
	query := elastic.NewBoolQuery().Must(
		elastic.NewTermQuery("collection", entity.PrincipalKey(collection)),
	)
	if status != "" {
		query.Filter(elastic.NewTermQuery("status", string(status)))
	}

	results, err := search(ctx, r.elastic.GetClient().
		Search(elastic_search.ListingIndex.Get()).
		Query(query).
		Sort("updatedAt", false).
		Size(searchSize(size)))
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("collection", collection.Hex())).Error("Repository: Failed to search listings")
		return nil, err
	}

	return decodeHits[entity.MarketplaceListing](results)
}

func searchSize(size int) int {
	if size <= 0 || size > 10000 {
		return defaultSearchSize
	}

	return size
}
