package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	"go.uber.org/zap"
)

const listingPrefix = "/listings"

var (
	ErrInvalidListing = errors.New("listing must have a seller")
)

type ListingRepository interface {
	Put(ctx context.Context, key entity.AssetKey, listing entity.Listing) error
	Get(ctx context.Context, key entity.AssetKey) (entity.Listing, error)
	Remove(ctx context.Context, key entity.AssetKey) error
	Contains(ctx context.Context, key entity.AssetKey) (bool, error)
}

type listingRepository struct {
	tree *state.Tree
}

func NewListingRepository(tree *state.Tree) ListingRepository {
	return listingRepository{tree}
}

func listingKey(key entity.AssetKey) string {
	return fmt.Sprintf("%s/%s", listingPrefix, key.String())
}

// Put stores the listing. A zero price is the absent state and removes the entry.
func (r listingRepository) Put(ctx context.Context, key entity.AssetKey, listing entity.Listing) error {
	if !listing.IsListed() {
		return r.Remove(ctx, key)
	}
	if listing.Seller == entity.ZeroPrincipal {
		return ErrInvalidListing
	}

	data, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	r.tree.Put(listingKey(key), data)

	return nil
}

func (r listingRepository) Get(ctx context.Context, key entity.AssetKey) (entity.Listing, error) {
	data, found, err := r.tree.Get(ctx, listingKey(key))
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("asset", key.String())).Error("ListingRepository: Failed to read listing")
		return entity.EmptyListing(), err
	}
	if !found {
		return entity.EmptyListing(), nil
	}

	var listing entity.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		zap.L().With(zap.Error(err), zap.String("asset", key.String())).Error("ListingRepository: Corrupt listing")
		return entity.EmptyListing(), err
	}

	return listing, nil
}

func (r listingRepository) Remove(_ context.Context, key entity.AssetKey) error {
	r.tree.Delete(listingKey(key))
	return nil
}

func (r listingRepository) Contains(ctx context.Context, key entity.AssetKey) (bool, error) {
	listing, err := r.Get(ctx, key)
	if err != nil {
		return false, err
	}

	return listing.IsListed(), nil
}
