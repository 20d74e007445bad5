package marketplace

import (
	"context"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/holiman/uint256"
)

func requireValueAccepted(cc CallContext, payable bool) error {
	if !payable && cc.HasValue() {
		return ErrNonPayable
	}
	return nil
}

func requirePriceAboveZero(price *uint256.Int) error {
	if price == nil || price.IsZero() {
		return ErrPriceMustBeAboveZero
	}
	return nil
}

func (m *Marketplace) requireNotListed(ctx context.Context, key entity.AssetKey) error {
	listed, err := m.listings.Contains(ctx, key)
	if err != nil {
		return err
	}
	if listed {
		return newAlreadyListed(key)
	}
	return nil
}

func (m *Marketplace) requireListed(ctx context.Context, key entity.AssetKey) (entity.Listing, error) {
	listing, err := m.listings.Get(ctx, key)
	if err != nil {
		return entity.EmptyListing(), err
	}
	if !listing.IsListed() {
		return entity.EmptyListing(), newNotListed(key)
	}
	return listing, nil
}

// requireIsAssetOwner checks the registry before a listing exists.
func (m *Marketplace) requireIsAssetOwner(ctx context.Context, caller entity.Principal, key entity.AssetKey) error {
	owner, err := m.assets.OwnerOf(ctx, key.Collection, key.TokenIdValue())
	if err != nil {
		return err
	}
	if owner != caller {
		return ErrNotOwner
	}
	return nil
}

// requireIsSeller checks the recorded seller once a listing exists.
func requireIsSeller(caller entity.Principal, listing entity.Listing) error {
	if listing.Seller != caller {
		return ErrNotOwner
	}
	return nil
}

func (m *Marketplace) requireMarketplaceApproved(ctx context.Context, owner entity.Principal, key entity.AssetKey) error {
	approved, err := m.assets.GetApproved(ctx, key.Collection, key.TokenIdValue())
	if err != nil {
		return err
	}
	if approved == m.address {
		return nil
	}

	operator, err := m.assets.IsApprovedForAll(ctx, key.Collection, owner, m.address)
	if err != nil {
		return err
	}
	if !operator {
		return ErrNotApprovedForMarketplace
	}
	return nil
}

func requirePaymentCovers(key entity.AssetKey, listing entity.Listing, value *uint256.Int) error {
	if entity.CopyValue(value).Lt(listing.Price) {
		return newPriceNotMet(key, listing.Price)
	}
	return nil
}

func requireProceeds(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrNoProceeds
	}
	return nil
}
