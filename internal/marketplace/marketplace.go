package marketplace

import (
	"context"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/repository"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	"github.com/holiman/uint256"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Marketplace is a fixed-price NFT market. It never takes custody of an asset: a sale pulls the
// NFT from the seller through the registry, and proceeds are held until the seller withdraws.
//
// Every public call runs inside its own state snapshot. Calls that re-enter from a registry or
// ledger hook nest on the same stack and see the state written before the external call.
type Marketplace struct {
	address  entity.Principal
	tree     *state.Tree
	listings repository.ListingRepository
	proceeds repository.ProceedsRepository
	assets   AssetRegistry
	value    ValueLedger
	events   EventSink
}

func NewMarketplace(
	address entity.Principal,
	tree *state.Tree,
	listings repository.ListingRepository,
	proceeds repository.ProceedsRepository,
	assets AssetRegistry,
	value ValueLedger,
	events EventSink,
) *Marketplace {
	return &Marketplace{address, tree, listings, proceeds, assets, value, events}
}

// Address is the principal the marketplace acts as towards the registry and ledger.
func (m *Marketplace) Address() entity.Principal {
	return m.address
}

func (m *Marketplace) ListItem(ctx context.Context, cc CallContext, collection entity.Principal, tokenId, price *uint256.Int) error {
	key := entity.NewAssetKey(collection, tokenId)

	return m.call(ctx, "ListItem", cc, false, func() error {
		if err := requirePriceAboveZero(price); err != nil {
			return err
		}
		if err := m.requireNotListed(ctx, key); err != nil {
			return err
		}
		if err := m.requireIsAssetOwner(ctx, cc.Caller, key); err != nil {
			return err
		}
		if err := m.requireMarketplaceApproved(ctx, cc.Caller, key); err != nil {
			return err
		}

		if err := m.listings.Put(ctx, key, entity.Listing{Price: entity.CopyValue(price), Seller: cc.Caller}); err != nil {
			return err
		}
		m.tree.AddLog(entity.NewItemListed(cc.Caller, collection, tokenId, price))

		zap.L().With(
			zap.String("seller", cc.Caller.Hex()),
			zap.String("asset", key.String()),
			zap.String("price", price.Dec()),
		).Info("Marketplace listing")

		return nil
	})
}

func (m *Marketplace) DeleteListing(ctx context.Context, cc CallContext, collection entity.Principal, tokenId *uint256.Int) error {
	key := entity.NewAssetKey(collection, tokenId)

	return m.call(ctx, "DeleteListing", cc, false, func() error {
		listing, err := m.requireListed(ctx, key)
		if err != nil {
			return err
		}
		if err := requireIsSeller(cc.Caller, listing); err != nil {
			return err
		}

		if err := m.listings.Remove(ctx, key); err != nil {
			return err
		}
		m.tree.AddLog(entity.NewItemCanceled(cc.Caller, collection, tokenId))

		zap.L().With(
			zap.String("seller", cc.Caller.Hex()),
			zap.String("asset", key.String()),
		).Info("Marketplace delisting")

		return nil
	})
}

func (m *Marketplace) UpdateListing(ctx context.Context, cc CallContext, collection entity.Principal, tokenId, newPrice *uint256.Int) error {
	key := entity.NewAssetKey(collection, tokenId)

	return m.call(ctx, "UpdateListing", cc, false, func() error {
		listing, err := m.requireListed(ctx, key)
		if err != nil {
			return err
		}
		if err := requireIsSeller(cc.Caller, listing); err != nil {
			return err
		}
		if err := requirePriceAboveZero(newPrice); err != nil {
			return err
		}

		listing.Price = entity.CopyValue(newPrice)
		if err := m.listings.Put(ctx, key, listing); err != nil {
			return err
		}
		m.tree.AddLog(entity.NewItemUpdated(cc.Caller, collection, tokenId, newPrice))

		zap.L().With(
			zap.String("seller", cc.Caller.Hex()),
			zap.String("asset", key.String()),
			zap.String("price", newPrice.Dec()),
		).Info("Marketplace listing updated")

		return nil
	})
}

// BuyItem is payable. The whole attached value is credited to the seller, overpayment included.
func (m *Marketplace) BuyItem(ctx context.Context, cc CallContext, collection entity.Principal, tokenId *uint256.Int) error {
	key := entity.NewAssetKey(collection, tokenId)

	return m.call(ctx, "BuyItem", cc, true, func() error {
		listing, err := m.requireListed(ctx, key)
		if err != nil {
			return err
		}
		if err := requirePaymentCovers(key, listing, cc.Value); err != nil {
			return err
		}

		// Effects strictly before the transfer: a re-entrant buy of the same key finds no listing.
		if err := m.proceeds.Add(ctx, listing.Seller, entity.CopyValue(cc.Value)); err != nil {
			return err
		}
		if err := m.listings.Remove(ctx, key); err != nil {
			return err
		}

		if err := m.assets.SafeTransferFrom(ctx, m.address, listing.Seller, cc.Caller, collection, tokenId); err != nil {
			zap.L().With(zap.Error(err), zap.String("asset", key.String())).Warn("Marketplace: NFT transfer failed")
			return newTransferFailed(err)
		}
		m.tree.AddLog(entity.NewItemBought(cc.Caller, collection, tokenId, listing.Price))

		zap.L().With(
			zap.String("seller", listing.Seller.Hex()),
			zap.String("buyer", cc.Caller.Hex()),
			zap.String("asset", key.String()),
			zap.String("price", listing.Price.Dec()),
			zap.String("value", cc.Value.Dec()),
		).Info("Marketplace trade")

		return nil
	})
}

func (m *Marketplace) WithdrawProceeds(ctx context.Context, cc CallContext) error {
	return m.call(ctx, "WithdrawProceeds", cc, false, func() error {
		balance, err := m.proceeds.Get(ctx, cc.Caller)
		if err != nil {
			return err
		}
		if err := requireProceeds(balance); err != nil {
			return err
		}

		amount, err := m.proceeds.Zero(ctx, cc.Caller)
		if err != nil {
			return err
		}

		if err := m.value.SendValue(ctx, cc.Caller, amount); err != nil {
			zap.L().With(zap.Error(err), zap.String("to", cc.Caller.Hex())).Warn("Marketplace: Proceeds transfer failed")
			return newTransferFailed(err)
		}
		m.tree.AddLog(entity.NewProceedsWithdrawn(cc.Caller, amount))

		zap.L().With(
			zap.String("seller", cc.Caller.Hex()),
			zap.String("amount", amount.Dec()),
		).Info("Marketplace proceeds withdrawn")

		return nil
	})
}

// GetListing returns the stored listing, or {0, ZeroPrincipal} when the asset is not listed.
func (m *Marketplace) GetListing(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.Listing, error) {
	return m.listings.Get(ctx, entity.NewAssetKey(collection, tokenId))
}

func (m *Marketplace) GetProceeds(ctx context.Context, principal entity.Principal) (*uint256.Int, error) {
	return m.proceeds.Get(ctx, principal)
}

// Commit flushes writes made outside a marketplace call, such as registry mints, together with
// any pending events. It is a no-op while a call is in progress.
func (m *Marketplace) Commit(ctx context.Context) error {
	if m.tree.Depth() != 0 {
		return nil
	}
	return m.commit(ctx)
}

// Discard drops writes made outside a marketplace call that have not been committed.
func (m *Marketplace) Discard() error {
	return m.tree.Discard()
}

func (m *Marketplace) call(ctx context.Context, name string, cc CallContext, payable bool, fn func() error) (err error) {
	if err := requireValueAccepted(cc, payable); err != nil {
		return err
	}

	m.tree.Snapshot()
	defer func() {
		if err != nil {
			m.tree.Revert()
			zap.L().With(
				zap.String("call", name),
				zap.String("caller", cc.Caller.Hex()),
				zap.Int("depth", m.tree.Depth()),
				zap.Error(err),
			).Debug("Marketplace: Call reverted")
		}
		if clearErr := m.tree.ClearSnapshot(); clearErr != nil {
			err = multierr.Append(err, clearErr)
			return
		}
		if m.tree.Depth() == 0 {
			if commitErr := m.commit(ctx); commitErr != nil && err == nil {
				err = commitErr
			}
		}
	}()

	if payable && cc.HasValue() {
		if err := m.value.Collect(ctx, cc.Caller, cc.Value); err != nil {
			return newTransferFailed(err)
		}
	}

	return fn()
}

// commit persists the base layer and its events in one batch, then notifies listeners. On
// failure the base layer is dropped so memory matches the datastore again.
func (m *Marketplace) commit(ctx context.Context) error {
	if !m.tree.Dirty() {
		return nil
	}

	staged, err := m.events.Stage(ctx, m.tree.Logs())
	if err == nil {
		err = m.tree.Flush(ctx)
	}
	if err != nil {
		zap.L().With(zap.Error(err)).Error("Marketplace: Failed to commit state")
		return multierr.Append(err, m.tree.Discard())
	}

	m.events.Dispatch(staged)

	return nil
}
