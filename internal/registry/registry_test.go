package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	"github.com/holiman/uint256"
	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"
)

var (
	collection = entity.MustParsePrincipal("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	alice      = entity.MustParsePrincipal("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	bob        = entity.MustParsePrincipal("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	operator   = entity.MustParsePrincipal("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func newRegistry() (*Registry, *state.Tree) {
	tree := state.NewTree(ds_sync.MutexWrap(ds.NewMapDatastore()))
	return NewRegistry(tree), tree
}

func TestMintAssignsSequentialIds(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()

	first, err := r.Mint(ctx, collection, alice)
	require.NoError(t, err)
	second, err := r.Mint(ctx, collection, bob)
	require.NoError(t, err)

	require.Equal(t, uint64(0), first.Uint64())
	require.Equal(t, uint64(1), second.Uint64())

	owner, err := r.OwnerOf(ctx, collection, second)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	_, err = r.Mint(ctx, collection, entity.ZeroPrincipal)
	require.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestOwnerOfUnknownToken(t *testing.T) {
	r, _ := newRegistry()

	_, err := r.OwnerOf(context.Background(), collection, entity.NewValue(7))
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	tokenId, err := r.Mint(ctx, collection, alice)
	require.NoError(t, err)

	require.ErrorIs(t, r.Approve(ctx, bob, collection, tokenId, bob), ErrNotAuthorized)

	require.NoError(t, r.Approve(ctx, alice, collection, tokenId, operator))
	approved, err := r.GetApproved(ctx, collection, tokenId)
	require.NoError(t, err)
	require.Equal(t, operator, approved)

	require.NoError(t, r.Approve(ctx, alice, collection, tokenId, entity.ZeroPrincipal))
	approved, err = r.GetApproved(ctx, collection, tokenId)
	require.NoError(t, err)
	require.Equal(t, entity.ZeroPrincipal, approved)
}

func TestSetApprovalForAll(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	tokenId, err := r.Mint(ctx, collection, alice)
	require.NoError(t, err)

	require.NoError(t, r.SetApprovalForAll(ctx, alice, collection, operator, true))
	ok, err := r.IsApprovedForAll(ctx, collection, alice, operator)
	require.NoError(t, err)
	require.True(t, ok)

	other := entity.MustParsePrincipal("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	ok, err = r.IsApprovedForAll(ctx, other, alice, operator)
	require.NoError(t, err)
	require.False(t, ok, "operator approval is per collection")

	require.NoError(t, r.Approve(ctx, operator, collection, tokenId, bob), "operators may approve")

	require.NoError(t, r.SetApprovalForAll(ctx, alice, collection, operator, false))
	ok, err = r.IsApprovedForAll(ctx, collection, alice, operator)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSafeTransferFrom(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	tokenId, err := r.Mint(ctx, collection, alice)
	require.NoError(t, err)

	err = r.SafeTransferFrom(ctx, operator, alice, bob, collection, tokenId)
	require.ErrorIs(t, err, ErrNotAuthorized)

	err = r.SafeTransferFrom(ctx, bob, bob, operator, collection, tokenId)
	require.ErrorIs(t, err, ErrNotTokenOwner)

	require.NoError(t, r.Approve(ctx, alice, collection, tokenId, operator))
	require.NoError(t, r.SafeTransferFrom(ctx, operator, alice, bob, collection, tokenId))

	owner, err := r.OwnerOf(ctx, collection, tokenId)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	approved, err := r.GetApproved(ctx, collection, tokenId)
	require.NoError(t, err)
	require.Equal(t, entity.ZeroPrincipal, approved, "approval is cleared on transfer")
}

func TestSafeTransferFromReceiver(t *testing.T) {
	ctx := context.Background()
	r, tree := newRegistry()
	tokenId, err := r.Mint(ctx, collection, alice)
	require.NoError(t, err)

	var seen entity.Principal
	r.SetReceiver(bob, func(ctx context.Context, op, from, c entity.Principal, id *uint256.Int) error {
		owner, err := r.OwnerOf(ctx, c, id)
		require.NoError(t, err)
		seen = owner
		return nil
	})
	require.NoError(t, r.SafeTransferFrom(ctx, alice, alice, bob, collection, tokenId))
	require.Equal(t, bob, seen, "receiver observes the new owner")

	r.SetReceiver(operator, func(context.Context, entity.Principal, entity.Principal, entity.Principal, *uint256.Int) error {
		return errors.New("not accepting")
	})
	err = r.SafeTransferFrom(ctx, bob, bob, operator, collection, tokenId)
	require.ErrorIs(t, err, ErrReceiverRejected)
	require.Equal(t, 0, tree.Depth())

	owner, err := r.OwnerOf(ctx, collection, tokenId)
	require.NoError(t, err)
	require.Equal(t, bob, owner, "rejected transfer is reverted")
}
