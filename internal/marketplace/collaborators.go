package marketplace

import (
	"context"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/holiman/uint256"
)

// AssetRegistry records NFT ownership and approvals. SafeTransferFrom may run a receiver hook
// that calls back into the marketplace on the same stack.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.Principal, error)
	GetApproved(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.Principal, error)
	IsApprovedForAll(ctx context.Context, collection, owner, operator entity.Principal) (bool, error)
	SafeTransferFrom(ctx context.Context, operator, from, to, collection entity.Principal, tokenId *uint256.Int) error
}

// ValueLedger moves native value for the marketplace account. Collect takes the value attached
// to a call, SendValue pays out and may run a receiver hook on the recipient.
type ValueLedger interface {
	Collect(ctx context.Context, from entity.Principal, amount *uint256.Int) error
	SendValue(ctx context.Context, to entity.Principal, amount *uint256.Int) error
}

// EventSink persists committed events and hands them to listeners once the state is flushed.
type EventSink interface {
	Stage(ctx context.Context, events []entity.Event) ([]entity.Event, error)
	Dispatch(events []entity.Event)
}
