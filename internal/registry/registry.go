package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrNotTokenOwner    = errors.New("from is not the token owner")
	ErrNotAuthorized    = errors.New("caller is not owner nor approved")
	ErrInvalidRecipient = errors.New("transfer to the zero principal")
	ErrReceiverRejected = errors.New("receiver rejected the token")
)

// Receiver is called on the recipient after a safe transfer has been applied. A non-nil error
// rejects the token.
type Receiver func(ctx context.Context, operator, from, collection entity.Principal, tokenId *uint256.Int) error

// Registry is a mintable ERC-721 style registry. Any principal can be used as a collection.
type Registry struct {
	tree      *state.Tree
	receivers map[entity.Principal]Receiver
}

func NewRegistry(tree *state.Tree) *Registry {
	return &Registry{
		tree:      tree,
		receivers: make(map[entity.Principal]Receiver),
	}
}

// SetReceiver installs the hook run when p receives a token. A nil hook removes it.
func (r *Registry) SetReceiver(p entity.Principal, hook Receiver) {
	if hook == nil {
		delete(r.receivers, p)
		return
	}
	r.receivers[p] = hook
}

// Mint assigns the next token id of the collection to the recipient. Ids start at 0.
func (r *Registry) Mint(ctx context.Context, collection, to entity.Principal) (*uint256.Int, error) {
	if to == entity.ZeroPrincipal {
		return nil, ErrInvalidRecipient
	}

	tokenId, err := r.readValue(ctx, counterKey(collection))
	if err != nil {
		return nil, err
	}

	next, err := entity.AddValues(tokenId, entity.NewValue(1))
	if err != nil {
		return nil, err
	}

	r.tree.Put(ownerKey(collection, tokenId), to.Bytes())
	r.tree.Put(counterKey(collection), []byte(next.Dec()))

	zap.L().With(
		zap.String("collection", collection.Hex()),
		zap.String("tokenId", tokenId.Dec()),
		zap.String("to", to.Hex()),
	).Info("Registry: Minted")

	return tokenId, nil
}

func (r *Registry) OwnerOf(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.Principal, error) {
	owner, found, err := r.readPrincipal(ctx, ownerKey(collection, tokenId))
	if err != nil {
		return entity.ZeroPrincipal, err
	}
	if !found {
		return entity.ZeroPrincipal, fmt.Errorf("%w: %s", ErrTokenNotFound, entity.NewAssetKey(collection, tokenId))
	}

	return owner, nil
}

func (r *Registry) GetApproved(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.Principal, error) {
	if _, err := r.OwnerOf(ctx, collection, tokenId); err != nil {
		return entity.ZeroPrincipal, err
	}

	approved, _, err := r.readPrincipal(ctx, approvalKey(collection, tokenId))

	return approved, err
}

func (r *Registry) IsApprovedForAll(ctx context.Context, collection, owner, operator entity.Principal) (bool, error) {
	_, found, err := r.tree.Get(ctx, operatorKey(collection, owner, operator))

	return found, err
}

// Approve lets the token owner, or one of the owner's operators, nominate a single approved
// principal for the token. The zero principal clears the approval.
func (r *Registry) Approve(ctx context.Context, caller, collection entity.Principal, tokenId *uint256.Int, approved entity.Principal) error {
	owner, err := r.OwnerOf(ctx, collection, tokenId)
	if err != nil {
		return err
	}

	if caller != owner {
		isOperator, err := r.IsApprovedForAll(ctx, collection, owner, caller)
		if err != nil {
			return err
		}
		if !isOperator {
			return ErrNotAuthorized
		}
	}

	if approved == entity.ZeroPrincipal {
		r.tree.Delete(approvalKey(collection, tokenId))
	} else {
		r.tree.Put(approvalKey(collection, tokenId), approved.Bytes())
	}

	zap.L().With(
		zap.String("asset", entity.NewAssetKey(collection, tokenId).String()),
		zap.String("approved", approved.Hex()),
	).Debug("Registry: Approval")

	return nil
}

func (r *Registry) SetApprovalForAll(_ context.Context, caller, collection, operator entity.Principal, approved bool) error {
	if operator == caller {
		return ErrNotAuthorized
	}

	if approved {
		r.tree.Put(operatorKey(collection, caller, operator), []byte{1})
	} else {
		r.tree.Delete(operatorKey(collection, caller, operator))
	}

	zap.L().With(
		zap.String("collection", collection.Hex()),
		zap.String("owner", caller.Hex()),
		zap.String("operator", operator.Hex()),
		zap.Bool("approved", approved),
	).Debug("Registry: ApprovalForAll")

	return nil
}

// SafeTransferFrom moves the token and clears its approval before notifying the recipient's
// receiver. A rejected or failed transfer leaves the registry untouched.
func (r *Registry) SafeTransferFrom(ctx context.Context, operator, from, to, collection entity.Principal, tokenId *uint256.Int) (err error) {
	if to == entity.ZeroPrincipal {
		return ErrInvalidRecipient
	}

	owner, err := r.OwnerOf(ctx, collection, tokenId)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotTokenOwner
	}
	if err := r.requireAuthorized(ctx, operator, owner, collection, tokenId); err != nil {
		return err
	}

	r.tree.Snapshot()
	defer func() {
		if err != nil {
			r.tree.Revert()
		}
		if clearErr := r.tree.ClearSnapshot(); clearErr != nil && err == nil {
			err = clearErr
		}
	}()

	r.tree.Delete(approvalKey(collection, tokenId))
	r.tree.Put(ownerKey(collection, tokenId), to.Bytes())

	if hook, ok := r.receivers[to]; ok {
		if err := hook(ctx, operator, from, collection, tokenId); err != nil {
			return fmt.Errorf("%w: %v", ErrReceiverRejected, err)
		}
	}

	zap.L().With(
		zap.String("asset", entity.NewAssetKey(collection, tokenId).String()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
	).Debug("Registry: Transfer")

	return nil
}

func (r *Registry) requireAuthorized(ctx context.Context, operator, owner, collection entity.Principal, tokenId *uint256.Int) error {
	if operator == owner {
		return nil
	}

	approved, _, err := r.readPrincipal(ctx, approvalKey(collection, tokenId))
	if err != nil {
		return err
	}
	if approved == operator {
		return nil
	}

	isOperator, err := r.IsApprovedForAll(ctx, collection, owner, operator)
	if err != nil {
		return err
	}
	if !isOperator {
		return ErrNotAuthorized
	}

	return nil
}

func (r *Registry) readPrincipal(ctx context.Context, key string) (entity.Principal, bool, error) {
	raw, found, err := r.tree.Get(ctx, key)
	if err != nil || !found {
		return entity.ZeroPrincipal, false, err
	}

	return entity.BytesToPrincipal(raw), true, nil
}

func (r *Registry) readValue(ctx context.Context, key string) (*uint256.Int, error) {
	raw, found, err := r.tree.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return entity.ZeroValue(), nil
	}

	return entity.ParseValue(string(raw))
}

func collectionPrefix(collection entity.Principal) string {
	return "/registry/" + entity.PrincipalKey(collection)
}

func counterKey(collection entity.Principal) string {
	return collectionPrefix(collection) + "/next"
}

func ownerKey(collection entity.Principal, tokenId *uint256.Int) string {
	return collectionPrefix(collection) + "/owners/" + tokenId.Dec()
}

func approvalKey(collection entity.Principal, tokenId *uint256.Int) string {
	return collectionPrefix(collection) + "/approvals/" + tokenId.Dec()
}

func operatorKey(collection, owner, operator entity.Principal) string {
	return collectionPrefix(collection) + "/operators/" + entity.PrincipalKey(owner) + "/" + entity.PrincipalKey(operator)
}
