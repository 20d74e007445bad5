package repository

import (
	"context"
	"fmt"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/state"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

const proceedsPrefix = "/proceeds"

type ProceedsRepository interface {
	Get(ctx context.Context, principal entity.Principal) (*uint256.Int, error)
	Add(ctx context.Context, principal entity.Principal, delta *uint256.Int) error
	Zero(ctx context.Context, principal entity.Principal) (*uint256.Int, error)
}

type proceedsRepository struct {
	tree *state.Tree
}

func NewProceedsRepository(tree *state.Tree) ProceedsRepository {
	return proceedsRepository{tree}
}

func proceedsKey(principal entity.Principal) string {
	return fmt.Sprintf("%s/%s", proceedsPrefix, entity.PrincipalKey(principal))
}

func (r proceedsRepository) Get(ctx context.Context, principal entity.Principal) (*uint256.Int, error) {
	data, found, err := r.tree.Get(ctx, proceedsKey(principal))
	if err != nil {
		return nil, err
	}
	if !found {
		return entity.ZeroValue(), nil
	}

	return entity.ParseValue(string(data))
}

// Add fails with entity.ErrValueOverflow rather than wrapping.
func (r proceedsRepository) Add(ctx context.Context, principal entity.Principal, delta *uint256.Int) error {
	current, err := r.Get(ctx, principal)
	if err != nil {
		return err
	}

	total, err := entity.AddValues(current, delta)
	if err != nil {
		zap.L().With(
			zap.String("principal", principal.Hex()),
			zap.String("current", current.Dec()),
			zap.String("delta", entity.ValueString(delta)),
		).Error("ProceedsRepository: Overflow")
		return err
	}

	r.put(principal, total)

	return nil
}

// Zero clears the balance and returns what it held.
func (r proceedsRepository) Zero(ctx context.Context, principal entity.Principal) (*uint256.Int, error) {
	prior, err := r.Get(ctx, principal)
	if err != nil {
		return nil, err
	}
	r.tree.Delete(proceedsKey(principal))

	return prior, nil
}

func (r proceedsRepository) put(principal entity.Principal, value *uint256.Int) {
	if value.IsZero() {
		r.tree.Delete(proceedsKey(principal))
		return
	}
	r.tree.Put(proceedsKey(principal), []byte(value.Dec()))
}
