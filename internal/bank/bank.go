package bank

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
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrReceiverRejected    = errors.New("receiver rejected the value")
)

// Receiver is called on the recipient after value has been credited to it.
type Receiver func(ctx context.Context, from entity.Principal, amount *uint256.Int) error

// Bank holds native value balances in the state tree.
type Bank struct {
	tree      *state.Tree
	receivers map[entity.Principal]Receiver
}

func NewBank(tree *state.Tree) *Bank {
	return &Bank{
		tree:      tree,
		receivers: make(map[entity.Principal]Receiver),
	}
}

func (b *Bank) SetReceiver(p entity.Principal, hook Receiver) {
	if hook == nil {
		delete(b.receivers, p)
		return
	}
	b.receivers[p] = hook
}

func (b *Bank) BalanceOf(ctx context.Context, p entity.Principal) (*uint256.Int, error) {
	raw, found, err := b.tree.Get(ctx, balanceKey(p))
	if err != nil {
		return nil, err
	}
	if !found {
		return entity.ZeroValue(), nil
	}

	return entity.ParseValue(string(raw))
}

// Fund mints value into an account.
func (b *Bank) Fund(ctx context.Context, to entity.Principal, amount *uint256.Int) error {
	if err := b.credit(ctx, to, amount); err != nil {
		return err
	}

	zap.L().With(zap.String("to", to.Hex()), zap.String("amount", amount.Dec())).Info("Bank: Funded")

	return nil
}

// Transfer moves value between accounts and notifies the recipient. Nothing is applied when the
// transfer or the receiver fails.
func (b *Bank) Transfer(ctx context.Context, from, to entity.Principal, amount *uint256.Int) (err error) {
	balance, err := b.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), balance.Dec(), amount.Dec())
	}

	b.tree.Snapshot()
	defer func() {
		if err != nil {
			b.tree.Revert()
		}
		if clearErr := b.tree.ClearSnapshot(); clearErr != nil && err == nil {
			err = clearErr
		}
	}()

	b.put(from, new(uint256.Int).Sub(balance, amount))
	if err := b.credit(ctx, to, amount); err != nil {
		return err
	}

	if hook, ok := b.receivers[to]; ok {
		if err := hook(ctx, from, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrReceiverRejected, err)
		}
	}

	zap.L().With(
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.Dec()),
	).Debug("Bank: Transfer")

	return nil
}

// Account binds an escrow owner to the bank so it can collect and send value.
func (b *Bank) Account(owner entity.Principal) *Account {
	return &Account{bank: b, owner: owner}
}

func (b *Bank) credit(ctx context.Context, to entity.Principal, amount *uint256.Int) error {
	balance, err := b.BalanceOf(ctx, to)
	if err != nil {
		return err
	}

	sum, err := entity.AddValues(balance, amount)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("to", to.Hex())).Error("Bank: Failed to credit")
		return err
	}
	b.put(to, sum)

	return nil
}

func (b *Bank) put(p entity.Principal, value *uint256.Int) {
	if value.IsZero() {
		b.tree.Delete(balanceKey(p))
		return
	}
	b.tree.Put(balanceKey(p), []byte(value.Dec()))
}

func balanceKey(p entity.Principal) string {
	return "/bank/balances/" + entity.PrincipalKey(p)
}

type Account struct {
	bank  *Bank
	owner entity.Principal
}

func (a *Account) Owner() entity.Principal {
	return a.owner
}

// Collect takes value attached to a call into the account.
func (a *Account) Collect(ctx context.Context, from entity.Principal, amount *uint256.Int) error {
	return a.bank.Transfer(ctx, from, a.owner, amount)
}

func (a *Account) SendValue(ctx context.Context, to entity.Principal, amount *uint256.Int) error {
	return a.bank.Transfer(ctx, a.owner, to, amount)
}

func (a *Account) Balance(ctx context.Context) (*uint256.Int, error) {
	return a.bank.BalanceOf(ctx, a.owner)
}
