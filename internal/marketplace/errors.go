package marketplace

import (
	"errors"
	"fmt"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/holiman/uint256"
)

// Error kinds. Parameterised failures are returned as the typed errors below, which match their
// kind with errors.Is and expose the payload with errors.As.
var (
	ErrPriceMustBeAboveZero      = errors.New("PriceMustBeAboveZero")
	ErrAlreadyListed             = errors.New("AlreadyListed")
	ErrNotListed                 = errors.New("NotListed")
	ErrNotOwner                  = errors.New("NotOwner")
	ErrNotApprovedForMarketplace = errors.New("NotApprovedForMarketplace")
	ErrPriceNotMet               = errors.New("PriceNotMet")
	ErrNoProceeds                = errors.New("NoProceeds")
	ErrTransferFailed            = errors.New("TransferFailed")
	ErrNonPayable                = errors.New("NonPayable")
)

var kinds = []error{
	ErrPriceMustBeAboveZero,
	ErrAlreadyListed,
	ErrNotListed,
	ErrNotOwner,
	ErrNotApprovedForMarketplace,
	ErrPriceNotMet,
	ErrNoProceeds,
	ErrTransferFailed,
	ErrNonPayable,
}

type AlreadyListedError struct {
	Collection entity.Principal
	TokenId    *uint256.Int
}

func (e *AlreadyListedError) Error() string {
	return fmt.Sprintf("AlreadyListed(%s, %s)", e.Collection.Hex(), entity.ValueString(e.TokenId))
}

func (e *AlreadyListedError) Is(target error) bool {
	return target == ErrAlreadyListed
}

type NotListedError struct {
	Collection entity.Principal
	TokenId    *uint256.Int
}

func (e *NotListedError) Error() string {
	return fmt.Sprintf("NotListed(%s, %s)", e.Collection.Hex(), entity.ValueString(e.TokenId))
}

func (e *NotListedError) Is(target error) bool {
	return target == ErrNotListed
}

type PriceNotMetError struct {
	Collection entity.Principal
	TokenId    *uint256.Int
	Price      *uint256.Int
}

func (e *PriceNotMetError) Error() string {
	return fmt.Sprintf("PriceNotMet(%s, %s, %s)", e.Collection.Hex(), entity.ValueString(e.TokenId), entity.ValueString(e.Price))
}

func (e *PriceNotMetError) Is(target error) bool {
	return target == ErrPriceNotMet
}

// TransferFailedError wraps the downstream registry or ledger failure.
type TransferFailedError struct {
	Cause error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("TransferFailed: %v", e.Cause)
}

func (e *TransferFailedError) Is(target error) bool {
	return target == ErrTransferFailed
}

func (e *TransferFailedError) Unwrap() error {
	return e.Cause
}

func newAlreadyListed(key entity.AssetKey) error {
	return &AlreadyListedError{Collection: key.Collection, TokenId: key.TokenIdValue()}
}

func newNotListed(key entity.AssetKey) error {
	return &NotListedError{Collection: key.Collection, TokenId: key.TokenIdValue()}
}

func newPriceNotMet(key entity.AssetKey, price *uint256.Int) error {
	return &PriceNotMetError{Collection: key.Collection, TokenId: key.TokenIdValue(), Price: entity.CopyValue(price)}
}

func newTransferFailed(cause error) error {
	return &TransferFailedError{Cause: cause}
}

// Kind returns the name of the marketplace error kind err matches, or "" for anything else.
func Kind(err error) string {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}

	return ""
}
