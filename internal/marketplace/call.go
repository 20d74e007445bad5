package marketplace

import (
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/holiman/uint256"
)

// CallContext carries the authenticated caller and the value attached to the call.
type CallContext struct {
	Caller entity.Principal
	Value  *uint256.Int
}

func NewCallContext(caller entity.Principal) CallContext {
	return CallContext{Caller: caller, Value: entity.ZeroValue()}
}

func (cc CallContext) WithValue(value *uint256.Int) CallContext {
	return CallContext{Caller: cc.Caller, Value: entity.CopyValue(value)}
}

func (cc CallContext) HasValue() bool {
	return cc.Value != nil && !cc.Value.IsZero()
}
