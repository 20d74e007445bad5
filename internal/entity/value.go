package entity

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrInvalidValue  = errors.New("invalid value")
	ErrValueOverflow = errors.New("value overflow")
)

func ZeroValue() *uint256.Int {
	return new(uint256.Int)
}

func NewValue(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// ParseValue reads a base-10 unsigned 256-bit integer. An empty string is zero.
func ParseValue(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroValue(), nil
	}

	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, ErrInvalidValue
	}

	return v, nil
}

func MustParseValue(s string) *uint256.Int {
	v, err := ParseValue(s)
	if err != nil {
		panic(err)
	}

	return v
}

// CopyValue never returns nil, a nil input reads as zero.
func CopyValue(v *uint256.Int) *uint256.Int {
	if v == nil {
		return ZeroValue()
	}

	return new(uint256.Int).Set(v)
}

// AddValues returns a+b or ErrValueOverflow when the sum does not fit in 256 bits.
func AddValues(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(CopyValue(a), CopyValue(b))
	if overflow {
		return nil, ErrValueOverflow
	}

	return sum, nil
}

func ValueString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}

	return v.Dec()
}
