package entity

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Principal is an authenticated 20-byte identity.
type Principal = common.Address

var (
	ZeroPrincipal = common.Address{}

	ErrInvalidPrincipal = errors.New("invalid principal")
)

func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ZeroPrincipal, ErrInvalidPrincipal
	}

	return common.HexToAddress(s), nil
}

func MustParsePrincipal(s string) Principal {
	p, err := ParsePrincipal(s)
	if err != nil {
		panic(err)
	}

	return p
}

// PrincipalKey is the lower-case hex form used in storage keys.
func PrincipalKey(p Principal) string {
	return strings.ToLower(p.Hex())
}

func BytesToPrincipal(b []byte) Principal {
	return common.BytesToAddress(b)
}
