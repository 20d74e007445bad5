package entity

import (
	"fmt"

	"github.com/gosimple/slug"
	"github.com/holiman/uint256"
)

// AssetKey identifies a single NFT. It is comparable and safe to use as a map key.
type AssetKey struct {
	Collection Principal
	TokenId    uint256.Int
}

func NewAssetKey(collection Principal, tokenId *uint256.Int) AssetKey {
	key := AssetKey{Collection: collection}
	if tokenId != nil {
		key.TokenId.Set(tokenId)
	}

	return key
}

func (k AssetKey) TokenIdValue() *uint256.Int {
	return new(uint256.Int).Set(&k.TokenId)
}

func (k AssetKey) String() string {
	return fmt.Sprintf("%s/%s", PrincipalKey(k.Collection), k.TokenId.Dec())
}

func (k AssetKey) Slug() string {
	return CreateAssetSlug(k.Collection, &k.TokenId)
}

func CreateAssetSlug(collection Principal, tokenId *uint256.Int) string {
	return slug.Make(fmt.Sprintf("nft-%s-%s", ValueString(tokenId), PrincipalKey(collection)))
}
