package entity

import (
	"encoding/json"

	"github.com/holiman/uint256"
)

// Listing is present iff Price > 0. The absent listing reads as {0, ZeroPrincipal}.
type Listing struct {
	Price  *uint256.Int
	Seller Principal
}

type listingRecord struct {
	Price  string    `json:"price"`
	Seller Principal `json:"seller"`
}

func EmptyListing() Listing {
	return Listing{Price: ZeroValue(), Seller: ZeroPrincipal}
}

func (l Listing) IsListed() bool {
	return l.Price != nil && !l.Price.IsZero()
}

func (l Listing) Copy() Listing {
	return Listing{Price: CopyValue(l.Price), Seller: l.Seller}
}

func (l Listing) MarshalJSON() ([]byte, error) {
	return json.Marshal(listingRecord{Price: ValueString(l.Price), Seller: l.Seller})
}

func (l *Listing) UnmarshalJSON(data []byte) error {
	var rec listingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	price, err := ParseValue(rec.Price)
	if err != nil {
		return err
	}

	l.Price = price
	l.Seller = rec.Seller

	return nil
}
