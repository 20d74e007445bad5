package entity

import (
	"encoding/json"
	"time"

	"github.com/holiman/uint256"
)

type EventType string

const (
	ItemListedEvent        EventType = "ItemListed"
	ItemUpdatedEvent       EventType = "ItemUpdated"
	ItemCanceledEvent      EventType = "ItemCanceled"
	ItemBoughtEvent        EventType = "ItemBought"
	ProceedsWithdrawnEvent EventType = "ProceedsWithdrawn"
)

// Event is one entry of the marketplace audit trail. Id, Seq and Time are assigned on append.
type Event struct {
	Id         string
	Seq        uint64
	Type       EventType
	Caller     Principal
	Collection Principal
	TokenId    *uint256.Int
	Price      *uint256.Int
	Time       time.Time
}

type eventRecord struct {
	Id         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	Caller     Principal `json:"caller"`
	Collection Principal `json:"collection"`
	TokenId    string    `json:"tokenId"`
	Price      string    `json:"price"`
	Time       time.Time `json:"time"`
}

func (e Event) Slug() string {
	return e.Id
}

// Key returns the asset the event refers to. ProceedsWithdrawn has no asset.
func (e Event) Key() AssetKey {
	return NewAssetKey(e.Collection, e.TokenId)
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventRecord{
		Id:         e.Id,
		Seq:        e.Seq,
		Type:       e.Type,
		Caller:     e.Caller,
		Collection: e.Collection,
		TokenId:    ValueString(e.TokenId),
		Price:      ValueString(e.Price),
		Time:       e.Time,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var rec eventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	tokenId, err := ParseValue(rec.TokenId)
	if err != nil {
		return err
	}
	price, err := ParseValue(rec.Price)
	if err != nil {
		return err
	}

	*e = Event{
		Id:         rec.Id,
		Seq:        rec.Seq,
		Type:       rec.Type,
		Caller:     rec.Caller,
		Collection: rec.Collection,
		TokenId:    tokenId,
		Price:      price,
		Time:       rec.Time,
	}

	return nil
}

func NewItemListed(seller, collection Principal, tokenId, price *uint256.Int) Event {
	return Event{Type: ItemListedEvent, Caller: seller, Collection: collection, TokenId: CopyValue(tokenId), Price: CopyValue(price)}
}

func NewItemUpdated(seller, collection Principal, tokenId, price *uint256.Int) Event {
	return Event{Type: ItemUpdatedEvent, Caller: seller, Collection: collection, TokenId: CopyValue(tokenId), Price: CopyValue(price)}
}

func NewItemCanceled(seller, collection Principal, tokenId *uint256.Int) Event {
	return Event{Type: ItemCanceledEvent, Caller: seller, Collection: collection, TokenId: CopyValue(tokenId), Price: ZeroValue()}
}

func NewItemBought(buyer, collection Principal, tokenId, price *uint256.Int) Event {
	return Event{Type: ItemBoughtEvent, Caller: buyer, Collection: collection, TokenId: CopyValue(tokenId), Price: CopyValue(price)}
}

func NewProceedsWithdrawn(seller Principal, amount *uint256.Int) Event {
	return Event{Type: ProceedsWithdrawnEvent, Caller: seller, TokenId: ZeroValue(), Price: CopyValue(amount)}
}
