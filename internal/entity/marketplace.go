package entity

import (
	"crypto/md5"
	"fmt"
	"time"
)

type ActionType string

const (
	MarketplaceListingAction    ActionType = "listing"
	MarketplaceUpdateAction     ActionType = "update"
	MarketplaceDelistingAction  ActionType = "delisting"
	MarketplaceSaleAction       ActionType = "sale"
	MarketplaceWithdrawalAction ActionType = "withdrawal"
)

var actionTypes = map[EventType]ActionType{
	ItemListedEvent:        MarketplaceListingAction,
	ItemUpdatedEvent:       MarketplaceUpdateAction,
	ItemCanceledEvent:      MarketplaceDelistingAction,
	ItemBoughtEvent:        MarketplaceSaleAction,
	ProceedsWithdrawnEvent: MarketplaceWithdrawalAction,
}

// MarketplaceAction is the indexed form of one committed event.
type MarketplaceAction struct {
	EventId     string     `json:"eventId"`
	Seq         uint64     `json:"seq"`
	Marketplace string     `json:"marketplace"`
	Action      ActionType `json:"action"`
	Caller      string     `json:"caller"`
	Collection  string     `json:"collection,omitempty"`
	TokenId     string     `json:"tokenId,omitempty"`
	Asset       string     `json:"asset,omitempty"`
	Cost        string     `json:"cost"`
	Time        time.Time  `json:"time"`
}

func NewMarketplaceAction(marketplace Principal, e Event) MarketplaceAction {
	action := MarketplaceAction{
		EventId:     e.Id,
		Seq:         e.Seq,
		Marketplace: PrincipalKey(marketplace),
		Action:      actionTypes[e.Type],
		Caller:      PrincipalKey(e.Caller),
		Cost:        ValueString(e.Price),
		Time:        e.Time,
	}

	if e.Type != ProceedsWithdrawnEvent {
		action.Collection = PrincipalKey(e.Collection)
		action.TokenId = ValueString(e.TokenId)
		action.Asset = e.Key().Slug()
	}

	return action
}

func (a MarketplaceAction) Slug() string {
	return CreateMarketplaceActionSlug(a.Seq, a.Collection, a.TokenId, string(a.Action))
}

func CreateMarketplaceActionSlug(seq uint64, collection, tokenId, action string) string {
	data := []byte(fmt.Sprintf("marketplaceaction-%d-%s-%s-%s", seq, collection, tokenId, action))
	return fmt.Sprintf("%x", md5.Sum(data))
}

type ListingStatus string

const (
	ListingActive   ListingStatus = "active"
	ListingCanceled ListingStatus = "canceled"
	ListingSold     ListingStatus = "sold"
)

// MarketplaceListing is the indexed, searchable state of a listing. It outlives the listing
// itself so sold and canceled listings remain queryable.
type MarketplaceListing struct {
	Asset      string        `json:"asset"`
	Collection string        `json:"collection"`
	TokenId    string        `json:"tokenId"`
	Seller     string        `json:"seller,omitempty"`
	Buyer      string        `json:"buyer,omitempty"`
	Price      string        `json:"price,omitempty"`
	Status     ListingStatus `json:"status"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

func (l MarketplaceListing) Slug() string {
	return l.Asset
}
