package elastic_search

import (
	"github.com/ZilDuck/nft-marketplace/internal/entity"
)

func mergeRequests(cached Request, action RequestAction, doc Document) Document {
	result, ok := cached.Doc.(entity.MarketplaceListing)
	if !ok {
		return doc
	}
	update, ok := doc.(entity.MarketplaceListing)
	if !ok {
		return doc
	}

	switch action {
	case ListingUpdatePrice:
		result.Price = update.Price
		result.Status = update.Status
	case ListingUpdateStatus:
		result.Status = update.Status
		result.Buyer = update.Buyer
	default:
		result = update
	}
	result.UpdatedAt = update.UpdatedAt

	return result
}
