package event

import "github.com/ZilDuck/nft-marketplace/internal/entity"

// AnyEvent subscribes a listener to every event type.
const AnyEvent entity.EventType = "*"

var Types = []entity.EventType{
	entity.ItemListedEvent,
	entity.ItemUpdatedEvent,
	entity.ItemCanceledEvent,
	entity.ItemBoughtEvent,
	entity.ProceedsWithdrawnEvent,
}
