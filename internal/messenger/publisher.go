package messenger

import (
	"encoding/json"
	"fmt"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"go.uber.org/zap"
)

// EventPublisher forwards committed marketplace events to the marketplace.events exchange,
// routed by event type so consumers can bind to the subset they care about.
type EventPublisher struct {
	messenger MessageService
	reliable  bool
}

func NewEventPublisher(messenger MessageService, reliable bool) *EventPublisher {
	return &EventPublisher{messenger, reliable}
}

func RoutingKey(t entity.EventType) string {
	return fmt.Sprintf("%s.%s", MarketplaceEvents, t)
}

func (p *EventPublisher) HandleEvent(e entity.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("event", e.Id)).Error("EventPublisher: Failed to encode event")
		return
	}

	if err := p.messenger.SendMessage(MarketplaceEvents, RoutingKey(e.Type), body, p.reliable); err != nil {
		zap.L().With(zap.Error(err), zap.String("event", e.Id), zap.Uint64("seq", e.Seq)).Error("EventPublisher: Failed to publish event")
	}
}

// Subscribe consumes published events matching bindingKey, e.g. "marketplace.events.#".
func Subscribe(messenger MessageService, bindingKey string, handler func(entity.Event)) error {
	return messenger.ConsumeMessages(MarketplaceEvents, bindingKey, func(msg []byte) {
		var e entity.Event
		if err := json.Unmarshal(msg, &e); err != nil {
			zap.L().With(zap.Error(err)).Error("EventPublisher: Failed to read message")
			return
		}
		handler(e)
	})
}
