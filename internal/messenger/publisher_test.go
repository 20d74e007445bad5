package messenger

import (
	"errors"
	"testing"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

type message struct {
	item       Item
	routingKey string
	body       []byte
	reliable   bool
}

type fakeMessenger struct {
	sent    []message
	failing bool
}

func (f *fakeMessenger) GetQueue(Item) (*amqp.Queue, error) { return &amqp.Queue{}, nil }

func (f *fakeMessenger) SendMessage(item Item, routingKey string, body []byte, reliable bool) error {
	if f.failing {
		return errors.New("connection refused")
	}
	f.sent = append(f.sent, message{item, routingKey, body, reliable})
	return nil
}

func (f *fakeMessenger) ConsumeMessages(item Item, bindingKey string, callback func(msg []byte)) error {
	for _, m := range f.sent {
		callback(m.body)
	}
	callback([]byte("not json"))
	return nil
}

func (f *fakeMessenger) GetQueueSize(Item) (int, error) { return len(f.sent), nil }

func (f *fakeMessenger) Close() error { return nil }

var (
	seller     = entity.MustParsePrincipal("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	collection = entity.MustParsePrincipal("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func TestEventPublisherRoutesByType(t *testing.T) {
	fake := &fakeMessenger{}
	publisher := NewEventPublisher(fake, true)

	listed := entity.NewItemListed(seller, collection, entity.NewValue(0), entity.NewValue(100))
	listed.Id = "a"
	publisher.HandleEvent(listed)
	publisher.HandleEvent(entity.NewProceedsWithdrawn(seller, entity.NewValue(100)))

	require.Len(t, fake.sent, 2)
	require.Equal(t, MarketplaceEvents, fake.sent[0].item)
	require.Equal(t, "marketplace.events.ItemListed", fake.sent[0].routingKey)
	require.Equal(t, "marketplace.events.ProceedsWithdrawn", fake.sent[1].routingKey)
	require.True(t, fake.sent[0].reliable)
}

func TestEventPublisherSwallowsSendErrors(t *testing.T) {
	publisher := NewEventPublisher(&fakeMessenger{failing: true}, false)

	require.NotPanics(t, func() {
		publisher.HandleEvent(entity.NewItemCanceled(seller, collection, entity.NewValue(0)))
	})
}

func TestSubscribeDecodesEvents(t *testing.T) {
	fake := &fakeMessenger{}
	publisher := NewEventPublisher(fake, false)

	bought := entity.NewItemBought(seller, collection, entity.NewValue(3), entity.MustParseValue("100000000000000000000"))
	bought.Id = "b"
	bought.Seq = 4
	publisher.HandleEvent(bought)

	var received []entity.Event
	require.NoError(t, Subscribe(fake, "marketplace.events.#", func(e entity.Event) {
		received = append(received, e)
	}))

	require.Len(t, received, 1, "undecodable messages are skipped")
	require.Equal(t, "b", received[0].Id)
	require.Equal(t, uint64(4), received[0].Seq)
	require.Equal(t, entity.ItemBoughtEvent, received[0].Type)
	require.Equal(t, "100000000000000000000", received[0].Price.Dec())
}

func TestExchangeNameOverride(t *testing.T) {
	ex, ok := exchangeFor(MarketplaceEvents, "")
	require.True(t, ok)
	require.Equal(t, "marketplace.events", ex.Name)

	ex, ok = exchangeFor(MarketplaceEvents, "custom")
	require.True(t, ok)
	require.Equal(t, "custom", ex.Name)
	require.Equal(t, "topic", ex.Type)

	_, ok = exchangeFor(Item("unknown"), "custom")
	require.False(t, ok)

	require.Equal(t, "localhost.marketplace.events", MarketplaceEvents.queue("localhost"))
}
