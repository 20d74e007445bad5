package messenger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var (
	ErrExchangeNotFound = errors.New("exchange not found")
	ErrConfirmTimeout   = errors.New("publish confirmation timed out")
)

const defaultConfirmTimeout = 5 * time.Second

type MessageService interface {
	GetQueue(item Item) (*amqp.Queue, error)
	SendMessage(item Item, routingKey string, body []byte, reliable bool) error
	ConsumeMessages(item Item, bindingKey string, callback func(msg []byte)) error
	GetQueueSize(item Item) (int, error)
	Close() error
}

type Messenger struct {
	amqpUri  string
	exchange string
	network  string

	confirmTimeout time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
}

type Item string

var (
	MarketplaceEvents Item = "marketplace.events"
)

func (i Item) queue(network string) string {
	return fmt.Sprintf("%s.%s", network, i)
}

func NewMessenger(cfg config.RabbitmqConfig, network string) MessageService {
	return &Messenger{
		amqpUri:        cfg.Dsn,
		exchange:       cfg.Exchange,
		network:        network,
		confirmTimeout: defaultConfirmTimeout,
	}
}

func (m *Messenger) GetQueue(item Item) (*amqp.Queue, error) {
	ch, err := m.openChannel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	queue, err := ch.QueueDeclare(item.queue(m.network), true, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("queue", item.queue(m.network))).Error("[Queue] Failed to create queue")
		return nil, err
	}

	return &queue, nil
}

func (m *Messenger) SendMessage(item Item, routingKey string, body []byte, reliable bool) error {
	ex, ok := exchangeFor(item, m.exchange)
	if !ok {
		zap.L().With(zap.String("item", string(item))).Error("[Queue] Exchange not found")
		return ErrExchangeNotFound
	}

	ch, err := m.openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(ex.Name, ex.Type, ex.Durable, ex.AutoDeleted, ex.Internal, ex.NoWait, ex.Arguments); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Exchange Declare")
		return err
	}

	var confirms chan amqp.Confirmation
	if reliable {
		if err := ch.Confirm(false); err != nil {
			zap.L().With(zap.Error(err)).Error("[Queue] Channel could not be put into confirm mode")
			return err
		}
		confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	}

	publishing := amqp.Publishing{
		Headers:      amqp.Table{},
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	if err = ch.Publish(ex.Name, routingKey, false, false, publishing); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Exchange Publish")
		return err
	}

	zap.L().With(zap.String("exchange", ex.Name), zap.String("routingKey", routingKey)).Debug("[Queue] Published message")

	if confirms != nil {
		return m.confirmOne(confirms)
	}

	return nil
}

// ConsumeMessages binds the item queue to the exchange and blocks while delivering messages
// to callback. It returns when the channel is closed.
func (m *Messenger) ConsumeMessages(item Item, bindingKey string, callback func(msg []byte)) error {
	ex, ok := exchangeFor(item, m.exchange)
	if !ok {
		return ErrExchangeNotFound
	}

	ch, err := m.openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(ex.Name, ex.Type, ex.Durable, ex.AutoDeleted, ex.Internal, ex.NoWait, ex.Arguments); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Exchange Declare")
		return err
	}

	q, err := ch.QueueDeclare(item.queue(m.network), true, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to declare a queue")
		return err
	}

	if err = ch.QueueBind(q.Name, bindingKey, ex.Name, false, nil); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to bind a queue")
		return err
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to consume the queue")
		return err
	}

	zap.S().With(zap.String("exchange", ex.Name)).Debugf("[Queue] Waiting for messages")
	for d := range msgs {
		zap.L().Debug("[Queue] Received message")
		callback(d.Body)
	}

	return nil
}

func (m *Messenger) GetQueueSize(item Item) (int, error) {
	queue, err := m.GetQueue(item)
	if err != nil {
		return 0, err
	}

	return queue.Messages, nil
}

func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() {
		return nil
	}

	return m.conn.Close()
}

func (m *Messenger) openConnection() (*amqp.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}

	conn, err := amqp.Dial(m.amqpUri)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to connect to RabbitMQ")
		return nil, err
	}

	m.conn = conn

	return m.conn, nil
}

func (m *Messenger) openChannel() (*amqp.Channel, error) {
	conn, err := m.openConnection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		zap.S().With(zap.Error(err)).Error("[Queue] Failed to open channel")
	}

	return ch, err
}

func (m *Messenger) confirmOne(confirms <-chan amqp.Confirmation) error {
	zap.L().Debug("[Queue] Waiting for publish confirmation")

	select {
	case confirmed, ok := <-confirms:
		if !ok || !confirmed.Ack {
			zap.L().Warn("[Queue] Publish failed")
			return fmt.Errorf("publish %d not acknowledged", confirmed.DeliveryTag)
		}
	case <-time.After(m.confirmTimeout):
		zap.L().With(zap.Duration("timeout", m.confirmTimeout)).Warn("[Queue] Publish confirmation timed out")
		return ErrConfirmTimeout
	}

	zap.L().Debug("[Queue] Publish confirmed")
	return nil
}
