package event

import (
	"sync"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"go.uber.org/zap"
)

const backlogWarning = 1024

// Listener queues events for one callback. The queue is unbounded so emitting never waits on a
// slow callback.
type Listener struct {
	eventType entity.EventType
	callback  func(e entity.Event)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []entity.Event
	closed bool
}

func newListener(eventType entity.EventType, callback func(e entity.Event)) *Listener {
	l := &Listener{eventType: eventType, callback: callback}
	l.cond = sync.NewCond(&l.mu)

	return l
}

func (l *Listener) accepts(e entity.Event) bool {
	return l.eventType == e.Type || l.eventType == AnyEvent
}

func (l *Listener) push(e entity.Event) {
	l.mu.Lock()
	l.queue = append(l.queue, e)
	backlog := len(l.queue)
	l.mu.Unlock()
	l.cond.Signal()

	if backlog%backlogWarning == 0 {
		zap.L().With(zap.String("type", string(l.eventType)), zap.Int("backlog", backlog)).Warn("EventManager: Listener falling behind")
	}
}

func (l *Listener) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

// run delivers queued events in order and returns once closed and drained.
func (l *Listener) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		e := l.queue[0]
		l.queue[0] = entity.Event{}
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.callback(e)
	}
}

// Manager fans committed events out to listeners. Each listener runs on its own goroutine and
// receives events in emission order.
type Manager struct {
	mu        sync.RWMutex
	listeners []*Listener
	closed    bool
	wg        sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{listeners: make([]*Listener, 0)}
}

func (m *Manager) AddEventListener(eventType entity.EventType, callback func(e entity.Event)) {
	zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: AddListener")

	listener := newListener(eventType, callback)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		zap.L().With(zap.String("type", string(eventType))).Warn("EventManager: Listener added after close")
		return
	}
	m.listeners = append(m.listeners, listener)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		listener.run()
	}()
}

// EmitEvent queues e for every matching listener and returns without waiting for them.
func (m *Manager) EmitEvent(e entity.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		zap.L().With(zap.String("type", string(e.Type)), zap.Uint64("seq", e.Seq)).Warn("EventManager: Event emitted after close")
		return
	}
	if len(m.listeners) == 0 {
		zap.L().Debug("EventManager: No event listeners available")
	}

	for _, listener := range m.listeners {
		if listener.accepts(e) {
			zap.L().With(zap.String("type", string(e.Type)), zap.Uint64("seq", e.Seq)).Debug("EventManager: Emitting event")
			listener.push(e)
		}
	}
}

// Close waits until every listener has handled the events queued before the call.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		for _, listener := range m.listeners {
			listener.close()
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
}
