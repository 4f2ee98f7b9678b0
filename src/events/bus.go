package events

import (
	"sync"
	"sync/atomic"

	"agentengine/src/model"

	"github.com/sirupsen/logrus"
)

// Publisher is the outbound port for position lifecycle events. Delivery is best effort
// and never part of the durable write that caused the event.
type Publisher interface {
	Publish(ev model.PositionEvent)
}

type subscriber struct {
	name string
	ch   chan model.PositionEvent
}

// Bus fans events out to subscribers, each with its own buffered channel. A full
// subscriber drops the event rather than blocking the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
	log     *logrus.Entry
}

func NewBus(buffer int, log *logrus.Entry) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bus{subs: map[uint64]*subscriber{}, buffer: buffer, log: log.WithField("component", "EventBus")}
}

// Subscribe returns a receive channel and a cancel func that closes it.
func (b *Bus) Subscribe(name string) (<-chan model.PositionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	sub := &subscriber{name: name, ch: make(chan model.PositionEvent, b.buffer)}
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(sub.ch)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(ev model.PositionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			b.log.WithFields(logrus.Fields{
				"subscriber":  sub.name,
				"event":       ev.Type,
				"position_id": ev.PositionID,
			}).Warn("Subscriber is full, event dropped")
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped counts events lost to full subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(model.PositionEvent) {}
