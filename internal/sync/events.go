package sync

import (
	"fmt"
	stdsync "sync"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// EventType is the kind of lifecycle event a sync run emits per item.
type EventType int

const (
	EventSyncing EventType = iota
	EventImported
	EventExported
	EventDeleted
)

func (t EventType) String() string {
	switch t {
	case EventSyncing:
		return "syncing"
	case EventImported:
		return "imported"
	case EventExported:
		return "exported"
	case EventDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event reports progress on one item.
type Event struct {
	Type EventType
	Ref  archive.Ref
}

func (e Event) String() string { return e.Type.String() + "(" + string(e.Ref.Path) + ")" }

// subscriberBuffer is the channel depth given to each subscriber.
const subscriberBuffer = 64

// EventBus broadcasts events to subscribers. Delivery is non-blocking: a
// subscriber whose buffer is full misses the event.
type EventBus struct {
	mu      stdsync.RWMutex
	clients map[chan Event]struct{}
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{clients: make(map[chan Event]struct{})}
}

// Subscribe registers a new client and returns its channel together with a
// function that unsubscribes and closes the channel.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once stdsync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends ev to every subscriber that has room for it.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}
