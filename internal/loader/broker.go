package loader

import (
	"sync"
	"time"

	"github.com/seantiz/modloader/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 256

// Event is one module state transition.
type Event struct {
	Module string      `json:"module"`
	From   model.State `json:"from"`
	To     model.State `json:"to"`
	Error  string      `json:"error,omitempty"`
	Time   time.Time   `json:"time"`
}

func newEvent(m *model.Module, from model.State, err error) Event {
	e := Event{Module: m.Name, From: from, To: m.State(), Time: time.Now().UTC()}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Broker fans module transition events out to subscribers.
// It is safe for concurrent use.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[int]chan Event),
	}
}

// Subscribe returns a channel that receives every subsequent event and an
// unsubscribe function. After Close the returned channel is already closed.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Publish sends e to all subscribers. Events are dropped for subscribers
// whose buffers are full.
func (b *Broker) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Drop the event rather than block the loader.
		}
	}
}

// Close closes every subscriber channel. Later subscribers get a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
