package status

import (
	"sync"

	"healthbridge/internal/domain"
)

const subscriberBuffer = 16

// Broadcaster fans status events out to every subscriber. Delivery is
// fire-and-forget: a subscriber whose buffer is full misses the event
// rather than slowing down publishers.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.StatusEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan domain.StatusEvent)}
}

// Subscribe registers a listener and returns its event channel together
// with a cancel function. Cancel is idempotent and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan domain.StatusEvent, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan domain.StatusEvent, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish sends the event to all current subscribers without blocking.
func (b *Broadcaster) Publish(ev domain.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len reports the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
