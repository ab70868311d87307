package broadcast

import (
	"log"
	"sync"
	"sync/atomic"
)

// Broadcaster fans events out to any number of subscribers. Delivery is
// best-effort: a subscriber that cannot keep up has events dropped rather
// than blocking publishers, and publishing with zero subscribers is fine.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[int]chan Event
	nextID     int
	closed     bool
	bufferSize int

	droppedCount atomic.Uint64
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold up to
// bufferSize undelivered events.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Broadcaster{
		subs:       make(map[int]chan Event),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a new observer. The returned cancel function removes
// the subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() { b.unsubscribe(id) }
}

func (b *Broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers the event to every current subscriber without blocking.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			count := b.droppedCount.Add(1)
			if count%10 == 1 { // log every 10th drop to avoid spam
				log.Printf("[broadcast] WARNING: subscriber channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
			}
		}
	}
}

// DroppedCount returns the total number of events dropped across all
// subscribers.
func (b *Broadcaster) DroppedCount() uint64 {
	return b.droppedCount.Load()
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the broadcaster down and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
