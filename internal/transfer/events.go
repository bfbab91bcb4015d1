package transfer

import "sync"

// Broker fans completed-transfer records out to subscribers. Publishing never
// blocks the orchestrator: a subscriber that falls behind misses events
// rather than stalling transfer execution.
type Broker struct {
	mu   sync.RWMutex
	subs []chan Record
}

const subscriberBuffer = 16

// NewBroker constructs an empty broker.
func NewBroker() *Broker {
	return &Broker{}
}

// Subscribe registers a new subscriber channel.
func (b *Broker) Subscribe() <-chan Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Record, subscriberBuffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the record to every subscriber with room in its buffer.
func (b *Broker) Publish(rec Record) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

// Close closes every subscriber channel. Publish must not be called after.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
