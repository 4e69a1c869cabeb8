// Package notify is the statsUpdated publish point consumers watch.
package notify

import (
	"sync"

	"github.com/UnderPressurePH7/platoon-widget/pkg/metrics"
)

// Broadcaster fans a payload-less statsUpdated signal out to subscribers.
// Delivery is non-blocking: a subscriber that has not drained its channel
// keeps its one pending signal, which is all a re-read trigger needs.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// New returns an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a new listener channel.
func (b *Broadcaster) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener channel.
func (b *Broadcaster) Unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish signals every subscriber that stats changed.
func (b *Broadcaster) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
			// signal already pending
		}
	}
	metrics.RecordStatsUpdatedPublished()
}
