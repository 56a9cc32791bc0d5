package cache

import (
	"sync"

	"media-cache/internal/logging"
)

// eventChanSize buffers the relay's inbound channel so producers never
// stall on a momentarily busy relay.
const eventChanSize = 1024

// subscriberChanSize buffers each subscriber queue. A subscriber that
// falls this far behind starts losing events rather than blocking
// workers.
const subscriberChanSize = 256

// bus fans status events out to subscriber queues. A single relay
// goroutine owns the receiving end of the inbound channel; producers
// only send.
type bus struct {
	events chan Event

	mu   sync.Mutex
	subs []chan Event
}

func newBus() *bus {
	b := &bus{
		events: make(chan Event, eventChanSize),
	}
	go b.relay()
	return b
}

// publish hands an event to the relay. The inbound channel is large
// and drained by a goroutine that does no I/O, so overflow indicates a
// stuck relay; the event is dropped with a warning instead of blocking
// the producing worker.
func (b *bus) publish(ev Event) {
	select {
	case b.events <- ev:
	default:
		logging.Warn("event channel overflow, dropping event for job %d", ev.JobID)
	}
}

// subscribe registers a new queue. The returned cancel func removes
// the queue and closes it; after cancel returns, no further sends
// touch the channel.
func (b *bus) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberChanSize)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsub
}

// relay is the sole receiver: it clones each event to every subscriber
// queue. A full queue drops the event so one slow subscriber cannot
// stall the rest.
func (b *bus) relay() {
	for ev := range b.events {
		b.mu.Lock()
		for _, sub := range b.subs {
			select {
			case sub <- ev:
			default:
				logging.Debug("subscriber queue full, dropping event for job %d", ev.JobID)
			}
		}
		b.mu.Unlock()
	}
}
