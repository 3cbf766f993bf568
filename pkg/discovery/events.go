// ABOUTME: Event types and the engine-to-consumer bridge
// ABOUTME: Non-blocking FIFO delivery of discovery events across goroutines
package discovery

import "sync"

// EventKind identifies what a discovery event reports.
type EventKind int

const (
	// EventTypeFound reports a newly seen service type.
	EventTypeFound EventKind = iota

	// EventInstanceAdded reports a resolved service instance.
	EventInstanceAdded

	// EventInstanceRemoved reports a disappeared instance.
	EventInstanceRemoved

	// EventError reports a session or query failure.
	EventError
)

// String returns a short name for logging.
func (k EventKind) String() string {
	switch k {
	case EventTypeFound:
		return "type-found"
	case EventInstanceAdded:
		return "instance-added"
	case EventInstanceRemoved:
		return "instance-removed"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one discovery notification. Type is set for EventTypeFound,
// Name and Instance for EventInstanceAdded, Name for EventInstanceRemoved,
// and Err for EventError. Events carry plain values only.
type Event struct {
	Kind     EventKind
	Type     string
	Name     string
	Instance *ServiceInstance
	Err      string
}

// Bridge carries events from the engine to a consumer without the engine
// ever blocking on a slow consumer. Emission order is preserved. The queue
// is unbounded; a stalled consumer grows it instead of back-pressuring the
// discovery loop.
type Bridge struct {
	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	out    chan Event
	closed bool
}

// NewBridge creates a bridge and starts its dispatch goroutine.
func NewBridge() *Bridge {
	b := &Bridge{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
	}
	go b.dispatch()
	return b
}

// Emit queues an event for delivery. It never blocks. Events emitted after
// Close are dropped.
func (b *Bridge) Emit(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Events returns the delivery channel. It is closed after Close once all
// queued events have been delivered.
func (b *Bridge) Events() <-chan Event {
	return b.out
}

// Close stops the bridge after draining queued events. Idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// dispatch drains the queue into the output channel in FIFO order.
func (b *Bridge) dispatch() {
	for {
		b.mu.Lock()
		pending := b.queue
		b.queue = nil
		closed := b.closed
		b.mu.Unlock()

		for _, ev := range pending {
			b.out <- ev
		}

		if closed {
			// Anything emitted before Close has been flushed.
			b.mu.Lock()
			remaining := b.queue
			b.queue = nil
			b.mu.Unlock()
			for _, ev := range remaining {
				b.out <- ev
			}
			close(b.out)
			return
		}

		<-b.wake
	}
}
