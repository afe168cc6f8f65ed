package batching

import "sync"

// Event names published by the dispatcher and the submission path.
const (
	EventBatchClosed      = "batch_closed"
	EventBatchDispatched  = "batch_dispatched"
	EventBatchFailed      = "batch_failed"
	EventBatchRecycled    = "batch_recycled"
	EventRequestRejected  = "request_rejected"
	EventRequestCancelled = "request_cancelled"
)

// Event represents a batch lifecycle event.
// Minimal and stable: name + ring name and optional fields via key/values.
type Event struct {
	Name   string
	Ring   string
	Fields map[string]any
}

// EventPublisher receives events from the batcher. Implementations should be
// lightweight and non-blocking; Publish must not panic. Publish is called from
// the dispatcher and from submitting goroutines concurrently.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Named returns the stored events with the given name.
func (p *MemoryPublisher) Named(name string) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
