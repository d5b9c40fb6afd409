// Package eventbus fans change events out to registered sinks after a
// version commits. Dispatch is fire-and-forget: each sink runs on its own
// goroutine, one sink's failure or panic never affects another sink or
// the tracker, and delivery is best-effort.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventClass selects which change events a sink receives.
type EventClass string

const (
	ClassAny      EventClass = "any"
	ClassAdded    EventClass = "added"
	ClassModified EventClass = "modified"
	ClassDeleted  EventClass = "deleted"
	ClassRestored EventClass = "restored"
)

// ChangeEvent describes one committed document transition. Events are
// immutable values; sinks must not retain references into Metadata and
// mutate it.
type ChangeEvent struct {
	DocumentID    string
	VersionID     string
	ChangeType    string
	FilePath      string
	FileName      string
	FileSize      int64
	ContentHash   string
	PreviousHash  string
	VersionNumber int
	Timestamp     time.Time
	Metadata      map[string]string
}

// Class maps the event's change type onto the subscription class it
// dispatches under (in addition to ClassAny).
func (e ChangeEvent) Class() EventClass {
	switch e.ChangeType {
	case "CREATED":
		return ClassAdded
	case "MODIFIED":
		return ClassModified
	case "DELETED":
		return ClassDeleted
	case "RESTORED":
		return ClassRestored
	default:
		return ClassAny
	}
}

// Sink receives change events. Implementations must be safe for
// concurrent use; errors are logged by the bus and never propagated.
type Sink interface {
	Name() string
	HandleEvent(ctx context.Context, event ChangeEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, event ChangeEvent) error
}

func (s SinkFunc) Name() string { return s.SinkName }

func (s SinkFunc) HandleEvent(ctx context.Context, event ChangeEvent) error {
	return s.Fn(ctx, event)
}

// Bus is the change-event fan-out point. The sink list is read-mostly:
// Subscribe copies the slice under the mutex so Publish can iterate a
// stable snapshot without holding it.
type Bus struct {
	mu     sync.Mutex
	sinks  map[EventClass][]Sink
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a Bus. A nil logger falls back to slog's default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		sinks:  make(map[EventClass][]Sink),
		logger: logger,
	}
}

// Subscribe registers sink for the given event class. ClassAny receives
// every event. The same sink may be registered under several classes.
func (b *Bus) Subscribe(class EventClass, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]Sink, len(b.sinks[class]), len(b.sinks[class])+1)
	copy(next, b.sinks[class])
	b.sinks[class] = append(next, sink)
}

// Publish dispatches event to every sink subscribed to its class or to
// ClassAny. Each sink runs on its own goroutine; Publish returns
// immediately. The order in which a sink observes events is not
// defined, including for events originating from the same document.
func (b *Bus) Publish(ctx context.Context, event ChangeEvent) {
	b.mu.Lock()
	targets := make([]Sink, 0, len(b.sinks[ClassAny])+len(b.sinks[event.Class()]))
	targets = append(targets, b.sinks[ClassAny]...)
	if class := event.Class(); class != ClassAny {
		targets = append(targets, b.sinks[class]...)
	}
	b.mu.Unlock()

	for _, sink := range targets {
		b.wg.Add(1)
		go func(s Sink) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event sink panicked",
						slog.String("sink", s.Name()),
						slog.String("document_id", event.DocumentID),
						slog.Any("panic", r))
				}
			}()
			if err := s.HandleEvent(ctx, event); err != nil {
				b.logger.Warn("event sink failed",
					slog.String("sink", s.Name()),
					slog.String("document_id", event.DocumentID),
					slog.String("change_type", event.ChangeType),
					slog.String("error", err.Error()))
			}
		}(sink)
	}
}

// Wait blocks until all in-flight sink invocations complete. Used at
// shutdown and by tests; Publish never requires it.
func (b *Bus) Wait() {
	b.wg.Wait()
}
