package eventbus

import (
	"context"
	"time"
)

// Notifier is the outbound notification capability (chat, email, HTTP
// webhook). Concrete transports live outside the core; the bus only
// needs success/failure and catches everything else.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event ChangeEvent) (bool, error)
}

// NotifierSink adapts a Notifier to the Sink interface, applying the
// enable flag, an optional change-type allow list, and a per-call
// timeout.
type NotifierSink struct {
	Notifier Notifier
	// Enabled gates all delivery; a disabled sink silently drops events.
	Enabled bool
	// ChangeTypes restricts delivery to these change types. Empty means
	// all types.
	ChangeTypes []string
	// Timeout bounds each Notify call. Zero means 10s.
	Timeout time.Duration
}

func (n *NotifierSink) Name() string { return n.Notifier.Name() }

func (n *NotifierSink) HandleEvent(ctx context.Context, event ChangeEvent) error {
	if !n.Enabled {
		return nil
	}
	if len(n.ChangeTypes) > 0 {
		match := false
		for _, ct := range n.ChangeTypes {
			if ct == event.ChangeType {
				match = true
				break
			}
		}
		if !match {
			return nil
		}
	}

	timeout := n.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := n.Notifier.Notify(ctx, event)
	return err
}
