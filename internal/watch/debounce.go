package watch

import (
	"sync"
	"time"
)

// debouncer coalesces raw per-path signals and releases one Event per
// path once that path has been quiet for the window. Instead of a timer
// per path, a single sweeper wakes a few times per window and emits
// every entry whose last signal is old enough; the cost is a bounded
// amount of emission jitter, the gain is one goroutine regardless of
// how many paths are in flight.
type debouncer struct {
	window time.Duration
	out    chan<- Event

	mu      sync.Mutex
	waiting map[string]*entry

	stop    chan struct{}
	stopped chan struct{}
}

type entry struct {
	op   Op
	last time.Time
}

func newDebouncer(window time.Duration, out chan<- Event) *debouncer {
	d := &debouncer{
		window:  window,
		out:     out,
		waiting: make(map[string]*entry),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.sweepLoop()
	return d
}

// signal records one raw observation for path, restarting its window.
func (d *debouncer) signal(path string, op Op) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.waiting[path]
	if !ok {
		d.waiting[path] = &entry{op: op, last: now}
		return
	}
	merged, keep := mergeOps(e.op, op)
	if !keep {
		delete(d.waiting, path)
		return
	}
	e.op = merged
	e.last = now
}

// mergeOps folds a newly observed op into the op already pending for
// the same path. The result is what a consumer that only sees the
// endpoints of the burst should be told. keep=false means the burst
// cancelled itself out (created then deleted before anyone saw it).
func mergeOps(pending, next Op) (merged Op, keep bool) {
	switch {
	case pending == OpCreate && next == OpDelete:
		return 0, false
	case pending == OpCreate:
		// Still a creation, whatever happened in between.
		return OpCreate, true
	case pending == OpDelete && (next == OpCreate || next == OpRename):
		// Deleted and replaced within one burst: content changed.
		return OpModify, true
	case next == OpDelete:
		return OpDelete, true
	default:
		return next, true
	}
}

func (d *debouncer) sweepLoop() {
	defer close(d.stopped)

	tick := d.window / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			for _, ev := range d.takeQuiet(now) {
				select {
				case d.out <- ev:
				case <-d.stop:
					return
				}
			}
		}
	}
}

// takeQuiet removes and returns every entry whose window has elapsed.
func (d *debouncer) takeQuiet(now time.Time) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	var due []Event
	for path, e := range d.waiting {
		if now.Sub(e.last) >= d.window {
			due = append(due, Event{Path: path, Op: e.op, At: e.last})
			delete(d.waiting, path)
		}
	}
	return due
}

// close stops the sweeper and hands any still-pending entries to the
// consumer, giving up after deadline if the consumer is gone.
func (d *debouncer) close(deadline time.Duration) {
	close(d.stop)
	<-d.stopped

	d.mu.Lock()
	pending := make([]Event, 0, len(d.waiting))
	for path, e := range d.waiting {
		pending = append(pending, Event{Path: path, Op: e.op, At: e.last})
	}
	d.waiting = map[string]*entry{}
	d.mu.Unlock()

	timeout := time.After(deadline)
	for _, ev := range pending {
		select {
		case d.out <- ev:
		case <-timeout:
			return
		}
	}
}
