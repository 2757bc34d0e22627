package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces rapid events for the same path so editor save
// storms and git checkouts produce one batch instead of many. Within a
// window, operations on one path merge:
//
//	CREATE + MODIFY = CREATE  (still a new file)
//	CREATE + DELETE = nothing (never really existed)
//	MODIFY + DELETE = DELETE
//	DELETE + CREATE = MODIFY  (file was replaced)
//
// Batches are emitted sorted by path.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]*pendingChange
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

type pendingChange struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given coalescing window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingChange),
		output:  make(chan []FileEvent, 10),
	}
}

// Add records an event, merging it with any pending event for the same
// path.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	existing, ok := d.pending[event.Path]
	if !ok {
		d.pending[event.Path] = &pendingChange{event: event, firstOp: event.Operation}
		d.resetTimer()
		return
	}

	merged := coalesce(existing.firstOp, existing.event, event)
	if merged == nil {
		delete(d.pending, event.Path)
	} else {
		existing.event = *merged
	}
	d.resetTimer()
}

// coalesce merges a new event into the pending one. A nil result means
// the pair cancelled out.
func coalesce(firstOp Operation, pending, next FileEvent) *FileEvent {
	switch firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return &pending
		case OpDelete:
			return nil
		default:
			return &next
		}
	case OpDelete:
		if next.Operation == OpCreate {
			replaced := next
			replaced.Operation = OpModify
			return &replaced
		}
		return &next
	default:
		return &next
	}
}

// resetTimer restarts the flush timer. Must be called with the lock held.
func (d *Debouncer) resetTimer() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits all pending events as one sorted batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, pc := range d.pending {
		batch = append(batch, pc.event)
	}
	d.pending = make(map[string]*pendingChange)
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case d.output <- batch:
	default:
		slog.Warn("debouncer_output_full",
			slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop drops pending events and closes the output channel. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
