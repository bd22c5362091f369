package vault

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Operation is a file system change.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename // moved away; the destination arrives as a create
)

var opNames = [...]string{OpCreate: "CREATE", OpModify: "MODIFY", OpDelete: "DELETE", OpRename: "RENAME"}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "UNKNOWN"
	}
	return opNames[op]
}

// FileEvent is one change inside the vault.
type FileEvent struct {
	Path      string // Relative to vault root, slash separated
	Operation Operation
	IsDir     bool
}

// outputBuffer is the number of batches that may wait for the consumer.
const outputBuffer = 4

// Debouncer collects events until the vault has been quiet for one window,
// then emits them as one batch sorted by path. Events for the same path
// are merged:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - DELETE then CREATE becomes MODIFY
//   - anything else keeps the latest operation
//
// When the consumer is behind, the batch stays pending and absorbs later
// events until it can be delivered.
type Debouncer struct {
	window time.Duration
	out    chan []FileEvent

	mu      sync.Mutex
	pending map[string]pendingEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	FileEvent
	first Operation
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		out:     make(chan []FileEvent, outputBuffer),
		pending: make(map[string]pendingEvent),
	}
}

// Add queues an event and restarts the quiet window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	prev, seen := d.pending[event.Path]
	switch {
	case !seen:
		d.pending[event.Path] = pendingEvent{FileEvent: event, first: event.Operation}
	case prev.first == OpCreate && event.Operation == OpDelete:
		delete(d.pending, event.Path)
	case prev.first == OpCreate && event.Operation == OpModify:
		// still a new note
	case prev.first == OpDelete && event.Operation == OpCreate:
		event.Operation = OpModify
		d.pending[event.Path] = pendingEvent{FileEvent: event, first: prev.first}
	default:
		d.pending[event.Path] = pendingEvent{FileEvent: event, first: prev.first}
	}

	d.arm()
}

// arm restarts the quiet window. Callers hold mu.
func (d *Debouncer) arm() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		batch = append(batch, pe.FileEvent)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })

	select {
	case d.out <- batch:
		d.pending = make(map[string]pendingEvent)
	default:
		slog.Debug("debounce_consumer_behind", slog.Int("pending", len(batch)))
		d.arm()
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.out
}

// Stop drops pending events and closes Output. Safe to call more than
// once.
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
	close(d.out)
}
