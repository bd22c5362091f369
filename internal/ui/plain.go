package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainStep is the minimum completed-chunk delta between embedding lines.
const plainStep = 100

// PlainRenderer writes one line per notable progress change. It is used for
// pipes, CI and --no-tui.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	stage    Stage
	started  bool
	lastLine int // Current value at the last printed embedding line
	waiting  bool
	errors   []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Stage changes are always printed;
// embedding progress is printed every plainStep chunks and at the end.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || event.Stage != r.stage {
		r.started = true
		r.stage = event.Stage
		r.lastLine = -1
		r.waiting = false
		if event.Stage != StageEmbedding {
			r.printStage(event)
			return
		}
	}

	if event.Waiting {
		if !r.waiting {
			r.waiting = true
			_, _ = fmt.Fprintf(r.out, "[%s] rate limited, waiting to retry\n", event.Stage.Icon())
		}
		return
	}
	r.waiting = false

	if event.Total == 0 {
		return
	}
	if event.Current != event.Total && r.lastLine >= 0 && event.Current-r.lastLine < plainStep {
		return
	}
	if event.Current == r.lastLine {
		return
	}
	r.lastLine = event.Current
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d chunks (%d files)\n",
		event.Stage.Icon(), event.Current, event.Total, event.TotalFiles)
}

func (r *PlainRenderer) printStage(event ProgressEvent) {
	msg := event.Message
	if msg == "" {
		msg = event.Stage.String()
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files, %d/%d chunks embedded in %s",
		stats.Files, stats.Embedded, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Deleted > 0 {
		_, _ = fmt.Fprintf(r.out, ", %d removed", stats.Deleted)
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%s, %d dims)\n",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
