package index

import (
	"fmt"
	"strings"
	"sync"
)

// Progress is reported during the embedding stage.
type Progress struct {
	CompletedChunks     int
	TotalChunks         int
	TotalFiles          int
	WaitingForRateLimit bool
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// progressReporter serializes callback invocations and tracks the
// completed count shared by concurrent workers.
type progressReporter struct {
	mu        sync.Mutex
	fn        ProgressFunc
	completed int
	total     int
	files     int
}

func newProgressReporter(fn ProgressFunc, totalChunks, totalFiles int) *progressReporter {
	return &progressReporter{fn: fn, total: totalChunks, files: totalFiles}
}

func (p *progressReporter) emit(waiting bool) {
	if p.fn == nil {
		return
	}
	p.fn(Progress{
		CompletedChunks:     p.completed,
		TotalChunks:         p.total,
		TotalFiles:          p.files,
		WaitingForRateLimit: waiting,
	})
}

// start reports the initial state.
func (p *progressReporter) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(false)
}

// chunkDone counts one embedded chunk.
func (p *progressReporter) chunkDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
	p.emit(false)
}

// rateLimited reports that a worker is backing off.
func (p *progressReporter) rateLimited() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(true)
}

// Failure is one file or chunk that could not be processed.
type Failure struct {
	Path string
	Err  error
}

// FailureReport aggregates per-file and per-chunk failures of a run.
type FailureReport struct {
	Failures []Failure
}

// Add records a failure.
func (r *FailureReport) Add(path string, err error) {
	r.Failures = append(r.Failures, Failure{Path: path, Err: err})
}

// Merge appends other's failures.
func (r *FailureReport) Merge(other *FailureReport) {
	if other == nil {
		return
	}
	r.Failures = append(r.Failures, other.Failures...)
}

// Empty reports whether nothing failed.
func (r *FailureReport) Empty() bool {
	return r == nil || len(r.Failures) == 0
}

// Files returns the distinct failed paths in first-seen order.
func (r *FailureReport) Files() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Failures))
	var files []string
	for _, f := range r.Failures {
		if _, ok := seen[f.Path]; ok {
			continue
		}
		seen[f.Path] = struct{}{}
		files = append(files, f.Path)
	}
	return files
}

// String renders the report for the user:
//
//	Failed to process N file(s):
//
//	File: a.md
//	Error: ...
func (r *FailureReport) String() string {
	if r.Empty() {
		return ""
	}
	entries := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		entries[i] = fmt.Sprintf("File: %s\nError: %s", f.Path, f.Err.Error())
	}
	return fmt.Sprintf("Failed to process %d file(s):\n\n", len(r.Failures)) + strings.Join(entries, "\n\n")
}
