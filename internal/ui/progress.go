package ui

import (
	"sync"
	"time"
)

const (
	sampleEvery = 500 * time.Millisecond
	sparkWidth  = 60

	// Weight of the newest sample in the moving averages.
	speedWeight = 0.2
	etaWeight   = 0.3
)

// SpeedStats contains chunks/sec metrics.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	TotalFiles  int
	Progress    float64
	ETA         time.Duration
	CurrentFile string
	Waiting     bool
	WaitCount   int // rate-limit episodes in this stage
	ErrorCount  int
	WarnCount   int
	Speed       SpeedStats
}

// throughput samples the completed count at most every sampleEvery.
type throughput struct {
	at      time.Time
	count   int
	samples int
	speed   SpeedStats
	spark   *Sparkline
}

func (t *throughput) reset(now time.Time) {
	t.at, t.count, t.samples = now, 0, 0
	t.speed = SpeedStats{}
	t.spark.Clear()
}

func (t *throughput) observe(now time.Time, count int) {
	window := now.Sub(t.at)
	if window < sampleEvery {
		return
	}
	if done := count - t.count; done > 0 {
		rate := float64(done) / window.Seconds()
		t.samples++
		t.speed.Current = rate
		t.speed.Peak = max(t.speed.Peak, rate)
		if t.samples == 1 {
			t.speed.Avg = rate
		} else {
			t.speed.Avg += speedWeight * (rate - t.speed.Avg)
		}
		t.spark.Add(rate)
	}
	t.at, t.count = now, count
}

// ProgressTracker accumulates the progress of one indexing run. Counters
// are per stage; errors and warnings span the run. Safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	stage      Stage
	stageStart time.Time
	current    int
	total      int
	totalFiles int
	file       string
	waiting    bool
	waitCount  int
	eta        time.Duration

	rate     throughput
	errors   []ErrorEvent
	warnings []ErrorEvent
}

// NewProgressTracker returns a tracker in StageDetermining.
func NewProgressTracker() *ProgressTracker {
	p := &ProgressTracker{rate: throughput{spark: NewSparkline(sparkWidth)}}
	p.enter(StageDetermining, 0, time.Now())
	return p
}

// SetStage moves to stage and resets per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	p.enter(stage, total, time.Now())
	p.mu.Unlock()
}

func (p *ProgressTracker) enter(stage Stage, total int, now time.Time) {
	p.stage, p.stageStart = stage, now
	p.current, p.total = 0, total
	p.file = ""
	p.waiting, p.waitCount = false, 0
	p.eta = 0
	p.rate.reset(now)
}

// Apply folds a progress event into the tracker. An event from another
// stage switches to it first.
func (p *ProgressTracker) Apply(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if event.Stage != p.stage {
		p.enter(event.Stage, event.Total, now)
	}
	if event.Total > 0 {
		p.total = event.Total
	}
	if event.TotalFiles > 0 {
		p.totalFiles = event.TotalFiles
	}
	if event.Waiting && !p.waiting {
		p.waitCount++
	}
	p.waiting = event.Waiting
	p.advance(now, event.Current, event.CurrentFile)
}

// Update records the completed count within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	p.advance(time.Now(), current, file)
	p.mu.Unlock()
}

func (p *ProgressTracker) advance(now time.Time, current int, file string) {
	p.current = current
	if file != "" {
		p.file = file
	}
	p.rate.observe(now, current)
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings = append(p.warnings, event)
		return
	}
	p.errors = append(p.errors, event)
}

// Progress returns the completed fraction of the current stage, in [0, 1].
func (p *ProgressTracker) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fraction()
}

func (p *ProgressTracker) fraction() float64 {
	if p.total <= 0 {
		return 0
	}
	return min(float64(p.current)/float64(p.total), 1)
}

// ETA estimates the time left in the current stage. Zero means unknown or
// done.
func (p *ProgressTracker) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.estimate()
}

// estimate extrapolates from the stage's elapsed time and smooths the
// result against the previous estimate. Caller holds mu.
func (p *ProgressTracker) estimate() time.Duration {
	done := p.fraction()
	if p.current == 0 || done == 0 || done >= 1 {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	left := time.Duration(float64(elapsed)/done) - elapsed
	if left < 0 {
		return 0
	}
	if p.eta > 0 {
		left = p.eta + time.Duration(etaWeight*float64(left-p.eta))
	}
	p.eta = left
	return left
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		TotalFiles:  p.totalFiles,
		Progress:    p.fraction(),
		ETA:         p.estimate(),
		CurrentFile: p.file,
		Waiting:     p.waiting,
		WaitCount:   p.waitCount,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
		Speed:       p.rate.speed,
	}
}

// Errors returns a copy of the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ErrorEvent(nil), p.errors...)
}

// Warnings returns a copy of the recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ErrorEvent(nil), p.warnings...)
}

// RenderSparkline draws the throughput history, width <= 0 meaning all of it.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate.spark.RenderWithWidth(width)
}

// SpeedStats returns the current chunks/sec figures.
func (p *ProgressTracker) SpeedStats() SpeedStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate.speed
}
