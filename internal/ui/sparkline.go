package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the most recent throughput samples and renders them as
// a row of block characters scaled to the largest sample held.
type Sparkline struct {
	samples  []float64 // oldest first, at most capacity
	capacity int
}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, 0, capacity), capacity: capacity}
}

// Add appends a sample, evicting the oldest when full.
func (s *Sparkline) Add(value float64) {
	if len(s.samples) == s.capacity {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:len(s.samples)-1]
	}
	s.samples = append(s.samples, value)
}

// Render draws every held sample, padded to capacity.
func (s *Sparkline) Render() string {
	return s.RenderWithWidth(s.capacity)
}

// RenderWithWidth draws the newest width samples. With no samples it draws
// a flat baseline; otherwise missing samples are padded with spaces.
func (s *Sparkline) RenderWithWidth(width int) string {
	if width <= 0 {
		width = s.capacity
	}
	if len(s.samples) == 0 {
		return strings.Repeat(string(SparklineChars[0]), width)
	}

	window := s.samples
	if len(window) > width {
		window = window[len(window)-width:]
	}

	peak := s.Max()
	var sb strings.Builder
	sb.Grow(width * 3)
	for _, v := range window {
		sb.WriteRune(barFor(v, peak))
	}
	for i := len(window); i < width; i++ {
		sb.WriteByte(' ')
	}
	return sb.String()
}

func barFor(value, peak float64) rune {
	if peak <= 0 || value <= 0 {
		return SparklineChars[0]
	}
	idx := int(value / peak * float64(len(SparklineChars)-1))
	idx = max(0, min(idx, len(SparklineChars)-1))
	return SparklineChars[idx]
}

// Clear drops all samples.
func (s *Sparkline) Clear() {
	s.samples = s.samples[:0]
}

// Count returns the number of held samples.
func (s *Sparkline) Count() int {
	return len(s.samples)
}

// Max returns the largest held sample.
func (s *Sparkline) Max() float64 {
	peak := 0.0
	for _, v := range s.samples {
		peak = max(peak, v)
	}
	return peak
}
