// Package ui renders index progress and vault status on the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a phase of an index run. Stages only move forward.
type Stage int

const (
	StageDetermining Stage = iota // listing and change detection
	StageChunking
	StageEmbedding
	StagePersisting // final store save
	StageComplete
)

var stageLabels = [...]struct{ name, icon string }{
	StageDetermining: {"Determining files", "SCAN"},
	StageChunking:    {"Chunking", "CHUNK"},
	StageEmbedding:   {"Embedding", "EMBED"},
	StagePersisting:  {"Persisting", "SAVE"},
	StageComplete:    {"Complete", "DONE"},
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageLabels) {
		return "Unknown"
	}
	return stageLabels[s].name
}

// Icon is the bracketed tag used by plain output.
func (s Stage) Icon() string {
	if s < 0 || int(s) >= len(stageLabels) {
		return "???"
	}
	return stageLabels[s].icon
}

// ProgressEvent reports the position of a run within its current stage.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	TotalFiles  int
	CurrentFile string
	Message     string

	// Waiting is set while the embedding provider is rate limiting us.
	Waiting bool
}

// ErrorEvent is a per-note failure. Warnings do not fail the note.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// EmbedderInfo names the backend that produced the vectors.
type EmbedderInfo struct {
	Backend    string // "ollama", "openai" or "static"
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Files    int
	Chunks   int
	Embedded int
	Deleted  int
	Duration time.Duration
	Errors   int
	Warnings int
	Embedder EmbedderInfo
}

// Renderer displays an index run. Implementations are safe for use from
// the run's goroutines.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures NewRenderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	VaultDir   string // shown in the TUI header

	// OnQuit is called when the user quits the TUI with q or ctrl+c.
	OnQuit func()
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain selects the plain renderer even on a terminal.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables colors.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithVaultDir sets the vault path shown in the TUI header.
func WithVaultDir(dir string) ConfigOption {
	return func(c *Config) { c.VaultDir = dir }
}

// WithOnQuit sets the callback for a user quit.
func WithOnQuit(fn func()) ConfigOption {
	return func(c *Config) { c.OnQuit = fn }
}

// NewConfig builds a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI on an interactive terminal and the plain
// renderer for pipes, CI and --no-tui.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set, to any value.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

var ciEnvVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS", "BUILDKITE"}

// DetectCI reports whether we run under a CI system.
func DetectCI() bool {
	for _, v := range ciEnvVars {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}
