package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/vaultrag/internal/config"
	"github.com/Aman-CERP/vaultrag/internal/embed"
	"github.com/Aman-CERP/vaultrag/internal/store"
	"github.com/Aman-CERP/vaultrag/internal/ui"
	"github.com/Aman-CERP/vaultrag/internal/vault"
)

// defaultPollInterval is how often the Runner samples the orchestrator
// state to report stage changes.
const defaultPollInterval = 50 * time.Millisecond

// RunnerConfig configures one indexing run.
type RunnerConfig struct {
	// ReindexAll clears the model's vectors and embeds every filtered file.
	ReindexAll bool

	// PollInterval defaults to 50ms.
	PollInterval time.Duration
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Config is the loaded vault configuration (required).
	Config *config.Config

	Vault  vault.Vault       // required
	Store  store.VectorStore // required
	Client embed.Client      // required

	// Backend names the embedding provider for the summary.
	Backend string
}

// Runner executes indexing runs with progress reporting. It adapts the
// Orchestrator's callbacks and state to a ui.Renderer.
type Runner struct {
	renderer     ui.Renderer
	config       *config.Config
	client       embed.Client
	backend      string
	orchestrator *Orchestrator
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Vault == nil {
		return nil, fmt.Errorf("vault is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("embedding client is required")
	}

	o := NewOrchestrator(deps.Vault, deps.Store, OrchestratorOptions{
		Pipeline: PipelineOptions{
			BatchSize:   deps.Config.Indexing.BatchSize,
			Concurrency: deps.Config.Indexing.Concurrency,
		},
	})

	return &Runner{
		renderer:     deps.Renderer,
		config:       deps.Config,
		client:       deps.Client,
		backend:      deps.Backend,
		orchestrator: o,
	}, nil
}

// Orchestrator exposes the underlying orchestrator, e.g. for a watch
// Coordinator sharing the same run lock.
func (r *Runner) Orchestrator() *Orchestrator {
	return r.orchestrator
}

// OptionsFromConfig maps the indexing section of cfg to run options.
func OptionsFromConfig(cfg *config.Config, reindexAll bool) Options {
	return Options{
		ChunkSize:       cfg.Indexing.ChunkSize,
		MaxHeaderLevel:  cfg.Indexing.MaxHeaderLevel,
		ExcludePatterns: cfg.Indexing.Exclude,
		IncludePatterns: cfg.Indexing.Include,
		ReindexAll:      reindexAll,
	}
}

// Run executes one UpdateVaultIndex pass, feeding stage changes and
// embedding progress to the renderer. Failures are reported as renderer
// errors; the returned error is the run's fatal error, if any.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*Result, error) {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	stages := &stageReporter{renderer: r.renderer, last: -1}

	pollCtx, stopPolling := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.pollState(pollCtx, interval, stages)
	}()

	result, err := r.orchestrator.UpdateVaultIndex(ctx, r.client, OptionsFromConfig(r.config, cfg.ReindexAll), stages.embedding)

	stopPolling()
	wg.Wait()

	r.report(result, err)
	return result, err
}

// pollState reports non-embedding stage transitions until ctx ends.
func (r *Runner) pollState(ctx context.Context, interval time.Duration, stages *stageReporter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if stage, ok := uiStage(r.orchestrator.State()); ok && stage != ui.StageEmbedding {
			stages.enter(stage)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// report forwards failures and the summary to the renderer.
func (r *Runner) report(result *Result, runErr error) {
	if result == nil {
		result = &Result{}
	}

	errCount := 0
	if result.Failures != nil {
		for _, f := range result.Failures.Failures {
			r.renderer.AddError(ui.ErrorEvent{File: f.Path, Err: f.Err})
			errCount++
		}
	}

	warnCount := 0
	if result.SaveErr != nil {
		r.renderer.AddError(ui.ErrorEvent{Err: fmt.Errorf("save failed: %w", result.SaveErr), IsWarn: true})
		warnCount++
	}

	if runErr != nil {
		r.renderer.AddError(ui.ErrorEvent{Err: runErr})
		errCount++
		slog.Debug("runner_run_failed", slog.String("run_id", result.RunID), slog.String("error", runErr.Error()))
	}

	r.renderer.Complete(ui.CompletionStats{
		Files:    result.Files,
		Chunks:   result.Chunks,
		Embedded: result.Embedded,
		Deleted:  result.Deleted,
		Duration: result.Duration,
		Errors:   errCount,
		Warnings: warnCount,
		Embedder: ui.EmbedderInfo{
			Backend:    r.backend,
			Model:      r.client.ID(),
			Dimensions: r.client.Dimension(),
		},
	})
}

// stageReporter keeps renderer stages monotonic when the poller and the
// embedding callback race.
type stageReporter struct {
	mu       sync.Mutex
	renderer ui.Renderer
	last     ui.Stage
}

func (s *stageReporter) enter(stage ui.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stage <= s.last {
		return
	}
	s.last = stage
	s.renderer.UpdateProgress(ui.ProgressEvent{Stage: stage})
}

func (s *stageReporter) embedding(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last > ui.StageEmbedding {
		return
	}
	s.last = ui.StageEmbedding
	s.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:      ui.StageEmbedding,
		Current:    p.CompletedChunks,
		Total:      p.TotalChunks,
		TotalFiles: p.TotalFiles,
		Waiting:    p.WaitingForRateLimit,
	})
}

// uiStage maps an orchestrator state to a display stage.
func uiStage(s State) (ui.Stage, bool) {
	switch s {
	case StateDeterminingFiles:
		return ui.StageDetermining, true
	case StateChunking:
		return ui.StageChunking, true
	case StateEmbedding:
		return ui.StageEmbedding, true
	case StatePersisting:
		return ui.StagePersisting, true
	default:
		return 0, false
	}
}
