package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/vaultrag/internal/chunk"
	"github.com/Aman-CERP/vaultrag/internal/embed"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/store"
	"github.com/Aman-CERP/vaultrag/internal/vault"
)

// ChunkingFailedMessage is the error message when no candidate file could
// be chunked.
const ChunkingFailedMessage = "All files failed to process. Stopping indexing process."

// saveTimeout bounds the final save, which runs even after cancellation.
const saveTimeout = 30 * time.Second

// Options configures one UpdateVaultIndex run.
type Options struct {
	ChunkSize       int
	MaxHeaderLevel  int
	ExcludePatterns []string
	IncludePatterns []string
	ReindexAll      bool
}

// Result summarizes a run. It is returned alongside any error.
type Result struct {
	RunID    string
	Files    int // Candidate files
	Chunks   int
	Embedded int
	Deleted  int // Orphaned files purged
	Failures *FailureReport

	// SaveErr is set when the final save failed. It does not fail the run.
	SaveErr error

	Duration time.Duration
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Pipeline PipelineOptions

	// ReadConcurrency bounds concurrent file reads and chunking.
	// Defaults to runtime.NumCPU().
	ReadConcurrency int
}

// Orchestrator runs indexing passes over a vault into a store.
type Orchestrator struct {
	mu       sync.Mutex // one run at a time
	vault    vault.Vault
	store    store.VectorStore
	detector *ChangeDetector
	pipeline *Pipeline
	readers  int
	state    stateMachine
}

// NewOrchestrator wires the detector and pipeline around st.
func NewOrchestrator(v vault.Vault, st store.VectorStore, opts OrchestratorOptions) *Orchestrator {
	readers := opts.ReadConcurrency
	if readers <= 0 {
		readers = runtime.NumCPU()
	}
	return &Orchestrator{
		vault:    v,
		store:    st,
		detector: NewChangeDetector(st),
		pipeline: NewPipeline(st, opts.Pipeline),
		readers:  readers,
	}
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	return o.state.get()
}

// UpdateVaultIndex brings the store up to date with the vault for client.
//
// With ReindexAll every filtered file is re-embedded after the model's
// vectors are cleared. Otherwise orphaned files are purged and only new or
// modified files are re-embedded. When nothing needs indexing, progress is
// never called. The store is saved on every exit path once the vault has
// been listed.
func (o *Orchestrator) UpdateVaultIndex(ctx context.Context, client embed.Client, opts Options, progress ProgressFunc) (result *Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	result = &Result{RunID: uuid.NewString(), Failures: &FailureReport{}}
	logger := slog.With(
		slog.String("run_id", result.RunID),
		slog.String("model", client.ID()),
		slog.Int("dimension", client.Dimension()))

	o.state.set(StateDeterminingFiles)
	defer func() {
		result.Duration = time.Since(start)
		if err != nil {
			o.state.set(StateFailed)
			logger.Error("index_failed",
				vrerrors.LogAttr(err),
				slog.Int("embedded", result.Embedded),
				slog.Int64("duration_ms", result.Duration.Milliseconds()))
			return
		}
		o.state.set(StateIdle)
	}()

	filter, err := vault.NewFilter(opts.ExcludePatterns, opts.IncludePatterns)
	if err != nil {
		return result, err
	}

	files, err := o.vault.ListMarkdownFiles(ctx)
	if err != nil {
		return result, err
	}

	defer o.save(ctx, result, logger)

	logger.Info("index_started",
		slog.Bool("reindex_all", opts.ReindexAll),
		slog.Int("vault_files", len(files)))

	candidates, err := o.determineFiles(ctx, client, files, filter, opts.ReindexAll, result)
	if err != nil {
		return result, err
	}
	result.Files = len(candidates)

	if len(candidates) == 0 {
		logger.Info("index_up_to_date", slog.Int("deleted", result.Deleted))
		return result, nil
	}

	o.state.set(StateChunking)
	chunker := chunk.NewMarkdownChunkerWithOptions(chunk.MarkdownChunkerOptions{
		ChunkSize:      opts.ChunkSize,
		MaxHeaderLevel: opts.MaxHeaderLevel,
	})
	chunks, failures, err := o.chunkFiles(ctx, chunker, candidates)
	result.Failures.Merge(failures)
	if err != nil {
		return result, err
	}
	result.Chunks = len(chunks)

	if len(failures.Failures) == len(candidates) {
		return result, vrerrors.New(vrerrors.ErrCodeChunkingFailed, ChunkingFailedMessage, failures.Failures[0].Err)
	}
	if len(chunks) == 0 {
		logger.Info("index_no_content", slog.Int("files", len(candidates)))
		return result, nil
	}

	logger.Info("index_chunking_complete",
		slog.Int("files", len(candidates)),
		slog.Int("chunks", len(chunks)),
		slog.Int("failed_files", len(failures.Failures)))

	o.state.set(StateEmbedding)
	pres, err := o.pipeline.Run(ctx, client, chunks, len(candidates), progress)
	if pres != nil {
		result.Embedded = pres.Embedded
		result.Failures.Merge(pres.Failures)
	}
	if err != nil {
		return result, err
	}

	logger.Info("index_complete",
		slog.Int("files", result.Files),
		slog.Int("chunks", result.Chunks),
		slog.Int("embedded", result.Embedded),
		slog.Int("failed", len(result.Failures.Failures)),
		slog.Int("deleted", result.Deleted),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return result, nil
}

// determineFiles clears or purges stale rows and returns the files to embed.
func (o *Orchestrator) determineFiles(ctx context.Context, client embed.Client, files []vault.File, filter *vault.Filter, reindexAll bool, result *Result) ([]vault.File, error) {
	if reindexAll {
		candidates, err := o.detector.Candidates(ctx, client, files, filter, true)
		if err != nil {
			return nil, err
		}
		if err := o.store.ClearAllVectors(ctx, client); err != nil {
			return nil, err
		}
		return candidates, nil
	}

	orphans, err := o.detector.Orphans(ctx, client, files)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 {
		if err := o.store.DeleteVectorsForFiles(ctx, orphans, client); err != nil {
			return nil, err
		}
		result.Deleted = len(orphans)
		slog.Debug("index_orphans_deleted", slog.Int("files", len(orphans)))
	}

	candidates, err := o.detector.Candidates(ctx, client, files, filter, false)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(candidates))
	for i, f := range candidates {
		paths[i] = f.Path
	}
	if err := o.store.DeleteVectorsForFiles(ctx, paths, client); err != nil {
		return nil, err
	}
	return candidates, nil
}

// chunkFiles reads and chunks files concurrently. Chunks keep file order,
// and each file keeps its own section order.
func (o *Orchestrator) chunkFiles(ctx context.Context, chunker chunk.Chunker, files []vault.File) ([]*chunk.Chunk, *FailureReport, error) {
	perFile := make([][]*chunk.Chunk, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.readers)
	for i, f := range files {
		g.Go(func() error {
			content, err := o.vault.ReadFile(gctx, f)
			if err == nil {
				perFile[i], err = chunker.Chunk(gctx, &chunk.FileInput{Path: f.Path, MTime: f.MTime, Content: content})
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				errs[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &FailureReport{}, err
	}

	failures := &FailureReport{}
	var chunks []*chunk.Chunk
	for i, f := range files {
		if errs[i] != nil {
			slog.Warn("index_file_failed",
				slog.String("path", f.Path),
				vrerrors.LogAttr(errs[i]))
			failures.Add(f.Path, errs[i])
			continue
		}
		chunks = append(chunks, perFile[i]...)
	}
	return chunks, failures, nil
}

// save persists the store with a context that survives cancellation.
func (o *Orchestrator) save(ctx context.Context, result *Result, logger *slog.Logger) {
	o.state.set(StatePersisting)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := o.store.Save(saveCtx); err != nil {
		result.SaveErr = err
		logger.Warn("index_save_failed", vrerrors.LogAttr(err))
	}
}

// ClearAllVectors removes every row of client's model, vacuums and saves.
func (o *Orchestrator) ClearAllVectors(ctx context.Context, client embed.Client) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.ClearAllVectors(ctx, client); err != nil {
		return err
	}
	if err := o.store.Save(ctx); err != nil {
		return fmt.Errorf("failed to save after clear: %w", err)
	}
	return nil
}
