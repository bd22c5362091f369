package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/vaultrag/internal/chunk"
	"github.com/Aman-CERP/vaultrag/internal/embed"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/store"
)

// DefaultBatchSize is the number of chunks embedded and inserted together.
const DefaultBatchSize = 100

// BatchFailedMessage is the error message when a whole batch fails.
const BatchFailedMessage = "All chunks in batch failed to embed. Stopping indexing process."

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int

	// Concurrency bounds in-flight embedding requests per batch.
	// Zero means one per chunk in the batch.
	Concurrency int

	// RetryPolicy defaults to errors.RateLimitPolicy().
	RetryPolicy *vrerrors.RetryPolicy
}

// PipelineResult summarizes a pipeline run.
type PipelineResult struct {
	Embedded int
	Batches  int
	Failures *FailureReport
}

// Pipeline embeds chunks batch by batch and inserts the successes.
type Pipeline struct {
	store       store.VectorStore
	batchSize   int
	concurrency int
	policy      vrerrors.RetryPolicy
}

// NewPipeline creates a pipeline writing to st.
func NewPipeline(st store.VectorStore, opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		store:       st,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		policy:      vrerrors.RateLimitPolicy(),
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if opts.RetryPolicy != nil {
		p.policy = *opts.RetryPolicy
	}
	return p
}

// Run embeds chunks with client and inserts them. Batches run one after
// another; chunks within a batch run concurrently.
//
// Per-chunk failures are collected in the result. A batch in which every
// chunk fails aborts the run with ErrCodeBatchFailed, and a configuration
// error from the client aborts immediately. On an abort or cancellation the
// chunks embedded so far, including those of the current batch, are
// committed.
func (p *Pipeline) Run(ctx context.Context, client embed.Client, chunks []*chunk.Chunk, totalFiles int, progress ProgressFunc) (*PipelineResult, error) {
	result := &PipelineResult{Failures: &FailureReport{}}
	reporter := newProgressReporter(progress, len(chunks), totalFiles)
	reporter.start()

	for start := 0; start < len(chunks); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch := chunks[start:min(start+p.batchSize, len(chunks))]
		batchStart := time.Now()

		records, failures, err := p.embedBatch(ctx, client, batch, reporter)
		result.Failures.Merge(failures)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			// Chunks embedded before the abort are kept.
			if len(records) > 0 {
				if ierr := p.store.InsertVectors(context.WithoutCancel(ctx), records); ierr != nil {
					return result, vrerrors.New(vrerrors.ErrCodeIndexFailed, "failed to store embeddings", ierr)
				}
				result.Embedded += len(records)
				result.Batches++
			}
			return result, err
		}

		if len(records) == 0 {
			slog.Error("embedding_batch_failed",
				slog.Int("batch", result.Batches),
				slog.Int("chunks", len(batch)),
				slog.String("model", client.ID()))
			return result, vrerrors.New(vrerrors.ErrCodeBatchFailed, BatchFailedMessage, nil).
				WithDetail("failures", fmt.Sprintf("%d", len(failures.Failures)))
		}

		if err := p.store.InsertVectors(ctx, records); err != nil {
			return result, vrerrors.New(vrerrors.ErrCodeIndexFailed, "failed to store embeddings", err)
		}

		result.Embedded += len(records)
		result.Batches++

		slog.Debug("embedding_batch_complete",
			slog.Int("batch", result.Batches),
			slog.Int("embedded", len(records)),
			slog.Int("failed", len(batch)-len(records)),
			slog.Int64("duration_ms", time.Since(batchStart).Milliseconds()))
	}

	return result, nil
}

// embedBatch embeds one batch concurrently. It returns the successful
// records in chunk order, including when a configuration error cut the
// batch short.
func (p *Pipeline) embedBatch(ctx context.Context, client embed.Client, batch []*chunk.Chunk, reporter *progressReporter) ([]*store.Record, *FailureReport, error) {
	slots := make([]*store.Record, len(batch))
	failures := &FailureReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}

	for i, c := range batch {
		g.Go(func() error {
			vec, err := p.embedOne(gctx, client, c, reporter)
			if err != nil {
				if vrerrors.IsConfigurationError(err) {
					return err
				}
				mu.Lock()
				failures.Add(c.Path, err)
				mu.Unlock()
				return nil
			}

			slots[i] = &store.Record{
				Chunk:     *c,
				Model:     client.ID(),
				Dimension: client.Dimension(),
				Embedding: vec,
			}
			reporter.chunkDone()
			return nil
		})
	}

	err := g.Wait()

	records := make([]*store.Record, 0, len(batch))
	for _, r := range slots {
		if r != nil {
			records = append(records, r)
		}
	}
	return records, failures, err
}

// embedOne validates a chunk and embeds it, retrying per the policy.
func (p *Pipeline) embedOne(ctx context.Context, client embed.Client, c *chunk.Chunk, reporter *progressReporter) ([]float32, error) {
	if c.Content == "" {
		return nil, vrerrors.New(vrerrors.ErrCodeInvalidChunk,
			fmt.Sprintf("Chunk content is empty in file: %s", c.Path), nil)
	}
	if strings.ContainsRune(c.Content, 0) {
		return nil, vrerrors.New(vrerrors.ErrCodeInvalidChunk,
			fmt.Sprintf("Chunk content contains null bytes in file: %s", c.Path), nil)
	}

	text := chunk.EmbeddingText(c)

	policy := p.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		if vrerrors.IsRateLimited(err) {
			reporter.rateLimited()
		}
		slog.Warn("embedding_retry",
			slog.String("path", c.Path),
			slog.Int("attempt", attempt),
			slog.Int64("delay_ms", delay.Milliseconds()),
			vrerrors.LogAttr(err))
	}

	vec, err := vrerrors.RetryWithResult(ctx, policy, func() ([]float32, error) {
		return client.GetEmbedding(ctx, text)
	})
	if err != nil {
		return nil, err
	}

	if len(vec) != client.Dimension() {
		return nil, vrerrors.New(vrerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d components, model %s declares %d", len(vec), client.ID(), client.Dimension()), nil)
	}
	return vec, nil
}
