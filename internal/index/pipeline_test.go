package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/vaultrag/internal/chunk"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

func makeChunks(n int, pathFmt string) []*chunk.Chunk {
	chunks := make([]*chunk.Chunk, n)
	for i := range chunks {
		chunks[i] = &chunk.Chunk{
			Path:    fmt.Sprintf(pathFmt, i),
			MTime:   1000,
			Content: fmt.Sprintf("chunk number %d about topic %d", i, i%7),
			Metadata: chunk.Metadata{
				StartLine: 1, EndLine: 1, ParentStartLine: 1, ParentEndLine: 1,
			},
		}
	}
	return chunks
}

func TestPipeline_EmbedsAndInsertsAllChunks(t *testing.T) {
	// Given: 250 chunks and a batch size of 100
	st := newTestStore(t)
	client := newScriptedClient()
	p := NewPipeline(st, PipelineOptions{RetryPolicy: fastRetry()})
	chunks := makeChunks(250, "notes/%03d.md")
	log := &progressLog{}

	// When: the pipeline runs
	res, err := p.Run(context.Background(), client, chunks, 250, log.record)

	// Then: every chunk is stored, in three batches
	require.NoError(t, err)
	assert.Equal(t, 250, res.Embedded)
	assert.Equal(t, 3, res.Batches)
	assert.True(t, res.Failures.Empty())
	assert.Equal(t, 1, countRows(t, st, client, "notes/000.md"))
	assert.Equal(t, 1, countRows(t, st, client, "notes/249.md"))

	// And: progress starts at zero and ends complete
	updates := log.all()
	require.Len(t, updates, 251)
	assert.Equal(t, Progress{CompletedChunks: 0, TotalChunks: 250, TotalFiles: 250}, updates[0])
	assert.Equal(t, Progress{CompletedChunks: 250, TotalChunks: 250, TotalFiles: 250}, updates[250])
}

func TestPipeline_EmbeddingTextIncludesHeaderPath(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	p := NewPipeline(st, PipelineOptions{})
	c := &chunk.Chunk{Path: "a.md", Content: "content-A", Metadata: chunk.Metadata{HeaderPath: "A"}}

	_, err := p.Run(context.Background(), client, []*chunk.Chunk{c}, 1, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"Header: A\n\ncontent-A"}, client.recordedTexts())
}

func TestPipeline_RetriesRateLimitsThenSucceeds(t *testing.T) {
	// Given: a provider that rate limits the first 3 calls
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(call int, _ string) ([]float32, error) {
		if call <= 3 {
			return nil, vrerrors.RateLimited("test", errors.New("429 Too Many Requests"))
		}
		return nil, nil
	}
	p := NewPipeline(st, PipelineOptions{RetryPolicy: fastRetry()})
	log := &progressLog{}

	// When: one chunk is embedded
	res, err := p.Run(context.Background(), client, makeChunks(1, "a%d.md"), 1, log.record)

	// Then: it succeeds on the fourth call
	require.NoError(t, err)
	assert.Equal(t, 1, res.Embedded)
	assert.Equal(t, 4, client.callCount())

	// And: rate-limit waiting was reported
	waiting := 0
	for _, u := range log.all() {
		if u.WaitingForRateLimit {
			waiting++
		}
	}
	assert.Equal(t, 3, waiting)
}

func TestPipeline_HTTP429IsRetried(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(call int, _ string) ([]float32, error) {
		if call == 1 {
			return nil, vrerrors.ProviderError("test", 429, "slow down")
		}
		return nil, nil
	}
	p := NewPipeline(st, PipelineOptions{RetryPolicy: fastRetry()})

	res, err := p.Run(context.Background(), client, makeChunks(1, "a%d.md"), 1, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Embedded)
	assert.Equal(t, 2, client.callCount())
}

func TestPipeline_ExhaustedRateLimitFailsTheChunk(t *testing.T) {
	// Given: one chunk that is always rate limited, next to healthy chunks
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(_ int, text string) ([]float32, error) {
		if strings.Contains(text, "chunk number 0 ") {
			return nil, vrerrors.RateLimited("test", nil)
		}
		return nil, nil
	}
	p := NewPipeline(st, PipelineOptions{RetryPolicy: fastRetry()})

	// When: running
	res, err := p.Run(context.Background(), client, makeChunks(3, "f%d.md"), 3, nil)

	// Then: the run succeeds with one reported failure
	require.NoError(t, err)
	assert.Equal(t, 2, res.Embedded)
	require.Len(t, res.Failures.Failures, 1)
	assert.Equal(t, "f0.md", res.Failures.Failures[0].Path)
	assert.True(t, vrerrors.IsRateLimited(res.Failures.Failures[0].Err))
	assert.Equal(t, 0, countRows(t, st, client, "f0.md"))
}

func TestPipeline_WholeBatchFailureStopsTheRun(t *testing.T) {
	// Given: 150 chunks where every call fails with a non-retryable error
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(int, string) ([]float32, error) {
		return nil, errors.New("model exploded")
	}
	p := NewPipeline(st, PipelineOptions{RetryPolicy: fastRetry()})

	// When: running
	res, err := p.Run(context.Background(), client, makeChunks(150, "f%03d.md"), 150, nil)

	// Then: the first batch aborts the run
	require.Error(t, err)
	assert.Contains(t, err.Error(), "All chunks in batch failed")
	assert.Equal(t, vrerrors.ErrCodeBatchFailed, vrerrors.GetCode(err))

	// And: the second batch was never attempted
	assert.Equal(t, 100, client.callCount())
	assert.Len(t, res.Failures.Failures, 100)
	assert.Equal(t, 0, res.Batches)
}

func TestPipeline_EarlierBatchesStayCommitted(t *testing.T) {
	// Given: a second batch that fails completely
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(_ int, text string) ([]float32, error) {
		if strings.Contains(text, "late") {
			return nil, errors.New("boom")
		}
		return nil, nil
	}
	chunks := makeChunks(2, "early%d.md")
	for _, c := range makeChunks(2, "late%d.md") {
		c.Content = "late " + c.Content
		chunks = append(chunks, c)
	}
	p := NewPipeline(st, PipelineOptions{BatchSize: 2, RetryPolicy: fastRetry()})

	// When: running
	res, err := p.Run(context.Background(), client, chunks, 4, nil)

	// Then: the run fails but the first batch is in the store
	require.Error(t, err)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 1, countRows(t, st, client, "early0.md"))
	assert.Equal(t, 0, countRows(t, st, client, "late0.md"))
}

func TestPipeline_ConfigurationErrorShortCircuits(t *testing.T) {
	// Given: a provider without credentials
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(int, string) ([]float32, error) {
		return nil, vrerrors.MissingCredentials("openai", "OPENAI_API_KEY")
	}
	p := NewPipeline(st, PipelineOptions{RetryPolicy: fastRetry()})

	// When: running
	_, err := p.Run(context.Background(), client, makeChunks(5, "f%d.md"), 5, nil)

	// Then: the configuration error is returned as is
	require.Error(t, err)
	assert.True(t, vrerrors.IsConfigurationError(err))
	assert.Equal(t, vrerrors.KindMissingCredentials, vrerrors.KindOf(err))
	assert.NotContains(t, err.Error(), "All chunks in batch failed")
}

func TestPipeline_RejectsEmptyAndNulChunksWithoutCallingProvider(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	chunks := []*chunk.Chunk{
		{Path: "empty.md", Content: ""},
		{Path: "nul.md", Content: "bad\x00content"},
		{Path: "ok.md", Content: "fine content"},
	}
	p := NewPipeline(st, PipelineOptions{RetryPolicy: fastRetry()})

	res, err := p.Run(context.Background(), client, chunks, 3, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 1, res.Embedded)
	require.Len(t, res.Failures.Failures, 2)
	for _, f := range res.Failures.Failures {
		assert.Equal(t, vrerrors.ErrCodeInvalidChunk, vrerrors.GetCode(f.Err))
	}
}

func TestPipeline_DimensionMismatchFailsTheChunk(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(call int, _ string) ([]float32, error) {
		if call == 1 {
			return []float32{1, 2, 3}, nil
		}
		return nil, nil
	}
	p := NewPipeline(st, PipelineOptions{Concurrency: 1, RetryPolicy: fastRetry()})

	res, err := p.Run(context.Background(), client, makeChunks(2, "f%d.md"), 2, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Embedded)
	require.Len(t, res.Failures.Failures, 1)
	assert.Equal(t, vrerrors.ErrCodeDimensionMismatch, vrerrors.GetCode(res.Failures.Failures[0].Err))
}

func TestPipeline_CancelledContext(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	p := NewPipeline(st, PipelineOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, client, makeChunks(3, "f%d.md"), 3, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.callCount())
}

func TestPipeline_CancelMidBatchKeepsEmbeddedChunks(t *testing.T) {
	// Given: a run cancelled while its only batch is half done
	st := newTestStore(t)
	client := newScriptedClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.script = func(call int, _ string) ([]float32, error) {
		if call == 3 {
			cancel()
			return nil, context.Canceled
		}
		return nil, nil
	}
	p := NewPipeline(st, PipelineOptions{BatchSize: 10, Concurrency: 1, RetryPolicy: fastRetry()})

	// When: running five chunks
	res, err := p.Run(ctx, client, makeChunks(5, "f%d.md"), 5, nil)

	// Then: the two finished chunks are stored and the rest are not
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Embedded)
	assert.Equal(t, 1, countRows(t, st, client, "f0.md"))
	assert.Equal(t, 1, countRows(t, st, client, "f1.md"))
	assert.Equal(t, 0, countRows(t, st, client, "f2.md"))
	assert.Equal(t, 0, countRows(t, st, client, "f4.md"))
}

func TestPipeline_ConfigurationErrorKeepsEmbeddedChunks(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(call int, _ string) ([]float32, error) {
		if call == 2 {
			return nil, vrerrors.MissingCredentials("openai", "OPENAI_API_KEY")
		}
		return nil, nil
	}
	p := NewPipeline(st, PipelineOptions{Concurrency: 1, RetryPolicy: fastRetry()})

	res, err := p.Run(context.Background(), client, makeChunks(4, "f%d.md"), 4, nil)

	require.Error(t, err)
	assert.True(t, vrerrors.IsConfigurationError(err))
	assert.Equal(t, 1, res.Embedded)
	assert.Equal(t, 1, countRows(t, st, client, "f0.md"))
}

func TestPipeline_ProgressCallbacksAreSerialized(t *testing.T) {
	// Given: a callback that would race if called concurrently
	st := newTestStore(t)
	client := newScriptedClient()
	p := NewPipeline(st, PipelineOptions{RetryPolicy: fastRetry()})
	inFlight := 0
	maxInFlight := 0
	last := 0
	monotonic := true

	// When: 100 chunks are embedded concurrently
	_, err := p.Run(context.Background(), client, makeChunks(100, "f%d.md"), 100, func(pr Progress) {
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		if pr.CompletedChunks < last {
			monotonic = false
		}
		last = pr.CompletedChunks
		inFlight--
	})

	// Then: at most one callback runs at a time and counts only grow
	require.NoError(t, err)
	assert.Equal(t, 1, maxInFlight)
	assert.True(t, monotonic)
	assert.Equal(t, 100, last)
}

func TestFailureReport_String(t *testing.T) {
	r := &FailureReport{}
	assert.Equal(t, "", r.String())

	r.Add("a.md", errors.New("first"))
	r.Add("b.md", errors.New("second"))

	assert.Equal(t, "Failed to process 2 file(s):\n\nFile: a.md\nError: first\n\nFile: b.md\nError: second", r.String())
	assert.Equal(t, []string{"a.md", "b.md"}, r.Files())
}
