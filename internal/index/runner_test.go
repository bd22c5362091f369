package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/vaultrag/internal/config"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/ui"
)

// MockRenderer implements ui.Renderer for testing. The Runner's state
// poller calls it from another goroutine.
type MockRenderer struct {
	mu              sync.Mutex
	progressEvents  []ui.ProgressEvent
	errorEvents     []ui.ErrorEvent
	completeCalled  bool
	completionStats ui.CompletionStats
}

func (m *MockRenderer) Start(ctx context.Context) error { return nil }
func (m *MockRenderer) Stop() error                     { return nil }

func (m *MockRenderer) UpdateProgress(event ui.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressEvents = append(m.progressEvents, event)
}

func (m *MockRenderer) AddError(event ui.ErrorEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorEvents = append(m.errorEvents, event)
}

func (m *MockRenderer) Complete(stats ui.CompletionStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalled = true
	m.completionStats = stats
}

func (m *MockRenderer) events() []ui.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ui.ProgressEvent(nil), m.progressEvents...)
}

func (m *MockRenderer) errors() []ui.ErrorEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ui.ErrorEvent(nil), m.errorEvents...)
}

func newTestRunner(t *testing.T, v *memVault, st *savingStore, client *scriptedClient, r ui.Renderer) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerDependencies{
		Renderer: r,
		Config:   config.NewConfig(),
		Vault:    v,
		Store:    st,
		Client:   client,
		Backend:  "static",
	})
	require.NoError(t, err)
	return runner
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	full := RunnerDependencies{
		Renderer: &MockRenderer{},
		Config:   config.NewConfig(),
		Vault:    newMemVault(),
		Store:    newTestStore(t),
		Client:   newScriptedClient(),
	}

	tests := []struct {
		name    string
		mutate  func(d *RunnerDependencies)
		wantErr string
	}{
		{"renderer", func(d *RunnerDependencies) { d.Renderer = nil }, "renderer is required"},
		{"config", func(d *RunnerDependencies) { d.Config = nil }, "config is required"},
		{"vault", func(d *RunnerDependencies) { d.Vault = nil }, "vault is required"},
		{"store", func(d *RunnerDependencies) { d.Store = nil }, "vector store is required"},
		{"client", func(d *RunnerDependencies) { d.Client = nil }, "embedding client is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.mutate(&deps)

			r, err := NewRunner(deps)

			require.Error(t, err)
			assert.Nil(t, r)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	r, err := NewRunner(full)
	require.NoError(t, err)
	assert.NotNil(t, r.Orchestrator())
}

func TestRunner_Run_ReportsProgressAndSummary(t *testing.T) {
	// Given: a vault with two notes
	v := newMemVault()
	v.put("a.md", "# Alpha\nalpha note", 100)
	v.put("b.md", "# Beta\nbeta note\n## Gamma\ngamma note", 100)
	st := newTestStore(t)
	client := newScriptedClient()
	renderer := &MockRenderer{}
	runner := newTestRunner(t, v, st, client, renderer)

	// When: running
	result, err := runner.Run(context.Background(), RunnerConfig{PollInterval: time.Millisecond})

	// Then: the run succeeded and the summary matches the result
	require.NoError(t, err)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, 3, result.Embedded)

	renderer.mu.Lock()
	stats := renderer.completionStats
	completed := renderer.completeCalled
	renderer.mu.Unlock()
	require.True(t, completed)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 3, stats.Embedded)
	assert.Zero(t, stats.Errors)
	assert.Equal(t, ui.EmbedderInfo{Backend: "static", Model: client.ID(), Dimensions: client.Dimension()}, stats.Embedder)

	// Then: stages never go backwards and embedding ends at 3/3
	events := renderer.events()
	require.NotEmpty(t, events)
	var lastEmbed ui.ProgressEvent
	for i, e := range events {
		if i > 0 {
			assert.GreaterOrEqual(t, e.Stage, events[i-1].Stage)
		}
		if e.Stage == ui.StageEmbedding {
			lastEmbed = e
		}
	}
	assert.Equal(t, 3, lastEmbed.Current)
	assert.Equal(t, 3, lastEmbed.Total)
	assert.Equal(t, 2, lastEmbed.TotalFiles)
}

func TestRunner_Run_ForwardsFailures(t *testing.T) {
	// Given: one chunk the provider rejects
	v := newMemVault()
	v.put("good.md", "good note", 100)
	v.put("bad.md", "poison note", 100)
	st := newTestStore(t)
	client := newScriptedClient()
	client.script = func(_ int, text string) ([]float32, error) {
		if strings.Contains(text, "poison") {
			return nil, vrerrors.ProviderError("static", 500, "rejected")
		}
		return nil, nil
	}
	renderer := &MockRenderer{}
	runner := newTestRunner(t, v, st, client, renderer)

	// When: running
	_, err := runner.Run(context.Background(), RunnerConfig{})

	// Then: the run succeeds and the failed file is reported
	require.NoError(t, err)
	errs := renderer.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "bad.md", errs[0].File)
	assert.False(t, errs[0].IsWarn)
	assert.Equal(t, 1, renderer.completionStats.Errors)
}

func TestRunner_Run_SaveFailureIsWarning(t *testing.T) {
	v := newMemVault()
	v.put("a.md", "alpha note", 100)
	st := newTestStore(t)
	st.saveErr = errors.New("disk full")
	renderer := &MockRenderer{}
	runner := newTestRunner(t, v, st, newScriptedClient(), renderer)

	result, err := runner.Run(context.Background(), RunnerConfig{})

	require.NoError(t, err)
	require.Error(t, result.SaveErr)
	errs := renderer.errors()
	require.Len(t, errs, 1)
	assert.True(t, errs[0].IsWarn)
	assert.Contains(t, errs[0].Err.Error(), "disk full")
	assert.Equal(t, 1, renderer.completionStats.Warnings)
}

func TestRunner_Run_FatalErrorIsReported(t *testing.T) {
	// Given: every file fails to read
	v := newMemVault()
	v.put("a.md", "alpha note", 100)
	v.failRead("a.md", errors.New("permission denied"))
	renderer := &MockRenderer{}
	runner := newTestRunner(t, v, newTestStore(t), newScriptedClient(), renderer)

	// When: running
	_, err := runner.Run(context.Background(), RunnerConfig{})

	// Then: the fatal error is returned and shown after the file failure
	require.Error(t, err)
	assert.Equal(t, vrerrors.ErrCodeChunkingFailed, vrerrors.GetCode(err))
	errs := renderer.errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "a.md", errs[0].File)
	assert.Empty(t, errs[1].File)
	assert.True(t, renderer.completeCalled)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Indexing.ChunkSize = 500
	cfg.Indexing.MaxHeaderLevel = 2
	cfg.Indexing.Exclude = []string{"templates/**"}
	cfg.Indexing.Include = []string{"notes/**"}

	opts := OptionsFromConfig(cfg, true)

	assert.Equal(t, Options{
		ChunkSize:       500,
		MaxHeaderLevel:  2,
		ExcludePatterns: []string{"templates/**"},
		IncludePatterns: []string{"notes/**"},
		ReindexAll:      true,
	}, opts)
}

func TestStageReporter_StaysMonotonic(t *testing.T) {
	renderer := &MockRenderer{}
	s := &stageReporter{renderer: renderer, last: -1}

	s.enter(ui.StageChunking)
	s.enter(ui.StageDetermining) // late poll, dropped
	s.embedding(Progress{CompletedChunks: 1, TotalChunks: 2})
	s.enter(ui.StageChunking) // dropped
	s.enter(ui.StagePersisting)
	s.embedding(Progress{CompletedChunks: 2, TotalChunks: 2}) // dropped

	var got []ui.Stage
	for _, e := range renderer.events() {
		got = append(got, e.Stage)
	}
	assert.Equal(t, []ui.Stage{ui.StageChunking, ui.StageEmbedding, ui.StagePersisting}, got)
}

func TestUIStage(t *testing.T) {
	tests := []struct {
		state State
		want  ui.Stage
		ok    bool
	}{
		{StateDeterminingFiles, ui.StageDetermining, true},
		{StateChunking, ui.StageChunking, true},
		{StateEmbedding, ui.StageEmbedding, true},
		{StatePersisting, ui.StagePersisting, true},
		{StateIdle, 0, false},
		{StateFailed, 0, false},
	}
	for _, tt := range tests {
		got, ok := uiStage(tt.state)
		assert.Equal(t, tt.ok, ok, tt.state.String())
		if tt.ok {
			assert.Equal(t, tt.want, got)
		}
	}
}
