package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIndexingModel_ShowsAllStages(t *testing.T) {
	tracker := NewProgressTracker()
	model := newIndexingModel(tracker, "/vaults/notes")
	model.styles = NoColorStyles()

	view := model.View()

	for _, name := range []string{"Scan", "Chunk", "Embed", "Save"} {
		assert.Contains(t, view, name)
	}
	assert.Contains(t, view, "vaultrag index • /vaults/notes")
}

func TestIndexingModel_EmbeddingProgress(t *testing.T) {
	// Given: an embedding stage at 50 of 200 chunks from 9 files
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{Stage: StageEmbedding, Current: 50, Total: 200, TotalFiles: 9})
	model := newIndexingModel(tracker, "")
	model.styles = NoColorStyles()

	// When: rendering
	view := model.View()

	// Then: counts and percentage are shown
	assert.Contains(t, view, "50 / 200 chunks from 9 files")
	assert.Contains(t, view, "25%")
	assert.NotContains(t, view, "rate limited")
}

func TestIndexingModel_RateLimitWaiting(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{Stage: StageEmbedding, Current: 5, Total: 20, Waiting: true})
	model := newIndexingModel(tracker, "")
	model.styles = NoColorStyles()

	view := model.View()

	assert.Contains(t, view, "rate limited, waiting to retry")
	assert.Contains(t, view, "1 rate limits")
}

func TestIndexingModel_UnknownTotalShowsStageName(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.Apply(ProgressEvent{Stage: StageChunking})
	model := newIndexingModel(tracker, "")

	assert.Contains(t, model.View(), "Chunking...")
}

func TestIndexingModel_ErrorCounters(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.AddError(ErrorEvent{File: "a.md", Err: assert.AnError})
	tracker.AddError(ErrorEvent{File: "b.md", Err: assert.AnError})
	tracker.AddError(ErrorEvent{File: "c.md", Err: assert.AnError, IsWarn: true})
	model := newIndexingModel(tracker, "")
	model.styles = NoColorStyles()

	view := model.View()

	assert.Contains(t, view, "2 errors")
	assert.Contains(t, view, "1 warnings")
}

func TestIndexingModel_CompleteMessageQuits(t *testing.T) {
	// Given: a running model
	model := newIndexingModel(NewProgressTracker(), "")
	model.styles = NoColorStyles()

	// When: the run completes
	_, cmd := model.Update(completeMsg(CompletionStats{
		Files:    3,
		Chunks:   8,
		Embedded: 7,
		Deleted:  2,
		Duration: 2 * time.Second,
		Errors:   1,
		Embedder: EmbedderInfo{Backend: "static", Model: "static-hash-256", Dimensions: 256},
	}))

	// Then: the summary is shown and the program is told to quit
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	view := model.View()
	assert.Contains(t, view, "Indexing Complete")
	assert.Contains(t, view, "7/8 embedded")
	assert.Contains(t, view, "Removed:")
	assert.Contains(t, view, "static (static-hash-256, 256 dims)")
	assert.Contains(t, view, "1 errors")
}

func TestIndexingModel_QuitCallsOnQuit(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")
	called := false
	model.onQuit = func() { called = true }

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.True(t, called)
	assert.Equal(t, "Cancelled.\n", model.View())
}

func TestIndexingModel_WindowResize(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")

	model.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 20, model.bar.Width)

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 100, model.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{4 * time.Second, "4s"},
		{2 * time.Minute, "2m"},
		{135 * time.Second, "2m 15s"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestShortenPath(t *testing.T) {
	tests := []struct {
		path  string
		limit int
		want  string
	}{
		{"notes/a.md", 50, "notes/a.md"},
		{"", 50, ""},
		{"projects/2024/research/deeply/nested/meeting.md", 20, "…/nested/meeting.md"},
		{"projects/2024/weekly-planning-meeting.md", 12, "…-meeting.md"},
		{"a/b.md", 1, "…"},
	}

	for _, tt := range tests {
		got := shortenPath(tt.path, tt.limit)
		assert.Equal(t, tt.want, got, tt.path)
		assert.LessOrEqual(t, len([]rune(got)), max(tt.limit, 1))
	}
}
