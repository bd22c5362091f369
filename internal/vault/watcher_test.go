package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string, opts WatcherOptions) *Watcher {
	t.Helper()
	w, err := NewWatcher(root, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	go func() { _ = w.Run(ctx) }()
	return w
}

func waitBatch(t *testing.T, w *Watcher) []FileEvent {
	t.Helper()
	select {
	case events := <-w.Events():
		return events
	case err := <-w.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout - no events received")
	}
	return nil
}

func TestWatcher_DetectsNewNote(t *testing.T) {
	// Given: a watched vault
	root := t.TempDir()
	w := startWatcher(t, root, WatcherOptions{Debounce: 50 * time.Millisecond})

	// When: a note is created
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644))

	// Then: one batch names it
	events := waitBatch(t, w)
	require.Len(t, events, 1)
	assert.Equal(t, "new.md", events[0].Path)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestWatcher_IgnoresNonNotesAndDataDir(t *testing.T) {
	// Given: a vault with a data dir
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, DataDirName), 0o755))
	w := startWatcher(t, root, WatcherOptions{Debounce: 50 * time.Millisecond})

	// When: only ignored files change, followed by one note
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, DataDirName, "vectors.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.md"), []byte("x"), 0o644))

	// Then: the batch holds only the note
	events := waitBatch(t, w)
	require.Len(t, events, 1)
	assert.Equal(t, "kept.md", events[0].Path)
}

func TestWatcher_FilterExcludes(t *testing.T) {
	root := t.TempDir()
	filter, err := NewFilter([]string{"drafts/**"}, nil)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "drafts"), 0o755))
	w := startWatcher(t, root, WatcherOptions{Debounce: 50 * time.Millisecond, Filter: filter})

	require.NoError(t, os.WriteFile(filepath.Join(root, "drafts", "wip.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "final.md"), []byte("x"), 0o644))

	events := waitBatch(t, w)
	require.Len(t, events, 1)
	assert.Equal(t, "final.md", events[0].Path)
}

func TestWatcher_WatchesNewFolders(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, WatcherOptions{Debounce: 100 * time.Millisecond})

	// Folder creation is itself an event
	require.NoError(t, os.MkdirAll(filepath.Join(root, "topic"), 0o755))
	first := waitBatch(t, w)
	require.NotEmpty(t, first)
	assert.True(t, first[0].IsDir)

	require.NoError(t, os.WriteFile(filepath.Join(root, "topic", "inner.md"), []byte("x"), 0o644))
	events := waitBatch(t, w)
	require.NotEmpty(t, events)
	assert.Equal(t, "topic/inner.md", events[0].Path)
}

func TestWatcher_DeletedNote(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "old.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	w := startWatcher(t, root, WatcherOptions{Debounce: 50 * time.Millisecond})

	require.NoError(t, os.Remove(path))

	events := waitBatch(t, w)
	require.Len(t, events, 1)
	assert.Equal(t, OpDelete, events[0].Operation)
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), WatcherOptions{})
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}
