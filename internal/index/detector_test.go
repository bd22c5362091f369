package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/vaultrag/internal/chunk"
	"github.com/Aman-CERP/vaultrag/internal/store"
	"github.com/Aman-CERP/vaultrag/internal/vault"
)

func seedRow(t *testing.T, st store.VectorStore, client *scriptedClient, path string, mtime int64) {
	t.Helper()
	vec, err := client.static.GetEmbedding(context.Background(), "seed row for "+path)
	require.NoError(t, err)
	require.NoError(t, st.InsertVectors(context.Background(), []*store.Record{{
		Chunk:     chunk.Chunk{Path: path, MTime: mtime, Content: "seed"},
		Model:     client.ID(),
		Dimension: client.Dimension(),
		Embedding: vec,
	}}))
}

func paths(files []vault.File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestChangeDetector_Candidates(t *testing.T) {
	// Given: a store with two indexed files
	st := newTestStore(t)
	client := newScriptedClient()
	seedRow(t, st, client, "same.md", 100)
	seedRow(t, st, client, "older.md", 100)
	d := NewChangeDetector(st)

	files := []vault.File{
		{Path: "same.md", MTime: 100, Size: 10},
		{Path: "older.md", MTime: 200, Size: 10},
		{Path: "new.md", MTime: 50, Size: 10},
		{Path: "empty.md", MTime: 50, Size: 0},
	}

	// When: detecting changes
	got, err := d.Candidates(context.Background(), client, files, nil, false)

	// Then: modified and new non-empty files are candidates
	require.NoError(t, err)
	assert.Equal(t, []string{"older.md", "new.md"}, paths(got))
}

func TestChangeDetector_ReindexAllKeepsFilteredFiles(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	seedRow(t, st, client, "notes/a.md", 100)
	d := NewChangeDetector(st)
	filter, err := vault.NewFilter([]string{"tmp/**"}, nil)
	require.NoError(t, err)

	files := []vault.File{
		{Path: "notes/a.md", MTime: 100, Size: 10},
		{Path: "tmp/b.md", MTime: 100, Size: 10},
		{Path: "empty.md", MTime: 100},
	}

	got, err := d.Candidates(context.Background(), client, files, filter, true)

	require.NoError(t, err)
	assert.Equal(t, []string{"notes/a.md", "empty.md"}, paths(got))
}

func TestChangeDetector_Orphans(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	seedRow(t, st, client, "live.md", 100)
	seedRow(t, st, client, "gone.md", 100)
	d := NewChangeDetector(st)

	orphans, err := d.Orphans(context.Background(), client, []vault.File{{Path: "live.md"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"gone.md"}, orphans)
}

func TestChangeDetector_OtherModelRowsDoNotCount(t *testing.T) {
	st := newTestStore(t)
	client := newScriptedClient()
	seedRow(t, st, client, "a.md", 100)
	other := newScriptedClient()
	other.id = "other-model"
	d := NewChangeDetector(st)

	got, err := d.Candidates(context.Background(), other, []vault.File{{Path: "a.md", MTime: 100, Size: 1}}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, paths(got))

	orphans, err := d.Orphans(context.Background(), other, nil)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}
