package index

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/vaultrag/internal/embed"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/store"
	"github.com/Aman-CERP/vaultrag/internal/vault"
)

// memVault is an in-memory vault.Vault.
type memVault struct {
	mu       sync.Mutex
	files    map[string]memFile
	readErrs map[string]error
}

type memFile struct {
	content string
	mtime   int64
}

func newMemVault() *memVault {
	return &memVault{files: make(map[string]memFile), readErrs: make(map[string]error)}
}

func (v *memVault) put(path, content string, mtime int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.files[path] = memFile{content: content, mtime: mtime}
}

func (v *memVault) remove(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.files, path)
}

func (v *memVault) failRead(path string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readErrs[path] = err
}

func (v *memVault) ListMarkdownFiles(ctx context.Context) ([]vault.File, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	files := make([]vault.File, 0, len(v.files))
	for p, f := range v.files {
		files = append(files, vault.File{Path: p, MTime: f.mtime, Size: int64(len(f.content))})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (v *memVault) ReadFile(ctx context.Context, f vault.File) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.readErrs[f.Path]; err != nil {
		return nil, err
	}
	mf, ok := v.files[f.Path]
	if !ok {
		return nil, vrerrors.New(vrerrors.ErrCodeFileNotFound, f.Path, os.ErrNotExist)
	}
	return []byte(mf.content), nil
}

// scriptedClient is an embed.Client whose responses can be scripted per
// call. By default it returns static hash embeddings.
type scriptedClient struct {
	mu     sync.Mutex
	id     string
	dim    int
	calls  int
	texts  []string
	script func(call int, text string) ([]float32, error)
	static *embed.StaticClient
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{id: embed.StaticModelID, dim: embed.StaticDimensions, static: embed.NewStaticClient()}
}

func (c *scriptedClient) ID() string     { return c.id }
func (c *scriptedClient) Dimension() int { return c.dim }

func (c *scriptedClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.calls++
	call := c.calls
	c.texts = append(c.texts, text)
	script := c.script
	c.mu.Unlock()

	if script != nil {
		vec, err := script(call, text)
		if vec != nil || err != nil {
			return vec, err
		}
	}
	return c.static.GetEmbedding(ctx, text)
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *scriptedClient) recordedTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	copy(out, c.texts)
	return out
}

// savingStore counts Save calls and can fail them.
type savingStore struct {
	*store.SQLiteStore
	mu      sync.Mutex
	saves   int
	saveErr error
}

func (s *savingStore) Save(ctx context.Context) error {
	s.mu.Lock()
	s.saves++
	err := s.saveErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.SQLiteStore.Save(ctx)
}

func (s *savingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newTestStore(t *testing.T) *savingStore {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), store.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return &savingStore{SQLiteStore: st}
}

// fastRetry retries rate limits with millisecond delays.
func fastRetry() *vrerrors.RetryPolicy {
	p := vrerrors.RateLimitPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 4 * time.Millisecond
	return &p
}

// progressLog records progress callbacks.
type progressLog struct {
	mu      sync.Mutex
	updates []Progress
}

func (l *progressLog) record(p Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, p)
}

func (l *progressLog) all() []Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Progress, len(l.updates))
	copy(out, l.updates)
	return out
}

func countRows(t *testing.T, st store.VectorStore, m store.Model, path string) int {
	t.Helper()
	rows, err := st.GetVectorsByFilePath(context.Background(), path, m)
	require.NoError(t, err)
	return len(rows)
}
