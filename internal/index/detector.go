package index

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/vaultrag/internal/store"
	"github.com/Aman-CERP/vaultrag/internal/vault"
)

// ChangeDetector decides which vault files need (re)indexing for a model.
type ChangeDetector struct {
	store store.VectorStore
}

// NewChangeDetector creates a detector reading from st.
func NewChangeDetector(st store.VectorStore) *ChangeDetector {
	return &ChangeDetector{store: st}
}

// Candidates applies filter to files and, unless reindexAll is set, keeps
// the files that are new and non-empty or modified since they were indexed.
func (d *ChangeDetector) Candidates(ctx context.Context, model store.Model, files []vault.File, filter *vault.Filter, reindexAll bool) ([]vault.File, error) {
	filtered := files
	if filter != nil {
		filtered = filter.Apply(files)
	}
	if reindexAll {
		return filtered, nil
	}

	var candidates []vault.File
	for _, f := range filtered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := d.store.GetVectorsByFilePath(ctx, f.Path, model)
		if err != nil {
			return nil, err
		}

		switch {
		case len(rows) == 0:
			// Never indexed; empty files are skipped
			if f.Size > 0 {
				candidates = append(candidates, f)
			}
		case f.MTime > rows[0].Chunk.MTime:
			candidates = append(candidates, f)
		}
	}

	slog.Debug("change_detection_complete",
		slog.Int("files", len(filtered)),
		slog.Int("candidates", len(candidates)))
	return candidates, nil
}

// Orphans returns the model's indexed paths that no longer exist in files.
func (d *ChangeDetector) Orphans(ctx context.Context, model store.Model, files []vault.File) ([]string, error) {
	indexed, err := d.store.GetIndexedFilePaths(ctx, model)
	if err != nil {
		return nil, err
	}

	live := make(map[string]struct{}, len(files))
	for _, f := range files {
		live[f.Path] = struct{}{}
	}

	var orphans []string
	for _, p := range indexed {
		if _, ok := live[p]; !ok {
			orphans = append(orphans, p)
		}
	}
	return orphans, nil
}
