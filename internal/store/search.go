package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// exactSearchRows is the largest row count ranked exactly in memory.
// Larger models go through the HNSW graph and are approximate.
var exactSearchRows = 50_000

const (
	// minCandidates is the smallest first-round candidate pool of an
	// approximate search.
	minCandidates = 32

	// rescoreSlack extra rows absorb float32 rounding at the cut-off
	// before exact re-scoring.
	rescoreSlack = 8
)

// PerformSimilaritySearch finds the model's records closest to query.
//
// Up to exactSearchRows indexed rows, every in-scope vector is ranked, so
// the result is the true top Limit. Above that the HNSW graph supplies
// candidates: the pool doubles until Limit results survive scoring and
// filtering, or the graph is exhausted and a sequential scan answers.
// Either way results carry exact cosine scores of the stored embeddings.
func (s *SQLiteStore) PerformSimilaritySearch(ctx context.Context, query []float32, model Model, opts SearchOptions) ([]*SearchResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(query) != model.Dimension() {
		return nil, vrerrors.New(vrerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d components, model %s expects %d", len(query), model.ID(), model.Dimension()), nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}

	if _, indexed := BucketFor(model.Dimension()); indexed {
		rows := s.buckets.Rows(model.ID(), model.Dimension())
		if rows <= exactSearchRows {
			return s.searchExact(ctx, query, model, opts, rows)
		}
		results, complete, err := s.searchIndexed(ctx, query, model, opts)
		if err != nil {
			return nil, err
		}
		if complete {
			return results, nil
		}
	}

	return s.searchScan(ctx, query, model, opts)
}

func keepFor(model Model, scope Scope) func(bucketEntry) bool {
	return func(e bucketEntry) bool {
		return e.model == model.ID() && e.dim == model.Dimension() && scope.Contains(e.path)
	}
}

// searchExact ranks the in-memory vectors of the model and loads only the
// winners from SQLite. Rows missing from the index (zero vectors) score 0
// against any query, so when MinSimilarity admits 0 and such rows exist,
// or the query itself is zero, the scan answers instead.
func (s *SQLiteStore) searchExact(ctx context.Context, query []float32, model Model, opts SearchOptions, indexed int) ([]*SearchResult, error) {
	if opts.MinSimilarity <= 0 {
		total, err := s.countRows(ctx, model)
		if err != nil {
			return nil, err
		}
		if total > indexed || isZeroVector(query) {
			return s.searchScan(ctx, query, model, opts)
		}
	}

	cands := s.buckets.exact(model.Dimension(), query, opts.Limit+rescoreSlack, keepFor(model, opts.Scope))
	records, err := s.recordsByID(ctx, cands)
	if err != nil {
		return nil, err
	}
	results := scoreRecords(query, records, opts)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	slog.Debug("similarity_search",
		slog.String("model", model.ID()),
		slog.String("mode", "exact"),
		slog.Int("rows", indexed),
		slog.Int("results", len(results)))
	return results, nil
}

func (s *SQLiteStore) countRows(ctx context.Context, model Model) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE model = ? AND dimension = ?`,
		model.ID(), model.Dimension()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func (s *SQLiteStore) searchIndexed(ctx context.Context, query []float32, model Model, opts SearchOptions) ([]*SearchResult, bool, error) {
	keep := keepFor(model, opts.Scope)

	for k := max(opts.Limit*4, minCandidates); ; k *= 2 {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		cands, exhausted := s.buckets.search(model.Dimension(), query, k, keep)
		if exhausted {
			return nil, false, nil
		}

		records, err := s.recordsByID(ctx, cands)
		if err != nil {
			return nil, false, err
		}
		results := scoreRecords(query, records, opts)
		if len(results) >= opts.Limit {
			slog.Debug("similarity_search",
				slog.String("model", model.ID()),
				slog.String("mode", "hnsw"),
				slog.Int("candidates", k),
				slog.Int("results", opts.Limit))
			return results[:opts.Limit], true, nil
		}
	}
}

func (s *SQLiteStore) searchScan(ctx context.Context, query []float32, model Model, opts SearchOptions) ([]*SearchResult, error) {
	records, err := s.queryRecords(ctx, `
		SELECT id, path, mtime, content, metadata, model, dimension, embedding
		FROM embeddings
		WHERE model = ? AND dimension = ?`, model.ID(), model.Dimension())
	if err != nil {
		return nil, err
	}

	inScope := records[:0]
	for _, r := range records {
		if opts.Scope.Contains(r.Chunk.Path) {
			inScope = append(inScope, r)
		}
	}

	results := scoreRecords(query, inScope, opts)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *SQLiteStore) recordsByID(ctx context.Context, cands []candidate) ([]*Record, error) {
	ids := make([]int64, len(cands))
	for i, c := range cands {
		ids[i] = c.id
	}

	var records []*Record
	for _, batch := range batches(ids, maxQueryParams) {
		rs, err := s.queryRecords(ctx, `
			SELECT id, path, mtime, content, metadata, model, dimension, embedding
			FROM embeddings
			WHERE id IN (`+placeholders(len(batch))+`)`, toArgs(batch)...)
		if err != nil {
			return nil, err
		}
		records = append(records, rs...)
	}
	return records, nil
}

// scoreRecords keeps records scoring at least MinSimilarity, best first.
// Ties are broken by row ID.
func scoreRecords(query []float32, records []*Record, opts SearchOptions) []*SearchResult {
	results := make([]*SearchResult, 0, len(records))
	for _, r := range records {
		score := cosineSimilarity(query, r.Embedding)
		if score < opts.MinSimilarity {
			continue
		}
		results = append(results, &SearchResult{Record: *r, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}
