// Package store persists chunk embeddings in SQLite and serves cosine
// similarity search over them through per-dimension HNSW bucket indexes.
package store

import (
	"context"
	"strings"

	"github.com/Aman-CERP/vaultrag/internal/chunk"
)

// Model identifies the embedding model a store operation is scoped to.
// embed.Client satisfies it.
type Model interface {
	ID() string
	Dimension() int
}

type modelRef struct {
	id  string
	dim int
}

func (m modelRef) ID() string     { return m.id }
func (m modelRef) Dimension() int { return m.dim }

// NewModel returns a Model for callers that have no embedding client, such
// as maintenance commands working from stored stats.
func NewModel(id string, dimension int) Model {
	return modelRef{id: id, dim: dimension}
}

// Record is a chunk together with its embedding.
type Record struct {
	ID        int64 // Assigned on insert
	Chunk     chunk.Chunk
	Model     string
	Dimension int
	Embedding []float32
}

// Scope restricts a search to exact file paths and folder prefixes. An
// empty scope matches everything.
type Scope struct {
	Files   []string
	Folders []string
}

// IsEmpty reports whether the scope places no restriction.
func (s Scope) IsEmpty() bool {
	return len(s.Files) == 0 && len(s.Folders) == 0
}

// Contains reports whether path lies inside the scope.
func (s Scope) Contains(path string) bool {
	if s.IsEmpty() {
		return true
	}
	for _, f := range s.Files {
		if path == f {
			return true
		}
	}
	for _, folder := range s.Folders {
		folder = strings.Trim(folder, "/")
		if folder == "" || strings.HasPrefix(path, folder+"/") {
			return true
		}
	}
	return false
}

// SearchOptions controls PerformSimilaritySearch.
type SearchOptions struct {
	MinSimilarity float64
	Limit         int
	Scope         Scope
}

// Default search options
const (
	DefaultSearchLimit   = 10
	DefaultMinSimilarity = 0.0
)

// SearchResult is a matched record and its cosine similarity to the query.
type SearchResult struct {
	Record
	Score float64
}

// EmbeddingStats summarizes the rows stored for one model and dimension.
type EmbeddingStats struct {
	Model          string `json:"model"`
	Dimension      int    `json:"dimension"`
	RowCount       int    `json:"rowCount"`
	TotalDataBytes int64  `json:"totalDataBytes"`
}

// VectorStore persists embeddings and answers similarity queries. Every
// operation that takes a Model only sees rows with that model ID and
// dimension.
type VectorStore interface {
	// InsertVectors appends records in one transaction.
	InsertVectors(ctx context.Context, records []*Record) error

	// DeleteVectorsForFiles removes the model's rows for the given paths.
	DeleteVectorsForFiles(ctx context.Context, paths []string, model Model) error

	// ClearAllVectors removes every row of the model, then vacuums.
	ClearAllVectors(ctx context.Context, model Model) error

	// GetVectorsByFilePath returns the model's rows for path. An empty
	// result means the file is not indexed.
	GetVectorsByFilePath(ctx context.Context, path string, model Model) ([]*Record, error)

	// GetIndexedFilePaths returns the distinct paths indexed for the model.
	GetIndexedFilePaths(ctx context.Context, model Model) ([]string, error)

	// PerformSimilaritySearch returns at most opts.Limit records scoring at
	// least opts.MinSimilarity, best first.
	PerformSimilaritySearch(ctx context.Context, query []float32, model Model, opts SearchOptions) ([]*SearchResult, error)

	// GetEmbeddingStats reports row counts and sizes per model and dimension.
	GetEmbeddingStats(ctx context.Context) ([]EmbeddingStats, error)

	// Save makes committed writes durable.
	Save(ctx context.Context) error

	// Vacuum reclaims space and compacts the in-memory indexes.
	Vacuum(ctx context.Context) error

	// Close releases resources.
	Close() error
}
