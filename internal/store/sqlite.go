package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // CGO driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go driver, registered as "sqlite"

	"github.com/Aman-CERP/vaultrag/internal/chunk"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// Supported database/sql driver names
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, no CGO
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3
)

// DefaultDBName is the database file inside the data directory.
const DefaultDBName = "vectors.db"

// maxQueryParams bounds the number of placeholders per statement.
const maxQueryParams = 500

// Config configures a SQLiteStore.
type Config struct {
	// Path of the database file. Empty opens an in-memory database.
	Path string

	// Driver is DriverModernc (default) or DriverMattn.
	Driver string
}

// SQLiteStore implements VectorStore on SQLite with in-memory HNSW
// bucket indexes rebuilt from the table on open.
type SQLiteStore struct {
	mu      sync.Mutex // serializes writers
	db      *sql.DB
	path    string
	driver  string
	buckets *BucketIndexes
	closed  bool
}

// Verify interface implementation at compile time
var _ VectorStore = (*SQLiteStore)(nil)

// validateIntegrity checks an existing database file before opening it.
// Returns nil if the file is absent or healthy.
func validateIntegrity(driver, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open(driver, path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens (creating if needed) the store at cfg.Path and loads
// the bucket indexes. A corrupted database file is removed and recreated
// empty.
func NewSQLiteStore(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverMattn {
		return nil, vrerrors.ConfigError(fmt.Sprintf("unknown sqlite driver %q", driver), nil).
			WithSuggestion("Use \"sqlite\" or \"sqlite3\"")
	}

	var dsn string
	if cfg.Path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, vrerrors.IOError(fmt.Sprintf("failed to create directory %s", dir), err)
		}

		if validErr := validateIntegrity(driver, cfg.Path); validErr != nil {
			slog.Warn("vector_store_corrupted",
				slog.String("path", cfg.Path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(cfg.Path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, vrerrors.New(vrerrors.ErrCodeCorruptIndex,
					fmt.Sprintf("vector store corrupted at %s and cannot be removed", cfg.Path), removeErr).
					WithSuggestion("Delete the file manually and reindex")
			}
			_ = os.Remove(cfg.Path + "-wal")
			_ = os.Remove(cfg.Path + "-shm")

			slog.Info("vector_store_cleared",
				slog.String("path", cfg.Path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, vrerrors.IOError("failed to open vector store", err)
	}

	// Single connection: one writer, and :memory: stays one database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, vrerrors.IOError("failed to set pragma", err)
		}
	}

	s := &SQLiteStore{
		db:      db,
		path:    cfg.Path,
		driver:  driver,
		buckets: NewBucketIndexes(),
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, vrerrors.IOError("failed to initialize schema", err)
	}
	if err := s.rebuildIndexes(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- One row per leaf chunk per model. No uniqueness on (path, model):
	-- a file owns as many rows as it has chunks.
	CREATE TABLE IF NOT EXISTS embeddings (
		id        INTEGER PRIMARY KEY,
		path      TEXT    NOT NULL,
		mtime     INTEGER NOT NULL,
		content   TEXT    NOT NULL,
		metadata  TEXT    NOT NULL DEFAULT '{}',
		model     TEXT    NOT NULL,
		dimension INTEGER NOT NULL,
		embedding BLOB    NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_model_path
		ON embeddings (model, dimension, path);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// rebuildIndexes loads every stored vector into fresh bucket graphs.
func (s *SQLiteStore) rebuildIndexes(ctx context.Context) error {
	s.buckets.Reset()

	rows, err := s.db.QueryContext(ctx, `SELECT id, path, model, embedding FROM embeddings`)
	if err != nil {
		return vrerrors.IOError("failed to load vectors", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var (
			id          int64
			path, model string
			blob        []byte
		)
		if err := rows.Scan(&id, &path, &model, &blob); err != nil {
			return vrerrors.IOError("failed to scan vector", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return vrerrors.New(vrerrors.ErrCodeCorruptIndex, fmt.Sprintf("row %d", id), err)
		}
		s.buckets.Add(id, model, path, vec)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return vrerrors.IOError("failed to load vectors", err)
	}

	slog.Debug("vector_indexes_loaded",
		slog.String("path", s.path),
		slog.Int("rows", loaded))
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return vrerrors.InternalError("vector store is closed", nil)
	}
	return nil
}

// InsertVectors appends records in a single transaction and assigns their
// IDs. Any record whose embedding length differs from its Dimension fails
// the whole insert.
func (s *SQLiteStore) InsertVectors(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if r.Dimension <= 0 || len(r.Embedding) != r.Dimension {
			return vrerrors.New(vrerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embedding for %s has %d components, expected %d", r.Chunk.Path, len(r.Embedding), r.Dimension), nil)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vrerrors.IOError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (path, mtime, content, metadata, model, dimension, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return vrerrors.IOError("failed to prepare insert", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(records))
	for i, r := range records {
		meta, err := json.Marshal(r.Chunk.Metadata)
		if err != nil {
			return vrerrors.InternalError("failed to encode chunk metadata", err)
		}
		res, err := stmt.ExecContext(ctx,
			r.Chunk.Path, r.Chunk.MTime, r.Chunk.Content, string(meta),
			r.Model, r.Dimension, encodeVector(r.Embedding))
		if err != nil {
			return vrerrors.IOError(fmt.Sprintf("failed to insert vector for %s", r.Chunk.Path), err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return vrerrors.IOError("failed to read row id", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return vrerrors.IOError("failed to commit vectors", err)
	}

	for i, r := range records {
		r.ID = ids[i]
		s.buckets.Add(r.ID, r.Model, r.Chunk.Path, r.Embedding)
	}
	return nil
}

// DeleteVectorsForFiles removes the model's rows for paths.
func (s *SQLiteStore) DeleteVectorsForFiles(ctx context.Context, paths []string, model Model) error {
	if len(paths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vrerrors.IOError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var removed []int64
	for _, batch := range batches(paths, maxQueryParams) {
		where := "model = ? AND dimension = ? AND path IN (" + placeholders(len(batch)) + ")"
		args := append([]any{model.ID(), model.Dimension()}, toArgs(batch)...)

		ids, err := collectIDs(ctx, tx, "SELECT id FROM embeddings WHERE "+where, args...)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE "+where, args...); err != nil {
			return vrerrors.IOError("failed to delete vectors", err)
		}
		removed = append(removed, ids...)
	}

	if err := tx.Commit(); err != nil {
		return vrerrors.IOError("failed to commit delete", err)
	}
	s.buckets.Remove(removed)
	return nil
}

// ClearAllVectors removes every row of the model, then vacuums.
func (s *SQLiteStore) ClearAllVectors(ctx context.Context, model Model) error {
	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return err
	}

	ids, err := collectIDs(ctx, s.db,
		"SELECT id FROM embeddings WHERE model = ? AND dimension = ?", model.ID(), model.Dimension())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM embeddings WHERE model = ? AND dimension = ?", model.ID(), model.Dimension()); err != nil {
		s.mu.Unlock()
		return vrerrors.IOError("failed to clear vectors", err)
	}
	s.buckets.Remove(ids)
	s.mu.Unlock()

	slog.Info("vectors_cleared",
		slog.String("model", model.ID()),
		slog.Int("dimension", model.Dimension()),
		slog.Int("rows", len(ids)))

	return s.Vacuum(ctx)
}

// GetVectorsByFilePath returns the model's rows for path in insertion order.
func (s *SQLiteStore) GetVectorsByFilePath(ctx context.Context, path string, model Model) ([]*Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, `
		SELECT id, path, mtime, content, metadata, model, dimension, embedding
		FROM embeddings
		WHERE model = ? AND dimension = ? AND path = ?
		ORDER BY id`, model.ID(), model.Dimension(), path)
}

// GetIndexedFilePaths returns the model's distinct paths, sorted.
func (s *SQLiteStore) GetIndexedFilePaths(ctx context.Context, model Model) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT path FROM embeddings
		WHERE model = ? AND dimension = ?
		ORDER BY path`, model.ID(), model.Dimension())
	if err != nil {
		return nil, vrerrors.IOError("failed to list indexed files", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, vrerrors.IOError("failed to scan path", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, vrerrors.IOError("failed to list indexed files", err)
	}
	return paths, nil
}

// GetEmbeddingStats reports rows and stored bytes (content plus embedding)
// per model and dimension.
func (s *SQLiteStore) GetEmbeddingStats(ctx context.Context) ([]EmbeddingStats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT model, dimension, COUNT(*),
		       COALESCE(SUM(LENGTH(CAST(content AS BLOB)) + LENGTH(embedding)), 0)
		FROM embeddings
		GROUP BY model, dimension
		ORDER BY model, dimension`)
	if err != nil {
		return nil, vrerrors.IOError("failed to read embedding stats", err)
	}
	defer rows.Close()

	var stats []EmbeddingStats
	for rows.Next() {
		var st EmbeddingStats
		if err := rows.Scan(&st.Model, &st.Dimension, &st.RowCount, &st.TotalDataBytes); err != nil {
			return nil, vrerrors.IOError("failed to scan embedding stats", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, vrerrors.IOError("failed to read embedding stats", err)
	}
	return stats, nil
}

// BucketStats exposes the in-memory index statistics.
func (s *SQLiteStore) BucketStats() []BucketStats {
	return s.buckets.Stats()
}

// Save checkpoints the WAL into the main database file.
func (s *SQLiteStore) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.path == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return vrerrors.New(vrerrors.ErrCodeSaveFailed, "failed to checkpoint vector store", err)
	}
	return nil
}

// Vacuum runs VACUUM and rebuilds the bucket indexes without the nodes of
// deleted rows.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return vrerrors.IOError("failed to vacuum vector store", err)
	}
	return s.rebuildIndexes(ctx)
}

// Close releases the database. Calling it twice is safe.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.buckets.Reset()
	return s.db.Close()
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, vrerrors.IOError("failed to query vectors", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, vrerrors.IOError("failed to query vectors", err)
	}
	return records, nil
}

// scanRecord reads the columns
// id, path, mtime, content, metadata, model, dimension, embedding.
func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		r    Record
		meta string
		blob []byte
	)
	if err := rows.Scan(&r.ID, &r.Chunk.Path, &r.Chunk.MTime, &r.Chunk.Content,
		&meta, &r.Model, &r.Dimension, &blob); err != nil {
		return nil, vrerrors.IOError("failed to scan vector row", err)
	}
	if meta != "" {
		var m chunk.Metadata
		if err := json.Unmarshal([]byte(meta), &m); err != nil {
			return nil, vrerrors.New(vrerrors.ErrCodeCorruptIndex, fmt.Sprintf("bad metadata in row %d", r.ID), err)
		}
		r.Chunk.Metadata = m
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, vrerrors.New(vrerrors.ErrCodeCorruptIndex, fmt.Sprintf("bad embedding in row %d", r.ID), err)
	}
	r.Embedding = vec
	return &r, nil
}

func collectIDs(ctx context.Context, q querier, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, vrerrors.IOError("failed to query row ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, vrerrors.IOError("failed to scan row id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, vrerrors.IOError("failed to query row ids", err)
	}
	return ids, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs[T any](values []T) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func batches[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
