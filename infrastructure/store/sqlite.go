package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ahrav/go-handoff/internal/ports"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL UNIQUE,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_collection ON documents (collection, seq);
`

var _ ports.DocumentStore = (*SQLiteStore)(nil)

// SQLiteStore persists documents as JSON text and queries them with the
// SQLite JSON1 functions.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	closed atomic.Bool
}

// NewSQLiteStore opens path and creates the schema. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, ports.NewConfigError("store.sqlite_path", ports.ErrConfigNotFound)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("opened sqlite document store", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Insert implements ports.DocumentStore.
func (s *SQLiteStore) Insert(ctx context.Context, collection string, doc ports.Document) (string, error) {
	if s.closed.Load() {
		return "", ports.NewStoreError(collection, "insert", ports.ErrStoreUnavailable)
	}

	id := uuid.NewString()
	data, err := encode(doc, id)
	if err != nil {
		return "", ports.NewStoreError(collection, "insert", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES (?, ?, ?)`,
		collection, id, string(data),
	)
	if err != nil {
		return "", ports.NewStoreError(collection, "insert", err)
	}
	return id, nil
}

// FindMany implements ports.DocumentStore.
func (s *SQLiteStore) FindMany(ctx context.Context, collection, field, value string) ([]ports.Document, error) {
	if err := validatePaths(field); err != nil {
		return nil, ports.NewStoreError(collection, "find_many", err)
	}
	if s.closed.Load() {
		return nil, ports.NewStoreError(collection, "find_many", ports.ErrStoreUnavailable)
	}

	jsonPath := "$." + field
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM documents
		 WHERE collection = ? AND json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?
		 ORDER BY seq`,
		collection, jsonPath, jsonPath, value,
	)
	if err != nil {
		return nil, ports.NewStoreError(collection, "find_many", err)
	}
	defer rows.Close()

	var docs []ports.Document
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, ports.NewStoreError(collection, "find_many", err)
		}
		doc, err := decode([]byte(data))
		if err != nil {
			return nil, ports.NewStoreError(collection, "find_many", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError(collection, "find_many", err)
	}
	return docs, nil
}

// Upsert implements ports.DocumentStore. The lookup and the write share one
// transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, collection, keyField, keyValue string, doc ports.Document) error {
	if err := validatePaths(keyField); err != nil {
		return ports.NewStoreError(collection, "upsert", err)
	}
	if s.closed.Load() {
		return ports.NewStoreError(collection, "upsert", ports.ErrStoreUnavailable)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.NewStoreError(collection, "upsert", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	jsonPath := "$." + keyField
	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM documents
		 WHERE collection = ? AND json_type(doc, ?) = 'text' AND json_extract(doc, ?) = ?
		 ORDER BY seq LIMIT 1`,
		collection, jsonPath, jsonPath, keyValue,
	).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		data, err := encode(doc, id)
		if err != nil {
			return ports.NewStoreError(collection, "upsert", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, doc) VALUES (?, ?, ?)`,
			collection, id, string(data),
		); err != nil {
			return ports.NewStoreError(collection, "upsert", err)
		}
	case err != nil:
		return ports.NewStoreError(collection, "upsert", err)
	default:
		data, err := encode(doc, id)
		if err != nil {
			return ports.NewStoreError(collection, "upsert", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET doc = ? WHERE id = ?`, string(data), id); err != nil {
			return ports.NewStoreError(collection, "upsert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ports.NewStoreError(collection, "upsert", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GroupByAggregate implements ports.DocumentStore. Groups appear in the
// order their first document was inserted.
func (s *SQLiteStore) GroupByAggregate(
	ctx context.Context, collection, groupKey string, avgFields []string,
) ([]ports.GroupResult, error) {
	if err := validatePaths(append([]string{groupKey}, avgFields...)...); err != nil {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", err)
	}
	if s.closed.Load() {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", ports.ErrStoreUnavailable)
	}

	keyPath := "$." + groupKey
	query := `SELECT json_extract(doc, ?) AS grp, COUNT(*)`
	args := []any{keyPath}
	for _, field := range avgFields {
		fieldPath := "$." + field
		query += `, AVG(CASE WHEN json_type(doc, ?) IN ('integer', 'real') THEN json_extract(doc, ?) END)`
		args = append(args, fieldPath, fieldPath)
	}
	query += ` FROM documents WHERE collection = ? AND json_type(doc, ?) = 'text' GROUP BY grp ORDER BY MIN(seq)`
	args = append(args, collection, keyPath)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", err)
	}
	defer rows.Close()

	var results []ports.GroupResult
	for rows.Next() {
		var (
			key   string
			count int
			avgs  = make([]sql.NullFloat64, len(avgFields))
			dests = []any{&key, &count}
		)
		for i := range avgs {
			dests = append(dests, &avgs[i])
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, ports.NewStoreError(collection, "group_by_aggregate", err)
		}

		averages := make(map[string]float64, len(avgFields))
		for i, field := range avgFields {
			averages[field] = avgs[i].Float64
		}
		results = append(results, ports.GroupResult{Key: key, Averages: averages, Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", err)
	}
	return results, nil
}

// Close implements ports.DocumentStore.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
