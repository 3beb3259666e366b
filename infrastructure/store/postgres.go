package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ahrav/go-handoff/internal/ports"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        BIGSERIAL PRIMARY KEY,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL UNIQUE,
	doc        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_collection ON documents (collection, seq);
`

// slowQueryThreshold is the duration above which queries are logged at warn.
const slowQueryThreshold = 200 * time.Millisecond

var _ ports.DocumentStore = (*PostgresStore)(nil)

// PostgresStore persists documents as JSONB.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	closed atomic.Bool
}

// NewPostgresStore connects to dsn, verifies the connection and creates the
// schema.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, ports.NewConfigError("store.postgres_dsn", ports.ErrConfigNotFound)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.Tracer = &queryTracer{logger: logger}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("connected to postgres document store",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Insert implements ports.DocumentStore.
func (s *PostgresStore) Insert(ctx context.Context, collection string, doc ports.Document) (string, error) {
	if s.closed.Load() {
		return "", ports.NewStoreError(collection, "insert", ports.ErrStoreUnavailable)
	}

	id := uuid.NewString()
	data, err := encode(doc, id)
	if err != nil {
		return "", ports.NewStoreError(collection, "insert", err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)`,
		collection, id, data,
	); err != nil {
		return "", ports.NewStoreError(collection, "insert", err)
	}
	return id, nil
}

// FindMany implements ports.DocumentStore.
func (s *PostgresStore) FindMany(ctx context.Context, collection, field, value string) ([]ports.Document, error) {
	if err := validatePaths(field); err != nil {
		return nil, ports.NewStoreError(collection, "find_many", err)
	}
	if s.closed.Load() {
		return nil, ports.NewStoreError(collection, "find_many", ports.ErrStoreUnavailable)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM documents
		 WHERE collection = $1 AND doc #> $2 = to_jsonb($3::text)
		 ORDER BY seq`,
		collection, splitPath(field), value,
	)
	if err != nil {
		return nil, ports.NewStoreError(collection, "find_many", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ports.Document, error) {
		var data []byte
		if err := row.Scan(&data); err != nil {
			return nil, err
		}
		return decode(data)
	})
	if err != nil {
		return nil, ports.NewStoreError(collection, "find_many", err)
	}
	return docs, nil
}

// Upsert implements ports.DocumentStore. A transaction-scoped advisory lock
// on the key serializes concurrent upserts of the same document.
func (s *PostgresStore) Upsert(ctx context.Context, collection, keyField, keyValue string, doc ports.Document) error {
	if err := validatePaths(keyField); err != nil {
		return ports.NewStoreError(collection, "upsert", err)
	}
	if s.closed.Load() {
		return ports.NewStoreError(collection, "upsert", ports.ErrStoreUnavailable)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ports.NewStoreError(collection, "upsert", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx)

	lockKey := collection + "/" + keyField + "=" + keyValue
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return ports.NewStoreError(collection, "upsert", err)
	}

	var id string
	err = tx.QueryRow(ctx,
		`SELECT id FROM documents
		 WHERE collection = $1 AND doc #> $2 = to_jsonb($3::text)
		 ORDER BY seq LIMIT 1`,
		collection, splitPath(keyField), keyValue,
	).Scan(&id)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		id = uuid.NewString()
		data, err := encode(doc, id)
		if err != nil {
			return ports.NewStoreError(collection, "upsert", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)`,
			collection, id, data,
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
		if _, err := tx.Exec(ctx, `UPDATE documents SET doc = $1 WHERE id = $2`, data, id); err != nil {
			return ports.NewStoreError(collection, "upsert", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ports.NewStoreError(collection, "upsert", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GroupByAggregate implements ports.DocumentStore. Groups appear in the
// order their first document was inserted.
func (s *PostgresStore) GroupByAggregate(
	ctx context.Context, collection, groupKey string, avgFields []string,
) ([]ports.GroupResult, error) {
	if err := validatePaths(append([]string{groupKey}, avgFields...)...); err != nil {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", err)
	}
	if s.closed.Load() {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", ports.ErrStoreUnavailable)
	}

	query := `SELECT doc #>> $2 AS grp, COUNT(*)`
	args := []any{collection, splitPath(groupKey)}
	for _, field := range avgFields {
		args = append(args, splitPath(field))
		p := "$" + strconv.Itoa(len(args))
		query += `, AVG(CASE WHEN jsonb_typeof(doc #> ` + p + `) = 'number' THEN (doc #>> ` + p + `)::float8 END)`
	}
	query += ` FROM documents WHERE collection = $1 AND jsonb_typeof(doc #> $2) = 'string' GROUP BY grp ORDER BY MIN(seq)`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ports.GroupResult, error) {
		var (
			key   string
			count int64
			avgs  = make([]*float64, len(avgFields))
			dests = []any{&key, &count}
		)
		for i := range avgs {
			dests = append(dests, &avgs[i])
		}
		if err := row.Scan(dests...); err != nil {
			return ports.GroupResult{}, err
		}

		averages := make(map[string]float64, len(avgFields))
		for i, field := range avgFields {
			if avgs[i] != nil {
				averages[field] = *avgs[i]
			} else {
				averages[field] = 0
			}
		}
		return ports.GroupResult{Key: key, Averages: averages, Count: int(count)}, nil
	})
	if err != nil {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", err)
	}
	return results, nil
}

// Close implements ports.DocumentStore.
func (s *PostgresStore) Close() error {
	if !s.closed.Swap(true) {
		s.pool.Close()
	}
	return nil
}

// queryTracer logs query durations through zap.
type queryTracer struct {
	logger *zap.Logger
}

type queryStartKey struct{}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, _ pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, time.Now())
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)

	switch {
	case data.Err != nil:
		t.logger.Debug("postgres query failed", zap.Duration("duration", elapsed), zap.Error(data.Err))
	case elapsed > slowQueryThreshold:
		t.logger.Warn("slow postgres query", zap.Duration("duration", elapsed), zap.String("command", data.CommandTag.String()))
	}
}
