// Package store provides ports.DocumentStore implementations: an in-memory
// store for tests and single runs, and SQLite and PostgreSQL stores that
// persist each document as JSON in a shared documents table.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ahrav/go-handoff/internal/ports"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver indicates a driver name with no implementation.
var ErrUnknownDriver = errors.New("unknown store driver")

// Config selects and configures a store implementation.
type Config struct {
	// Driver is one of the Driver* constants.
	Driver string
	// SQLitePath is the database file, or ":memory:".
	SQLitePath string
	// PostgresDSN is a libpq-style connection string or URL.
	PostgresDSN string
	// Logger receives connection and slow-query logs. Nil disables logging.
	Logger *zap.Logger
}

// Open connects to the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (ports.DocumentStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath, logger)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

var fieldPathPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// validatePaths rejects any path that cannot be addressed safely.
func validatePaths(paths ...string) error {
	for _, p := range paths {
		if !fieldPathPattern.MatchString(p) {
			return fmt.Errorf("%w: %q", ports.ErrInvalidFieldPath, p)
		}
	}
	return nil
}

func splitPath(path string) []string { return strings.Split(path, ".") }

// lookup walks a dotted path through nested objects.
func lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range splitPath(path) {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// encode marshals doc with its id embedded under ports.DocumentIDField.
func encode(doc ports.Document, id string) ([]byte, error) {
	withID := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		withID[k] = v
	}
	withID[ports.DocumentIDField] = id

	data, err := json.Marshal(withID)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

func decode(data []byte) (ports.Document, error) {
	var doc ports.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
