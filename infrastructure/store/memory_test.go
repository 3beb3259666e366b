package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-handoff/internal/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) ports.DocumentStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_DoesNotShareMaps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Given a document mutated after insert
	doc := ports.Document{"pipeline_id": "p1", "nested": map[string]any{"k": "v"}}
	_, err := s.Insert(ctx, "c", doc)
	require.NoError(t, err)
	doc["nested"].(map[string]any)["k"] = "changed"

	// When reading it back and mutating the result
	got, err := s.FindMany(ctx, "c", "pipeline_id", "p1")
	require.NoError(t, err)
	got[0]["pipeline_id"] = "other"

	// Then the stored copy is unaffected by either mutation
	again, err := s.FindMany(ctx, "c", "pipeline_id", "p1")
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "v", again[0]["nested"].(map[string]any)["k"])
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Insert(ctx, "c", ports.Document{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory is the default", func(t *testing.T) {
		s, err := Open(ctx, Config{})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(ctx, Config{Driver: DriverSQLite, SQLitePath: ":memory:"})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLiteStore{}, s)
	})

	t.Run("sqlite without a path", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: DriverSQLite})
		assert.ErrorIs(t, err, ports.ErrConfigNotFound)
	})

	t.Run("postgres without a dsn", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: DriverPostgres})
		assert.ErrorIs(t, err, ports.ErrConfigNotFound)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "mongo"})
		assert.ErrorIs(t, err, ErrUnknownDriver)
	})
}

func TestLookup(t *testing.T) {
	doc := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
		"s": "flat",
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"s", "flat", true},
		{"a.b.c", "deep", true},
		{"a.b.x", nil, false},
		{"s.x", nil, false},
		{"missing", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := lookup(doc, tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
