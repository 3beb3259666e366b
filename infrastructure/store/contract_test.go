package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-handoff/internal/ports"
)

// runContract exercises the DocumentStore behaviour every backend shares.
// newStore must return an empty store.
func runContract(t *testing.T, newStore func(t *testing.T) ports.DocumentStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("insert assigns ids and find returns insertion order", func(t *testing.T) {
		s := newStore(t)

		// Given three documents, two in the same pipeline
		var ids []string
		for i, pipeline := range []string{"p1", "p2", "p1"} {
			id, err := s.Insert(ctx, "handoffs", ports.Document{
				"pipeline_id": pipeline,
				"seq":         float64(i),
				"metadata":    map[string]any{"format": "json"},
			})
			require.NoError(t, err)
			require.NotEmpty(t, id)
			ids = append(ids, id)
		}
		assert.NotEqual(t, ids[0], ids[2], "ids should be unique")

		// When reading one pipeline back
		docs, err := s.FindMany(ctx, "handoffs", "pipeline_id", "p1")

		// Then both documents come back in insertion order with their ids
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, 0.0, docs[0]["seq"])
		assert.Equal(t, 2.0, docs[1]["seq"])
		assert.Equal(t, ids[0], docs[0][ports.DocumentIDField])
		assert.Equal(t, map[string]any{"format": "json"}, docs[0]["metadata"])
	})

	t.Run("find matches nested paths and string values only", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Insert(ctx, "c", ports.Document{"meta": map[string]any{"format": "md"}})
		require.NoError(t, err)
		_, err = s.Insert(ctx, "c", ports.Document{"meta": map[string]any{"format": 3.0}})
		require.NoError(t, err)
		_, err = s.Insert(ctx, "other", ports.Document{"meta": map[string]any{"format": "md"}})
		require.NoError(t, err)

		docs, err := s.FindMany(ctx, "c", "meta.format", "md")
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		docs, err = s.FindMany(ctx, "c", "meta.format", "3")
		require.NoError(t, err)
		assert.Empty(t, docs, "numbers should not match their string form")

		docs, err = s.FindMany(ctx, "missing", "meta.format", "md")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("invalid field paths are rejected", func(t *testing.T) {
		s := newStore(t)
		for _, path := range []string{"", "a..b", "a.b.", "x'); DROP TABLE documents; --", "$.a"} {
			_, err := s.FindMany(ctx, "c", path, "v")
			assert.ErrorIs(t, err, ports.ErrInvalidFieldPath, "path %q", path)

			err = s.Upsert(ctx, "c", path, "v", ports.Document{})
			assert.ErrorIs(t, err, ports.ErrInvalidFieldPath, "path %q", path)

			_, err = s.GroupByAggregate(ctx, "c", "format", []string{path})
			assert.ErrorIs(t, err, ports.ErrInvalidFieldPath, "path %q", path)
		}
	})

	t.Run("upsert inserts then replaces keeping the id", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(ctx, "pipelines", "pipeline_id", "p1",
			ports.Document{"pipeline_id": "p1", "version": 1.0, "stale": true}))
		first, err := s.FindMany(ctx, "pipelines", "pipeline_id", "p1")
		require.NoError(t, err)
		require.Len(t, first, 1)

		require.NoError(t, s.Upsert(ctx, "pipelines", "pipeline_id", "p1",
			ports.Document{"pipeline_id": "p1", "version": 2.0}))
		second, err := s.FindMany(ctx, "pipelines", "pipeline_id", "p1")
		require.NoError(t, err)
		require.Len(t, second, 1, "upsert should never duplicate")

		assert.Equal(t, 2.0, second[0]["version"])
		assert.NotContains(t, second[0], "stale", "upsert replaces the whole document")
		assert.Equal(t, first[0][ports.DocumentIDField], second[0][ports.DocumentIDField])
	})

	t.Run("concurrent upserts of one key leave one document", func(t *testing.T) {
		s := newStore(t)

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Upsert(ctx, "pipelines", "pipeline_id", "p1",
					ports.Document{"pipeline_id": "p1", "writer": float64(i)}))
			}()
		}
		wg.Wait()

		docs, err := s.FindMany(ctx, "pipelines", "pipeline_id", "p1")
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("group by aggregate averages numeric fields", func(t *testing.T) {
		s := newStore(t)

		// Given documents in two formats, one without a format and one
		// with a non-numeric score
		docs := []ports.Document{
			{"metadata": map[string]any{"format": "json"}, "scores": map[string]any{"fidelity": 0.8, "drift": 0.2}},
			{"metadata": map[string]any{"format": "markdown"}, "scores": map[string]any{"fidelity": 0.5, "drift": 0.4}},
			{"metadata": map[string]any{"format": "json"}, "scores": map[string]any{"fidelity": 0.6, "drift": "n/a"}},
			{"scores": map[string]any{"fidelity": 1.0, "drift": 0.0}},
		}
		for _, d := range docs {
			_, err := s.Insert(ctx, "handoffs", d)
			require.NoError(t, err)
		}

		// When grouping by format
		groups, err := s.GroupByAggregate(ctx, "handoffs", "metadata.format",
			[]string{"scores.fidelity", "scores.drift", "scores.missing"})

		// Then documents without the key are skipped and groups keep
		// first-seen order
		require.NoError(t, err)
		require.Len(t, groups, 2)

		assert.Equal(t, "json", groups[0].Key)
		assert.Equal(t, 2, groups[0].Count)
		assert.InDelta(t, 0.7, groups[0].Averages["scores.fidelity"], 1e-9)
		assert.InDelta(t, 0.2, groups[0].Averages["scores.drift"], 1e-9, "non-numeric values are ignored")
		assert.Equal(t, 0.0, groups[0].Averages["scores.missing"])

		assert.Equal(t, "markdown", groups[1].Key)
		assert.Equal(t, 1, groups[1].Count)
		assert.InDelta(t, 0.5, groups[1].Averages["scores.fidelity"], 1e-9)
	})

	t.Run("group by aggregate on empty collection", func(t *testing.T) {
		s := newStore(t)
		groups, err := s.GroupByAggregate(ctx, "empty", "metadata.format", []string{"x"})
		require.NoError(t, err)
		assert.Empty(t, groups)
	})

	t.Run("closed store is unavailable", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Close())

		_, err := s.Insert(ctx, "c", ports.Document{"a": "b"})
		assert.ErrorIs(t, err, ports.ErrStoreUnavailable)

		_, err = s.FindMany(ctx, "c", "a", "b")
		assert.ErrorIs(t, err, ports.ErrStoreUnavailable)

		err = s.Upsert(ctx, "c", "a", "b", ports.Document{"a": "b"})
		assert.ErrorIs(t, err, ports.ErrStoreUnavailable)

		_, err = s.GroupByAggregate(ctx, "c", "a", nil)
		assert.ErrorIs(t, err, ports.ErrStoreUnavailable)

		var storeErr *ports.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "c", storeErr.Collection)
	})

	t.Run("unencodable documents fail insert", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Insert(ctx, "c", ports.Document{"bad": make(chan int)})
		var storeErr *ports.StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "insert", storeErr.Operation)
	})

	t.Run("many documents", func(t *testing.T) {
		s := newStore(t)
		for i := range 50 {
			_, err := s.Insert(ctx, "bulk", ports.Document{
				"pipeline_id": fmt.Sprintf("p%d", i%5),
				"n":           float64(i),
			})
			require.NoError(t, err)
		}
		docs, err := s.FindMany(ctx, "bulk", "pipeline_id", "p3")
		require.NoError(t, err)
		require.Len(t, docs, 10)
		for i, d := range docs {
			assert.Equal(t, float64(3+5*i), d["n"])
		}
	})
}
