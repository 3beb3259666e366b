package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/go-handoff/internal/ports"
)

var _ ports.DocumentStore = (*MemoryStore)(nil)

// MemoryStore keeps documents in process memory. Documents are stored as
// encoded JSON, so callers never share maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][][]byte
	closed      bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][][]byte)}
}

// Insert implements ports.DocumentStore.
func (m *MemoryStore) Insert(ctx context.Context, collection string, doc ports.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ports.NewStoreError(collection, "insert", err)
	}

	id := uuid.NewString()
	data, err := encode(doc, id)
	if err != nil {
		return "", ports.NewStoreError(collection, "insert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ports.NewStoreError(collection, "insert", ports.ErrStoreUnavailable)
	}
	m.collections[collection] = append(m.collections[collection], data)
	return id, nil
}

// FindMany implements ports.DocumentStore.
func (m *MemoryStore) FindMany(ctx context.Context, collection, field, value string) ([]ports.Document, error) {
	if err := validatePaths(field); err != nil {
		return nil, ports.NewStoreError(collection, "find_many", err)
	}
	docs, err := m.snapshot(ctx, collection, "find_many")
	if err != nil {
		return nil, err
	}

	var out []ports.Document
	for _, doc := range docs {
		if v, ok := lookup(doc, field); ok && v == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Upsert implements ports.DocumentStore.
func (m *MemoryStore) Upsert(ctx context.Context, collection, keyField, keyValue string, doc ports.Document) error {
	if err := validatePaths(keyField); err != nil {
		return ports.NewStoreError(collection, "upsert", err)
	}
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError(collection, "upsert", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ports.NewStoreError(collection, "upsert", ports.ErrStoreUnavailable)
	}

	stored := m.collections[collection]
	for i, data := range stored {
		existing, err := decode(data)
		if err != nil {
			return ports.NewStoreError(collection, "upsert", err)
		}
		if v, ok := lookup(existing, keyField); !ok || v != keyValue {
			continue
		}
		id, _ := existing[ports.DocumentIDField].(string)
		replaced, err := encode(doc, id)
		if err != nil {
			return ports.NewStoreError(collection, "upsert", err)
		}
		stored[i] = replaced
		return nil
	}

	data, err := encode(doc, uuid.NewString())
	if err != nil {
		return ports.NewStoreError(collection, "upsert", err)
	}
	m.collections[collection] = append(stored, data)
	return nil
}

// GroupByAggregate implements ports.DocumentStore. Groups appear in the
// order their first document was inserted.
func (m *MemoryStore) GroupByAggregate(
	ctx context.Context, collection, groupKey string, avgFields []string,
) ([]ports.GroupResult, error) {
	if err := validatePaths(append([]string{groupKey}, avgFields...)...); err != nil {
		return nil, ports.NewStoreError(collection, "group_by_aggregate", err)
	}
	docs, err := m.snapshot(ctx, collection, "group_by_aggregate")
	if err != nil {
		return nil, err
	}

	type accumulator struct {
		count  int
		sums   []float64
		counts []int
	}
	var order []string
	groups := make(map[string]*accumulator)

	for _, doc := range docs {
		raw, ok := lookup(doc, groupKey)
		if !ok {
			continue
		}
		key, ok := raw.(string)
		if !ok {
			continue
		}
		acc, seen := groups[key]
		if !seen {
			acc = &accumulator{sums: make([]float64, len(avgFields)), counts: make([]int, len(avgFields))}
			groups[key] = acc
			order = append(order, key)
		}
		acc.count++
		for i, field := range avgFields {
			if v, ok := lookup(doc, field); ok {
				if f, ok := v.(float64); ok {
					acc.sums[i] += f
					acc.counts[i]++
				}
			}
		}
	}

	results := make([]ports.GroupResult, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		averages := make(map[string]float64, len(avgFields))
		for i, field := range avgFields {
			if acc.counts[i] > 0 {
				averages[field] = acc.sums[i] / float64(acc.counts[i])
			} else {
				averages[field] = 0
			}
		}
		results = append(results, ports.GroupResult{Key: key, Averages: averages, Count: acc.count})
	}
	return results, nil
}

// Close implements ports.DocumentStore. Later calls fail with
// ports.ErrStoreUnavailable.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.collections = nil
	return nil
}

func (m *MemoryStore) snapshot(ctx context.Context, collection, op string) ([]ports.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewStoreError(collection, op, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ports.NewStoreError(collection, op, ports.ErrStoreUnavailable)
	}

	stored := m.collections[collection]
	docs := make([]ports.Document, 0, len(stored))
	for _, data := range stored {
		doc, err := decode(data)
		if err != nil {
			return nil, ports.NewStoreError(collection, op, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
