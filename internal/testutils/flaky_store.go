package testutils

import (
	"context"
	"sync"

	"github.com/ahrav/go-handoff/internal/ports"
)

// Store operation names accepted by FlakyStore.FailOn.
const (
	OpInsert           = "Insert"
	OpFindMany         = "FindMany"
	OpUpsert           = "Upsert"
	OpGroupByAggregate = "GroupByAggregate"
)

var _ ports.DocumentStore = (*FlakyStore)(nil)

// FlakyStore wraps a DocumentStore and fails selected operations on demand.
type FlakyStore struct {
	ports.DocumentStore

	mu       sync.Mutex
	failures map[string]error
	calls    map[string]int
	gates    map[string]*gate
}

type gate struct {
	entered  chan struct{}
	released chan struct{}
	once     sync.Once
}

// NewFlakyStore wraps inner; nothing fails until FailOn is called.
func NewFlakyStore(inner ports.DocumentStore) *FlakyStore {
	return &FlakyStore{
		DocumentStore: inner,
		failures:      make(map[string]error),
		calls:         make(map[string]int),
		gates:         make(map[string]*gate),
	}
}

// FailOn makes every subsequent call of op return err. A nil err heals op.
func (f *FlakyStore) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns how many times op was invoked, failed or not.
func (f *FlakyStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// HoldNext makes the next call of op wait before reaching the inner store.
// entered is closed when that call arrives; it proceeds once release is
// called, or fails with its context error when the context ends first.
// Later calls of op are not held.
func (f *FlakyStore) HoldNext(op string) (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}), released: make(chan struct{})}
	f.mu.Lock()
	f.gates[op] = g
	f.mu.Unlock()
	return g.entered, func() { g.once.Do(func() { close(g.released) }) }
}

func (f *FlakyStore) hold(ctx context.Context, op string) error {
	f.mu.Lock()
	g := f.gates[op]
	delete(f.gates, op)
	f.mu.Unlock()
	if g == nil {
		return nil
	}

	close(g.entered)
	select {
	case <-g.released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FlakyStore) failure(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.failures[op]
}

// Insert implements ports.DocumentStore.
func (f *FlakyStore) Insert(ctx context.Context, collection string, doc ports.Document) (string, error) {
	if err := f.failure(OpInsert); err != nil {
		return "", err
	}
	if err := f.hold(ctx, OpInsert); err != nil {
		return "", err
	}
	return f.DocumentStore.Insert(ctx, collection, doc)
}

// FindMany implements ports.DocumentStore.
func (f *FlakyStore) FindMany(ctx context.Context, collection, field, value string) ([]ports.Document, error) {
	if err := f.failure(OpFindMany); err != nil {
		return nil, err
	}
	if err := f.hold(ctx, OpFindMany); err != nil {
		return nil, err
	}
	return f.DocumentStore.FindMany(ctx, collection, field, value)
}

// Upsert implements ports.DocumentStore.
func (f *FlakyStore) Upsert(ctx context.Context, collection, keyField, keyValue string, doc ports.Document) error {
	if err := f.failure(OpUpsert); err != nil {
		return err
	}
	if err := f.hold(ctx, OpUpsert); err != nil {
		return err
	}
	return f.DocumentStore.Upsert(ctx, collection, keyField, keyValue, doc)
}

// GroupByAggregate implements ports.DocumentStore.
func (f *FlakyStore) GroupByAggregate(
	ctx context.Context, collection, groupKey string, avgFields []string,
) ([]ports.GroupResult, error) {
	if err := f.failure(OpGroupByAggregate); err != nil {
		return nil, err
	}
	if err := f.hold(ctx, OpGroupByAggregate); err != nil {
		return nil, err
	}
	return f.DocumentStore.GroupByAggregate(ctx, collection, groupKey, avgFields)
}
