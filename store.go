package lunar

import (
	"context"
	"log/slog"

	"github.com/xirelogy/go-lunar/internal/store"
	"github.com/xirelogy/go-lunar/internal/vm"
)

// SharedStore holds named prime values shared by every VM it is attached
// to. Values are copied on the way in and out, so VMs never share tables.
type SharedStore struct {
	s *store.Store
}

// NewSharedStore returns an in-memory store logging to slog.Default().
func NewSharedStore() *SharedStore {
	return &SharedStore{s: store.New(slog.Default())}
}

// OpenSharedStore returns a store persisted to the sqlite database at path.
// Existing entries are loaded eagerly; writes go through to the database.
func OpenSharedStore(ctx context.Context, path string) (*SharedStore, error) {
	s, err := store.Open(ctx, path, slog.Default())
	if err != nil {
		return nil, err
	}
	return &SharedStore{s: s}, nil
}

// Close releases the database; later operations fail with ErrStoreClosed.
func (s *SharedStore) Close() error { return s.s.Close() }

// Get returns a private copy of the named value.
func (s *SharedStore) Get(name string) (Value, bool, error) {
	v, ok, err := s.s.Get(name)
	if err != nil {
		return Value{}, false, err
	}
	return Value{v: v}, ok, nil
}

// Set stores a converted Go value; nil deletes the entry.
func (s *SharedStore) Set(ctx context.Context, name string, x any) error {
	v, err := toVM(x)
	if err != nil {
		return err
	}
	return s.s.Set(ctx, name, v)
}

// Delete removes the named value.
func (s *SharedStore) Delete(ctx context.Context, name string) error {
	return s.s.Delete(ctx, name)
}

// Incr atomically adds delta to a numeric entry, treating a missing entry
// as zero, and returns the new value.
func (s *SharedStore) Incr(ctx context.Context, name string, delta float64) (float64, error) {
	return s.s.Incr(ctx, name, delta)
}

// Update replaces the named value with fn's result under the store lock.
// fn must not call back into the store.
func (s *SharedStore) Update(ctx context.Context, name string, fn func(Value) (Value, error)) error {
	return s.s.Update(ctx, name, func(cur vm.Value) (vm.Value, error) {
		next, err := fn(Value{v: cur})
		return next.v, err
	})
}

// Keys lists the stored names in sorted order.
func (s *SharedStore) Keys() []string { return s.s.Keys() }

// Len reports the number of stored names.
func (s *SharedStore) Len() int { return s.s.Len() }
