// Package store holds variables shared by every VM attached to it.
//
// Values are kept CBOR-encoded so that no table is ever shared between two
// VMs; each read decodes a fresh copy. One lock guards the whole store and
// every read-modify-write runs entirely under it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xirelogy/go-lunar/internal/serial"
	"github.com/xirelogy/go-lunar/internal/vm"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("shared store is closed")

// Store is a concurrency-safe variables table with optional SQLite
// write-through persistence.
type Store struct {
	mu     sync.Mutex
	vars   map[string][]byte
	db     *sql.DB
	path   string
	closed bool
	logger *slog.Logger
}

// New returns an in-memory store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{vars: map[string][]byte{}, logger: logger}
}

// Open returns a store persisted in the SQLite database at path. Existing
// variables are loaded eagerly; every write goes through to the database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	s := New(logger)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS shared_vars (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	rows, err := db.QueryContext(ctx, "SELECT name, data FROM shared_vars")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading variables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			data []byte
		)
		if err := rows.Scan(&name, &data); err != nil {
			db.Close()
			return nil, fmt.Errorf("loading variables: %w", err)
		}
		s.vars[name] = data
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading variables: %w", err)
	}
	s.db, s.path = db, path
	s.logger.Debug("shared store opened", "path", path, "variables", len(s.vars))
	return s, nil
}

// Close releases the database, if any. The in-memory contents stay
// readable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		s.logger.Debug("shared store closed", "path", s.path)
		return s.db.Close()
	}
	return nil
}

// Get returns a fresh copy of the variable.
func (s *Store) Get(name string) (vm.Value, bool, error) {
	s.mu.Lock()
	data, ok := s.vars[name]
	s.mu.Unlock()
	if !ok {
		return vm.Nil(), false, nil
	}
	v, err := serial.DecodeCBOR(data)
	if err != nil {
		return vm.Nil(), false, fmt.Errorf("shared variable %q: %w", name, err)
	}
	return v, true, nil
}

// Set stores a prime value; nil deletes the variable.
func (s *Store) Set(ctx context.Context, name string, v vm.Value) error {
	return s.Update(ctx, name, func(vm.Value) (vm.Value, error) { return v, nil })
}

// Delete removes the variable.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.Set(ctx, name, vm.Nil())
}

// Incr adds delta to a numeric variable, treating a missing one as 0, and
// returns the new value.
func (s *Store) Incr(ctx context.Context, name string, delta float64) (float64, error) {
	var out float64
	err := s.Update(ctx, name, func(cur vm.Value) (vm.Value, error) {
		switch cur.Kind {
		case vm.KindNil:
			out = delta
		case vm.KindNumber:
			out = cur.Num + delta
		default:
			return vm.Nil(), &vm.TypeError{Message: fmt.Sprintf("shared variable '%s' is a %s, not a number", name, cur.TypeName())}
		}
		return vm.Number(out), nil
	})
	return out, err
}

// Update replaces the variable with fn(current) atomically with respect to
// every other store operation. fn must not call back into the store.
func (s *Store) Update(ctx context.Context, name string, fn func(vm.Value) (vm.Value, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cur := vm.Nil()
	if data, ok := s.vars[name]; ok {
		v, err := serial.DecodeCBOR(data)
		if err != nil {
			return fmt.Errorf("shared variable %q: %w", name, err)
		}
		cur = v
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	next = next.First()
	if next.IsNil() {
		if err := s.persistDelete(ctx, name); err != nil {
			return err
		}
		delete(s.vars, name)
		return nil
	}
	data, err := serial.EncodeCBOR(next)
	if err != nil {
		return fmt.Errorf("shared variable %q: %w", name, err)
	}
	if err := s.persist(ctx, name, data); err != nil {
		return err
	}
	s.vars[name] = data
	return nil
}

// Keys lists the variable names in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.vars))
	for k := range s.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of variables.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vars)
}

func (s *Store) persist(ctx context.Context, name string, data []byte) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shared_vars (name, data) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data`, name, data)
	if err != nil {
		s.logger.Error("shared store write failed", "name", name, "error", err)
		return fmt.Errorf("persisting %q: %w", name, err)
	}
	return nil
}

func (s *Store) persistDelete(ctx context.Context, name string) error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM shared_vars WHERE name = ?", name); err != nil {
		s.logger.Error("shared store delete failed", "name", name, "error", err)
		return fmt.Errorf("deleting %q: %w", name, err)
	}
	return nil
}
