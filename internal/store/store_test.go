package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/xirelogy/go-lunar/internal/serial"
	"github.com/xirelogy/go-lunar/internal/store"
	"github.com/xirelogy/go-lunar/internal/vm"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := store.New(nil)
	if _, ok, _ := s.Get("missing"); ok {
		t.Fatalf("unexpected variable")
	}
	if err := s.Set(ctx, "greeting", vm.String("hi")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("greeting")
	if err != nil || !ok || v.Str != "hi" {
		t.Fatalf("unexpected %v %v %v", v, ok, err)
	}
	if err := s.Delete(ctx, "greeting"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %v", s.Keys())
	}
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := store.New(nil)
	tbl := vm.NewArray(vm.Number(1), vm.Number(2))
	if err := s.Set(ctx, "list", vm.TableValue(tbl)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	tbl.Append(vm.Number(3))
	got, _, _ := s.Get("list")
	if got.Tab.Len() != 2 {
		t.Fatalf("store must not alias the caller's table")
	}
	got.Tab.Append(vm.Number(9))
	again, _, _ := s.Get("list")
	if again.Tab.Len() != 2 {
		t.Fatalf("store must not alias returned tables")
	}
}

func TestRejectsNonPrime(t *testing.T) {
	s := store.New(nil)
	err := s.Set(context.Background(), "fn", vm.NewNative("f", nil))
	var np *serial.NotPrimeError
	if !errors.As(err, &np) {
		t.Fatalf("expected NotPrimeError, got %v", err)
	}
}

func TestConcurrentIncrIsExact(t *testing.T) {
	ctx := context.Background()
	s := store.New(nil)
	const workers, rounds = 32, 200
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				if _, err := s.Incr(ctx, "hits", 1); err != nil {
					t.Errorf("Incr: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	v, _, _ := s.Get("hits")
	if v.Num != workers*rounds {
		t.Fatalf("expected %d, got %v", workers*rounds, v)
	}
}

func TestIncrOnNonNumber(t *testing.T) {
	ctx := context.Background()
	s := store.New(nil)
	_ = s.Set(ctx, "name", vm.String("x"))
	_, err := s.Incr(ctx, "name", 1)
	var te *vm.TypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected TypeError, got %v", err)
	}
}

func TestSQLitePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	s, err := store.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cfg := vm.NewTable(0, 2)
	cfg.SetString("mode", vm.String("fast"))
	cfg.SetString("retries", vm.Number(3))
	if err := s.Set(ctx, "config", vm.TableValue(cfg)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Incr(ctx, "runs", 5); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	_ = s.Set(ctx, "temp", vm.Bool(true))
	_ = s.Delete(ctx, "temp")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Set(ctx, "late", vm.Number(1)); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	reopened, err := store.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	keys := reopened.Keys()
	if len(keys) != 2 || keys[0] != "config" || keys[1] != "runs" {
		t.Fatalf("unexpected keys %v", keys)
	}
	v, _, _ := reopened.Get("config")
	if v.Tab.GetString("mode").Str != "fast" || v.Tab.GetString("retries").Num != 3 {
		t.Fatalf("unexpected config %v", v)
	}
	runs, _, _ := reopened.Get("runs")
	if runs.Num != 5 {
		t.Fatalf("expected 5 runs, got %v", runs)
	}
}
