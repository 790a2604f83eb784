package kv

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	file, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lite, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = lite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"redis":  NewRedis(client, "nexus:"),
		"sqlite": lite,
	}
}

func TestStoreGetSet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Get(ctx, "nexus_v2_tasks"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := store.Set(ctx, "nexus_v2_tasks", []byte(`[{"id":"1"}]`)); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := store.Set(ctx, "nexus_v2_tasks", []byte(`[]`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err := store.Get(ctx, "nexus_v2_tasks")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(got) != "[]" {
				t.Fatalf("expected overwritten value, got %s", got)
			}
			if _, err := store.Get(ctx, "nexus_v2_projects"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("keys must be independent, got %v", err)
			}
		})
	}
}

func TestStoreConcurrentReadersSeeWholeValues(t *testing.T) {
	oldVal := []byte("[" + strings.Repeat(`{"id":"old"},`, 2000) + `{"id":"old"}]`)
	newVal := []byte("[" + strings.Repeat(`{"id":"new"},`, 4000) + `{"id":"new"}]`)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Set(ctx, "k", oldVal); err != nil {
				t.Fatalf("seed: %v", err)
			}

			var wg sync.WaitGroup
			stop := make(chan struct{})
			errs := make(chan string, 8)
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						select {
						case <-stop:
							return
						default:
						}
						got, err := store.Get(ctx, "k")
						if err != nil {
							errs <- err.Error()
							return
						}
						if !bytes.Equal(got, oldVal) && !bytes.Equal(got, newVal) {
							errs <- "observed partial value"
							return
						}
					}
				}()
			}
			for i := 0; i < 20; i++ {
				v := newVal
				if i%2 == 1 {
					v = oldVal
				}
				if err := store.Set(ctx, "k", v); err != nil {
					t.Fatalf("set: %v", err)
				}
			}
			close(stop)
			wg.Wait()
			close(errs)
			for msg := range errs {
				t.Fatalf("reader failure: %s", msg)
			}
		})
	}
}

func TestFileStoreEscapesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFile(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	if err := store.Set(context.Background(), "../escape", []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one file inside the store dir, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json")); err == nil {
		t.Fatalf("key escaped the store directory")
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	if err := m.Set(ctx, "k", buf); err != nil {
		t.Fatalf("set: %v", err)
	}
	buf[0] = 'z'
	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %s", got)
	}
}
