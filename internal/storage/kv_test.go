package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/config"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	sq, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]KV{"memory": NewMemory(), "sqlite": sq}
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := Put(ctx, kv, "tier:lastKnown", []byte("a")); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := Put(ctx, kv, "tier:lastKnown", []byte("b")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err := kv.Get(ctx, "tier:lastKnown")
			if err != nil || string(got) != "b" {
				t.Fatalf("want b, got %q (%v)", got, err)
			}

			if err := Delete(ctx, kv, "tier:lastKnown"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := kv.Get(ctx, "tier:lastKnown"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("deleted key should be gone, got %v", err)
			}
		})
	}
}

func TestKVKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var b Batch
			b.Put("tier:dated:2024-06-10", []byte("x"))
			b.Put("tier:dated:2024-06-07", []byte("y"))
			b.Put("tier:baseline", []byte("z"))
			b.Put("alert:USD", []byte("{}"))
			if err := kv.Apply(ctx, &b); err != nil {
				t.Fatalf("apply: %v", err)
			}

			keys, err := kv.Keys(ctx, "tier:dated:")
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			if len(keys) != 2 || keys[0] != "tier:dated:2024-06-07" || keys[1] != "tier:dated:2024-06-10" {
				t.Fatalf("unexpected keys %v", keys)
			}
		})
	}
}

func TestKVJSONHelpers(t *testing.T) {
	ctx := context.Background()
	kv := NewMemory()
	type state struct {
		Calls int `json:"calls"`
	}
	if err := PutJSON(ctx, kv, "budget:state", state{Calls: 3}); err != nil {
		t.Fatalf("put json: %v", err)
	}
	var got state
	if err := GetJSON(ctx, kv, "budget:state", &got); err != nil || got.Calls != 3 {
		t.Fatalf("get json: %+v %v", got, err)
	}
}

func TestMemoryApplyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	kv := NewMemory()
	if err := Put(ctx, kv, "k", []byte("v")); err == nil {
		t.Fatal("cancelled context should abort the batch")
	}
	if keys, _ := kv.Keys(context.Background(), ""); len(keys) != 0 {
		t.Fatalf("nothing should be written, got %v", keys)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StorageConfig{Driver: "mongo"}, zerolog.Nop())
	if err == nil {
		t.Fatal("unsupported driver should error")
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Fatalf("unexpected escape %q", got)
	}
}
