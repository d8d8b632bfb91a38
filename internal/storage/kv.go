package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the key has no value.
	ErrNotFound = errors.New("storage: key not found")
	// ErrNotConfigured indicates the backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// Op is a single mutation inside a Batch.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Batch groups mutations that must become visible together.
type Batch struct {
	ops []Op
}

// Put schedules key=value.
func (b *Batch) Put(key string, value []byte) {
	b.ops = append(b.ops, Op{Key: key, Value: value})
}

// Delete schedules removal of key.
func (b *Batch) Delete(key string) {
	b.ops = append(b.ops, Op{Key: key, Delete: true})
}

// Ops returns the scheduled mutations in order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return b.ops
}

// Len returns the number of scheduled mutations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// KV is a durable key-value store. Apply is atomic: either every op in the batch is
// durable or none is.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Keys lists keys with the given prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Apply(ctx context.Context, batch *Batch) error
	Close() error
}

// AdvisoryLocker exposes cross-process lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Put writes a single key.
func Put(ctx context.Context, kv KV, key string, value []byte) error {
	var b Batch
	b.Put(key, value)
	return kv.Apply(ctx, &b)
}

// Delete removes a single key.
func Delete(ctx context.Context, kv KV, key string) error {
	var b Batch
	b.Delete(key)
	return kv.Apply(ctx, &b)
}

// GetJSON decodes the value at key into dst. It returns ErrNotFound when absent.
func GetJSON(ctx context.Context, kv KV, key string, dst any) error {
	raw, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes value and stores it at key.
func PutJSON(ctx context.Context, kv KV, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return Put(ctx, kv, key, raw)
}

func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
