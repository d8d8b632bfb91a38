package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fx-rate-alerts/internal/currency"
	"fx-rate-alerts/internal/storage"
)

const (
	configKeyPrefix = "alert:"
	historyKey      = "history:notifications"
)

// HistoryEntry is one delivered notification.
type HistoryEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Event     Event     `json:"event"`
}

// Repository persists alert configs and the bounded notification history.
type Repository struct {
	kv           storage.KV
	historyLimit int
	mu           sync.Mutex
}

// NewRepository builds a Repository keeping at most historyLimit entries.
func NewRepository(kv storage.KV, historyLimit int) *Repository {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Repository{kv: kv, historyLimit: historyLimit}
}

// Get returns the stored config or the currency's default.
func (r *Repository) Get(ctx context.Context, code currency.Code) (Config, error) {
	var cfg Config
	if err := storage.GetJSON(ctx, r.kv, configKeyPrefix+string(code), &cfg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return DefaultConfig(code), nil
		}
		return Config{}, fmt.Errorf("load alert config %s: %w", code, err)
	}
	return cfg, nil
}

// Set validates and persists cfg.
func (r *Repository) Set(ctx context.Context, code currency.Code, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.put(ctx, code, cfg)
}

// Update applies fn to the stored config and persists the result. The read and the
// write happen under one lock, so concurrent updates are not lost.
func (r *Repository) Update(ctx context.Context, code currency.Code, fn func(Config) (Config, error)) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := r.Get(ctx, code)
	if err != nil {
		return Config{}, err
	}
	next, err := fn(cfg)
	if err != nil {
		return Config{}, err
	}
	if err := r.put(ctx, code, next); err != nil {
		return Config{}, err
	}
	return next, nil
}

func (r *Repository) put(ctx context.Context, code currency.Code, cfg Config) error {
	if !code.Valid() {
		return fmt.Errorf("unsupported currency %q", code)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := storage.PutJSON(ctx, r.kv, configKeyPrefix+string(code), cfg); err != nil {
		return fmt.Errorf("save alert config %s: %w", code, err)
	}
	return nil
}

// MarkNotified records at as the last notification time.
func (r *Repository) MarkNotified(ctx context.Context, code currency.Code, at time.Time) error {
	_, err := r.Update(ctx, code, func(cfg Config) (Config, error) {
		cfg.LastNotifiedAt = &at
		return cfg, nil
	})
	return err
}

// List returns the effective config of every supported currency.
func (r *Repository) List(ctx context.Context) (map[currency.Code]Config, error) {
	out := make(map[currency.Code]Config)
	for _, code := range currency.All() {
		cfg, err := r.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		out[code] = cfg
	}
	return out, nil
}

// AppendHistory stores ev at the head of the history, dropping the oldest beyond the limit.
func (r *Repository) AppendHistory(ctx context.Context, ev Event, at time.Time) (HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.history(ctx)
	if err != nil {
		return HistoryEntry{}, err
	}
	entry := HistoryEntry{ID: uuid.NewString(), CreatedAt: at, Event: ev}
	entries = append([]HistoryEntry{entry}, entries...)
	if len(entries) > r.historyLimit {
		entries = entries[:r.historyLimit]
	}
	if err := storage.PutJSON(ctx, r.kv, historyKey, entries); err != nil {
		return HistoryEntry{}, fmt.Errorf("save notification history: %w", err)
	}
	return entry, nil
}

// History returns up to limit entries, newest first.
func (r *Repository) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.history(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *Repository) history(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := storage.GetJSON(ctx, r.kv, historyKey, &entries); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load notification history: %w", err)
	}
	return entries, nil
}
