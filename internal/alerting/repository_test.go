package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-rate-alerts/internal/currency"
	"fx-rate-alerts/internal/storage"
)

func TestRepositoryDefaultsAndPersistence(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	repo := NewRepository(kv, 10)

	cfg, err := repo.Get(ctx, currency.USD)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(currency.USD), cfg)

	cfg.Enabled = true
	cfg.Threshold = d("1380")
	require.NoError(t, repo.Set(ctx, currency.USD, cfg))

	at := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkNotified(ctx, currency.USD, at))

	reopened := NewRepository(kv, 10)
	got, err := reopened.Get(ctx, currency.USD)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, got.Threshold.Equal(d("1380")))
	require.NotNil(t, got.LastNotifiedAt)
	assert.True(t, got.LastNotifiedAt.Equal(at))

	all, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(currency.All()))
}

func TestRepositoryRejectsInvalid(t *testing.T) {
	repo := NewRepository(storage.NewMemory(), 10)
	ctx := context.Background()
	assert.Error(t, repo.Set(ctx, currency.USD, Config{Enabled: true, Mode: Upper}))
	assert.Error(t, repo.Set(ctx, currency.USD, Config{Mode: "sideways"}))
	assert.Error(t, repo.Set(ctx, currency.Code("XXX"), DefaultConfig(currency.USD)))
}

func TestHistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(storage.NewMemory(), 3)
	base := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ev := sampleEvent()
		ev.Message = string(rune('a' + i))
		_, err := repo.AppendHistory(ctx, ev, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	entries, err := repo.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e", entries[0].Event.Message, "newest first")
	assert.Equal(t, "c", entries[2].Event.Message)
	assert.NotEmpty(t, entries[0].ID)

	limited, err := repo.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// gatedKV blocks the first Get until release is closed.
type gatedKV struct {
	storage.KV
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedKV) Get(ctx context.Context, key string) ([]byte, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.KV.Get(ctx, key)
}

func TestMarkNotifiedDoesNotLoseConcurrentSet(t *testing.T) {
	ctx := context.Background()
	kv := &gatedKV{KV: storage.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	repo := NewRepository(kv, 10)
	at := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	marked := make(chan error, 1)
	go func() { marked <- repo.MarkNotified(ctx, currency.USD, at) }()
	<-kv.entered

	updated := DefaultConfig(currency.USD)
	updated.Enabled = true
	updated.Threshold = d("1500")
	set := make(chan error, 1)
	go func() { set <- repo.Set(ctx, currency.USD, updated) }()

	select {
	case err := <-set:
		t.Fatalf("Set finished while MarkNotified was mid-update: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(kv.release)
	require.NoError(t, <-marked)
	require.NoError(t, <-set)

	got, err := repo.Get(ctx, currency.USD)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, got.Threshold.Equal(d("1500")))
}

func TestUpdateRejectsInvalidResult(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(storage.NewMemory(), 10)

	_, err := repo.Update(ctx, currency.USD, func(cfg Config) (Config, error) {
		cfg.Mode = Mode("sideways")
		return cfg, nil
	})
	require.Error(t, err)

	got, err := repo.Get(ctx, currency.USD)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(currency.USD), got)
}
