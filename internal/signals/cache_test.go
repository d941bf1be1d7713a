package signals

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pulse/internal/database"
	"github.com/aristath/pulse/internal/sentiment"
)

func newTestCache(t *testing.T) (*Cache, *sql.DB) {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return NewCache(db.Conn(), zerolog.Nop()), db.Conn()
}

func testSignal(momentum float64) *Signal {
	return &Signal{
		Components: sentiment.Components{Momentum: momentum, Sentiment: 50, PutCall: 50, Volatility: 50, SafeHaven: 50},
		Quality:    90,
	}
}

func TestCacheMissReturnsNil(t *testing.T) {
	cache, _ := newTestCache(t)

	sig, err := cache.Get("2024-01-01")
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)

	require.NoError(t, cache.Put("2024-01-01", testSignal(72)))

	got, err := cache.Get("2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 72.0, got.Components.Momentum)
	assert.Equal(t, 90.0, got.Quality)
}

func TestCachePutReplaces(t *testing.T) {
	cache, _ := newTestCache(t)

	require.NoError(t, cache.Put("2024-01-01", testSignal(10)))
	require.NoError(t, cache.Put("2024-01-01", testSignal(95)))

	got, err := cache.Get("2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 95.0, got.Components.Momentum)
}

func TestCacheCorruptEntryIsAMiss(t *testing.T) {
	cache, conn := newTestCache(t)

	_, err := conn.Exec("INSERT INTO signal_cache (date, payload, cached_at) VALUES (?, ?, ?)",
		"2024-01-01", []byte("not msgpack"), 0)
	require.NoError(t, err)

	sig, err := cache.Get("2024-01-01")
	require.NoError(t, err)
	assert.Nil(t, sig)
}

// countingSource tracks how often the upstream is hit.
type countingSource struct {
	inner Source
	calls int
}

func (s *countingSource) Signals(ctx context.Context, date string) (*Signal, error) {
	s.calls++
	return s.inner.Signals(ctx, date)
}

func TestCachingSourceReadThrough(t *testing.T) {
	cache, _ := newTestCache(t)
	upstream := &countingSource{inner: NewRandomWalkSource()}
	source := NewCachingSource(upstream, cache, zerolog.Nop())

	first, err := source.Signals(context.Background(), "2024-01-01")
	require.NoError(t, err)
	second, err := source.Signals(context.Background(), "2024-01-01")
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, first.Components, second.Components)

	// A different date misses the cache.
	_, err = source.Signals(context.Background(), "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachingSourceDoesNotCacheFailures(t *testing.T) {
	cache, _ := newTestCache(t)
	source := NewCachingSource(&stubFailingSource{}, cache, zerolog.Nop())

	_, err := source.Signals(context.Background(), "2024-01-01")
	assert.ErrorIs(t, err, ErrUnavailable)

	cached, err := cache.Get("2024-01-01")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

type stubFailingSource struct{}

func (s *stubFailingSource) Signals(context.Context, string) (*Signal, error) {
	return nil, ErrUnavailable
}
