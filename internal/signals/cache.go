package signals

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores fetched signals in cache.db, keyed by date.
// Payloads are msgpack-encoded; the cache is ephemeral and safe to drop.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a signal cache.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("repository", "signal_cache").Logger(),
	}
}

// Get returns the cached signal for a date, or nil on a miss.
func (c *Cache) Get(date string) (*Signal, error) {
	var payload []byte
	err := c.db.QueryRow("SELECT payload FROM signal_cache WHERE date = ?", date).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read signal cache for %s: %w", date, err)
	}

	var sig Signal
	if err := msgpack.Unmarshal(payload, &sig); err != nil {
		// A corrupt cache entry is a miss, not a failure.
		c.log.Warn().Err(err).Str("date", date).Msg("discarding undecodable cache entry")
		return nil, nil
	}
	return &sig, nil
}

// Put stores the signal for a date, replacing any previous entry.
func (c *Cache) Put(date string, sig *Signal) error {
	payload, err := msgpack.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to encode signal for %s: %w", date, err)
	}

	_, err = c.db.Exec(`
		INSERT INTO signal_cache (date, payload, cached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at
	`, date, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write signal cache for %s: %w", date, err)
	}
	return nil
}

// CachingSource wraps a Source with a read-through cache.
// Upstream failures are never cached.
type CachingSource struct {
	inner Source
	cache *Cache
	log   zerolog.Logger
}

// NewCachingSource creates a read-through caching wrapper.
func NewCachingSource(inner Source, cache *Cache, log zerolog.Logger) *CachingSource {
	return &CachingSource{
		inner: inner,
		cache: cache,
		log:   log.With().Str("component", "signal_source").Logger(),
	}
}

// Signals returns the cached signal for a date, fetching and caching it
// on a miss.
func (s *CachingSource) Signals(ctx context.Context, date string) (*Signal, error) {
	cached, err := s.cache.Get(date)
	if err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("signal cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	sig, err := s.inner.Signals(ctx, date)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(date, sig); err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("signal cache write failed")
	}
	return sig, nil
}
