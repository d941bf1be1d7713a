// Package signals supplies the five normalized sentiment components for a
// calendar date. The engine core only depends on the Source interface;
// upstream market-data retrieval lives behind it.
package signals

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"

	"github.com/aristath/pulse/internal/sentiment"
)

// ErrUnavailable indicates no signal data exists for a date.
// Strategies treat it as a per-unit failure: counted and logged, never
// aborting the job.
var ErrUnavailable = errors.New("signal data unavailable")

// Signal is one date's worth of normalized inputs.
type Signal struct {
	Components sentiment.Components `msgpack:"components"`
	Quality    float64              `msgpack:"quality"` // 0-100 input completeness score
}

// Source supplies the normalized signal for a date.
// Implementations return ErrUnavailable (possibly wrapped) when the
// upstream has no data for that date.
type Source interface {
	Signals(ctx context.Context, date string) (*Signal, error)
}

// RandomWalkSource is a deterministic synthetic source for development
// and tests: the same date always yields the same signal.
type RandomWalkSource struct{}

// NewRandomWalkSource creates a synthetic signal source.
func NewRandomWalkSource() *RandomWalkSource {
	return &RandomWalkSource{}
}

// Signals returns a synthetic signal derived from the date alone.
func (s *RandomWalkSource) Signals(_ context.Context, date string) (*Signal, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(date))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	component := func() float64 {
		// Centered around neutral with enough spread to hit every level.
		return 5 + rng.Float64()*90
	}

	return &Signal{
		Components: sentiment.Components{
			Momentum:   component(),
			Sentiment:  component(),
			PutCall:    component(),
			Volatility: component(),
			SafeHaven:  component(),
		},
		Quality: 70 + rng.Float64()*30,
	}, nil
}
