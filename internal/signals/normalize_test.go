package signals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatCloses returns n identical closes, a zero-momentum zero-volatility series.
func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

// trendingCloses returns n closes growing by pct percent per step.
func trendingCloses(n int, start, pct float64) []float64 {
	closes := make([]float64, n)
	price := start
	for i := range closes {
		closes[i] = price
		price *= 1 + pct/100
	}
	return closes
}

func TestScale(t *testing.T) {
	tests := []struct {
		name   string
		v      float64
		lo, hi float64
		invert bool
		want   float64
	}{
		{"midpoint", 0, -10, 10, false, 50},
		{"lower bound", -10, -10, 10, false, 0},
		{"upper bound", 10, -10, 10, false, 100},
		{"clamped below", -25, -10, 10, false, 0},
		{"clamped above", 25, -10, 10, false, 100},
		{"inverted low is high", 0.5, 0.5, 1.5, true, 100},
		{"inverted high is low", 1.5, 0.5, 1.5, true, 0},
		{"inverted clamped", 3.0, 0.5, 1.5, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scale(tt.v, tt.lo, tt.hi, tt.invert), 1e-9)
		})
	}
}

func TestMomentumScore(t *testing.T) {
	// Flat market is dead neutral.
	assert.InDelta(t, 50, MomentumScore(flatCloses(30, 100)), 1e-9)

	// A strong uptrend saturates toward greed.
	up := MomentumScore(trendingCloses(30, 100, 1))
	assert.Greater(t, up, 80.0)

	down := MomentumScore(trendingCloses(30, 100, -1))
	assert.Less(t, down, 20.0)
}

func TestVolatilityScore(t *testing.T) {
	// A flat series has zero volatility, the calmest possible reading.
	assert.InDelta(t, 100, VolatilityScore(flatCloses(30, 100)), 1e-9)

	// Too few closes to measure falls back to neutral.
	assert.InDelta(t, 50, VolatilityScore(flatCloses(5, 100)), 1e-9)

	// Alternating large swings read as fear.
	swings := make([]float64, 30)
	for i := range swings {
		if i%2 == 0 {
			swings[i] = 100
		} else {
			swings[i] = 105
		}
	}
	assert.Less(t, VolatilityScore(swings), 20.0)
}

func TestPutCallScore(t *testing.T) {
	assert.InDelta(t, 50, PutCallScore(1.0), 1e-9)
	assert.InDelta(t, 100, PutCallScore(0.5), 1e-9) // heavy call buying, greed
	assert.InDelta(t, 0, PutCallScore(1.5), 1e-9)   // heavy put buying, fear
}

func TestSurveyScore(t *testing.T) {
	assert.InDelta(t, 50, SurveyScore(35, 35), 1e-9)
	assert.InDelta(t, 100, SurveyScore(75, 25), 1e-9)
	assert.InDelta(t, 0, SurveyScore(10, 70), 1e-9)
}

func TestSafeHavenScore(t *testing.T) {
	// Equities outperforming bonds reads as greed.
	score := SafeHavenScore(trendingCloses(30, 100, 0.5), flatCloses(30, 100))
	assert.Greater(t, score, 50.0)

	// Flight to safety reads as fear.
	score = SafeHavenScore(flatCloses(30, 100), trendingCloses(30, 100, 0.5))
	assert.Less(t, score, 50.0)
}

type stubProvider struct {
	raw *RawSignals
	err error
}

func (p *stubProvider) Raw(_ context.Context, _ string) (*RawSignals, error) {
	return p.raw, p.err
}

func TestNormalizingSourceFullInputs(t *testing.T) {
	source := NewNormalizingSource(&stubProvider{raw: &RawSignals{
		EquityCloses: trendingCloses(30, 100, 0.5),
		BondCloses:   flatCloses(30, 100),
		PutCallRatio: 0.8,
		BullishPct:   55,
		BearishPct:   25,
	}})

	sig, err := source.Signals(context.Background(), "2024-01-01")
	require.NoError(t, err)

	assert.InDelta(t, 100, sig.Quality, 1e-9)
	assert.True(t, sig.Components.InRange())
	assert.Greater(t, sig.Components.Momentum, 50.0)
	assert.Greater(t, sig.Components.PutCall, 50.0)
	assert.Greater(t, sig.Components.Sentiment, 50.0)
}

func TestNormalizingSourcePartialInputs(t *testing.T) {
	// Only the survey is present; everything else defaults to neutral.
	source := NewNormalizingSource(&stubProvider{raw: &RawSignals{
		BullishPct: 20,
		BearishPct: 60,
	}})

	sig, err := source.Signals(context.Background(), "2024-01-01")
	require.NoError(t, err)

	assert.InDelta(t, 20, sig.Quality, 1e-9)
	assert.InDelta(t, 50, sig.Components.Momentum, 1e-9)
	assert.InDelta(t, 50, sig.Components.Volatility, 1e-9)
	assert.InDelta(t, 50, sig.Components.PutCall, 1e-9)
	assert.InDelta(t, 50, sig.Components.SafeHaven, 1e-9)
	assert.InDelta(t, 10, sig.Components.Sentiment, 1e-9)
}

func TestNormalizingSourcePropagatesUnavailable(t *testing.T) {
	source := NewNormalizingSource(&stubProvider{err: ErrUnavailable})

	_, err := source.Signals(context.Background(), "2024-01-01")
	assert.ErrorIs(t, err, ErrUnavailable)
}
