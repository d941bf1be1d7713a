package signals

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"github.com/aristath/pulse/internal/sentiment"
)

// rocPeriod is the lookback for momentum rate-of-change.
const rocPeriod = 20

// stdDevPeriod is the lookback for volatility.
const stdDevPeriod = 20

// RawSignals is the unnormalized upstream data for one date.
// Series are ordered oldest to newest and end on the requested date.
type RawSignals struct {
	EquityCloses []float64 // Broad equity index closes
	BondCloses   []float64 // Safe-haven (bond/gold) closes
	PutCallRatio float64   // Options put/call volume ratio (0 = missing)
	BullishPct   float64   // Survey bullish percentage (0-100)
	BearishPct   float64   // Survey bearish percentage (0-100)
}

// RawProvider retrieves raw upstream series for a date.
// Implementations return ErrUnavailable (possibly wrapped) for dates
// the upstream has no data for.
type RawProvider interface {
	Raw(ctx context.Context, date string) (*RawSignals, error)
}

// NormalizingSource adapts a RawProvider into a Source by converting raw
// series into the five 0-100 components.
type NormalizingSource struct {
	provider RawProvider
}

// NewNormalizingSource creates a normalizing adapter over a raw provider.
func NewNormalizingSource(provider RawProvider) *NormalizingSource {
	return &NormalizingSource{provider: provider}
}

// Signals fetches and normalizes the signal for a date.
func (s *NormalizingSource) Signals(ctx context.Context, date string) (*Signal, error) {
	raw, err := s.provider.Raw(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("raw signals for %s: %w", date, err)
	}

	available := 0.0
	components := sentiment.Components{
		Momentum:   50,
		Sentiment:  50,
		PutCall:    50,
		Volatility: 50,
		SafeHaven:  50,
	}

	if len(raw.EquityCloses) > rocPeriod {
		components.Momentum = MomentumScore(raw.EquityCloses)
		components.Volatility = VolatilityScore(raw.EquityCloses)
		available += 2
	}
	if raw.PutCallRatio > 0 {
		components.PutCall = PutCallScore(raw.PutCallRatio)
		available++
	}
	if raw.BullishPct > 0 || raw.BearishPct > 0 {
		components.Sentiment = SurveyScore(raw.BullishPct, raw.BearishPct)
		available++
	}
	if len(raw.EquityCloses) > rocPeriod && len(raw.BondCloses) > rocPeriod {
		components.SafeHaven = SafeHavenScore(raw.EquityCloses, raw.BondCloses)
		available++
	}

	return &Signal{
		Components: components,
		Quality:    available / 5 * 100,
	}, nil
}

// MomentumScore maps the 20-day rate of change onto [0, 100].
// A ±10% move saturates the scale.
func MomentumScore(closes []float64) float64 {
	roc := talib.Roc(closes, rocPeriod)
	return scale(roc[len(roc)-1], -10, 10, false)
}

// VolatilityScore maps 20-day close volatility onto [0, 100], inverted:
// high volatility reads as fear.
func VolatilityScore(closes []float64) float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1]*100)
		}
	}
	if len(returns) < stdDevPeriod {
		return 50
	}

	stddev := talib.StdDev(returns, stdDevPeriod, 1.0)
	// 0% daily stddev = calm (100), 3%+ = panic (0).
	return scale(stddev[len(stddev)-1], 0, 3, true)
}

// PutCallScore maps the put/call ratio onto [0, 100], inverted: heavy
// put buying reads as fear. 0.5 and 1.5 saturate the scale.
func PutCallScore(ratio float64) float64 {
	return scale(ratio, 0.5, 1.5, true)
}

// SurveyScore maps the bull-bear survey spread onto [0, 100].
// A ±50 point spread saturates the scale.
func SurveyScore(bullishPct, bearishPct float64) float64 {
	return scale(bullishPct-bearishPct, -50, 50, false)
}

// SafeHavenScore compares 20-day equity and safe-haven returns.
// Equity outperformance reads as greed; a ±10 point spread saturates.
func SafeHavenScore(equityCloses, bondCloses []float64) float64 {
	equityRoc := talib.Roc(equityCloses, rocPeriod)
	bondRoc := talib.Roc(bondCloses, rocPeriod)
	spread := equityRoc[len(equityRoc)-1] - bondRoc[len(bondRoc)-1]
	return scale(spread, -10, 10, false)
}

// scale linearly maps v from [lo, hi] onto [0, 100], clamped.
// When invert is true, lo maps to 100 and hi to 0.
func scale(v, lo, hi float64, invert bool) float64 {
	score := (v - lo) / (hi - lo) * 100
	if invert {
		score = 100 - score
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
