// Package sentiment computes the multi-factor market sentiment index.
// The index is a weighted blend of five normalized signal components
// (price momentum, investor sentiment, put/call ratio, volatility and
// safe-haven demand), producing an integer value in [0, 100] with a
// discrete fear/greed level classification.
package sentiment

import (
	"fmt"
	"math"
	"time"
)

// WeightTolerance is the maximum allowed deviation of the weight sum from 1.0.
const WeightTolerance = 1e-3

// Level is the discrete classification of an index value.
type Level string

const (
	LevelExtremeFear  Level = "EXTREME_FEAR"
	LevelFear         Level = "FEAR"
	LevelNeutral      Level = "NEUTRAL"
	LevelGreed        Level = "GREED"
	LevelExtremeGreed Level = "EXTREME_GREED"
)

// ClassifyLevel maps an index value to its level.
// Boundaries are inclusive on the lower side: 25 is still EXTREME_FEAR,
// 55 is still NEUTRAL, 75 is still GREED.
func ClassifyLevel(value int) Level {
	switch {
	case value <= 25:
		return LevelExtremeFear
	case value <= 45:
		return LevelFear
	case value <= 55:
		return LevelNeutral
	case value <= 75:
		return LevelGreed
	default:
		return LevelExtremeGreed
	}
}

// ConfigurationError indicates an invalid weight configuration.
// Weights are validated once at configuration load; an invalid set is
// rejected outright, never silently renormalized.
type ConfigurationError struct {
	Sum float64
	Msg string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("invalid scoring configuration: %s", e.Msg)
	}
	return fmt.Sprintf("invalid scoring configuration: weights sum to %.4f, expected 1.0 ±%.0e", e.Sum, WeightTolerance)
}

// Weights holds the five component weights.
type Weights struct {
	Momentum   float64 `json:"momentum"`
	Sentiment  float64 `json:"sentiment"`
	PutCall    float64 `json:"putCall"`
	Volatility float64 `json:"volatility"`
	SafeHaven  float64 `json:"safeHaven"`
}

// DefaultWeights returns the production weight configuration.
func DefaultWeights() Weights {
	return Weights{
		Momentum:   0.25,
		Sentiment:  0.25,
		PutCall:    0.20,
		Volatility: 0.15,
		SafeHaven:  0.15,
	}
}

// Sum returns the total of all five weights.
func (w Weights) Sum() float64 {
	return w.Momentum + w.Sentiment + w.PutCall + w.Volatility + w.SafeHaven
}

// Validate checks the weight configuration.
// Each weight must be in [0, 1] and the sum must be 1.0 within tolerance.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"momentum":   w.Momentum,
		"sentiment":  w.Sentiment,
		"putCall":    w.PutCall,
		"volatility": w.Volatility,
		"safeHaven":  w.SafeHaven,
	} {
		if v < 0 || v > 1 {
			return &ConfigurationError{Msg: fmt.Sprintf("weight %s=%.4f out of range [0,1]", name, v)}
		}
	}

	sum := w.Sum()
	if math.Abs(sum-1.0) > WeightTolerance {
		return &ConfigurationError{Sum: sum}
	}

	return nil
}

// Components holds the five input sub-scores, each already normalized to [0, 100].
type Components struct {
	Momentum   float64 `json:"momentum"`
	Sentiment  float64 `json:"sentiment"`
	PutCall    float64 `json:"putCall"`
	Volatility float64 `json:"volatility"`
	SafeHaven  float64 `json:"safeHaven"`
}

// InRange reports whether every component lies in [0, 100].
func (c Components) InRange() bool {
	for _, v := range []float64{c.Momentum, c.Sentiment, c.PutCall, c.Volatility, c.SafeHaven} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return true
}

// Record is one computed sentiment index entry for a calendar date.
type Record struct {
	Date       string     `json:"date"` // ISO date (YYYY-MM-DD)
	Value      int        `json:"value"`
	Level      Level      `json:"level"`
	Confidence float64    `json:"confidence"` // 0-100, informational only
	Components Components `json:"components"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Engine computes sentiment index values from normalized components.
// It is a pure calculator: same inputs always produce the same output.
type Engine struct {
	weights Weights
}

// NewEngine creates a scoring engine with validated weights.
func NewEngine(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: w}, nil
}

// Weights returns the engine's weight configuration.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Value computes the weighted index value for a set of components,
// rounded to the nearest integer and clamped to [0, 100].
func (e *Engine) Value(c Components) int {
	raw := e.weights.Momentum*c.Momentum +
		e.weights.Sentiment*c.Sentiment +
		e.weights.PutCall*c.PutCall +
		e.weights.Volatility*c.Volatility +
		e.weights.SafeHaven*c.SafeHaven

	value := int(math.Round(raw))
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value
}

// Compute produces a full record for a date from components and a
// confidence score. Confidence never influences value or level.
func (e *Engine) Compute(date string, c Components, confidence float64) Record {
	value := e.Value(c)
	return Record{
		Date:       date,
		Value:      value,
		Level:      ClassifyLevel(value),
		Confidence: clamp100(confidence),
		Components: c,
		UpdatedAt:  time.Now(),
	}
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
