// Package reports produces CSV report artifacts from sentiment records and
// optionally uploads them to S3-compatible storage.
package reports

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/pulse/internal/sentiment"
)

// Summary holds aggregate statistics over a report's records.
type Summary struct {
	Records   int     `json:"records"`
	MeanValue float64 `json:"meanValue"`
	StdDev    float64 `json:"stdDev"`
	MinValue  int     `json:"minValue"`
	MaxValue  int     `json:"maxValue"`
}

// Generator writes report artifacts to a local directory.
type Generator struct {
	dir string
	log zerolog.Logger
}

// NewGenerator creates a report generator writing into dir.
func NewGenerator(dir string, log zerolog.Logger) *Generator {
	return &Generator{
		dir: dir,
		log: log.With().Str("component", "reports").Logger(),
	}
}

// Generate writes a CSV artifact for the given records and returns its
// path together with aggregate statistics. The file name embeds the job
// id so re-runs of the same job overwrite their own artifact.
func (g *Generator) Generate(jobID string, records []sentiment.Record) (string, *Summary, error) {
	path := filepath.Join(g.dir, fmt.Sprintf("sentiment-%s.csv", jobID))

	f, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"date", "value", "level", "confidence", "momentum", "sentiment", "put_call", "volatility", "safe_haven", "updated_at"}
	if err := w.Write(header); err != nil {
		return "", nil, fmt.Errorf("failed to write report header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Date,
			strconv.Itoa(rec.Value),
			string(rec.Level),
			formatFloat(rec.Confidence),
			formatFloat(rec.Components.Momentum),
			formatFloat(rec.Components.Sentiment),
			formatFloat(rec.Components.PutCall),
			formatFloat(rec.Components.Volatility),
			formatFloat(rec.Components.SafeHaven),
			rec.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", nil, fmt.Errorf("failed to write report row for %s: %w", rec.Date, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", nil, fmt.Errorf("failed to flush report: %w", err)
	}

	g.log.Info().Str("path", path).Int("records", len(records)).Msg("report artifact written")
	return path, Summarize(records), nil
}

// Summarize computes aggregate statistics over a set of records.
func Summarize(records []sentiment.Record) *Summary {
	s := &Summary{Records: len(records)}
	if len(records) == 0 {
		return s
	}

	values := make([]float64, len(records))
	s.MinValue = records[0].Value
	s.MaxValue = records[0].Value
	for i, rec := range records {
		values[i] = float64(rec.Value)
		if rec.Value < s.MinValue {
			s.MinValue = rec.Value
		}
		if rec.Value > s.MaxValue {
			s.MaxValue = rec.Value
		}
	}

	s.MeanValue = stat.Mean(values, nil)
	if len(values) > 1 {
		s.StdDev = stat.StdDev(values, nil)
	}
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
