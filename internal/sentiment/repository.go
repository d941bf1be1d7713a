package sentiment

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles sentiment record persistence in sentiment.db.
// Records are keyed by calendar date and outlive the jobs that wrote them.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new sentiment record repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "sentiment").Logger(),
	}
}

// Get retrieves the record for a date.
// Returns nil if no record exists (not an error).
func (r *Repository) Get(date string) (*Record, error) {
	row := r.db.QueryRow(`
		SELECT date, value, level, confidence,
		       momentum, sentiment, put_call, volatility, safe_haven, updated_at
		FROM sentiment_records WHERE date = ?
	`, date)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sentiment record for %s: %w", date, err)
	}
	return rec, nil
}

// Exists reports whether a record exists for the given date.
func (r *Repository) Exists(date string) (bool, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM sentiment_records WHERE date = ?", date).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check sentiment record for %s: %w", date, err)
	}
	return count > 0, nil
}

// Upsert inserts or overwrites the record for its date.
func (r *Repository) Upsert(rec Record) error {
	_, err := r.db.Exec(`
		INSERT INTO sentiment_records
			(date, value, level, confidence, momentum, sentiment, put_call, volatility, safe_haven, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			value = excluded.value,
			level = excluded.level,
			confidence = excluded.confidence,
			momentum = excluded.momentum,
			sentiment = excluded.sentiment,
			put_call = excluded.put_call,
			volatility = excluded.volatility,
			safe_haven = excluded.safe_haven,
			updated_at = excluded.updated_at
	`, rec.Date, rec.Value, string(rec.Level), rec.Confidence,
		rec.Components.Momentum, rec.Components.Sentiment, rec.Components.PutCall,
		rec.Components.Volatility, rec.Components.SafeHaven, rec.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert sentiment record for %s: %w", rec.Date, err)
	}
	return nil
}

// Range returns all records with date in [startDate, endDate], ordered by date.
// Empty bounds are open-ended.
func (r *Repository) Range(startDate, endDate string) ([]Record, error) {
	query := `
		SELECT date, value, level, confidence,
		       momentum, sentiment, put_call, volatility, safe_haven, updated_at
		FROM sentiment_records WHERE 1=1`
	args := []interface{}{}

	if startDate != "" {
		query += " AND date >= ?"
		args = append(args, startDate)
	}
	if endDate != "" {
		query += " AND date <= ?"
		args = append(args, endDate)
	}
	query += " ORDER BY date ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan sentiment record row")
			continue
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Latest returns the most recent record, or nil when the table is empty.
func (r *Repository) Latest() (*Record, error) {
	row := r.db.QueryRow(`
		SELECT date, value, level, confidence,
		       momentum, sentiment, put_call, volatility, safe_haven, updated_at
		FROM sentiment_records ORDER BY date DESC LIMIT 1
	`)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sentiment record: %w", err)
	}
	return rec, nil
}

// CountRange returns the number of records with date in [startDate, endDate].
// Empty bounds are open-ended.
func (r *Repository) CountRange(startDate, endDate string) (int, error) {
	query := "SELECT COUNT(*) FROM sentiment_records WHERE 1=1"
	args := []interface{}{}

	if startDate != "" {
		query += " AND date >= ?"
		args = append(args, startDate)
	}
	if endDate != "" {
		query += " AND date <= ?"
		args = append(args, endDate)
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sentiment records: %w", err)
	}
	return count, nil
}

// Count returns the number of stored records.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM sentiment_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sentiment records: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var level string
	var updatedAt int64

	err := s.Scan(&rec.Date, &rec.Value, &level, &rec.Confidence,
		&rec.Components.Momentum, &rec.Components.Sentiment, &rec.Components.PutCall,
		&rec.Components.Volatility, &rec.Components.SafeHaven, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Level = Level(level)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}
