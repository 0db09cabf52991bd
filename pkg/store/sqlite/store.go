// Package sqlite keeps a log of readings in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	// register the pure Go sqlite driver
	_ "modernc.org/sqlite"

	"github.com/robotalks/spc.go/pkg/msgs"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	reading_id TEXT PRIMARY KEY,
	station TEXT NOT NULL,
	gauge TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	value DOUBLE NOT NULL,
	unit TEXT NOT NULL,
	raw_unit INTEGER NOT NULL,
	decimals INTEGER NOT NULL,
	negative INTEGER NOT NULL,
	frame TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_gauge_ts ON readings (gauge, timestamp_ms);
`

// Store implements sink.Sink writing readings to SQLite.
type Store struct {
	*sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %v", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db}, nil
}

// Publish implements sink.Sink.
func (s *Store) Publish(ctx context.Context, r *msgs.Reading) error {
	_, err := s.ExecContext(ctx,
		`INSERT INTO readings (reading_id, station, gauge, timestamp_ms, value, unit, raw_unit, decimals, negative, frame)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), r.Station, r.Gauge, r.TimestampMs, r.Value, r.Unit,
		r.RawUnit, r.Decimals, r.Negative, r.Frame)
	return err
}

// Recent returns the latest n readings of a gauge, newest first.
func (s *Store) Recent(ctx context.Context, gauge string, n int) ([]*msgs.Reading, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT station, gauge, timestamp_ms, value, unit, raw_unit, decimals, negative, frame
		FROM readings WHERE gauge = ? ORDER BY timestamp_ms DESC LIMIT ?`, gauge, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var readings []*msgs.Reading
	for rows.Next() {
		var r msgs.Reading
		if err := rows.Scan(&r.Station, &r.Gauge, &r.TimestampMs, &r.Value, &r.Unit,
			&r.RawUnit, &r.Decimals, &r.Negative, &r.Frame); err != nil {
			return nil, err
		}
		readings = append(readings, &r)
	}
	return readings, rows.Err()
}

// Summary is the statistics of readings of a gauge in one unit.
type Summary struct {
	Gauge  string
	Unit   string
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summaries computes statistics of a gauge, one Summary per unit.
func (s *Store) Summaries(ctx context.Context, gauge string) ([]Summary, error) {
	rows, err := s.QueryContext(ctx, `SELECT unit, value FROM readings WHERE gauge = ?`, gauge)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := make(map[string][]float64)
	for rows.Next() {
		var unit string
		var value float64
		if err := rows.Scan(&unit, &value); err != nil {
			return nil, err
		}
		values[unit] = append(values[unit], value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(values))
	for unit, xs := range values {
		sum := Summary{Gauge: gauge, Unit: unit, Count: len(xs), Min: math.Inf(1), Max: math.Inf(-1)}
		sum.Mean, sum.StdDev = stat.MeanStdDev(xs, nil)
		if len(xs) < 2 {
			sum.StdDev = 0
		}
		for _, x := range xs {
			sum.Min, sum.Max = math.Min(sum.Min, x), math.Max(sum.Max, x)
		}
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Unit < summaries[j].Unit })
	return summaries, nil
}
