// Package stats summarises what has been ingested: row counts, temporal and
// geographic extent, per-basin coverage and the most recent ingestion
// attempts.
package stats

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Reporter struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Reporter {
	return &Reporter{db: db}
}

type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`

	Floats       int64 `json:"floats"`
	Profiles     int64 `json:"profiles"`
	Measurements int64 `json:"measurements"`

	EarliestProfile *time.Time `json:"earliestProfile,omitempty"`
	LatestProfile   *time.Time `json:"latestProfile,omitempty"`

	Bounds *Bounds `json:"bounds,omitempty"`

	Regions []RegionCoverage `json:"regions"`

	RecentIngestions []IngestionSummary `json:"recentIngestions"`
}

type Bounds struct {
	MinLatitude  float64 `json:"minLatitude"`
	MaxLatitude  float64 `json:"maxLatitude"`
	MinLongitude float64 `json:"minLongitude"`
	MaxLongitude float64 `json:"maxLongitude"`
}

type RegionCoverage struct {
	Region   string `json:"region"`
	Profiles int64  `json:"profiles"`
}

type IngestionSummary struct {
	Path         string    `json:"path"`
	Status       string    `json:"status"`
	CompletedAt  time.Time `json:"completedAt"`
	RowsInserted int64     `json:"rowsInserted"`
	RowsUpdated  int64     `json:"rowsUpdated"`
}

// Rough basin assignment by position. Good enough for coverage reporting;
// profiles near basin boundaries may land in a neighbour.
const regionCase = `CASE
	WHEN latitude > 66 THEN 'Arctic'
	WHEN latitude < -60 THEN 'Southern'
	WHEN longitude >= -70 AND longitude < 20 THEN 'Atlantic'
	WHEN longitude >= 20 AND longitude < 146 THEN 'Indian'
	ELSE 'Pacific'
END`

// Collect gathers the report with a handful of aggregate queries.
func (r *Reporter) Collect(ctx context.Context) (*Report, error) {
	report := &Report{GeneratedAt: time.Now().UTC()}

	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM ocean_float),
			(SELECT count(*) FROM profile),
			(SELECT count(*) FROM measurement)`).
		Scan(&report.Floats, &report.Profiles, &report.Measurements)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var minLat, maxLat, minLon, maxLon *float64
	err = r.db.QueryRow(ctx, `
		SELECT min(measured_at), max(measured_at),
		       min(latitude), max(latitude), min(longitude), max(longitude)
		FROM profile`).
		Scan(&report.EarliestProfile, &report.LatestProfile, &minLat, &maxLat, &minLon, &maxLon)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if minLat != nil {
		report.Bounds = &Bounds{
			MinLatitude:  *minLat,
			MaxLatitude:  *maxLat,
			MinLongitude: *minLon,
			MaxLongitude: *maxLon,
		}
	}

	rows, err := r.db.Query(ctx,
		"SELECT "+regionCase+" AS region, count(*) FROM profile GROUP BY region ORDER BY region")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	for rows.Next() {
		var coverage RegionCoverage
		if err := rows.Scan(&coverage.Region, &coverage.Profiles); err != nil {
			return nil, errors.WithStack(err)
		}
		report.Regions = append(report.Regions, coverage)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	recent, err := r.db.Query(ctx, `
		SELECT path, status, completed_at, rows_inserted, rows_updated
		FROM ingestion_record
		ORDER BY completed_at DESC
		LIMIT 10`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer recent.Close()
	for recent.Next() {
		var s IngestionSummary
		if err := recent.Scan(&s.Path, &s.Status, &s.CompletedAt, &s.RowsInserted, &s.RowsUpdated); err != nil {
			return nil, errors.WithStack(err)
		}
		report.RecentIngestions = append(report.RecentIngestions, s)
	}
	if err := recent.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return report, nil
}
