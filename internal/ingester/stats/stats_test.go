package stats

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhishekshelar208/oceanquery/internal/common/database"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/oceandb"
)

func TestCollect(t *testing.T) {
	migrations, err := oceandb.Migrations()
	require.NoError(t, err)
	err = database.WithTestDb(t, migrations, func(pool *pgxpool.Pool) error {
		ctx := context.Background()
		measuredAt := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)

		_, err := pool.Exec(ctx,
			"INSERT INTO ocean_float (float_id, platform_number) VALUES ($1, $1)", "5904297")
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `
			INSERT INTO profile (profile_id, float_id, cycle_number, latitude, longitude, measured_at)
			VALUES ('5904297_1', '5904297', 1, 35.5, -30, $1),
			       ('5904297_2', '5904297', 2, -5, 80, $2)`,
			measuredAt, measuredAt.AddDate(0, 1, 0))
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `
			INSERT INTO measurement (profile_id, pressure, depth)
			VALUES ('5904297_1', 5, 4.87), ('5904297_1', 10, 9.75)`)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `
			INSERT INTO ingestion_record (path, fingerprint, status, started_at, completed_at, rows_inserted)
			VALUES ('/data/a.nc', 'abc', 'success', now(), now(), 5)`)
		require.NoError(t, err)

		report, err := New(pool).Collect(ctx)
		require.NoError(t, err)

		assert.Equal(t, int64(1), report.Floats)
		assert.Equal(t, int64(2), report.Profiles)
		assert.Equal(t, int64(2), report.Measurements)

		require.NotNil(t, report.EarliestProfile)
		assert.True(t, report.EarliestProfile.Equal(measuredAt))
		require.NotNil(t, report.LatestProfile)
		assert.True(t, report.LatestProfile.Equal(measuredAt.AddDate(0, 1, 0)))

		require.NotNil(t, report.Bounds)
		assert.Equal(t, -5.0, report.Bounds.MinLatitude)
		assert.Equal(t, 35.5, report.Bounds.MaxLatitude)

		regions := map[string]int64{}
		for _, r := range report.Regions {
			regions[r.Region] = r.Profiles
		}
		assert.Equal(t, int64(1), regions["Atlantic"])
		assert.Equal(t, int64(1), regions["Indian"])

		require.Len(t, report.RecentIngestions, 1)
		assert.Equal(t, "/data/a.nc", report.RecentIngestions[0].Path)
		assert.Equal(t, int64(5), report.RecentIngestions[0].RowsInserted)
		return nil
	})
	require.NoError(t, err)
}

// An empty database produces a report rather than an error.
func TestCollectEmptyDatabase(t *testing.T) {
	migrations, err := oceandb.Migrations()
	require.NoError(t, err)
	err = database.WithTestDb(t, migrations, func(pool *pgxpool.Pool) error {
		report, err := New(pool).Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(0), report.Profiles)
		assert.Nil(t, report.EarliestProfile)
		assert.Nil(t, report.Bounds)
		assert.Empty(t, report.Regions)
		return nil
	})
	require.NoError(t, err)
}
