package database

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// TestDatabaseEnv names the environment variable holding the connection URL
// of a postgres instance usable for integration tests.
const TestDatabaseEnv = "OCEANQUERY_TEST_DATABASE_URL"

// WithTestDb connects to the test database named by OCEANQUERY_TEST_DATABASE_URL,
// applies the supplied migrations, truncates any tables they created, and runs
// the action callback. Tests calling this are skipped when the variable is unset
// so the suite stays runnable without infrastructure.
func WithTestDb(t *testing.T, migrations []Migration, action func(db *pgxpool.Pool) error) error {
	t.Helper()
	url := os.Getenv(TestDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set; skipping database integration test", TestDatabaseEnv)
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, url)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close()

	if err := UpdateDatabase(ctx, db, migrations); err != nil {
		return errors.WithStack(err)
	}

	// Each test starts from empty tables.
	_, err = db.Exec(ctx, `TRUNCATE ocean_float, profile, measurement, ingestion_record CASCADE`)
	if err != nil {
		return errors.WithStack(err)
	}

	return action(db)
}
