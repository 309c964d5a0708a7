package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhishekshelar208/oceanquery/internal/common/database"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/oceandb"
)

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "R5904297_012.nc")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	a := Fingerprint(path, info)
	b := Fingerprint(path, info)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	// A different modification time is a different file state.
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Hour)))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.NotEqual(t, a, Fingerprint(path, info))

	// A different path is a different file state even with equal content.
	other := filepath.Join(dir, "R5904297_013.nc")
	require.NoError(t, os.WriteFile(other, []byte("data"), 0o644))
	otherInfo, err := os.Stat(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, Fingerprint(other, otherInfo))
}

func withLedger(t *testing.T, action func(l *Ledger, pool *pgxpool.Pool)) {
	t.Helper()
	migrations, err := oceandb.Migrations()
	require.NoError(t, err)
	err = database.WithTestDb(t, migrations, func(pool *pgxpool.Pool) error {
		l, err := New(pool, 128)
		require.NoError(t, err)
		action(l, pool)
		return nil
	})
	require.NoError(t, err)
}

func fileResult(fingerprint string, outcome model.FileOutcome) *model.FileResult {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.FileResult{
		Path:        "/data/R5904297_012.nc",
		Fingerprint: fingerprint,
		FileSize:    1024,
		Outcome:     outcome,
		StartedAt:   now.Add(-time.Second),
		CompletedAt: now,
	}
}

func TestRecordAndWasIngested(t *testing.T) {
	withLedger(t, func(l *Ledger, pool *pgxpool.Pool) {
		ctx := context.Background()

		ingested, err := l.WasIngested(ctx, "abc")
		require.NoError(t, err)
		assert.False(t, ingested)

		require.NoError(t, l.Record(ctx, "run-1", fileResult("abc", model.FileSucceeded)))
		ingested, err = l.WasIngested(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, ingested)

		// A failed attempt does not mark the fingerprint as ingested.
		require.NoError(t, l.Record(ctx, "run-1", fileResult("def", model.FileFailed)))
		ingested, err = l.WasIngested(ctx, "def")
		require.NoError(t, err)
		assert.False(t, ingested)
	})
}

// Long failure messages are truncated before recording, not stored whole.
func TestRecordTruncatesError(t *testing.T) {
	withLedger(t, func(l *Ledger, pool *pgxpool.Pool) {
		ctx := context.Background()

		result := fileResult("ghi", model.FileFailed)
		result.Error = strings.Repeat("x", 10*maxRecordedErrorLength)
		require.NoError(t, l.Record(ctx, "run-1", result))

		var stored string
		err := pool.QueryRow(ctx,
			"SELECT error FROM ingestion_record WHERE fingerprint = $1", "ghi").Scan(&stored)
		require.NoError(t, err)
		assert.Len(t, stored, maxRecordedErrorLength)
	})
}

// The fresh ledger must see successes recorded by earlier runs, not just
// ones in its own cache.
func TestWasIngestedSurvivesRestart(t *testing.T) {
	withLedger(t, func(l *Ledger, pool *pgxpool.Pool) {
		ctx := context.Background()
		require.NoError(t, l.Record(ctx, "run-1", fileResult("abc", model.FileSucceeded)))

		fresh, err := New(pool, 128)
		require.NoError(t, err)
		ingested, err := fresh.WasIngested(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, ingested)
	})
}

// Two runs racing on the same file state produce one success row; the
// loser's insert is redundant, not an error.
func TestConcurrentSuccessIsRedundant(t *testing.T) {
	withLedger(t, func(l *Ledger, pool *pgxpool.Pool) {
		ctx := context.Background()
		require.NoError(t, l.Record(ctx, "run-1", fileResult("abc", model.FileSucceeded)))
		require.NoError(t, l.Record(ctx, "run-2", fileResult("abc", model.FileSucceeded)))

		var count int
		require.NoError(t, pool.QueryRow(ctx,
			"SELECT count(*) FROM ingestion_record WHERE fingerprint = 'abc' AND status = 'success'").Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestCleanupKeepsSuccesses(t *testing.T) {
	withLedger(t, func(l *Ledger, pool *pgxpool.Pool) {
		ctx := context.Background()
		require.NoError(t, l.Record(ctx, "run-1", fileResult("abc", model.FileSucceeded)))
		require.NoError(t, l.Record(ctx, "run-1", fileResult("def", model.FileFailed)))
		_, err := pool.Exec(ctx, "UPDATE ingestion_record SET created_at = now() - interval '60 days'")
		require.NoError(t, err)

		removed, err := l.Cleanup(ctx, 30*24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		ingested, err := l.WasIngested(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, ingested)
	})
}
