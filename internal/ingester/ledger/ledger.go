// Package ledger keeps the per-file ingestion history in Postgres. Every
// processing attempt is recorded, and files whose fingerprint already has a
// successful record are skipped on later runs. A partial unique index on
// successful fingerprints is the correctness backstop: when two workers race
// on the same file, exactly one success row wins and the loser's attempt is
// redundant rather than wrong.
package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Abhishekshelar208/oceanquery/internal/common/oceanerrors"
	"github.com/Abhishekshelar208/oceanquery/internal/common/util"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
)

// Error messages can embed whole stack traces; the ledger keeps enough to
// diagnose, not the full dump.
const maxRecordedErrorLength = 2048

type Ledger struct {
	db *pgxpool.Pool

	// cache holds fingerprints known to have succeeded, so repeated runs
	// over a large archive skip most files without a round trip.
	mu    sync.Mutex
	cache *simplelru.LRU
}

func New(db *pgxpool.Pool, cacheSize int) (*Ledger, error) {
	cache, err := simplelru.NewLRU(cacheSize, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Ledger{db: db, cache: cache}, nil
}

// Fingerprint identifies one file state. Path, size and modification time
// all contribute, so touching a file's contents makes it eligible for
// re-ingestion while a pure re-run skips it.
func Fingerprint(path string, info os.FileInfo) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())))
	return fmt.Sprintf("%x", h)
}

// WasIngested reports whether the fingerprint already has a successful
// ingestion record.
func (l *Ledger) WasIngested(ctx context.Context, fingerprint string) (bool, error) {
	l.mu.Lock()
	_, cached := l.cache.Get(fingerprint)
	l.mu.Unlock()
	if cached {
		return true, nil
	}

	var exists bool
	err := l.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM ingestion_record WHERE fingerprint = $1 AND status = 'success')",
		fingerprint).Scan(&exists)
	if err != nil {
		return false, errors.WithStack(err)
	}
	if exists {
		l.mu.Lock()
		l.cache.Add(fingerprint, true)
		l.mu.Unlock()
	}
	return exists, nil
}

// Record appends one processing attempt. A unique violation on a success
// record means another worker already ingested the same file state; that is
// the outcome we wanted, so it is not an error.
func (l *Ledger) Record(ctx context.Context, runID string, result *model.FileResult) error {
	rowsInserted := result.Store.Floats.Inserted + result.Store.Profiles.Inserted + result.Store.Measurements.Inserted
	rowsUpdated := result.Store.Floats.Updated + result.Store.Profiles.Updated + result.Store.Measurements.Updated

	_, err := l.db.Exec(ctx, `
		INSERT INTO ingestion_record (
			path, fingerprint, file_size, status, error, run_id,
			profiles_parsed, profiles_rejected, measurements_parsed, measurements_rejected,
			rows_inserted, rows_updated, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		result.Path, result.Fingerprint, result.FileSize, string(result.Outcome),
		util.Truncate(result.Error, maxRecordedErrorLength), runID,
		result.ProfilesParsed, result.ProfilesRejected, result.MeasurementsParsed, result.MeasurementsRejected,
		rowsInserted, rowsUpdated, result.StartedAt, result.CompletedAt)
	if err != nil {
		if oceanerrors.IsUniqueViolation(err) {
			log.Debugf("File %s was recorded as ingested by a concurrent run", result.Path)
			err = nil
		} else {
			return errors.WithStack(err)
		}
	}

	if result.Outcome == model.FileSucceeded {
		l.mu.Lock()
		l.cache.Add(result.Fingerprint, true)
		l.mu.Unlock()
	}
	return nil
}

// Cleanup removes failed and skipped records older than lifespan. Success
// records are kept; they are what makes reruns idempotent.
func (l *Ledger) Cleanup(ctx context.Context, lifespan time.Duration) (int64, error) {
	tag, err := l.db.Exec(ctx,
		"DELETE FROM ingestion_record WHERE status <> 'success' AND created_at < $1",
		time.Now().Add(-lifespan))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return tag.RowsAffected(), nil
}

// PeriodicCleanup runs Cleanup on an interval until ctx is cancelled.
func (l *Ledger) PeriodicCleanup(ctx context.Context, interval, lifespan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := l.Cleanup(ctx, lifespan)
			if err != nil {
				log.WithError(err).Warn("Ledger cleanup failed")
			} else if removed > 0 {
				log.Infof("Ledger cleanup removed %d stale records", removed)
			}
		}
	}
}
