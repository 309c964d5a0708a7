// Package pipeline orchestrates one ingestion run: it fans discovered files
// out to a pool of workers, each of which parses, validates, maps and loads
// its file independently. Files are the unit of failure; one bad file is
// recorded and the run moves on.
package pipeline

import (
	"context"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Abhishekshelar208/oceanquery/internal/common/logging"
	"github.com/Abhishekshelar208/oceanquery/internal/common/util"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/convert"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/ledger"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/metrics"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/parser"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/qc"
)

// Loader persists one file's rows.
type Loader interface {
	Store(ctx context.Context, rows *model.RowSet, batchSize int) (*model.StoreResult, error)
}

// LedgerStore tracks which file states were already ingested.
type LedgerStore interface {
	WasIngested(ctx context.Context, fingerprint string) (bool, error)
	Record(ctx context.Context, runID string, result *model.FileResult) error
}

// Options tune one run.
type Options struct {
	BatchSize      int
	MaxWorkers     int
	PerFileTimeout time.Duration

	// DryRun parses and validates without touching the database.
	DryRun bool
	// Force re-ingests files even when the ledger says they succeeded.
	Force bool

	Policy qc.Policy
}

type Pipeline struct {
	loader  Loader
	ledger  LedgerStore
	metrics *metrics.Metrics
	opts    Options
}

func New(loader Loader, ledgerStore LedgerStore, m *metrics.Metrics, opts Options) *Pipeline {
	return &Pipeline{loader: loader, ledger: ledgerStore, metrics: m, opts: opts}
}

// Run processes the files with a pool of workers and returns the aggregated
// summary. The returned error is non-nil only when the context is cancelled
// before all files are handled; per-file failures are reported through the
// summary instead.
func (p *Pipeline) Run(ctx context.Context, paths []string) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		RunID:           uuid.NewString(),
		DryRun:          p.opts.DryRun,
		StartedAt:       time.Now().UTC(),
		FilesDiscovered: len(paths),
	}
	workers := p.opts.MaxWorkers
	if workers <= 0 {
		workers = util.Min(2*runtime.NumCPU(), 8)
	}
	log.Infof("Starting run %s: %d files, %d workers", summary.RunID, len(paths), workers)

	files := make(chan string)
	results := make(chan *model.FileResult)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(files)
		for _, path := range paths {
			select {
			case files <- path:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for path := range files {
				select {
				case results <- p.processFile(gctx, summary.RunID, path):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for result := range results {
			summary.Fold(result)
		}
	}()

	err := g.Wait()
	close(results)
	<-collectorDone

	summary.Finish(time.Now().UTC())
	log.Infof("Run %s finished: %d succeeded, %d failed, %d skipped in %s",
		summary.RunID, summary.FilesSucceeded, summary.FilesFailed, summary.FilesSkipped,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	return summary, err
}

// processFile runs one file through the whole chain. It never returns an
// error; whatever goes wrong is folded into the result.
func (p *Pipeline) processFile(ctx context.Context, runID, path string) *model.FileResult {
	result := &model.FileResult{Path: path, StartedAt: time.Now().UTC()}

	if p.opts.PerFileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.PerFileTimeout)
		defer cancel()
	}

	info, err := os.Stat(path)
	if err != nil {
		return p.fail(ctx, runID, result, err)
	}
	result.FileSize = info.Size()
	result.Fingerprint = ledger.Fingerprint(path, info)

	if !p.opts.DryRun && !p.opts.Force {
		ingested, err := p.ledger.WasIngested(ctx, result.Fingerprint)
		if err != nil {
			return p.fail(ctx, runID, result, err)
		}
		if ingested {
			log.Debugf("Skipping %s: already ingested", path)
			result.Outcome = model.FileSkipped
			result.CompletedAt = time.Now().UTC()
			p.metrics.RecordFileOutcome(metrics.FileOutcomeSkipped)
			return result
		}
	}

	validated, err := p.parseAndValidate(path, result)
	if err != nil {
		p.metrics.RecordParseError()
		return p.fail(ctx, runID, result, err)
	}
	if len(validated) == 0 {
		return p.fail(ctx, runID, result, errors.New("no profiles passed validation"))
	}

	rows, err := convert.Convert(path, validated)
	if err != nil {
		return p.fail(ctx, runID, result, err)
	}
	result.MeasurementsDuplicate = rows.DuplicateMeasurements

	if !p.opts.DryRun {
		store, err := p.loader.Store(ctx, rows, p.opts.BatchSize)
		if store != nil {
			result.Store = *store
		}
		if err != nil {
			return p.fail(ctx, runID, result, err)
		}
	}

	result.Outcome = model.FileSucceeded
	result.CompletedAt = time.Now().UTC()
	p.metrics.RecordFileOutcome(metrics.FileOutcomeSucceeded)
	p.record(ctx, runID, result)
	log.Infof("Ingested %s: %d profiles, %d measurements", path,
		result.ProfilesParsed-result.ProfilesRejected, result.MeasurementsParsed-result.MeasurementsRejected)
	return result
}

// parseAndValidate reads every profile of the file, applies the QC policy
// and tallies the parse and rejection counts on the result.
func (p *Pipeline) parseAndValidate(path string, result *model.FileResult) ([]*model.ValidatedProfile, error) {
	par, err := parser.Open(path)
	if err != nil {
		return nil, err
	}
	var validated []*model.ValidatedProfile
	for {
		raw, err := par.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		result.ProfilesParsed++
		result.MeasurementsParsed += len(raw.Measurements)

		profile, rejection := p.opts.Policy.ValidateProfile(raw)
		if rejection != nil {
			log.Debugf("Rejecting profile %s from %s: %s", raw.ProfileID(), path, rejection.Reason)
			result.ProfilesRejected++
			result.MeasurementsRejected += len(raw.Measurements)
			p.metrics.RecordProfilesRejected(1)
			p.metrics.RecordMeasurementsRejected(len(raw.Measurements))
			continue
		}
		result.MeasurementsRejected += profile.Summary.Rejected
		p.metrics.RecordMeasurementsRejected(profile.Summary.Rejected)
		validated = append(validated, profile)
	}
	return validated, nil
}

func (p *Pipeline) fail(ctx context.Context, runID string, result *model.FileResult, err error) *model.FileResult {
	result.Outcome = model.FileFailed
	result.Error = err.Error()
	result.CompletedAt = time.Now().UTC()
	p.metrics.RecordFileOutcome(metrics.FileOutcomeFailed)
	logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).
		Warnf("Processing %s failed", result.Path)
	p.record(ctx, runID, result)
	return result
}

// record appends the attempt to the ledger. Ledger failures are logged, not
// fatal: loads are idempotent, so the worst case is redoing the file later.
func (p *Pipeline) record(ctx context.Context, runID string, result *model.FileResult) {
	if p.opts.DryRun {
		return
	}
	if err := p.ledger.Record(ctx, runID, result); err != nil {
		log.WithError(err).Warnf("Recording attempt for %s failed", result.Path)
	}
}
