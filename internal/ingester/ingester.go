// Package ingester wires the pipeline together: configuration, database,
// ledger, metrics and the worker pool. The cmd layer calls into here.
package ingester

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/Abhishekshelar208/oceanquery/internal/common/app"
	"github.com/Abhishekshelar208/oceanquery/internal/common/database"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/configuration"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/ledger"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/metrics"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/oceandb"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/pipeline"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/stats"
)

const defaultLedgerCacheSize = 10000

// RunOptions select what one invocation processes.
type RunOptions struct {
	// Paths are explicit files to ingest. Empty means discover files in
	// the configured input directory.
	Paths []string
	// DryRun parses and validates without opening the database.
	DryRun bool
	// Force re-ingests files the ledger already marks as succeeded.
	Force bool
}

// Run executes one ingestion run and returns its summary. The summary is
// valid even when files failed; callers decide what failure means for them.
func Run(config configuration.IngesterConfiguration, opts RunOptions) (*model.RunSummary, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ctx := app.CreateContextWithShutdown()

	paths := opts.Paths
	if len(paths) == 0 {
		var err error
		paths, err = pipeline.DiscoverFiles(config.InputDirectory, config.FilePatterns)
		if err != nil {
			return nil, err
		}
		log.Infof("Discovered %d files under %s", len(paths), config.InputDirectory)
	}

	pipelineOpts := pipeline.Options{
		BatchSize:      config.BatchSize,
		MaxWorkers:     config.MaxWorkers,
		PerFileTimeout: config.PerFileTimeout,
		DryRun:         opts.DryRun,
		Force:          opts.Force,
		Policy:         config.Policy(),
	}

	// A dry run never touches the database, so it needs neither pool nor
	// ledger nor migrations.
	if opts.DryRun {
		return pipeline.New(nil, nil, metrics.Get(), pipelineOpts).Run(ctx, paths)
	}

	if config.MetricsPort > 0 {
		serveMetrics(config.MetricsPort)
	}

	db, err := openDatabase(ctx, config)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cacheSize := config.LedgerCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultLedgerCacheSize
	}
	ledgerStore, err := ledger.New(db, cacheSize)
	if err != nil {
		return nil, err
	}
	if config.LedgerRetention > 0 && config.LedgerCleanupInterval > 0 {
		go ledgerStore.PeriodicCleanup(ctx, config.LedgerCleanupInterval, config.LedgerRetention)
	}

	loader := oceandb.NewOceanDb(db, metrics.Get(), config.MaxAttempts, config.MaxBackoff)
	return pipeline.New(loader, ledgerStore, metrics.Get(), pipelineOpts).Run(ctx, paths)
}

// RunStats collects the coverage report.
func RunStats(config configuration.IngesterConfiguration) (*stats.Report, error) {
	ctx := app.CreateContextWithShutdown()
	db, err := openDatabase(ctx, config)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return stats.New(db).Collect(ctx)
}

// RunOptimize refreshes table statistics and prunes stale ledger records.
func RunOptimize(config configuration.IngesterConfiguration) error {
	ctx := app.CreateContextWithShutdown()
	db, err := openDatabase(ctx, config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := oceandb.NewOceanDb(db, metrics.Get(), config.MaxAttempts, config.MaxBackoff).Optimize(ctx); err != nil {
		return err
	}
	if config.LedgerRetention > 0 {
		ledgerStore, err := ledger.New(db, 1)
		if err != nil {
			return err
		}
		removed, err := ledgerStore.Cleanup(ctx, config.LedgerRetention)
		if err != nil {
			return err
		}
		log.Infof("Removed %d stale ledger records", removed)
	}
	return nil
}

func openDatabase(ctx context.Context, config configuration.IngesterConfiguration) (db *pgxpool.Pool, err error) {
	db, err = database.OpenPgxPool(config.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "opening database connection")
	}
	migrations, err := oceandb.Migrations()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := database.UpdateDatabase(ctx, db, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func serveMetrics(port uint16) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()
}
