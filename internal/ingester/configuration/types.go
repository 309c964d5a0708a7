package configuration

import (
	"time"

	"github.com/Abhishekshelar208/oceanquery/internal/common/database"
)

type IngesterConfiguration struct {
	// Directory scanned for profile files.
	InputDirectory string
	// Glob patterns applied within InputDirectory. Defaults to *.nc.
	FilePatterns []string

	// Database connection details
	Postgres database.PostgresConfig

	// Number of rows per upsert batch
	BatchSize int
	// Number of files processed concurrently. Zero picks a default from
	// the machine's CPU count.
	MaxWorkers int
	// Time budget for a single file, zero for no limit
	PerFileTimeout time.Duration
	// Number of attempts before a database operation is given up on
	MaxAttempts int
	// Maximum backoff in seconds between database attempts
	MaxBackoff int

	// Port on which Prometheus metrics are served, zero to disable
	MetricsPort uint16

	// Number of ledger fingerprints cached in memory
	LedgerCacheSize int
	// Age after which failed ledger records are pruned
	LedgerRetention time.Duration
	// Interval between background ledger cleanups during a run
	LedgerCleanupInterval time.Duration

	Validation ValidationConfiguration
}

type ValidationConfiguration struct {
	// QC flags treated as usable data
	AcceptFlags []string
	// Data modes to ingest; empty means all
	DataModes []string

	TemperatureRange RangeConfiguration
	SalinityRange    RangeConfiguration
	PressureRange    RangeConfiguration
	OxygenRange      RangeConfiguration

	// Earliest acceptable measurement date, in 2006-01-02 form
	MinDate string

	// Optional geographic subsetting box
	Geo *GeoConfiguration
}

type RangeConfiguration struct {
	Min float64
	Max float64
}

type GeoConfiguration struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}
