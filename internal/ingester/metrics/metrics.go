package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	DBOperation string
	FileOutcome string
)

const (
	DBOperationRead            DBOperation = "read"
	DBOperationInsert          DBOperation = "insert"
	DBOperationUpdate          DBOperation = "update"
	DBOperationCreateTempTable DBOperation = "create_temp_table"

	FileOutcomeSucceeded FileOutcome = "succeeded"
	FileOutcomeFailed    FileOutcome = "failed"
	FileOutcomeSkipped   FileOutcome = "skipped"
)

const MetricsPrefix = "oceanquery_ingester_"

type Metrics struct {
	dbErrorsCounter      *prometheus.CounterVec
	parseErrorsCounter   prometheus.Counter
	filesCounter         *prometheus.CounterVec
	profilesRejected     prometheus.Counter
	measurementsRejected prometheus.Counter
	rowsChangedCounter   *prometheus.CounterVec
	rowChangeTimeHist    *prometheus.HistogramVec
}

var m = &Metrics{
	dbErrorsCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricsPrefix + "db_errors",
		Help: "Number of database errors grouped by database operation",
	}, []string{"operation"}),
	parseErrorsCounter: promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricsPrefix + "parse_errors",
		Help: "Number of files that could not be decoded",
	}),
	filesCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricsPrefix + "files",
		Help: "Number of processed files grouped by outcome",
	}, []string{"outcome"}),
	profilesRejected: promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricsPrefix + "profiles_rejected",
		Help: "Number of profiles rejected by validation",
	}),
	measurementsRejected: promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricsPrefix + "measurements_rejected",
		Help: "Number of depth levels dropped by range or QC checks",
	}),
	rowsChangedCounter: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricsPrefix + "rows_changed",
		Help: "Number of rows changed in the database",
	}, []string{"table", "operation"}),
	rowChangeTimeHist: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    MetricsPrefix + "row_change_time",
		Help:    "Time taken in milliseconds to change one database row",
		Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 3, 5, 7, 10, 15, 25, 50, 100, 1000},
	}, []string{"table"}),
}

func Get() *Metrics {
	return m
}

func (m *Metrics) RecordDBError(operation DBOperation) {
	m.dbErrorsCounter.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordParseError() {
	m.parseErrorsCounter.Inc()
}

func (m *Metrics) RecordFileOutcome(outcome FileOutcome) {
	m.filesCounter.With(map[string]string{"outcome": string(outcome)}).Inc()
}

func (m *Metrics) RecordProfilesRejected(n int) {
	m.profilesRejected.Add(float64(n))
}

func (m *Metrics) RecordMeasurementsRejected(n int) {
	m.measurementsRejected.Add(float64(n))
}

func (m *Metrics) RecordRowsChange(table string, operation DBOperation, numRows int) {
	m.rowsChangedCounter.
		With(map[string]string{"table": table, "operation": string(operation)}).
		Add(float64(numRows))
}

func (m *Metrics) RecordRowChangeTime(table string, numRows int, duration time.Duration) {
	if numRows == 0 {
		return
	}
	m.rowChangeTimeHist.
		With(map[string]string{"table": table}).
		Observe(float64(duration.Milliseconds()) / float64(numRows))
}
