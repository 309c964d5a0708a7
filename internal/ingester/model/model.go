// Package model holds the value types passed between the stages of the
// ingestion pipeline: raw profiles out of the parser, validated profiles out
// of the QC filter, row sets out of the mapper, and the per-file and per-run
// result types everything else aggregates into.
package model

import (
	"strconv"
	"time"
)

// RawMeasurement is one depth level as read from an instrument file, before
// any validation. Optional fields are nil when the file holds a fill value
// or does not carry the variable at all. QC flags are single-character ARGO
// codes ("0"-"9"), empty when the file has no QC variable for the field.
type RawMeasurement struct {
	Pressure      *float64
	PressureQC    string
	Temperature   *float64
	TemperatureQC string
	Salinity      *float64
	SalinityQC    string
	Oxygen        *float64
	OxygenQC      string
}

// RawProfile is one cast as read from an instrument file: the float and cycle
// identity, position and time with their QC flags, and the depth-ordered
// measurement levels. Produced by the parser; consumed by the QC filter.
type RawProfile struct {
	FloatID      string
	CycleNumber  int
	ProjectName  string
	PIName       string
	DataMode     string
	Latitude     float64
	Longitude    float64
	MeasuredAt   time.Time
	PositionQC   string
	TimeQC       string
	Measurements []RawMeasurement
}

// ProfileID returns the natural key shared by the profile and measurement tables.
func (p *RawProfile) ProfileID() string {
	return profileID(p.FloatID, p.CycleNumber)
}

// QCSummary tallies how the levels of one profile fared during filtering.
type QCSummary struct {
	Good         int // accepted with QC flag 1
	Questionable int // accepted with a non-1 flag in the accept set
	Rejected     int // dropped by range or QC checks
}

// ValidatedProfile is a RawProfile that passed the profile-level gate,
// carrying only the measurements that survived the measurement-level gate.
type ValidatedProfile struct {
	RawProfile
	Accepted []RawMeasurement
	Summary  QCSummary
	// Empty is set when filtering removed every level; such profiles are
	// still persisted as metadata-only rows.
	Empty bool
}

// FloatRow, ProfileRow and MeasurementRow mirror the three entity tables.

type FloatRow struct {
	FloatID          string
	PlatformNumber   string
	ProjectName      string
	PIName           string
	Institution      string
	Status           string
	DeploymentDate   time.Time
	LastContactDate  time.Time
	LastLatitude     float64
	LastLongitude    float64
	FirstProfileDate time.Time
	LastProfileDate  time.Time
}

type ProfileRow struct {
	ProfileID        string
	FloatID          string
	CycleNumber      int
	Latitude         float64
	Longitude        float64
	MeasuredAt       time.Time
	DataMode         string
	QualityFlag      string
	Empty            bool
	MeasurementCount int
	GoodCount        int
	QuestionableCount int
	RejectedCount    int
	MinPressure      *float64
	MaxPressure      *float64
}

type MeasurementRow struct {
	ProfileID     string
	Pressure      float64
	Depth         float64
	PressureQC    string
	Temperature   *float64
	TemperatureQC string
	Salinity      *float64
	SalinityQC    string
	Oxygen        *float64
	OxygenQC      string
}

// RowSet is the mapper's output for one file: every row the bulk loader
// must upsert, tables in foreign-key order.
type RowSet struct {
	Floats       []FloatRow
	Profiles     []ProfileRow
	Measurements []MeasurementRow

	// DuplicateMeasurements counts accepted levels collapsed away because
	// they repeated another level's pressure within the same profile.
	DuplicateMeasurements int
}

// TableResult counts what an upsert did to one table. Unchanged rows were
// present already with identical content; reruns over unmodified files must
// converge to inserted == updated == 0.
type TableResult struct {
	Inserted  int64 `json:"inserted"`
	Updated   int64 `json:"updated"`
	Unchanged int64 `json:"unchanged"`
}

func (r *TableResult) Add(other TableResult) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
}

// StoreResult is the bulk loader's per-file report.
type StoreResult struct {
	Floats       TableResult `json:"floats"`
	Profiles     TableResult `json:"profiles"`
	Measurements TableResult `json:"measurements"`
}

func (r *StoreResult) Add(other *StoreResult) {
	r.Floats.Add(other.Floats)
	r.Profiles.Add(other.Profiles)
	r.Measurements.Add(other.Measurements)
}

// FileOutcome is the terminal state of one file's processing attempt.
type FileOutcome string

const (
	FileSucceeded FileOutcome = "success"
	FileFailed    FileOutcome = "failed"
	FileSkipped   FileOutcome = "skipped"
)

// FileResult records one processing attempt of one file. It is what gets
// appended to the ingestion ledger and folded into the run summary.
type FileResult struct {
	Path        string      `json:"path"`
	Fingerprint string      `json:"fingerprint"`
	FileSize    int64       `json:"fileSize"`
	Outcome     FileOutcome `json:"outcome"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt time.Time   `json:"completedAt"`

	ProfilesParsed        int `json:"profilesParsed"`
	ProfilesRejected      int `json:"profilesRejected"`
	MeasurementsParsed    int `json:"measurementsParsed"`
	MeasurementsRejected  int `json:"measurementsRejected"`
	MeasurementsDuplicate int `json:"measurementsDuplicate"`

	Store StoreResult `json:"store"`
}

// RunSummary aggregates one pipeline invocation. It is returned by value
// from every run rather than held in process-wide state.
type RunSummary struct {
	RunID      string    `json:"runId"`
	DryRun     bool      `json:"dryRun"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	FilesDiscovered int `json:"filesDiscovered"`
	FilesProcessed  int `json:"filesProcessed"`
	FilesSucceeded  int `json:"filesSucceeded"`
	FilesFailed     int `json:"filesFailed"`
	FilesSkipped    int `json:"filesSkipped"`

	ProfilesParsed        int `json:"profilesParsed"`
	ProfilesRejected      int `json:"profilesRejected"`
	MeasurementsParsed    int `json:"measurementsParsed"`
	MeasurementsRejected  int `json:"measurementsRejected"`
	MeasurementsDuplicate int `json:"measurementsDuplicate"`

	Store StoreResult `json:"store"`

	// One entry per failed file, "path: cause".
	Errors []string `json:"errors,omitempty"`

	FilesPerSecond   float64 `json:"filesPerSecond"`
	RecordsPerSecond float64 `json:"recordsPerSecond"`
}

// Fold adds one file's result into the summary. Not safe for concurrent use;
// the orchestrator folds results from a single goroutine.
func (s *RunSummary) Fold(r *FileResult) {
	s.FilesProcessed++
	switch r.Outcome {
	case FileSucceeded:
		s.FilesSucceeded++
	case FileFailed:
		s.FilesFailed++
		if r.Error != "" {
			s.Errors = append(s.Errors, r.Path+": "+r.Error)
		}
	case FileSkipped:
		s.FilesSkipped++
	}
	s.ProfilesParsed += r.ProfilesParsed
	s.ProfilesRejected += r.ProfilesRejected
	s.MeasurementsParsed += r.MeasurementsParsed
	s.MeasurementsRejected += r.MeasurementsRejected
	s.MeasurementsDuplicate += r.MeasurementsDuplicate
	s.Store.Add(&r.Store)
}

// Finish stamps the end time and derives the rates.
func (s *RunSummary) Finish(now time.Time) {
	s.FinishedAt = now
	duration := now.Sub(s.StartedAt).Seconds()
	if duration > 0 {
		s.FilesPerSecond = float64(s.FilesProcessed) / duration
		s.RecordsPerSecond = float64(s.MeasurementsParsed) / duration
	}
}

func profileID(floatID string, cycle int) string {
	return floatID + "_" + strconv.Itoa(cycle)
}
