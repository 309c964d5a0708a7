// Package qc filters raw profiles against ARGO quality control flags and
// physical plausibility ranges. Filtering never returns errors: a profile is
// either accepted (possibly with levels dropped) or rejected with a reason,
// and the caller carries on with the next one.
package qc

import (
	"fmt"
	"math"
	"time"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
)

// Range is an inclusive physical plausibility interval.
type Range struct {
	Min float64
	Max float64
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Bounds is an optional geographic subsetting box.
type Bounds struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// Policy is the full set of acceptance rules applied to each profile.
type Policy struct {
	// AcceptFlags are the ARGO QC codes treated as usable data. A missing
	// flag is accepted; many real-time files carry no QC variables.
	AcceptFlags map[string]bool

	// DataModes restricts which processing modes are ingested. Empty
	// accepts all of them.
	DataModes map[string]bool

	Temperature Range
	Salinity    Range
	Pressure    Range
	Oxygen      Range

	// MinDate and MaxDate bound the measurement timestamp. A zero MaxDate
	// means the time of validation.
	MinDate time.Time
	MaxDate time.Time

	// Geo, when set, drops profiles outside the box.
	Geo *Bounds
}

// DefaultPolicy returns the standard ARGO acceptance rules: flags 1-3,
// all data modes, and the conventional ocean plausibility ranges.
func DefaultPolicy() Policy {
	return Policy{
		AcceptFlags: FlagSet("1", "2", "3"),
		Temperature: Range{Min: -5, Max: 40},
		Salinity:    Range{Min: 0, Max: 45},
		Pressure:    Range{Min: -10, Max: 12000},
		Oxygen:      Range{Min: 0, Max: 1000},
		MinDate:     time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FlagSet builds a flag lookup from a list of QC codes.
func FlagSet(flags ...string) map[string]bool {
	set := make(map[string]bool, len(flags))
	for _, f := range flags {
		set[f] = true
	}
	return set
}

// Rejection explains why a profile was dropped wholesale.
type Rejection struct {
	Reason string
}

func (r *Rejection) String() string { return r.Reason }

// ValidateProfile applies the profile-level gate and then filters the
// measurement levels. A nil Rejection means the profile is kept; it may
// still be empty if every level was dropped.
func (p Policy) ValidateProfile(profile *model.RawProfile) (*model.ValidatedProfile, *Rejection) {
	if len(p.DataModes) > 0 && !p.DataModes[profile.DataMode] {
		return nil, &Rejection{Reason: fmt.Sprintf("data mode %q not ingested", profile.DataMode)}
	}
	if rejection := p.checkPosition(profile); rejection != nil {
		return nil, rejection
	}
	if rejection := p.checkTime(profile); rejection != nil {
		return nil, rejection
	}

	validated := &model.ValidatedProfile{RawProfile: *profile}
	for _, m := range profile.Measurements {
		kept, grade := p.filterMeasurement(m)
		if kept == nil {
			validated.Summary.Rejected++
			continue
		}
		validated.Accepted = append(validated.Accepted, *kept)
		if grade == gradeGood {
			validated.Summary.Good++
		} else {
			validated.Summary.Questionable++
		}
	}
	validated.Empty = len(validated.Accepted) == 0
	return validated, nil
}

func (p Policy) checkPosition(profile *model.RawProfile) *Rejection {
	lat, lon := profile.Latitude, profile.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return &Rejection{Reason: "missing position"}
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return &Rejection{Reason: fmt.Sprintf("implausible position (%v, %v)", lat, lon)}
	}
	if !p.flagAccepted(profile.PositionQC) {
		return &Rejection{Reason: fmt.Sprintf("position QC flag %q rejected", profile.PositionQC)}
	}
	if p.Geo != nil {
		if lat < p.Geo.MinLatitude || lat > p.Geo.MaxLatitude ||
			lon < p.Geo.MinLongitude || lon > p.Geo.MaxLongitude {
			return &Rejection{Reason: "outside configured region"}
		}
	}
	return nil
}

func (p Policy) checkTime(profile *model.RawProfile) *Rejection {
	if profile.MeasuredAt.IsZero() {
		return &Rejection{Reason: "missing timestamp"}
	}
	if !p.flagAccepted(profile.TimeQC) {
		return &Rejection{Reason: fmt.Sprintf("time QC flag %q rejected", profile.TimeQC)}
	}
	maxDate := p.MaxDate
	if maxDate.IsZero() {
		maxDate = time.Now().UTC()
	}
	if profile.MeasuredAt.Before(p.MinDate) || profile.MeasuredAt.After(maxDate) {
		return &Rejection{Reason: fmt.Sprintf("timestamp %s out of range", profile.MeasuredAt.Format(time.RFC3339))}
	}
	return nil
}

type grade int

const (
	gradeGood grade = iota
	gradeQuestionable
)

// filterMeasurement applies the level gate. Pressure and temperature are
// mandatory; a bad value in either drops the level. Bad optional readings
// are blanked and the level kept.
func (p Policy) filterMeasurement(m model.RawMeasurement) (*model.RawMeasurement, grade) {
	if !p.fieldOK(m.Pressure, m.PressureQC, p.Pressure) {
		return nil, gradeGood
	}
	if !p.fieldOK(m.Temperature, m.TemperatureQC, p.Temperature) {
		return nil, gradeGood
	}
	if m.Salinity != nil && !p.fieldOK(m.Salinity, m.SalinityQC, p.Salinity) {
		m.Salinity = nil
		m.SalinityQC = ""
	}
	if m.Oxygen != nil && !p.fieldOK(m.Oxygen, m.OxygenQC, p.Oxygen) {
		m.Oxygen = nil
		m.OxygenQC = ""
	}

	g := gradeGood
	for _, flag := range []string{m.PressureQC, m.TemperatureQC, m.SalinityQC, m.OxygenQC} {
		if flag != "" && flag != "1" {
			g = gradeQuestionable
			break
		}
	}
	return &m, g
}

func (p Policy) fieldOK(value *float64, flag string, r Range) bool {
	if value == nil {
		return false
	}
	return p.flagAccepted(flag) && r.contains(*value)
}

func (p Policy) flagAccepted(flag string) bool {
	if flag == "" {
		return true
	}
	return p.AcceptFlags[flag]
}
