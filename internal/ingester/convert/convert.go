// Package convert maps validated profiles onto the relational rows the bulk
// loader upserts. The mapping is deterministic: the same profiles always
// produce the same rows in the same order, so reruns over unmodified files
// write byte-identical data and the loader reports them as unchanged.
package convert

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
)

// Seawater density approximation used to derive depth in metres from
// pressure in decibars.
const decibarsPerMetre = 1.025

// Convert maps the surviving profiles of one file onto row sets. Two
// profiles with the same float and cycle number in one file indicate a
// malformed file and fail the conversion.
func Convert(path string, profiles []*model.ValidatedProfile) (*model.RowSet, error) {
	rows := &model.RowSet{}
	seen := map[string]bool{}
	floats := map[string]*model.FloatRow{}

	for _, p := range profiles {
		id := p.ProfileID()
		if seen[id] {
			return nil, errors.Errorf("%s: duplicate profile %s", path, id)
		}
		seen[id] = true

		rows.Profiles = append(rows.Profiles, profileRow(p))
		measurements, duplicates := measurementRows(p)
		rows.Measurements = append(rows.Measurements, measurements...)
		rows.DuplicateMeasurements += duplicates
		mergeFloat(floats, p)
	}

	for _, f := range floats {
		rows.Floats = append(rows.Floats, *f)
	}
	sort.Slice(rows.Floats, func(i, j int) bool {
		return rows.Floats[i].FloatID < rows.Floats[j].FloatID
	})
	sort.Slice(rows.Profiles, func(i, j int) bool {
		return rows.Profiles[i].ProfileID < rows.Profiles[j].ProfileID
	})
	return rows, nil
}

func profileRow(p *model.ValidatedProfile) model.ProfileRow {
	row := model.ProfileRow{
		ProfileID:         p.ProfileID(),
		FloatID:           p.FloatID,
		CycleNumber:       p.CycleNumber,
		Latitude:          p.Latitude,
		Longitude:         p.Longitude,
		MeasuredAt:        p.MeasuredAt.UTC(),
		DataMode:          p.DataMode,
		QualityFlag:       qualityFlag(p),
		Empty:             p.Empty,
		MeasurementCount:  len(p.Accepted),
		GoodCount:         p.Summary.Good,
		QuestionableCount: p.Summary.Questionable,
		RejectedCount:     p.Summary.Rejected,
	}
	for _, m := range p.Accepted {
		pres := *m.Pressure
		if row.MinPressure == nil || pres < *row.MinPressure {
			v := pres
			row.MinPressure = &v
		}
		if row.MaxPressure == nil || pres > *row.MaxPressure {
			v := pres
			row.MaxPressure = &v
		}
	}
	return row
}

// qualityFlag grades the profile as a whole: 'A' when the position carries
// the best QC flag, 'B' otherwise.
func qualityFlag(p *model.ValidatedProfile) string {
	if p.PositionQC == "1" {
		return "A"
	}
	return "B"
}

// measurementRows maps the accepted levels of one profile, returning the
// rows and the number of levels collapsed away as duplicates.
func measurementRows(p *model.ValidatedProfile) ([]model.MeasurementRow, int) {
	id := p.ProfileID()
	rows := make([]model.MeasurementRow, 0, len(p.Accepted))
	duplicates := 0
	// Levels share a primary key with their profile and pressure, so a
	// repeated pressure within one profile keeps only the first level.
	seen := map[float64]bool{}
	for _, m := range p.Accepted {
		if seen[*m.Pressure] {
			duplicates++
			continue
		}
		seen[*m.Pressure] = true
		rows = append(rows, model.MeasurementRow{
			ProfileID:     id,
			Pressure:      *m.Pressure,
			Depth:         *m.Pressure / decibarsPerMetre,
			PressureQC:    m.PressureQC,
			Temperature:   m.Temperature,
			TemperatureQC: m.TemperatureQC,
			Salinity:      m.Salinity,
			SalinityQC:    m.SalinityQC,
			Oxygen:        m.Oxygen,
			OxygenQC:      m.OxygenQC,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Pressure < rows[j].Pressure
	})
	return rows, duplicates
}

// mergeFloat folds one profile into the per-float row, keeping the earliest
// deployment and the position and metadata of the latest profile.
func mergeFloat(floats map[string]*model.FloatRow, p *model.ValidatedProfile) {
	measuredAt := p.MeasuredAt.UTC()
	f, ok := floats[p.FloatID]
	if !ok {
		floats[p.FloatID] = &model.FloatRow{
			FloatID:          p.FloatID,
			PlatformNumber:   p.FloatID,
			ProjectName:      p.ProjectName,
			PIName:           p.PIName,
			Status:           "active",
			DeploymentDate:   measuredAt,
			LastContactDate:  measuredAt,
			LastLatitude:     p.Latitude,
			LastLongitude:    p.Longitude,
			FirstProfileDate: measuredAt,
			LastProfileDate:  measuredAt,
		}
		return
	}
	if measuredAt.Before(f.FirstProfileDate) {
		f.FirstProfileDate = measuredAt
		f.DeploymentDate = measuredAt
	}
	if measuredAt.After(f.LastProfileDate) {
		f.LastProfileDate = measuredAt
		f.LastContactDate = measuredAt
		f.LastLatitude = p.Latitude
		f.LastLongitude = p.Longitude
	}
	if f.ProjectName == "" {
		f.ProjectName = p.ProjectName
	}
	if f.PIName == "" {
		f.PIName = p.PIName
	}
}
