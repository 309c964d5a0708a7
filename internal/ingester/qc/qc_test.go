package qc

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
)

func validProfile() *model.RawProfile {
	return &model.RawProfile{
		FloatID:     "5904297",
		CycleNumber: 12,
		DataMode:    "D",
		Latitude:    35.5,
		Longitude:   -72.25,
		MeasuredAt:  time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC),
		PositionQC:  "1",
		TimeQC:      "1",
		Measurements: []model.RawMeasurement{
			measurement(5, 12.25, 35.5),
			measurement(10, 11.5, 35.25),
		},
	}
}

func measurement(pres, temp, psal float64) model.RawMeasurement {
	return model.RawMeasurement{
		Pressure:      &pres,
		PressureQC:    "1",
		Temperature:   &temp,
		TemperatureQC: "1",
		Salinity:      &psal,
		SalinityQC:    "1",
	}
}

func TestAcceptsValidProfile(t *testing.T) {
	validated, rejection := DefaultPolicy().ValidateProfile(validProfile())
	require.Nil(t, rejection)
	assert.Len(t, validated.Accepted, 2)
	assert.Equal(t, 2, validated.Summary.Good)
	assert.Equal(t, 0, validated.Summary.Questionable)
	assert.Equal(t, 0, validated.Summary.Rejected)
	assert.False(t, validated.Empty)
}

func TestProfileRejections(t *testing.T) {
	tests := map[string]struct {
		mutate func(*model.RawProfile)
		reason string
	}{
		"latitude out of range": {
			mutate: func(p *model.RawProfile) { p.Latitude = 91 },
			reason: "implausible position",
		},
		"longitude out of range": {
			mutate: func(p *model.RawProfile) { p.Longitude = -180.5 },
			reason: "implausible position",
		},
		"missing position": {
			mutate: func(p *model.RawProfile) { p.Latitude = math.NaN() },
			reason: "missing position",
		},
		"bad position flag": {
			mutate: func(p *model.RawProfile) { p.PositionQC = "4" },
			reason: "position QC",
		},
		"bad time flag": {
			mutate: func(p *model.RawProfile) { p.TimeQC = "4" },
			reason: "time QC",
		},
		"missing timestamp": {
			mutate: func(p *model.RawProfile) { p.MeasuredAt = time.Time{} },
			reason: "missing timestamp",
		},
		"timestamp before minimum": {
			mutate: func(p *model.RawProfile) {
				p.MeasuredAt = time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC)
			},
			reason: "out of range",
		},
		"timestamp in the future": {
			mutate: func(p *model.RawProfile) {
				p.MeasuredAt = time.Now().UTC().AddDate(1, 0, 0)
			},
			reason: "out of range",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			profile := validProfile()
			tc.mutate(profile)
			validated, rejection := DefaultPolicy().ValidateProfile(profile)
			require.NotNil(t, rejection)
			assert.Nil(t, validated)
			assert.Contains(t, rejection.Reason, tc.reason)
		})
	}
}

func TestDataModeFilter(t *testing.T) {
	policy := DefaultPolicy()
	policy.DataModes = FlagSet("D", "A")

	profile := validProfile()
	profile.DataMode = "R"
	_, rejection := policy.ValidateProfile(profile)
	require.NotNil(t, rejection)
	assert.Contains(t, rejection.Reason, "data mode")

	profile.DataMode = "D"
	_, rejection = policy.ValidateProfile(profile)
	assert.Nil(t, rejection)
}

func TestGeoFilter(t *testing.T) {
	policy := DefaultPolicy()
	policy.Geo = &Bounds{MinLatitude: -10, MaxLatitude: 10, MinLongitude: 100, MaxLongitude: 160}

	_, rejection := policy.ValidateProfile(validProfile())
	require.NotNil(t, rejection)
	assert.Contains(t, rejection.Reason, "region")

	profile := validProfile()
	profile.Latitude, profile.Longitude = 5, 140
	_, rejection = policy.ValidateProfile(profile)
	assert.Nil(t, rejection)
}

// Range checks are inclusive at the boundaries.
func TestRangeBoundaries(t *testing.T) {
	policy := DefaultPolicy()

	profile := validProfile()
	profile.Measurements = []model.RawMeasurement{measurement(5, 40.0, 35)}
	validated, rejection := policy.ValidateProfile(profile)
	require.Nil(t, rejection)
	assert.Len(t, validated.Accepted, 1)

	profile = validProfile()
	profile.Measurements = []model.RawMeasurement{measurement(5, 40.0001, 35)}
	validated, rejection = policy.ValidateProfile(profile)
	require.Nil(t, rejection)
	assert.Empty(t, validated.Accepted)
	assert.Equal(t, 1, validated.Summary.Rejected)
	assert.True(t, validated.Empty)
}

func TestMandatoryFieldsDropLevel(t *testing.T) {
	policy := DefaultPolicy()

	profile := validProfile()
	profile.Measurements[0].Pressure = nil
	validated, rejection := policy.ValidateProfile(profile)
	require.Nil(t, rejection)
	assert.Len(t, validated.Accepted, 1)
	assert.Equal(t, 1, validated.Summary.Rejected)

	profile = validProfile()
	profile.Measurements[0].TemperatureQC = "4"
	validated, rejection = policy.ValidateProfile(profile)
	require.Nil(t, rejection)
	assert.Len(t, validated.Accepted, 1)
	assert.Equal(t, 1, validated.Summary.Rejected)
}

// A bad optional reading blanks the field but keeps the level.
func TestOptionalFieldsBlankOnRejection(t *testing.T) {
	profile := validProfile()
	profile.Measurements[0].SalinityQC = "4"
	oxy := 2000.0
	profile.Measurements[1].Oxygen = &oxy
	profile.Measurements[1].OxygenQC = "1"

	validated, rejection := DefaultPolicy().ValidateProfile(profile)
	require.Nil(t, rejection)
	require.Len(t, validated.Accepted, 2)
	assert.Nil(t, validated.Accepted[0].Salinity)
	assert.Nil(t, validated.Accepted[1].Oxygen)
	require.NotNil(t, validated.Accepted[1].Salinity)
}

func TestQuestionableGrading(t *testing.T) {
	profile := validProfile()
	profile.Measurements[1].TemperatureQC = "2"

	validated, rejection := DefaultPolicy().ValidateProfile(profile)
	require.Nil(t, rejection)
	assert.Equal(t, 1, validated.Summary.Good)
	assert.Equal(t, 1, validated.Summary.Questionable)
}

// Real-time files often carry no QC variables at all; missing flags are
// treated as acceptable.
func TestMissingFlagsAccepted(t *testing.T) {
	profile := validProfile()
	profile.PositionQC = ""
	profile.TimeQC = ""
	for i := range profile.Measurements {
		profile.Measurements[i].PressureQC = ""
		profile.Measurements[i].TemperatureQC = ""
		profile.Measurements[i].SalinityQC = ""
	}

	validated, rejection := DefaultPolicy().ValidateProfile(profile)
	require.Nil(t, rejection)
	assert.Len(t, validated.Accepted, 2)
	assert.Equal(t, 2, validated.Summary.Good)
}
