package parser_test

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhishekshelar208/oceanquery/internal/common/oceanerrors"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/netcdf"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/netcdf/netcdftest"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/parser"
)

func writeSpec(t *testing.T, name string, spec netcdftest.FileSpec) string {
	t.Helper()
	return netcdftest.WriteFile(t, t.TempDir(), name, spec)
}

func TestParseProfiles(t *testing.T) {
	spec := profileFileSpec()
	path := writeSpec(t, "D5904297_012.nc", spec)

	p, err := parser.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.NumProfiles())

	first, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "5904297", first.FloatID)
	assert.Equal(t, 12, first.CycleNumber)
	assert.Equal(t, "Argo AUSTRALIA", first.ProjectName)
	assert.Equal(t, "Jane Smith", first.PIName)
	assert.Equal(t, "D", first.DataMode)
	assert.Equal(t, "1", first.PositionQC)
	assert.Equal(t, "1", first.TimeQC)
	assert.Equal(t, 35.5, first.Latitude)
	assert.Equal(t, -72.25, first.Longitude)
	expectedTime := time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, 20000).Add(12 * time.Hour)
	assert.Equal(t, expectedTime, first.MeasuredAt)

	// The third level has a fill pressure but real readings; it is kept
	// with a nil pressure.
	require.Len(t, first.Measurements, 3)
	m := first.Measurements[0]
	require.NotNil(t, m.Pressure)
	assert.Equal(t, 5.0, *m.Pressure)
	assert.Equal(t, "1", m.PressureQC)
	require.NotNil(t, m.Temperature)
	assert.Equal(t, 12.25, *m.Temperature)
	assert.Equal(t, "1", m.TemperatureQC)
	require.NotNil(t, m.Salinity)
	assert.Equal(t, 35.5, *m.Salinity)
	assert.Nil(t, m.Oxygen)
	assert.Equal(t, "", m.OxygenQC)
	assert.Nil(t, first.Measurements[2].Pressure)
	require.NotNil(t, first.Measurements[2].Temperature)

	second, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "5904298", second.FloatID)
	assert.Equal(t, 13, second.CycleNumber)
	assert.True(t, math.IsNaN(second.Latitude))
	// The all-fill padding level is dropped.
	assert.Len(t, second.Measurements, 2)

	_, err = p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestMissingRequiredVariable(t *testing.T) {
	spec := profileFileSpec()
	var vars []netcdftest.Var
	for _, v := range spec.Vars {
		if v.Name != "PSAL" {
			vars = append(vars, v)
		}
	}
	spec.Vars = vars
	path := writeSpec(t, "missing_psal.nc", spec)

	_, err := parser.Open(path)
	var structural *oceanerrors.ErrStructural
	require.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Reason, "PSAL")
}

func TestMissingRequiredDimension(t *testing.T) {
	spec := profileFileSpec()
	for i, d := range spec.Dims {
		if d.Name == "N_LEVELS" {
			spec.Dims[i].Name = "N_DEPTHS"
		}
	}
	for i, v := range spec.Vars {
		for j, name := range v.Dims {
			if name == "N_LEVELS" {
				spec.Vars[i].Dims[j] = "N_DEPTHS"
			}
		}
	}
	path := writeSpec(t, "missing_levels.nc", spec)

	_, err := parser.Open(path)
	var structural *oceanerrors.ErrStructural
	require.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Reason, "N_LEVELS")
}

func TestUndecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.nc")
	require.NoError(t, os.WriteFile(path, []byte("definitely not netcdf"), 0o644))

	_, err := parser.Open(path)
	var structural *oceanerrors.ErrStructural
	require.ErrorAs(t, err, &structural)
}

// An optional variable dimensioned (N_PROF) instead of (N_PROF, N_LEVELS)
// must not take the file down; its readings cannot be attributed to levels,
// so it parses as if the variable were absent.
func TestShortOptionalVariable(t *testing.T) {
	spec := profileFileSpec()
	spec.Vars = append(spec.Vars, netcdftest.Var{
		Name: "DOXY", Type: netcdf.Float,
		Dims:   []string{"N_PROF"},
		Attrs:  []netcdftest.Attr{{Name: "_FillValue", Value: float32(99999)}},
		Floats: []float64{210.5, 215},
	})
	path := writeSpec(t, "short_doxy.nc", spec)

	p, err := parser.Open(path)
	require.NoError(t, err)

	first, err := p.Next()
	require.NoError(t, err)
	require.Len(t, first.Measurements, 3)
	for _, m := range first.Measurements {
		assert.Nil(t, m.Oxygen)
	}

	second, err := p.Next()
	require.NoError(t, err)
	assert.Len(t, second.Measurements, 2)
	for _, m := range second.Measurements {
		assert.Nil(t, m.Oxygen)
	}
}

// Files without platform or cycle metadata still parse; identity falls back
// to the file name and the profile position.
func TestIdentityFallbacks(t *testing.T) {
	spec := profileFileSpec()
	var vars []netcdftest.Var
	for _, v := range spec.Vars {
		switch v.Name {
		case "PLATFORM_NUMBER", "CYCLE_NUMBER", "DATA_MODE", "PROJECT_NAME", "PI_NAME":
			continue
		}
		vars = append(vars, v)
	}
	spec.Vars = vars
	path := writeSpec(t, "anonymous.nc", spec)

	p, err := parser.Open(path)
	require.NoError(t, err)

	first, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "anonymous", first.FloatID)
	assert.Equal(t, 1, first.CycleNumber)
	assert.Equal(t, "", first.DataMode)

	second, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, second.CycleNumber)
}

func profileFileSpec() netcdftest.FileSpec {
	return netcdftest.FileSpec{
		Dims: []netcdftest.Dim{
			{Name: "N_PROF", Length: 2},
			{Name: "N_LEVELS", Length: 3},
			{Name: "STRING8", Length: 8},
			{Name: "STRING64", Length: 64},
		},
		Vars: []netcdftest.Var{
			{
				Name: "PLATFORM_NUMBER", Type: netcdf.Char,
				Dims: []string{"N_PROF", "STRING8"},
				Rows: []string{"5904297", "5904298"},
			},
			{
				Name: "CYCLE_NUMBER", Type: netcdf.Int,
				Dims:   []string{"N_PROF"},
				Floats: []float64{12, 13},
			},
			{
				Name: "JULD", Type: netcdf.Double,
				Dims:   []string{"N_PROF"},
				Attrs:  []netcdftest.Attr{{Name: "_FillValue", Value: float64(999999)}},
				Floats: []float64{20000.5, 20010.5},
			},
			{
				Name: "JULD_QC", Type: netcdf.Char,
				Dims: []string{"N_PROF"},
				Rows: []string{"1", "1"},
			},
			{
				Name: "LATITUDE", Type: netcdf.Double,
				Dims:   []string{"N_PROF"},
				Attrs:  []netcdftest.Attr{{Name: "_FillValue", Value: float64(99999)}},
				Floats: []float64{35.5, 99999},
			},
			{
				Name: "LONGITUDE", Type: netcdf.Double,
				Dims:   []string{"N_PROF"},
				Attrs:  []netcdftest.Attr{{Name: "_FillValue", Value: float64(99999)}},
				Floats: []float64{-72.25, 140},
			},
			{
				Name: "POSITION_QC", Type: netcdf.Char,
				Dims: []string{"N_PROF"},
				Rows: []string{"1", "4"},
			},
			{
				Name: "DATA_MODE", Type: netcdf.Char,
				Dims: []string{"N_PROF"},
				Rows: []string{"D", "R"},
			},
			{
				Name: "PROJECT_NAME", Type: netcdf.Char,
				Dims: []string{"N_PROF", "STRING64"},
				Rows: []string{"Argo AUSTRALIA", "Argo AUSTRALIA"},
			},
			{
				Name: "PI_NAME", Type: netcdf.Char,
				Dims: []string{"N_PROF", "STRING64"},
				Rows: []string{"Jane Smith", "Jane Smith"},
			},
			{
				Name: "PRES", Type: netcdf.Float,
				Dims:   []string{"N_PROF", "N_LEVELS"},
				Attrs:  []netcdftest.Attr{{Name: "_FillValue", Value: float32(99999)}},
				Floats: []float64{5, 10, 99999, 5, 10, 99999},
			},
			{
				Name: "PRES_QC", Type: netcdf.Char,
				Dims: []string{"N_PROF", "N_LEVELS"},
				Rows: []string{"111", "11 "},
			},
			{
				Name: "TEMP", Type: netcdf.Float,
				Dims:   []string{"N_PROF", "N_LEVELS"},
				Attrs:  []netcdftest.Attr{{Name: "_FillValue", Value: float32(99999)}},
				Floats: []float64{12.25, 11.5, 10.75, 14, 13.5, 99999},
			},
			{
				Name: "TEMP_QC", Type: netcdf.Char,
				Dims: []string{"N_PROF", "N_LEVELS"},
				Rows: []string{"111", "11 "},
			},
			{
				Name: "PSAL", Type: netcdf.Float,
				Dims:   []string{"N_PROF", "N_LEVELS"},
				Attrs:  []netcdftest.Attr{{Name: "_FillValue", Value: float32(99999)}},
				Floats: []float64{35.5, 35.25, 35, 34.75, 34.5, 99999},
			},
			{
				Name: "PSAL_QC", Type: netcdf.Char,
				Dims: []string{"N_PROF", "N_LEVELS"},
				Rows: []string{"111", "11 "},
			},
		},
	}
}
