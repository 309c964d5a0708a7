// Package parser turns ARGO profile NetCDF files into raw profiles. It
// understands the core ARGO variable set; anything a file does not carry
// degrades to empty or nil fields rather than failing the whole file, with
// the exception of the structurally required dimensions and variables.
package parser

import (
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/Abhishekshelar208/oceanquery/internal/common/oceanerrors"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/model"
	"github.com/Abhishekshelar208/oceanquery/internal/ingester/netcdf"
)

// ARGO julian days count from this epoch.
var juldEpoch = time.Date(1950, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultFillValue applies when a variable declares no _FillValue attribute.
const DefaultFillValue = 99999.0

var requiredDimensions = []string{"N_PROF", "N_LEVELS"}

var requiredVariables = []string{"JULD", "LATITUDE", "LONGITUDE", "PRES", "TEMP", "PSAL"}

// column is one per-level numeric variable with its QC flags.
type column struct {
	values []float64
	fill   float64
	qc     []string
}

// value returns the reading at profile i, level j, or nil for fill values.
// Optional variables may be dimensioned shorter than N_PROF x N_LEVELS;
// levels beyond their extent simply have no reading.
func (c *column) value(i, j, nLevels int) *float64 {
	idx := i*nLevels + j
	if idx >= len(c.values) {
		return nil
	}
	v := c.values[idx]
	if v == c.fill || math.IsNaN(v) {
		return nil
	}
	return &v
}

// flag returns the QC flag at profile i, level j, or "" when absent.
func (c *column) flag(i, j int) string {
	if i >= len(c.qc) || j >= len(c.qc[i]) {
		return ""
	}
	return string(c.qc[i][j])
}

// Parser iterates the profiles of one decoded file.
type Parser struct {
	path    string
	nProf   int
	nLevels int
	next    int

	floatIDs     []string
	cycles       []float64
	juld         column
	latitude     column
	longitude    column
	positionQC   []string
	juldQC       []string
	dataModes    []string
	projectNames []string
	piNames      []string

	pressure    column
	temperature column
	salinity    column
	oxygen      column
}

// Open decodes path and checks it carries the dimensions and variables a
// profile file must have. Structural problems come back as
// oceanerrors.ErrStructural.
func Open(path string) (*Parser, error) {
	f, err := netcdf.Open(path)
	if err != nil {
		return nil, &oceanerrors.ErrStructural{Path: path, Reason: err.Error()}
	}
	return newParser(path, f)
}

func newParser(path string, f *netcdf.File) (*Parser, error) {
	for _, name := range requiredDimensions {
		if _, ok := f.DimensionLength(name); !ok {
			return nil, &oceanerrors.ErrStructural{Path: path, Reason: "missing dimension " + name}
		}
	}
	for _, name := range requiredVariables {
		if _, ok := f.Variable(name); !ok {
			return nil, &oceanerrors.ErrStructural{Path: path, Reason: "missing variable " + name}
		}
	}

	p := &Parser{path: path}
	p.nProf, _ = f.DimensionLength("N_PROF")
	p.nLevels, _ = f.DimensionLength("N_LEVELS")

	p.floatIDs = loadStrings(f, "PLATFORM_NUMBER")
	p.cycles = loadNumeric(f, "CYCLE_NUMBER").values
	p.juld = loadNumeric(f, "JULD")
	p.latitude = loadNumeric(f, "LATITUDE")
	p.longitude = loadNumeric(f, "LONGITUDE")
	p.positionQC = loadStrings(f, "POSITION_QC")
	p.juldQC = loadStrings(f, "JULD_QC")
	p.dataModes = loadStrings(f, "DATA_MODE")
	p.projectNames = loadStrings(f, "PROJECT_NAME")
	p.piNames = loadStrings(f, "PI_NAME")

	p.pressure = loadColumn(f, "PRES")
	p.temperature = loadColumn(f, "TEMP")
	p.salinity = loadColumn(f, "PSAL")
	p.oxygen = loadColumn(f, "DOXY")
	// An optional per-level variable that is not dimensioned
	// (N_PROF, N_LEVELS) cannot be attributed to levels; treat it as absent.
	if len(p.oxygen.values) > 0 && len(p.oxygen.values) < p.nProf*p.nLevels {
		p.oxygen = column{}
	}

	for _, c := range []struct {
		name string
		col  column
	}{
		{"JULD", p.juld}, {"LATITUDE", p.latitude}, {"LONGITUDE", p.longitude},
	} {
		if len(c.col.values) < p.nProf {
			return nil, &oceanerrors.ErrStructural{
				Path:   path,
				Reason: "variable " + c.name + " shorter than N_PROF",
			}
		}
	}
	for _, c := range []struct {
		name string
		col  column
	}{
		{"PRES", p.pressure}, {"TEMP", p.temperature}, {"PSAL", p.salinity},
	} {
		if len(c.col.values) < p.nProf*p.nLevels {
			return nil, &oceanerrors.ErrStructural{
				Path:   path,
				Reason: "variable " + c.name + " shorter than N_PROF x N_LEVELS",
			}
		}
	}
	return p, nil
}

// NumProfiles returns the number of profiles in the file.
func (p *Parser) NumProfiles() int { return p.nProf }

// Next returns the next profile, or io.EOF after the last one.
func (p *Parser) Next() (*model.RawProfile, error) {
	if p.next >= p.nProf {
		return nil, io.EOF
	}
	i := p.next
	p.next++

	profile := &model.RawProfile{
		FloatID:     p.floatID(i),
		CycleNumber: p.cycleNumber(i),
		ProjectName: stringAt(p.projectNames, i),
		PIName:      stringAt(p.piNames, i),
		DataMode:    stringAt(p.dataModes, i),
		PositionQC:  stringAt(p.positionQC, i),
		TimeQC:      stringAt(p.juldQC, i),
	}
	if v := p.latitude.value(i, 0, 1); v != nil {
		profile.Latitude = *v
	} else {
		profile.Latitude = math.NaN()
	}
	if v := p.longitude.value(i, 0, 1); v != nil {
		profile.Longitude = *v
	} else {
		profile.Longitude = math.NaN()
	}
	if v := p.juld.value(i, 0, 1); v != nil {
		profile.MeasuredAt = juldEpoch.Add(time.Duration(*v * float64(24*time.Hour)))
	}

	profile.Measurements = make([]model.RawMeasurement, 0, p.nLevels)
	for j := 0; j < p.nLevels; j++ {
		m := model.RawMeasurement{
			Pressure:      p.pressure.value(i, j, p.nLevels),
			PressureQC:    p.pressure.flag(i, j),
			Temperature:   p.temperature.value(i, j, p.nLevels),
			TemperatureQC: p.temperature.flag(i, j),
			Salinity:      p.salinity.value(i, j, p.nLevels),
			SalinityQC:    p.salinity.flag(i, j),
			Oxygen:        p.oxygen.value(i, j, p.nLevels),
			OxygenQC:      p.oxygen.flag(i, j),
		}
		// A level with no readings at all is file padding, not data.
		if m.Pressure == nil && m.Temperature == nil && m.Salinity == nil && m.Oxygen == nil {
			continue
		}
		profile.Measurements = append(profile.Measurements, m)
	}
	return profile, nil
}

// floatID prefers the file's platform number and falls back to the file
// name for files that omit it.
func (p *Parser) floatID(i int) string {
	if id := strings.TrimSpace(stringAt(p.floatIDs, i)); id != "" {
		return id
	}
	return strings.TrimSuffix(filepath.Base(p.path), filepath.Ext(p.path))
}

func (p *Parser) cycleNumber(i int) int {
	if i < len(p.cycles) {
		if c := p.cycles[i]; !math.IsNaN(c) && c != DefaultFillValue {
			return int(c)
		}
	}
	return i + 1
}

func stringAt(s []string, i int) string {
	if i < len(s) {
		return strings.TrimSpace(s[i])
	}
	return ""
}

// loadNumeric reads a numeric variable and its fill value. Missing or
// non-numeric variables leave values nil.
func loadNumeric(f *netcdf.File, name string) column {
	v, ok := f.Variable(name)
	if !ok {
		return column{}
	}
	values, err := v.Float64s()
	if err != nil {
		return column{}
	}
	fill := DefaultFillValue
	if declared, ok := v.FillValue(); ok {
		fill = declared
	}
	return column{values: values, fill: fill}
}

// loadColumn reads a per-level variable together with its <NAME>_QC flags.
func loadColumn(f *netcdf.File, name string) column {
	c := loadNumeric(f, name)
	c.qc = loadStrings(f, name+"_QC")
	return c
}

func loadStrings(f *netcdf.File, name string) []string {
	v, ok := f.Variable(name)
	if !ok {
		return nil
	}
	rows, err := v.Strings()
	if err != nil {
		return nil
	}
	return rows
}
