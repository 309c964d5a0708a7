// Package netcdf reads the NetCDF classic file formats (CDF-1 and the
// 64-bit-offset CDF-2 variant). It decodes the header eagerly and reads
// variable data on demand, including record variables whose slabs are
// interleaved in the record section at the end of the file.
//
// The package is deliberately small: just what the profile parser needs.
// It does not write files and does not support the HDF5-based NetCDF-4
// format.
package netcdf

import (
	"encoding/binary"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Type is an external NetCDF data type code.
type Type int32

const (
	Byte   Type = 1
	Char   Type = 2
	Short  Type = 3
	Int    Type = 4
	Float  Type = 5
	Double Type = 6
)

func (t Type) size() int64 {
	switch t {
	case Byte, Char:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Double:
		return 8
	}
	return 0
}

func (t Type) valid() bool {
	return t >= Byte && t <= Double
}

const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C

	// numrecs value written by processes that stream records without
	// updating the header. Finished archive files never carry it.
	streamingRecs = 0xFFFFFFFF
)

// Dimension is a named axis. Length is 0 for the record dimension; use
// File.DimensionLength for the effective length.
type Dimension struct {
	Name   string
	Length int
}

// Attribute is a named constant attached to a file or a variable. Character
// attributes are exposed through String, numeric ones through Float64.
type Attribute struct {
	Name string
	Type Type

	str  string
	nums []float64
}

// String returns the character value, or "" for numeric attributes.
func (a Attribute) String() string { return a.str }

// Float64 returns the first numeric value. ok is false for character
// attributes and empty value lists.
func (a Attribute) Float64() (float64, bool) {
	if a.Type == Char || len(a.nums) == 0 {
		return 0, false
	}
	return a.nums[0], true
}

// Variable is one variable from the header. Data access goes through
// Float64s and Strings, which read from the underlying file image.
type Variable struct {
	Name string
	Type Type

	file     *File
	dimIDs   []int
	attrs    []Attribute
	begin    int64
	isRecord bool
}

// File is a decoded NetCDF classic file.
type File struct {
	version byte
	numRecs int
	dims    []Dimension
	attrs   []Attribute
	vars    []*Variable
	byName  map[string]*Variable

	data    []byte
	recSize int64
}

// Open reads and decodes path. The whole file is held in memory; ARGO
// profile files are a few megabytes at most.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	f, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return f, nil
}

// Decode parses a NetCDF classic byte image.
func Decode(data []byte) (*File, error) {
	if len(data) < 4 || data[0] != 'C' || data[1] != 'D' || data[2] != 'F' {
		return nil, errors.New("not a NetCDF classic file: bad magic")
	}
	version := data[3]
	if version != 1 && version != 2 {
		return nil, errors.Errorf("unsupported NetCDF version byte %d", version)
	}

	f := &File{version: version, data: data, byName: map[string]*Variable{}}
	r := &reader{data: data, off: 4}

	numRecs, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if numRecs == streamingRecs {
		return nil, errors.New("file has indeterminate record count")
	}
	f.numRecs = int(numRecs)

	if f.dims, err = r.dimList(); err != nil {
		return nil, err
	}
	if f.attrs, err = r.attrList(); err != nil {
		return nil, err
	}
	if err = r.varList(f); err != nil {
		return nil, err
	}

	// Record slabs of all record variables are interleaved per record.
	// With a single record variable its slab is laid out unpadded.
	var recVars []*Variable
	for _, v := range f.vars {
		if v.isRecord {
			recVars = append(recVars, v)
		}
	}
	if len(recVars) == 1 {
		f.recSize = recVars[0].recordValues() * recVars[0].Type.size()
	} else {
		for _, v := range recVars {
			f.recSize += pad4(v.recordValues() * v.Type.size())
		}
	}
	return f, nil
}

// NumRecords returns the length of the record dimension.
func (f *File) NumRecords() int { return f.numRecs }

// DimensionLength returns the length of the named dimension, resolving the
// record dimension to the current record count.
func (f *File) DimensionLength(name string) (int, bool) {
	for _, d := range f.dims {
		if d.Name == name {
			if d.Length == 0 {
				return f.numRecs, true
			}
			return d.Length, true
		}
	}
	return 0, false
}

// Variable returns the named variable.
func (f *File) Variable(name string) (*Variable, bool) {
	v, ok := f.byName[name]
	return v, ok
}

// Attribute returns the named global attribute.
func (f *File) Attribute(name string) (Attribute, bool) {
	return findAttr(f.attrs, name)
}

// Attribute returns the named variable attribute.
func (v *Variable) Attribute(name string) (Attribute, bool) {
	return findAttr(v.attrs, name)
}

// FillValue returns the variable's declared fill value, preferring the
// conventional _FillValue attribute over the older missing_value.
func (v *Variable) FillValue() (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		if a, ok := findAttr(v.attrs, name); ok {
			if n, ok := a.Float64(); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// Lengths returns the variable's dimension lengths in order, with the
// record dimension resolved to the record count.
func (v *Variable) Lengths() []int {
	out := make([]int, len(v.dimIDs))
	for i, id := range v.dimIDs {
		n := v.file.dims[id].Length
		if n == 0 {
			n = v.file.numRecs
		}
		out[i] = n
	}
	return out
}

// Len returns the total number of values.
func (v *Variable) Len() int {
	n := 1
	for _, l := range v.Lengths() {
		n *= l
	}
	return n
}

// recordValues is the number of values in one record slab.
func (v *Variable) recordValues() int64 {
	n := int64(1)
	for _, id := range v.dimIDs[1:] {
		n *= int64(v.file.dims[id].Length)
	}
	return n
}

// slabs visits the byte ranges holding the variable's values in order.
func (v *Variable) slabs(visit func(b []byte) error) error {
	size := v.Type.size()
	if !v.isRecord {
		n := int64(v.Len()) * size
		if v.begin+n > int64(len(v.file.data)) {
			return errors.Errorf("variable %s: data past end of file", v.Name)
		}
		return visit(v.file.data[v.begin : v.begin+n])
	}
	n := v.recordValues() * size
	for r := int64(0); r < int64(v.file.numRecs); r++ {
		off := v.begin + r*v.file.recSize
		if off+n > int64(len(v.file.data)) {
			return errors.Errorf("variable %s: record %d past end of file", v.Name, r)
		}
		if err := visit(v.file.data[off : off+n]); err != nil {
			return err
		}
	}
	return nil
}

// Float64s reads every value of a numeric variable, widened to float64,
// in row-major order.
func (v *Variable) Float64s() ([]float64, error) {
	if v.Type == Char {
		return nil, errors.Errorf("variable %s holds characters, not numbers", v.Name)
	}
	out := make([]float64, 0, v.Len())
	err := v.slabs(func(b []byte) error {
		switch v.Type {
		case Byte:
			for _, c := range b {
				out = append(out, float64(int8(c)))
			}
		case Short:
			for i := 0; i+2 <= len(b); i += 2 {
				out = append(out, float64(int16(binary.BigEndian.Uint16(b[i:]))))
			}
		case Int:
			for i := 0; i+4 <= len(b); i += 4 {
				out = append(out, float64(int32(binary.BigEndian.Uint32(b[i:]))))
			}
		case Float:
			for i := 0; i+4 <= len(b); i += 4 {
				out = append(out, float64(math.Float32frombits(binary.BigEndian.Uint32(b[i:]))))
			}
		case Double:
			for i := 0; i+8 <= len(b); i += 8 {
				out = append(out, math.Float64frombits(binary.BigEndian.Uint64(b[i:])))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Strings reads a character variable as strings. The last dimension is the
// string length, so a char(n, m) variable yields n strings of up to m
// characters, and a char(n) variable yields n single-character strings.
// Trailing NULs and spaces are trimmed.
func (v *Variable) Strings() ([]string, error) {
	if v.Type != Char {
		return nil, errors.Errorf("variable %s is not a character variable", v.Name)
	}
	raw := make([]byte, 0, v.Len())
	err := v.slabs(func(b []byte) error {
		raw = append(raw, b...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	rowLen := 1
	if lengths := v.Lengths(); len(lengths) >= 2 {
		rowLen = lengths[len(lengths)-1]
	}
	if rowLen <= 0 {
		return nil, nil
	}
	out := make([]string, 0, len(raw)/rowLen)
	for i := 0; i+rowLen <= len(raw); i += rowLen {
		out = append(out, strings.TrimRight(string(raw[i:i+rowLen]), "\x00 "))
	}
	return out, nil
}

func findAttr(attrs []Attribute, name string) (Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

func pad4(n int64) int64 {
	return (n + 3) &^ 3
}

// reader walks the header section of the byte image.
type reader struct {
	data []byte
	off  int64
}

func (r *reader) uint32() (uint32, error) {
	if r.off+4 > int64(len(r.data)) {
		return 0, errors.New("truncated header")
	}
	n := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return n, nil
}

func (r *reader) uint64() (uint64, error) {
	if r.off+8 > int64(len(r.data)) {
		return 0, errors.New("truncated header")
	}
	n := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += 8
	return n, nil
}

func (r *reader) name() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	end := r.off + int64(n)
	if end > int64(len(r.data)) {
		return "", errors.New("truncated name")
	}
	s := string(r.data[r.off:end])
	r.off = r.off + pad4(int64(n))
	return s, nil
}

// listHeader reads a tag/count pair. An absent list is encoded as two
// zero words.
func (r *reader) listHeader(wantTag uint32) (int, error) {
	tag, err := r.uint32()
	if err != nil {
		return 0, err
	}
	n, err := r.uint32()
	if err != nil {
		return 0, err
	}
	if tag == 0 && n == 0 {
		return 0, nil
	}
	if tag != wantTag {
		return 0, errors.Errorf("expected list tag 0x%02X, got 0x%02X", wantTag, tag)
	}
	return int(n), nil
}

func (r *reader) dimList() ([]Dimension, error) {
	n, err := r.listHeader(tagDimension)
	if err != nil {
		return nil, err
	}
	dims := make([]Dimension, 0, n)
	for i := 0; i < n; i++ {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		length, err := r.uint32()
		if err != nil {
			return nil, err
		}
		dims = append(dims, Dimension{Name: name, Length: int(length)})
	}
	return dims, nil
}

func (r *reader) attrList() ([]Attribute, error) {
	n, err := r.listHeader(tagAttribute)
	if err != nil {
		return nil, err
	}
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n; i++ {
		a, err := r.attr()
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

func (r *reader) attr() (Attribute, error) {
	name, err := r.name()
	if err != nil {
		return Attribute{}, err
	}
	typeCode, err := r.uint32()
	if err != nil {
		return Attribute{}, err
	}
	t := Type(typeCode)
	if !t.valid() {
		return Attribute{}, errors.Errorf("attribute %s: unknown type %d", name, typeCode)
	}
	n, err := r.uint32()
	if err != nil {
		return Attribute{}, err
	}
	size := int64(n) * t.size()
	end := r.off + size
	if end > int64(len(r.data)) {
		return Attribute{}, errors.Errorf("attribute %s: truncated values", name)
	}
	b := r.data[r.off:end]
	r.off += pad4(size)

	a := Attribute{Name: name, Type: t}
	switch t {
	case Char:
		a.str = strings.TrimRight(string(b), "\x00")
	case Byte:
		for _, c := range b {
			a.nums = append(a.nums, float64(int8(c)))
		}
	case Short:
		for i := 0; i+2 <= len(b); i += 2 {
			a.nums = append(a.nums, float64(int16(binary.BigEndian.Uint16(b[i:]))))
		}
	case Int:
		for i := 0; i+4 <= len(b); i += 4 {
			a.nums = append(a.nums, float64(int32(binary.BigEndian.Uint32(b[i:]))))
		}
	case Float:
		for i := 0; i+4 <= len(b); i += 4 {
			a.nums = append(a.nums, float64(math.Float32frombits(binary.BigEndian.Uint32(b[i:]))))
		}
	case Double:
		for i := 0; i+8 <= len(b); i += 8 {
			a.nums = append(a.nums, math.Float64frombits(binary.BigEndian.Uint64(b[i:])))
		}
	}
	return a, nil
}

func (r *reader) varList(f *File) error {
	n, err := r.listHeader(tagVariable)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		v := &Variable{file: f}
		if v.Name, err = r.name(); err != nil {
			return err
		}
		ndims, err := r.uint32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < ndims; j++ {
			id, err := r.uint32()
			if err != nil {
				return err
			}
			if int(id) >= len(f.dims) {
				return errors.Errorf("variable %s: dimension id %d out of range", v.Name, id)
			}
			v.dimIDs = append(v.dimIDs, int(id))
		}
		if v.attrs, err = r.attrList(); err != nil {
			return err
		}
		typeCode, err := r.uint32()
		if err != nil {
			return err
		}
		v.Type = Type(typeCode)
		if !v.Type.valid() {
			return errors.Errorf("variable %s: unknown type %d", v.Name, typeCode)
		}
		// vsize is redundant with the shape; skip it.
		if _, err = r.uint32(); err != nil {
			return err
		}
		if f.version == 1 {
			begin, err := r.uint32()
			if err != nil {
				return err
			}
			v.begin = int64(begin)
		} else {
			begin, err := r.uint64()
			if err != nil {
				return err
			}
			v.begin = int64(begin)
		}
		v.isRecord = len(v.dimIDs) > 0 && f.dims[v.dimIDs[0]].Length == 0
		f.vars = append(f.vars, v)
		f.byName[v.Name] = v
	}
	return nil
}
