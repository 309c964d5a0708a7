// Package netcdftest builds NetCDF classic byte images in memory so tests
// can exercise the decoder and the profile parser without binary fixtures
// checked into the repository.
package netcdftest

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abhishekshelar208/oceanquery/internal/ingester/netcdf"
)

// Dim declares a dimension. Length 0 makes it the record dimension.
type Dim struct {
	Name   string
	Length int
}

// Attr declares an attribute. Supported value types: string, float32,
// float64, int32 and []float64.
type Attr struct {
	Name  string
	Value interface{}
}

// Var declares a variable and its values. Numeric variables take Floats,
// one value per element in row-major order. Character variables take Rows,
// one string per row; each row is padded with NULs to the last dimension's
// length (or to 1 for one-dimensional variables).
type Var struct {
	Name   string
	Type   netcdf.Type
	Dims   []string
	Attrs  []Attr
	Floats []float64
	Rows   []string
}

// FileSpec is a complete file to encode.
type FileSpec struct {
	Version byte // 1 or 2, default 1
	NumRecs int
	Dims    []Dim
	Attrs   []Attr
	Vars    []Var
}

// WriteFile encodes spec into dir and returns the file path.
func WriteFile(t *testing.T, dir, name string, spec FileSpec) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, Encode(t, spec), 0o644))
	return path
}

// Encode serializes spec as a NetCDF classic byte image.
func Encode(t *testing.T, spec FileSpec) []byte {
	t.Helper()
	version := spec.Version
	if version == 0 {
		version = 1
	}
	beginWidth := int64(4)
	if version == 2 {
		beginWidth = 8
	}

	dimIndex := map[string]int{}
	for i, d := range spec.Dims {
		dimIndex[d.Name] = i
	}

	// First pass over the variables computes slab sizes so begin offsets
	// can be assigned before the header is written.
	type layout struct {
		v        *Var
		dimIDs   []int
		isRecord bool
		slab     int64 // bytes per slab, unpadded
		values   int64 // values per slab
		rowLen   int64 // chars per string, for character variables
		begin    int64
	}
	layouts := make([]*layout, len(spec.Vars))
	var recVars []*layout
	for i := range spec.Vars {
		v := &spec.Vars[i]
		l := &layout{v: v}
		values := int64(1)
		for j, name := range v.Dims {
			id, ok := dimIndex[name]
			require.True(t, ok, "variable %s: unknown dimension %s", v.Name, name)
			l.dimIDs = append(l.dimIDs, id)
			length := spec.Dims[id].Length
			if length == 0 {
				require.Equal(t, 0, j, "variable %s: record dimension must come first", v.Name)
				l.isRecord = true
				continue
			}
			values *= int64(length)
		}
		l.values = values
		l.slab = values * typeSize(v.Type)
		l.rowLen = 1
		if len(v.Dims) >= 2 {
			l.rowLen = int64(spec.Dims[l.dimIDs[len(l.dimIDs)-1]].Length)
		}
		layouts[i] = l
		if l.isRecord {
			recVars = append(recVars, l)
		}
	}

	headerSize := int64(8) // magic + numrecs
	headerSize += dimListSize(spec.Dims)
	headerSize += attrListSize(spec.Attrs)
	headerSize += 8 // var_list tag + count
	for _, l := range layouts {
		headerSize += nameSize(l.v.Name) + 4 + 4*int64(len(l.dimIDs)) +
			attrListSize(l.v.Attrs) + 4 + 4 + beginWidth
	}

	offset := headerSize
	for _, l := range layouts {
		if l.isRecord {
			continue
		}
		l.begin = offset
		offset += pad4(l.slab)
	}
	var recSize int64
	for _, l := range recVars {
		l.begin = offset + recSize
		recSize += pad4(l.slab)
	}
	if len(recVars) == 1 {
		recSize = recVars[0].slab
	}

	buf := &bytes.Buffer{}
	buf.WriteString("CDF")
	buf.WriteByte(version)
	writeUint32(buf, uint32(spec.NumRecs))

	writeList(buf, 0x0A, len(spec.Dims))
	for _, d := range spec.Dims {
		writeName(buf, d.Name)
		writeUint32(buf, uint32(d.Length))
	}
	writeAttrs(t, buf, spec.Attrs)
	writeList(buf, 0x0B, len(layouts))
	for _, l := range layouts {
		writeName(buf, l.v.Name)
		writeUint32(buf, uint32(len(l.dimIDs)))
		for _, id := range l.dimIDs {
			writeUint32(buf, uint32(id))
		}
		writeAttrs(t, buf, l.v.Attrs)
		writeUint32(buf, uint32(l.v.Type))
		writeUint32(buf, uint32(pad4(l.slab)))
		if version == 2 {
			writeUint64(buf, uint64(l.begin))
		} else {
			writeUint32(buf, uint32(l.begin))
		}
	}

	for _, l := range layouts {
		if l.isRecord {
			continue
		}
		writePadded(buf, encodeSlab(t, l.v, l.values, 0, l.rowLen))
	}
	for r := 0; r < spec.NumRecs; r++ {
		for _, l := range recVars {
			slab := encodeSlab(t, l.v, l.values, int64(r)*l.values, l.rowLen)
			if len(recVars) == 1 {
				buf.Write(slab)
			} else {
				writePadded(buf, slab)
			}
		}
	}
	return buf.Bytes()
}

// encodeSlab serializes values [start, start+count) of v.
func encodeSlab(t *testing.T, v *Var, count, start, rowLen int64) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	if v.Type == netcdf.Char {
		startRow := start / rowLen
		rows := count / rowLen
		for i := int64(0); i < rows; i++ {
			row := ""
			if startRow+i < int64(len(v.Rows)) {
				row = v.Rows[startRow+i]
			}
			require.LessOrEqual(t, int64(len(row)), rowLen, "variable %s: row too long", v.Name)
			buf.WriteString(row)
			buf.Write(make([]byte, rowLen-int64(len(row))))
		}
		return buf.Bytes()
	}
	require.GreaterOrEqual(t, int64(len(v.Floats)), start+count,
		"variable %s: not enough values", v.Name)
	for _, x := range v.Floats[start : start+count] {
		switch v.Type {
		case netcdf.Byte:
			buf.WriteByte(byte(int8(x)))
		case netcdf.Short:
			writeUint16(buf, uint16(int16(x)))
		case netcdf.Int:
			writeUint32(buf, uint32(int32(x)))
		case netcdf.Float:
			writeUint32(buf, math.Float32bits(float32(x)))
		case netcdf.Double:
			writeUint64(buf, math.Float64bits(x))
		}
	}
	return buf.Bytes()
}

func writeAttrs(t *testing.T, buf *bytes.Buffer, attrs []Attr) {
	writeList(buf, 0x0C, len(attrs))
	for _, a := range attrs {
		writeName(buf, a.Name)
		switch v := a.Value.(type) {
		case string:
			writeUint32(buf, uint32(netcdf.Char))
			writeUint32(buf, uint32(len(v)))
			writePadded(buf, []byte(v))
		case float32:
			writeUint32(buf, uint32(netcdf.Float))
			writeUint32(buf, 1)
			writeUint32(buf, math.Float32bits(v))
		case float64:
			writeUint32(buf, uint32(netcdf.Double))
			writeUint32(buf, 1)
			writeUint64(buf, math.Float64bits(v))
		case int32:
			writeUint32(buf, uint32(netcdf.Int))
			writeUint32(buf, 1)
			writeUint32(buf, uint32(v))
		case []float64:
			writeUint32(buf, uint32(netcdf.Double))
			writeUint32(buf, uint32(len(v)))
			for _, x := range v {
				writeUint64(buf, math.Float64bits(x))
			}
		default:
			require.Failf(t, "unsupported attribute value", "attribute %s: %T", a.Name, a.Value)
		}
	}
}

func dimListSize(dims []Dim) int64 {
	n := int64(8)
	for _, d := range dims {
		n += nameSize(d.Name) + 4
	}
	return n
}

func attrListSize(attrs []Attr) int64 {
	n := int64(8)
	for _, a := range attrs {
		n += nameSize(a.Name) + 8
		switch v := a.Value.(type) {
		case string:
			n += pad4(int64(len(v)))
		case float32, int32:
			n += 4
		case float64:
			n += 8
		case []float64:
			n += 8 * int64(len(v))
		}
	}
	return n
}

func nameSize(name string) int64 {
	return 4 + pad4(int64(len(name)))
}

func typeSize(t netcdf.Type) int64 {
	switch t {
	case netcdf.Byte, netcdf.Char:
		return 1
	case netcdf.Short:
		return 2
	case netcdf.Int, netcdf.Float:
		return 4
	case netcdf.Double:
		return 8
	}
	return 0
}

func pad4(n int64) int64 {
	return (n + 3) &^ 3
}

func writeList(buf *bytes.Buffer, tag uint32, n int) {
	if n == 0 {
		writeUint32(buf, 0)
		writeUint32(buf, 0)
		return
	}
	writeUint32(buf, tag)
	writeUint32(buf, uint32(n))
}

func writeName(buf *bytes.Buffer, name string) {
	writeUint32(buf, uint32(len(name)))
	writePadded(buf, []byte(name))
}

func writePadded(buf *bytes.Buffer, b []byte) {
	buf.Write(b)
	if rem := len(b) % 4; rem != 0 {
		buf.Write(make([]byte, 4-rem))
	}
}

func writeUint16(buf *bytes.Buffer, n uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], n)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, n uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	buf.Write(b[:])
}
