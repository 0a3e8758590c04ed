// Package mpr reads BioLogic .mpr files and implements the strategy which
// parses them into data model instances.
//
// An .mpr file is a fixed magic header followed by a sequence of modules.
// Every module starts with "MODULE" and a 51 byte header (short name, long
// name, body length, version and date); the "VMP data" module holds the
// measurement records and the "VMP Set" module the acquisition settings.
package mpr

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"math"
	"strings"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// Magic starts every .mpr file.
var Magic = []byte("BIO-LOGIC MODULAR FILE\x1a                         \x00\x00\x00\x00")

const (
	moduleTag       = "MODULE"
	moduleHeaderLen = 10 + 25 + 4 + 4 + 8

	dataModule     = "VMP data"
	settingsModule = "VMP Set"
)

// dataOffsets is where the records start in the data module, by version.
var dataOffsets = map[uint32]int{0: 100, 2: 405, 3: 406}

// File is the content of an .mpr file in column order.
type File struct {
	// Version of the data module.
	Version int
	// StartDate is the acquisition date from the settings module, if any.
	StartDate time.Time
	// Columns holds the column names in file order.
	Columns []string
	// Data holds the values of each column. Flag and integer columns are
	// converted to float64 as well.
	Data map[string][]float64
	// Rows is the number of records.
	Rows int

	ids []uint16
}

// Column returns the values of the named column.
func (f *File) Column(name string) ([]float64, bool) {
	v, ok := f.Data[name]
	return v, ok
}

type module struct {
	shortName string
	longName  string
	version   uint32
	date      string
	body      []byte
}

// Read decodes an .mpr file. Malformed input gives an error of kind
// dlite.KindDecode.
func Read(r io.Reader) (*File, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, dlite.DecodeError(err, "read mpr")
	}
	return Decode(data)
}

// Decode decodes the bytes of an .mpr file.
func Decode(data []byte) (*File, error) {
	if !bytes.HasPrefix(data, Magic) {
		return nil, dlite.DecodeError(errors.New("bad magic, not a BioLogic modular file"), "decode mpr")
	}
	modules, err := readModules(data[len(Magic):])
	if err != nil {
		return nil, dlite.DecodeError(err, "decode mpr")
	}

	var f *File
	var date string
	for _, m := range modules {
		switch m.shortName {
		case dataModule:
			if f != nil {
				return nil, dlite.DecodeError(errors.New("more than one data module"), "decode mpr")
			}
			f, err = decodeData(m)
			if err != nil {
				return nil, dlite.DecodeError(err, "decode mpr data module")
			}
		case settingsModule:
			date = m.date
		}
	}
	if f == nil {
		return nil, dlite.DecodeError(errors.New("no data module"), "decode mpr")
	}
	if date != "" {
		f.StartDate, err = parseDate(date)
		if err != nil {
			return nil, dlite.DecodeError(err, "decode mpr settings module")
		}
	}
	return f, nil
}

func readModules(data []byte) ([]module, error) {
	var modules []module
	for pos := 0; pos < len(data); {
		if !bytes.HasPrefix(data[pos:], []byte(moduleTag)) {
			return nil, errors.Errorf("expected %q at offset %d", moduleTag, pos+len(Magic))
		}
		pos += len(moduleTag)
		if len(data)-pos < moduleHeaderLen {
			return nil, errors.New("truncated module header")
		}
		hdr := data[pos : pos+moduleHeaderLen]
		m := module{
			shortName: cString(hdr[0:10]),
			longName:  cString(hdr[10:35]),
			version:   binary.LittleEndian.Uint32(hdr[39:43]),
			date:      cString(hdr[43:51]),
		}
		length := int(binary.LittleEndian.Uint32(hdr[35:39]))
		pos += moduleHeaderLen
		if length < 0 || len(data)-pos < length {
			return nil, errors.Errorf("module %q: truncated body, want %d bytes", m.shortName, length)
		}
		m.body = data[pos : pos+length]
		pos += length
		modules = append(modules, m)
	}
	return modules, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

func decodeData(m module) (*File, error) {
	start, ok := dataOffsets[m.version]
	if !ok {
		return nil, errors.Errorf("unsupported data module version %d", m.version)
	}
	body := m.body
	if len(body) < 5 {
		return nil, errors.New("truncated data module")
	}
	rows := int(binary.LittleEndian.Uint32(body[0:4]))
	ncols := int(body[4])

	ids := make([]uint16, ncols)
	idSize := 2
	if m.version == 0 {
		idSize = 1
	}
	if len(body) < 5+ncols*idSize || len(body) < start {
		return nil, errors.New("truncated column list")
	}
	for i := range ids {
		if idSize == 1 {
			ids[i] = uint16(body[5+i])
		} else {
			ids[i] = binary.LittleEndian.Uint16(body[5+2*i:])
		}
	}

	cols := make([]column, ncols)
	seen := make(map[string]bool, ncols)
	hasFlags := false
	recordSize := 0
	for i, id := range ids {
		c, ok := columns[id]
		if !ok {
			return nil, errors.Errorf("unknown column id %d", id)
		}
		if seen[c.name] {
			return nil, errors.Errorf("duplicate column %q", c.name)
		}
		seen[c.name] = true
		cols[i] = c
		if c.flag() {
			hasFlags = true
		} else {
			recordSize += c.typ.size()
		}
	}
	if hasFlags {
		recordSize++
	}

	records := body[start:]
	if recordSize == 0 && rows > 0 {
		return nil, errors.Errorf("%d rows without columns", rows)
	}
	if recordSize > 0 && rows > len(records)/recordSize {
		return nil, errors.Errorf("truncated records: %d rows of %d bytes, have %d bytes", rows, recordSize, len(records))
	}

	f := &File{
		Version: int(m.version),
		Columns: make([]string, ncols),
		Data:    make(map[string][]float64, ncols),
		Rows:    rows,
		ids:     ids,
	}
	for i, c := range cols {
		f.Columns[i] = c.name
		f.Data[c.name] = make([]float64, rows)
	}
	for row := 0; row < rows; row++ {
		rec := records[row*recordSize : (row+1)*recordSize]
		var flags byte
		if hasFlags {
			flags, rec = rec[0], rec[1:]
		}
		for _, c := range cols {
			if c.flag() {
				f.Data[c.name][row] = float64((flags & c.mask) >> shift(c.mask))
				continue
			}
			f.Data[c.name][row] = readValue(c.typ, rec)
			rec = rec[c.typ.size():]
		}
	}
	return f, nil
}

func shift(mask byte) uint {
	var s uint
	for mask&1 == 0 && s < 8 {
		mask >>= 1
		s++
	}
	return s
}

func readValue(t dtype, b []byte) float64 {
	switch t {
	case u1:
		return float64(b[0])
	case u2:
		return float64(binary.LittleEndian.Uint16(b))
	case u4:
		return float64(binary.LittleEndian.Uint32(b))
	case f4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func writeValue(t dtype, b []byte, v float64) {
	switch t {
	case u1:
		b[0] = byte(v)
	case u2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case u4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case f4:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	default:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

var dateLayouts = []string{"01/02/06", "01-02-06", "01.02.06"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised date %q", s)
}
