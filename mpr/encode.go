package mpr

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// NewFile builds a File from columns given by name, in order. All columns
// must have the same length.
func NewFile(version int, start time.Time, names []string, values [][]float64) (*File, error) {
	if len(names) != len(values) {
		return nil, errors.Errorf("%d names for %d columns", len(names), len(values))
	}
	f := &File{
		Version:   version,
		StartDate: start,
		Columns:   append([]string(nil), names...),
		Data:      make(map[string][]float64, len(names)),
	}
	for i, name := range names {
		id, ok := ColumnID(name)
		if !ok {
			return nil, errors.Errorf("unknown column %q", name)
		}
		if i > 0 && len(values[i]) != f.Rows {
			return nil, errors.Errorf("column %q has %d rows, want %d", name, len(values[i]), f.Rows)
		}
		f.Rows = len(values[i])
		f.ids = append(f.ids, id)
		f.Data[name] = values[i]
	}
	return f, nil
}

// MarshalBinary encodes f as an .mpr file with a settings module carrying
// the start date and a data module.
func (f *File) MarshalBinary() ([]byte, error) {
	start, ok := dataOffsets[uint32(f.Version)]
	if !ok {
		return nil, errors.Errorf("unsupported data module version %d", f.Version)
	}
	if len(f.ids) > 255 {
		return nil, errors.New("too many columns")
	}

	hasFlags := false
	recordSize := 0
	for _, id := range f.ids {
		if c := columns[id]; c.flag() {
			hasFlags = true
		} else {
			recordSize += c.typ.size()
		}
	}
	if hasFlags {
		recordSize++
	}

	body := make([]byte, start+f.Rows*recordSize)
	binary.LittleEndian.PutUint32(body[0:4], uint32(f.Rows))
	body[4] = byte(len(f.ids))
	for i, id := range f.ids {
		if f.Version == 0 {
			body[5+i] = byte(id)
		} else {
			binary.LittleEndian.PutUint16(body[5+2*i:], id)
		}
	}
	for row := 0; row < f.Rows; row++ {
		rec := body[start+row*recordSize : start+(row+1)*recordSize]
		pos := 0
		if hasFlags {
			pos = 1
		}
		for _, id := range f.ids {
			c := columns[id]
			v := f.Data[c.name][row]
			if c.flag() {
				rec[0] |= (byte(v) << shift(c.mask)) & c.mask
				continue
			}
			writeValue(c.typ, rec[pos:], v)
			pos += c.typ.size()
		}
	}

	var buf bytes.Buffer
	buf.Write(Magic)
	date := ""
	if !f.StartDate.IsZero() {
		date = f.StartDate.Format(dateLayouts[0])
	}
	writeModule(&buf, settingsModule, "Settings", 0, date, make([]byte, 16))
	writeModule(&buf, dataModule, "Data", uint32(f.Version), date, body)
	return buf.Bytes(), nil
}

func writeModule(buf *bytes.Buffer, short, long string, version uint32, date string, body []byte) {
	hdr := make([]byte, moduleHeaderLen)
	pad(hdr[0:10], short)
	pad(hdr[10:35], long)
	binary.LittleEndian.PutUint32(hdr[35:39], uint32(len(body)))
	binary.LittleEndian.PutUint32(hdr[39:43], version)
	pad(hdr[43:51], date)
	buf.WriteString(moduleTag)
	buf.Write(hdr)
	buf.Write(body)
}

func pad(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}
