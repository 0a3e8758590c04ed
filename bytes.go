package dlite

import (
	"strconv"
)

// Bytes is a byte count whose String method gives a short readable size
// like 1.2M or 4K.
type Bytes uint64

var byteUnits = []string{"B", "K", "M", "G", "T"}

// String uses the largest unit that keeps the number at or above 1, with at
// most one decimal.
func (b Bytes) String() string {
	if b == 0 {
		return "0"
	}
	value := float64(b)
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	s := strconv.FormatFloat(value, 'f', 1, 64)
	if len(s) > 2 && s[len(s)-2:] == ".0" {
		s = s[:len(s)-2]
	}
	return s + byteUnits[unit]
}
