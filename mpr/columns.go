package mpr

type dtype int

const (
	u1 dtype = iota
	u2
	u4
	f4
	f8
)

func (d dtype) size() int {
	switch d {
	case u1:
		return 1
	case u2:
		return 2
	case u4, f4:
		return 4
	}
	return 8
}

// column describes one column id of the data module. Flag columns have a
// non-zero mask and are packed into the single flags byte which leads each
// record.
type column struct {
	name string
	typ  dtype
	mask byte
}

func (c column) flag() bool { return c.mask != 0 }

// columns maps the column ids found in data modules to their names and
// record layout.
var columns = map[uint16]column{
	1:   {name: "mode", mask: 0x03},
	2:   {name: "ox/red", mask: 0x04},
	3:   {name: "error", mask: 0x08},
	4:   {name: "time/s", typ: f8},
	5:   {name: "control/V/mA", typ: f4},
	6:   {name: "Ewe/V", typ: f4},
	7:   {name: "dq/mA.h", typ: f8},
	8:   {name: "I/mA", typ: f4},
	9:   {name: "Ece/V", typ: f4},
	11:  {name: "I/mA", typ: f8},
	13:  {name: "(Q-Qo)/mA.h", typ: f8},
	16:  {name: "Analog IN 1/V", typ: f4},
	19:  {name: "control/V", typ: f4},
	20:  {name: "control/mA", typ: f4},
	21:  {name: "control changes", mask: 0x10},
	23:  {name: "dQ/mA.h", typ: f8},
	24:  {name: "cycle number", typ: f8},
	26:  {name: "Rapp/Ohm", typ: f4},
	31:  {name: "Ns changes", mask: 0x20},
	32:  {name: "freq/Hz", typ: f4},
	33:  {name: "|Ewe|/V", typ: f4},
	34:  {name: "|I|/A", typ: f4},
	35:  {name: "Phase(Z)/deg", typ: f4},
	36:  {name: "|Z|/Ohm", typ: f4},
	37:  {name: "Re(Z)/Ohm", typ: f4},
	38:  {name: "-Im(Z)/Ohm", typ: f4},
	39:  {name: "I Range", typ: u2},
	65:  {name: "counter inc.", mask: 0x80},
	70:  {name: "P/W", typ: f4},
	74:  {name: "Energy/W.h", typ: f8},
	76:  {name: "<I>/mA", typ: f4},
	77:  {name: "<Ewe>/V", typ: f4},
	123: {name: "Energy charge/W.h", typ: f8},
	124: {name: "Energy discharge/W.h", typ: f8},
	125: {name: "Capacitance charge/µF", typ: f8},
	126: {name: "Capacitance discharge/µF", typ: f8},
	131: {name: "Ns", typ: u2},
	169: {name: "Cs/µF", typ: f4},
	434: {name: "(Q-Qo)/C", typ: f4},
	435: {name: "dQ/C", typ: f4},
	467: {name: "Q charge/discharge/mA.h", typ: f8},
	468: {name: "half cycle", typ: u4},
	469: {name: "z cycle", typ: u4},
}

// ColumnID returns the id of the named column, preferring the lowest id when
// a name is shared by several ids.
func ColumnID(name string) (uint16, bool) {
	var best uint16
	found := false
	for id, c := range columns {
		if c.name == name && (!found || id < best) {
			best, found = id, true
		}
	}
	return best, found
}
