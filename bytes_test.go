package dlite_test

import (
	"testing"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	for b, exp := range map[dlite.Bytes]string{
		0:                "0",
		1:                "1B",
		1023:             "1023B",
		1024:             "1K",
		1536:             "1.5K",
		5 * 1024 * 1024:  "5M",
		3 << 30:          "3G",
		2 << 40:          "2T",
		2048 * (1 << 40): "2048T",
	} {
		assert.Equal(t, exp, b.String(), "%d", uint64(b))
	}
}
