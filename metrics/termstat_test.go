package metrics_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/metrics"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

var _ dlite.Statter = &metrics.TermStatter{}

func TestTermStatter(t *testing.T) {
	defer goleak.VerifyNone(t)

	var out bytes.Buffer
	ts := metrics.NewTermStatter(&out, 0)
	ts.Count("strategy.initialize", 1, 1)
	ts.Count("strategy.get", 1, 1)
	ts.Count("strategy.get", 1, 1)
	ts.Timing("strategy.get", 1500*time.Millisecond, 1)
	ts.Gauge("ignored", 1, 1)

	assert.Equal(t, "strategy.initialize: 1 strategy.get: 2 strategy.get: 1.5s", ts.String())
	assert.Empty(t, out.String())
	ts.Flush()
	assert.Equal(t, "\rstrategy.initialize: 1 strategy.get: 2 strategy.get: 1.5s\n", out.String())
	assert.NoError(t, ts.Close())
}

func TestTermStatterPeriodic(t *testing.T) {
	defer goleak.VerifyNone(t)

	var out syncBuffer
	ts := metrics.NewTermStatter(&out, time.Millisecond)
	ts.Count("runs", 3, 1)
	assert.Eventually(t, func() bool { return out.Len() > 0 }, time.Second, time.Millisecond)
	assert.NoError(t, ts.Close())
	assert.Contains(t, out.String(), "runs: 3")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
