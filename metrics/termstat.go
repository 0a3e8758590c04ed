// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package metrics

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// TermStatter is a dlite.Statter which writes counts and timings to a
// terminal. It is meant for the command line in lieu of a prometheus
// scrape. Gauges, histograms and sets are ignored.
type TermStatter struct {
	lock    sync.Mutex
	indexes map[string]int
	names   []string
	stats   []int64
	timings map[string]time.Duration
	changed bool
	out     io.Writer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewTermStatter returns a TermStatter writing to out every interval. An
// interval of 0 only writes on Flush and Close.
func NewTermStatter(out io.Writer, interval time.Duration) *TermStatter {
	ts := &TermStatter{
		indexes: make(map[string]int),
		timings: make(map[string]time.Duration),
		out:     out,
		done:    make(chan struct{}),
	}
	if interval > 0 {
		ts.wg.Add(1)
		go func() {
			defer ts.wg.Done()
			tick := time.NewTicker(interval)
			defer tick.Stop()
			for {
				select {
				case <-tick.C:
					ts.write(false)
				case <-ts.done:
					return
				}
			}
		}()
	}
	return ts
}

// Count adds value to the named stat at the specified rate.
func (t *TermStatter) Count(name string, value int64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.changed = true

	idx, ok := t.indexes[name]
	if !ok {
		idx = len(t.stats)
		t.stats = append(t.stats, 0)
		t.names = append(t.names, name)
		t.indexes[name] = idx
	}
	if rate < 1 {
		if rand.Float64() > rate {
			return
		}
	}
	t.stats[idx] += value
}

// Timing adds value to the total time of name.
func (t *TermStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	t.timings[name] += value
	t.changed = true
	t.lock.Unlock()
}

// Gauge does nothing.
func (t *TermStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

// Histogram does nothing.
func (t *TermStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (t *TermStatter) Set(name string, value string, rate float64, tags ...string) {}

// Flush writes the current stats even if nothing changed.
func (t *TermStatter) Flush() {
	t.write(true)
}

// Close stops periodic writing and writes the final stats.
func (t *TermStatter) Close() error {
	close(t.done)
	t.wg.Wait()
	t.write(true)
	return nil
}

// String renders the stats in order of first use, timings last.
func (t *TermStatter) String() string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.render()
}

func (t *TermStatter) render() string {
	parts := make([]string, 0, len(t.stats)+len(t.timings))
	for i := 0; i < len(t.stats); i++ {
		parts = append(parts, fmt.Sprintf("%s: %d", t.names[i], t.stats[i]))
	}
	for _, name := range t.names {
		if d, ok := t.timings[name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", name, d.Round(time.Millisecond)))
		}
	}
	for name, d := range t.timings {
		if _, ok := t.indexes[name]; !ok {
			parts = append(parts, fmt.Sprintf("%s: %s", name, d.Round(time.Millisecond)))
		}
	}
	return strings.Join(parts, " ")
}

func (t *TermStatter) write(force bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.changed && !force {
		return
	}
	t.changed = false
	fmt.Fprintf(t.out, "\r%s\n", t.render())
}
