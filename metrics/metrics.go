// Package metrics exports pipeline stats to prometheus.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported metric.
const Namespace = "otedlite"

// PromStatter implements dlite.Statter by creating prometheus collectors on
// first use. Statter names like "strategy.get" become "otedlite_strategy_get";
// tags are joined into the single label "tags".
type PromStatter struct {
	registry prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	sets       map[string]*prometheus.GaugeVec
}

// NewPromStatter returns a PromStatter registering its collectors with reg.
func NewPromStatter(reg prometheus.Registerer) *PromStatter {
	return &PromStatter{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		sets:       make(map[string]*prometheus.GaugeVec),
	}
}

// Count adds value to the counter name. Negative values are ignored.
func (p *PromStatter) Count(name string, value int64, rate float64, tags ...string) {
	if value < 0 {
		return
	}
	p.mu.Lock()
	c, ok := p.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      metricName(name) + "_total",
			Help:      "Count of " + name,
		}, []string{"tags"})
		c = p.register(c).(*prometheus.CounterVec)
		p.counters[name] = c
	}
	p.mu.Unlock()
	c.WithLabelValues(joinTags(tags)).Add(float64(value))
}

// Gauge sets the gauge name.
func (p *PromStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	p.mu.Lock()
	g, ok := p.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      metricName(name),
			Help:      "Gauge of " + name,
		}, []string{"tags"})
		g = p.register(g).(*prometheus.GaugeVec)
		p.gauges[name] = g
	}
	p.mu.Unlock()
	g.WithLabelValues(joinTags(tags)).Set(value)
}

// Histogram observes value in the histogram name.
func (p *PromStatter) Histogram(name string, value float64, rate float64, tags ...string) {
	p.histogram(metricName(name), name, prometheus.DefBuckets).WithLabelValues(joinTags(tags)).Observe(value)
}

// Set marks value as seen for name.
func (p *PromStatter) Set(name string, value string, rate float64, tags ...string) {
	p.mu.Lock()
	g, ok := p.sets[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      metricName(name) + "_set",
			Help:      "Values seen for " + name,
		}, []string{"tags", "value"})
		g = p.register(g).(*prometheus.GaugeVec)
		p.sets[name] = g
	}
	p.mu.Unlock()
	g.WithLabelValues(joinTags(tags), value).Set(1)
}

// Timing observes value, in seconds, in the histogram name_seconds.
func (p *PromStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	p.histogram(metricName(name)+"_seconds", name, prometheus.ExponentialBuckets(0.001, 4, 10)).
		WithLabelValues(joinTags(tags)).Observe(value.Seconds())
}

func (p *PromStatter) histogram(metric, name string, buckets []float64) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.histograms[metric]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      metric,
			Help:      "Distribution of " + name,
			Buckets:   buckets,
		}, []string{"tags"})
		h = p.register(h).(*prometheus.HistogramVec)
		p.histograms[metric] = h
	}
	return h
}

// register registers c, returning the collector already registered under
// the same description if there is one.
func (p *PromStatter) register(c prometheus.Collector) prometheus.Collector {
	if p.registry == nil {
		return c
	}
	if err := p.registry.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		// a conflicting description; keep counting without exporting
		return c
	}
	return c
}

func metricName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}
