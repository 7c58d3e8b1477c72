package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Point is one recorded value of a series.
type Point struct {
	Step   int
	Time   time.Time
	Name   string
	Value  float64
	Labels map[string]string
}

// Aggregation summarises the values of one series.
type Aggregation struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

// Collector keeps in-memory series of training and evaluation values.
// It is safe for concurrent use.
type Collector struct {
	mu     sync.RWMutex
	series map[string]map[string][]Point // name -> label key -> points
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{series: make(map[string]map[string][]Point)}
}

// Record appends value to the series identified by name and labels.
func (c *Collector) Record(name string, step int, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	if c.series[name] == nil {
		c.series[name] = make(map[string][]Point)
	}
	c.series[name][key] = append(c.series[name][key], Point{
		Step:   step,
		Time:   time.Now(),
		Name:   name,
		Value:  value,
		Labels: copyLabels(labels),
	})
}

// Series returns a copy of the points recorded under name and labels.
func (c *Collector) Series(name string, labels map[string]string) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.series[name][labelKey(labels)]
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	for i, p := range points {
		p.Labels = copyLabels(p.Labels)
		out[i] = p
	}
	return out
}

// Values returns just the values of a series in recording order.
func (c *Collector) Values(name string, labels map[string]string) []float64 {
	points := c.Series(name, labels)
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// Aggregate summarises a series, or returns nil if it is empty.
func (c *Collector) Aggregate(name string, labels map[string]string) *Aggregation {
	return aggregate(c.Values(name, labels))
}

// Names returns the recorded series names in sorted order.
func (c *Collector) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear drops every series.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = make(map[string]map[string][]Point)
}

func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func aggregate(values []float64) *Aggregation {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return &Aggregation{
		Count: len(sorted),
		Sum:   sum,
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.5, stat.LinInterp, sorted, nil),
		P95:   stat.Quantile(0.95, stat.LinInterp, sorted, nil),
	}
}
