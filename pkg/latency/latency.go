// Package latency computes summary statistics over cached span latencies.
package latency

import (
	"math"
	"slices"

	"github.com/grafana/spyglass/pkg/normalize"
	"github.com/grafana/spyglass/pkg/recent"
)

// DefaultOverrideAttributes are span attributes that carry a measured latency
// in milliseconds. When present they are used instead of the span duration.
var DefaultOverrideAttributes = []string{
	"latency_ms",
	"http.latency_ms",
	"rpc.latency_ms",
	"db.latency_ms",
}

// Snapshot holds latency statistics in milliseconds. The zero value is the
// result for an empty sample set.
type Snapshot struct {
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// Compute returns statistics over the strictly positive samples. Percentiles
// use the nearest-rank estimator at index floor(n*p), clamped to the last
// sample. samples is not modified.
func Compute(samples []float64) Snapshot {
	sorted := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s > 0 && !math.IsInf(s, 0) {
			sorted = append(sorted, s)
		}
	}
	if len(sorted) == 0 {
		return Snapshot{}
	}

	slices.Sort(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	n := len(sorted)
	avg := sum / float64(n)
	// guard against rounding pushing the mean outside [min, max]
	avg = math.Max(sorted[0], math.Min(avg, sorted[n-1]))

	return Snapshot{
		Avg:   avg,
		Max:   sorted[n-1],
		Min:   sorted[0],
		P95:   nearestRank(sorted, 0.95),
		P99:   nearestRank(sorted, 0.99),
		Count: n,
	}
}

func nearestRank(sorted []float64, p float64) float64 {
	idx := int(math.Floor(float64(len(sorted)) * p))
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Policy decides which latency value a span contributes.
type Policy struct {
	// OverrideAttributes are checked in order; the first one holding a positive
	// number replaces the span duration. Empty means durations only.
	OverrideAttributes []string
}

// NewPolicy returns a policy using the given override attributes.
func NewPolicy(overrides []string) Policy {
	return Policy{OverrideAttributes: slices.Clone(overrides)}
}

// Sample returns the latency of a span in milliseconds.
func (p Policy) Sample(span normalize.Span) float64 {
	for _, key := range p.OverrideAttributes {
		v, ok := span.Attributes[key]
		if !ok {
			continue
		}
		if f, ok := normalize.Float(v); ok && f > 0 {
			return f
		}
	}
	return float64(span.Duration)
}

// FromEntries computes statistics over every span of every cached entry.
func (p Policy) FromEntries(entries []recent.Entry[[]normalize.Span]) Snapshot {
	var n int
	for _, e := range entries {
		n += len(e.Data)
	}

	samples := make([]float64, 0, n)
	for _, e := range entries {
		for _, s := range e.Data {
			samples = append(samples, p.Sample(s))
		}
	}
	return Compute(samples)
}
