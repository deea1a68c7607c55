// Package stats is the pure-math module behind the table-file pipeline's
// statistics stage. Every function is deterministic over its inputs and
// carries no I/O, so the calculation stage stays testable without fixtures.
package stats

import (
	"math"
	"sort"
)

// Descriptive summarises one numeric column.
type Descriptive struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	Sum    float64 `json:"sum"`
}

// Describe computes descriptive statistics. An empty slice yields a zero
// result with Count 0.
func Describe(values []float64) Descriptive {
	n := len(values)
	if n == 0 {
		return Descriptive{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := 0.0
	if n > 1 {
		std = math.Sqrt(sq / float64(n-1))
	}

	return Descriptive{
		Count:  n,
		Mean:   mean,
		Median: quantile(sorted, 0.5),
		Std:    std,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Q1:     quantile(sorted, 0.25),
		Q3:     quantile(sorted, 0.75),
		Sum:    sum,
	}
}

// quantile interpolates the q-quantile of sorted values.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Distribution characterises the shape of one numeric column.
type Distribution struct {
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	Type     string  `json:"distribution_type"`
}

// Distribute computes skewness, excess kurtosis, and a coarse label.
func Distribute(values []float64) Distribution {
	n := len(values)
	if n < 3 {
		return Distribution{Type: "unknown"}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var m2, m3, m4 float64
	for _, v := range values {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= float64(n)
	m3 /= float64(n)
	m4 /= float64(n)

	if m2 == 0 {
		return Distribution{Type: "constant"}
	}
	skew := m3 / math.Pow(m2, 1.5)
	kurt := m4/(m2*m2) - 3

	return Distribution{
		Skewness: skew,
		Kurtosis: kurt,
		Type:     classifyDistribution(skew, kurt),
	}
}

func classifyDistribution(skew, kurt float64) string {
	switch {
	case math.Abs(skew) < 0.5 && math.Abs(kurt) < 1:
		return "approximately_normal"
	case skew >= 0.5:
		return "right_skewed"
	case skew <= -0.5:
		return "left_skewed"
	case kurt >= 1:
		return "heavy_tailed"
	default:
		return "light_tailed"
	}
}

// Pearson computes the correlation coefficient of two equally long series.
// It returns 0 when either series is constant or the lengths differ.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n == 0 || n != len(y) {
		return 0
	}
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// CorrelationPair is one column pair with its coefficient.
type CorrelationPair struct {
	ColumnA     string  `json:"column_a"`
	ColumnB     string  `json:"column_b"`
	Coefficient float64 `json:"coefficient"`
}

// Correlate computes every pairwise coefficient over the named columns.
// Column order follows the given names, keeping output deterministic.
func Correlate(names []string, columns map[string][]float64) []CorrelationPair {
	var pairs []CorrelationPair
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			pairs = append(pairs, CorrelationPair{
				ColumnA:     names[i],
				ColumnB:     names[j],
				Coefficient: Pearson(columns[names[i]], columns[names[j]]),
			})
		}
	}
	return pairs
}

// StrongPairs filters pairs by |r| > threshold, sorts by |r| descending, and
// keeps at most topN.
func StrongPairs(pairs []CorrelationPair, threshold float64, topN int) []CorrelationPair {
	var strong []CorrelationPair
	for _, p := range pairs {
		if math.Abs(p.Coefficient) > threshold {
			strong = append(strong, p)
		}
	}
	sort.SliceStable(strong, func(i, j int) bool {
		return math.Abs(strong[i].Coefficient) > math.Abs(strong[j].Coefficient)
	})
	if topN > 0 && len(strong) > topN {
		strong = strong[:topN]
	}
	return strong
}

// ValueCount is one categorical value with its occurrence count.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Frequency summarises one categorical column.
type Frequency struct {
	UniqueCount int          `json:"unique_count"`
	TotalCount  int          `json:"total_count"`
	Top         []ValueCount `json:"top_10"`
}

// Frequencies computes the simplified frequency summary: unique count, total
// count, and the ten most frequent values.
func Frequencies(values []string) Frequency {
	counts := map[string]int{}
	total := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[v]++
		total++
	}
	top := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		top = append(top, ValueCount{Value: v, Count: c})
	}
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Value < top[j].Value
	})
	if len(top) > 10 {
		top = top[:10]
	}
	return Frequency{UniqueCount: len(counts), TotalCount: total, Top: top}
}

// GroupSummary is one group's numeric summary.
type GroupSummary struct {
	Group string  `json:"group"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Sum   float64 `json:"sum"`
}

// Grouped aggregates a numeric column by a parallel categorical column.
// Rows where either side is missing are skipped. Output is sorted by group.
func Grouped(groups []string, values []float64) []GroupSummary {
	n := min(len(groups), len(values))
	agg := map[string]*GroupSummary{}
	var order []string
	for i := 0; i < n; i++ {
		if groups[i] == "" {
			continue
		}
		g, ok := agg[groups[i]]
		if !ok {
			g = &GroupSummary{Group: groups[i]}
			agg[groups[i]] = g
			order = append(order, groups[i])
		}
		g.Count++
		g.Sum += values[i]
	}
	sort.Strings(order)
	out := make([]GroupSummary, 0, len(order))
	for _, name := range order {
		g := agg[name]
		if g.Count > 0 {
			g.Mean = g.Sum / float64(g.Count)
		}
		out = append(out, *g)
	}
	return out
}

// Trend characterises a numeric series over an ordered axis by simple linear
// regression.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Direction string  `json:"direction"`
}

// FitTrend regresses values against their positions.
func FitTrend(values []float64) Trend {
	n := len(values)
	if n < 2 {
		return Trend{Direction: "flat"}
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	meanX := float64(n-1) / 2
	var sumY float64
	for _, v := range values {
		sumY += v
	}
	meanY := sumY / float64(n)

	var cov, varX float64
	for i := 0; i < n; i++ {
		cov += (x[i] - meanX) * (values[i] - meanY)
		varX += (x[i] - meanX) * (x[i] - meanX)
	}
	slope := cov / varX

	direction := "flat"
	scale := math.Abs(meanY)
	if scale == 0 {
		scale = 1
	}
	switch {
	case slope > 0.01*scale:
		direction = "increasing"
	case slope < -0.01*scale:
		direction = "decreasing"
	}
	return Trend{Slope: slope, Intercept: meanY - slope*meanX, Direction: direction}
}

// JointCount is one co-occurring pair of categorical values.
type JointCount struct {
	ValueA string `json:"value_a"`
	ValueB string `json:"value_b"`
	Count  int    `json:"count"`
}

// Joint cross-tabulates two categorical columns, returning the most frequent
// co-occurrences, at most topN.
func Joint(a, b []string, topN int) []JointCount {
	n := min(len(a), len(b))
	type key struct{ a, b string }
	counts := map[key]int{}
	for i := 0; i < n; i++ {
		if a[i] == "" || b[i] == "" {
			continue
		}
		counts[key{a[i], b[i]}]++
	}
	out := make([]JointCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, JointCount{ValueA: k.a, ValueB: k.b, Count: c})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].ValueA != out[j].ValueA {
			return out[i].ValueA < out[j].ValueA
		}
		return out[i].ValueB < out[j].ValueB
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
