// Package analytics holds the shared statistics used by portfolio
// composition and walk-forward scoring, chiefly Pearson correlation over
// return series.
package analytics

import "math"

// Correlate returns the Pearson correlation of a and b, clamped to [-1, 1].
// Mismatched lengths, empty input and zero-variance series all yield 0, so a
// degenerate always-hold strategy can never inject NaN into downstream math.
func Correlate(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}

	meanA, meanB := 0.0, 0.0
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	num, varA, varB := 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		varA += da * da
		varB += db * db
	}

	den := math.Sqrt(varA * varB)
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0
	}
	r := num / den
	// Floating error can push a perfect correlation a hair past 1.
	return math.Max(-1, math.Min(1, r))
}

// Series is a labeled sequence of observations.
type Series struct {
	Name   string
	Values []float64
}

// Matrix is a symmetric correlation matrix with labeled axes. The diagonal
// is exactly 1 and off-diagonal entries lie in [-1, 1].
type Matrix struct {
	Labels []string
	Values [][]float64
}

// CorrelationMatrix computes all pairwise correlations of the given series.
// Degenerate pairs correlate at 0; the diagonal is pinned at 1 regardless.
func CorrelationMatrix(series []Series) Matrix {
	n := len(series)
	m := Matrix{
		Labels: make([]string, n),
		Values: make([][]float64, n),
	}
	for i := range series {
		m.Labels[i] = series[i].Name
		m.Values[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		m.Values[i][i] = 1
		for j := i + 1; j < n; j++ {
			c := Correlate(series[i].Values, series[j].Values)
			m.Values[i][j], m.Values[j][i] = c, c
		}
	}
	return m
}

// Dim returns the number of rows (and columns).
func (m Matrix) Dim() int {
	return len(m.Values)
}

// At returns the correlation between series i and j.
func (m Matrix) At(i, j int) float64 {
	return m.Values[i][j]
}

// MaxPairwise returns the largest off-diagonal correlation among the rows
// marked in include, or 0 when fewer than two rows are included. Signed
// values are compared as-is: strongly negative pairs diversify and never
// dominate the maximum.
func (m Matrix) MaxPairwise(include []bool) float64 {
	most := math.Inf(-1)
	found := false
	for i := 0; i < m.Dim(); i++ {
		if i >= len(include) || !include[i] {
			continue
		}
		for j := i + 1; j < m.Dim(); j++ {
			if j >= len(include) || !include[j] {
				continue
			}
			if m.Values[i][j] > most {
				most = m.Values[i][j]
				found = true
			}
		}
	}
	if !found {
		return 0
	}
	return most
}
