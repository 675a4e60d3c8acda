// Package stats implements the significance tests the enrichment engine
// runs on contingency tables: Fisher's exact test and Benjamini-Hochberg
// false-discovery-rate adjustment.
package stats

import (
	"math"

	"github.com/openbioscience/finch/internal/domain"
)

// twoSidedSlack absorbs floating-point noise when comparing outcome
// probabilities against the observed table's probability.
const twoSidedSlack = 1e-7

// FisherExact computes the two-sided Fisher's exact test p-value for a 2x2
// contingency table. The two-sided p-value sums the probabilities of every
// table with the same margins that is at most as likely as the observed one.
func FisherExact(c domain.Contingency) float64 {
	a := c.SetPathway
	row1 := c.SetPathway + c.PathwayOnly
	row2 := c.SetOnly + c.Neither
	col1 := c.SetPathway + c.SetOnly
	n := row1 + row2

	if n == 0 {
		return 1
	}

	lo := 0
	if d := col1 - row2; d > lo {
		lo = d
	}
	hi := row1
	if col1 < hi {
		hi = col1
	}

	denom := logChoose(n, col1)
	observed := math.Exp(logChoose(row1, a) + logChoose(row2, col1-a) - denom)
	cutoff := observed * (1 + twoSidedSlack)

	p := 0.0
	for k := lo; k <= hi; k++ {
		outcome := math.Exp(logChoose(row1, k) + logChoose(row2, col1-k) - denom)
		if outcome <= cutoff {
			p += outcome
		}
	}
	if p > 1 {
		p = 1
	}
	return p
}

// logChoose returns ln C(n, k) via the log-gamma function, which stays
// stable for the catalog-scale counts real backgrounds produce.
func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	return logFactorial(n) - logFactorial(k) - logFactorial(n-k)
}

func logFactorial(n int) float64 {
	v, _ := math.Lgamma(float64(n + 1))
	return v
}
