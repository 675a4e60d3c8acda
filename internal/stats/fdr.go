package stats

import (
	"sort"
)

// BenjaminiHochberg returns the FDR-adjusted p-values for the input slice,
// in the input's order. The adjustment is the standard step-up procedure:
// rank the p-values ascending, scale each by m/rank, then enforce
// monotonicity from the largest rank down and clamp at 1.
func BenjaminiHochberg(pvalues []float64) []float64 {
	m := len(pvalues)
	if m == 0 {
		return nil
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return pvalues[order[i]] < pvalues[order[j]]
	})

	adjusted := make([]float64, m)
	running := 1.0
	for rank := m - 1; rank >= 0; rank-- {
		idx := order[rank]
		v := pvalues[idx] * float64(m) / float64(rank+1)
		if v < running {
			running = v
		}
		adjusted[idx] = running
	}
	return adjusted
}
