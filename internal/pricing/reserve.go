// Package pricing computes the reserve price for a listing from the
// valuation base price using a fixed percentage-tier table.
package pricing

import "math"

// tier maps an inclusive upper bound on the base price to the discount
// percentage applied at that bound.
type tier struct {
	upTo float64
	pct  float64
}

// The table is ordered and must not be reordered or rounded; downstream
// systems rely on these exact pairs.
var tiers = []tier{
	{15000, 0.65},
	{20000, 0.46},
	{30000, 0.37},
	{40000, 0.35},
	{50000, 0.33},
	{60000, 0.30},
	{80000, 0.27},
	{100000, 0.26},
	{130000, 0.24},
	{160000, 0.22},
	{200000, 0.20},
	{250000, 0.185},
	{300000, 0.17},
	{500000, 0.155},
}

// openTierPct applies above the last bound.
const openTierPct = 0.145

// Reserve returns the minimum acceptable sale price for the given base
// price. Absent, NaN or non-positive input yields 0 rather than an error:
// the caller treats 0 as "no reserve computed".
func Reserve(base float64) float64 {
	if math.IsNaN(base) || base <= 0 {
		return 0
	}
	pct := openTierPct
	for _, t := range tiers {
		if base <= t.upTo {
			pct = t.pct
			break
		}
	}
	return math.Round(base - base*pct)
}
