// Package pricing computes the payable amount for a checkout. The order of
// operations is fixed so a stored quote can be re-derived for audit: discount
// first, then the urgency surcharge, then the convenience fee.
package pricing

import "math"

// Quote is the breakdown of a computed payable amount. All values are in the
// smallest currency unit.
type Quote struct {
	Base             int64 `json:"base"`
	Discount         int64 `json:"discount"`
	UrgencySurcharge int64 `json:"urgencySurcharge"`
	ConvenienceFee   int64 `json:"convenienceFee"`
	Total            int64 `json:"total"`
}

// Calculator applies the configured fee and surcharge rates.
type Calculator struct {
	feePct      float64
	urgencyPct  float64
	urgencyFlat int64
}

// NewCalculator creates a calculator. When urgencyPct is non-zero the urgency
// surcharge is a percentage of the discounted subtotal; otherwise the flat
// amount applies.
func NewCalculator(feePct, urgencyPct float64, urgencyFlat int64) *Calculator {
	return &Calculator{
		feePct:      feePct,
		urgencyPct:  urgencyPct,
		urgencyFlat: urgencyFlat,
	}
}

// Compute derives the payable total. Negative intermediate values are clamped
// to zero before the next step.
func (c *Calculator) Compute(base, discount int64, urgent bool) Quote {
	if discount > base {
		discount = base
	}
	if discount < 0 {
		discount = 0
	}
	subtotal := clamp(base - discount)

	var surcharge int64
	if urgent {
		if c.urgencyPct > 0 {
			surcharge = RoundHalfUp(float64(subtotal) * c.urgencyPct / 100)
		} else {
			surcharge = c.urgencyFlat
		}
	}
	subtotal = clamp(subtotal + surcharge)

	fee := RoundHalfUp(float64(subtotal) * c.feePct / 100)
	return Quote{
		Base:             base,
		Discount:         discount,
		UrgencySurcharge: surcharge,
		ConvenienceFee:   fee,
		Total:            clamp(subtotal + fee),
	}
}

// RoundHalfUp rounds to the nearest smallest currency unit, halves up.
func RoundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
