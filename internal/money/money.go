// Package money centralizes the decimal rounding and bps conventions
// used across the pipeline, so the half-up-to-cents and floor-to-6dp
// rules in spec.md §4.3.1 and §4.2 step 6 are applied consistently.
package money

import "github.com/shopspring/decimal"

// CentsPlaces is the number of fractional digits money values round to.
const CentsPlaces = 2

// SharePlaces is the number of fractional digits fractional-share
// quantities round (down) to.
const SharePlaces = 6

// RoundCentsHalfUp rounds d to 2 decimal places, half away from zero.
func RoundCentsHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentsPlaces)
}

// FloorShares rounds qty down to 6 decimal places (never rounds up),
// matching the broker's fractional-share precision.
func FloorShares(qty decimal.Decimal) decimal.Decimal {
	return qty.Truncate(SharePlaces)
}

// FloorWholeShares rounds qty down to the nearest whole share, used on
// the limit-order path for non-fractionable symbols.
func FloorWholeShares(qty decimal.Decimal) decimal.Decimal {
	return qty.Truncate(0)
}

// BpsOfMid returns the absolute deviation of price from mid, in basis
// points of mid. Returns zero if mid is not positive.
func BpsOfMid(price, mid decimal.Decimal) decimal.Decimal {
	if mid.Sign() <= 0 {
		return decimal.Zero
	}
	return price.Sub(mid).Abs().Div(mid).Mul(decimal.NewFromInt(10000))
}

// Max returns the greater of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the lesser of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Clamp restricts d to [lo, hi]. If lo > hi, the result is lo when
// d < lo and hi otherwise.
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
