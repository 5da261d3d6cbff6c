package util

import "github.com/shopspring/decimal"

// DefaultCurrencyScale is the number of decimal places money is kept at
const DefaultCurrencyScale int32 = 2

// RoundMoney rounds d half away from zero to the given number of decimal places
func RoundMoney(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.Round(scale)
}

// SplitEvenly divides total into n shares. Every share but the last is total/n
// truncated to scale; the last absorbs the remainder, so the shares always sum to total.
func SplitEvenly(total decimal.Decimal, n int, scale int32) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	shares := make([]decimal.Decimal, n)
	base := total.Div(decimal.NewFromInt(int64(n))).Truncate(scale)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		shares[i] = base
		allocated = allocated.Add(base)
	}
	shares[n-1] = total.Sub(allocated)
	return shares
}

// MinDecimal returns the smaller of a and b
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxZero clamps negative values to zero
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
