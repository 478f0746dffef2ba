package billing

import "github.com/shopspring/decimal"

// DailyRate divides a period price by its nominal length. Monthly plans are
// always 30 days and yearly plans 365, regardless of the calendar; the
// approximation is intentional and documented, not a bug.
func DailyRate(periodPrice decimal.Decimal, periodDays int) decimal.Decimal {
	if periodDays <= 0 {
		return decimal.Zero
	}
	return periodPrice.Div(decimal.NewFromInt(int64(periodDays)))
}

// Prorate computes the mid-cycle plan-change delta for the remaining days of
// the current period. Positive means an upgrade charge is owed. A non-positive
// result means the swap is free: credits are never issued, the negative value
// is only reported to the caller.
func Prorate(currentDaily, newDaily decimal.Decimal, daysRemaining int) decimal.Decimal {
	if daysRemaining <= 0 {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(daysRemaining))
	// Subtract rates before multiplying and round to cents so equal-period
	// plans cancel cleanly despite the repeating decimals of /30.
	return newDaily.Sub(currentDaily).Mul(days).Round(2)
}
