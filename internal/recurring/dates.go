package recurring

import (
	"time"

	"finance-billing-go/internal/models"
)

// Advance moves a due date forward by one frequency unit. Month and year
// steps keep the day-of-month, clamped to the last day when the target month
// is shorter (Jan 31 -> Feb 28/29, never Mar 3).
func Advance(d time.Time, f models.Frequency) time.Time {
	switch f {
	case models.FrequencyDaily:
		return d.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		return d.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		return addMonths(d, 1)
	case models.FrequencyYearly:
		return addMonths(d, 12)
	}
	return d
}

func addMonths(d time.Time, months int) time.Time {
	y, m, day := d.Date()
	m += time.Month(months)
	for m > 12 {
		m -= 12
		y++
	}
	if last := daysIn(y, m, d.Location()); day > last {
		day = last
	}
	h, min, sec := d.Clock()
	return time.Date(y, m, day, h, min, sec, d.Nanosecond(), d.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
