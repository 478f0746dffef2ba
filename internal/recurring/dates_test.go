package recurring

import (
	"testing"
	"time"

	"finance-billing-go/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAdvance(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		from time.Time
		freq models.Frequency
		want time.Time
	}{
		{name: "daily", from: date(2024, time.January, 1), freq: models.FrequencyDaily, want: date(2024, time.January, 2)},
		{name: "weekly", from: date(2024, time.January, 1), freq: models.FrequencyWeekly, want: date(2024, time.January, 8)},
		{name: "monthly plain", from: date(2024, time.January, 1), freq: models.FrequencyMonthly, want: date(2024, time.February, 1)},
		{name: "monthly jan 31 leap year", from: date(2024, time.January, 31), freq: models.FrequencyMonthly, want: date(2024, time.February, 29)},
		{name: "monthly jan 31 non-leap", from: date(2023, time.January, 31), freq: models.FrequencyMonthly, want: date(2023, time.February, 28)},
		{name: "monthly dec wraps year", from: date(2023, time.December, 15), freq: models.FrequencyMonthly, want: date(2024, time.January, 15)},
		{name: "monthly may 31 to jun 30", from: date(2024, time.May, 31), freq: models.FrequencyMonthly, want: date(2024, time.June, 30)},
		{name: "yearly", from: date(2024, time.March, 10), freq: models.FrequencyYearly, want: date(2025, time.March, 10)},
		{name: "yearly feb 29 clamps", from: date(2024, time.February, 29), freq: models.FrequencyYearly, want: date(2025, time.February, 28)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Advance(tt.from, tt.freq)
			if !got.Equal(tt.want) {
				t.Fatalf("Advance(%s, %s) = %s, want %s",
					tt.from.Format("2006-01-02"), tt.freq,
					got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestAdvanceUnknownFrequencyIsNoop(t *testing.T) {
	t.Parallel()
	from := date(2024, time.January, 1)
	if got := Advance(from, models.Frequency("fortnightly")); !got.Equal(from) {
		t.Fatalf("unknown frequency moved the date to %s", got)
	}
}
