package billing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestProrateUpgradeAndDowngrade(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		currentPrice  int64
		newPrice      int64
		daysRemaining int
		want          int64
	}{
		{name: "upgrade mid-cycle", currentPrice: 1000, newPrice: 2000, daysRemaining: 15, want: 500},
		{name: "downgrade mid-cycle", currentPrice: 2000, newPrice: 1000, daysRemaining: 15, want: -500},
		{name: "same plan", currentPrice: 1000, newPrice: 1000, daysRemaining: 15, want: 0},
		{name: "full period left", currentPrice: 1000, newPrice: 2000, daysRemaining: 30, want: 1000},
		{name: "no days left", currentPrice: 1000, newPrice: 2000, daysRemaining: 0, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Prorate(
				DailyRate(decimal.NewFromInt(tt.currentPrice), 30),
				DailyRate(decimal.NewFromInt(tt.newPrice), 30),
				tt.daysRemaining,
			)
			if !got.Equal(decimal.NewFromInt(tt.want)) {
				t.Fatalf("Prorate = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestDailyRateZeroPeriod(t *testing.T) {
	t.Parallel()
	if got := DailyRate(decimal.NewFromInt(1000), 0); !got.IsZero() {
		t.Fatalf("DailyRate with zero period = %s, want 0", got)
	}
}

func TestProrateNegativeDays(t *testing.T) {
	t.Parallel()
	got := Prorate(decimal.NewFromInt(10), decimal.NewFromInt(20), -3)
	if !got.IsZero() {
		t.Fatalf("Prorate with negative days = %s, want 0", got)
	}
}
