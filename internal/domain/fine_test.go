package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFineAmountDueEscalation(t *testing.T) {
	fine := &Fine{
		BaseAmount:       decimal.NewFromInt(200),
		EscalationFactor: decimal.RequireFromString("1.5"),
	}

	tests := []struct {
		level int
		want  string
	}{
		{0, "200"},
		{1, "300"},
		{2, "450"},
		{3, "675"},
	}
	for _, tt := range tests {
		fine.CurrentLevel = tt.level
		want := decimal.RequireFromString(tt.want)
		if got := fine.AmountDue(); !got.Equal(want) {
			t.Fatalf("level %d: AmountDue = %s, want %s", tt.level, got, want)
		}
	}
}

func TestFineAmountDueReduced(t *testing.T) {
	reduced := decimal.NewFromInt(120)
	fine := &Fine{
		BaseAmount:       decimal.NewFromInt(200),
		EscalationFactor: decimal.NewFromInt(2),
		CurrentLevel:     2,
		ReducedAmount:    &reduced,
	}
	if got := fine.AmountDue(); !got.Equal(reduced) {
		t.Fatalf("AmountDue = %s, want reduced 120", got)
	}
}

func TestFineMonthsOverdue(t *testing.T) {
	fine := &Fine{DueDate: mustDate("2025-02-28")}

	tests := []struct {
		asOf string
		want int
	}{
		{"2025-02-28", 0},
		{"2025-03-15", 0},
		{"2025-03-28", 1},
		{"2025-04-30", 2},
		{"2026-02-28", 12},
	}
	for _, tt := range tests {
		if got := fine.MonthsOverdue(mustDate(tt.asOf)); got != tt.want {
			t.Fatalf("MonthsOverdue(%s) = %d, want %d", tt.asOf, got, tt.want)
		}
	}
}

func TestFineAccruedLateFee(t *testing.T) {
	fine := &Fine{
		BaseAmount:       decimal.NewFromInt(500),
		EscalationFactor: decimal.NewFromInt(1),
		DueDate:          mustDate("2025-01-31"),
	}
	rate := decimal.RequireFromString("0.02")

	// Two whole months overdue: 500 * 0.02 * 2 = 20.
	got := fine.AccruedLateFee(rate, mustDate("2025-04-15"))
	if !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("AccruedLateFee = %s, want 20", got)
	}

	// Inside the first month nothing accrues.
	if got := fine.AccruedLateFee(rate, mustDate("2025-02-15")); !got.IsZero() {
		t.Fatalf("AccruedLateFee before one month = %s, want 0", got)
	}
}
