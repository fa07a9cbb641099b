package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundMoneyHalfToEven(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.005", "10.00"},
		{"10.015", "10.02"},
		{"10.025", "10.02"},
		{"10.035", "10.04"},
		{"-10.005", "-10.00"},
		{"2.675", "2.68"},
		{"100", "100"},
	}
	for _, tt := range tests {
		in, _ := decimal.NewFromString(tt.in)
		want, _ := decimal.NewFromString(tt.want)
		if got := RoundMoney(in); !got.Equal(want) {
			t.Fatalf("RoundMoney(%s) = %s, want %s", tt.in, got, want)
		}
	}
}

func TestMoneyFromString(t *testing.T) {
	if _, ok := MoneyFromString("12.34"); !ok {
		t.Fatal("expected valid decimal to parse")
	}
	if _, ok := MoneyFromString("12,34"); ok {
		t.Fatal("expected malformed decimal to be rejected")
	}
}

func TestPercent(t *testing.T) {
	pct := decimal.NewFromInt(5)
	amount := decimal.NewFromInt(1000)
	got := amount.Mul(Percent(pct))
	if !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("5%% of 1000 = %s, want 50", got)
	}
}
