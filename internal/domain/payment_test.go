package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPaymentNetAmount(t *testing.T) {
	p := &Payment{
		Amount:         decimal.NewFromInt(1000),
		ServiceCharge:  decimal.NewFromInt(10),
		Discount:       decimal.NewFromInt(5),
		CommissionRate: decimal.RequireFromString("2.5"),
	}
	// 1000 - 10 - 5 - 25 = 960
	if got := p.NetAmount(); !got.Equal(decimal.NewFromInt(960)) {
		t.Fatalf("NetAmount = %s, want 960", got)
	}
}

func TestParseAllocationOrder(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  []AllocationStep
		valid bool
	}{
		{
			name:  "empty uses default",
			in:    "",
			want:  []AllocationStep{StepOldestInvoices, StepFines, StepCurrentCycle, StepCreditOverflow},
			valid: true,
		},
		{
			name:  "override reorders fines first",
			in:    "fines,oldest_invoices,current_cycle,credit_overflow",
			want:  []AllocationStep{StepFines, StepOldestInvoices, StepCurrentCycle, StepCreditOverflow},
			valid: true,
		},
		{
			name:  "missing overflow is appended",
			in:    "oldest_invoices,fines",
			want:  []AllocationStep{StepOldestInvoices, StepFines, StepCreditOverflow},
			valid: true,
		},
		{
			name:  "unknown token rejected",
			in:    "oldest_invoices,escrow",
			valid: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAllocationOrder(tt.in)
			if ok != tt.valid {
				t.Fatalf("ParseAllocationOrder(%q) ok = %t, want %t", tt.in, ok, tt.valid)
			}
			if !tt.valid {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("order length = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("order[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestVarianceToleranceWithin(t *testing.T) {
	tol := VarianceTolerance{
		Absolute: decimal.NewFromInt(5),
		Percent:  decimal.NewFromInt(1),
	}
	recorded := decimal.NewFromInt(1000)

	tests := []struct {
		name     string
		variance string
		want     bool
	}{
		{"small variance auto-adjusts", "-3", true},
		{"exactly at absolute bound", "5", true},
		{"within percent bound", "-9", true},
		{"beyond both bounds", "-50", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := decimal.RequireFromString(tt.variance)
			if got := tol.Within(recorded, v); got != tt.want {
				t.Fatalf("Within(%s) = %t, want %t", tt.variance, got, tt.want)
			}
		})
	}
}

func TestPaymentSplitSum(t *testing.T) {
	s := PaymentSplit{
		Maintenance: decimal.NewFromInt(700),
		Utilities:   decimal.NewFromInt(200),
		Fines:       decimal.NewFromInt(50),
		Other:       decimal.NewFromInt(50),
	}
	if !s.Sum().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("split sum = %s, want 1000", s.Sum())
	}
}
