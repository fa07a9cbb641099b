package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestResidentAvailableCredit(t *testing.T) {
	r := &ResidentAccount{
		Limits:  DefaultLimitsFor(ResidentTenant),
		Balance: decimal.NewFromInt(-1200),
	}
	if got := r.AvailableCredit(); !got.Equal(decimal.NewFromInt(3800)) {
		t.Fatalf("AvailableCredit = %s, want 3800", got)
	}

	r.Balance = decimal.NewFromInt(250)
	if got := r.AvailableCredit(); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("AvailableCredit with positive balance = %s, want full limit 5000", got)
	}
}

func TestResidentUtilizationPct(t *testing.T) {
	r := &ResidentAccount{
		Limits:  ResidentLimits{CreditLimit: decimal.NewFromInt(2000)},
		Balance: decimal.NewFromInt(-500),
	}
	if got := r.UtilizationPct(); !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("UtilizationPct = %s, want 25", got)
	}
}

func TestResidentLoyaltyPoints(t *testing.T) {
	tests := []struct {
		balance string
		want    int64
	}{
		{"-50", 0},
		{"0", 0},
		{"99.99", 0},
		{"100", 1},
		{"1250", 12},
	}
	for _, tt := range tests {
		r := &ResidentAccount{Balance: decimal.RequireFromString(tt.balance)}
		if got := r.LoyaltyPoints(); got != tt.want {
			t.Fatalf("LoyaltyPoints(balance=%s) = %d, want %d", tt.balance, got, tt.want)
		}
	}
}

func TestDefaultLimitsOrdering(t *testing.T) {
	owner := DefaultLimitsFor(ResidentOwner)
	employee := DefaultLimitsFor(ResidentEmployee)
	if !owner.DailySpendingLimit.GreaterThan(employee.DailySpendingLimit) {
		t.Fatal("owner daily limit should exceed employee daily limit")
	}
	if !owner.CreditLimit.GreaterThan(employee.CreditLimit) {
		t.Fatal("owner credit limit should exceed employee credit limit")
	}
}

func TestFeeStructureOverlaps(t *testing.T) {
	jan := mustDate("2025-01-01")
	jun := mustDate("2025-06-01")
	dec := mustDate("2025-12-31")

	closed := func(from, to time.Time) *FeeStructure {
		return &FeeStructure{EffectiveFrom: from, EffectiveTo: &to}
	}
	open := func(from time.Time) *FeeStructure {
		return &FeeStructure{EffectiveFrom: from}
	}

	if !closed(jan, dec).Overlaps(closed(jun, dec)) {
		t.Fatal("nested windows should overlap")
	}
	if closed(jan, jun).Overlaps(open(jun)) {
		t.Fatal("half-open windows meeting at the boundary should not overlap")
	}
	if !open(jan).Overlaps(open(dec)) {
		t.Fatal("two open-ended windows always overlap")
	}
}

func TestPropertyPaymentSuccessRate(t *testing.T) {
	p := &PropertyAccount{
		YTDPaid:     decimal.NewFromInt(1600),
		YTDInvoiced: decimal.NewFromInt(2000),
	}
	if got := p.PaymentSuccessRate(); !got.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("PaymentSuccessRate = %s, want 80", got)
	}

	p.YTDInvoiced = decimal.Zero
	if got := p.PaymentSuccessRate(); !got.IsZero() {
		t.Fatalf("PaymentSuccessRate with zero invoiced = %s, want 0", got)
	}
}

func TestBudgetComplianceScore(t *testing.T) {
	b := &BudgetPlan{Lines: []BudgetLine{
		{Budgeted: decimal.NewFromInt(1000), Actual: decimal.NewFromInt(1000), Kind: LineIncome},
		{Budgeted: decimal.NewFromInt(500), Actual: decimal.NewFromInt(550), Kind: LineExpense},
	}}
	// Line drifts: 0% and 10% -> average 5% -> score 95.
	if got := b.ComplianceScore(); !got.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("ComplianceScore = %s, want 95", got)
	}
}
