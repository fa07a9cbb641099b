package main

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: domain.NewError(domain.ErrValidation, "", "bad"), want: 1},
		{name: "uniqueness", err: domain.NewError(domain.ErrUniqueness, "", "dup"), want: 1},
		{name: "state conflict", err: domain.NewError(domain.ErrStateMachine, "", "wrong state"), want: 3},
		{name: "cycle immutable", err: domain.NewError(domain.ErrCycleImmutable, "", "closed"), want: 3},
		{name: "reconciliation", err: domain.NewError(domain.ErrReconciliation, "", "variance"), want: 3},
		{name: "missing link", err: domain.NewError(domain.ErrLinkIntegrity, "", "no property"), want: 4},
		{name: "dependency", err: domain.NewError(domain.ErrDependency, "", "registry down"), want: 4},
		{name: "explicit partial batch", err: &cliError{code: 2, msg: "partial"}, want: 2},
		{name: "plain error", err: errors.New("boom"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Fatalf("expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParsePaymentRow(t *testing.T) {
	row, err := parsePaymentRow([]string{"A-101", "1500.00", "bank_transfer", "2026-03-05", "SPEI-0091", "1497.50"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.unitRef != "A-101" {
		t.Fatalf("expected unit ref A-101, got %q", row.unitRef)
	}
	if !row.amount.Equal(mustDecimal(t, "1500.00")) {
		t.Fatalf("expected amount 1500.00, got %s", row.amount)
	}
	if row.method != domain.MethodBankTransfer {
		t.Fatalf("expected bank_transfer, got %q", row.method)
	}
	if row.bankAmount == nil || !row.bankAmount.Equal(mustDecimal(t, "1497.50")) {
		t.Fatalf("expected bank amount 1497.50, got %v", row.bankAmount)
	}

	if _, err := parsePaymentRow([]string{"A-101", "abc", "cash", "2026-03-05", "R1"}); err == nil {
		t.Fatal("expected error for invalid amount")
	}
	if _, err := parsePaymentRow([]string{"A-101", "100", "barter", "2026-03-05", "R1"}); err == nil {
		t.Fatal("expected error for unknown method")
	}
	if _, err := parsePaymentRow([]string{"A-101", "100", "cash"}); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestParseAsOf(t *testing.T) {
	got, err := parseAsOf("2026-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	if _, err := parseAsOf("15/03/2026"); err == nil {
		t.Fatal("expected error for unsupported format")
	}

	before := time.Now().UTC()
	now, err := parseAsOf("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if now.Before(before) {
		t.Fatalf("expected default to be current time, got %s", now)
	}
}
