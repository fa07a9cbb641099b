package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
)

func TestCreateBudgetPeriodIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lines := []BudgetLineInput{
		{Category: CategoryMaintenanceIncome, Kind: domain.LineIncome, Budgeted: decimal.NewFromInt(24000)},
	}

	tests := []struct {
		name       string
		periodType domain.BudgetPeriodType
		index      int
		ok         bool
	}{
		{"annual index zero", domain.PeriodAnnual, 0, true},
		{"annual nonzero index", domain.PeriodAnnual, 1, false},
		{"semiannual second half", domain.PeriodSemiannual, 2, true},
		{"semiannual third half", domain.PeriodSemiannual, 3, false},
		{"quarterly q4", domain.PeriodQuarterly, 4, true},
		{"quarterly q5", domain.PeriodQuarterly, 5, false},
		{"monthly december", domain.PeriodMonthly, 12, true},
		{"monthly zero", domain.PeriodMonthly, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.budgets.Create(ctx, CreateBudgetInput{
				Company:     "acme-" + tt.name, // distinct identity per case
				PeriodType:  tt.periodType,
				Year:        2026,
				PeriodIndex: tt.index,
				Lines:       lines,
			})
			if tt.ok && err != nil {
				t.Fatalf("Create: %v", err)
			}
			if !tt.ok {
				wantKind(t, err, domain.ErrValidation)
			}
		})
	}
}

func TestBudgetLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.budgets.Create(ctx, CreateBudgetInput{
		Company:     "acme",
		PeriodType:  domain.PeriodQuarterly,
		Year:        2026,
		PeriodIndex: 1,
		Lines: []BudgetLineInput{
			{Category: CategoryMaintenanceIncome, Kind: domain.LineIncome, Budgeted: decimal.NewFromInt(6000)},
			{Category: "gardening", Kind: domain.LineExpense, Budgeted: decimal.NewFromInt(1200)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// One plan per period identity.
	_, err = env.budgets.Create(ctx, CreateBudgetInput{
		Company:     "acme",
		PeriodType:  domain.PeriodQuarterly,
		Year:        2026,
		PeriodIndex: 1,
		Lines: []BudgetLineInput{
			{Category: CategoryMaintenanceIncome, Kind: domain.LineIncome, Budgeted: decimal.NewFromInt(1)},
		},
	})
	wantKind(t, err, domain.ErrUniqueness)

	// Draft cannot activate directly.
	_, err = env.budgets.Activate(ctx, b.ID, "admin")
	wantKind(t, err, domain.ErrStateMachine)

	if _, err := env.budgets.SubmitForReview(ctx, b.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	b, err = env.budgets.Approve(ctx, b.ID, "committee")
	if err != nil {
		t.Fatal(err)
	}
	if b.ApprovedBy == nil || *b.ApprovedBy != "committee" {
		t.Fatalf("approved by = %v, want committee", b.ApprovedBy)
	}
	if b, err = env.budgets.Activate(ctx, b.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	if b.Status != domain.BudgetActive {
		t.Fatalf("status = %s, want active", b.Status)
	}

	if _, err := env.budgets.RecordExpenseActual(ctx, b.ID, "gardening", decimal.NewFromInt(450)); err != nil {
		t.Fatal(err)
	}
	_, err = env.budgets.RecordExpenseActual(ctx, b.ID, "security", decimal.NewFromInt(100))
	wantKind(t, err, domain.ErrValidation)

	b, err = env.budgets.Close(ctx, b.ID, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != domain.BudgetClosed {
		t.Fatalf("status = %s, want closed", b.Status)
	}
}

func TestBudgetActualsFromCycles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	accA := env.mustAccount(t, "acme", "A-101")
	env.mustAccount(t, "acme", "A-102")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan); err != nil {
		t.Fatal(err)
	}
	env.mustProcessedPayment(t, "acme", accA.ID, decimal.NewFromInt(1000), jan.AddDate(0, 0, 10))

	b, err := env.budgets.Create(ctx, CreateBudgetInput{
		Company:     "acme",
		PeriodType:  domain.PeriodQuarterly,
		Year:        2026,
		PeriodIndex: 1,
		Lines: []BudgetLineInput{
			{Category: CategoryMaintenanceIncome, Kind: domain.LineIncome, Budgeted: decimal.NewFromInt(6000)},
			{Category: CategoryLateFeeIncome, Kind: domain.LineIncome, Budgeted: decimal.NewFromInt(200)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	b, err = env.budgets.RefreshActuals(ctx, b.ID)
	if err != nil {
		t.Fatalf("RefreshActuals: %v", err)
	}
	var maintenance, lateFees decimal.Decimal
	for _, line := range b.Lines {
		switch line.Category {
		case CategoryMaintenanceIncome:
			maintenance = line.Actual
		case CategoryLateFeeIncome:
			lateFees = line.Actual
		}
	}
	if !maintenance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("maintenance actual = %s, want 1000", maintenance)
	}
	if !lateFees.IsZero() {
		t.Fatalf("late fee actual = %s, want 0", lateFees)
	}
}
