package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
)

func newTestJobs(env *testEnv) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobs(env.cycles, env.fines, env.credits, env.payments, env.repo, logger, 0)
}

func TestRunLateFeeSweepCoversEveryCompany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jobs := newTestJobs(env)

	// Two companies, each with an open cycle whose due date has long passed.
	start := time.Now().UTC().AddDate(0, 0, -40)
	end := time.Now().UTC().AddDate(0, 0, -10)
	for _, company := range []string{"acme", "globex"} {
		fs := env.mustActiveStructure(t, company, "STD-2026", decimal.NewFromInt(1000), start)
		env.mustAccount(t, company, "U-"+company)
		c, err := env.cycles.Open(ctx, OpenCycleInput{
			Company:        company,
			CycleCode:      "sweep-" + company,
			StartDate:      start,
			EndDate:        end,
			DueDate:        end,
			FeeStructureID: fs.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := env.cycles.GenerateInvoices(ctx, c.ID, start); err != nil {
			t.Fatal(err)
		}
	}

	jobs.RunLateFeeSweep()

	for _, company := range []string{"acme", "globex"} {
		acc, err := env.accounts.GetByRegistryRef(ctx, company, "U-"+company)
		if err != nil {
			t.Fatal(err)
		}
		fines, err := env.fines.Outstanding(ctx, acc.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(fines) != 1 {
			t.Fatalf("%s fines = %d, want 1", company, len(fines))
		}
		if fines[0].Category != "late_payment" {
			t.Fatalf("%s fine category = %q, want late_payment", company, fines[0].Category)
		}
	}
}

func TestRunFineEscalation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jobs := newTestJobs(env)

	acc := env.mustAccount(t, "acme", "A-101")
	fine, err := env.fines.Issue(ctx, IssueFineInput{
		Company:           "acme",
		PropertyAccountID: acc.ID,
		Category:          "noise",
		Severity:          domain.SeverityMedium,
		BaseAmount:        decimal.NewFromInt(200),
		EscalationFactor:  decimal.RequireFromString("1.5"),
		DueDate:           time.Now().UTC().AddDate(0, 0, -31),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.fines.Notify(ctx, fine.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	jobs.RunFineEscalation()

	got, err := env.fines.Get(ctx, fine.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.FineOverdue {
		t.Fatalf("status = %s, want overdue", got.Status)
	}
	if got.CurrentLevel != 1 {
		t.Fatalf("level = %d, want 1", got.CurrentLevel)
	}
}

func TestRunCreditExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jobs := newTestJobs(env)

	acc := env.mustAccount(t, "acme", "A-101")
	expired := time.Now().UTC().AddDate(0, 0, -1)
	cb, err := env.credits.Issue(ctx, IssueCreditInput{
		PropertyAccountID: acc.ID,
		Amount:            decimal.NewFromInt(300),
		Source:            domain.CreditSourcePrepayment,
		ExpiryDate:        &expired,
	})
	if err != nil {
		t.Fatal(err)
	}

	jobs.RunCreditExpiry()

	got, err := env.credits.Get(ctx, cb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.CreditExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
}

func TestRunReconcilingSweepFailsStalePayments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jobs := newTestJobs(env)

	acc := env.mustAccount(t, "acme", "A-101")
	bank := money(t, "700")
	p, err := env.payments.Record(ctx, RecordPaymentInput{
		Company:            "acme",
		PropertyAccountID:  acc.ID,
		Amount:             decimal.NewFromInt(1000),
		Method:             domain.MethodBankTransfer,
		BankReportedAmount: &bank,
		PostedDate:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.payments.Process(ctx, p.ID, time.Now().UTC()); !domain.IsKind(err, domain.ErrReconciliation) {
		t.Fatalf("expected reconciliation parking, got %v", err)
	}

	// Zero SLA makes every parked payment stale.
	jobs.RunReconcilingSweep()

	got, err := env.payments.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.PaymentFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}
