package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
	"github.com/habitora/finance-service/pkg/rabbitmq"
)

func TestBillingCycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	accA := env.mustAccount(t, "acme", "A-101")
	accB := env.mustAccount(t, "acme", "A-102")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)

	result, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan)
	if err != nil {
		t.Fatalf("GenerateInvoices: %v", err)
	}
	if result.Generated != 2 || len(result.Failures) != 0 {
		t.Fatalf("generated = %d, failures = %d, want 2 and 0", result.Generated, len(result.Failures))
	}

	cycle, err = env.cycles.Get(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cycle.Status != domain.CycleActive {
		t.Fatalf("cycle status = %s, want active after generation", cycle.Status)
	}
	if cycle.Aggregates.InvoicesGenerated != 2 {
		t.Fatalf("invoices generated = %d, want 2", cycle.Aggregates.InvoicesGenerated)
	}
	if !cycle.Aggregates.TotalBilled.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("total billed = %s, want 2000", cycle.Aggregates.TotalBilled)
	}

	accA, err = env.accounts.Get(ctx, accA.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !accA.RunningBalance.Equal(decimal.NewFromInt(-1000)) {
		t.Fatalf("running balance after invoicing = %s, want -1000", accA.RunningBalance)
	}
	if !accA.YTDInvoiced.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("ytd invoiced = %s, want 1000", accA.YTDInvoiced)
	}

	// Rerunning the generation must skip every property.
	result, err = env.cycles.GenerateInvoices(ctx, cycle.ID, jan)
	if err != nil {
		t.Fatalf("rerun GenerateInvoices: %v", err)
	}
	if result.Generated != 0 || result.Skipped != 2 {
		t.Fatalf("rerun generated = %d, skipped = %d, want 0 and 2", result.Generated, result.Skipped)
	}

	// A settles in full, B pays short.
	env.mustProcessedPayment(t, "acme", accA.ID, decimal.NewFromInt(1000), jan.AddDate(0, 0, 20))
	env.mustProcessedPayment(t, "acme", accB.ID, decimal.NewFromInt(600), jan.AddDate(0, 0, 22))

	invA, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, accA.ID)
	if err != nil {
		t.Fatal(err)
	}
	if invA.Status != domain.InvoicePaid {
		t.Fatalf("invoice A status = %s, want paid", invA.Status)
	}
	invB, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, accB.ID)
	if err != nil {
		t.Fatal(err)
	}
	if invB.Status != domain.InvoicePartiallyPaid {
		t.Fatalf("invoice B status = %s, want partially_paid", invB.Status)
	}
	if !invB.Outstanding().Equal(decimal.NewFromInt(400)) {
		t.Fatalf("invoice B outstanding = %s, want 400", invB.Outstanding())
	}

	accA, err = env.accounts.Get(ctx, accA.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !accA.RunningBalance.IsZero() {
		t.Fatalf("running balance after settlement = %s, want 0", accA.RunningBalance)
	}
	if !accA.YTDPaid.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("ytd paid = %s, want 1000", accA.YTDPaid)
	}

	cycle, err = env.cycles.RecomputeMetrics(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cycle.Aggregates.TotalCollected.Equal(decimal.NewFromInt(1600)) {
		t.Fatalf("total collected = %s, want 1600", cycle.Aggregates.TotalCollected)
	}
	if !cycle.Aggregates.PendingAmount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("pending = %s, want 400", cycle.Aggregates.PendingAmount)
	}
	if !cycle.Aggregates.CollectionRate.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("collection rate = %s, want 80", cycle.Aggregates.CollectionRate)
	}

	// The end date guards closing.
	_, err = env.cycles.Close(ctx, cycle.ID, jan.AddDate(0, 0, 15), "admin")
	wantKind(t, err, domain.ErrValidation)

	cycle, err = env.cycles.Close(ctx, cycle.ID, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), "admin")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if cycle.Status != domain.CycleClosed || cycle.ClosedAt == nil {
		t.Fatalf("cycle not closed: status=%s closedAt=%v", cycle.Status, cycle.ClosedAt)
	}
	if cycle.Aggregates.FinalCollectionRate == nil || !cycle.Aggregates.FinalCollectionRate.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("final collection rate = %v, want 80", cycle.Aggregates.FinalCollectionRate)
	}
	if cycle.NextCycleDate == nil || !cycle.NextCycleDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("next cycle date = %v, want 2026-03-01", cycle.NextCycleDate)
	}
	if events := env.publisher.byRoutingKey(rabbitmq.RoutingCycleClosed); len(events) != 1 {
		t.Fatalf("cycle closed events = %d, want 1", len(events))
	}

	// Closed cycles are frozen.
	_, err = env.cycles.ProcessLateFees(ctx, cycle.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "admin")
	wantKind(t, err, domain.ErrCycleImmutable)
	_, err = env.cycles.GenerateInvoices(ctx, cycle.ID, jan)
	wantKind(t, err, domain.ErrCycleImmutable)
}

func TestOverpaymentOverflowsToCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan); err != nil {
		t.Fatal(err)
	}

	env.mustProcessedPayment(t, "acme", acc.ID, decimal.NewFromInt(1500), jan.AddDate(0, 0, 10))

	inv, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != domain.InvoicePaid {
		t.Fatalf("invoice status = %s, want paid", inv.Status)
	}

	credits, err := env.repo.ListConsumableCredits(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(credits) != 1 {
		t.Fatalf("credits = %d, want 1", len(credits))
	}
	credit := credits[0]
	if credit.Source != domain.CreditSourceOverpayment {
		t.Fatalf("credit source = %s, want overpayment", credit.Source)
	}
	if !credit.RemainingAmount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("credit remaining = %s, want 500", credit.RemainingAmount)
	}
	if credit.ExpiryDate == nil {
		t.Fatal("overflow credit should carry an expiry date")
	}

	acc, err = env.accounts.Get(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	// -1000 invoiced, +1500 received.
	if !acc.RunningBalance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("running balance = %s, want 500", acc.RunningBalance)
	}
}

func TestCreditsApplyOldestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")

	first, err := env.credits.Issue(ctx, IssueCreditInput{
		PropertyAccountID: acc.ID, Amount: decimal.NewFromInt(600), Source: domain.CreditSourcePrepayment,
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.credits.Issue(ctx, IssueCreditInput{
		PropertyAccountID: acc.ID, Amount: decimal.NewFromInt(600), Source: domain.CreditSourcePrepayment,
	})
	if err != nil {
		t.Fatal(err)
	}

	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	result, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan)
	if err != nil {
		t.Fatal(err)
	}
	if !result.CreditApplied.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("credit applied = %s, want 1000", result.CreditApplied)
	}

	inv, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != domain.InvoicePaid {
		t.Fatalf("invoice status = %s, want paid", inv.Status)
	}
	if !inv.CreditApplied.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("invoice credit applied = %s, want 1000", inv.CreditApplied)
	}

	// The older entry drains completely before the newer one is touched.
	first, err = env.credits.Get(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != domain.CreditExhausted || !first.RemainingAmount.IsZero() {
		t.Fatalf("first credit = %s/%s, want exhausted/0", first.Status, first.RemainingAmount)
	}
	second, err = env.credits.Get(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != domain.CreditPartiallyApplied {
		t.Fatalf("second credit status = %s, want partially_applied", second.Status)
	}
	if !second.RemainingAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("second credit remaining = %s, want 200", second.RemainingAmount)
	}

	// Credits cancel the invoice one for one in the running balance.
	acc, err = env.accounts.Get(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.RunningBalance.IsZero() {
		t.Fatalf("running balance = %s, want 0", acc.RunningBalance)
	}
}

func TestCreditAutoApplyOffSkipsGeneration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")

	off := false
	cb, err := env.credits.Issue(ctx, IssueCreditInput{
		PropertyAccountID: acc.ID, Amount: decimal.NewFromInt(600),
		Source: domain.CreditSourcePrepayment, AutoApply: &off,
	})
	if err != nil {
		t.Fatal(err)
	}

	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	result, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan)
	if err != nil {
		t.Fatal(err)
	}
	if !result.CreditApplied.IsZero() {
		t.Fatalf("credit applied during generation = %s, want 0", result.CreditApplied)
	}

	// An explicit apply still consumes the entry.
	inv, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	applied, err := env.credits.ApplyToInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !applied.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("explicit apply = %s, want 600", applied)
	}
	cb, err = env.credits.Get(ctx, cb.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cb.Status != domain.CreditExhausted {
		t.Fatalf("credit status = %s, want exhausted", cb.Status)
	}
}

func TestPaymentVarianceWithinTolerance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan); err != nil {
		t.Fatal(err)
	}

	bank := money(t, "997")
	p, err := env.payments.Record(ctx, RecordPaymentInput{
		Company:            "acme",
		PropertyAccountID:  acc.ID,
		Amount:             decimal.NewFromInt(1000),
		Method:             domain.MethodBankTransfer,
		BankReportedAmount: &bank,
		PostedDate:         jan.AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err = env.payments.Process(ctx, p.ID, jan.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if p.Status != domain.PaymentProcessed {
		t.Fatalf("status = %s, want processed", p.Status)
	}
	if !p.VarianceAdjustment.Equal(money(t, "-3")) {
		t.Fatalf("variance adjustment = %s, want -3", p.VarianceAdjustment)
	}

	// The bank figure is what lands on the invoice.
	inv, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !inv.PaidAmount.Equal(money(t, "997")) {
		t.Fatalf("invoice paid = %s, want 997", inv.PaidAmount)
	}
	if !inv.Outstanding().Equal(money(t, "3")) {
		t.Fatalf("invoice outstanding = %s, want 3", inv.Outstanding())
	}
	if events := env.publisher.byRoutingKey(rabbitmq.RoutingPaymentVariance); len(events) != 1 {
		t.Fatalf("variance events = %d, want 1", len(events))
	}
}

func TestPaymentVarianceBeyondToleranceParks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan); err != nil {
		t.Fatal(err)
	}

	bank := money(t, "950")
	p, err := env.payments.Record(ctx, RecordPaymentInput{
		Company:            "acme",
		PropertyAccountID:  acc.ID,
		Amount:             decimal.NewFromInt(1000),
		Method:             domain.MethodBankTransfer,
		BankReportedAmount: &bank,
		PostedDate:         jan.AddDate(0, 0, 10),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.payments.Process(ctx, p.ID, jan.AddDate(0, 0, 10))
	wantKind(t, err, domain.ErrReconciliation)

	p, err = env.payments.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != domain.PaymentReconciling {
		t.Fatalf("status = %s, want reconciling", p.Status)
	}

	// Nothing was allocated while parked.
	inv, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !inv.PaidAmount.IsZero() {
		t.Fatalf("invoice paid = %s, want 0 while parked", inv.PaidAmount)
	}

	// The operator accepts the bank figure and the payment allocates.
	p, err = env.payments.ResolveReconciliation(ctx, p.ID, money(t, "950"), "operator", jan.AddDate(0, 0, 12))
	if err != nil {
		t.Fatalf("ResolveReconciliation: %v", err)
	}
	if p.Status != domain.PaymentProcessed {
		t.Fatalf("status = %s, want processed", p.Status)
	}
	if !p.Amount.Equal(money(t, "950")) {
		t.Fatalf("amount = %s, want 950", p.Amount)
	}
	if !p.VarianceAdjustment.Equal(money(t, "-50")) {
		t.Fatalf("variance adjustment = %s, want -50", p.VarianceAdjustment)
	}
	inv, err = env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !inv.PaidAmount.Equal(money(t, "950")) {
		t.Fatalf("invoice paid = %s, want 950", inv.PaidAmount)
	}
}

func TestLateFeeSweepAndEscalation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan); err != nil {
		t.Fatal(err)
	}

	// Within the grace window nothing happens.
	due := cycle.DueDate
	issued, err := env.cycles.ProcessLateFees(ctx, cycle.ID, due.AddDate(0, 0, 3), "scheduler")
	if err != nil {
		t.Fatal(err)
	}
	if issued != 0 {
		t.Fatalf("issued = %d inside grace, want 0", issued)
	}

	// Past grace a 10% late fee fine is raised and notified.
	issued, err = env.cycles.ProcessLateFees(ctx, cycle.ID, due.AddDate(0, 0, 6), "scheduler")
	if err != nil {
		t.Fatal(err)
	}
	if issued != 1 {
		t.Fatalf("issued = %d, want 1", issued)
	}

	fines, err := env.fines.Outstanding(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fines) != 1 {
		t.Fatalf("fines = %d, want 1", len(fines))
	}
	fine := fines[0]
	if fine.Category != "late_payment" || fine.Status != domain.FineNotified {
		t.Fatalf("fine = %s/%s, want late_payment/notified", fine.Category, fine.Status)
	}
	if !fine.BaseAmount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("fine base = %s, want 100", fine.BaseAmount)
	}

	// The sweep is monotone per invoice.
	issued, err = env.cycles.ProcessLateFees(ctx, cycle.ID, due.AddDate(0, 0, 40), "scheduler")
	if err != nil {
		t.Fatal(err)
	}
	if issued != 0 {
		t.Fatalf("rerun issued = %d, want 0", issued)
	}

	cycle, err = env.cycles.Get(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cycle.Aggregates.TotalLateFees.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total late fees = %s, want 100", cycle.Aggregates.TotalLateFees)
	}
	if cycle.Aggregates.LateFeesProcessed != 1 {
		t.Fatalf("late fees processed = %d, want 1", cycle.Aggregates.LateFeesProcessed)
	}

	// 30 days past the fine's own due date the sweep flips it overdue and
	// escalates one level: 100 * 1.5 = 150.
	sweepAt := fine.DueDate.AddDate(0, 0, 30)
	escalated, err := env.fines.EscalationSweep(ctx, "acme", sweepAt)
	if err != nil {
		t.Fatal(err)
	}
	if escalated != 1 {
		t.Fatalf("escalated = %d, want 1", escalated)
	}
	got, err := env.fines.Get(ctx, fine.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.FineOverdue || got.CurrentLevel != 1 {
		t.Fatalf("fine = %s level %d, want overdue level 1", got.Status, got.CurrentLevel)
	}
	if !got.AmountDue().Equal(decimal.NewFromInt(150)) {
		t.Fatalf("amount due = %s, want 150", got.AmountDue())
	}
	if events := env.publisher.byRoutingKey(rabbitmq.RoutingFineEscalated); len(events) != 1 {
		t.Fatalf("escalation events = %d, want 1", len(events))
	}

	// Escalation is bounded by the level cap.
	for i := 0; i < 5; i++ {
		sweepAt = sweepAt.AddDate(0, 0, 31)
		if _, err := env.fines.EscalationSweep(ctx, "acme", sweepAt); err != nil {
			t.Fatal(err)
		}
	}
	got, err = env.fines.Get(ctx, fine.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentLevel != 3 {
		t.Fatalf("level = %d, want capped at 3", got.CurrentLevel)
	}
}

func TestPaymentAllocatesAcrossInvoicesAndFines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")

	cycleJan := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycleJan.ID, jan); err != nil {
		t.Fatal(err)
	}
	cycleFeb := env.mustCycle(t, "acme", "2026-02", fs.ID, feb)
	if _, err := env.cycles.GenerateInvoices(ctx, cycleFeb.ID, feb); err != nil {
		t.Fatal(err)
	}

	fine, err := env.fines.Issue(ctx, IssueFineInput{
		Company:           "acme",
		PropertyAccountID: acc.ID,
		Category:          "noise",
		Severity:          domain.SeverityMedium,
		BaseAmount:        decimal.NewFromInt(200),
		EscalationFactor:  decimal.RequireFromString("1.5"),
		DueDate:           feb.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.fines.Notify(ctx, fine.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	// 2500 covers both invoices (oldest first), the fine, and leaves 300 as
	// credit.
	env.mustProcessedPayment(t, "acme", acc.ID, decimal.NewFromInt(2500), feb.AddDate(0, 0, 10))

	invJan, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycleJan.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	invFeb, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycleFeb.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if invJan.Status != domain.InvoicePaid || invFeb.Status != domain.InvoicePaid {
		t.Fatalf("invoice statuses = %s/%s, want paid/paid", invJan.Status, invFeb.Status)
	}

	fineAfter, err := env.fines.Get(ctx, fine.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fineAfter.Status != domain.FinePaid {
		t.Fatalf("fine status = %s, want paid", fineAfter.Status)
	}
	if !fineAfter.PaidAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("fine paid = %s, want 200", fineAfter.PaidAmount)
	}

	credits, err := env.repo.ListConsumableCredits(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(credits) != 1 || !credits[0].RemainingAmount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected one 300 credit, got %d", len(credits))
	}
}

func TestRefundReversesAccountAggregates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan); err != nil {
		t.Fatal(err)
	}
	p := env.mustProcessedPayment(t, "acme", acc.ID, decimal.NewFromInt(1000), jan.AddDate(0, 0, 10))

	p, err := env.payments.Refund(ctx, p.ID, "admin", "duplicate transfer")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if p.Status != domain.PaymentRefunded {
		t.Fatalf("status = %s, want refunded", p.Status)
	}

	acc, err = env.accounts.Get(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.RunningBalance.Equal(decimal.NewFromInt(-1000)) {
		t.Fatalf("running balance = %s, want -1000 after refund", acc.RunningBalance)
	}
	if !acc.YTDPaid.IsZero() {
		t.Fatalf("ytd paid = %s, want 0 after refund", acc.YTDPaid)
	}

	// The settled invoice is deliberately left alone.
	inv, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != domain.InvoicePaid {
		t.Fatalf("invoice status = %s, want paid", inv.Status)
	}
}

func TestGetUnknownCycle(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.cycles.Get(context.Background(), uuid.New())
	wantKind(t, err, domain.ErrValidation)
}

// gatedInvoiceRepo holds the first two ListUnpaidInvoices callers at a
// barrier, so both payment allocations read account state before either
// commit lands.
type gatedInvoiceRepo struct {
	*store.MemoryRepository
	calls int32
	wg    sync.WaitGroup
}

func (g *gatedInvoiceRepo) ListUnpaidInvoices(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Invoice, error) {
	if atomic.AddInt32(&g.calls, 1) <= 2 {
		g.wg.Done()
		g.wg.Wait()
	}
	return g.MemoryRepository.ListUnpaidInvoices(ctx, propertyAccountID)
}

func TestConcurrentPaymentsBothLandOnBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	acc := env.mustAccount(t, "acme", "A-101")

	gated := &gatedInvoiceRepo{MemoryRepository: env.repo}
	gated.wg.Add(2)
	payments := NewPaymentService(gated, env.publisher, nil,
		domain.VarianceTolerance{Absolute: decimal.NewFromInt(5), Percent: decimal.RequireFromString("0.5")}, 3, 365)

	var ids [2]uuid.UUID
	for i := range ids {
		p, err := payments.Record(ctx, RecordPaymentInput{
			Company:           "acme",
			PropertyAccountID: acc.ID,
			Amount:            decimal.NewFromInt(100),
			Method:            domain.MethodBankTransfer,
			PostedDate:        jan,
		})
		if err != nil {
			t.Fatalf("Record payment %d: %v", i, err)
		}
		ids[i] = p.ID
	}

	errs := make(chan error, 2)
	for _, id := range ids {
		go func(id uuid.UUID) {
			_, err := payments.Process(ctx, id, jan)
			errs <- err
		}(id)
	}
	for range ids {
		if err := <-errs; err != nil {
			t.Fatalf("Process: %v", err)
		}
	}

	acc, err := env.accounts.Get(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.RunningBalance.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("running balance = %s, want 200 with both payments applied", acc.RunningBalance)
	}
	if !acc.YTDPaid.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("ytd paid = %s, want 200", acc.YTDPaid)
	}

	// With nothing to settle, each payment overflowed into its own credit.
	credits, err := env.repo.ListConsumableCredits(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(credits) != 2 {
		t.Fatalf("consumable credits = %d, want 2", len(credits))
	}
}

func TestFineOverpaymentBooksCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acc := env.mustAccount(t, "acme", "A-101")

	f, err := env.fines.Issue(ctx, IssueFineInput{
		Company:           "acme",
		PropertyAccountID: acc.ID,
		Category:          "noise",
		Severity:          domain.SeverityLow,
		BaseAmount:        decimal.NewFromInt(200),
		EscalationFactor:  decimal.RequireFromString("1.5"),
		DueDate:           time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Issue fine: %v", err)
	}
	if _, err := env.fines.Notify(ctx, f.ID, "admin"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	// A tender short of the total due is refused outright.
	_, err = env.fines.MarkPaid(ctx, f.ID, decimal.NewFromInt(150), "cashier")
	wantKind(t, err, domain.ErrValidation)

	f, err = env.fines.MarkPaid(ctx, f.ID, decimal.NewFromInt(250), "cashier")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if f.Status != domain.FinePaid {
		t.Fatalf("status = %s, want paid", f.Status)
	}
	if !f.PaidAmount.Equal(f.TotalDue()) {
		t.Fatalf("paid amount = %s, want capped at total due %s", f.PaidAmount, f.TotalDue())
	}

	credits, err := env.repo.ListConsumableCredits(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(credits) != 1 {
		t.Fatalf("consumable credits = %d, want 1", len(credits))
	}
	if credits[0].Source != domain.CreditSourceOverpayment {
		t.Fatalf("credit source = %s, want overpayment", credits[0].Source)
	}
	if !credits[0].RemainingAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("credit remaining = %s, want the 50 excess", credits[0].RemainingAmount)
	}
}

func TestProcessedPaymentExposesAllocations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan); err != nil {
		t.Fatal(err)
	}
	inv, err := env.repo.FindInvoiceByCycleAndProperty(ctx, cycle.ID, acc.ID)
	if err != nil {
		t.Fatal(err)
	}

	p := env.mustProcessedPayment(t, "acme", acc.ID, decimal.NewFromInt(1200), jan.AddDate(0, 0, 10))

	allocs, err := env.payments.Allocations(ctx, p.ID)
	if err != nil {
		t.Fatalf("Allocations: %v", err)
	}
	if len(allocs) != 2 {
		t.Fatalf("allocations = %d, want invoice plus overflow credit", len(allocs))
	}
	if allocs[0].Kind != domain.AllocInvoice || allocs[0].TargetID != inv.ID || !allocs[0].Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("first allocation = %s %s %s, want invoice %s for 1000", allocs[0].Kind, allocs[0].TargetID, allocs[0].Amount, inv.ID)
	}
	if allocs[1].Kind != domain.AllocCredit || !allocs[1].Amount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("second allocation = %s %s, want credit for 200", allocs[1].Kind, allocs[1].Amount)
	}
	for _, a := range allocs {
		if a.PaymentID != p.ID {
			t.Fatalf("allocation %s carries payment %s, want %s", a.ID, a.PaymentID, p.ID)
		}
	}
}

func TestAveragePaymentDelayCountsSettledInvoices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), jan)
	acc := env.mustAccount(t, "acme", "A-101")
	cycle := env.mustCycle(t, "acme", "2026-01", fs.ID, jan)
	if _, err := env.cycles.GenerateInvoices(ctx, cycle.ID, jan); err != nil {
		t.Fatal(err)
	}

	// Pay the invoice in full five days past its due date. It settles, but
	// the delay it carries must still feed the average.
	due := cycle.DueDate
	env.mustProcessedPayment(t, "acme", acc.ID, decimal.NewFromInt(1000), due.AddDate(0, 0, 5))

	agg, err := env.accounts.RecomputeAggregates(ctx, acc.ID)
	if err != nil {
		t.Fatalf("RecomputeAggregates: %v", err)
	}
	if !agg.AvgPaymentDelayDays.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("avg payment delay = %s, want 5", agg.AvgPaymentDelayDays)
	}
	if !agg.PendingAmount.IsZero() {
		t.Fatalf("pending amount = %s, want 0 with the invoice settled", agg.PendingAmount)
	}
}

func TestOverflowCreditAnchorsToAllocationDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	asOf := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	acc := env.mustAccount(t, "acme", "A-101")
	env.mustProcessedPayment(t, "acme", acc.ID, decimal.NewFromInt(100), asOf)

	credits, err := env.repo.ListConsumableCredits(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(credits) != 1 {
		t.Fatalf("consumable credits = %d, want 1", len(credits))
	}
	c := credits[0]
	if !c.IssuedAt.Equal(asOf) {
		t.Fatalf("issued at = %s, want the allocation date %s", c.IssuedAt, asOf)
	}
	wantExpiry := asOf.AddDate(0, 0, 365)
	if c.ExpiryDate == nil || !c.ExpiryDate.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %s", c.ExpiryDate, wantExpiry)
	}
}
