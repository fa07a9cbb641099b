/**
 * @description
 * Payment service: the allocation processor. A recorded payment sits Pending
 * until Process routes its net amount across outstanding invoices, fines, and
 * overflow-to-credit in the configured order, committing the whole allocation
 * atomically. Bank-reported amount variances inside the tolerance are
 * auto-adjusted; anything larger parks the payment in Reconciling for an
 * operator.
 *
 * Key features:
 * - Confirmation numbers are sequential per company per posting day.
 * - Allocation order is configurable; the credit-overflow step is always
 *   terminal so money never disappears.
 * - Failed payments re-queue through a bounded retry counter; Reconciling
 *   payments past the SLA fail out via the sweep.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Variance events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
	"github.com/habitora/finance-service/pkg/rabbitmq"
)

// PaymentService records and processes payments.
type PaymentService struct {
	repo     store.Repository
	producer rabbitmq.Publisher

	order            []domain.AllocationStep
	tolerance        domain.VarianceTolerance
	maxRetries       int
	creditExpiryDays int
}

// NewPaymentService creates a new payment service instance.
func NewPaymentService(repo store.Repository, producer rabbitmq.Publisher,
	order []domain.AllocationStep, tolerance domain.VarianceTolerance, maxRetries, creditExpiryDays int) *PaymentService {
	if len(order) == 0 {
		order = domain.DefaultAllocationOrder()
	}
	return &PaymentService{
		repo:             repo,
		producer:         producer,
		order:            order,
		tolerance:        tolerance,
		maxRetries:       maxRetries,
		creditExpiryDays: creditExpiryDays,
	}
}

// RecordPaymentInput carries the fields of one incoming payment.
type RecordPaymentInput struct {
	Company           string
	PropertyAccountID uuid.UUID
	ResidentAccountID *uuid.UUID

	Amount         decimal.Decimal
	Method         domain.PaymentMethod
	ServiceCharge  decimal.Decimal
	Discount       decimal.Decimal
	CommissionRate decimal.Decimal
	Split          *domain.PaymentSplit

	BankReportedAmount *decimal.Decimal
	PostedDate         time.Time
	Reference          string
}

// Record validates and persists a Pending payment with a fresh confirmation
// number.
func (s *PaymentService) Record(ctx context.Context, in RecordPaymentInput) (*domain.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.NewError(domain.ErrValidation, "", "payment amount must be positive")
	}
	if !domain.ValidPaymentMethod(in.Method) {
		return nil, domain.NewError(domain.ErrValidation, "", "unknown payment method %q", in.Method)
	}
	if in.ServiceCharge.IsNegative() || in.Discount.IsNegative() {
		return nil, domain.NewError(domain.ErrValidation, "", "service charge and discount must not be negative")
	}
	if in.CommissionRate.IsNegative() || in.CommissionRate.GreaterThan(decimal.NewFromInt(100)) {
		return nil, domain.NewError(domain.ErrValidation, "", "commission rate must be within [0, 100]")
	}
	if in.Split != nil && !domain.MoneyEqual(in.Split.Sum(), in.Amount) {
		return nil, domain.NewError(domain.ErrValidation, "", "split components sum to %s, expected %s", in.Split.Sum(), in.Amount)
	}

	account, err := s.account(ctx, in.PropertyAccountID)
	if err != nil {
		return nil, err
	}
	if account.Status != domain.AccountActive {
		return nil, domain.NewError(domain.ErrStateMachine, account.Ref(), "account is %q, payments need an active account", account.Status)
	}

	seq, err := s.repo.CountPaymentsOnDate(ctx, in.Company, in.PostedDate)
	if err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:                 uuid.New(),
		Company:            in.Company,
		PropertyAccountID:  in.PropertyAccountID,
		ResidentAccountID:  in.ResidentAccountID,
		ConfirmationNumber: fmt.Sprintf("CONF-%s-%04d", in.PostedDate.Format("20060102"), seq+1),
		Status:             domain.PaymentPending,
		Method:             in.Method,
		Amount:             domain.RoundMoney(in.Amount),
		ServiceCharge:      domain.RoundMoney(in.ServiceCharge),
		Discount:           domain.RoundMoney(in.Discount),
		CommissionRate:     in.CommissionRate,
		Split:              in.Split,
		BankReportedAmount: in.BankReportedAmount,
		VarianceAdjustment: decimal.Zero,
		PostedDate:         in.PostedDate,
		Reference:          in.Reference,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if !p.NetAmount().IsPositive() {
		return nil, domain.NewError(domain.ErrValidation, "", "net amount after charges must be positive")
	}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.ErrUniqueness, p.Ref(), "confirmation number collision, retry the recording")
		}
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	log.Printf("RecordPayment: recorded %s of %s via %s", p.Ref(), p.Amount, p.Method)
	return p, nil
}

// Process allocates a pending payment. Any failure after validation marks the
// payment Failed with the reason; nothing partial is ever committed.
func (s *PaymentService) Process(ctx context.Context, paymentID uuid.UUID, asOf time.Time) (*domain.Payment, error) {
	p, err := s.find(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentPending {
		return nil, domain.NewError(domain.ErrStateMachine, p.Ref(), "only pending payments can be processed, status is %q", p.Status)
	}
	return s.allocate(ctx, p, asOf)
}

// allocate runs the allocation pipeline against a pending or reconciling
// payment and commits the result.
func (s *PaymentService) allocate(ctx context.Context, p *domain.Payment, asOf time.Time) (*domain.Payment, error) {
	account, err := s.account(ctx, p.PropertyAccountID)
	if err != nil {
		return nil, err
	}
	if account.Status != domain.AccountActive {
		return nil, s.fail(ctx, p, fmt.Sprintf("account is %s", account.Status))
	}

	// Variance gate. Inside the tolerance the bank figure wins and the
	// difference is recorded on the payment; beyond it the payment parks in
	// Reconciling for an operator.
	effectiveGross := p.Amount
	if p.BankReportedAmount != nil {
		variance := p.BankReportedAmount.Sub(p.Amount)
		if !variance.IsZero() {
			if !s.tolerance.Within(p.Amount, variance) {
				return nil, s.park(ctx, p, variance)
			}
			p.VarianceAdjustment = domain.RoundMoney(variance)
			effectiveGross = *p.BankReportedAmount
			s.publishVariance(ctx, p, variance, true)
		}
	}

	commission := effectiveGross.Mul(domain.Percent(p.CommissionRate))
	remaining := domain.RoundMoney(effectiveGross.Sub(p.ServiceCharge).Sub(p.Discount).Sub(commission))
	if !remaining.IsPositive() {
		return nil, s.fail(ctx, p, "net amount after charges is not positive")
	}
	net := remaining

	now := time.Now().UTC()
	commit := store.AllocationCommit{
		Payment:              p,
		AccountID:            account.ID,
		CycleCollectedDeltas: map[uuid.UUID]decimal.Decimal{},
	}

	// Working sets shared across steps so a custom order never allocates to
	// the same target twice.
	invoices, err := s.repo.ListUnpaidInvoices(ctx, p.PropertyAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid invoices: %w", err)
	}
	fines, err := s.repo.ListOutstandingFines(ctx, p.PropertyAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding fines: %w", err)
	}
	openCycleIDs, err := s.openCycleIDs(ctx, p.Company, asOf)
	if err != nil {
		return nil, err
	}
	touchedInvoices := map[uuid.UUID]bool{}

	for _, step := range s.order {
		if remaining.IsZero() {
			break
		}
		switch step {
		case domain.StepOldestInvoices:
			remaining = s.allocateInvoices(p, invoices, touchedInvoices, nil, remaining, &commit, now)
		case domain.StepCurrentCycle:
			remaining = s.allocateInvoices(p, invoices, touchedInvoices, openCycleIDs, remaining, &commit, now)
		case domain.StepFines:
			remaining = s.allocateFines(p, fines, remaining, &commit, now)
		case domain.StepCreditOverflow:
			if remaining.IsPositive() {
				s.overflowToCredit(p, remaining, &commit, now, asOf)
				remaining = decimal.Zero
			}
		}
	}

	// Account deltas: the whole net amount counts as money received. The
	// store applies them under the account row lock.
	posted := p.PostedDate
	commit.BalanceDelta = net
	commit.YTDPaidDelta = domain.RoundMoney(effectiveGross)
	commit.LastPaymentDate = &posted
	commit.LastPaymentAmount = domain.RoundMoney(effectiveGross)

	from := p.Status
	p.Status = domain.PaymentProcessed
	p.ProcessedAt = &now
	p.UpdatedAt = now
	commit.Transitions = append(commit.Transitions, newTransition(p.Company, "payment", p.Ref(), "system",
		string(from), string(domain.PaymentProcessed),
		fmt.Sprintf("allocated %s across %d targets", net, len(commit.Allocations)), now))

	if err := s.repo.CommitAllocation(ctx, commit); err != nil {
		return nil, s.fail(ctx, p, fmt.Sprintf("allocation commit failed: %v", err))
	}
	log.Printf("ProcessPayment: %s processed, net %s, %d allocations", p.Ref(), net, len(commit.Allocations))
	return p, nil
}

// allocateInvoices routes money to unpaid invoices in due-date order. With a
// cycle filter only invoices of those cycles are touched.
func (s *PaymentService) allocateInvoices(p *domain.Payment, invoices []domain.Invoice, touched map[uuid.UUID]bool,
	cycleFilter map[uuid.UUID]bool, remaining decimal.Decimal, commit *store.AllocationCommit, now time.Time) decimal.Decimal {
	for i := range invoices {
		if remaining.IsZero() {
			break
		}
		inv := &invoices[i]
		if touched[inv.ID] && inv.Settled() {
			continue
		}
		if cycleFilter != nil && !cycleFilter[inv.BillingCycleID] {
			continue
		}
		pay := decimal.Min(remaining, inv.Outstanding())
		if !pay.IsPositive() {
			continue
		}

		inv.PaidAmount = domain.RoundMoney(inv.PaidAmount.Add(pay))
		if inv.Settled() {
			inv.Status = domain.InvoicePaid
		} else {
			inv.Status = domain.InvoicePartiallyPaid
		}
		inv.UpdatedAt = now

		commit.Allocations = append(commit.Allocations, domain.PaymentAllocation{
			ID: uuid.New(), PaymentID: p.ID, Kind: domain.AllocInvoice, TargetID: inv.ID, Amount: pay, AppliedAt: now,
		})
		s.upsertInvoice(commit, *inv)
		delta := commit.CycleCollectedDeltas[inv.BillingCycleID]
		commit.CycleCollectedDeltas[inv.BillingCycleID] = delta.Add(pay)
		touched[inv.ID] = true
		remaining = domain.RoundMoney(remaining.Sub(pay))
	}
	return remaining
}

// allocateFines routes money to outstanding fines in assessment order.
func (s *PaymentService) allocateFines(p *domain.Payment, fines []domain.Fine, remaining decimal.Decimal,
	commit *store.AllocationCommit, now time.Time) decimal.Decimal {
	for i := range fines {
		if remaining.IsZero() {
			break
		}
		f := &fines[i]
		owed := f.TotalDue().Sub(f.PaidAmount)
		pay := decimal.Min(remaining, owed)
		if !pay.IsPositive() {
			continue
		}

		f.PaidAmount = domain.RoundMoney(f.PaidAmount.Add(pay))
		if !f.PaidAmount.LessThan(f.TotalDue()) && f.Status.CanTransition(domain.FinePaid) {
			from := f.Status
			f.Status = domain.FinePaid
			f.ResolvedAt = &now
			commit.Transitions = append(commit.Transitions, newTransition(f.Company, "fine", f.Ref(), "system",
				string(from), string(domain.FinePaid), fmt.Sprintf("settled by %s", p.Ref()), now))
		}
		f.UpdatedAt = now

		commit.Allocations = append(commit.Allocations, domain.PaymentAllocation{
			ID: uuid.New(), PaymentID: p.ID, Kind: domain.AllocFine, TargetID: f.ID, Amount: pay, AppliedAt: now,
		})
		commit.UpdatedFines = append(commit.UpdatedFines, *f)
		remaining = domain.RoundMoney(remaining.Sub(pay))
	}
	return remaining
}

// overflowToCredit turns the unallocated remainder into a fresh credit entry.
// Issue and expiry dates anchor to the allocation date so backdated payments
// produce correctly ordered credits.
func (s *PaymentService) overflowToCredit(p *domain.Payment, remaining decimal.Decimal, commit *store.AllocationCommit, now, asOf time.Time) {
	var expiry *time.Time
	if s.creditExpiryDays > 0 {
		e := asOf.AddDate(0, 0, s.creditExpiryDays)
		expiry = &e
	}
	credit := &domain.CreditBalance{
		ID:                uuid.New(),
		Company:           p.Company,
		PropertyAccountID: p.PropertyAccountID,
		ResidentAccountID: p.ResidentAccountID,
		Source:            domain.CreditSourceOverpayment,
		Status:            domain.CreditAvailable,
		AutoApply:         true,
		OriginalAmount:    domain.RoundMoney(remaining),
		RemainingAmount:   domain.RoundMoney(remaining),
		IssuedAt:          asOf,
		ExpiryDate:        expiry,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	commit.NewCredit = credit
	commit.Allocations = append(commit.Allocations, domain.PaymentAllocation{
		ID: uuid.New(), PaymentID: p.ID, Kind: domain.AllocCredit, TargetID: credit.ID, Amount: credit.OriginalAmount, AppliedAt: now,
	})
}

// upsertInvoice keeps one post-state per invoice in the commit.
func (s *PaymentService) upsertInvoice(commit *store.AllocationCommit, inv domain.Invoice) {
	for i := range commit.UpdatedInvoices {
		if commit.UpdatedInvoices[i].ID == inv.ID {
			commit.UpdatedInvoices[i] = inv
			return
		}
	}
	commit.UpdatedInvoices = append(commit.UpdatedInvoices, inv)
}

// park moves a payment with an out-of-tolerance variance into Reconciling.
func (s *PaymentService) park(ctx context.Context, p *domain.Payment, variance decimal.Decimal) error {
	from := p.Status
	p.Status = domain.PaymentReconciling
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePayment(ctx, p); err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(p.Company, "payment", p.Ref(), "system",
		string(from), string(domain.PaymentReconciling),
		fmt.Sprintf("bank variance %s exceeds tolerance", variance), p.UpdatedAt))
	s.publishVariance(ctx, p, variance, false)
	return domain.NewError(domain.ErrReconciliation, p.Ref(),
		"bank reported %s against recorded %s, variance %s exceeds tolerance",
		p.BankReportedAmount, p.Amount, variance)
}

// fail marks a payment Failed with the reason.
func (s *PaymentService) fail(ctx context.Context, p *domain.Payment, reason string) error {
	from := p.Status
	p.Status = domain.PaymentFailed
	p.FailureReason = &reason
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePayment(ctx, p); err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(p.Company, "payment", p.Ref(), "system",
		string(from), string(domain.PaymentFailed), reason, p.UpdatedAt))
	return domain.NewError(domain.ErrInternalInvariant, p.Ref(), "payment failed: %s", reason)
}

// Retry re-queues a failed payment, bounded by the retry counter.
func (s *PaymentService) Retry(ctx context.Context, paymentID uuid.UUID, actor string) (*domain.Payment, error) {
	p, err := s.find(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentFailed {
		return nil, domain.NewError(domain.ErrStateMachine, p.Ref(), "only failed payments can be retried, status is %q", p.Status)
	}
	if p.RetryCount >= s.maxRetries {
		return nil, domain.NewError(domain.ErrLimitExceeded, p.Ref(), "retry limit of %d reached", s.maxRetries)
	}
	p.Status = domain.PaymentPending
	p.RetryCount++
	p.FailureReason = nil
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(p.Company, "payment", p.Ref(), actor,
		string(domain.PaymentFailed), string(domain.PaymentPending),
		fmt.Sprintf("re-queued, attempt %d of %d", p.RetryCount, s.maxRetries), p.UpdatedAt))
	return p, nil
}

// ResolveReconciliation settles a reconciling payment at the amount the
// operator accepted and allocates it.
func (s *PaymentService) ResolveReconciliation(ctx context.Context, paymentID uuid.UUID, acceptedAmount decimal.Decimal, actor string, asOf time.Time) (*domain.Payment, error) {
	p, err := s.find(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentReconciling {
		return nil, domain.NewError(domain.ErrStateMachine, p.Ref(), "only reconciling payments can be resolved, status is %q", p.Status)
	}
	if !acceptedAmount.IsPositive() {
		return nil, domain.NewError(domain.ErrValidation, p.Ref(), "accepted amount must be positive")
	}

	p.VarianceAdjustment = domain.RoundMoney(acceptedAmount.Sub(p.Amount))
	p.Amount = domain.RoundMoney(acceptedAmount)
	p.BankReportedAmount = nil
	recordTransition(ctx, s.repo, newTransition(p.Company, "payment", p.Ref(), actor,
		string(domain.PaymentReconciling), string(domain.PaymentReconciling),
		fmt.Sprintf("operator accepted %s (adjustment %s)", p.Amount, p.VarianceAdjustment), time.Now().UTC()))
	return s.allocate(ctx, p, asOf)
}

// Reject refuses a pending or reconciling payment.
func (s *PaymentService) Reject(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*domain.Payment, error) {
	p, err := s.find(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanTransition(domain.PaymentRejected) {
		return nil, domain.NewError(domain.ErrStateMachine, p.Ref(), "cannot reject from status %q", p.Status)
	}
	from := p.Status
	p.Status = domain.PaymentRejected
	p.FailureReason = &reason
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(p.Company, "payment", p.Ref(), actor,
		string(from), string(domain.PaymentRejected), reason, p.UpdatedAt))
	return p, nil
}

// Refund reverses a processed payment at the account level: the net amount
// leaves the running balance and the gross leaves the YTD figure. Settled
// invoices stay settled; corrections against them go through cycle
// adjustments.
func (s *PaymentService) Refund(ctx context.Context, paymentID uuid.UUID, actor, reason string) (*domain.Payment, error) {
	p, err := s.find(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanTransition(domain.PaymentRefunded) {
		return nil, domain.NewError(domain.ErrStateMachine, p.Ref(), "cannot refund from status %q", p.Status)
	}

	account, err := s.account(ctx, p.PropertyAccountID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	account.RunningBalance = domain.RoundMoney(account.RunningBalance.Sub(p.NetAmount()))
	account.YTDPaid = domain.RoundMoney(account.YTDPaid.Sub(p.Amount))
	account.UpdatedAt = now
	if err := s.repo.SavePropertyAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save property account: %w", err)
	}

	from := p.Status
	p.Status = domain.PaymentRefunded
	p.UpdatedAt = now
	if err := s.repo.SavePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(p.Company, "payment", p.Ref(), actor,
		string(from), string(domain.PaymentRefunded), reason, now))
	log.Printf("RefundPayment: refunded %s: %s", p.Ref(), reason)
	return p, nil
}

// ReconcilingSweep fails out payments stuck in Reconciling past the SLA
// cutoff. Returns the number of payments failed.
func (s *PaymentService) ReconcilingSweep(ctx context.Context, cutoff time.Time) (int, error) {
	stuck, err := s.repo.ListPaymentsInStatusOlderThan(ctx, domain.PaymentReconciling, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list reconciling payments: %w", err)
	}
	failed := 0
	for i := range stuck {
		p := stuck[i]
		reason := "reconciliation SLA breached"
		p.Status = domain.PaymentFailed
		p.FailureReason = &reason
		p.UpdatedAt = time.Now().UTC()
		if err := s.repo.SavePayment(ctx, &p); err != nil {
			log.Printf("WARN: ReconcilingSweep: failed to save %s: %v", p.Ref(), err)
			continue
		}
		recordTransition(ctx, s.repo, newTransition(p.Company, "payment", p.Ref(), "system",
			string(domain.PaymentReconciling), string(domain.PaymentFailed), reason, p.UpdatedAt))
		failed++
	}
	if failed > 0 {
		log.Printf("ReconcilingSweep: failed out %d stuck payments", failed)
	}
	return failed, nil
}

// Get loads a payment by id.
func (s *PaymentService) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.find(ctx, id)
}

// Allocations returns the allocation rows of a processed payment in
// application order.
func (s *PaymentService) Allocations(ctx context.Context, id uuid.UUID) ([]domain.PaymentAllocation, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentAllocations(ctx, id)
}

// openCycleIDs selects the open cycles whose window covers the allocation
// date, so the current-cycle step follows the caller's as-of reference.
func (s *PaymentService) openCycleIDs(ctx context.Context, company string, asOf time.Time) (map[uuid.UUID]bool, error) {
	cycles, err := s.repo.ListOpenCycles(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("failed to list open cycles: %w", err)
	}
	ids := make(map[uuid.UUID]bool, len(cycles))
	for i := range cycles {
		c := &cycles[i]
		if asOf.Before(c.StartDate) || asOf.After(c.EndDate) {
			continue
		}
		ids[c.ID] = true
	}
	return ids, nil
}

func (s *PaymentService) publishVariance(ctx context.Context, p *domain.Payment, variance decimal.Decimal, autoAdjusted bool) {
	event := map[string]any{
		"company":             p.Company,
		"payment_id":          p.ID,
		"confirmation_number": p.ConfirmationNumber,
		"variance":            variance.String(),
		"auto_adjusted":       autoAdjusted,
		"timestamp":           time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, financeEventsExchange, rabbitmq.RoutingPaymentVariance, event); err != nil {
		log.Printf("WARN: failed to publish variance event for %s: %v", p.Ref(), err)
	}
}

func (s *PaymentService) account(ctx context.Context, id uuid.UUID) (*domain.PropertyAccount, error) {
	pa, err := s.repo.FindPropertyAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrPropertyAccountNotFound) {
			return nil, domain.NewError(domain.ErrLinkIntegrity, "", "property account %s not found", id)
		}
		return nil, fmt.Errorf("failed to find property account: %w", err)
	}
	return pa, nil
}

func (s *PaymentService) find(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.repo.FindPaymentByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "payment/"+id.String(), "payment not found")
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return p, nil
}
