/**
 * @description
 * Billing cycle service: the bounded collection windows. A cycle freezes its
 * fee structure at open time; invoice generation walks the active property
 * portfolio once per property with per-property durability, auto-applying
 * available credits to each fresh invoice. Late fee processing issues at most
 * one late-payment fine per invoice per cycle. Closing recomputes the
 * aggregates, fixes the final collection rate, and publishes the closure
 * event.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - FeeStructureService, CreditService, FineService: Collaborating services.
 * - pkg/rabbitmq: Cycle closure events.
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

// CycleService manages billing cycles end to end.
type CycleService struct {
	repo       store.Repository
	fees       *FeeStructureService
	credits    *CreditService
	fines      *FineService
	properties PropertyRegistry
	producer   rabbitmq.Publisher

	lateFeeRatePct   decimal.Decimal // percent, fallback when the structure has no surcharge
	lateFeeGraceDays int
	escalationFactor decimal.Decimal
}

// NewCycleService creates a new billing cycle service instance.
func NewCycleService(repo store.Repository, fees *FeeStructureService, credits *CreditService, fines *FineService,
	properties PropertyRegistry, producer rabbitmq.Publisher,
	lateFeeRatePct decimal.Decimal, lateFeeGraceDays int, escalationFactor decimal.Decimal) *CycleService {
	return &CycleService{
		repo:             repo,
		fees:             fees,
		credits:          credits,
		fines:            fines,
		properties:       properties,
		producer:         producer,
		lateFeeRatePct:   lateFeeRatePct,
		lateFeeGraceDays: lateFeeGraceDays,
		escalationFactor: escalationFactor,
	}
}

// OpenCycleInput carries the fields of a new billing cycle.
type OpenCycleInput struct {
	Company        string
	CycleCode      string
	StartDate      time.Time
	EndDate        time.Time
	DueDate        time.Time
	FeeStructureID uuid.UUID
}

// Open creates a new Active cycle with its fee structure frozen in.
func (s *CycleService) Open(ctx context.Context, in OpenCycleInput) (*domain.BillingCycle, error) {
	if in.CycleCode == "" {
		return nil, domain.NewError(domain.ErrValidation, "", "cycle code is required")
	}
	if !in.StartDate.Before(in.EndDate) {
		return nil, domain.NewError(domain.ErrValidation, "", "start date must precede end date")
	}
	if in.DueDate.Before(in.EndDate) {
		return nil, domain.NewError(domain.ErrValidation, "", "due date must not precede end date")
	}

	fs, err := s.fees.Get(ctx, in.FeeStructureID)
	if err != nil {
		return nil, err
	}
	if fs.Status != domain.FeeStructureActive {
		return nil, domain.NewError(domain.ErrLinkIntegrity, fs.Ref(), "fee structure %q is not active", fs.StructureCode)
	}
	if fs.Company != in.Company {
		return nil, domain.NewError(domain.ErrLinkIntegrity, fs.Ref(), "fee structure belongs to company %q", fs.Company)
	}

	now := time.Now().UTC()
	c := &domain.BillingCycle{
		ID:             uuid.New(),
		Company:        in.Company,
		CycleCode:      in.CycleCode,
		Status:         domain.CycleActive,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		DueDate:        in.DueDate,
		FeeStructureID: fs.ID,
		Aggregates: domain.CycleAggregates{
			TotalBilled:      decimal.Zero,
			TotalCollected:   decimal.Zero,
			TotalAdjustments: decimal.Zero,
			TotalLateFees:    decimal.Zero,
			PendingAmount:    decimal.Zero,
			CollectionRate:   decimal.Zero,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateCycle(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.ErrUniqueness, c.Ref(), "cycle code %q already exists for company %q", in.CycleCode, in.Company)
		}
		return nil, fmt.Errorf("failed to create billing cycle: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(c.Company, "billing_cycle", c.Ref(), "system",
		string(domain.CycleDraft), string(domain.CycleActive), "opened", now))
	log.Printf("OpenCycle: opened %s [%s .. %s], structure %s", c.Ref(),
		c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"), fs.StructureCode)
	return c, nil
}

// GenerationFailure records one property whose invoice could not be raised.
type GenerationFailure struct {
	PropertyRef string
	Err         error
}

// GenerationResult summarizes one invoice generation run.
type GenerationResult struct {
	Generated     int
	Skipped       int
	CreditApplied decimal.Decimal
	Failures      []GenerationFailure
}

// GenerateInvoices raises one invoice per active auto-billed property account.
// Generation is idempotent per (cycle, property): rerunning skips properties
// that already carry an invoice. Each property commits independently so a
// mid-batch failure leaves earlier invoices durable.
func (s *CycleService) GenerateInvoices(ctx context.Context, cycleID uuid.UUID, asOf time.Time) (*GenerationResult, error) {
	c, err := s.find(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if !c.Mutable() {
		return nil, domain.NewError(domain.ErrCycleImmutable, c.Ref(), "cycle is %q, invoices need an open cycle", c.Status)
	}

	fs, err := s.fees.Get(ctx, c.FeeStructureID)
	if err != nil {
		return nil, err
	}

	if c.Status == domain.CycleActive {
		if err := s.move(ctx, c, domain.CycleProcessing, "system", "invoice generation started"); err != nil {
			return nil, err
		}
	}

	accounts, err := s.repo.ListActivePropertyAccounts(ctx, c.Company)
	if err != nil {
		return nil, fmt.Errorf("failed to list property accounts: %w", err)
	}

	result := &GenerationResult{CreditApplied: decimal.Zero}
	for i := range accounts {
		account := accounts[i]
		if !account.AutoGenerateInvoices {
			result.Skipped++
			continue
		}
		if _, err := s.repo.FindInvoiceByCycleAndProperty(ctx, c.ID, account.ID); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, store.ErrInvoiceNotFound) {
			result.Failures = append(result.Failures, GenerationFailure{PropertyRef: account.PropertyRegistryRef, Err: err})
			continue
		}

		inv, err := s.generateOne(ctx, c, fs, &account, asOf)
		if err != nil {
			if domain.IsKind(err, domain.ErrUniqueness) {
				result.Skipped++
				continue
			}
			log.Printf("WARN: GenerateInvoices: %s failed: %v", account.PropertyRegistryRef, err)
			result.Failures = append(result.Failures, GenerationFailure{PropertyRef: account.PropertyRegistryRef, Err: err})
			continue
		}
		result.Generated++

		applied, err := s.credits.AutoApplyToInvoice(ctx, inv.ID)
		if err != nil {
			log.Printf("WARN: GenerateInvoices: credit application on %s failed: %v", inv.Ref(), err)
		} else {
			result.CreditApplied = result.CreditApplied.Add(applied)
		}
	}

	// Reload so the post-state carries every per-property aggregate delta.
	c, err = s.find(ctx, cycleID)
	if err != nil {
		return result, err
	}
	if c.Status == domain.CycleProcessing {
		if err := s.move(ctx, c, domain.CycleActive, "system",
			fmt.Sprintf("invoice generation finished: %d generated, %d skipped, %d failed",
				result.Generated, result.Skipped, len(result.Failures))); err != nil {
			return result, err
		}
	}
	log.Printf("GenerateInvoices: %s generated=%d skipped=%d failed=%d creditApplied=%s",
		c.Ref(), result.Generated, result.Skipped, len(result.Failures), result.CreditApplied)
	return result, nil
}

// generateOne raises and commits the invoice of one property.
func (s *CycleService) generateOne(ctx context.Context, c *domain.BillingCycle, fs *domain.FeeStructure, account *domain.PropertyAccount, asOf time.Time) (*domain.Invoice, error) {
	rec, err := s.properties.GetProperty(ctx, c.Company, account.PropertyRegistryRef)
	if err != nil {
		return nil, registryError("property", account.PropertyRegistryRef, err)
	}
	profile := profileFromRecord(rec)
	if !profile.Active {
		return nil, domain.NewError(domain.ErrLinkIntegrity, account.Ref(), "property %q is inactive in the registry", account.PropertyRegistryRef)
	}

	breakdown, err := s.fees.CalculateFee(fs, profile)
	if err != nil {
		return nil, err
	}

	lines := []domain.InvoiceLine{
		{Description: fmt.Sprintf("Maintenance fee %s", c.CycleCode), Amount: breakdown.BaseFee},
	}
	if breakdown.ReserveFund.IsPositive() {
		lines = append(lines, domain.InvoiceLine{Description: "Reserve fund contribution", Amount: breakdown.ReserveFund})
	}

	now := time.Now().UTC()
	inv := &domain.Invoice{
		ID:                uuid.New(),
		Company:           c.Company,
		BillingCycleID:    c.ID,
		PropertyAccountID: account.ID,
		CustomerRef:       account.CustomerRef,
		Status:            domain.InvoiceOpen,
		Lines:             lines,
		Total:             breakdown.TotalFee,
		PaidAmount:        decimal.Zero,
		CreditApplied:     decimal.Zero,
		IssuedDate:        asOf,
		DueDate:           c.DueDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	account.RunningBalance = domain.RoundMoney(account.RunningBalance.Sub(inv.Total))
	account.YTDInvoiced = domain.RoundMoney(account.YTDInvoiced.Add(inv.Total))
	account.UpdatedAt = now

	c.Aggregates.InvoicesGenerated++
	c.Aggregates.TotalBilled = domain.RoundMoney(c.Aggregates.TotalBilled.Add(inv.Total))
	c.Aggregates.PendingAmount = domain.RoundMoney(c.Aggregates.TotalBilled.Sub(c.Aggregates.TotalCollected))
	c.UpdatedAt = now

	tr := newTransition(c.Company, "invoice", inv.Ref(), "system", "", string(domain.InvoiceOpen),
		fmt.Sprintf("generated for %s", account.PropertyRegistryRef), now)
	commit := store.InvoiceCommit{Invoice: inv, Account: account, Cycle: c, Transition: &tr}
	if err := s.repo.CommitInvoiceGeneration(ctx, commit); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.ErrUniqueness, inv.Ref(), "invoice already exists for this cycle and property")
		}
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}
	return inv, nil
}

// ApplyAdjustment records one signed manual adjustment against a mutable
// cycle.
func (s *CycleService) ApplyAdjustment(ctx context.Context, cycleID, propertyAccountID uuid.UUID, delta decimal.Decimal, kind domain.CycleAdjustmentKind, reason, actor string) (*domain.CycleAdjustment, error) {
	if delta.IsZero() {
		return nil, domain.NewError(domain.ErrValidation, "", "adjustment delta must not be zero")
	}
	switch kind {
	case domain.AdjustmentDiscount, domain.AdjustmentSurcharge, domain.AdjustmentCorrection, domain.AdjustmentVariance:
	default:
		return nil, domain.NewError(domain.ErrValidation, "", "unknown adjustment kind %q", kind)
	}

	c, err := s.find(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if !c.Mutable() {
		return nil, domain.NewError(domain.ErrCycleImmutable, c.Ref(), "cycle is %q, adjustments need an open cycle", c.Status)
	}

	now := time.Now().UTC()
	adj := &domain.CycleAdjustment{
		ID:                uuid.New(),
		BillingCycleID:    c.ID,
		PropertyAccountID: propertyAccountID,
		Delta:             domain.RoundMoney(delta),
		Kind:              kind,
		Reason:            reason,
		CreatedAt:         now,
	}
	c.Aggregates.TotalAdjustments = domain.RoundMoney(c.Aggregates.TotalAdjustments.Add(adj.Delta))
	c.UpdatedAt = now
	if err := s.repo.AppendCycleAdjustment(ctx, adj, c); err != nil {
		return nil, fmt.Errorf("failed to append cycle adjustment: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(c.Company, "billing_cycle", c.Ref(), actor,
		string(c.Status), string(c.Status), fmt.Sprintf("%s adjustment of %s: %s", kind, adj.Delta, reason), now))
	return adj, nil
}

// ProcessLateFees issues late-payment fines for overdue unpaid invoices of
// the cycle. At most one late fee per invoice, ever: reruns are no-ops for
// invoices already flagged. Returns the number of fines issued.
func (s *CycleService) ProcessLateFees(ctx context.Context, cycleID uuid.UUID, asOf time.Time, actor string) (int, error) {
	c, err := s.find(ctx, cycleID)
	if err != nil {
		return 0, err
	}
	if !c.Mutable() {
		return 0, domain.NewError(domain.ErrCycleImmutable, c.Ref(), "cycle is %q, late fees need an open cycle", c.Status)
	}

	fs, err := s.fees.Get(ctx, c.FeeStructureID)
	if err != nil {
		return 0, err
	}
	ratePct := s.lateFeeRatePct
	if fs.Adjustments.LatePaymentSurchargePct.IsPositive() {
		ratePct = fs.Adjustments.LatePaymentSurchargePct
	}
	graceDays := s.lateFeeGraceDays
	if fs.Adjustments.LatePaymentGraceDays > 0 {
		graceDays = fs.Adjustments.LatePaymentGraceDays
	}

	invoices, err := s.repo.ListInvoicesByCycle(ctx, c.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list cycle invoices: %w", err)
	}

	issued := 0
	for i := range invoices {
		inv := invoices[i]
		if inv.LateFeeIssued || inv.Settled() || inv.Status == domain.InvoiceCancelled {
			continue
		}
		cutoff := inv.DueDate.AddDate(0, 0, graceDays)
		if !asOf.After(cutoff) {
			continue
		}
		if _, err := s.repo.FindLateFeeFine(ctx, c.ID, inv.ID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrFineNotFound) {
			return issued, fmt.Errorf("failed to check existing late fee: %w", err)
		}

		feeAmount := domain.RoundMoney(inv.Outstanding().Mul(domain.Percent(ratePct)))
		if !feeAmount.IsPositive() {
			continue
		}

		fine, err := s.fines.Issue(ctx, IssueFineInput{
			Company:           c.Company,
			PropertyAccountID: inv.PropertyAccountID,
			BillingCycleID:    &c.ID,
			InvoiceID:         &inv.ID,
			Category:          "late_payment",
			Severity:          domain.SeverityLow,
			BaseAmount:        feeAmount,
			EscalationFactor:  s.escalationFactor,
			DueDate:           asOf.AddDate(0, 1, 0),
			Description:       fmt.Sprintf("Late payment fee for invoice %s", inv.ID),
		})
		if err != nil {
			log.Printf("WARN: ProcessLateFees: failed to issue fine for %s: %v", inv.Ref(), err)
			continue
		}
		if _, err := s.fines.Notify(ctx, fine.ID, actor); err != nil {
			log.Printf("WARN: ProcessLateFees: failed to notify fine %s: %v", fine.Ref(), err)
		}

		inv.LateFeeIssued = true
		inv.UpdatedAt = time.Now().UTC()
		if err := s.repo.SaveInvoice(ctx, &inv); err != nil {
			return issued, fmt.Errorf("failed to flag invoice %s: %w", inv.ID, err)
		}

		c.Aggregates.TotalLateFees = domain.RoundMoney(c.Aggregates.TotalLateFees.Add(feeAmount))
		c.Aggregates.LateFeesProcessed++
		issued++
	}

	if issued > 0 {
		c.UpdatedAt = time.Now().UTC()
		if err := s.repo.SaveCycle(ctx, c); err != nil {
			return issued, fmt.Errorf("failed to save cycle aggregates: %w", err)
		}
	}
	log.Printf("ProcessLateFees: %s issued %d late fees as of %s", c.Ref(), issued, asOf.Format("2006-01-02"))
	return issued, nil
}

// RecomputeMetrics rebuilds the derived aggregates of a mutable cycle.
func (s *CycleService) RecomputeMetrics(ctx context.Context, cycleID uuid.UUID) (*domain.BillingCycle, error) {
	c, err := s.find(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if !c.Mutable() {
		return nil, domain.NewError(domain.ErrCycleImmutable, c.Ref(), "cycle is %q, aggregates are frozen", c.Status)
	}
	s.recompute(c)
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveCycle(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save cycle: %w", err)
	}
	return c, nil
}

// Close finalizes a cycle: the end date must have passed, the aggregates are
// recomputed one last time, the final collection rate is fixed, and the
// closure event is published. Closed cycles are immutable.
func (s *CycleService) Close(ctx context.Context, cycleID uuid.UUID, asOf time.Time, actor string) (*domain.BillingCycle, error) {
	c, err := s.find(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransition(domain.CycleClosed) {
		return nil, domain.NewError(domain.ErrStateMachine, c.Ref(), "cannot close from status %q", c.Status)
	}
	if asOf.Before(c.EndDate) {
		return nil, domain.NewError(domain.ErrValidation, c.Ref(),
			"cannot close before the end date %s", c.EndDate.Format("2006-01-02"))
	}

	s.recompute(c)
	final := c.Aggregates.CollectionRate
	c.Aggregates.FinalCollectionRate = &final

	next := s.nextCycleDate(c)
	c.NextCycleDate = &next

	from := c.Status
	now := time.Now().UTC()
	c.Status = domain.CycleClosed
	c.ClosedAt = &now
	c.UpdatedAt = now
	if err := s.repo.SaveCycle(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save cycle: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(c.Company, "billing_cycle", c.Ref(), actor,
		string(from), string(domain.CycleClosed), "closed", now))

	event := domain.CycleClosedEvent{
		Company:             c.Company,
		CycleCode:           c.CycleCode,
		TotalBilled:         c.Aggregates.TotalBilled.String(),
		TotalCollected:      c.Aggregates.TotalCollected.String(),
		PendingAmount:       c.Aggregates.PendingAmount.String(),
		FinalCollectionRate: final.String(),
		ClosedAt:            now,
	}
	if err := s.producer.Publish(ctx, financeEventsExchange, rabbitmq.RoutingCycleClosed, event); err != nil {
		log.Printf("WARN: failed to publish cycle closed event for %s: %v", c.Ref(), err)
	}
	log.Printf("CloseCycle: closed %s, final collection rate %s%%", c.Ref(), final)
	return c, nil
}

// Cancel abandons a cycle before completion.
func (s *CycleService) Cancel(ctx context.Context, cycleID uuid.UUID, actor, reason string) (*domain.BillingCycle, error) {
	c, err := s.find(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransition(domain.CycleCancelled) {
		return nil, domain.NewError(domain.ErrStateMachine, c.Ref(), "cannot cancel from status %q", c.Status)
	}
	from := c.Status
	c.Status = domain.CycleCancelled
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveCycle(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save cycle: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(c.Company, "billing_cycle", c.Ref(), actor,
		string(from), string(domain.CycleCancelled), reason, c.UpdatedAt))
	return c, nil
}

// MarkError parks a cycle in the error state for operator review.
func (s *CycleService) MarkError(ctx context.Context, cycleID uuid.UUID, reason string) (*domain.BillingCycle, error) {
	c, err := s.find(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransition(domain.CycleError) {
		return nil, domain.NewError(domain.ErrStateMachine, c.Ref(), "cannot mark error from status %q", c.Status)
	}
	from := c.Status
	c.Status = domain.CycleError
	c.ErrorReason = &reason
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveCycle(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save cycle: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(c.Company, "billing_cycle", c.Ref(), "system",
		string(from), string(domain.CycleError), reason, c.UpdatedAt))
	return c, nil
}

// Summary builds the exportable snapshot of a cycle, including the overdue
// total across its unpaid invoices.
func (s *CycleService) Summary(ctx context.Context, cycleID uuid.UUID, asOf time.Time) (*domain.CycleSummary, error) {
	c, err := s.find(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.repo.ListInvoicesByCycle(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle invoices: %w", err)
	}
	overdue := decimal.Zero
	for i := range invoices {
		if invoices[i].Overdue(asOf) {
			overdue = overdue.Add(invoices[i].Outstanding())
		}
	}
	return &domain.CycleSummary{
		Company:    c.Company,
		CycleCode:  c.CycleCode,
		Status:     c.Status,
		StartDate:  c.StartDate,
		EndDate:    c.EndDate,
		DueDate:    c.DueDate,
		Aggregates: c.Aggregates,
		Properties: len(invoices),
		Overdue:    domain.RoundMoney(overdue),
	}, nil
}

// Get loads a cycle by id.
func (s *CycleService) Get(ctx context.Context, id uuid.UUID) (*domain.BillingCycle, error) {
	return s.find(ctx, id)
}

// GetByCode loads a cycle by (company, cycle_code).
func (s *CycleService) GetByCode(ctx context.Context, company, code string) (*domain.BillingCycle, error) {
	c, err := s.repo.FindCycleByCode(ctx, company, code)
	if err != nil {
		if errors.Is(err, store.ErrCycleNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "billing_cycle/"+company+"/"+code, "billing cycle not found")
		}
		return nil, fmt.Errorf("failed to find billing cycle: %w", err)
	}
	return c, nil
}

func (s *CycleService) find(ctx context.Context, id uuid.UUID) (*domain.BillingCycle, error) {
	c, err := s.repo.FindCycleByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrCycleNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "billing_cycle/"+id.String(), "billing cycle not found")
		}
		return nil, fmt.Errorf("failed to find billing cycle: %w", err)
	}
	return c, nil
}

// recompute rebuilds collection rate and pending amount from the aggregates.
func (s *CycleService) recompute(c *domain.BillingCycle) {
	agg := &c.Aggregates
	agg.PendingAmount = domain.RoundMoney(agg.TotalBilled.Sub(agg.TotalCollected))
	if agg.TotalBilled.IsZero() {
		agg.CollectionRate = decimal.Zero
		return
	}
	agg.CollectionRate = domain.RoundMoney(agg.TotalCollected.Div(agg.TotalBilled).Mul(decimal.NewFromInt(100)))
}

// nextCycleDate projects the start of the following window from the cycle's
// own length, floored at one month.
func (s *CycleService) nextCycleDate(c *domain.BillingCycle) time.Time {
	months := 0
	cursor := c.StartDate.AddDate(0, 1, 0)
	for !cursor.After(c.EndDate) {
		months++
		cursor = cursor.AddDate(0, 1, 0)
	}
	if months < 1 {
		months = 1
	}
	return c.EndDate.AddDate(0, months, 0)
}

// move transitions the cycle status with an event-log row.
func (s *CycleService) move(ctx context.Context, c *domain.BillingCycle, to domain.CycleStatus, actor, reason string) error {
	if !c.Status.CanTransition(to) {
		return domain.NewError(domain.ErrStateMachine, c.Ref(), "cannot transition from %q to %q", c.Status, to)
	}
	from := c.Status
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveCycle(ctx, c); err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(c.Company, "billing_cycle", c.Ref(), actor, string(from), string(to), reason, c.UpdatedAt))
	return nil
}
