/**
 * @description
 * Fine service: penalties against property accounts with notification,
 * dispute, and escalation paths. The escalation sweep walks fines past their
 * due date, flips notified ones overdue, raises the escalation level where
 * the interval has elapsed, and accrues monthly-floored late fees.
 *
 * Key features:
 * - amount_due scales geometrically with the escalation level.
 * - Escalation is bounded by a configurable maximum level; each escalation
 *   emits a fresh notification event.
 * - Dispute resolutions: upheld returns the fine to overdue, reduced settles
 *   it at the reduced amount, overturned voids it.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Notification and escalation events.
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

// financeEventsExchange is the topic exchange all finance events land on.
const financeEventsExchange = "finance_events"

// FineService manages fines and their escalation.
type FineService struct {
	repo     store.Repository
	producer rabbitmq.Publisher

	lateFeeRate  decimal.Decimal // monthly rate, e.g. 0.02
	maxLevels    int
	intervalDays int
}

// NewFineService creates a new fine service instance.
func NewFineService(repo store.Repository, producer rabbitmq.Publisher, lateFeeRate decimal.Decimal, maxLevels, intervalDays int) *FineService {
	return &FineService{
		repo:         repo,
		producer:     producer,
		lateFeeRate:  lateFeeRate,
		maxLevels:    maxLevels,
		intervalDays: intervalDays,
	}
}

// IssueFineInput carries the fields of a new fine.
type IssueFineInput struct {
	Company           string
	PropertyAccountID uuid.UUID
	BillingCycleID    *uuid.UUID
	InvoiceID         *uuid.UUID
	Category          string
	Severity          domain.FineSeverity
	BaseAmount        decimal.Decimal
	EscalationFactor  decimal.Decimal
	DueDate           time.Time
	Description       string
}

// Issue assesses a new fine in the New state.
func (s *FineService) Issue(ctx context.Context, in IssueFineInput) (*domain.Fine, error) {
	if !in.BaseAmount.IsPositive() {
		return nil, domain.NewError(domain.ErrValidation, "", "fine base amount must be positive")
	}
	if !domain.ValidFineSeverity(in.Severity) {
		return nil, domain.NewError(domain.ErrValidation, "", "unknown fine severity %q", in.Severity)
	}
	if in.Category == "" {
		return nil, domain.NewError(domain.ErrValidation, "", "fine category is required")
	}
	if in.EscalationFactor.LessThan(decimal.NewFromInt(1)) {
		return nil, domain.NewError(domain.ErrValidation, "", "escalation factor must be at least 1")
	}
	if _, err := s.repo.FindPropertyAccountByID(ctx, in.PropertyAccountID); err != nil {
		if errors.Is(err, store.ErrPropertyAccountNotFound) {
			return nil, domain.NewError(domain.ErrLinkIntegrity, "", "property account %s not found", in.PropertyAccountID)
		}
		return nil, fmt.Errorf("failed to find property account: %w", err)
	}

	now := time.Now().UTC()
	f := &domain.Fine{
		ID:                uuid.New(),
		Company:           in.Company,
		PropertyAccountID: in.PropertyAccountID,
		BillingCycleID:    in.BillingCycleID,
		InvoiceID:         in.InvoiceID,
		Category:          in.Category,
		Severity:          in.Severity,
		Status:            domain.FineNew,
		BaseAmount:        domain.RoundMoney(in.BaseAmount),
		EscalationFactor:  in.EscalationFactor,
		CurrentLevel:      0,
		LateFee:           decimal.Zero,
		PaidAmount:        decimal.Zero,
		AssessedAt:        now,
		DueDate:           in.DueDate,
		Description:       in.Description,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateFine(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to create fine: %w", err)
	}
	log.Printf("IssueFine: assessed %s (%s/%s) of %s", f.Ref(), f.Category, f.Severity, f.BaseAmount)
	return f, nil
}

// Notify moves a new fine into the notified state and publishes the
// notification event.
func (s *FineService) Notify(ctx context.Context, id uuid.UUID, actor string) (*domain.Fine, error) {
	f, err := s.transition(ctx, id, actor, domain.FineNotified, "notified", func(f *domain.Fine) {
		now := time.Now().UTC()
		f.NotifiedAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.publishNotification(ctx, f, rabbitmq.RoutingFineNotified)
	return f, nil
}

// MarkPaid settles a fine against the given payment amount. The recorded paid
// amount is capped at the remaining due; any excess becomes an overpayment
// credit on the property account.
func (s *FineService) MarkPaid(ctx context.Context, id uuid.UUID, amount decimal.Decimal, actor string) (*domain.Fine, error) {
	f, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	remaining := f.TotalDue().Sub(f.PaidAmount)
	if amount.LessThan(remaining) {
		return nil, domain.NewError(domain.ErrValidation, f.Ref(),
			"payment of %s does not cover the remaining %s", amount, remaining)
	}
	excess := domain.RoundMoney(amount.Sub(remaining))
	f, err = s.transition(ctx, id, actor, domain.FinePaid, "paid in full", func(f *domain.Fine) {
		now := time.Now().UTC()
		f.PaidAmount = f.TotalDue()
		f.ResolvedAt = &now
	})
	if err != nil {
		return nil, err
	}
	if excess.IsPositive() {
		if err := s.issueOverpaymentCredit(ctx, f, excess); err != nil {
			log.Printf("WARN: MarkPaid: failed to issue overpayment credit for %s: %v", f.Ref(), err)
		}
	}
	return f, nil
}

// issueOverpaymentCredit books the amount tendered beyond the fine's total due
// as a consumable credit.
func (s *FineService) issueOverpaymentCredit(ctx context.Context, f *domain.Fine, excess decimal.Decimal) error {
	now := time.Now().UTC()
	credit := &domain.CreditBalance{
		ID:                uuid.New(),
		Company:           f.Company,
		PropertyAccountID: f.PropertyAccountID,
		Source:            domain.CreditSourceOverpayment,
		Status:            domain.CreditAvailable,
		AutoApply:         true,
		OriginalAmount:    excess,
		RemainingAmount:   excess,
		IssuedAt:          now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateCredit(ctx, credit); err != nil {
		return err
	}
	log.Printf("MarkPaid: %s overpaid by %s, booked credit %s", f.Ref(), excess, credit.ID)
	return nil
}

// Dispute contests a notified fine.
func (s *FineService) Dispute(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.Fine, error) {
	return s.transition(ctx, id, actor, domain.FineDisputed, reason, nil)
}

// ResolveDispute settles a disputed fine: upheld sends it overdue, reduced
// fixes a lower amount and settles it, overturned voids it.
func (s *FineService) ResolveDispute(ctx context.Context, id uuid.UUID, resolution domain.DisputeResolution, reducedAmount *decimal.Decimal, actor string) (*domain.Fine, error) {
	switch resolution {
	case domain.DisputeUpheld:
		return s.transition(ctx, id, actor, domain.FineOverdue, "dispute upheld", nil)
	case domain.DisputeReduced:
		if reducedAmount == nil || !reducedAmount.IsPositive() {
			return nil, domain.NewError(domain.ErrValidation, "", "a positive reduced amount is required")
		}
		return s.transition(ctx, id, actor, domain.FinePaid, "dispute resolved at reduced amount", func(f *domain.Fine) {
			now := time.Now().UTC()
			reduced := domain.RoundMoney(*reducedAmount)
			f.ReducedAmount = &reduced
			f.PaidAmount = reduced
			f.ResolvedAt = &now
		})
	case domain.DisputeOverturned:
		return s.transition(ctx, id, actor, domain.FineVoid, "dispute overturned", func(f *domain.Fine) {
			now := time.Now().UTC()
			f.ResolvedAt = &now
		})
	default:
		return nil, domain.NewError(domain.ErrValidation, "", "unknown dispute resolution %q", resolution)
	}
}

// EscalationSweep walks fines past their due date: notified fines flip
// overdue, overdue fines below the level cap escalate once the interval has
// elapsed, and late fees are re-accrued. Empty company sweeps every company.
// Returns the number of fines escalated.
func (s *FineService) EscalationSweep(ctx context.Context, company string, asOf time.Time) (int, error) {
	fines, err := s.repo.ListOverdueFines(ctx, company, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue fines: %w", err)
	}

	escalated := 0
	for i := range fines {
		f := fines[i]
		changed := false

		if f.Status == domain.FineNotified {
			from := f.Status
			f.Status = domain.FineOverdue
			changed = true
			recordTransition(ctx, s.repo, newTransition(f.Company, "fine", f.Ref(), "system",
				string(from), string(domain.FineOverdue), "past due date", asOf))
		}

		if fee := f.AccruedLateFee(s.lateFeeRate, asOf); !fee.Equal(f.LateFee) {
			f.LateFee = fee
			changed = true
		}

		if f.Status == domain.FineOverdue && f.CurrentLevel < s.maxLevels && s.escalationDue(&f, asOf) {
			f.CurrentLevel++
			now := asOf
			f.EscalatedAt = &now
			changed = true
			escalated++
			recordTransition(ctx, s.repo, newTransition(f.Company, "fine", f.Ref(), "system",
				string(domain.FineOverdue), string(domain.FineOverdue),
				fmt.Sprintf("escalated to level %d, amount due %s", f.CurrentLevel, f.AmountDue()), asOf))
		}

		if !changed {
			continue
		}
		f.UpdatedAt = time.Now().UTC()
		if err := s.repo.SaveFine(ctx, &f); err != nil {
			log.Printf("WARN: EscalationSweep: failed to save %s: %v", f.Ref(), err)
			continue
		}
		if f.EscalatedAt != nil && f.EscalatedAt.Equal(asOf) {
			s.publishNotification(ctx, &f, rabbitmq.RoutingFineEscalated)
		}
	}
	if escalated > 0 {
		log.Printf("EscalationSweep: escalated %d fines as of %s", escalated, asOf.Format(time.RFC3339))
	}
	return escalated, nil
}

// escalationDue reports whether the escalation interval has elapsed since the
// last escalation, or since the due date for a first escalation.
func (s *FineService) escalationDue(f *domain.Fine, asOf time.Time) bool {
	since := f.DueDate
	if f.EscalatedAt != nil && f.EscalatedAt.After(since) {
		since = *f.EscalatedAt
	}
	return !asOf.Before(since.AddDate(0, 0, s.intervalDays))
}

// Get loads a fine by id.
func (s *FineService) Get(ctx context.Context, id uuid.UUID) (*domain.Fine, error) {
	return s.find(ctx, id)
}

// Outstanding lists the unresolved fines of a property account in assessment
// order.
func (s *FineService) Outstanding(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Fine, error) {
	return s.repo.ListOutstandingFines(ctx, propertyAccountID)
}

func (s *FineService) publishNotification(ctx context.Context, f *domain.Fine, routingKey string) {
	event := domain.FineNotificationEvent{
		Company:           f.Company,
		FineID:            f.ID,
		PropertyAccountID: f.PropertyAccountID,
		Category:          f.Category,
		Level:             f.CurrentLevel,
		AmountDue:         f.TotalDue().String(),
		Timestamp:         time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, financeEventsExchange, routingKey, event); err != nil {
		log.Printf("WARN: failed to publish %s for %s: %v", routingKey, f.Ref(), err)
	}
}

func (s *FineService) find(ctx context.Context, id uuid.UUID) (*domain.Fine, error) {
	f, err := s.repo.FindFineByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrFineNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "fine/"+id.String(), "fine not found")
		}
		return nil, fmt.Errorf("failed to find fine: %w", err)
	}
	return f, nil
}

func (s *FineService) transition(ctx context.Context, id uuid.UUID, actor string, to domain.FineStatus, reason string, mutate func(*domain.Fine)) (*domain.Fine, error) {
	f, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.Status.CanTransition(to) {
		return nil, domain.NewError(domain.ErrStateMachine, f.Ref(), "cannot transition from %q to %q", f.Status, to)
	}
	from := f.Status
	f.Status = to
	if mutate != nil {
		mutate(f)
	}
	f.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveFine(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to save fine: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(f.Company, "fine", f.Ref(), actor, string(from), string(to), reason, f.UpdatedAt))
	return f, nil
}
