/**
 * @description
 * Credit balance service: unit-owned prepayments and overpayments consumed
 * against invoices in FIFO order. Issuance, application, and expiry all keep
 * the invariant Σ applied + remaining = original amount; the application log
 * is append-only.
 *
 * Key features:
 * - ApplyToInvoice walks consumable credits oldest-first and commits each
 *   consumption atomically with the invoice and account post-state.
 * - ExpireStale forfeits remaining value or, under the transfer policy,
 *   returns it to the property's running balance.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
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
)

// CreditService manages credit balance entries and their application.
type CreditService struct {
	repo         store.Repository
	expiryPolicy domain.CreditExpiryPolicy
}

// NewCreditService creates a new credit service instance.
func NewCreditService(repo store.Repository, expiryPolicy domain.CreditExpiryPolicy) *CreditService {
	return &CreditService{repo: repo, expiryPolicy: expiryPolicy}
}

// IssueCreditInput carries the fields of a new credit entry.
type IssueCreditInput struct {
	PropertyAccountID uuid.UUID
	ResidentAccountID *uuid.UUID
	Amount            decimal.Decimal
	Source            domain.CreditSource
	ExpiryDate        *time.Time
	// AutoApply defaults to on when nil.
	AutoApply *bool
}

// Issue creates a new Available credit entry on a property account.
func (s *CreditService) Issue(ctx context.Context, in IssueCreditInput) (*domain.CreditBalance, error) {
	if !in.Amount.IsPositive() {
		return nil, domain.NewError(domain.ErrValidation, "", "credit amount must be positive")
	}
	switch in.Source {
	case domain.CreditSourceOverpayment, domain.CreditSourcePrepayment, domain.CreditSourceTransfer, domain.CreditSourceAdjustment:
	default:
		return nil, domain.NewError(domain.ErrValidation, "", "unknown credit source %q", in.Source)
	}

	pa, err := s.repo.FindPropertyAccountByID(ctx, in.PropertyAccountID)
	if err != nil {
		if errors.Is(err, store.ErrPropertyAccountNotFound) {
			return nil, domain.NewError(domain.ErrLinkIntegrity, "", "property account %s not found", in.PropertyAccountID)
		}
		return nil, fmt.Errorf("failed to find property account: %w", err)
	}

	autoApply := in.AutoApply == nil || *in.AutoApply

	now := time.Now().UTC()
	cb := &domain.CreditBalance{
		ID:                uuid.New(),
		Company:           pa.Company,
		PropertyAccountID: pa.ID,
		ResidentAccountID: in.ResidentAccountID,
		Source:            in.Source,
		Status:            domain.CreditAvailable,
		AutoApply:         autoApply,
		OriginalAmount:    domain.RoundMoney(in.Amount),
		RemainingAmount:   domain.RoundMoney(in.Amount),
		IssuedAt:          now,
		ExpiryDate:        in.ExpiryDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateCredit(ctx, cb); err != nil {
		return nil, fmt.Errorf("failed to create credit entry: %w", err)
	}
	log.Printf("IssueCredit: issued %s of %s on %s (%s)", cb.Ref(), cb.OriginalAmount, pa.Ref(), cb.Source)
	return cb, nil
}

// ApplyToInvoice consumes the account's credits against one invoice in FIFO
// order (oldest issued first, smaller original amount breaking ties) until
// the invoice settles or the credits run out. Returns the total applied.
func (s *CreditService) ApplyToInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return s.apply(ctx, invoiceID, false)
}

// AutoApplyToInvoice is the invoice-generation path: same FIFO walk, but
// entries issued with auto-apply off are left untouched.
func (s *CreditService) AutoApplyToInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return s.apply(ctx, invoiceID, true)
}

func (s *CreditService) apply(ctx context.Context, invoiceID uuid.UUID, autoOnly bool) (decimal.Decimal, error) {
	inv, err := s.repo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, store.ErrInvoiceNotFound) {
			return decimal.Zero, domain.NewError(domain.ErrValidation, "invoice/"+invoiceID.String(), "invoice not found")
		}
		return decimal.Zero, fmt.Errorf("failed to find invoice: %w", err)
	}
	if inv.Status == domain.InvoiceCancelled {
		return decimal.Zero, domain.NewError(domain.ErrStateMachine, inv.Ref(), "cannot apply credit to a cancelled invoice")
	}
	if inv.Settled() {
		return decimal.Zero, nil
	}

	account, err := s.repo.FindPropertyAccountByID(ctx, inv.PropertyAccountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to find property account: %w", err)
	}
	credits, err := s.repo.ListConsumableCredits(ctx, inv.PropertyAccountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list credits: %w", err)
	}

	applied := decimal.Zero
	for i := range credits {
		outstanding := inv.Outstanding()
		if outstanding.IsZero() {
			break
		}
		credit := credits[i]
		if autoOnly && !credit.AutoApply {
			continue
		}
		take := decimal.Min(credit.RemainingAmount, outstanding)
		if !take.IsPositive() {
			continue
		}

		now := time.Now().UTC()
		credit.RemainingAmount = domain.RoundMoney(credit.RemainingAmount.Sub(take))
		if credit.RemainingAmount.IsZero() {
			credit.Status = domain.CreditExhausted
		} else {
			credit.Status = domain.CreditPartiallyApplied
		}
		credit.UpdatedAt = now

		inv.CreditApplied = domain.RoundMoney(inv.CreditApplied.Add(take))
		if inv.Settled() {
			inv.Status = domain.InvoicePaid
		} else {
			inv.Status = domain.InvoicePartiallyPaid
		}
		inv.UpdatedAt = now

		// Credits reduce the invoice net, which the running balance tracks.
		account.RunningBalance = domain.RoundMoney(account.RunningBalance.Add(take))
		account.UpdatedAt = now

		app := &domain.CreditApplication{
			ID:            uuid.New(),
			CreditID:      credit.ID,
			InvoiceID:     inv.ID,
			AppliedAmount: take,
			AppliedAt:     now,
		}
		if err := s.repo.AppendCreditApplication(ctx, app, &credit, inv, account); err != nil {
			return applied, fmt.Errorf("failed to append credit application: %w", err)
		}
		applied = applied.Add(take)
	}

	if applied.IsPositive() {
		log.Printf("ApplyCredit: applied %s to %s across the account's credits", applied, inv.Ref())
	}
	return domain.RoundMoney(applied), nil
}

// ExpireStale retires credits whose expiry date has passed. Under forfeit the
// remaining value lapses; under transfer it returns to the property's running
// balance. Returns the number of entries expired.
func (s *CreditService) ExpireStale(ctx context.Context, asOf time.Time) (int, error) {
	stale, err := s.repo.ListExpiredCredits(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired credits: %w", err)
	}

	expired := 0
	for i := range stale {
		credit := stale[i]
		from := credit.Status
		credit.Status = domain.CreditExpired
		credit.UpdatedAt = time.Now().UTC()
		if err := s.repo.SaveCredit(ctx, &credit); err != nil {
			log.Printf("WARN: ExpireStale: failed to save %s: %v", credit.Ref(), err)
			continue
		}

		reason := fmt.Sprintf("expired, %s forfeited", credit.RemainingAmount)
		if s.expiryPolicy == domain.ExpiryTransfer {
			account, err := s.repo.FindPropertyAccountByID(ctx, credit.PropertyAccountID)
			if err != nil {
				log.Printf("WARN: ExpireStale: failed to find account for %s: %v", credit.Ref(), err)
			} else {
				account.RunningBalance = domain.RoundMoney(account.RunningBalance.Add(credit.RemainingAmount))
				account.UpdatedAt = credit.UpdatedAt
				if err := s.repo.SavePropertyAccount(ctx, account); err != nil {
					log.Printf("WARN: ExpireStale: failed to save account for %s: %v", credit.Ref(), err)
				} else {
					reason = fmt.Sprintf("expired, %s transferred to running balance", credit.RemainingAmount)
				}
			}
		}

		recordTransition(ctx, s.repo, newTransition(credit.Company, "credit_balance", credit.Ref(), "system",
			string(from), string(domain.CreditExpired), reason, credit.UpdatedAt))
		expired++
	}
	if expired > 0 {
		log.Printf("ExpireStale: expired %d credit entries as of %s", expired, asOf.Format(time.RFC3339))
	}
	return expired, nil
}

// Get loads a credit entry by id.
func (s *CreditService) Get(ctx context.Context, id uuid.UUID) (*domain.CreditBalance, error) {
	cb, err := s.repo.FindCreditByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrCreditNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "credit_balance/"+id.String(), "credit balance not found")
		}
		return nil, fmt.Errorf("failed to find credit balance: %w", err)
	}
	return cb, nil
}

// Applications returns the append-only application log of one credit entry.
func (s *CreditService) Applications(ctx context.Context, creditID uuid.UUID) ([]domain.CreditApplication, error) {
	return s.repo.ListCreditApplications(ctx, creditID)
}
