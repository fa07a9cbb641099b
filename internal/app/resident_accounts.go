/**
 * @description
 * Resident account service: occupant sub-ledgers with credit and spending
 * discipline. A charge is admitted only when it stays inside the credit
 * limit, the daily spending limit, and the approval threshold (unless an
 * approval token accompanies it). Deposited funds can be transferred up to
 * the parent property account, where they become a consumable credit entry.
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

// ResidentAccountService manages occupant sub-accounts.
type ResidentAccountService struct {
	repo             store.Repository
	creditExpiryDays int
}

// NewResidentAccountService creates a new resident account service instance.
// creditExpiryDays bounds the lifetime of credits produced by transfers; zero
// means no expiry.
func NewResidentAccountService(repo store.Repository, creditExpiryDays int) *ResidentAccountService {
	return &ResidentAccountService{repo: repo, creditExpiryDays: creditExpiryDays}
}

// OpenResidentAccountInput carries the fields of a new resident account.
type OpenResidentAccountInput struct {
	PropertyAccountID uuid.UUID
	ResidentName      string
	Type              domain.ResidentType
	// Limits overrides the per-type defaults when non-nil.
	Limits *domain.ResidentLimits
}

// Open creates a resident sub-account under an active property account. The
// account code is derived from the unit reference and a per-unit sequence.
func (s *ResidentAccountService) Open(ctx context.Context, in OpenResidentAccountInput) (*domain.ResidentAccount, error) {
	if in.ResidentName == "" {
		return nil, domain.NewError(domain.ErrValidation, "", "resident name is required")
	}
	if !domain.ValidResidentType(in.Type) {
		return nil, domain.NewError(domain.ErrValidation, "", "unknown resident type %q", in.Type)
	}

	pa, err := s.repo.FindPropertyAccountByID(ctx, in.PropertyAccountID)
	if err != nil {
		if errors.Is(err, store.ErrPropertyAccountNotFound) {
			return nil, domain.NewError(domain.ErrLinkIntegrity, "", "property account %s not found", in.PropertyAccountID)
		}
		return nil, fmt.Errorf("failed to find property account: %w", err)
	}
	if pa.Status != domain.AccountActive {
		return nil, domain.NewError(domain.ErrStateMachine, pa.Ref(), "property account is %q, resident accounts need an active parent", pa.Status)
	}

	limits := domain.DefaultLimitsFor(in.Type)
	if in.Limits != nil {
		limits = *in.Limits
	}
	if limits.CreditLimit.IsNegative() || !limits.DailySpendingLimit.IsPositive() || !limits.ApprovalThreshold.IsPositive() {
		return nil, domain.NewError(domain.ErrValidation, "", "limits must be non-negative, daily and approval limits positive")
	}

	seq, err := s.repo.CountResidentAccounts(ctx, pa.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count resident accounts: %w", err)
	}

	now := time.Now().UTC()
	ra := &domain.ResidentAccount{
		ID:                    uuid.New(),
		PropertyAccountID:     pa.ID,
		Company:               pa.Company,
		ResidentName:          in.ResidentName,
		AccountCode:           fmt.Sprintf("RES-%s-%03d", pa.PropertyRegistryRef, seq+1),
		Type:                  in.Type,
		Status:                domain.AccountActive,
		Limits:                limits,
		Balance:               decimal.Zero,
		LastTransactionAmount: decimal.Zero,
		SpentToday:            decimal.Zero,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.CreateResidentAccount(ctx, ra); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.ErrUniqueness, ra.Ref(), "resident %q already has an account under this property", in.ResidentName)
		}
		return nil, fmt.Errorf("failed to create resident account: %w", err)
	}
	log.Printf("OpenResidentAccount: opened %s (%s)", ra.Ref(), ra.Type)
	return ra, nil
}

// PostTransactionInput carries one resident ledger movement. A negative
// amount is a charge, a positive amount is a payment or deposit.
type PostTransactionInput struct {
	ResidentAccountID uuid.UUID
	Amount            decimal.Decimal
	Type              domain.ResidentTransactionType
	Reference         string
	// ApprovalToken authorizes charges at or above the approval threshold.
	ApprovalToken string
}

// PostTransaction admits one ledger movement against the resident account.
// Charges are checked against the credit limit, the daily spending limit, and
// the approval threshold, in that order.
func (s *ResidentAccountService) PostTransaction(ctx context.Context, in PostTransactionInput) (*domain.ResidentAccount, error) {
	if in.Amount.IsZero() {
		return nil, domain.NewError(domain.ErrValidation, "", "transaction amount must not be zero")
	}
	ra, err := s.find(ctx, in.ResidentAccountID)
	if err != nil {
		return nil, err
	}
	if ra.Status != domain.AccountActive {
		return nil, domain.NewError(domain.ErrStateMachine, ra.Ref(), "account is %q, only active accounts accept transactions", ra.Status)
	}

	now := time.Now().UTC()
	s.rollDailyWindow(ra, now)

	if in.Amount.IsNegative() {
		charge := in.Amount.Neg()
		newBalance := ra.Balance.Add(in.Amount)
		if newBalance.IsNegative() && newBalance.Neg().GreaterThan(ra.Limits.CreditLimit) {
			return nil, domain.NewError(domain.ErrInsufficientCredit, ra.Ref(),
				"charge of %s would exceed the credit limit of %s", charge, ra.Limits.CreditLimit)
		}
		if ra.SpentToday.Add(charge).GreaterThan(ra.Limits.DailySpendingLimit) {
			return nil, domain.NewError(domain.ErrLimitExceeded, ra.Ref(),
				"charge of %s would exceed the daily spending limit of %s", charge, ra.Limits.DailySpendingLimit)
		}
		if charge.GreaterThanOrEqual(ra.Limits.ApprovalThreshold) && in.ApprovalToken == "" {
			return nil, domain.NewError(domain.ErrApprovalRequired, ra.Ref(),
				"charge of %s meets the approval threshold of %s", charge, ra.Limits.ApprovalThreshold)
		}
		ra.SpentToday = domain.RoundMoney(ra.SpentToday.Add(charge))
	}

	ra.Balance = domain.RoundMoney(ra.Balance.Add(in.Amount))
	ra.LastTransactionAt = &now
	ra.LastTransactionAmount = domain.RoundMoney(in.Amount)
	ra.UpdatedAt = now
	if err := s.repo.SaveResidentAccount(ctx, ra); err != nil {
		return nil, fmt.Errorf("failed to save resident account: %w", err)
	}
	return ra, nil
}

// TransferToProperty moves deposited resident funds up to the parent property
// account, where they become a consumable credit entry. Transfers draw on the
// positive balance only, never on credit headroom.
func (s *ResidentAccountService) TransferToProperty(ctx context.Context, residentID uuid.UUID, amount decimal.Decimal, actor string) (*domain.CreditBalance, error) {
	if !amount.IsPositive() {
		return nil, domain.NewError(domain.ErrValidation, "", "transfer amount must be positive")
	}
	ra, err := s.find(ctx, residentID)
	if err != nil {
		return nil, err
	}
	if ra.Status != domain.AccountActive {
		return nil, domain.NewError(domain.ErrStateMachine, ra.Ref(), "account is %q, only active accounts transfer funds", ra.Status)
	}
	if ra.Balance.LessThan(amount) {
		return nil, domain.NewError(domain.ErrInsufficientCredit, ra.Ref(),
			"transfer of %s exceeds the deposited balance of %s", amount, ra.Balance)
	}

	now := time.Now().UTC()
	var expiry *time.Time
	if s.creditExpiryDays > 0 {
		e := now.AddDate(0, 0, s.creditExpiryDays)
		expiry = &e
	}
	cb := &domain.CreditBalance{
		ID:                uuid.New(),
		Company:           ra.Company,
		PropertyAccountID: ra.PropertyAccountID,
		ResidentAccountID: &ra.ID,
		Source:            domain.CreditSourceTransfer,
		Status:            domain.CreditAvailable,
		AutoApply:         true,
		OriginalAmount:    domain.RoundMoney(amount),
		RemainingAmount:   domain.RoundMoney(amount),
		IssuedAt:          now,
		ExpiryDate:        expiry,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateCredit(ctx, cb); err != nil {
		return nil, fmt.Errorf("failed to create credit entry: %w", err)
	}

	ra.Balance = domain.RoundMoney(ra.Balance.Sub(amount))
	ra.LastTransactionAt = &now
	ra.LastTransactionAmount = domain.RoundMoney(amount.Neg())
	ra.UpdatedAt = now
	if err := s.repo.SaveResidentAccount(ctx, ra); err != nil {
		return nil, fmt.Errorf("failed to save resident account: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(ra.Company, "resident_account", ra.Ref(), actor,
		string(ra.Status), string(ra.Status), fmt.Sprintf("transferred %s to property account", amount), now))
	log.Printf("TransferToProperty: %s moved %s to property account %s", ra.Ref(), amount, ra.PropertyAccountID)
	return cb, nil
}

// RequestCreditIncrease raises the account's credit limit. Increases beyond
// twice the per-type default need an approval token.
func (s *ResidentAccountService) RequestCreditIncrease(ctx context.Context, residentID uuid.UUID, newLimit decimal.Decimal, approvalToken, actor string) (*domain.ResidentAccount, error) {
	ra, err := s.find(ctx, residentID)
	if err != nil {
		return nil, err
	}
	if !newLimit.GreaterThan(ra.Limits.CreditLimit) {
		return nil, domain.NewError(domain.ErrValidation, ra.Ref(),
			"new credit limit %s must exceed the current limit %s", newLimit, ra.Limits.CreditLimit)
	}
	ceiling := domain.DefaultLimitsFor(ra.Type).CreditLimit.Mul(decimal.NewFromInt(2))
	if newLimit.GreaterThan(ceiling) && approvalToken == "" {
		return nil, domain.NewError(domain.ErrApprovalRequired, ra.Ref(),
			"credit limit above %s needs committee approval", ceiling)
	}

	old := ra.Limits.CreditLimit
	ra.Limits.CreditLimit = domain.RoundMoney(newLimit)
	ra.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveResidentAccount(ctx, ra); err != nil {
		return nil, fmt.Errorf("failed to save resident account: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(ra.Company, "resident_account", ra.Ref(), actor,
		string(ra.Status), string(ra.Status), fmt.Sprintf("credit limit raised from %s to %s", old, newLimit), ra.UpdatedAt))
	return ra, nil
}

// Suspend pauses a resident account.
func (s *ResidentAccountService) Suspend(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.ResidentAccount, error) {
	return s.transition(ctx, id, actor, domain.AccountSuspended, reason)
}

// Resume reactivates a suspended resident account.
func (s *ResidentAccountService) Resume(ctx context.Context, id uuid.UUID, actor string) (*domain.ResidentAccount, error) {
	return s.transition(ctx, id, actor, domain.AccountActive, "resumed")
}

// Close retires a resident account. A negative balance must be settled first.
func (s *ResidentAccountService) Close(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.ResidentAccount, error) {
	ra, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if ra.Balance.IsNegative() {
		return nil, domain.NewError(domain.ErrStateMachine, ra.Ref(), "cannot close with an outstanding balance of %s", ra.Balance)
	}
	return s.transition(ctx, id, actor, domain.AccountClosed, reason)
}

// Get loads a resident account by id.
func (s *ResidentAccountService) Get(ctx context.Context, id uuid.UUID) (*domain.ResidentAccount, error) {
	return s.find(ctx, id)
}

// rollDailyWindow zeroes the daily spend counter when the calendar day moved.
func (s *ResidentAccountService) rollDailyWindow(ra *domain.ResidentAccount, now time.Time) {
	if ra.SpentTodayDate == nil || !sameDay(*ra.SpentTodayDate, now) {
		ra.SpentToday = decimal.Zero
		day := now
		ra.SpentTodayDate = &day
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (s *ResidentAccountService) find(ctx context.Context, id uuid.UUID) (*domain.ResidentAccount, error) {
	ra, err := s.repo.FindResidentAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrResidentAccountNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "resident_account/"+id.String(), "resident account not found")
		}
		return nil, fmt.Errorf("failed to find resident account: %w", err)
	}
	return ra, nil
}

func (s *ResidentAccountService) transition(ctx context.Context, id uuid.UUID, actor string, to domain.AccountStatus, reason string) (*domain.ResidentAccount, error) {
	ra, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ra.Status.CanTransition(to) {
		return nil, domain.NewError(domain.ErrStateMachine, ra.Ref(), "cannot transition from %q to %q", ra.Status, to)
	}
	from := ra.Status
	ra.Status = to
	ra.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveResidentAccount(ctx, ra); err != nil {
		return nil, fmt.Errorf("failed to save resident account: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(ra.Company, "resident_account", ra.Ref(), actor, string(from), string(to), reason, ra.UpdatedAt))
	return ra, nil
}
