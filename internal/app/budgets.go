/**
 * @description
 * Budget service: period-bounded income and expense forecasts. The plan moves
 * through draft, review, approval, and execution; actuals for the income
 * lines are fed from the billing-cycle aggregates of the period, and the plan
 * never writes back to the cycles it reads.
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

// Budget line categories fed from cycle aggregates.
const (
	CategoryMaintenanceIncome = "maintenance_income"
	CategoryLateFeeIncome     = "late_fee_income"
)

// BudgetService manages budget plans.
type BudgetService struct {
	repo store.Repository
}

// NewBudgetService creates a new budget service instance.
func NewBudgetService(repo store.Repository) *BudgetService {
	return &BudgetService{repo: repo}
}

// BudgetLineInput carries one forecast line of a new plan.
type BudgetLineInput struct {
	Category string
	Kind     domain.BudgetLineKind
	Budgeted decimal.Decimal
}

// CreateBudgetInput carries the fields of a new budget plan.
type CreateBudgetInput struct {
	Company     string
	PeriodType  domain.BudgetPeriodType
	Year        int
	PeriodIndex int
	Lines       []BudgetLineInput
}

// Create validates the input and persists a new Draft plan. One plan per
// (company, period type, year, period index).
func (s *BudgetService) Create(ctx context.Context, in CreateBudgetInput) (*domain.BudgetPlan, error) {
	if !domain.ValidBudgetPeriodType(in.PeriodType) {
		return nil, domain.NewError(domain.ErrValidation, "", "unknown period type %q", in.PeriodType)
	}
	if in.Year < 2000 || in.Year > 2200 {
		return nil, domain.NewError(domain.ErrValidation, "", "implausible budget year %d", in.Year)
	}
	if err := validatePeriodIndex(in.PeriodType, in.PeriodIndex); err != nil {
		return nil, err
	}
	if len(in.Lines) == 0 {
		return nil, domain.NewError(domain.ErrValidation, "", "a budget plan needs at least one line")
	}

	now := time.Now().UTC()
	b := &domain.BudgetPlan{
		ID:          uuid.New(),
		Company:     in.Company,
		PeriodType:  in.PeriodType,
		Year:        in.Year,
		PeriodIndex: in.PeriodIndex,
		Status:      domain.BudgetDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, line := range in.Lines {
		if line.Category == "" {
			return nil, domain.NewError(domain.ErrValidation, "", "budget line category is required")
		}
		if line.Kind != domain.LineIncome && line.Kind != domain.LineExpense {
			return nil, domain.NewError(domain.ErrValidation, "", "unknown budget line kind %q", line.Kind)
		}
		if line.Budgeted.IsNegative() {
			return nil, domain.NewError(domain.ErrValidation, "", "budgeted amount for %q must not be negative", line.Category)
		}
		b.Lines = append(b.Lines, domain.BudgetLine{
			ID:       uuid.New(),
			BudgetID: b.ID,
			Category: line.Category,
			Kind:     line.Kind,
			Budgeted: domain.RoundMoney(line.Budgeted),
			Actual:   decimal.Zero,
		})
	}

	if err := s.repo.CreateBudget(ctx, b); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.ErrUniqueness, b.Ref(),
				"a plan already exists for %s %d/%d", in.PeriodType, in.Year, in.PeriodIndex)
		}
		return nil, fmt.Errorf("failed to create budget plan: %w", err)
	}
	log.Printf("CreateBudget: created %s for %s %d/%d with %d lines", b.Ref(), b.PeriodType, b.Year, b.PeriodIndex, len(b.Lines))
	return b, nil
}

// SubmitForReview moves a draft plan into review.
func (s *BudgetService) SubmitForReview(ctx context.Context, id uuid.UUID, actor string) (*domain.BudgetPlan, error) {
	return s.transition(ctx, id, actor, domain.BudgetInReview, "submitted for review", nil)
}

// ReturnToDraft sends a plan under review back for edits.
func (s *BudgetService) ReturnToDraft(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.BudgetPlan, error) {
	return s.transition(ctx, id, actor, domain.BudgetDraft, reason, nil)
}

// Approve records the approver on a reviewed plan.
func (s *BudgetService) Approve(ctx context.Context, id uuid.UUID, approver string) (*domain.BudgetPlan, error) {
	if approver == "" {
		return nil, domain.NewError(domain.ErrValidation, "", "approver is required")
	}
	now := time.Now().UTC()
	return s.transition(ctx, id, approver, domain.BudgetApproved, "approved", func(b *domain.BudgetPlan) {
		b.ApprovedBy = &approver
		b.ApprovedAt = &now
	})
}

// Activate puts an approved plan into execution.
func (s *BudgetService) Activate(ctx context.Context, id uuid.UUID, actor string) (*domain.BudgetPlan, error) {
	return s.transition(ctx, id, actor, domain.BudgetActive, "activated", nil)
}

// Close finishes an active plan after a final actuals refresh.
func (s *BudgetService) Close(ctx context.Context, id uuid.UUID, actor string) (*domain.BudgetPlan, error) {
	if _, err := s.RefreshActuals(ctx, id); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, actor, domain.BudgetClosed, "closed", nil)
}

// Cancel abandons a plan before execution.
func (s *BudgetService) Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.BudgetPlan, error) {
	return s.transition(ctx, id, actor, domain.BudgetCancelled, reason, nil)
}

// RefreshActuals feeds the income lines from the billing cycles inside the
// plan's window: maintenance income from collections, late fee income from
// the late fee aggregates. Expense lines keep their externally-fed actuals.
func (s *BudgetService) RefreshActuals(ctx context.Context, id uuid.UUID) (*domain.BudgetPlan, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	from, to := periodWindow(b.PeriodType, b.Year, b.PeriodIndex)
	cycles, err := s.repo.ListCyclesInWindow(ctx, b.Company, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles in window: %w", err)
	}

	collected := decimal.Zero
	lateFees := decimal.Zero
	for i := range cycles {
		collected = collected.Add(cycles[i].Aggregates.TotalCollected)
		lateFees = lateFees.Add(cycles[i].Aggregates.TotalLateFees)
	}

	for i := range b.Lines {
		switch b.Lines[i].Category {
		case CategoryMaintenanceIncome:
			b.Lines[i].Actual = domain.RoundMoney(collected)
		case CategoryLateFeeIncome:
			b.Lines[i].Actual = domain.RoundMoney(lateFees)
		}
	}

	b.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveBudget(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save budget plan: %w", err)
	}
	return b, nil
}

// RecordExpenseActual sets the actual on one expense line.
func (s *BudgetService) RecordExpenseActual(ctx context.Context, id uuid.UUID, category string, actual decimal.Decimal) (*domain.BudgetPlan, error) {
	if actual.IsNegative() {
		return nil, domain.NewError(domain.ErrValidation, "", "actual amount must not be negative")
	}
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range b.Lines {
		if b.Lines[i].Category == category && b.Lines[i].Kind == domain.LineExpense {
			b.Lines[i].Actual = domain.RoundMoney(actual)
			found = true
			break
		}
	}
	if !found {
		return nil, domain.NewError(domain.ErrValidation, b.Ref(), "no expense line with category %q", category)
	}
	b.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveBudget(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save budget plan: %w", err)
	}
	return b, nil
}

// Get loads a budget plan by id.
func (s *BudgetService) Get(ctx context.Context, id uuid.UUID) (*domain.BudgetPlan, error) {
	return s.find(ctx, id)
}

// GetByPeriod loads a plan by its period identity.
func (s *BudgetService) GetByPeriod(ctx context.Context, company string, periodType domain.BudgetPeriodType, year, periodIndex int) (*domain.BudgetPlan, error) {
	b, err := s.repo.FindBudgetByPeriod(ctx, company, periodType, year, periodIndex)
	if err != nil {
		if errors.Is(err, store.ErrBudgetNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "", "no budget plan for %s %d/%d", periodType, year, periodIndex)
		}
		return nil, fmt.Errorf("failed to find budget plan: %w", err)
	}
	return b, nil
}

func (s *BudgetService) find(ctx context.Context, id uuid.UUID) (*domain.BudgetPlan, error) {
	b, err := s.repo.FindBudgetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrBudgetNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "budget_plan/"+id.String(), "budget plan not found")
		}
		return nil, fmt.Errorf("failed to find budget plan: %w", err)
	}
	return b, nil
}

func (s *BudgetService) transition(ctx context.Context, id uuid.UUID, actor string, to domain.BudgetStatus, reason string, mutate func(*domain.BudgetPlan)) (*domain.BudgetPlan, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransition(to) {
		return nil, domain.NewError(domain.ErrStateMachine, b.Ref(), "cannot transition from %q to %q", b.Status, to)
	}
	from := b.Status
	b.Status = to
	if mutate != nil {
		mutate(b)
	}
	b.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveBudget(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to save budget plan: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(b.Company, "budget_plan", b.Ref(), actor, string(from), string(to), reason, b.UpdatedAt))
	return b, nil
}

// validatePeriodIndex bounds the index: 0 for annual, 1..2 semiannual,
// 1..4 quarterly, 1..12 monthly.
func validatePeriodIndex(t domain.BudgetPeriodType, idx int) error {
	max := 0
	switch t {
	case domain.PeriodAnnual:
		max = 0
	case domain.PeriodSemiannual:
		max = 2
	case domain.PeriodQuarterly:
		max = 4
	case domain.PeriodMonthly:
		max = 12
	}
	if max == 0 {
		if idx != 0 {
			return domain.NewError(domain.ErrValidation, "", "annual plans use period index 0, got %d", idx)
		}
		return nil
	}
	if idx < 1 || idx > max {
		return domain.NewError(domain.ErrValidation, "", "period index must be within [1, %d] for %s plans, got %d", max, t, idx)
	}
	return nil
}

// periodWindow returns the [from, to) bounds of one budget period.
func periodWindow(t domain.BudgetPeriodType, year, idx int) (time.Time, time.Time) {
	switch t {
	case domain.PeriodMonthly:
		from := time.Date(year, time.Month(idx), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0)
	case domain.PeriodQuarterly:
		from := time.Date(year, time.Month((idx-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 3, 0)
	case domain.PeriodSemiannual:
		from := time.Date(year, time.Month((idx-1)*6+1), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 6, 0)
	default:
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0)
	}
}
