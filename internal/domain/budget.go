/**
 * @description
 * Budget Plan domain model: a period-bounded forecast of income and expenses.
 * Actuals are fed from billing-cycle and payment aggregates; the plan never
 * writes back to the cycles it reads.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetStatus enumerates the budget plan lifecycle.
type BudgetStatus string

const (
	BudgetDraft     BudgetStatus = "draft"
	BudgetInReview  BudgetStatus = "in_review"
	BudgetApproved  BudgetStatus = "approved"
	BudgetActive    BudgetStatus = "active"
	BudgetClosed    BudgetStatus = "closed"
	BudgetCancelled BudgetStatus = "cancelled"
)

var budgetTransitions = map[BudgetStatus][]BudgetStatus{
	BudgetDraft:     {BudgetInReview, BudgetCancelled},
	BudgetInReview:  {BudgetApproved, BudgetDraft, BudgetCancelled},
	BudgetApproved:  {BudgetActive, BudgetCancelled},
	BudgetActive:    {BudgetClosed},
	BudgetClosed:    {},
	BudgetCancelled: {},
}

// CanTransition reports whether the budget may move from -> to.
func (s BudgetStatus) CanTransition(to BudgetStatus) bool {
	for _, next := range budgetTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// BudgetPeriodType bounds the plan window.
type BudgetPeriodType string

const (
	PeriodAnnual     BudgetPeriodType = "annual"
	PeriodSemiannual BudgetPeriodType = "semiannual"
	PeriodQuarterly  BudgetPeriodType = "quarterly"
	PeriodMonthly    BudgetPeriodType = "monthly"
)

// ValidBudgetPeriodType reports whether t is recognized.
func ValidBudgetPeriodType(t BudgetPeriodType) bool {
	switch t {
	case PeriodAnnual, PeriodSemiannual, PeriodQuarterly, PeriodMonthly:
		return true
	}
	return false
}

// BudgetLineKind separates income lines from expense lines.
type BudgetLineKind string

const (
	LineIncome  BudgetLineKind = "income"
	LineExpense BudgetLineKind = "expense"
)

// BudgetLine is one category forecast with its actual fed from aggregates.
type BudgetLine struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	BudgetID uuid.UUID       `json:"budget_id" db:"budget_id"`
	Category string          `json:"category" db:"category"`
	Kind     BudgetLineKind  `json:"kind" db:"kind"`
	Budgeted decimal.Decimal `json:"budgeted" db:"budgeted"`
	Actual   decimal.Decimal `json:"actual" db:"actual"`
}

// Variance is actual − budgeted.
func (l *BudgetLine) Variance() decimal.Decimal {
	return RoundMoney(l.Actual.Sub(l.Budgeted))
}

// VariancePct is the variance relative to the budgeted figure, in percent.
func (l *BudgetLine) VariancePct() decimal.Decimal {
	if l.Budgeted.IsZero() {
		return decimal.Zero
	}
	return RoundMoney(l.Variance().Div(l.Budgeted).Mul(decimal.NewFromInt(100)))
}

// BudgetPlan is a forecast record.
// Identity: (company, period_type, year, period_index).
type BudgetPlan struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	Company     string           `json:"company" db:"company"`
	PeriodType  BudgetPeriodType `json:"period_type" db:"period_type"`
	Year        int              `json:"year" db:"year"`
	PeriodIndex int              `json:"period_index" db:"period_index"` // 0 for annual
	Status      BudgetStatus     `json:"status" db:"status"`

	Lines []BudgetLine `json:"lines"`

	ApprovedBy *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" db:"approved_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (b *BudgetPlan) Ref() string {
	return "budget_plan/" + b.Company + "/" + string(b.PeriodType)
}

// ComplianceScore grades plan adherence coarsely from the absolute variance
// percentage across lines: 100 at perfect adherence, decreasing with drift.
func (b *BudgetPlan) ComplianceScore() decimal.Decimal {
	if len(b.Lines) == 0 {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	totalDrift := decimal.Zero
	for _, line := range b.Lines {
		totalDrift = totalDrift.Add(line.VariancePct().Abs())
	}
	avgDrift := totalDrift.Div(decimal.NewFromInt(int64(len(b.Lines))))
	score := hundred.Sub(avgDrift)
	if score.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(score)
}
