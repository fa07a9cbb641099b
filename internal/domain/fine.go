/**
 * @description
 * Fine domain model: a penalty assessed against a property account with
 * severity, an escalation level, and a small state machine covering notify,
 * payment, dispute, and escalation paths. amount_due scales geometrically with
 * the escalation level; late fees accrue monthly after the due date.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FineStatus enumerates the fine state machine.
type FineStatus string

const (
	FineNew      FineStatus = "new"
	FineNotified FineStatus = "notified"
	FinePaid     FineStatus = "paid"
	FineDisputed FineStatus = "disputed"
	FineOverdue  FineStatus = "overdue"
	FineVoid     FineStatus = "void"
)

// fineTransitions is the allowed-transition table:
// New → Notified → (Paid | Disputed | Overdue); Disputed resolves to Overdue
// (upheld), Paid (reduced), or Void (overturned); Overdue may still be paid.
var fineTransitions = map[FineStatus][]FineStatus{
	FineNew:      {FineNotified},
	FineNotified: {FinePaid, FineDisputed, FineOverdue},
	FineDisputed: {FineOverdue, FinePaid, FineVoid},
	FineOverdue:  {FinePaid},
	FinePaid:     {},
	FineVoid:     {},
}

// CanTransition reports whether the fine may move from -> to.
func (s FineStatus) CanTransition(to FineStatus) bool {
	for _, next := range fineTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// FineSeverity grades a violation.
type FineSeverity string

const (
	SeverityLow      FineSeverity = "low"
	SeverityMedium   FineSeverity = "medium"
	SeverityHigh     FineSeverity = "high"
	SeverityCritical FineSeverity = "critical"
)

// ValidFineSeverity reports whether s is a recognized severity.
func ValidFineSeverity(s FineSeverity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// DisputeResolution is the operator verdict on a disputed fine.
type DisputeResolution string

const (
	DisputeUpheld     DisputeResolution = "upheld"
	DisputeReduced    DisputeResolution = "reduced"
	DisputeOverturned DisputeResolution = "overturned"
)

// Fine is a penalty against a property account.
type Fine struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	Company           string       `json:"company" db:"company"`
	PropertyAccountID uuid.UUID    `json:"property_account_id" db:"property_account_id"`
	BillingCycleID    *uuid.UUID   `json:"billing_cycle_id,omitempty" db:"billing_cycle_id"`
	InvoiceID         *uuid.UUID   `json:"invoice_id,omitempty" db:"invoice_id"`
	Category          string       `json:"category" db:"category"` // e.g. noise, parking, pet, late_payment
	Severity          FineSeverity `json:"severity" db:"severity"`
	Status            FineStatus   `json:"status" db:"status"`

	BaseAmount       decimal.Decimal  `json:"base_amount" db:"base_amount"`
	EscalationFactor decimal.Decimal  `json:"escalation_factor" db:"escalation_factor"`
	CurrentLevel     int              `json:"current_level" db:"current_level"` // >= 0
	LateFee          decimal.Decimal  `json:"late_fee" db:"late_fee"`
	PaidAmount       decimal.Decimal  `json:"paid_amount" db:"paid_amount"`
	ReducedAmount    *decimal.Decimal `json:"reduced_amount,omitempty" db:"reduced_amount"`

	AssessedAt  time.Time  `json:"assessed_at" db:"assessed_at"`
	DueDate     time.Time  `json:"due_date" db:"due_date"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty" db:"notified_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty" db:"escalated_at"`

	Description string `json:"description" db:"description"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (f *Fine) Ref() string {
	return "fine/" + f.ID.String()
}

// AmountDue is base_amount · escalation_factor^current_level, or the reduced
// amount fixed by a dispute resolution.
func (f *Fine) AmountDue() decimal.Decimal {
	if f.ReducedAmount != nil {
		return RoundMoney(*f.ReducedAmount)
	}
	due := f.BaseAmount
	for i := 0; i < f.CurrentLevel; i++ {
		due = due.Mul(f.EscalationFactor)
	}
	return RoundMoney(due)
}

// TotalDue is the escalated amount plus accrued late fees.
func (f *Fine) TotalDue() decimal.Decimal {
	return RoundMoney(f.AmountDue().Add(f.LateFee))
}

// MonthsOverdue counts whole months elapsed since the due date, floored.
func (f *Fine) MonthsOverdue(asOf time.Time) int {
	if !asOf.After(f.DueDate) {
		return 0
	}
	months := 0
	cursor := f.DueDate.AddDate(0, 1, 0)
	for !cursor.After(asOf) {
		months++
		cursor = cursor.AddDate(0, 1, 0)
	}
	return months
}

// AccruedLateFee computes the monthly-floored late fee for the fine:
// amount_due · rate · months_overdue.
func (f *Fine) AccruedLateFee(rate decimal.Decimal, asOf time.Time) decimal.Decimal {
	months := f.MonthsOverdue(asOf)
	if months == 0 {
		return decimal.Zero
	}
	return RoundMoney(f.AmountDue().Mul(rate).Mul(decimal.NewFromInt(int64(months))))
}
