/**
 * @description
 * Payment Collection domain model: one external money event, routed across
 * outstanding invoices, fines, and overflow-to-credit by the allocation
 * processor. A payment settles into Processed only when the whole allocation
 * commits; any failure leaves no partial writes.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus enumerates the payment state machine.
type PaymentStatus string

const (
	PaymentPending     PaymentStatus = "pending"
	PaymentReconciling PaymentStatus = "reconciling"
	PaymentProcessed   PaymentStatus = "processed"
	PaymentFailed      PaymentStatus = "failed"
	PaymentRejected    PaymentStatus = "rejected"
	PaymentRefunded    PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:     {PaymentProcessed, PaymentReconciling, PaymentFailed, PaymentRejected},
	PaymentReconciling: {PaymentProcessed, PaymentFailed, PaymentRejected},
	PaymentFailed:      {PaymentPending}, // operator re-queue, bounded by retry counter
	PaymentProcessed:   {PaymentRefunded},
	PaymentRejected:    {},
	PaymentRefunded:    {},
}

// CanTransition reports whether the payment may move from -> to.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod enumerates accepted collection channels.
type PaymentMethod string

const (
	MethodBankTransfer  PaymentMethod = "bank_transfer"
	MethodCash          PaymentMethod = "cash"
	MethodCheck         PaymentMethod = "check"
	MethodCard          PaymentMethod = "card"
	MethodDigitalWallet PaymentMethod = "digital_wallet"
)

// ValidPaymentMethod reports whether m is a recognized method.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case MethodBankTransfer, MethodCash, MethodCheck, MethodCard, MethodDigitalWallet:
		return true
	}
	return false
}

// PaymentSplit is the optional declared breakdown of a gross amount.
// The components must sum to the gross amount.
type PaymentSplit struct {
	Maintenance decimal.Decimal `json:"maintenance"`
	Utilities   decimal.Decimal `json:"utilities"`
	Fines       decimal.Decimal `json:"fines"`
	Other       decimal.Decimal `json:"other"`
}

// Sum adds the split components.
func (s PaymentSplit) Sum() decimal.Decimal {
	return s.Maintenance.Add(s.Utilities).Add(s.Fines).Add(s.Other)
}

// Payment is one external money event against a property account.
type Payment struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	Company            string        `json:"company" db:"company"`
	PropertyAccountID  uuid.UUID     `json:"property_account_id" db:"property_account_id"`
	ResidentAccountID  *uuid.UUID    `json:"resident_account_id,omitempty" db:"resident_account_id"`
	ConfirmationNumber string        `json:"confirmation_number" db:"confirmation_number"`
	Status             PaymentStatus `json:"status" db:"status"`
	Method             PaymentMethod `json:"method" db:"method"`

	Amount         decimal.Decimal `json:"amount" db:"amount"` // gross, > 0
	ServiceCharge  decimal.Decimal `json:"service_charge" db:"service_charge"`
	Discount       decimal.Decimal `json:"discount" db:"discount"`
	CommissionRate decimal.Decimal `json:"commission_rate" db:"commission_rate"` // [0, 100]
	Split          *PaymentSplit   `json:"split,omitempty"`

	// BankReportedAmount is the amount the bank statement carries, when it
	// differs from the recorded amount reconciliation kicks in.
	BankReportedAmount *decimal.Decimal `json:"bank_reported_amount,omitempty" db:"bank_reported_amount"`
	VarianceAdjustment decimal.Decimal  `json:"variance_adjustment" db:"variance_adjustment"`

	PostedDate    time.Time  `json:"posted_date" db:"posted_date"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	FailureReason *string    `json:"failure_reason,omitempty" db:"failure_reason"`
	RetryCount    int        `json:"retry_count" db:"retry_count"`

	Reference string `json:"reference" db:"reference"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (p *Payment) Ref() string {
	ref := "payment/" + p.ID.String()
	if n := strings.TrimSpace(p.ConfirmationNumber); n != "" {
		ref = "payment/" + n
	}
	return ref
}

// NetAmount is gross − service_charge − discount − commission.
func (p *Payment) NetAmount() decimal.Decimal {
	commission := p.Amount.Mul(Percent(p.CommissionRate))
	net := p.Amount.Sub(p.ServiceCharge).Sub(p.Discount).Sub(commission)
	return RoundMoney(net)
}

// AllocationTargetKind distinguishes where a slice of a payment landed.
type AllocationTargetKind string

const (
	AllocInvoice AllocationTargetKind = "invoice"
	AllocFine    AllocationTargetKind = "fine"
	AllocCredit  AllocationTargetKind = "credit"
)

// PaymentAllocation is one applied slice of a processed payment.
type PaymentAllocation struct {
	ID        uuid.UUID            `json:"id" db:"id"`
	PaymentID uuid.UUID            `json:"payment_id" db:"payment_id"`
	Kind      AllocationTargetKind `json:"kind" db:"kind"`
	TargetID  uuid.UUID            `json:"target_id" db:"target_id"`
	Amount    decimal.Decimal      `json:"amount" db:"amount"`
	AppliedAt time.Time            `json:"applied_at" db:"applied_at"`
}

// AllocationStep names one stage of the configurable allocation order.
type AllocationStep string

const (
	StepOldestInvoices AllocationStep = "oldest_invoices"
	StepFines          AllocationStep = "fines"
	StepCurrentCycle   AllocationStep = "current_cycle"
	StepCreditOverflow AllocationStep = "credit_overflow"
)

// DefaultAllocationOrder routes money to the oldest unpaid invoices first,
// then outstanding fines, then the current cycle's invoices, with any
// remainder overflowing to a new credit balance entry.
func DefaultAllocationOrder() []AllocationStep {
	return []AllocationStep{StepOldestInvoices, StepFines, StepCurrentCycle, StepCreditOverflow}
}

// ParseAllocationOrder parses a comma-separated order override. Unknown tokens
// fail; the credit overflow step is appended when omitted so money never
// disappears.
func ParseAllocationOrder(s string) ([]AllocationStep, bool) {
	if strings.TrimSpace(s) == "" {
		return DefaultAllocationOrder(), true
	}
	var order []AllocationStep
	seenOverflow := false
	for _, tok := range strings.Split(s, ",") {
		step := AllocationStep(strings.TrimSpace(tok))
		switch step {
		case StepOldestInvoices, StepFines, StepCurrentCycle:
		case StepCreditOverflow:
			seenOverflow = true
		default:
			return nil, false
		}
		order = append(order, step)
	}
	if !seenOverflow {
		order = append(order, StepCreditOverflow)
	}
	return order, true
}

// VarianceTolerance bounds within which a bank/system amount mismatch is
// auto-reconciled rather than escalated to manual review.
type VarianceTolerance struct {
	Absolute decimal.Decimal `json:"absolute"`
	Percent  decimal.Decimal `json:"percent"`
}

// Within reports whether the given variance is auto-adjustable against the
// recorded amount.
func (t VarianceTolerance) Within(recorded, variance decimal.Decimal) bool {
	abs := variance.Abs()
	if t.Absolute.IsPositive() && abs.LessThanOrEqual(t.Absolute) {
		return true
	}
	if t.Percent.IsPositive() && recorded.IsPositive() {
		pct := abs.Div(recorded).Mul(decimal.NewFromInt(100))
		if pct.LessThanOrEqual(t.Percent) {
			return true
		}
	}
	return false
}
