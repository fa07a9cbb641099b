/**
 * @description
 * Invoice domain model: the obligation a billing cycle raises against one
 * property account. The core emits invoice records and consumes outstanding
 * queries; rendering and delivery belong to the external document system.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks settlement of one invoice.
type InvoiceStatus string

const (
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceCancelled     InvoiceStatus = "cancelled"
)

// InvoiceLine is one line item derived from the fee breakdown.
type InvoiceLine struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is an obligation raised by a billing cycle against a property.
// Uniqueness: one invoice per (cycle, property) — generation is idempotent.
type Invoice struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	Company           string        `json:"company" db:"company"`
	BillingCycleID    uuid.UUID     `json:"billing_cycle_id" db:"billing_cycle_id"`
	PropertyAccountID uuid.UUID     `json:"property_account_id" db:"property_account_id"`
	CustomerRef       string        `json:"customer_ref" db:"customer_ref"`
	Status            InvoiceStatus `json:"status" db:"status"`

	Lines         []InvoiceLine   `json:"lines"`
	Total         decimal.Decimal `json:"total" db:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	CreditApplied decimal.Decimal `json:"credit_applied" db:"credit_applied"`

	IssuedDate time.Time `json:"issued_date" db:"issued_date"`
	DueDate    time.Time `json:"due_date" db:"due_date"`

	// LateFeeIssued guards the monotone late-fee rule: at most one late fee
	// per invoice per cycle sweep.
	LateFeeIssued bool `json:"late_fee_issued" db:"late_fee_issued"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (i *Invoice) Ref() string {
	return "invoice/" + i.ID.String()
}

// Outstanding is the unpaid remainder after payments and credits.
func (i *Invoice) Outstanding() decimal.Decimal {
	out := i.Total.Sub(i.PaidAmount).Sub(i.CreditApplied)
	if out.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(out)
}

// Settled reports whether nothing remains outstanding.
func (i *Invoice) Settled() bool {
	return i.Outstanding().IsZero()
}

// Overdue reports whether the invoice is unpaid past its due date.
func (i *Invoice) Overdue(asOf time.Time) bool {
	return i.Status != InvoiceCancelled && !i.Settled() && asOf.After(i.DueDate)
}
