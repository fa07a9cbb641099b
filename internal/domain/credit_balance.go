/**
 * @description
 * Credit Balance domain model: a unit-owned prepayment or overpayment consumed
 * against future invoices in FIFO order. The application log is append-only and
 * the invariant Σ applied + remaining = original amount holds at every commit.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditStatus enumerates the lifecycle of a credit balance entry.
type CreditStatus string

const (
	CreditAvailable        CreditStatus = "available"
	CreditPartiallyApplied CreditStatus = "partially_applied"
	CreditExhausted        CreditStatus = "exhausted"
	CreditExpired          CreditStatus = "expired"
)

// CreditExpiryPolicy decides what happens to remaining value at expiry.
type CreditExpiryPolicy string

const (
	ExpiryForfeit  CreditExpiryPolicy = "forfeit"
	ExpiryTransfer CreditExpiryPolicy = "transfer"
)

// CreditSource records where a credit came from.
type CreditSource string

const (
	CreditSourceOverpayment CreditSource = "overpayment"
	CreditSourcePrepayment  CreditSource = "prepayment"
	CreditSourceTransfer    CreditSource = "transfer"
	CreditSourceAdjustment  CreditSource = "adjustment"
)

// CreditBalance is an owned credit on a property or resident account.
type CreditBalance struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	Company           string       `json:"company" db:"company"`
	PropertyAccountID uuid.UUID    `json:"property_account_id" db:"property_account_id"`
	ResidentAccountID *uuid.UUID   `json:"resident_account_id,omitempty" db:"resident_account_id"`
	Source            CreditSource `json:"source" db:"source"`
	Status            CreditStatus `json:"status" db:"status"`

	// AutoApply lets cycle invoice generation consume this entry without an
	// explicit apply request. Explicit application ignores the toggle.
	AutoApply bool `json:"auto_apply" db:"auto_apply"`

	OriginalAmount  decimal.Decimal `json:"original_amount" db:"original_amount"` // > 0 at issuance
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`

	IssuedAt   time.Time  `json:"issued_at" db:"issued_at"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (c *CreditBalance) Ref() string {
	return "credit_balance/" + c.ID.String()
}

// Consumable reports whether the entry can still be applied to invoices.
func (c *CreditBalance) Consumable() bool {
	return (c.Status == CreditAvailable || c.Status == CreditPartiallyApplied) &&
		c.RemainingAmount.IsPositive()
}

// CreditApplication is one append-only row recording a consumption of credit
// against a single invoice.
type CreditApplication struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	CreditID      uuid.UUID       `json:"credit_id" db:"credit_id"`
	InvoiceID     uuid.UUID       `json:"invoice_id" db:"invoice_id"`
	AppliedAmount decimal.Decimal `json:"applied_amount" db:"applied_amount"`
	AppliedAt     time.Time       `json:"applied_at" db:"applied_at"`
}
