/**
 * @description
 * Property Account domain model: the per-unit ledger head. Running balance is
 * signed — positive means the unit holds credit, negative means the unit owes.
 * The invariant running_balance = Σ payments − Σ invoices-net-of-credits holds
 * at every committed point and is recomputed strongly at cycle close.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus is shared by property and resident accounts.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountActive:    {AccountSuspended, AccountClosed},
	AccountSuspended: {AccountActive, AccountClosed},
	AccountClosed:    {},
}

// CanTransition reports whether the account may move from -> to.
func (s AccountStatus) CanTransition(to AccountStatus) bool {
	for _, next := range accountTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// BillingFrequency is the cadence at which a property account is billed.
type BillingFrequency string

const (
	BillMonthly   BillingFrequency = "monthly"
	BillQuarterly BillingFrequency = "quarterly"
	BillAnnual    BillingFrequency = "annual"
)

// CustomerGroup restricts which external customer records an account may link.
type CustomerGroup string

const (
	GroupOwners    CustomerGroup = "Owners"
	GroupResidents CustomerGroup = "Residents"
)

// PropertyAccount is the ledger head attached to a single physical unit.
// Identity: (company, property_registry_ref), unique across the company.
type PropertyAccount struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	Company             string     `json:"company" db:"company"`
	PropertyRegistryRef string     `json:"property_registry_ref" db:"property_registry_ref"`
	CustomerRef         string     `json:"customer_ref" db:"customer_ref"`
	FeeStructureID      *uuid.UUID `json:"fee_structure_id,omitempty" db:"fee_structure_id"`

	Status         AccountStatus   `json:"status" db:"status"`
	RunningBalance decimal.Decimal `json:"running_balance" db:"running_balance"`

	LastPaymentDate   *time.Time      `json:"last_payment_date,omitempty" db:"last_payment_date"`
	LastPaymentAmount decimal.Decimal `json:"last_payment_amount" db:"last_payment_amount"`
	YTDPaid           decimal.Decimal `json:"ytd_paid" db:"ytd_paid"`
	YTDInvoiced       decimal.Decimal `json:"ytd_invoiced" db:"ytd_invoiced"`

	BillingFrequency     BillingFrequency `json:"billing_frequency" db:"billing_frequency"`
	BillingDay           int              `json:"billing_day" db:"billing_day"` // [1, 31]
	BillingStartDate     time.Time        `json:"billing_start_date" db:"billing_start_date"`
	AutoGenerateInvoices bool             `json:"auto_generate_invoices" db:"auto_generate_invoices"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (p *PropertyAccount) Ref() string {
	return "property_account/" + p.Company + "/" + p.PropertyRegistryRef
}

// PaymentSuccessRate is ytd_paid / ytd_invoiced in percent, zero when nothing
// has been invoiced yet.
func (p *PropertyAccount) PaymentSuccessRate() decimal.Decimal {
	if p.YTDInvoiced.IsZero() {
		return decimal.Zero
	}
	return RoundMoney(p.YTDPaid.Div(p.YTDInvoiced).Mul(decimal.NewFromInt(100)))
}

// PropertyAccountAggregates carries the derived figures recomputed from the
// invoice and payment history.
type PropertyAccountAggregates struct {
	PendingAmount       decimal.Decimal `json:"pending_amount"`
	PaymentSuccessRate  decimal.Decimal `json:"payment_success_rate"`
	AvgPaymentDelayDays decimal.Decimal `json:"avg_payment_delay_days"`
}
