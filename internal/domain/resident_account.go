/**
 * @description
 * Resident Account domain model: a sub-ledger beneath a property account scoped
 * to one occupant, with its own credit and spending discipline. A charge is
 * admitted only when it stays inside the credit limit, the daily spending
 * limit, and the approval threshold (unless an approval token accompanies it).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResidentType determines the default limits for a resident account.
type ResidentType string

const (
	ResidentOwner    ResidentType = "owner"
	ResidentTenant   ResidentType = "tenant"
	ResidentFamily   ResidentType = "family"
	ResidentGuest    ResidentType = "guest"
	ResidentEmployee ResidentType = "employee"
)

// ValidResidentType reports whether t is a recognized resident type.
func ValidResidentType(t ResidentType) bool {
	switch t {
	case ResidentOwner, ResidentTenant, ResidentFamily, ResidentGuest, ResidentEmployee:
		return true
	}
	return false
}

// ResidentLimits groups the three caps applied to resident spending.
type ResidentLimits struct {
	CreditLimit        decimal.Decimal `json:"credit_limit"`         // >= 0
	DailySpendingLimit decimal.Decimal `json:"daily_spending_limit"` // > 0
	ApprovalThreshold  decimal.Decimal `json:"approval_threshold"`   // > 0
}

// defaultResidentLimits is the type -> limits table applied when a caller
// omits limits at open time. Owners sit highest, employees lowest.
var defaultResidentLimits = map[ResidentType]ResidentLimits{
	ResidentOwner:    {CreditLimit: decimal.NewFromInt(10000), DailySpendingLimit: decimal.NewFromInt(5000), ApprovalThreshold: decimal.NewFromInt(10000)},
	ResidentTenant:   {CreditLimit: decimal.NewFromInt(5000), DailySpendingLimit: decimal.NewFromInt(3000), ApprovalThreshold: decimal.NewFromInt(5000)},
	ResidentFamily:   {CreditLimit: decimal.NewFromInt(2000), DailySpendingLimit: decimal.NewFromInt(1500), ApprovalThreshold: decimal.NewFromInt(2000)},
	ResidentGuest:    {CreditLimit: decimal.NewFromInt(1000), DailySpendingLimit: decimal.NewFromInt(500), ApprovalThreshold: decimal.NewFromInt(1000)},
	ResidentEmployee: {CreditLimit: decimal.NewFromInt(500), DailySpendingLimit: decimal.NewFromInt(200), ApprovalThreshold: decimal.NewFromInt(500)},
}

// DefaultLimitsFor returns the default limits for a resident type.
func DefaultLimitsFor(t ResidentType) ResidentLimits {
	if limits, ok := defaultResidentLimits[t]; ok {
		return limits
	}
	return defaultResidentLimits[ResidentFamily]
}

// ResidentAccount is an occupant sub-account beneath a property account.
// Identity: (property_account_id, resident_name), unique.
type ResidentAccount struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	PropertyAccountID uuid.UUID     `json:"property_account_id" db:"property_account_id"`
	Company           string        `json:"company" db:"company"`
	ResidentName      string        `json:"resident_name" db:"resident_name"`
	AccountCode       string        `json:"account_code" db:"account_code"`
	Type              ResidentType  `json:"resident_type" db:"resident_type"`
	Status            AccountStatus `json:"status" db:"status"`

	Limits  ResidentLimits  `json:"limits"`
	Balance decimal.Decimal `json:"balance" db:"balance"` // signed; negative consumes credit limit

	LastTransactionAt     *time.Time      `json:"last_transaction_at,omitempty" db:"last_transaction_at"`
	LastTransactionAmount decimal.Decimal `json:"last_transaction_amount" db:"last_transaction_amount"`
	SpentToday            decimal.Decimal `json:"spent_today" db:"spent_today"`
	SpentTodayDate        *time.Time      `json:"spent_today_date,omitempty" db:"spent_today_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (r *ResidentAccount) Ref() string {
	return "resident_account/" + r.Company + "/" + r.AccountCode
}

// AvailableCredit is the credit headroom left under the credit limit.
func (r *ResidentAccount) AvailableCredit() decimal.Decimal {
	used := decimal.Zero
	if r.Balance.IsNegative() {
		used = r.Balance.Neg()
	}
	avail := r.Limits.CreditLimit.Sub(used)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(avail)
}

// UtilizationPct is the share of the credit limit currently consumed.
func (r *ResidentAccount) UtilizationPct() decimal.Decimal {
	if r.Limits.CreditLimit.IsZero() || !r.Balance.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(r.Balance.Neg().Div(r.Limits.CreditLimit).Mul(decimal.NewFromInt(100)))
}

// LoyaltyPoints awards one point per 100 of positive balance.
func (r *ResidentAccount) LoyaltyPoints() int64 {
	if !r.Balance.IsPositive() {
		return 0
	}
	return r.Balance.Div(decimal.NewFromInt(100)).Floor().IntPart()
}

// ResidentTransactionType classifies resident ledger movements.
type ResidentTransactionType string

const (
	ResidentTxPayment  ResidentTransactionType = "payment"
	ResidentTxCharge   ResidentTransactionType = "charge"
	ResidentTxTransfer ResidentTransactionType = "transfer"
)
