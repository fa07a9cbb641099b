/**
 * @description
 * Fee Structure domain model: a versioned, approval-gated rule set that turns a
 * property's attributes into its monthly obligation. Once approved the rule set
 * is immutable; activation is guarded against overlapping effective windows for
 * the same company.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeStructureStatus enumerates the lifecycle states of a fee structure.
type FeeStructureStatus string

const (
	FeeStructureDraft           FeeStructureStatus = "draft"
	FeeStructurePendingApproval FeeStructureStatus = "pending_approval"
	FeeStructureApproved        FeeStructureStatus = "approved"
	FeeStructureRejected        FeeStructureStatus = "rejected"
	FeeStructureActive          FeeStructureStatus = "active"
	FeeStructureSuperseded      FeeStructureStatus = "superseded"
)

// feeStructureTransitions is the allowed-transition table. Transitions are the
// only way status changes.
var feeStructureTransitions = map[FeeStructureStatus][]FeeStructureStatus{
	FeeStructureDraft:           {FeeStructurePendingApproval},
	FeeStructurePendingApproval: {FeeStructureApproved, FeeStructureRejected},
	FeeStructureApproved:        {FeeStructureActive},
	FeeStructureActive:          {FeeStructureSuperseded},
	FeeStructureRejected:        {},
	FeeStructureSuperseded:      {},
}

// CanTransition reports whether the fee structure may move from -> to.
func (s FeeStructureStatus) CanTransition(to FeeStructureStatus) bool {
	for _, next := range feeStructureTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CalculationMethod selects how the base obligation is derived per property.
type CalculationMethod string

const (
	CalcFixed             CalculationMethod = "fixed"
	CalcPerOwnershipShare CalculationMethod = "per_ownership_share"
	CalcPerSquareMeter    CalculationMethod = "per_square_meter"
	CalcPerUnitType       CalculationMethod = "per_unit_type"
)

// ValidCalculationMethod reports whether m is a recognized method.
func ValidCalculationMethod(m CalculationMethod) bool {
	switch m {
	case CalcFixed, CalcPerOwnershipShare, CalcPerSquareMeter, CalcPerUnitType:
		return true
	}
	return false
}

// ReserveFund is the optional reserve component added on top of the base fee.
type ReserveFund struct {
	Enabled    bool            `json:"enabled"`
	Percentage decimal.Decimal `json:"percentage"` // [0, 50]
}

// Adjustments carries the optional early-payment discount and late surcharge.
type Adjustments struct {
	EarlyPaymentDiscountPct decimal.Decimal `json:"early_payment_discount_pct"` // [0, 20]
	EarlyPaymentWindowDays  int             `json:"early_payment_window_days"`
	LatePaymentSurchargePct decimal.Decimal `json:"late_payment_surcharge_pct"` // [0, 100]
	LatePaymentGraceDays    int             `json:"late_payment_grace_days"`
}

// FeeStructure is the versioned fee declaration for a company.
// Identity: (company, structure_code).
type FeeStructure struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	Company       string             `json:"company" db:"company"`
	StructureCode string             `json:"structure_code" db:"structure_code"`
	Name          string             `json:"name" db:"name"`
	Status        FeeStructureStatus `json:"status" db:"status"`

	Method     CalculationMethod `json:"calculation_method" db:"calculation_method"`
	BaseAmount decimal.Decimal   `json:"base_amount" db:"base_amount"`
	// UnitTypeRates backs the per-unit-type method: unit type -> multiplier.
	UnitTypeRates map[string]decimal.Decimal `json:"unit_type_rates,omitempty" db:"unit_type_rates"`

	Reserve     ReserveFund `json:"reserve_fund"`
	Adjustments Adjustments `json:"adjustments"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	RequiresCommitteeApproval bool       `json:"requires_committee_approval" db:"requires_committee_approval"`
	ApprovedBy                *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovalDate              *time.Time `json:"approval_date,omitempty" db:"approval_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (f *FeeStructure) Ref() string {
	return "fee_structure/" + f.Company + "/" + f.StructureCode
}

// Overlaps reports whether the effective windows of two structures intersect.
// A nil EffectiveTo means open-ended.
func (f *FeeStructure) Overlaps(other *FeeStructure) bool {
	if f.EffectiveTo != nil && !other.EffectiveFrom.Before(*f.EffectiveTo) {
		return false
	}
	if other.EffectiveTo != nil && !f.EffectiveFrom.Before(*other.EffectiveTo) {
		return false
	}
	return true
}

// FeeBreakdown is the result of evaluating a fee structure for one property.
type FeeBreakdown struct {
	BaseFee     decimal.Decimal   `json:"base_fee"`
	ReserveFund decimal.Decimal   `json:"reserve_fund"`
	TotalFee    decimal.Decimal   `json:"total_fee"`
	Method      CalculationMethod `json:"method"`
}

// PropertyProfile is the slice of the external property registry a fee
// calculation needs. The core reads these fields and writes nothing.
type PropertyProfile struct {
	Code           string          `json:"code"`
	Company        string          `json:"company"`
	OwnershipShare decimal.Decimal `json:"ownership_share"` // [0, 1]
	BuiltArea      decimal.Decimal `json:"built_area"`      // square meters
	UnitType       string          `json:"unit_type"`
	Active         bool            `json:"active"`
}
