/**
 * @description
 * Billing Cycle domain model: the bounded collection window for a company.
 * A cycle freezes its fee structure at open time, generates invoices once per
 * property, accumulates collection aggregates as payments land, and flips the
 * aggregates immutable at close. Invoices are owned by the cycle that created
 * them.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CycleStatus enumerates the billing cycle state machine.
type CycleStatus string

const (
	CycleDraft      CycleStatus = "draft"
	CycleActive     CycleStatus = "active"
	CycleProcessing CycleStatus = "processing"
	CycleClosed     CycleStatus = "closed"
	CycleCancelled  CycleStatus = "cancelled"
	CycleError      CycleStatus = "error"
)

var cycleTransitions = map[CycleStatus][]CycleStatus{
	CycleDraft:      {CycleActive, CycleCancelled},
	CycleActive:     {CycleProcessing, CycleClosed, CycleCancelled, CycleError},
	CycleProcessing: {CycleActive, CycleClosed, CycleCancelled, CycleError},
	CycleClosed:     {},
	CycleCancelled:  {},
	CycleError:      {},
}

// CanTransition reports whether the cycle may move from -> to.
func (s CycleStatus) CanTransition(to CycleStatus) bool {
	for _, next := range cycleTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s CycleStatus) Terminal() bool {
	return len(cycleTransitions[s]) == 0
}

// CycleAggregates are the collection figures updated as the cycle progresses.
// Once the cycle closes they are immutable.
type CycleAggregates struct {
	InvoicesGenerated   int              `json:"invoices_generated" db:"invoices_generated"`
	TotalBilled         decimal.Decimal  `json:"total_billed" db:"total_billed"`
	TotalCollected      decimal.Decimal  `json:"total_collected" db:"total_collected"`
	TotalAdjustments    decimal.Decimal  `json:"total_adjustments" db:"total_adjustments"`
	TotalLateFees       decimal.Decimal  `json:"total_late_fees" db:"total_late_fees"`
	LateFeesProcessed   int              `json:"late_fees_processed" db:"late_fees_processed"`
	PendingAmount       decimal.Decimal  `json:"pending_amount" db:"pending_amount"`
	CollectionRate      decimal.Decimal  `json:"collection_rate" db:"collection_rate"`
	FinalCollectionRate *decimal.Decimal `json:"final_collection_rate,omitempty" db:"final_collection_rate"`
}

// BillingCycle is a window of collection activity for a company.
// Identity: (company, cycle_code).
type BillingCycle struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	Company   string      `json:"company" db:"company"`
	CycleCode string      `json:"cycle_code" db:"cycle_code"`
	Status    CycleStatus `json:"status" db:"status"`

	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	DueDate   time.Time `json:"due_date" db:"due_date"` // >= end_date

	// FeeStructureID is frozen at open time.
	FeeStructureID uuid.UUID `json:"fee_structure_id" db:"fee_structure_id"`

	Aggregates CycleAggregates `json:"aggregates"`

	// NextCycleDate is derived from the end date and the company's billing
	// frequency when the cycle closes.
	NextCycleDate *time.Time `json:"next_cycle_date,omitempty" db:"next_cycle_date"`

	ErrorReason *string    `json:"error_reason,omitempty" db:"error_reason"`
	ClosedAt    *time.Time `json:"closed_at,omitempty" db:"closed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (c *BillingCycle) Ref() string {
	return "billing_cycle/" + c.Company + "/" + c.CycleCode
}

// Mutable reports whether the cycle still accepts aggregate updates.
func (c *BillingCycle) Mutable() bool {
	return c.Status == CycleActive || c.Status == CycleProcessing
}

// CycleAdjustmentKind classifies a manual adjustment recorded on a cycle.
type CycleAdjustmentKind string

const (
	AdjustmentDiscount   CycleAdjustmentKind = "discount"
	AdjustmentSurcharge  CycleAdjustmentKind = "surcharge"
	AdjustmentCorrection CycleAdjustmentKind = "correction"
	AdjustmentVariance   CycleAdjustmentKind = "variance"
)

// CycleAdjustment is one signed manual adjustment against a cycle.
type CycleAdjustment struct {
	ID                uuid.UUID           `json:"id" db:"id"`
	BillingCycleID    uuid.UUID           `json:"billing_cycle_id" db:"billing_cycle_id"`
	PropertyAccountID uuid.UUID           `json:"property_account_id" db:"property_account_id"`
	Delta             decimal.Decimal     `json:"delta" db:"delta"`
	Kind              CycleAdjustmentKind `json:"kind" db:"kind"`
	Reason            string              `json:"reason" db:"reason"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
}

// CycleSummary is the exportable snapshot of a cycle's state.
type CycleSummary struct {
	Company    string          `json:"company"`
	CycleCode  string          `json:"cycle_code"`
	Status     CycleStatus     `json:"status"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
	DueDate    time.Time       `json:"due_date"`
	Aggregates CycleAggregates `json:"aggregates"`
	Properties int             `json:"properties_billed"`
	Overdue    decimal.Decimal `json:"overdue_amount"`
}
