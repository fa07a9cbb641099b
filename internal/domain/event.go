/**
 * @description
 * State-transition event rows: the persistent audit surface. Every entity
 * records its transitions as append-only rows carrying who moved it, from
 * which state, to which state, and why.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// StateTransition is one append-only event-log row.
type StateTransition struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Company    string    `json:"company" db:"company"`
	EntityKind string    `json:"entity_kind" db:"entity_kind"` // e.g. "billing_cycle"
	EntityRef  string    `json:"entity_ref" db:"entity_ref"`
	Actor      string    `json:"actor" db:"actor"`
	FromState  string    `json:"from_state" db:"from_state"`
	ToState    string    `json:"to_state" db:"to_state"`
	Reason     string    `json:"reason" db:"reason"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

// CycleClosedEvent is the payload published when a billing cycle closes.
type CycleClosedEvent struct {
	Company             string    `json:"company"`
	CycleCode           string    `json:"cycle_code"`
	TotalBilled         string    `json:"total_billed"`
	TotalCollected      string    `json:"total_collected"`
	PendingAmount       string    `json:"pending_amount"`
	FinalCollectionRate string    `json:"final_collection_rate"`
	ClosedAt            time.Time `json:"closed_at"`
}

// FineNotificationEvent is the payload published when a fine is notified or
// escalated.
type FineNotificationEvent struct {
	Company           string    `json:"company"`
	FineID            uuid.UUID `json:"fine_id"`
	PropertyAccountID uuid.UUID `json:"property_account_id"`
	Category          string    `json:"category"`
	Level             int       `json:"level"`
	AmountDue         string    `json:"amount_due"`
	Timestamp         time.Time `json:"timestamp"`
}

// ServiceChargedEvent is the payload published when premium service usage is
// billed to an account.
type ServiceChargedEvent struct {
	Company     string    `json:"company"`
	ServiceID   uuid.UUID `json:"service_id"`
	ServiceName string    `json:"service_name"`
	AccountID   uuid.UUID `json:"account_id"`
	Units       int       `json:"units"`
	Amount      string    `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}
