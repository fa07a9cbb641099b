/**
 * @description
 * Transparency & Disclosure Policy domain model: a versioned selector document
 * consulted by every read surfaced to residents. Evaluation is a pure function
 * of (viewer role, target account, data kind); the effective policy at query
 * time is the latest Active document with effective_from <= now.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransparencyLevel grades how much financial detail residents may see.
type TransparencyLevel string

const (
	TransparencyBasic    TransparencyLevel = "basic"
	TransparencyStandard TransparencyLevel = "standard"
	TransparencyAdvanced TransparencyLevel = "advanced"
	TransparencyFull     TransparencyLevel = "full"
	TransparencyCustom   TransparencyLevel = "custom"
)

// ValidTransparencyLevel reports whether l is recognized.
func ValidTransparencyLevel(l TransparencyLevel) bool {
	switch l {
	case TransparencyBasic, TransparencyStandard, TransparencyAdvanced, TransparencyFull, TransparencyCustom:
		return true
	}
	return false
}

// AccessMode is the default access granted when no toggle overrides.
type AccessMode string

const (
	AccessReadOnly    AccessMode = "read_only"
	AccessLimitedRead AccessMode = "limited_read"
	AccessFullRead    AccessMode = "full_read"
	AccessNone        AccessMode = "no_access"
)

// DataKind names the data areas a disclosure decision covers.
type DataKind string

const (
	DataAccountBalances DataKind = "account_balances"
	DataInvoices        DataKind = "invoices"
	DataPayments        DataKind = "payments"
	DataFines           DataKind = "fines"
	DataCredits         DataKind = "credits"
	DataCycleMetrics    DataKind = "cycle_metrics"
	DataBudgets         DataKind = "budgets"
)

// ViewerRole is the role of the party requesting a read.
type ViewerRole string

const (
	RoleAdministrator ViewerRole = "administrator"
	RoleCommittee     ViewerRole = "committee"
	RoleOwner         ViewerRole = "owner"
	RoleResident      ViewerRole = "resident"
)

// Decision is the outcome of a disclosure evaluation.
type Decision string

const (
	DecisionAllow         Decision = "allow"
	DecisionRedactAmounts Decision = "redact_amounts"
	DecisionDeny          Decision = "deny"
)

// TransparencyPolicy is a versioned disclosure policy document.
type TransparencyPolicy struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	Company       string            `json:"company" db:"company"`
	ConfigName    string            `json:"config_name" db:"config_name"`
	Active        bool              `json:"active" db:"active"`
	EffectiveFrom time.Time         `json:"effective_from" db:"effective_from"`
	Level         TransparencyLevel `json:"transparency_level" db:"transparency_level"`
	DefaultAccess AccessMode        `json:"default_access" db:"default_access"`

	// AreaToggles overrides the level-derived decision per data kind.
	AreaToggles map[DataKind]AccessMode `json:"area_toggles,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (p *TransparencyPolicy) Ref() string {
	return "transparency_policy/" + p.Company + "/" + p.ConfigName
}
