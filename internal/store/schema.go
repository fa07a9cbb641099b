/**
 * @description
 * Idempotent schema bootstrap for the financial core. EnsureSchema is executed
 * once at service startup; every statement is CREATE ... IF NOT EXISTS so a
 * restart against an existing database is a no-op.
 */

package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS fee_structures (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    structure_code TEXT NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    calculation_method TEXT NOT NULL,
    base_amount NUMERIC(14,2) NOT NULL,
    unit_type_rates JSONB,
    reserve_fund JSONB NOT NULL,
    adjustments JSONB NOT NULL,
    effective_from TIMESTAMPTZ NOT NULL,
    effective_to TIMESTAMPTZ,
    requires_committee_approval BOOLEAN NOT NULL DEFAULT FALSE,
    approved_by TEXT,
    approval_date TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (company, structure_code)
);

CREATE TABLE IF NOT EXISTS property_accounts (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    property_registry_ref TEXT NOT NULL,
    customer_ref TEXT NOT NULL,
    fee_structure_id UUID REFERENCES fee_structures(id),
    status TEXT NOT NULL,
    running_balance NUMERIC(14,2) NOT NULL DEFAULT 0,
    last_payment_date TIMESTAMPTZ,
    last_payment_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    ytd_paid NUMERIC(14,2) NOT NULL DEFAULT 0,
    ytd_invoiced NUMERIC(14,2) NOT NULL DEFAULT 0,
    billing_frequency TEXT NOT NULL,
    billing_day INT NOT NULL,
    billing_start_date TIMESTAMPTZ NOT NULL,
    auto_generate_invoices BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (company, property_registry_ref)
);

CREATE TABLE IF NOT EXISTS resident_accounts (
    id UUID PRIMARY KEY,
    property_account_id UUID NOT NULL REFERENCES property_accounts(id),
    company TEXT NOT NULL,
    resident_name TEXT NOT NULL,
    account_code TEXT NOT NULL,
    resident_type TEXT NOT NULL,
    status TEXT NOT NULL,
    credit_limit NUMERIC(14,2) NOT NULL,
    daily_spending_limit NUMERIC(14,2) NOT NULL,
    approval_threshold NUMERIC(14,2) NOT NULL,
    balance NUMERIC(14,2) NOT NULL DEFAULT 0,
    last_transaction_at TIMESTAMPTZ,
    last_transaction_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    spent_today NUMERIC(14,2) NOT NULL DEFAULT 0,
    spent_today_date TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (property_account_id, resident_name)
);

CREATE TABLE IF NOT EXISTS credit_balances (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    property_account_id UUID NOT NULL REFERENCES property_accounts(id),
    resident_account_id UUID REFERENCES resident_accounts(id),
    source TEXT NOT NULL,
    status TEXT NOT NULL,
    auto_apply BOOLEAN NOT NULL DEFAULT TRUE,
    original_amount NUMERIC(14,2) NOT NULL,
    remaining_amount NUMERIC(14,2) NOT NULL,
    issued_at TIMESTAMPTZ NOT NULL,
    expiry_date TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_credit_balances_fifo
    ON credit_balances (property_account_id, issued_at, original_amount);

CREATE TABLE IF NOT EXISTS credit_applications (
    id UUID PRIMARY KEY,
    credit_id UUID NOT NULL REFERENCES credit_balances(id),
    invoice_id UUID NOT NULL,
    applied_amount NUMERIC(14,2) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS billing_cycles (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    cycle_code TEXT NOT NULL,
    status TEXT NOT NULL,
    start_date TIMESTAMPTZ NOT NULL,
    end_date TIMESTAMPTZ NOT NULL,
    due_date TIMESTAMPTZ NOT NULL,
    fee_structure_id UUID NOT NULL REFERENCES fee_structures(id),
    invoices_generated INT NOT NULL DEFAULT 0,
    total_billed NUMERIC(14,2) NOT NULL DEFAULT 0,
    total_collected NUMERIC(14,2) NOT NULL DEFAULT 0,
    total_adjustments NUMERIC(14,2) NOT NULL DEFAULT 0,
    total_late_fees NUMERIC(14,2) NOT NULL DEFAULT 0,
    late_fees_processed INT NOT NULL DEFAULT 0,
    pending_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    collection_rate NUMERIC(14,2) NOT NULL DEFAULT 0,
    final_collection_rate NUMERIC(14,2),
    next_cycle_date TIMESTAMPTZ,
    error_reason TEXT,
    closed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (company, cycle_code)
);

CREATE TABLE IF NOT EXISTS cycle_adjustments (
    id UUID PRIMARY KEY,
    billing_cycle_id UUID NOT NULL REFERENCES billing_cycles(id),
    property_account_id UUID NOT NULL REFERENCES property_accounts(id),
    delta NUMERIC(14,2) NOT NULL,
    kind TEXT NOT NULL,
    reason TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS invoices (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    billing_cycle_id UUID NOT NULL REFERENCES billing_cycles(id),
    property_account_id UUID NOT NULL REFERENCES property_accounts(id),
    customer_ref TEXT NOT NULL,
    status TEXT NOT NULL,
    lines JSONB NOT NULL,
    total NUMERIC(14,2) NOT NULL,
    paid_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    credit_applied NUMERIC(14,2) NOT NULL DEFAULT 0,
    issued_date TIMESTAMPTZ NOT NULL,
    due_date TIMESTAMPTZ NOT NULL,
    late_fee_issued BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (billing_cycle_id, property_account_id)
);
CREATE INDEX IF NOT EXISTS idx_invoices_unpaid
    ON invoices (property_account_id, due_date) WHERE status IN ('open', 'partially_paid');

CREATE TABLE IF NOT EXISTS fines (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    property_account_id UUID NOT NULL REFERENCES property_accounts(id),
    billing_cycle_id UUID REFERENCES billing_cycles(id),
    invoice_id UUID REFERENCES invoices(id),
    category TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL,
    base_amount NUMERIC(14,2) NOT NULL,
    escalation_factor NUMERIC(14,2) NOT NULL,
    current_level INT NOT NULL DEFAULT 0,
    late_fee NUMERIC(14,2) NOT NULL DEFAULT 0,
    paid_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    reduced_amount NUMERIC(14,2),
    assessed_at TIMESTAMPTZ NOT NULL,
    due_date TIMESTAMPTZ NOT NULL,
    notified_at TIMESTAMPTZ,
    resolved_at TIMESTAMPTZ,
    escalated_at TIMESTAMPTZ,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fines_late_fee_once
    ON fines (billing_cycle_id, invoice_id) WHERE invoice_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    property_account_id UUID NOT NULL REFERENCES property_accounts(id),
    resident_account_id UUID REFERENCES resident_accounts(id),
    confirmation_number TEXT NOT NULL,
    status TEXT NOT NULL,
    method TEXT NOT NULL,
    amount NUMERIC(14,2) NOT NULL,
    service_charge NUMERIC(14,2) NOT NULL DEFAULT 0,
    discount NUMERIC(14,2) NOT NULL DEFAULT 0,
    commission_rate NUMERIC(14,2) NOT NULL DEFAULT 0,
    split JSONB,
    bank_reported_amount NUMERIC(14,2),
    variance_adjustment NUMERIC(14,2) NOT NULL DEFAULT 0,
    posted_date TIMESTAMPTZ NOT NULL,
    processed_at TIMESTAMPTZ,
    failure_reason TEXT,
    retry_count INT NOT NULL DEFAULT 0,
    reference TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (company, confirmation_number)
);

CREATE TABLE IF NOT EXISTS payment_allocations (
    id UUID PRIMARY KEY,
    payment_id UUID NOT NULL REFERENCES payments(id),
    kind TEXT NOT NULL,
    target_id UUID NOT NULL,
    amount NUMERIC(14,2) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS budget_plans (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    period_type TEXT NOT NULL,
    year INT NOT NULL,
    period_index INT NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    lines JSONB NOT NULL,
    approved_by TEXT,
    approved_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (company, period_type, year, period_index)
);

CREATE TABLE IF NOT EXISTS premium_services (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    service_name TEXT NOT NULL,
    category TEXT NOT NULL,
    status TEXT NOT NULL,
    pricing_model TEXT NOT NULL,
    base_price NUMERIC(14,2) NOT NULL,
    member_discount_pct NUMERIC(14,2) NOT NULL DEFAULT 0,
    charge_target TEXT NOT NULL,
    total_revenue NUMERIC(14,2) NOT NULL DEFAULT 0,
    usage_count INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_premium_services_live_name
    ON premium_services (company, lower(service_name)) WHERE status <> 'retired';

CREATE TABLE IF NOT EXISTS transparency_policies (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    config_name TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT FALSE,
    effective_from TIMESTAMPTZ NOT NULL,
    transparency_level TEXT NOT NULL,
    default_access TEXT NOT NULL,
    area_toggles JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS state_transitions (
    id UUID PRIMARY KEY,
    company TEXT NOT NULL,
    entity_kind TEXT NOT NULL,
    entity_ref TEXT NOT NULL,
    actor TEXT NOT NULL,
    from_state TEXT NOT NULL,
    to_state TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_state_transitions_ref
    ON state_transitions (entity_ref, occurred_at);
`

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schemaDDL)
	return err
}
