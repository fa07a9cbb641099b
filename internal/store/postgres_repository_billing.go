/**
 * @description
 * PostgreSQL implementation of the `Repository` interface, part two: fines,
 * billing cycles, invoices, payments, budget plans, transparency policies,
 * and the state-transition event log.
 *
 * @notes
 * - CommitAllocation and CommitInvoiceGeneration persist their whole commit
 *   struct in one transaction. Cycle aggregate deltas are applied with
 *   in-database arithmetic so concurrent payments against the same cycle do
 *   not lose updates.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
)

// --- Fines ---

const fineColumns = `
	id, company, property_account_id, billing_cycle_id, invoice_id, category,
	severity, status, base_amount, escalation_factor, current_level, late_fee,
	paid_amount, reduced_amount, assessed_at, due_date, notified_at,
	resolved_at, escalated_at, description, created_at, updated_at
`

func scanFine(row pgx.Row) (*domain.Fine, error) {
	var f domain.Fine
	err := row.Scan(
		&f.ID, &f.Company, &f.PropertyAccountID, &f.BillingCycleID, &f.InvoiceID,
		&f.Category, &f.Severity, &f.Status, &f.BaseAmount, &f.EscalationFactor,
		&f.CurrentLevel, &f.LateFee, &f.PaidAmount, &f.ReducedAmount,
		&f.AssessedAt, &f.DueDate, &f.NotifiedAt, &f.ResolvedAt, &f.EscalatedAt,
		&f.Description, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func fineArgs(f *domain.Fine) []any {
	return []any{
		f.ID, f.Company, f.PropertyAccountID, f.BillingCycleID, f.InvoiceID,
		f.Category, f.Severity, f.Status, f.BaseAmount, f.EscalationFactor,
		f.CurrentLevel, f.LateFee, f.PaidAmount, f.ReducedAmount,
		f.AssessedAt, f.DueDate, f.NotifiedAt, f.ResolvedAt, f.EscalatedAt,
		f.Description, f.CreatedAt, f.UpdatedAt,
	}
}

const fineUpdateSet = `
	company = $2, property_account_id = $3, billing_cycle_id = $4,
	invoice_id = $5, category = $6, severity = $7, status = $8,
	base_amount = $9, escalation_factor = $10, current_level = $11,
	late_fee = $12, paid_amount = $13, reduced_amount = $14,
	assessed_at = $15, due_date = $16, notified_at = $17, resolved_at = $18,
	escalated_at = $19, description = $20, created_at = $21, updated_at = $22
`

func (r *PostgresRepository) CreateFine(ctx context.Context, f *domain.Fine) error {
	query := `
		INSERT INTO fines (` + fineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err := r.db.Exec(ctx, query, fineArgs(f)...)
	return err
}

func (r *PostgresRepository) SaveFine(ctx context.Context, f *domain.Fine) error {
	query := `UPDATE fines SET ` + fineUpdateSet + ` WHERE id = $1`
	result, err := r.db.Exec(ctx, query, fineArgs(f)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFineNotFound
	}
	return nil
}

func (r *PostgresRepository) FindFineByID(ctx context.Context, id uuid.UUID) (*domain.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE id = $1`
	f, err := scanFine(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFineNotFound
		}
		return nil, err
	}
	return f, nil
}

func (r *PostgresRepository) ListOutstandingFines(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Fine, error) {
	query := `
		SELECT ` + fineColumns + `
		FROM fines
		WHERE property_account_id = $1 AND status IN ('notified', 'overdue')
		ORDER BY assessed_at
	`
	return r.queryFines(ctx, query, propertyAccountID)
}

func (r *PostgresRepository) ListOverdueFines(ctx context.Context, company string, asOf time.Time) ([]domain.Fine, error) {
	query := `
		SELECT ` + fineColumns + `
		FROM fines
		WHERE ($1 = '' OR company = $1) AND status IN ('notified', 'overdue') AND due_date < $2
		ORDER BY assessed_at
	`
	return r.queryFines(ctx, query, company, asOf)
}

func (r *PostgresRepository) queryFines(ctx context.Context, query string, args ...any) ([]domain.Fine, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Fine
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) FindLateFeeFine(ctx context.Context, cycleID, invoiceID uuid.UUID) (*domain.Fine, error) {
	query := `SELECT ` + fineColumns + ` FROM fines WHERE billing_cycle_id = $1 AND invoice_id = $2`
	f, err := scanFine(r.db.QueryRow(ctx, query, cycleID, invoiceID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFineNotFound
		}
		return nil, err
	}
	return f, nil
}

// --- Billing cycles ---

const cycleColumns = `
	id, company, cycle_code, status, start_date, end_date, due_date,
	fee_structure_id, invoices_generated, total_billed, total_collected,
	total_adjustments, total_late_fees, late_fees_processed, pending_amount,
	collection_rate, final_collection_rate, next_cycle_date, error_reason,
	closed_at, created_at, updated_at
`

func scanCycle(row pgx.Row) (*domain.BillingCycle, error) {
	var c domain.BillingCycle
	err := row.Scan(
		&c.ID, &c.Company, &c.CycleCode, &c.Status, &c.StartDate, &c.EndDate,
		&c.DueDate, &c.FeeStructureID, &c.Aggregates.InvoicesGenerated,
		&c.Aggregates.TotalBilled, &c.Aggregates.TotalCollected,
		&c.Aggregates.TotalAdjustments, &c.Aggregates.TotalLateFees,
		&c.Aggregates.LateFeesProcessed, &c.Aggregates.PendingAmount,
		&c.Aggregates.CollectionRate, &c.Aggregates.FinalCollectionRate,
		&c.NextCycleDate, &c.ErrorReason, &c.ClosedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func cycleArgs(c *domain.BillingCycle) []any {
	return []any{
		c.ID, c.Company, c.CycleCode, c.Status, c.StartDate, c.EndDate,
		c.DueDate, c.FeeStructureID, c.Aggregates.InvoicesGenerated,
		c.Aggregates.TotalBilled, c.Aggregates.TotalCollected,
		c.Aggregates.TotalAdjustments, c.Aggregates.TotalLateFees,
		c.Aggregates.LateFeesProcessed, c.Aggregates.PendingAmount,
		c.Aggregates.CollectionRate, c.Aggregates.FinalCollectionRate,
		c.NextCycleDate, c.ErrorReason, c.ClosedAt, c.CreatedAt, c.UpdatedAt,
	}
}

const cycleUpdateSet = `
	company = $2, cycle_code = $3, status = $4, start_date = $5, end_date = $6,
	due_date = $7, fee_structure_id = $8, invoices_generated = $9,
	total_billed = $10, total_collected = $11, total_adjustments = $12,
	total_late_fees = $13, late_fees_processed = $14, pending_amount = $15,
	collection_rate = $16, final_collection_rate = $17, next_cycle_date = $18,
	error_reason = $19, closed_at = $20, created_at = $21, updated_at = $22
`

func (r *PostgresRepository) CreateCycle(ctx context.Context, c *domain.BillingCycle) error {
	query := `
		INSERT INTO billing_cycles (` + cycleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22)
	`
	if _, err := r.db.Exec(ctx, query, cycleArgs(c)...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) SaveCycle(ctx context.Context, c *domain.BillingCycle) error {
	query := `UPDATE billing_cycles SET ` + cycleUpdateSet + ` WHERE id = $1`
	result, err := r.db.Exec(ctx, query, cycleArgs(c)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCycleNotFound
	}
	return nil
}

func (r *PostgresRepository) FindCycleByID(ctx context.Context, id uuid.UUID) (*domain.BillingCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM billing_cycles WHERE id = $1`
	c, err := scanCycle(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCycleNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) FindCycleByCode(ctx context.Context, company, cycleCode string) (*domain.BillingCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM billing_cycles WHERE company = $1 AND cycle_code = $2`
	c, err := scanCycle(r.db.QueryRow(ctx, query, company, cycleCode))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCycleNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) ListOpenCycles(ctx context.Context, company string) ([]domain.BillingCycle, error) {
	query := `
		SELECT ` + cycleColumns + `
		FROM billing_cycles
		WHERE ($1 = '' OR company = $1) AND status IN ('active', 'processing')
		ORDER BY start_date
	`
	rows, err := r.db.Query(ctx, query, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BillingCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListCyclesInWindow(ctx context.Context, company string, from, to time.Time) ([]domain.BillingCycle, error) {
	query := `
		SELECT ` + cycleColumns + `
		FROM billing_cycles
		WHERE company = $1 AND start_date >= $2 AND end_date <= $3
		ORDER BY start_date
	`
	rows, err := r.db.Query(ctx, query, company, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BillingCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AppendCycleAdjustment(ctx context.Context, adj *domain.CycleAdjustment, cycle *domain.BillingCycle) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO cycle_adjustments (id, billing_cycle_id, property_account_id, delta, kind, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, adj.ID, adj.BillingCycleID, adj.PropertyAccountID, adj.Delta, adj.Kind, adj.Reason, adj.CreatedAt)
	if err != nil {
		return err
	}

	query := `UPDATE billing_cycles SET ` + cycleUpdateSet + ` WHERE id = $1`
	result, err := tx.Exec(ctx, query, cycleArgs(cycle)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCycleNotFound
	}

	return tx.Commit(ctx)
}

// --- Invoices ---

const invoiceColumns = `
	id, company, billing_cycle_id, property_account_id, customer_ref, status,
	lines, total, paid_amount, credit_applied, issued_date, due_date,
	late_fee_issued, created_at, updated_at
`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	var lines []byte
	err := row.Scan(
		&inv.ID, &inv.Company, &inv.BillingCycleID, &inv.PropertyAccountID,
		&inv.CustomerRef, &inv.Status, &lines, &inv.Total, &inv.PaidAmount,
		&inv.CreditApplied, &inv.IssuedDate, &inv.DueDate, &inv.LateFeeIssued,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &inv.Lines); err != nil {
			return nil, err
		}
	}
	return &inv, nil
}

func invoiceArgs(inv *domain.Invoice) ([]any, error) {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return nil, err
	}
	return []any{
		inv.ID, inv.Company, inv.BillingCycleID, inv.PropertyAccountID,
		inv.CustomerRef, inv.Status, lines, inv.Total, inv.PaidAmount,
		inv.CreditApplied, inv.IssuedDate, inv.DueDate, inv.LateFeeIssued,
		inv.CreatedAt, inv.UpdatedAt,
	}, nil
}

const invoiceUpdateSet = `
	company = $2, billing_cycle_id = $3, property_account_id = $4,
	customer_ref = $5, status = $6, lines = $7, total = $8, paid_amount = $9,
	credit_applied = $10, issued_date = $11, due_date = $12,
	late_fee_issued = $13, created_at = $14, updated_at = $15
`

func updateInvoiceTx(ctx context.Context, tx pgx.Tx, inv *domain.Invoice) error {
	args, err := invoiceArgs(inv)
	if err != nil {
		return err
	}
	query := `UPDATE invoices SET ` + invoiceUpdateSet + ` WHERE id = $1`
	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *PostgresRepository) FindInvoiceByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *PostgresRepository) FindInvoiceByCycleAndProperty(ctx context.Context, cycleID, propertyAccountID uuid.UUID) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE billing_cycle_id = $1 AND property_account_id = $2`
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, cycleID, propertyAccountID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *PostgresRepository) SaveInvoice(ctx context.Context, inv *domain.Invoice) error {
	args, err := invoiceArgs(inv)
	if err != nil {
		return err
	}
	query := `UPDATE invoices SET ` + invoiceUpdateSet + ` WHERE id = $1`
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *PostgresRepository) ListUnpaidInvoices(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE property_account_id = $1
		  AND status IN ('open', 'partially_paid')
		  AND total - paid_amount - credit_applied > 0
		ORDER BY due_date
	`
	return r.queryInvoices(ctx, query, propertyAccountID)
}

func (r *PostgresRepository) ListInvoicesByAccount(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE property_account_id = $1
		ORDER BY due_date
	`
	return r.queryInvoices(ctx, query, propertyAccountID)
}

func (r *PostgresRepository) ListInvoicesByCycle(ctx context.Context, cycleID uuid.UUID) ([]domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE billing_cycle_id = $1
		ORDER BY customer_ref
	`
	return r.queryInvoices(ctx, query, cycleID)
}

func (r *PostgresRepository) queryInvoices(ctx context.Context, query string, args ...any) ([]domain.Invoice, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CommitInvoiceGeneration(ctx context.Context, commit InvoiceCommit) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	args, err := invoiceArgs(commit.Invoice)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}

	accQuery := `UPDATE property_accounts SET ` + propertyAccountUpdateSet + ` WHERE id = $1`
	result, err := tx.Exec(ctx, accQuery, propertyAccountArgs(commit.Account)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPropertyAccountNotFound
	}

	cycleQuery := `UPDATE billing_cycles SET ` + cycleUpdateSet + ` WHERE id = $1`
	result, err = tx.Exec(ctx, cycleQuery, cycleArgs(commit.Cycle)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCycleNotFound
	}

	if commit.Transition != nil {
		if err := insertTransition(ctx, tx, commit.Transition); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// --- Payments ---

const paymentColumns = `
	id, company, property_account_id, resident_account_id,
	confirmation_number, status, method, amount, service_charge, discount,
	commission_rate, split, bank_reported_amount, variance_adjustment,
	posted_date, processed_at, failure_reason, retry_count, reference,
	created_at, updated_at
`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var split []byte
	err := row.Scan(
		&p.ID, &p.Company, &p.PropertyAccountID, &p.ResidentAccountID,
		&p.ConfirmationNumber, &p.Status, &p.Method, &p.Amount, &p.ServiceCharge,
		&p.Discount, &p.CommissionRate, &split, &p.BankReportedAmount,
		&p.VarianceAdjustment, &p.PostedDate, &p.ProcessedAt, &p.FailureReason,
		&p.RetryCount, &p.Reference, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(split) > 0 {
		p.Split = &domain.PaymentSplit{}
		if err := json.Unmarshal(split, p.Split); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func paymentArgs(p *domain.Payment) ([]any, error) {
	var split []byte
	var err error
	if p.Split != nil {
		split, err = json.Marshal(p.Split)
		if err != nil {
			return nil, err
		}
	}
	return []any{
		p.ID, p.Company, p.PropertyAccountID, p.ResidentAccountID,
		p.ConfirmationNumber, p.Status, p.Method, p.Amount, p.ServiceCharge,
		p.Discount, p.CommissionRate, split, p.BankReportedAmount,
		p.VarianceAdjustment, p.PostedDate, p.ProcessedAt, p.FailureReason,
		p.RetryCount, p.Reference, p.CreatedAt, p.UpdatedAt,
	}, nil
}

const paymentUpdateSet = `
	company = $2, property_account_id = $3, resident_account_id = $4,
	confirmation_number = $5, status = $6, method = $7, amount = $8,
	service_charge = $9, discount = $10, commission_rate = $11, split = $12,
	bank_reported_amount = $13, variance_adjustment = $14, posted_date = $15,
	processed_at = $16, failure_reason = $17, retry_count = $18,
	reference = $19, created_at = $20, updated_at = $21
`

func (r *PostgresRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	args, err := paymentArgs(p)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21)
	`
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) SavePayment(ctx context.Context, p *domain.Payment) error {
	args, err := paymentArgs(p)
	if err != nil {
		return err
	}
	query := `UPDATE payments SET ` + paymentUpdateSet + ` WHERE id = $1`
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PostgresRepository) FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) ListPaymentsInStatusOlderThan(ctx context.Context, status domain.PaymentStatus, cutoff time.Time) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
	`
	rows, err := r.db.Query(ctx, query, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListPaymentsByAccount(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE property_account_id = $1
		ORDER BY posted_date
	`
	rows, err := r.db.Query(ctx, query, propertyAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountPaymentsOnDate(ctx context.Context, company string, date time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM payments WHERE company = $1 AND posted_date::date = $2::date",
		company, date).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostgresRepository) ListPaymentAllocations(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentAllocation, error) {
	query := `
		SELECT id, payment_id, kind, target_id, amount, applied_at
		FROM payment_allocations
		WHERE payment_id = $1
		ORDER BY applied_at
	`
	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentAllocation
	for rows.Next() {
		var a domain.PaymentAllocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.Kind, &a.TargetID, &a.Amount, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CommitAllocation(ctx context.Context, commit AllocationCommit) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Lock the account row first: every allocation against one account
	// serializes here, and the balance is re-derived from the locked row so
	// a concurrent payment cannot lose an update.
	var balance, ytdPaid decimal.Decimal
	err = tx.QueryRow(ctx,
		"SELECT running_balance, ytd_paid FROM property_accounts WHERE id = $1 FOR UPDATE",
		commit.AccountID).Scan(&balance, &ytdPaid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPropertyAccountNotFound
		}
		return err
	}

	args, err := paymentArgs(commit.Payment)
	if err != nil {
		return err
	}
	query := `UPDATE payments SET ` + paymentUpdateSet + ` WHERE id = $1`
	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}

	for i := range commit.Allocations {
		a := &commit.Allocations[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_allocations (id, payment_id, kind, target_id, amount, applied_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.ID, a.PaymentID, a.Kind, a.TargetID, a.Amount, a.AppliedAt)
		if err != nil {
			return err
		}
	}

	for i := range commit.UpdatedInvoices {
		if err := updateInvoiceTx(ctx, tx, &commit.UpdatedInvoices[i]); err != nil {
			return err
		}
	}

	for i := range commit.UpdatedFines {
		f := &commit.UpdatedFines[i]
		result, err := tx.Exec(ctx, `UPDATE fines SET `+fineUpdateSet+` WHERE id = $1`, fineArgs(f)...)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrFineNotFound
		}
	}

	if commit.NewCredit != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO credit_balances (`+creditColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, creditArgs(commit.NewCredit)...)
		if err != nil {
			return err
		}
	}

	accountUpdate := `
		UPDATE property_accounts SET
			running_balance = $2, ytd_paid = $3, last_payment_date = $4,
			last_payment_amount = $5, updated_at = NOW()
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, accountUpdate, commit.AccountID,
		domain.RoundMoney(balance.Add(commit.BalanceDelta)),
		domain.RoundMoney(ytdPaid.Add(commit.YTDPaidDelta)),
		commit.LastPaymentDate, commit.LastPaymentAmount)
	if err != nil {
		return err
	}

	// Aggregate deltas are applied in the database so a concurrent payment
	// against the same cycle cannot lose an update. Closed cycles keep their
	// final figures.
	for cycleID, delta := range commit.CycleCollectedDeltas {
		_, err := tx.Exec(ctx, `
			UPDATE billing_cycles SET
				total_collected = total_collected + $1,
				pending_amount = total_billed - (total_collected + $1),
				updated_at = NOW()
			WHERE id = $2 AND status IN ('active', 'processing')
		`, delta, cycleID)
		if err != nil {
			return err
		}
	}

	for i := range commit.Transitions {
		if err := insertTransition(ctx, tx, &commit.Transitions[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// --- Budgets ---

const budgetColumns = `
	id, company, period_type, year, period_index, status, lines,
	approved_by, approved_at, created_at, updated_at
`

func scanBudget(row pgx.Row) (*domain.BudgetPlan, error) {
	var b domain.BudgetPlan
	var lines []byte
	err := row.Scan(
		&b.ID, &b.Company, &b.PeriodType, &b.Year, &b.PeriodIndex, &b.Status,
		&lines, &b.ApprovedBy, &b.ApprovedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &b.Lines); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

func budgetArgs(b *domain.BudgetPlan) ([]any, error) {
	lines, err := json.Marshal(b.Lines)
	if err != nil {
		return nil, err
	}
	return []any{
		b.ID, b.Company, b.PeriodType, b.Year, b.PeriodIndex, b.Status,
		lines, b.ApprovedBy, b.ApprovedAt, b.CreatedAt, b.UpdatedAt,
	}, nil
}

func (r *PostgresRepository) CreateBudget(ctx context.Context, b *domain.BudgetPlan) error {
	args, err := budgetArgs(b)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO budget_plans (` + budgetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) SaveBudget(ctx context.Context, b *domain.BudgetPlan) error {
	args, err := budgetArgs(b)
	if err != nil {
		return err
	}
	query := `
		UPDATE budget_plans SET
			company = $2, period_type = $3, year = $4, period_index = $5,
			status = $6, lines = $7, approved_by = $8, approved_at = $9,
			created_at = $10, updated_at = $11
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}
	return nil
}

func (r *PostgresRepository) FindBudgetByID(ctx context.Context, id uuid.UUID) (*domain.BudgetPlan, error) {
	query := `SELECT ` + budgetColumns + ` FROM budget_plans WHERE id = $1`
	b, err := scanBudget(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *PostgresRepository) FindBudgetByPeriod(ctx context.Context, company string, periodType domain.BudgetPeriodType, year, periodIndex int) (*domain.BudgetPlan, error) {
	query := `
		SELECT ` + budgetColumns + `
		FROM budget_plans
		WHERE company = $1 AND period_type = $2 AND year = $3 AND period_index = $4
	`
	b, err := scanBudget(r.db.QueryRow(ctx, query, company, periodType, year, periodIndex))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}
	return b, nil
}

// --- Transparency policies ---

const policyColumns = `
	id, company, config_name, active, effective_from, transparency_level,
	default_access, area_toggles, created_at, updated_at
`

func scanPolicy(row pgx.Row) (*domain.TransparencyPolicy, error) {
	var p domain.TransparencyPolicy
	var toggles []byte
	err := row.Scan(
		&p.ID, &p.Company, &p.ConfigName, &p.Active, &p.EffectiveFrom,
		&p.Level, &p.DefaultAccess, &toggles, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(toggles) > 0 {
		if err := json.Unmarshal(toggles, &p.AreaToggles); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func policyArgs(p *domain.TransparencyPolicy) ([]any, error) {
	var toggles []byte
	var err error
	if p.AreaToggles != nil {
		toggles, err = json.Marshal(p.AreaToggles)
		if err != nil {
			return nil, err
		}
	}
	return []any{
		p.ID, p.Company, p.ConfigName, p.Active, p.EffectiveFrom,
		p.Level, p.DefaultAccess, toggles, p.CreatedAt, p.UpdatedAt,
	}, nil
}

func (r *PostgresRepository) CreatePolicy(ctx context.Context, p *domain.TransparencyPolicy) error {
	args, err := policyArgs(p)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transparency_policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *PostgresRepository) SavePolicy(ctx context.Context, p *domain.TransparencyPolicy) error {
	args, err := policyArgs(p)
	if err != nil {
		return err
	}
	query := `
		UPDATE transparency_policies SET
			company = $2, config_name = $3, active = $4, effective_from = $5,
			transparency_level = $6, default_access = $7, area_toggles = $8,
			created_at = $9, updated_at = $10
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

func (r *PostgresRepository) FindEffectivePolicy(ctx context.Context, company string, asOf time.Time) (*domain.TransparencyPolicy, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM transparency_policies
		WHERE company = $1 AND active AND effective_from <= $2
		ORDER BY effective_from DESC
		LIMIT 1
	`
	p, err := scanPolicy(r.db.QueryRow(ctx, query, company, asOf))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return p, nil
}

// --- Event log ---

func insertTransition(ctx context.Context, tx pgx.Tx, tr *domain.StateTransition) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO state_transitions (id, company, entity_kind, entity_ref, actor, from_state, to_state, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tr.ID, tr.Company, tr.EntityKind, tr.EntityRef, tr.Actor, tr.FromState, tr.ToState, tr.Reason, tr.OccurredAt)
	return err
}

func (r *PostgresRepository) AppendTransition(ctx context.Context, tr *domain.StateTransition) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO state_transitions (id, company, entity_kind, entity_ref, actor, from_state, to_state, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tr.ID, tr.Company, tr.EntityKind, tr.EntityRef, tr.Actor, tr.FromState, tr.ToState, tr.Reason, tr.OccurredAt)
	return err
}

func (r *PostgresRepository) ListTransitions(ctx context.Context, entityRef string) ([]domain.StateTransition, error) {
	query := `
		SELECT id, company, entity_kind, entity_ref, actor, from_state, to_state, reason, occurred_at
		FROM state_transitions
		WHERE entity_ref = $1
		ORDER BY occurred_at
	`
	rows, err := r.db.Query(ctx, query, entityRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StateTransition
	for rows.Next() {
		var tr domain.StateTransition
		if err := rows.Scan(&tr.ID, &tr.Company, &tr.EntityKind, &tr.EntityRef, &tr.Actor,
			&tr.FromState, &tr.ToState, &tr.Reason, &tr.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
