/**
 * @description
 * PostgreSQL implementation of the `Repository` interface, part one: fee
 * structures, property accounts, resident accounts, credit balances, and
 * premium services.
 * Billing cycles, invoices, payments, budgets, and policies live in
 * postgres_repository_billing.go.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/domain: domain models used for data transfer.
 *
 * @notes
 * - Decimal columns are NUMERIC(14,2); shopspring/decimal scans through the
 *   database/sql fallback of pgx's type map.
 * - Structured sub-documents (unit type rates, reserve fund, adjustments,
 *   invoice lines, area toggles) are JSONB columns.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habitora/finance-service/internal/domain"
)

// PostgresRepository is the production implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// --- Fee structures ---

const feeStructureColumns = `
	id, company, structure_code, name, status, calculation_method, base_amount,
	unit_type_rates, reserve_fund, adjustments, effective_from, effective_to,
	requires_committee_approval, approved_by, approval_date, created_at, updated_at
`

func scanFeeStructure(row pgx.Row) (*domain.FeeStructure, error) {
	var fs domain.FeeStructure
	var rates, reserve, adjustments []byte
	err := row.Scan(
		&fs.ID, &fs.Company, &fs.StructureCode, &fs.Name, &fs.Status,
		&fs.Method, &fs.BaseAmount, &rates, &reserve, &adjustments,
		&fs.EffectiveFrom, &fs.EffectiveTo,
		&fs.RequiresCommitteeApproval, &fs.ApprovedBy, &fs.ApprovalDate,
		&fs.CreatedAt, &fs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rates) > 0 {
		if err := json.Unmarshal(rates, &fs.UnitTypeRates); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(reserve, &fs.Reserve); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(adjustments, &fs.Adjustments); err != nil {
		return nil, err
	}
	return &fs, nil
}

func feeStructureArgs(fs *domain.FeeStructure) ([]any, error) {
	var rates []byte
	var err error
	if fs.UnitTypeRates != nil {
		rates, err = json.Marshal(fs.UnitTypeRates)
		if err != nil {
			return nil, err
		}
	}
	reserve, err := json.Marshal(fs.Reserve)
	if err != nil {
		return nil, err
	}
	adjustments, err := json.Marshal(fs.Adjustments)
	if err != nil {
		return nil, err
	}
	return []any{
		fs.ID, fs.Company, fs.StructureCode, fs.Name, fs.Status,
		fs.Method, fs.BaseAmount, rates, reserve, adjustments,
		fs.EffectiveFrom, fs.EffectiveTo,
		fs.RequiresCommitteeApproval, fs.ApprovedBy, fs.ApprovalDate,
		fs.CreatedAt, fs.UpdatedAt,
	}, nil
}

func (r *PostgresRepository) CreateFeeStructure(ctx context.Context, fs *domain.FeeStructure) error {
	args, err := feeStructureArgs(fs)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO fee_structures (` + feeStructureColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) SaveFeeStructure(ctx context.Context, fs *domain.FeeStructure) error {
	args, err := feeStructureArgs(fs)
	if err != nil {
		return err
	}
	query := `
		UPDATE fee_structures SET
			company = $2, structure_code = $3, name = $4, status = $5,
			calculation_method = $6, base_amount = $7, unit_type_rates = $8,
			reserve_fund = $9, adjustments = $10, effective_from = $11,
			effective_to = $12, requires_committee_approval = $13,
			approved_by = $14, approval_date = $15, created_at = $16, updated_at = $17
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFeeStructureNotFound
	}
	return nil
}

func (r *PostgresRepository) FindFeeStructureByID(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	query := `SELECT ` + feeStructureColumns + ` FROM fee_structures WHERE id = $1`
	fs, err := scanFeeStructure(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFeeStructureNotFound
		}
		return nil, err
	}
	return fs, nil
}

func (r *PostgresRepository) FindFeeStructureByCode(ctx context.Context, company, code string) (*domain.FeeStructure, error) {
	query := `SELECT ` + feeStructureColumns + ` FROM fee_structures WHERE company = $1 AND structure_code = $2`
	fs, err := scanFeeStructure(r.db.QueryRow(ctx, query, company, code))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrFeeStructureNotFound
		}
		return nil, err
	}
	return fs, nil
}

func (r *PostgresRepository) ListFeeStructuresByStatus(ctx context.Context, company string, status domain.FeeStructureStatus) ([]domain.FeeStructure, error) {
	query := `
		SELECT ` + feeStructureColumns + `
		FROM fee_structures
		WHERE company = $1 AND status = $2
		ORDER BY structure_code
	`
	rows, err := r.db.Query(ctx, query, company, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeeStructure
	for rows.Next() {
		fs, err := scanFeeStructure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fs)
	}
	return out, rows.Err()
}

// ActivateFeeStructureExclusive serializes activation per company with an
// advisory transaction lock. The Active rows are re-read and the decide
// callback runs inside the critical section, so two concurrent activations
// cannot both pass the overlap check.
func (r *PostgresRepository) ActivateFeeStructureExclusive(ctx context.Context, fs *domain.FeeStructure, decide func(active []domain.FeeStructure) ([]uuid.UUID, []domain.StateTransition, error)) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "fee_activation/"+fs.Company); err != nil {
		return err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+feeStructureColumns+`
		FROM fee_structures
		WHERE company = $1 AND status = $2
		ORDER BY structure_code
	`, fs.Company, domain.FeeStructureActive)
	if err != nil {
		return err
	}
	var active []domain.FeeStructure
	for rows.Next() {
		current, err := scanFeeStructure(rows)
		if err != nil {
			rows.Close()
			return err
		}
		active = append(active, *current)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	supersededIDs, transitions, err := decide(active)
	if err != nil {
		return err
	}

	query := `
		UPDATE fee_structures SET
			status = $2, approved_by = $3, approval_date = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, query, fs.ID, fs.Status, fs.ApprovedBy, fs.ApprovalDate, fs.UpdatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFeeStructureNotFound
	}

	for _, id := range supersededIDs {
		result, err := tx.Exec(ctx,
			`UPDATE fee_structures SET status = $1, updated_at = $2 WHERE id = $3`,
			domain.FeeStructureSuperseded, fs.UpdatedAt, id)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrFeeStructureNotFound
		}
	}

	for i := range transitions {
		if err := insertTransition(ctx, tx, &transitions[i]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// --- Property accounts ---

const propertyAccountColumns = `
	id, company, property_registry_ref, customer_ref, fee_structure_id,
	status, running_balance, last_payment_date, last_payment_amount,
	ytd_paid, ytd_invoiced, billing_frequency, billing_day,
	billing_start_date, auto_generate_invoices, created_at, updated_at
`

func scanPropertyAccount(row pgx.Row) (*domain.PropertyAccount, error) {
	var pa domain.PropertyAccount
	err := row.Scan(
		&pa.ID, &pa.Company, &pa.PropertyRegistryRef, &pa.CustomerRef, &pa.FeeStructureID,
		&pa.Status, &pa.RunningBalance, &pa.LastPaymentDate, &pa.LastPaymentAmount,
		&pa.YTDPaid, &pa.YTDInvoiced, &pa.BillingFrequency, &pa.BillingDay,
		&pa.BillingStartDate, &pa.AutoGenerateInvoices, &pa.CreatedAt, &pa.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pa, nil
}

func propertyAccountArgs(pa *domain.PropertyAccount) []any {
	return []any{
		pa.ID, pa.Company, pa.PropertyRegistryRef, pa.CustomerRef, pa.FeeStructureID,
		pa.Status, pa.RunningBalance, pa.LastPaymentDate, pa.LastPaymentAmount,
		pa.YTDPaid, pa.YTDInvoiced, pa.BillingFrequency, pa.BillingDay,
		pa.BillingStartDate, pa.AutoGenerateInvoices, pa.CreatedAt, pa.UpdatedAt,
	}
}

const propertyAccountUpdateSet = `
	company = $2, property_registry_ref = $3, customer_ref = $4,
	fee_structure_id = $5, status = $6, running_balance = $7,
	last_payment_date = $8, last_payment_amount = $9, ytd_paid = $10,
	ytd_invoiced = $11, billing_frequency = $12, billing_day = $13,
	billing_start_date = $14, auto_generate_invoices = $15,
	created_at = $16, updated_at = $17
`

func (r *PostgresRepository) CreatePropertyAccount(ctx context.Context, pa *domain.PropertyAccount) error {
	query := `
		INSERT INTO property_accounts (` + propertyAccountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if _, err := r.db.Exec(ctx, query, propertyAccountArgs(pa)...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) SavePropertyAccount(ctx context.Context, pa *domain.PropertyAccount) error {
	query := `UPDATE property_accounts SET ` + propertyAccountUpdateSet + ` WHERE id = $1`
	result, err := r.db.Exec(ctx, query, propertyAccountArgs(pa)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPropertyAccountNotFound
	}
	return nil
}

func (r *PostgresRepository) FindPropertyAccountByID(ctx context.Context, id uuid.UUID) (*domain.PropertyAccount, error) {
	query := `SELECT ` + propertyAccountColumns + ` FROM property_accounts WHERE id = $1`
	pa, err := scanPropertyAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPropertyAccountNotFound
		}
		return nil, err
	}
	return pa, nil
}

func (r *PostgresRepository) FindPropertyAccountByRegistryRef(ctx context.Context, company, registryRef string) (*domain.PropertyAccount, error) {
	query := `SELECT ` + propertyAccountColumns + ` FROM property_accounts WHERE company = $1 AND property_registry_ref = $2`
	pa, err := scanPropertyAccount(r.db.QueryRow(ctx, query, company, registryRef))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPropertyAccountNotFound
		}
		return nil, err
	}
	return pa, nil
}

func (r *PostgresRepository) ListActivePropertyAccounts(ctx context.Context, company string) ([]domain.PropertyAccount, error) {
	query := `
		SELECT ` + propertyAccountColumns + `
		FROM property_accounts
		WHERE company = $1 AND status = 'active'
		ORDER BY property_registry_ref
	`
	rows, err := r.db.Query(ctx, query, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PropertyAccount
	for rows.Next() {
		pa, err := scanPropertyAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pa)
	}
	return out, rows.Err()
}

// --- Resident accounts ---

const residentAccountColumns = `
	id, property_account_id, company, resident_name, account_code,
	resident_type, status, credit_limit, daily_spending_limit,
	approval_threshold, balance, last_transaction_at,
	last_transaction_amount, spent_today, spent_today_date,
	created_at, updated_at
`

func scanResidentAccount(row pgx.Row) (*domain.ResidentAccount, error) {
	var ra domain.ResidentAccount
	err := row.Scan(
		&ra.ID, &ra.PropertyAccountID, &ra.Company, &ra.ResidentName, &ra.AccountCode,
		&ra.Type, &ra.Status, &ra.Limits.CreditLimit, &ra.Limits.DailySpendingLimit,
		&ra.Limits.ApprovalThreshold, &ra.Balance, &ra.LastTransactionAt,
		&ra.LastTransactionAmount, &ra.SpentToday, &ra.SpentTodayDate,
		&ra.CreatedAt, &ra.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ra, nil
}

func residentAccountArgs(ra *domain.ResidentAccount) []any {
	return []any{
		ra.ID, ra.PropertyAccountID, ra.Company, ra.ResidentName, ra.AccountCode,
		ra.Type, ra.Status, ra.Limits.CreditLimit, ra.Limits.DailySpendingLimit,
		ra.Limits.ApprovalThreshold, ra.Balance, ra.LastTransactionAt,
		ra.LastTransactionAmount, ra.SpentToday, ra.SpentTodayDate,
		ra.CreatedAt, ra.UpdatedAt,
	}
}

func (r *PostgresRepository) CreateResidentAccount(ctx context.Context, ra *domain.ResidentAccount) error {
	query := `
		INSERT INTO resident_accounts (` + residentAccountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if _, err := r.db.Exec(ctx, query, residentAccountArgs(ra)...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) SaveResidentAccount(ctx context.Context, ra *domain.ResidentAccount) error {
	query := `
		UPDATE resident_accounts SET
			property_account_id = $2, company = $3, resident_name = $4,
			account_code = $5, resident_type = $6, status = $7,
			credit_limit = $8, daily_spending_limit = $9, approval_threshold = $10,
			balance = $11, last_transaction_at = $12, last_transaction_amount = $13,
			spent_today = $14, spent_today_date = $15, created_at = $16, updated_at = $17
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, residentAccountArgs(ra)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrResidentAccountNotFound
	}
	return nil
}

func (r *PostgresRepository) FindResidentAccountByID(ctx context.Context, id uuid.UUID) (*domain.ResidentAccount, error) {
	query := `SELECT ` + residentAccountColumns + ` FROM resident_accounts WHERE id = $1`
	ra, err := scanResidentAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrResidentAccountNotFound
		}
		return nil, err
	}
	return ra, nil
}

func (r *PostgresRepository) FindResidentAccountByName(ctx context.Context, propertyAccountID uuid.UUID, residentName string) (*domain.ResidentAccount, error) {
	query := `
		SELECT ` + residentAccountColumns + `
		FROM resident_accounts
		WHERE property_account_id = $1 AND lower(btrim(resident_name)) = lower(btrim($2))
	`
	ra, err := scanResidentAccount(r.db.QueryRow(ctx, query, propertyAccountID, residentName))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrResidentAccountNotFound
		}
		return nil, err
	}
	return ra, nil
}

func (r *PostgresRepository) CountResidentAccounts(ctx context.Context, propertyAccountID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM resident_accounts WHERE property_account_id = $1",
		propertyAccountID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// --- Credit balances ---

const creditColumns = `
	id, company, property_account_id, resident_account_id, source, status,
	auto_apply, original_amount, remaining_amount, issued_at, expiry_date,
	created_at, updated_at
`

func scanCredit(row pgx.Row) (*domain.CreditBalance, error) {
	var cb domain.CreditBalance
	err := row.Scan(
		&cb.ID, &cb.Company, &cb.PropertyAccountID, &cb.ResidentAccountID,
		&cb.Source, &cb.Status, &cb.AutoApply, &cb.OriginalAmount, &cb.RemainingAmount,
		&cb.IssuedAt, &cb.ExpiryDate, &cb.CreatedAt, &cb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

func creditArgs(cb *domain.CreditBalance) []any {
	return []any{
		cb.ID, cb.Company, cb.PropertyAccountID, cb.ResidentAccountID,
		cb.Source, cb.Status, cb.AutoApply, cb.OriginalAmount, cb.RemainingAmount,
		cb.IssuedAt, cb.ExpiryDate, cb.CreatedAt, cb.UpdatedAt,
	}
}

const creditUpdateSet = `
	company = $2, property_account_id = $3, resident_account_id = $4,
	source = $5, status = $6, auto_apply = $7, original_amount = $8,
	remaining_amount = $9, issued_at = $10, expiry_date = $11,
	created_at = $12, updated_at = $13
`

func (r *PostgresRepository) CreateCredit(ctx context.Context, cb *domain.CreditBalance) error {
	query := `
		INSERT INTO credit_balances (` + creditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query, creditArgs(cb)...)
	return err
}

func (r *PostgresRepository) SaveCredit(ctx context.Context, cb *domain.CreditBalance) error {
	query := `UPDATE credit_balances SET ` + creditUpdateSet + ` WHERE id = $1`
	result, err := r.db.Exec(ctx, query, creditArgs(cb)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCreditNotFound
	}
	return nil
}

func (r *PostgresRepository) FindCreditByID(ctx context.Context, id uuid.UUID) (*domain.CreditBalance, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_balances WHERE id = $1`
	cb, err := scanCredit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCreditNotFound
		}
		return nil, err
	}
	return cb, nil
}

func (r *PostgresRepository) ListConsumableCredits(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.CreditBalance, error) {
	query := `
		SELECT ` + creditColumns + `
		FROM credit_balances
		WHERE property_account_id = $1
		  AND status IN ('available', 'partially_applied')
		  AND remaining_amount > 0
		ORDER BY issued_at, original_amount
	`
	rows, err := r.db.Query(ctx, query, propertyAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CreditBalance
	for rows.Next() {
		cb, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cb)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListExpiredCredits(ctx context.Context, asOf time.Time) ([]domain.CreditBalance, error) {
	query := `
		SELECT ` + creditColumns + `
		FROM credit_balances
		WHERE status IN ('available', 'partially_applied')
		  AND remaining_amount > 0
		  AND expiry_date IS NOT NULL
		  AND expiry_date <= $1
		ORDER BY issued_at, original_amount
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CreditBalance
	for rows.Next() {
		cb, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cb)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AppendCreditApplication(ctx context.Context, app *domain.CreditApplication, credit *domain.CreditBalance, invoice *domain.Invoice, account *domain.PropertyAccount) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertCreditApplication(ctx, tx, app); err != nil {
		return err
	}

	query := `UPDATE credit_balances SET ` + creditUpdateSet + ` WHERE id = $1`
	result, err := tx.Exec(ctx, query, creditArgs(credit)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCreditNotFound
	}

	if err := updateInvoiceTx(ctx, tx, invoice); err != nil {
		return err
	}

	accQuery := `UPDATE property_accounts SET ` + propertyAccountUpdateSet + ` WHERE id = $1`
	result, err = tx.Exec(ctx, accQuery, propertyAccountArgs(account)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPropertyAccountNotFound
	}

	return tx.Commit(ctx)
}

func insertCreditApplication(ctx context.Context, tx pgx.Tx, app *domain.CreditApplication) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_applications (id, credit_id, invoice_id, applied_amount, applied_at)
		VALUES ($1, $2, $3, $4, $5)
	`, app.ID, app.CreditID, app.InvoiceID, app.AppliedAmount, app.AppliedAt)
	return err
}

func (r *PostgresRepository) ListCreditApplications(ctx context.Context, creditID uuid.UUID) ([]domain.CreditApplication, error) {
	query := `
		SELECT id, credit_id, invoice_id, applied_amount, applied_at
		FROM credit_applications
		WHERE credit_id = $1
		ORDER BY applied_at
	`
	rows, err := r.db.Query(ctx, query, creditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CreditApplication
	for rows.Next() {
		var app domain.CreditApplication
		if err := rows.Scan(&app.ID, &app.CreditID, &app.InvoiceID, &app.AppliedAmount, &app.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

// --- Premium services ---

const premiumServiceColumns = `
	id, company, service_name, category, status, pricing_model, base_price,
	member_discount_pct, charge_target, total_revenue, usage_count,
	created_at, updated_at
`

func scanPremiumService(row pgx.Row) (*domain.PremiumService, error) {
	var ps domain.PremiumService
	err := row.Scan(
		&ps.ID, &ps.Company, &ps.ServiceName, &ps.Category, &ps.Status,
		&ps.PricingModel, &ps.BasePrice, &ps.MemberDiscountPct, &ps.ChargeTarget,
		&ps.TotalRevenue, &ps.UsageCount, &ps.CreatedAt, &ps.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

func premiumServiceArgs(ps *domain.PremiumService) []any {
	return []any{
		ps.ID, ps.Company, ps.ServiceName, ps.Category, ps.Status,
		ps.PricingModel, ps.BasePrice, ps.MemberDiscountPct, ps.ChargeTarget,
		ps.TotalRevenue, ps.UsageCount, ps.CreatedAt, ps.UpdatedAt,
	}
}

func (r *PostgresRepository) CreatePremiumService(ctx context.Context, ps *domain.PremiumService) error {
	query := `
		INSERT INTO premium_services (` + premiumServiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if _, err := r.db.Exec(ctx, query, premiumServiceArgs(ps)...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) SavePremiumService(ctx context.Context, ps *domain.PremiumService) error {
	query := `
		UPDATE premium_services SET
			company = $2, service_name = $3, category = $4, status = $5,
			pricing_model = $6, base_price = $7, member_discount_pct = $8,
			charge_target = $9, total_revenue = $10, usage_count = $11,
			created_at = $12, updated_at = $13
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, premiumServiceArgs(ps)...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPremiumServiceNotFound
	}
	return nil
}

func (r *PostgresRepository) FindPremiumServiceByID(ctx context.Context, id uuid.UUID) (*domain.PremiumService, error) {
	query := `SELECT ` + premiumServiceColumns + ` FROM premium_services WHERE id = $1`
	ps, err := scanPremiumService(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPremiumServiceNotFound
		}
		return nil, err
	}
	return ps, nil
}

func (r *PostgresRepository) ListPremiumServices(ctx context.Context, company string) ([]domain.PremiumService, error) {
	query := `
		SELECT ` + premiumServiceColumns + `
		FROM premium_services
		WHERE ($1 = '' OR company = $1)
		ORDER BY service_name
	`
	rows, err := r.db.Query(ctx, query, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PremiumService
	for rows.Next() {
		ps, err := scanPremiumService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ps)
	}
	return out, rows.Err()
}
