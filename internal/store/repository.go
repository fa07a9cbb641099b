/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access performed by the financial core. The application services depend on
 * this interface only, which keeps the business logic testable against the
 * in-memory implementation and portable across database backends.
 *
 * @notes
 * - Multi-entity mutations (payment allocation, per-property invoice
 *   generation, cycle close) are expressed as single atomic commit methods so
 *   the transaction boundary lives in the store, not in the services.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
)

var (
	ErrFeeStructureNotFound    = errors.New("fee structure not found")
	ErrPropertyAccountNotFound = errors.New("property account not found")
	ErrResidentAccountNotFound = errors.New("resident account not found")
	ErrCreditNotFound          = errors.New("credit balance not found")
	ErrFineNotFound            = errors.New("fine not found")
	ErrCycleNotFound           = errors.New("billing cycle not found")
	ErrInvoiceNotFound         = errors.New("invoice not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrBudgetNotFound          = errors.New("budget plan not found")
	ErrPolicyNotFound          = errors.New("transparency policy not found")
	ErrPremiumServiceNotFound  = errors.New("premium service not found")
	ErrDuplicateKey            = errors.New("duplicate key")
)

// AllocationCommit carries the complete post-state of one processed payment:
// the payment itself, its allocation rows, and every entity the allocation
// touched. The store persists all of it in one transaction or none of it.
type AllocationCommit struct {
	Payment     *domain.Payment
	Allocations []domain.PaymentAllocation

	UpdatedInvoices []domain.Invoice
	UpdatedFines    []domain.Fine
	NewCredit       *domain.CreditBalance

	// Account figures arrive as deltas and are applied against the locked
	// account row, so concurrent payments on one account serialize instead
	// of overwriting each other's balances.
	AccountID         uuid.UUID
	BalanceDelta      decimal.Decimal
	YTDPaidDelta      decimal.Decimal
	LastPaymentDate   *time.Time
	LastPaymentAmount decimal.Decimal

	// CycleCollectedDeltas adds to total_collected of each cycle whose
	// invoices the payment touched, keyed by cycle id.
	CycleCollectedDeltas map[uuid.UUID]decimal.Decimal

	Transitions []domain.StateTransition
}

// InvoiceCommit carries the per-property unit of work of invoice generation:
// one invoice plus the aggregate deltas it implies. Committed per property so
// a mid-batch failure leaves earlier properties durable.
type InvoiceCommit struct {
	Invoice    *domain.Invoice
	Account    *domain.PropertyAccount
	Cycle      *domain.BillingCycle
	Transition *domain.StateTransition
}

// Repository defines the persistence contract of the financial core.
type Repository interface {
	// Fee structures
	CreateFeeStructure(ctx context.Context, fs *domain.FeeStructure) error
	SaveFeeStructure(ctx context.Context, fs *domain.FeeStructure) error
	FindFeeStructureByID(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error)
	FindFeeStructureByCode(ctx context.Context, company, code string) (*domain.FeeStructure, error)
	ListFeeStructuresByStatus(ctx context.Context, company string, status domain.FeeStructureStatus) ([]domain.FeeStructure, error)
	// ActivateFeeStructureExclusive flips fs Active under a company-scoped
	// lock. decide receives the company's Active structures as read inside
	// the critical section and returns the ids to supersede plus the
	// event-log rows, or an error that aborts the activation. Two concurrent
	// activations therefore cannot both pass the overlap check.
	ActivateFeeStructureExclusive(ctx context.Context, fs *domain.FeeStructure, decide func(active []domain.FeeStructure) ([]uuid.UUID, []domain.StateTransition, error)) error

	// Property accounts
	CreatePropertyAccount(ctx context.Context, pa *domain.PropertyAccount) error
	SavePropertyAccount(ctx context.Context, pa *domain.PropertyAccount) error
	FindPropertyAccountByID(ctx context.Context, id uuid.UUID) (*domain.PropertyAccount, error)
	FindPropertyAccountByRegistryRef(ctx context.Context, company, registryRef string) (*domain.PropertyAccount, error)
	ListActivePropertyAccounts(ctx context.Context, company string) ([]domain.PropertyAccount, error)

	// Resident accounts
	CreateResidentAccount(ctx context.Context, ra *domain.ResidentAccount) error
	SaveResidentAccount(ctx context.Context, ra *domain.ResidentAccount) error
	FindResidentAccountByID(ctx context.Context, id uuid.UUID) (*domain.ResidentAccount, error)
	FindResidentAccountByName(ctx context.Context, propertyAccountID uuid.UUID, residentName string) (*domain.ResidentAccount, error)
	CountResidentAccounts(ctx context.Context, propertyAccountID uuid.UUID) (int, error)

	// Credit balances
	CreateCredit(ctx context.Context, cb *domain.CreditBalance) error
	SaveCredit(ctx context.Context, cb *domain.CreditBalance) error
	FindCreditByID(ctx context.Context, id uuid.UUID) (*domain.CreditBalance, error)
	// ListConsumableCredits returns available/partially-applied entries of the
	// account ordered FIFO: issued_at ascending, then smaller original amount.
	ListConsumableCredits(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.CreditBalance, error)
	ListExpiredCredits(ctx context.Context, asOf time.Time) ([]domain.CreditBalance, error)
	// AppendCreditApplication persists one credit consumption atomically: the
	// append-only application row plus the post-state of the credit, the
	// invoice it settled against, and the property account.
	AppendCreditApplication(ctx context.Context, app *domain.CreditApplication, credit *domain.CreditBalance, invoice *domain.Invoice, account *domain.PropertyAccount) error
	ListCreditApplications(ctx context.Context, creditID uuid.UUID) ([]domain.CreditApplication, error)

	// Fines
	CreateFine(ctx context.Context, f *domain.Fine) error
	SaveFine(ctx context.Context, f *domain.Fine) error
	FindFineByID(ctx context.Context, id uuid.UUID) (*domain.Fine, error)
	ListOutstandingFines(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Fine, error)
	// ListOverdueFines returns notified or overdue fines past their due date
	// in assessment order. Empty company means all companies.
	ListOverdueFines(ctx context.Context, company string, asOf time.Time) ([]domain.Fine, error)
	FindLateFeeFine(ctx context.Context, cycleID, invoiceID uuid.UUID) (*domain.Fine, error)

	// Billing cycles
	CreateCycle(ctx context.Context, c *domain.BillingCycle) error
	SaveCycle(ctx context.Context, c *domain.BillingCycle) error
	FindCycleByID(ctx context.Context, id uuid.UUID) (*domain.BillingCycle, error)
	FindCycleByCode(ctx context.Context, company, cycleCode string) (*domain.BillingCycle, error)
	// ListOpenCycles returns active or processing cycles in start-date order.
	// Empty company means all companies.
	ListOpenCycles(ctx context.Context, company string) ([]domain.BillingCycle, error)
	ListCyclesInWindow(ctx context.Context, company string, from, to time.Time) ([]domain.BillingCycle, error)
	AppendCycleAdjustment(ctx context.Context, adj *domain.CycleAdjustment, cycle *domain.BillingCycle) error

	// Invoices
	FindInvoiceByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	FindInvoiceByCycleAndProperty(ctx context.Context, cycleID, propertyAccountID uuid.UUID) (*domain.Invoice, error)
	SaveInvoice(ctx context.Context, inv *domain.Invoice) error
	// ListUnpaidInvoices returns open invoices of the account in due-date
	// order, oldest first.
	ListUnpaidInvoices(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Invoice, error)
	// ListInvoicesByAccount returns every invoice of the account, settled
	// included, in due-date order.
	ListInvoicesByAccount(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Invoice, error)
	ListInvoicesByCycle(ctx context.Context, cycleID uuid.UUID) ([]domain.Invoice, error)
	CommitInvoiceGeneration(ctx context.Context, commit InvoiceCommit) error

	// Payments
	CreatePayment(ctx context.Context, p *domain.Payment) error
	SavePayment(ctx context.Context, p *domain.Payment) error
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	ListPaymentsInStatusOlderThan(ctx context.Context, status domain.PaymentStatus, cutoff time.Time) ([]domain.Payment, error)
	ListPaymentsByAccount(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Payment, error)
	CountPaymentsOnDate(ctx context.Context, company string, date time.Time) (int, error)
	CommitAllocation(ctx context.Context, commit AllocationCommit) error
	// ListPaymentAllocations returns the allocation rows of one payment in
	// application order.
	ListPaymentAllocations(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentAllocation, error)

	// Budgets
	CreateBudget(ctx context.Context, b *domain.BudgetPlan) error
	SaveBudget(ctx context.Context, b *domain.BudgetPlan) error
	FindBudgetByID(ctx context.Context, id uuid.UUID) (*domain.BudgetPlan, error)
	FindBudgetByPeriod(ctx context.Context, company string, periodType domain.BudgetPeriodType, year, periodIndex int) (*domain.BudgetPlan, error)

	// Premium services
	CreatePremiumService(ctx context.Context, ps *domain.PremiumService) error
	SavePremiumService(ctx context.Context, ps *domain.PremiumService) error
	FindPremiumServiceByID(ctx context.Context, id uuid.UUID) (*domain.PremiumService, error)
	ListPremiumServices(ctx context.Context, company string) ([]domain.PremiumService, error)

	// Transparency policies
	CreatePolicy(ctx context.Context, p *domain.TransparencyPolicy) error
	SavePolicy(ctx context.Context, p *domain.TransparencyPolicy) error
	// FindEffectivePolicy returns the latest Active policy of the company with
	// effective_from <= asOf.
	FindEffectivePolicy(ctx context.Context, company string, asOf time.Time) (*domain.TransparencyPolicy, error)

	// Event log
	AppendTransition(ctx context.Context, tr *domain.StateTransition) error
	ListTransitions(ctx context.Context, entityRef string) ([]domain.StateTransition, error)
}
