/**
 * @description
 * In-memory implementation of the Repository interface. It backs the service
 * test suites and the CLI dry-run mode. A single mutex serializes every
 * operation, which also gives the atomic commit methods their all-or-nothing
 * behavior: state is only mutated after validation of the whole commit.
 */

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/habitora/finance-service/internal/domain"
)

// MemoryRepository keeps every entity in process memory.
type MemoryRepository struct {
	mu sync.Mutex

	feeStructures    map[uuid.UUID]*domain.FeeStructure
	propertyAccounts map[uuid.UUID]*domain.PropertyAccount
	residentAccounts map[uuid.UUID]*domain.ResidentAccount
	credits          map[uuid.UUID]*domain.CreditBalance
	creditApps       []domain.CreditApplication
	fines            map[uuid.UUID]*domain.Fine
	cycles           map[uuid.UUID]*domain.BillingCycle
	adjustments      []domain.CycleAdjustment
	invoices         map[uuid.UUID]*domain.Invoice
	payments         map[uuid.UUID]*domain.Payment
	allocations      []domain.PaymentAllocation
	budgets          map[uuid.UUID]*domain.BudgetPlan
	policies         map[uuid.UUID]*domain.TransparencyPolicy
	premiumServices  map[uuid.UUID]*domain.PremiumService
	transitions      []domain.StateTransition
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		feeStructures:    make(map[uuid.UUID]*domain.FeeStructure),
		propertyAccounts: make(map[uuid.UUID]*domain.PropertyAccount),
		residentAccounts: make(map[uuid.UUID]*domain.ResidentAccount),
		credits:          make(map[uuid.UUID]*domain.CreditBalance),
		fines:            make(map[uuid.UUID]*domain.Fine),
		cycles:           make(map[uuid.UUID]*domain.BillingCycle),
		invoices:         make(map[uuid.UUID]*domain.Invoice),
		payments:         make(map[uuid.UUID]*domain.Payment),
		budgets:          make(map[uuid.UUID]*domain.BudgetPlan),
		policies:         make(map[uuid.UUID]*domain.TransparencyPolicy),
		premiumServices:  make(map[uuid.UUID]*domain.PremiumService),
	}
}

var _ Repository = (*MemoryRepository)(nil)

// --- Fee structures ---

func (m *MemoryRepository) CreateFeeStructure(ctx context.Context, fs *domain.FeeStructure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.feeStructures {
		if existing.Company == fs.Company && existing.StructureCode == fs.StructureCode {
			return ErrDuplicateKey
		}
	}
	cp := *fs
	m.feeStructures[fs.ID] = &cp
	return nil
}

func (m *MemoryRepository) SaveFeeStructure(ctx context.Context, fs *domain.FeeStructure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.feeStructures[fs.ID]; !ok {
		return ErrFeeStructureNotFound
	}
	cp := *fs
	m.feeStructures[fs.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindFeeStructureByID(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.feeStructures[id]
	if !ok {
		return nil, ErrFeeStructureNotFound
	}
	cp := *fs
	return &cp, nil
}

func (m *MemoryRepository) FindFeeStructureByCode(ctx context.Context, company, code string) (*domain.FeeStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fs := range m.feeStructures {
		if fs.Company == company && fs.StructureCode == code {
			cp := *fs
			return &cp, nil
		}
	}
	return nil, ErrFeeStructureNotFound
}

func (m *MemoryRepository) ListFeeStructuresByStatus(ctx context.Context, company string, status domain.FeeStructureStatus) ([]domain.FeeStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FeeStructure
	for _, fs := range m.feeStructures {
		if fs.Company == company && fs.Status == status {
			out = append(out, *fs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StructureCode < out[j].StructureCode })
	return out, nil
}

func (m *MemoryRepository) ActivateFeeStructureExclusive(ctx context.Context, fs *domain.FeeStructure, decide func(active []domain.FeeStructure) ([]uuid.UUID, []domain.StateTransition, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.feeStructures[fs.ID]; !ok {
		return ErrFeeStructureNotFound
	}

	// The mutex is the critical section: decide sees the Active rows as they
	// stand right now, exactly like the advisory-locked postgres path.
	var active []domain.FeeStructure
	for _, existing := range m.feeStructures {
		if existing.Company == fs.Company && existing.Status == domain.FeeStructureActive {
			active = append(active, *existing)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StructureCode < active[j].StructureCode })

	supersededIDs, transitions, err := decide(active)
	if err != nil {
		return err
	}
	for _, id := range supersededIDs {
		if _, ok := m.feeStructures[id]; !ok {
			return ErrFeeStructureNotFound
		}
	}

	cp := *fs
	m.feeStructures[fs.ID] = &cp
	for _, id := range supersededIDs {
		m.feeStructures[id].Status = domain.FeeStructureSuperseded
		m.feeStructures[id].UpdatedAt = fs.UpdatedAt
	}
	m.transitions = append(m.transitions, transitions...)
	return nil
}

// --- Property accounts ---

func (m *MemoryRepository) CreatePropertyAccount(ctx context.Context, pa *domain.PropertyAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.propertyAccounts {
		if existing.Company == pa.Company && existing.PropertyRegistryRef == pa.PropertyRegistryRef {
			return ErrDuplicateKey
		}
	}
	cp := *pa
	m.propertyAccounts[pa.ID] = &cp
	return nil
}

func (m *MemoryRepository) SavePropertyAccount(ctx context.Context, pa *domain.PropertyAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.propertyAccounts[pa.ID]; !ok {
		return ErrPropertyAccountNotFound
	}
	cp := *pa
	m.propertyAccounts[pa.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindPropertyAccountByID(ctx context.Context, id uuid.UUID) (*domain.PropertyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pa, ok := m.propertyAccounts[id]
	if !ok {
		return nil, ErrPropertyAccountNotFound
	}
	cp := *pa
	return &cp, nil
}

func (m *MemoryRepository) FindPropertyAccountByRegistryRef(ctx context.Context, company, registryRef string) (*domain.PropertyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pa := range m.propertyAccounts {
		if pa.Company == company && pa.PropertyRegistryRef == registryRef {
			cp := *pa
			return &cp, nil
		}
	}
	return nil, ErrPropertyAccountNotFound
}

func (m *MemoryRepository) ListActivePropertyAccounts(ctx context.Context, company string) ([]domain.PropertyAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PropertyAccount
	for _, pa := range m.propertyAccounts {
		if pa.Company == company && pa.Status == domain.AccountActive {
			out = append(out, *pa)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyRegistryRef < out[j].PropertyRegistryRef })
	return out, nil
}

// --- Resident accounts ---

func (m *MemoryRepository) CreateResidentAccount(ctx context.Context, ra *domain.ResidentAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.residentAccounts {
		if existing.PropertyAccountID == ra.PropertyAccountID &&
			strings.EqualFold(existing.ResidentName, ra.ResidentName) {
			return ErrDuplicateKey
		}
	}
	cp := *ra
	m.residentAccounts[ra.ID] = &cp
	return nil
}

func (m *MemoryRepository) SaveResidentAccount(ctx context.Context, ra *domain.ResidentAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.residentAccounts[ra.ID]; !ok {
		return ErrResidentAccountNotFound
	}
	cp := *ra
	m.residentAccounts[ra.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindResidentAccountByID(ctx context.Context, id uuid.UUID) (*domain.ResidentAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ra, ok := m.residentAccounts[id]
	if !ok {
		return nil, ErrResidentAccountNotFound
	}
	cp := *ra
	return &cp, nil
}

func (m *MemoryRepository) FindResidentAccountByName(ctx context.Context, propertyAccountID uuid.UUID, residentName string) (*domain.ResidentAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ra := range m.residentAccounts {
		if ra.PropertyAccountID == propertyAccountID && strings.EqualFold(ra.ResidentName, residentName) {
			cp := *ra
			return &cp, nil
		}
	}
	return nil, ErrResidentAccountNotFound
}

func (m *MemoryRepository) CountResidentAccounts(ctx context.Context, propertyAccountID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, ra := range m.residentAccounts {
		if ra.PropertyAccountID == propertyAccountID {
			count++
		}
	}
	return count, nil
}

// --- Credit balances ---

func (m *MemoryRepository) CreateCredit(ctx context.Context, cb *domain.CreditBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cb
	m.credits[cb.ID] = &cp
	return nil
}

func (m *MemoryRepository) SaveCredit(ctx context.Context, cb *domain.CreditBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credits[cb.ID]; !ok {
		return ErrCreditNotFound
	}
	cp := *cb
	m.credits[cb.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindCreditByID(ctx context.Context, id uuid.UUID) (*domain.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.credits[id]
	if !ok {
		return nil, ErrCreditNotFound
	}
	cp := *cb
	return &cp, nil
}

func (m *MemoryRepository) ListConsumableCredits(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CreditBalance
	for _, cb := range m.credits {
		if cb.PropertyAccountID == propertyAccountID && cb.Consumable() {
			out = append(out, *cb)
		}
	}
	sortCreditsFIFO(out)
	return out, nil
}

// sortCreditsFIFO orders credits by issuance date ascending, smaller original
// amount first within the same instant.
func sortCreditsFIFO(credits []domain.CreditBalance) {
	sort.Slice(credits, func(i, j int) bool {
		if credits[i].IssuedAt.Equal(credits[j].IssuedAt) {
			return credits[i].OriginalAmount.LessThan(credits[j].OriginalAmount)
		}
		return credits[i].IssuedAt.Before(credits[j].IssuedAt)
	})
}

func (m *MemoryRepository) ListExpiredCredits(ctx context.Context, asOf time.Time) ([]domain.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CreditBalance
	for _, cb := range m.credits {
		if cb.Consumable() && cb.ExpiryDate != nil && !cb.ExpiryDate.After(asOf) {
			out = append(out, *cb)
		}
	}
	sortCreditsFIFO(out)
	return out, nil
}

func (m *MemoryRepository) AppendCreditApplication(ctx context.Context, app *domain.CreditApplication, credit *domain.CreditBalance, invoice *domain.Invoice, account *domain.PropertyAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credits[credit.ID]; !ok {
		return ErrCreditNotFound
	}
	if _, ok := m.invoices[invoice.ID]; !ok {
		return ErrInvoiceNotFound
	}
	if _, ok := m.propertyAccounts[account.ID]; !ok {
		return ErrPropertyAccountNotFound
	}
	m.creditApps = append(m.creditApps, *app)
	creditCp := *credit
	m.credits[credit.ID] = &creditCp
	invCp := *invoice
	m.invoices[invoice.ID] = &invCp
	acctCp := *account
	m.propertyAccounts[account.ID] = &acctCp
	return nil
}

func (m *MemoryRepository) ListCreditApplications(ctx context.Context, creditID uuid.UUID) ([]domain.CreditApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CreditApplication
	for _, app := range m.creditApps {
		if app.CreditID == creditID {
			out = append(out, app)
		}
	}
	return out, nil
}

// --- Fines ---

func (m *MemoryRepository) CreateFine(ctx context.Context, f *domain.Fine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.fines[f.ID] = &cp
	return nil
}

func (m *MemoryRepository) SaveFine(ctx context.Context, f *domain.Fine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fines[f.ID]; !ok {
		return ErrFineNotFound
	}
	cp := *f
	m.fines[f.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindFineByID(ctx context.Context, id uuid.UUID) (*domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fines[id]
	if !ok {
		return nil, ErrFineNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MemoryRepository) ListOutstandingFines(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Fine
	for _, f := range m.fines {
		if f.PropertyAccountID == propertyAccountID &&
			(f.Status == domain.FineNotified || f.Status == domain.FineOverdue) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssessedAt.Before(out[j].AssessedAt) })
	return out, nil
}

func (m *MemoryRepository) ListOverdueFines(ctx context.Context, company string, asOf time.Time) ([]domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Fine
	for _, f := range m.fines {
		if company != "" && f.Company != company {
			continue
		}
		if (f.Status == domain.FineNotified || f.Status == domain.FineOverdue) && f.DueDate.Before(asOf) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssessedAt.Before(out[j].AssessedAt) })
	return out, nil
}

func (m *MemoryRepository) FindLateFeeFine(ctx context.Context, cycleID, invoiceID uuid.UUID) (*domain.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.fines {
		if f.BillingCycleID != nil && *f.BillingCycleID == cycleID &&
			f.InvoiceID != nil && *f.InvoiceID == invoiceID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, ErrFineNotFound
}

// --- Billing cycles ---

func (m *MemoryRepository) CreateCycle(ctx context.Context, c *domain.BillingCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.cycles {
		if existing.Company == c.Company && existing.CycleCode == c.CycleCode {
			return ErrDuplicateKey
		}
	}
	cp := *c
	m.cycles[c.ID] = &cp
	return nil
}

func (m *MemoryRepository) SaveCycle(ctx context.Context, c *domain.BillingCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[c.ID]; !ok {
		return ErrCycleNotFound
	}
	cp := *c
	m.cycles[c.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindCycleByID(ctx context.Context, id uuid.UUID) (*domain.BillingCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok {
		return nil, ErrCycleNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryRepository) FindCycleByCode(ctx context.Context, company, cycleCode string) (*domain.BillingCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cycles {
		if c.Company == company && c.CycleCode == cycleCode {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCycleNotFound
}

func (m *MemoryRepository) ListOpenCycles(ctx context.Context, company string) ([]domain.BillingCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BillingCycle
	for _, c := range m.cycles {
		if (company == "" || c.Company == company) && c.Mutable() {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *MemoryRepository) ListCyclesInWindow(ctx context.Context, company string, from, to time.Time) ([]domain.BillingCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BillingCycle
	for _, c := range m.cycles {
		if c.Company == company && !c.StartDate.Before(from) && !c.EndDate.After(to) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *MemoryRepository) AppendCycleAdjustment(ctx context.Context, adj *domain.CycleAdjustment, cycle *domain.BillingCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[cycle.ID]; !ok {
		return ErrCycleNotFound
	}
	m.adjustments = append(m.adjustments, *adj)
	cp := *cycle
	m.cycles[cycle.ID] = &cp
	return nil
}

// --- Invoices ---

func (m *MemoryRepository) FindInvoiceByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryRepository) FindInvoiceByCycleAndProperty(ctx context.Context, cycleID, propertyAccountID uuid.UUID) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.BillingCycleID == cycleID && inv.PropertyAccountID == propertyAccountID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

func (m *MemoryRepository) SaveInvoice(ctx context.Context, inv *domain.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.ID]; !ok {
		return ErrInvoiceNotFound
	}
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *MemoryRepository) ListUnpaidInvoices(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range m.invoices {
		if inv.PropertyAccountID == propertyAccountID && inv.Status != domain.InvoiceCancelled && !inv.Settled() {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *MemoryRepository) ListInvoicesByAccount(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range m.invoices {
		if inv.PropertyAccountID == propertyAccountID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *MemoryRepository) ListInvoicesByCycle(ctx context.Context, cycleID uuid.UUID) ([]domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range m.invoices {
		if inv.BillingCycleID == cycleID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerRef < out[j].CustomerRef })
	return out, nil
}

func (m *MemoryRepository) CommitInvoiceGeneration(ctx context.Context, commit InvoiceCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[commit.Cycle.ID]; !ok {
		return ErrCycleNotFound
	}
	if _, ok := m.propertyAccounts[commit.Account.ID]; !ok {
		return ErrPropertyAccountNotFound
	}
	invCp := *commit.Invoice
	m.invoices[commit.Invoice.ID] = &invCp
	accCp := *commit.Account
	m.propertyAccounts[commit.Account.ID] = &accCp
	cycleCp := *commit.Cycle
	m.cycles[commit.Cycle.ID] = &cycleCp
	if commit.Transition != nil {
		m.transitions = append(m.transitions, *commit.Transition)
	}
	return nil
}

// --- Payments ---

func (m *MemoryRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) SavePayment(ctx context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) ListPaymentsInStatusOlderThan(ctx context.Context, status domain.PaymentStatus, cutoff time.Time) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if p.Status == status && p.UpdatedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryRepository) ListPaymentsByAccount(ctx context.Context, propertyAccountID uuid.UUID) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if p.PropertyAccountID == propertyAccountID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedDate.Before(out[j].PostedDate) })
	return out, nil
}

func (m *MemoryRepository) CountPaymentsOnDate(ctx context.Context, company string, date time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	y, mo, d := date.Date()
	for _, p := range m.payments {
		py, pmo, pd := p.PostedDate.Date()
		if p.Company == company && py == y && pmo == mo && pd == d {
			count++
		}
	}
	return count, nil
}

func (m *MemoryRepository) CommitAllocation(ctx context.Context, commit AllocationCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate every participant before mutating anything.
	if _, ok := m.payments[commit.Payment.ID]; !ok {
		return ErrPaymentNotFound
	}
	account, ok := m.propertyAccounts[commit.AccountID]
	if !ok {
		return ErrPropertyAccountNotFound
	}
	for i := range commit.UpdatedInvoices {
		if _, ok := m.invoices[commit.UpdatedInvoices[i].ID]; !ok {
			return ErrInvoiceNotFound
		}
	}
	for i := range commit.UpdatedFines {
		if _, ok := m.fines[commit.UpdatedFines[i].ID]; !ok {
			return ErrFineNotFound
		}
	}
	for cycleID := range commit.CycleCollectedDeltas {
		if _, ok := m.cycles[cycleID]; !ok {
			return ErrCycleNotFound
		}
	}

	payCp := *commit.Payment
	m.payments[commit.Payment.ID] = &payCp
	m.allocations = append(m.allocations, commit.Allocations...)
	for i := range commit.UpdatedInvoices {
		cp := commit.UpdatedInvoices[i]
		m.invoices[cp.ID] = &cp
	}
	for i := range commit.UpdatedFines {
		cp := commit.UpdatedFines[i]
		m.fines[cp.ID] = &cp
	}
	if commit.NewCredit != nil {
		cp := *commit.NewCredit
		m.credits[cp.ID] = &cp
	}

	// Deltas are applied against the stored row under the mutex, so two
	// concurrent payments against one account both land.
	account.RunningBalance = domain.RoundMoney(account.RunningBalance.Add(commit.BalanceDelta))
	account.YTDPaid = domain.RoundMoney(account.YTDPaid.Add(commit.YTDPaidDelta))
	if commit.LastPaymentDate != nil {
		paid := *commit.LastPaymentDate
		account.LastPaymentDate = &paid
		account.LastPaymentAmount = commit.LastPaymentAmount
	}
	account.UpdatedAt = time.Now().UTC()

	for cycleID, delta := range commit.CycleCollectedDeltas {
		cycle := m.cycles[cycleID]
		if !cycle.Mutable() {
			continue
		}
		cycle.Aggregates.TotalCollected = domain.RoundMoney(cycle.Aggregates.TotalCollected.Add(delta))
		cycle.Aggregates.PendingAmount = domain.RoundMoney(cycle.Aggregates.TotalBilled.Sub(cycle.Aggregates.TotalCollected))
	}
	m.transitions = append(m.transitions, commit.Transitions...)
	return nil
}

func (m *MemoryRepository) ListPaymentAllocations(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PaymentAllocation
	for _, a := range m.allocations {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	// Allocations of one payment share a timestamp, so the applied order is
	// the insertion order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}

// --- Budgets ---

func (m *MemoryRepository) CreateBudget(ctx context.Context, b *domain.BudgetPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.budgets {
		if existing.Company == b.Company && existing.PeriodType == b.PeriodType &&
			existing.Year == b.Year && existing.PeriodIndex == b.PeriodIndex {
			return ErrDuplicateKey
		}
	}
	cp := *b
	m.budgets[b.ID] = &cp
	return nil
}

func (m *MemoryRepository) SaveBudget(ctx context.Context, b *domain.BudgetPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.budgets[b.ID]; !ok {
		return ErrBudgetNotFound
	}
	cp := *b
	m.budgets[b.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindBudgetByID(ctx context.Context, id uuid.UUID) (*domain.BudgetPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[id]
	if !ok {
		return nil, ErrBudgetNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryRepository) FindBudgetByPeriod(ctx context.Context, company string, periodType domain.BudgetPeriodType, year, periodIndex int) (*domain.BudgetPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.budgets {
		if b.Company == company && b.PeriodType == periodType && b.Year == year && b.PeriodIndex == periodIndex {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrBudgetNotFound
}

// --- Transparency policies ---

func (m *MemoryRepository) CreatePolicy(ctx context.Context, p *domain.TransparencyPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) SavePolicy(ctx context.Context, p *domain.TransparencyPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[p.ID]; !ok {
		return ErrPolicyNotFound
	}
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindEffectivePolicy(ctx context.Context, company string, asOf time.Time) (*domain.TransparencyPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.TransparencyPolicy
	for _, p := range m.policies {
		if p.Company != company || !p.Active || p.EffectiveFrom.After(asOf) {
			continue
		}
		if best == nil || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrPolicyNotFound
	}
	cp := *best
	return &cp, nil
}

// --- Premium services ---

func (m *MemoryRepository) CreatePremiumService(ctx context.Context, ps *domain.PremiumService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.premiumServices {
		if existing.Company == ps.Company && strings.EqualFold(existing.ServiceName, ps.ServiceName) &&
			existing.Status != domain.ServiceRetired {
			return ErrDuplicateKey
		}
	}
	cp := *ps
	m.premiumServices[ps.ID] = &cp
	return nil
}

func (m *MemoryRepository) SavePremiumService(ctx context.Context, ps *domain.PremiumService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.premiumServices[ps.ID]; !ok {
		return ErrPremiumServiceNotFound
	}
	cp := *ps
	m.premiumServices[ps.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindPremiumServiceByID(ctx context.Context, id uuid.UUID) (*domain.PremiumService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.premiumServices[id]
	if !ok {
		return nil, ErrPremiumServiceNotFound
	}
	cp := *ps
	return &cp, nil
}

func (m *MemoryRepository) ListPremiumServices(ctx context.Context, company string) ([]domain.PremiumService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PremiumService
	for _, ps := range m.premiumServices {
		if company == "" || ps.Company == company {
			out = append(out, *ps)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceName < out[j].ServiceName })
	return out, nil
}

// --- Event log ---

func (m *MemoryRepository) AppendTransition(ctx context.Context, tr *domain.StateTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, *tr)
	return nil
}

func (m *MemoryRepository) ListTransitions(ctx context.Context, entityRef string) ([]domain.StateTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StateTransition
	for _, tr := range m.transitions {
		if tr.EntityRef == entityRef {
			out = append(out, tr)
		}
	}
	return out, nil
}
