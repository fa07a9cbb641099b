/**
 * @description
 * Property account service: per-unit ledger heads. Opening validates the unit
 * and its customer against the external registries; lifecycle moves through
 * active/suspended/closed with event-log rows; aggregate recomputation derives
 * pending amount, payment success rate, and average payment delay from the
 * invoice and payment history.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - PropertyRegistry, CustomerRegistry: External read-only registries.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
)

// PropertyAccountService manages the per-unit ledger heads.
type PropertyAccountService struct {
	repo       store.Repository
	properties PropertyRegistry
	customers  CustomerRegistry
}

// NewPropertyAccountService creates a new property account service instance.
func NewPropertyAccountService(repo store.Repository, properties PropertyRegistry, customers CustomerRegistry) *PropertyAccountService {
	return &PropertyAccountService{repo: repo, properties: properties, customers: customers}
}

// OpenPropertyAccountInput carries the fields of a new property account.
type OpenPropertyAccountInput struct {
	Company             string
	PropertyRegistryRef string
	CustomerRef         string

	BillingFrequency     domain.BillingFrequency
	BillingDay           int
	BillingStartDate     time.Time
	AutoGenerateInvoices bool
}

// Open validates the unit and customer against the registries and creates the
// account. One account per unit per company.
func (s *PropertyAccountService) Open(ctx context.Context, in OpenPropertyAccountInput) (*domain.PropertyAccount, error) {
	if in.BillingDay < 1 || in.BillingDay > 31 {
		return nil, domain.NewError(domain.ErrValidation, "", "billing day must be within [1, 31], got %d", in.BillingDay)
	}
	switch in.BillingFrequency {
	case domain.BillMonthly, domain.BillQuarterly, domain.BillAnnual:
	default:
		return nil, domain.NewError(domain.ErrValidation, "", "unknown billing frequency %q", in.BillingFrequency)
	}

	rec, err := s.properties.GetProperty(ctx, in.Company, in.PropertyRegistryRef)
	if err != nil {
		return nil, registryError("property", in.PropertyRegistryRef, err)
	}
	if !rec.Active {
		return nil, domain.NewError(domain.ErrLinkIntegrity, "property_account/"+in.Company+"/"+in.PropertyRegistryRef,
			"property %q is inactive in the registry", in.PropertyRegistryRef)
	}
	if rec.Company != in.Company {
		return nil, domain.NewError(domain.ErrLinkIntegrity, "property_account/"+in.Company+"/"+in.PropertyRegistryRef,
			"property %q belongs to company %q", in.PropertyRegistryRef, rec.Company)
	}

	cust, err := s.customers.GetCustomer(ctx, in.Company, in.CustomerRef)
	if err != nil {
		return nil, registryError("customer", in.CustomerRef, err)
	}
	switch domain.CustomerGroup(cust.CustomerGroup) {
	case domain.GroupOwners, domain.GroupResidents:
	default:
		return nil, domain.NewError(domain.ErrLinkIntegrity, "property_account/"+in.Company+"/"+in.PropertyRegistryRef,
			"customer %q must belong to the Owners or Residents group, got %q", in.CustomerRef, cust.CustomerGroup)
	}

	now := time.Now().UTC()
	pa := &domain.PropertyAccount{
		ID:                   uuid.New(),
		Company:              in.Company,
		PropertyRegistryRef:  in.PropertyRegistryRef,
		CustomerRef:          in.CustomerRef,
		Status:               domain.AccountActive,
		RunningBalance:       decimal.Zero,
		LastPaymentAmount:    decimal.Zero,
		YTDPaid:              decimal.Zero,
		YTDInvoiced:          decimal.Zero,
		BillingFrequency:     in.BillingFrequency,
		BillingDay:           in.BillingDay,
		BillingStartDate:     in.BillingStartDate,
		AutoGenerateInvoices: in.AutoGenerateInvoices,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.CreatePropertyAccount(ctx, pa); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.ErrUniqueness, pa.Ref(), "an account already exists for property %q", in.PropertyRegistryRef)
		}
		return nil, fmt.Errorf("failed to create property account: %w", err)
	}
	log.Printf("OpenPropertyAccount: opened %s for customer %s", pa.Ref(), pa.CustomerRef)
	return pa, nil
}

// Suspend pauses an active account. Suspended accounts receive no generated
// invoices but still accept payments.
func (s *PropertyAccountService) Suspend(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.PropertyAccount, error) {
	return s.transition(ctx, id, actor, domain.AccountSuspended, reason)
}

// Resume reactivates a suspended account.
func (s *PropertyAccountService) Resume(ctx context.Context, id uuid.UUID, actor string) (*domain.PropertyAccount, error) {
	return s.transition(ctx, id, actor, domain.AccountActive, "resumed")
}

// Close retires an account permanently. Closing requires a settled ledger.
func (s *PropertyAccountService) Close(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.PropertyAccount, error) {
	pa, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	unpaid, err := s.repo.ListUnpaidInvoices(ctx, pa.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid invoices: %w", err)
	}
	if len(unpaid) > 0 {
		return nil, domain.NewError(domain.ErrStateMachine, pa.Ref(), "cannot close with %d unpaid invoices", len(unpaid))
	}
	return s.transition(ctx, id, actor, domain.AccountClosed, reason)
}

// AttachFeeStructure links the account to an Active fee structure of the same
// company. The link drives invoice generation for cycles billed per account.
func (s *PropertyAccountService) AttachFeeStructure(ctx context.Context, id, feeStructureID uuid.UUID, actor string) (*domain.PropertyAccount, error) {
	pa, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	fs, err := s.repo.FindFeeStructureByID(ctx, feeStructureID)
	if err != nil {
		if errors.Is(err, store.ErrFeeStructureNotFound) {
			return nil, domain.NewError(domain.ErrLinkIntegrity, pa.Ref(), "fee structure %s not found", feeStructureID)
		}
		return nil, fmt.Errorf("failed to find fee structure: %w", err)
	}
	if fs.Status != domain.FeeStructureActive {
		return nil, domain.NewError(domain.ErrLinkIntegrity, pa.Ref(), "fee structure %q is not active", fs.StructureCode)
	}
	if fs.Company != pa.Company {
		return nil, domain.NewError(domain.ErrLinkIntegrity, pa.Ref(), "fee structure %q belongs to company %q", fs.StructureCode, fs.Company)
	}

	pa.FeeStructureID = &fs.ID
	pa.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePropertyAccount(ctx, pa); err != nil {
		return nil, fmt.Errorf("failed to save property account: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(pa.Company, "property_account", pa.Ref(), actor,
		string(pa.Status), string(pa.Status), fmt.Sprintf("attached fee structure %s", fs.StructureCode), pa.UpdatedAt))
	return pa, nil
}

// RecomputeAggregates rebuilds the derived figures from invoice and payment
// history: pending amount, payment success rate, and average payment delay.
func (s *PropertyAccountService) RecomputeAggregates(ctx context.Context, id uuid.UUID) (*domain.PropertyAccountAggregates, error) {
	pa, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	unpaid, err := s.repo.ListUnpaidInvoices(ctx, pa.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpaid invoices: %w", err)
	}
	pending := decimal.Zero
	for i := range unpaid {
		pending = pending.Add(unpaid[i].Outstanding())
	}

	payments, err := s.repo.ListPaymentsByAccount(ctx, pa.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	// Average delay counts processed payments against the due date of the
	// invoice each payment most plausibly settled. The full invoice history
	// feeds the match, so a payment that settled its invoice still counts.
	// Negative delays (early payments) pull the average down.
	invoices, err := s.repo.ListInvoicesByAccount(ctx, pa.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	delaySum := decimal.Zero
	delayCount := 0
	for i := range payments {
		p := &payments[i]
		if p.Status != domain.PaymentProcessed || p.ProcessedAt == nil {
			continue
		}
		due := nearestDueDate(invoices, p.PostedDate)
		if due == nil {
			continue
		}
		days := p.PostedDate.Sub(*due).Hours() / 24
		delaySum = delaySum.Add(decimal.NewFromFloat(days))
		delayCount++
	}
	avgDelay := decimal.Zero
	if delayCount > 0 {
		avgDelay = domain.RoundMoney(delaySum.Div(decimal.NewFromInt(int64(delayCount))))
	}

	return &domain.PropertyAccountAggregates{
		PendingAmount:       domain.RoundMoney(pending),
		PaymentSuccessRate:  pa.PaymentSuccessRate(),
		AvgPaymentDelayDays: avgDelay,
	}, nil
}

// nearestDueDate finds the due date of the invoice a payment most plausibly
// settled: the latest due date not after the posted date, else the earliest.
// Cancelled invoices never billed anything and are skipped.
func nearestDueDate(invoices []domain.Invoice, postedAt time.Time) *time.Time {
	var best, earliest *time.Time
	for i := range invoices {
		if invoices[i].Status == domain.InvoiceCancelled {
			continue
		}
		due := invoices[i].DueDate
		if earliest == nil || due.Before(*earliest) {
			d := due
			earliest = &d
		}
		if due.After(postedAt) {
			continue
		}
		if best == nil || due.After(*best) {
			d := due
			best = &d
		}
	}
	if best == nil {
		return earliest
	}
	return best
}

// Get loads a property account by id.
func (s *PropertyAccountService) Get(ctx context.Context, id uuid.UUID) (*domain.PropertyAccount, error) {
	return s.find(ctx, id)
}

// GetByRegistryRef loads a property account by (company, registry ref).
func (s *PropertyAccountService) GetByRegistryRef(ctx context.Context, company, ref string) (*domain.PropertyAccount, error) {
	pa, err := s.repo.FindPropertyAccountByRegistryRef(ctx, company, ref)
	if err != nil {
		if errors.Is(err, store.ErrPropertyAccountNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "property_account/"+company+"/"+ref, "property account not found")
		}
		return nil, fmt.Errorf("failed to find property account: %w", err)
	}
	return pa, nil
}

func (s *PropertyAccountService) find(ctx context.Context, id uuid.UUID) (*domain.PropertyAccount, error) {
	pa, err := s.repo.FindPropertyAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrPropertyAccountNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "property_account/"+id.String(), "property account not found")
		}
		return nil, fmt.Errorf("failed to find property account: %w", err)
	}
	return pa, nil
}

func (s *PropertyAccountService) transition(ctx context.Context, id uuid.UUID, actor string, to domain.AccountStatus, reason string) (*domain.PropertyAccount, error) {
	pa, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pa.Status.CanTransition(to) {
		return nil, domain.NewError(domain.ErrStateMachine, pa.Ref(), "cannot transition from %q to %q", pa.Status, to)
	}
	from := pa.Status
	pa.Status = to
	pa.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePropertyAccount(ctx, pa); err != nil {
		return nil, fmt.Errorf("failed to save property account: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(pa.Company, "property_account", pa.Ref(), actor, string(from), string(to), reason, pa.UpdatedAt))
	return pa, nil
}

// registryError maps a registry client failure onto a core error kind.
func registryError(kind, ref string, err error) error {
	var apiErr interface{ NotFound() bool }
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return domain.NewError(domain.ErrLinkIntegrity, "", "%s %q not found in the registry", kind, ref)
	}
	return domain.NewError(domain.ErrDependency, "", "%s registry unavailable: %v", kind, err)
}
