/**
 * @description
 * Premium service catalog and usage billing: amenities (spa, restaurant,
 * recreation) a company offers on top of the regular maintenance obligations.
 * Services move through draft/trial/active/suspended/retired; usage charges
 * land on the resident account (through its limit checks) or directly on the
 * property ledger, depending on the service's charge target.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Usage-charged events.
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
	"github.com/habitora/finance-service/pkg/rabbitmq"
)

// maxMemberDiscountPct caps the member discount of a premium service.
var maxMemberDiscountPct = decimal.NewFromInt(50)

// PremiumServiceService manages the premium service catalog and charges usage
// against accounts.
type PremiumServiceService struct {
	repo      store.Repository
	residents *ResidentAccountService
	producer  rabbitmq.Publisher
}

// NewPremiumServiceService creates a new premium service service instance.
func NewPremiumServiceService(repo store.Repository, residents *ResidentAccountService, producer rabbitmq.Publisher) *PremiumServiceService {
	return &PremiumServiceService{
		repo:      repo,
		residents: residents,
		producer:  producer,
	}
}

// CreatePremiumServiceInput carries the fields of a new catalog entry.
type CreatePremiumServiceInput struct {
	Company           string
	ServiceName       string
	Category          domain.ServiceCategory
	PricingModel      domain.PricingModel
	BasePrice         decimal.Decimal
	MemberDiscountPct decimal.Decimal
	ChargeTarget      domain.ChargeTarget
}

// Create registers a new premium service in the draft state. The name is
// unique per company among non-retired services.
func (s *PremiumServiceService) Create(ctx context.Context, in CreatePremiumServiceInput) (*domain.PremiumService, error) {
	if in.Company == "" {
		return nil, domain.NewError(domain.ErrValidation, "", "company is required")
	}
	if in.ServiceName == "" {
		return nil, domain.NewError(domain.ErrValidation, "", "service name is required")
	}
	if !domain.ValidServiceCategory(in.Category) {
		return nil, domain.NewError(domain.ErrValidation, "", "unknown service category %q", in.Category)
	}
	if !domain.ValidPricingModel(in.PricingModel) {
		return nil, domain.NewError(domain.ErrValidation, "", "unknown pricing model %q", in.PricingModel)
	}
	if !in.BasePrice.IsPositive() {
		return nil, domain.NewError(domain.ErrValidation, "", "base price must be positive")
	}
	if in.MemberDiscountPct.IsNegative() || in.MemberDiscountPct.GreaterThan(maxMemberDiscountPct) {
		return nil, domain.NewError(domain.ErrValidation, "", "member discount must be between 0 and %s percent", maxMemberDiscountPct)
	}
	if in.ChargeTarget != domain.ChargeResidentAccount && in.ChargeTarget != domain.ChargePropertyAccount {
		return nil, domain.NewError(domain.ErrValidation, "", "unknown charge target %q", in.ChargeTarget)
	}

	now := time.Now().UTC()
	ps := &domain.PremiumService{
		ID:                uuid.New(),
		Company:           in.Company,
		ServiceName:       in.ServiceName,
		Category:          in.Category,
		Status:            domain.ServiceDraft,
		PricingModel:      in.PricingModel,
		BasePrice:         domain.RoundMoney(in.BasePrice),
		MemberDiscountPct: in.MemberDiscountPct,
		ChargeTarget:      in.ChargeTarget,
		TotalRevenue:      decimal.Zero,
		UsageCount:        0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreatePremiumService(ctx, ps); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.ErrUniqueness, ps.Ref(), "service %q already exists for this company", in.ServiceName)
		}
		return nil, fmt.Errorf("failed to create premium service: %w", err)
	}
	log.Printf("CreatePremiumService: registered %s (%s, %s)", ps.Ref(), ps.Category, ps.PricingModel)
	return ps, nil
}

// StartTrial launches a draft service in trial mode.
func (s *PremiumServiceService) StartTrial(ctx context.Context, id uuid.UUID, actor string) (*domain.PremiumService, error) {
	return s.transition(ctx, id, actor, domain.ServiceTrial, "trial started")
}

// Activate makes the service chargeable at full standing.
func (s *PremiumServiceService) Activate(ctx context.Context, id uuid.UUID, actor string) (*domain.PremiumService, error) {
	return s.transition(ctx, id, actor, domain.ServiceActive, "activated")
}

// Suspend takes an active service out of rotation without retiring it.
func (s *PremiumServiceService) Suspend(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.PremiumService, error) {
	return s.transition(ctx, id, actor, domain.ServiceSuspended, reason)
}

// Resume returns a suspended service to active.
func (s *PremiumServiceService) Resume(ctx context.Context, id uuid.UUID, actor string) (*domain.PremiumService, error) {
	return s.transition(ctx, id, actor, domain.ServiceActive, "resumed")
}

// Retire takes the service out of the catalog permanently. Revenue and usage
// figures stay on the retired row.
func (s *PremiumServiceService) Retire(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.PremiumService, error) {
	return s.transition(ctx, id, actor, domain.ServiceRetired, reason)
}

// ChargeUsageInput carries one usage charge. AccountID names the resident or
// property account per the service's charge target.
type ChargeUsageInput struct {
	ServiceID uuid.UUID
	AccountID uuid.UUID
	Units     int
	Member    bool
	// ApprovalToken authorizes resident charges at or above the approval
	// threshold.
	ApprovalToken string
	Actor         string
	Reference     string
}

// ChargeUsage bills one use of the service. Resident charges run through the
// resident ledger with its credit, daily, and approval checks; property
// charges debit the running balance directly. The service's revenue and usage
// counters advance on success.
func (s *PremiumServiceService) ChargeUsage(ctx context.Context, in ChargeUsageInput) (*domain.PremiumService, decimal.Decimal, error) {
	ps, err := s.find(ctx, in.ServiceID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if !ps.Chargeable() {
		return nil, decimal.Zero, domain.NewError(domain.ErrStateMachine, ps.Ref(), "service is %q, only active or trial services accept charges", ps.Status)
	}
	if in.Units < 1 {
		return nil, decimal.Zero, domain.NewError(domain.ErrValidation, ps.Ref(), "usage units must be at least 1")
	}
	price := ps.PriceFor(in.Units, in.Member)

	switch ps.ChargeTarget {
	case domain.ChargeResidentAccount:
		reference := in.Reference
		if reference == "" {
			reference = "premium service " + ps.ServiceName
		}
		if _, err := s.residents.PostTransaction(ctx, PostTransactionInput{
			ResidentAccountID: in.AccountID,
			Amount:            price.Neg(),
			Type:              domain.ResidentTxCharge,
			Reference:         reference,
			ApprovalToken:     in.ApprovalToken,
		}); err != nil {
			return nil, decimal.Zero, err
		}
	case domain.ChargePropertyAccount:
		pa, err := s.repo.FindPropertyAccountByID(ctx, in.AccountID)
		if err != nil {
			if errors.Is(err, store.ErrPropertyAccountNotFound) {
				return nil, decimal.Zero, domain.NewError(domain.ErrLinkIntegrity, ps.Ref(), "property account %s not found", in.AccountID)
			}
			return nil, decimal.Zero, fmt.Errorf("failed to find property account: %w", err)
		}
		if pa.Status != domain.AccountActive {
			return nil, decimal.Zero, domain.NewError(domain.ErrStateMachine, pa.Ref(), "account is %q, only active accounts accept charges", pa.Status)
		}
		if pa.Company != ps.Company {
			return nil, decimal.Zero, domain.NewError(domain.ErrLinkIntegrity, ps.Ref(), "account %s belongs to company %q", in.AccountID, pa.Company)
		}
		pa.RunningBalance = domain.RoundMoney(pa.RunningBalance.Sub(price))
		pa.UpdatedAt = time.Now().UTC()
		if err := s.repo.SavePropertyAccount(ctx, pa); err != nil {
			return nil, decimal.Zero, fmt.Errorf("failed to save property account: %w", err)
		}
	}

	ps.TotalRevenue = domain.RoundMoney(ps.TotalRevenue.Add(price))
	ps.UsageCount++
	ps.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePremiumService(ctx, ps); err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to save premium service: %w", err)
	}

	event := domain.ServiceChargedEvent{
		Company:     ps.Company,
		ServiceID:   ps.ID,
		ServiceName: ps.ServiceName,
		AccountID:   in.AccountID,
		Units:       in.Units,
		Amount:      price.String(),
		Timestamp:   time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, financeEventsExchange, rabbitmq.RoutingServiceCharged, event); err != nil {
		log.Printf("WARN: failed to publish %s for %s: %v", rabbitmq.RoutingServiceCharged, ps.Ref(), err)
	}
	log.Printf("ChargeUsage: %s billed %s (%d units) to %s", ps.Ref(), price, in.Units, in.AccountID)
	return ps, price, nil
}

// Quote computes the charge for the given usage without billing anything.
func (s *PremiumServiceService) Quote(ctx context.Context, id uuid.UUID, units int, member bool) (decimal.Decimal, error) {
	ps, err := s.find(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if units < 1 {
		units = 1
	}
	return ps.PriceFor(units, member), nil
}

// Get loads a premium service by id.
func (s *PremiumServiceService) Get(ctx context.Context, id uuid.UUID) (*domain.PremiumService, error) {
	return s.find(ctx, id)
}

// List returns the company's catalog in name order. Empty company lists every
// company.
func (s *PremiumServiceService) List(ctx context.Context, company string) ([]domain.PremiumService, error) {
	return s.repo.ListPremiumServices(ctx, company)
}

func (s *PremiumServiceService) find(ctx context.Context, id uuid.UUID) (*domain.PremiumService, error) {
	ps, err := s.repo.FindPremiumServiceByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrPremiumServiceNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "premium_service/"+id.String(), "premium service not found")
		}
		return nil, fmt.Errorf("failed to find premium service: %w", err)
	}
	return ps, nil
}

func (s *PremiumServiceService) transition(ctx context.Context, id uuid.UUID, actor string, to domain.ServiceStatus, reason string) (*domain.PremiumService, error) {
	ps, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ps.Status.CanTransition(to) {
		return nil, domain.NewError(domain.ErrStateMachine, ps.Ref(), "cannot transition from %q to %q", ps.Status, to)
	}
	from := ps.Status
	ps.Status = to
	ps.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePremiumService(ctx, ps); err != nil {
		return nil, fmt.Errorf("failed to save premium service: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(ps.Company, "premium_service", ps.Ref(), actor, string(from), string(to), reason, ps.UpdatedAt))
	return ps, nil
}
