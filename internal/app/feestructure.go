/**
 * @description
 * Fee structure service: the approval-gated rule sets that turn property
 * attributes into monthly obligations. Handles the draft/approve/activate
 * lifecycle, the per-method fee calculation, and the monthly income estimate
 * across the active property portfolio.
 *
 * Key features:
 * - Drafts are the only editable state; approval freezes the rule set.
 * - Activation is exclusive per company: overlapping effective windows are
 *   rejected, or explicitly superseded via ActivateSuperseding.
 * - Fee math rounds half-even at line level, totals are recomputed from the
 *   rounded lines.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - github.com/shopspring/decimal: Money arithmetic.
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

// Calculation method validation bounds.
var (
	maxReservePct       = decimal.NewFromInt(50)
	maxEarlyDiscountPct = decimal.NewFromInt(20)
	maxSurchargePct     = decimal.NewFromInt(100)
)

// FeeStructureService manages fee structure lifecycle and fee calculation.
type FeeStructureService struct {
	repo       store.Repository
	properties PropertyRegistry
}

// NewFeeStructureService creates a new fee structure service instance.
func NewFeeStructureService(repo store.Repository, properties PropertyRegistry) *FeeStructureService {
	return &FeeStructureService{repo: repo, properties: properties}
}

// CreateFeeStructureInput carries the caller-supplied fields of a new draft.
type CreateFeeStructureInput struct {
	Company       string
	StructureCode string
	Name          string

	Method        domain.CalculationMethod
	BaseAmount    decimal.Decimal
	UnitTypeRates map[string]decimal.Decimal

	Reserve     domain.ReserveFund
	Adjustments domain.Adjustments

	EffectiveFrom time.Time
	EffectiveTo   *time.Time

	RequiresCommitteeApproval bool
}

// Create validates the input and persists a new Draft structure.
func (s *FeeStructureService) Create(ctx context.Context, in CreateFeeStructureInput) (*domain.FeeStructure, error) {
	now := time.Now().UTC()
	fs := &domain.FeeStructure{
		ID:                        uuid.New(),
		Company:                   in.Company,
		StructureCode:             in.StructureCode,
		Name:                      in.Name,
		Status:                    domain.FeeStructureDraft,
		Method:                    in.Method,
		BaseAmount:                in.BaseAmount,
		UnitTypeRates:             in.UnitTypeRates,
		Reserve:                   in.Reserve,
		Adjustments:               in.Adjustments,
		EffectiveFrom:             in.EffectiveFrom,
		EffectiveTo:               in.EffectiveTo,
		RequiresCommitteeApproval: in.RequiresCommitteeApproval,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err := validateFeeStructure(fs); err != nil {
		return nil, err
	}

	if err := s.repo.CreateFeeStructure(ctx, fs); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, domain.NewError(domain.ErrUniqueness, fs.Ref(), "structure code %q already exists for company %q", fs.StructureCode, fs.Company)
		}
		return nil, fmt.Errorf("failed to create fee structure: %w", err)
	}
	log.Printf("CreateFeeStructure: created %s (%s)", fs.Ref(), fs.Method)
	return fs, nil
}

// UpdateFeeStructureInput carries the editable fields of a draft.
type UpdateFeeStructureInput struct {
	Name          *string
	Method        *domain.CalculationMethod
	BaseAmount    *decimal.Decimal
	UnitTypeRates map[string]decimal.Decimal
	Reserve       *domain.ReserveFund
	Adjustments   *domain.Adjustments
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

// Update edits a Draft structure. Any other status is immutable.
func (s *FeeStructureService) Update(ctx context.Context, id uuid.UUID, in UpdateFeeStructureInput) (*domain.FeeStructure, error) {
	fs, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if fs.Status != domain.FeeStructureDraft {
		return nil, domain.NewError(domain.ErrStateMachine, fs.Ref(), "only draft structures are editable, status is %q", fs.Status)
	}

	if in.Name != nil {
		fs.Name = *in.Name
	}
	if in.Method != nil {
		fs.Method = *in.Method
	}
	if in.BaseAmount != nil {
		fs.BaseAmount = *in.BaseAmount
	}
	if in.UnitTypeRates != nil {
		fs.UnitTypeRates = in.UnitTypeRates
	}
	if in.Reserve != nil {
		fs.Reserve = *in.Reserve
	}
	if in.Adjustments != nil {
		fs.Adjustments = *in.Adjustments
	}
	if in.EffectiveFrom != nil {
		fs.EffectiveFrom = *in.EffectiveFrom
	}
	if in.EffectiveTo != nil {
		fs.EffectiveTo = in.EffectiveTo
	}
	if err := validateFeeStructure(fs); err != nil {
		return nil, err
	}

	fs.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveFeeStructure(ctx, fs); err != nil {
		return nil, fmt.Errorf("failed to save fee structure: %w", err)
	}
	return fs, nil
}

// SubmitForApproval moves a draft into the approval queue.
func (s *FeeStructureService) SubmitForApproval(ctx context.Context, id uuid.UUID, actor string) (*domain.FeeStructure, error) {
	return s.transition(ctx, id, actor, domain.FeeStructurePendingApproval, "submitted for approval", nil)
}

// Approve records the approver on a pending structure.
func (s *FeeStructureService) Approve(ctx context.Context, id uuid.UUID, approver string) (*domain.FeeStructure, error) {
	if approver == "" {
		return nil, domain.NewError(domain.ErrValidation, "", "approver is required")
	}
	now := time.Now().UTC()
	return s.transition(ctx, id, approver, domain.FeeStructureApproved, "approved", func(fs *domain.FeeStructure) {
		fs.ApprovedBy = &approver
		fs.ApprovalDate = &now
	})
}

// Reject returns a pending structure to the rejected terminal state.
func (s *FeeStructureService) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.FeeStructure, error) {
	return s.transition(ctx, id, actor, domain.FeeStructureRejected, reason, nil)
}

// Activate flips an approved structure Active. Activation fails when any
// other Active structure of the company has an overlapping effective window;
// use ActivateSuperseding to replace one.
func (s *FeeStructureService) Activate(ctx context.Context, id uuid.UUID, actor string) (*domain.FeeStructure, error) {
	return s.activate(ctx, id, actor, false)
}

// ActivateSuperseding flips an approved structure Active and supersedes every
// Active structure of the company whose effective window overlaps and whose
// effective_from is earlier than the new structure's.
func (s *FeeStructureService) ActivateSuperseding(ctx context.Context, id uuid.UUID, actor string) (*domain.FeeStructure, error) {
	return s.activate(ctx, id, actor, true)
}

func (s *FeeStructureService) activate(ctx context.Context, id uuid.UUID, actor string, supersede bool) (*domain.FeeStructure, error) {
	fs, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !fs.Status.CanTransition(domain.FeeStructureActive) {
		return nil, domain.NewError(domain.ErrStateMachine, fs.Ref(), "cannot activate from status %q", fs.Status)
	}
	if fs.RequiresCommitteeApproval && fs.ApprovedBy == nil {
		return nil, domain.NewError(domain.ErrApprovalRequired, fs.Ref(), "committee approval is required before activation")
	}

	now := time.Now().UTC()
	from := fs.Status
	fs.Status = domain.FeeStructureActive
	fs.UpdatedAt = now

	// The overlap decision runs inside the store's company-scoped critical
	// section against the Active rows as they stand there, so a concurrent
	// activation cannot slip an overlapping structure past the check.
	superseded := 0
	decide := func(active []domain.FeeStructure) ([]uuid.UUID, []domain.StateTransition, error) {
		var supersededIDs []uuid.UUID
		transitions := []domain.StateTransition{
			newTransition(fs.Company, "fee_structure", fs.Ref(), actor, string(from), string(domain.FeeStructureActive), "activated", now),
		}
		for i := range active {
			other := &active[i]
			if other.ID == fs.ID || !fs.Overlaps(other) {
				continue
			}
			if !supersede || !other.EffectiveFrom.Before(fs.EffectiveFrom) {
				return nil, nil, domain.NewError(domain.ErrValidation, fs.Ref(),
					"effective window overlaps active structure %q", other.StructureCode)
			}
			supersededIDs = append(supersededIDs, other.ID)
			transitions = append(transitions,
				newTransition(other.Company, "fee_structure", other.Ref(), actor,
					string(domain.FeeStructureActive), string(domain.FeeStructureSuperseded),
					fmt.Sprintf("superseded by %s", fs.StructureCode), now))
		}
		superseded = len(supersededIDs)
		return supersededIDs, transitions, nil
	}

	if err := s.repo.ActivateFeeStructureExclusive(ctx, fs, decide); err != nil {
		if domain.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("failed to activate fee structure: %w", err)
	}
	log.Printf("ActivateFeeStructure: %s active, %d superseded", fs.Ref(), superseded)
	return fs, nil
}

// CalculateFee evaluates the structure against one property profile.
// The structure must be active or frozen into an open cycle.
func (s *FeeStructureService) CalculateFee(fs *domain.FeeStructure, profile domain.PropertyProfile) (*domain.FeeBreakdown, error) {
	var base decimal.Decimal
	switch fs.Method {
	case domain.CalcFixed:
		base = fs.BaseAmount
	case domain.CalcPerOwnershipShare:
		base = fs.BaseAmount.Mul(profile.OwnershipShare)
	case domain.CalcPerSquareMeter:
		base = fs.BaseAmount.Mul(profile.BuiltArea)
	case domain.CalcPerUnitType:
		rate, ok := fs.UnitTypeRates[profile.UnitType]
		if !ok {
			return nil, domain.NewError(domain.ErrValidation, fs.Ref(),
				"no rate configured for unit type %q", profile.UnitType)
		}
		base = fs.BaseAmount.Mul(rate)
	default:
		return nil, domain.NewError(domain.ErrValidation, fs.Ref(), "unknown calculation method %q", fs.Method)
	}

	base = domain.RoundMoney(base)
	reserve := decimal.Zero
	if fs.Reserve.Enabled {
		reserve = domain.RoundMoney(base.Mul(domain.Percent(fs.Reserve.Percentage)))
	}

	return &domain.FeeBreakdown{
		BaseFee:     base,
		ReserveFund: reserve,
		TotalFee:    domain.RoundMoney(base.Add(reserve)),
		Method:      fs.Method,
	}, nil
}

// EstimateMonthlyIncome projects the structure across every active property
// account of the company. Returns the projected total and the number of
// properties counted.
func (s *FeeStructureService) EstimateMonthlyIncome(ctx context.Context, id uuid.UUID) (decimal.Decimal, int, error) {
	fs, err := s.find(ctx, id)
	if err != nil {
		return decimal.Zero, 0, err
	}

	accounts, err := s.repo.ListActivePropertyAccounts(ctx, fs.Company)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to list property accounts: %w", err)
	}

	total := decimal.Zero
	counted := 0
	for i := range accounts {
		rec, err := s.properties.GetProperty(ctx, fs.Company, accounts[i].PropertyRegistryRef)
		if err != nil {
			log.Printf("EstimateMonthlyIncome: skipping %s: %v", accounts[i].PropertyRegistryRef, err)
			continue
		}
		breakdown, err := s.CalculateFee(fs, profileFromRecord(rec))
		if err != nil {
			log.Printf("EstimateMonthlyIncome: skipping %s: %v", accounts[i].PropertyRegistryRef, err)
			continue
		}
		total = total.Add(breakdown.TotalFee)
		counted++
	}
	return domain.RoundMoney(total), counted, nil
}

// Get loads a fee structure by id.
func (s *FeeStructureService) Get(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	return s.find(ctx, id)
}

// GetByCode loads a fee structure by (company, structure_code).
func (s *FeeStructureService) GetByCode(ctx context.Context, company, code string) (*domain.FeeStructure, error) {
	fs, err := s.repo.FindFeeStructureByCode(ctx, company, code)
	if err != nil {
		if errors.Is(err, store.ErrFeeStructureNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "fee_structure/"+company+"/"+code, "fee structure not found")
		}
		return nil, fmt.Errorf("failed to find fee structure: %w", err)
	}
	return fs, nil
}

func (s *FeeStructureService) find(ctx context.Context, id uuid.UUID) (*domain.FeeStructure, error) {
	fs, err := s.repo.FindFeeStructureByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrFeeStructureNotFound) {
			return nil, domain.NewError(domain.ErrValidation, "fee_structure/"+id.String(), "fee structure not found")
		}
		return nil, fmt.Errorf("failed to find fee structure: %w", err)
	}
	return fs, nil
}

// transition applies a single-status move plus the event-log row.
func (s *FeeStructureService) transition(ctx context.Context, id uuid.UUID, actor string, to domain.FeeStructureStatus, reason string, mutate func(*domain.FeeStructure)) (*domain.FeeStructure, error) {
	fs, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !fs.Status.CanTransition(to) {
		return nil, domain.NewError(domain.ErrStateMachine, fs.Ref(), "cannot transition from %q to %q", fs.Status, to)
	}

	from := fs.Status
	fs.Status = to
	if mutate != nil {
		mutate(fs)
	}
	fs.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveFeeStructure(ctx, fs); err != nil {
		return nil, fmt.Errorf("failed to save fee structure: %w", err)
	}
	recordTransition(ctx, s.repo, newTransition(fs.Company, "fee_structure", fs.Ref(), actor, string(from), string(to), reason, fs.UpdatedAt))
	return fs, nil
}

// validateFeeStructure enforces the boundary rules on a draft.
func validateFeeStructure(fs *domain.FeeStructure) error {
	if fs.Company == "" || fs.StructureCode == "" {
		return domain.NewError(domain.ErrValidation, fs.Ref(), "company and structure code are required")
	}
	if !domain.ValidCalculationMethod(fs.Method) {
		return domain.NewError(domain.ErrValidation, fs.Ref(), "unknown calculation method %q", fs.Method)
	}
	if fs.BaseAmount.IsNegative() {
		return domain.NewError(domain.ErrValidation, fs.Ref(), "base amount must not be negative")
	}
	if fs.Method == domain.CalcPerUnitType && len(fs.UnitTypeRates) == 0 {
		return domain.NewError(domain.ErrValidation, fs.Ref(), "per-unit-type structures need at least one unit type rate")
	}
	for unitType, rate := range fs.UnitTypeRates {
		if rate.IsNegative() {
			return domain.NewError(domain.ErrValidation, fs.Ref(), "rate for unit type %q must not be negative", unitType)
		}
	}
	if fs.Reserve.Enabled {
		if fs.Reserve.Percentage.IsNegative() || fs.Reserve.Percentage.GreaterThan(maxReservePct) {
			return domain.NewError(domain.ErrValidation, fs.Ref(), "reserve percentage must be within [0, %s]", maxReservePct)
		}
	}
	adj := fs.Adjustments
	if adj.EarlyPaymentDiscountPct.IsNegative() || adj.EarlyPaymentDiscountPct.GreaterThan(maxEarlyDiscountPct) {
		return domain.NewError(domain.ErrValidation, fs.Ref(), "early payment discount must be within [0, %s]", maxEarlyDiscountPct)
	}
	if adj.LatePaymentSurchargePct.IsNegative() || adj.LatePaymentSurchargePct.GreaterThan(maxSurchargePct) {
		return domain.NewError(domain.ErrValidation, fs.Ref(), "late payment surcharge must be within [0, %s]", maxSurchargePct)
	}
	if adj.EarlyPaymentWindowDays < 0 || adj.LatePaymentGraceDays < 0 {
		return domain.NewError(domain.ErrValidation, fs.Ref(), "adjustment day windows must not be negative")
	}
	if fs.EffectiveTo != nil && !fs.EffectiveFrom.Before(*fs.EffectiveTo) {
		return domain.NewError(domain.ErrValidation, fs.Ref(), "effective_from must precede effective_to")
	}
	return nil
}
