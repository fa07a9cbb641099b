/**
 * @description
 * Transparency service: disclosure decisions for every read surfaced to
 * residents. Evaluation is a pure function of (policy, viewer role, data
 * kind, ownership); administrators and committee members always see
 * everything, resident-facing decisions derive from the transparency level
 * with per-area toggles overriding.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
)

// TransparencyService manages disclosure policies and evaluates them.
type TransparencyService struct {
	repo         store.Repository
	defaultLevel domain.TransparencyLevel
}

// NewTransparencyService creates a new transparency service instance. The
// default level applies to companies without an effective policy document.
func NewTransparencyService(repo store.Repository, defaultLevel domain.TransparencyLevel) *TransparencyService {
	if !domain.ValidTransparencyLevel(defaultLevel) {
		defaultLevel = domain.TransparencyStandard
	}
	return &TransparencyService{repo: repo, defaultLevel: defaultLevel}
}

// CreatePolicyInput carries the fields of a new policy document.
type CreatePolicyInput struct {
	Company       string
	ConfigName    string
	EffectiveFrom time.Time
	Level         domain.TransparencyLevel
	DefaultAccess domain.AccessMode
	AreaToggles   map[domain.DataKind]domain.AccessMode
}

// CreatePolicy persists a new Active policy document. Policies are versioned
// by effective_from; the latest effective one wins at query time.
func (s *TransparencyService) CreatePolicy(ctx context.Context, in CreatePolicyInput) (*domain.TransparencyPolicy, error) {
	if in.ConfigName == "" {
		return nil, domain.NewError(domain.ErrValidation, "", "config name is required")
	}
	if !domain.ValidTransparencyLevel(in.Level) {
		return nil, domain.NewError(domain.ErrValidation, "", "unknown transparency level %q", in.Level)
	}
	switch in.DefaultAccess {
	case domain.AccessReadOnly, domain.AccessLimitedRead, domain.AccessFullRead, domain.AccessNone:
	default:
		return nil, domain.NewError(domain.ErrValidation, "", "unknown access mode %q", in.DefaultAccess)
	}
	for kind, mode := range in.AreaToggles {
		switch mode {
		case domain.AccessReadOnly, domain.AccessLimitedRead, domain.AccessFullRead, domain.AccessNone:
		default:
			return nil, domain.NewError(domain.ErrValidation, "", "unknown access mode %q for area %q", mode, kind)
		}
	}

	now := time.Now().UTC()
	p := &domain.TransparencyPolicy{
		ID:            uuid.New(),
		Company:       in.Company,
		ConfigName:    in.ConfigName,
		Active:        true,
		EffectiveFrom: in.EffectiveFrom,
		Level:         in.Level,
		DefaultAccess: in.DefaultAccess,
		AreaToggles:   in.AreaToggles,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreatePolicy(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create transparency policy: %w", err)
	}
	log.Printf("CreatePolicy: created %s at level %s", p.Ref(), p.Level)
	return p, nil
}

// Deactivate retires a policy document.
func (s *TransparencyService) Deactivate(ctx context.Context, p *domain.TransparencyPolicy) error {
	p.Active = false
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.SavePolicy(ctx, p); err != nil {
		return fmt.Errorf("failed to save transparency policy: %w", err)
	}
	return nil
}

// EvaluateFor decides a disclosure for the company's effective policy at
// asOf. Companies without a policy fall back to the configured default level
// with read-only default access.
func (s *TransparencyService) EvaluateFor(ctx context.Context, company string, role domain.ViewerRole, kind domain.DataKind, ownAccount bool, asOf time.Time) (domain.Decision, error) {
	policy, err := s.repo.FindEffectivePolicy(ctx, company, asOf)
	if err != nil {
		if errors.Is(err, store.ErrPolicyNotFound) {
			policy = &domain.TransparencyPolicy{
				Company:       company,
				Level:         s.defaultLevel,
				DefaultAccess: domain.AccessReadOnly,
			}
		} else {
			return domain.DecisionDeny, fmt.Errorf("failed to find effective policy: %w", err)
		}
	}
	return Evaluate(policy, role, kind, ownAccount), nil
}

// Evaluate is the pure disclosure decision. Administrators and committee
// members always see everything; resident-facing decisions derive from the
// transparency level, with area toggles overriding.
func Evaluate(policy *domain.TransparencyPolicy, role domain.ViewerRole, kind domain.DataKind, ownAccount bool) domain.Decision {
	if role == domain.RoleAdministrator || role == domain.RoleCommittee {
		return domain.DecisionAllow
	}

	if mode, ok := policy.AreaToggles[kind]; ok {
		return modeDecision(mode)
	}
	if policy.Level == domain.TransparencyCustom {
		return modeDecision(policy.DefaultAccess)
	}

	if communityKind(kind) {
		return communityDecision(policy.Level)
	}
	if !ownAccount {
		// Another unit's personal data is visible only under full
		// transparency.
		if policy.Level == domain.TransparencyFull {
			return domain.DecisionAllow
		}
		return domain.DecisionDeny
	}
	return ownDataDecision(policy.Level, kind)
}

// communityKind reports whether the data area is community-level rather than
// per-account.
func communityKind(kind domain.DataKind) bool {
	return kind == domain.DataCycleMetrics || kind == domain.DataBudgets
}

func communityDecision(level domain.TransparencyLevel) domain.Decision {
	switch level {
	case domain.TransparencyBasic:
		return domain.DecisionDeny
	case domain.TransparencyStandard:
		return domain.DecisionRedactAmounts
	default:
		return domain.DecisionAllow
	}
}

func ownDataDecision(level domain.TransparencyLevel, kind domain.DataKind) domain.Decision {
	switch level {
	case domain.TransparencyBasic:
		if kind == domain.DataAccountBalances || kind == domain.DataInvoices {
			return domain.DecisionAllow
		}
		return domain.DecisionDeny
	case domain.TransparencyStandard:
		if kind == domain.DataCredits {
			return domain.DecisionRedactAmounts
		}
		return domain.DecisionAllow
	default:
		return domain.DecisionAllow
	}
}

func modeDecision(mode domain.AccessMode) domain.Decision {
	switch mode {
	case domain.AccessNone:
		return domain.DecisionDeny
	case domain.AccessLimitedRead:
		return domain.DecisionRedactAmounts
	default:
		return domain.DecisionAllow
	}
}
