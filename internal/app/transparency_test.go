package app

import (
	"context"
	"testing"
	"time"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
)

func TestEvaluateDisclosure(t *testing.T) {
	policy := func(level domain.TransparencyLevel) *domain.TransparencyPolicy {
		return &domain.TransparencyPolicy{Level: level, DefaultAccess: domain.AccessReadOnly}
	}

	tests := []struct {
		name   string
		policy *domain.TransparencyPolicy
		role   domain.ViewerRole
		kind   domain.DataKind
		own    bool
		want   domain.Decision
	}{
		{"administrator sees everything", policy(domain.TransparencyBasic), domain.RoleAdministrator, domain.DataPayments, false, domain.DecisionAllow},
		{"committee sees everything", policy(domain.TransparencyBasic), domain.RoleCommittee, domain.DataBudgets, false, domain.DecisionAllow},

		{"basic allows own balance", policy(domain.TransparencyBasic), domain.RoleOwner, domain.DataAccountBalances, true, domain.DecisionAllow},
		{"basic allows own invoices", policy(domain.TransparencyBasic), domain.RoleOwner, domain.DataInvoices, true, domain.DecisionAllow},
		{"basic denies own payments", policy(domain.TransparencyBasic), domain.RoleOwner, domain.DataPayments, true, domain.DecisionDeny},
		{"basic denies cycle metrics", policy(domain.TransparencyBasic), domain.RoleOwner, domain.DataCycleMetrics, false, domain.DecisionDeny},

		{"standard redacts cycle metrics", policy(domain.TransparencyStandard), domain.RoleResident, domain.DataCycleMetrics, false, domain.DecisionRedactAmounts},
		{"standard redacts own credits", policy(domain.TransparencyStandard), domain.RoleOwner, domain.DataCredits, true, domain.DecisionRedactAmounts},
		{"standard allows own fines", policy(domain.TransparencyStandard), domain.RoleOwner, domain.DataFines, true, domain.DecisionAllow},
		{"standard denies other accounts", policy(domain.TransparencyStandard), domain.RoleOwner, domain.DataInvoices, false, domain.DecisionDeny},

		{"advanced allows budgets", policy(domain.TransparencyAdvanced), domain.RoleResident, domain.DataBudgets, false, domain.DecisionAllow},
		{"advanced still hides other accounts", policy(domain.TransparencyAdvanced), domain.RoleOwner, domain.DataPayments, false, domain.DecisionDeny},

		{"full opens other accounts", policy(domain.TransparencyFull), domain.RoleOwner, domain.DataPayments, false, domain.DecisionAllow},

		{
			name: "custom uses default access",
			policy: &domain.TransparencyPolicy{
				Level:         domain.TransparencyCustom,
				DefaultAccess: domain.AccessLimitedRead,
			},
			role: domain.RoleOwner, kind: domain.DataInvoices, own: true,
			want: domain.DecisionRedactAmounts,
		},
		{
			name: "area toggle overrides level",
			policy: &domain.TransparencyPolicy{
				Level:         domain.TransparencyFull,
				DefaultAccess: domain.AccessReadOnly,
				AreaToggles:   map[domain.DataKind]domain.AccessMode{domain.DataFines: domain.AccessNone},
			},
			role: domain.RoleOwner, kind: domain.DataFines, own: true,
			want: domain.DecisionDeny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.policy, tt.role, tt.kind, tt.own); got != tt.want {
				t.Fatalf("Evaluate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEvaluateForFallsBackWithoutPolicy(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := NewTransparencyService(repo, domain.TransparencyStandard)
	ctx := context.Background()
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := svc.EvaluateFor(ctx, "acme", domain.RoleOwner, domain.DataCycleMetrics, false, asOf)
	if err != nil {
		t.Fatalf("EvaluateFor: %v", err)
	}
	if got != domain.DecisionRedactAmounts {
		t.Fatalf("decision = %s, want redact_amounts under the standard fallback", got)
	}
}

func TestPolicyVersioning(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := NewTransparencyService(repo, domain.TransparencyStandard)
	ctx := context.Background()

	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jul := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Company:       "acme",
		ConfigName:    "baseline",
		EffectiveFrom: jan,
		Level:         domain.TransparencyBasic,
		DefaultAccess: domain.AccessReadOnly,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreatePolicy(ctx, CreatePolicyInput{
		Company:       "acme",
		ConfigName:    "midyear-opening",
		EffectiveFrom: jul,
		Level:         domain.TransparencyFull,
		DefaultAccess: domain.AccessReadOnly,
	}); err != nil {
		t.Fatal(err)
	}

	// Before July the basic policy governs.
	got, err := svc.EvaluateFor(ctx, "acme", domain.RoleOwner, domain.DataCycleMetrics, false, jan.AddDate(0, 2, 0))
	if err != nil {
		t.Fatal(err)
	}
	if got != domain.DecisionDeny {
		t.Fatalf("march decision = %s, want deny", got)
	}

	// From July the full policy wins.
	got, err = svc.EvaluateFor(ctx, "acme", domain.RoleOwner, domain.DataCycleMetrics, false, jul.AddDate(0, 1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if got != domain.DecisionAllow {
		t.Fatalf("august decision = %s, want allow", got)
	}
}
