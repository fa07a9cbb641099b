package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/pkg/rabbitmq"
)

func TestCreatePremiumServiceValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := CreatePremiumServiceInput{
		Company:           "acme",
		ServiceName:       "Rooftop Spa",
		Category:          domain.ServiceSpa,
		PricingModel:      domain.PricePerUse,
		BasePrice:         decimal.NewFromInt(100),
		MemberDiscountPct: decimal.NewFromInt(20),
		ChargeTarget:      domain.ChargeResidentAccount,
	}

	tests := []struct {
		name   string
		mutate func(*CreatePremiumServiceInput)
	}{
		{"missing company", func(in *CreatePremiumServiceInput) { in.Company = "" }},
		{"missing name", func(in *CreatePremiumServiceInput) { in.ServiceName = "" }},
		{"unknown category", func(in *CreatePremiumServiceInput) { in.Category = "helipad" }},
		{"unknown pricing model", func(in *CreatePremiumServiceInput) { in.PricingModel = "per_mood" }},
		{"zero price", func(in *CreatePremiumServiceInput) { in.BasePrice = decimal.Zero }},
		{"discount above cap", func(in *CreatePremiumServiceInput) { in.MemberDiscountPct = decimal.NewFromInt(51) }},
		{"negative discount", func(in *CreatePremiumServiceInput) { in.MemberDiscountPct = decimal.NewFromInt(-1) }},
		{"unknown charge target", func(in *CreatePremiumServiceInput) { in.ChargeTarget = "petty_cash" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := env.services.Create(ctx, in)
			wantKind(t, err, domain.ErrValidation)
		})
	}

	ps, err := env.services.Create(ctx, base)
	if err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if ps.Status != domain.ServiceDraft {
		t.Fatalf("status = %s, want draft", ps.Status)
	}

	// The name is taken while the first service lives.
	_, err = env.services.Create(ctx, base)
	wantKind(t, err, domain.ErrUniqueness)
}

func TestPremiumServiceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ps, err := env.services.Create(ctx, CreatePremiumServiceInput{
		Company:      "acme",
		ServiceName:  "Shuttle",
		Category:     domain.ServiceTransport,
		PricingModel: domain.PricePerUse,
		BasePrice:    decimal.NewFromInt(15),
		ChargeTarget: domain.ChargePropertyAccount,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Draft services cannot be charged or suspended.
	_, _, err = env.services.ChargeUsage(ctx, ChargeUsageInput{ServiceID: ps.ID, Units: 1, Actor: "api"})
	wantKind(t, err, domain.ErrStateMachine)
	_, err = env.services.Suspend(ctx, ps.ID, "admin", "maintenance")
	wantKind(t, err, domain.ErrStateMachine)

	if ps, err = env.services.StartTrial(ctx, ps.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	if !ps.Chargeable() {
		t.Fatal("trial services should be chargeable")
	}
	if ps, err = env.services.Activate(ctx, ps.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	if ps, err = env.services.Suspend(ctx, ps.ID, "admin", "pool repairs"); err != nil {
		t.Fatal(err)
	}
	if ps.Chargeable() {
		t.Fatal("suspended services must not be chargeable")
	}
	if ps, err = env.services.Resume(ctx, ps.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	if ps, err = env.services.Retire(ctx, ps.ID, "admin", "discontinued"); err != nil {
		t.Fatal(err)
	}

	// Retired is terminal.
	_, err = env.services.Activate(ctx, ps.ID, "admin")
	wantKind(t, err, domain.ErrStateMachine)

	// A retired service frees its name for reuse.
	if _, err := env.services.Create(ctx, CreatePremiumServiceInput{
		Company:      "acme",
		ServiceName:  "Shuttle",
		Category:     domain.ServiceTransport,
		PricingModel: domain.PricePerUse,
		BasePrice:    decimal.NewFromInt(18),
		ChargeTarget: domain.ChargePropertyAccount,
	}); err != nil {
		t.Fatalf("name should be reusable after retirement: %v", err)
	}
}

func TestPremiumServicePricing(t *testing.T) {
	tests := []struct {
		name   string
		model  domain.PricingModel
		base   string
		disc   string
		units  int
		member bool
		want   string
	}{
		{"per use single", domain.PricePerUse, "100", "20", 1, false, "100"},
		{"per use member", domain.PricePerUse, "100", "20", 1, true, "80"},
		{"hourly multiple units", domain.PriceHourly, "40", "0", 3, false, "120"},
		{"hourly member discount on total", domain.PriceHourly, "40", "25", 2, true, "60"},
		{"monthly package ignores units", domain.PriceMonthly, "500", "10", 4, false, "500"},
		{"monthly package member", domain.PriceMonthly, "500", "10", 1, true, "450"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := domain.PremiumService{
				PricingModel:      tt.model,
				BasePrice:         decimal.RequireFromString(tt.base),
				MemberDiscountPct: decimal.RequireFromString(tt.disc),
			}
			got := ps.PriceFor(tt.units, tt.member)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("price = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChargeUsageResidentAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.mustAccount(t, "acme", "A-101")
	ra, err := env.resident.Open(ctx, OpenResidentAccountInput{
		PropertyAccountID: acc.ID,
		ResidentName:      "Dana Flores",
		Type:              domain.ResidentTenant,
	})
	if err != nil {
		t.Fatal(err)
	}

	ps, err := env.services.Create(ctx, CreatePremiumServiceInput{
		Company:           "acme",
		ServiceName:       "Rooftop Spa",
		Category:          domain.ServiceSpa,
		PricingModel:      domain.PricePerUse,
		BasePrice:         decimal.NewFromInt(100),
		MemberDiscountPct: decimal.NewFromInt(20),
		ChargeTarget:      domain.ChargeResidentAccount,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.services.Activate(ctx, ps.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	ps, charged, err := env.services.ChargeUsage(ctx, ChargeUsageInput{
		ServiceID: ps.ID,
		AccountID: ra.ID,
		Units:     2,
		Member:    true,
		Actor:     "concierge",
	})
	if err != nil {
		t.Fatalf("ChargeUsage: %v", err)
	}
	if !charged.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("charged = %s, want 160", charged)
	}
	if ps.UsageCount != 1 || !ps.TotalRevenue.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("counters = %d/%s, want 1/160", ps.UsageCount, ps.TotalRevenue)
	}

	ra, err = env.resident.Get(ctx, ra.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ra.Balance.Equal(decimal.NewFromInt(-160)) {
		t.Fatalf("resident balance = %s, want -160", ra.Balance)
	}
	if events := env.publisher.byRoutingKey(rabbitmq.RoutingServiceCharged); len(events) != 1 {
		t.Fatalf("charge events = %d, want 1", len(events))
	}

	// Limit discipline carries through: a charge past the resident's credit
	// limit is refused and leaves the counters alone.
	_, _, err = env.services.ChargeUsage(ctx, ChargeUsageInput{
		ServiceID: ps.ID,
		AccountID: ra.ID,
		Units:     100,
		Actor:     "concierge",
	})
	wantKind(t, err, domain.ErrInsufficientCredit)
	ps, err = env.services.Get(ctx, ps.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ps.UsageCount != 1 {
		t.Fatalf("usage count after refused charge = %d, want 1", ps.UsageCount)
	}
}

func TestChargeUsagePropertyAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc := env.mustAccount(t, "acme", "A-101")

	ps, err := env.services.Create(ctx, CreatePremiumServiceInput{
		Company:      "acme",
		ServiceName:  "Guest Parking",
		Category:     domain.ServiceRecreation,
		PricingModel: domain.PriceHourly,
		BasePrice:    decimal.NewFromInt(10),
		ChargeTarget: domain.ChargePropertyAccount,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.services.Activate(ctx, ps.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	_, charged, err := env.services.ChargeUsage(ctx, ChargeUsageInput{
		ServiceID: ps.ID,
		AccountID: acc.ID,
		Units:     3,
		Actor:     "api",
	})
	if err != nil {
		t.Fatalf("ChargeUsage: %v", err)
	}
	if !charged.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("charged = %s, want 30", charged)
	}

	acc, err = env.accounts.Get(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !acc.RunningBalance.Equal(decimal.NewFromInt(-30)) {
		t.Fatalf("running balance = %s, want -30", acc.RunningBalance)
	}

	// Accounts of another company cannot consume the service.
	other := env.mustAccount(t, "globex", "B-201")
	_, _, err = env.services.ChargeUsage(ctx, ChargeUsageInput{
		ServiceID: ps.ID,
		AccountID: other.ID,
		Units:     1,
		Actor:     "api",
	})
	wantKind(t, err, domain.ErrLinkIntegrity)
}
