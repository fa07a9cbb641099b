package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
)

func TestCalculateFee(t *testing.T) {
	env := newTestEnv(t)

	profile := domain.PropertyProfile{
		Code:           "A-101",
		Company:        "acme",
		OwnershipShare: decimal.RequireFromString("0.05"),
		BuiltArea:      decimal.NewFromInt(90),
		UnitType:       "apartment",
		Active:         true,
	}

	tests := []struct {
		name        string
		fs          domain.FeeStructure
		wantBase    string
		wantReserve string
		wantTotal   string
		wantErr     bool
	}{
		{
			name:      "fixed",
			fs:        domain.FeeStructure{Method: domain.CalcFixed, BaseAmount: decimal.NewFromInt(1000)},
			wantBase:  "1000",
			wantTotal: "1000",
		},
		{
			name:      "per ownership share",
			fs:        domain.FeeStructure{Method: domain.CalcPerOwnershipShare, BaseAmount: decimal.NewFromInt(20000)},
			wantBase:  "1000",
			wantTotal: "1000",
		},
		{
			name:      "per square meter",
			fs:        domain.FeeStructure{Method: domain.CalcPerSquareMeter, BaseAmount: decimal.RequireFromString("11.50")},
			wantBase:  "1035",
			wantTotal: "1035",
		},
		{
			name: "per unit type",
			fs: domain.FeeStructure{
				Method:        domain.CalcPerUnitType,
				BaseAmount:    decimal.NewFromInt(800),
				UnitTypeRates: map[string]decimal.Decimal{"apartment": decimal.RequireFromString("1.25")},
			},
			wantBase:  "1000",
			wantTotal: "1000",
		},
		{
			name: "per unit type without a rate",
			fs: domain.FeeStructure{
				Method:        domain.CalcPerUnitType,
				BaseAmount:    decimal.NewFromInt(800),
				UnitTypeRates: map[string]decimal.Decimal{"penthouse": decimal.NewFromInt(2)},
			},
			wantErr: true,
		},
		{
			name: "reserve fund on top",
			fs: domain.FeeStructure{
				Method:     domain.CalcFixed,
				BaseAmount: decimal.NewFromInt(1000),
				Reserve:    domain.ReserveFund{Enabled: true, Percentage: decimal.NewFromInt(10)},
			},
			wantBase:    "1000",
			wantReserve: "100",
			wantTotal:   "1100",
		},
		{
			name: "reserve rounds half even",
			fs: domain.FeeStructure{
				Method:     domain.CalcFixed,
				BaseAmount: decimal.RequireFromString("333.35"),
				Reserve:    domain.ReserveFund{Enabled: true, Percentage: decimal.RequireFromString("7.5")},
			},
			wantBase:    "333.35",
			wantReserve: "25",
			wantTotal:   "358.35",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.fees.CalculateFee(&tt.fs, profile)
			if tt.wantErr {
				wantKind(t, err, domain.ErrValidation)
				return
			}
			if err != nil {
				t.Fatalf("CalculateFee: %v", err)
			}
			if !got.BaseFee.Equal(money(t, tt.wantBase)) {
				t.Errorf("base = %s, want %s", got.BaseFee, tt.wantBase)
			}
			wantReserve := decimal.Zero
			if tt.wantReserve != "" {
				wantReserve = money(t, tt.wantReserve)
			}
			if !got.ReserveFund.Equal(wantReserve) {
				t.Errorf("reserve = %s, want %s", got.ReserveFund, wantReserve)
			}
			if !got.TotalFee.Equal(money(t, tt.wantTotal)) {
				t.Errorf("total = %s, want %s", got.TotalFee, tt.wantTotal)
			}
		})
	}
}

func TestCreateFeeStructureValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	base := CreateFeeStructureInput{
		Company:       "acme",
		StructureCode: "STD-2026",
		Name:          "Standard",
		Method:        domain.CalcFixed,
		BaseAmount:    decimal.NewFromInt(1000),
		EffectiveFrom: from,
	}

	tests := []struct {
		name   string
		mutate func(*CreateFeeStructureInput)
	}{
		{"negative base", func(in *CreateFeeStructureInput) { in.BaseAmount = decimal.NewFromInt(-1) }},
		{"unknown method", func(in *CreateFeeStructureInput) { in.Method = "per_moon_phase" }},
		{"reserve above cap", func(in *CreateFeeStructureInput) {
			in.Reserve = domain.ReserveFund{Enabled: true, Percentage: decimal.NewFromInt(51)}
		}},
		{"discount above cap", func(in *CreateFeeStructureInput) {
			in.Adjustments.EarlyPaymentDiscountPct = decimal.NewFromInt(25)
		}},
		{"surcharge above cap", func(in *CreateFeeStructureInput) {
			in.Adjustments.LatePaymentSurchargePct = decimal.NewFromInt(120)
		}},
		{"per unit type without rates", func(in *CreateFeeStructureInput) {
			in.Method = domain.CalcPerUnitType
			in.UnitTypeRates = nil
		}},
		{"window inverted", func(in *CreateFeeStructureInput) {
			to := from.AddDate(0, -1, 0)
			in.EffectiveTo = &to
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := env.fees.Create(ctx, in)
			wantKind(t, err, domain.ErrValidation)
		})
	}

	if _, err := env.fees.Create(ctx, base); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	_, err := env.fees.Create(ctx, base)
	wantKind(t, err, domain.ErrUniqueness)
}

func TestFeeStructureLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000), from)
	if fs.Status != domain.FeeStructureActive {
		t.Fatalf("status = %s, want active", fs.Status)
	}

	// Active structures are immutable.
	name := "Renamed"
	_, err := env.fees.Update(ctx, fs.ID, UpdateFeeStructureInput{Name: &name})
	wantKind(t, err, domain.ErrStateMachine)

	// A second structure overlapping the first cannot plainly activate.
	second, err := env.fees.Create(ctx, CreateFeeStructureInput{
		Company:       "acme",
		StructureCode: "STD-2026-B",
		Name:          "Mid-year revision",
		Method:        domain.CalcFixed,
		BaseAmount:    decimal.NewFromInt(1200),
		EffectiveFrom: from.AddDate(0, 6, 0),
	})
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}
	if _, err := env.fees.SubmitForApproval(ctx, second.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.fees.Approve(ctx, second.ID, "committee"); err != nil {
		t.Fatal(err)
	}
	_, err = env.fees.Activate(ctx, second.ID, "admin")
	wantKind(t, err, domain.ErrValidation)

	// Superseding activation retires the earlier structure instead.
	second, err = env.fees.ActivateSuperseding(ctx, second.ID, "admin")
	if err != nil {
		t.Fatalf("ActivateSuperseding: %v", err)
	}
	if second.Status != domain.FeeStructureActive {
		t.Fatalf("second status = %s, want active", second.Status)
	}
	fs, err = env.fees.Get(ctx, fs.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fs.Status != domain.FeeStructureSuperseded {
		t.Fatalf("first status = %s, want superseded", fs.Status)
	}
}

func TestActivateRequiresCommitteeApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fs, err := env.fees.Create(ctx, CreateFeeStructureInput{
		Company:                   "acme",
		StructureCode:             "GOV-2026",
		Name:                      "Governed structure",
		Method:                    domain.CalcFixed,
		BaseAmount:                decimal.NewFromInt(1000),
		EffectiveFrom:             time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RequiresCommitteeApproval: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.fees.SubmitForApproval(ctx, fs.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	// Pending structures cannot jump straight to active.
	_, err = env.fees.Activate(ctx, fs.ID, "admin")
	wantKind(t, err, domain.ErrStateMachine)

	// Rejection is terminal.
	if _, err := env.fees.Reject(ctx, fs.ID, "committee", "needs revision"); err != nil {
		t.Fatal(err)
	}
	_, err = env.fees.Activate(ctx, fs.ID, "admin")
	wantKind(t, err, domain.ErrStateMachine)
}

func TestEstimateMonthlyIncome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fs := env.mustActiveStructure(t, "acme", "STD-2026", decimal.NewFromInt(1000),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	env.mustAccount(t, "acme", "A-101")
	env.mustAccount(t, "acme", "A-102")
	env.mustAccount(t, "acme", "A-103")

	total, counted, err := env.fees.EstimateMonthlyIncome(ctx, fs.ID)
	if err != nil {
		t.Fatalf("EstimateMonthlyIncome: %v", err)
	}
	if counted != 3 {
		t.Fatalf("counted = %d, want 3", counted)
	}
	if !total.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("total = %s, want 3000", total)
	}
}

func TestConcurrentActivationAdmitsOne(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	approved := func(code string) *domain.FeeStructure {
		fs, err := env.fees.Create(ctx, CreateFeeStructureInput{
			Company:       "acme",
			StructureCode: code,
			Name:          "Maintenance " + code,
			Method:        domain.CalcFixed,
			BaseAmount:    decimal.NewFromInt(1000),
			EffectiveFrom: jan,
		})
		if err != nil {
			t.Fatalf("Create %s: %v", code, err)
		}
		if _, err := env.fees.SubmitForApproval(ctx, fs.ID, "admin"); err != nil {
			t.Fatalf("SubmitForApproval %s: %v", code, err)
		}
		if _, err := env.fees.Approve(ctx, fs.ID, "committee"); err != nil {
			t.Fatalf("Approve %s: %v", code, err)
		}
		return fs
	}
	a := approved("STD-A")
	b := approved("STD-B")

	// Both structures share the effective window. Racing their activations
	// must admit exactly one; the other has to see the winner as active.
	errs := make(chan error, 2)
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		go func(id uuid.UUID) {
			_, err := env.fees.Activate(ctx, id, "admin")
			errs <- err
		}(id)
	}
	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) != 1 {
		t.Fatalf("activation failures = %d, want exactly 1", len(failures))
	}
	wantKind(t, failures[0], domain.ErrValidation)

	active := 0
	for _, fs := range []*domain.FeeStructure{a, b} {
		got, err := env.fees.Get(ctx, fs.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == domain.FeeStructureActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("active structures = %d, want 1", active)
	}
}
