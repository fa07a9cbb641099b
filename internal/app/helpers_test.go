package app

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
	"github.com/habitora/finance-service/pkg/registryclient"
)

// stubRegistry serves canned property and customer records, standing in for
// both external registries.
type stubRegistry struct {
	properties map[string]registryclient.PropertyRecord
	customers  map[string]registryclient.CustomerRecord
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		properties: make(map[string]registryclient.PropertyRecord),
		customers:  make(map[string]registryclient.CustomerRecord),
	}
}

func (s *stubRegistry) addProperty(rec registryclient.PropertyRecord) {
	s.properties[rec.Company+"/"+rec.Code] = rec
}

func (s *stubRegistry) addCustomer(rec registryclient.CustomerRecord) {
	s.customers[rec.Company+"/"+rec.Ref] = rec
}

func (s *stubRegistry) GetProperty(ctx context.Context, company, code string) (*registryclient.PropertyRecord, error) {
	rec, ok := s.properties[company+"/"+code]
	if !ok {
		return nil, &registryclient.ErrorResponse{StatusCode: http.StatusNotFound, Message: "property not found"}
	}
	return &rec, nil
}

func (s *stubRegistry) ListActiveProperties(ctx context.Context, company string) ([]registryclient.PropertyRecord, error) {
	var out []registryclient.PropertyRecord
	for _, rec := range s.properties {
		if rec.Company == company && rec.Active {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubRegistry) GetCustomer(ctx context.Context, company, ref string) (*registryclient.CustomerRecord, error) {
	rec, ok := s.customers[company+"/"+ref]
	if !ok {
		return nil, &registryclient.ErrorResponse{StatusCode: http.StatusNotFound, Message: "customer not found"}
	}
	return &rec, nil
}

// capturedEvent is one published message recorded by the capturing publisher.
type capturedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

// capturingPublisher records published events instead of hitting a broker.
type capturingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *capturingPublisher) Close() {}

func (p *capturingPublisher) byRoutingKey(key string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.events {
		if e.RoutingKey == key {
			out = append(out, e)
		}
	}
	return out
}

// testEnv wires every service against one in-memory repository and one
// registry stub, the way cmd/server does against the real backends.
type testEnv struct {
	repo      *store.MemoryRepository
	registry  *stubRegistry
	publisher *capturingPublisher

	fees     *FeeStructureService
	accounts *PropertyAccountService
	resident *ResidentAccountService
	credits  *CreditService
	fines    *FineService
	cycles   *CycleService
	payments *PaymentService
	budgets  *BudgetService
	services *PremiumServiceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := store.NewMemoryRepository()
	registry := newStubRegistry()
	publisher := &capturingPublisher{}

	fees := NewFeeStructureService(repo, registry)
	resident := NewResidentAccountService(repo, 365)
	credits := NewCreditService(repo, domain.ExpiryForfeit)
	fines := NewFineService(repo, publisher, decimal.RequireFromString("0.02"), 3, 30)
	cycles := NewCycleService(repo, fees, credits, fines, registry, publisher,
		decimal.NewFromInt(10), 5, decimal.RequireFromString("1.5"))
	payments := NewPaymentService(repo, publisher, nil,
		domain.VarianceTolerance{Absolute: decimal.NewFromInt(5), Percent: decimal.RequireFromString("0.5")}, 3, 365)

	return &testEnv{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		fees:      fees,
		accounts:  NewPropertyAccountService(repo, registry, registry),
		resident:  resident,
		credits:   credits,
		fines:     fines,
		cycles:    cycles,
		payments:  payments,
		budgets:   NewBudgetService(repo),
		services:  NewPremiumServiceService(repo, resident, publisher),
	}
}

func money(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

// mustActiveStructure drives a fixed-fee structure through draft, approval,
// and activation.
func (e *testEnv) mustActiveStructure(t *testing.T, company, code string, base decimal.Decimal, effectiveFrom time.Time) *domain.FeeStructure {
	t.Helper()
	ctx := context.Background()
	fs, err := e.fees.Create(ctx, CreateFeeStructureInput{
		Company:       company,
		StructureCode: code,
		Name:          "Standard maintenance " + code,
		Method:        domain.CalcFixed,
		BaseAmount:    base,
		EffectiveFrom: effectiveFrom,
	})
	if err != nil {
		t.Fatalf("Create structure: %v", err)
	}
	if _, err := e.fees.SubmitForApproval(ctx, fs.ID, "admin"); err != nil {
		t.Fatalf("SubmitForApproval: %v", err)
	}
	if _, err := e.fees.Approve(ctx, fs.ID, "committee"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	fs, err = e.fees.Activate(ctx, fs.ID, "admin")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return fs
}

// mustAccount registers a property and its owner in the stub registry and
// opens an auto-billed account for them.
func (e *testEnv) mustAccount(t *testing.T, company, unitRef string) *domain.PropertyAccount {
	t.Helper()
	e.registry.addProperty(registryclient.PropertyRecord{
		Code: unitRef, Company: company, OwnershipShare: 0.05, BuiltArea: 90, UnitType: "apartment", Active: true,
	})
	custRef := "CUST-" + unitRef
	e.registry.addCustomer(registryclient.CustomerRecord{
		Ref: custRef, Company: company, CustomerGroup: "Owners", Active: true,
	})
	pa, err := e.accounts.Open(context.Background(), OpenPropertyAccountInput{
		Company:              company,
		PropertyRegistryRef:  unitRef,
		CustomerRef:          custRef,
		BillingFrequency:     domain.BillMonthly,
		BillingDay:           1,
		BillingStartDate:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		AutoGenerateInvoices: true,
	})
	if err != nil {
		t.Fatalf("Open account %s: %v", unitRef, err)
	}
	return pa
}

// mustCycle opens a monthly cycle bound to the given active structure.
func (e *testEnv) mustCycle(t *testing.T, company, code string, fsID uuid.UUID, start time.Time) *domain.BillingCycle {
	t.Helper()
	end := start.AddDate(0, 1, 0)
	c, err := e.cycles.Open(context.Background(), OpenCycleInput{
		Company:        company,
		CycleCode:      code,
		StartDate:      start,
		EndDate:        end,
		DueDate:        end.AddDate(0, 0, 10),
		FeeStructureID: fsID,
	})
	if err != nil {
		t.Fatalf("Open cycle %s: %v", code, err)
	}
	return c
}

// mustProcessedPayment records and processes a bank transfer against the
// account.
func (e *testEnv) mustProcessedPayment(t *testing.T, company string, accountID uuid.UUID, amount decimal.Decimal, postedDate time.Time) *domain.Payment {
	t.Helper()
	ctx := context.Background()
	p, err := e.payments.Record(ctx, RecordPaymentInput{
		Company:           company,
		PropertyAccountID: accountID,
		Amount:            amount,
		Method:            domain.MethodBankTransfer,
		PostedDate:        postedDate,
	})
	if err != nil {
		t.Fatalf("Record payment: %v", err)
	}
	p, err = e.payments.Process(ctx, p.ID, postedDate)
	if err != nil {
		t.Fatalf("Process payment: %v", err)
	}
	return p
}

func wantKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected error kind %s, got %s (%v)", kind, got, err)
	}
}
