/**
 * @description
 * HTTP handlers for fee structures, budget plans, and transparency policies.
 */
package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/app"
	"github.com/habitora/finance-service/internal/domain"
)

type createFeeStructureRequest struct {
	Company                   string                     `json:"company"`
	StructureCode             string                     `json:"structure_code"`
	Name                      string                     `json:"name"`
	Method                    domain.CalculationMethod   `json:"calculation_method"`
	BaseAmount                decimal.Decimal            `json:"base_amount"`
	UnitTypeRates             map[string]decimal.Decimal `json:"unit_type_rates,omitempty"`
	Reserve                   domain.ReserveFund         `json:"reserve_fund"`
	Adjustments               domain.Adjustments         `json:"adjustments"`
	EffectiveFrom             time.Time                  `json:"effective_from"`
	EffectiveTo               *time.Time                 `json:"effective_to,omitempty"`
	RequiresCommitteeApproval bool                       `json:"requires_committee_approval"`
}

// CreateFeeStructureHandler creates a new draft fee structure.
func (h *Handlers) CreateFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	var req createFeeStructureRequest
	if !h.decode(w, r, &req) {
		return
	}

	fs, err := h.svc.Fees.Create(r.Context(), app.CreateFeeStructureInput{
		Company:                   req.Company,
		StructureCode:             req.StructureCode,
		Name:                      req.Name,
		Method:                    req.Method,
		BaseAmount:                req.BaseAmount,
		UnitTypeRates:             req.UnitTypeRates,
		Reserve:                   req.Reserve,
		Adjustments:               req.Adjustments,
		EffectiveFrom:             req.EffectiveFrom,
		EffectiveTo:               req.EffectiveTo,
		RequiresCommitteeApproval: req.RequiresCommitteeApproval,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, fs)
}

// GetFeeStructureHandler loads one fee structure by ID.
func (h *Handlers) GetFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	fs, err := h.svc.Fees.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fs)
}

// LookupFeeStructureHandler loads one fee structure by (company, code).
func (h *Handlers) LookupFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	code := r.URL.Query().Get("code")
	if company == "" || code == "" {
		h.writeError(w, http.StatusBadRequest, "company and code query parameters are required")
		return
	}
	fs, err := h.svc.Fees.GetByCode(r.Context(), company, code)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fs)
}

type updateFeeStructureRequest struct {
	Name          *string                    `json:"name,omitempty"`
	Method        *domain.CalculationMethod  `json:"calculation_method,omitempty"`
	BaseAmount    *decimal.Decimal           `json:"base_amount,omitempty"`
	UnitTypeRates map[string]decimal.Decimal `json:"unit_type_rates,omitempty"`
	Reserve       *domain.ReserveFund        `json:"reserve_fund,omitempty"`
	Adjustments   *domain.Adjustments        `json:"adjustments,omitempty"`
	EffectiveFrom *time.Time                 `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time                 `json:"effective_to,omitempty"`
}

// UpdateFeeStructureHandler edits a draft fee structure.
func (h *Handlers) UpdateFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req updateFeeStructureRequest
	if !h.decode(w, r, &req) {
		return
	}

	fs, err := h.svc.Fees.Update(r.Context(), id, app.UpdateFeeStructureInput{
		Name:          req.Name,
		Method:        req.Method,
		BaseAmount:    req.BaseAmount,
		UnitTypeRates: req.UnitTypeRates,
		Reserve:       req.Reserve,
		Adjustments:   req.Adjustments,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fs)
}

// SubmitFeeStructureHandler moves a draft structure to pending approval.
func (h *Handlers) SubmitFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	fs, err := h.svc.Fees.SubmitForApproval(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fs)
}

// ApproveFeeStructureHandler records committee approval on a pending structure.
func (h *Handlers) ApproveFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	fs, err := h.svc.Fees.Approve(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fs)
}

// RejectFeeStructureHandler rejects a pending structure.
func (h *Handlers) RejectFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	fs, err := h.svc.Fees.Reject(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fs)
}

// ActivateFeeStructureHandler activates an approved structure. Fails when
// another active structure overlaps its effective window.
func (h *Handlers) ActivateFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	fs, err := h.svc.Fees.Activate(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fs)
}

// ActivateSupersedingFeeStructureHandler activates an approved structure and
// supersedes any overlapping active ones.
func (h *Handlers) ActivateSupersedingFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	fs, err := h.svc.Fees.ActivateSuperseding(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fs)
}

// PreviewFeeHandler computes the fee breakdown one property profile would be
// billed under a structure, without persisting anything.
func (h *Handlers) PreviewFeeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var profile domain.PropertyProfile
	if !h.decode(w, r, &profile) {
		return
	}

	fs, err := h.svc.Fees.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	breakdown, err := h.svc.Fees.CalculateFee(fs, profile)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, breakdown)
}

// EstimateMonthlyIncomeHandler sums the projected monthly income of a
// structure across all active property accounts.
func (h *Handlers) EstimateMonthlyIncomeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	total, accounts, err := h.svc.Fees.EstimateMonthlyIncome(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"estimated_monthly_income": total,
		"account_count":            accounts,
	})
}

type budgetLineRequest struct {
	Category string                `json:"category"`
	Kind     domain.BudgetLineKind `json:"kind"`
	Budgeted decimal.Decimal       `json:"budgeted"`
}

type createBudgetRequest struct {
	Company     string                  `json:"company"`
	PeriodType  domain.BudgetPeriodType `json:"period_type"`
	Year        int                     `json:"year"`
	PeriodIndex int                     `json:"period_index"`
	Lines       []budgetLineRequest     `json:"lines"`
}

// CreateBudgetHandler creates a new draft budget plan.
func (h *Handlers) CreateBudgetHandler(w http.ResponseWriter, r *http.Request) {
	var req createBudgetRequest
	if !h.decode(w, r, &req) {
		return
	}

	lines := make([]app.BudgetLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, app.BudgetLineInput{Category: l.Category, Kind: l.Kind, Budgeted: l.Budgeted})
	}

	b, err := h.svc.Budgets.Create(r.Context(), app.CreateBudgetInput{
		Company:     req.Company,
		PeriodType:  req.PeriodType,
		Year:        req.Year,
		PeriodIndex: req.PeriodIndex,
		Lines:       lines,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, b)
}

// GetBudgetHandler loads one budget plan by ID.
func (h *Handlers) GetBudgetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Budgets.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// SubmitBudgetHandler moves a draft plan under review.
func (h *Handlers) SubmitBudgetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Budgets.SubmitForReview(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// ReturnBudgetHandler sends a plan under review back to draft.
func (h *Handlers) ReturnBudgetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	b, err := h.svc.Budgets.ReturnToDraft(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// ApproveBudgetHandler records approval on a plan under review.
func (h *Handlers) ApproveBudgetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Budgets.Approve(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// ActivateBudgetHandler activates an approved plan.
func (h *Handlers) ActivateBudgetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Budgets.Activate(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// CloseBudgetHandler closes an active plan at period end.
func (h *Handlers) CloseBudgetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Budgets.Close(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// CancelBudgetHandler cancels a plan that never went active.
func (h *Handlers) CancelBudgetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	b, err := h.svc.Budgets.Cancel(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// RefreshBudgetActualsHandler recomputes income actuals from the billing
// cycles overlapping the plan's period.
func (h *Handlers) RefreshBudgetActualsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Budgets.RefreshActuals(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

type expenseActualRequest struct {
	Category string          `json:"category"`
	Actual   decimal.Decimal `json:"actual"`
}

// RecordExpenseActualHandler posts one expense actual against a plan line.
func (h *Handlers) RecordExpenseActualHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req expenseActualRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.svc.Budgets.RecordExpenseActual(r.Context(), id, req.Category, req.Actual)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

type createPolicyRequest struct {
	Company       string                                `json:"company"`
	ConfigName    string                                `json:"config_name"`
	EffectiveFrom time.Time                             `json:"effective_from"`
	Level         domain.TransparencyLevel              `json:"transparency_level"`
	DefaultAccess domain.AccessMode                     `json:"default_access"`
	AreaToggles   map[domain.DataKind]domain.AccessMode `json:"area_toggles,omitempty"`
}

// CreateTransparencyPolicyHandler creates a new versioned disclosure policy.
func (h *Handlers) CreateTransparencyPolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.svc.Transparency.CreatePolicy(r.Context(), app.CreatePolicyInput{
		Company:       req.Company,
		ConfigName:    req.ConfigName,
		EffectiveFrom: req.EffectiveFrom,
		Level:         req.Level,
		DefaultAccess: req.DefaultAccess,
		AreaToggles:   req.AreaToggles,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// EvaluateDisclosureHandler answers whether a viewer may read a data area
// under the company's policy effective at as_of.
func (h *Handlers) EvaluateDisclosureHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	company := q.Get("company")
	role := domain.ViewerRole(q.Get("role"))
	kind := domain.DataKind(q.Get("kind"))
	if company == "" || role == "" || kind == "" {
		h.writeError(w, http.StatusBadRequest, "company, role and kind query parameters are required")
		return
	}
	ownAccount := q.Get("own_account") == "true"

	decision, err := h.svc.Transparency.EvaluateFor(r.Context(), company, role, kind, ownAccount, asOf(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"decision": string(decision)})
}
