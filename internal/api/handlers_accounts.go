/**
 * @description
 * HTTP handlers for property accounts, resident sub-accounts, and credit
 * balances.
 */
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/app"
	"github.com/habitora/finance-service/internal/domain"
)

type openPropertyAccountRequest struct {
	Company             string `json:"company"`
	PropertyRegistryRef string `json:"property_registry_ref"`
	CustomerRef         string `json:"customer_ref"`

	BillingFrequency     domain.BillingFrequency `json:"billing_frequency"`
	BillingDay           int                     `json:"billing_day"`
	BillingStartDate     time.Time               `json:"billing_start_date"`
	AutoGenerateInvoices bool                    `json:"auto_generate_invoices"`
}

// OpenPropertyAccountHandler opens a financial account for a registered unit.
func (h *Handlers) OpenPropertyAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req openPropertyAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	pa, err := h.svc.Accounts.Open(r.Context(), app.OpenPropertyAccountInput{
		Company:              req.Company,
		PropertyRegistryRef:  req.PropertyRegistryRef,
		CustomerRef:          req.CustomerRef,
		BillingFrequency:     req.BillingFrequency,
		BillingDay:           req.BillingDay,
		BillingStartDate:     req.BillingStartDate,
		AutoGenerateInvoices: req.AutoGenerateInvoices,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, pa)
}

// GetPropertyAccountHandler loads one property account by ID.
func (h *Handlers) GetPropertyAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	pa, err := h.svc.Accounts.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pa)
}

// LookupPropertyAccountHandler loads one property account by its registry
// unit reference.
func (h *Handlers) LookupPropertyAccountHandler(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	ref := r.URL.Query().Get("ref")
	if company == "" || ref == "" {
		h.writeError(w, http.StatusBadRequest, "company and ref query parameters are required")
		return
	}
	pa, err := h.svc.Accounts.GetByRegistryRef(r.Context(), company, ref)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pa)
}

// SuspendPropertyAccountHandler suspends an active property account.
func (h *Handlers) SuspendPropertyAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	pa, err := h.svc.Accounts.Suspend(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pa)
}

// ResumePropertyAccountHandler reactivates a suspended property account.
func (h *Handlers) ResumePropertyAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	pa, err := h.svc.Accounts.Resume(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pa)
}

// ClosePropertyAccountHandler closes a property account with no outstanding
// debt.
func (h *Handlers) ClosePropertyAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	pa, err := h.svc.Accounts.Close(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pa)
}

type attachFeeStructureRequest struct {
	FeeStructureID uuid.UUID `json:"fee_structure_id"`
	Actor          string    `json:"actor"`
}

// AttachFeeStructureHandler pins an active fee structure to an account.
func (h *Handlers) AttachFeeStructureHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req attachFeeStructureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	pa, err := h.svc.Accounts.AttachFeeStructure(r.Context(), id, req.FeeStructureID, req.Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pa)
}

// RecomputeAggregatesHandler rebuilds the account's derived balances from its
// invoices, payments, fines and credits.
func (h *Handlers) RecomputeAggregatesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	agg, err := h.svc.Accounts.RecomputeAggregates(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, agg)
}

type openResidentAccountRequest struct {
	PropertyAccountID uuid.UUID              `json:"property_account_id"`
	ResidentName      string                 `json:"resident_name"`
	Type              domain.ResidentType    `json:"resident_type"`
	Limits            *domain.ResidentLimits `json:"limits,omitempty"`
}

// OpenResidentAccountHandler opens a resident sub-account under an active
// property account.
func (h *Handlers) OpenResidentAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req openResidentAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	ra, err := h.svc.Residents.Open(r.Context(), app.OpenResidentAccountInput{
		PropertyAccountID: req.PropertyAccountID,
		ResidentName:      req.ResidentName,
		Type:              req.Type,
		Limits:            req.Limits,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ra)
}

// GetResidentAccountHandler loads one resident account by ID.
func (h *Handlers) GetResidentAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	ra, err := h.svc.Residents.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ra)
}

type residentTransactionRequest struct {
	Amount        decimal.Decimal                `json:"amount"`
	Type          domain.ResidentTransactionType `json:"type"`
	Reference     string                         `json:"reference"`
	ApprovalToken string                         `json:"approval_token,omitempty"`
}

// PostResidentTransactionHandler admits one ledger movement against a
// resident account. Negative amounts are charges and run the limit checks.
func (h *Handlers) PostResidentTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req residentTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	ra, err := h.svc.Residents.PostTransaction(r.Context(), app.PostTransactionInput{
		ResidentAccountID: id,
		Amount:            req.Amount,
		Type:              req.Type,
		Reference:         req.Reference,
		ApprovalToken:     req.ApprovalToken,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ra)
}

type transferToPropertyRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Actor  string          `json:"actor"`
}

// TransferToPropertyHandler moves a positive resident balance onto the parent
// property account as a transfer credit.
func (h *Handlers) TransferToPropertyHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req transferToPropertyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	cb, err := h.svc.Residents.TransferToProperty(r.Context(), id, req.Amount, req.Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cb)
}

type creditIncreaseRequest struct {
	NewLimit      decimal.Decimal `json:"new_limit"`
	ApprovalToken string          `json:"approval_token,omitempty"`
	Actor         string          `json:"actor"`
}

// RequestCreditIncreaseHandler raises a resident's credit limit. Increases
// beyond double the current limit need a committee approval token.
func (h *Handlers) RequestCreditIncreaseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req creditIncreaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	ra, err := h.svc.Residents.RequestCreditIncrease(r.Context(), id, req.NewLimit, req.ApprovalToken, req.Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ra)
}

// SuspendResidentAccountHandler suspends an active resident account.
func (h *Handlers) SuspendResidentAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	ra, err := h.svc.Residents.Suspend(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ra)
}

// ResumeResidentAccountHandler reactivates a suspended resident account.
func (h *Handlers) ResumeResidentAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	ra, err := h.svc.Residents.Resume(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ra)
}

// CloseResidentAccountHandler closes a resident account with a settled
// balance.
func (h *Handlers) CloseResidentAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	ra, err := h.svc.Residents.Close(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ra)
}

type issueCreditRequest struct {
	PropertyAccountID uuid.UUID           `json:"property_account_id"`
	ResidentAccountID *uuid.UUID          `json:"resident_account_id,omitempty"`
	Amount            decimal.Decimal     `json:"amount"`
	Source            domain.CreditSource `json:"source"`
	ExpiryDate        *time.Time          `json:"expiry_date,omitempty"`
	AutoApply         *bool               `json:"auto_apply,omitempty"`
}

// IssueCreditHandler creates a new available credit on a property account.
func (h *Handlers) IssueCreditHandler(w http.ResponseWriter, r *http.Request) {
	var req issueCreditRequest
	if !h.decode(w, r, &req) {
		return
	}

	cb, err := h.svc.Credits.Issue(r.Context(), app.IssueCreditInput{
		PropertyAccountID: req.PropertyAccountID,
		ResidentAccountID: req.ResidentAccountID,
		Amount:            req.Amount,
		Source:            req.Source,
		ExpiryDate:        req.ExpiryDate,
		AutoApply:         req.AutoApply,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cb)
}

// GetCreditHandler loads one credit balance by ID.
func (h *Handlers) GetCreditHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	cb, err := h.svc.Credits.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cb)
}

// ListCreditApplicationsHandler lists the audit trail of one credit.
func (h *Handlers) ListCreditApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	apps, err := h.svc.Credits.Applications(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apps)
}

// ApplyCreditsToInvoiceHandler consumes the account's available credits
// against one unpaid invoice, oldest credit first.
func (h *Handlers) ApplyCreditsToInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	applied, err := h.svc.Credits.ApplyToInvoice(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"applied": applied})
}
