/**
 * @description
 * HTTP handlers for the premium service catalog and usage billing.
 */
package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/app"
	"github.com/habitora/finance-service/internal/domain"
)

type createPremiumServiceRequest struct {
	Company           string          `json:"company"`
	ServiceName       string          `json:"service_name"`
	Category          string          `json:"category"`
	PricingModel      string          `json:"pricing_model"`
	BasePrice         decimal.Decimal `json:"base_price"`
	MemberDiscountPct decimal.Decimal `json:"member_discount_pct"`
	ChargeTarget      string          `json:"charge_target"`
}

// CreatePremiumServiceHandler registers a new premium service in draft.
func (h *Handlers) CreatePremiumServiceHandler(w http.ResponseWriter, r *http.Request) {
	var req createPremiumServiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	ps, err := h.svc.Services.Create(r.Context(), app.CreatePremiumServiceInput{
		Company:           req.Company,
		ServiceName:       req.ServiceName,
		Category:          domain.ServiceCategory(req.Category),
		PricingModel:      domain.PricingModel(req.PricingModel),
		BasePrice:         req.BasePrice,
		MemberDiscountPct: req.MemberDiscountPct,
		ChargeTarget:      domain.ChargeTarget(req.ChargeTarget),
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ps)
}

// GetPremiumServiceHandler loads one premium service by ID.
func (h *Handlers) GetPremiumServiceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	ps, err := h.svc.Services.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ps)
}

// ListPremiumServicesHandler returns the company's catalog in name order.
func (h *Handlers) ListPremiumServicesHandler(w http.ResponseWriter, r *http.Request) {
	services, err := h.svc.Services.List(r.Context(), r.URL.Query().Get("company"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, services)
}

// StartServiceTrialHandler launches a draft service in trial mode.
func (h *Handlers) StartServiceTrialHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	ps, err := h.svc.Services.StartTrial(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ps)
}

// ActivatePremiumServiceHandler makes the service chargeable.
func (h *Handlers) ActivatePremiumServiceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	ps, err := h.svc.Services.Activate(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ps)
}

// SuspendPremiumServiceHandler takes an active service out of rotation.
func (h *Handlers) SuspendPremiumServiceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	req := h.actorBody(r)
	ps, err := h.svc.Services.Suspend(r.Context(), id, req.Actor, req.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ps)
}

// ResumePremiumServiceHandler returns a suspended service to active.
func (h *Handlers) ResumePremiumServiceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	ps, err := h.svc.Services.Resume(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ps)
}

// RetirePremiumServiceHandler retires the service permanently.
func (h *Handlers) RetirePremiumServiceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	req := h.actorBody(r)
	ps, err := h.svc.Services.Retire(r.Context(), id, req.Actor, req.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ps)
}

type chargeServiceRequest struct {
	AccountID     uuid.UUID `json:"account_id"`
	Units         int       `json:"units"`
	Member        bool      `json:"member"`
	ApprovalToken string    `json:"approval_token,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	Actor         string    `json:"actor,omitempty"`
}

// ChargeServiceUsageHandler bills one use of the service to an account.
func (h *Handlers) ChargeServiceUsageHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req chargeServiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}

	ps, price, err := h.svc.Services.ChargeUsage(r.Context(), app.ChargeUsageInput{
		ServiceID:     id,
		AccountID:     req.AccountID,
		Units:         req.Units,
		Member:        req.Member,
		ApprovalToken: req.ApprovalToken,
		Reference:     req.Reference,
		Actor:         req.Actor,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": ps,
		"charged": price,
	})
}

// QuoteServiceUsageHandler prices the given usage without billing it.
func (h *Handlers) QuoteServiceUsageHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	units := 1
	if v := r.URL.Query().Get("units"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "units must be a positive integer")
			return
		}
		units = parsed
	}
	member := r.URL.Query().Get("member") == "true"

	price, err := h.svc.Services.Quote(r.Context(), id, units, member)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"units":  units,
		"member": member,
		"price":  price,
	})
}
