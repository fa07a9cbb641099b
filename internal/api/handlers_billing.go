/**
 * @description
 * HTTP handlers for billing cycles, payments, and fines.
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

type openCycleRequest struct {
	Company        string    `json:"company"`
	CycleCode      string    `json:"cycle_code"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	DueDate        time.Time `json:"due_date"`
	FeeStructureID uuid.UUID `json:"fee_structure_id"`
}

// OpenCycleHandler opens a new billing cycle with a frozen fee structure.
func (h *Handlers) OpenCycleHandler(w http.ResponseWriter, r *http.Request) {
	var req openCycleRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.svc.Cycles.Open(r.Context(), app.OpenCycleInput{
		Company:        req.Company,
		CycleCode:      req.CycleCode,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		DueDate:        req.DueDate,
		FeeStructureID: req.FeeStructureID,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, c)
}

// GetCycleHandler loads one billing cycle by ID.
func (h *Handlers) GetCycleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Cycles.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// LookupCycleHandler loads one billing cycle by (company, cycle_code).
func (h *Handlers) LookupCycleHandler(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	code := r.URL.Query().Get("code")
	if company == "" || code == "" {
		h.writeError(w, http.StatusBadRequest, "company and code query parameters are required")
		return
	}
	c, err := h.svc.Cycles.GetByCode(r.Context(), company, code)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// CycleSummaryHandler reports the cycle's collection figures as of a point in
// time.
func (h *Handlers) CycleSummaryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	sum, err := h.svc.Cycles.Summary(r.Context(), id, asOf(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sum)
}

// GenerateInvoicesHandler bills every eligible property account into the
// cycle. Safe to rerun; accounts already billed are skipped.
func (h *Handlers) GenerateInvoicesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Cycles.GenerateInvoices(r.Context(), id, asOf(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ProcessLateFeesHandler issues late-payment fines for the cycle's overdue
// invoices past the grace period.
func (h *Handlers) ProcessLateFeesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	issued, err := h.svc.Cycles.ProcessLateFees(r.Context(), id, asOf(r), h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"fines_issued": issued})
}

type cycleAdjustmentRequest struct {
	PropertyAccountID uuid.UUID                  `json:"property_account_id"`
	Delta             decimal.Decimal            `json:"delta"`
	Kind              domain.CycleAdjustmentKind `json:"kind"`
	Reason            string                     `json:"reason"`
	Actor             string                     `json:"actor"`
}

// ApplyCycleAdjustmentHandler posts a manual correction against one invoice
// of an open cycle.
func (h *Handlers) ApplyCycleAdjustmentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req cycleAdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	adj, err := h.svc.Cycles.ApplyAdjustment(r.Context(), id, req.PropertyAccountID, req.Delta, req.Kind, req.Reason, req.Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, adj)
}

// RecomputeCycleMetricsHandler rebuilds the cycle's collection metrics from
// its invoices.
func (h *Handlers) RecomputeCycleMetricsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Cycles.RecomputeMetrics(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// CloseCycleHandler closes a cycle past its end date, freezing its figures.
func (h *Handlers) CloseCycleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Cycles.Close(r.Context(), id, asOf(r), h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// CancelCycleHandler cancels a cycle that has no invoices yet.
func (h *Handlers) CancelCycleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	c, err := h.svc.Cycles.Cancel(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

type recordPaymentRequest struct {
	Company           string     `json:"company"`
	PropertyAccountID uuid.UUID  `json:"property_account_id"`
	ResidentAccountID *uuid.UUID `json:"resident_account_id,omitempty"`

	Amount         decimal.Decimal      `json:"amount"`
	Method         domain.PaymentMethod `json:"method"`
	ServiceCharge  decimal.Decimal      `json:"service_charge"`
	Discount       decimal.Decimal      `json:"discount"`
	CommissionRate decimal.Decimal      `json:"commission_rate"`
	Split          *domain.PaymentSplit `json:"split,omitempty"`

	BankReportedAmount *decimal.Decimal `json:"bank_reported_amount,omitempty"`
	PostedDate         time.Time        `json:"posted_date"`
	Reference          string           `json:"reference"`
}

// RecordPaymentHandler records a pending payment with a fresh confirmation
// number.
func (h *Handlers) RecordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.svc.Payments.Record(r.Context(), app.RecordPaymentInput{
		Company:            req.Company,
		PropertyAccountID:  req.PropertyAccountID,
		ResidentAccountID:  req.ResidentAccountID,
		Amount:             req.Amount,
		Method:             req.Method,
		ServiceCharge:      req.ServiceCharge,
		Discount:           req.Discount,
		CommissionRate:     req.CommissionRate,
		Split:              req.Split,
		BankReportedAmount: req.BankReportedAmount,
		PostedDate:         req.PostedDate,
		Reference:          req.Reference,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// GetPaymentHandler loads one payment by ID.
func (h *Handlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Payments.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ProcessPaymentHandler allocates a pending payment across the account's
// invoices, fines and credit overflow. Payments with a bank variance beyond
// tolerance park in reconciling and surface a 409.
func (h *Handlers) ProcessPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Payments.Process(r.Context(), id, asOf(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// RetryPaymentHandler re-runs allocation for a failed payment.
func (h *Handlers) RetryPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Payments.Retry(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

type resolveReconciliationRequest struct {
	AcceptedAmount decimal.Decimal `json:"accepted_amount"`
	Actor          string          `json:"actor"`
}

// ResolveReconciliationHandler settles a parked payment at an operator-accepted
// amount and re-runs allocation.
func (h *Handlers) ResolveReconciliationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req resolveReconciliationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	p, err := h.svc.Payments.ResolveReconciliation(r.Context(), id, req.AcceptedAmount, req.Actor, asOf(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// RejectPaymentHandler fails a pending or parked payment.
func (h *Handlers) RejectPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	p, err := h.svc.Payments.Reject(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// RefundPaymentHandler refunds a processed payment at the account level.
func (h *Handlers) RefundPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	p, err := h.svc.Payments.Refund(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ListPaymentAllocationsHandler returns the allocation rows of one payment in
// application order.
func (h *Handlers) ListPaymentAllocationsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	allocations, err := h.svc.Payments.Allocations(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, allocations)
}

type issueFineRequest struct {
	Company           string              `json:"company"`
	PropertyAccountID uuid.UUID           `json:"property_account_id"`
	BillingCycleID    *uuid.UUID          `json:"billing_cycle_id,omitempty"`
	InvoiceID         *uuid.UUID          `json:"invoice_id,omitempty"`
	Category          string              `json:"category"`
	Severity          domain.FineSeverity `json:"severity"`
	BaseAmount        decimal.Decimal     `json:"base_amount"`
	EscalationFactor  decimal.Decimal     `json:"escalation_factor"`
	DueDate           time.Time           `json:"due_date"`
	Description       string              `json:"description"`
}

// IssueFineHandler assesses a new fine against a property account.
func (h *Handlers) IssueFineHandler(w http.ResponseWriter, r *http.Request) {
	var req issueFineRequest
	if !h.decode(w, r, &req) {
		return
	}

	f, err := h.svc.Fines.Issue(r.Context(), app.IssueFineInput{
		Company:           req.Company,
		PropertyAccountID: req.PropertyAccountID,
		BillingCycleID:    req.BillingCycleID,
		InvoiceID:         req.InvoiceID,
		Category:          req.Category,
		Severity:          req.Severity,
		BaseAmount:        req.BaseAmount,
		EscalationFactor:  req.EscalationFactor,
		DueDate:           req.DueDate,
		Description:       req.Description,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, f)
}

// GetFineHandler loads one fine by ID.
func (h *Handlers) GetFineHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	f, err := h.svc.Fines.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

// NotifyFineHandler marks a new fine as notified, starting its payment clock.
func (h *Handlers) NotifyFineHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	f, err := h.svc.Fines.Notify(r.Context(), id, h.actorBody(r).Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

type payFineRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Actor  string          `json:"actor"`
}

// PayFineHandler settles a fine in full.
func (h *Handlers) PayFineHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req payFineRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	f, err := h.svc.Fines.MarkPaid(r.Context(), id, req.Amount, req.Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

// DisputeFineHandler opens a dispute on a notified or overdue fine.
func (h *Handlers) DisputeFineHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	body := h.actorBody(r)
	f, err := h.svc.Fines.Dispute(r.Context(), id, body.Actor, body.Reason)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

type resolveDisputeRequest struct {
	Resolution    domain.DisputeResolution `json:"resolution"`
	ReducedAmount *decimal.Decimal         `json:"reduced_amount,omitempty"`
	Actor         string                   `json:"actor"`
}

// ResolveFineDisputeHandler settles a disputed fine: upheld, reduced, or
// waived.
func (h *Handlers) ResolveFineDisputeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	f, err := h.svc.Fines.ResolveDispute(r.Context(), id, req.Resolution, req.ReducedAmount, req.Actor)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, f)
}

// ListOutstandingFinesHandler lists the open fines of one property account.
func (h *Handlers) ListOutstandingFinesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.urlID(w, r)
	if !ok {
		return
	}
	fines, err := h.svc.Fines.Outstanding(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fines)
}
