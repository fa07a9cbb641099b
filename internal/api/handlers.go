/**
 * @description
 * This file contains the shared plumbing for the finance service's HTTP
 * handlers. Handlers parse incoming requests, call the appropriate methods on
 * the application services, and write the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * The per-resource handlers live in handlers_catalog.go, handlers_accounts.go
 * and handlers_billing.go.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/habitora/finance-service/internal/app"
	"github.com/habitora/finance-service/internal/domain"
)

// Services bundles the application services the handlers dispatch to.
type Services struct {
	Fees         *app.FeeStructureService
	Accounts     *app.PropertyAccountService
	Residents    *app.ResidentAccountService
	Credits      *app.CreditService
	Fines        *app.FineService
	Cycles       *app.CycleService
	Payments     *app.PaymentService
	Budgets      *app.BudgetService
	Services     *app.PremiumServiceService
	Transparency *app.TransparencyService
}

// Handlers holds the application services that handlers will use.
type Handlers struct {
	svc Services
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(svc Services) *Handlers {
	return &Handlers{svc: svc}
}

// actorRequest is the common body of lifecycle transition endpoints.
type actorRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// actorBody decodes the optional actor/reason body. A missing or empty actor
// falls back to "api" so the event log always names a mover.
func (h *Handlers) actorBody(r *http.Request) actorRequest {
	var req actorRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	return req
}

// decode parses a JSON request body into dst, writing a 400 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// urlID parses the {id} URL parameter, writing a 400 on failure.
func (h *Handlers) urlID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}

// asOf reads the optional as_of query parameter (RFC 3339), defaulting to now.
func asOf(r *http.Request) time.Time {
	if v := r.URL.Query().Get("as_of"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// statusForError maps a domain error kind to an HTTP status code.
func statusForError(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrUniqueness, domain.ErrStateMachine, domain.ErrReconciliation, domain.ErrCycleImmutable:
		return http.StatusConflict
	case domain.ErrLinkIntegrity, domain.ErrLimitExceeded, domain.ErrInsufficientCredit:
		return http.StatusUnprocessableEntity
	case domain.ErrApprovalRequired:
		return http.StatusForbidden
	case domain.ErrDependency:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// serviceError writes a domain error with its mapped status, logging anything
// that surfaces as a 5xx.
func (h *Handlers) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("level=error component=api msg=\"handler failed\" path=%s err=%v", r.URL.Path, err)
		h.writeError(w, status, "Internal server error")
		return
	}
	h.writeError(w, status, err.Error())
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
