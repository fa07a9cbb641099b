package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/habitora/finance-service/internal/domain"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: domain.NewError(domain.ErrValidation, "", "bad input"), want: http.StatusBadRequest},
		{name: "uniqueness", err: domain.NewError(domain.ErrUniqueness, "", "duplicate"), want: http.StatusConflict},
		{name: "state machine", err: domain.NewError(domain.ErrStateMachine, "", "wrong state"), want: http.StatusConflict},
		{name: "cycle immutable", err: domain.NewError(domain.ErrCycleImmutable, "", "closed"), want: http.StatusConflict},
		{name: "reconciliation", err: domain.NewError(domain.ErrReconciliation, "", "variance"), want: http.StatusConflict},
		{name: "link integrity", err: domain.NewError(domain.ErrLinkIntegrity, "", "missing ref"), want: http.StatusUnprocessableEntity},
		{name: "limit exceeded", err: domain.NewError(domain.ErrLimitExceeded, "", "daily limit"), want: http.StatusUnprocessableEntity},
		{name: "insufficient credit", err: domain.NewError(domain.ErrInsufficientCredit, "", "over limit"), want: http.StatusUnprocessableEntity},
		{name: "approval required", err: domain.NewError(domain.ErrApprovalRequired, "", "needs token"), want: http.StatusForbidden},
		{name: "dependency", err: domain.NewError(domain.ErrDependency, "", "registry down"), want: http.StatusBadGateway},
		{name: "wrapped", err: errors.Join(errors.New("context"), domain.NewError(domain.ErrValidation, "", "bad")), want: http.StatusBadRequest},
		{name: "plain error", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, got)
			}
		})
	}
}

func TestInternalAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name        string
		requiredKey string
		providedKey string
		want        int
	}{
		{name: "no key configured passes through", requiredKey: "", providedKey: "", want: http.StatusNoContent},
		{name: "matching key", requiredKey: "secret", providedKey: "secret", want: http.StatusNoContent},
		{name: "missing key", requiredKey: "secret", providedKey: "", want: http.StatusUnauthorized},
		{name: "wrong key", requiredKey: "secret", providedKey: "other", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := InternalAuthMiddleware(tt.requiredKey)(next)
			req := httptest.NewRequest(http.MethodGet, "/internal/finance/cycles", nil)
			if tt.providedKey != "" {
				req.Header.Set("X-Internal-API-Key", tt.providedKey)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
