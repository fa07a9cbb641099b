/**
 * @description
 * HTTP router setup for the finance service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the finance routes.
func NewRouter(h *Handlers, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Finance service is healthy"))
	})

	r.Route("/internal/finance", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))

		r.Route("/fee-structures", func(r chi.Router) {
			r.Post("/", h.CreateFeeStructureHandler)
			r.Get("/lookup", h.LookupFeeStructureHandler)
			r.Get("/{id}", h.GetFeeStructureHandler)
			r.Put("/{id}", h.UpdateFeeStructureHandler)
			r.Post("/{id}/submit", h.SubmitFeeStructureHandler)
			r.Post("/{id}/approve", h.ApproveFeeStructureHandler)
			r.Post("/{id}/reject", h.RejectFeeStructureHandler)
			r.Post("/{id}/activate", h.ActivateFeeStructureHandler)
			r.Post("/{id}/activate-superseding", h.ActivateSupersedingFeeStructureHandler)
			r.Post("/{id}/preview", h.PreviewFeeHandler)
			r.Get("/{id}/estimate", h.EstimateMonthlyIncomeHandler)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.OpenPropertyAccountHandler)
			r.Get("/lookup", h.LookupPropertyAccountHandler)
			r.Get("/{id}", h.GetPropertyAccountHandler)
			r.Post("/{id}/suspend", h.SuspendPropertyAccountHandler)
			r.Post("/{id}/resume", h.ResumePropertyAccountHandler)
			r.Post("/{id}/close", h.ClosePropertyAccountHandler)
			r.Post("/{id}/fee-structure", h.AttachFeeStructureHandler)
			r.Post("/{id}/recompute", h.RecomputeAggregatesHandler)
			r.Get("/{id}/fines", h.ListOutstandingFinesHandler)
		})

		r.Route("/resident-accounts", func(r chi.Router) {
			r.Post("/", h.OpenResidentAccountHandler)
			r.Get("/{id}", h.GetResidentAccountHandler)
			r.Post("/{id}/transactions", h.PostResidentTransactionHandler)
			r.Post("/{id}/transfer", h.TransferToPropertyHandler)
			r.Post("/{id}/credit-limit", h.RequestCreditIncreaseHandler)
			r.Post("/{id}/suspend", h.SuspendResidentAccountHandler)
			r.Post("/{id}/resume", h.ResumeResidentAccountHandler)
			r.Post("/{id}/close", h.CloseResidentAccountHandler)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Post("/", h.IssueCreditHandler)
			r.Get("/{id}", h.GetCreditHandler)
			r.Get("/{id}/applications", h.ListCreditApplicationsHandler)
		})
		r.Post("/invoices/{id}/apply-credits", h.ApplyCreditsToInvoiceHandler)

		r.Route("/fines", func(r chi.Router) {
			r.Post("/", h.IssueFineHandler)
			r.Get("/{id}", h.GetFineHandler)
			r.Post("/{id}/notify", h.NotifyFineHandler)
			r.Post("/{id}/pay", h.PayFineHandler)
			r.Post("/{id}/dispute", h.DisputeFineHandler)
			r.Post("/{id}/resolve", h.ResolveFineDisputeHandler)
		})

		r.Route("/cycles", func(r chi.Router) {
			r.Post("/", h.OpenCycleHandler)
			r.Get("/lookup", h.LookupCycleHandler)
			r.Get("/{id}", h.GetCycleHandler)
			r.Get("/{id}/summary", h.CycleSummaryHandler)
			r.Post("/{id}/generate-invoices", h.GenerateInvoicesHandler)
			r.Post("/{id}/late-fees", h.ProcessLateFeesHandler)
			r.Post("/{id}/adjustments", h.ApplyCycleAdjustmentHandler)
			r.Post("/{id}/recompute", h.RecomputeCycleMetricsHandler)
			r.Post("/{id}/close", h.CloseCycleHandler)
			r.Post("/{id}/cancel", h.CancelCycleHandler)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPaymentHandler)
			r.Get("/{id}", h.GetPaymentHandler)
			r.Post("/{id}/process", h.ProcessPaymentHandler)
			r.Post("/{id}/retry", h.RetryPaymentHandler)
			r.Post("/{id}/resolve", h.ResolveReconciliationHandler)
			r.Post("/{id}/reject", h.RejectPaymentHandler)
			r.Post("/{id}/refund", h.RefundPaymentHandler)
			r.Get("/{id}/allocations", h.ListPaymentAllocationsHandler)
		})

		r.Route("/premium-services", func(r chi.Router) {
			r.Post("/", h.CreatePremiumServiceHandler)
			r.Get("/", h.ListPremiumServicesHandler)
			r.Get("/{id}", h.GetPremiumServiceHandler)
			r.Get("/{id}/quote", h.QuoteServiceUsageHandler)
			r.Post("/{id}/trial", h.StartServiceTrialHandler)
			r.Post("/{id}/activate", h.ActivatePremiumServiceHandler)
			r.Post("/{id}/suspend", h.SuspendPremiumServiceHandler)
			r.Post("/{id}/resume", h.ResumePremiumServiceHandler)
			r.Post("/{id}/retire", h.RetirePremiumServiceHandler)
			r.Post("/{id}/charge", h.ChargeServiceUsageHandler)
		})

		r.Route("/budgets", func(r chi.Router) {
			r.Post("/", h.CreateBudgetHandler)
			r.Get("/{id}", h.GetBudgetHandler)
			r.Post("/{id}/submit", h.SubmitBudgetHandler)
			r.Post("/{id}/return", h.ReturnBudgetHandler)
			r.Post("/{id}/approve", h.ApproveBudgetHandler)
			r.Post("/{id}/activate", h.ActivateBudgetHandler)
			r.Post("/{id}/close", h.CloseBudgetHandler)
			r.Post("/{id}/cancel", h.CancelBudgetHandler)
			r.Post("/{id}/refresh-actuals", h.RefreshBudgetActualsHandler)
			r.Post("/{id}/expense-actuals", h.RecordExpenseActualHandler)
		})

		r.Route("/transparency", func(r chi.Router) {
			r.Post("/policies", h.CreateTransparencyPolicyHandler)
			r.Get("/decision", h.EvaluateDisclosureHandler)
		})
	})

	return r
}
