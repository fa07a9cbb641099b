/**
 * @description
 * Scheduled job implementations for the financial core: the late fee sweep
 * across open cycles, the fine escalation sweep, credit expiry, and the
 * reconciliation SLA sweep.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/habitora/finance-service/internal/domain"
)

// CycleSweeper processes late fees for one cycle.
type CycleSweeper interface {
	ProcessLateFees(ctx context.Context, cycleID uuid.UUID, asOf time.Time, actor string) (int, error)
}

// FineSweeper runs the fine escalation sweep.
type FineSweeper interface {
	EscalationSweep(ctx context.Context, company string, asOf time.Time) (int, error)
}

// CreditExpirer expires stale credit entries.
type CreditExpirer interface {
	ExpireStale(ctx context.Context, asOf time.Time) (int, error)
}

// PaymentSweeper fails out payments stuck in reconciliation.
type PaymentSweeper interface {
	ReconcilingSweep(ctx context.Context, cutoff time.Time) (int, error)
}

// OpenCycleLister lists the open cycles of all companies.
type OpenCycleLister interface {
	ListOpenCycles(ctx context.Context, company string) ([]domain.BillingCycle, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	cycles   CycleSweeper
	fines    FineSweeper
	credits  CreditExpirer
	payments PaymentSweeper
	lister   OpenCycleLister
	logger   *slog.Logger

	reconcilingSLA time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(cycles CycleSweeper, fines FineSweeper, credits CreditExpirer, payments PaymentSweeper,
	lister OpenCycleLister, logger *slog.Logger, reconcilingSLA time.Duration) *Jobs {
	return &Jobs{
		cycles:         cycles,
		fines:          fines,
		credits:        credits,
		payments:       payments,
		lister:         lister,
		logger:         logger,
		reconcilingSLA: reconcilingSLA,
	}
}

// RunLateFeeSweep processes late fees on every open cycle.
func (j *Jobs) RunLateFeeSweep() {
	j.logger.Info("starting late fee sweep job")
	ctx := context.Background()
	now := time.Now().UTC()

	cycles, err := j.lister.ListOpenCycles(ctx, "")
	if err != nil {
		j.logger.Error("failed to list open cycles", "error", err)
		return
	}

	total := 0
	for i := range cycles {
		issued, err := j.cycles.ProcessLateFees(ctx, cycles[i].ID, now, "scheduler")
		if err != nil {
			j.logger.Error("late fee sweep failed for cycle", "cycle", cycles[i].CycleCode, "error", err)
			continue
		}
		total += issued
	}
	j.logger.Info("late fee sweep job finished", "cycles", len(cycles), "issued", total)
}

// RunFineEscalation runs the fine escalation sweep across all companies.
func (j *Jobs) RunFineEscalation() {
	j.logger.Info("starting fine escalation job")
	ctx := context.Background()

	escalated, err := j.fines.EscalationSweep(ctx, "", time.Now().UTC())
	if err != nil {
		j.logger.Error("fine escalation sweep failed", "error", err)
		return
	}
	j.logger.Info("fine escalation job finished", "escalated", escalated)
}

// RunCreditExpiry expires stale credit entries.
func (j *Jobs) RunCreditExpiry() {
	j.logger.Info("starting credit expiry job")
	ctx := context.Background()

	expired, err := j.credits.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("credit expiry sweep failed", "error", err)
		return
	}
	j.logger.Info("credit expiry job finished", "expired", expired)
}

// RunReconcilingSweep fails out payments stuck in reconciliation past the SLA.
func (j *Jobs) RunReconcilingSweep() {
	j.logger.Info("starting reconciling sweep job")
	ctx := context.Background()

	failed, err := j.payments.ReconcilingSweep(ctx, time.Now().UTC().Add(-j.reconcilingSLA))
	if err != nil {
		j.logger.Error("reconciling sweep failed", "error", err)
		return
	}
	j.logger.Info("reconciling sweep job finished", "failed", failed)
}
