/**
 * @description
 * Cron scheduler setup for the background sweeps.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/habitora/finance-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.LateFeeSweepCron, s.jobs.RunLateFeeSweep); err != nil {
		s.logger.Error("failed to schedule late fee sweep job", "error", err)
	} else {
		s.logger.Info("scheduled late fee sweep job", "schedule", s.config.LateFeeSweepCron)
	}

	if _, err := s.cron.AddFunc(s.config.FineEscalationCron, s.jobs.RunFineEscalation); err != nil {
		s.logger.Error("failed to schedule fine escalation job", "error", err)
	} else {
		s.logger.Info("scheduled fine escalation job", "schedule", s.config.FineEscalationCron)
	}

	if _, err := s.cron.AddFunc(s.config.CreditExpiryCron, s.jobs.RunCreditExpiry); err != nil {
		s.logger.Error("failed to schedule credit expiry job", "error", err)
	} else {
		s.logger.Info("scheduled credit expiry job", "schedule", s.config.CreditExpiryCron)
	}

	if _, err := s.cron.AddFunc(s.config.ReconcilingSweepCron, s.jobs.RunReconcilingSweep); err != nil {
		s.logger.Error("failed to schedule reconciling sweep job", "error", err)
	} else {
		s.logger.Info("scheduled reconciling sweep job", "schedule", s.config.ReconcilingSweepCron)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
