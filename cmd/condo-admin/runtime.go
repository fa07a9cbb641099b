/**
 * @description
 * Shared bootstrap for the condo-admin CLI. Every command connects to the
 * same database and wires the same service graph as the HTTP server, minus
 * the router and the cron scheduler. Events still publish when the broker is
 * reachable; a broker outage degrades to the no-op producer.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/app, internal/config, internal/store: Service wiring.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/app"
	"github.com/habitora/finance-service/internal/config"
	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
	"github.com/habitora/finance-service/pkg/rabbitmq"
	"github.com/habitora/finance-service/pkg/registryclient"
)

// runtime carries the connected service graph for one CLI invocation.
type runtime struct {
	cfg  config.Config
	pool *pgxpool.Pool
	repo store.Repository

	fees     *app.FeeStructureService
	accounts *app.PropertyAccountService
	credits  *app.CreditService
	fines    *app.FineService
	cycles   *app.CycleService
	payments *app.PaymentService

	closers []func()
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rt := &runtime{cfg: cfg, pool: pool}
	rt.closers = append(rt.closers, pool.Close)

	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=cli msg=\"rabbitmq unavailable; events will not publish\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		rt.closers = append(rt.closers, eventProducer.Close)
		producer = eventProducer
	}

	propertyRegistry := registryclient.NewClient(cfg.PropertyRegistryURL, cfg.RegistryInternalAPIKey)
	customerRegistry := registryclient.NewClient(cfg.CustomerRegistryURL, cfg.RegistryInternalAPIKey)

	repo := store.NewPostgresRepository(pool)
	rt.repo = repo

	rt.fees = app.NewFeeStructureService(repo, propertyRegistry)
	rt.accounts = app.NewPropertyAccountService(repo, propertyRegistry, customerRegistry)
	rt.credits = app.NewCreditService(repo, domain.CreditExpiryPolicy(cfg.CreditExpiryPolicy))
	rt.fines = app.NewFineService(repo, producer, cfg.LateFeeRate(), cfg.EscalationMaxLevels, cfg.EscalationIntervalDays)
	rt.cycles = app.NewCycleService(repo, rt.fees, rt.credits, rt.fines, propertyRegistry, producer,
		decimal.NewFromFloat(cfg.LateFeeRatePct), cfg.LateFeeGraceDays, decimal.NewFromFloat(cfg.EscalationFactor))
	rt.payments = app.NewPaymentService(repo, producer,
		cfg.ResolvedAllocationOrder(), cfg.VarianceTolerance(), cfg.PaymentMaxRetries, cfg.CreditExpiryDays)

	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// parseAsOf reads the --as-of flag value, defaulting to the current time.
// Both dates (2026-02-01) and RFC 3339 timestamps are accepted.
func parseAsOf(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of value %q: use YYYY-MM-DD or RFC 3339", value)
	}
	return t.UTC(), nil
}
