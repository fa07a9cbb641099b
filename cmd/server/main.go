/**
 * @description
 * This is the main entry point for the finance service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, registry clients, the message producer, repositories, the core
 * application services, the cron scheduler, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, log/slog, net/http: Standard Go libraries for logging and HTTP serving.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/registryclient: Clients for the property and customer registries.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/api"
	"github.com/habitora/finance-service/internal/app"
	"github.com/habitora/finance-service/internal/config"
	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
	"github.com/habitora/finance-service/pkg/rabbitmq"
	"github.com/habitora/finance-service/pkg/registryclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment values\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Println("level=warn component=bootstrap msg=\"internal api key not configured; internal routes are open\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting finance-service\" port=%s", cfg.ServerPort)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	if err := store.EnsureSchema(context.Background(), dbpool); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"schema bootstrap failed\" err=%v", err)
	}

	// The service only publishes events; a broker outage degrades to a no-op
	// producer instead of blocking financial operations.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	propertyRegistry := registryclient.NewClient(cfg.PropertyRegistryURL, cfg.RegistryInternalAPIKey)
	customerRegistry := registryclient.NewClient(cfg.CustomerRegistryURL, cfg.RegistryInternalAPIKey)

	repository := store.NewPostgresRepository(dbpool)

	fees := app.NewFeeStructureService(repository, propertyRegistry)
	accounts := app.NewPropertyAccountService(repository, propertyRegistry, customerRegistry)
	residents := app.NewResidentAccountService(repository, cfg.CreditExpiryDays)
	credits := app.NewCreditService(repository, domain.CreditExpiryPolicy(cfg.CreditExpiryPolicy))
	fines := app.NewFineService(repository, producer, cfg.LateFeeRate(), cfg.EscalationMaxLevels, cfg.EscalationIntervalDays)
	cycles := app.NewCycleService(repository, fees, credits, fines, propertyRegistry, producer,
		decimal.NewFromFloat(cfg.LateFeeRatePct), cfg.LateFeeGraceDays, decimal.NewFromFloat(cfg.EscalationFactor))
	payments := app.NewPaymentService(repository, producer,
		cfg.ResolvedAllocationOrder(), cfg.VarianceTolerance(), cfg.PaymentMaxRetries, cfg.CreditExpiryDays)
	budgets := app.NewBudgetService(repository)
	services := app.NewPremiumServiceService(repository, residents, producer)
	transparency := app.NewTransparencyService(repository, domain.TransparencyLevel(cfg.TransparencyDefaultLevel))

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	jobs := app.NewJobs(cycles, fines, credits, payments, repository, logger,
		time.Duration(cfg.ReconcilingSLAHours)*time.Hour)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()
	log.Println("level=info component=bootstrap msg=\"scheduler started\"")

	handlers := api.NewHandlers(api.Services{
		Fees:         fees,
		Accounts:     accounts,
		Residents:    residents,
		Credits:      credits,
		Fines:        fines,
		Cycles:       cycles,
		Payments:     payments,
		Budgets:      budgets,
		Services:     services,
		Transparency: transparency,
	})
	router := api.NewRouter(handlers, cfg.InternalAPIKey)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	log.Println("level=info component=bootstrap msg=\"scheduler stopped\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
