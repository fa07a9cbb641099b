/**
 * @description
 * Configuration management for the finance service. Viper reads an optional
 * .env file and the process environment, applies defaults, and clamps the
 * numeric knobs into sane ranges with a warning rather than refusing to start.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and env binding.
 */

package config

import (
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/habitora/finance-service/internal/domain"
)

// Config holds all the configuration variables for the finance service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	CustomerRegistryURL    string `mapstructure:"CUSTOMER_REGISTRY_URL"`
	PropertyRegistryURL    string `mapstructure:"PROPERTY_REGISTRY_URL"`
	RegistryInternalAPIKey string `mapstructure:"REGISTRY_INTERNAL_API_KEY"`

	FinanceEventQueue string `mapstructure:"FINANCE_EVENT_QUEUE"`

	DefaultCurrency string `mapstructure:"COMPANY_DEFAULT_CURRENCY"`

	// Cycle / late fee knobs.
	LateFeeRatePct   float64 `mapstructure:"CYCLE_LATE_FEE_RATE_PCT"`
	LateFeeGraceDays int     `mapstructure:"CYCLE_LATE_FEE_GRACE_DAYS"`

	// Payment processing knobs.
	AllocationOrder      string  `mapstructure:"PAYMENT_ALLOCATION_ORDER"`
	VarianceToleranceAbs float64 `mapstructure:"PAYMENT_VARIANCE_TOLERANCE_ABS"`
	VarianceTolerancePct float64 `mapstructure:"PAYMENT_VARIANCE_TOLERANCE_PCT"`
	PaymentMaxRetries    int     `mapstructure:"PAYMENT_MAX_RETRIES"`
	ReconcilingSLAHours  int     `mapstructure:"PAYMENT_RECONCILING_SLA_HOURS"`

	// Credit knobs.
	CreditExpiryPolicy string `mapstructure:"CREDIT_EXPIRY_POLICY"`
	CreditExpiryDays   int    `mapstructure:"CREDIT_EXPIRY_DAYS"`

	// Fine escalation knobs.
	EscalationMaxLevels    int     `mapstructure:"ESCALATION_MAX_LEVELS"`
	EscalationFactor       float64 `mapstructure:"ESCALATION_FACTOR"`
	EscalationIntervalDays int     `mapstructure:"ESCALATION_INTERVAL_DAYS"`

	TransparencyDefaultLevel string `mapstructure:"TRANSPARENCY_DEFAULT_LEVEL"`

	// Cron schedules for the background sweeps.
	LateFeeSweepCron     string `mapstructure:"LATE_FEE_SWEEP_CRON"`
	FineEscalationCron   string `mapstructure:"FINE_ESCALATION_CRON"`
	CreditExpiryCron     string `mapstructure:"CREDIT_EXPIRY_CRON"`
	ReconcilingSweepCron string `mapstructure:"RECONCILING_SWEEP_CRON"`
}

// LoadConfig reads configuration from environment variables from the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("FINANCE_EVENT_QUEUE", "finance_service.events")
	viper.SetDefault("COMPANY_DEFAULT_CURRENCY", "MXN")
	viper.SetDefault("CYCLE_LATE_FEE_RATE_PCT", 2.0)
	viper.SetDefault("CYCLE_LATE_FEE_GRACE_DAYS", 5)
	viper.SetDefault("PAYMENT_ALLOCATION_ORDER", "")
	viper.SetDefault("PAYMENT_VARIANCE_TOLERANCE_ABS", 1.0)
	viper.SetDefault("PAYMENT_VARIANCE_TOLERANCE_PCT", 0.5)
	viper.SetDefault("PAYMENT_MAX_RETRIES", 3)
	viper.SetDefault("PAYMENT_RECONCILING_SLA_HOURS", 48)
	viper.SetDefault("CREDIT_EXPIRY_POLICY", string(domain.ExpiryForfeit))
	viper.SetDefault("CREDIT_EXPIRY_DAYS", 365)
	viper.SetDefault("ESCALATION_MAX_LEVELS", 3)
	viper.SetDefault("ESCALATION_FACTOR", 1.5)
	viper.SetDefault("ESCALATION_INTERVAL_DAYS", 30)
	viper.SetDefault("TRANSPARENCY_DEFAULT_LEVEL", string(domain.TransparencyStandard))
	viper.SetDefault("LATE_FEE_SWEEP_CRON", "0 2 * * *")
	viper.SetDefault("FINE_ESCALATION_CRON", "30 2 * * *")
	viper.SetDefault("CREDIT_EXPIRY_CRON", "0 3 * * *")
	viper.SetDefault("RECONCILING_SWEEP_CRON", "0 * * * *")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "FINANCE_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("CUSTOMER_REGISTRY_URL")
	_ = viper.BindEnv("PROPERTY_REGISTRY_URL")
	_ = viper.BindEnv("REGISTRY_INTERNAL_API_KEY")
	_ = viper.BindEnv("FINANCE_EVENT_QUEUE")
	_ = viper.BindEnv("COMPANY_DEFAULT_CURRENCY")
	_ = viper.BindEnv("CYCLE_LATE_FEE_RATE_PCT")
	_ = viper.BindEnv("CYCLE_LATE_FEE_GRACE_DAYS")
	_ = viper.BindEnv("PAYMENT_ALLOCATION_ORDER")
	_ = viper.BindEnv("PAYMENT_VARIANCE_TOLERANCE_ABS")
	_ = viper.BindEnv("PAYMENT_VARIANCE_TOLERANCE_PCT")
	_ = viper.BindEnv("PAYMENT_MAX_RETRIES")
	_ = viper.BindEnv("PAYMENT_RECONCILING_SLA_HOURS")
	_ = viper.BindEnv("CREDIT_EXPIRY_POLICY")
	_ = viper.BindEnv("CREDIT_EXPIRY_DAYS")
	_ = viper.BindEnv("ESCALATION_MAX_LEVELS")
	_ = viper.BindEnv("ESCALATION_FACTOR")
	_ = viper.BindEnv("ESCALATION_INTERVAL_DAYS")
	_ = viper.BindEnv("TRANSPARENCY_DEFAULT_LEVEL")
	_ = viper.BindEnv("LATE_FEE_SWEEP_CRON")
	_ = viper.BindEnv("FINE_ESCALATION_CRON")
	_ = viper.BindEnv("CREDIT_EXPIRY_CRON")
	_ = viper.BindEnv("RECONCILING_SWEEP_CRON")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(viper.GetString("PORT")); port != "" {
		config.ServerPort = port
	}

	if _, ok := domain.ParseAllocationOrder(config.AllocationOrder); !ok {
		log.Printf("level=warn component=config msg=\"invalid PAYMENT_ALLOCATION_ORDER; using default\" value=%q", config.AllocationOrder)
		config.AllocationOrder = ""
	}

	policy := domain.CreditExpiryPolicy(strings.TrimSpace(config.CreditExpiryPolicy))
	if policy != domain.ExpiryForfeit && policy != domain.ExpiryTransfer {
		log.Printf("level=warn component=config msg=\"invalid CREDIT_EXPIRY_POLICY; using forfeit\" value=%q", config.CreditExpiryPolicy)
		config.CreditExpiryPolicy = string(domain.ExpiryForfeit)
	}

	if !domain.ValidTransparencyLevel(domain.TransparencyLevel(config.TransparencyDefaultLevel)) {
		log.Printf("level=warn component=config msg=\"invalid TRANSPARENCY_DEFAULT_LEVEL; using standard\" value=%q", config.TransparencyDefaultLevel)
		config.TransparencyDefaultLevel = string(domain.TransparencyStandard)
	}

	if config.LateFeeRatePct < 0 {
		log.Printf("level=warn component=config msg=\"negative late fee rate configured; coercing to zero\" rate_pct=%f", config.LateFeeRatePct)
		config.LateFeeRatePct = 0
	}
	if config.LateFeeGraceDays < 0 {
		config.LateFeeGraceDays = 0
	}
	if config.VarianceToleranceAbs < 0 {
		config.VarianceToleranceAbs = 0
	}
	if config.VarianceTolerancePct < 0 {
		config.VarianceTolerancePct = 0
	}
	if config.PaymentMaxRetries <= 0 {
		config.PaymentMaxRetries = 3
	}
	if config.ReconcilingSLAHours <= 0 {
		config.ReconcilingSLAHours = 48
	}
	if config.CreditExpiryDays <= 0 {
		config.CreditExpiryDays = 365
	}
	if config.EscalationMaxLevels <= 0 {
		config.EscalationMaxLevels = 3
	}
	if config.EscalationIntervalDays <= 0 {
		config.EscalationIntervalDays = 30
	}
	if config.EscalationFactor < 1 {
		log.Printf("level=warn component=config msg=\"escalation factor below 1; coercing to 1\" factor=%f", config.EscalationFactor)
		config.EscalationFactor = 1
	}

	return
}

// LateFeeRate returns the late fee rate as a decimal fraction (2% -> 0.02).
func (c Config) LateFeeRate() decimal.Decimal {
	return decimal.NewFromFloat(c.LateFeeRatePct).Div(decimal.NewFromInt(100))
}

// VarianceTolerance builds the reconciliation tolerance from config.
func (c Config) VarianceTolerance() domain.VarianceTolerance {
	return domain.VarianceTolerance{
		Absolute: decimal.NewFromFloat(c.VarianceToleranceAbs),
		Percent:  decimal.NewFromFloat(c.VarianceTolerancePct),
	}
}

// ResolvedAllocationOrder parses the configured allocation order, falling back
// to the default when unset.
func (c Config) ResolvedAllocationOrder() []domain.AllocationStep {
	order, ok := domain.ParseAllocationOrder(c.AllocationOrder)
	if !ok {
		return domain.DefaultAllocationOrder()
	}
	return order
}
