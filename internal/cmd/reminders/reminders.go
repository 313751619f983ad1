// Package reminders parses reminder command flags and launches the runtime.
package reminders

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/docwatch/internal/platform/cmd"
	"github.com/louisbranch/docwatch/internal/platform/adminauth"
	"github.com/louisbranch/docwatch/internal/platform/logging"
	"github.com/louisbranch/docwatch/internal/services/documents/app"
	"github.com/louisbranch/docwatch/internal/services/documents/domain"
)

// Config holds reminder command configuration.
type Config struct {
	Port            int    `env:"DOCWATCH_PORT" envDefault:"8095"`
	HTTPAddr        string `env:"DOCWATCH_HTTP_ADDR" envDefault:":8096"`
	DBPath          string `env:"DOCWATCH_DB_PATH" envDefault:"data/docwatch.db"`
	TelegramToken   string `env:"DOCWATCH_TELEGRAM_TOKEN"`
	TelegramBaseURL string `env:"DOCWATCH_TELEGRAM_BASE_URL"`
	AdminJWTKey     string `env:"DOCWATCH_ADMIN_JWT_KEY"`
	AdminJWTIssuer  string `env:"DOCWATCH_ADMIN_JWT_ISSUER" envDefault:"docwatch"`
	RedisURL        string `env:"DOCWATCH_REDIS_URL"`

	TickInterval    time.Duration `env:"DOCWATCH_TICK_INTERVAL" envDefault:"1h"`
	RunOnStart      bool          `env:"DOCWATCH_RUN_ON_START" envDefault:"true"`
	LookaheadDays   int           `env:"DOCWATCH_LOOKAHEAD_DAYS" envDefault:"0"`
	Concurrency     int           `env:"DOCWATCH_CONCURRENCY" envDefault:"4"`
	DeliveryTimeout time.Duration `env:"DOCWATCH_DELIVERY_TIMEOUT" envDefault:"10s"`

	DefaultWindow   string         `env:"DOCWATCH_DEFAULT_WINDOW" envDefault:"09:00-22:00"`
	DefaultTimezone string         `env:"DOCWATCH_DEFAULT_TIMEZONE" envDefault:"Europe/Moscow"`
	Cadence         string         `env:"DOCWATCH_CADENCE" envDefault:"daily"`
	DedupInterval   time.Duration  `env:"DOCWATCH_DEDUP_INTERVAL" envDefault:"24h"`
	DefaultLeadDays int            `env:"DOCWATCH_DEFAULT_LEAD_DAYS" envDefault:"30"`
	LeadDays        map[string]int `env:"DOCWATCH_LEAD_DAYS" envDefault:"VISA:45"`

	BlocRegistrationDays  int `env:"DOCWATCH_BLOC_REGISTRATION_DAYS" envDefault:"30"`
	BlocMedicalDays       int `env:"DOCWATCH_BLOC_MEDICAL_DAYS" envDefault:"30"`
	OtherRegistrationDays int `env:"DOCWATCH_OTHER_REGISTRATION_DAYS" envDefault:"60"`
	OtherMedicalDays      int `env:"DOCWATCH_OTHER_MEDICAL_DAYS" envDefault:"30"`
	CardDurationDays      int `env:"DOCWATCH_CARD_DURATION_DAYS" envDefault:"90"`

	LogLevel  string `env:"DOCWATCH_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DOCWATCH_LOG_FORMAT" envDefault:"json"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The gRPC health server port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The admin API and metrics listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The document SQLite database path")
	fs.StringVar(&cfg.TelegramBaseURL, "telegram-base-url", cfg.TelegramBaseURL, "Telegram Bot API base URL")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for the cross-replica tick lock")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "Reminder tick interval")
	fs.BoolVar(&cfg.RunOnStart, "run-on-start", cfg.RunOnStart, "Run a tick immediately at startup")
	fs.IntVar(&cfg.LookaheadDays, "lookahead-days", cfg.LookaheadDays, "Only scan documents expiring within this many days (0 scans all)")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Maximum concurrent deliveries per tick")
	fs.DurationVar(&cfg.DeliveryTimeout, "delivery-timeout", cfg.DeliveryTimeout, "Timeout for one delivery call")
	fs.StringVar(&cfg.DefaultWindow, "default-window", cfg.DefaultWindow, "Notification window for holders without one (HH:MM-HH:MM)")
	fs.StringVar(&cfg.DefaultTimezone, "default-timezone", cfg.DefaultTimezone, "Timezone for holders without one")
	fs.StringVar(&cfg.Cadence, "cadence", cfg.Cadence, "Approaching reminder cadence: daily or milestones")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or text")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that the runtime cannot default.
func (c Config) Validate() error {
	_, err := c.runtimeConfig()
	return err
}

func (c Config) runtimeConfig() (app.RuntimeConfig, error) {
	if strings.TrimSpace(c.TelegramToken) == "" {
		return app.RuntimeConfig{}, fmt.Errorf("DOCWATCH_TELEGRAM_TOKEN is required")
	}
	if c.TickInterval <= 0 {
		return app.RuntimeConfig{}, fmt.Errorf("tick interval must be positive")
	}
	if c.LookaheadDays < 0 {
		return app.RuntimeConfig{}, fmt.Errorf("lookahead days must not be negative")
	}
	window, err := domain.ParseNotificationWindow(c.DefaultWindow)
	if err != nil {
		return app.RuntimeConfig{}, fmt.Errorf("default window: %w", err)
	}
	location, err := time.LoadLocation(strings.TrimSpace(c.DefaultTimezone))
	if err != nil {
		return app.RuntimeConfig{}, fmt.Errorf("default timezone: %w", err)
	}
	cadence, err := domain.ParseCadence(c.Cadence)
	if err != nil {
		return app.RuntimeConfig{}, err
	}
	policy := domain.DefaultPolicy()
	policy.Cadence = cadence
	if c.DedupInterval > 0 {
		policy.DedupInterval = c.DedupInterval
	}

	var adminKey []byte
	if strings.TrimSpace(c.AdminJWTKey) != "" {
		adminKey, err = adminauth.ParseKey(c.AdminJWTKey)
		if err != nil {
			return app.RuntimeConfig{}, err
		}
	}

	leadDays := make(map[string]int, len(c.LeadDays))
	for code, days := range c.LeadDays {
		if days <= 0 {
			return app.RuntimeConfig{}, fmt.Errorf("lead days for %s must be positive", code)
		}
		leadDays[strings.ToUpper(strings.TrimSpace(code))] = days
	}

	rules := domain.RuleTable{
		BlocRegistrationDays:  c.BlocRegistrationDays,
		BlocMedicalDays:       c.BlocMedicalDays,
		OtherRegistrationDays: c.OtherRegistrationDays,
		OtherMedicalDays:      c.OtherMedicalDays,
		CardDurationDays:      c.CardDurationDays,
	}
	if rules != (domain.RuleTable{}) {
		if err := rules.Validate(); err != nil {
			return app.RuntimeConfig{}, fmt.Errorf("deadline rules: %w", err)
		}
	}

	return app.RuntimeConfig{
		Port:            c.Port,
		HTTPAddr:        c.HTTPAddr,
		DBPath:          c.DBPath,
		TelegramToken:   c.TelegramToken,
		TelegramBaseURL: c.TelegramBaseURL,
		AdminKey:        adminKey,
		AdminIssuer:     c.AdminJWTIssuer,
		RedisURL:        c.RedisURL,
		TickInterval:    c.TickInterval,
		RunOnStart:      c.RunOnStart,
		LookaheadDays:   c.LookaheadDays,
		Concurrency:     c.Concurrency,
		DeliveryTimeout: c.DeliveryTimeout,
		Policy:          policy,
		DefaultWindow:   window,
		DefaultLocation: location,
		DefaultLeadDays: c.DefaultLeadDays,
		LeadDays:        leadDays,
		Rules:           rules,
	}, nil
}

// Run starts the reminder runtime.
func Run(ctx context.Context, cfg Config) error {
	runtimeCfg, err := cfg.runtimeConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	log := logger.WithField("service", entrypoint.ServiceReminders)
	runtimeCfg.Logger = log
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceReminders, log, func(ctx context.Context) error {
		return app.Run(ctx, runtimeCfg)
	})
}
