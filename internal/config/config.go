package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment once at startup.
type Config struct {
	ParamPrefix      string        `env:"PARAM_PREFIX,required"`
	PricingTable     string        `env:"PRICING_TABLE,required"`
	SignalsBaseURL   string        `env:"SIGNALS_BASE_URL,required"`
	AnalyticsBaseURL string        `env:"ANALYTICS_BASE_URL,required"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	InactiveDays     int           `env:"INACTIVE_DAYS" envDefault:"30"`
	DiscountWeight   float64       `env:"DISCOUNT_WEIGHT" envDefault:"0.5"`
	PolicySeed       uint64        `env:"POLICY_SEED"`
	RedisURL         string        `env:"REDIS_URL"`
	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"15m"`
	KafkaBrokers     []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic       string        `env:"KAFKA_TOPIC" envDefault:"growth.audit"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"json"`
	ScheduleFile     string        `env:"SCHEDULE_FILE" envDefault:"schedule.yaml"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFrom parses cfg from the given variables instead of the process
// environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.ParamPrefix = strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
	if c.ParamPrefix == "" {
		return errors.New("config: PARAM_PREFIX must not be empty")
	}
	if c.InactiveDays <= 0 {
		return fmt.Errorf("config: INACTIVE_DAYS must be positive, got %d", c.InactiveDays)
	}
	if c.DiscountWeight <= 0 || c.DiscountWeight >= 1 {
		return fmt.Errorf("config: DISCOUNT_WEIGHT must be between 0 and 1 exclusive, got %v", c.DiscountWeight)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("config: LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	brokers := c.KafkaBrokers[:0]
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers
	return nil
}

// SignalsTokenParam is the SSM name holding the signals provider token.
func (c Config) SignalsTokenParam() string {
	return c.ParamPrefix + "/signals-token"
}

// AnalyticsTokenParam is the SSM name holding the scoring service token.
func (c Config) AnalyticsTokenParam() string {
	return c.ParamPrefix + "/analytics-token"
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", s)
	}
	return level, nil
}
