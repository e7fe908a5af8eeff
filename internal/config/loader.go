package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every environment variable name.
const Prefix = "ROSTER_"

// Config captures environment driven configuration values for the roster service.
type Config struct {
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"3000"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"roster.db"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"8760h"`
	SecureCookies   bool          `env:"SECURE_COOKIES" envDefault:"false"`
	Timezone        string        `env:"TIMEZONE" envDefault:"America/Sao_Paulo"`
	ShiftDuration   time.Duration `env:"SHIFT_DURATION" envDefault:"75m"`
	InitialPassword string        `env:"INITIAL_PASSWORD" envDefault:"0000"`
	ResetToken      string        `env:"RESET_TOKEN"`
	WebhookURL      string        `env:"SNAPSHOT_WEBHOOK_URL"`
	WebhookTimeout  time.Duration `env:"SNAPSHOT_WEBHOOK_TIMEOUT" envDefault:"5s"`
	LoginRate       float64       `env:"LOGIN_RATE" envDefault:"0.2"`
	LoginBurst      int           `env:"LOGIN_BURST" envDefault:"5"`
	HistoryCacheTTL time.Duration `env:"HISTORY_CACHE_TTL" envDefault:"1h"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom parses configuration values from environ instead of the process
// environment. Keys carry the ROSTER_ prefix.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("environment variables are invalid: %w", err)
	}
	cfg.ResetToken = strings.TrimSpace(cfg.ResetToken)
	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid value in one error.
func (c Config) Validate() error {
	invalid := make([]string, 0, 4)

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, Prefix+"HTTP_PORT")
	}
	if strings.TrimSpace(c.SQLitePath) == "" {
		invalid = append(invalid, Prefix+"SQLITE_PATH")
	}
	if c.SessionTTL <= 0 {
		invalid = append(invalid, Prefix+"SESSION_TTL")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		invalid = append(invalid, Prefix+"TIMEZONE")
	}
	if c.ShiftDuration <= 0 || c.ShiftDuration >= 24*time.Hour {
		invalid = append(invalid, Prefix+"SHIFT_DURATION")
	}
	if c.InitialPassword == "" {
		invalid = append(invalid, Prefix+"INITIAL_PASSWORD")
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		invalid = append(invalid, Prefix+"SNAPSHOT_WEBHOOK_URL")
	}
	if c.WebhookTimeout <= 0 {
		invalid = append(invalid, Prefix+"SNAPSHOT_WEBHOOK_TIMEOUT")
	}
	if c.LoginRate <= 0 {
		invalid = append(invalid, Prefix+"LOGIN_RATE")
	}
	if c.LoginBurst <= 0 {
		invalid = append(invalid, Prefix+"LOGIN_BURST")
	}
	if c.HistoryCacheTTL < 0 {
		invalid = append(invalid, Prefix+"HISTORY_CACHE_TTL")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		invalid = append(invalid, Prefix+"LOG_FORMAT")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// PasswordResetEnabled reports whether a reset token is configured.
func (c Config) PasswordResetEnabled() bool {
	return c.ResetToken != ""
}
