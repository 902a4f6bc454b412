// Package config loads service configuration from flags, environment
// variables (prefix PA_) and an optional yaml file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the PA server.
type Config struct {
	// Listen address for the API + push server.
	Host string
	Port int

	// SQLite database paths.
	SessionLogPath string
	SchedulePath   string

	// Auth settings.
	AuthSecret string
	TokenTTL   time.Duration

	// Arbitration settings.
	ReclaimAfter time.Duration
	ScheduleTick time.Duration
	Zones        []string

	// Logging settings.
	LogLevel  string
	LogFormat string

	// Graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultZones is the campus zone layout served when none is configured.
var DefaultZones = []string{"Admin Office", "Classrooms", "Library", "Main Hall"}

// Load reads configuration. Precedence: flags (bound by the caller via
// viper), then environment, then config file, then defaults.
func Load() (*Config, error) {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("db.session_logs", "pa-sessions.db")
	viper.SetDefault("db.schedules", "pa-schedules.db")
	viper.SetDefault("auth.secret", "")
	viper.SetDefault("auth.token_ttl", "12h")
	viper.SetDefault("arbitration.reclaim_after", "30s")
	viper.SetDefault("arbitration.schedule_tick", "1s")
	viper.SetDefault("arbitration.zones", DefaultZones)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("shutdown.timeout", "30s")

	viper.SetEnvPrefix("PA")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/pa-server/")
	_ = viper.ReadInConfig()

	cfg := &Config{
		Host:           viper.GetString("server.host"),
		Port:           viper.GetInt("server.port"),
		SessionLogPath: viper.GetString("db.session_logs"),
		SchedulePath:   viper.GetString("db.schedules"),
		AuthSecret:     viper.GetString("auth.secret"),
		Zones:          viper.GetStringSlice("arbitration.zones"),
		LogLevel:       viper.GetString("log.level"),
		LogFormat:      viper.GetString("log.format"),
	}

	var err error
	if cfg.TokenTTL, err = parseDuration("auth.token_ttl"); err != nil {
		return nil, err
	}
	if cfg.ReclaimAfter, err = parseDuration("arbitration.reclaim_after"); err != nil {
		return nil, err
	}
	if cfg.ScheduleTick, err = parseDuration("arbitration.schedule_tick"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDuration("shutdown.timeout"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("auth.secret is required (PA_AUTH_SECRET)")
	}
	if len(c.Zones) == 0 {
		return fmt.Errorf("at least one zone must be configured")
	}
	if c.ReclaimAfter <= 0 {
		return fmt.Errorf("arbitration.reclaim_after must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
