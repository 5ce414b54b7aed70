// Package worker hosts the scheduled pipeline runner: its environment
// configuration, admin HTTP server, and Prometheus metrics.
package worker

import (
	"fmt"
	"log/slog"

	pkgconfig "compintel/pkg/config"
)

// Config holds the operational settings of the worker process. The
// pipeline itself is configured by the YAML file; these values only
// control scheduling and the admin endpoints.
type Config struct {
	// Schedule is the cron expression for pipeline runs. When set via
	// CRON_SCHEDULE it overrides the schedule from the YAML file.
	Schedule string

	// Timezone is the IANA timezone the schedule is evaluated in.
	Timezone string

	// AdminPort serves /health, /health/ready, /health/services and
	// /metrics.
	AdminPort int
}

// DefaultConfig runs every Monday at 06:00 UTC with the admin server
// on 9091.
func DefaultConfig() Config {
	return Config{
		Schedule:  "0 6 * * 1",
		Timezone:  "UTC",
		AdminPort: 9091,
	}
}

// Validate checks the configuration, collecting all errors.
func (c *Config) Validate() error {
	var errs []error
	if err := pkgconfig.ValidateCronSchedule(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := pkgconfig.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := pkgconfig.ValidateIntRange(c.AdminPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("admin port: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration from environment
// variables with a fail-open strategy: an invalid value logs a warning
// and falls back to the default instead of aborting the process.
//
// Environment variables:
//   - CRON_SCHEDULE: cron expression (default "0 6 * * 1")
//   - WORKER_TIMEZONE: IANA timezone name (default "UTC")
//   - WORKER_ADMIN_PORT: integer 1024-65535 (default 9091)
func LoadConfigFromEnv(logger *slog.Logger) Config {
	def := DefaultConfig()
	cfg := Config{
		Schedule:  pkgconfig.GetEnvString("CRON_SCHEDULE", def.Schedule),
		Timezone:  pkgconfig.GetEnvString("WORKER_TIMEZONE", def.Timezone),
		AdminPort: pkgconfig.GetEnvInt("WORKER_ADMIN_PORT", def.AdminPort),
	}

	if err := pkgconfig.ValidateCronSchedule(cfg.Schedule); err != nil {
		logger.Warn("invalid CRON_SCHEDULE, using default",
			slog.String("value", cfg.Schedule),
			slog.String("default", def.Schedule),
			slog.String("error", err.Error()))
		cfg.Schedule = def.Schedule
	}
	if err := pkgconfig.ValidateTimezone(cfg.Timezone); err != nil {
		logger.Warn("invalid WORKER_TIMEZONE, using default",
			slog.String("value", cfg.Timezone),
			slog.String("default", def.Timezone),
			slog.String("error", err.Error()))
		cfg.Timezone = def.Timezone
	}
	if err := pkgconfig.ValidateIntRange(cfg.AdminPort, 1024, 65535); err != nil {
		logger.Warn("invalid WORKER_ADMIN_PORT, using default",
			slog.Int("value", cfg.AdminPort),
			slog.Int("default", def.AdminPort),
			slog.String("error", err.Error()))
		cfg.AdminPort = def.AdminPort
	}

	return cfg
}
