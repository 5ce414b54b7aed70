package worker

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
	if cfg.Schedule != "0 6 * * 1" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.AdminPort != 9091 {
		t.Errorf("AdminPort = %d", cfg.AdminPort)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad schedule",
			mutate:  func(c *Config) { c.Schedule = "not a cron" },
			wantErr: "cron schedule",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: "timezone",
		},
		{
			name:    "privileged port",
			mutate:  func(c *Config) { c.AdminPort = 80 },
			wantErr: "admin port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CRON_SCHEDULE", "30 5 * * *")
	t.Setenv("WORKER_TIMEZONE", "Asia/Tokyo")
	t.Setenv("WORKER_ADMIN_PORT", "9999")

	cfg := LoadConfigFromEnv(slog.Default())

	if cfg.Schedule != "30 5 * * *" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.Timezone != "Asia/Tokyo" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.AdminPort != 9999 {
		t.Errorf("AdminPort = %d", cfg.AdminPort)
	}
}

func TestLoadConfigFromEnvFallsBack(t *testing.T) {
	t.Setenv("CRON_SCHEDULE", "every tuesday")
	t.Setenv("WORKER_TIMEZONE", "Nowhere/Else")
	t.Setenv("WORKER_ADMIN_PORT", "99")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := LoadConfigFromEnv(logger)
	def := DefaultConfig()

	if cfg.Schedule != def.Schedule {
		t.Errorf("Schedule = %q, want default %q", cfg.Schedule, def.Schedule)
	}
	if cfg.Timezone != def.Timezone {
		t.Errorf("Timezone = %q, want default %q", cfg.Timezone, def.Timezone)
	}
	if cfg.AdminPort != def.AdminPort {
		t.Errorf("AdminPort = %d, want default %d", cfg.AdminPort, def.AdminPort)
	}

	logged := buf.String()
	for _, key := range []string{"CRON_SCHEDULE", "WORKER_TIMEZONE", "WORKER_ADMIN_PORT"} {
		if !strings.Contains(logged, key) {
			t.Errorf("expected fallback warning mentioning %s", key)
		}
	}
}
