package main

import (
	"strings"
	"testing"
	"time"
)

func TestLoadSettings(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/availability")
	t.Setenv("DEFAULT_MIN_ADVANCE_HOURS", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")

	cfg, err := loadSettings()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8086" || cfg.GRPCPort != "9086" {
		t.Fatalf("unexpected ports %s/%s", cfg.Port, cfg.GRPCPort)
	}
	if cfg.Defaults.MinAdvance != 2*time.Hour || cfg.Defaults.MaxAdvance != 30*24*time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg.Defaults)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
}

func TestLoadSettings_ReportsEveryError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DEFAULT_BUFFER_MINUTES", "-5")
	t.Setenv("PORT", "http")

	_, err := loadSettings()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, key := range []string{"DATABASE_URL", "DEFAULT_BUFFER_MINUTES", "PORT"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in %q", key, err)
		}
	}
}
