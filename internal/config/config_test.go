package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":3001" {
		t.Errorf("HTTPAddr = %q, want :3001", cfg.HTTPAddr)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
	if cfg.RouteCacheTTL != time.Hour {
		t.Errorf("RouteCacheTTL = %v, want 1h", cfg.RouteCacheTTL)
	}
	if cfg.Game.CountdownSeconds != 3 {
		t.Errorf("CountdownSeconds = %d, want 3", cfg.Game.CountdownSeconds)
	}
	if cfg.Distance.GoalRadiusMin != 1000 || cfg.Distance.GoalRadiusMax != 2000 {
		t.Errorf("goal radius = %v..%v, want 1000..2000", cfg.Distance.GoalRadiusMin, cfg.Distance.GoalRadiusMax)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.JWT.AccessTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("COUNTDOWN_SECONDS", "5")
	t.Setenv("DEFAULT_MAX_PLAYERS", "4")
	t.Setenv("ALLOW_FALLBACK_POSITION", "false")
	t.Setenv("ADMIN_EMAIL", "root@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Game.CountdownSeconds != 5 {
		t.Errorf("CountdownSeconds = %d", cfg.Game.CountdownSeconds)
	}
	if cfg.Distance.MaxPlayers != 4 {
		t.Errorf("MaxPlayers = %d", cfg.Distance.MaxPlayers)
	}
	if cfg.Game.AllowFallbackPosition {
		t.Error("AllowFallbackPosition = true, want false")
	}
	if cfg.Admin.Email != "root@example.com" || cfg.Admin.Username != "admin" {
		t.Errorf("Admin = %+v", cfg.Admin)
	}
}

func TestLoadRejectsNegativeCountdown(t *testing.T) {
	t.Setenv("COUNTDOWN_SECONDS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative countdown")
	}
}
