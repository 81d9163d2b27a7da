package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/playperu/amongirl/internal/config"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSION_SECRET", secret)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.MeetingCooldown != time.Minute {
		t.Errorf("MeetingCooldown = %v", cfg.MeetingCooldown)
	}
	if cfg.PlayersCollection != "players" || cfg.TasksCollection != "tasks" || cfg.EventsCollection != "events" {
		t.Errorf("collections = %q %q %q", cfg.PlayersCollection, cfg.TasksCollection, cfg.EventsCollection)
	}
	if cfg.Google.Enabled() {
		t.Error("google provider should be disabled without a client id")
	}
	if len(cfg.Google.Scopes) != 3 {
		t.Errorf("Google.Scopes = %v", cfg.Google.Scopes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSION_SECRET", secret)
	t.Setenv("ADMIN_EMAILS", "gm@example.com,host@example.com")
	t.Setenv("GOOGLE_CLIENT_ID", "client")
	t.Setenv("MEETING_COOLDOWN", "2m")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "host@example.com" {
		t.Errorf("AdminEmails = %v", cfg.AdminEmails)
	}
	if !cfg.Google.Enabled() {
		t.Error("google provider should be enabled")
	}
	if cfg.MeetingCooldown != 2*time.Minute {
		t.Errorf("MeetingCooldown = %v", cfg.MeetingCooldown)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSION_SECRET", "")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error without SESSION_SECRET")
	}

	t.Setenv("SESSION_SECRET", "short")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for short SESSION_SECRET")
	}
}
