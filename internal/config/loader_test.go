package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Planner.TurnBudget != 12 {
		t.Fatalf("expected default turn budget 12, got %d", cfg.Planner.TurnBudget)
	}
	if cfg.Planner.CompletionMarker != "#FINAL_PLAN" {
		t.Fatalf("expected default completion marker, got %q", cfg.Planner.CompletionMarker)
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planforge.yaml")
	data := []byte("server:\n  port: \"9090\"\nplanner:\n  turn_budget: 5\n  session_timeout: 10m\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Planner.TurnBudget != 5 {
		t.Fatalf("expected turn budget 5, got %d", cfg.Planner.TurnBudget)
	}
	if cfg.Planner.SessionTimeout != 10*time.Minute {
		t.Fatalf("expected 10m session timeout, got %v", cfg.Planner.SessionTimeout)
	}
	// Untouched values keep defaults.
	if cfg.Planner.ChatTurnBudget != 3 {
		t.Fatalf("expected default chat budget 3, got %d", cfg.Planner.ChatTurnBudget)
	}
}

func TestLoadFromEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planforge.yaml")
	if err := os.WriteFile(path, []byte("planner:\n  turn_budget: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLANFORGE_TURN_BUDGET", "7")
	t.Setenv("PLANFORGE_INGEST_RETENTION", "45m")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Planner.TurnBudget != 7 {
		t.Fatalf("expected env turn budget 7, got %d", cfg.Planner.TurnBudget)
	}
	if cfg.Ingestion.Retention != 45*time.Minute {
		t.Fatalf("expected 45m retention, got %v", cfg.Ingestion.Retention)
	}
}

func TestLoadFromInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero turn budget", map[string]string{"PLANFORGE_TURN_BUDGET": "0"}},
		{"zero chat budget", map[string]string{"PLANFORGE_CHAT_TURN_BUDGET": "0"}},
		{"tiny retention", map[string]string{"PLANFORGE_INGEST_RETENTION": "5s"}},
		{"zero ingest workers", map[string]string{"PLANFORGE_INGEST_MAX_CONCURRENT": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestLoadFromMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planforge.yaml")
	if err := os.WriteFile(path, []byte("server: [broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}
