package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Workspace.CloneTimeout != 120*time.Second {
		t.Errorf("expected clone timeout 120s, got %v", cfg.Workspace.CloneTimeout)
	}
	if cfg.Workspace.MaxFirstRunFiles != 15 {
		t.Errorf("expected 15 first-run files, got %d", cfg.Workspace.MaxFirstRunFiles)
	}
	if cfg.GitHub.MergeMethod != "squash" {
		t.Errorf("expected squash merge, got %q", cfg.GitHub.MergeMethod)
	}
	if GlobalConfig != cfg {
		t.Error("GlobalConfig not set")
	}
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
workspace:
  pull_timeout: 30s
tests:
  mode: local
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host, got %q", cfg.Server.Host)
	}
	if cfg.Workspace.PullTimeout != 30*time.Second {
		t.Errorf("expected pull timeout 30s, got %v", cfg.Workspace.PullTimeout)
	}
	if cfg.Workspace.CloneTimeout != 120*time.Second {
		t.Errorf("expected default clone timeout, got %v", cfg.Workspace.CloneTimeout)
	}
	if cfg.Tests.Mode != "local" {
		t.Errorf("expected local test mode, got %q", cfg.Tests.Mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "s3cret")
	t.Setenv("TESTS_TIMEOUT", "45s")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %q", cfg.Server.Port)
	}
	if cfg.GitHub.WebhookSecret != "s3cret" {
		t.Errorf("expected webhook secret override, got %q", cfg.GitHub.WebhookSecret)
	}
	if cfg.Tests.Timeout != 45*time.Second {
		t.Errorf("expected 45s, got %v", cfg.Tests.Timeout)
	}
	// Untouched keys keep defaults.
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %q", cfg.Database.Driver)
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		db       int
	}{
		{"host only", "redis://localhost:6379", "localhost:6379", "", 0},
		{"with password and db", "redis://:pass@redis:6380/2", "redis:6380", "pass", 2},
		{"user and password", "redis://user:pw@10.0.0.1:6379/1", "10.0.0.1:6379", "pw", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			c.parseRedisURL(tt.url)
			if c.Redis.Addr != tt.addr {
				t.Errorf("addr = %q, want %q", c.Redis.Addr, tt.addr)
			}
			if c.Redis.Password != tt.password {
				t.Errorf("password = %q, want %q", c.Redis.Password, tt.password)
			}
			if c.Redis.DB != tt.db {
				t.Errorf("db = %d, want %d", c.Redis.DB, tt.db)
			}
		})
	}
}

func TestIsRelease(t *testing.T) {
	c := DefaultConfig()
	if c.IsRelease() {
		t.Error("default mode should not be release")
	}
	c.Server.Mode = "release"
	if !c.IsRelease() {
		t.Error("expected release mode")
	}
}
