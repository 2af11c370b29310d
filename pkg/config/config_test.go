package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.FailPolicy != FailOpen {
		t.Errorf("fail policy = %q, want open", cfg.FailPolicy)
	}
	if cfg.ReputationTTL != 24*time.Hour {
		t.Errorf("reputation ttl = %v", cfg.ReputationTTL)
	}
	if cfg.InterceptTTL != 5*time.Minute {
		t.Errorf("intercept ttl = %v", cfg.InterceptTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PHISHGUARD_LISTEN_ADDR", ":9999")
	t.Setenv("PHISHGUARD_FAIL_CLOSED", "true")
	t.Setenv("PHISHGUARD_SCAN_POOL_SIZE", "8")
	t.Setenv("PHISHGUARD_REPUTATION_MAX_ENTRIES", "5") // below floor, clamped

	cfg := NewDefaultConfig()
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.FailPolicy != FailClosed {
		t.Errorf("fail policy = %q, want closed", cfg.FailPolicy)
	}
	if cfg.ScanPoolSize != 8 {
		t.Errorf("pool size = %d", cfg.ScanPoolSize)
	}
	if cfg.ReputationMaxLen != 100 {
		t.Errorf("max entries = %d, want clamped to 100", cfg.ReputationMaxLen)
	}
}

func TestPresets(t *testing.T) {
	if got := NewHighSecurityConfig().FailPolicy; got != FailClosed {
		t.Errorf("high security fail policy = %q", got)
	}
	hu := NewHighUsabilityConfig()
	if hu.FailPolicy != FailOpen || hu.InterceptCap != 10000 {
		t.Errorf("high usability = %+v", hu)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad fail policy", func(c *Config) { c.FailPolicy = "maybe" }},
		{"bad intel url", func(c *Config) { c.IntelBaseURL = "ftp://intel" }},
		{"zero reputation ttl", func(c *Config) { c.ReputationTTL = 0 }},
		{"tiny mtu", func(c *Config) { c.TunnelMTU = 100 }},
		{"missing model file", func(c *Config) { c.ModelPath = "/nonexistent/model.onnx" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phishguard.yaml")
	data := `
listen_addr: ":7070"
intel:
  base_url: "https://intel.internal"
intercept:
  ttl_seconds: 60
  fail_policy: closed
jobs:
  history_max_age_days: 7
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.IntelBaseURL != "https://intel.internal" {
		t.Errorf("intel url = %q", cfg.IntelBaseURL)
	}
	if cfg.InterceptTTL != time.Minute {
		t.Errorf("intercept ttl = %v", cfg.InterceptTTL)
	}
	if cfg.FailPolicy != FailClosed {
		t.Errorf("fail policy = %q", cfg.FailPolicy)
	}
	if cfg.HistoryMaxAge != 7*24*time.Hour {
		t.Errorf("history max age = %v", cfg.HistoryMaxAge)
	}
	// Keys the file does not mention keep their defaults.
	if cfg.HistoryDBPath != "phishguard_history.db" {
		t.Errorf("history db = %q", cfg.HistoryDBPath)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	t.Setenv("PHISHGUARD_LISTEN_ADDR", ":5555")

	path := filepath.Join(t.TempDir(), "phishguard.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":7070\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.ListenAddr != ":5555" {
		t.Errorf("listen addr = %q, env must win over file", cfg.ListenAddr)
	}
}
