package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// FailPolicy defines what the tunnel does with traffic it cannot decide on.
type FailPolicy string

const (
	FailOpen   FailPolicy = "open"   // forward undecidable traffic (default)
	FailClosed FailPolicy = "closed" // drop undecidable traffic
)

// Config holds global settings for the PhishGuard service.
// All settings can be configured via environment variables, a YAML file, or
// programmatically; environment variables win over the file.
type Config struct {
	// === Core Settings ===
	ListenAddr    string // HTTP API listen address (default: ":8080")
	HistoryDBPath string // Path to the scan history SQLite database
	ModelPath     string // Path to the ONNX classifier; empty disables the ML layer

	// === Threat Intelligence ===
	IntelBaseURL string // Base URL of the threat-intel backend; empty disables the layer
	IntelAPIKey  string // API key for the backend (env: PHISHGUARD_INTEL_API_KEY)

	// === Reputation Cache ===
	RedisAddr        string        // Redis address for reputation persistence; empty = memory only
	ReputationTTL    time.Duration // Reputation cache entry lifetime (default: 24h)
	ReputationMaxLen int           // Reputation cache entry cap (default: 10000)

	// === Interception ===
	InterceptTTL time.Duration // Verdict cache lifetime (default: 5m)
	InterceptCap int           // Verdict cache entry cap (default: 1000)
	ScanPoolSize int           // Background full-scan concurrency (default: 32)
	FailPolicy   FailPolicy    // Tunnel policy for undecidable traffic
	TunnelMTU    int           // Packet read buffer size (default: 32767)

	// === Scheduled Jobs ===
	CleanupSchedule string        // Cron spec for cache cleanup (default: every 10 minutes)
	PurgeSchedule   string        // Cron spec for history retention
	FeedsSchedule   string        // Cron spec for the feeds status poll
	HistoryMaxAge   time.Duration // Scan records older than this are purged (default: 30 days)
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		ListenAddr:    GetEnv("PHISHGUARD_LISTEN_ADDR", ":8080"),
		HistoryDBPath: GetEnv("PHISHGUARD_HISTORY_DB", "phishguard_history.db"),
		ModelPath:     GetEnv("PHISHGUARD_MODEL_PATH", ""),

		IntelBaseURL: GetEnv("PHISHGUARD_INTEL_URL", ""),
		IntelAPIKey:  GetEnv("PHISHGUARD_INTEL_API_KEY", ""),

		RedisAddr:        GetEnv("PHISHGUARD_REDIS_ADDR", ""),
		ReputationTTL:    time.Duration(GetEnvInt("PHISHGUARD_REPUTATION_TTL_SECONDS", 24*3600)) * time.Second,
		ReputationMaxLen: clampInt(GetEnvInt("PHISHGUARD_REPUTATION_MAX_ENTRIES", 10000), 100, 1_000_000),

		InterceptTTL: time.Duration(GetEnvInt("PHISHGUARD_INTERCEPT_TTL_SECONDS", 300)) * time.Second,
		InterceptCap: clampInt(GetEnvInt("PHISHGUARD_INTERCEPT_MAX_ENTRIES", 1000), 10, 100_000),
		ScanPoolSize: clampInt(GetEnvInt("PHISHGUARD_SCAN_POOL_SIZE", 32), 1, 1024),
		FailPolicy:   failPolicyFromEnv(),
		TunnelMTU:    GetEnvInt("PHISHGUARD_TUNNEL_MTU", 32767),

		CleanupSchedule: GetEnv("PHISHGUARD_CLEANUP_SCHEDULE", "@every 10m"),
		PurgeSchedule:   GetEnv("PHISHGUARD_PURGE_SCHEDULE", "@daily"),
		FeedsSchedule:   GetEnv("PHISHGUARD_FEEDS_SCHEDULE", "@every 15m"),
		HistoryMaxAge:   time.Duration(GetEnvInt("PHISHGUARD_HISTORY_MAX_AGE_DAYS", 30)) * 24 * time.Hour,
	}
}

// NewHighSecurityConfig creates a Config for maximum protection: the tunnel
// drops anything it cannot decide on. Expect connectivity loss when the
// scanning backends are unreachable.
func NewHighSecurityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.FailPolicy = FailClosed
	cfg.InterceptTTL = time.Minute
	return cfg
}

// NewHighUsabilityConfig creates a Config that favors connectivity: larger
// caches, longer verdict lifetimes, strict fail-open.
func NewHighUsabilityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.FailPolicy = FailOpen
	cfg.InterceptTTL = 15 * time.Minute
	cfg.InterceptCap = 10000
	return cfg
}

func failPolicyFromEnv() FailPolicy {
	if GetEnvBool("PHISHGUARD_FAIL_CLOSED", false) {
		return FailClosed
	}
	return FailOpen
}

// clampInt ensures a value is within bounds.
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var problems []string

	if c.FailPolicy != FailOpen && c.FailPolicy != FailClosed {
		problems = append(problems, fmt.Sprintf("fail policy %q (must be open or closed)", c.FailPolicy))
	}
	if c.IntelBaseURL != "" && !strings.HasPrefix(c.IntelBaseURL, "http://") && !strings.HasPrefix(c.IntelBaseURL, "https://") {
		problems = append(problems, "intel base URL must be http(s)")
	}
	if c.ReputationTTL <= 0 {
		problems = append(problems, "reputation TTL must be positive")
	}
	if c.InterceptTTL <= 0 {
		problems = append(problems, "intercept TTL must be positive")
	}
	if c.TunnelMTU < 576 {
		problems = append(problems, "tunnel MTU below IPv4 minimum")
	}
	if c.ModelPath != "" {
		if _, err := os.Stat(c.ModelPath); err != nil {
			problems = append(problems, fmt.Sprintf("model path %s: %v", c.ModelPath, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[startup] configuration validation failed: %v", err)
	}
	log.Println("[startup] configuration validated")
}
