package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for the YAML overlay. Pointer fields distinguish
// "absent" from zero so an empty file changes nothing.
type fileConfig struct {
	ListenAddr    *string `yaml:"listen_addr"`
	HistoryDBPath *string `yaml:"history_db_path"`
	ModelPath     *string `yaml:"model_path"`

	Intel struct {
		BaseURL *string `yaml:"base_url"`
		APIKey  *string `yaml:"api_key"`
	} `yaml:"intel"`

	Reputation struct {
		RedisAddr  *string `yaml:"redis_addr"`
		TTLSeconds *int    `yaml:"ttl_seconds"`
		MaxEntries *int    `yaml:"max_entries"`
	} `yaml:"reputation"`

	Intercept struct {
		TTLSeconds   *int    `yaml:"ttl_seconds"`
		MaxEntries   *int    `yaml:"max_entries"`
		ScanPoolSize *int    `yaml:"scan_pool_size"`
		FailPolicy   *string `yaml:"fail_policy"`
		TunnelMTU    *int    `yaml:"tunnel_mtu"`
	} `yaml:"intercept"`

	Jobs struct {
		CleanupSchedule   *string `yaml:"cleanup_schedule"`
		PurgeSchedule     *string `yaml:"purge_schedule"`
		FeedsSchedule     *string `yaml:"feeds_schedule"`
		HistoryMaxAgeDays *int    `yaml:"history_max_age_days"`
	} `yaml:"jobs"`
}

// LoadFile overlays settings from a YAML file onto c. Environment variables
// already applied by NewDefaultConfig are only replaced when the file names
// a key the environment did not set, so the precedence is env > file >
// defaults.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.ListenAddr, fc.ListenAddr, "PHISHGUARD_LISTEN_ADDR")
	setString(&c.HistoryDBPath, fc.HistoryDBPath, "PHISHGUARD_HISTORY_DB")
	setString(&c.ModelPath, fc.ModelPath, "PHISHGUARD_MODEL_PATH")

	setString(&c.IntelBaseURL, fc.Intel.BaseURL, "PHISHGUARD_INTEL_URL")
	setString(&c.IntelAPIKey, fc.Intel.APIKey, "PHISHGUARD_INTEL_API_KEY")

	setString(&c.RedisAddr, fc.Reputation.RedisAddr, "PHISHGUARD_REDIS_ADDR")
	setSeconds(&c.ReputationTTL, fc.Reputation.TTLSeconds, "PHISHGUARD_REPUTATION_TTL_SECONDS")
	setInt(&c.ReputationMaxLen, fc.Reputation.MaxEntries, "PHISHGUARD_REPUTATION_MAX_ENTRIES")

	setSeconds(&c.InterceptTTL, fc.Intercept.TTLSeconds, "PHISHGUARD_INTERCEPT_TTL_SECONDS")
	setInt(&c.InterceptCap, fc.Intercept.MaxEntries, "PHISHGUARD_INTERCEPT_MAX_ENTRIES")
	setInt(&c.ScanPoolSize, fc.Intercept.ScanPoolSize, "PHISHGUARD_SCAN_POOL_SIZE")
	setInt(&c.TunnelMTU, fc.Intercept.TunnelMTU, "PHISHGUARD_TUNNEL_MTU")
	if fc.Intercept.FailPolicy != nil && os.Getenv("PHISHGUARD_FAIL_CLOSED") == "" {
		c.FailPolicy = FailPolicy(*fc.Intercept.FailPolicy)
	}

	setString(&c.CleanupSchedule, fc.Jobs.CleanupSchedule, "PHISHGUARD_CLEANUP_SCHEDULE")
	setString(&c.PurgeSchedule, fc.Jobs.PurgeSchedule, "PHISHGUARD_PURGE_SCHEDULE")
	setString(&c.FeedsSchedule, fc.Jobs.FeedsSchedule, "PHISHGUARD_FEEDS_SCHEDULE")
	if fc.Jobs.HistoryMaxAgeDays != nil && os.Getenv("PHISHGUARD_HISTORY_MAX_AGE_DAYS") == "" {
		c.HistoryMaxAge = time.Duration(*fc.Jobs.HistoryMaxAgeDays) * 24 * time.Hour
	}

	return nil
}

func setString(dst *string, v *string, envKey string) {
	if v != nil && os.Getenv(envKey) == "" {
		*dst = *v
	}
}

func setInt(dst *int, v *int, envKey string) {
	if v != nil && os.Getenv(envKey) == "" {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *int, envKey string) {
	if v != nil && os.Getenv(envKey) == "" {
		*dst = time.Duration(*v) * time.Second
	}
}
