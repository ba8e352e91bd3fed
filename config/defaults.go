package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultDirPermissions is the mode for directories tickd creates.
const DefaultDirPermissions = 0o750

// SetDefaults configures default values for every tickd option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("schema_version", CurrentSchemaVersion)

	// Storage tiers
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.retention_days", 7) // hot tier serves the last 7 trading days

	// Event bus
	v.SetDefault("bus.general_max_workers", 2)
	v.SetDefault("bus.market_max_workers", 0) // 0 = 2× general
	v.SetDefault("bus.queue_capacity", 4096)
	v.SetDefault("bus.timer_interval_seconds", 1)

	// Bar synthesis
	v.SetDefault("bar.intervals", []string{"1m", "5m", "15m", "60m", "1d"})
	v.SetDefault("bar.day_anchor", "09:00")

	// Hot store writer
	v.SetDefault("hot.tick_flush_threshold", 10_000)
	v.SetDefault("hot.bar_flush_threshold", 3_000)
	v.SetDefault("hot.monitor_interval_seconds", 30)
	v.SetDefault("hot.max_flush_lifetime_seconds", 120)

	// Append log
	v.SetDefault("append.workers", 4)
	v.SetDefault("append.batch_threshold", 500)
	v.SetDefault("append.queue_capacity", 256)
	v.SetDefault("append.submit_timeout_seconds", 5)

	// Contract registry
	v.SetDefault("registry.instrument_table", "instruments.json")
	v.SetDefault("registry.guard_interval_secs", 3)
	v.SetDefault("registry.guard_timeout_secs", 60)

	// Gateway
	v.SetDefault("gateway.mode", "feed")
	v.SetDefault("gateway.reconnect_max_sec", 30)
	v.SetDefault("gateway.replay_delay_ms", 0)

	// Alarms and scheduled maintenance (CST trading calendar)
	v.SetDefault("alarm.archive_cron", "30 15 * * 1-5")
	v.SetDefault("alarm.session_close_cron", "0 16 * * 1-5")
	v.SetDefault("alarm.max_per_minute", 6.0)
}

// BindSensitiveEnvVars explicitly binds deployment-specific values to
// environment variables so they never need to live in a config file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("gateway.feed_url", "TICKD_GATEWAY_FEED_URL")
	v.BindEnv("data.dir", "TICKD_DATA_DIR")
	v.BindEnv("registry.instrument_table", "TICKD_INSTRUMENT_TABLE")
}

// HotDir returns the hot-tier directory, defaulting beneath data.dir.
func (c *Config) HotDir() string {
	if c.Data.HotDir != "" {
		return c.Data.HotDir
	}
	return filepath.Join(c.Data.Dir, "hot")
}

// ColdDir returns the cold-tier directory, defaulting beneath data.dir.
func (c *Config) ColdDir() string {
	if c.Data.ColdDir != "" {
		return c.Data.ColdDir
	}
	return filepath.Join(c.Data.Dir, "cold")
}

// CSVDir returns the append-log directory, defaulting beneath data.dir.
func (c *Config) CSVDir() string {
	if c.Data.CSVDir != "" {
		return c.Data.CSVDir
	}
	return filepath.Join(c.Data.Dir, "csv")
}
