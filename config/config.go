// Package config loads and validates the tickd daemon configuration.
//
// Configuration comes from TOML files merged in precedence order
// (system < user < project < environment), with TICKD_-prefixed
// environment variables taking priority over every file. All knobs
// have defaults; a missing config file is not an error.
package config

import (
	"time"
)

// Config is the root tickd configuration.
type Config struct {
	SchemaVersion string `mapstructure:"schema_version"` // config schema semver, gated at startup

	Data     DataConfig     `mapstructure:"data"`
	Bus      BusConfig      `mapstructure:"bus"`
	Bar      BarConfig      `mapstructure:"bar"`
	Hot      HotConfig      `mapstructure:"hot"`
	Append   AppendConfig   `mapstructure:"append"`
	Registry RegistryConfig `mapstructure:"registry"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Alarm    AlarmConfig    `mapstructure:"alarm"`
}

// DataConfig holds the storage tier paths and the retention split.
type DataConfig struct {
	Dir           string `mapstructure:"dir"`            // base data directory; tier dirs default beneath it
	HotDir        string `mapstructure:"hot_dir"`        // per-day SQLite files (default {dir}/hot)
	ColdDir       string `mapstructure:"cold_dir"`       // columnar archive partitions (default {dir}/cold)
	CSVDir        string `mapstructure:"csv_dir"`        // append-log CSV trees (default {dir}/csv)
	RetentionDays int    `mapstructure:"retention_days"` // days served from the hot tier (default 7)
}

// BusConfig sizes the event bus queues and worker pools.
type BusConfig struct {
	GeneralMaxWorkers    int `mapstructure:"general_max_workers"`    // workers on the general queue (default 2)
	MarketMaxWorkers     int `mapstructure:"market_max_workers"`     // workers on the market queue; 0 = 2× general
	QueueCapacity        int `mapstructure:"queue_capacity"`         // soft capacity per queue (default 4096)
	TimerIntervalSeconds int `mapstructure:"timer_interval_seconds"` // periodic timer event interval (default 1)
}

// BarConfig selects the bar intervals synthesized per contract.
type BarConfig struct {
	Intervals []string `mapstructure:"intervals"`  // interval tags; unknown tags are fatal at startup
	DayAnchor string   `mapstructure:"day_anchor"` // "HH:MM" open stamp for day-and-larger bars (default "09:00")
}

// HotConfig tunes the per-day SQLite writer.
type HotConfig struct {
	TickFlushThreshold      int `mapstructure:"tick_flush_threshold"`       // buffered tick rows per day before flush (default 10000)
	BarFlushThreshold       int `mapstructure:"bar_flush_threshold"`        // buffered bar rows per day before flush (default 3000)
	MonitorIntervalSeconds  int `mapstructure:"monitor_interval_seconds"`   // zombie-flush sweep interval (default 30)
	MaxFlushLifetimeSeconds int `mapstructure:"max_flush_lifetime_seconds"` // flush age before it is reported as a zombie (default 120)
}

// AppendConfig tunes the sharded CSV writer.
type AppendConfig struct {
	Workers              int `mapstructure:"workers"`                // writer goroutines (default 4)
	BatchThreshold       int `mapstructure:"batch_threshold"`        // buffered rows per worker before flush (default 500)
	QueueCapacity        int `mapstructure:"queue_capacity"`         // per-worker queue capacity (default 256)
	SubmitTimeoutSeconds int `mapstructure:"submit_timeout_seconds"` // bounded enqueue wait before the direct-write fallback (default 5)
}

// RegistryConfig locates the instrument table and tunes subscription gating.
type RegistryConfig struct {
	InstrumentTable     string `mapstructure:"instrument_table"`      // JSON instrument_id → exchange_id mapping
	Sidecar             string `mapstructure:"sidecar"`               // optional contracts.toml with per-exchange enable flags
	GuardIntervalSecs   int    `mapstructure:"guard_interval_secs"`   // guard poll interval (default 3)
	GuardTimeoutSecs    int    `mapstructure:"guard_timeout_secs"`    // market-ready-without-trade timeout (default 60)
}

// GatewayConfig selects and configures the upstream adapter.
type GatewayConfig struct {
	Mode            string `mapstructure:"mode"`              // "feed" (websocket) or "replay" (file)
	FeedURL         string `mapstructure:"feed_url"`          // websocket quote stream URL
	ReconnectMaxSec int    `mapstructure:"reconnect_max_sec"` // cap on reconnect backoff (default 30)
	ReplayPath      string `mapstructure:"replay_path"`       // tick file for replay mode
	ReplayDelayMs   int    `mapstructure:"replay_delay_ms"`   // per-tick pacing for replay (default 0, as fast as possible)
}

// AlarmConfig holds the cron specs for scheduled maintenance and the
// alarm-storm throttle.
type AlarmConfig struct {
	ArchiveCron      string  `mapstructure:"archive_cron"`       // daily archive trigger (default "30 15 * * 1-5")
	SessionCloseCron string  `mapstructure:"session_close_cron"` // post-session CSV maintenance (default "0 16 * * 1-5")
	MaxPerMinute     float64 `mapstructure:"max_per_minute"`     // per-source alarm rate limit (default 6)
}

// TimerInterval returns the bus timer interval as a duration.
func (c *Config) TimerInterval() time.Duration {
	if c.Bus.TimerIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.Bus.TimerIntervalSeconds) * time.Second
}

// MarketWorkers returns the market-queue pool size, applying the 2×
// rule when unset. The market pool runs the bar generators and the
// hot-store submitter, so it gets the larger share.
func (c *Config) MarketWorkers() int {
	if c.Bus.MarketMaxWorkers > 0 {
		return c.Bus.MarketMaxWorkers
	}
	return 2 * c.GeneralWorkers()
}

// GeneralWorkers returns the general-queue pool size.
func (c *Config) GeneralWorkers() int {
	if c.Bus.GeneralMaxWorkers <= 0 {
		return 2
	}
	return c.Bus.GeneralMaxWorkers
}

// GuardInterval returns the registry guard poll interval.
func (c *Config) GuardInterval() time.Duration {
	if c.Registry.GuardIntervalSecs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Registry.GuardIntervalSecs) * time.Second
}

// GuardTimeout returns how long the registry waits for the trade
// session after the market session is ready before forcing the gate.
func (c *Config) GuardTimeout() time.Duration {
	if c.Registry.GuardTimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Registry.GuardTimeoutSecs) * time.Second
}

// SubmitTimeout returns the append-log bounded enqueue wait.
func (c *Config) SubmitTimeout() time.Duration {
	if c.Append.SubmitTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Append.SubmitTimeoutSeconds) * time.Second
}

// DayAnchorMinutes parses the day-bar anchor "HH:MM" into minutes past
// midnight, defaulting to 09:00 when unset or malformed.
func (c *Config) DayAnchorMinutes() int {
	anchor := c.Bar.DayAnchor
	if len(anchor) != 5 || anchor[2] != ':' {
		return 9 * 60
	}
	h := int(anchor[0]-'0')*10 + int(anchor[1]-'0')
	m := int(anchor[3]-'0')*10 + int(anchor[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 9 * 60
	}
	return h*60 + m
}
