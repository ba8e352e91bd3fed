package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/openfutures/tickd/errors"
)

// WriteDefault renders the current defaults as a TOML file at path,
// backing up any existing file first. Used by `tickd config init`.
func WriteDefault(path string) error {
	if err := createBackup(path); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "create config directory for %s", path)
	}

	v := GetViper()
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return errors.Wrap(err, "unmarshal defaults")
	}

	content, err := toml.Marshal(settingsMap(&cfg))
	if err != nil {
		return errors.Wrap(err, "marshal default config")
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errors.Wrapf(err, "write config file %s", path)
	}
	return nil
}

// settingsMap lays the config out in the TOML table shapes users edit.
// Marshaling the struct directly would lose the snake_case key names
// (go-toml reads field names, not mapstructure tags).
func settingsMap(c *Config) map[string]any {
	return map[string]any{
		"schema_version": CurrentSchemaVersion,
		"data": map[string]any{
			"dir":            c.Data.Dir,
			"retention_days": c.Data.RetentionDays,
		},
		"bus": map[string]any{
			"general_max_workers":    c.GeneralWorkers(),
			"market_max_workers":     c.Bus.MarketMaxWorkers,
			"queue_capacity":         c.Bus.QueueCapacity,
			"timer_interval_seconds": c.Bus.TimerIntervalSeconds,
		},
		"bar": map[string]any{
			"intervals":  c.Bar.Intervals,
			"day_anchor": c.Bar.DayAnchor,
		},
		"hot": map[string]any{
			"tick_flush_threshold":       c.Hot.TickFlushThreshold,
			"bar_flush_threshold":        c.Hot.BarFlushThreshold,
			"monitor_interval_seconds":   c.Hot.MonitorIntervalSeconds,
			"max_flush_lifetime_seconds": c.Hot.MaxFlushLifetimeSeconds,
		},
		"append": map[string]any{
			"workers":                c.Append.Workers,
			"batch_threshold":        c.Append.BatchThreshold,
			"queue_capacity":         c.Append.QueueCapacity,
			"submit_timeout_seconds": c.Append.SubmitTimeoutSeconds,
		},
		"registry": map[string]any{
			"instrument_table":    c.Registry.InstrumentTable,
			"guard_interval_secs": c.Registry.GuardIntervalSecs,
			"guard_timeout_secs":  c.Registry.GuardTimeoutSecs,
		},
		"gateway": map[string]any{
			"mode":              c.Gateway.Mode,
			"feed_url":          c.Gateway.FeedURL,
			"reconnect_max_sec": c.Gateway.ReconnectMaxSec,
			"replay_path":       c.Gateway.ReplayPath,
			"replay_delay_ms":   c.Gateway.ReplayDelayMs,
		},
		"alarm": map[string]any{
			"archive_cron":       c.Alarm.ArchiveCron,
			"session_close_cron": c.Alarm.SessionCloseCron,
			"max_per_minute":     c.Alarm.MaxPerMinute,
		},
	}
}

// createBackup rotates backups (.back1, .back2, .back3) before a write.
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove oldest backup")
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "read config for backup")
	}
	if err := os.WriteFile(back1, content, 0o644); err != nil {
		return errors.Wrap(err, "create .back1")
	}
	return nil
}
