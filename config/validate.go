package config

import (
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/version"
)

// CurrentSchemaVersion is the config schema this binary writes and
// expects. Older configs within the same major version still load.
const CurrentSchemaVersion = "1.0.0"

// Validate checks that the configuration is usable. An unknown bar
// interval tag is fatal per the startup contract: the daemon refuses
// to run rather than silently skip a requested period.
func (c *Config) Validate() error {
	if err := version.CompatibleSchema(c.SchemaVersion); err != nil {
		return err
	}

	if c.Data.RetentionDays <= 0 {
		return errors.Newf("data.retention_days must be > 0, got %d", c.Data.RetentionDays)
	}

	if len(c.Bar.Intervals) == 0 {
		return errors.New("bar.intervals cannot be empty")
	}
	if _, err := md.ParseIntervals(c.Bar.Intervals); err != nil {
		return errors.Wrap(err, "bar.intervals")
	}

	// Pool sizes: 0 = use default, negative = invalid
	if c.Bus.GeneralMaxWorkers < 0 {
		return errors.Newf("bus.general_max_workers must be >= 0, got %d", c.Bus.GeneralMaxWorkers)
	}
	if c.Bus.MarketMaxWorkers < 0 {
		return errors.Newf("bus.market_max_workers must be >= 0, got %d", c.Bus.MarketMaxWorkers)
	}
	if c.Bus.QueueCapacity < 0 {
		return errors.Newf("bus.queue_capacity must be >= 0, got %d", c.Bus.QueueCapacity)
	}
	if c.Bus.TimerIntervalSeconds < 0 {
		return errors.Newf("bus.timer_interval_seconds must be >= 0, got %d", c.Bus.TimerIntervalSeconds)
	}

	if c.Hot.TickFlushThreshold < 0 {
		return errors.Newf("hot.tick_flush_threshold must be >= 0, got %d", c.Hot.TickFlushThreshold)
	}
	if c.Hot.BarFlushThreshold < 0 {
		return errors.Newf("hot.bar_flush_threshold must be >= 0, got %d", c.Hot.BarFlushThreshold)
	}

	if c.Append.Workers < 0 {
		return errors.Newf("append.workers must be >= 0, got %d", c.Append.Workers)
	}
	if c.Append.QueueCapacity < 0 {
		return errors.Newf("append.queue_capacity must be >= 0, got %d", c.Append.QueueCapacity)
	}

	switch c.Gateway.Mode {
	case "feed", "replay", "none":
	default:
		return errors.Newf("gateway.mode must be feed, replay, or none, got %q", c.Gateway.Mode)
	}
	if c.Gateway.Mode == "feed" && c.Gateway.FeedURL == "" {
		return errors.New("gateway.feed_url cannot be empty in feed mode")
	}
	if c.Gateway.Mode == "replay" && c.Gateway.ReplayPath == "" {
		return errors.New("gateway.replay_path cannot be empty in replay mode")
	}

	if c.Alarm.MaxPerMinute < 0 {
		return errors.Newf("alarm.max_per_minute must be >= 0, got %f", c.Alarm.MaxPerMinute)
	}

	return nil
}
