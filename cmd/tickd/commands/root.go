// Package commands implements the tickd CLI subcommands.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/openfutures/tickd/config"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
)

// loadConfig resolves the configuration for a command: an explicit
// --config file when given, otherwise the merged search path.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// timeLayouts are the accepted --start/--end formats, exchange local
// time.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// parseTime parses a CLI time argument in the exchange zone.
func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, value, md.CST); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.Newf("unparseable time %q (want YYYY-MM-DD [HH:MM:SS])", value)
}
