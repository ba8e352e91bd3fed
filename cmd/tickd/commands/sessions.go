package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfutures/tickd/logger"
	"github.com/openfutures/tickd/md"
	appendlog "github.com/openfutures/tickd/store/append"
)

// SessionsCmd groups the post-session maintenance subcommands.
var SessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Post-session CSV maintenance",
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Deduplicate and archive one day's CSV tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		day, _ := cmd.Flags().GetString("day")
		if day == "" {
			day = md.Today()
		}
		if _, err := md.ParseDay(day); err != nil {
			return err
		}

		if err := appendlog.CloseDay(cfg.CSVDir(), day, logger.Logger); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s closed\n", day)
		return nil
	},
}

func init() {
	sessionsCloseCmd.Flags().String("day", "", "Trading day YYYYMMDD (default today)")
	SessionsCmd.AddCommand(sessionsCloseCmd)
}
