package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfutures/tickd/archive"
	"github.com/openfutures/tickd/logger"
	"github.com/openfutures/tickd/store/cold"
	"github.com/openfutures/tickd/store/hot"
)

// ArchiveCmd runs one hot-to-cold archive cycle and exits. The same
// cycle the scheduler triggers daily, for manual or catch-up use.
var ArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Run one hot-to-cold archive cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.Logger

		h, err := hot.New(hot.Config{Dir: cfg.HotDir()}, nil, log)
		if err != nil {
			return err
		}
		c, err := cold.New(cfg.ColdDir(), log)
		if err != nil {
			return err
		}

		report, err := archive.New(h, c, cfg.Data.RetentionDays, nil, log).Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"Archived %d rows (%d tick partitions, %d bar partitions), deleted %d hot rows, cutoff %s\n",
			report.RowsArchived, report.TickPartitions, report.BarPartitions,
			report.RowsDeleted, report.Cutoff.Format("2006-01-02"))
		return nil
	},
}
