package commands

import (
	"github.com/spf13/cobra"

	tickd "github.com/openfutures/tickd"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/logger"
)

// RunCmd starts the ingestion daemon and blocks until shutdown.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the market-data ingestion daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "invalid configuration")
		}

		daemon, err := tickd.NewDaemon(cfg, logger.Logger)
		if err != nil {
			return err
		}
		return daemon.Run(cmd.Context())
	},
}
