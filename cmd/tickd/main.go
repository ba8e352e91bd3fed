package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/openfutures/tickd/cmd/tickd/commands"
	"github.com/openfutures/tickd/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tickd",
	Short: "tickd - futures market-data ingestion and storage daemon",
	Long: `tickd ingests a real-time futures quote stream, synthesizes
candlestick bars at multiple intervals, and persists ticks and bars
through a tiered hot/cold storage hierarchy.

Available commands:
  run       - Start the ingestion daemon
  config    - Show, initialize, or validate the configuration
  contracts - List the loaded instrument table
  query     - Query stored ticks or bars by time range
  archive   - Run one hot-to-cold archive cycle
  sessions  - Post-session CSV maintenance
  version   - Show build information

Examples:
  tickd run                                # start with the merged config
  tickd config init                        # write the default tickd.toml
  tickd query ticks rb2501 --start "2025-11-05 09:00:00" --end "2025-11-05 10:00:00"
  tickd archive                            # archive days past retention now`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOut, _ := cmd.Flags().GetBool("json")
		level := zapcore.InfoLevel
		if verbosity > 0 {
			level = zapcore.DebugLevel
		}
		if err := logger.InitializeWithLevel(jsonOut, level); err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity")
	rootCmd.PersistentFlags().Bool("json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (overrides the search path)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.ContractsCmd)
	rootCmd.AddCommand(commands.QueryCmd)
	rootCmd.AddCommand(commands.ArchiveCmd)
	rootCmd.AddCommand(commands.SessionsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
