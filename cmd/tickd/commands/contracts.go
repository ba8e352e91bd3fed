package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfutures/tickd/logger"
	"github.com/openfutures/tickd/registry"
)

// nullIssuer satisfies the registry's subscription capability for
// offline inspection; nothing is ever dispatched.
type nullIssuer struct{}

func (nullIssuer) SubscribeMarketData([]string) error { return nil }

// ContractsCmd prints the loaded instrument table.
var ContractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List the loaded instrument table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		reg, err := registry.New(registry.Config{
			TablePath:   cfg.Registry.InstrumentTable,
			SidecarPath: cfg.Registry.Sidecar,
		}, nullIssuer{}, nil, logger.Logger)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INSTRUMENT\tEXCHANGE")
		for _, id := range reg.Instruments() {
			c, _ := reg.Lookup(id)
			fmt.Fprintf(w, "%s\t%s\n", c.InstrumentID, c.ExchangeID)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d contracts\n", reg.Len())
		return nil
	},
}
