package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfutures/tickd/config"
	"github.com/openfutures/tickd/logger"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/store"
	appendlog "github.com/openfutures/tickd/store/append"
	"github.com/openfutures/tickd/store/cold"
	"github.com/openfutures/tickd/store/hot"
)

const timestampLayout = "2006-01-02 15:04:05.000"

// QueryCmd groups the storage query subcommands.
var QueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query stored ticks or bars by time range",
}

var queryTicksCmd = &cobra.Command{
	Use:   "ticks <instrument>",
	Short: "Print ticks for one instrument in a time range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		router, start, end, err := queryRouter(cmd)
		if err != nil {
			return err
		}
		rows, err := router.QueryTicks(args[0], start, end)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tLAST\tVOLUME\tOPEN_INT\tBID1\tASK1")
		for _, t := range rows {
			fmt.Fprintf(w, "%s\t%.2f\t%d\t%d\t%.2f\t%.2f\n",
				t.Timestamp.In(md.CST).Format(timestampLayout),
				t.LastPrice, t.Volume, t.OpenInterest,
				t.BidPrice[0], t.AskPrice[0])
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d ticks\n", len(rows))
		return nil
	},
}

var queryBarsCmd = &cobra.Command{
	Use:   "bars <instrument>",
	Short: "Print bars for one instrument and interval in a time range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetString("interval")
		if _, err := md.ParseInterval(interval); err != nil {
			return err
		}
		router, start, end, err := queryRouter(cmd)
		if err != nil {
			return err
		}
		rows, err := router.QueryBars(args[0], interval, start, end)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\tOPEN_INT")
		for _, b := range rows {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%d\n",
				b.Timestamp.In(md.CST).Format(timestampLayout),
				b.OpenPrice, b.HighestPrice, b.LowestPrice, b.ClosePrice,
				b.Volume, b.OpenInterest)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d bars\n", len(rows))
		return nil
	},
}

// queryRouter builds a read-only storage view from the configured
// directories and parses the range flags.
func queryRouter(cmd *cobra.Command) (*store.Router, time.Time, time.Time, error) {
	var zero time.Time

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, zero, zero, err
	}

	startArg, _ := cmd.Flags().GetString("start")
	endArg, _ := cmd.Flags().GetString("end")
	start, err := parseTime(startArg)
	if err != nil {
		return nil, zero, zero, err
	}
	end, err := parseTime(endArg)
	if err != nil {
		return nil, zero, zero, err
	}

	router, err := buildRouter(cfg)
	if err != nil {
		return nil, zero, zero, err
	}
	return router, start, end, nil
}

func buildRouter(cfg *config.Config) (*store.Router, error) {
	log := logger.Logger

	h, err := hot.New(hot.Config{Dir: cfg.HotDir()}, nil, log)
	if err != nil {
		return nil, err
	}
	c, err := cold.New(cfg.ColdDir(), log)
	if err != nil {
		return nil, err
	}
	// Queries never touch the append tier; the writer is wired but
	// never started.
	a, err := appendlog.New(appendlog.Config{Dir: cfg.CSVDir()}, log)
	if err != nil {
		return nil, err
	}
	return store.NewRouter(h, c, a, cfg.Data.RetentionDays, nil, log), nil
}

func init() {
	for _, c := range []*cobra.Command{queryTicksCmd, queryBarsCmd} {
		c.Flags().String("start", "", "Range start, inclusive (YYYY-MM-DD [HH:MM:SS])")
		c.Flags().String("end", "", "Range end, inclusive")
		c.MarkFlagRequired("start")
		c.MarkFlagRequired("end")
	}
	queryBarsCmd.Flags().String("interval", "1m", "Bar interval tag")

	QueryCmd.AddCommand(queryTicksCmd)
	QueryCmd.AddCommand(queryBarsCmd)
}
