package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocketumami/pocketumami/pkg/timeseries"
)

var statsRange string

var statsCmd = &cobra.Command{
	Use:   "stats <website-id>",
	Short: "Show summary stats for a website",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runStats),
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsRange, "range", "24h", "time range: 24h, 7d, 30d or 90d")
}

func runStats(a *app, cmd *cobra.Command, args []string) error {
	rangeType := timeseries.RangeType(statsRange)
	switch rangeType {
	case timeseries.Range24h, timeseries.Range7d, timeseries.Range30d, timeseries.Range90d:
	default:
		return fmt.Errorf("unknown range %q", statsRange)
	}

	now := time.Now()
	plan := timeseries.CalculateIntervals(now, now, rangeType, now, a.loc)

	stats, fromCache, err := a.data.Stats(cmd.Context(), args[0], plan, a.timezoneName())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE\tPREVIOUS")
	fmt.Fprintf(w, "pageviews\t%.0f\t%.0f\n", stats.Pageviews.Value, stats.Pageviews.Prev)
	fmt.Fprintf(w, "visitors\t%.0f\t%.0f\n", stats.Visitors.Value, stats.Visitors.Prev)
	fmt.Fprintf(w, "visits\t%.0f\t%.0f\n", stats.Visits.Value, stats.Visits.Prev)
	fmt.Fprintf(w, "bounces\t%.0f\t%.0f\n", stats.Bounces.Value, stats.Bounces.Prev)
	fmt.Fprintf(w, "totaltime\t%.0f\t%.0f\n", stats.TotalTime.Value, stats.TotalTime.Prev)
	if err := w.Flush(); err != nil {
		return err
	}
	if fromCache {
		fmt.Fprintln(os.Stderr, "(cached)")
	}
	return nil
}
