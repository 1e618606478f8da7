package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"netpresence/internal/presence/application"
	"netpresence/internal/presence/interfaces/export"
)

type statsOptions struct {
	days   int
	export string
	out    string
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &statsOptions{}
	cmd := &cobra.Command{
		Use:   "stats <hostname>",
		Short: "Show per-person presence statistics",
		Long: `Show daily online hours and offline intervals for the employee
matched by hostname over the last --days days.

Example:
  netpresence stats alice-laptop --days 30
  netpresence stats alice-laptop --export xlsx --out alice.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now()
			days, err := application.LastNDays(now, opts.days, a.aggregator.Location())
			if err != nil {
				return err
			}
			stats, err := a.aggregator.PersonStats(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			if opts.export != "" {
				return writeExport(stats, opts, now.In(a.aggregator.Location()), cmd.OutOrStdout())
			}
			rounded := stats.Rounded()
			return newOutput(rootOpts, cmd.OutOrStdout()).write(rounded, func(w io.Writer) {
				writeStats(w, rounded)
			})
		},
	}
	cmd.Flags().IntVarP(&opts.days, "days", "d", 7, "number of days ending today")
	cmd.Flags().StringVar(&opts.export, "export", "", "export format (xlsx|pdf|csv)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "export file path (default generated name)")
	return cmd
}

func writeExport(stats application.PersonStats, opts *statsOptions, generated time.Time, w io.Writer) error {
	format, err := export.ParseFormat(opts.export)
	if err != nil {
		return err
	}
	data, err := export.Render(stats, format, generated)
	if err != nil {
		return err
	}
	path := opts.out
	if path == "" {
		path = export.Filename(stats.Hostname, format, generated)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote %s (%d bytes)\n", path, len(data))
	return nil
}

func writeStats(w io.Writer, stats application.PersonStats) {
	if !stats.Known {
		fmt.Fprintf(w, "no devices known for %q\n", stats.Hostname)
	}
	fmt.Fprintf(w, "%-10s  %12s  %17s\n", "day", "online hours", "offline intervals")
	for _, day := range stats.Days {
		fmt.Fprintf(w, "%-10s  %12.2f  %17d\n", day.Day, day.OnlineHours, day.OfflineIntervals)
	}
	fmt.Fprintf(w, "online days: %d, average hours/day: %.2f, max hours: %.2f\n",
		stats.Summary.TotalOnlineDays, stats.Summary.AverageHoursPerDay, stats.Summary.MaxHoursOnline)
}

// NewHistoricalCommand creates the historical command.
func NewHistoricalCommand(rootOpts *RootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "historical",
		Short: "Show distinct online devices per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := application.LastNDays(time.Now(), days, a.aggregator.Location())
			if err != nil {
				return err
			}
			counts, err := a.aggregator.Historical(cmd.Context(), r)
			if err != nil {
				return err
			}
			return newOutput(rootOpts, cmd.OutOrStdout()).write(counts, func(w io.Writer) {
				for _, c := range counts {
					fmt.Fprintf(w, "%s  %d\n", c.Day, c.OnlineDeviceCount)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 7, "number of days ending today")
	return cmd
}
