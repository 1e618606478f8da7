package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"netpresence/internal/presence/application"
)

// NewPollCommand creates the poll command.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run a single fetch, parse and reconcile cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.poller.RunCycle(cmd.Context())
			if err != nil {
				return err
			}
			return newOutput(rootOpts, cmd.OutOrStdout()).write(result, func(w io.Writer) {
				writeCycle(w, result, a.poller)
			})
		},
	}
}

func writeCycle(w io.Writer, result application.CycleResult, poller *application.Poller) {
	fmt.Fprintf(w, "cycle %s: %d devices sighted in %s\n", result.CycleID, result.Sightings, result.Duration.Round(time.Millisecond))
	r := result.Reconcile
	fmt.Fprintf(w, "  created devices=%d employees=%d, updated devices=%d\n", r.CreatedDevices, r.CreatedEmployees, r.UpdatedDevices)
	fmt.Fprintf(w, "  online=%d offline=%d events=%d\n", r.WentOnline, r.WentOffline, r.EventsWritten)
	for _, s := range poller.CurrentDevices() {
		fmt.Fprintf(w, "  %-17s %-15s %s\n", s.MACAddress, s.IPAddress, s.Hostname)
	}
}
