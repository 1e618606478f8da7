package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"netpresence/internal/logger"
	presencehttp "netpresence/internal/presence/interfaces/http"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var noPoll bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the poll scheduler and the HTTP API",
		Long: `Run the poll scheduler and the HTTP API until interrupted.

The first poll cycle starts immediately, then repeats every poll.interval.

Example:
  NETPRESENCE_CONFIG=./netpresence.yaml netpresence serve
  netpresence serve --config ./netpresence.yaml --no-poll`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, noPoll)
		},
	}
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "serve the API without polling the gateway")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, noPoll bool) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	handler, err := presencehttp.NewHandler(a.poller, a.scheduler, a.aggregator, logger.WithComponent(a.logger, "api"))
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           presencehttp.NewRouter(handler, os.Stdout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if !noPoll {
		g.Go(func() error {
			a.scheduler.Start(gctx)
			<-gctx.Done()
			a.scheduler.Stop()
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.logger.Info().Msg("shutdown complete")
	return err
}
