package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/emmsync/internal/engine"
	"github.com/roach88/emmsync/internal/metrics"
	"github.com/roach88/emmsync/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Interval time.Duration // overrides serve.interval
	Listen   string        // overrides serve.listen
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Reconcile periodically and serve health and metrics",
		Long: `Run a reconciliation pass immediately and then every interval, while
serving /healthz, /metrics and /runs/latest over HTTP.

Stops gracefully on SIGINT or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "time between passes (default from config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "HTTP listen address (default from config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Interval != 0 {
		cfg.Serve.Interval = opts.Interval
	}
	if opts.Listen != "" {
		cfg.Serve.Listen = opts.Listen
	}
	if cfg.Serve.Interval < time.Second {
		return NewExitError(ExitCommandError, "interval must be at least 1s")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger()
	a, err := wire(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng := engine.New(a.rec, append(a.engineOptions(opts.RootOptions), engine.WithMetrics(metrics.New(reg)))...)

	var runs server.RunSource = eng
	var checks []server.Check
	if a.db != nil {
		runs = a.db
		checks = append(checks, server.Check{Name: "database", Probe: a.db.Ping})
	}
	srv := server.New(cfg.Serve.Listen, server.NewRouter(server.NewHandler(runs, reg, logger, checks...)))

	logger.Info("serving", "listen", cfg.Serve.Listen, "interval", cfg.Serve.Interval, "backend", cfg.Backend)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx, cfg.Serve.Interval) })
	g.Go(func() error { return server.Serve(gctx, srv) })
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "serve failed", err)
	}
	return nil
}
