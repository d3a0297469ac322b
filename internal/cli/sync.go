package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/emmsync/internal/engine"
	"github.com/roach88/emmsync/internal/reconcile"
)

// SyncResult is the JSON payload of the sync command.
type SyncResult struct {
	RunID   string             `json:"run_id"`
	Counts  map[string]int     `json:"counts"`
	Failed  int                `json:"failed"`
	Results []reconcile.Result `json:"results"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Long: `Run one reconciliation pass over every stored policy.

Results are printed as they happen. When a database is configured the pass
is recorded in its run log.

Exit codes:
  0 - Every record reconciled
  1 - One or more records failed
  2 - Command error (bad config, listing failed, etc.)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	a, err := wire(cmd.Context(), cfg, opts.Logger())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	text := opts.Format != "json"
	results := []reconcile.Result{}

	eng := engine.New(a.rec, a.engineOptions(opts)...)
	sum, passErr := eng.Pass(cmd.Context(), func(res reconcile.Result) {
		if text {
			fmt.Fprintf(w, "%-9s %s\n", res.Outcome, res.Label)
			return
		}
		results = append(results, res)
	})
	if passErr != nil {
		return WrapExitError(ExitCommandError, "sync failed", passErr)
	}

	out := newFormatter(cmd, opts)
	if err := out.Success(formatSummary(sum), SyncResult{
		RunID:   sum.RunID,
		Counts:  sum.Counts,
		Failed:  sum.Failed,
		Results: results,
	}); err != nil {
		return err
	}
	if sum.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", sum.Failed))
	}
	return nil
}

// engineOptions attaches the run log when a database is configured.
func (a *app) engineOptions(opts *RootOptions) []engine.Option {
	out := []engine.Option{engine.WithLogger(opts.Logger())}
	if a.db != nil {
		out = append(out, engine.WithRunLog(a.db))
	}
	return out
}

func formatSummary(sum engine.Summary) string {
	parts := make([]string, 0, len(sum.Counts))
	for _, name := range slices.Sorted(maps.Keys(sum.Counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", name, sum.Counts[name]))
	}
	return fmt.Sprintf("\nRun %s: %d record(s) [%s], %d failed\n",
		sum.RunID, sum.Total(), strings.Join(parts, " "), sum.Failed)
}
