package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/emmsync/internal/store"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "Show the latest logged run",
		Long: `Print the latest reconciliation run recorded in the configured database,
with the outcome of every record.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(rootOpts, cmd)
		},
	}
}

func runRuns(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database == "" {
		return NewExitError(ExitCommandError, "no database configured")
	}
	db, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	out := newFormatter(cmd, opts)
	run, err := db.LatestRun(cmd.Context())
	if errors.Is(err, store.ErrNoRuns) {
		return out.Success("No runs recorded.\n", nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run log", err)
	}
	return out.Success(formatRun(run), run)
}

func formatRun(run store.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (#%d)\n", run.ID, run.Seq)
	fmt.Fprintf(&b, "  Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "  Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(&b, "  Finished: (running)")
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "  Error:    %s\n", run.Error)
	}
	parts := make([]string, 0, len(run.Counts))
	for _, name := range slices.Sorted(maps.Keys(run.Counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", name, run.Counts[name]))
	}
	fmt.Fprintf(&b, "  Counts:   %s\n", strings.Join(parts, " "))
	for _, o := range run.Outcomes {
		fmt.Fprintf(&b, "  [%d] %-9s %s\n", o.Seq, o.Outcome, o.Label)
	}
	return b.String()
}
