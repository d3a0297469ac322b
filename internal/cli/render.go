package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
)

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "render <principal>",
		Short: "Print the desired policy of a user",
		Long: `Build and print the policy document a user would receive, without
reading or writing the policy store. The principal is a SID or a name.

Examples:
  emmsync render alice
  emmsync render S-1-5-21-1004336348-1177238915-682003330-1001 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, args[0], cmd)
		},
	}
}

func runRender(opts *RootOptions, principal string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	a, err := wire(cmd.Context(), cfg, opts.Logger())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	out := newFormatter(cmd, opts)
	p, err := a.directory.ResolvePrincipal(cmd.Context(), principal)
	if errors.Is(err, emm.ErrNotFound) {
		msg := fmt.Sprintf("principal not found: %s", principal)
		if err := out.Error(CodeNotFound, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve principal", err)
	}

	obj, err := a.rec.Desired(cmd.Context(), p)
	if err != nil {
		if err := out.Error(CodeFailed, err.Error(), nil); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "failed to build policy", err)
	}

	data, err := doc.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	return out.Success(string(data)+"\n", obj)
}
