package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/emmsync/internal/catalog"
	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/fragment"
)

// ValidationResult is the JSON payload of the validate command.
type ValidationResult struct {
	File      string `json:"file"`
	Valid     bool   `json:"valid"`
	Canonical any    `json:"canonical,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <fragment-file>",
		Short: "Validate a fragment against the policy catalog",
		Long: `Validate a YAML or JSON fragment against the policy catalog and print its
canonical form.

The configuration file is only read when --config is given; it supplies
the locales of localized messages. Applications are not looked up, so
managed configurations are checked against the generic schema.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	var options catalog.Options
	if cmd.Flags().Changed("config") {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		if options.Locales, err = catalog.Locales(cfg.Locales); err != nil {
			return WrapExitError(ExitCommandError, "invalid locales", err)
		}
	}
	root, err := catalog.Policy(options)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile catalog", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read fragment", err)
	}

	out := newFormatter(cmd, opts)
	invalid := func(err error) error {
		if ferr := out.Error(CodeInvalid, err.Error(), ValidationResult{File: path}); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("%s is invalid", path), err)
	}

	v, err := fragment.Decode(data)
	if err != nil {
		return invalid(err)
	}
	canon, err := root.Validate(v)
	if err != nil {
		return invalid(err)
	}

	text := fmt.Sprintf("✓ %s is valid\n", path)
	if canon != nil {
		pretty, err := doc.MarshalIndent(canon, "", "  ")
		if err != nil {
			return err
		}
		text += string(pretty) + "\n"
	}
	return out.Success(text, ValidationResult{File: path, Valid: true, Canonical: doc.ToAny(canon)})
}
