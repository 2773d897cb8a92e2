package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bepsel/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Path   string         `json:"path"`
	Errors []string       `json:"errors,omitempty"`
	Config *config.Config `json:"config,omitempty"`
}

// String renders the result for text output.
func (r ValidationResult) String() string {
	if !r.Valid {
		return fmt.Sprintf("✗ %s\n  %s", r.Path, strings.Join(r.Errors, "\n  "))
	}
	c := r.Config
	return fmt.Sprintf("✓ %s valid\n  stream: %s\n  checkpoint_every: %d\n  file_name_allowlist: %s\n  output_group_allowlist: %s\n  target_aspect_allowlist: %s",
		r.Path,
		c.Driver.Stream,
		c.Driver.CheckpointEvery,
		strings.Join(c.Selector.FileNameAllowlist, ", "),
		strings.Join(c.Selector.OutputGroupAllowlist, ", "),
		strings.Join(c.Selector.TargetAspectAllowlist, ", "),
	)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Validate a config file",
		Long: `Validate a CUE config file against the bepsel schema.

Reports unknown fields, wrong types, empty allowlists and patterns that do
not compile, then prints the effective configuration with defaults applied.

Exit codes:
  0 - Config valid
  1 - Config invalid
  2 - Command error (file not found)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(path); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("config file not found: %s", path), err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		result := ValidationResult{Path: path, Errors: flattenErrors(err)}
		msg := fmt.Sprintf("%d validation error(s)", len(result.Errors))
		if opts.Format == "json" {
			if outErr := formatter.Error(ErrCodeInvalidConfig, msg, result); outErr != nil {
				return outErr
			}
		} else {
			fmt.Fprintln(formatter.Writer, result)
		}
		return WrapExitError(ExitFailure, msg, err)
	}

	formatter.VerboseLog("Loaded %s", path)
	return formatter.Success(ValidationResult{Valid: true, Path: path, Config: cfg})
}

// flattenErrors splits errors.Join results into one message per error.
func flattenErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var msgs []string
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, flattenErrors(e)...)
		}
		return msgs
	}
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}
