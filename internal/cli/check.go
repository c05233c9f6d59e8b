package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ferrule/internal/diag"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Strict bool // warnings fail the check
}

// CheckResult holds the diagnostics found by check.
type CheckResult struct {
	Valid       bool              `json:"valid"`
	Units       int               `json:"units"`
	Failed      int               `json:"failed"`
	Warnings    int               `json:"warnings"`
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <tree-path>...",
		Short: "Report diagnostics without writing output",
		Long: `Translate source trees and report every diagnostic without writing
target code or touching the store.

Faster feedback than transpile while editing trees. With --strict, warnings
such as unknown call results fail the check too.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat warnings as failures")

	return cmd
}

func runCheck(opts *CheckOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	set, err := loadSettings(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	loaded, err := loadAll(formatter, paths)
	if err != nil {
		return err
	}

	// No recorder: check never reads or writes the cache.
	tr := set.translator(newLogger(opts.RootOptions, formatter.GetErrWriter()), nil)
	run, err := tr.Batch(cmd.Context(), loaded.Trees)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("batch did not finish: %v", err), nil)
	}

	result := &CheckResult{
		Units:       len(run.Results),
		Failed:      run.Failed,
		Diagnostics: run.Diagnostics(),
	}
	for _, d := range result.Diagnostics {
		if d.Severity == diag.SeverityWarning {
			result.Warnings++
		}
	}
	result.Valid = result.Failed == 0 && (!opts.Strict || result.Warnings == 0)

	var failure *CLIError
	switch {
	case result.Failed > 0:
		failure = unitsFailure(result.Failed, result.Units)
	case !result.Valid:
		failure = &CLIError{
			Code:    ErrCodeUnitsFailed,
			Message: fmt.Sprintf("%d warning(s) under --strict", result.Warnings),
		}
	}

	return formatter.Report(run.ID, result, failure, func(w io.Writer) {
		if result.Valid {
			fmt.Fprintf(w, "✓ %d unit(s) checked", result.Units)
			if result.Warnings > 0 {
				fmt.Fprintf(w, ", %d warning(s)", result.Warnings)
			}
			fmt.Fprintln(w)
		} else {
			fmt.Fprintf(w, "✗ %d of %d unit(s) failed, %d warning(s)\n", result.Failed, result.Units, result.Warnings)
		}
		writeDiagnostics(w, result.Diagnostics)
	})
}
