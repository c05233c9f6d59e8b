package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	RunID string // show one run in detail
	Limit int
	Code  string // only show diagnostics with this code
}

// RunDetail is one stored run with its units and diagnostics.
type RunDetail struct {
	Run         store.RunRecord    `json:"run"`
	Units       []store.UnitRecord `json:"units"`
	Diagnostics []diag.Diagnostic  `json:"diagnostics"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded translation runs",
		Long: `List the runs recorded in the translation store, newest first, or show
one run's units in completion order with their diagnostics.

Examples:
  ferrule history --db ferrule.db
  ferrule history --db ferrule.db --run latest
  ferrule history --db ferrule.db --run latest --code E301 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", `run ID to show, or "latest"`)
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list")
	cmd.Flags().StringVar(&opts.Code, "code", "", "only show diagnostics with this code")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	set, err := loadSettings(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	st, err := set.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if st == nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "history needs a store (--db)", nil)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(cmd.Context(), opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		return formatter.Report("", runs, nil, func(w io.Writer) {
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded")
				return
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  %-8s  %d unit(s), %d failed, %d cached\n", r.ID, r.Status, r.Units, r.Failed, r.Cached)
			}
		})
	}

	run, err := resolveRun(cmd, st, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	detail := &RunDetail{Run: run}
	if detail.Units, err = st.RunUnits(cmd.Context(), run.ID); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	ds, err := st.Diagnostics(cmd.Context(), run.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	detail.Diagnostics = filterCode(ds, opts.Code)

	return formatter.Report(run.ID, detail, nil, func(w io.Writer) {
		fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Status)
		fmt.Fprintf(w, "  config  %s\n  catalog %s\n\n", shortHash(run.ConfigFingerprint), shortHash(run.CatalogFingerprint))
		for _, u := range detail.Units {
			status := u.Stage
			if u.Cached {
				status += ", cached"
			}
			fmt.Fprintf(w, "  %4d  %s (%s)\n", u.Seq, u.Unit, status)
			if u.Error != "" {
				fmt.Fprintf(w, "        %s\n", u.Error)
			}
		}
		if len(detail.Diagnostics) > 0 {
			fmt.Fprintln(w, "\nDiagnostics:")
			writeDiagnostics(w, detail.Diagnostics)
		}
	})
}

func filterCode(ds []diag.Diagnostic, code string) []diag.Diagnostic {
	if code == "" {
		return ds
	}
	out := []diag.Diagnostic{}
	for _, d := range ds {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}
