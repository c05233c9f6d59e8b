package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/srctree"
	"github.com/roach88/ferrule/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	RunID string
}

// Replay outcomes for one unit.
const (
	ReplayDeterministic = "deterministic" // same hash, byte-identical output
	ReplayDifferent     = "different"     // same hash, different output
	ReplayChanged       = "changed"       // the tree or its inputs changed since the run
	ReplayMissing       = "missing"       // the tree file is gone
	ReplayFailed        = "failed"        // the unit did not translate
)

// ReplayUnit is the replay outcome of one stored unit.
type ReplayUnit struct {
	Unit    string `json:"unit"`
	Path    string `json:"path"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// ReplayResult holds the outcome of replaying one run.
type ReplayResult struct {
	RunID            string       `json:"run_id"`
	Units            []ReplayUnit `json:"units"`
	AllDeterministic bool         `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-translate a recorded run and verify determinism",
		Long: `Re-translate every emitted unit of a recorded run from its tree file,
bypassing the cache, and compare the result with the stored output.

A unit whose tree, catalog and configuration are unchanged must produce
byte-identical text. Units whose inputs changed since the run are reported
but are not failures.

Exit codes:
  0 - every unchanged unit reproduced its output
  1 - at least one unit produced different output
  2 - command error (database not found, run not found, etc.)

Examples:
  ferrule replay --db ferrule.db
  ferrule replay --db ferrule.db --run 0192f6c0-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "latest", `run ID to replay, or "latest"`)

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
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
		return formatter.Fail(ExitCommandError, ErrCodeStore, "replay needs a store (--db)", nil)
	}
	defer st.Close()

	run, err := resolveRun(cmd, st, opts.RunID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	units, err := st.RunUnits(cmd.Context(), run.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	// No recorder: the replay must translate, not read the cache.
	tr := set.translator(newLogger(opts.RootOptions, formatter.GetErrWriter()), nil)
	result := &ReplayResult{RunID: run.ID, Units: []ReplayUnit{}, AllDeterministic: true}
	for _, u := range units {
		if u.Stage != pipeline.StageEmitted.String() {
			continue
		}
		ru, err := replayUnit(cmd, st, tr, u)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		if ru.Outcome == ReplayDifferent || ru.Outcome == ReplayFailed {
			result.AllDeterministic = false
		}
		result.Units = append(result.Units, ru)
	}

	var failure *CLIError
	if !result.AllDeterministic {
		failure = &CLIError{Code: ErrCodeNondeterm, Message: "replay produced different output"}
	}
	return formatter.Report(run.ID, result, failure, func(w io.Writer) {
		fmt.Fprintf(w, "Replay of run %s\n", run.ID)
		for _, u := range result.Units {
			fmt.Fprintf(w, "  %-13s %s", u.Outcome, u.Unit)
			if u.Detail != "" {
				fmt.Fprintf(w, ": %s", u.Detail)
			}
			fmt.Fprintln(w)
		}
		if result.AllDeterministic {
			fmt.Fprintln(w, "✓ All reproduced units are deterministic")
		} else {
			fmt.Fprintln(w, "✗ Determinism check failed")
		}
	})
}

// replayUnit re-translates one stored unit. The returned error is a store
// failure; translation problems become outcomes.
func replayUnit(cmd *cobra.Command, st *store.Store, tr *pipeline.Translator, u store.UnitRecord) (ReplayUnit, error) {
	ru := ReplayUnit{Unit: u.Unit, Path: u.Path}
	tree, err := srctree.LoadFile(u.Path)
	if err != nil {
		ru.Outcome, ru.Detail = ReplayMissing, err.Error()
		return ru, nil
	}
	res := tr.Unit(cmd.Context(), tree)
	if res.Hash != u.Hash {
		ru.Outcome = ReplayChanged
		return ru, nil
	}
	if !res.OK() {
		ru.Outcome, ru.Detail = ReplayFailed, res.Err.Error()
		return ru, nil
	}
	stored, ok, err := st.Lookup(cmd.Context(), u.Hash)
	if err != nil {
		return ru, err
	}
	if !ok {
		ru.Outcome, ru.Detail = ReplayMissing, "stored translation not found"
		return ru, nil
	}
	if stored.Source != res.Source {
		ru.Outcome, ru.Detail = ReplayDifferent, firstDifference(stored.Source, res.Source)
		return ru, nil
	}
	ru.Outcome = ReplayDeterministic
	return ru, nil
}

// firstDifference describes the first line where a and b differ.
func firstDifference(a, b string) string {
	line := 1
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return fmt.Sprintf("first difference at line %d", line)
		}
		if a[i] == '\n' {
			line++
		}
	}
	return fmt.Sprintf("outputs differ in length (%d vs %d bytes)", len(a), len(b))
}
