package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/signature"
)

// TranspileOptions holds flags for the transpile command.
type TranspileOptions struct {
	*RootOptions
	OutDir     string // directory receiving <unit>.rs files
	Stdout     bool   // print emitted sources instead of writing files
	Signatures string // file receiving published signatures
}

// UnitSummary is the outcome of one unit, as reported by the CLI.
type UnitSummary struct {
	Unit   string      `json:"unit"`
	Path   string      `json:"path"`
	Hash   string      `json:"hash,omitempty"`
	Stage  string      `json:"stage"`
	Cached bool        `json:"cached,omitempty"`
	Crates []CrateView `json:"crates,omitempty"`
	Output string      `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// CrateView is a pinned crate as printed by the CLI.
type CrateView struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// TranspileResult is the outcome of one transpile run.
type TranspileResult struct {
	RunID       string            `json:"run_id"`
	Units       []UnitSummary     `json:"units"`
	Failed      int               `json:"failed"`
	Cached      int               `json:"cached"`
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
}

// NewTranspileCommand creates the transpile command.
func NewTranspileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranspileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transpile <tree-path>...",
		Short: "Translate source trees to target code",
		Long: `Translate every source tree found under the given paths.

Each unit is lowered, typed, annotated with ownership modes, optimized and
emitted. Units that fail are reported with located diagnostics and produce
no output; the rest are written to --out as <unit>.rs.

Exit codes:
  0 - every unit was emitted
  1 - one or more units failed
  2 - command error (no trees found, bad config, store failure)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranspile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "output directory for emitted sources")
	cmd.Flags().BoolVar(&opts.Stdout, "stdout", false, "print emitted sources to stdout")
	cmd.Flags().StringVar(&opts.Signatures, "signatures", "", "write published signatures as JSON to this file")

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// loadFailure reports the first load error as a command error.
func loadFailure(formatter *OutputFormatter, errs []error) error {
	var loadErr *LoadError
	if errors.As(errs[0], &loadErr) {
		return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, loadErr.Path)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, errs[0].Error(), nil)
}

// loadAll loads trees, failing on any undecodable file.
func loadAll(formatter *OutputFormatter, paths []string) (*LoadResult, error) {
	res, errs := LoadTrees(paths, LoadModeCollectAll)
	if len(errs) > 0 {
		if res != nil && len(errs) > 1 {
			for _, err := range errs[1:] {
				formatter.VerboseLog("%v", err)
			}
		}
		return nil, loadFailure(formatter, errs)
	}
	formatter.VerboseLog("Found %d source tree file(s)", res.FileCount)
	return res, nil
}

func runTranspile(opts *TranspileOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	set, err := loadSettings(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	loaded, err := loadAll(formatter, paths)
	if err != nil {
		return err
	}
	st, err := set.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if st != nil {
		defer st.Close()
	}

	tr := set.translator(newLogger(opts.RootOptions, formatter.GetErrWriter()), st)
	run, err := tr.Batch(cmd.Context(), loaded.Trees)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("batch did not finish: %v", err), nil)
	}

	result := summarize(run)
	if opts.OutDir != "" {
		if err := writeSources(opts.OutDir, run, result.Units); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
	}
	if opts.Signatures != "" {
		if err := writeSignatures(opts.Signatures, run.Signatures()); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
	}

	return formatter.Report(run.ID, result, unitsFailure(result.Failed, len(result.Units)), func(w io.Writer) {
		if opts.Stdout {
			for _, r := range run.Results {
				if r.OK() {
					fmt.Fprint(w, r.Source)
				}
			}
			return
		}
		writeRunText(w, result)
		if opts.Signatures != "" {
			fmt.Fprintf(w, "Wrote signatures to %s\n", opts.Signatures)
		}
	})
}

// summarize converts a pipeline run into its CLI form.
func summarize(run *pipeline.Run) *TranspileResult {
	result := &TranspileResult{
		RunID:       run.ID,
		Units:       make([]UnitSummary, 0, len(run.Results)),
		Failed:      run.Failed,
		Cached:      run.Cached,
		Diagnostics: run.Diagnostics(),
	}
	for _, r := range run.Results {
		u := UnitSummary{
			Unit:   r.Unit,
			Path:   r.Path,
			Hash:   r.Hash,
			Stage:  r.Stage.String(),
			Cached: r.Cached,
		}
		for _, c := range r.Crates {
			u.Crates = append(u.Crates, CrateView{Name: c.Name, Version: c.Version.String()})
		}
		if r.Err != nil {
			u.Error = r.Err.Error()
		}
		result.Units = append(result.Units, u)
	}
	return result
}

func unitsFailure(failed, total int) *CLIError {
	if failed == 0 {
		return nil
	}
	return &CLIError{
		Code:    ErrCodeUnitsFailed,
		Message: fmt.Sprintf("%d of %d unit(s) failed", failed, total),
	}
}

// writeSources writes each emitted unit to dir/<unit>.rs and records the
// file name in its summary.
func writeSources(dir string, run *pipeline.Run, units []UnitSummary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for i, r := range run.Results {
		if !r.OK() {
			continue
		}
		path := filepath.Join(dir, r.Unit+".rs")
		if err := os.WriteFile(path, []byte(r.Source), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		units[i].Output = path
	}
	return nil
}

func writeSignatures(path string, sigs []signature.Signature) error {
	data, err := signature.Marshal(sigs)
	if err != nil {
		return fmt.Errorf("encoding signatures: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing signatures: %w", err)
	}
	return nil
}

func writeRunText(w io.Writer, result *TranspileResult) {
	emitted := len(result.Units) - result.Failed
	fmt.Fprintf(w, "Translated %d of %d unit(s)", emitted, len(result.Units))
	if result.Cached > 0 {
		fmt.Fprintf(w, " (%d cached)", result.Cached)
	}
	fmt.Fprintln(w)
	for _, u := range result.Units {
		mark := "✓"
		if u.Error != "" {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s (%s)", mark, u.Unit, u.Stage)
		if u.Output != "" {
			fmt.Fprintf(w, " → %s", u.Output)
		}
		fmt.Fprintln(w)
	}
	if len(result.Diagnostics) > 0 {
		fmt.Fprintln(w, "\nDiagnostics:")
		writeDiagnostics(w, result.Diagnostics)
	}
}
