package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ferrule/internal/signature"
	"github.com/roach88/ferrule/internal/store"
)

// SignaturesOptions holds flags for the signatures command.
type SignaturesOptions struct {
	*RootOptions
	RunID string // read from a stored run instead of translating
}

// NewSignaturesCommand creates the signatures command.
func NewSignaturesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignaturesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signatures [tree-path]...",
		Short: "Print the published calling convention of translated functions",
		Long: `Print how every parameter of every translated function is received
(owned, owned_mut, borrowed, borrowed_mut) and the shape of its result.

With tree paths, the trees are translated first. With --run, signatures are
read from a run recorded in the store (--db). Failed units publish none.

Examples:
  ferrule signatures ./trees
  ferrule signatures --db ferrule.db --run latest --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignatures(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", `stored run ID, or "latest"`)

	return cmd
}

func runSignatures(opts *SignaturesOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if (opts.RunID == "") == (len(paths) == 0) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "give tree paths or --run, not both", nil)
	}

	set, err := loadSettings(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	var (
		runID string
		sigs  []signature.Signature
	)
	if opts.RunID != "" {
		st, err := set.openStore()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		if st == nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "--run needs a store (--db)", nil)
		}
		defer st.Close()
		run, err := resolveRun(cmd, st, opts.RunID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		runID = run.ID
		if sigs, err = st.Signatures(cmd.Context(), run.ID); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
	} else {
		loaded, err := loadAll(formatter, paths)
		if err != nil {
			return err
		}
		tr := set.translator(newLogger(opts.RootOptions, formatter.GetErrWriter()), nil)
		run, err := tr.Batch(cmd.Context(), loaded.Trees)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("batch did not finish: %v", err), nil)
		}
		runID = run.ID
		sigs = run.Signatures()
		for _, d := range run.Diagnostics() {
			formatter.VerboseLog("%s", d)
		}
	}
	if sigs == nil {
		sigs = []signature.Signature{}
	}

	return formatter.Report(runID, sigs, nil, func(w io.Writer) {
		if len(sigs) == 0 {
			fmt.Fprintln(w, "No signatures published")
			return
		}
		for _, s := range sigs {
			fmt.Fprintln(w, formatSignature(s))
		}
	})
}

// formatSignature renders s on one line:
//
//	unit.func(name: type [mode], ...) -> ret [shape]
func formatSignature(s signature.Signature) string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		name := p.Name
		if p.Vararg {
			name = "*" + name
		}
		params[i] = fmt.Sprintf("%s: %s [%s]", name, p.Type, p.Mode)
	}
	var flags []string
	if s.CanFail {
		flags = append(flags, "can fail")
	}
	if s.Generator {
		flags = append(flags, "generator")
	}
	line := fmt.Sprintf("%s.%s(%s) -> %s [%s]", s.Unit, s.Function, strings.Join(params, ", "), s.Returns, s.Shape)
	if len(flags) > 0 {
		line += " (" + strings.Join(flags, ", ") + ")"
	}
	return line
}

// resolveRun finds a stored run by ID; "latest" names the newest.
func resolveRun(cmd *cobra.Command, st *store.Store, id string) (store.RunRecord, error) {
	if id == "latest" {
		run, err := st.LatestRun(cmd.Context())
		if errors.Is(err, store.ErrRunNotFound) {
			return run, errors.New("the store holds no runs")
		}
		return run, err
	}
	return st.ReadRun(cmd.Context(), id)
}
