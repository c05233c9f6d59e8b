package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ferrule/internal/catalog"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	Library string // only list this library
}

// CatalogResult describes the catalog in effect.
type CatalogResult struct {
	Fingerprint string           `json:"fingerprint"`
	Entries     []*catalog.Entry `json:"entries"`
	Constants   []*catalog.Const `json:"constants"`
	Crates      []CrateView      `json:"crates"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the library symbols translation can call",
		Long: `List every catalog entry in effect: the built-in catalog plus any
files added with --catalog.

The fingerprint identifies the catalog; changing it invalidates every cached
translation.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Library, "library", "", "only list entries of this library")

	return cmd
}

func runCatalog(opts *CatalogOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	set, err := loadSettings(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if opts.Library != "" && !set.cat.KnowsLibrary(opts.Library) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("library %q is not in the catalog", opts.Library), nil)
	}

	result := &CatalogResult{
		Fingerprint: set.cat.Fingerprint(),
		Entries:     []*catalog.Entry{},
		Constants:   []*catalog.Const{},
		Crates:      []CrateView{},
	}
	for _, e := range set.cat.Entries() {
		if opts.Library == "" || e.Library == opts.Library {
			result.Entries = append(result.Entries, e)
		}
	}
	for _, c := range set.cat.Consts() {
		if opts.Library == "" || c.Library == opts.Library {
			result.Constants = append(result.Constants, c)
		}
	}
	crates, err := set.cat.RequiredCrates(result.Entries)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	for _, c := range crates {
		result.Crates = append(result.Crates, CrateView{Name: c.Name, Version: c.Version.String()})
	}

	return formatter.Report("", result, nil, func(w io.Writer) {
		fmt.Fprintf(w, "Catalog %s: %d entr(ies), %d constant(s)\n\n", shortHash(result.Fingerprint), len(result.Entries), len(result.Constants))
		for _, e := range result.Entries {
			fmt.Fprintf(w, "  %s.%s -> %s  %s\n", e.Library, e.Symbol, e.Returns, entryTarget(e))
		}
		for _, c := range result.Constants {
			fmt.Fprintf(w, "  %s.%s: %s  %s\n", c.Library, c.Symbol, c.Type, c.Path)
		}
		if len(result.Crates) > 0 {
			fmt.Fprintln(w, "\nCrates:")
			for _, c := range result.Crates {
				fmt.Fprintf(w, "  %s %s\n", c.Name, c.Version)
			}
		}
	})
}

// entryTarget describes what an entry is translated to.
func entryTarget(e *catalog.Entry) string {
	var parts []string
	if e.Method != "" {
		parts = append(parts, "."+e.Method+"()")
	} else {
		parts = append(parts, e.Path)
	}
	parts = append(parts, "("+e.Shape.String()+")")
	if e.Raises != "" {
		parts = append(parts, "raises "+e.Raises)
	}
	if e.Crate != "" {
		parts = append(parts, "crate "+e.Crate)
	}
	return strings.Join(parts, " ")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
