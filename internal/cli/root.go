package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is a ferrule.cue file; empty means schema defaults.
	Config string
	// Catalog and Database override the config file when set.
	Catalog  string
	Database string
	// Workers overrides the config file when positive.
	Workers int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ferrule CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ferrule",
		Short: "ferrule - typed, ownership-correct translation of dynamic source trees",
		Long: `Translate dynamically typed source trees into statically typed,
ownership-correct target code.

Each source tree is lowered to a typed IR, its types and ownership modes
are inferred, the IR is optimized, and target text is emitted. A unit that
cannot be translated is reported with a located diagnostic; the others
continue.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to ferrule.cue")
	cmd.PersistentFlags().StringVar(&opts.Catalog, "catalog", "", "directory of catalog CUE files to add to the default catalog")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite translation store")
	cmd.PersistentFlags().IntVarP(&opts.Workers, "workers", "j", 0, "units translated in parallel")

	cmd.AddCommand(NewTranspileCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewSignaturesCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newLogger writes structured logs to w: Info by default, Debug with
// --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// settings is everything a translating command needs, resolved from the
// config file and flag overrides.
type settings struct {
	cfg config.Config
	cat *catalog.Catalog
}

func loadSettings(opts *RootOptions) (*settings, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Catalog != "" {
		cfg.Catalog = opts.Catalog
	}
	if opts.Database != "" {
		cfg.Store = opts.Database
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}
	return &settings{cfg: cfg, cat: cat}, nil
}

// openStore opens the configured store, or returns nil when none is set.
func (s *settings) openStore() (*store.Store, error) {
	if s.cfg.Store == "" {
		return nil, nil
	}
	st, err := store.Open(s.cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// translator builds a pipeline.Translator logging to log, recording into
// st when it is non-nil.
func (s *settings) translator(log *slog.Logger, st *store.Store) *pipeline.Translator {
	opts := []pipeline.Option{pipeline.WithLogger(log)}
	if st != nil {
		opts = append(opts, pipeline.WithRecorder(st))
	}
	return pipeline.New(s.cat, s.cfg, opts...)
}
