package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/srctree"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	OutDir   string
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <tree-dir>...",
		Short: "Re-translate source trees as they change",
		Long: `Translate every source tree under the given directories, then watch
them and re-translate each tree file that is written or created.

Output goes to --out as <unit>.rs. A unit that stops translating has its
stale output removed. Runs until interrupted.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "output directory for emitted sources (required)")
	_ = cmd.MarkFlagRequired("out")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "quiet period before re-translating a changed file")

	return cmd
}

func runWatch(opts *WatchOptions, dirs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	set, err := loadSettings(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	st, err := set.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if st != nil {
		defer st.Close()
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	log := newLogger(opts.RootOptions, formatter.GetErrWriter())
	w := &watcher{
		tr:       set.translator(log, st),
		log:      log,
		outDir:   opts.OutDir,
		debounce: opts.Debounce,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.initial(ctx, dirs); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScanError, err.Error(), nil)
	}
	if err := w.watch(ctx, dirs); err != nil && !errors.Is(err, context.Canceled) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	return nil
}

// watcher re-translates tree files one at a time as they change.
type watcher struct {
	tr       *pipeline.Translator
	log      *slog.Logger
	outDir   string
	debounce time.Duration
}

// initial translates every tree already present.
func (w *watcher) initial(ctx context.Context, dirs []string) error {
	var files []string
	for _, dir := range dirs {
		found, err := FindTreeFiles(dir)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", dir, err)
		}
		files = append(files, found...)
	}
	sort.Strings(files)
	for _, f := range files {
		if err := w.handle(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// handle translates one tree file and updates its output. A file that no
// longer decodes or translates loses its output; only cancellation and
// store failures are returned.
func (w *watcher) handle(ctx context.Context, path string) error {
	tree, err := srctree.LoadFile(path)
	if err != nil {
		w.log.Warn("tree not decoded", "path", path, "error", err)
		return nil
	}
	run, err := w.tr.Batch(ctx, []*srctree.Module{tree})
	if err != nil {
		return err
	}
	res := run.Results[0]
	out := filepath.Join(w.outDir, res.Unit+".rs")
	if !res.OK() {
		for _, d := range res.Diagnostics {
			w.log.Warn("diagnostic", "unit", res.Unit, "diagnostic", d.String())
		}
		if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.log.Warn("stale output not removed", "path", out, "error", err)
		}
		return nil
	}
	if err := os.WriteFile(out, []byte(res.Source), 0o644); err != nil {
		w.log.Error("output not written", "path", out, "error", err)
		return nil
	}
	w.log.Info("translated", "unit", res.Unit, "output", out, "cached", res.Cached)
	return nil
}

// watch blocks until ctx ends, translating tree files after they have been
// quiet for the debounce period.
func (w *watcher) watch(ctx context.Context, dirs []string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer fw.Close()
	for _, dir := range dirs {
		if err := addTree(fw, dir); err != nil {
			return err
		}
	}
	w.log.Info("watching", "dirs", dirs)

	pending := make(map[string]time.Time)
	interval := w.debounce / 2
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(fw, ev.Name); err != nil {
						w.log.Warn("new directory not watched", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && IsTreeFile(ev.Name) {
				pending[ev.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case now := <-tick.C:
			for _, path := range due(pending, now, w.debounce) {
				delete(pending, path)
				if err := w.handle(ctx, path); err != nil {
					return err
				}
			}
		}
	}
}

// due returns the pending paths last touched at least quiet ago, sorted.
func due(pending map[string]time.Time, now time.Time, quiet time.Duration) []string {
	var out []string
	for path, at := range pending {
		if now.Sub(at) >= quiet {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// addTree watches dir and every directory beneath it.
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}
