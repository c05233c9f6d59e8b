// Package pipeline drives source trees through translation.
//
// Each unit moves through a fixed sequence of states:
//
//	parsed → lowered → typed → annotated → optimized → emitted
//
// Every pass is total or aborts the unit with a located diagnostic. A unit
// that aborts produces no target text and no signatures; partial output
// never leaves the pipeline. A panic inside a pass is recovered and
// reported as an internal invariant violation for that unit alone.
//
// Units share nothing but the read-only catalog, so a batch translates them
// in parallel. One unit failing never stops the others; only cancellation
// or a store failure ends a batch early.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/codegen"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/infer"
	"github.com/roach88/ferrule/internal/lower"
	"github.com/roach88/ferrule/internal/optimize"
	"github.com/roach88/ferrule/internal/signature"
	"github.com/roach88/ferrule/internal/srctree"
)

// Result is the outcome of translating one unit.
type Result struct {
	Unit string
	Path string
	// Hash is the content-addressed identity of the unit under the catalog
	// and policy in effect.
	Hash string
	// Seq orders results by completion within a batch.
	Seq   int64
	Stage Stage

	Source      string
	Crates      []catalog.Crate
	Signatures  []signature.Signature
	Diagnostics []diag.Diagnostic
	Stats       optimize.Stats

	// Cached is set when the result was reused from an earlier run.
	Cached bool
	Err    error
}

// OK reports whether the unit was emitted.
func (r *Result) OK() bool { return r.Err == nil && r.Stage == StageEmitted }

// fail aborts the unit: the error becomes a diagnostic and anything
// already produced is dropped.
func (r *Result) fail(err error) *Result {
	r.Err = diag.WithUnit(err, r.Unit)
	r.Diagnostics = diag.Sorted(append(r.Diagnostics, diag.AsDiagnostic(r.Err, r.Unit)))
	r.Source = ""
	r.Crates = nil
	r.Signatures = nil
	return r
}

// Run summarizes one batch.
type Run struct {
	ID string
	// ConfigFingerprint and CatalogFingerprint identify the inputs every
	// unit of the run was translated under.
	ConfigFingerprint  string
	CatalogFingerprint string
	Results            []*Result
	Failed             int
	Cached             int
}

// Recorder persists runs and caches emitted units by hash. The sqlite
// store implements it.
type Recorder interface {
	Lookup(ctx context.Context, hash string) (*Result, bool, error)
	BeginRun(ctx context.Context, run *Run) error
	SaveUnit(ctx context.Context, runID string, r *Result) error
	FinishRun(ctx context.Context, run *Run) error
}

// Translator runs units under one catalog and configuration.
type Translator struct {
	cat *catalog.Catalog
	cfg config.Config
	log *slog.Logger
	rec Recorder
	ids RunIDGenerator
	seq Sequencer
}

// Option configures a Translator.
type Option func(*Translator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) { t.log = l }
}

// WithRecorder enables the translation cache and run history.
func WithRecorder(r Recorder) Option {
	return func(t *Translator) { t.rec = r }
}

// WithRunIDs replaces the UUIDv7 run ID generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(t *Translator) { t.ids = g }
}

// WithSequencer replaces the completion clock.
func WithSequencer(s Sequencer) Option {
	return func(t *Translator) { t.seq = s }
}

// New creates a Translator. cfg must already be validated.
func New(cat *catalog.Catalog, cfg config.Config, opts ...Option) *Translator {
	t := &Translator{
		cat: cat,
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids: UUIDv7Generator{},
		seq: NewClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Unit translates one source tree. It never returns a nil Result; failure
// is reported through Result.Err and Result.Diagnostics.
func (t *Translator) Unit(ctx context.Context, tree *srctree.Module) (res *Result) {
	res = &Result{Unit: tree.Name, Path: tree.Path, Stage: StageParsed}
	log := t.log.With("unit", tree.Name)
	defer func() {
		if r := recover(); r != nil {
			log.Error("pass panicked", "pass", res.Stage.pass(), "panic", r)
			res.fail(diag.Internal(diag.CodeInternalPanic, diag.Pos{}, res.Stage.pass(), "panic: %v", r))
		}
	}()

	hash, err := srctree.UnitHash(tree, t.cat.Fingerprint(), t.cfg.Fingerprint())
	if err != nil {
		return res.fail(diag.Internal(diag.CodeInternalInvariant, diag.Pos{}, "hash", "%v", err))
	}
	res.Hash = hash
	if t.rec != nil {
		cached, ok, err := t.rec.Lookup(ctx, hash)
		if err != nil {
			log.Warn("cache lookup failed", "error", err)
		} else if ok {
			log.Debug("cache hit", "hash", hash)
			cached.Unit, cached.Path, cached.Hash, cached.Cached = tree.Name, tree.Path, hash, true
			return cached
		}
	}

	pol := t.cfg.Policy
	m, warns, err := lower.Lower(tree, t.cat, pol)
	res.Diagnostics = append(res.Diagnostics, warns...)
	if err != nil {
		return t.abort(log, res, err)
	}
	res.Stage = StageLowered
	log.Debug("stage complete", "stage", res.Stage, "functions", len(m.Functions))

	warns, err = infer.Types(m, t.cat, pol)
	res.Diagnostics = append(res.Diagnostics, warns...)
	if err != nil {
		return t.abort(log, res, err)
	}
	res.Stage = StageTyped
	log.Debug("stage complete", "stage", res.Stage)

	if err := infer.Ownership(m, t.cat, pol); err != nil {
		return t.abort(log, res, err)
	}
	res.Stage = StageAnnotated
	log.Debug("stage complete", "stage", res.Stage)

	res.Stats = optimize.Run(m, t.cat, optimize.Options{CSE: t.cfg.Optimize.CSE})
	res.Stage = StageOptimized
	log.Debug("stage complete", "stage", res.Stage,
		"removed", res.Stats.Removed, "hoisted", res.Stats.Hoisted)

	// Signatures are read before emission, which rewrites conditions but
	// never parameters.
	sigs, err := signature.Of(m)
	if err != nil {
		return t.abort(log, res, diag.Internal(diag.CodeInternalInvariant, diag.Pos{}, "signature", "%v", err))
	}
	out, err := codegen.Generate(m, t.cat, pol)
	if err != nil {
		return t.abort(log, res, err)
	}
	res.Source = out.Source
	res.Crates = out.Crates
	res.Signatures = sigs
	res.Diagnostics = diag.Sorted(res.Diagnostics)
	res.Stage = StageEmitted
	log.Debug("stage complete", "stage", res.Stage, "bytes", len(res.Source))
	return res
}

func (t *Translator) abort(log *slog.Logger, res *Result, err error) *Result {
	res.fail(err)
	log.Warn("unit failed", "pass", res.Stage.pass(), "error", res.Err)
	return res
}

// Batch translates trees with at most cfg.Workers units in flight. Results
// keep the order of trees. The returned error is non-nil only when the
// batch itself could not finish: the context was cancelled or the recorder
// failed.
func (t *Translator) Batch(ctx context.Context, trees []*srctree.Module) (*Run, error) {
	run := &Run{
		ID:                 t.ids.Generate(),
		ConfigFingerprint:  t.cfg.Fingerprint(),
		CatalogFingerprint: t.cat.Fingerprint(),
		Results:            make([]*Result, len(trees)),
	}
	log := t.log.With("run", run.ID)
	if err := checkUnique(trees); err != nil {
		return nil, err
	}
	if t.rec != nil {
		if err := t.rec.BeginRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run start: %w", err)
		}
	}

	workers := t.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tree := range trees {
		i, tree := i, tree
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := t.Unit(gctx, tree)
			r.Seq = t.seq.Next()
			run.Results[i] = r
			if t.rec != nil {
				if err := t.rec.SaveUnit(gctx, run.ID, r); err != nil {
					return fmt.Errorf("failed to record unit %s: %w", tree.Name, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("batch stopped", "error", err)
		return run, err
	}

	for _, r := range run.Results {
		if !r.OK() {
			run.Failed++
		}
		if r.Cached {
			run.Cached++
		}
	}
	if t.rec != nil {
		if err := t.rec.FinishRun(ctx, run); err != nil {
			return run, fmt.Errorf("failed to record run end: %w", err)
		}
	}
	log.Info("batch complete", "units", len(trees), "failed", run.Failed, "cached", run.Cached)
	return run, nil
}

// checkUnique rejects a batch naming two units the same; their outputs
// would overwrite each other.
func checkUnique(trees []*srctree.Module) error {
	seen := make(map[string]string, len(trees))
	for _, tree := range trees {
		if prev, ok := seen[tree.Name]; ok {
			return fmt.Errorf("duplicate unit name %q (%s and %s)", tree.Name, prev, tree.Path)
		}
		seen[tree.Name] = tree.Path
	}
	return nil
}

// Diagnostics collects every diagnostic of a run, ordered by unit and
// position.
func (r *Run) Diagnostics() []diag.Diagnostic {
	var all []diag.Diagnostic
	for _, res := range r.Results {
		if res != nil {
			all = append(all, res.Diagnostics...)
		}
	}
	return diag.Sorted(all)
}

// Signatures collects the published signatures of every emitted unit,
// ordered by unit.
func (r *Run) Signatures() []signature.Signature {
	var all []signature.Signature
	for _, res := range r.Results {
		if res != nil && res.OK() {
			all = append(all, res.Signatures...)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Unit < all[j].Unit })
	return all
}
