package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/srctree"
	"github.com/roach88/ferrule/internal/testutil"
)

const goodSrc = `
name: good
body:
  - def:
      name: double
      params: [{name: n, type: int}]
      returns: int
      body:
        - return: {value: {binop: {op: "*", left: {name: n}, right: {int: 2}}}}
`

const asyncSrc = `
name: bad
body:
  - def:
      name: fetch
      async: true
      body:
        - pass: true
`

// memRecorder keeps runs and units in memory.
type memRecorder struct {
	mu       sync.Mutex
	units    map[string]*Result
	saved    map[string][]string
	finished []string
	lookup   func(hash string)
}

func newMemRecorder() *memRecorder {
	return &memRecorder{units: make(map[string]*Result), saved: make(map[string][]string)}
}

func (r *memRecorder) Lookup(_ context.Context, hash string) (*Result, bool, error) {
	if r.lookup != nil {
		r.lookup(hash)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.units[hash]
	if !ok {
		return nil, false, nil
	}
	cp := *res
	return &cp, true, nil
}

func (r *memRecorder) BeginRun(_ context.Context, run *Run) error { return nil }

func (r *memRecorder) SaveUnit(_ context.Context, runID string, res *Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.OK() {
		r.units[res.Hash] = res
	}
	r.saved[runID] = append(r.saved[runID], res.Unit)
	return nil
}

func (r *memRecorder) FinishRun(_ context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, run.ID)
	return nil
}

func newTranslator(t *testing.T, opts ...Option) *Translator {
	t.Helper()
	opts = append([]Option{
		WithRunIDs(testutil.NewRunIDs("")),
		WithSequencer(testutil.NewDeterministicClock()),
	}, opts...)
	return New(testutil.Catalog(t), config.Default(), opts...)
}

func TestUnitReachesEmitted(t *testing.T) {
	tr := newTranslator(t)
	res := tr.Unit(context.Background(), testutil.Tree(t, goodSrc))

	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, StageEmitted, res.Stage)
	assert.Contains(t, res.Source, "pub fn double(n: i64) -> i64 {")
	assert.Len(t, res.Hash, 64)
	require.Len(t, res.Signatures, 1)
	assert.Equal(t, "double", res.Signatures[0].Function)
	assert.False(t, res.Cached)
}

func TestUnitFailureDropsOutput(t *testing.T) {
	tr := newTranslator(t)
	res := tr.Unit(context.Background(), testutil.Tree(t, asyncSrc))

	require.Error(t, res.Err)
	assert.True(t, diag.IsUnsupported(res.Err))
	assert.False(t, res.OK())
	assert.Equal(t, StageParsed, res.Stage)
	assert.Empty(t, res.Source)
	assert.Nil(t, res.Signatures)
	require.NotEmpty(t, res.Diagnostics)
	last := res.Diagnostics[len(res.Diagnostics)-1]
	assert.Equal(t, "bad", last.Unit)
	assert.Equal(t, diag.SeverityError, last.Severity)
}

func TestUnitRecoversPanic(t *testing.T) {
	rec := newMemRecorder()
	rec.lookup = func(string) { panic("boom") }
	tr := newTranslator(t, WithRecorder(rec))

	res := tr.Unit(context.Background(), testutil.Tree(t, goodSrc))
	require.Error(t, res.Err)
	assert.True(t, diag.IsInternal(res.Err))
	assert.Contains(t, res.Err.Error(), diag.CodeInternalPanic)
	assert.Contains(t, res.Err.Error(), "boom")
	assert.Empty(t, res.Source)
}

func TestBatchContinuesPastFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tr := newTranslator(t, WithLogger(logger))

	trees := []*srctree.Module{
		testutil.Tree(t, asyncSrc),
		testutil.Tree(t, goodSrc),
	}
	run, err := tr.Batch(context.Background(), trees)
	require.NoError(t, err)

	assert.Equal(t, "run-0001", run.ID)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "bad", run.Results[0].Unit, "results keep input order")
	assert.Equal(t, "good", run.Results[1].Unit)
	assert.Equal(t, 1, run.Failed)
	assert.True(t, run.Results[1].OK())
	assert.NotEqual(t, run.Results[0].Seq, run.Results[1].Seq)

	sigs := run.Signatures()
	require.Len(t, sigs, 1)
	assert.Equal(t, "good", sigs[0].Unit)
	assert.True(t, diag.HasErrors(run.Diagnostics()))

	assert.Contains(t, logs.String(), "unit failed")
	assert.Contains(t, logs.String(), "batch complete")
}

func TestBatchReusesCachedUnits(t *testing.T) {
	rec := newMemRecorder()
	tr := newTranslator(t, WithRecorder(rec))
	trees := []*srctree.Module{testutil.Tree(t, goodSrc)}

	first, err := tr.Batch(context.Background(), trees)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Cached)

	second, err := tr.Batch(context.Background(), trees)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Cached)
	assert.True(t, second.Results[0].Cached)
	assert.Equal(t, first.Results[0].Source, second.Results[0].Source)

	assert.Equal(t, []string{"run-0001", "run-0002"}, rec.finished)
	assert.Equal(t, []string{"good"}, rec.saved["run-0002"])
}

func TestPolicyChangesUnitHash(t *testing.T) {
	cat := testutil.Catalog(t)
	tree := testutil.Tree(t, goodSrc)

	cfg := config.Default()
	a := New(cat, cfg).Unit(context.Background(), tree)

	cfg.Policy.DynamicDisplay = config.DisplayWrapped
	b := New(cat, cfg).Unit(context.Background(), tree)

	require.NoError(t, a.Err)
	require.NoError(t, b.Err)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestBatchRejectsDuplicateNames(t *testing.T) {
	tr := newTranslator(t)
	_, err := tr.Batch(context.Background(), []*srctree.Module{
		testutil.Tree(t, goodSrc),
		testutil.Tree(t, goodSrc),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate unit name "good"`)
}

func TestBatchStopsOnCancel(t *testing.T) {
	tr := newTranslator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Batch(ctx, []*srctree.Module{testutil.Tree(t, goodSrc)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStageNames(t *testing.T) {
	for s := StageParsed; s <= StageEmitted; s++ {
		got, ok := ParseStage(s.String())
		require.True(t, ok, s.String())
		assert.Equal(t, s, got)
	}
	_, ok := ParseStage("compiled")
	assert.False(t, ok)
}

func TestFixedGeneratorExhausts(t *testing.T) {
	g := NewFixedGenerator("a")
	assert.Equal(t, "a", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestClockResumes(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(42), c.Current())
}

func seqs(run *Run) []int64 {
	out := make([]int64, len(run.Results))
	for i, r := range run.Results {
		out[i] = r.Seq
	}
	return out
}

func TestBatchRerunStampsSameSequence(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	cfg := config.Default()
	cfg.Workers = 1
	tr := New(testutil.Catalog(t), cfg,
		WithRunIDs(testutil.NewRunIDs("")),
		WithSequencer(clock),
	)
	trees := []*srctree.Module{
		testutil.Tree(t, asyncSrc),
		testutil.Tree(t, goodSrc),
	}

	first, err := tr.Batch(context.Background(), trees)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seqs(first))
	assert.Equal(t, int64(2), clock.Current())

	clock.Reset()
	second, err := tr.Batch(context.Background(), trees)
	require.NoError(t, err)
	assert.Equal(t, seqs(first), seqs(second))

	third, err := tr.Batch(context.Background(), trees)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, seqs(third), "without a reset the clock keeps counting")
}

func TestConcurrentBatchStampsEachUnitOnce(t *testing.T) {
	const units = 16
	clock := testutil.NewDeterministicClock()
	cfg := config.Default()
	cfg.Workers = 4
	tr := New(testutil.Catalog(t), cfg,
		WithRunIDs(testutil.NewRunIDs("")),
		WithSequencer(clock),
	)
	trees := make([]*srctree.Module, units)
	for i := range trees {
		trees[i] = testutil.Tree(t, strings.Replace(goodSrc, "name: good", fmt.Sprintf("name: unit%02d", i), 1))
	}

	run, err := tr.Batch(context.Background(), trees)
	require.NoError(t, err)
	seen := make(map[int64]bool)
	for _, s := range seqs(run) {
		require.False(t, seen[s], "sequence %d stamped twice", s)
		seen[s] = true
	}
	for s := int64(1); s <= units; s++ {
		assert.True(t, seen[s], "missing sequence %d", s)
	}
	assert.Equal(t, int64(units), clock.Current())
}
