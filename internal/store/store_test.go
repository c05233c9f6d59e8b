package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/signature"
)

func TestOpenAppliesPragmas(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
	require.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.verifyPragma("user_version", "1"))
}

func TestOpenMigratesFirstReleaseDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v0.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.DB().Exec(`DROP INDEX idx_diagnostics_code`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`PRAGMA user_version = 0`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.verifyPragma("user_version", "1"))

	var n int
	require.NoError(t, s.DB().QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_diagnostics_code'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestCloseNilDB(t *testing.T) {
	var s Store
	assert.NoError(t, s.Close())
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	run := createTestRun("run-0001")

	require.NoError(t, s.BeginRun(ctx, run))
	require.NoError(t, s.BeginRun(ctx, run), "beginning twice is a no-op")

	rec, err := s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, "cfg-fp", rec.ConfigFingerprint)

	good := createEmitted("alpha", "h-alpha", 2)
	bad := createFailed("beta", "h-beta", 1)
	require.NoError(t, s.SaveUnit(ctx, run.ID, good))
	require.NoError(t, s.SaveUnit(ctx, run.ID, bad))

	run.Results = []*pipeline.Result{good, bad}
	run.Failed = 1
	require.NoError(t, s.FinishRun(ctx, run))

	rec, err = s.ReadRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, rec.Status)
	assert.Equal(t, 2, rec.Units)
	assert.Equal(t, 1, rec.Failed)

	units, err := s.RunUnits(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "beta", units[0].Unit, "completion order, not insertion order")
	assert.Equal(t, "parsed", units[0].Stage)
	assert.Contains(t, units[0].Error, "E201")
	assert.Equal(t, "alpha", units[1].Unit)
	assert.Equal(t, "emitted", units[1].Stage)
	assert.False(t, units[1].Cached)
}

func TestFinishUnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.FinishRun(context.Background(), createTestRun("missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never begun")
}

func TestReadRunNotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveUnitRequiresRun(t *testing.T) {
	s := createTestStore(t)
	err := s.SaveUnit(context.Background(), "ghost", createEmitted("alpha", "h", 1))
	require.Error(t, err, "foreign keys are enforced")

	_, ok, err := s.Lookup(context.Background(), "h")
	require.NoError(t, err)
	assert.False(t, ok, "the failed transaction stored nothing")
}

func TestLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	run := createTestRun("run-0001")
	require.NoError(t, s.BeginRun(ctx, run))

	want := createEmitted("alpha", "h-alpha", 1)
	require.NoError(t, s.SaveUnit(ctx, run.ID, want))

	got, ok, err := s.Lookup(ctx, "h-alpha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pipeline.StageEmitted, got.Stage)
	assert.Equal(t, want.Source, got.Source)
	assert.Equal(t, want.Signatures, got.Signatures)
	assert.Equal(t, want.Stats, got.Stats)
	require.Len(t, got.Crates, 1)
	assert.Equal(t, "regex", got.Crates[0].Name)
	assert.Equal(t, "1.10.0", got.Crates[0].Version.String())
	require.Len(t, got.Diagnostics, 1, "warnings travel with the translation")
	assert.Equal(t, diag.SeverityWarning, got.Diagnostics[0].Severity)
}

func TestFailedUnitsAreNotCached(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	run := createTestRun("run-0001")
	require.NoError(t, s.BeginRun(ctx, run))
	require.NoError(t, s.SaveUnit(ctx, run.ID, createFailed("beta", "h-beta", 1)))

	_, ok, err := s.Lookup(ctx, "h-beta")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiagnosticsOrderedByUnit(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	run := createTestRun("run-0001")
	require.NoError(t, s.BeginRun(ctx, run))
	require.NoError(t, s.SaveUnit(ctx, run.ID, createFailed("zeta", "h-z", 1)))
	require.NoError(t, s.SaveUnit(ctx, run.ID, createEmitted("alpha", "h-a", 2)))

	ds, err := s.Diagnostics(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "alpha", ds[0].Unit)
	assert.Equal(t, diag.Pos{Line: 3, Col: 5}, ds[0].Pos)
	assert.Equal(t, "zeta", ds[1].Unit)
	assert.Equal(t, diag.KindSyntaxUnsupported, ds[1].Kind)
	assert.Equal(t, diag.SeverityError, ds[1].Severity)
}

func TestSignaturesIncludeCachedUnits(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	first := createTestRun("run-0001")
	require.NoError(t, s.BeginRun(ctx, first))
	require.NoError(t, s.SaveUnit(ctx, first.ID, createEmitted("alpha", "h-alpha", 1)))

	second := createTestRun("run-0002")
	require.NoError(t, s.BeginRun(ctx, second))
	hit := createEmitted("alpha", "h-alpha", 1)
	hit.Cached = true
	require.NoError(t, s.SaveUnit(ctx, second.ID, hit))
	require.NoError(t, s.SaveUnit(ctx, second.ID, createFailed("beta", "h-beta", 2)))

	sigs, err := s.Signatures(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 1, "failed units publish nothing")
	assert.Equal(t, "alpha", sigs[0].Function)
	assert.Equal(t, signature.ModeOwned, sigs[0].Params[0].Mode)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-0002", runs[0].ID, "newest first")

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-0002", latest.ID)
}
