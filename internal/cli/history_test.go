package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/store"
)

// recordRun transpiles good and bad trees into a fresh store and returns
// the options pointing at it.
func recordRun(t *testing.T) (*RootOptions, string) {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, "trees/good.yaml", goodTree)
	writeTree(t, dir, "trees/bad.yaml", badTree)
	opts := &RootOptions{Format: "json", Database: filepath.Join(dir, "ferrule.db")}
	_, _, err := execute(NewTranspileCommand(opts), filepath.Join(dir, "trees"))
	require.Error(t, err, "bad fails")
	return opts, dir
}

func TestHistoryListsRuns(t *testing.T) {
	opts, _ := recordRun(t)

	stdout, _, err := execute(NewHistoryCommand(opts))
	require.NoError(t, err)
	var runs []store.RunRecord
	decodeResponse(t, stdout, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusComplete, runs[0].Status)
	assert.Equal(t, 2, runs[0].Units)
	assert.Equal(t, 1, runs[0].Failed)
}

func TestHistoryShowsRun(t *testing.T) {
	opts, _ := recordRun(t)

	stdout, _, err := execute(NewHistoryCommand(opts), "--run", "latest")
	require.NoError(t, err)
	var detail RunDetail
	resp := decodeResponse(t, stdout, &detail)
	assert.Equal(t, detail.Run.ID, resp.RunID)
	require.Len(t, detail.Units, 2)
	assert.NotEqual(t, detail.Units[0].Seq, detail.Units[1].Seq)
	require.NotEmpty(t, detail.Diagnostics)
	assert.Equal(t, "bad", detail.Diagnostics[0].Unit)
	assert.Equal(t, diag.SeverityError, detail.Diagnostics[len(detail.Diagnostics)-1].Severity)
}

func TestHistoryFiltersByCode(t *testing.T) {
	opts, _ := recordRun(t)

	stdout, _, err := execute(NewHistoryCommand(opts), "--run", "latest", "--code", "E999")
	require.NoError(t, err)
	var detail RunDetail
	decodeResponse(t, stdout, &detail)
	assert.Empty(t, detail.Diagnostics)
}

func TestHistoryText(t *testing.T) {
	opts, _ := recordRun(t)
	opts.Format = "text"

	stdout, _, err := execute(NewHistoryCommand(opts))
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 unit(s), 1 failed, 0 cached")
}

func TestHistoryErrors(t *testing.T) {
	_, _, err := execute(NewHistoryCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db")

	opts, _ := recordRun(t)
	_, _, err = execute(NewHistoryCommand(opts), "--run", "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestHistoryEmptyStore(t *testing.T) {
	opts := &RootOptions{Format: "text", Database: filepath.Join(t.TempDir(), "ferrule.db")}
	stdout, _, err := execute(NewHistoryCommand(opts))
	require.NoError(t, err)
	assert.Contains(t, stdout, "No runs recorded")
}
