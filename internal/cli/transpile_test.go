package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/signature"
)

func TestTranspileWritesSources(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "trees/good.yaml", goodTree)
	out := filepath.Join(dir, "out")

	stdout, _, err := execute(NewTranspileCommand(&RootOptions{Format: "text"}),
		filepath.Join(dir, "trees"), "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Translated 1 of 1 unit(s)")
	assert.Contains(t, stdout, "✓ good (emitted)")

	src, err := os.ReadFile(filepath.Join(out, "good.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "pub fn double(n: i64) -> i64 {")
}

func TestTranspileStdout(t *testing.T) {
	path := writeTree(t, t.TempDir(), "good.yaml", goodTree)

	stdout, _, err := execute(NewTranspileCommand(&RootOptions{Format: "text"}), path, "--stdout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "// Code generated by ferrule from good. DO NOT EDIT.")
	assert.NotContains(t, stdout, "Translated")
}

func TestTranspileFailedUnitExitsOne(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "good.yaml", goodTree)
	writeTree(t, dir, "bad.yaml", badTree)
	out := filepath.Join(dir, "out")

	stdout, _, err := execute(NewTranspileCommand(&RootOptions{Format: "text"}), dir, "-o", out)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeUnitsFailed)
	assert.Contains(t, stdout, "✗ bad (parsed)")
	assert.Contains(t, stdout, "Diagnostics:")

	_, err = os.Stat(filepath.Join(out, "good.rs"))
	assert.NoError(t, err, "the good unit is still written")
	_, err = os.Stat(filepath.Join(out, "bad.rs"))
	assert.True(t, os.IsNotExist(err), "a failed unit writes nothing")
}

func TestTranspileJSON(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "good.yaml", goodTree)
	writeTree(t, dir, "bad.yaml", badTree)

	stdout, _, err := execute(NewTranspileCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var result TranspileResult
	resp := decodeResponse(t, stdout, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnitsFailed, resp.Error.Code)
	assert.Equal(t, result.RunID, resp.RunID)

	require.Len(t, result.Units, 2)
	assert.Equal(t, "bad", result.Units[0].Unit)
	assert.NotEmpty(t, result.Units[0].Error)
	assert.Equal(t, "emitted", result.Units[1].Stage)
	assert.Len(t, result.Units[1].Hash, 64)
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, result.Diagnostics)
}

func TestTranspileWritesSignatures(t *testing.T) {
	dir := t.TempDir()
	path := writeTree(t, dir, "good.yaml", goodTree)
	sigPath := filepath.Join(dir, "sigs.json")

	_, _, err := execute(NewTranspileCommand(&RootOptions{Format: "text"}), path, "--signatures", sigPath)
	require.NoError(t, err)

	data, err := os.ReadFile(sigPath)
	require.NoError(t, err)
	sigs, err := signature.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "double", sigs[0].Function)
	assert.Equal(t, signature.ModeOwned, sigs[0].Params[0].Mode)
}

func TestTranspileLoadErrors(t *testing.T) {
	stdout, _, err := execute(NewTranspileCommand(&RootOptions{Format: "text"}), "/nonexistent/trees")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, stdout, "path not found")
}

func TestTranspileRecordsRunInStore(t *testing.T) {
	dir := t.TempDir()
	path := writeTree(t, dir, "good.yaml", goodTree)
	opts := &RootOptions{Format: "json", Database: filepath.Join(dir, "ferrule.db")}

	stdout, _, err := execute(NewTranspileCommand(opts), path)
	require.NoError(t, err)
	var first TranspileResult
	decodeResponse(t, stdout, &first)
	assert.Equal(t, 0, first.Cached)

	stdout, _, err = execute(NewTranspileCommand(opts), path)
	require.NoError(t, err)
	var second TranspileResult
	decodeResponse(t, stdout, &second)
	assert.Equal(t, 1, second.Cached)
	assert.True(t, second.Units[0].Cached)
	assert.NotEqual(t, first.RunID, second.RunID)
}
