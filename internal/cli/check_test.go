package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// warnTree calls a library symbol the catalog does not know, which is a
// warning under the default policy.
const warnTree = `
name: warn
body:
  - import: {names: [{name: os.path}]}
  - def:
      name: check
      params: [{name: p, type: str}]
      body:
        - line: 5
          return: {value: {call: {func: {attr: {value: {attr: {value: {name: os}, attr: path}}, attr: exists}}, args: [{name: p}]}}}
`

func TestCheckValid(t *testing.T) {
	path := writeTree(t, t.TempDir(), "good.yaml", goodTree)

	stdout, _, err := execute(NewCheckCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ 1 unit(s) checked")
}

func TestCheckReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "good.yaml", goodTree)
	writeTree(t, dir, "bad.yaml", badTree)

	stdout, _, err := execute(NewCheckCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result CheckResult
	resp := decodeResponse(t, stdout, &result)
	assert.Equal(t, "error", resp.Status)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.Units)
	assert.Equal(t, 1, result.Failed)
	require.NotEmpty(t, result.Diagnostics)
	assert.Equal(t, "bad", result.Diagnostics[0].Unit)
}

func TestCheckStrictFailsOnWarnings(t *testing.T) {
	path := writeTree(t, t.TempDir(), "warn.yaml", warnTree)

	_, _, err := execute(NewCheckCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)

	stdout, _, err := execute(NewCheckCommand(&RootOptions{Format: "text"}), path, "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "warning")
}

func TestCheckEmptyDirectory(t *testing.T) {
	_, _, err := execute(NewCheckCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}
