package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const goodTree = `
name: good
body:
  - def:
      name: double
      params: [{name: n, type: int}]
      returns: int
      body:
        - return: {value: {binop: {op: "*", left: {name: n}, right: {int: 2}}}}
`

const badTree = `
name: bad
body:
  - def:
      name: fetch
      async: true
      body:
        - pass: true
`

// writeTree writes src to dir/name and returns the path.
func writeTree(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// execute runs cmd with args, returning stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeResponse parses a JSON envelope and decodes its data into v.
func decodeResponse(t *testing.T, out string, v interface{}) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	if v != nil {
		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, v))
	}
	return resp
}
