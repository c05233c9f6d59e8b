package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/signature"
)

func TestSignaturesFromTrees(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "good.yaml", goodTree)
	writeTree(t, dir, "bad.yaml", badTree)

	stdout, _, err := execute(NewSignaturesCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err, "failed units publish nothing but are not an error here")
	assert.Equal(t, "good.double(n: int [owned]) -> int [scalar]\n", stdout)
}

func TestSignaturesFromStoredRun(t *testing.T) {
	dir := t.TempDir()
	path := writeTree(t, dir, "good.yaml", goodTree)
	opts := &RootOptions{Format: "json", Database: filepath.Join(dir, "ferrule.db")}

	_, _, err := execute(NewTranspileCommand(opts), path)
	require.NoError(t, err)

	stdout, _, err := execute(NewSignaturesCommand(opts), "--run", "latest")
	require.NoError(t, err)
	var sigs []signature.Signature
	resp := decodeResponse(t, stdout, &sigs)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	require.Len(t, sigs, 1)
	assert.Equal(t, "good", sigs[0].Unit)
	assert.Equal(t, signature.ShapeScalar, sigs[0].Shape)
}

func TestSignaturesArgumentErrors(t *testing.T) {
	_, _, err := execute(NewSignaturesCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(NewSignaturesCommand(&RootOptions{Format: "text"}), "--run", "latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db")
}

func TestFormatSignature(t *testing.T) {
	s := signature.Signature{
		Unit:     "u",
		Function: "f",
		Params: []signature.Param{
			{Name: "xs", Type: "list[int]", Mode: signature.ModeBorrowedMut},
			{Name: "rest", Type: "int", Mode: signature.ModeOwned, Vararg: true},
		},
		Returns:   "list[str]",
		Shape:     signature.ShapeSequence,
		CanFail:   true,
		Generator: true,
	}
	assert.Equal(t,
		"u.f(xs: list[int] [borrowed_mut], *rest: int [owned]) -> list[str] [sequence] (can fail, generator)",
		formatSignature(s))
}
