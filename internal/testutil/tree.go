package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/infer"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/lower"
	"github.com/roach88/ferrule/internal/srctree"
)

// Catalog returns the embedded default catalog.
func Catalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return cat
}

// Tree decodes a YAML source tree.
func Tree(t testing.TB, src string) *srctree.Module {
	t.Helper()
	tree, err := srctree.Decode([]byte(src))
	require.NoError(t, err)
	return tree
}

// Analyzed lowers src and runs type and ownership inference under the
// default policy, failing the test on any error.
func Analyzed(t testing.TB, src string) *ir.Module {
	t.Helper()
	return AnalyzedWith(t, src, config.Default().Policy)
}

// AnalyzedWith is Analyzed under pol.
func AnalyzedWith(t testing.TB, src string, pol config.Policy) *ir.Module {
	t.Helper()
	cat := Catalog(t)
	m, _, err := lower.Lower(Tree(t, src), cat, pol)
	require.NoError(t, err)
	_, err = infer.Types(m, cat, pol)
	require.NoError(t, err)
	require.NoError(t, infer.Ownership(m, cat, pol))
	return m
}
