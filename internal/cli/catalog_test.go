package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogListsEntries(t *testing.T) {
	stdout, _, err := execute(NewCatalogCommand(&RootOptions{Format: "text"}))
	require.NoError(t, err)
	assert.Contains(t, stdout, "math.sqrt -> float  .sqrt() (named_static_method)")
	assert.Contains(t, stdout, "math.pi: float  std::f64::consts::PI")
	assert.Contains(t, stdout, "Crates:")
}

func TestCatalogFiltersLibrary(t *testing.T) {
	stdout, _, err := execute(NewCatalogCommand(&RootOptions{Format: "json"}), "--library", "math")
	require.NoError(t, err)

	var result CatalogResult
	decodeResponse(t, stdout, &result)
	assert.Len(t, result.Fingerprint, 64)
	require.NotEmpty(t, result.Entries)
	for _, e := range result.Entries {
		assert.Equal(t, "math", e.Library)
	}
	assert.Empty(t, result.Crates, "math needs no external crate")
}

func TestCatalogUnknownLibrary(t *testing.T) {
	_, _, err := execute(NewCatalogCommand(&RootOptions{Format: "text"}), "--library", "numpy")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}
