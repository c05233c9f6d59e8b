package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, src string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadScenarioResolvesTreePaths(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/mixed_batch.yaml")
	require.NoError(t, err)

	assert.Equal(t, "mixed_batch", s.Name)
	require.Len(t, s.Trees, 2)
	assert.Equal(t, filepath.Join("testdata", "trees", "double.yaml"), s.Trees[0])
	assert.Len(t, s.Assertions, 4)
	assert.Equal(t, map[string]string{"n": "owned"}, s.Assertions[2].Params)
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: typo
description: "misspelled key"
trees: [t.yaml]
assertion:
  - type: emitted
    unit: t
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no name", "description: d\ntrees: [t.yaml]\nassertions: [{type: emitted, unit: t}]", "name is required"},
		{"no description", "name: n\ntrees: [t.yaml]\nassertions: [{type: emitted, unit: t}]", "description is required"},
		{"no trees", "name: n\ndescription: d\nassertions: [{type: emitted, unit: t}]", "trees list is required"},
		{"no assertions", "name: n\ndescription: d\ntrees: [t.yaml]", "assertions list is required"},
		{"missing tree", "name: n\ndescription: d\ntrees: [gone.yaml]\nassertions: [{type: emitted, unit: t}]", "tree file not found"},
		{"no unit", "name: n\ndescription: d\ntrees: [t.yaml]\nassertions: [{type: emitted}]", "unit is required"},
		{"unknown type", "name: n\ndescription: d\ntrees: [t.yaml]\nassertions: [{type: compiles, unit: t}]", `unknown assertion type "compiles"`},
		{"no text", "name: n\ndescription: d\ntrees: [t.yaml]\nassertions: [{type: source_contains, unit: t}]", "text is required"},
		{"no code", "name: n\ndescription: d\ntrees: [t.yaml]\nassertions: [{type: diagnostic, unit: t}]", "code is required"},
		{"no count", "name: n\ndescription: d\ntrees: [t.yaml]\nassertions: [{type: diagnostic_count, unit: t}]", "non-negative count"},
		{"no function", "name: n\ndescription: d\ntrees: [t.yaml]\nassertions: [{type: signature, unit: t}]", "function is required"},
		{"no crate", "name: n\ndescription: d\ntrees: [t.yaml]\nassertions: [{type: crate, unit: t}]", "crate is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "t.yaml"), []byte("name: t\n"), 0o644))
			_, err := LoadScenario(writeScenario(t, dir, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
