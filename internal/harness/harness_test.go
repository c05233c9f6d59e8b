package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/signature"
)

func loadAndRun(t *testing.T, name string) *Result {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRunMixedBatch(t *testing.T) {
	result := loadAndRun(t, "mixed_batch")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Units, 2)
	assert.Equal(t, "good", result.Units[0].Name)
	assert.Equal(t, "emitted", result.Units[0].Stage)
	assert.Empty(t, result.Units[1].Source)

	require.NotEmpty(t, result.Signatures)
	assert.Equal(t, "double", result.Signatures[0].Function)
}

func TestRunEmptyMappingWithoutElementTypes(t *testing.T) {
	result := loadAndRun(t, "empty_mapping_unannotated")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunCatalogMissPolicy(t *testing.T) {
	result := loadAndRun(t, "catalog_miss_error")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunReportsFailedAssertions(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "mixed_batch.yaml"))
	require.NoError(t, err)
	s.Assertions = []Assertion{
		{Type: AssertEmitted, Unit: "bad"},
		{Type: AssertSourceContains, Unit: "good", Text: "fn triple"},
		{Type: AssertSignature, Unit: "good", Function: "double", Params: map[string]string{"n": "borrowed"}},
		{Type: AssertEmitted, Unit: "ghost"},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Expected: stage emitted")
	assert.Contains(t, result.Errors[0], "E203")
	assert.Contains(t, result.Errors[1], `source containing "fn triple"`)
	assert.Contains(t, result.Errors[2], "n received borrowed")
	assert.Contains(t, result.Errors[3], "no such unit")
}

func TestRunRejectsBadConfig(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "empty_mapping.yaml"))
	require.NoError(t, err)
	s.Config = `policy: vararg_spread: "splat"`

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario config")
}

func TestRunGolden(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "empty_mapping.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestEvaluateAssertions(t *testing.T) {
	one := 1
	result := &Result{
		Units: []Unit{{
			Name:   "app",
			Stage:  "emitted",
			Source: "use regex::Regex;\n",
			Crates: []string{"regex"},
			Diagnostics: []diag.Diagnostic{
				{Severity: diag.SeverityWarning, Code: diag.CodeCatalogMiss, Unit: "app", Cause: "os.path.exists"},
			},
		}},
		Signatures: []signature.Signature{{
			Unit:     "app",
			Function: "scan",
			Params:   []signature.Param{{Name: "text", Mode: signature.ModeBorrowed}},
			Shape:    signature.ShapeScalar,
		}},
	}

	tests := []struct {
		name string
		a    Assertion
		pass bool
	}{
		{"crate present", Assertion{Type: AssertCrate, Unit: "app", Crate: "regex"}, true},
		{"crate absent", Assertion{Type: AssertCrate, Unit: "app", Crate: "rand"}, false},
		{"diagnostic", Assertion{Type: AssertDiagnostic, Unit: "app", Code: diag.CodeCatalogMiss}, true},
		{"diagnostic count", Assertion{Type: AssertDiagnosticCount, Unit: "app", Count: &one}, true},
		{"failed on emitted", Assertion{Type: AssertFailed, Unit: "app"}, false},
		{"excludes", Assertion{Type: AssertSourceExcludes, Unit: "app", Text: "Regex"}, false},
		{"signature", Assertion{Type: AssertSignature, Unit: "app", Function: "scan", Params: map[string]string{"text": "borrowed"}, Shape: "scalar"}, true},
		{"wrong shape", Assertion{Type: AssertSignature, Unit: "app", Function: "scan", Shape: "iterator"}, false},
		{"unknown param", Assertion{Type: AssertSignature, Unit: "app", Function: "scan", Params: map[string]string{"body": "owned"}}, false},
		{"no signature", Assertion{Type: AssertSignature, Unit: "app", Function: "main"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(result, []Assertion{tt.a})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				assert.Len(t, errs, 1)
			}
		})
	}
}

func TestSnapshotIncludesDiagnosticsAndCrates(t *testing.T) {
	result := &Result{Units: []Unit{{
		Name:        "app",
		Stage:       "emitted",
		Source:      "fn main() {}\n",
		Crates:      []string{"rand", "regex"},
		Diagnostics: []diag.Diagnostic{{Severity: diag.SeverityWarning, Code: diag.CodeCatalogMiss, Unit: "app", Cause: "os.path.exists"}},
	}}}

	got := string(Snapshot("snap", result))
	assert.Contains(t, got, "scenario: snap\n\n== app (emitted)\n-- ")
	assert.Contains(t, got, "-- crates: rand, regex\nfn main() {}\n")
}
