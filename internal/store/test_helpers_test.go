package store

import (
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/optimize"
	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/signature"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run with fixed fingerprints.
func createTestRun(id string) *pipeline.Run {
	return &pipeline.Run{
		ID:                 id,
		ConfigFingerprint:  "cfg-fp",
		CatalogFingerprint: "cat-fp",
	}
}

// createEmitted creates an emitted unit result.
func createEmitted(unit, hash string, seq int64) *pipeline.Result {
	return &pipeline.Result{
		Unit:   unit,
		Path:   unit + ".yaml",
		Hash:   hash,
		Seq:    seq,
		Stage:  pipeline.StageEmitted,
		Source: "pub fn " + unit + "() {\n}\n",
		Crates: []catalog.Crate{{Name: "regex", Version: semver.MustParse("1.10.0")}},
		Signatures: []signature.Signature{{
			Unit:     unit,
			Function: unit,
			Params:   []signature.Param{{Name: "n", Type: "int", Mode: signature.ModeOwned}},
			Returns:  "None",
			Shape:    signature.ShapeUnit,
		}},
		Diagnostics: []diag.Diagnostic{{
			Kind:     diag.KindCatalogMiss,
			Code:     diag.CodeCatalogMiss,
			Severity: diag.SeverityWarning,
			Unit:     unit,
			Pos:      diag.Pos{Line: 3, Col: 5},
			Cause:    "symbol not found",
		}},
		Stats: optimize.Stats{Removed: 2, Hoisted: 1},
	}
}

// createFailed creates a unit result that aborted during lowering.
func createFailed(unit, hash string, seq int64) *pipeline.Result {
	err := diag.WithUnit(diag.Unsupported(diag.CodeUnsupportedStmt, diag.Pos{Line: 7}, "global", "global statements are not supported"), unit)
	return &pipeline.Result{
		Unit:        unit,
		Path:        unit + ".yaml",
		Hash:        hash,
		Seq:         seq,
		Stage:       pipeline.StageParsed,
		Err:         err,
		Diagnostics: []diag.Diagnostic{diag.AsDiagnostic(err, unit)},
	}
}
