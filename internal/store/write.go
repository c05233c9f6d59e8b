package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/pipeline"
)

var _ pipeline.Recorder = (*Store)(nil)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
)

// BeginRun records the start of a batch. Uses ON CONFLICT(id) DO NOTHING,
// so recording the same run twice is harmless.
func (s *Store) BeginRun(ctx context.Context, run *pipeline.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, config_fingerprint, catalog_fingerprint, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.ConfigFingerprint, run.CatalogFingerprint, StatusRunning)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun marks a run complete with its totals.
func (s *Store) FinishRun(ctx context.Context, run *pipeline.Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, units = ?, failed = ?, cached = ?
		WHERE id = ?
	`, StatusComplete, len(run.Results), run.Failed, run.Cached, run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: run %s was never begun", run.ID)
	}
	return nil
}

// SaveUnit records one unit result of a run. An emitted unit that did not
// come from the cache is also stored as a translation under its hash.
// All writes happen in one transaction.
func (s *Store) SaveUnit(ctx context.Context, runID string, r *pipeline.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save unit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	errText := ""
	if r.Err != nil {
		errText = r.Err.Error()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO run_units (run_id, unit, path, hash, seq, stage, cached, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, r.Unit, r.Path, r.Hash, r.Seq, r.Stage.String(), r.Cached, errText); err != nil {
		return fmt.Errorf("save unit %s: %w", r.Unit, err)
	}

	for i, d := range r.Diagnostics {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO diagnostics
			(run_id, unit, idx, kind, code, severity, line, col, construct, cause)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, r.Unit, i, string(d.Kind), d.Code, string(d.Severity),
			d.Pos.Line, d.Pos.Col, d.Construct, d.Cause); err != nil {
			return fmt.Errorf("save unit %s: diagnostic %d: %w", r.Unit, i, err)
		}
	}

	if r.OK() && !r.Cached {
		if err := saveTranslation(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save unit %s: commit: %w", r.Unit, err)
	}
	return nil
}

func saveTranslation(ctx context.Context, tx *sql.Tx, r *pipeline.Result) error {
	crates, err := marshalCrates(r.Crates)
	if err != nil {
		return fmt.Errorf("save translation: %w", err)
	}
	sigs, err := marshalSignatures(r.Signatures)
	if err != nil {
		return fmt.Errorf("save translation: %w", err)
	}
	var warnings []diag.Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == diag.SeverityWarning {
			warnings = append(warnings, d)
		}
	}
	warn, err := marshalDiagnostics(warnings)
	if err != nil {
		return fmt.Errorf("save translation: %w", err)
	}
	stats, err := marshalStats(r.Stats)
	if err != nil {
		return fmt.Errorf("save translation: %w", err)
	}
	// Identical hashes always carry identical output, so a conflict is
	// the same translation written again.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO translations (hash, unit, source, crates, signatures, warnings, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, r.Hash, r.Unit, r.Source, crates, sigs, warn, stats); err != nil {
		return fmt.Errorf("save translation %s: %w", r.Unit, err)
	}
	return nil
}
