package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/pipeline"
	"github.com/roach88/ferrule/internal/signature"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one stored run.
type RunRecord struct {
	ID                 string `json:"id"`
	ConfigFingerprint  string `json:"config_fingerprint"`
	CatalogFingerprint string `json:"catalog_fingerprint"`
	Status             string `json:"status"`
	Units              int    `json:"units"`
	Failed             int    `json:"failed"`
	Cached             int    `json:"cached"`
}

// UnitRecord is one unit of a stored run.
type UnitRecord struct {
	Unit   string `json:"unit"`
	Path   string `json:"path"`
	Hash   string `json:"hash"`
	Seq    int64  `json:"seq"`
	Stage  string `json:"stage"`
	Cached bool   `json:"cached"`
	Error  string `json:"error,omitempty"`
}

// Lookup returns the cached translation for hash. The result has no unit
// name or path; the caller supplies them from the tree it translated.
func (s *Store) Lookup(ctx context.Context, hash string) (*pipeline.Result, bool, error) {
	var source, crates, sigs, warnings, stats string
	err := s.db.QueryRowContext(ctx, `
		SELECT source, crates, signatures, warnings, stats
		FROM translations
		WHERE hash = ?
	`, hash).Scan(&source, &crates, &sigs, &warnings, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup translation: %w", err)
	}

	r := &pipeline.Result{Hash: hash, Stage: pipeline.StageEmitted, Source: source}
	if r.Crates, err = unmarshalCrates(crates); err != nil {
		return nil, false, err
	}
	if r.Signatures, err = unmarshalSignatures(sigs); err != nil {
		return nil, false, err
	}
	if r.Diagnostics, err = unmarshalDiagnostics(warnings); err != nil {
		return nil, false, err
	}
	if r.Stats, err = unmarshalStats(stats); err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// ReadRun returns one run. Returns ErrRunNotFound if it does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, config_fingerprint, catalog_fingerprint, status, units, failed, cached
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first. Run IDs are UUIDv7, so
// ID order is start order.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, config_fingerprint, catalog_fingerprint, status, units, failed, cached
		FROM runs
		ORDER BY id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run. Returns ErrRunNotFound
// on an empty store.
func (s *Store) LatestRun(ctx context.Context) (RunRecord, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return RunRecord{}, err
	}
	if len(runs) == 0 {
		return RunRecord{}, ErrRunNotFound
	}
	return runs[0], nil
}

// RunUnits returns the units of a run in completion order.
func (s *Store) RunUnits(ctx context.Context, runID string) ([]UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit, path, hash, seq, stage, cached, error
		FROM run_units
		WHERE run_id = ?
		ORDER BY seq ASC, unit COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run units: %w", err)
	}
	defer rows.Close()

	units := []UnitRecord{}
	for rows.Next() {
		var u UnitRecord
		if err := rows.Scan(&u.Unit, &u.Path, &u.Hash, &u.Seq, &u.Stage, &u.Cached, &u.Error); err != nil {
			return nil, fmt.Errorf("scan run unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run units: %w", err)
	}
	return units, nil
}

// Diagnostics returns every diagnostic of a run ordered by unit, then in
// the order the unit reported them.
func (s *Store) Diagnostics(ctx context.Context, runID string) ([]diag.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit, kind, code, severity, line, col, construct, cause
		FROM diagnostics
		WHERE run_id = ?
		ORDER BY unit COLLATE BINARY ASC, idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	ds := []diag.Diagnostic{}
	for rows.Next() {
		var d diag.Diagnostic
		var kind, severity string
		if err := rows.Scan(&d.Unit, &kind, &d.Code, &severity,
			&d.Pos.Line, &d.Pos.Col, &d.Construct, &d.Cause); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Kind = diag.Kind(kind)
		d.Severity = diag.Severity(severity)
		ds = append(ds, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return ds, nil
}

// Signatures returns the published signatures of every emitted unit of a
// run, ordered by unit then declaration.
func (s *Store) Signatures(ctx context.Context, runID string) ([]signature.Signature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.signatures
		FROM run_units u
		JOIN translations t ON t.hash = u.hash
		WHERE u.run_id = ? AND u.stage = ?
		ORDER BY u.unit COLLATE BINARY ASC
	`, runID, pipeline.StageEmitted.String())
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()

	all := []signature.Signature{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan signatures: %w", err)
		}
		sigs, err := unmarshalSignatures(data)
		if err != nil {
			return nil, err
		}
		all = append(all, sigs...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return all, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var r RunRecord
	err := row.Scan(&r.ID, &r.ConfigFingerprint, &r.CatalogFingerprint, &r.Status, &r.Units, &r.Failed, &r.Cached)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, err
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}
