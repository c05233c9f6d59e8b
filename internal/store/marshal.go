package store

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/optimize"
	"github.com/roach88/ferrule/internal/signature"
	"github.com/roach88/ferrule/internal/srctree"
)

// storedCrate is the TEXT form of a catalog.Crate.
type storedCrate struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// marshalJSON converts v to canonical JSON TEXT, so identical values
// always store identical text.
func marshalJSON(what string, v any) (string, error) {
	data, err := srctree.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

func marshalCrates(crates []catalog.Crate) (string, error) {
	out := make([]storedCrate, len(crates))
	for i, c := range crates {
		out[i] = storedCrate{Name: c.Name, Version: c.Version.String()}
	}
	return marshalJSON("crates", out)
}

func unmarshalCrates(data string) ([]catalog.Crate, error) {
	var stored []storedCrate
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal crates: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}
	out := make([]catalog.Crate, len(stored))
	for i, c := range stored {
		v, err := semver.NewVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("unmarshal crates: %s: %w", c.Name, err)
		}
		out[i] = catalog.Crate{Name: c.Name, Version: v}
	}
	return out, nil
}

func marshalSignatures(sigs []signature.Signature) (string, error) {
	if sigs == nil {
		sigs = []signature.Signature{}
	}
	return marshalJSON("signatures", sigs)
}

func unmarshalSignatures(data string) ([]signature.Signature, error) {
	sigs, err := signature.Unmarshal([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal signatures: %w", err)
	}
	return sigs, nil
}

func marshalDiagnostics(ds []diag.Diagnostic) (string, error) {
	if ds == nil {
		ds = []diag.Diagnostic{}
	}
	return marshalJSON("diagnostics", ds)
}

func unmarshalDiagnostics(data string) ([]diag.Diagnostic, error) {
	var ds []diag.Diagnostic
	if err := json.Unmarshal([]byte(data), &ds); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	if len(ds) == 0 {
		return nil, nil
	}
	return ds, nil
}

type storedStats struct {
	Removed  int `json:"removed"`
	Bindings int `json:"bindings"`
	Hoisted  int `json:"hoisted"`
}

func marshalStats(st optimize.Stats) (string, error) {
	return marshalJSON("stats", storedStats{st.Removed, st.Bindings, st.Hoisted})
}

func unmarshalStats(data string) (optimize.Stats, error) {
	var st storedStats
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return optimize.Stats{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	return optimize.Stats{Removed: st.Removed, Bindings: st.Bindings, Hoisted: st.Hoisted}, nil
}
