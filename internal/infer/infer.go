// Package infer assigns a concrete type to every binding and expression of
// a lowered module, decides which functions can fail, and then decides
// ownership: how each parameter is received and how each read of a
// binding is emitted.
//
// Typing runs to a fixpoint across the whole unit, since parameter types
// come from in-unit call sites and return types feed back into callers.
// The lenient rounds leave unresolved parts Unknown; one strict round
// then applies the configured fallbacks and rejects whatever is left.
package infer

import (
	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
)

// maxRounds bounds the typing fixpoint. Types only grow more specific,
// so real units settle in a handful of rounds.
const maxRounds = 64

// Types types m in place. Name-based fallbacks are returned as warnings.
func Types(m *ir.Module, cat *catalog.Catalog, pol config.Policy) ([]diag.Diagnostic, error) {
	bag := &diag.Bag{Unit: m.Name}
	for _, f := range m.Functions {
		if err := analyzeScope(m, f); err != nil {
			return bag.Items, diag.WithUnit(err, m.Name)
		}
	}
	t := newTyper(m, cat, pol, bag)
	if err := t.run(); err != nil {
		return bag.Items, diag.WithUnit(err, m.Name)
	}
	if err := t.strict(); err != nil {
		return bag.Items, diag.WithUnit(err, m.Name)
	}
	markFallible(m, cat)
	return bag.Items, nil
}

// Ownership annotates parameter modes and per-read uses of a typed module.
func Ownership(m *ir.Module, cat *catalog.Catalog, pol config.Policy) error {
	o := &owner{m: m, cat: cat, pol: pol}
	if err := o.run(); err != nil {
		return diag.WithUnit(err, m.Name)
	}
	return nil
}
