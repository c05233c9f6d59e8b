// Package optimize rewrites a typed, ownership-annotated module before
// emission.
//
// Two passes run. Dead-code elimination always runs: it drops statements
// after an unconditional exit, expression statements whose value is pure,
// and stores to locals that are never read, but never a call the catalog
// or the intrinsic table marks as side-effecting, nor one that can fail.
// Common-subexpression elimination is optional: repeated pure subterms of
// one statement are computed once into a temporary, and each use site that
// expected another type receives an explicit conversion.
package optimize

import (
	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/ir"
)

// Options selects optional passes. Dead-code elimination cannot be turned
// off.
type Options struct {
	CSE bool
}

// Stats counts what the passes changed.
type Stats struct {
	// Removed counts statements dropped by dead-code elimination.
	Removed int
	// Bindings counts locals deleted because nothing read them.
	Bindings int
	// Hoisted counts temporaries introduced by CSE.
	Hoisted int
}

// Run optimizes every function of m in place.
func Run(m *ir.Module, cat *catalog.Catalog, opts Options) Stats {
	var st Stats
	eff := &effects{m: m, cat: cat}
	for _, f := range m.Functions {
		d := &dce{m: m, f: f, eff: eff}
		d.run()
		st.Removed += d.removed
		st.Bindings += d.bindings
		if opts.CSE {
			c := &cse{m: m, f: f, eff: eff}
			f.Body = c.block(f.Body)
			st.Hoisted += c.hoisted
		}
	}
	return st
}

// rewriteBlocks replaces every nested block of s with fn's result.
func rewriteBlocks(s *ir.Stmt, fn func([]ir.StmtID) []ir.StmtID) {
	switch s.Kind {
	case ir.StmtIf, ir.StmtWhile, ir.StmtFor:
		s.Body = fn(s.Body)
		s.Else = fn(s.Else)
	case ir.StmtLoop, ir.StmtLetElse:
		s.Body = fn(s.Body)
	case ir.StmtTry:
		s.Body = fn(s.Body)
		for i := range s.Handlers {
			s.Handlers[i].Body = fn(s.Handlers[i].Body)
		}
		s.Else = fn(s.Else)
		s.Finally = fn(s.Finally)
	case ir.StmtMatch:
		for i := range s.Match.Arms {
			s.Match.Arms[i].Body = fn(s.Match.Arms[i].Body)
		}
		s.Match.Default = fn(s.Match.Default)
	}
}
