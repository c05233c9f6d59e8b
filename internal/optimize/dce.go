package optimize

import (
	"github.com/roach88/ferrule/internal/ir"
)

// dce removes code whose execution cannot be observed. It repeats until a
// round removes nothing, since dropping one store can leave another
// binding unread.
type dce struct {
	m   *ir.Module
	f   *ir.Function
	eff *effects

	dead     map[string]bool
	removed  int
	bindings int
}

func (d *dce) run() {
	for {
		before := d.removed
		d.dead = d.deadBindings()
		d.f.Body = d.block(d.f.Body)
		for n := range d.dead {
			delete(d.f.Bindings, n)
			d.bindings++
		}
		if d.removed == before {
			return
		}
	}
}

func (d *dce) block(body []ir.StmtID) []ir.StmtID {
	out := body[:0:0]
	for i, id := range body {
		s := d.m.Stmt(id)
		rewriteBlocks(s, d.block)
		if d.drop(s) {
			d.removed++
			continue
		}
		out = append(out, id)
		if exits(s) {
			d.removed += len(body) - i - 1
			break
		}
	}
	return out
}

func (d *dce) drop(s *ir.Stmt) bool {
	if len(s.Hoisted) > 0 {
		return false
	}
	switch s.Kind {
	case ir.StmtPass:
		return true
	case ir.StmtExpr:
		return d.eff.pure(s.Value)
	case ir.StmtAssign:
		t := d.m.Expr(s.Target)
		return t.Kind == ir.ExprVar && d.dead[t.Name]
	}
	return false
}

// exits reports statements after which the rest of the block is
// unreachable.
func exits(s *ir.Stmt) bool {
	switch s.Kind {
	case ir.StmtReturn, ir.StmtRaise, ir.StmtBreak, ir.StmtContinue:
		return true
	}
	return false
}

// deadBindings returns the locals no expression reads whose every store is
// a plain assignment of a pure value.
func (d *dce) deadBindings() map[string]bool {
	reads := make(map[string]bool)
	keep := make(map[string]bool)
	count := func(id ir.ExprID) {
		d.m.WalkExpr(id, func(_ ir.ExprID, e *ir.Expr) bool {
			switch e.Kind {
			case ir.ExprVar:
				reads[e.Name] = true
			case ir.ExprNamed:
				keep[e.Name] = true
			case ir.ExprCall:
				if e.Callee.Kind == ir.CallValue {
					reads[e.Name] = true
				}
			}
			return true
		})
	}
	d.m.WalkStmts(d.f.Body, func(_ ir.StmtID, s *ir.Stmt) bool {
		for _, n := range s.Hoisted {
			keep[n] = true
		}
		for _, h := range s.Handlers {
			if h.Name != "" {
				keep[h.Name] = true
			}
		}
		if s.Kind == ir.StmtAssign {
			if t := d.m.Expr(s.Target); t.Kind == ir.ExprVar {
				if !d.eff.pure(s.Value) {
					keep[t.Name] = true
				}
				count(s.Value)
				return true
			}
		}
		for _, e := range d.m.StmtExprs(s) {
			count(e)
		}
		return true
	})
	dead := make(map[string]bool)
	for n, b := range d.f.Bindings {
		if !b.Param && !reads[n] && !keep[n] {
			dead[n] = true
		}
	}
	return dead
}
