package codegen

import (
	"github.com/roach88/ferrule/internal/ir"
)

// Truthiness wraps every condition and boolean operand that is not already
// a bool in an explicit truth test, and returns how many it wrapped. The
// rewrite is idempotent: a second run finds nothing to wrap.
func Truthiness(m *ir.Module) int {
	n := 0
	// cond makes id a bool-typed condition. A boolean operator in condition
	// position only needs the truth of its result, so it is retyped to bool
	// and its operands become conditions in turn.
	var cond func(id ir.ExprID) ir.ExprID
	cond = func(id ir.ExprID) ir.ExprID {
		e := m.Expr(id)
		switch {
		case e == nil:
			return id
		case e.Kind == ir.ExprBoolOp:
			if e.Type.Kind != ir.KindBool {
				e.Type = ir.Bool
				n++
			}
			for i, a := range e.Args {
				e.Args[i] = cond(a)
			}
			return id
		case e.Kind == ir.ExprUnary && e.Op == ir.OpNot:
			e.X = cond(e.X)
			return id
		case e.Type.Kind == ir.KindBool:
			return id
		}
		n++
		return m.NewExpr(ir.Expr{Kind: ir.ExprTruthy, Pos: e.Pos, Type: ir.Bool, X: id})
	}
	exprs := func(root ir.ExprID) {
		m.WalkExpr(root, func(_ ir.ExprID, e *ir.Expr) bool {
			switch e.Kind {
			case ir.ExprUnary:
				if e.Op == ir.OpNot {
					e.X = cond(e.X)
				}
			case ir.ExprBoolOp:
				if e.Type.Kind == ir.KindBool {
					for i, a := range e.Args {
						e.Args[i] = cond(a)
					}
				}
			case ir.ExprIfExp:
				e.X = cond(e.X)
			case ir.ExprComp:
				for gi := range e.Comp.Gens {
					for i, c := range e.Comp.Gens[gi].Ifs {
						e.Comp.Gens[gi].Ifs[i] = cond(c)
					}
				}
			}
			return true
		})
	}
	stmts := func(body []ir.StmtID) {
		m.WalkStmts(body, func(_ ir.StmtID, s *ir.Stmt) bool {
			switch s.Kind {
			case ir.StmtIf, ir.StmtAssert:
				s.Cond = cond(s.Cond)
			case ir.StmtWhile:
				if !m.IsInfinite(s) {
					s.Cond = cond(s.Cond)
				}
			}
			for _, id := range m.StmtExprs(s) {
				exprs(id)
			}
			return true
		})
	}
	for _, c := range m.Constants {
		exprs(c.Value)
	}
	for _, f := range m.Functions {
		for _, p := range f.Params {
			exprs(p.Default)
		}
		stmts(f.Body)
	}
	return n
}

// truthTest renders the truth test of a value s of type t.
func truthTest(s string, t *ir.Type) string {
	switch t.Kind {
	case ir.KindBool:
		return s
	case ir.KindInt, ir.KindSize:
		return paren(s) + " != 0"
	case ir.KindFloat:
		return paren(s) + " != 0.0"
	case ir.KindStr, ir.KindSeq, ir.KindMap, ir.KindSet:
		return "!" + paren(s) + ".is_empty()"
	case ir.KindOptional:
		return paren(s) + ".is_some()"
	case ir.KindDyn:
		return paren(s) + ".truthy()"
	case ir.KindUnit:
		return "false"
	case ir.KindTuple:
		if len(t.Items) == 0 {
			return "false"
		}
	}
	return "true"
}
