package optimize

import (
	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
)

// effects classifies expressions by what evaluating them can do beyond
// producing a value.
type effects struct {
	m   *ir.Module
	cat *catalog.Catalog
}

// pure reports whether id may be dropped when its value is unused: it
// stores nothing, calls nothing side-effecting, cannot raise and cannot
// abort.
func (x *effects) pure(id ir.ExprID) bool {
	ok := true
	x.m.WalkExpr(id, func(_ ir.ExprID, e *ir.Expr) bool {
		if !ok {
			return false
		}
		switch e.Kind {
		case ir.ExprNamed, ir.ExprSubscript, ir.ExprStarred:
			ok = false
		case ir.ExprBinary:
			ok = !mayAbort(x.m, e)
		case ir.ExprCall, ir.ExprMethodCall:
			ok = !e.Fallible && x.callPure(e)
		}
		return ok
	})
	return ok
}

// mayAbort reports division and modulo by anything but a nonzero literal,
// and exponentiation and shifts, which can overflow.
func mayAbort(m *ir.Module, e *ir.Expr) bool {
	switch e.Op {
	case ir.OpPow, ir.OpShl, ir.OpShr:
		return true
	case ir.OpDiv, ir.OpFloorDiv, ir.OpMod:
		y := m.Expr(e.Y)
		switch {
		case y.Kind != ir.ExprLit:
			return true
		case y.Lit.Kind == ir.LitInt:
			return y.Lit.Int == 0
		case y.Lit.Kind == ir.LitFloat:
			return y.Lit.Float == 0
		}
		return true
	}
	return false
}

// callPure reports whether a call has no effect beyond its result.
// Calls into the unit's own functions are never dropped.
func (x *effects) callPure(e *ir.Expr) bool {
	if e.Kind == ir.ExprMethodCall {
		spec, ok := intrinsic.Method(x.m.TypeOf(e.X), e.Name)
		return ok && spec.Pure()
	}
	switch e.Callee.Kind {
	case ir.CallIntrinsic:
		spec, ok := intrinsic.Builtin(e.Callee.Symbol)
		return ok && spec.Pure()
	case ir.CallLibrary:
		entry, ok := x.cat.Lookup(e.Callee.Library, e.Callee.Symbol)
		return ok && !entry.SideEffecting
	case ir.CallException:
		return true
	}
	return false
}

// writes reports whether evaluating id can change a binding or anything a
// later read of the same statement could observe. Calls into the unit's
// own functions and callable bindings reach caller state only through
// arguments passed by mutable borrow.
func (x *effects) writes(id ir.ExprID) bool {
	found := false
	x.m.WalkExpr(id, func(_ ir.ExprID, e *ir.Expr) bool {
		if found {
			return false
		}
		switch e.Kind {
		case ir.ExprNamed:
			found = true
		case ir.ExprCall, ir.ExprMethodCall:
			for _, u := range e.Pass {
				if u == ir.UseBorrowMut {
					found = true
				}
			}
			if !x.callPure(e) && !unitCall(e) {
				found = true
			}
		}
		return !found
	})
	return found
}

func unitCall(e *ir.Expr) bool {
	return e.Kind == ir.ExprCall && (e.Callee.Kind == ir.CallLocal || e.Callee.Kind == ir.CallValue)
}
