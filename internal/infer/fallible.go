package infer

import (
	"sort"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
)

// kinds is a set of exception kinds.
type kinds map[string]bool

func (k kinds) add(o kinds) bool {
	grew := false
	for n := range o {
		if !k[n] {
			k[n] = true
			grew = true
		}
	}
	return grew
}

// Raises returns the sorted exception kinds a function can let escape.
func Raises(m *ir.Module, cat *catalog.Catalog, name string) []string {
	all := raiseSets(m, cat)
	out := make([]string, 0, len(all[name]))
	for k := range all[name] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// markFallible decides which functions can fail and which calls propagate
// a failure. A function can fail when an exception may escape it. Indexing
// and division faults abort, as in the target, unless a handler of an
// enclosing try in the same function catches them; those operations are
// marked and raise their kind like a call would.
func markFallible(m *ir.Module, cat *catalog.Catalog) {
	sets := raiseSets(m, cat)
	for _, f := range m.Functions {
		f.CanFail = len(sets[f.Name]) > 0
	}
	r := raiser{m: m, cat: cat, sets: sets}
	for _, c := range m.Constants {
		r.markCalls(c.Value)
	}
	for _, f := range m.Functions {
		r.markBlock(f.Body)
		for _, p := range f.Params {
			r.markCalls(p.Default)
		}
	}
}

// raiseSets computes, to a fixpoint over the call graph, the exception
// kinds escaping each function.
func raiseSets(m *ir.Module, cat *catalog.Catalog) map[string]kinds {
	r := raiser{m: m, cat: cat, sets: make(map[string]kinds)}
	for _, f := range m.Functions {
		r.sets[f.Name] = kinds{}
	}
	for changed := true; changed; {
		changed = false
		for _, f := range m.Functions {
			if r.sets[f.Name].add(r.block(f.Body, nil)) {
				changed = true
			}
		}
	}
	return r.sets
}

type raiser struct {
	m    *ir.Module
	cat  *catalog.Catalog
	sets map[string]kinds
	// guards holds the handlers of each try whose body is being walked.
	guards [][]ir.Handler
}

// block collects what escapes body. handled is the kind set of the
// enclosing handler, re-raised by a bare raise.
func (r *raiser) block(body []ir.StmtID, handled kinds) kinds {
	out := kinds{}
	for _, id := range body {
		s := r.m.Stmt(id)
		switch s.Kind {
		case ir.StmtTry:
			r.guards = append(r.guards, s.Handlers)
			inner := r.block(s.Body, handled)
			r.guards = r.guards[:len(r.guards)-1]
			inner.add(r.block(s.Else, handled))
			for _, h := range s.Handlers {
				caught := kinds{}
				for k := range inner {
					if catches(h, k) {
						caught[k] = true
					}
				}
				for k := range caught {
					delete(inner, k)
				}
				out.add(r.block(h.Body, caught))
			}
			out.add(inner)
			out.add(r.block(s.Finally, handled))
			continue
		case ir.StmtRaise:
			if s.Value == ir.NoExpr {
				out.add(handled)
			} else {
				out[raisedKind(r.m, s.Value)] = true
			}
		case ir.StmtAssert:
			out["AssertionError"] = true
		}
		for _, e := range r.stmtExprs(s) {
			out.add(r.expr(e))
		}
		for _, b := range ir.Blocks(s) {
			out.add(r.block(b, handled))
		}
	}
	return out
}

func catches(h ir.Handler, kind string) bool {
	if len(h.Kinds) == 0 {
		return true
	}
	for _, k := range h.Kinds {
		if intrinsic.Subsumes(k, kind) {
			return true
		}
	}
	return false
}

// raisedKind is the kind of a raised value: the constructed exception's
// name, or the root kind when the value is a caught exception.
func raisedKind(m *ir.Module, id ir.ExprID) string {
	if e := m.Expr(id); e != nil && e.Kind == ir.ExprCall && e.Callee.Kind == ir.CallException {
		return e.Callee.Symbol
	}
	return "Exception"
}

// stmtExprs is StmtExprs with a mapping store target replaced by its
// operands, since storing under a missing key does not fault.
func (r *raiser) stmtExprs(s *ir.Stmt) []ir.ExprID {
	out := r.m.StmtExprs(s)
	if s.Kind != ir.StmtAssign {
		return out
	}
	t := r.m.Expr(s.Target)
	if t == nil || t.Kind != ir.ExprSubscript || r.m.TypeOf(t.X).Kind != ir.KindMap {
		return out
	}
	for i, id := range out {
		if id == s.Target {
			return append(append(out[:i:i], t.X, t.Y), out[i+1:]...)
		}
	}
	return out
}

// expr collects kinds raised by calls and guarded faults inside an
// expression.
func (r *raiser) expr(id ir.ExprID) kinds {
	out := kinds{}
	r.m.WalkExpr(id, func(_ ir.ExprID, e *ir.Expr) bool {
		if k := r.callRaises(e); k != nil {
			out.add(k)
		}
		if k := r.fault(e); k != "" {
			out[k] = true
		}
		return true
	})
	return out
}

// fault is the kind a subscript or division raises when some enclosing
// handler catches it, or "".
func (r *raiser) fault(e *ir.Expr) string {
	k := faultKind(r.m, e)
	if k == "" {
		return ""
	}
	for _, hs := range r.guards {
		for _, h := range hs {
			if catches(h, k) {
				return k
			}
		}
	}
	return ""
}

// faultKind is the exception kind an operation raises in the source when
// it fails at run time: IndexError for a sequence or string index,
// KeyError for a mapping lookup and ZeroDivisionError for numeric
// division by a divisor that is not a nonzero literal.
func faultKind(m *ir.Module, e *ir.Expr) string {
	switch e.Kind {
	case ir.ExprSubscript:
		switch m.TypeOf(e.X).Kind {
		case ir.KindSeq, ir.KindStr:
			return "IndexError"
		case ir.KindMap:
			return "KeyError"
		}
	case ir.ExprBinary:
		switch {
		case e.Op == ir.OpDiv && e.Type.Kind == ir.KindFloat:
		case e.Op == ir.OpFloorDiv || e.Op == ir.OpMod:
			if k := e.Type.Kind; k != ir.KindInt && k != ir.KindSize && k != ir.KindFloat {
				return ""
			}
		default:
			return ""
		}
		if !nonzeroLiteral(m, e.Y) {
			return "ZeroDivisionError"
		}
	}
	return ""
}

func nonzeroLiteral(m *ir.Module, id ir.ExprID) bool {
	y := m.Expr(id)
	if y != nil && y.Kind == ir.ExprUnary && y.Op == ir.OpNeg {
		y = m.Expr(y.X)
	}
	if y == nil || y.Kind != ir.ExprLit {
		return false
	}
	switch y.Lit.Kind {
	case ir.LitInt:
		return y.Lit.Int != 0
	case ir.LitFloat:
		return y.Lit.Float != 0
	}
	return false
}

// callRaises is the set of kinds a single call can raise, or nil.
func (r *raiser) callRaises(e *ir.Expr) kinds {
	switch e.Kind {
	case ir.ExprCall:
		switch e.Callee.Kind {
		case ir.CallLocal:
			if k := r.sets[e.Callee.Symbol]; len(k) > 0 {
				return k
			}
		case ir.CallIntrinsic:
			if spec, ok := intrinsic.Builtin(e.Callee.Symbol); ok {
				if k := spec.RaisesFor(nil, r.argTypes(e)); k != "" {
					return kinds{k: true}
				}
			}
		case ir.CallLibrary:
			if entry, ok := r.cat.Lookup(e.Callee.Library, e.Callee.Symbol); ok && entry.Shape == catalog.FallibleCall {
				k := entry.Raises
				if k == "" {
					k = "Exception"
				}
				return kinds{k: true}
			}
		}
	case ir.ExprMethodCall:
		if spec, ok := intrinsic.Method(r.m.TypeOf(e.X), e.Name); ok {
			if k := spec.RaisesFor(r.m.TypeOf(e.X), r.argTypes(e)); k != "" {
				return kinds{k: true}
			}
		}
	}
	return nil
}

func (r *raiser) argTypes(e *ir.Expr) []*ir.Type {
	out := make([]*ir.Type, len(e.Args))
	for i, a := range e.Args {
		out[i] = r.m.TypeOf(a)
	}
	return out
}

// markBlock marks the statements of body, tracking enclosing handlers
// the way block does.
func (r *raiser) markBlock(body []ir.StmtID) {
	for _, id := range body {
		s := r.m.Stmt(id)
		if s == nil {
			continue
		}
		for _, e := range r.stmtExprs(s) {
			r.markCalls(e)
		}
		if s.Kind == ir.StmtTry {
			r.guards = append(r.guards, s.Handlers)
			r.markBlock(s.Body)
			r.guards = r.guards[:len(r.guards)-1]
			for _, h := range s.Handlers {
				r.markBlock(h.Body)
			}
			r.markBlock(s.Else)
			r.markBlock(s.Finally)
			continue
		}
		for _, b := range ir.Blocks(s) {
			r.markBlock(b)
		}
	}
}

// markCalls sets Fallible on every call in the expression that can raise
// and on every guarded fault.
func (r *raiser) markCalls(id ir.ExprID) {
	r.m.WalkExpr(id, func(_ ir.ExprID, e *ir.Expr) bool {
		e.Fallible = r.callRaises(e) != nil || r.fault(e) != ""
		return true
	})
}
