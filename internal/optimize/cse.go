package optimize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
)

// minCost is the smallest subterm worth a temporary: one call, or two
// operators.
const minCost = 2

// cse hoists repeated subterms of a single statement. Only terms that
// cannot fail, abort or write are candidates, and only when the statement
// writes nothing, so computing the term once before the statement gives
// every use the same value. Candidates have copy types: the temporary is
// read by copy at each use and needs no ownership decision.
type cse struct {
	m   *ir.Module
	f   *ir.Function
	eff *effects

	n       int
	hoisted int
}

// occurrence is one use of a candidate term. want is the type its
// position expects, which a conversion restores after extraction.
type occurrence struct {
	id   ir.ExprID
	want *ir.Type
	cond bool
}

type candidate struct {
	key  string
	cost int
	occs []occurrence
}

// root is an expression a statement evaluates exactly once.
type root struct {
	id   ir.ExprID
	want *ir.Type
	cond bool
}

func (c *cse) block(body []ir.StmtID) []ir.StmtID {
	var out []ir.StmtID
	for _, id := range body {
		s := c.m.Stmt(id)
		rewriteBlocks(s, c.block)
		out = append(out, c.statement(s)...)
		out = append(out, id)
	}
	return out
}

// statement returns the temporaries to evaluate before s.
func (c *cse) statement(s *ir.Stmt) []ir.StmtID {
	roots := c.roots(s)
	for _, r := range roots {
		if c.eff.writes(r.id) {
			return nil
		}
	}
	var pre []ir.StmtID
	for {
		best := c.best(roots)
		if best == nil {
			return pre
		}
		pre = append(pre, c.hoist(s.Pos, best))
	}
}

// roots lists the expressions s evaluates once, with the type each
// position expects. Loop conditions are evaluated per iteration and are
// never roots.
func (c *cse) roots(s *ir.Stmt) []root {
	own := func(id ir.ExprID) root { return root{id: id, want: c.m.TypeOf(id)} }
	switch s.Kind {
	case ir.StmtAssign:
		r := own(s.Value)
		if t := c.m.Expr(s.Target); t.Kind == ir.ExprVar {
			if b := c.f.Binding(t.Name); b != nil {
				r.want = b.Type
			}
		}
		return []root{r}
	case ir.StmtReturn:
		if s.Value == ir.NoExpr {
			return nil
		}
		r := own(s.Value)
		if !c.f.Generator {
			r.want = c.f.Return
		}
		return []root{r}
	case ir.StmtYield:
		r := own(s.Value)
		if c.f.Return.Kind == ir.KindSeq {
			r.want = c.f.Return.Elem
		}
		return []root{r}
	case ir.StmtAugAssign, ir.StmtExpr, ir.StmtRaise, ir.StmtFor:
		if s.Value == ir.NoExpr {
			return nil
		}
		return []root{own(s.Value)}
	case ir.StmtIf:
		return []root{own(s.Cond)}
	case ir.StmtMatch:
		return []root{own(s.Match.Subject)}
	case ir.StmtAssert:
		out := []root{own(s.Cond)}
		if s.Value != ir.NoExpr {
			msg := own(s.Value)
			msg.cond = true
			out = append(out, msg)
		}
		return out
	}
	return nil
}

// best returns the costliest term that occurs at least twice, at least
// once unconditionally, or nil.
func (c *cse) best(roots []root) *candidate {
	byKey := make(map[string]*candidate)
	var order []*candidate
	for _, r := range roots {
		c.collect(r.id, r.want, r.cond, func(key string, cost int, o occurrence) {
			cd := byKey[key]
			if cd == nil {
				cd = &candidate{key: key, cost: cost}
				byKey[key] = cd
				order = append(order, cd)
			}
			cd.occs = append(cd.occs, o)
		})
	}
	var best *candidate
	for _, cd := range order {
		if len(cd.occs) < 2 || !anyUnconditional(cd.occs) {
			continue
		}
		if best == nil || cd.cost > best.cost {
			best = cd
		}
	}
	return best
}

func anyUnconditional(occs []occurrence) bool {
	for _, o := range occs {
		if !o.cond {
			return true
		}
	}
	return false
}

// collect reports every candidate under id. Comprehensions and lambdas
// are not entered: their bodies run per element.
func (c *cse) collect(id ir.ExprID, want *ir.Type, cond bool, report func(string, int, occurrence)) {
	e := c.m.Expr(id)
	if e == nil {
		return
	}
	if want == nil || !want.Known() {
		want = e.Type
	}
	if key, cost, ok := c.sig(id); ok && cost >= minCost && e.Type.Known() && e.Type.IsCopy() {
		report(key, cost, occurrence{id: id, want: want, cond: cond})
	}
	switch e.Kind {
	case ir.ExprComp, ir.ExprLambda:
		return
	case ir.ExprBoolOp:
		for i, a := range e.Args {
			c.collect(a, e.Type, cond || i > 0, report)
		}
	case ir.ExprIfExp:
		c.collect(e.X, ir.Bool, cond, report)
		c.collect(e.Y, e.Type, true, report)
		c.collect(e.Z, e.Type, true, report)
	case ir.ExprBinary:
		xw, yw := c.m.TypeOf(e.X), c.m.TypeOf(e.Y)
		if e.Op.IsArith() && e.Type.Kind == ir.KindFloat || e.Op.IsCompare() && (xw.Kind == ir.KindFloat || yw.Kind == ir.KindFloat) {
			if xw.IsNumeric() && yw.IsNumeric() {
				xw, yw = ir.Float, ir.Float
			}
		}
		c.collect(e.X, xw, cond, report)
		c.collect(e.Y, yw, cond, report)
	case ir.ExprCall:
		for i, a := range e.Args {
			c.collect(a, c.argWant(e, i, ""), cond, report)
		}
		for _, kw := range e.Kwargs {
			c.collect(kw.Value, c.argWant(e, -1, kw.Name), cond, report)
		}
	case ir.ExprList, ir.ExprSet:
		for _, a := range e.Args {
			c.collect(a, e.Type.Elem, cond, report)
		}
	case ir.ExprTuple:
		for i, a := range e.Args {
			var w *ir.Type
			if i < len(e.Type.Items) {
				w = e.Type.Items[i]
			}
			c.collect(a, w, cond, report)
		}
	case ir.ExprDict:
		for i := range e.Args {
			c.collect(e.Keys[i], e.Type.Key, cond, report)
			c.collect(e.Args[i], e.Type.Elem, cond, report)
		}
	default:
		for _, ch := range c.m.ExprChildren(id) {
			c.collect(ch, nil, cond, report)
		}
	}
}

// argWant is the declared type of a local callee's parameter, or nil.
func (c *cse) argWant(e *ir.Expr, i int, kw string) *ir.Type {
	if e.Callee.Kind != ir.CallLocal {
		return nil
	}
	g := c.m.Func(e.Callee.Symbol)
	if g == nil {
		return nil
	}
	if kw != "" {
		if p := g.Param(kw); p != nil {
			return p.Type
		}
		return nil
	}
	if i < len(g.Params) && !g.Params[i].Vararg {
		return g.Params[i].Type
	}
	if n := len(g.Params); n > 0 && g.Params[n-1].Vararg {
		return g.Params[n-1].Type.Elem
	}
	return nil
}

// sig returns a structural key for a hoistable term and its cost.
func (c *cse) sig(id ir.ExprID) (string, int, bool) {
	e := c.m.Expr(id)
	if e == nil {
		return "", 0, false
	}
	switch e.Kind {
	case ir.ExprLit:
		return fmt.Sprintf("lit%d:%d:%g:%q:%t", e.Lit.Kind, e.Lit.Int, e.Lit.Float, e.Lit.Str, e.Lit.Bool), 0, true
	case ir.ExprVar:
		return "var:" + e.Name, 0, true
	case ir.ExprConst:
		return "const:" + e.Callee.Library + "." + e.Callee.Symbol + ":" + e.Name, 0, true
	case ir.ExprAttr:
		x, cost, ok := c.sig(e.X)
		return x + "." + e.Name, cost, ok
	case ir.ExprUnary, ir.ExprTruthy:
		x, cost, ok := c.sig(e.X)
		return e.Kind.String() + e.Op.String() + "(" + x + ")", cost + 1, ok
	case ir.ExprCast:
		x, cost, ok := c.sig(e.X)
		return "cast<" + e.Type.String() + ">(" + x + ")", cost, ok
	case ir.ExprBinary:
		if mayAbort(c.m, e) {
			return "", 0, false
		}
		args, cost, ok := c.sigs(e.X, e.Y)
		return "(" + args + " " + strconv.Itoa(int(e.Op)) + ")", cost + 1, ok
	case ir.ExprBoolOp:
		args, cost, ok := c.sigs(e.Args...)
		return e.Op.String() + "(" + args + ")", cost + 1, ok
	case ir.ExprIfExp:
		args, cost, ok := c.sigs(e.X, e.Y, e.Z)
		return "ifexp(" + args + ")", cost + 1, ok
	case ir.ExprCall:
		if e.Fallible || e.Callee.Kind != ir.CallIntrinsic {
			return "", 0, false
		}
		spec, ok := intrinsic.Builtin(e.Callee.Symbol)
		if !ok || !spec.Pure() {
			return "", 0, false
		}
		args, cost, ok := c.sigs(e.Args...)
		kws, kcost, kok := c.kwargSigs(e.Kwargs)
		return e.Callee.Symbol + "(" + args + ";" + kws + ")", cost + kcost + 2, ok && kok
	case ir.ExprMethodCall:
		if e.Fallible {
			return "", 0, false
		}
		spec, ok := intrinsic.Method(c.m.TypeOf(e.X), e.Name)
		if !ok || !spec.Pure() {
			return "", 0, false
		}
		recv, rcost, rok := c.sig(e.X)
		args, cost, ok := c.sigs(e.Args...)
		kws, kcost, kok := c.kwargSigs(e.Kwargs)
		return recv + "." + e.Name + "(" + args + ";" + kws + ")", rcost + cost + kcost + 2, rok && ok && kok
	}
	return "", 0, false
}

func (c *cse) sigs(ids ...ir.ExprID) (string, int, bool) {
	parts := make([]string, len(ids))
	total := 0
	for i, id := range ids {
		s, cost, ok := c.sig(id)
		if !ok {
			return "", 0, false
		}
		parts[i] = s
		total += cost
	}
	return strings.Join(parts, ","), total, true
}

func (c *cse) kwargSigs(kws []ir.Keyword) (string, int, bool) {
	parts := make([]string, len(kws))
	total := 0
	for i, kw := range kws {
		s, cost, ok := c.sig(kw.Value)
		if !ok {
			return "", 0, false
		}
		parts[i] = kw.Name + "=" + s
		total += cost
	}
	return strings.Join(parts, ","), total, true
}

// hoist binds the candidate's first occurrence to a fresh temporary and
// replaces every occurrence with a read of it, converted where the use
// expected another type.
func (c *cse) hoist(p diag.Pos, cd *candidate) ir.StmtID {
	first := c.m.Expr(cd.occs[0].id)
	typ := first.Type
	name := c.temp()
	value := c.m.NewExpr(*first)
	target := c.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: name, Type: typ})
	c.f.Bindings[name] = &ir.Binding{Name: name, Type: typ, Own: ir.Owned}
	for _, o := range cd.occs {
		e := c.m.Expr(o.id)
		read := ir.Expr{Kind: ir.ExprVar, Pos: e.Pos, Name: name, Type: typ, Use: ir.UseCopy}
		if !converts(typ, o.want) {
			*e = read
			continue
		}
		*e = ir.Expr{Kind: ir.ExprCast, Pos: read.Pos, Type: o.want, X: c.m.NewExpr(read)}
	}
	c.hoisted++
	return c.m.NewStmt(ir.Stmt{Kind: ir.StmtAssign, Pos: p, Target: target, Value: value, Declares: true})
}

// converts reports whether a use expecting to needs an explicit
// conversion from the temporary's type.
func converts(from, to *ir.Type) bool {
	if to == nil || !to.Known() || to.Equal(from) {
		return false
	}
	switch to.Kind {
	case ir.KindFloat:
		return from.Kind == ir.KindInt
	case ir.KindOptional:
		return to.Elem.Equal(from)
	case ir.KindDyn:
		return true
	}
	return false
}

// temp returns an unused local name.
func (c *cse) temp() string {
	for {
		c.n++
		name := fmt.Sprintf("_cse%d", c.n)
		if c.f.Binding(name) == nil {
			return name
		}
	}
}
