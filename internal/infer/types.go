package infer

import (
	"sort"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
)

// typer computes types for a whole module. Binding, parameter, return and
// field types only ever grow more specific, so repeated rounds settle.
type typer struct {
	m   *ir.Module
	cat *catalog.Catalog
	pol config.Policy
	bag *diag.Bag

	changed bool
	final   bool
	// annotated holds locals whose type an annotation fixes.
	annotated map[*ir.Function]map[string]bool

	f      *ir.Function
	scopes []map[string]*ir.Type
	narrow map[string]*ir.Type
	arms   map[string]*ir.Variant

	returns    []*ir.Type
	bareReturn bool
	yields     *ir.Type
}

func newTyper(m *ir.Module, cat *catalog.Catalog, pol config.Policy, bag *diag.Bag) *typer {
	return &typer{
		m:         m,
		cat:       cat,
		pol:       pol,
		bag:       bag,
		annotated: make(map[*ir.Function]map[string]bool),
	}
}

func (t *typer) run() error {
	if err := t.annotations(); err != nil {
		return err
	}
	return t.settle()
}

// annotations fixes the types of annotated locals before any value flows
// into them.
func (t *typer) annotations() error {
	for _, f := range t.m.Functions {
		fixed := make(map[string]bool)
		var err error
		t.m.WalkStmts(f.Body, func(_ ir.StmtID, s *ir.Stmt) bool {
			if err != nil || s.Kind != ir.StmtAssign || s.Annot == nil {
				return err == nil
			}
			x := t.m.Expr(s.Target)
			if x == nil || x.Kind != ir.ExprVar {
				return true
			}
			b := f.Bindings[x.Name]
			switch {
			case b == nil:
			case b.Param:
				p := f.Param(b.Name)
				if p.Annotated && !p.Type.Equal(s.Annot) {
					err = conflict(s.Pos, b.Name, p.Type, s.Annot)
				}
			case fixed[b.Name] && !b.Type.Equal(s.Annot):
				err = conflict(s.Pos, b.Name, b.Type, s.Annot)
			default:
				b.Type = s.Annot
				fixed[b.Name] = true
			}
			return err == nil
		})
		if err != nil {
			return err
		}
		t.annotated[f] = fixed
	}
	return nil
}

func (t *typer) settle() error {
	for round := 0; round < maxRounds; round++ {
		t.changed = false
		for _, c := range t.m.Constants {
			if err := t.constant(c); err != nil {
				return err
			}
		}
		for _, f := range t.m.Functions {
			if err := t.function(f); err != nil {
				return err
			}
		}
		if !t.changed {
			return nil
		}
	}
	return diag.Internal(diag.CodeInternalInvariant, diag.Pos{}, "infer",
		"type inference did not settle after %d rounds", maxRounds)
}

// strict applies fallbacks to whatever the lenient rounds left unknown,
// settles again, and rejects anything still unresolved.
func (t *typer) strict() error {
	t.final = true
	t.fallbacks()
	if err := t.settle(); err != nil {
		return err
	}
	return t.unresolved()
}

func (t *typer) constant(c *ir.Constant) error {
	t.enter(nil)
	vt, err := t.expr(c.Value, c.Annot)
	if err != nil {
		return err
	}
	typ := vt
	if c.Annot != nil {
		if !assignable(vt, c.Annot) {
			return conflict(c.Pos, c.Name, c.Annot, vt)
		}
		typ = c.Annot
	}
	if !typ.Equal(c.Type) {
		c.Type = typ
		t.changed = true
	}
	return nil
}

func (t *typer) enter(f *ir.Function) {
	t.f = f
	t.scopes = nil
	t.narrow = make(map[string]*ir.Type)
	t.arms = make(map[string]*ir.Variant)
	t.returns = nil
	t.bareReturn = false
	t.yields = ir.Unknown
}

func (t *typer) function(f *ir.Function) error {
	t.enter(f)
	defer t.enter(nil)
	for _, p := range f.Params {
		if p.Default == ir.NoExpr {
			continue
		}
		dt, err := t.expr(p.Default, p.Type)
		if err != nil {
			return err
		}
		if err := t.flow(f, p, dt, p.Pos); err != nil {
			return err
		}
	}
	if err := t.block(f.Body); err != nil {
		return err
	}
	switch {
	case f.Generator:
		ret := ir.SeqOf(t.yields)
		if f.ReturnAnnotated {
			j, ok := ir.Join(f.Return, ret)
			if !ok {
				return diag.Inference(diag.CodeInferConflict, f.Pos, f.Name,
					"generator %s yields %s but is annotated %s", f.Name, t.yields, f.Return)
			}
			ret = j
		}
		t.setReturn(f, ret)
	case !f.ReturnAnnotated:
		t.setReturn(f, t.returnType(!t.m.Terminates(f.Body)))
	}
	return nil
}

func (t *typer) setReturn(f *ir.Function, ret *ir.Type) {
	if !ret.Equal(f.Return) {
		f.Return = ret
		t.changed = true
	}
}

// returnType merges the types of every reachable return. None mixed with
// one type T gives Optional[T]; any other mix is the dynamic tagged value,
// never a widened numeric type.
func (t *typer) returnType(fallsThrough bool) *ir.Type {
	var out *ir.Type
	none := fallsThrough || t.bareReturn
	unknown := false
	for _, r := range t.returns {
		switch {
		case r.IsNone() || r.Kind == ir.KindUnit:
			none = true
		case r.IsUnknown():
			unknown = true
		case out == nil:
			out = r
		default:
			j, ok := ir.Join(out, r)
			if !ok {
				return ir.Dyn
			}
			out = j
		}
	}
	if out == nil {
		if unknown {
			return ir.Unknown
		}
		return ir.Unit
	}
	if none && out.Kind != ir.KindOptional && out.Kind != ir.KindDyn {
		out = ir.OptionalOf(out)
	}
	return out
}

func (t *typer) block(body []ir.StmtID) error {
	for _, id := range body {
		if err := t.stmt(t.m.Stmt(id)); err != nil {
			return err
		}
	}
	return nil
}

func (t *typer) stmt(s *ir.Stmt) error {
	switch s.Kind {
	case ir.StmtAssign:
		want := s.Annot
		if want == nil {
			want = t.targetWant(s.Target)
		}
		vt, err := t.expr(s.Value, want)
		if err != nil {
			return err
		}
		return t.assign(s.Target, vt, s.Pos)

	case ir.StmtAugAssign:
		tt, err := t.expr(s.Target, nil)
		if err != nil {
			return err
		}
		vt, err := t.expr(s.Value, known(tt))
		if err != nil {
			return err
		}
		rt, err := arith(s.Op, tt, vt, s.Pos)
		if err != nil {
			return err
		}
		return t.assign(s.Target, rt, s.Pos)

	case ir.StmtIf:
		if _, err := t.expr(s.Cond, nil); err != nil {
			return err
		}
		name, whenTrue, ok := t.noneTest(s.Cond)
		saved := cloneTypes(t.narrow)
		if ok && whenTrue {
			t.narrowTo(name)
		}
		if err := t.block(s.Body); err != nil {
			return err
		}
		t.narrow = cloneTypes(saved)
		if ok && !whenTrue {
			t.narrowTo(name)
		}
		if err := t.block(s.Else); err != nil {
			return err
		}
		t.narrow = saved
		// An early exit on None proves the rest of the block non-None.
		switch {
		case ok && !whenTrue && len(s.Else) == 0 && t.m.Terminates(s.Body):
			t.narrowTo(name)
		case ok && whenTrue && len(s.Else) > 0 && t.m.Terminates(s.Else):
			t.narrowTo(name)
		}
		t.unnarrow(s.Body, s.Else)
		return nil

	case ir.StmtWhile:
		t.unnarrow(s.Body)
		if _, err := t.expr(s.Cond, nil); err != nil {
			return err
		}
		return t.block(s.Body)

	case ir.StmtLoop:
		t.unnarrow(s.Body)
		return t.block(s.Body)

	case ir.StmtFor:
		it, err := t.expr(s.Value, nil)
		if err != nil {
			return err
		}
		elem, err := iterElem(it, s.Pos)
		if err != nil {
			return err
		}
		t.unnarrow(s.Body)
		if err := t.assign(s.Target, elem, s.Pos); err != nil {
			return err
		}
		return t.block(s.Body)

	case ir.StmtTry:
		saved := cloneTypes(t.narrow)
		if err := t.block(s.Body); err != nil {
			return err
		}
		for _, h := range s.Handlers {
			t.narrow = cloneTypes(saved)
			t.unnarrow(s.Body)
			if h.Name != "" {
				if err := t.store(t.f, t.f.Bindings[h.Name], ir.Exception, h.Pos); err != nil {
					return err
				}
			}
			if err := t.block(h.Body); err != nil {
				return err
			}
		}
		t.narrow = saved
		if len(s.Handlers) > 0 {
			t.unnarrow(s.Body)
		}
		if err := t.block(s.Else); err != nil {
			return err
		}
		if err := t.block(s.Finally); err != nil {
			return err
		}
		for _, h := range s.Handlers {
			t.unnarrow(h.Body)
		}
		return nil

	case ir.StmtReturn:
		if s.Value == ir.NoExpr {
			t.bareReturn = true
			return nil
		}
		vt, err := t.expr(s.Value, known(t.f.Return))
		if err != nil {
			return err
		}
		if t.f.ReturnAnnotated && !assignable(vt, t.f.Return) {
			return diag.Inference(diag.CodeInferConflict, s.Pos, "return",
				"%s returns %s but is annotated %s", t.f.Name, vt, t.f.Return)
		}
		t.returns = append(t.returns, vt)
		return nil

	case ir.StmtRaise:
		if s.Value == ir.NoExpr {
			return nil
		}
		vt, err := t.expr(s.Value, ir.Exception)
		if err != nil {
			return err
		}
		if vt.Known() && !vt.Equal(ir.Exception) {
			return diag.Inference(diag.CodeInferConflict, s.Pos, "raise",
				"raise of a %s value; only exceptions can be raised", vt)
		}
		return nil

	case ir.StmtExpr:
		_, err := t.expr(s.Value, nil)
		return err

	case ir.StmtDel:
		for _, id := range s.Targets {
			if _, err := t.expr(id, nil); err != nil {
				return err
			}
			if e := t.m.Expr(id); e.Kind == ir.ExprSubscript {
				t.mutate(e.X)
			}
		}
		return nil

	case ir.StmtMatch:
		return t.match(s)

	case ir.StmtLetElse:
		var want *ir.Type
		if x := t.m.Expr(s.Target); x.Kind == ir.ExprVar {
			if b := t.f.Bindings[x.Name]; b != nil && b.Type.Known() {
				want = ir.OptionalOf(b.Type)
			}
		}
		vt, err := t.expr(s.Value, want)
		if err != nil {
			return err
		}
		bound := vt
		if vt.Kind == ir.KindOptional {
			bound = vt.Elem
		}
		return t.assign(s.Target, bound, s.Pos)

	case ir.StmtAssert:
		if _, err := t.expr(s.Cond, nil); err != nil {
			return err
		}
		_, err := t.expr(s.Value, nil)
		return err

	case ir.StmtYield:
		var want *ir.Type
		if t.f.Return.Kind == ir.KindSeq {
			want = known(t.f.Return.Elem)
		}
		vt, err := t.expr(s.Value, want)
		if err != nil {
			return err
		}
		j, ok := ir.JoinNumeric(t.yields, vt)
		if !ok {
			return diag.Inference(diag.CodeInferConflict, s.Pos, "yield",
				"generator %s yields both %s and %s", t.f.Name, t.yields, vt)
		}
		t.yields = j
		return nil

	case ir.StmtPass, ir.StmtBreak, ir.StmtContinue:
		return nil
	}
	return diag.Internal(diag.CodeInternalInvariant, s.Pos, s.Kind.String(),
		"typing reached a %s statement", s.Kind)
}

func (t *typer) match(s *ir.Stmt) error {
	if _, err := t.expr(s.Match.Subject, nil); err != nil {
		return err
	}
	subject := t.m.Expr(s.Match.Subject)
	u := t.m.Union(s.Match.Union)
	if u == nil || subject.Kind != ir.ExprVar {
		return diag.Internal(diag.CodeInternalInvariant, s.Pos, "match",
			"match over unknown union %q", s.Match.Union)
	}
	saved := cloneTypes(t.narrow)
	outer := t.arms[subject.Name]
	defer func() {
		if outer == nil {
			delete(t.arms, subject.Name)
		} else {
			t.arms[subject.Name] = outer
		}
	}()
	var bodies [][]ir.StmtID
	for _, arm := range s.Match.Arms {
		v := u.Variant(arm.Variant)
		if v == nil {
			return diag.Internal(diag.CodeInternalInvariant, s.Pos, "match",
				"union %s has no variant %s", u.Name, arm.Variant)
		}
		t.arms[subject.Name] = v
		t.narrow = cloneTypes(saved)
		if err := t.block(arm.Body); err != nil {
			return err
		}
		bodies = append(bodies, arm.Body)
	}
	delete(t.arms, subject.Name)
	t.narrow = cloneTypes(saved)
	if err := t.block(s.Match.Default); err != nil {
		return err
	}
	t.narrow = saved
	t.unnarrow(append(bodies, s.Match.Default)...)
	return nil
}

// targetWant is the type an assignment target already has, used to type
// empty literals and None on the value side.
func (t *typer) targetWant(id ir.ExprID) *ir.Type {
	e := t.m.Expr(id)
	if e == nil || t.f == nil {
		return nil
	}
	switch e.Kind {
	case ir.ExprVar:
		if b := t.f.Bindings[e.Name]; b != nil && !b.Type.IsUnknown() {
			return b.Type
		}
	case ir.ExprTuple:
		items := make([]*ir.Type, len(e.Args))
		for i, a := range e.Args {
			items[i] = t.targetWant(a)
			if items[i] == nil {
				items[i] = ir.Unknown
			}
		}
		return ir.TupleOf(items...)
	case ir.ExprSubscript:
		switch xt := t.m.TypeOf(e.X); xt.Kind {
		case ir.KindSeq, ir.KindMap:
			return known(xt.Elem)
		}
	}
	return nil
}

// assign stores a value of type vt into a target.
func (t *typer) assign(id ir.ExprID, vt *ir.Type, p diag.Pos) error {
	e := t.m.Expr(id)
	switch e.Kind {
	case ir.ExprVar:
		b := t.f.Bindings[e.Name]
		if b == nil {
			return diag.Internal(diag.CodeInternalInvariant, e.Pos, e.Name,
				"assignment to %q has no binding", e.Name)
		}
		if err := t.store(t.f, b, vt, e.Pos); err != nil {
			return err
		}
		delete(t.narrow, e.Name)
		e.Type = b.Type
		return nil

	case ir.ExprTuple:
		items, err := destructure(vt, len(e.Args), e.Pos)
		if err != nil {
			return err
		}
		got := make([]*ir.Type, len(e.Args))
		for i, a := range e.Args {
			if err := t.assign(a, items[i], p); err != nil {
				return err
			}
			got[i] = t.m.TypeOf(a)
		}
		e.Type = ir.TupleOf(got...)
		return nil

	case ir.ExprSubscript:
		xt, err := t.expr(e.X, nil)
		if err != nil {
			return err
		}
		t.mutate(e.X)
		switch xt.Kind {
		case ir.KindSeq:
			if _, err := t.expr(e.Y, ir.Int); err != nil {
				return err
			}
			t.refine(e.X, ir.SeqOf(vt))
		case ir.KindMap:
			kt, err := t.expr(e.Y, known(xt.Key))
			if err != nil {
				return err
			}
			t.refine(e.X, ir.MapOf(kt, vt))
		case ir.KindUnknown:
			if _, err := t.expr(e.Y, nil); err != nil {
				return err
			}
			e.Type = vt
			return nil
		default:
			return diag.Inference(diag.CodeInferConflict, e.Pos, "subscript",
				"%s does not support item assignment", xt)
		}
		elem := t.m.TypeOf(e.X).Elem
		if !assignable(vt, elem) {
			return diag.Inference(diag.CodeInferConflict, e.Pos, "subscript",
				"cannot store %s into %s", vt, t.m.TypeOf(e.X))
		}
		e.Type = elem
		return nil
	}
	return diag.Internal(diag.CodeInternalInvariant, e.Pos, e.Kind.String(),
		"invalid assignment target")
}

// store joins a value type into a binding. Annotated bindings only accept
// assignable values; the rest widen numerically.
func (t *typer) store(f *ir.Function, b *ir.Binding, vt *ir.Type, p diag.Pos) error {
	if t.fixed(f, b) {
		if !assignable(vt, b.Type) {
			return conflict(p, b.Name, b.Type, vt)
		}
		if !b.Type.Known() {
			if j, ok := ir.Join(b.Type, vt); ok && j.Kind == b.Type.Kind {
				t.setBinding(f, b, j)
			}
		}
		return nil
	}
	j, ok := ir.JoinNumeric(b.Type, vt)
	if !ok {
		if assignable(vt, b.Type) {
			return nil
		}
		return conflict(p, b.Name, b.Type, vt)
	}
	t.setBinding(f, b, j)
	return nil
}

// flow records an argument reaching parameter p of f.
func (t *typer) flow(f *ir.Function, p *ir.Param, at *ir.Type, pos diag.Pos) error {
	b := f.Bindings[p.Name]
	if b == nil {
		return diag.Internal(diag.CodeInternalInvariant, pos, p.Name,
			"parameter %q of %s has no binding", p.Name, f.Name)
	}
	if err := t.store(f, b, at, pos); err != nil {
		return diag.Inference(diag.CodeInferConflict, pos, f.Name,
			"argument %q of %s: %s is not %s", p.Name, f.Name, at, b.Type)
	}
	return nil
}

func (t *typer) fixed(f *ir.Function, b *ir.Binding) bool {
	if b.Param {
		return f.Param(b.Name).Annotated
	}
	return t.annotated[f][b.Name]
}

func (t *typer) setBinding(f *ir.Function, b *ir.Binding, typ *ir.Type) {
	if typ.Equal(b.Type) {
		return
	}
	b.Type = typ
	if b.Param {
		f.Param(b.Name).Type = typ
	}
	t.changed = true
}

// refine fills unknown parts of a binding or field from later evidence,
// such as elements appended to an empty list.
func (t *typer) refine(id ir.ExprID, typ *ir.Type) {
	e := t.m.Expr(id)
	if e == nil {
		return
	}
	switch e.Kind {
	case ir.ExprVar:
		b := t.binding(e.Name)
		if b == nil || b.Type.Known() {
			return
		}
		if j, ok := ir.Join(b.Type, typ); ok {
			t.setBinding(t.f, b, j)
			e.Type = j
		}
	case ir.ExprAttr:
		if fd := t.field(e); fd != nil && !fd.Type.Known() {
			if j, ok := ir.Join(fd.Type, typ); ok && !j.Equal(fd.Type) {
				fd.Type = j
				t.changed = true
			}
		}
	}
}

// mutate marks the binding at the root of a place expression as changed
// in place.
func (t *typer) mutate(id ir.ExprID) {
	for e := t.m.Expr(id); e != nil; e = t.m.Expr(e.X) {
		switch e.Kind {
		case ir.ExprVar:
			if b := t.binding(e.Name); b != nil {
				b.Mutated = true
			}
			return
		case ir.ExprSubscript:
			continue
		}
		return
	}
}

// binding resolves a function-scope name not shadowed by a comprehension
// or lambda.
func (t *typer) binding(n string) *ir.Binding {
	if t.f == nil {
		return nil
	}
	if _, ok := t.scoped(n); ok {
		return nil
	}
	return t.f.Bindings[n]
}

func (t *typer) scoped(n string) (*ir.Type, bool) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if typ, ok := t.scopes[i][n]; ok {
			return typ, true
		}
	}
	return nil, false
}

func (t *typer) setScoped(n string, typ *ir.Type) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if _, ok := t.scopes[i][n]; ok {
			t.scopes[i][n] = typ
			return
		}
	}
}

// noneTest recognizes a condition that proves a binding non-None when it
// is true (whenTrue) or when it is false.
func (t *typer) noneTest(cond ir.ExprID) (name string, whenTrue, ok bool) {
	e := t.m.Expr(cond)
	if e == nil {
		return "", false, false
	}
	optional := func(id ir.ExprID) (string, bool) {
		v := t.m.Expr(id)
		if v == nil || v.Kind != ir.ExprVar {
			return "", false
		}
		if b := t.binding(v.Name); b != nil && b.Type.Kind == ir.KindOptional {
			return v.Name, true
		}
		return "", false
	}
	switch e.Kind {
	case ir.ExprBinary:
		if e.Op != ir.OpIs && e.Op != ir.OpIsNot {
			return "", false, false
		}
		x, y := e.X, e.Y
		if isNoneLit(t.m, x) {
			x, y = y, x
		}
		if !isNoneLit(t.m, y) {
			return "", false, false
		}
		if n, ok := optional(x); ok {
			return n, e.Op == ir.OpIsNot, true
		}
	case ir.ExprVar:
		if n, ok := optional(cond); ok {
			return n, true, true
		}
	case ir.ExprUnary:
		if e.Op == ir.OpNot {
			if n, ok := optional(e.X); ok {
				return n, false, true
			}
		}
	}
	return "", false, false
}

func (t *typer) narrowTo(name string) {
	if b := t.binding(name); b != nil && b.Type.Kind == ir.KindOptional {
		t.narrow[name] = b.Type.Elem
	}
}

// unnarrow forgets narrowing of every name the blocks assign.
func (t *typer) unnarrow(blocks ...[]ir.StmtID) {
	for _, b := range blocks {
		for n := range assignedIn(t.m, b) {
			delete(t.narrow, n)
		}
	}
}

// assignedIn lists the names a block stores to, at any depth.
func assignedIn(m *ir.Module, body []ir.StmtID) map[string]bool {
	out := make(map[string]bool)
	m.WalkStmts(body, func(_ ir.StmtID, s *ir.Stmt) bool {
		switch s.Kind {
		case ir.StmtAssign, ir.StmtAugAssign, ir.StmtFor, ir.StmtLetElse:
			for _, n := range targetNames(m, s.Target) {
				out[n] = true
			}
		}
		for _, e := range m.StmtExprs(s) {
			m.WalkExpr(e, func(_ ir.ExprID, x *ir.Expr) bool {
				if x.Kind == ir.ExprNamed {
					out[x.Name] = true
				}
				return true
			})
		}
		return true
	})
	return out
}

func cloneTypes(in map[string]*ir.Type) map[string]*ir.Type {
	out := make(map[string]*ir.Type, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// known returns t when it carries information, else nil.
func known(t *ir.Type) *ir.Type {
	if t.IsUnknown() {
		return nil
	}
	return t
}

func conflict(p diag.Pos, name string, have, got *ir.Type) error {
	return diag.Inference(diag.CodeInferConflict, p, name,
		"%q has type %s but is given %s", name, have, got)
}

// unresolved reports the first binding, signature part or expression
// still lacking a concrete type.
func (t *typer) unresolved() error {
	for _, c := range t.m.Constants {
		if !c.Type.Known() {
			return diag.Inference(diag.CodeInferUnresolved, c.Pos, c.Name,
				"type of constant %q could not be inferred (got %s)", c.Name, c.Type)
		}
		if err := t.unresolvedExprs(c.Value); err != nil {
			return err
		}
	}
	for _, f := range t.m.Functions {
		for _, p := range f.Params {
			if !p.Type.Known() {
				return diag.Inference(diag.CodeInferUnresolved, p.Pos, p.Name,
					"type of parameter %q of %s could not be inferred (got %s); annotate it or call %s from this unit",
					p.Name, f.Name, p.Type, f.Name)
			}
		}
		for _, b := range ir.SortedBindings(f) {
			if !b.Type.Known() {
				return diag.Inference(diag.CodeInferUnresolved, f.Pos, b.Name,
					"type of local %q in %s could not be inferred (got %s)", b.Name, f.Name, b.Type)
			}
		}
		if !f.Return.Known() {
			return diag.Inference(diag.CodeInferUnresolved, f.Pos, f.Name,
				"return type of %s could not be inferred (got %s)", f.Name, f.Return)
		}
		for _, p := range f.Params {
			if err := t.unresolvedExprs(p.Default); err != nil {
				return err
			}
		}
		var err error
		t.m.WalkStmts(f.Body, func(_ ir.StmtID, s *ir.Stmt) bool {
			for _, e := range t.m.StmtExprs(s) {
				if err = t.unresolvedExprs(e); err != nil {
					return false
				}
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *typer) unresolvedExprs(id ir.ExprID) error {
	var err error
	t.m.WalkExpr(id, func(_ ir.ExprID, e *ir.Expr) bool {
		if err != nil {
			return false
		}
		if !e.Type.Known() {
			err = diag.Inference(diag.CodeInferUnresolved, e.Pos, e.Kind.String(),
				"type of %s expression could not be inferred (got %s)", e.Kind, e.Type)
			return false
		}
		return true
	})
	return err
}

// fallbacks runs once before the strict round. Payload fields nothing
// constrains carry the dynamic tagged value, as do the element holes of
// containers nothing filled (a bare `dict` annotation, a returned `{}`);
// wholly unknown parameters and
// locals get a name-based guess only when the policy enables it.
func (t *typer) fallbacks() {
	for _, u := range t.m.Unions {
		for _, v := range u.Variants {
			for _, fd := range v.Fields {
				if fd.Type.IsUnknown() {
					fd.Type = ir.Dyn
				}
			}
		}
	}
	t.fillHoles()
	if !t.pol.NameHeuristics {
		return
	}
	for _, f := range t.m.Functions {
		names := make([]string, 0, len(f.Bindings))
		for n := range f.Bindings {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			b := f.Bindings[n]
			if !b.Type.IsUnknown() {
				continue
			}
			guess, rule, ok := guessByName(n)
			if !ok {
				continue
			}
			t.setBinding(f, b, guess)
			t.bag.Warn(diag.KindInference, diag.CodeInferFallback, f.Pos, n,
				"type of %q in %s guessed as %s from its name (%s)", n, f.Name, guess, rule)
		}
	}
}

// fillHoles resolves the element types no round constrained in
// signatures, constants and locals.
func (t *typer) fillHoles() {
	for _, c := range t.m.Constants {
		if c.Annot != nil {
			c.Annot = ir.FillHoles(c.Annot)
		}
		if filled := ir.FillHoles(c.Type); !filled.Equal(c.Type) {
			c.Type = filled
			t.changed = true
		}
	}
	for _, f := range t.m.Functions {
		for _, p := range f.Params {
			p.Type = ir.FillHoles(p.Type)
		}
		for _, b := range ir.SortedBindings(f) {
			if filled := ir.FillHoles(b.Type); !filled.Equal(b.Type) {
				t.setBinding(f, b, filled)
			}
		}
		t.setReturn(f, ir.FillHoles(f.Return))
	}
}
