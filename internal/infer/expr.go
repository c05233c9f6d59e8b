package infer

import (
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
)

// expr types one expression. want is the type the context expects, or nil;
// it only ever fills unknown parts and never overrides evidence.
func (t *typer) expr(id ir.ExprID, want *ir.Type) (*ir.Type, error) {
	if id == ir.NoExpr {
		return ir.Unit, nil
	}
	e := t.m.Expr(id)
	typ, err := t.exprType(e, known(want))
	if err != nil {
		return nil, err
	}
	if typ == nil {
		typ = ir.Unknown
	}
	e.Type = typ
	return typ, nil
}

func (t *typer) exprType(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	switch e.Kind {
	case ir.ExprLit:
		return t.literal(e, want), nil

	case ir.ExprVar:
		return t.name(e, want)

	case ir.ExprConst:
		if e.Callee.Kind == ir.CallOpaque {
			return ir.Dyn, nil
		}
		c, ok := t.cat.LookupConst(e.Callee.Library, e.Callee.Symbol)
		if !ok {
			return nil, diag.CatalogMiss(e.Pos, e.Callee.Library, e.Callee.Symbol)
		}
		return t.catalogType(e.Callee.Library+"."+e.Callee.Symbol, c.Type, e.Pos)

	case ir.ExprAttr:
		if _, err := t.expr(e.X, nil); err != nil {
			return nil, err
		}
		fd := t.field(e)
		if fd == nil {
			return nil, diag.Internal(diag.CodeInternalInvariant, e.Pos, "."+e.Name,
				"payload field read outside a dispatch arm")
		}
		if want != nil && !fd.Type.Known() {
			if j, ok := ir.Join(fd.Type, want); ok && !j.Equal(fd.Type) {
				fd.Type = j
				t.changed = true
			}
		}
		return fd.Type, nil

	case ir.ExprSubscript:
		return t.subscript(e)

	case ir.ExprSlice:
		xt, err := t.expr(e.X, nil)
		if err != nil {
			return nil, err
		}
		for _, b := range []ir.ExprID{e.Y, e.Z} {
			if b == ir.NoExpr {
				continue
			}
			if bt, err := t.expr(b, ir.Int); err != nil {
				return nil, err
			} else if bt.Known() && bt.Kind != ir.KindInt {
				return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "slice",
					"slice bound of type %s", bt)
			}
		}
		switch xt.Kind {
		case ir.KindSeq, ir.KindStr, ir.KindUnknown:
			return xt, nil
		}
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "slice",
			"%s cannot be sliced", xt)

	case ir.ExprCall:
		return t.call(e, want)

	case ir.ExprMethodCall:
		return t.method(e)

	case ir.ExprBinary:
		return t.binary(e, want)

	case ir.ExprBoolOp:
		return t.boolOp(e, want)

	case ir.ExprUnary:
		return t.unary(e, want)

	case ir.ExprDict:
		return t.dict(e, want)

	case ir.ExprList:
		return t.list(e, want)

	case ir.ExprSet:
		return t.set(e, want)

	case ir.ExprTuple:
		items := make([]*ir.Type, len(e.Args))
		for i, a := range e.Args {
			var w *ir.Type
			if want != nil && want.Kind == ir.KindTuple && len(want.Items) == len(e.Args) {
				w = want.Items[i]
			}
			it, err := t.expr(a, w)
			if err != nil {
				return nil, err
			}
			items[i] = it
		}
		return ir.TupleOf(items...), nil

	case ir.ExprComp:
		return t.comp(e, want)

	case ir.ExprLambda:
		return t.lambda(e, want)

	case ir.ExprStarred:
		return t.expr(e.X, want)

	case ir.ExprNamed:
		b := t.binding(e.Name)
		if b == nil {
			return nil, diag.Internal(diag.CodeInternalInvariant, e.Pos, e.Name,
				"named expression %q has no binding", e.Name)
		}
		w := want
		if !b.Type.IsUnknown() {
			w = b.Type
		}
		xt, err := t.expr(e.X, w)
		if err != nil {
			return nil, err
		}
		if err := t.store(t.f, b, xt, e.Pos); err != nil {
			return nil, err
		}
		delete(t.narrow, e.Name)
		return xt, nil

	case ir.ExprIfExp:
		return t.ifExp(e, want)

	case ir.ExprFString:
		for _, a := range e.Args {
			if _, err := t.expr(a, nil); err != nil {
				return nil, err
			}
		}
		return ir.Str, nil

	case ir.ExprTruthy:
		if _, err := t.expr(e.X, nil); err != nil {
			return nil, err
		}
		return ir.Bool, nil

	case ir.ExprCast:
		if _, err := t.expr(e.X, nil); err != nil {
			return nil, err
		}
		return e.Type, nil
	}
	return nil, diag.Internal(diag.CodeInternalInvariant, e.Pos, e.Kind.String(),
		"typing reached a %s expression", e.Kind)
}

func (t *typer) literal(e *ir.Expr, want *ir.Type) *ir.Type {
	switch e.Lit.Kind {
	case ir.LitInt:
		return ir.Int
	case ir.LitFloat:
		return ir.Float
	case ir.LitStr:
		return ir.Str
	case ir.LitBool:
		return ir.Bool
	}
	switch {
	case want == nil:
		if t.final {
			return ir.Unit
		}
		return ir.NoneType()
	case want.Kind == ir.KindOptional, want.Kind == ir.KindDyn, want.Kind == ir.KindUnit:
		return want
	}
	return ir.NoneType()
}

func (t *typer) name(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	n := e.Name
	if typ, ok := t.scoped(n); ok {
		if want != nil && !typ.Known() {
			if j, ok := ir.Join(typ, want); ok {
				t.setScoped(n, j)
				return j, nil
			}
		}
		return typ, nil
	}
	if t.f != nil {
		if nt, ok := t.narrow[n]; ok {
			return nt, nil
		}
		if b := t.f.Bindings[n]; b != nil {
			if want != nil && !b.Type.Known() {
				if j, ok := ir.Join(b.Type, want); ok {
					t.setBinding(t.f, b, j)
				}
			}
			return b.Type, nil
		}
	}
	if c := t.m.Const(n); c != nil {
		return c.Type, nil
	}
	if g := t.m.Func(n); g != nil {
		return funcType(g), nil
	}
	return nil, diag.Inference(diag.CodeInferUndefined, e.Pos, n, "name %q is not defined", n)
}

// field resolves a payload attribute against the variant of the arm that
// encloses it.
func (t *typer) field(e *ir.Expr) *ir.Field {
	x := t.m.Expr(e.X)
	if x == nil || x.Kind != ir.ExprVar {
		return nil
	}
	v := t.arms[x.Name]
	if v == nil {
		return nil
	}
	return v.Field(e.Name)
}

func funcType(g *ir.Function) *ir.Type {
	params := make([]*ir.Type, len(g.Params))
	for i, p := range g.Params {
		params[i] = p.Type
	}
	return ir.FuncOf(g.Return, params...)
}

func (t *typer) subscript(e *ir.Expr) (*ir.Type, error) {
	xt, err := t.expr(e.X, nil)
	if err != nil {
		return nil, err
	}
	switch xt.Kind {
	case ir.KindSeq, ir.KindStr:
		if it, err := t.expr(e.Y, ir.Int); err != nil {
			return nil, err
		} else if it.Known() && it.Kind != ir.KindInt && it.Kind != ir.KindBool {
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "subscript",
				"%s index of type %s", xt, it)
		}
		if xt.Kind == ir.KindStr {
			return ir.Str, nil
		}
		return xt.Elem, nil
	case ir.KindMap:
		kt, err := t.expr(e.Y, known(xt.Key))
		if err != nil {
			return nil, err
		}
		if !assignable(kt, xt.Key) && kt.Known() && xt.Key.Known() {
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "subscript",
				"key of type %s into %s", kt, xt)
		}
		t.refine(e.X, ir.MapOf(kt, ir.Unknown))
		return xt.Elem, nil
	case ir.KindTuple:
		y := t.m.Expr(e.Y)
		if _, err := t.expr(e.Y, ir.Int); err != nil {
			return nil, err
		}
		if y.Kind != ir.ExprLit || y.Lit.Kind != ir.LitInt {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, "subscript",
				"tuples can only be indexed by an integer literal")
		}
		i := int(y.Lit.Int)
		if i < 0 {
			i += len(xt.Items)
		}
		if i < 0 || i >= len(xt.Items) {
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "subscript",
				"index %d out of range for %s", y.Lit.Int, xt)
		}
		return xt.Items[i], nil
	case ir.KindUnknown:
		if _, err := t.expr(e.Y, nil); err != nil {
			return nil, err
		}
		return ir.Unknown, nil
	}
	return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "subscript",
		"%s is not subscriptable", xt)
}

func (t *typer) binary(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	switch {
	case e.Op == ir.OpIs || e.Op == ir.OpIsNot:
		xt, err := t.expr(e.X, nil)
		if err != nil {
			return nil, err
		}
		if _, err := t.expr(e.Y, known(xt)); err != nil {
			return nil, err
		}
		if isNoneLit(t.m, e.X) {
			if _, err := t.expr(e.X, known(t.m.TypeOf(e.Y))); err != nil {
				return nil, err
			}
		}
		if !isNoneLit(t.m, e.X) && !isNoneLit(t.m, e.Y) {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, e.Op.String(),
				"identity comparison is only supported against None")
		}
		return ir.Bool, nil

	case e.Op == ir.OpIn || e.Op == ir.OpNotIn:
		yt, err := t.expr(e.Y, nil)
		if err != nil {
			return nil, err
		}
		var wx *ir.Type
		switch yt.Kind {
		case ir.KindSeq, ir.KindSet:
			wx = yt.Elem
		case ir.KindMap:
			wx = yt.Key
		case ir.KindStr:
			wx = ir.Str
		case ir.KindUnknown:
		default:
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, e.Op.String(),
				"membership test against %s", yt)
		}
		xt, err := t.expr(e.X, wx)
		if err != nil {
			return nil, err
		}
		if wx != nil && !comparable(ir.OpEq, xt, wx) {
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, e.Op.String(),
				"membership test of %s in %s", xt, yt)
		}
		return ir.Bool, nil

	case e.Op.IsCompare():
		xt, err := t.expr(e.X, nil)
		if err != nil {
			return nil, err
		}
		yt, err := t.expr(e.Y, known(xt))
		if err != nil {
			return nil, err
		}
		if xt.IsUnknown() && !yt.IsUnknown() {
			if xt, err = t.expr(e.X, yt); err != nil {
				return nil, err
			}
		}
		if !comparable(e.Op, xt, yt) {
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, e.Op.String(),
				"cannot compare %s %s %s", xt, e.Op, yt)
		}
		return ir.Bool, nil
	}

	var wx *ir.Type
	if want != nil && (want.IsNumeric() || want.Kind == ir.KindStr) {
		wx = want
	}
	xt, err := t.expr(e.X, wx)
	if err != nil {
		return nil, err
	}
	wy := wx
	if wy == nil && symmetric(e.Op, xt) {
		wy = known(xt)
	}
	yt, err := t.expr(e.Y, wy)
	if err != nil {
		return nil, err
	}
	if xt.IsUnknown() && symmetric(e.Op, yt) {
		if xt, err = t.expr(e.X, yt); err != nil {
			return nil, err
		}
	}
	return arith(e.Op, xt, yt, e.Pos)
}

func (t *typer) boolOp(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	saved := cloneTypes(t.narrow)
	defer func() { t.narrow = saved }()
	types := make([]*ir.Type, len(e.Args))
	for i, a := range e.Args {
		at, err := t.expr(a, want)
		if err != nil {
			return nil, err
		}
		types[i] = at
		if name, whenTrue, ok := t.noneTest(a); ok {
			if (e.Op == ir.OpAnd) == whenTrue {
				t.narrowTo(name)
			}
		}
	}
	return pick(types, want), nil
}

func (t *typer) ifExp(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	if _, err := t.expr(e.X, nil); err != nil {
		return nil, err
	}
	name, whenTrue, ok := t.noneTest(e.X)
	saved := cloneTypes(t.narrow)
	if ok && whenTrue {
		t.narrowTo(name)
	}
	yt, err := t.expr(e.Y, want)
	if err != nil {
		return nil, err
	}
	t.narrow = cloneTypes(saved)
	if ok && !whenTrue {
		t.narrowTo(name)
	}
	zt, err := t.expr(e.Z, want)
	t.narrow = saved
	if err != nil {
		return nil, err
	}
	return pick([]*ir.Type{yt, zt}, want), nil
}

// pick types a value chosen from one of several operands: all booleans
// stay boolean, agreeing operands keep their type, and anything else is
// the dynamic tagged value.
func pick(types []*ir.Type, want *ir.Type) *ir.Type {
	if want != nil {
		fits := true
		for _, t := range types {
			fits = fits && assignable(t, want)
		}
		if fits {
			return want
		}
	}
	out := ir.Unknown
	for _, t := range types {
		j, ok := ir.JoinNumeric(out, t)
		if !ok {
			return ir.Dyn
		}
		out = j
	}
	return out
}

func (t *typer) unary(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	switch e.Op {
	case ir.OpNot:
		if _, err := t.expr(e.X, nil); err != nil {
			return nil, err
		}
		return ir.Bool, nil
	case ir.OpInvert:
		xt, err := t.expr(e.X, ir.Int)
		if err != nil {
			return nil, err
		}
		if xt.Known() && xt.Kind != ir.KindInt {
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "~",
				"bitwise inversion of %s", xt)
		}
		return ir.Int, nil
	}
	var w *ir.Type
	if want.IsNumeric() {
		w = want
	}
	xt, err := t.expr(e.X, w)
	if err != nil {
		return nil, err
	}
	if xt.Known() && !xt.IsNumeric() {
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, e.Op.String(),
			"unary %s of %s", e.Op, xt)
	}
	return xt, nil
}

// dict types a mapping literal. Values that all agree give a homogeneous
// map; disagreeing values, or a majority of dynamic ones, give a map of
// dynamic tagged values.
func (t *typer) dict(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	var wk, wv *ir.Type
	if want != nil && want.Kind == ir.KindMap {
		wk, wv = known(want.Key), known(want.Elem)
	}
	key := ir.Unknown
	for _, k := range e.Keys {
		kt, err := t.expr(k, wk)
		if err != nil {
			return nil, err
		}
		j, ok := ir.Join(key, kt)
		if !ok {
			return nil, diag.Inference(diag.CodeInferConflict, t.m.Expr(k).Pos, "dict",
				"dict keys of mixed types %s and %s", key, kt)
		}
		key = j
	}
	if wk != nil && assignable(key, wk) {
		key = wk
	}
	if !hashable(key) {
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "dict",
			"%s cannot be a dict key", key)
	}

	forced := wv != nil && wv.Kind == ir.KindDyn
	vals := make([]*ir.Type, len(e.Args))
	for i, v := range e.Args {
		vt, err := t.expr(v, wv)
		if err != nil {
			return nil, err
		}
		vals[i] = vt
	}
	val, consistent, dynamic := ir.Unknown, true, 0
	for _, vt := range vals {
		if vt.Kind == ir.KindDyn {
			dynamic++
		}
		if j, ok := ir.Join(val, vt); ok {
			val = j
		} else {
			consistent = false
		}
	}
	if forced || !consistent || (len(vals) > 0 && 2*dynamic >= len(vals)) {
		e.Dynamic = true
		return ir.MapOf(key, ir.Dyn), nil
	}
	e.Dynamic = false
	if wv != nil && allAssignable(vals, wv) {
		val = wv
	}
	return ir.MapOf(key, val), nil
}

// list types a sequence literal; elements that cannot share a type make
// it a list of dynamic tagged values.
func (t *typer) list(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	var we *ir.Type
	if want != nil && want.Kind == ir.KindSeq {
		we = known(want.Elem)
	}
	elems := make([]*ir.Type, len(e.Args))
	for i, a := range e.Args {
		at, err := t.expr(a, we)
		if err != nil {
			return nil, err
		}
		elems[i] = at
	}
	e.Dynamic = false
	if we != nil && allAssignable(elems, we) {
		if we.Kind == ir.KindDyn {
			e.Dynamic = true
		}
		return ir.SeqOf(we), nil
	}
	elem := ir.Unknown
	for _, at := range elems {
		j, ok := ir.JoinNumeric(elem, at)
		if !ok {
			e.Dynamic = true
			return ir.SeqOf(ir.Dyn), nil
		}
		elem = j
	}
	return ir.SeqOf(elem), nil
}

func (t *typer) set(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	var we *ir.Type
	if want != nil && want.Kind == ir.KindSet {
		we = known(want.Elem)
	}
	elems := make([]*ir.Type, len(e.Args))
	for i, a := range e.Args {
		at, err := t.expr(a, we)
		if err != nil {
			return nil, err
		}
		elems[i] = at
	}
	elem := ir.Unknown
	if we != nil && allAssignable(elems, we) {
		elem = we
	} else {
		for _, at := range elems {
			j, ok := ir.JoinNumeric(elem, at)
			if !ok {
				return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "set",
					"set elements of mixed types %s and %s", elem, at)
			}
			elem = j
		}
	}
	if !hashable(elem) {
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "set",
			"%s cannot be a set element", elem)
	}
	return ir.SetOf(elem), nil
}

func (t *typer) comp(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	c := e.Comp
	layer := make(map[string]*ir.Type)
	for _, g := range c.Gens {
		for _, n := range targetNames(t.m, g.Target) {
			layer[n] = ir.Unknown
		}
	}
	t.scopes = append(t.scopes, layer)
	defer func() { t.scopes = t.scopes[:len(t.scopes)-1] }()

	for _, g := range c.Gens {
		it, err := t.expr(g.Iter, nil)
		if err != nil {
			return nil, err
		}
		elem, err := iterElem(it, e.Pos)
		if err != nil {
			return nil, err
		}
		if err := t.bindScoped(g.Target, elem); err != nil {
			return nil, err
		}
		for _, cond := range g.Ifs {
			if _, err := t.expr(cond, nil); err != nil {
				return nil, err
			}
		}
	}

	var we, wk *ir.Type
	if want != nil {
		we = known(want.Elem)
		wk = known(want.Key)
	}
	elt, err := t.expr(c.Elt, we)
	if err != nil {
		return nil, err
	}
	if we != nil && assignable(elt, we) {
		elt = we
	}
	switch c.Kind {
	case ir.CompSet:
		if !hashable(elt) {
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "set",
				"%s cannot be a set element", elt)
		}
		return ir.SetOf(elt), nil
	case ir.CompDict:
		key, err := t.expr(c.Key, wk)
		if err != nil {
			return nil, err
		}
		if !hashable(key) {
			return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "dict",
				"%s cannot be a dict key", key)
		}
		return ir.MapOf(key, elt), nil
	}
	return ir.SeqOf(elt), nil
}

// bindScoped types a comprehension target against the element type.
func (t *typer) bindScoped(id ir.ExprID, typ *ir.Type) error {
	e := t.m.Expr(id)
	switch e.Kind {
	case ir.ExprVar:
		cur, _ := t.scoped(e.Name)
		j, ok := ir.Join(cur, typ)
		if !ok {
			j = typ
		}
		t.setScoped(e.Name, j)
		e.Type = j
		return nil
	case ir.ExprTuple:
		items, err := destructure(typ, len(e.Args), e.Pos)
		if err != nil {
			return err
		}
		got := make([]*ir.Type, len(e.Args))
		for i, a := range e.Args {
			if err := t.bindScoped(a, items[i]); err != nil {
				return err
			}
			got[i] = t.m.TypeOf(a)
		}
		e.Type = ir.TupleOf(got...)
		return nil
	}
	return diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, e.Kind.String(),
		"comprehension target must be a name or tuple of names")
}

func (t *typer) lambda(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	layer := make(map[string]*ir.Type, len(e.Params))
	var wret *ir.Type
	fits := want != nil && want.Kind == ir.KindFunc && len(want.Items) == len(e.Params)
	for i, p := range e.Params {
		layer[p] = ir.Unknown
		if fits {
			layer[p] = want.Items[i]
		}
	}
	if fits {
		wret = known(want.Ret)
	}
	t.scopes = append(t.scopes, layer)
	rt, err := t.expr(e.X, wret)
	t.scopes = t.scopes[:len(t.scopes)-1]
	if err != nil {
		return nil, err
	}
	items := make([]*ir.Type, len(e.Params))
	for i, p := range e.Params {
		items[i] = layer[p]
	}
	return ir.FuncOf(rt, items...), nil
}

func isNoneLit(m *ir.Module, id ir.ExprID) bool {
	e := m.Expr(id)
	return e != nil && e.Kind == ir.ExprLit && e.Lit.Kind == ir.LitNone
}

func allAssignable(ts []*ir.Type, to *ir.Type) bool {
	for _, t := range ts {
		if !assignable(t, to) {
			return false
		}
	}
	return true
}

// iterElem is the element type of a for-loop or comprehension source.
func iterElem(t *ir.Type, p diag.Pos) (*ir.Type, error) {
	if t.Kind == ir.KindTuple {
		out := ir.Unknown
		for _, it := range t.Items {
			j, ok := ir.Join(out, it)
			if !ok {
				return nil, diag.Inference(diag.CodeInferConflict, p, "for",
					"iteration over a tuple of mixed types %s", t)
			}
			out = j
		}
		return out, nil
	}
	elem, err := intrinsic.ElemOf(t)
	if err != nil {
		return nil, diag.Inference(diag.CodeInferConflict, p, "for", "%v", err)
	}
	return elem, nil
}

// destructure splits a value type across n unpacking targets.
func destructure(t *ir.Type, n int, p diag.Pos) ([]*ir.Type, error) {
	out := make([]*ir.Type, n)
	switch {
	case t.IsUnknown():
		for i := range out {
			out[i] = ir.Unknown
		}
	case t.Kind == ir.KindTuple && len(t.Items) == n:
		copy(out, t.Items)
	default:
		return nil, diag.Inference(diag.CodeInferConflict, p, "unpack",
			"cannot unpack %s into %d names", t, n)
	}
	return out, nil
}
