package codegen

import (
	"strings"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/lower"
)

// call renders a function call. A call that can fail is wrapped so its
// error reaches the exception destination in effect here.
func (g *gen) call(e *ir.Expr) string {
	var s string
	switch e.Callee.Kind {
	case ir.CallException:
		return g.exceptionCall(e)
	case ir.CallIntrinsic:
		spec, ok := intrinsic.Builtin(e.Callee.Symbol)
		if !ok {
			return g.internal(e.Pos, e.Name, "builtin %q has no rendering", e.Callee.Symbol)
		}
		s = g.intrinsic(spec, e, nil, ir.NoExpr)
	case ir.CallLocal:
		s = g.localCall(e)
		if callee := g.m.Func(e.Callee.Symbol); callee != nil && callee.CanFail {
			return g.fallible(s, e.Pos)
		}
		return s
	case ir.CallLibrary:
		s = g.libraryCall(e)
	case ir.CallOpaque:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = g.value(a, nil)
		}
		s = opaquePath(e.Callee.Library, e.Callee.Symbol) + "(" + strings.Join(args, ", ") + ")"
	case ir.CallValue:
		s = g.valueCall(e)
	default:
		return g.internal(e.Pos, e.Name, "call to %s was never resolved", e.Name)
	}
	if e.Fallible {
		return g.fallible(s, e.Pos)
	}
	return s
}

// method renders a typed method call on its receiver.
func (g *gen) method(e *ir.Expr) string {
	rt := g.m.TypeOf(e.X)
	spec, ok := intrinsic.Method(rt, e.Name)
	if !ok {
		return g.internal(e.Pos, "."+e.Name, "%s has no method %s()", rt, e.Name)
	}
	s := g.intrinsic(spec, e, rt, e.X)
	if e.Fallible {
		return g.fallible(s, e.Pos)
	}
	return s
}

// fallible propagates the error of a call that returns a Result.
func (g *gen) fallible(call string, pos diag.Pos) string {
	switch {
	case g.inConst:
		return paren(call) + ".expect(\"constant initializer failed\")"
	case g.closures > 0:
		return g.unsupported(pos, "lambda", "a call that can raise inside a lambda")
	}
	routed := false
	for _, fr := range g.frames {
		if fr.label != "" || len(fr.finally) > 0 {
			routed = true
		}
	}
	if !routed {
		return paren(call) + "?"
	}
	esc := g.escape("__e")
	return "match " + call + " {\n" + indentUnit + "Ok(v) => v,\n" + indentUnit + "Err(__e) => {\n" +
		indentText(indentText(esc)) + "\n" + indentUnit + "}\n}"
}

// intrinsic renders a builtin or method from its table entry. recv is the
// receiver expression for methods, ir.NoExpr for builtins.
func (g *gen) intrinsic(spec *intrinsic.Spec, e *ir.Expr, rt *ir.Type, recv ir.ExprID) string {
	em := intrinsic.Emit{
		RecvType:   rt,
		Result:     e.Type,
		ResultRust: g.rustType(e.Type),
		WrappedDyn: g.wrappedDyn(),
	}
	if recv != ir.NoExpr {
		if spec.Mutates {
			em.Recv = g.mutPlace(recv)
		} else {
			em.Recv = readPlace(g.expr(recv))
		}
	}
	em.Args = make([]string, len(e.Args))
	em.Refs = make([]string, len(e.Args))
	em.Types = make([]*ir.Type, len(e.Args))
	for i, a := range e.Args {
		at := g.m.TypeOf(a)
		em.Types[i] = at
		switch spec.ModeAt(i) {
		case intrinsic.Move:
			var want *ir.Type
			if rt != nil && rt.Elem != nil && rt.Elem.Known() {
				want = rt.Elem
			}
			em.Args[i] = g.value(a, want)
		case intrinsic.Iter:
			em.Args[i] = g.iter(a)
		default:
			v := g.expr(a)
			em.Args[i] = readPlace(v)
			if at.Kind == ir.KindStr {
				em.Refs[i] = strRef(v)
			} else {
				em.Refs[i] = shared(v)
			}
		}
	}
	switch {
	case e.Type.Kind == ir.KindSeq || e.Type.Kind == ir.KindSet:
		em.ElemRust = g.rustType(e.Type.Elem)
	case rt != nil && rt.Elem != nil:
		em.ElemRust = g.rustType(rt.Elem)
	case len(em.Types) > 0 && em.Types[0].Elem != nil:
		em.ElemRust = g.rustType(em.Types[0].Elem)
	}
	return spec.Render(em)
}

// iterCall renders a call producing an iterator when its table entry has
// an iterator form.
func (g *gen) iterCall(e *ir.Expr) (string, bool) {
	var spec *intrinsic.Spec
	var rt *ir.Type
	recv := ir.NoExpr
	switch {
	case e.Kind == ir.ExprCall && e.Callee.Kind == ir.CallIntrinsic:
		spec, _ = intrinsic.Builtin(e.Callee.Symbol)
	case e.Kind == ir.ExprMethodCall:
		rt = g.m.TypeOf(e.X)
		spec, _ = intrinsic.Method(rt, e.Name)
		recv = e.X
	}
	if spec == nil || spec.RenderIter == nil || e.Fallible {
		return "", false
	}
	iterSpec := *spec
	iterSpec.Render = spec.RenderIter
	return g.intrinsic(&iterSpec, e, rt, recv), true
}

// mutPlace renders an expression as a place that can be changed.
func (g *gen) mutPlace(id ir.ExprID) string {
	e := g.m.Expr(id)
	switch e.Kind {
	case ir.ExprVar:
		name := ident(e.Name)
		if _, ok := g.scoped(e.Name); ok {
			return name
		}
		if b := g.binding(e.Name); b != nil && b.Type.Kind == ir.KindOptional && e.Type.Kind != ir.KindOptional {
			return name + ".as_mut().unwrap()"
		}
		return name
	case ir.ExprSubscript:
		xt := g.m.TypeOf(e.X)
		p := g.mutPlace(e.X)
		switch {
		case xt.Kind == ir.KindSeq && e.Fallible:
			return paren(p) + "[" + g.checkedIndex(e, paren(p)) + "]"
		case xt.Kind == ir.KindSeq:
			return paren(p) + "[" + g.index(e.Y, paren(p)) + "]"
		case xt.Kind == ir.KindMap && e.Fallible:
			return g.fallible(paren(p)+".get_mut("+g.key(e.Y, xt.Key)+")"+keyError, e.Pos)
		case xt.Kind == ir.KindMap:
			return paren(p) + ".get_mut(" + g.key(e.Y, xt.Key) + ").unwrap()"
		}
	case ir.ExprAttr:
		return g.unsupported(e.Pos, "."+e.Name, "changing a field of a union payload")
	}
	return readPlace(g.expr(id))
}

// localCall renders a call to a function of this module, mapping
// positional, keyword and default arguments onto its parameters.
func (g *gen) localCall(e *ir.Expr) string {
	callee := g.m.Func(e.Callee.Symbol)
	if callee == nil {
		return g.internal(e.Pos, e.Name, "call to missing function %q", e.Callee.Symbol)
	}
	fixed := callee.Params
	var vararg *ir.Param
	if n := len(fixed); n > 0 && fixed[n-1].Vararg {
		vararg = fixed[n-1]
		fixed = fixed[:n-1]
	}
	pass := func(i int) ir.Use {
		if i < len(e.Pass) {
			return e.Pass[i]
		}
		return ir.UseMove
	}
	args := make([]string, len(fixed))
	var extras []string
	spread := ""
	for i, a := range e.Args {
		switch {
		case g.m.Expr(a).Kind == ir.ExprStarred:
			spread = g.value(g.m.Expr(a).X, vararg.Type)
		case i < len(fixed):
			args[i] = g.passArg(a, fixed[i], pass(i))
		default:
			extras = append(extras, g.value(a, vararg.Type.Elem))
		}
	}
	for j, kw := range e.Kwargs {
		for i, p := range fixed {
			if p.Name == kw.Name {
				args[i] = g.passArg(kw.Value, p, pass(len(e.Args)+j))
			}
		}
	}
	for i, p := range fixed {
		if args[i] != "" {
			continue
		}
		d := g.value(p.Default, p.Type)
		switch p.Own {
		case ir.Borrowed:
			d = "&" + paren(d)
		case ir.BorrowedMut:
			d = "&mut " + paren(d)
		}
		args[i] = d
	}
	if vararg != nil {
		switch {
		case spread != "":
			args = append(args, spread)
		case len(extras) > 0:
			args = append(args, "vec!["+strings.Join(extras, ", ")+"]")
		default:
			args = append(args, "Vec::new()")
		}
	}
	return ident(callee.Name) + "(" + strings.Join(args, ", ") + ")"
}

// passArg renders one argument in the mode its parameter receives it.
func (g *gen) passArg(a ir.ExprID, p *ir.Param, u ir.Use) string {
	at := g.m.TypeOf(a)
	switch u {
	case ir.UseBorrow:
		if !at.Equal(p.Type) {
			return "&" + paren(g.value(a, p.Type))
		}
		return shared(g.expr(a))
	case ir.UseBorrowMut:
		return exclusive(g.expr(a))
	}
	return g.value(a, p.Type)
}

// libraryCall renders a catalog call in its declared shape.
func (g *gen) libraryCall(e *ir.Expr) string {
	entry, ok := g.cat.Lookup(e.Callee.Library, e.Callee.Symbol)
	if !ok {
		return g.fail(diag.CatalogMiss(e.Pos, e.Callee.Library, e.Callee.Symbol))
	}
	g.used[entry.Key()] = entry
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		want := g.m.TypeOf(a)
		if ref, ok := entry.ArgTypeAt(i); ok {
			t, err := lower.ResolveType(ref, g.cat)
			if err != nil {
				return g.internal(e.Pos, entry.Key().String(), "argument %d type: %v", i, err)
			}
			want = t
		}
		switch entry.ArgShapeAt(i) {
		case catalog.ArgBorrow:
			if want.Known() && !want.Equal(g.m.TypeOf(a)) {
				args[i] = "&" + paren(g.value(a, want))
			} else if v := g.expr(a); v.t.Kind == ir.KindStr {
				args[i] = strRef(v)
			} else {
				args[i] = shared(v)
			}
		case catalog.ArgBorrowMut:
			args[i] = exclusive(g.expr(a))
		case catalog.ArgCopy:
			args[i] = g.value(a, want)
		default:
			args[i] = g.value(a, nil)
		}
	}
	list := strings.Join(args, ", ")
	switch entry.Shape {
	case catalog.BareCall:
		return entry.Path + "(" + list + ")"
	case catalog.StaticConstructor:
		m := entry.Method
		if m == "" {
			m = "new"
		}
		return entry.Path + "::" + m + "(" + list + ")"
	case catalog.NamedStaticMethod:
		return entry.Path + "::" + entry.Method + "(" + list + ")"
	case catalog.FallibleCall:
		kind := entry.Raises
		if kind == "" {
			kind = "Exception"
		}
		return entry.Path + "(" + list + ").map_err(|e| Exception::new(\"" + kind + "\", e.to_string()))"
	}
	return g.internal(e.Pos, entry.Key().String(), "call shape %s", entry.Shape)
}

// exceptionCall constructs an exception value.
func (g *gen) exceptionCall(e *ir.Expr) string {
	kind := rustString(e.Callee.Symbol)
	if len(e.Args) == 0 {
		return "Exception::new(" + kind + ", \"\")"
	}
	a := g.m.Expr(e.Args[0])
	if a.Kind == ir.ExprLit && a.Lit.Kind == ir.LitStr {
		return "Exception::new(" + kind + ", " + rustString(a.Lit.Str) + ")"
	}
	v := g.expr(e.Args[0])
	if v.t.Kind == ir.KindStr {
		return "Exception::new(" + kind + ", " + owned(v) + ")"
	}
	return "Exception::new(" + kind + ", format!(" +
		rustString(intrinsic.FormatSpec(v.t, g.wrappedDyn())) + ", " + readPlace(v) + "))"
}

// valueCall calls a callable binding.
func (g *gen) valueCall(e *ir.Expr) string {
	var ft *ir.Type
	if b := g.binding(e.Name); b != nil {
		ft = b.Type
	} else if st, ok := g.scoped(e.Name); ok {
		ft = st
	} else {
		return g.internal(e.Pos, e.Name, "call to %s, which is not bound", e.Name)
	}
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		var want *ir.Type
		if ft != nil && i < len(ft.Items) {
			want = ft.Items[i]
		}
		args[i] = g.value(a, want)
	}
	return ident(e.Name) + "(" + strings.Join(args, ", ") + ")"
}
