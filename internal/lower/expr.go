package lower

import (
	"strings"

	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/srctree"
)

func (l *lowerer) exprs(es []srctree.Expr, p diag.Pos) ([]ir.ExprID, error) {
	out := make([]ir.ExprID, len(es))
	for i := range es {
		id, err := l.expr(&es[i], p)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func (l *lowerer) lit(p diag.Pos, lit ir.Literal) ir.ExprID {
	return l.m.NewExpr(ir.Expr{Kind: ir.ExprLit, Pos: p, Lit: lit})
}

func (l *lowerer) expr(e *srctree.Expr, outer diag.Pos) (ir.ExprID, error) {
	p := at(e.Pos, outer)
	switch {
	case e.Int != nil:
		return l.lit(p, ir.Literal{Kind: ir.LitInt, Int: *e.Int}), nil
	case e.Float != nil:
		return l.lit(p, ir.Literal{Kind: ir.LitFloat, Float: *e.Float}), nil
	case e.Str != nil:
		return l.lit(p, ir.Literal{Kind: ir.LitStr, Str: *e.Str}), nil
	case e.Bool != nil:
		return l.lit(p, ir.Literal{Kind: ir.LitBool, Bool: *e.Bool}), nil
	case e.None:
		return l.lit(p, ir.Literal{Kind: ir.LitNone}), nil

	case e.Name != "":
		return l.name(ident(e.Name), p)

	case e.Attr != nil:
		return l.attr(e.Attr, p)

	case e.Subscript != nil:
		sub := e.Subscript
		x, err := l.expr(&sub.Value, p)
		if err != nil {
			return ir.NoExpr, err
		}
		if sub.Slice == nil {
			idx, err := l.expr(sub.Index, p)
			if err != nil {
				return ir.NoExpr, err
			}
			return l.m.NewExpr(ir.Expr{Kind: ir.ExprSubscript, Pos: p, X: x, Y: idx}), nil
		}
		if sub.Slice.Step != nil {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, "slice",
				"no lowering rule for slices with a step")
		}
		s := ir.Expr{Kind: ir.ExprSlice, Pos: p, X: x}
		if sub.Slice.Lower != nil {
			if s.Y, err = l.expr(sub.Slice.Lower, p); err != nil {
				return ir.NoExpr, err
			}
		}
		if sub.Slice.Upper != nil {
			if s.Z, err = l.expr(sub.Slice.Upper, p); err != nil {
				return ir.NoExpr, err
			}
		}
		return l.m.NewExpr(s), nil

	case e.Call != nil:
		return l.call(e.Call, p)

	case e.BinOp != nil:
		op, ok := ir.ParseBinaryOp(e.BinOp.Op)
		if !ok {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, e.BinOp.Op,
				"unknown binary operator")
		}
		x, err := l.expr(&e.BinOp.Left, p)
		if err != nil {
			return ir.NoExpr, err
		}
		y, err := l.expr(&e.BinOp.Right, p)
		if err != nil {
			return ir.NoExpr, err
		}
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprBinary, Pos: p, Op: op, X: x, Y: y}), nil

	case e.BoolOp != nil:
		op, ok := ir.ParseBoolOp(e.BoolOp.Op)
		if !ok || len(e.BoolOp.Values) < 2 {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, e.BoolOp.Op,
				"malformed boolean operation")
		}
		args, err := l.exprs(e.BoolOp.Values, p)
		if err != nil {
			return ir.NoExpr, err
		}
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprBoolOp, Pos: p, Op: op, Args: args}), nil

	case e.Compare != nil:
		return l.compare(e.Compare, p)

	case e.Unary != nil:
		op, ok := ir.ParseUnaryOp(e.Unary.Op)
		if !ok {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, e.Unary.Op,
				"unknown unary operator")
		}
		x, err := l.expr(&e.Unary.Operand, p)
		if err != nil {
			return ir.NoExpr, err
		}
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprUnary, Pos: p, Op: op, X: x}), nil

	case e.Dict != nil:
		d := ir.Expr{Kind: ir.ExprDict, Pos: p}
		for i := range e.Dict.Entries {
			k, err := l.expr(&e.Dict.Entries[i].Key, p)
			if err != nil {
				return ir.NoExpr, err
			}
			v, err := l.expr(&e.Dict.Entries[i].Value, p)
			if err != nil {
				return ir.NoExpr, err
			}
			d.Keys = append(d.Keys, k)
			d.Args = append(d.Args, v)
		}
		return l.m.NewExpr(d), nil

	case e.List != nil, e.Set != nil, e.Tuple != nil:
		kind, lit := ir.ExprList, e.List
		switch {
		case e.Set != nil:
			kind, lit = ir.ExprSet, e.Set
		case e.Tuple != nil:
			kind, lit = ir.ExprTuple, e.Tuple
		}
		args, err := l.exprs(lit.Elts, p)
		if err != nil {
			return ir.NoExpr, err
		}
		return l.m.NewExpr(ir.Expr{Kind: kind, Pos: p, Args: args}), nil

	case e.ListComp != nil:
		return l.comp(ir.CompList, e.ListComp, p)
	case e.SetComp != nil:
		return l.comp(ir.CompSet, e.SetComp, p)
	case e.DictComp != nil:
		return l.comp(ir.CompDict, e.DictComp, p)
	case e.GenExp != nil:
		return l.comp(ir.CompGen, e.GenExp, p)

	case e.Lambda != nil:
		x, err := l.expr(&e.Lambda.Body, p)
		if err != nil {
			return ir.NoExpr, err
		}
		params := make([]string, len(e.Lambda.Params))
		for i, name := range e.Lambda.Params {
			params[i] = ident(name)
		}
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprLambda, Pos: p, Params: params, X: x}), nil

	case e.Starred != nil:
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, "starred",
			"unpacking is only allowed as a call argument")

	case e.Walrus != nil:
		x, err := l.expr(&e.Walrus.Value, p)
		if err != nil {
			return ir.NoExpr, err
		}
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprNamed, Pos: p, Name: ident(e.Walrus.Target), X: x}), nil

	case e.IfExp != nil:
		cond, err := l.expr(&e.IfExp.Test, p)
		if err != nil {
			return ir.NoExpr, err
		}
		then, err := l.expr(&e.IfExp.Body, p)
		if err != nil {
			return ir.NoExpr, err
		}
		els, err := l.expr(&e.IfExp.OrElse, p)
		if err != nil {
			return ir.NoExpr, err
		}
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprIfExp, Pos: p, X: cond, Y: then, Z: els}), nil

	case e.FString != nil:
		args, err := l.exprs(e.FString.Parts, p)
		if err != nil {
			return ir.NoExpr, err
		}
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprFString, Pos: p, Args: args}), nil

	case e.Yield != nil:
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, "yield",
			"yield is only allowed as a statement")
	case e.Await != nil:
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, "await",
			"no lowering rule for coroutines")
	}
	return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, e.Kind(),
		"no lowering rule for expression")
}

func (l *lowerer) name(name string, p diag.Pos) (ir.ExprID, error) {
	if imp, ok := l.m.Imports[name]; ok && !l.isLocal(name) {
		if imp.Symbol == "" {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, name,
				"module %q used as a value", imp.Library)
		}
		return l.libraryConst(imp.Library, imp.Symbol, p)
	}
	if l.funcs[name] && !l.isLocal(name) {
		name = l.funcName(name)
	}
	return l.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: name}), nil
}

// isLocal reports a parameter of the function being lowered. Assigned
// locals shadowing module names are resolved by inference.
func (l *lowerer) isLocal(name string) bool {
	return l.fn != nil && l.fn.params[name]
}

// libraryPath resolves `a.b.c` to a library path when `a` is an imported
// module, e.g. `os.path` for `os.path.join`.
func (l *lowerer) libraryPath(e *srctree.Expr) (string, bool) {
	switch {
	case e.Name != "":
		name := ident(e.Name)
		imp, ok := l.m.Imports[name]
		if !ok || imp.Symbol != "" || l.isLocal(name) {
			return "", false
		}
		return imp.Library, true
	case e.Attr != nil:
		base, ok := l.libraryPath(&e.Attr.Value)
		if !ok {
			return "", false
		}
		return base + "." + e.Attr.Attr, true
	}
	return "", false
}

func (l *lowerer) attr(a *srctree.Attribute, p diag.Pos) (ir.ExprID, error) {
	if lib, ok := l.libraryPath(&a.Value); ok {
		return l.libraryConst(lib, a.Attr, p)
	}
	if v := a.Value.Name; v != "" && l.fn != nil {
		if sc := l.fn.subjects[ident(v)]; sc != nil {
			if a.Attr == sc.discriminant {
				return l.lit(p, ir.Literal{Kind: ir.LitStr, Str: sc.tag}), nil
			}
			x := l.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: ident(v)})
			return l.m.NewExpr(ir.Expr{Kind: ir.ExprAttr, Pos: p, X: x, Name: a.Attr}), nil
		}
	}
	return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, "."+a.Attr,
		"no lowering rule for attribute access outside tagged dispatch")
}

func (l *lowerer) libraryConst(lib, sym string, p diag.Pos) (ir.ExprID, error) {
	if _, ok := l.cat.LookupConst(lib, sym); ok {
		return l.m.NewExpr(ir.Expr{
			Kind: ir.ExprConst, Pos: p,
			Callee: ir.Callee{Kind: ir.CallLibrary, Library: lib, Symbol: sym},
		}), nil
	}
	if _, ok := l.cat.Lookup(lib, sym); ok {
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, lib+"."+sym,
			"library function used as a value")
	}
	if err := l.miss(lib, sym, p); err != nil {
		return ir.NoExpr, err
	}
	return l.m.NewExpr(ir.Expr{
		Kind: ir.ExprConst, Pos: p, Type: ir.Dyn,
		Callee: ir.Callee{Kind: ir.CallOpaque, Library: lib, Symbol: sym},
	}), nil
}

// miss applies the catalog-miss policy: fail the unit, or warn and pass
// the symbol through as an opaque dynamic value.
func (l *lowerer) miss(lib, sym string, p diag.Pos) error {
	if l.pol.CatalogMiss == config.MissError {
		return diag.CatalogMiss(p, lib, sym)
	}
	l.bag.Warn(diag.KindCatalogMiss, diag.CodeCatalogMiss, p, lib+"."+sym,
		"%s.%s is not in the catalog; passed through as a dynamic value", lib, sym)
	return nil
}

func (l *lowerer) call(c *srctree.Call, p diag.Pos) (ir.ExprID, error) {
	f := &c.Func
	switch {
	case f.Name != "":
		return l.nameCall(ident(f.Name), c, p)
	case f.Attr != nil:
		if lib, ok := l.libraryPath(&f.Attr.Value); ok {
			return l.libraryCall(lib, f.Attr.Attr, c, p)
		}
		recv, err := l.expr(&f.Attr.Value, p)
		if err != nil {
			return ir.NoExpr, err
		}
		if len(c.Keywords) > 0 {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, f.Attr.Attr,
				"keyword arguments to method %q", f.Attr.Attr)
		}
		args, err := l.callArgs(c.Args, p)
		if err != nil {
			return ir.NoExpr, err
		}
		return l.m.NewExpr(ir.Expr{
			Kind: ir.ExprMethodCall, Pos: p, X: recv, Name: f.Attr.Attr, Args: args,
			Callee: ir.Callee{Kind: ir.CallIntrinsic},
		}), nil
	}
	return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, f.Kind()+"(...)",
		"no lowering rule for calling this expression")
}

func (l *lowerer) nameCall(name string, c *srctree.Call, p diag.Pos) (ir.ExprID, error) {
	local := l.isLocal(name)
	if !local && l.funcs[name] {
		args, err := l.callArgs(c.Args, p)
		if err != nil {
			return ir.NoExpr, err
		}
		call := ir.Expr{
			Kind: ir.ExprCall, Pos: p, Name: l.funcName(name), Args: args,
			Callee: ir.Callee{Kind: ir.CallLocal, Symbol: l.funcName(name)},
		}
		for i := range c.Keywords {
			kw := &c.Keywords[i]
			v, err := l.expr(&kw.Value, p)
			if err != nil {
				return ir.NoExpr, err
			}
			call.Kwargs = append(call.Kwargs, ir.Keyword{Name: ident(kw.Name), Value: v})
		}
		return l.m.NewExpr(call), nil
	}

	if len(c.Keywords) > 0 {
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, name,
			"keyword arguments are only supported on functions defined in this unit")
	}
	args, err := l.callArgs(c.Args, p)
	if err != nil {
		return ir.NoExpr, err
	}

	switch {
	case !local && name == "bool":
		switch len(args) {
		case 0:
			return l.lit(p, ir.Literal{Kind: ir.LitBool}), nil
		case 1:
			return l.m.NewExpr(ir.Expr{Kind: ir.ExprTruthy, Pos: p, X: args[0], Type: ir.Bool}), nil
		}
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, name,
			"bool() takes at most one argument")

	case !local && intrinsic.IsBuiltin(name):
		spec, _ := intrinsic.Builtin(name)
		if err := spec.CheckArity(len(args)); err != nil {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, name, "%v", err)
		}
		return l.m.NewExpr(ir.Expr{
			Kind: ir.ExprCall, Pos: p, Name: name, Args: args,
			Callee: ir.Callee{Kind: ir.CallIntrinsic, Symbol: name},
		}), nil

	case !local && intrinsic.IsException(name):
		if len(args) > 1 {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, name,
				"exception %s takes at most one argument", name)
		}
		return l.m.NewExpr(ir.Expr{
			Kind: ir.ExprCall, Pos: p, Name: name, Args: args, Type: ir.Exception,
			Callee: ir.Callee{Kind: ir.CallException, Symbol: name},
		}), nil
	}

	if imp, ok := l.m.Imports[name]; ok && !local {
		if imp.Symbol == "" {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, name,
				"module %q called as a function", imp.Library)
		}
		return l.finishLibraryCall(imp.Library, imp.Symbol, args, p)
	}

	// A callable binding: a lambda, or a function passed as a parameter.
	return l.m.NewExpr(ir.Expr{
		Kind: ir.ExprCall, Pos: p, Name: name, Args: args,
		Callee: ir.Callee{Kind: ir.CallValue, Symbol: name},
	}), nil
}

func (l *lowerer) libraryCall(lib, sym string, c *srctree.Call, p diag.Pos) (ir.ExprID, error) {
	if len(c.Keywords) > 0 {
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, lib+"."+sym,
			"keyword arguments to library functions")
	}
	args, err := l.callArgs(c.Args, p)
	if err != nil {
		return ir.NoExpr, err
	}
	return l.finishLibraryCall(lib, sym, args, p)
}

func (l *lowerer) finishLibraryCall(lib, sym string, args []ir.ExprID, p diag.Pos) (ir.ExprID, error) {
	if _, ok := l.cat.Lookup(lib, sym); ok {
		return l.m.NewExpr(ir.Expr{
			Kind: ir.ExprCall, Pos: p, Name: sym, Args: args,
			Callee: ir.Callee{Kind: ir.CallLibrary, Library: lib, Symbol: sym},
		}), nil
	}
	if err := l.miss(lib, sym, p); err != nil {
		return ir.NoExpr, err
	}
	return l.m.NewExpr(ir.Expr{
		Kind: ir.ExprCall, Pos: p, Name: sym, Args: args, Type: ir.Dyn,
		Callee: ir.Callee{Kind: ir.CallOpaque, Library: lib, Symbol: sym},
	}), nil
}

// callArgs lowers positional arguments, where `*xs` is allowed.
func (l *lowerer) callArgs(es []srctree.Expr, p diag.Pos) ([]ir.ExprID, error) {
	out := make([]ir.ExprID, len(es))
	for i := range es {
		e := &es[i]
		if e.Starred == nil {
			id, err := l.expr(e, p)
			if err != nil {
				return nil, err
			}
			out[i] = id
			continue
		}
		x, err := l.expr(e.Starred, p)
		if err != nil {
			return nil, err
		}
		out[i] = l.m.NewExpr(ir.Expr{Kind: ir.ExprStarred, Pos: at(e.Pos, p), X: x})
	}
	return out, nil
}

// compare lowers `a < b < c` to `a < b and b < c`. Middle operands are
// evaluated twice, so they must be names or literals.
func (l *lowerer) compare(c *srctree.Compare, p diag.Pos) (ir.ExprID, error) {
	if len(c.Ops) == 0 || len(c.Ops) != len(c.Comparators) {
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, "compare",
			"malformed comparison")
	}
	operands := make([]*srctree.Expr, 0, len(c.Comparators)+1)
	operands = append(operands, &c.Left)
	for i := range c.Comparators {
		operands = append(operands, &c.Comparators[i])
	}
	var parts []ir.ExprID
	for i, opName := range c.Ops {
		op, ok := ir.ParseCompareOp(opName)
		if !ok {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedExpr, p, opName,
				"unknown comparison operator")
		}
		if i > 0 && !pureOperand(operands[i]) {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, strings.Join(c.Ops, " "),
				"chained comparison with a computed middle operand")
		}
		x, err := l.expr(operands[i], p)
		if err != nil {
			return ir.NoExpr, err
		}
		y, err := l.expr(operands[i+1], p)
		if err != nil {
			return ir.NoExpr, err
		}
		parts = append(parts, l.m.NewExpr(ir.Expr{Kind: ir.ExprBinary, Pos: p, Op: op, X: x, Y: y}))
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return l.m.NewExpr(ir.Expr{Kind: ir.ExprBoolOp, Pos: p, Op: ir.OpAnd, Args: parts}), nil
}

func pureOperand(e *srctree.Expr) bool {
	return e.Name != "" || e.Int != nil || e.Float != nil || e.Str != nil || e.Bool != nil || e.None
}

func (l *lowerer) comp(kind ir.CompKind, c *srctree.Comp, p diag.Pos) (ir.ExprID, error) {
	out := &ir.Comp{Kind: kind}
	for i := range c.Generators {
		g := &c.Generators[i]
		iter, err := l.expr(&g.Iter, p)
		if err != nil {
			return ir.NoExpr, err
		}
		target, err := l.bindTarget(&g.Target, p)
		if err != nil {
			return ir.NoExpr, err
		}
		ifs, err := l.exprs(g.Ifs, p)
		if err != nil {
			return ir.NoExpr, err
		}
		out.Gens = append(out.Gens, ir.CompFor{Target: target, Iter: iter, Ifs: ifs})
	}
	if kind == ir.CompDict {
		if c.Key == nil {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, "dict comprehension",
				"missing key expression")
		}
		k, err := l.expr(c.Key, p)
		if err != nil {
			return ir.NoExpr, err
		}
		out.Key = k
	}
	elt, err := l.expr(&c.Elt, p)
	if err != nil {
		return ir.NoExpr, err
	}
	out.Elt = elt
	return l.m.NewExpr(ir.Expr{Kind: ir.ExprComp, Pos: p, Comp: out}), nil
}
