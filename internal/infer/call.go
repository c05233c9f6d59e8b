package infer

import (
	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/lower"
	"github.com/roach88/ferrule/internal/srctree"
)

func (t *typer) call(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	switch e.Callee.Kind {
	case ir.CallLocal:
		return t.localCall(e)

	case ir.CallIntrinsic:
		spec, ok := intrinsic.Builtin(e.Callee.Symbol)
		if !ok {
			return nil, diag.Internal(diag.CodeInternalInvariant, e.Pos, e.Name,
				"call resolved to unknown builtin %q", e.Callee.Symbol)
		}
		args, err := t.plainArgs(e, e.Name)
		if err != nil {
			return nil, err
		}
		return t.apply(spec, nil, args, e)

	case ir.CallException:
		if _, err := t.plainArgs(e, e.Name); err != nil {
			return nil, err
		}
		return ir.Exception, nil

	case ir.CallLibrary:
		entry, ok := t.cat.Lookup(e.Callee.Library, e.Callee.Symbol)
		if !ok {
			return nil, diag.CatalogMiss(e.Pos, e.Callee.Library, e.Callee.Symbol)
		}
		if err := t.libraryArgs(e, entry); err != nil {
			return nil, err
		}
		return t.catalogType(entry.Key().String(), entry.Returns, e.Pos)

	case ir.CallOpaque:
		if _, err := t.plainArgs(e, e.Callee.Library+"."+e.Callee.Symbol); err != nil {
			return nil, err
		}
		return ir.Dyn, nil

	case ir.CallValue:
		return t.valueCall(e, want)
	}
	return nil, diag.Internal(diag.CodeInternalInvariant, e.Pos, e.Name,
		"call to %s was never resolved", e.Name)
}

// plainArgs types the arguments of a callee with no parameter list of its
// own, where unpacking cannot be mapped onto parameters.
func (t *typer) plainArgs(e *ir.Expr, callee string) ([]*ir.Type, error) {
	out := make([]*ir.Type, len(e.Args))
	for i, a := range e.Args {
		if ae := t.m.Expr(a); ae.Kind == ir.ExprStarred {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, ae.Pos, callee,
				"argument unpacking into %s", callee)
		}
		at, err := t.expr(a, nil)
		if err != nil {
			return nil, err
		}
		out[i] = at
	}
	return out, nil
}

// libraryArgs types the arguments of a catalog call, seeding unresolved
// ones with the entry's declared argument types.
func (t *typer) libraryArgs(e *ir.Expr, entry *catalog.Entry) error {
	key := entry.Key().String()
	for i, a := range e.Args {
		if ae := t.m.Expr(a); ae.Kind == ir.ExprStarred {
			return diag.Unsupported(diag.CodeUnsupportedForm, ae.Pos, key,
				"argument unpacking into %s", key)
		}
		var want *ir.Type
		if ref, ok := entry.ArgTypeAt(i); ok {
			w, err := t.catalogType(key, ref, e.Pos)
			if err != nil {
				return err
			}
			want = w
		}
		if _, err := t.expr(a, want); err != nil {
			return err
		}
	}
	return nil
}

// apply evaluates an intrinsic type rule. With unresolved inputs a failing
// rule only means "not yet"; with resolved inputs it is a type error.
func (t *typer) apply(spec *intrinsic.Spec, recv *ir.Type, args []*ir.Type, e *ir.Expr) (*ir.Type, error) {
	if err := spec.CheckArity(len(args)); err != nil {
		return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, spec.Name, "%v", err)
	}
	res, err := spec.Type(recv, args)
	if err != nil {
		if !recv.Known() || !allKnown(args) {
			return ir.Unknown, nil
		}
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, spec.Name, "%v", err)
	}
	if res == nil {
		return ir.Unknown, nil
	}
	return res, nil
}

func allKnown(ts []*ir.Type) bool {
	for _, t := range ts {
		if !t.Known() {
			return false
		}
	}
	return true
}

// localCall maps arguments onto the callee's parameters and flows their
// types into it. Extra positional arguments fill the variadic parameter.
func (t *typer) localCall(e *ir.Expr) (*ir.Type, error) {
	g := t.m.Func(e.Callee.Symbol)
	if g == nil {
		return nil, diag.Internal(diag.CodeInternalInvariant, e.Pos, e.Name,
			"call to missing function %q", e.Callee.Symbol)
	}
	fixedParams := g.Params
	var vararg *ir.Param
	if n := len(g.Params); n > 0 && g.Params[n-1].Vararg {
		vararg = g.Params[n-1]
		fixedParams = g.Params[:n-1]
	}
	filled := make([]bool, len(fixedParams))
	for i, a := range e.Args {
		ae := t.m.Expr(a)
		switch {
		case ae.Kind == ir.ExprStarred:
			if vararg == nil || i < len(fixedParams) {
				return nil, diag.Unsupported(diag.CodeUnsupportedForm, ae.Pos, g.Name,
					"argument unpacking into a fixed parameter of %s", g.Name)
			}
			at, err := t.expr(a, vararg.Type)
			if err != nil {
				return nil, err
			}
			if err := t.flow(g, vararg, at, ae.Pos); err != nil {
				return nil, err
			}
		case i < len(fixedParams):
			p := fixedParams[i]
			at, err := t.expr(a, p.Type)
			if err != nil {
				return nil, err
			}
			if err := t.flow(g, p, at, ae.Pos); err != nil {
				return nil, err
			}
			filled[i] = true
		case vararg != nil:
			at, err := t.expr(a, vararg.Type.Elem)
			if err != nil {
				return nil, err
			}
			if err := t.flow(g, vararg, ir.SeqOf(at), ae.Pos); err != nil {
				return nil, err
			}
		default:
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, g.Name,
				"%s takes %d positional arguments (%d given)", g.Name, len(fixedParams), len(e.Args))
		}
	}
	for _, kw := range e.Kwargs {
		idx := -1
		for i, p := range fixedParams {
			if p.Name == kw.Name {
				idx = i
			}
		}
		switch {
		case idx < 0:
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, g.Name,
				"%s has no parameter %q", g.Name, kw.Name)
		case filled[idx]:
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, g.Name,
				"%s got multiple values for %q", g.Name, kw.Name)
		}
		p := fixedParams[idx]
		at, err := t.expr(kw.Value, p.Type)
		if err != nil {
			return nil, err
		}
		if err := t.flow(g, p, at, t.m.Expr(kw.Value).Pos); err != nil {
			return nil, err
		}
		filled[idx] = true
	}
	for i, p := range fixedParams {
		if !filled[i] && p.Default == ir.NoExpr {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, g.Name,
				"%s is missing argument %q", g.Name, p.Name)
		}
	}
	return g.Return, nil
}

// valueCall calls a callable binding. Argument types refine the binding's
// parameter types, which in turn type the lambda it holds.
func (t *typer) valueCall(e *ir.Expr, want *ir.Type) (*ir.Type, error) {
	var ft *ir.Type
	b := t.binding(e.Name)
	switch {
	case b != nil:
		ft = b.Type
	default:
		st, ok := t.scoped(e.Name)
		if !ok {
			return nil, diag.Inference(diag.CodeInferUndefined, e.Pos, e.Name,
				"name %q is not defined", e.Name)
		}
		ft = st
	}
	for _, a := range e.Args {
		if ae := t.m.Expr(a); ae.Kind == ir.ExprStarred {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, ae.Pos, e.Name,
				"argument unpacking into %s", e.Name)
		}
	}
	if ft.IsUnknown() {
		args := make([]*ir.Type, len(e.Args))
		for i, a := range e.Args {
			at, err := t.expr(a, nil)
			if err != nil {
				return nil, err
			}
			args[i] = at
		}
		if b != nil {
			ret := ir.Unknown
			if want != nil {
				ret = want
			}
			t.setBinding(t.f, b, ir.FuncOf(ret, args...))
		}
		return ir.Unknown, nil
	}
	if ft.Kind != ir.KindFunc {
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, e.Name,
			"%q of type %s is not callable", e.Name, ft)
	}
	if len(e.Args) != len(ft.Items) {
		return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, e.Name,
			"%s takes %d arguments (%d given)", e.Name, len(ft.Items), len(e.Args))
	}
	items := make([]*ir.Type, len(e.Args))
	for i, a := range e.Args {
		at, err := t.expr(a, ft.Items[i])
		if err != nil {
			return nil, err
		}
		j, ok := ir.JoinNumeric(ft.Items[i], at)
		if !ok {
			if !assignable(at, ft.Items[i]) {
				return nil, diag.Inference(diag.CodeInferConflict, t.m.Expr(a).Pos, e.Name,
					"argument %d of %s: %s is not %s", i+1, e.Name, at, ft.Items[i])
			}
			j = ft.Items[i]
		}
		items[i] = j
	}
	ret := ft.Ret
	if want != nil && ret.IsUnknown() {
		ret = want
	}
	if b != nil && !ft.Known() {
		if err := t.store(t.f, b, ir.FuncOf(ret, items...), e.Pos); err != nil {
			return nil, err
		}
	}
	return ft.Ret, nil
}

func (t *typer) method(e *ir.Expr) (*ir.Type, error) {
	rt, err := t.expr(e.X, nil)
	if err != nil {
		return nil, err
	}
	if rt.IsUnknown() {
		if t.final {
			return nil, diag.Inference(diag.CodeInferUnresolved, e.Pos, "."+e.Name,
				"cannot resolve .%s() on a value of unknown type", e.Name)
		}
		if _, err := t.plainArgs(e, e.Name); err != nil {
			return nil, err
		}
		return ir.Unknown, nil
	}
	switch rt.Kind {
	case ir.KindOptional:
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "."+e.Name,
			"value of type %s may be None; test it before calling .%s()", rt, e.Name)
	case ir.KindDyn:
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "."+e.Name,
			"method .%s() called on a dynamic value", e.Name)
	}
	spec, ok := intrinsic.Method(rt, e.Name)
	if !ok {
		return nil, diag.Inference(diag.CodeInferConflict, e.Pos, "."+e.Name,
			"%s has no method %s()", rt, e.Name)
	}
	if err := spec.CheckArity(len(e.Args)); err != nil {
		return nil, diag.Unsupported(diag.CodeUnsupportedForm, e.Pos, e.Name, "%v", err)
	}
	args := make([]*ir.Type, len(e.Args))
	for i, a := range e.Args {
		if ae := t.m.Expr(a); ae.Kind == ir.ExprStarred {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, ae.Pos, e.Name,
				"argument unpacking into .%s()", e.Name)
		}
		at, err := t.expr(a, methodArgWant(rt, e.Name, i))
		if err != nil {
			return nil, err
		}
		args[i] = at
	}
	if g := grown(rt, e.Name, args); g != nil {
		t.refine(e.X, g)
		rt = t.m.TypeOf(e.X)
	}
	if spec.Mutates {
		t.mutate(e.X)
	}
	return t.apply(spec, rt, args, e)
}

// methodArgWant is the type a method argument is expected to have, so
// literals passed to a typed container pick up its element type.
func methodArgWant(recv *ir.Type, name string, i int) *ir.Type {
	switch recv.Kind {
	case ir.KindSeq:
		switch {
		case name == "append" && i == 0, name == "insert" && i == 1, name == "index" && i == 0, name == "count" && i == 0:
			return known(recv.Elem)
		case name == "insert" && i == 0, name == "pop" && i == 0:
			return ir.Int
		case name == "extend":
			return known(recv)
		}
	case ir.KindSet:
		if i == 0 {
			switch name {
			case "add", "discard", "remove":
				return known(recv.Elem)
			default:
				return known(recv)
			}
		}
	case ir.KindMap:
		switch {
		case (name == "get" || name == "pop") && i == 0:
			return known(recv.Key)
		case name == "get" && i == 1:
			return known(recv.Elem)
		case name == "update":
			return known(recv)
		}
	case ir.KindStr:
		if name == "join" {
			return ir.SeqOf(ir.Str)
		}
		return ir.Str
	}
	return nil
}

// grown is the receiver type a growth method implies, or nil.
func grown(recv *ir.Type, name string, args []*ir.Type) *ir.Type {
	switch {
	case recv.Kind == ir.KindSeq && name == "append":
		return ir.SeqOf(args[0])
	case recv.Kind == ir.KindSeq && name == "insert":
		return ir.SeqOf(args[1])
	case recv.Kind == ir.KindSeq && name == "extend":
		if elem, err := intrinsic.ElemOf(args[0]); err == nil {
			return ir.SeqOf(elem)
		}
	case recv.Kind == ir.KindSet && name == "add":
		return ir.SetOf(args[0])
	case recv.Kind == ir.KindMap && name == "update":
		if args[0].Kind == ir.KindMap {
			return args[0]
		}
	}
	return nil
}

// catalogType resolves a catalog type reference.
func (t *typer) catalogType(symbol string, ref srctree.TypeRef, p diag.Pos) (*ir.Type, error) {
	typ, err := lower.ResolveType(ref, t.cat)
	if err != nil {
		return nil, diag.Inference(diag.CodeInferUnresolved, p, symbol,
			"catalog type of %s: %v", symbol, err)
	}
	return typ, nil
}
