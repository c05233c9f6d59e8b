package lower

import (
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/srctree"
)

func (l *lowerer) block(body []srctree.Stmt, outer diag.Pos) ([]ir.StmtID, error) {
	out := make([]ir.StmtID, 0, len(body))
	for i := range body {
		ids, err := l.stmt(&body[i], outer)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (l *lowerer) emit(s ir.Stmt) []ir.StmtID {
	return []ir.StmtID{l.m.NewStmt(s)}
}

func (l *lowerer) stmt(s *srctree.Stmt, outer diag.Pos) ([]ir.StmtID, error) {
	p := at(s.Pos, outer)
	fs := l.fn
	switch {
	case s.Assign != nil:
		return l.assign(s.Assign, p)

	case s.AugAssign != nil:
		op, ok := ir.ParseBinaryOp(s.AugAssign.Op)
		if !ok {
			return nil, diag.Unsupported(diag.CodeUnsupportedExpr, p, s.AugAssign.Op+"=",
				"unknown augmented operator")
		}
		target, err := l.storeTarget(&s.AugAssign.Target, p)
		if err != nil {
			return nil, err
		}
		value, err := l.expr(&s.AugAssign.Value, p)
		if err != nil {
			return nil, err
		}
		return l.emit(ir.Stmt{Kind: ir.StmtAugAssign, Pos: p, Target: target, Value: value, Op: op}), nil

	case s.If != nil:
		if d := l.detectDispatch(s.If); d != nil {
			return l.dispatch(d, p)
		}
		cond, err := l.expr(&s.If.Test, p)
		if err != nil {
			return nil, err
		}
		body, err := l.block(s.If.Body, p)
		if err != nil {
			return nil, err
		}
		els, err := l.block(s.If.Else, p)
		if err != nil {
			return nil, err
		}
		return l.emit(ir.Stmt{Kind: ir.StmtIf, Pos: p, Cond: cond, Body: body, Else: els}), nil

	case s.While != nil:
		return l.while(s.While, p)

	case s.For != nil:
		if len(s.For.Else) > 0 {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, "for-else",
				"no lowering rule for a loop else branch")
		}
		iter, err := l.expr(&s.For.Iter, p)
		if err != nil {
			return nil, err
		}
		target, err := l.bindTarget(&s.For.Target, p)
		if err != nil {
			return nil, err
		}
		fs.loops++
		body, err := l.block(s.For.Body, p)
		fs.loops--
		if err != nil {
			return nil, err
		}
		return l.emit(ir.Stmt{Kind: ir.StmtFor, Pos: p, Target: target, Value: iter, Body: body}), nil

	case s.Try != nil:
		return l.try(s.Try, p)

	case s.With != nil:
		return l.with(s.With, p)

	case s.Return != nil:
		var value ir.ExprID
		if s.Return.Value != nil {
			if fs.generator {
				return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, "return",
					"generator %q returns a value", fs.f.Name)
			}
			v, err := l.expr(s.Return.Value, p)
			if err != nil {
				return nil, err
			}
			value = v
		}
		return l.emit(ir.Stmt{Kind: ir.StmtReturn, Pos: p, Value: value}), nil

	case s.Raise != nil:
		return l.raise(s.Raise, p)

	case s.Expr != nil:
		return l.exprStmt(s.Expr, p)

	case s.Del != nil:
		var targets []ir.ExprID
		for i := range s.Del.Targets {
			t := &s.Del.Targets[i]
			if t.Name == "" && t.Subscript == nil {
				return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, "del",
					"del target must be a name or a subscript")
			}
			id, err := l.storeTarget(t, p)
			if err != nil {
				return nil, err
			}
			targets = append(targets, id)
		}
		return l.emit(ir.Stmt{Kind: ir.StmtDel, Pos: p, Targets: targets}), nil

	case s.Assert != nil:
		cond, err := l.expr(&s.Assert.Test, p)
		if err != nil {
			return nil, err
		}
		var msg ir.ExprID
		if s.Assert.Msg != nil {
			if msg, err = l.expr(s.Assert.Msg, p); err != nil {
				return nil, err
			}
		}
		return l.emit(ir.Stmt{Kind: ir.StmtAssert, Pos: p, Cond: cond, Value: msg}), nil

	case s.Pass:
		return l.emit(ir.Stmt{Kind: ir.StmtPass, Pos: p}), nil

	case s.Break, s.Continue:
		if fs.loops == 0 {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, s.Kind(),
				"%s outside a loop", s.Kind())
		}
		kind := ir.StmtBreak
		if s.Continue {
			kind = ir.StmtContinue
		}
		return l.emit(ir.Stmt{Kind: kind, Pos: p}), nil

	case s.Def != nil:
		return nil, diag.Unsupported(diag.CodeUnsupportedStmt, p, "def",
			"no lowering rule for nested function %q", s.Def.Name)
	case s.Class != nil:
		return nil, diag.Unsupported(diag.CodeUnsupportedStmt, p, "class",
			"no lowering rule for class definitions")
	case s.Global != nil, s.Nonlocal != nil:
		return nil, diag.Unsupported(diag.CodeUnsupportedStmt, p, s.Kind(),
			"no lowering rule for rebinding enclosing scopes")
	case s.Import != nil, s.ImportFrom != nil:
		return nil, diag.Unsupported(diag.CodeUnsupportedImport, p, s.Kind(),
			"imports must be at module level")
	}
	return nil, diag.Unsupported(diag.CodeUnsupportedStmt, p, s.Kind(),
		"no lowering rule for statement")
}

func (l *lowerer) assign(a *srctree.Assign, p diag.Pos) ([]ir.StmtID, error) {
	fs := l.fn
	var annot *ir.Type
	if a.Type != nil {
		t, err := l.resolveType(*a.Type, p)
		if err != nil {
			return nil, err
		}
		annot = t
	}
	if a.Value == nil {
		// `x: T` alone declares the type of a later assignment.
		if a.Target.Name == "" {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, "annotation",
				"bare annotation of a non-name target")
		}
		fs.annots[ident(a.Target.Name)] = annot
		return nil, nil
	}
	if a.Target.Name != "" && annot == nil {
		annot = fs.annots[ident(a.Target.Name)]
	}

	value, err := l.expr(a.Value, p)
	if err != nil {
		return nil, err
	}
	var target ir.ExprID
	if a.Target.Subscript != nil {
		target, err = l.storeTarget(&a.Target, p)
	} else {
		target, err = l.bindTarget(&a.Target, p)
	}
	if err != nil {
		return nil, err
	}
	return l.emit(ir.Stmt{Kind: ir.StmtAssign, Pos: p, Target: target, Value: value, Annot: annot}), nil
}

// bindTarget lowers a name or tuple-of-names binding target.
func (l *lowerer) bindTarget(e *srctree.Expr, p diag.Pos) (ir.ExprID, error) {
	p = at(e.Pos, p)
	switch {
	case e.Name != "":
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: ident(e.Name)}), nil
	case e.Tuple != nil, e.List != nil:
		elts := e.Tuple
		if elts == nil {
			elts = e.List
		}
		args := make([]ir.ExprID, len(elts.Elts))
		for i := range elts.Elts {
			id, err := l.bindTarget(&elts.Elts[i], p)
			if err != nil {
				return ir.NoExpr, err
			}
			args[i] = id
		}
		return l.m.NewExpr(ir.Expr{Kind: ir.ExprTuple, Pos: p, Args: args}), nil
	case e.Attr != nil:
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, "attribute store",
			"no lowering rule for storing to attribute %q", e.Attr.Attr)
	case e.Starred != nil:
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, "starred target",
			"no lowering rule for starred unpacking")
	}
	return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, e.Kind(),
		"invalid binding target")
}

// storeTarget lowers a name or single-index subscript store.
func (l *lowerer) storeTarget(e *srctree.Expr, p diag.Pos) (ir.ExprID, error) {
	p = at(e.Pos, p)
	if e.Subscript == nil {
		if e.Name == "" {
			return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, e.Kind(),
				"target must be a name or a subscript")
		}
		return l.bindTarget(e, p)
	}
	if e.Subscript.Slice != nil {
		return ir.NoExpr, diag.Unsupported(diag.CodeUnsupportedForm, p, "slice",
			"no lowering rule for slice assignment")
	}
	return l.expr(e, p)
}

func (l *lowerer) while(w *srctree.While, p diag.Pos) ([]ir.StmtID, error) {
	fs := l.fn
	if len(w.Else) > 0 {
		return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, "while-else",
			"no lowering rule for a loop else branch")
	}
	if named := walrusHead(&w.Test); named != nil {
		// while (x := e): body  =>  loop { let x = e else break; body }
		value, err := l.expr(&named.Value, p)
		if err != nil {
			return nil, err
		}
		target := l.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: ident(named.Target)})
		head := l.m.NewStmt(ir.Stmt{Kind: ir.StmtLetElse, Pos: p, Target: target, Value: value})
		fs.loops++
		body, err := l.block(w.Body, p)
		fs.loops--
		if err != nil {
			return nil, err
		}
		return l.emit(ir.Stmt{Kind: ir.StmtLoop, Pos: p, Body: append([]ir.StmtID{head}, body...)}), nil
	}
	cond, err := l.expr(&w.Test, p)
	if err != nil {
		return nil, err
	}
	fs.loops++
	body, err := l.block(w.Body, p)
	fs.loops--
	if err != nil {
		return nil, err
	}
	return l.emit(ir.Stmt{Kind: ir.StmtWhile, Pos: p, Cond: cond, Body: body}), nil
}

// walrusHead matches `(x := e)` and `(x := e) is not None` loop tests.
func walrusHead(test *srctree.Expr) *srctree.NamedExpr {
	if test.Walrus != nil {
		return test.Walrus
	}
	c := test.Compare
	if c != nil && len(c.Ops) == 1 && c.Ops[0] == "is not" && c.Left.Walrus != nil && c.Comparators[0].None {
		return c.Left.Walrus
	}
	return nil
}

func (l *lowerer) try(t *srctree.Try, p diag.Pos) ([]ir.StmtID, error) {
	fs := l.fn
	body, err := l.block(t.Body, p)
	if err != nil {
		return nil, err
	}
	s := ir.Stmt{Kind: ir.StmtTry, Pos: p, Body: body}
	for i := range t.Handlers {
		h := &t.Handlers[i]
		hp := at(h.Pos, p)
		for _, kind := range h.Types {
			if !intrinsic.IsException(kind) {
				return nil, diag.Unsupported(diag.CodeUnsupportedForm, hp, "except "+kind,
					"no lowering rule for handlers of user-defined exception %q", kind)
			}
		}
		fs.handlers = append(fs.handlers, ident(h.Name))
		hbody, err := l.block(h.Body, hp)
		fs.handlers = fs.handlers[:len(fs.handlers)-1]
		if err != nil {
			return nil, err
		}
		s.Handlers = append(s.Handlers, ir.Handler{Pos: hp, Kinds: h.Types, Name: ident(h.Name), Body: hbody})
	}
	if s.Else, err = l.block(t.Else, p); err != nil {
		return nil, err
	}
	if s.Finally, err = l.block(t.Finally, p); err != nil {
		return nil, err
	}
	return l.emit(s), nil
}

// with lowers a context-manager block to a scoped guarded region whose
// body first binds each context value.
func (l *lowerer) with(w *srctree.With, p diag.Pos) ([]ir.StmtID, error) {
	var body []ir.StmtID
	for i := range w.Items {
		item := &w.Items[i]
		ctx, err := l.expr(&item.Context, p)
		if err != nil {
			return nil, err
		}
		if item.As == "" {
			body = append(body, l.m.NewStmt(ir.Stmt{Kind: ir.StmtExpr, Pos: p, Value: ctx}))
			continue
		}
		target := l.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: ident(item.As)})
		body = append(body, l.m.NewStmt(ir.Stmt{Kind: ir.StmtAssign, Pos: p, Target: target, Value: ctx}))
	}
	rest, err := l.block(w.Body, p)
	if err != nil {
		return nil, err
	}
	body = append(body, rest...)
	return l.emit(ir.Stmt{Kind: ir.StmtTry, Pos: p, Body: body, Scoped: true}), nil
}

func (l *lowerer) raise(r *srctree.Raise, p diag.Pos) ([]ir.StmtID, error) {
	fs := l.fn
	if r.Exc == nil {
		if len(fs.handlers) == 0 {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, "raise",
				"bare raise outside an except clause")
		}
		return l.emit(ir.Stmt{Kind: ir.StmtRaise, Pos: p}), nil
	}
	e := r.Exc
	ep := at(e.Pos, p)
	switch {
	case e.Name != "" && intrinsic.IsException(e.Name):
		// `raise ValueError` constructs an empty instance.
		id := l.m.NewExpr(ir.Expr{
			Kind: ir.ExprCall, Pos: ep, Name: e.Name, Type: ir.Exception,
			Callee: ir.Callee{Kind: ir.CallException, Symbol: e.Name},
		})
		return l.emit(ir.Stmt{Kind: ir.StmtRaise, Pos: p, Value: id}), nil
	case e.Call != nil && e.Call.Func.Name != "" && !intrinsic.IsException(e.Call.Func.Name) && !l.funcs[e.Call.Func.Name]:
		return nil, diag.Unsupported(diag.CodeUnsupportedForm, ep, "raise "+e.Call.Func.Name,
			"no lowering rule for raising user-defined exception %q", e.Call.Func.Name)
	}
	id, err := l.expr(e, p)
	if err != nil {
		return nil, err
	}
	return l.emit(ir.Stmt{Kind: ir.StmtRaise, Pos: p, Value: id}), nil
}

func (l *lowerer) exprStmt(e *srctree.Expr, p diag.Pos) ([]ir.StmtID, error) {
	fs := l.fn
	p = at(e.Pos, p)
	switch {
	case e.Str != nil:
		// Docstrings and bare string statements have no effect.
		return nil, nil
	case e.Yield != nil:
		if e.Yield.Value == nil {
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, "yield",
				"yield without a value")
		}
		value, err := l.expr(e.Yield.Value, p)
		if err != nil {
			return nil, err
		}
		if !e.Yield.From {
			return l.emit(ir.Stmt{Kind: ir.StmtYield, Pos: p, Value: value}), nil
		}
		// yield from xs  =>  for _y in xs: yield _y
		name := fs.temp("y")
		target := l.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: name})
		read := l.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: name})
		yield := l.m.NewStmt(ir.Stmt{Kind: ir.StmtYield, Pos: p, Value: read})
		return l.emit(ir.Stmt{Kind: ir.StmtFor, Pos: p, Target: target, Value: value, Body: []ir.StmtID{yield}}), nil
	}
	value, err := l.expr(e, p)
	if err != nil {
		return nil, err
	}
	return l.emit(ir.Stmt{Kind: ir.StmtExpr, Pos: p, Value: value}), nil
}
