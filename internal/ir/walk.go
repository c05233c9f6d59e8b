package ir

// ExprChildren returns the direct sub-expressions of id in source
// evaluation order.
func (m *Module) ExprChildren(id ExprID) []ExprID {
	e := m.Expr(id)
	if e == nil {
		return nil
	}
	var out []ExprID
	add := func(ids ...ExprID) {
		for _, x := range ids {
			if x != NoExpr {
				out = append(out, x)
			}
		}
	}
	switch e.Kind {
	case ExprAttr, ExprUnary, ExprStarred, ExprNamed, ExprTruthy, ExprCast, ExprLambda:
		add(e.X)
	case ExprSubscript, ExprBinary:
		add(e.X, e.Y)
	case ExprSlice:
		add(e.X, e.Y, e.Z)
	case ExprIfExp:
		// Condition first, then the taken branch; both listed.
		add(e.X, e.Y, e.Z)
	case ExprCall:
		add(e.Args...)
		for _, kw := range e.Kwargs {
			add(kw.Value)
		}
	case ExprMethodCall:
		add(e.X)
		add(e.Args...)
		for _, kw := range e.Kwargs {
			add(kw.Value)
		}
	case ExprDict:
		for i := range e.Args {
			add(e.Keys[i], e.Args[i])
		}
	case ExprBoolOp, ExprList, ExprSet, ExprTuple, ExprFString:
		add(e.Args...)
	case ExprComp:
		for _, g := range e.Comp.Gens {
			add(g.Iter, g.Target)
			add(g.Ifs...)
		}
		add(e.Comp.Key, e.Comp.Elt)
	}
	return out
}

// WalkExpr visits id and its descendants in pre-order. Returning false
// from fn skips the node's children.
func (m *Module) WalkExpr(id ExprID, fn func(ExprID, *Expr) bool) {
	e := m.Expr(id)
	if e == nil {
		return
	}
	if !fn(id, e) {
		return
	}
	for _, c := range m.ExprChildren(id) {
		m.WalkExpr(c, fn)
	}
}

// StmtExprs returns the expressions a statement evaluates itself, not
// counting nested blocks, in evaluation order.
func (m *Module) StmtExprs(s *Stmt) []ExprID {
	var out []ExprID
	add := func(ids ...ExprID) {
		for _, x := range ids {
			if x != NoExpr {
				out = append(out, x)
			}
		}
	}
	switch s.Kind {
	case StmtAssign, StmtAugAssign, StmtLetElse:
		// Value is evaluated before the store.
		add(s.Value, s.Target)
	case StmtFor:
		add(s.Value, s.Target)
	case StmtIf, StmtWhile:
		add(s.Cond)
	case StmtAssert:
		add(s.Cond, s.Value)
	case StmtReturn, StmtRaise, StmtExpr, StmtYield:
		add(s.Value)
	case StmtDel:
		add(s.Targets...)
	case StmtMatch:
		add(s.Match.Subject)
	}
	return out
}

// Blocks returns the nested statement blocks of s in source order.
func Blocks(s *Stmt) [][]StmtID {
	var out [][]StmtID
	switch s.Kind {
	case StmtIf, StmtWhile, StmtFor:
		out = append(out, s.Body, s.Else)
	case StmtLoop, StmtLetElse:
		out = append(out, s.Body)
	case StmtTry:
		out = append(out, s.Body)
		for _, h := range s.Handlers {
			out = append(out, h.Body)
		}
		out = append(out, s.Else, s.Finally)
	case StmtMatch:
		for _, a := range s.Match.Arms {
			out = append(out, a.Body)
		}
		out = append(out, s.Match.Default)
	}
	return out
}

// WalkStmts visits every statement in body and its nested blocks in
// pre-order. Returning false from fn skips the statement's blocks.
func (m *Module) WalkStmts(body []StmtID, fn func(StmtID, *Stmt) bool) {
	for _, id := range body {
		s := m.Stmt(id)
		if s == nil {
			continue
		}
		if !fn(id, s) {
			continue
		}
		for _, b := range Blocks(s) {
			m.WalkStmts(b, fn)
		}
	}
}

// WalkBodyExprs visits every expression reachable from body, statement by
// statement, in pre-order.
func (m *Module) WalkBodyExprs(body []StmtID, fn func(ExprID, *Expr) bool) {
	m.WalkStmts(body, func(_ StmtID, s *Stmt) bool {
		for _, e := range m.StmtExprs(s) {
			m.WalkExpr(e, fn)
		}
		return true
	})
}

// VarsRead returns the names read by Var nodes under id, in order, with
// duplicates.
func (m *Module) VarsRead(id ExprID) []string {
	var names []string
	m.WalkExpr(id, func(_ ExprID, e *Expr) bool {
		if e.Kind == ExprVar {
			names = append(names, e.Name)
		}
		return true
	})
	return names
}
