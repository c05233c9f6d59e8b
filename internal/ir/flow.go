package ir

// Terminates reports whether control never falls off the end of body:
// its last statement returns, raises, breaks or continues, or is a
// compound statement every path of which does.
func (m *Module) Terminates(body []StmtID) bool {
	if len(body) == 0 {
		return false
	}
	s := m.Stmt(body[len(body)-1])
	if s == nil {
		return false
	}
	switch s.Kind {
	case StmtReturn, StmtRaise, StmtBreak, StmtContinue:
		return true
	case StmtIf:
		return m.Terminates(s.Body) && m.Terminates(s.Else)
	case StmtMatch:
		for _, a := range s.Match.Arms {
			if !m.Terminates(a.Body) {
				return false
			}
		}
		return !s.Match.HasDefault || m.Terminates(s.Match.Default)
	case StmtTry:
		if len(s.Finally) > 0 && m.Terminates(s.Finally) {
			return true
		}
		tail := s.Body
		if len(s.Else) > 0 {
			tail = s.Else
		}
		if !m.Terminates(tail) {
			return false
		}
		for _, h := range s.Handlers {
			if !m.Terminates(h.Body) {
				return false
			}
		}
		return true
	case StmtLoop, StmtWhile:
		return m.IsInfinite(s) && !m.breaks(s.Body)
	}
	return false
}

// breaks reports a break that exits the loop owning body, ignoring
// breaks of nested loops.
func (m *Module) breaks(body []StmtID) bool {
	found := false
	m.WalkStmts(body, func(_ StmtID, s *Stmt) bool {
		switch s.Kind {
		case StmtBreak:
			found = true
		case StmtLetElse:
			// The else branch breaks.
			found = true
		case StmtWhile, StmtFor, StmtLoop:
			return false
		}
		return !found
	})
	return found
}

// IsInfinite reports a loop whose header never ends it: `loop` and
// `while True`.
func (m *Module) IsInfinite(s *Stmt) bool {
	switch s.Kind {
	case StmtLoop:
		return true
	case StmtWhile:
		c := m.Expr(s.Cond)
		return c != nil && c.Kind == ExprLit && c.Lit.Kind == LitBool && c.Lit.Bool
	}
	return false
}
