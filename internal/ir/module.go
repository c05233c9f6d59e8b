package ir

import "sort"

// Module is one compilation unit and the arena owning all of its nodes.
type Module struct {
	Name      string
	Path      string
	Functions []*Function
	Constants []*Constant
	Unions    []*Union
	Imports   map[string]Import

	exprs []*Expr
	stmts []*Stmt
}

// NewModule returns an empty module with initialized arenas.
func NewModule(name string) *Module {
	return &Module{
		Name:    name,
		Imports: make(map[string]Import),
		exprs:   []*Expr{nil},
		stmts:   []*Stmt{nil},
	}
}

// NewExpr adds e to the arena and returns its ID.
func (m *Module) NewExpr(e Expr) ExprID {
	if e.Type == nil {
		e.Type = Unknown
	}
	m.exprs = append(m.exprs, &e)
	return ExprID(len(m.exprs) - 1)
}

// NewStmt adds s to the arena and returns its ID.
func (m *Module) NewStmt(s Stmt) StmtID {
	m.stmts = append(m.stmts, &s)
	return StmtID(len(m.stmts) - 1)
}

// Expr returns the node for id, or nil for NoExpr.
func (m *Module) Expr(id ExprID) *Expr {
	if id <= 0 || int(id) >= len(m.exprs) {
		return nil
	}
	return m.exprs[id]
}

// Stmt returns the node for id, or nil for NoStmt.
func (m *Module) Stmt(id StmtID) *Stmt {
	if id <= 0 || int(id) >= len(m.stmts) {
		return nil
	}
	return m.stmts[id]
}

// NumExprs returns the arena size, including the null slot.
func (m *Module) NumExprs() int { return len(m.exprs) }

// NumStmts returns the arena size, including the null slot.
func (m *Module) NumStmts() int { return len(m.stmts) }

// TypeOf returns the type of id, Unknown for NoExpr.
func (m *Module) TypeOf(id ExprID) *Type {
	if e := m.Expr(id); e != nil && e.Type != nil {
		return e.Type
	}
	return Unknown
}

// Func returns the named function, or nil.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Const returns the named constant, or nil.
func (m *Module) Const(name string) *Constant {
	for _, c := range m.Constants {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Union returns the named union, or nil.
func (m *Module) Union(name string) *Union {
	for _, u := range m.Unions {
		if u.Name == name {
			return u
		}
	}
	return nil
}

// ImportAliases returns import aliases in sorted order.
func (m *Module) ImportAliases() []string {
	out := make([]string, 0, len(m.Imports))
	for alias := range m.Imports {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// SortedBindings returns a function's bindings ordered by name.
func SortedBindings(f *Function) []*Binding {
	out := make([]*Binding, 0, len(f.Bindings))
	for _, b := range f.Bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
