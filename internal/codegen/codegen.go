// Package codegen emits target source for an analyzed, optimized module.
//
// Generation reads the ownership and fallibility facts inference attached
// to the IR and never guesses them: every Var read is rendered by its Use,
// every call argument by its Pass, and every fallible call by the
// exception destination in effect where it appears. Output is a pure
// function of the module, the catalog and the policy, so the same IR always
// yields byte-identical text.
package codegen

import (
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
)

// Output is the emitted text of one unit and what it depends on.
type Output struct {
	Source string
	// Entries lists the catalog symbols the text calls, by key.
	Entries []*catalog.Entry
	// Crates lists the pinned external crates those entries need.
	Crates []catalog.Crate
}

// indentUnit is one level of target indentation.
const indentUnit = "    "

// frame is one enclosing construct that changes where control goes when
// an exception is raised or a loop is exited.
type frame struct {
	// label names a guarded try body; raising breaks out of it.
	label string
	// finally runs before control leaves through this frame.
	finally []ir.StmtID
	// loop marks a loop boundary for break and continue.
	loop bool
	// loopLabel is set when break and continue must name the loop.
	loopLabel string
}

type gen struct {
	m   *ir.Module
	cat *catalog.Catalog
	pol config.Policy

	out   *strings.Builder
	depth int

	f *ir.Function
	// pos is the statement being rendered, for diagnostics.
	pos     diag.Pos
	frames  []frame
	scopes  []map[string]*ir.Type
	arms    map[string]map[string]string
	handled []string
	// inConst is set while rendering a constant initializer.
	inConst bool
	// closures counts enclosing lambda bodies.
	closures int
	labels   int
	temps    int

	used map[catalog.Key]*catalog.Entry
	err  error
}

// Generate renders m. It applies the truthiness conversion first, so the
// module must be fully inferred and optimized.
func Generate(m *ir.Module, cat *catalog.Catalog, pol config.Policy) (*Output, error) {
	if err := checkKnown(m); err != nil {
		return nil, err
	}
	Truthiness(m)
	g := &gen{
		m:    m,
		cat:  cat,
		pol:  pol,
		out:  &strings.Builder{},
		arms: make(map[string]map[string]string),
		used: make(map[catalog.Key]*catalog.Entry),
	}

	var items []string
	for _, u := range m.Unions {
		items = append(items, g.union(u))
	}
	for _, c := range m.Constants {
		items = append(items, g.constant(c))
	}
	for _, f := range m.Functions {
		items = append(items, g.function(f))
	}
	if g.err != nil {
		return nil, diag.WithUnit(g.err, m.Name)
	}
	body := strings.Join(items, "\n\n")

	var b strings.Builder
	b.WriteString("// Code generated by ferrule from " + m.Name + ". DO NOT EDIT.\n")
	if uses := useDecls(body); uses != "" {
		b.WriteString("\n" + uses)
	}
	for _, p := range prelude(body) {
		b.WriteString("\n" + p + "\n")
	}
	b.WriteString("\n" + body + "\n")

	out := &Output{Source: b.String()}
	keys := make([]catalog.Key, 0, len(g.used))
	for k := range g.used {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		out.Entries = append(out.Entries, g.used[k])
	}
	crates, err := cat.RequiredCrates(out.Entries)
	if err != nil {
		return nil, diag.Internal(diag.CodeInternalInvariant, diag.Pos{}, "crates", "%v", err)
	}
	out.Crates = crates
	return out, nil
}

func useDecls(body string) string {
	var colls []string
	for _, c := range []string{"HashMap", "HashSet"} {
		if mentions(body, c) {
			colls = append(colls, c)
		}
	}
	var b strings.Builder
	switch len(colls) {
	case 1:
		b.WriteString("use std::collections::" + colls[0] + ";\n")
	case 2:
		b.WriteString("use std::collections::{HashMap, HashSet};\n")
	}
	if mentions(body, "LazyLock") {
		b.WriteString("use std::sync::LazyLock;\n")
	}
	return b.String()
}

// checkKnown rejects a module in which any type inference left Unknown.
func checkKnown(m *ir.Module) error {
	unknown := func(pos diag.Pos, what string, t *ir.Type) error {
		return diag.Internal(diag.CodeInternalUnknownTyp, pos, what,
			"type of %s is %s at code generation", what, t)
	}
	exprs := func(id ir.ExprID) error {
		var err error
		m.WalkExpr(id, func(_ ir.ExprID, e *ir.Expr) bool {
			if err == nil && !e.Type.Known() {
				err = unknown(e.Pos, e.Kind.String()+" expression", e.Type)
			}
			return err == nil
		})
		return err
	}
	for _, u := range m.Unions {
		for _, v := range u.Variants {
			for _, fd := range v.Fields {
				if !fd.Type.Known() {
					return unknown(diag.Pos{}, u.Name+"."+v.Name+"."+fd.Name, fd.Type)
				}
			}
		}
	}
	for _, c := range m.Constants {
		if !c.Type.Known() {
			return unknown(c.Pos, "constant "+c.Name, c.Type)
		}
		if err := exprs(c.Value); err != nil {
			return err
		}
	}
	for _, f := range m.Functions {
		if !f.Return.Known() {
			return unknown(f.Pos, "return of "+f.Name, f.Return)
		}
		for _, p := range f.Params {
			if !p.Type.Known() {
				return unknown(p.Pos, "parameter "+p.Name, p.Type)
			}
			if err := exprs(p.Default); err != nil {
				return err
			}
		}
		for _, b := range ir.SortedBindings(f) {
			if !b.Type.Known() {
				return unknown(f.Pos, "binding "+b.Name, b.Type)
			}
		}
		var err error
		m.WalkStmts(f.Body, func(_ ir.StmtID, s *ir.Stmt) bool {
			for _, id := range m.StmtExprs(s) {
				if err == nil {
					err = exprs(id)
				}
			}
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// fail records the first error; rendering continues with placeholder text
// that is discarded.
func (g *gen) fail(err error) string {
	if g.err == nil {
		g.err = err
	}
	return "_"
}

func (g *gen) internal(pos diag.Pos, construct, format string, args ...any) string {
	return g.fail(diag.Internal(diag.CodeInternalInvariant, pos, construct, format, args...))
}

func (g *gen) unsupported(pos diag.Pos, construct, format string, args ...any) string {
	return g.fail(diag.Unsupported(diag.CodeUnsupportedForm, pos, construct, format, args...))
}

// line writes s at the current depth. Lines after the first keep their
// indentation relative to it.
func (g *gen) line(s string) {
	prefix := strings.Repeat(indentUnit, g.depth)
	for _, l := range strings.Split(s, "\n") {
		if l == "" {
			g.out.WriteString("\n")
			continue
		}
		g.out.WriteString(prefix + l + "\n")
	}
}

// open writes s and indents what follows.
func (g *gen) open(s string) {
	g.line(s)
	g.depth++
}

// close dedents and writes s.
func (g *gen) close(s string) {
	g.depth--
	g.line(s)
}

// capture renders fn at depth zero into a separate buffer and returns
// its text without the trailing newline.
func (g *gen) capture(fn func()) string {
	out, depth := g.out, g.depth
	g.out, g.depth = &strings.Builder{}, 0
	fn()
	s := strings.TrimRight(g.out.String(), "\n")
	g.out, g.depth = out, depth
	return s
}

// blockExpr wraps statement lines and a tail expression into a block
// expression.
func blockExpr(stmts, tail string) string {
	var b strings.Builder
	b.WriteString("{\n")
	for _, l := range strings.Split(stmts, "\n") {
		if l != "" {
			b.WriteString(indentUnit + l + "\n")
		}
	}
	if tail != "" {
		for _, l := range strings.Split(tail, "\n") {
			b.WriteString(indentUnit + l + "\n")
		}
	}
	b.WriteString("}")
	return b.String()
}

func (g *gen) temp(prefix string) string {
	g.temps++
	return "__" + prefix + strconv.Itoa(g.temps)
}

func (g *gen) union(u *ir.Union) string {
	return g.capture(func() {
		g.line("#[derive(Debug, Clone, PartialEq)]")
		g.open("pub enum " + u.Name + " {")
		for _, v := range u.Variants {
			if len(v.Fields) == 0 {
				g.line(v.Name + " {},")
				continue
			}
			fields := make([]string, len(v.Fields))
			for i, fd := range v.Fields {
				fields[i] = ident(fd.Name) + ": " + g.rustType(fd.Type)
			}
			g.line(v.Name + " { " + strings.Join(fields, ", ") + " },")
		}
		g.close("}")
	})
}

// plainConst reports a constant whose initializer is a Copy literal, which
// can be a compile-time constant.
func (g *gen) plainConst(c *ir.Constant) bool {
	if !c.Type.IsCopy() {
		return false
	}
	e := g.m.Expr(c.Value)
	if e.Kind == ir.ExprUnary && e.Op == ir.OpNeg {
		e = g.m.Expr(e.X)
	}
	return e.Kind == ir.ExprLit && e.Lit.Kind != ir.LitNone
}

func (g *gen) constant(c *ir.Constant) string {
	g.f = nil
	g.inConst = true
	defer func() { g.inConst = false }()
	t := g.rustType(c.Type)
	v := g.value(c.Value, c.Type)
	if g.plainConst(c) {
		return "pub const " + c.Name + ": " + t + " = " + v + ";"
	}
	return "pub static " + c.Name + ": LazyLock<" + t + "> = LazyLock::new(|| " + v + ");"
}

func (g *gen) function(f *ir.Function) string {
	g.f = f
	g.frames = nil
	g.labels = 0
	g.temps = 0
	return g.capture(func() {
		params := make([]string, len(f.Params))
		for i, p := range f.Params {
			mut := ""
			if p.Own == ir.OwnedMut {
				mut = "mut "
			}
			params[i] = mut + ident(p.Name) + ": " + g.paramType(p.Type, p.Own)
		}
		sig := "fn " + ident(f.Name) + "(" + strings.Join(params, ", ") + ")"
		if !f.Main {
			sig = "pub " + sig
		}
		if ret := g.returnType(f); ret != "" {
			sig += " -> " + ret
		}
		g.open(sig + " {")
		if f.Generator {
			g.line("let mut _out: " + g.rustType(f.Return) + " = Vec::new();")
		}
		g.block(f.Body)
		if !g.m.Terminates(f.Body) {
			if tail := g.tailValue(); tail != "" {
				g.line(tail)
			}
		}
		g.close("}")
	})
}

func (g *gen) returnType(f *ir.Function) string {
	ret := ""
	if f.Return.Kind != ir.KindUnit {
		ret = g.rustType(f.Return)
	}
	if f.CanFail {
		if ret == "" {
			ret = "()"
		}
		return "Result<" + ret + ", Exception>"
	}
	return ret
}

// tailValue is the tail expression of a function whose body can end
// without returning.
func (g *gen) tailValue() string {
	v := fallthroughValue(g.f.Return)
	if g.f.Generator {
		v = "_out"
	}
	if g.f.CanFail {
		return "Ok(" + v + ")"
	}
	if v == "()" {
		return ""
	}
	return v
}
