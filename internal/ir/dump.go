package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Dump renders the module as deterministic indented text: every node with
// its type, every binding with its ownership. It is a debugging aid and
// the basis of IR-level tests.
func Dump(m *Module) string {
	d := &dumper{m: m}
	d.line(0, "module %s", m.Name)
	for _, u := range m.Unions {
		d.line(0, "union %s on .%s", u.Name, u.Discriminant)
		for _, v := range u.Variants {
			fields := make([]string, len(v.Fields))
			for i, f := range v.Fields {
				fields[i] = f.Name + ": " + f.Type.String()
			}
			d.line(1, "%s %q {%s}", v.Name, v.Tag, strings.Join(fields, ", "))
		}
	}
	for _, c := range m.Constants {
		d.line(0, "const %s: %s = %s", c.Name, c.Type, d.expr(c.Value))
	}
	for _, f := range m.Functions {
		params := make([]string, len(f.Params))
		for i, p := range f.Params {
			star := ""
			if p.Vararg {
				star = "*"
			}
			params[i] = fmt.Sprintf("%s%s: %s %s", star, p.Name, p.Type, p.Own)
		}
		flags := ""
		if f.CanFail {
			flags += " can_fail"
		}
		if f.Generator {
			flags += " generator"
		}
		d.line(0, "fn %s(%s) -> %s%s", f.Name, strings.Join(params, ", "), f.Return, flags)
		for _, b := range SortedBindings(f) {
			if b.Param {
				continue
			}
			d.line(1, "local %s: %s %s", b.Name, b.Type, b.Own)
		}
		d.block(1, f.Body)
	}
	return d.sb.String()
}

type dumper struct {
	m  *Module
	sb strings.Builder
}

func (d *dumper) line(depth int, format string, args ...any) {
	d.sb.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(&d.sb, format, args...)
	d.sb.WriteByte('\n')
}

func (d *dumper) block(depth int, body []StmtID) {
	for _, id := range body {
		d.stmt(depth, d.m.Stmt(id))
	}
}

func (d *dumper) stmt(depth int, s *Stmt) {
	if s == nil {
		return
	}
	if len(s.Hoisted) > 0 {
		d.line(depth, "hoist %s", strings.Join(s.Hoisted, ", "))
	}
	switch s.Kind {
	case StmtAssign:
		kw := "set"
		if s.Declares {
			kw = "let"
		}
		d.line(depth, "%s %s = %s", kw, d.expr(s.Target), d.expr(s.Value))
	case StmtAugAssign:
		d.line(depth, "aug %s %s= %s", d.expr(s.Target), s.Op, d.expr(s.Value))
	case StmtIf:
		d.line(depth, "if %s", d.expr(s.Cond))
		d.block(depth+1, s.Body)
		if len(s.Else) > 0 {
			d.line(depth, "else")
			d.block(depth+1, s.Else)
		}
	case StmtWhile:
		d.line(depth, "while %s", d.expr(s.Cond))
		d.block(depth+1, s.Body)
	case StmtLoop:
		d.line(depth, "loop")
		d.block(depth+1, s.Body)
	case StmtLetElse:
		d.line(depth, "let-else %s = %s", d.expr(s.Target), d.expr(s.Value))
		d.block(depth+1, s.Body)
	case StmtFor:
		d.line(depth, "for %s in %s", d.expr(s.Target), d.expr(s.Value))
		d.block(depth+1, s.Body)
	case StmtTry:
		kw := "try"
		if s.Scoped {
			kw = "scope"
		}
		d.line(depth, "%s", kw)
		d.block(depth+1, s.Body)
		for _, h := range s.Handlers {
			name := ""
			if h.Name != "" {
				name = " as " + h.Name
			}
			d.line(depth, "except %s%s", strings.Join(h.Kinds, " | "), name)
			d.block(depth+1, h.Body)
		}
		if len(s.Else) > 0 {
			d.line(depth, "else")
			d.block(depth+1, s.Else)
		}
		if len(s.Finally) > 0 {
			d.line(depth, "finally")
			d.block(depth+1, s.Finally)
		}
	case StmtMatch:
		d.line(depth, "match %s: %s", d.expr(s.Match.Subject), s.Match.Union)
		for _, a := range s.Match.Arms {
			d.line(depth+1, "case %s", a.Variant)
			d.block(depth+2, a.Body)
		}
		if s.Match.HasDefault {
			d.line(depth+1, "case _")
			d.block(depth+2, s.Match.Default)
		}
	case StmtReturn:
		d.line(depth, "return %s", d.expr(s.Value))
	case StmtRaise:
		d.line(depth, "raise %s", d.expr(s.Value))
	case StmtExpr:
		d.line(depth, "expr %s", d.expr(s.Value))
	case StmtYield:
		d.line(depth, "yield %s", d.expr(s.Value))
	case StmtAssert:
		d.line(depth, "assert %s %s", d.expr(s.Cond), d.expr(s.Value))
	case StmtDel:
		parts := make([]string, len(s.Targets))
		for i, t := range s.Targets {
			parts[i] = d.expr(t)
		}
		d.line(depth, "del %s", strings.Join(parts, " "))
	default:
		d.line(depth, "%s", s.Kind)
	}
}

func (d *dumper) expr(id ExprID) string {
	e := d.m.Expr(id)
	if e == nil {
		return "_"
	}
	var body string
	switch e.Kind {
	case ExprLit:
		body = "lit " + formatLit(e.Lit)
	case ExprVar:
		body = "var " + e.Name
		if e.Use != UseUnset {
			body += " " + e.Use.String()
		}
	case ExprConst:
		body = "const " + e.Callee.Library + "." + e.Callee.Symbol
	case ExprAttr:
		body = "attr " + d.expr(e.X) + " ." + e.Name
	case ExprCall:
		body = fmt.Sprintf("call %s %s%s", e.Callee.Kind, calleeName(e), d.list(e.Args))
	case ExprMethodCall:
		body = fmt.Sprintf("method %s .%s%s", d.expr(e.X), e.Name, d.list(e.Args))
	case ExprBinary:
		body = fmt.Sprintf("binary %s %s %s", e.Op, d.expr(e.X), d.expr(e.Y))
	case ExprBoolOp:
		body = "boolop " + e.Op.String() + d.list(e.Args)
	case ExprUnary:
		body = "unary " + e.Op.String() + " " + d.expr(e.X)
	case ExprDict:
		parts := make([]string, len(e.Args))
		for i := range e.Args {
			parts[i] = d.expr(e.Keys[i]) + ": " + d.expr(e.Args[i])
		}
		body = "dict{" + strings.Join(parts, ", ") + "}"
	case ExprComp:
		body = fmt.Sprintf("comp %s", d.expr(e.Comp.Elt))
		for _, g := range e.Comp.Gens {
			body += fmt.Sprintf(" for %s in %s", d.expr(g.Target), d.expr(g.Iter))
		}
	case ExprLambda:
		body = "lambda " + strings.Join(e.Params, ",") + ": " + d.expr(e.X)
	case ExprNamed:
		body = "named " + e.Name + " := " + d.expr(e.X)
	default:
		body = e.Kind.String()
		kids := d.m.ExprChildren(id)
		for _, c := range kids {
			body += " " + d.expr(c)
		}
	}
	if e.Dynamic {
		body += " dyn"
	}
	if e.Fallible {
		body += " ?"
	}
	return "(" + body + "):" + e.Type.String()
}

func (d *dumper) list(ids []ExprID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = d.expr(id)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func calleeName(e *Expr) string {
	if e.Callee.Library != "" {
		return e.Callee.Library + "." + e.Callee.Symbol
	}
	return e.Name
}

func formatLit(l Literal) string {
	switch l.Kind {
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LitStr:
		return strconv.Quote(l.Str)
	case LitBool:
		return strconv.FormatBool(l.Bool)
	case LitNone:
		return "None"
	}
	return "?"
}
