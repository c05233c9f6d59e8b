package lower

import (
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/srctree"
)

// dispatchChain is an if/elif chain comparing one parameter's attribute
// against distinct string literals.
type dispatchChain struct {
	subject      string
	discriminant string
	arms         []dispatchArm
	dflt         []srctree.Stmt
	hasDefault   bool
}

type dispatchArm struct {
	tag  string
	pos  diag.Pos
	body []srctree.Stmt
}

// armScope is the variant a subject is known to hold inside an arm.
type armScope struct {
	union        string
	discriminant string
	tag          string
}

// tagTest matches `S.attr == "lit"` in either operand order.
func tagTest(test *srctree.Expr) (subject, attr, tag string, ok bool) {
	c := test.Compare
	if c == nil || len(c.Ops) != 1 || c.Ops[0] != "==" {
		return "", "", "", false
	}
	match := func(a, lit *srctree.Expr) bool {
		if a.Attr == nil || a.Attr.Value.Name == "" || lit.Str == nil {
			return false
		}
		subject, attr, tag = ident(a.Attr.Value.Name), a.Attr.Attr, *lit.Str
		return true
	}
	ok = match(&c.Left, &c.Comparators[0]) || match(&c.Comparators[0], &c.Left)
	return subject, attr, tag, ok
}

// detectDispatch recognizes tagged dispatch over an unannotated or
// class-annotated parameter. It returns nil for an ordinary conditional.
func (l *lowerer) detectDispatch(s *srctree.If) *dispatchChain {
	fs := l.fn
	d := &dispatchChain{}
	seen := make(map[string]bool)
	for cur := s; cur != nil; {
		subject, attr, tag, ok := tagTest(&cur.Test)
		if !ok {
			return nil
		}
		if d.subject == "" {
			d.subject, d.discriminant = subject, attr
		}
		if subject != d.subject || attr != d.discriminant || seen[tag] {
			return nil
		}
		seen[tag] = true
		d.arms = append(d.arms, dispatchArm{tag: tag, pos: pos(cur.Test.Pos), body: cur.Body})

		next := (*srctree.If)(nil)
		if len(cur.Else) == 1 && cur.Else[0].If != nil {
			if sub, attr, _, ok := tagTest(&cur.Else[0].If.Test); ok && sub == d.subject && attr == d.discriminant {
				next = cur.Else[0].If
			}
		}
		if next == nil && len(cur.Else) > 0 {
			d.dflt, d.hasDefault = cur.Else, true
		}
		cur = next
	}
	if len(d.arms) < 2 || !fs.params[d.subject] {
		return nil
	}
	param := fs.f.Param(d.subject)
	if param.Vararg || param.Annotated && param.Type.Kind != ir.KindUnion {
		return nil
	}
	return d
}

// dispatch lowers a recognized chain to a match over a closed union. The
// union is named after the parameter's class annotation when present,
// else after the parameter. Variant fields are the attributes each arm
// reads from the subject.
func (l *lowerer) dispatch(d *dispatchChain, p diag.Pos) ([]ir.StmtID, error) {
	fs := l.fn
	param := fs.f.Param(d.subject)

	name := fs.pending[d.subject]
	switch {
	case name != "":
	case param.Type.Kind == ir.KindUnion:
		name = param.Type.Name
	default:
		name = camel(d.subject)
	}
	delete(fs.pending, d.subject)
	param.Type = ir.UnionOf(name)
	param.Annotated = true

	u := l.m.Union(name)
	if u == nil {
		u = &ir.Union{Name: name, Discriminant: d.discriminant}
		l.m.Unions = append(l.m.Unions, u)
	} else if u.Discriminant != d.discriminant {
		return nil, diag.Unsupported(diag.CodeUnsupportedForm, p, name,
			"union %q is dispatched on both %q and %q", name, u.Discriminant, d.discriminant)
	}

	subject := l.m.NewExpr(ir.Expr{Kind: ir.ExprVar, Pos: p, Name: d.subject})
	match := &ir.Match{Subject: subject, Union: name}

	outer := fs.subjects[d.subject]
	defer func() { fs.subjects[d.subject] = outer }()

	for _, arm := range d.arms {
		if !arm.pos.IsValid() {
			arm.pos = p
		}
		vname := camel(arm.tag)
		v := u.Variant(vname)
		switch {
		case v == nil:
			v = &ir.Variant{Name: vname, Tag: arm.tag}
			u.Variants = append(u.Variants, v)
		case v.Tag != arm.tag:
			return nil, diag.Unsupported(diag.CodeUnsupportedForm, arm.pos, arm.tag,
				"tags %q and %q both name variant %s", v.Tag, arm.tag, vname)
		}

		fs.subjects[d.subject] = &armScope{union: name, discriminant: d.discriminant, tag: arm.tag}
		body, err := l.block(arm.body, arm.pos)
		if err != nil {
			return nil, err
		}
		l.m.WalkBodyExprs(body, func(_ ir.ExprID, e *ir.Expr) bool {
			if e.Kind != ir.ExprAttr {
				return true
			}
			if x := l.m.Expr(e.X); x != nil && x.Kind == ir.ExprVar && x.Name == d.subject && v.Field(e.Name) == nil {
				v.Fields = append(v.Fields, &ir.Field{Name: e.Name, Type: ir.Unknown})
			}
			return true
		})
		match.Arms = append(match.Arms, ir.Arm{Variant: vname, Body: body})
	}

	if d.hasDefault {
		delete(fs.subjects, d.subject)
		body, err := l.block(d.dflt, p)
		if err != nil {
			return nil, err
		}
		match.Default, match.HasDefault = body, true
	}
	return l.emit(ir.Stmt{Kind: ir.StmtMatch, Pos: p, Match: match}), nil
}
