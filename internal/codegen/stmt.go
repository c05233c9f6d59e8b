package codegen

import (
	"strconv"
	"strings"

	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
)

// block renders a statement list at the current depth.
func (g *gen) block(body []ir.StmtID) {
	for _, id := range body {
		s := g.m.Stmt(id)
		if s == nil {
			continue
		}
		for _, n := range s.Hoisted {
			b := g.binding(n)
			if b == nil {
				g.internal(s.Pos, n, "hoisted name %q has no binding", n)
				continue
			}
			mut := ""
			if b.Own.IsMut() || b.Reassigned {
				mut = "mut "
			}
			g.line("let " + mut + ident(n) + ": " + g.rustType(b.Type) + ";")
		}
		g.stmt(id, s)
		if g.err != nil {
			return
		}
	}
}

func (g *gen) stmt(id ir.StmtID, s *ir.Stmt) {
	g.pos = s.Pos
	switch s.Kind {
	case ir.StmtAssign:
		g.assign(s)
	case ir.StmtAugAssign:
		g.augAssign(s)
	case ir.StmtIf:
		g.ifStmt(s, "if ")
		g.line("}")
	case ir.StmtWhile:
		head := "while " + g.value(s.Cond, ir.Bool) + " {"
		if g.m.IsInfinite(s) {
			head = "loop {"
		}
		g.loop(s, head)
	case ir.StmtLoop:
		g.loop(s, "loop {")
	case ir.StmtFor:
		iter := g.iter(s.Value)
		g.loop(s, "for "+g.pattern(s.Target, false)+" in "+iter+" {")
	case ir.StmtBreak:
		g.loopExit("break")
	case ir.StmtContinue:
		g.loopExit("continue")
	case ir.StmtLetElse:
		g.letElse(s)
	case ir.StmtReturn:
		g.ret(s)
	case ir.StmtRaise:
		g.raise(s)
	case ir.StmtAssert:
		g.assert(s)
	case ir.StmtYield:
		g.line("_out.push(" + g.value(s.Value, g.f.Return.Elem) + ");")
	case ir.StmtExpr:
		g.line(g.expr(s.Value).s + ";")
	case ir.StmtDel:
		g.del(s)
	case ir.StmtMatch:
		g.match(s)
	case ir.StmtTry:
		g.try(id, s)
	case ir.StmtPass:
	default:
		g.internal(s.Pos, s.Kind.String(), "no rendering for %s statements", s.Kind)
	}
}

func (g *gen) assign(s *ir.Stmt) {
	t := g.m.Expr(s.Target)
	switch t.Kind {
	case ir.ExprVar:
		want := t.Type
		b := g.binding(t.Name)
		if b != nil {
			want = b.Type
		}
		v := g.value(s.Value, want)
		if s.Declares {
			decl := "let " + g.pattern(s.Target, false)
			if annotated(want) {
				decl += ": " + g.rustType(want)
			}
			g.line(decl + " = " + v + ";")
			return
		}
		lhs := ident(t.Name)
		if b != nil && b.Param && b.Own == ir.BorrowedMut {
			lhs = "*" + lhs
		}
		g.line(lhs + " = " + v + ";")
	case ir.ExprTuple:
		want := g.m.TypeOf(s.Value)
		items := make([]*ir.Type, len(t.Args))
		for i, a := range t.Args {
			items[i] = g.m.TypeOf(a)
			if ae := g.m.Expr(a); ae.Kind == ir.ExprVar {
				if b := g.binding(ae.Name); b != nil {
					items[i] = b.Type
				}
			}
		}
		if len(items) == len(want.Items) {
			want = ir.TupleOf(items...)
		}
		v := g.value(s.Value, want)
		if s.Declares {
			g.line("let " + g.pattern(s.Target, false) + ": " + g.rustType(want) + " = " + v + ";")
			return
		}
		names := make([]string, len(t.Args))
		for i, a := range t.Args {
			names[i] = ident(g.m.Expr(a).Name)
		}
		g.line("(" + strings.Join(names, ", ") + ") = " + v + ";")
	case ir.ExprSubscript:
		xt := g.m.TypeOf(t.X)
		switch xt.Kind {
		case ir.KindMap:
			key := g.value(t.Y, xt.Key)
			g.line(g.mutPlace(t.X) + ".insert(" + key + ", " + g.value(s.Value, xt.Elem) + ");")
		case ir.KindSeq:
			v := g.value(s.Value, xt.Elem)
			g.line(g.mutPlace(s.Target) + " = " + v + ";")
		default:
			g.unsupported(s.Pos, "subscript", "item assignment on a value of type %s", xt)
		}
	default:
		g.unsupported(s.Pos, t.Kind.String(), "assignment to a %s target", t.Kind)
	}
}

// compound lists the operators with a target compound assignment form.
var compound = map[ir.Op]bool{
	ir.OpAdd: true, ir.OpSub: true, ir.OpMul: true,
	ir.OpBitAnd: true, ir.OpBitOr: true, ir.OpBitXor: true,
	ir.OpShl: true, ir.OpShr: true,
}

var floatCompound = map[ir.Op]bool{
	ir.OpAdd: true, ir.OpSub: true, ir.OpMul: true, ir.OpDiv: true,
}

func (g *gen) augAssign(s *ir.Stmt) {
	tt := g.m.TypeOf(s.Target)
	t := g.m.Expr(s.Target)
	place := g.mutPlace(s.Target)
	lhs := place
	switch {
	case t.Kind == ir.ExprVar:
		if b := g.binding(t.Name); b != nil && b.Param && b.Own == ir.BorrowedMut {
			lhs = "*" + place
		}
	case t.Kind == ir.ExprSubscript && g.m.TypeOf(t.X).Kind == ir.KindMap:
		lhs = "*" + place
	}
	switch {
	case tt.Kind == ir.KindInt && compound[s.Op],
		tt.Kind == ir.KindFloat && floatCompound[s.Op]:
		g.line(lhs + " " + s.Op.String() + "= " + g.value(s.Value, tt) + ";")
	case tt.Kind == ir.KindStr && s.Op == ir.OpAdd:
		g.line(place + ".push_str(" + strRef(g.expr(s.Value)) + ");")
	case tt.Kind == ir.KindSeq && s.Op == ir.OpAdd:
		g.line(place + ".extend(" + g.iter(s.Value) + ");")
	default:
		g.line(lhs + " = " + g.arith(s.Op, s.Target, s.Value, tt) + ";")
	}
}

// ifStmt renders an if chain without its closing brace.
func (g *gen) ifStmt(s *ir.Stmt, head string) {
	g.open(head + g.value(s.Cond, ir.Bool) + " {")
	g.block(s.Body)
	g.depth--
	if len(s.Else) == 0 {
		return
	}
	if len(s.Else) == 1 {
		if e := g.m.Stmt(s.Else[0]); e.Kind == ir.StmtIf && len(e.Hoisted) == 0 {
			g.ifStmt(e, "} else if ")
			return
		}
	}
	g.open("} else {")
	g.block(s.Else)
	g.depth--
}

// loop renders a loop. The loop is labeled when a break or continue in
// it sits inside a guarded try body, which is itself a labeled block.
func (g *gen) loop(s *ir.Stmt, head string) {
	label := ""
	if g.needsLabel(s.Body, false) {
		g.labels++
		label = "'l" + strconv.Itoa(g.labels)
		head = label + ": " + head
	}
	g.frames = append(g.frames, frame{loop: true, loopLabel: label})
	g.open(head)
	g.block(s.Body)
	g.close("}")
	g.frames = g.frames[:len(g.frames)-1]
}

func (g *gen) needsLabel(body []ir.StmtID, inTry bool) bool {
	for _, id := range body {
		s := g.m.Stmt(id)
		switch s.Kind {
		case ir.StmtBreak, ir.StmtContinue:
			if inTry {
				return true
			}
		case ir.StmtWhile, ir.StmtFor, ir.StmtLoop:
			continue
		case ir.StmtTry:
			if g.needsLabel(s.Body, inTry || g.guarded(s)) {
				return true
			}
			for _, h := range s.Handlers {
				if g.needsLabel(h.Body, inTry) {
					return true
				}
			}
			if g.needsLabel(s.Else, inTry) || g.needsLabel(s.Finally, inTry) {
				return true
			}
			continue
		}
		for _, b := range ir.Blocks(s) {
			if g.needsLabel(b, inTry) {
				return true
			}
		}
	}
	return false
}

// loopExit leaves or restarts the innermost loop, running the finally
// blocks in between.
func (g *gen) loopExit(kw string) {
	crossed := false
	for i := len(g.frames) - 1; i >= 0; i-- {
		fr := g.frames[i]
		if fr.loop {
			if crossed && fr.loopLabel == "" {
				g.internal(g.pos, kw, "%s crosses a guarded region of an unlabeled loop", kw)
				return
			}
			if fr.loopLabel != "" {
				kw += " " + fr.loopLabel
			}
			g.line(kw + ";")
			return
		}
		if fr.label != "" {
			crossed = true
		}
		if len(fr.finally) > 0 {
			g.runFinally(i)
		}
	}
	g.internal(g.pos, kw, "%s outside a loop", kw)
}

// runFinally renders the finally block of frame i as seen from inside it.
func (g *gen) runFinally(i int) {
	saved := g.frames
	g.frames = append([]frame(nil), saved[:i]...)
	g.block(saved[i].finally)
	g.frames = saved
}

// letElse binds the head of a loop or leaves it.
func (g *gen) letElse(s *ir.Stmt) {
	vt := g.m.TypeOf(s.Value)
	pat := g.pattern(s.Target, false)
	exit := g.capture(func() { g.loopExit("break") })
	if vt.Kind == ir.KindOptional {
		g.line("let Some(" + pat + ") = " + g.value(s.Value, vt) + " else {")
		g.line(indentText(exit))
		g.line("};")
		return
	}
	g.line("let " + pat + " = " + g.value(s.Value, vt) + ";")
	g.open("if " + negate(truthTest(ident(g.m.Expr(s.Target).Name), vt)) + " {")
	g.line(exit)
	g.close("}")
}

func (g *gen) ret(s *ir.Stmt) {
	f := g.f
	v := ""
	switch {
	case f.Generator:
		v = "_out"
	case s.Value == ir.NoExpr:
		v = fallthroughValue(f.Return)
	case f.Return.Kind == ir.KindUnit:
		if e := g.m.Expr(s.Value); !isNone(e) {
			g.line(g.expr(s.Value).s + ";")
		}
		v = "()"
	default:
		v = g.value(s.Value, f.Return)
	}
	if f.CanFail {
		v = "Ok(" + v + ")"
	}
	finally := false
	for _, fr := range g.frames {
		if len(fr.finally) > 0 {
			finally = true
		}
	}
	if finally {
		if v != "()" {
			tmp := g.temp("r")
			g.line("let " + tmp + " = " + v + ";")
			v = tmp
		}
		for i := len(g.frames) - 1; i >= 0; i-- {
			if len(g.frames[i].finally) > 0 {
				g.runFinally(i)
			}
		}
	}
	if v == "()" {
		g.line("return;")
		return
	}
	g.line("return " + v + ";")
}

// escape renders the statements that route exc to the innermost handler,
// or out of the function, running finally blocks on the way.
func (g *gen) escape(exc string) string {
	return g.capture(func() {
		bound := false
		for i := len(g.frames) - 1; i >= 0; i-- {
			fr := g.frames[i]
			if fr.label != "" {
				g.line("break " + fr.label + " Some(" + exc + ");")
				return
			}
			if len(fr.finally) > 0 {
				if !bound && !isIdent(exc) {
					tmp := g.temp("x")
					g.line("let " + tmp + " = " + exc + ";")
					exc = tmp
				}
				bound = true
				g.runFinally(i)
			}
		}
		if g.f == nil || !g.f.CanFail {
			g.internal(g.pos, "raise", "exception escapes a function that cannot fail")
			return
		}
		g.line("return Err(" + exc + ");")
	})
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !identByte(s[i]) {
			return false
		}
	}
	return true
}

func (g *gen) raise(s *ir.Stmt) {
	if s.Value == ir.NoExpr {
		if len(g.handled) == 0 {
			g.unsupported(s.Pos, "raise", "bare raise outside an except clause")
			return
		}
		g.line(g.escape(g.handled[len(g.handled)-1]))
		return
	}
	g.line(g.escape(g.value(s.Value, ir.Exception)))
}

func (g *gen) assert(s *ir.Stmt) {
	msg := `""`
	if s.Value != ir.NoExpr {
		v := g.expr(s.Value)
		switch {
		case v.lit && v.t.Kind == ir.KindStr:
			msg = v.s
		case v.t.Kind == ir.KindStr:
			msg = owned(v)
		default:
			msg = "format!(" + rustString(intrinsic.FormatSpec(v.t, g.wrappedDyn())) + ", " + readPlace(v) + ")"
		}
	}
	g.open("if " + negate(g.value(s.Cond, ir.Bool)) + " {")
	g.line(g.escape(`Exception::new("AssertionError", ` + msg + ")"))
	g.close("}")
}

func (g *gen) del(s *ir.Stmt) {
	for _, id := range s.Targets {
		t := g.m.Expr(id)
		switch t.Kind {
		case ir.ExprVar:
			g.line("drop(" + ident(t.Name) + ");")
		case ir.ExprSubscript:
			xt := g.m.TypeOf(t.X)
			p := g.mutPlace(t.X)
			switch {
			case xt.Kind == ir.KindMap && t.Fallible:
				g.line(g.fallible(p+".remove("+g.key(t.Y, xt.Key)+")"+keyError, t.Pos) + ";")
			case xt.Kind == ir.KindMap:
				g.line(p + ".remove(" + g.key(t.Y, xt.Key) + ").expect(\"key not found\");")
			case xt.Kind == ir.KindSeq && t.Fallible:
				g.line(p + ".remove(" + g.checkedIndex(t, p) + ");")
			case xt.Kind == ir.KindSeq:
				g.line(p + ".remove(" + g.index(t.Y, p) + ");")
			default:
				g.unsupported(s.Pos, "del", "deleting an item of a value of type %s", xt)
			}
		default:
			g.unsupported(s.Pos, "del", "deleting a %s target", t.Kind)
		}
	}
}

// match renders a dispatch over a union. Each arm binds only the payload
// fields its body reads.
func (g *gen) match(s *ir.Stmt) {
	mt := s.Match
	u := g.m.Union(mt.Union)
	if u == nil {
		g.internal(s.Pos, mt.Union, "dispatch over unknown union %q", mt.Union)
		return
	}
	subj := ""
	if e := g.m.Expr(mt.Subject); e.Kind == ir.ExprVar {
		subj = e.Name
	}
	saved, had := g.arms[subj]
	defer func() {
		if had {
			g.arms[subj] = saved
		} else {
			delete(g.arms, subj)
		}
	}()

	g.open("match " + shared(g.expr(mt.Subject)) + " {")
	covered := make(map[string]bool)
	for _, arm := range mt.Arms {
		v := u.Variant(arm.Variant)
		if v == nil {
			g.internal(s.Pos, arm.Variant, "union %s has no variant %q", u.Name, arm.Variant)
			return
		}
		covered[v.Name] = true
		read := g.fieldsRead(arm.Body, subj)
		names := make(map[string]string)
		var binds []string
		for _, fd := range v.Fields {
			if !read[fd.Name] {
				continue
			}
			local := ident(fd.Name)
			if g.taken(fd.Name) {
				local = subj + "_" + fd.Name
				binds = append(binds, ident(fd.Name)+": "+local)
			} else {
				binds = append(binds, local)
			}
			names[fd.Name] = local
		}
		g.arms[subj] = names
		pat := u.Name + "::" + v.Name + " { .. }"
		if len(binds) > 0 {
			if len(binds) < len(v.Fields) {
				binds = append(binds, "..")
			}
			pat = u.Name + "::" + v.Name + " { " + strings.Join(binds, ", ") + " }"
		}
		g.open(pat + " => {")
		g.block(arm.Body)
		g.close("}")
	}
	if len(covered) < len(u.Variants) {
		g.open("_ => {")
		g.block(mt.Default)
		g.close("}")
	}
	g.close("}")
}

// fieldsRead returns the payload fields of subj that body reads.
func (g *gen) fieldsRead(body []ir.StmtID, subj string) map[string]bool {
	read := make(map[string]bool)
	g.m.WalkBodyExprs(body, func(_ ir.ExprID, e *ir.Expr) bool {
		if e.Kind == ir.ExprAttr {
			if x := g.m.Expr(e.X); x != nil && x.Kind == ir.ExprVar && x.Name == subj {
				read[e.Name] = true
			}
		}
		return true
	})
	return read
}

// taken reports a name already bound where a payload field would be.
func (g *gen) taken(name string) bool {
	if g.binding(name) != nil || g.m.Const(name) != nil || g.m.Func(name) != nil {
		return true
	}
	_, ok := g.scoped(name)
	return ok
}

// guarded reports a try whose handlers can be reached: it has handlers and
// its body can raise.
func (g *gen) guarded(s *ir.Stmt) bool {
	if s.Scoped || len(s.Handlers) == 0 {
		return false
	}
	found := false
	g.m.WalkStmts(s.Body, func(_ ir.StmtID, st *ir.Stmt) bool {
		switch st.Kind {
		case ir.StmtRaise, ir.StmtAssert:
			found = true
		}
		for _, id := range g.m.StmtExprs(st) {
			g.m.WalkExpr(id, func(_ ir.ExprID, e *ir.Expr) bool {
				if e.Fallible || g.failingCall(e) {
					found = true
				}
				return !found
			})
		}
		return !found
	})
	return found
}

func (g *gen) failingCall(e *ir.Expr) bool {
	if e.Kind != ir.ExprCall || e.Callee.Kind != ir.CallLocal {
		return false
	}
	f := g.m.Func(e.Callee.Symbol)
	return f != nil && f.CanFail
}

// try renders a guarded region. A try whose body cannot raise runs its
// body inline. Otherwise the body is a labeled block that breaks out with
// the raised exception, and a match routes it to the first handler whose
// kinds cover it:
//
//	let __e1: Option<Exception> = 'try1: { body; None };
//	let __e1 = match __e1 { Some(e) if e.is("K") => { handler; None } other => other };
//	if __e1.is_none() { else }
//	finally
//	if let Some(__x) = __e1 { propagate }
func (g *gen) try(id ir.StmtID, s *ir.Stmt) {
	if s.Scoped {
		g.block(s.Body)
		return
	}
	fin := frame{finally: s.Finally}
	if !g.guarded(s) {
		g.frames = append(g.frames, fin)
		g.block(s.Body)
		g.block(s.Else)
		g.frames = g.frames[:len(g.frames)-1]
		g.block(s.Finally)
		return
	}

	g.labels++
	n := strconv.Itoa(g.labels)
	label, slot := "'try"+n, "__e"+n
	g.frames = append(g.frames, fin, frame{label: label})
	g.open("let " + slot + ": Option<Exception> = " + label + ": {")
	g.block(s.Body)
	if !g.m.Terminates(s.Body) {
		g.line("None")
	}
	g.close("};")
	g.frames = g.frames[:len(g.frames)-1]

	g.open("let " + slot + " = match " + slot + " {")
	for _, h := range s.Handlers {
		name := h.Name
		if name == "" {
			name = g.temp("h")
		}
		guard := handlerGuard(ident(name), h.Kinds)
		sc := g.pushScope()
		sc[name] = ir.Exception
		g.handled = append(g.handled, ident(name))
		g.open("Some(" + ident(name) + ")" + guard + " => {")
		g.block(h.Body)
		if !g.m.Terminates(h.Body) {
			g.line("None")
		}
		g.close("}")
		g.handled = g.handled[:len(g.handled)-1]
		g.popScope()
	}
	g.line("other => other,")
	g.close("};")

	if len(s.Else) > 0 {
		g.open("if " + slot + ".is_none() {")
		g.block(s.Else)
		g.close("}")
	}
	g.frames = g.frames[:len(g.frames)-1]
	g.block(s.Finally)

	if g.propagates() {
		x := g.temp("x")
		g.open("if let Some(" + x + ") = " + slot + " {")
		g.line(g.escape(x))
		g.close("}")
	}
	if g.m.Terminates([]ir.StmtID{id}) && !g.m.Terminates(s.Finally) {
		g.line("unreachable!()")
	}
}

// handlerGuard is the match guard selecting the kinds a handler catches.
func handlerGuard(name string, kinds []string) string {
	var tests []string
	for _, k := range kinds {
		if k == "Exception" {
			return ""
		}
		tests = append(tests, name+".is("+rustString(k)+")")
	}
	if len(tests) == 0 {
		return ""
	}
	return " if " + strings.Join(tests, " || ")
}

// propagates reports whether an unhandled exception has somewhere to go
// from here: an enclosing guarded region or the caller.
func (g *gen) propagates() bool {
	for _, fr := range g.frames {
		if fr.label != "" {
			return true
		}
	}
	return g.f != nil && g.f.CanFail
}
