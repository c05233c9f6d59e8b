package infer

import (
	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
)

// ctx is how a position receives a value.
type ctx uint8

const (
	ctxRead ctx = iota + 1
	ctxConsume
	ctxBorrow
	ctxBorrowMut
)

// event is one read or write of a name, in evaluation order.
type event struct {
	id      ir.ExprID
	name    string
	ctx     ctx
	def     bool
	closure bool
	scoped  bool
	clone   bool
}

type set map[string]bool

func (s set) clone() set {
	out := make(set, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func union(sets ...set) set {
	out := set{}
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}

func sameSet(a, b set) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// owner decides parameter modes and the emission of every binding read.
// A consuming read moves when the binding is dead afterwards and clones
// otherwise; a parameter that is moved from is taken by value.
type owner struct {
	m   *ir.Module
	cat *catalog.Catalog
	pol config.Policy

	f       *ir.Function
	moved   set
	closure int
	scoped  []set
}

func (o *owner) run() error {
	for _, f := range o.m.Functions {
		for _, p := range f.Params {
			p.Own = initialOwn(p)
			if b := f.Bindings[p.Name]; b != nil {
				b.Own = p.Own
			}
		}
	}
	for round := 0; ; round++ {
		if round == maxRounds {
			return diag.Internal(diag.CodeInternalInvariant, diag.Pos{}, "ownership",
				"ownership did not settle after %d rounds", maxRounds)
		}
		changed := false
		for _, f := range o.m.Functions {
			if err := o.function(f); err != nil {
				return err
			}
			for _, p := range f.Params {
				b := f.Bindings[p.Name]
				own := paramOwn(p, b, o.moved[p.Name])
				if own != p.Own {
					p.Own = own
					changed = true
				}
				b.Own = own
			}
		}
		if !changed {
			break
		}
	}
	for _, f := range o.m.Functions {
		for _, b := range f.Bindings {
			if b.Param {
				continue
			}
			b.Own = ir.Owned
			if b.Reassigned || b.Mutated {
				b.Own = ir.OwnedMut
			}
		}
	}
	o.f = nil
	for _, c := range o.m.Constants {
		var evs []event
		if err := o.visit(c.Value, ctxConsume, &evs); err != nil {
			return err
		}
		o.settle(evs)
	}
	return nil
}

func initialOwn(p *ir.Param) ir.Ownership {
	if p.Vararg || p.Type.IsCopy() {
		return ir.Owned
	}
	return ir.Borrowed
}

// paramOwn picks how a parameter is received: by value when the body
// moves from it or rebinds it, by exclusive reference when the body only
// changes it in place, and by shared reference otherwise.
func paramOwn(p *ir.Param, b *ir.Binding, moved bool) ir.Ownership {
	if p.Vararg || p.Type.IsCopy() {
		if b.Reassigned || b.Mutated {
			return ir.OwnedMut
		}
		return ir.Owned
	}
	switch {
	case b.Mutated && (moved || b.Reassigned):
		return ir.OwnedMut
	case b.Mutated:
		return ir.BorrowedMut
	case b.Reassigned:
		return ir.OwnedMut
	case moved:
		return ir.Owned
	}
	return ir.Borrowed
}

func (o *owner) function(f *ir.Function) error {
	o.f = f
	o.moved = set{}
	o.closure = 0
	o.scoped = nil
	for _, p := range f.Params {
		var evs []event
		if err := o.visit(p.Default, ctxConsume, &evs); err != nil {
			return err
		}
		o.settle(evs)
	}
	l := &liveness{o: o}
	_, err := l.block(f.Body, set{})
	return err
}

// settle decides uses for events outside any function body, where every
// name is a constant or function and never dies.
func (o *owner) settle(evs []event) {
	for _, ev := range evs {
		if !ev.def {
			o.decide(ev, true)
		}
	}
}

// tracked reports names subject to liveness: the current function's
// bindings, not shadowed by a comprehension or lambda.
func (o *owner) tracked(ev event) bool {
	return o.f != nil && !ev.scoped && o.f.Bindings[ev.name] != nil
}

func (o *owner) isScoped(n string) bool {
	for i := len(o.scoped) - 1; i >= 0; i-- {
		if o.scoped[i][n] {
			return true
		}
	}
	return false
}

// decide sets the Use of one read.
func (o *owner) decide(ev event, liveAfter bool) {
	e := o.m.Expr(ev.id)
	if e == nil {
		return
	}
	if e.Type.IsCopy() {
		e.Use = ir.UseCopy
		return
	}
	switch ev.ctx {
	case ctxRead:
		e.Use = ir.UseRead
	case ctxBorrow:
		e.Use = ir.UseBorrow
	case ctxBorrowMut:
		e.Use = ir.UseBorrowMut
	case ctxConsume:
		if ev.clone || ev.closure || liveAfter || !o.tracked(ev) {
			e.Use = ir.UseClone
			return
		}
		e.Use = ir.UseMove
		if b := o.f.Bindings[ev.name]; b != nil && b.Param {
			o.moved[ev.name] = true
		}
	}
}

func (o *owner) use(id ir.ExprID, name string, c ctx, evs *[]event) {
	*evs = append(*evs, event{
		id:      id,
		name:    name,
		ctx:     c,
		closure: o.closure > 0,
		scoped:  o.isScoped(name),
	})
}

func (o *owner) def(names []string, evs *[]event) {
	for _, n := range names {
		*evs = append(*evs, event{name: n, def: true, scoped: o.isScoped(n)})
	}
}

// visit records the events of an expression evaluated in context c.
func (o *owner) visit(id ir.ExprID, c ctx, evs *[]event) error {
	if id == ir.NoExpr {
		return nil
	}
	e := o.m.Expr(id)
	switch e.Kind {
	case ir.ExprLit, ir.ExprConst:
		return nil

	case ir.ExprVar:
		if c == ctxBorrowMut {
			o.markMutated(e.Name)
		}
		o.use(id, e.Name, c, evs)
		return nil

	case ir.ExprAttr:
		// Payload fields are bound by reference in their arm.
		if x := o.m.Expr(e.X); x != nil {
			x.Use = ir.UseRead
		}
		switch {
		case e.Type.IsCopy():
			e.Use = ir.UseCopy
		case c == ctxConsume:
			e.Use = ir.UseClone
		default:
			e.Use = ir.UseRead
		}
		return nil

	case ir.ExprSubscript, ir.ExprSlice:
		for _, x := range []ir.ExprID{e.X, e.Y, e.Z} {
			if err := o.visit(x, ctxRead, evs); err != nil {
				return err
			}
		}
		return nil

	case ir.ExprCall:
		return o.call(e, evs)

	case ir.ExprMethodCall:
		if err := o.visit(e.X, ctxRead, evs); err != nil {
			return err
		}
		spec, _ := intrinsic.Method(o.m.TypeOf(e.X), e.Name)
		e.Pass = make([]ir.Use, len(e.Args))
		for i, a := range e.Args {
			ac := ctxRead
			e.Pass[i] = ir.UseRead
			if spec != nil && spec.ModeAt(i) == intrinsic.Move {
				ac = ctxConsume
				e.Pass[i] = ir.UseMove
			}
			if err := o.visit(a, ac, evs); err != nil {
				return err
			}
		}
		return nil

	case ir.ExprBinary, ir.ExprUnary, ir.ExprTruthy, ir.ExprCast:
		if err := o.visit(e.X, ctxRead, evs); err != nil {
			return err
		}
		return o.visit(e.Y, ctxRead, evs)

	case ir.ExprBoolOp:
		inner := ctxRead
		if c == ctxConsume {
			inner = ctxConsume
		}
		for _, a := range e.Args {
			if err := o.visit(a, inner, evs); err != nil {
				return err
			}
		}
		return nil

	case ir.ExprIfExp:
		if err := o.visit(e.X, ctxRead, evs); err != nil {
			return err
		}
		inner := ctxRead
		if c == ctxConsume {
			inner = ctxConsume
		}
		if err := o.visit(e.Y, inner, evs); err != nil {
			return err
		}
		return o.visit(e.Z, inner, evs)

	case ir.ExprDict:
		for i := range e.Args {
			if err := o.visit(e.Keys[i], ctxConsume, evs); err != nil {
				return err
			}
			if err := o.visit(e.Args[i], ctxConsume, evs); err != nil {
				return err
			}
		}
		return nil

	case ir.ExprList, ir.ExprSet, ir.ExprTuple:
		for _, a := range e.Args {
			if err := o.visit(a, ctxConsume, evs); err != nil {
				return err
			}
		}
		return nil

	case ir.ExprFString:
		for _, a := range e.Args {
			if err := o.visit(a, ctxRead, evs); err != nil {
				return err
			}
		}
		return nil

	case ir.ExprComp:
		return o.comp(e, evs)

	case ir.ExprLambda:
		o.scoped = append(o.scoped, names(e.Params))
		o.closure++
		err := o.visit(e.X, ctxConsume, evs)
		o.closure--
		o.scoped = o.scoped[:len(o.scoped)-1]
		return err

	case ir.ExprStarred:
		switch o.pol.VarargSpread {
		case config.SpreadReject:
			return diag.Inference(diag.CodeInferOwnership, e.Pos, "*",
				"argument unpacking needs ownership of the spread sequence; the policy rejects it")
		case config.SpreadClone:
			n := len(*evs)
			if err := o.visit(e.X, ctxConsume, evs); err != nil {
				return err
			}
			for i := n; i < len(*evs); i++ {
				(*evs)[i].clone = true
			}
			return nil
		}
		return o.visit(e.X, ctxConsume, evs)

	case ir.ExprNamed:
		if err := o.visit(e.X, ctxConsume, evs); err != nil {
			return err
		}
		o.def([]string{e.Name}, evs)
		o.use(id, e.Name, c, evs)
		return nil
	}
	return diag.Internal(diag.CodeInternalInvariant, e.Pos, e.Kind.String(),
		"ownership reached a %s expression", e.Kind)
}

func names(ns []string) set {
	out := set{}
	for _, n := range ns {
		out[n] = true
	}
	return out
}

func (o *owner) comp(e *ir.Expr, evs *[]event) error {
	c := e.Comp
	inner := set{}
	pushed := false
	defer func() {
		if pushed {
			o.scoped = o.scoped[:len(o.scoped)-1]
			o.closure--
		}
	}()
	for i, g := range c.Gens {
		if err := o.visit(g.Iter, ctxRead, evs); err != nil {
			return err
		}
		for _, n := range targetNames(o.m, g.Target) {
			inner[n] = true
		}
		if i == 0 {
			o.scoped = append(o.scoped, inner)
			o.closure++
			pushed = true
		}
		for _, cond := range g.Ifs {
			if err := o.visit(cond, ctxRead, evs); err != nil {
				return err
			}
		}
	}
	if err := o.visit(c.Key, ctxConsume, evs); err != nil {
		return err
	}
	return o.visit(c.Elt, ctxConsume, evs)
}

// call records argument events by how the callee receives each one. Pass
// holds positional arguments first, then keyword arguments.
func (o *owner) call(e *ir.Expr, evs *[]event) error {
	e.Pass = make([]ir.Use, len(e.Args)+len(e.Kwargs))
	for i, a := range e.Args {
		u := o.passMode(e, i, -1)
		e.Pass[i] = u
		if err := o.visit(a, passCtx(u), evs); err != nil {
			return err
		}
	}
	for j, kw := range e.Kwargs {
		u := o.passMode(e, -1, j)
		e.Pass[len(e.Args)+j] = u
		if err := o.visit(kw.Value, passCtx(u), evs); err != nil {
			return err
		}
	}
	return nil
}

func passCtx(u ir.Use) ctx {
	switch u {
	case ir.UseMove:
		return ctxConsume
	case ir.UseBorrow:
		return ctxBorrow
	case ir.UseBorrowMut:
		return ctxBorrowMut
	}
	return ctxRead
}

// passMode is the mode of positional argument i, or keyword argument kw.
func (o *owner) passMode(e *ir.Expr, i, kw int) ir.Use {
	switch e.Callee.Kind {
	case ir.CallLocal:
		g := o.m.Func(e.Callee.Symbol)
		if g == nil {
			return ir.UseMove
		}
		var p *ir.Param
		if kw >= 0 {
			p = g.Param(e.Kwargs[kw].Name)
		} else if i < len(g.Params) && !g.Params[i].Vararg {
			p = g.Params[i]
		} else if n := len(g.Params); n > 0 && g.Params[n-1].Vararg {
			return ir.UseMove
		}
		if p == nil {
			return ir.UseMove
		}
		if p.Type.IsCopy() {
			return ir.UseCopy
		}
		switch p.Own {
		case ir.Borrowed:
			return ir.UseBorrow
		case ir.BorrowedMut:
			return ir.UseBorrowMut
		}
		return ir.UseMove

	case ir.CallIntrinsic:
		if spec, ok := intrinsic.Builtin(e.Callee.Symbol); ok && spec.ModeAt(i) == intrinsic.Move {
			return ir.UseMove
		}
		return ir.UseRead

	case ir.CallLibrary:
		entry, ok := o.cat.Lookup(e.Callee.Library, e.Callee.Symbol)
		if !ok {
			return ir.UseMove
		}
		switch entry.ArgShapeAt(i) {
		case catalog.ArgBorrow:
			return ir.UseBorrow
		case catalog.ArgBorrowMut:
			return ir.UseBorrowMut
		case catalog.ArgCopy:
			return ir.UseCopy
		}
		return ir.UseMove

	case ir.CallException:
		return ir.UseRead
	}
	return ir.UseMove
}

func (o *owner) markMutated(n string) {
	if o.f == nil || o.isScoped(n) {
		return
	}
	if b := o.f.Bindings[n]; b != nil {
		b.Mutated = true
	}
}

// header returns the events a statement evaluates itself, excluding its
// nested blocks.
func (o *owner) header(s *ir.Stmt) ([]event, error) {
	var evs []event
	var err error
	visit := func(id ir.ExprID, c ctx) {
		if err == nil {
			err = o.visit(id, c, &evs)
		}
	}
	switch s.Kind {
	case ir.StmtAssign:
		o.target(s.Target, s.Value, &evs, &err)
	case ir.StmtAugAssign:
		if x := o.m.Expr(s.Target); x.Kind == ir.ExprVar {
			o.use(s.Target, x.Name, ctxRead, &evs)
		} else {
			visit(s.Target, ctxRead)
		}
		visit(s.Value, ctxRead)
	case ir.StmtIf, ir.StmtWhile:
		visit(s.Cond, ctxRead)
	case ir.StmtFor:
		visit(s.Value, ctxRead)
		o.def(targetNames(o.m, s.Target), &evs)
	case ir.StmtReturn, ir.StmtRaise, ir.StmtYield:
		visit(s.Value, ctxConsume)
	case ir.StmtExpr:
		visit(s.Value, ctxRead)
	case ir.StmtDel:
		for _, t := range s.Targets {
			if x := o.m.Expr(t); x.Kind == ir.ExprVar {
				visit(t, ctxConsume)
				continue
			}
			visit(t, ctxRead)
		}
	case ir.StmtMatch:
		visit(s.Match.Subject, ctxRead)
	case ir.StmtLetElse:
		visit(s.Value, ctxConsume)
		o.def(targetNames(o.m, s.Target), &evs)
	case ir.StmtAssert:
		visit(s.Cond, ctxRead)
		visit(s.Value, ctxRead)
	}
	return evs, err
}

// target records an assignment. A mapping store takes its key by value
// and is emitted as insert(key, value), so the key is evaluated first.
func (o *owner) target(target, value ir.ExprID, evs *[]event, err *error) {
	visit := func(id ir.ExprID, c ctx) {
		if *err == nil {
			*err = o.visit(id, c, evs)
		}
	}
	x := o.m.Expr(target)
	if x.Kind != ir.ExprSubscript {
		visit(value, ctxConsume)
		o.def(targetNames(o.m, target), evs)
		return
	}
	visit(x.X, ctxRead)
	if o.m.TypeOf(x.X).Kind == ir.KindMap {
		visit(x.Y, ctxConsume)
	} else {
		visit(x.Y, ctxRead)
	}
	visit(value, ctxConsume)
}

// liveness walks a function body backwards, deciding each read as it
// meets it with the set of bindings still read later.
type liveness struct {
	o *owner
	// loops holds, per enclosing loop, the live sets at break and at
	// continue.
	loops []struct{ brk, cont set }
	// catch holds, per enclosing guarded body, what its handlers read.
	catch []set
	// final holds, per enclosing finally block, what it reads.
	final []set
}

func (l *liveness) block(body []ir.StmtID, out set) (set, error) {
	live := out
	for i := len(body) - 1; i >= 0; i-- {
		if n := len(l.catch); n > 0 {
			live = union(live, l.catch[n-1])
		}
		var err error
		if live, err = l.stmt(l.o.m.Stmt(body[i]), live); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (l *liveness) exit() set {
	if n := len(l.final); n > 0 {
		return l.final[n-1].clone()
	}
	return set{}
}

// apply runs a statement's own events backwards from the set live after
// it.
func (l *liveness) apply(evs []event, after set) set {
	live := after.clone()
	for i := len(evs) - 1; i >= 0; i-- {
		ev := evs[i]
		if ev.def {
			if !ev.scoped {
				delete(live, ev.name)
			}
			continue
		}
		l.o.decide(ev, live[ev.name])
		if l.o.tracked(ev) {
			live[ev.name] = true
		}
	}
	return live
}

func (l *liveness) stmt(s *ir.Stmt, out set) (set, error) {
	evs, err := l.o.header(s)
	if err != nil {
		return nil, err
	}
	switch s.Kind {
	case ir.StmtIf:
		body, err := l.block(s.Body, out)
		if err != nil {
			return nil, err
		}
		els, err := l.block(s.Else, out)
		if err != nil {
			return nil, err
		}
		return l.apply(evs, union(body, els)), nil

	case ir.StmtWhile, ir.StmtLoop, ir.StmtFor:
		return l.loop(s, evs, out)

	case ir.StmtBreak:
		if n := len(l.loops); n > 0 {
			return l.loops[n-1].brk.clone(), nil
		}
		return out, nil

	case ir.StmtContinue:
		if n := len(l.loops); n > 0 {
			return l.loops[n-1].cont.clone(), nil
		}
		return out, nil

	case ir.StmtReturn:
		return l.apply(evs, l.exit()), nil

	case ir.StmtRaise:
		after := l.exit()
		if n := len(l.catch); n > 0 {
			after = union(after, l.catch[n-1])
		}
		return l.apply(evs, after), nil

	case ir.StmtLetElse:
		after := out
		if n := len(l.loops); n > 0 {
			after = union(out, l.loops[n-1].brk)
		}
		return l.apply(evs, after), nil

	case ir.StmtTry:
		return l.try(s, out)

	case ir.StmtMatch:
		live := set{}
		for _, a := range s.Match.Arms {
			in, err := l.block(a.Body, out)
			if err != nil {
				return nil, err
			}
			live = union(live, in)
		}
		in, err := l.block(s.Match.Default, out)
		if err != nil {
			return nil, err
		}
		return l.apply(evs, union(live, in)), nil
	}
	return l.apply(evs, out), nil
}

// loop iterates the body until the set live at the top of an iteration
// stops growing; the last pass decides every read in the body.
func (l *liveness) loop(s *ir.Stmt, header []event, out set) (set, error) {
	var cond, defs []event
	for _, ev := range header {
		if ev.def {
			defs = append(defs, ev)
		} else {
			cond = append(cond, ev)
		}
	}
	// top is live at the start of an iteration, before the condition of a
	// while loop or after the iterator yields for a for loop.
	top := set{}
	if s.Kind != ir.StmtLoop {
		top = out.clone()
	}
	// Moves decided in an unsettled round do not count.
	moved := l.o.moved.clone()
	for round := 0; ; round++ {
		if round == maxRounds {
			return nil, diag.Internal(diag.CodeInternalInvariant, s.Pos, s.Kind.String(),
				"liveness did not settle")
		}
		l.o.moved = moved.clone()
		cont := top
		if s.Kind == ir.StmtWhile {
			cont = l.apply(cond, top)
		}
		l.loops = append(l.loops, struct{ brk, cont set }{out, cont})
		body, err := l.block(s.Body, cont)
		l.loops = l.loops[:len(l.loops)-1]
		if err != nil {
			return nil, err
		}
		var next set
		switch s.Kind {
		case ir.StmtWhile:
			next = union(out, body)
		case ir.StmtFor:
			next = union(out, l.apply(defs, body))
		default:
			next = body
		}
		if sameSet(next, top) {
			break
		}
		top = union(top, next)
	}
	switch s.Kind {
	case ir.StmtWhile:
		return l.apply(cond, top), nil
	case ir.StmtFor:
		return l.apply(cond, top), nil
	}
	return top, nil
}

func (l *liveness) try(s *ir.Stmt, out set) (set, error) {
	fin, err := l.block(s.Finally, out)
	if err != nil {
		return nil, err
	}
	l.final = append(l.final, fin)
	defer func() { l.final = l.final[:len(l.final)-1] }()

	handlers := set{}
	for _, h := range s.Handlers {
		in, err := l.block(h.Body, fin)
		if err != nil {
			return nil, err
		}
		if h.Name != "" {
			delete(in, h.Name)
		}
		handlers = union(handlers, in)
	}
	els, err := l.block(s.Else, fin)
	if err != nil {
		return nil, err
	}
	l.catch = append(l.catch, handlers)
	body, err := l.block(s.Body, els)
	l.catch = l.catch[:len(l.catch)-1]
	if err != nil {
		return nil, err
	}
	return union(body, handlers), nil
}
