package infer

import (
	"sort"

	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
)

// mention is a statement whose own expressions read or write a name. The
// path alternates statement and block indices from the function body;
// stmts holds the statement at each even position.
type mention struct {
	path  []int
	stmts []ir.StmtID
}

// scoper collects a function's bindings and decides where each is
// declared.
type scoper struct {
	m        *ir.Module
	f        *ir.Function
	mentions map[string][]mention
	written  map[string]bool
	// binders maps names bound by a loop header, let-else or handler to
	// the block paths they are visible in.
	binders map[string][][]int
}

// analyzeScope builds f.Bindings, marks declaring assignments and hoisted
// declarations, and rejects reads that may precede assignment.
func analyzeScope(m *ir.Module, f *ir.Function) error {
	s := &scoper{
		m:        m,
		f:        f,
		mentions: make(map[string][]mention),
		written:  make(map[string]bool),
		binders:  make(map[string][][]int),
	}
	s.walk(f.Body, nil, nil)

	f.Bindings = make(map[string]*ir.Binding)
	for _, p := range f.Params {
		f.Bindings[p.Name] = &ir.Binding{Name: p.Name, Type: p.Type, Param: true}
	}
	names := make([]string, 0, len(s.written))
	for n := range s.written {
		names = append(names, n)
	}
	sort.Strings(names)

	scoped := make(map[string]bool)
	for _, n := range names {
		if f.Bindings[n] == nil {
			f.Bindings[n] = &ir.Binding{Name: n, Type: ir.Unknown}
		}
		scopes, ok := s.binders[n]
		if !ok {
			continue
		}
		for _, mt := range s.mentions[n] {
			if !within(mt.path, scopes) {
				return diag.Inference(diag.CodeInferUnassigned, s.posOf(mt), n,
					"%q is bound by a loop, let or except clause and also used outside it", n)
			}
		}
		scoped[n] = true
	}

	declare := make(map[ir.StmtID][]string)
	var order []ir.StmtID
	for _, n := range names {
		if scoped[n] || f.Bindings[n].Param {
			continue
		}
		id, direct := s.firstMention(n)
		st := m.Stmt(id)
		if direct && st.Kind == ir.StmtAssign && bindsName(m, st.Target, n) && !readsName(m, st.Value, n) {
			if declare[id] == nil {
				order = append(order, id)
			}
			declare[id] = append(declare[id], n)
			continue
		}
		st.Hoisted = append(st.Hoisted, n)
	}
	for _, id := range order {
		st := m.Stmt(id)
		if len(declare[id]) == len(targetNames(m, st.Target)) {
			st.Declares = true
			continue
		}
		// A destructuring assignment mixing new and existing names.
		st.Hoisted = append(st.Hoisted, declare[id]...)
	}

	a := &assigner{m: m, f: f, scoped: scoped}
	in := newAssignState()
	for _, p := range f.Params {
		in.def[p.Name] = true
		in.maybe[p.Name] = true
	}
	_, err := a.block(f.Body, in)
	return err
}

func (s *scoper) posOf(mt mention) diag.Pos {
	return s.m.Stmt(mt.stmts[len(mt.stmts)-1]).Pos
}

func (s *scoper) walk(body []ir.StmtID, path []int, stmts []ir.StmtID) {
	for i, id := range body {
		st := s.m.Stmt(id)
		if st == nil {
			continue
		}
		p := append(append([]int(nil), path...), i)
		ss := append(append([]ir.StmtID(nil), stmts...), id)

		seen := make(map[string]bool)
		for _, e := range s.m.StmtExprs(st) {
			s.names(e, nil, seen)
		}
		for n := range seen {
			s.mentions[n] = append(s.mentions[n], mention{path: p, stmts: ss})
		}

		switch st.Kind {
		case ir.StmtAssign, ir.StmtAugAssign:
			for _, n := range targetNames(s.m, st.Target) {
				s.written[n] = true
			}
		case ir.StmtFor:
			for _, n := range targetNames(s.m, st.Target) {
				s.written[n] = true
				s.binders[n] = append(s.binders[n], p)
			}
		case ir.StmtLetElse:
			// Visible for the rest of the enclosing loop.
			for _, n := range targetNames(s.m, st.Target) {
				s.written[n] = true
				if len(p) >= 2 {
					s.binders[n] = append(s.binders[n], p[:len(p)-2])
				}
			}
		case ir.StmtTry:
			for h, hd := range st.Handlers {
				if hd.Name != "" {
					s.written[hd.Name] = true
					s.binders[hd.Name] = append(s.binders[hd.Name], append(append([]int(nil), p...), 1+h))
				}
			}
		}
		for bi, b := range ir.Blocks(st) {
			s.walk(b, append(append([]int(nil), p...), bi), ss)
		}
	}
}

// names records the function-scope names an expression reads or writes.
// Comprehension targets and lambda parameters are excluded.
func (s *scoper) names(id ir.ExprID, bound map[string]bool, out map[string]bool) {
	e := s.m.Expr(id)
	if e == nil {
		return
	}
	switch e.Kind {
	case ir.ExprVar:
		if !bound[e.Name] {
			out[e.Name] = true
		}
		return
	case ir.ExprNamed:
		if !bound[e.Name] {
			out[e.Name] = true
			s.written[e.Name] = true
		}
	case ir.ExprCall:
		if e.Callee.Kind == ir.CallValue && !bound[e.Name] {
			out[e.Name] = true
		}
	case ir.ExprLambda:
		s.names(e.X, with(bound, e.Params...), out)
		return
	case ir.ExprComp:
		inner := with(bound)
		for _, g := range e.Comp.Gens {
			s.names(g.Iter, inner, out)
			for _, n := range targetNames(s.m, g.Target) {
				inner[n] = true
			}
			for _, c := range g.Ifs {
				s.names(c, inner, out)
			}
		}
		s.names(e.Comp.Key, inner, out)
		s.names(e.Comp.Elt, inner, out)
		return
	}
	for _, c := range s.m.ExprChildren(id) {
		s.names(c, bound, out)
	}
}

// firstMention finds the earliest statement, in the innermost block
// enclosing every mention of n, whose subtree mentions n. direct is set
// when that statement mentions n itself rather than in a nested block.
func (s *scoper) firstMention(n string) (ir.StmtID, bool) {
	ms := s.mentions[n]
	lca := ms[0].path
	for _, mt := range ms[1:] {
		k := 0
		for k < len(lca) && k < len(mt.path) && lca[k] == mt.path[k] {
			k++
		}
		lca = lca[:k]
	}
	depth := len(lca)
	if depth%2 == 1 {
		// Every mention is inside one statement; its enclosing block is
		// the one to declare in.
		depth--
	}
	best, direct := -1, false
	var id ir.StmtID
	for _, mt := range ms {
		idx := mt.path[depth]
		if best == -1 || idx < best {
			best, id, direct = idx, mt.stmts[depth/2], len(mt.path) == depth+1
		} else if idx == best && len(mt.path) == depth+1 {
			direct = true
		}
	}
	if direct {
		// A nested mention under the same statement means the statement
		// does not simply declare.
		for _, mt := range ms {
			if mt.path[depth] == best && len(mt.path) > depth+1 {
				direct = false
			}
		}
	}
	return id, direct
}

func within(path []int, scopes [][]int) bool {
	for _, sc := range scopes {
		if len(path) < len(sc) {
			continue
		}
		match := true
		for i := range sc {
			if path[i] != sc[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func with(bound map[string]bool, names ...string) map[string]bool {
	out := make(map[string]bool, len(bound)+len(names))
	for k, v := range bound {
		out[k] = v
	}
	for _, n := range names {
		out[n] = true
	}
	return out
}

// targetNames lists the names a binding target stores to, in order.
// Subscript targets store to no name.
func targetNames(m *ir.Module, id ir.ExprID) []string {
	e := m.Expr(id)
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ir.ExprVar:
		return []string{e.Name}
	case ir.ExprTuple:
		var out []string
		for _, a := range e.Args {
			out = append(out, targetNames(m, a)...)
		}
		return out
	}
	return nil
}

func bindsName(m *ir.Module, target ir.ExprID, n string) bool {
	for _, t := range targetNames(m, target) {
		if t == n {
			return true
		}
	}
	return false
}

func readsName(m *ir.Module, id ir.ExprID, n string) bool {
	s := &scoper{m: m, written: make(map[string]bool)}
	out := make(map[string]bool)
	s.names(id, nil, out)
	return out[n]
}

// assignState tracks, at one program point, names definitely assigned and
// names possibly assigned. dead marks unreachable points.
type assignState struct {
	def   map[string]bool
	maybe map[string]bool
	dead  bool
}

func newAssignState() assignState {
	return assignState{def: make(map[string]bool), maybe: make(map[string]bool)}
}

func (a assignState) clone() assignState {
	return assignState{def: with(a.def), maybe: with(a.maybe), dead: a.dead}
}

// joinStates merges the states of paths meeting at one point.
func joinStates(states ...assignState) assignState {
	out := newAssignState()
	first := true
	out.dead = true
	for _, st := range states {
		for n := range st.maybe {
			out.maybe[n] = true
		}
		if st.dead {
			continue
		}
		out.dead = false
		if first {
			for n := range st.def {
				out.def[n] = true
			}
			first = false
			continue
		}
		for n := range out.def {
			if !st.def[n] {
				delete(out.def, n)
			}
		}
	}
	return out
}

// assigner rejects reads that may precede assignment and marks bindings
// assigned more than once on some path.
type assigner struct {
	m      *ir.Module
	f      *ir.Function
	scoped map[string]bool
	breaks []*[]assignState
}

func (a *assigner) block(body []ir.StmtID, st assignState) (assignState, error) {
	for _, id := range body {
		var err error
		if st, err = a.stmt(a.m.Stmt(id), st); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (a *assigner) stmt(s *ir.Stmt, st assignState) (assignState, error) {
	if s == nil || st.dead {
		return st, nil
	}
	for _, n := range s.Hoisted {
		delete(st.maybe, n)
	}
	if s.Declares {
		for _, n := range targetNames(a.m, s.Target) {
			delete(st.maybe, n)
		}
	}
	var err error
	switch s.Kind {
	case ir.StmtAssign:
		if err = a.reads(s.Value, &st, nil); err != nil {
			return st, err
		}
		if t := a.m.Expr(s.Target); t != nil && t.Kind == ir.ExprSubscript {
			return st, a.reads(s.Target, &st, nil)
		}
		for _, n := range targetNames(a.m, s.Target) {
			a.write(n, &st)
		}
	case ir.StmtAugAssign:
		if err = a.reads(s.Value, &st, nil); err != nil {
			return st, err
		}
		if err = a.reads(s.Target, &st, nil); err != nil {
			return st, err
		}
		for _, n := range targetNames(a.m, s.Target) {
			a.write(n, &st)
		}
	case ir.StmtIf:
		if err = a.reads(s.Cond, &st, nil); err != nil {
			return st, err
		}
		body, err := a.block(s.Body, st.clone())
		if err != nil {
			return st, err
		}
		els, err := a.block(s.Else, st.clone())
		if err != nil {
			return st, err
		}
		return joinStates(body, els), nil
	case ir.StmtWhile:
		if err = a.reads(s.Cond, &st, nil); err != nil {
			return st, err
		}
		return a.loop(s, st)
	case ir.StmtFor:
		if err = a.reads(s.Value, &st, nil); err != nil {
			return st, err
		}
		return a.loop(s, st)
	case ir.StmtLoop:
		return a.loop(s, st)
	case ir.StmtTry:
		return a.try(s, st)
	case ir.StmtMatch:
		if err = a.reads(s.Match.Subject, &st, nil); err != nil {
			return st, err
		}
		var outs []assignState
		for _, arm := range s.Match.Arms {
			o, err := a.block(arm.Body, st.clone())
			if err != nil {
				return st, err
			}
			outs = append(outs, o)
		}
		if s.Match.HasDefault {
			o, err := a.block(s.Match.Default, st.clone())
			if err != nil {
				return st, err
			}
			outs = append(outs, o)
		}
		return joinStates(outs...), nil
	case ir.StmtLetElse:
		if err = a.reads(s.Value, &st, nil); err != nil {
			return st, err
		}
		for _, n := range targetNames(a.m, s.Target) {
			st.def[n], st.maybe[n] = true, true
		}
	case ir.StmtBreak:
		if len(a.breaks) > 0 {
			top := a.breaks[len(a.breaks)-1]
			*top = append(*top, st.clone())
		}
		st.dead = true
	case ir.StmtContinue:
		st.dead = true
	default:
		for _, e := range a.m.StmtExprs(s) {
			if err = a.reads(e, &st, nil); err != nil {
				return st, err
			}
		}
		if s.Kind == ir.StmtReturn || s.Kind == ir.StmtRaise {
			st.dead = true
		}
	}
	return st, nil
}

// loop runs the body twice so assignments reaching the next iteration
// are seen as reassignments.
func (a *assigner) loop(s *ir.Stmt, in assignState) (assignState, error) {
	var breaks []assignState
	a.breaks = append(a.breaks, &breaks)
	defer func() { a.breaks = a.breaks[:len(a.breaks)-1] }()

	enter := func(st assignState) assignState {
		if s.Kind == ir.StmtFor {
			for _, n := range targetNames(a.m, s.Target) {
				st.def[n], st.maybe[n] = true, true
			}
		}
		return st
	}
	out, err := a.block(s.Body, enter(in.clone()))
	if err != nil {
		return in, err
	}
	again := in.clone()
	for n := range out.maybe {
		again.maybe[n] = true
	}
	out, err = a.block(s.Body, enter(again))
	if err != nil {
		return in, err
	}

	var exit assignState
	if a.m.IsInfinite(s) {
		exit = joinStates(breaks...)
	} else {
		exit = joinStates(append([]assignState{in}, breaks...)...)
	}
	for n := range out.maybe {
		exit.maybe[n] = true
	}
	return exit, nil
}

func (a *assigner) try(s *ir.Stmt, in assignState) (assignState, error) {
	if s.Scoped {
		return a.block(s.Body, in)
	}
	body, err := a.block(s.Body, in.clone())
	if err != nil {
		return in, err
	}
	hin := in.clone()
	for n := range body.maybe {
		hin.maybe[n] = true
	}
	outs := []assignState{}
	for _, h := range s.Handlers {
		st := hin.clone()
		if h.Name != "" {
			st.def[h.Name], st.maybe[h.Name] = true, true
		}
		o, err := a.block(h.Body, st)
		if err != nil {
			return in, err
		}
		outs = append(outs, o)
	}
	els, err := a.block(s.Else, body)
	if err != nil {
		return in, err
	}
	out := joinStates(append([]assignState{els}, outs...)...)
	if len(s.Finally) == 0 {
		return out, nil
	}
	fin := in.clone()
	for n := range out.maybe {
		fin.maybe[n] = true
	}
	fout, err := a.block(s.Finally, fin)
	if err != nil {
		return in, err
	}
	for n := range fout.def {
		out.def[n] = true
	}
	for n := range fout.maybe {
		out.maybe[n] = true
	}
	out.dead = out.dead || fout.dead
	return out, nil
}

func (a *assigner) write(n string, st *assignState) {
	if b := a.f.Bindings[n]; b != nil && st.maybe[n] {
		b.Reassigned = true
	}
	st.def[n], st.maybe[n] = true, true
}

// reads checks every binding read under id against the state, in
// evaluation order. Assignment expressions update the state as they go.
func (a *assigner) reads(id ir.ExprID, st *assignState, bound map[string]bool) error {
	e := a.m.Expr(id)
	if e == nil {
		return nil
	}
	check := func(n string) error {
		b := a.f.Bindings[n]
		if b == nil || bound[n] || st.def[n] {
			return nil
		}
		return diag.Inference(diag.CodeInferUnassigned, e.Pos, n,
			"local %q may be read before it is assigned", n)
	}
	switch e.Kind {
	case ir.ExprVar:
		return check(e.Name)
	case ir.ExprNamed:
		if err := a.reads(e.X, st, bound); err != nil {
			return err
		}
		if !bound[e.Name] {
			a.write(e.Name, st)
		}
		return nil
	case ir.ExprCall:
		if e.Callee.Kind == ir.CallValue {
			if err := check(e.Name); err != nil {
				return err
			}
		}
	case ir.ExprLambda:
		return a.reads(e.X, st, with(bound, e.Params...))
	case ir.ExprComp:
		inner := with(bound)
		for _, g := range e.Comp.Gens {
			if err := a.reads(g.Iter, st, inner); err != nil {
				return err
			}
			for _, n := range targetNames(a.m, g.Target) {
				inner[n] = true
			}
			for _, c := range g.Ifs {
				if err := a.reads(c, st, inner); err != nil {
					return err
				}
			}
		}
		if err := a.reads(e.Comp.Key, st, inner); err != nil {
			return err
		}
		return a.reads(e.Comp.Elt, st, inner)
	case ir.ExprBoolOp, ir.ExprIfExp:
		// Only the first operand is always evaluated; assignments in the
		// rest do not count afterwards.
		children := a.m.ExprChildren(id)
		if err := a.reads(children[0], st, bound); err != nil {
			return err
		}
		for _, c := range children[1:] {
			branch := st.clone()
			if err := a.reads(c, &branch, bound); err != nil {
				return err
			}
			for n := range branch.maybe {
				st.maybe[n] = true
			}
		}
		return nil
	}
	for _, c := range a.m.ExprChildren(id) {
		if err := a.reads(c, st, bound); err != nil {
			return err
		}
	}
	return nil
}
