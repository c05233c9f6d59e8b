package codegen

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
)

// refKind is how a rendered expression holds its value.
type refKind uint8

const (
	refOwned refKind = iota
	// refShared is a `&T`.
	refShared
	// refSharedStr is a `&str`.
	refSharedStr
	// refExclusive is a `&mut T`.
	refExclusive
)

// val is a rendered expression.
type val struct {
	s   string
	t   *ir.Type
	ref refKind
	// lent marks an owned place the expression does not own: taking it
	// by value clones unless the type is Copy.
	lent bool
	lit  bool
}

// owned renders v as a value the caller owns.
func owned(v val) string {
	switch v.ref {
	case refShared, refExclusive:
		if v.t.IsCopy() {
			return "*" + paren(v.s)
		}
		return paren(v.s) + ".clone()"
	case refSharedStr:
		return paren(v.s) + ".to_string()"
	}
	if v.lent && !v.t.IsCopy() {
		return paren(v.s) + ".clone()"
	}
	return v.s
}

// shared renders v as a shared reference.
func shared(v val) string {
	switch v.ref {
	case refShared, refSharedStr:
		return v.s
	case refExclusive:
		return "&*" + paren(v.s)
	}
	if v.lit && v.t.Kind == ir.KindStr {
		return v.s
	}
	return "&" + paren(v.s)
}

// exclusive renders v as an exclusive reference.
func exclusive(v val) string {
	if v.ref == refExclusive {
		return v.s
	}
	return "&mut " + paren(v.s)
}

// strRef renders a text value as a `&str`.
func strRef(v val) string {
	if v.ref == refSharedStr {
		return v.s
	}
	return paren(v.s) + ".as_str()"
}

// readPlace renders v where a method is called on it or a macro reads it.
// Numeric literals get a suffix so method calls on them are typed.
func readPlace(v val) string {
	if v.lit {
		switch v.t.Kind {
		case ir.KindInt:
			return paren(v.s + "_i64")
		case ir.KindFloat:
			return paren(v.s + "_f64")
		}
	}
	return paren(v.s)
}

// atomic reports whether s can take a method call or unary operator
// without parentheses.
func atomic(s string) bool {
	if s == "" {
		return true
	}
	switch s[0] {
	case '{', '&', '*', '-', '!', '|':
		return false
	}
	if strings.HasPrefix(s, "if ") || strings.HasPrefix(s, "match ") {
		return false
	}
	depth, inStr := 0, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch c {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ':':
			// A turbofish is part of the path.
			if depth == 0 && strings.HasPrefix(s[i:], "::<") {
				i = skipGenerics(s, i+2)
			}
		case '!':
			if depth == 0 && i+1 < len(s) && (s[i+1] == '(' || s[i+1] == '[') {
				continue
			}
			if depth == 0 {
				return false
			}
		case ' ', '+', '-', '*', '/', '%', '&', '|', '^', '<', '>', '=', ',', ';', '\n':
			if depth == 0 {
				return false
			}
		}
	}
	return true
}

// skipGenerics returns the index of the '>' closing the '<' at i.
func skipGenerics(s string, i int) int {
	depth := 0
	for ; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(s) - 1
}

// negate renders the logical negation of a boolean expression.
func negate(s string) string {
	if strings.HasPrefix(s, "!") && !strings.HasPrefix(s, "!=") && atomic(s[1:]) {
		return s[1:]
	}
	return "!" + paren(s)
}

func paren(s string) string {
	if atomic(s) {
		return s
	}
	return "(" + s + ")"
}

// numLit classifies s as an integer literal, a float literal or neither.
func numLit(s string) ir.Kind {
	t := strings.TrimPrefix(s, "-")
	if t == "" {
		return ir.KindUnknown
	}
	dot := false
	for i := 0; i < len(t); i++ {
		switch c := t[i]; {
		case c >= '0' && c <= '9':
		case c == '.' && !dot && i > 0:
			dot = true
		default:
			return ir.KindUnknown
		}
	}
	if dot {
		return ir.KindFloat
	}
	return ir.KindInt
}

func floatLit(x float64) string {
	switch {
	case math.IsInf(x, 1):
		return "f64::INFINITY"
	case math.IsInf(x, -1):
		return "f64::NEG_INFINITY"
	case math.IsNaN(x):
		return "f64::NAN"
	}
	s := strconv.FormatFloat(x, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// rustString quotes s as a target string literal.
func rustString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0:
			b.WriteString(`\0`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u{%x}`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func noneFor(t *ir.Type) string {
	switch t.Kind {
	case ir.KindDyn:
		return "Value::None"
	case ir.KindUnit:
		return "()"
	}
	return "None"
}

func (g *gen) binding(name string) *ir.Binding {
	if g.f == nil {
		return nil
	}
	return g.f.Binding(name)
}

func (g *gen) scoped(name string) (*ir.Type, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if t, ok := g.scopes[i][name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (g *gen) pushScope() map[string]*ir.Type {
	sc := make(map[string]*ir.Type)
	g.scopes = append(g.scopes, sc)
	return sc
}

func (g *gen) popScope() { g.scopes = g.scopes[:len(g.scopes)-1] }

// bindScoped enters the names of a comprehension or lambda target.
func (g *gen) bindScoped(sc map[string]*ir.Type, id ir.ExprID) {
	e := g.m.Expr(id)
	switch e.Kind {
	case ir.ExprVar:
		sc[e.Name] = e.Type
	case ir.ExprTuple:
		for _, a := range e.Args {
			g.bindScoped(sc, a)
		}
	}
}

func (g *gen) wrappedDyn() bool { return g.pol.DynamicDisplay == config.DisplayWrapped }

// expr renders an expression as it reads.
func (g *gen) expr(id ir.ExprID) val {
	e := g.m.Expr(id)
	if e == nil {
		return val{s: "()", t: ir.Unit}
	}
	t := e.Type
	switch e.Kind {
	case ir.ExprLit:
		return g.lit(e)
	case ir.ExprVar:
		return g.varRead(e)
	case ir.ExprConst:
		if c, ok := g.cat.LookupConst(e.Callee.Library, e.Callee.Symbol); ok {
			return val{s: c.Path, t: t}
		}
		return val{s: opaquePath(e.Callee.Library, e.Callee.Symbol), t: t}
	case ir.ExprAttr:
		return g.field(e)
	case ir.ExprSubscript:
		return g.subscript(e)
	case ir.ExprSlice:
		return g.slice(e)
	case ir.ExprCall:
		return val{s: g.call(e), t: t}
	case ir.ExprMethodCall:
		return val{s: g.method(e), t: t}
	case ir.ExprBinary:
		return val{s: g.binary(e), t: t}
	case ir.ExprBoolOp:
		return val{s: g.boolOp(e, t), t: t}
	case ir.ExprUnary:
		if x := g.m.Expr(e.X); e.Op == ir.OpNeg && x.Kind == ir.ExprLit &&
			(x.Lit.Kind == ir.LitInt || x.Lit.Kind == ir.LitFloat) {
			return val{s: "-" + g.lit(x).s, t: t, lit: true}
		}
		return val{s: g.unary(e), t: t}
	case ir.ExprDict, ir.ExprList, ir.ExprSet, ir.ExprTuple:
		return val{s: g.collection(e, t), t: t}
	case ir.ExprComp:
		return val{s: g.comp(e), t: t}
	case ir.ExprLambda:
		return val{s: g.lambda(e), t: t}
	case ir.ExprStarred:
		return g.expr(e.X)
	case ir.ExprNamed:
		return g.named(e)
	case ir.ExprIfExp:
		return val{s: g.ifExp(e, t), t: t}
	case ir.ExprFString:
		return val{s: g.fstring(e), t: ir.Str}
	case ir.ExprTruthy:
		return val{s: truthTest(readPlace(g.expr(e.X)), g.m.TypeOf(e.X)), t: ir.Bool}
	case ir.ExprCast:
		return val{s: g.convert(owned(g.expr(e.X)), g.m.TypeOf(e.X), t), t: t}
	}
	return val{s: g.internal(e.Pos, e.Kind.String(), "no rendering for %s expressions", e.Kind), t: t}
}

// value renders an expression as an owned value of type want.
func (g *gen) value(id ir.ExprID, want *ir.Type) string {
	e := g.m.Expr(id)
	if e == nil {
		return "()"
	}
	if want == nil || !want.Known() {
		want = e.Type
	}
	switch e.Kind {
	case ir.ExprDict, ir.ExprList, ir.ExprSet, ir.ExprTuple:
		if want.Kind == e.Type.Kind {
			return g.collection(e, want)
		}
		if want.Kind == ir.KindDyn && e.Kind != ir.ExprTuple {
			return "Value::from(" + g.collection(e, dynamic(e.Type)) + ")"
		}
	case ir.ExprIfExp:
		return g.ifExp(e, want)
	case ir.ExprBoolOp:
		if e.Type.Kind != ir.KindBool {
			return g.boolOp(e, want)
		}
	case ir.ExprLit:
		if e.Lit.Kind == ir.LitNone {
			return noneFor(want)
		}
	}
	return g.convert(owned(g.expr(id)), e.Type, want)
}

// dynamic is t with its elements made dynamic.
func dynamic(t *ir.Type) *ir.Type {
	switch t.Kind {
	case ir.KindSeq, ir.KindSet:
		return ir.SeqOf(ir.Dyn)
	case ir.KindMap:
		return ir.MapOf(t.Key, ir.Dyn)
	}
	return t
}

// convert adapts an owned value of type from to type to.
func (g *gen) convert(s string, from, to *ir.Type) string {
	if to == nil || from == nil || !to.Known() || from.Equal(to) {
		return s
	}
	switch to.Kind {
	case ir.KindFloat:
		switch from.Kind {
		case ir.KindInt:
			if numLit(s) == ir.KindInt {
				return s + ".0"
			}
			return "(" + paren(s) + " as f64)"
		case ir.KindSize:
			return "(" + paren(s) + " as f64)"
		case ir.KindBool:
			return "(" + paren(s) + " as i64 as f64)"
		}
	case ir.KindInt:
		switch from.Kind {
		case ir.KindSize, ir.KindBool:
			return "(" + paren(s) + " as i64)"
		}
	case ir.KindSize:
		if from.Kind == ir.KindInt {
			return "(" + paren(s) + " as usize)"
		}
	case ir.KindOptional:
		switch from.Kind {
		case ir.KindUnit:
			return discard(s, "None")
		case ir.KindOptional:
			if from.Elem.IsUnknown() {
				return discard(s, "None")
			}
			return paren(s) + ".map(|__x| " + g.convert("__x", from.Elem, to.Elem) + ")"
		}
		return "Some(" + g.convert(s, from, to.Elem) + ")"
	case ir.KindDyn:
		switch from.Kind {
		case ir.KindUnit:
			return discard(s, "Value::None")
		case ir.KindInt, ir.KindFloat, ir.KindBool, ir.KindStr, ir.KindOptional,
			ir.KindSeq, ir.KindSet, ir.KindMap:
			switch numLit(s) {
			case ir.KindInt:
				s += "_i64"
			case ir.KindFloat:
				s += "_f64"
			}
			return "Value::from(" + s + ")"
		}
		return g.unsupported(diag.Pos{}, "Any", "a value of type %s cannot be held as a dynamic value", from)
	case ir.KindSeq, ir.KindSet:
		if from.Kind == to.Kind && from.Elem.Known() {
			coll := "Vec<_>"
			if to.Kind == ir.KindSet {
				coll = "HashSet<_>"
			}
			return paren(s) + ".into_iter().map(|__x| " + g.convert("__x", from.Elem, to.Elem) +
				").collect::<" + coll + ">()"
		}
	case ir.KindMap:
		if from.Kind == ir.KindMap && from.Key.Known() && from.Elem.Known() {
			return paren(s) + ".into_iter().map(|(__k, __v)| (" + g.convert("__k", from.Key, to.Key) +
				", " + g.convert("__v", from.Elem, to.Elem) + ")).collect::<HashMap<_, _>>()"
		}
	case ir.KindTuple:
		if from.Kind == ir.KindTuple && len(from.Items) == len(to.Items) {
			names := make([]string, len(to.Items))
			items := make([]string, len(to.Items))
			for i := range to.Items {
				names[i] = "__t" + strconv.Itoa(i)
				items[i] = g.convert(names[i], from.Items[i], to.Items[i])
			}
			return "{ let (" + strings.Join(names, ", ") + ") = " + s + "; (" + strings.Join(items, ", ") + ") }"
		}
	}
	return s
}

// discard evaluates s for its effects, if any, and yields v.
func discard(s, v string) string {
	switch s {
	case "()", "None", "Value::None":
		return v
	}
	return "{ " + s + "; " + v + " }"
}

func (g *gen) lit(e *ir.Expr) val {
	t := e.Type
	switch e.Lit.Kind {
	case ir.LitInt:
		return val{s: strconv.FormatInt(e.Lit.Int, 10), t: t, lit: true}
	case ir.LitFloat:
		return val{s: floatLit(e.Lit.Float), t: t, lit: true}
	case ir.LitBool:
		return val{s: strconv.FormatBool(e.Lit.Bool), t: t}
	case ir.LitStr:
		return val{s: rustString(e.Lit.Str), t: t, ref: refSharedStr, lit: true}
	}
	return val{s: noneFor(t), t: t}
}

// varRead renders a name by its Use.
func (g *gen) varRead(e *ir.Expr) val {
	name := ident(e.Name)
	t := e.Type
	if _, ok := g.scoped(e.Name); ok {
		return local(name, t, e.Use)
	}
	if b := g.binding(e.Name); b != nil {
		return g.bindingRead(e, b)
	}
	if c := g.m.Const(e.Name); c != nil {
		return g.constRead(c, e)
	}
	if g.m.Func(e.Name) != nil {
		return val{s: name, t: t}
	}
	return val{s: g.internal(e.Pos, e.Name, "read of %q resolves to nothing", e.Name), t: t}
}

func local(name string, t *ir.Type, u ir.Use) val {
	switch u {
	case ir.UseCopy, ir.UseMove:
		return val{s: name, t: t}
	case ir.UseClone:
		return val{s: name + ".clone()", t: t}
	case ir.UseBorrowMut:
		return val{s: "&mut " + name, t: t, ref: refExclusive}
	}
	return val{s: name, t: t, lent: true}
}

func (g *gen) bindingRead(e *ir.Expr, b *ir.Binding) val {
	name := ident(e.Name)
	t := e.Type
	if b.Type.Kind == ir.KindOptional && t.Kind != ir.KindOptional {
		return narrowed(name, t, e.Use, b.Param && !b.Own.IsOwned())
	}
	if !b.Param {
		return local(name, t, e.Use)
	}
	switch b.Own {
	case ir.Borrowed:
		r := refShared
		if t.Kind == ir.KindStr {
			r = refSharedStr
		}
		v := val{s: name, t: t, ref: r}
		switch e.Use {
		case ir.UseMove, ir.UseClone, ir.UseCopy:
			return val{s: owned(v), t: t}
		}
		return v
	case ir.BorrowedMut:
		v := val{s: name, t: t, ref: refExclusive}
		switch e.Use {
		case ir.UseMove, ir.UseClone, ir.UseCopy:
			return val{s: owned(v), t: t}
		case ir.UseBorrow:
			return val{s: "&*" + name, t: t, ref: refShared}
		}
		return v
	}
	return local(name, t, e.Use)
}

// narrowed reads an optional binding known at this point not to be None.
func narrowed(name string, t *ir.Type, u ir.Use, borrowed bool) val {
	switch u {
	case ir.UseCopy:
		if borrowed {
			return val{s: "(*" + name + ").unwrap()", t: t}
		}
		return val{s: name + ".unwrap()", t: t}
	case ir.UseMove:
		if borrowed {
			return val{s: name + ".clone().unwrap()", t: t}
		}
		return val{s: name + ".unwrap()", t: t}
	case ir.UseClone:
		return val{s: name + ".clone().unwrap()", t: t}
	case ir.UseBorrowMut:
		return val{s: name + ".as_mut().unwrap()", t: t, ref: refExclusive}
	}
	if t.Kind == ir.KindStr {
		return val{s: name + ".as_deref().unwrap()", t: t, ref: refSharedStr}
	}
	return val{s: name + ".as_ref().unwrap()", t: t, ref: refShared}
}

func (g *gen) constRead(c *ir.Constant, e *ir.Expr) val {
	t := e.Type
	if g.plainConst(c) {
		return val{s: c.Name, t: t}
	}
	switch e.Use {
	case ir.UseCopy:
		return val{s: "*" + c.Name, t: t}
	case ir.UseMove, ir.UseClone:
		return val{s: c.Name + ".clone()", t: t}
	}
	return val{s: "(*" + c.Name + ")", t: t, lent: true}
}

// field reads a payload field bound by the enclosing match arm.
func (g *gen) field(e *ir.Expr) val {
	x := g.m.Expr(e.X)
	name := ""
	if x != nil && x.Kind == ir.ExprVar {
		name = g.arms[x.Name][e.Name]
	}
	if name == "" {
		return val{s: g.unsupported(e.Pos, "."+e.Name, "attribute read outside a dispatch on its union"), t: e.Type}
	}
	v := val{s: name, t: e.Type, ref: refShared}
	switch e.Use {
	case ir.UseCopy, ir.UseClone, ir.UseMove:
		return val{s: owned(v), t: e.Type}
	}
	return v
}

// constIndex returns a literal integer index, negated when written -N.
func (g *gen) constIndex(id ir.ExprID) (int64, bool) {
	e := g.m.Expr(id)
	if e == nil {
		return 0, false
	}
	neg := false
	if e.Kind == ir.ExprUnary && e.Op == ir.OpNeg {
		neg = true
		e = g.m.Expr(e.X)
	}
	if e.Kind != ir.ExprLit || e.Lit.Kind != ir.LitInt {
		return 0, false
	}
	if neg {
		return -e.Lit.Int, true
	}
	return e.Lit.Int, true
}

// index renders a sequence index into recv, wrapping negative values.
func (g *gen) index(id ir.ExprID, recv string) string {
	if i, ok := g.constIndex(id); ok {
		if i >= 0 {
			return strconv.FormatInt(i, 10)
		}
		return recv + ".len() - " + strconv.FormatInt(-i, 10)
	}
	return "py_index(" + g.value(id, ir.Int) + ", " + recv + ".len())"
}

// key renders a mapping key for lookup.
func (g *gen) key(id ir.ExprID, keyType *ir.Type) string {
	v := g.expr(id)
	if keyType.Kind == ir.KindStr {
		return strRef(v)
	}
	if v.t.IsCopy() && v.ref == refOwned {
		return "&" + paren(g.convert(owned(v), v.t, keyType))
	}
	return shared(v)
}

// keyError turns a missing mapping entry into a KeyError.
const keyError = `.ok_or_else(|| Exception::new("KeyError", "key not found"))`

// checkedIndex renders a sequence index into recv that raises IndexError
// when out of range.
func (g *gen) checkedIndex(e *ir.Expr, recv string) string {
	return g.fallible("py_checked_index("+g.value(e.Y, ir.Int)+", "+recv+".len())", e.Pos)
}

// subscript renders an item read. A Fallible subscript sits under a
// handler for its fault and raises instead of panicking.
func (g *gen) subscript(e *ir.Expr) val {
	xt := g.m.TypeOf(e.X)
	switch xt.Kind {
	case ir.KindSeq:
		p := readPlace(g.expr(e.X))
		if e.Fallible {
			return val{s: p + "[" + g.checkedIndex(e, p) + "]", t: e.Type, lent: true}
		}
		return val{s: p + "[" + g.index(e.Y, p) + "]", t: e.Type, lent: true}
	case ir.KindMap:
		p := readPlace(g.expr(e.X))
		if e.Fallible {
			return val{s: "(*" + g.fallible(p+".get("+g.key(e.Y, xt.Key)+")"+keyError, e.Pos) + ")", t: e.Type, lent: true}
		}
		return val{s: p + "[" + g.key(e.Y, xt.Key) + "]", t: e.Type, lent: true}
	case ir.KindStr:
		if e.Fallible {
			return val{s: g.fallible("py_checked_str_index("+strRef(g.expr(e.X))+", "+g.value(e.Y, ir.Int)+")", e.Pos), t: e.Type}
		}
		return val{s: "py_str_index(" + strRef(g.expr(e.X)) + ", " + g.value(e.Y, ir.Int) + ")", t: e.Type}
	case ir.KindTuple:
		if i, ok := g.constIndex(e.Y); ok {
			if i < 0 {
				i += int64(len(xt.Items))
			}
			return val{s: readPlace(g.expr(e.X)) + "." + strconv.FormatInt(i, 10), t: e.Type, lent: true}
		}
		return val{s: g.unsupported(e.Pos, "subscript", "tuple index must be a literal"), t: e.Type}
	}
	return val{s: g.unsupported(e.Pos, "subscript", "indexing a value of type %s", xt), t: e.Type}
}

func (g *gen) slice(e *ir.Expr) val {
	bound := func(id ir.ExprID) string {
		if id == ir.NoExpr {
			return "None"
		}
		return "Some(" + g.value(id, ir.Int) + ")"
	}
	x := g.expr(e.X)
	switch x.t.Kind {
	case ir.KindStr:
		return val{s: "py_str_slice(" + strRef(x) + ", " + bound(e.Y) + ", " + bound(e.Z) + ")", t: e.Type}
	case ir.KindSeq:
		return val{s: "py_slice(" + shared(x) + ", " + bound(e.Y) + ", " + bound(e.Z) + ")", t: e.Type}
	}
	return val{s: g.unsupported(e.Pos, "slice", "slicing a value of type %s", x.t), t: e.Type}
}

func (g *gen) unary(e *ir.Expr) string {
	switch e.Op {
	case ir.OpNot:
		return negate(g.value(e.X, ir.Bool))
	case ir.OpNeg:
		return "-" + paren(g.value(e.X, e.Type))
	case ir.OpPos:
		return g.value(e.X, e.Type)
	case ir.OpInvert:
		return "!" + paren(g.value(e.X, ir.Int))
	}
	return g.internal(e.Pos, e.Op.String(), "unary operator %s", e.Op)
}

func (g *gen) binary(e *ir.Expr) string {
	if e.Op.IsCompare() {
		return g.compare(e)
	}
	if e.Fallible {
		if h := checkedDivision(e.Op, e.Type.Kind); h != "" {
			k := e.Type
			if k.Kind == ir.KindSize {
				k = ir.Int
			}
			return g.fallible(h+"("+g.value(e.X, k)+", "+g.value(e.Y, k)+")", e.Pos)
		}
	}
	return g.arith(e.Op, e.X, e.Y, e.Type)
}

// checkedDivision names the helper that raises ZeroDivisionError for op
// on operands of kind k, or "".
func checkedDivision(op ir.Op, k ir.Kind) string {
	switch k {
	case ir.KindInt, ir.KindSize:
		switch op {
		case ir.OpFloorDiv:
			return "py_checked_floordiv"
		case ir.OpMod:
			return "py_checked_mod"
		}
	case ir.KindFloat:
		switch op {
		case ir.OpDiv:
			return "py_checked_div"
		case ir.OpFloorDiv:
			return "py_checked_ffloordiv"
		case ir.OpMod:
			return "py_checked_fmod"
		}
	}
	return ""
}

// arith renders x op y with result type rt.
func (g *gen) arith(op ir.Op, x, y ir.ExprID, rt *ir.Type) string {
	xt, yt := g.m.TypeOf(x), g.m.TypeOf(y)
	pos := g.m.Expr(x).Pos
	switch rt.Kind {
	case ir.KindInt, ir.KindSize:
		a, b := paren(g.value(x, rt)), paren(g.value(y, rt))
		switch op {
		case ir.OpFloorDiv:
			return "py_floordiv(" + a + ", " + b + ")"
		case ir.OpMod:
			return "py_mod(" + a + ", " + b + ")"
		case ir.OpPow:
			if numLit(a) != ir.KindUnknown {
				a = "(" + a + "_i64)"
			}
			return a + ".pow(" + b + " as u32)"
		case ir.OpDiv:
			return a + " / " + b
		}
		return a + " " + op.String() + " " + b
	case ir.KindFloat:
		a, b := paren(g.value(x, ir.Float)), paren(g.value(y, ir.Float))
		switch op {
		case ir.OpFloorDiv:
			return "(" + a + " / " + b + ").floor()"
		case ir.OpMod:
			return "py_fmod(" + a + ", " + b + ")"
		case ir.OpPow:
			if numLit(a) != ir.KindUnknown {
				a = "(" + a + "_f64)"
			}
			return a + ".powf(" + b + ")"
		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
			return a + " " + op.String() + " " + b
		}
	case ir.KindStr:
		switch {
		case op == ir.OpAdd:
			return "format!(\"{}{}\", " + readPlace(g.expr(x)) + ", " + readPlace(g.expr(y)) + ")"
		case op == ir.OpMul && xt.Kind == ir.KindStr:
			return strRef(g.expr(x)) + ".repeat(" + paren(g.value(y, ir.Int)) + " as usize)"
		case op == ir.OpMul:
			return strRef(g.expr(y)) + ".repeat(" + paren(g.value(x, ir.Int)) + " as usize)"
		}
	case ir.KindSeq:
		switch {
		case op == ir.OpAdd:
			return "[&" + readPlace(g.expr(x)) + "[..], &" + readPlace(g.expr(y)) + "[..]].concat()"
		case op == ir.OpMul && xt.Kind == ir.KindSeq:
			return "py_repeat(" + shared(g.expr(x)) + ", " + g.value(y, ir.Int) + ")"
		case op == ir.OpMul:
			return "py_repeat(" + shared(g.expr(y)) + ", " + g.value(x, ir.Int) + ")"
		}
	case ir.KindSet:
		switch op {
		case ir.OpBitOr, ir.OpBitAnd, ir.OpBitXor, ir.OpSub:
			return shared(g.expr(x)) + " " + op.String() + " " + shared(g.expr(y))
		}
	}
	return g.unsupported(pos, op.String(), "operator %s on %s and %s", op, xt, yt)
}

func isNone(e *ir.Expr) bool {
	return e.Kind == ir.ExprLit && e.Lit.Kind == ir.LitNone
}

// noneTest renders a comparison of s against None.
func noneTest(s string, t *ir.Type, is bool) string {
	switch t.Kind {
	case ir.KindOptional:
		if is {
			return paren(s) + ".is_none()"
		}
		return paren(s) + ".is_some()"
	case ir.KindDyn:
		if is {
			return "matches!(" + s + ", Value::None)"
		}
		return "!matches!(" + s + ", Value::None)"
	case ir.KindUnit:
		return strconv.FormatBool(is)
	}
	return strconv.FormatBool(!is)
}

// flipped mirrors an ordering operator for swapped operands.
func flipped(op ir.Op) ir.Op {
	switch op {
	case ir.OpLt:
		return ir.OpGt
	case ir.OpLtE:
		return ir.OpGtE
	case ir.OpGt:
		return ir.OpLt
	case ir.OpGtE:
		return ir.OpLtE
	}
	return op
}

func (g *gen) compare(e *ir.Expr) string {
	x, y := g.m.Expr(e.X), g.m.Expr(e.Y)
	switch e.Op {
	case ir.OpIs, ir.OpIsNot, ir.OpEq, ir.OpNotEq:
		xn, yn := isNone(x), isNone(y)
		if xn || yn {
			is := e.Op == ir.OpIs || e.Op == ir.OpEq
			if xn && yn {
				return strconv.FormatBool(is)
			}
			other := e.X
			if xn {
				other = e.Y
			}
			return noneTest(readPlace(g.expr(other)), g.m.TypeOf(other), is)
		}
		if e.Op == ir.OpIs || e.Op == ir.OpIsNot {
			return g.unsupported(e.Pos, e.Op.String(), "identity comparison other than against None")
		}
	case ir.OpIn, ir.OpNotIn:
		s := g.contains(e.Y, e.X)
		if e.Op == ir.OpNotIn {
			return negate(s)
		}
		return s
	}
	return g.ordered(e.Op, e.X, e.Y)
}

// ordered renders an equality or ordering comparison.
func (g *gen) ordered(op ir.Op, xid, yid ir.ExprID) string {
	xt, yt := g.m.TypeOf(xid), g.m.TypeOf(yid)
	sym := " " + op.String() + " "
	switch {
	case xt.IsNumeric() && yt.IsNumeric():
		w := xt
		if xt.Kind != yt.Kind {
			w = ir.Float
		}
		return paren(g.value(xid, w)) + sym + paren(g.value(yid, w))
	case xt.Kind == ir.KindStr && yt.Kind == ir.KindStr:
		return strRef(g.expr(xid)) + sym + strRef(g.expr(yid))
	case xt.Kind == ir.KindOptional && yt.Kind != ir.KindOptional:
		return g.optionalCompare(op, xid, yid)
	case yt.Kind == ir.KindOptional && xt.Kind != ir.KindOptional:
		return g.optionalCompare(flipped(op), yid, xid)
	case xt.Kind == ir.KindDyn && yt.Kind != ir.KindDyn:
		return readPlace(g.expr(xid)) + sym + g.value(yid, ir.Dyn)
	case yt.Kind == ir.KindDyn && xt.Kind != ir.KindDyn:
		return g.value(xid, ir.Dyn) + sym + readPlace(g.expr(yid))
	case xt.IsCopy() && yt.IsCopy():
		return paren(g.value(xid, xt)) + sym + paren(g.value(yid, xt))
	}
	return shared(g.expr(xid)) + sym + shared(g.expr(yid))
}

// optionalCompare compares an optional against a present value.
func (g *gen) optionalCompare(op ir.Op, opt, other ir.ExprID) string {
	ot := g.m.TypeOf(opt)
	sym := " " + op.String() + " "
	o := readPlace(g.expr(opt))
	switch {
	case ot.Elem.Kind == ir.KindStr:
		return o + ".as_deref()" + sym + "Some(" + strRef(g.expr(other)) + ")"
	case ot.Elem.IsCopy():
		return o + sym + "Some(" + g.value(other, ot.Elem) + ")"
	}
	return o + ".as_ref()" + sym + "Some(" + shared(g.expr(other)) + ")"
}

// contains renders a membership test of elem in container.
func (g *gen) contains(container, elem ir.ExprID) string {
	ct := g.m.TypeOf(container)
	c := g.expr(container)
	switch ct.Kind {
	case ir.KindSeq:
		if ct.Elem.Kind == ir.KindStr {
			return readPlace(c) + ".iter().any(|__e| __e == " + strRef(g.expr(elem)) + ")"
		}
		return readPlace(c) + ".contains(" + g.key(elem, ct.Elem) + ")"
	case ir.KindSet:
		return readPlace(c) + ".contains(" + g.key(elem, ct.Elem) + ")"
	case ir.KindMap:
		return readPlace(c) + ".contains_key(" + g.key(elem, ct.Key) + ")"
	case ir.KindStr:
		return strRef(c) + ".contains(" + strRef(g.expr(elem)) + ")"
	}
	return g.unsupported(g.m.Expr(container).Pos, "in", "membership test in a value of type %s", ct)
}

// boolOp renders `and`/`or`. A boolean chain short-circuits with && and
// ||; a value-selecting chain yields the deciding operand.
func (g *gen) boolOp(e *ir.Expr, want *ir.Type) string {
	if e.Type.Kind == ir.KindBool {
		sym := " && "
		if e.Op == ir.OpOr {
			sym = " || "
		}
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = paren(g.value(a, ir.Bool))
		}
		return g.convert(strings.Join(parts, sym), ir.Bool, want)
	}
	return g.selectChain(e.Op, e.Args, want)
}

func (g *gen) selectChain(op ir.Op, args []ir.ExprID, want *ir.Type) string {
	if len(args) == 1 {
		return g.value(args[0], want)
	}
	at := g.m.TypeOf(args[0])
	tmp := g.temp("v")
	test := truthTest(tmp, at)
	keep := g.convert(tmp, at, want)
	rest := g.selectChain(op, args[1:], want)
	then, els := keep, rest
	if op == ir.OpAnd {
		then, els = rest, keep
	}
	return blockExpr("let "+tmp+" = "+g.value(args[0], at)+";", ifElse(test, then, els))
}

// ifElse renders a conditional expression, on one line when it fits.
func ifElse(cond, then, els string) string {
	if !strings.Contains(then+els, "\n") && len(cond)+len(then)+len(els) < 80 {
		return "if " + cond + " { " + then + " } else { " + els + " }"
	}
	return "if " + cond + " {\n" + indentText(then) + "\n} else {\n" + indentText(els) + "\n}"
}

func indentText(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = indentUnit + l
		}
	}
	return strings.Join(lines, "\n")
}

func (g *gen) ifExp(e *ir.Expr, want *ir.Type) string {
	return ifElse(g.value(e.X, ir.Bool), g.value(e.Y, want), g.value(e.Z, want))
}

// collection renders a display literal as type want.
func (g *gen) collection(e *ir.Expr, want *ir.Type) string {
	items := func(ids []ir.ExprID, elem *ir.Type) []string {
		out := make([]string, len(ids))
		for i, a := range ids {
			out[i] = g.value(a, elem)
		}
		return out
	}
	switch e.Kind {
	case ir.ExprList:
		if len(e.Args) == 0 {
			return "Vec::new()"
		}
		return "vec![" + strings.Join(items(e.Args, want.Elem), ", ") + "]"
	case ir.ExprSet:
		if len(e.Args) == 0 {
			return "HashSet::new()"
		}
		return "HashSet::from([" + strings.Join(items(e.Args, want.Elem), ", ") + "])"
	case ir.ExprDict:
		if len(e.Args) == 0 {
			return "HashMap::new()"
		}
		keys, vals := items(e.Keys, want.Key), items(e.Args, want.Elem)
		pairs := make([]string, len(keys))
		for i := range keys {
			pairs[i] = "(" + keys[i] + ", " + vals[i] + ")"
		}
		return "HashMap::from([" + strings.Join(pairs, ", ") + "])"
	case ir.ExprTuple:
		out := make([]string, len(e.Args))
		for i, a := range e.Args {
			var w *ir.Type
			if want.Kind == ir.KindTuple && len(want.Items) == len(e.Args) {
				w = want.Items[i]
			}
			out[i] = g.value(a, w)
		}
		if len(out) == 1 {
			return "(" + out[0] + ",)"
		}
		return "(" + strings.Join(out, ", ") + ")"
	}
	return g.internal(e.Pos, e.Kind.String(), "not a collection literal")
}

// pattern renders a binding target. Function bindings changed later are
// declared mutable.
func (g *gen) pattern(id ir.ExprID, scoped bool) string {
	e := g.m.Expr(id)
	switch e.Kind {
	case ir.ExprVar:
		if !scoped {
			if b := g.binding(e.Name); b != nil && b.Own.IsMut() {
				return "mut " + ident(e.Name)
			}
		}
		return ident(e.Name)
	case ir.ExprTuple:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = g.pattern(a, scoped)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return g.unsupported(e.Pos, e.Kind.String(), "binding target must be a name or a tuple of names")
}

// comp renders a comprehension as a block that fills an accumulator.
func (g *gen) comp(e *ir.Expr) string {
	c := e.Comp
	t := e.Type
	acc := g.temp("c")
	init, push := "Vec::new()", ""
	switch c.Kind {
	case ir.CompSet:
		init = "HashSet::new()"
	case ir.CompDict:
		init = "HashMap::new()"
	}
	sc := g.pushScope()
	defer g.popScope()
	body := g.capture(func() {
		g.line("let mut " + acc + ": " + g.rustType(t) + " = " + init + ";")
		opened := 0
		for _, gen := range c.Gens {
			iter := g.iter(gen.Iter)
			g.bindScoped(sc, gen.Target)
			g.open("for " + g.pattern(gen.Target, true) + " in " + iter + " {")
			opened++
			for _, cond := range gen.Ifs {
				g.open("if " + g.value(cond, ir.Bool) + " {")
				opened++
			}
		}
		switch c.Kind {
		case ir.CompDict:
			push = acc + ".insert(" + g.value(c.Key, t.Key) + ", " + g.value(c.Elt, t.Elem) + ");"
		case ir.CompSet:
			push = acc + ".insert(" + g.value(c.Elt, t.Elem) + ");"
		default:
			push = acc + ".push(" + g.value(c.Elt, t.Elem) + ");"
		}
		g.line(push)
		for ; opened > 0; opened-- {
			g.close("}")
		}
	})
	return blockExpr(body, acc)
}

func (g *gen) lambda(e *ir.Expr) string {
	t := e.Type
	sc := g.pushScope()
	defer g.popScope()
	params := make([]string, len(e.Params))
	for i, p := range e.Params {
		pt := ir.Unknown
		if i < len(t.Items) {
			pt = t.Items[i]
		}
		sc[p] = pt
		params[i] = ident(p) + ": " + g.rustType(pt)
	}
	g.closures++
	body := g.value(e.X, t.Ret)
	g.closures--
	return "|" + strings.Join(params, ", ") + "| " + body
}

// named renders an assignment expression: store, then yield the name.
func (g *gen) named(e *ir.Expr) val {
	name := ident(e.Name)
	want := e.Type
	if b := g.binding(e.Name); b != nil {
		want = b.Type
	}
	store := name + " = " + g.value(e.X, want) + ";"
	switch {
	case e.Use == ir.UseCopy, e.Use == ir.UseMove:
		return val{s: "{ " + store + " " + name + " }", t: e.Type}
	case e.Use == ir.UseClone:
		return val{s: "{ " + store + " " + name + ".clone() }", t: e.Type}
	}
	return val{s: "{ " + store + " &" + name + " }", t: e.Type, ref: refShared}
}

func (g *gen) fstring(e *ir.Expr) string {
	var text strings.Builder
	var args []string
	for _, a := range e.Args {
		ae := g.m.Expr(a)
		if ae.Kind == ir.ExprLit && ae.Lit.Kind == ir.LitStr {
			s := strings.ReplaceAll(ae.Lit.Str, "{", "{{")
			text.WriteString(strings.ReplaceAll(s, "}", "}}"))
			continue
		}
		text.WriteString(intrinsic.FormatSpec(ae.Type, g.wrappedDyn()))
		args = append(args, readPlace(g.expr(a)))
	}
	if len(args) == 0 {
		return rustString(strings.NewReplacer("{{", "{", "}}", "}").Replace(text.String())) + ".to_string()"
	}
	return "format!(" + rustString(text.String()) + ", " + strings.Join(args, ", ") + ")"
}

// iter renders an expression as an iterator of owned elements.
func (g *gen) iter(id ir.ExprID) string {
	e := g.m.Expr(id)
	t := e.Type
	if s, ok := g.iterCall(e); ok {
		return s
	}
	if e.Kind == ir.ExprVar && e.Use == ir.UseMove {
		if b := g.binding(e.Name); b != nil && b.Own.IsOwned() && b.Type.Equal(t) {
			return intoIter(ident(e.Name), t)
		}
	}
	v := g.expr(id)
	if v.ref == refOwned && !v.lent {
		return intoIter(paren(v.s), t)
	}
	p := readPlace(v)
	switch t.Kind {
	case ir.KindSeq, ir.KindSet:
		return p + ".iter().cloned()"
	case ir.KindMap:
		return p + ".keys().cloned()"
	case ir.KindStr:
		return strRef(v) + ".chars().map(|c| c.to_string())"
	}
	return g.unsupported(e.Pos, "iteration", "iterating a value of type %s", t)
}

// intoIter consumes an owned value of type t into an iterator.
func intoIter(s string, t *ir.Type) string {
	switch t.Kind {
	case ir.KindMap:
		return s + ".into_keys()"
	case ir.KindStr:
		return s + ".chars().map(|c| c.to_string()).collect::<Vec<_>>().into_iter()"
	}
	return s + ".into_iter()"
}

func opaquePath(library, symbol string) string {
	return strings.ReplaceAll(library, ".", "::") + "::" + symbol
}
