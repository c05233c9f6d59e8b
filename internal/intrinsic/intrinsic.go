// Package intrinsic is the single table of builtin functions and typed
// methods the translator understands without the library catalog.
//
// Each entry carries its type rule, its effect classification (which the
// optimizer's dead-code pass and the ownership pass consult) and its target
// rendering. Nothing else in the translator special-cases a builtin by name.
package intrinsic

import (
	"fmt"
	"strings"

	"github.com/roach88/ferrule/internal/ir"
)

// Mode is how one argument is handed to an intrinsic.
type Mode uint8

const (
	// Read renders a place expression; the binding is not consumed.
	Read Mode = iota + 1
	// Move renders an owned value; a binding read later is cloned.
	Move
	// Iter renders an iterator yielding owned elements.
	Iter
)

// Emit is the rendered input to a Template.
type Emit struct {
	Recv     string
	RecvType *ir.Type
	Args     []string
	// Refs holds, per argument, a shared reference to it for lookups
	// by key: `&x`, or a string slice for text.
	Refs       []string
	Types      []*ir.Type
	Result     *ir.Type
	ResultRust string
	// ElemRust is the target spelling of the receiver's or first
	// argument's element type, when it has one.
	ElemRust string
	// WrappedDyn selects the wrapped display of dynamic values.
	WrappedDyn bool
}

// Template renders an intrinsic call.
type Template func(e Emit) string

// TypeRule computes the result type, or explains why the call is ill-typed.
type TypeRule func(recv *ir.Type, args []*ir.Type) (*ir.Type, error)

// Spec describes one builtin or method.
type Spec struct {
	Name string
	Min  int
	// Max is the largest argument count; -1 is unbounded.
	Max   int
	Modes []Mode
	Type  TypeRule
	// Raises names the exception kind the call can raise for the given
	// argument types, or "" when it cannot fail.
	Raises func(recv *ir.Type, args []*ir.Type) string
	// Mutates marks methods that change their receiver in place.
	Mutates bool
	// SideEffect marks calls observable beyond their result.
	SideEffect bool
	Render     Template
	// RenderIter, when set, renders the call as an iterator for loop
	// headers and iterator-consuming arguments.
	RenderIter Template
}

// Pure reports whether an unused call may be removed.
func (s *Spec) Pure() bool { return !s.Mutates && !s.SideEffect }

// ModeAt returns the mode of argument i; the last mode repeats.
func (s *Spec) ModeAt(i int) Mode {
	if len(s.Modes) == 0 {
		return Read
	}
	if i < len(s.Modes) {
		return s.Modes[i]
	}
	return s.Modes[len(s.Modes)-1]
}

// CheckArity validates an argument count.
func (s *Spec) CheckArity(n int) error {
	if n < s.Min || (s.Max >= 0 && n > s.Max) {
		switch {
		case s.Max < 0:
			return fmt.Errorf("%s() takes at least %d arguments (%d given)", s.Name, s.Min, n)
		case s.Min == s.Max:
			return fmt.Errorf("%s() takes %d arguments (%d given)", s.Name, s.Min, n)
		default:
			return fmt.Errorf("%s() takes %d to %d arguments (%d given)", s.Name, s.Min, s.Max, n)
		}
	}
	return nil
}

// RaisesFor returns the exception kind the call can raise, or "".
func (s *Spec) RaisesFor(recv *ir.Type, args []*ir.Type) string {
	if s.Raises == nil {
		return ""
	}
	return s.Raises(recv, args)
}

// Builtin returns the builtin function spec.
func Builtin(name string) (*Spec, bool) {
	s, ok := builtins[name]
	return s, ok
}

// IsBuiltin reports whether name is a builtin function.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// Method returns the method spec for a receiver type.
func Method(recv *ir.Type, name string) (*Spec, bool) {
	if recv == nil {
		return nil, false
	}
	table, ok := methods[recv.Kind]
	if !ok {
		return nil, false
	}
	s, ok := table[name]
	return s, ok
}

// FormatSpec returns the format directive that displays a value of t the
// way the source language's str() does, as closely as the target allows.
func FormatSpec(t *ir.Type, wrappedDyn bool) string {
	switch t.Kind {
	case ir.KindInt, ir.KindFloat, ir.KindBool, ir.KindStr, ir.KindSize:
		return "{}"
	case ir.KindDyn:
		if wrappedDyn {
			return "{:?}"
		}
		return "{}"
	case ir.KindOpaque:
		if t.Name == ir.Exception.Name {
			return "{}"
		}
	}
	return "{:?}"
}

func always(kind string) func(*ir.Type, []*ir.Type) string {
	return func(*ir.Type, []*ir.Type) string { return kind }
}

func fixed(t *ir.Type) TypeRule {
	return func(*ir.Type, []*ir.Type) (*ir.Type, error) { return t, nil }
}

func sameAsRecv(recv *ir.Type, _ []*ir.Type) (*ir.Type, error) { return recv, nil }

func recvElem(recv *ir.Type, _ []*ir.Type) (*ir.Type, error) { return recv.Elem, nil }

// ElemOf returns the element type produced by iterating t: sequence and set
// elements, mapping keys, text characters as text.
func ElemOf(t *ir.Type) (*ir.Type, error) {
	switch t.Kind {
	case ir.KindSeq, ir.KindSet:
		return t.Elem, nil
	case ir.KindMap:
		return t.Key, nil
	case ir.KindStr:
		return ir.Str, nil
	case ir.KindUnknown:
		return ir.Unknown, nil
	}
	return nil, fmt.Errorf("%s is not iterable", t)
}

func tmpl(format string) Template {
	return func(e Emit) string {
		r := strings.NewReplacer(replacements(e)...)
		return r.Replace(format)
	}
}

func replacements(e Emit) []string {
	pairs := []string{"{r}", e.Recv, "{T}", e.ResultRust, "{E}", e.ElemRust}
	for i, a := range e.Args {
		pairs = append(pairs, fmt.Sprintf("{%d}", i), a)
	}
	for i, r := range e.Refs {
		pairs = append(pairs, fmt.Sprintf("{&%d}", i), r)
	}
	return pairs
}

func exception(kind, msg string) string {
	return fmt.Sprintf("Exception::new(%q, %q)", kind, msg)
}
