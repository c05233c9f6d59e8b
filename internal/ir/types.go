package ir

import (
	"strings"
)

// Kind tags a Type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStr
	KindUnit
	KindSize
	KindSeq
	KindMap
	KindSet
	KindTuple
	KindOptional
	KindFallible
	KindOpaque
	KindDyn
	KindFunc
	KindUnion
)

// Type is a structural type. Types are immutable once built; share freely.
type Type struct {
	Kind  Kind
	Elem  *Type   // Seq, Set, Optional element; Map value; Fallible success
	Key   *Type   // Map key
	Err   *Type   // Fallible error
	Items []*Type // Tuple members; Func parameters
	Ret   *Type   // Func result
	Name  string  // Opaque and Union name
}

// Scalar singletons.
var (
	Unknown = &Type{Kind: KindUnknown}
	Int     = &Type{Kind: KindInt}
	Float   = &Type{Kind: KindFloat}
	Bool    = &Type{Kind: KindBool}
	Str     = &Type{Kind: KindStr}
	Unit    = &Type{Kind: KindUnit}
	Size    = &Type{Kind: KindSize}
	Dyn     = &Type{Kind: KindDyn}

	// Exception is the error type of every fallible function.
	Exception = &Type{Kind: KindOpaque, Name: "Exception"}
)

func SeqOf(elem *Type) *Type        { return &Type{Kind: KindSeq, Elem: elem} }
func SetOf(elem *Type) *Type        { return &Type{Kind: KindSet, Elem: elem} }
func MapOf(key, val *Type) *Type    { return &Type{Kind: KindMap, Key: key, Elem: val} }
func OptionalOf(elem *Type) *Type   { return &Type{Kind: KindOptional, Elem: elem} }
func TupleOf(items ...*Type) *Type  { return &Type{Kind: KindTuple, Items: items} }
func OpaqueOf(name string) *Type    { return &Type{Kind: KindOpaque, Name: name} }
func UnionOf(name string) *Type     { return &Type{Kind: KindUnion, Name: name} }
func FallibleOf(ok *Type) *Type     { return &Type{Kind: KindFallible, Elem: ok, Err: Exception} }
func FuncOf(ret *Type, params ...*Type) *Type {
	return &Type{Kind: KindFunc, Items: params, Ret: ret}
}

// NoneType is the type of a bare None literal before its element is known.
func NoneType() *Type { return OptionalOf(Unknown) }

// String renders the type in annotation syntax, used in diagnostics and
// published signatures.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindUnknown:
		return "?"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStr:
		return "str"
	case KindUnit:
		return "None"
	case KindSize:
		return "usize"
	case KindSeq:
		return "list[" + t.Elem.String() + "]"
	case KindSet:
		return "set[" + t.Elem.String() + "]"
	case KindMap:
		return "dict[" + t.Key.String() + ", " + t.Elem.String() + "]"
	case KindTuple:
		return "tuple[" + joinTypes(t.Items) + "]"
	case KindOptional:
		return "Optional[" + t.Elem.String() + "]"
	case KindFallible:
		return "Result[" + t.Elem.String() + ", " + t.Err.String() + "]"
	case KindOpaque:
		return t.Name
	case KindDyn:
		return "Any"
	case KindFunc:
		return "Callable[[" + joinTypes(t.Items) + "], " + t.Ret.String() + "]"
	case KindUnion:
		return "union " + t.Name
	}
	return "invalid"
}

func joinTypes(ts []*Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// Equal reports structural equality.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind || t.Name != o.Name {
		return false
	}
	if !t.Elem.Equal(o.Elem) || !t.Key.Equal(o.Key) || !t.Err.Equal(o.Err) || !t.Ret.Equal(o.Ret) {
		return false
	}
	if len(t.Items) != len(o.Items) {
		return false
	}
	for i := range t.Items {
		if !t.Items[i].Equal(o.Items[i]) {
			return false
		}
	}
	return true
}

// Known reports whether no Unknown occurs anywhere in t.
func (t *Type) Known() bool {
	if t == nil {
		return true
	}
	if t.Kind == KindUnknown {
		return false
	}
	if !t.Elem.Known() || !t.Key.Known() || !t.Err.Known() || !t.Ret.Known() {
		return false
	}
	for _, it := range t.Items {
		if !it.Known() {
			return false
		}
	}
	return true
}

// IsUnknown reports whether t is absent or the Unknown type itself.
func (t *Type) IsUnknown() bool { return t == nil || t.Kind == KindUnknown }

// IsNone reports whether t is the element-less None literal type.
func (t *Type) IsNone() bool {
	return t != nil && t.Kind == KindOptional && t.Elem.IsUnknown()
}

// IsNumeric reports int, float or size.
func (t *Type) IsNumeric() bool {
	return t != nil && (t.Kind == KindInt || t.Kind == KindFloat || t.Kind == KindSize)
}

// HasLen reports types whose truthiness is non-emptiness.
func (t *Type) HasLen() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindStr, KindSeq, KindMap, KindSet:
		return true
	}
	return false
}

// IsCopy reports whether values of t are duplicated by plain assignment in
// the target, so reading them never consumes the binding.
func (t *Type) IsCopy() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindInt, KindFloat, KindBool, KindUnit, KindSize:
		return true
	case KindOptional:
		return t.Elem.IsCopy()
	case KindTuple:
		for _, it := range t.Items {
			if !it.IsCopy() {
				return false
			}
		}
		return true
	}
	return false
}

// Join merges two observations of the same value. Unknown parts are filled
// from the other side and None joins T as Optional[T]. Any other mismatch
// fails; callers decide whether that means Dyn or an error.
func Join(a, b *Type) (*Type, bool) {
	return join(a, b, false)
}

// JoinNumeric is Join that also widens int with float to float, the
// source language's numeric tower. It is used for rebound locals, never
// for return typing.
func JoinNumeric(a, b *Type) (*Type, bool) {
	return join(a, b, true)
}

func join(a, b *Type, widen bool) (*Type, bool) {
	switch {
	case a.IsUnknown():
		return b, true
	case b.IsUnknown():
		return a, true
	case a.Equal(b):
		return a, true
	case a.Kind == KindDyn || b.Kind == KindDyn:
		return Dyn, true
	case a.IsNone() && b.Kind == KindOptional:
		return b, true
	case b.IsNone() && a.Kind == KindOptional:
		return a, true
	case a.IsNone():
		return OptionalOf(b), true
	case b.IsNone():
		return OptionalOf(a), true
	case a.Kind == KindOptional && b.Kind != KindOptional:
		e, ok := join(a.Elem, b, widen)
		return OptionalOf(e), ok
	case b.Kind == KindOptional && a.Kind != KindOptional:
		e, ok := join(a, b.Elem, widen)
		return OptionalOf(e), ok
	case widen && a.IsNumeric() && b.IsNumeric():
		if a.Kind == KindFloat || b.Kind == KindFloat {
			return Float, true
		}
		return Int, true
	}
	if a.Kind != b.Kind || a.Name != b.Name || len(a.Items) != len(b.Items) {
		return nil, false
	}
	out := &Type{Kind: a.Kind, Name: a.Name}
	var ok bool
	if a.Elem != nil || b.Elem != nil {
		if out.Elem, ok = join(a.Elem, b.Elem, widen); !ok {
			return nil, false
		}
	}
	if a.Key != nil || b.Key != nil {
		if out.Key, ok = join(a.Key, b.Key, widen); !ok {
			return nil, false
		}
	}
	if a.Err != nil || b.Err != nil {
		if out.Err, ok = join(a.Err, b.Err, widen); !ok {
			return nil, false
		}
	}
	if a.Ret != nil || b.Ret != nil {
		if out.Ret, ok = join(a.Ret, b.Ret, widen); !ok {
			return nil, false
		}
	}
	for i := range a.Items {
		it, ok := join(a.Items[i], b.Items[i], widen)
		if !ok {
			return nil, false
		}
		out.Items = append(out.Items, it)
	}
	return out, true
}

// Ownership is a binding's ownership mode.
type Ownership uint8

const (
	OwnUnset Ownership = iota
	Owned
	OwnedMut
	Borrowed
	BorrowedMut
)

// IsOwned reports owned modes.
func (o Ownership) IsOwned() bool { return o == Owned || o == OwnedMut }

// IsMut reports mutable modes.
func (o Ownership) IsMut() bool { return o == OwnedMut || o == BorrowedMut }

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case OwnedMut:
		return "owned mut"
	case Borrowed:
		return "borrowed"
	case BorrowedMut:
		return "borrowed mut"
	}
	return "unset"
}

// Use is how one read of a binding is emitted, decided by the ownership
// pass and consulted by the code generator.
type Use uint8

const (
	UseUnset Use = iota
	// UseRead reads in place: comparisons, method receivers, formatting.
	UseRead
	// UseCopy duplicates a Copy value.
	UseCopy
	// UseMove transfers ownership; the binding is dead afterwards.
	UseMove
	// UseClone duplicates before a consuming position because the binding
	// is read again later.
	UseClone
	// UseBorrow passes a shared reference.
	UseBorrow
	// UseBorrowMut passes an exclusive reference.
	UseBorrowMut
)

func (u Use) String() string {
	switch u {
	case UseRead:
		return "read"
	case UseCopy:
		return "copy"
	case UseMove:
		return "move"
	case UseClone:
		return "clone"
	case UseBorrow:
		return "borrow"
	case UseBorrowMut:
		return "borrow_mut"
	}
	return "unset"
}

// FillHoles returns t with every Unknown nested inside it resolved: mapping
// keys and set elements become str, which can be hashed, and every other
// hole becomes the dynamic value. A wholly Unknown t is returned as is.
func FillHoles(t *Type) *Type {
	if t.IsUnknown() || t.Known() {
		return t
	}
	c := *t
	c.Elem = fillHole(t.Elem, t.Kind == KindSet)
	c.Key = fillHole(t.Key, true)
	c.Err = fillHole(t.Err, false)
	c.Ret = fillHole(t.Ret, false)
	if t.Items != nil {
		c.Items = make([]*Type, len(t.Items))
		for i, it := range t.Items {
			c.Items[i] = fillHole(it, false)
		}
	}
	return &c
}

func fillHole(t *Type, hashed bool) *Type {
	switch {
	case t == nil:
		return nil
	case t.Kind == KindUnknown && hashed:
		return Str
	case t.Kind == KindUnknown:
		return Dyn
	}
	return FillHoles(t)
}
