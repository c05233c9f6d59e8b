package lower

import (
	"fmt"
	"strings"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/intrinsic"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/srctree"
)

// unknownNameError reports an annotation naming a type nothing declares.
// Parameters may still claim such a name as a dispatch union.
type unknownNameError struct{ name string }

func (e *unknownNameError) Error() string {
	return fmt.Sprintf("unknown type %q in annotation", e.name)
}

// ResolveType maps a source annotation to an IR type. Names the catalog
// declares as library types become opaque types.
func ResolveType(ref srctree.TypeRef, cat *catalog.Catalog) (*ir.Type, error) {
	name := strings.TrimPrefix(ref.Name, "typing.")
	name = strings.TrimPrefix(name, "collections.abc.")
	args := ref.Args

	arg := func(i int) (*ir.Type, error) {
		if i >= len(args) {
			return ir.Unknown, nil
		}
		return ResolveType(args[i], cat)
	}
	one := func(build func(*ir.Type) *ir.Type) (*ir.Type, error) {
		if len(args) > 1 {
			return nil, fmt.Errorf("%s takes one type argument, got %d", name, len(args))
		}
		elem, err := arg(0)
		if err != nil {
			return nil, err
		}
		return build(elem), nil
	}

	switch name {
	case "int":
		return ir.Int, nil
	case "float":
		return ir.Float, nil
	case "bool":
		return ir.Bool, nil
	case "str":
		return ir.Str, nil
	case "None", "NoneType":
		return ir.Unit, nil
	case "Any", "object":
		return ir.Dyn, nil
	case "list", "List", "Sequence", "MutableSequence", "Iterable", "Iterator", "Generator":
		if name == "Generator" && len(args) > 1 {
			args = args[:1]
		}
		return one(ir.SeqOf)
	case "set", "Set", "frozenset", "FrozenSet", "AbstractSet":
		return one(ir.SetOf)
	case "Optional":
		return one(ir.OptionalOf)
	case "dict", "Dict", "Mapping", "MutableMapping":
		if len(args) != 0 && len(args) != 2 {
			return nil, fmt.Errorf("%s takes two type arguments, got %d", name, len(args))
		}
		k, err := arg(0)
		if err != nil {
			return nil, err
		}
		v, err := arg(1)
		if err != nil {
			return nil, err
		}
		return ir.MapOf(k, v), nil
	case "tuple", "Tuple":
		items := make([]*ir.Type, len(args))
		for i := range args {
			t, err := ResolveType(args[i], cat)
			if err != nil {
				return nil, err
			}
			items[i] = t
		}
		return ir.TupleOf(items...), nil
	case "Union":
		return ir.Dyn, nil
	}
	if intrinsic.IsException(name) {
		return ir.Exception, nil
	}
	if cat != nil {
		if _, ok := cat.TargetType(name); ok {
			return ir.OpaqueOf(name), nil
		}
	}
	if len(args) == 0 {
		return nil, &unknownNameError{name: name}
	}
	return nil, fmt.Errorf("unknown generic type %q in annotation", ref.String())
}

func (l *lowerer) resolveType(ref srctree.TypeRef, p diag.Pos) (*ir.Type, error) {
	t, err := ResolveType(ref, l.cat)
	if err != nil {
		return nil, diag.Inference(diag.CodeInferUnresolved, p, ref.String(), "%v", err)
	}
	return t, nil
}

// camel converts snake_case or kebab-case to CamelCase.
func camel(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			upper = true
		case upper:
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
