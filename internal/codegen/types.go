package codegen

import (
	"strings"

	"github.com/roach88/ferrule/internal/ir"
)

// rustType spells t in the target language.
func (g *gen) rustType(t *ir.Type) string {
	switch t.Kind {
	case ir.KindInt:
		return "i64"
	case ir.KindFloat:
		return "f64"
	case ir.KindBool:
		return "bool"
	case ir.KindStr:
		return "String"
	case ir.KindUnit:
		return "()"
	case ir.KindSize:
		return "usize"
	case ir.KindSeq:
		return "Vec<" + g.rustType(t.Elem) + ">"
	case ir.KindSet:
		return "HashSet<" + g.rustType(t.Elem) + ">"
	case ir.KindMap:
		return "HashMap<" + g.rustType(t.Key) + ", " + g.rustType(t.Elem) + ">"
	case ir.KindTuple:
		parts := make([]string, len(t.Items))
		for i, it := range t.Items {
			parts[i] = g.rustType(it)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case ir.KindOptional:
		return "Option<" + g.rustType(t.Elem) + ">"
	case ir.KindFallible:
		return "Result<" + g.rustType(t.Elem) + ", Exception>"
	case ir.KindOpaque:
		if t.Name == ir.Exception.Name {
			return "Exception"
		}
		if s, ok := g.cat.TargetType(t.Name); ok {
			return s
		}
		return t.Name
	case ir.KindDyn:
		return "Value"
	case ir.KindUnion:
		return t.Name
	case ir.KindFunc:
		return g.fnType(t)
	}
	return "_"
}

// fnType spells a callable parameter type.
func (g *gen) fnType(t *ir.Type) string {
	params := make([]string, len(t.Items))
	for i, it := range t.Items {
		params[i] = g.rustType(it)
	}
	out := "impl Fn(" + strings.Join(params, ", ") + ")"
	if t.Ret != nil && t.Ret.Kind != ir.KindUnit {
		out += " -> " + g.rustType(t.Ret)
	}
	return out
}

// paramType spells a parameter received in mode own.
func (g *gen) paramType(t *ir.Type, own ir.Ownership) string {
	switch own {
	case ir.Borrowed:
		if t.Kind == ir.KindStr {
			return "&str"
		}
		return "&" + g.rustType(t)
	case ir.BorrowedMut:
		return "&mut " + g.rustType(t)
	}
	return g.rustType(t)
}

// annotated reports whether a let binding of t can carry a type
// annotation; closures have unnameable types.
func annotated(t *ir.Type) bool {
	return t.Kind != ir.KindFunc
}

// fallthroughValue is what a function of return type t yields when
// control falls off its end.
func fallthroughValue(t *ir.Type) string {
	switch t.Kind {
	case ir.KindOptional:
		return "None"
	case ir.KindDyn:
		return "Value::None"
	}
	return "()"
}

// keywords are target reserved words that need the raw identifier prefix.
var keywords = map[string]bool{
	"as": true, "async": true, "await": true, "box": true, "const": true,
	"crate": true, "dyn": true, "enum": true, "extern": true, "fn": true,
	"impl": true, "let": true, "loop": true, "match": true, "mod": true,
	"move": true, "mut": true, "priv": true, "pub": true, "ref": true,
	"static": true, "struct": true, "trait": true, "type": true,
	"unsafe": true, "use": true, "where": true, "macro": true,
	"override": true, "final": true, "typeof": true, "virtual": true,
	"unsized": true, "become": true, "do": true, "abstract": true,
	"yield": true, "try": true, "gen": true,
}

// ident escapes a source name for use as a target identifier.
func ident(name string) string {
	switch name {
	case "self", "Self", "super", "crate":
		return name + "_"
	}
	if keywords[name] {
		return "r#" + name
	}
	return name
}
