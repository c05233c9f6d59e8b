package intrinsic

import (
	"fmt"
	"strings"

	"github.com/roach88/ferrule/internal/ir"
)

var builtins = map[string]*Spec{}

func register(table map[string]*Spec, specs ...*Spec) {
	for _, s := range specs {
		table[s.Name] = s
	}
}

func init() {
	register(builtins,
		&Spec{
			Name: "len", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				if !args[0].HasLen() && !args[0].IsUnknown() {
					return nil, fmt.Errorf("len() of %s", args[0])
				}
				return ir.Int, nil
			},
			Render: func(e Emit) string {
				if e.Types[0].Kind == ir.KindStr {
					return fmt.Sprintf("(%s.chars().count() as i64)", e.Args[0])
				}
				return fmt.Sprintf("(%s.len() as i64)", e.Args[0])
			},
		},
		&Spec{
			Name: "print", Min: 0, Max: -1, Modes: []Mode{Read},
			Type:       fixed(ir.Unit),
			SideEffect: true,
			Render: func(e Emit) string {
				specs := make([]string, len(e.Types))
				for i, t := range e.Types {
					specs[i] = FormatSpec(t, e.WrappedDyn)
				}
				if len(e.Args) == 0 {
					return "println!()"
				}
				return fmt.Sprintf("println!(%q, %s)", strings.Join(specs, " "), strings.Join(e.Args, ", "))
			},
		},
		&Spec{
			Name: "range", Min: 1, Max: 3, Modes: []Mode{Read},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				for _, a := range args {
					if a.Kind != ir.KindInt && !a.IsUnknown() {
						return nil, fmt.Errorf("range() argument of type %s", a)
					}
				}
				return ir.SeqOf(ir.Int), nil
			},
			Render: func(e Emit) string {
				return rangeIter(e) + ".collect::<Vec<i64>>()"
			},
			RenderIter: rangeIter,
		},
		&Spec{
			Name: "enumerate", Min: 1, Max: 1, Modes: []Mode{Iter},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				elem, err := ElemOf(args[0])
				if err != nil {
					return nil, err
				}
				return ir.SeqOf(ir.TupleOf(ir.Int, elem)), nil
			},
			Render:     tmpl("{0}.enumerate().map(|(i, x)| (i as i64, x)).collect::<Vec<_>>()"),
			RenderIter: tmpl("{0}.enumerate().map(|(i, x)| (i as i64, x))"),
		},
		&Spec{
			Name: "zip", Min: 2, Max: 2, Modes: []Mode{Iter},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				a, err := ElemOf(args[0])
				if err != nil {
					return nil, err
				}
				b, err := ElemOf(args[1])
				if err != nil {
					return nil, err
				}
				return ir.SeqOf(ir.TupleOf(a, b)), nil
			},
			Render:     tmpl("{0}.zip({1}).collect::<Vec<_>>()"),
			RenderIter: tmpl("{0}.zip({1})"),
		},
		&Spec{
			Name: "reversed", Min: 1, Max: 1, Modes: []Mode{Iter},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				elem, err := ElemOf(args[0])
				if err != nil {
					return nil, err
				}
				return ir.SeqOf(elem), nil
			},
			Render:     tmpl("{0}.rev().collect::<Vec<_>>()"),
			RenderIter: tmpl("{0}.rev()"),
		},
		&Spec{
			Name: "sorted", Min: 1, Max: 1, Modes: []Mode{Iter},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				elem, err := ElemOf(args[0])
				if err != nil {
					return nil, err
				}
				return ir.SeqOf(elem), nil
			},
			Render: func(e Emit) string {
				return fmt.Sprintf("{ let mut v: Vec<%s> = %s.collect(); %s; v }", e.ElemRust, e.Args[0], sortCall("v", e.Result.Elem))
			},
		},
		&Spec{
			Name: "sum", Min: 1, Max: 1, Modes: []Mode{Iter},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				elem, err := ElemOf(args[0])
				if err != nil {
					return nil, err
				}
				if !elem.IsNumeric() && !elem.IsUnknown() {
					return nil, fmt.Errorf("sum() of %s elements", elem)
				}
				return elem, nil
			},
			Render: tmpl("{0}.sum::<{T}>()"),
		},
		&Spec{
			Name: "any", Min: 1, Max: 1, Modes: []Mode{Iter},
			Type:   fixed(ir.Bool),
			Render: tmpl("{0}.any(|x| x)"),
		},
		&Spec{
			Name: "all", Min: 1, Max: 1, Modes: []Mode{Iter},
			Type:   fixed(ir.Bool),
			Render: tmpl("{0}.all(|x| x)"),
		},
		minMax("min"),
		minMax("max"),
		&Spec{
			Name: "abs", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				if !args[0].IsNumeric() && !args[0].IsUnknown() {
					return nil, fmt.Errorf("abs() of %s", args[0])
				}
				return args[0], nil
			},
			Render: tmpl("{0}.abs()"),
		},
		&Spec{
			Name: "round", Min: 1, Max: 1, Modes: []Mode{Read},
			Type:   fixed(ir.Int),
			Render: tmpl("({0}.round() as i64)"),
		},
		&Spec{
			Name: "str", Min: 0, Max: 1, Modes: []Mode{Read},
			Type: fixed(ir.Str),
			Render: func(e Emit) string {
				if len(e.Args) == 0 {
					return "String::new()"
				}
				if e.Types[0].Kind == ir.KindStr {
					return e.Args[0] + ".to_string()"
				}
				return fmt.Sprintf("format!(%q, %s)", FormatSpec(e.Types[0], e.WrappedDyn), e.Args[0])
			},
		},
		&Spec{
			Name: "int", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: numericConversion("int", ir.Int),
			Raises: func(_ *ir.Type, args []*ir.Type) string {
				if args[0].Kind == ir.KindStr {
					return "ValueError"
				}
				return ""
			},
			Render: func(e Emit) string {
				switch e.Types[0].Kind {
				case ir.KindStr:
					return parse(e.Args[0], "i64")
				case ir.KindInt:
					return e.Args[0]
				}
				return fmt.Sprintf("(%s as i64)", e.Args[0])
			},
		},
		&Spec{
			Name: "float", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: numericConversion("float", ir.Float),
			Raises: func(_ *ir.Type, args []*ir.Type) string {
				if args[0].Kind == ir.KindStr {
					return "ValueError"
				}
				return ""
			},
			Render: func(e Emit) string {
				switch e.Types[0].Kind {
				case ir.KindStr:
					return parse(e.Args[0], "f64")
				case ir.KindFloat:
					return e.Args[0]
				}
				return fmt.Sprintf("(%s as f64)", e.Args[0])
			},
		},
		&Spec{
			Name: "ord", Min: 1, Max: 1, Modes: []Mode{Read},
			Type:   fixed(ir.Int),
			Raises: always("TypeError"),
			Render: tmpl("{0}.chars().next().map(|c| c as i64).ok_or_else(|| " + exception("TypeError", "ord() expected a character") + ")"),
		},
		&Spec{
			Name: "chr", Min: 1, Max: 1, Modes: []Mode{Read},
			Type:   fixed(ir.Str),
			Raises: always("ValueError"),
			Render: tmpl("char::from_u32({0} as u32).map(|c| c.to_string()).ok_or_else(|| " + exception("ValueError", "chr() arg not in range") + ")"),
		},
		&Spec{
			Name: "list", Min: 0, Max: 1, Modes: []Mode{Iter},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				if len(args) == 0 {
					return ir.SeqOf(ir.Unknown), nil
				}
				elem, err := ElemOf(args[0])
				if err != nil {
					return nil, err
				}
				return ir.SeqOf(elem), nil
			},
			Render: func(e Emit) string {
				if len(e.Args) == 0 {
					return "Vec::new()"
				}
				return e.Args[0] + ".collect::<Vec<_>>()"
			},
		},
		&Spec{
			Name: "set", Min: 0, Max: 1, Modes: []Mode{Iter},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				if len(args) == 0 {
					return ir.SetOf(ir.Unknown), nil
				}
				elem, err := ElemOf(args[0])
				if err != nil {
					return nil, err
				}
				return ir.SetOf(elem), nil
			},
			Render: func(e Emit) string {
				if len(e.Args) == 0 {
					return "HashSet::new()"
				}
				return e.Args[0] + ".collect::<HashSet<_>>()"
			},
		},
		&Spec{
			Name: "dict", Min: 0, Max: 0,
			Type:   fixed(ir.MapOf(ir.Unknown, ir.Unknown)),
			Render: tmpl("HashMap::new()"),
		},
	)
}

func rangeIter(e Emit) string {
	switch len(e.Args) {
	case 1:
		return fmt.Sprintf("(0..%s)", e.Args[0])
	case 2:
		return fmt.Sprintf("(%s..%s)", e.Args[0], e.Args[1])
	}
	return fmt.Sprintf("py_range(%s, %s, %s)", e.Args[0], e.Args[1], e.Args[2])
}

func parse(arg, target string) string {
	return fmt.Sprintf("%s.trim().parse::<%s>().map_err(|e| Exception::new(\"ValueError\", e.to_string()))", arg, target)
}

func numericConversion(name string, result *ir.Type) TypeRule {
	return func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
		switch args[0].Kind {
		case ir.KindInt, ir.KindFloat, ir.KindBool, ir.KindStr, ir.KindSize, ir.KindUnknown:
			return result, nil
		}
		return nil, fmt.Errorf("%s() of %s", name, args[0])
	}
}

// sortCall sorts a vector in place; floats have no total order.
func sortCall(v string, elem *ir.Type) string {
	if elem != nil && elem.Kind == ir.KindFloat {
		return v + ".sort_by(|a, b| a.partial_cmp(b).unwrap())"
	}
	return v + ".sort()"
}

func minMax(name string) *Spec {
	return &Spec{
		Name: name, Min: 1, Max: -1, Modes: []Mode{Read},
		Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
			if len(args) == 1 {
				return ElemOf(args[0])
			}
			out := ir.Unknown
			for _, a := range args {
				j, ok := ir.JoinNumeric(out, a)
				if !ok {
					return nil, fmt.Errorf("%s() of %s and %s", name, out, a)
				}
				out = j
			}
			return out, nil
		},
		Raises: func(_ *ir.Type, args []*ir.Type) string {
			if len(args) == 1 {
				return "ValueError"
			}
			return ""
		},
		Render: func(e Emit) string {
			if len(e.Args) == 1 {
				elem := e.Result
				if elem.Kind == ir.KindFloat {
					return fmt.Sprintf("%s.iter().cloned().reduce(f64::%s).ok_or_else(|| %s)",
						e.Args[0], name, exception("ValueError", name+"() arg is an empty sequence"))
				}
				return fmt.Sprintf("%s.iter().%s().cloned().ok_or_else(|| %s)",
					e.Args[0], name, exception("ValueError", name+"() arg is an empty sequence"))
			}
			out := e.Args[0]
			for i, a := range e.Args[1:] {
				if e.Result.Kind == ir.KindFloat && e.Types[i+1].Kind != ir.KindFloat {
					a = "(" + a + " as f64)"
				}
				out = fmt.Sprintf("%s.%s(%s)", out, name, a)
			}
			if e.Result.Kind == ir.KindFloat && e.Types[0].Kind != ir.KindFloat {
				out = strings.Replace(out, e.Args[0], "("+e.Args[0]+" as f64)", 1)
			}
			return out
		},
	}
}
