package intrinsic

import (
	"fmt"

	"github.com/roach88/ferrule/internal/ir"
)

var methods = map[ir.Kind]map[string]*Spec{
	ir.KindStr: {},
	ir.KindSeq: {},
	ir.KindMap: {},
	ir.KindSet: {},
}

func init() {
	register(methods[ir.KindStr],
		strMethod("upper", 0, ir.Str, "{r}.to_uppercase()"),
		strMethod("lower", 0, ir.Str, "{r}.to_lowercase()"),
		strMethod("strip", 0, ir.Str, "{r}.trim().to_string()"),
		strMethod("lstrip", 0, ir.Str, "{r}.trim_start().to_string()"),
		strMethod("rstrip", 0, ir.Str, "{r}.trim_end().to_string()"),
		strMethod("startswith", 1, ir.Bool, "{r}.starts_with(&*{0})"),
		strMethod("endswith", 1, ir.Bool, "{r}.ends_with(&*{0})"),
		strMethod("isdigit", 0, ir.Bool, "(!{r}.is_empty() && {r}.chars().all(|c| c.is_ascii_digit()))"),
		strMethod("isalpha", 0, ir.Bool, "(!{r}.is_empty() && {r}.chars().all(|c| c.is_alphabetic()))"),
		strMethod("isspace", 0, ir.Bool, "(!{r}.is_empty() && {r}.chars().all(|c| c.is_whitespace()))"),
		strMethod("find", 1, ir.Int, "{r}.find(&*{0}).map(|i| i as i64).unwrap_or(-1)"),
		strMethod("count", 1, ir.Int, "({r}.matches(&*{0}).count() as i64)"),
		strMethod("replace", 2, ir.Str, "{r}.replace(&*{0}, &*{1})"),
		strMethod("splitlines", 0, ir.SeqOf(ir.Str), "{r}.lines().map(String::from).collect::<Vec<String>>()"),
		&Spec{
			Name: "split", Min: 0, Max: 1, Modes: []Mode{Read},
			Type: fixed(ir.SeqOf(ir.Str)),
			Render: func(e Emit) string {
				if len(e.Args) == 0 {
					return e.Recv + ".split_whitespace().map(String::from).collect::<Vec<String>>()"
				}
				return fmt.Sprintf("%s.split(&*%s).map(String::from).collect::<Vec<String>>()", e.Recv, e.Args[0])
			},
		},
		&Spec{
			Name: "join", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: func(_ *ir.Type, args []*ir.Type) (*ir.Type, error) {
				elem, err := ElemOf(args[0])
				if err != nil {
					return nil, err
				}
				if elem.Kind != ir.KindStr && !elem.IsUnknown() {
					return nil, fmt.Errorf("join() of %s elements", elem)
				}
				return ir.Str, nil
			},
			Render: tmpl("{0}.join(&*{r})"),
		},
	)

	register(methods[ir.KindSeq],
		&Spec{
			Name: "append", Min: 1, Max: 1, Modes: []Mode{Move},
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.push({0})"),
		},
		&Spec{
			Name: "extend", Min: 1, Max: 1, Modes: []Mode{Iter},
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.extend({0})"),
		},
		&Spec{
			Name: "insert", Min: 2, Max: 2, Modes: []Mode{Read, Move},
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.insert(py_index({0}, {r}.len() + 1), {1})"),
		},
		&Spec{
			Name: "pop", Min: 0, Max: 1, Modes: []Mode{Read},
			Type: recvElem, Mutates: true,
			Raises: always("IndexError"),
			Render: func(e Emit) string {
				if len(e.Args) == 0 {
					return fmt.Sprintf("%s.pop().ok_or_else(|| %s)", e.Recv, exception("IndexError", "pop from empty list"))
				}
				return fmt.Sprintf("py_checked_index(%s, %s.len()).map(|i| %s.remove(i))", e.Args[0], e.Recv, e.Recv)
			},
		},
		&Spec{
			Name: "index", Min: 1, Max: 1, Modes: []Mode{Read},
			Type:   fixed(ir.Int),
			Raises: always("ValueError"),
			Render: tmpl("{r}.iter().position(|e| *e == {0}).map(|i| i as i64).ok_or_else(|| " + exception("ValueError", "value is not in list") + ")"),
		},
		&Spec{
			Name: "count", Min: 1, Max: 1, Modes: []Mode{Read},
			Type:   fixed(ir.Int),
			Render: tmpl("({r}.iter().filter(|e| **e == {0}).count() as i64)"),
		},
		&Spec{
			Name: "sort", Min: 0, Max: 0,
			Type: fixed(ir.Unit), Mutates: true,
			Render: func(e Emit) string { return sortCall(e.Recv, e.RecvType.Elem) },
		},
		&Spec{
			Name: "reverse", Min: 0, Max: 0,
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.reverse()"),
		},
		&Spec{
			Name: "clear", Min: 0, Max: 0,
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.clear()"),
		},
		&Spec{
			Name: "copy", Min: 0, Max: 0,
			Type:   sameAsRecv,
			Render: tmpl("{r}.clone()"),
		},
	)

	register(methods[ir.KindMap],
		&Spec{
			Name: "get", Min: 1, Max: 2, Modes: []Mode{Read, Move},
			Type: func(recv *ir.Type, args []*ir.Type) (*ir.Type, error) {
				if len(args) == 2 {
					v, ok := ir.Join(recv.Elem, args[1])
					if !ok {
						return nil, fmt.Errorf("get() default %s does not match values of %s", args[1], recv)
					}
					return v, nil
				}
				return ir.OptionalOf(recv.Elem), nil
			},
			Render: func(e Emit) string {
				if len(e.Args) == 2 {
					return fmt.Sprintf("%s.get(%s).cloned().unwrap_or(%s)", e.Recv, e.Refs[0], e.Args[1])
				}
				return fmt.Sprintf("%s.get(%s).cloned()", e.Recv, e.Refs[0])
			},
		},
		&Spec{
			Name: "keys", Min: 0, Max: 0,
			Type: func(recv *ir.Type, _ []*ir.Type) (*ir.Type, error) {
				return ir.SeqOf(recv.Key), nil
			},
			Render:     tmpl("{r}.keys().cloned().collect::<Vec<_>>()"),
			RenderIter: tmpl("{r}.keys().cloned()"),
		},
		&Spec{
			Name: "values", Min: 0, Max: 0,
			Type:       func(recv *ir.Type, _ []*ir.Type) (*ir.Type, error) { return ir.SeqOf(recv.Elem), nil },
			Render:     tmpl("{r}.values().cloned().collect::<Vec<_>>()"),
			RenderIter: tmpl("{r}.values().cloned()"),
		},
		&Spec{
			Name: "items", Min: 0, Max: 0,
			Type: func(recv *ir.Type, _ []*ir.Type) (*ir.Type, error) {
				return ir.SeqOf(ir.TupleOf(recv.Key, recv.Elem)), nil
			},
			Render:     tmpl("{r}.iter().map(|(k, v)| (k.clone(), v.clone())).collect::<Vec<_>>()"),
			RenderIter: tmpl("{r}.iter().map(|(k, v)| (k.clone(), v.clone()))"),
		},
		&Spec{
			Name: "pop", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: recvElem, Mutates: true,
			Raises: always("KeyError"),
			Render: tmpl("{r}.remove({&0}).ok_or_else(|| " + exception("KeyError", "key not found") + ")"),
		},
		&Spec{
			Name: "update", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.extend({0}.iter().map(|(k, v)| (k.clone(), v.clone())))"),
		},
		&Spec{
			Name: "clear", Min: 0, Max: 0,
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.clear()"),
		},
		&Spec{
			Name: "copy", Min: 0, Max: 0,
			Type:   sameAsRecv,
			Render: tmpl("{r}.clone()"),
		},
	)

	register(methods[ir.KindSet],
		&Spec{
			Name: "add", Min: 1, Max: 1, Modes: []Mode{Move},
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.insert({0})"),
		},
		&Spec{
			Name: "discard", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.remove({&0})"),
		},
		&Spec{
			Name: "remove", Min: 1, Max: 1, Modes: []Mode{Read},
			Type: fixed(ir.Unit), Mutates: true,
			Raises: always("KeyError"),
			Render: tmpl("(if {r}.remove({&0}) { Ok(()) } else { Err(" + exception("KeyError", "element not in set") + ") })"),
		},
		setAlgebra("union", "union"),
		setAlgebra("intersection", "intersection"),
		setAlgebra("difference", "difference"),
		&Spec{
			Name: "issubset", Min: 1, Max: 1, Modes: []Mode{Read},
			Type:   fixed(ir.Bool),
			Render: tmpl("{r}.is_subset({&0})"),
		},
		&Spec{
			Name: "clear", Min: 0, Max: 0,
			Type: fixed(ir.Unit), Mutates: true,
			Render: tmpl("{r}.clear()"),
		},
		&Spec{
			Name: "copy", Min: 0, Max: 0,
			Type:   sameAsRecv,
			Render: tmpl("{r}.clone()"),
		},
	)
}

func strMethod(name string, arity int, result *ir.Type, format string) *Spec {
	return &Spec{
		Name: name, Min: arity, Max: arity, Modes: []Mode{Read},
		Type:   fixed(result),
		Render: tmpl(format),
	}
}

func setAlgebra(name, method string) *Spec {
	return &Spec{
		Name: name, Min: 1, Max: 1, Modes: []Mode{Read},
		Type: func(recv *ir.Type, args []*ir.Type) (*ir.Type, error) {
			t, ok := ir.Join(recv, args[0])
			if !ok {
				return nil, fmt.Errorf("%s() of %s and %s", name, recv, args[0])
			}
			return t, nil
		},
		Render: tmpl("{r}." + method + "({&0}).cloned().collect::<HashSet<_>>()"),
	}
}
