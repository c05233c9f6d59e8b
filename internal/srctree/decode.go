package srctree

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode parses a YAML (or JSON) encoded source tree with strict field
// checking, then validates that every node sets exactly one kind.
func Decode(data []byte) (*Module, error) {
	var m Module
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse source tree: %w", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile reads and decodes a source tree file. The unit name defaults to
// the file's base name without extension.
func LoadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source tree: %w", err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if m.Path == "" {
		m.Path = path
	}
	return m, nil
}

// ShapeError reports a node that sets zero or several kinds.
type ShapeError struct {
	Pos   Pos
	Node  string
	Kinds []string
}

func (e *ShapeError) Error() string {
	where := ""
	if e.Pos.Line > 0 {
		where = fmt.Sprintf("line %d: ", e.Pos.Line)
	}
	if len(e.Kinds) == 0 {
		return fmt.Sprintf("%s%s node sets no kind", where, e.Node)
	}
	return fmt.Sprintf("%s%s node sets several kinds: %s", where, e.Node, strings.Join(e.Kinds, ", "))
}

// Kind returns the name of the set statement kind, or "" if none or several.
func (s *Stmt) Kind() string {
	kinds := s.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (s *Stmt) kinds() []string {
	var k []string
	add := func(set bool, name string) {
		if set {
			k = append(k, name)
		}
	}
	add(s.Def != nil, "def")
	add(s.Class != nil, "class")
	add(s.Assign != nil, "assign")
	add(s.AugAssign != nil, "aug_assign")
	add(s.If != nil, "if")
	add(s.While != nil, "while")
	add(s.For != nil, "for")
	add(s.Try != nil, "try")
	add(s.With != nil, "with")
	add(s.Return != nil, "return")
	add(s.Raise != nil, "raise")
	add(s.Expr != nil, "expr")
	add(s.Del != nil, "del")
	add(s.Assert != nil, "assert")
	add(s.Import != nil, "import")
	add(s.ImportFrom != nil, "import_from")
	add(s.Global != nil, "global")
	add(s.Nonlocal != nil, "nonlocal")
	add(s.Pass, "pass")
	add(s.Break, "break")
	add(s.Continue, "continue")
	return k
}

// Kind returns the name of the set expression kind, or "" if none or several.
func (e *Expr) Kind() string {
	kinds := e.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (e *Expr) kinds() []string {
	var k []string
	add := func(set bool, name string) {
		if set {
			k = append(k, name)
		}
	}
	add(e.Int != nil, "int")
	add(e.Float != nil, "float")
	add(e.Str != nil, "str")
	add(e.Bool != nil, "bool")
	add(e.None, "none")
	add(e.Name != "", "name")
	add(e.Attr != nil, "attr")
	add(e.Subscript != nil, "subscript")
	add(e.Call != nil, "call")
	add(e.BinOp != nil, "binop")
	add(e.BoolOp != nil, "boolop")
	add(e.Compare != nil, "compare")
	add(e.Unary != nil, "unary")
	add(e.Dict != nil, "dict")
	add(e.List != nil, "list")
	add(e.Set != nil, "set")
	add(e.Tuple != nil, "tuple")
	add(e.ListComp != nil, "list_comp")
	add(e.SetComp != nil, "set_comp")
	add(e.DictComp != nil, "dict_comp")
	add(e.GenExp != nil, "gen_exp")
	add(e.Lambda != nil, "lambda")
	add(e.Starred != nil, "starred")
	add(e.Walrus != nil, "walrus")
	add(e.IfExp != nil, "if_exp")
	add(e.FString != nil, "fstring")
	add(e.Yield != nil, "yield")
	add(e.Await != nil, "await")
	return k
}

// Validate checks the one-of shape of every node in the module.
func Validate(m *Module) error {
	return validateStmts(m.Body)
}

func validateStmts(stmts []Stmt) error {
	for i := range stmts {
		if err := validateStmt(&stmts[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStmt(s *Stmt) error {
	if kinds := s.kinds(); len(kinds) != 1 {
		return &ShapeError{Pos: s.Pos, Node: "statement", Kinds: kinds}
	}
	var exprs []*Expr
	var blocks [][]Stmt
	switch {
	case s.Def != nil:
		for i := range s.Def.Params {
			if s.Def.Params[i].Default != nil {
				exprs = append(exprs, s.Def.Params[i].Default)
			}
		}
		blocks = append(blocks, s.Def.Body)
	case s.Class != nil:
		blocks = append(blocks, s.Class.Body)
	case s.Assign != nil:
		exprs = append(exprs, &s.Assign.Target, s.Assign.Value)
	case s.AugAssign != nil:
		exprs = append(exprs, &s.AugAssign.Target, &s.AugAssign.Value)
	case s.If != nil:
		exprs = append(exprs, &s.If.Test)
		blocks = append(blocks, s.If.Body, s.If.Else)
	case s.While != nil:
		exprs = append(exprs, &s.While.Test)
		blocks = append(blocks, s.While.Body, s.While.Else)
	case s.For != nil:
		exprs = append(exprs, &s.For.Target, &s.For.Iter)
		blocks = append(blocks, s.For.Body, s.For.Else)
	case s.Try != nil:
		blocks = append(blocks, s.Try.Body, s.Try.Else, s.Try.Finally)
		for _, h := range s.Try.Handlers {
			blocks = append(blocks, h.Body)
		}
	case s.With != nil:
		for i := range s.With.Items {
			exprs = append(exprs, &s.With.Items[i].Context)
		}
		blocks = append(blocks, s.With.Body)
	case s.Return != nil:
		exprs = append(exprs, s.Return.Value)
	case s.Raise != nil:
		exprs = append(exprs, s.Raise.Exc)
	case s.Expr != nil:
		exprs = append(exprs, s.Expr)
	case s.Del != nil:
		for i := range s.Del.Targets {
			exprs = append(exprs, &s.Del.Targets[i])
		}
	case s.Assert != nil:
		exprs = append(exprs, &s.Assert.Test, s.Assert.Msg)
	}
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if err := validateExpr(e); err != nil {
			return err
		}
	}
	for _, b := range blocks {
		if err := validateStmts(b); err != nil {
			return err
		}
	}
	return nil
}

func validateExpr(e *Expr) error {
	if kinds := e.kinds(); len(kinds) != 1 {
		return &ShapeError{Pos: e.Pos, Node: "expression", Kinds: kinds}
	}
	for _, child := range Children(e) {
		if err := validateExpr(child); err != nil {
			return err
		}
	}
	return nil
}

// Children returns the direct sub-expressions of e in evaluation order.
func Children(e *Expr) []*Expr {
	var out []*Expr
	add := func(xs ...*Expr) {
		for _, x := range xs {
			if x != nil {
				out = append(out, x)
			}
		}
	}
	switch {
	case e.Attr != nil:
		add(&e.Attr.Value)
	case e.Subscript != nil:
		add(&e.Subscript.Value, e.Subscript.Index)
		if sl := e.Subscript.Slice; sl != nil {
			add(sl.Lower, sl.Upper, sl.Step)
		}
	case e.Call != nil:
		add(&e.Call.Func)
		for i := range e.Call.Args {
			add(&e.Call.Args[i])
		}
		for i := range e.Call.Keywords {
			add(&e.Call.Keywords[i].Value)
		}
	case e.BinOp != nil:
		add(&e.BinOp.Left, &e.BinOp.Right)
	case e.BoolOp != nil:
		for i := range e.BoolOp.Values {
			add(&e.BoolOp.Values[i])
		}
	case e.Compare != nil:
		add(&e.Compare.Left)
		for i := range e.Compare.Comparators {
			add(&e.Compare.Comparators[i])
		}
	case e.Unary != nil:
		add(&e.Unary.Operand)
	case e.Dict != nil:
		for i := range e.Dict.Entries {
			add(&e.Dict.Entries[i].Key, &e.Dict.Entries[i].Value)
		}
	case e.List != nil:
		for i := range e.List.Elts {
			add(&e.List.Elts[i])
		}
	case e.Set != nil:
		for i := range e.Set.Elts {
			add(&e.Set.Elts[i])
		}
	case e.Tuple != nil:
		for i := range e.Tuple.Elts {
			add(&e.Tuple.Elts[i])
		}
	case e.ListComp != nil, e.SetComp != nil, e.DictComp != nil, e.GenExp != nil:
		c := firstComp(e)
		for i := range c.Generators {
			g := &c.Generators[i]
			add(&g.Iter, &g.Target)
			for j := range g.Ifs {
				add(&g.Ifs[j])
			}
		}
		add(c.Key, &c.Elt)
	case e.Lambda != nil:
		add(&e.Lambda.Body)
	case e.Starred != nil:
		add(e.Starred)
	case e.Walrus != nil:
		add(&e.Walrus.Value)
	case e.IfExp != nil:
		add(&e.IfExp.Test, &e.IfExp.Body, &e.IfExp.OrElse)
	case e.FString != nil:
		for i := range e.FString.Parts {
			add(&e.FString.Parts[i])
		}
	case e.Yield != nil:
		add(e.Yield.Value)
	case e.Await != nil:
		add(e.Await)
	}
	return out
}

func firstComp(e *Expr) *Comp {
	switch {
	case e.ListComp != nil:
		return e.ListComp
	case e.SetComp != nil:
		return e.SetComp
	case e.DictComp != nil:
		return e.DictComp
	default:
		return e.GenExp
	}
}
