// Package lower converts a validated source tree into the typed IR.
//
// Lowering canonicalizes control-flow sugar into a small set of IR forms:
// try/with become guarded regions, if/elif chains over a string
// discriminant become a match over a closed union, `while x := e` becomes
// a loop headed by a let-else, variadic parameters become owned sequences,
// and generator functions collect their yields. Every construct without a
// rule aborts the unit with SyntaxUnsupported.
package lower

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/srctree"
)

// mainName is the emitted name of a user function called `main`, which
// would otherwise collide with the entry point synthesized from a main
// guard.
const mainName = "run_main"

// Lower converts src into IR. Catalog misses under the warn policy are
// returned as warnings; every other problem aborts the unit.
func Lower(src *srctree.Module, cat *catalog.Catalog, pol config.Policy) (*ir.Module, []diag.Diagnostic, error) {
	l := &lowerer{
		src:    src,
		cat:    cat,
		pol:    pol,
		m:      ir.NewModule(src.Name),
		bag:    &diag.Bag{Unit: src.Name},
		funcs:  make(map[string]bool),
		consts: make(map[string]bool),
	}
	l.m.Path = src.Path
	if err := l.module(); err != nil {
		return nil, l.bag.Items, diag.WithUnit(err, src.Name)
	}
	return l.m, l.bag.Items, nil
}

type lowerer struct {
	src *srctree.Module
	cat *catalog.Catalog
	pol config.Policy
	m   *ir.Module
	bag *diag.Bag

	funcs    map[string]bool
	consts   map[string]bool
	renamed  bool
	fn       *funcState
	deferred []deferredParam
}

// deferredParam is a parameter annotated with a name no declaration
// resolves. It may still name a union another function's dispatch built.
type deferredParam struct {
	param *ir.Param
	name  string
	pos   diag.Pos
}

// funcState is per-function lowering state.
type funcState struct {
	f         *ir.Function
	params    map[string]bool
	pending   map[string]string
	annots    map[string]*ir.Type
	handlers  []string
	loops     int
	subjects  map[string]*armScope
	generator bool
	tmp       int
}

func (fs *funcState) temp(prefix string) string {
	fs.tmp++
	return fmt.Sprintf("_%s%d", prefix, fs.tmp)
}

func ident(s string) string { return norm.NFKC.String(s) }

func pos(p srctree.Pos) diag.Pos { return diag.Pos{Line: p.Line, Col: p.Col} }

// at picks the node position, falling back to the enclosing one.
func at(p srctree.Pos, outer diag.Pos) diag.Pos {
	if p.Line > 0 {
		return pos(p)
	}
	return outer
}

func (l *lowerer) module() error {
	// Declarations first, so calls may precede definitions.
	for i := range l.src.Body {
		s := &l.src.Body[i]
		switch {
		case s.Def != nil:
			name := ident(s.Def.Name)
			if l.funcs[name] {
				return diag.Unsupported(diag.CodeUnsupportedForm, pos(s.Pos), "def",
					"function %q is defined more than once", name)
			}
			l.funcs[name] = true
		case s.Import != nil, s.ImportFrom != nil:
			if err := l.imports(s); err != nil {
				return err
			}
		case s.Assign != nil && s.Assign.Target.Name != "":
			name := ident(s.Assign.Target.Name)
			if l.consts[name] {
				return diag.Unsupported(diag.CodeUnsupportedForm, pos(s.Pos), "assign",
					"module-level name %q is rebound", name)
			}
			if s.Assign.Value != nil {
				l.consts[name] = true
			}
		}
	}
	if l.funcs["main"] {
		l.renamed = true
	}

	for i := range l.src.Body {
		if err := l.topLevel(&l.src.Body[i]); err != nil {
			return err
		}
	}
	for _, d := range l.deferred {
		if l.m.Union(d.name) == nil {
			return diag.Inference(diag.CodeInferUnresolved, d.pos, d.name,
				"unknown type %q in annotation of parameter %q", d.name, d.param.Name)
		}
		d.param.Type = ir.UnionOf(d.name)
		d.param.Annotated = true
	}
	return nil
}

func (l *lowerer) funcName(name string) string {
	if l.renamed && name == "main" {
		return mainName
	}
	return name
}

func (l *lowerer) topLevel(s *srctree.Stmt) error {
	p := pos(s.Pos)
	switch {
	case s.Def != nil:
		return l.function(s.Def, p)
	case s.Import != nil, s.ImportFrom != nil:
		// Bound in the declaration pass.
		return nil
	case s.Assign != nil:
		return l.constant(s, p)
	case s.If != nil && isMainGuard(&s.If.Test):
		return l.mainGuard(s.If, p)
	case s.Expr != nil && s.Expr.Str != nil:
		// Module docstring.
		return nil
	case s.Pass:
		return nil
	case s.Class != nil:
		return diag.Unsupported(diag.CodeUnsupportedStmt, p, "class",
			"no lowering rule for class definitions")
	}
	return diag.Unsupported(diag.CodeUnsupportedStmt, p, s.Kind(),
		"statement is not allowed at module level")
}

func (l *lowerer) imports(s *srctree.Stmt) error {
	switch {
	case s.Import != nil:
		for _, a := range s.Import.Names {
			if a.As != "" {
				l.m.Imports[ident(a.As)] = ir.Import{Library: a.Name}
				continue
			}
			// `import os.path` binds `os`; the dotted path is reached by attribute.
			root := rootName(a.Name)
			l.m.Imports[ident(root)] = ir.Import{Library: root}
		}
	case s.ImportFrom != nil:
		if ignoredLibraries[s.ImportFrom.Module] {
			return nil
		}
		for _, a := range s.ImportFrom.Names {
			if a.Name == "*" {
				return diag.Unsupported(diag.CodeUnsupportedImport, pos(s.Pos), "import",
					"wildcard import from %q", s.ImportFrom.Module)
			}
			alias := a.As
			if alias == "" {
				alias = a.Name
			}
			l.m.Imports[ident(alias)] = ir.Import{Library: s.ImportFrom.Module, Symbol: a.Name}
		}
	}
	return nil
}

// ignoredLibraries only contribute names used in annotations.
var ignoredLibraries = map[string]bool{
	"typing":            true,
	"__future__":        true,
	"collections.abc":   true,
	"typing_extensions": true,
}

func rootName(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

func (l *lowerer) constant(s *srctree.Stmt, p diag.Pos) error {
	a := s.Assign
	if a.Target.Name == "" {
		return diag.Unsupported(diag.CodeUnsupportedForm, p, "assign",
			"module-level assignment target must be a name")
	}
	if a.Value == nil {
		// A bare annotation declares nothing at module level.
		return nil
	}
	c := &ir.Constant{Name: ident(a.Target.Name), Pos: p, Type: ir.Unknown}
	if a.Type != nil {
		t, err := l.resolveType(*a.Type, p)
		if err != nil {
			return err
		}
		c.Annot = t
	}
	v, err := l.expr(a.Value, p)
	if err != nil {
		return err
	}
	c.Value = v
	l.m.Constants = append(l.m.Constants, c)
	return nil
}

// isMainGuard matches `__name__ == "__main__"` in either operand order.
func isMainGuard(test *srctree.Expr) bool {
	c := test.Compare
	if c == nil || len(c.Ops) != 1 || c.Ops[0] != "==" || len(c.Comparators) != 1 {
		return false
	}
	l, r := &c.Left, &c.Comparators[0]
	match := func(name, lit *srctree.Expr) bool {
		return name.Name == "__name__" && lit.Str != nil && *lit.Str == "__main__"
	}
	return match(l, r) || match(r, l)
}

func (l *lowerer) mainGuard(s *srctree.If, p diag.Pos) error {
	if len(s.Else) > 0 {
		return diag.Unsupported(diag.CodeUnsupportedForm, p, "if",
			"main guard with an else branch")
	}
	f := &ir.Function{
		Name:            "main",
		Pos:             p,
		Return:          ir.Unit,
		ReturnAnnotated: true,
		Main:            true,
	}
	return l.functionBody(f, s.Body, nil, p)
}

func (l *lowerer) function(def *srctree.FunctionDef, p diag.Pos) error {
	if def.Async {
		return diag.Unsupported(diag.CodeUnsupportedForm, p, "async def",
			"no lowering rule for coroutines")
	}
	if len(def.Decorators) > 0 {
		return diag.Unsupported(diag.CodeUnsupportedForm, p, "decorator",
			"no lowering rule for decorator %q", def.Decorators[0])
	}
	f := &ir.Function{
		Name:   l.funcName(ident(def.Name)),
		Pos:    p,
		Return: ir.Unknown,
	}
	if def.Returns != nil {
		t, err := l.resolveType(*def.Returns, p)
		if err != nil {
			return err
		}
		f.Return = t
		f.ReturnAnnotated = true
	}
	pending := make(map[string]string)
	for i, sp := range def.Params {
		if sp.Kwarg {
			return diag.Unsupported(diag.CodeUnsupportedForm, p, "**"+sp.Name,
				"no lowering rule for keyword-variadic parameters")
		}
		if sp.Vararg && i != len(def.Params)-1 {
			return diag.Unsupported(diag.CodeUnsupportedForm, p, "*"+sp.Name,
				"keyword-only parameters after a variadic parameter")
		}
		param := &ir.Param{Name: ident(sp.Name), Pos: p, Type: ir.Unknown, Vararg: sp.Vararg}
		if sp.Type != nil {
			t, err := ResolveType(*sp.Type, l.cat)
			var unknown *unknownNameError
			switch {
			case errors.As(err, &unknown) && !sp.Vararg:
				// Resolved later if the body dispatches on this parameter.
				pending[param.Name] = unknown.name
			case err != nil:
				return diag.Inference(diag.CodeInferUnresolved, p, sp.Type.String(), "%v", err)
			default:
				param.Type = t
				param.Annotated = true
			}
		}
		if sp.Vararg {
			// *args is an owned, ordered sequence of the annotated element.
			param.Type = ir.SeqOf(param.Type)
			param.Own = ir.Owned
		}
		if sp.Default != nil {
			if sp.Vararg {
				return diag.Unsupported(diag.CodeUnsupportedForm, p, "*"+sp.Name,
					"variadic parameter with a default")
			}
			d, err := l.expr(sp.Default, p)
			if err != nil {
				return err
			}
			param.Default = d
		}
		f.Params = append(f.Params, param)
	}
	return l.functionBody(f, def.Body, pending, p)
}

func (l *lowerer) functionBody(f *ir.Function, body []srctree.Stmt, pending map[string]string, p diag.Pos) error {
	fs := &funcState{
		f:        f,
		params:   make(map[string]bool),
		pending:  pending,
		annots:   make(map[string]*ir.Type),
		subjects: make(map[string]*armScope),
	}
	for _, param := range f.Params {
		fs.params[param.Name] = true
	}
	fs.generator = containsYield(body)
	f.Generator = fs.generator
	if fs.generator && !f.ReturnAnnotated {
		f.Return = ir.SeqOf(ir.Unknown)
	}
	if fs.generator && f.ReturnAnnotated && f.Return.Kind != ir.KindSeq {
		return diag.Unsupported(diag.CodeUnsupportedForm, p, "yield",
			"generator %q must be annotated with an iterable type, got %s", f.Name, f.Return)
	}

	l.fn = fs
	defer func() { l.fn = nil }()

	stmts, err := l.block(body, p)
	if err != nil {
		return err
	}
	for _, param := range f.Params {
		if name, ok := fs.pending[param.Name]; ok {
			l.deferred = append(l.deferred, deferredParam{param: param, name: name, pos: p})
		}
	}
	f.Body = stmts
	l.m.Functions = append(l.m.Functions, f)
	return nil
}

// containsYield reports a yield anywhere in body, not descending into
// nested definitions.
func containsYield(body []srctree.Stmt) bool {
	found := false
	var visitExpr func(e *srctree.Expr)
	visitExpr = func(e *srctree.Expr) {
		if e == nil || found {
			return
		}
		if e.Yield != nil {
			found = true
			return
		}
		if e.Lambda != nil {
			return
		}
		for _, c := range srctree.Children(e) {
			visitExpr(c)
		}
	}
	var visit func(stmts []srctree.Stmt)
	visit = func(stmts []srctree.Stmt) {
		for i := range stmts {
			s := &stmts[i]
			switch {
			case s.Def != nil || s.Class != nil:
				continue
			case s.Expr != nil:
				visitExpr(s.Expr)
			case s.Assign != nil:
				visitExpr(s.Assign.Value)
			case s.Return != nil:
				visitExpr(s.Return.Value)
			case s.If != nil:
				visit(s.If.Body)
				visit(s.If.Else)
			case s.While != nil:
				visit(s.While.Body)
				visit(s.While.Else)
			case s.For != nil:
				visit(s.For.Body)
				visit(s.For.Else)
			case s.Try != nil:
				visit(s.Try.Body)
				for _, h := range s.Try.Handlers {
					visit(h.Body)
				}
				visit(s.Try.Else)
				visit(s.Try.Finally)
			case s.With != nil:
				visit(s.With.Body)
			}
		}
	}
	visit(body)
	return found
}
