package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/srctree"
)

func lowerYAML(t *testing.T, src string, pol config.Policy) (*ir.Module, []diag.Diagnostic, error) {
	t.Helper()
	tree, err := srctree.Decode([]byte(src))
	require.NoError(t, err)
	cat, err := catalog.Default()
	require.NoError(t, err)
	return Lower(tree, cat, pol)
}

func mustLower(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, _, err := lowerYAML(t, src, config.Default().Policy)
	require.NoError(t, err)
	return m
}

func body(m *ir.Module, f *ir.Function) []*ir.Stmt {
	out := make([]*ir.Stmt, len(f.Body))
	for i, id := range f.Body {
		out[i] = m.Stmt(id)
	}
	return out
}

func TestWalrusLoopBecomesLetElse(t *testing.T) {
	m := mustLower(t, `
name: reader
body:
  - line: 1
    def:
      name: drain
      params:
        - name: q
          type: list[int]
      body:
        - line: 2
          while:
            test: {walrus: {target: item, value: {call: {func: {attr: {value: {name: q}, attr: pop}}}}}}
            body:
              - line: 3
                expr: {call: {func: {name: print}, args: [{name: item}]}}
`)
	f := m.Func("drain")
	require.NotNil(t, f)
	stmts := body(m, f)
	require.Len(t, stmts, 1)
	loop := stmts[0]
	assert.Equal(t, ir.StmtLoop, loop.Kind)
	require.Len(t, loop.Body, 2)

	head := m.Stmt(loop.Body[0])
	assert.Equal(t, ir.StmtLetElse, head.Kind)
	assert.Equal(t, "item", m.Expr(head.Target).Name)
	assert.Equal(t, ir.ExprMethodCall, m.Expr(head.Value).Kind)
	assert.Equal(t, ir.StmtExpr, m.Stmt(loop.Body[1]).Kind)
}

func TestWalrusInsideConditionStaysNamed(t *testing.T) {
	m := mustLower(t, `
name: scan
body:
  - def:
      name: first_long
      params:
        - name: words
          type: list[str]
      body:
        - if:
            test:
              compare:
                left: {walrus: {target: n, value: {call: {func: {name: len}, args: [{name: words}]}}}}
                ops: [">"]
                comparators: [{int: 3}]
            body:
              - return: {value: {name: n}}
        - return: {value: {int: 0}}
`)
	f := m.Func("first_long")
	iff := body(m, f)[0]
	require.Equal(t, ir.StmtIf, iff.Kind)
	cond := m.Expr(iff.Cond)
	assert.Equal(t, ir.ExprBinary, cond.Kind)
	assert.Equal(t, ir.ExprNamed, m.Expr(cond.X).Kind)
}

const dispatchSrc = `
name: cli
body:
  - def:
      name: run
      params:
        - name: cmd
          type: Command
      returns: int
      body:
        - line: 4
          if:
            test: {compare: {left: {attr: {value: {name: cmd}, attr: kind}}, ops: ["=="], comparators: [{str: add}]}}
            body:
              - return:
                  value:
                    binop:
                      op: "+"
                      left: {attr: {value: {name: cmd}, attr: a}}
                      right: {attr: {value: {name: cmd}, attr: b}}
            else:
              - if:
                  test: {compare: {left: {str: neg-one}, ops: ["=="], comparators: [{attr: {value: {name: cmd}, attr: kind}}]}}
                  body:
                    - expr: {call: {func: {name: print}, args: [{attr: {value: {name: cmd}, attr: kind}}]}}
                    - return: {value: {unary: {op: "-", operand: {attr: {value: {name: cmd}, attr: a}}}}}
                  else:
                    - return: {value: {int: 0}}
  - def:
      name: describe
      params:
        - name: cmd
          type: Command
      returns: str
      body:
        - return: {value: {str: command}}
`

func TestTaggedDispatchBuildsUnion(t *testing.T) {
	m := mustLower(t, dispatchSrc)

	u := m.Union("Command")
	require.NotNil(t, u)
	assert.Equal(t, "kind", u.Discriminant)
	require.Len(t, u.Variants, 2)

	add := u.Variant("Add")
	require.NotNil(t, add)
	assert.Equal(t, "add", add.Tag)
	require.Len(t, add.Fields, 2)
	assert.Equal(t, "a", add.Fields[0].Name)
	assert.Equal(t, "b", add.Fields[1].Name)

	neg := u.Variant("NegOne")
	require.NotNil(t, neg)
	require.Len(t, neg.Fields, 1, "reading the discriminant adds no field")

	f := m.Func("run")
	assert.True(t, ir.UnionOf("Command").Equal(f.Params[0].Type))

	match := body(m, f)[0]
	require.Equal(t, ir.StmtMatch, match.Kind)
	assert.Equal(t, "Command", match.Match.Union)
	require.Len(t, match.Match.Arms, 2)
	assert.True(t, match.Match.HasDefault)

	// The discriminant read inside an arm is the arm's tag.
	printStmt := m.Stmt(match.Match.Arms[1].Body[0])
	arg := m.Expr(m.Expr(printStmt.Value).Args[0])
	assert.Equal(t, ir.ExprLit, arg.Kind)
	assert.Equal(t, "neg-one", arg.Lit.Str)

	// Another function annotated with the class name shares the union.
	assert.True(t, ir.UnionOf("Command").Equal(m.Func("describe").Params[0].Type))
}

func TestDispatchNeedsTwoDistinctTags(t *testing.T) {
	_, _, err := lowerYAML(t, `
name: one
body:
  - def:
      name: run
      params: [{name: cmd}]
      body:
        - if:
            test: {compare: {left: {attr: {value: {name: cmd}, attr: kind}}, ops: ["=="], comparators: [{str: add}]}}
            body:
              - return: {value: {attr: {value: {name: cmd}, attr: a}}}
`, config.Default().Policy)
	require.Error(t, err)
	assert.True(t, diag.IsUnsupported(err), "a single comparison is a plain if, so attribute access is rejected")
}

func TestTryAndWithBecomeGuardedRegions(t *testing.T) {
	m := mustLower(t, `
name: guarded
body:
  - def:
      name: parse
      params: [{name: s, type: str}]
      returns: int
      body:
        - try:
            body:
              - return: {value: {call: {func: {name: int}, args: [{name: s}]}}}
            handlers:
              - types: [ValueError, KeyError]
                name: err
                body:
                  - raise: {}
            finally:
              - expr: {call: {func: {name: print}, args: [{str: done}]}}
        - with:
            items:
              - context: {call: {func: {name: open_log}}}
                as: log
            body:
              - pass: true
        - return: {value: {int: 0}}
  - def:
      name: open_log
      body:
        - return: {value: {str: log}}
`)
	stmts := body(m, m.Func("parse"))
	require.Len(t, stmts, 3)

	try := stmts[0]
	assert.Equal(t, ir.StmtTry, try.Kind)
	assert.False(t, try.Scoped)
	require.Len(t, try.Handlers, 1)
	assert.Equal(t, []string{"ValueError", "KeyError"}, try.Handlers[0].Kinds)
	assert.Equal(t, "err", try.Handlers[0].Name)
	assert.Equal(t, ir.StmtRaise, m.Stmt(try.Handlers[0].Body[0]).Kind)
	assert.Len(t, try.Finally, 1)

	with := stmts[1]
	assert.Equal(t, ir.StmtTry, with.Kind)
	assert.True(t, with.Scoped)
	require.Len(t, with.Body, 2)
	bind := m.Stmt(with.Body[0])
	assert.Equal(t, ir.StmtAssign, bind.Kind)
	assert.Equal(t, "log", m.Expr(bind.Target).Name)
}

func TestVarargParameter(t *testing.T) {
	m := mustLower(t, `
name: va
body:
  - def:
      name: total
      params:
        - {name: base, type: int}
        - {name: rest, type: int, vararg: true}
      returns: int
      body:
        - return: {value: {call: {func: {name: sum}, args: [{name: rest}]}}}
  - def:
      name: relay
      params:
        - {name: xs, type: int, vararg: true}
      returns: int
      body:
        - return: {value: {call: {func: {name: total}, args: [{int: 0}, {starred: {name: xs}}]}}}
`)
	p := m.Func("total").Params[1]
	assert.True(t, p.Vararg)
	assert.Equal(t, ir.Owned, p.Own)
	assert.True(t, ir.SeqOf(ir.Int).Equal(p.Type))

	ret := body(m, m.Func("relay"))[0]
	call := m.Expr(ret.Value)
	assert.Equal(t, ir.CallLocal, call.Callee.Kind)
	assert.Equal(t, ir.ExprStarred, m.Expr(call.Args[1]).Kind)
}

func TestGeneratorAndYieldFrom(t *testing.T) {
	m := mustLower(t, `
name: gen
body:
  - def:
      name: evens
      params: [{name: xs, type: "list[int]"}]
      body:
        - expr: {yield: {value: {int: 0}}}
        - expr: {yield: {value: {name: xs}, from: true}}
`)
	f := m.Func("evens")
	assert.True(t, f.Generator)
	assert.True(t, ir.SeqOf(ir.Unknown).Equal(f.Return))
	stmts := body(m, f)
	require.Len(t, stmts, 2)
	assert.Equal(t, ir.StmtYield, stmts[0].Kind)
	assert.Equal(t, ir.StmtFor, stmts[1].Kind)
	assert.Equal(t, ir.StmtYield, m.Stmt(stmts[1].Body[0]).Kind)
}

func TestMainGuardAndUserMain(t *testing.T) {
	m := mustLower(t, `
name: app
body:
  - expr: {str: "module docs"}
  - def:
      name: main
      body:
        - expr: {call: {func: {name: print}, args: [{str: hi}]}}
  - line: 9
    if:
      test: {compare: {left: {name: __name__}, ops: ["=="], comparators: [{str: __main__}]}}
      body:
        - expr: {call: {func: {name: main}}}
`)
	require.Len(t, m.Functions, 2)
	assert.NotNil(t, m.Func(mainName))

	entry := m.Func("main")
	require.NotNil(t, entry)
	assert.True(t, entry.Main)
	call := m.Expr(body(m, entry)[0].Value)
	assert.Equal(t, ir.CallLocal, call.Callee.Kind)
	assert.Equal(t, mainName, call.Callee.Symbol)
}

func TestLibraryResolution(t *testing.T) {
	m := mustLower(t, `
name: lib
body:
  - import: {names: [{name: math}]}
  - import_from: {module: math, names: [{name: pi}]}
  - import_from: {module: typing, names: [{name: Optional}]}
  - def:
      name: area
      params: [{name: r, type: float}]
      returns: float
      body:
        - return:
            value:
              binop:
                op: "*"
                left: {name: pi}
                right: {call: {func: {attr: {value: {name: math}, attr: sqrt}}, args: [{name: r}]}}
`)
	assert.NotContains(t, m.Imports, "Optional")
	ret := m.Expr(body(m, m.Func("area"))[0].Value)
	pi := m.Expr(ret.X)
	assert.Equal(t, ir.ExprConst, pi.Kind)
	assert.Equal(t, ir.Callee{Kind: ir.CallLibrary, Library: "math", Symbol: "pi"}, pi.Callee)
	sqrt := m.Expr(ret.Y)
	assert.Equal(t, ir.CallLibrary, sqrt.Callee.Kind)
	assert.Equal(t, "math", sqrt.Callee.Library)
}

const missSrc = `
name: miss
body:
  - import: {names: [{name: os.path}]}
  - def:
      name: check
      params: [{name: p, type: str}]
      body:
        - line: 5
          return: {value: {call: {func: {attr: {value: {attr: {value: {name: os}, attr: path}}, attr: exists}}, args: [{name: p}]}}}
`

func TestCatalogMissWarnPassesThrough(t *testing.T) {
	m, warnings, err := lowerYAML(t, missSrc, config.Default().Policy)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, diag.KindCatalogMiss, warnings[0].Kind)
	assert.Equal(t, diag.SeverityWarning, warnings[0].Severity)
	assert.Equal(t, "os.path.exists", warnings[0].Construct)
	assert.Equal(t, 5, warnings[0].Pos.Line)

	call := m.Expr(body(m, m.Func("check"))[0].Value)
	assert.Equal(t, ir.CallOpaque, call.Callee.Kind)
	assert.Equal(t, ir.Dyn, call.Type)
}

func TestCatalogMissErrorPolicy(t *testing.T) {
	pol := config.Default().Policy
	pol.CatalogMiss = config.MissError
	_, _, err := lowerYAML(t, missSrc, pol)
	require.Error(t, err)
	assert.Equal(t, diag.KindCatalogMiss, diag.KindOf(err))
}

func TestChainedComparison(t *testing.T) {
	m := mustLower(t, `
name: cmp
body:
  - def:
      name: within
      params: [{name: lo, type: int}, {name: x, type: int}, {name: hi, type: int}]
      returns: bool
      body:
        - return: {value: {compare: {left: {name: lo}, ops: ["<=", "<"], comparators: [{name: x}, {name: hi}]}}}
`)
	e := m.Expr(body(m, m.Func("within"))[0].Value)
	assert.Equal(t, ir.ExprBoolOp, e.Kind)
	assert.Equal(t, ir.OpAnd, e.Op)
	require.Len(t, e.Args, 2)
	assert.Equal(t, ir.OpLtE, m.Expr(e.Args[0]).Op)
	assert.Equal(t, ir.OpLt, m.Expr(e.Args[1]).Op)
}

func TestUnsupportedConstructs(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"class", `
name: u
body:
  - class: {name: Point, body: [{pass: true}]}
`, diag.CodeUnsupportedStmt},
		{"nested def", `
name: u
body:
  - def:
      name: outer
      body:
        - def: {name: inner, body: [{pass: true}]}
`, diag.CodeUnsupportedStmt},
		{"attribute store", `
name: u
body:
  - def:
      name: f
      params: [{name: o}]
      body:
        - assign: {target: {attr: {value: {name: o}, attr: x}}, value: {int: 1}}
`, diag.CodeUnsupportedForm},
		{"slice step", `
name: u
body:
  - def:
      name: f
      params: [{name: xs, type: "list[int]"}]
      body:
        - return: {value: {subscript: {value: {name: xs}, slice: {step: {int: 2}}}}}
`, diag.CodeUnsupportedForm},
		{"user exception handler", `
name: u
body:
  - def:
      name: f
      body:
        - try:
            body: [{pass: true}]
            handlers: [{types: [MyError], body: [{pass: true}]}]
`, diag.CodeUnsupportedForm},
		{"bare raise outside handler", `
name: u
body:
  - def:
      name: f
      body:
        - raise: {}
`, diag.CodeUnsupportedForm},
		{"computed chain middle", `
name: u
body:
  - def:
      name: f
      params: [{name: a}, {name: b}]
      body:
        - return: {value: {compare: {left: {name: a}, ops: ["<", "<"], comparators: [{call: {func: {name: g}}}, {name: b}]}}}
`, diag.CodeUnsupportedForm},
		{"for else", `
name: u
body:
  - def:
      name: f
      params: [{name: xs}]
      body:
        - for:
            target: {name: x}
            iter: {name: xs}
            body: [{pass: true}]
            else: [{pass: true}]
`, diag.CodeUnsupportedForm},
		{"await", `
name: u
body:
  - def:
      name: f
      params: [{name: x}]
      body:
        - return: {value: {await: {name: x}}}
`, diag.CodeUnsupportedExpr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := lowerYAML(t, tt.src, config.Default().Policy)
			require.Error(t, err)
			assert.True(t, diag.IsUnsupported(err), "got %v", err)
			var de *diag.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.code, de.Diagnostic.Code)
			assert.Equal(t, "u", de.Diagnostic.Unit)
		})
	}
}

func TestUnknownAnnotation(t *testing.T) {
	_, _, err := lowerYAML(t, `
name: ann
body:
  - def:
      name: f
      params: [{name: p, type: Widget}]
      body: [{pass: true}]
`, config.Default().Policy)
	require.Error(t, err)
	assert.True(t, diag.IsInference(err))
}

func TestIdentifiersAreNormalized(t *testing.T) {
	m := mustLower(t, `
name: norm
body:
  - def:
      name: "ﬁnd"
      params: [{name: "ｘ", type: int}]
      returns: int
      body:
        - return: {value: {name: "x"}}
`)
	f := m.Func("find")
	require.NotNil(t, f)
	assert.Equal(t, "x", f.Params[0].Name)
}

func TestResolveType(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	tests := []struct {
		src  string
		want *ir.Type
	}{
		{"int", ir.Int},
		{"None", ir.Unit},
		{"list[str]", ir.SeqOf(ir.Str)},
		{"typing.Dict[str, list[int]]", ir.MapOf(ir.Str, ir.SeqOf(ir.Int))},
		{"Optional[float]", ir.OptionalOf(ir.Float)},
		{"int | None", ir.OptionalOf(ir.Int)},
		{"int | str", ir.Dyn},
		{"tuple[int, bool]", ir.TupleOf(ir.Int, ir.Bool)},
		{"frozenset[int]", ir.SetOf(ir.Int)},
		{"Iterator[str]", ir.SeqOf(ir.Str)},
		{"deque", ir.OpaqueOf("deque")},
		{"KeyError", ir.Exception},
		{"list", ir.SeqOf(ir.Unknown)},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ResolveType(srctree.MustParseTypeRef(tt.src), cat)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err = ResolveType(srctree.MustParseTypeRef("dict[str]"), cat)
	assert.Error(t, err)
	_, err = ResolveType(srctree.MustParseTypeRef("Frob[int]"), cat)
	assert.Error(t, err)
}

func TestCamel(t *testing.T) {
	assert.Equal(t, "NegOne", camel("neg-one"))
	assert.Equal(t, "AddItem", camel("add_item"))
	assert.Equal(t, "Cmd", camel("cmd"))
}

func TestDelInsideTryKeepsSubscriptTarget(t *testing.T) {
	m := mustLower(t, `
name: deletes
body:
  - def:
      name: discard
      params:
        - {name: m, type: "dict[str, int]"}
        - {name: k, type: str}
      body:
        - try:
            body:
              - del: {targets: [{subscript: {value: {name: m}, index: {name: k}}}]}
            handlers:
              - types: [LookupError]
                body:
                  - pass: true
`)
	try := body(m, m.Func("discard"))[0]
	require.Equal(t, ir.StmtTry, try.Kind)
	require.Len(t, try.Handlers, 1)
	assert.Equal(t, []string{"LookupError"}, try.Handlers[0].Kinds)

	del := m.Stmt(try.Body[0])
	require.Equal(t, ir.StmtDel, del.Kind)
	require.Len(t, del.Targets, 1)
	target := m.Expr(del.Targets[0])
	assert.Equal(t, ir.ExprSubscript, target.Kind)
	assert.Equal(t, "m", m.Expr(target.X).Name)
	assert.Equal(t, "k", m.Expr(target.Y).Name)
	assert.False(t, target.Fallible, "fallibility is decided after types are known")
}
