package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/testutil"
)

func TestDeadCodeElimination(t *testing.T) {
	m := testutil.Analyzed(t, `
name: dead
body:
  - def:
      name: work
      params: [{name: xs, type: "list[int]"}, {name: s, type: str}]
      body:
        - expr: {call: {func: {name: len}, args: [{name: xs}]}}
        - assign: {target: {name: unused}, value: {binop: {op: "+", left: {int: 1}, right: {int: 2}}}}
        - assign: {target: {name: parsed}, value: {call: {func: {name: int}, args: [{name: s}]}}}
        - expr: {call: {func: {attr: {value: {name: xs}, attr: append}}, args: [{int: 1}]}}
        - expr: {call: {func: {name: print}, args: [{name: s}]}}
        - return: {value: {name: xs}}
        - expr: {call: {func: {name: print}, args: [{str: unreachable}]}}
`)
	st := Run(m, testutil.Catalog(t), Options{})
	assert.Equal(t, 3, st.Removed)
	assert.Equal(t, 1, st.Bindings)

	f := m.Func("work")
	require.Len(t, f.Body, 4)
	kinds := make([]ir.StmtKind, len(f.Body))
	for i, id := range f.Body {
		kinds[i] = m.Stmt(id).Kind
	}
	assert.Equal(t, []ir.StmtKind{ir.StmtAssign, ir.StmtExpr, ir.StmtExpr, ir.StmtReturn}, kinds)
	assert.Nil(t, f.Binding("unused"))
	assert.NotNil(t, f.Binding("parsed"), "a store that can raise stays")
}

func TestDeadCodeKeepsSideEffectingLibraryCalls(t *testing.T) {
	m := testutil.Analyzed(t, `
name: lib
body:
  - import: {names: [{name: math}, {name: random}]}
  - def:
      name: roll
      params: [{name: x, type: float}]
      body:
        - expr: {call: {func: {attr: {value: {name: math}, attr: sqrt}}, args: [{name: x}]}}
        - expr: {call: {func: {attr: {value: {name: random}, attr: random}}}}
        - return: {value: {name: x}}
`)
	st := Run(m, testutil.Catalog(t), Options{})
	assert.Equal(t, 1, st.Removed)

	f := m.Func("roll")
	require.Len(t, f.Body, 2)
	call := m.Expr(m.Stmt(f.Body[0]).Value)
	assert.Equal(t, "random", call.Callee.Symbol)
}

func TestDeadStoresCascade(t *testing.T) {
	m := testutil.Analyzed(t, `
name: cascade
body:
  - def:
      name: f
      params: [{name: n, type: int}]
      body:
        - assign: {target: {name: a}, value: {binop: {op: "*", left: {name: n}, right: {int: 2}}}}
        - assign: {target: {name: b}, value: {binop: {op: "+", left: {name: a}, right: {int: 1}}}}
        - return: {value: {name: n}}
`)
	st := Run(m, testutil.Catalog(t), Options{})
	assert.Equal(t, 2, st.Removed)
	assert.Equal(t, 2, st.Bindings)
	assert.Len(t, m.Func("f").Body, 1)
}

func TestCSEHoistsRepeatedCall(t *testing.T) {
	src := `
name: cse
body:
  - def:
      name: area
      params: [{name: xs, type: "list[int]"}]
      body:
        - return: {value: {binop: {op: "*", left: {call: {func: {name: len}, args: [{name: xs}]}}, right: {call: {func: {name: len}, args: [{name: xs}]}}}}}
`
	m := testutil.Analyzed(t, src)
	st := Run(m, testutil.Catalog(t), Options{CSE: true})
	assert.Equal(t, 1, st.Hoisted)

	f := m.Func("area")
	require.Len(t, f.Body, 2)
	let := m.Stmt(f.Body[0])
	assert.Equal(t, ir.StmtAssign, let.Kind)
	assert.True(t, let.Declares)
	temp := m.Expr(let.Target).Name
	assert.Equal(t, "_cse1", temp)
	assert.Equal(t, ir.ExprCall, m.Expr(let.Value).Kind)
	require.NotNil(t, f.Binding(temp))
	assert.Equal(t, ir.Int, f.Binding(temp).Type)

	prod := m.Expr(m.Stmt(f.Body[1]).Value)
	for _, side := range []ir.ExprID{prod.X, prod.Y} {
		e := m.Expr(side)
		assert.Equal(t, ir.ExprVar, e.Kind)
		assert.Equal(t, temp, e.Name)
		assert.Equal(t, ir.UseCopy, e.Use)
	}

	m = testutil.Analyzed(t, src)
	st = Run(m, testutil.Catalog(t), Options{})
	assert.Zero(t, st.Hoisted)
	assert.Len(t, m.Func("area").Body, 1)
}

func TestCSEConvertsAtPointOfUse(t *testing.T) {
	m := testutil.Analyzed(t, `
name: conv
body:
  - def:
      name: scale
      params: [{name: x, type: float}, {name: n, type: int}]
      returns: float
      body:
        - return: {value: {binop: {op: "*", left: {name: x}, right: {name: n}}}}
  - def:
      name: use
      params: [{name: xs, type: "list[int]"}]
      body:
        - return: {value: {call: {func: {name: scale}, args: [{call: {func: {name: len}, args: [{name: xs}]}}, {call: {func: {name: len}, args: [{name: xs}]}}]}}}
`)
	st := Run(m, testutil.Catalog(t), Options{CSE: true})
	require.Equal(t, 1, st.Hoisted)

	f := m.Func("use")
	call := m.Expr(m.Stmt(f.Body[1]).Value)
	first := m.Expr(call.Args[0])
	assert.Equal(t, ir.ExprCast, first.Kind)
	assert.Equal(t, ir.Float, first.Type)
	assert.Equal(t, ir.ExprVar, m.Expr(first.X).Kind)
	assert.Equal(t, ir.Int, m.Expr(first.X).Type)

	second := m.Expr(call.Args[1])
	assert.Equal(t, ir.ExprVar, second.Kind)
	assert.Equal(t, ir.Int, second.Type)
}

func TestCSESkipsWritingStatements(t *testing.T) {
	m := testutil.Analyzed(t, `
name: writes
body:
  - def:
      name: drain
      params: [{name: xs, type: "list[int]"}]
      body:
        - return:
            value:
              binop:
                op: "+"
                left: {binop: {op: "+", left: {call: {func: {name: len}, args: [{name: xs}]}}, right: {call: {func: {attr: {value: {name: xs}, attr: pop}}}}}}
                right: {call: {func: {name: len}, args: [{name: xs}]}}
`)
	st := Run(m, testutil.Catalog(t), Options{CSE: true})
	assert.Zero(t, st.Hoisted, "pop changes xs between the two reads")
}

func TestCSESkipsLocalCallsThatBorrowMutably(t *testing.T) {
	m := testutil.Analyzed(t, `
name: grows
body:
  - def:
      name: grow
      params: [{name: xs, type: "list[int]"}]
      returns: int
      body:
        - expr: {call: {func: {attr: {value: {name: xs}, attr: append}}, args: [{int: 1}]}}
        - return: {value: {int: 0}}
  - def:
      name: measure
      params: [{name: xs, type: "list[int]"}]
      returns: int
      body:
        - return:
            value:
              binop:
                op: "+"
                left: {binop: {op: "+", left: {call: {func: {name: len}, args: [{name: xs}]}}, right: {call: {func: {name: grow}, args: [{name: xs}]}}}}
                right: {call: {func: {name: len}, args: [{name: xs}]}}
`)
	st := Run(m, testutil.Catalog(t), Options{CSE: true})
	assert.Zero(t, st.Hoisted, "grow appends to xs between the two reads")
	assert.Equal(t, ir.BorrowedMut, m.Func("grow").Params[0].Own)
}

func TestCSENeedsAnUnconditionalUse(t *testing.T) {
	m := testutil.Analyzed(t, `
name: cond
body:
  - def:
      name: check
      params: [{name: ok, type: bool}, {name: xs, type: "list[int]"}]
      body:
        - return:
            value:
              boolop:
                op: and
                values:
                  - {name: ok}
                  - {compare: {left: {call: {func: {name: len}, args: [{name: xs}]}}, ops: [">"], comparators: [{int: 0}]}}
                  - {compare: {left: {call: {func: {name: len}, args: [{name: xs}]}}, ops: ["<"], comparators: [{int: 9}]}}
`)
	st := Run(m, testutil.Catalog(t), Options{CSE: true})
	assert.Zero(t, st.Hoisted)
}

const calledLambda = `
name: calls
body:
  - def:
      name: apply
      params: [{name: g, type: int}]
      returns: int
      body:
        - assign: {target: {name: h}, value: {lambda: {params: [y], body: {binop: {op: "+", left: {name: y}, right: {int: 1}}}}}}
        - return: {value: {call: {func: {name: h}, args: [{name: g}]}}}
`

func TestDeadCodeKeepsCalledLambda(t *testing.T) {
	m := testutil.Analyzed(t, calledLambda)
	st := Run(m, testutil.Catalog(t), Options{})
	assert.Zero(t, st.Removed)
	assert.Zero(t, st.Bindings)

	f := m.Func("apply")
	require.Len(t, f.Body, 2)
	assert.NotNil(t, f.Binding("h"))
	assert.Equal(t, ir.StmtAssign, m.Stmt(f.Body[0]).Kind)
}
