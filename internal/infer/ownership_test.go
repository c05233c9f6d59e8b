package infer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
)

func TestParameterModes(t *testing.T) {
	m := mustAnalyze(t, `
name: modes
body:
  - def:
      name: total
      params: [{name: xs, type: "list[int]"}]
      body:
        - return: {value: {call: {func: {name: sum}, args: [{name: xs}]}}}
  - def:
      name: keep
      params: [{name: xs, type: "list[int]"}]
      body:
        - return: {value: {name: xs}}
  - def:
      name: grow
      params: [{name: xs, type: "list[int]"}]
      body:
        - expr: {call: {func: {attr: {value: {name: xs}, attr: append}}, args: [{int: 1}]}}
  - def:
      name: grow_and_keep
      params: [{name: xs, type: "list[int]"}]
      body:
        - expr: {call: {func: {attr: {value: {name: xs}, attr: append}}, args: [{int: 1}]}}
        - return: {value: {name: xs}}
  - def:
      name: count
      params: [{name: n, type: int}]
      body:
        - aug_assign: {target: {name: n}, op: "+", value: {int: 1}}
        - return: {value: {name: n}}
`)
	assert.Equal(t, ir.Borrowed, m.Func("total").Params[0].Own)
	assert.Equal(t, ir.Owned, m.Func("keep").Params[0].Own)
	assert.Equal(t, ir.BorrowedMut, m.Func("grow").Params[0].Own)
	assert.Equal(t, ir.OwnedMut, m.Func("grow_and_keep").Params[0].Own)
	assert.Equal(t, ir.OwnedMut, m.Func("count").Params[0].Own)
}

func TestMoveThenCloneWhenReadAgain(t *testing.T) {
	m := mustAnalyze(t, `
name: moves
body:
  - def:
      name: pair
      body:
        - assign: {target: {name: a}, value: {list: {elts: [{str: x}]}}}
        - assign: {target: {name: b}, value: {name: a}}
        - assign: {target: {name: c}, value: {name: a}}
        - return: {value: {tuple: {elts: [{name: b}, {name: c}]}}}
`)
	f := m.Func("pair")
	first := m.Expr(m.Stmt(f.Body[1]).Value)
	second := m.Expr(m.Stmt(f.Body[2]).Value)
	assert.Equal(t, ir.UseClone, first.Use, "a is read again by the next statement")
	assert.Equal(t, ir.UseMove, second.Use)
}

func TestLoopKeepsBindingLive(t *testing.T) {
	m := mustAnalyze(t, `
name: loops
body:
  - def:
      name: repeat
      params: [{name: n, type: int}]
      body:
        - assign: {target: {name: word}, value: {str: hi}}
        - assign: {target: {name: out}, value: {list: {}}}
        - for:
            target: {name: i}
            iter: {call: {func: {name: range}, args: [{name: n}]}}
            body:
              - expr: {call: {func: {attr: {value: {name: out}, attr: append}}, args: [{name: word}]}}
        - return: {value: {name: out}}
`)
	f := m.Func("repeat")
	loop := m.Stmt(f.Body[2])
	call := m.Expr(m.Stmt(loop.Body[0]).Value)
	assert.Equal(t, ir.UseClone, m.Expr(call.Args[0]).Use, "the next iteration reads word again")
	assert.Equal(t, []ir.Use{ir.UseMove}, call.Pass)

	ret := m.Expr(m.Stmt(f.Body[3]).Value)
	assert.Equal(t, ir.UseMove, ret.Use)
}

func TestCallerFollowsCalleeModes(t *testing.T) {
	m := mustAnalyze(t, `
name: chain
body:
  - def:
      name: consume
      params: [{name: xs, type: "list[int]"}]
      body:
        - return: {value: {name: xs}}
  - def:
      name: peek
      params: [{name: xs, type: "list[int]"}]
      body:
        - return: {value: {call: {func: {name: len}, args: [{name: xs}]}}}
  - def:
      name: outer
      params: [{name: xs, type: "list[int]"}]
      body:
        - expr: {call: {func: {name: peek}, args: [{name: xs}]}}
        - return: {value: {call: {func: {name: consume}, args: [{name: xs}]}}}
`)
	outer := m.Func("outer")
	assert.Equal(t, ir.Owned, outer.Params[0].Own, "outer hands xs to a consuming callee last")

	peek := m.Expr(m.Stmt(outer.Body[0]).Value)
	assert.Equal(t, []ir.Use{ir.UseBorrow}, peek.Pass)
	assert.Equal(t, ir.UseBorrow, m.Expr(peek.Args[0]).Use)

	consume := m.Expr(m.Stmt(outer.Body[1]).Value)
	assert.Equal(t, []ir.Use{ir.UseMove}, consume.Pass)
	assert.Equal(t, ir.UseMove, m.Expr(consume.Args[0]).Use)
}

func TestComprehensionClonesOuterBindings(t *testing.T) {
	m := mustAnalyze(t, `
name: comps
body:
  - def:
      name: tag
      params: [{name: xs, type: "list[int]"}, {name: label, type: str}]
      body:
        - return:
            value:
              list_comp:
                elt: {tuple: {elts: [{name: label}, {name: x}]}}
                generators: [{target: {name: x}, iter: {name: xs}}]
`)
	f := m.Func("tag")
	assert.Equal(t, ir.Borrowed, f.Params[1].Own, "a clone inside a closure needs no ownership")
	comp := m.Expr(m.Stmt(f.Body[0]).Value)
	tuple := m.Expr(comp.Comp.Elt)
	assert.Equal(t, ir.UseClone, m.Expr(tuple.Args[0]).Use)
}

func TestVarargSpreadPolicy(t *testing.T) {
	src := `
name: spread
body:
  - def:
      name: total
      params: [{name: nums, vararg: true}]
      body:
        - return: {value: {call: {func: {name: sum}, args: [{name: nums}]}}}
  - def:
      name: go
      params: [{name: xs, type: "list[int]"}]
      body:
        - return: {value: {call: {func: {name: total}, args: [{starred: {name: xs}}]}}}
`
	m, _, err := analyze(t, src, config.Default().Policy)
	require.NoError(t, err)
	assert.True(t, m.Func("total").Params[0].Type.Equal(ir.SeqOf(ir.Int)))

	pol := config.Default().Policy
	pol.VarargSpread = config.SpreadReject
	_, _, err = analyze(t, src, pol)
	requireCode(t, err, diag.CodeInferOwnership)

	pol.VarargSpread = config.SpreadClone
	m, _, err = analyze(t, src, pol)
	require.NoError(t, err)
	call := m.Expr(m.Stmt(m.Func("go").Body[0]).Value)
	spread := m.Expr(call.Args[0])
	assert.Equal(t, ir.UseClone, m.Expr(spread.X).Use)
}
