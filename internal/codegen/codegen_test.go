package codegen

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/diag"
	"github.com/roach88/ferrule/internal/ir"
	"github.com/roach88/ferrule/internal/testutil"
)

func generate(t *testing.T, src string) string {
	t.Helper()
	m := testutil.Analyzed(t, src)
	out, err := Generate(m, testutil.Catalog(t), config.Default().Policy)
	require.NoError(t, err)
	return out.Source
}

func TestEmptyMappingUsesDeclaredType(t *testing.T) {
	src := generate(t, `
name: empty
body:
  - def:
      name: fresh
      returns: "dict[str, int]"
      body:
        - return: {value: {dict: {}}}
`)
	testutil.Golden(t, "empty_mapping", []byte(src))
}

func TestEmptyMappingWithoutAnnotation(t *testing.T) {
	src := generate(t, `
name: empty
body:
  - def:
      name: fresh
      body:
        - return: {value: {dict: {}}}
`)
	testutil.Golden(t, "empty_mapping_unannotated", []byte(src))
}

func TestMixedReturnsBecomeDynamic(t *testing.T) {
	src := generate(t, `
name: mixed
body:
  - def:
      name: lookup
      params: [{name: flag, type: bool}]
      body:
        - if:
            test: {name: flag}
            body:
              - return: {value: {dict: {entries: [{key: {str: a}, value: {int: 1}}]}}}
        - return: {value: {str: missing}}
`)
	assert.Contains(t, src, "-> Value")
	assert.Contains(t, src, `return Value::from("missing".to_string());`)
	assert.Contains(t, src, "Value::from(HashMap::from([")
	assert.Contains(t, src, "pub enum Value")
}

func TestWalrusLoopBreaksOnFalsyValue(t *testing.T) {
	src := generate(t, `
name: chunks
body:
  - def:
      name: read
      params: [{name: n, type: int}]
      returns: str
      body:
        - return: {value: {binop: {op: "*", left: {str: x}, right: {name: n}}}}
  - def:
      name: consume
      params: [{name: n, type: int}]
      body:
        - while:
            test: {walrus: {target: chunk, value: {call: {func: {name: read}, args: [{name: n}]}}}}
            body:
              - expr: {call: {func: {name: print}, args: [{name: chunk}]}}
`)
	assert.Contains(t, src, "loop {")
	assert.Contains(t, src, "chunk = read(n);")
	assert.Contains(t, src, "if chunk.is_empty() {")
	assert.Contains(t, src, "break;")
	assert.Contains(t, src, `"x".repeat(n as usize)`)
}

func TestDispatchRendersExhaustiveMatch(t *testing.T) {
	src := generate(t, `
name: cli
body:
  - def:
      name: handler
      params: [{name: x, type: int}]
      body:
        - expr: {call: {func: {name: print}, args: [{name: x}]}}
  - def:
      name: run
      params: [{name: cmd, type: Command}]
      body:
        - if:
            test: {compare: {left: {attr: {value: {name: cmd}, attr: kind}}, ops: ["=="], comparators: [{str: add}]}}
            body:
              - expr: {call: {func: {name: handler}, args: [{attr: {value: {name: cmd}, attr: x}}]}}
            else:
              - if:
                  test: {compare: {left: {attr: {value: {name: cmd}, attr: kind}}, ops: ["=="], comparators: [{str: stop}]}}
                  body:
                    - expr: {call: {func: {name: print}, args: [{str: stopped}]}}
`)
	assert.Contains(t, src, "Command::Add { x } => {")
	assert.Contains(t, src, "handler(*x);")
	assert.Contains(t, src, "Command::Stop { .. } => {")
	assert.Contains(t, src, "Add { x: i64 },")
	assert.NotContains(t, src, "_ =>", "every variant has an arm")
}

func TestMapReadThenReplace(t *testing.T) {
	src := generate(t, `
name: maps
body:
  - def:
      name: swap
      params:
        - {name: m, type: "dict[str, int]"}
        - {name: key, type: str}
        - {name: new_v, type: int}
      returns: int
      body:
        - assign: {target: {name: v}, value: {subscript: {value: {name: m}, index: {name: key}}}}
        - assign: {target: {subscript: {value: {name: m}, index: {name: key}}}, value: {name: new_v}}
        - return: {value: {name: v}}
`)
	assert.Contains(t, src, "m.insert(key, new_v);")
	assert.Contains(t, src, "key: String")
	assert.Contains(t, src, "&mut HashMap<String, i64>")
}

func TestHandledExceptionBreaksOutOfGuardedBlock(t *testing.T) {
	src := generate(t, `
name: parse
body:
  - def:
      name: to_int
      params: [{name: s, type: str}]
      returns: int
      body:
        - try:
            body:
              - return: {value: {call: {func: {name: int}, args: [{name: s}]}}}
            handlers:
              - types: [ValueError]
                body:
                  - return: {value: {int: 0}}
`)
	assert.Contains(t, src, "pub fn to_int(s: &str) -> i64 {")
	assert.Contains(t, src, "let __e1: Option<Exception> = 'try1: {")
	assert.Contains(t, src, "break 'try1 Some(__e);")
	assert.Contains(t, src, `Some(__h1) if __h1.is("ValueError") => {`)
	assert.Contains(t, src, "unreachable!()")
	assert.Contains(t, src, "pub struct Exception")
}

func TestGenerateIsDeterministic(t *testing.T) {
	const src = `
name: stable
body:
  - def:
      name: tally
      params: [{name: words, type: "list[str]"}]
      returns: "dict[str, int]"
      body:
        - assign: {target: {name: counts}, value: {dict: {}}, type: "dict[str, int]"}
        - for:
            target: {name: w}
            iter: {name: words}
            body:
              - assign:
                  target: {subscript: {value: {name: counts}, index: {name: w}}}
                  value:
                    binop:
                      op: "+"
                      left: {call: {func: {attr: {value: {name: counts}, attr: get}}, args: [{name: w}, {int: 0}]}}
                      right: {int: 1}
        - return: {value: {name: counts}}
`
	first := generate(t, src)
	second := generate(t, src)
	assert.Equal(t, first, second)
}

func TestTruthinessRunsOnce(t *testing.T) {
	m := testutil.Analyzed(t, `
name: truth
body:
  - def:
      name: empty
      params: [{name: xs, type: "list[int]"}]
      returns: bool
      body:
        - if:
            test: {name: xs}
            body:
              - return: {value: {bool: false}}
        - return: {value: {bool: true}}
`)
	assert.Equal(t, 1, Truthiness(m))
	before := ir.Dump(m)
	assert.Equal(t, 0, Truthiness(m), "a second pass finds nothing left to convert")
	assert.Equal(t, before, ir.Dump(m))
}

func TestUnknownTypeIsInternal(t *testing.T) {
	m := testutil.Analyzed(t, `
name: holes
body:
  - def:
      name: one
      returns: int
      body:
        - return: {value: {int: 1}}
`)
	m.Func("one").Return = ir.Unknown
	_, err := Generate(m, testutil.Catalog(t), config.Default().Policy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "return of one")
}

func TestAtomic(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"x", true},
		{"x.len()", true},
		{"f(a, b)", true},
		{"vec![1, 2]", true},
		{"Vec::<i64>::new()", true},
		{"HashMap::<_, _>::new()", true},
		{`"a b"`, true},
		{"m[&k]", true},
		{"a + b", false},
		{"-x", false},
		{"&x", false},
		{"x as f64", false},
	}
	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			assert.Equal(t, tt.want, atomic(tt.s))
		})
	}
}

func TestNegate(t *testing.T) {
	assert.Equal(t, "x.is_empty()", negate("!x.is_empty()"))
	assert.Equal(t, "!flag", negate("flag"))
	assert.Equal(t, "!(a && b)", negate("a && b"))
	assert.Equal(t, "!(!a || b)", negate("!a || b"))
}

func TestFloatLit(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{2.5, "2.5"},
		{1e21, "1e+21"},
		{math.Inf(1), "f64::INFINITY"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, floatLit(tt.in))
		})
	}
}

func TestRustString(t *testing.T) {
	assert.Equal(t, `"plain"`, rustString("plain"))
	assert.Equal(t, `"a\"b"`, rustString(`a"b`))
	assert.Equal(t, `"line\n"`, rustString("line\n"))
	assert.Equal(t, `"back\\slash"`, rustString(`back\slash`))
}

func TestCallToUnboundValueIsInternal(t *testing.T) {
	m := testutil.Analyzed(t, `
name: calls
body:
  - def:
      name: apply
      params: [{name: g, type: int}]
      returns: int
      body:
        - assign: {target: {name: h}, value: {lambda: {params: [y], body: {binop: {op: "+", left: {name: y}, right: {int: 1}}}}}}
        - return: {value: {call: {func: {name: h}, args: [{name: g}]}}}
`)
	src, err := Generate(m, testutil.Catalog(t), config.Default().Policy)
	require.NoError(t, err)
	assert.Contains(t, src.Source, "h(g)")

	f := m.Func("apply")
	f.Body = f.Body[1:]
	delete(f.Bindings, "h")
	_, err = Generate(m, testutil.Catalog(t), config.Default().Policy)
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))
	assert.Contains(t, err.Error(), "not bound")
}

func TestEmptyContainersWithoutElementTypes(t *testing.T) {
	src := generate(t, `
name: empty
body:
  - def:
      name: fresh
      body:
        - return: {value: {dict: {}}}
  - def:
      name: bare
      returns: dict
      body:
        - return: {value: {dict: {}}}
  - def:
      name: nothing
      returns: list
      body:
        - return: {value: {list: {}}}
`)
	assert.Contains(t, src, "pub fn fresh() -> HashMap<String, Value> {\n    return HashMap::new();\n}")
	assert.Contains(t, src, "pub fn bare() -> HashMap<String, Value> {\n    return HashMap::new();\n}")
	assert.Contains(t, src, "pub fn nothing() -> Vec<Value> {\n    return Vec::new();\n}")
	assert.Contains(t, src, "pub enum Value")
	assert.NotContains(t, src, "let mut")
}

func TestHandledLookupRaisesInsteadOfPanicking(t *testing.T) {
	src := generate(t, `
name: lookups
body:
  - def:
      name: get_or
      params:
        - {name: m, type: "dict[str, int]"}
        - {name: k, type: str}
      returns: int
      body:
        - try:
            body:
              - return: {value: {subscript: {value: {name: m}, index: {name: k}}}}
            handlers:
              - types: [KeyError]
                body:
                  - return: {value: {int: -1}}
  - def:
      name: at_or
      params:
        - {name: xs, type: "list[int]"}
        - {name: i, type: int}
      returns: int
      body:
        - try:
            body:
              - return: {value: {subscript: {value: {name: xs}, index: {name: i}}}}
            handlers:
              - types: [LookupError]
                body:
                  - return: {value: {int: -1}}
`)
	assert.Contains(t, src, "pub fn get_or(")
	assert.Contains(t, src, `.ok_or_else(|| Exception::new("KeyError", "key not found"))`)
	assert.NotContains(t, src, "m[k]")
	assert.NotContains(t, src, "m[&k]")
	assert.Contains(t, src, "py_checked_index(i, xs.len())")
	assert.NotContains(t, src, "py_index(i, xs.len())")
	assert.Contains(t, src, "fn py_checked_index(i: i64, len: usize) -> Result<usize, Exception> {")
	assert.Contains(t, src, "break 'try1 Some(__e);")
	assert.Contains(t, src, `Some(__h1) if __h1.is("KeyError") => {`)
	assert.Contains(t, src, `.is("LookupError") => {`)
}

func TestHandledDivisionRaisesInsteadOfPanicking(t *testing.T) {
	src := generate(t, `
name: division
body:
  - def:
      name: safe_div
      params:
        - {name: a, type: int}
        - {name: b, type: int}
      returns: int
      body:
        - try:
            body:
              - return: {value: {binop: {op: "//", left: {name: a}, right: {name: b}}}}
            handlers:
              - types: [ZeroDivisionError]
                body:
                  - return: {value: {int: 0}}
  - def:
      name: ratio
      params:
        - {name: a, type: float}
        - {name: b, type: float}
      returns: float
      body:
        - try:
            body:
              - return: {value: {binop: {op: "/", left: {name: a}, right: {name: b}}}}
            handlers:
              - types: [ArithmeticError]
                body:
                  - return: {value: {float: 0.0}}
  - def:
      name: unguarded
      params:
        - {name: a, type: int}
        - {name: b, type: int}
      returns: int
      body:
        - return: {value: {binop: {op: "%", left: {name: a}, right: {name: b}}}}
`)
	assert.Contains(t, src, "pub fn safe_div(a: i64, b: i64) -> i64 {")
	assert.Contains(t, src, "match py_checked_floordiv(a, b) {")
	assert.Contains(t, src, "match py_checked_div(a, b) {")
	assert.Contains(t, src, `Err(Exception::new("ZeroDivisionError", "integer division or modulo by zero"))`)
	assert.Contains(t, src, "fn py_floordiv(a: i64, b: i64) -> i64 {", "the checked helper builds on the plain one")
	assert.Contains(t, src, "return py_mod(a, b);")
	assert.NotContains(t, src, "py_checked_mod")
}

func TestDelOfMissingKey(t *testing.T) {
	src := generate(t, `
name: deletes
body:
  - def:
      name: discard
      params:
        - {name: m, type: "dict[str, int]"}
        - {name: k, type: str}
      returns: bool
      body:
        - try:
            body:
              - del: {targets: [{subscript: {value: {name: m}, index: {name: k}}}]}
            handlers:
              - types: [KeyError]
                body:
                  - return: {value: {bool: false}}
        - return: {value: {bool: true}}
  - def:
      name: forget
      params:
        - {name: m, type: "dict[str, int]"}
        - {name: k, type: str}
      body:
        - del: {targets: [{subscript: {value: {name: m}, index: {name: k}}}]}
`)
	assert.Contains(t, src, `.ok_or_else(|| Exception::new("KeyError", "key not found"))`)
	assert.Contains(t, src, `.expect("key not found");`)
	assert.Equal(t, 2, strings.Count(src, "m.remove("))
	assert.Contains(t, src, "&mut HashMap<String, i64>")
}

func TestLibraryArgumentsConvertToDeclaredTypes(t *testing.T) {
	src := generate(t, `
name: geometry
body:
  - import: {names: [{name: math}, {name: uuid}]}
  - def:
      name: root
      params: [{name: n, type: int}]
      returns: float
      body:
        - return: {value: {call: {func: {attr: {value: {name: math}, attr: sqrt}}, args: [{name: n}]}}}
  - def:
      name: diagonal
      params:
        - {name: a, type: int}
        - {name: b, type: float}
      returns: float
      body:
        - return: {value: {call: {func: {attr: {value: {name: math}, attr: hypot}}, args: [{name: a}, {name: b}]}}}
  - def:
      name: two
      returns: float
      body:
        - return: {value: {call: {func: {attr: {value: {name: math}, attr: sqrt}}, args: [{int: 2}]}}}
  - def:
      name: fresh_id
      body:
        - return: {value: {call: {func: {attr: {value: {name: uuid}, attr: uuid4}}}}}
`)
	assert.Contains(t, src, "f64::sqrt((n as f64))")
	assert.Contains(t, src, "f64::hypot((a as f64), b)")
	assert.Contains(t, src, "f64::sqrt(2.0)")
	assert.Contains(t, src, "uuid::Uuid::new_v4()")
}

func TestUnknownCallShapeIsInternal(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	sqrt, ok := cat.Lookup("math", "sqrt")
	require.True(t, ok)
	sqrt.Shape = catalog.CallShape(99)

	m := testutil.Analyzed(t, `
name: shapes
body:
  - import: {names: [{name: math}]}
  - def:
      name: root
      params: [{name: x, type: float}]
      returns: float
      body:
        - return: {value: {call: {func: {attr: {value: {name: math}, attr: sqrt}}, args: [{name: x}]}}}
`)
	_, err = Generate(m, cat, config.Default().Policy)
	require.Error(t, err)
	assert.True(t, diag.IsInternal(err))
	assert.Contains(t, err.Error(), "CallShape(99)")
}

func TestBranchAssignmentsShareHoistedDeclaration(t *testing.T) {
	src := generate(t, `
name: branches
body:
  - def:
      name: pick
      params: [{name: flag, type: bool}]
      returns: int
      body:
        - if:
            test: {name: flag}
            body:
              - assign: {target: {name: y}, value: {int: 1}}
            else:
              - assign: {target: {name: y}, value: {int: 2}}
        - return: {value: {name: y}}
`)
	assert.Contains(t, src, "    let y: i64;\n    if flag {\n")
	assert.Contains(t, src, "        y = 1;\n")
	assert.Contains(t, src, "        y = 2;\n")
	assert.Contains(t, src, "    return y;\n")
	assert.NotContains(t, src, "let mut y")
	assert.NotContains(t, src, "let y = ")
}

func TestNegativeIndexNormalization(t *testing.T) {
	src := generate(t, `
name: indexing
body:
  - def:
      name: last
      params: [{name: xs, type: "list[int]"}]
      returns: int
      body:
        - return: {value: {subscript: {value: {name: xs}, index: {unary: {op: "-", operand: {int: 1}}}}}}
  - def:
      name: at
      params:
        - {name: xs, type: "list[int]"}
        - {name: i, type: int}
      returns: int
      body:
        - return: {value: {subscript: {value: {name: xs}, index: {name: i}}}}
`)
	assert.Contains(t, src, "xs[xs.len() - 1]")
	assert.Contains(t, src, "xs[py_index(i, xs.len())]")
	assert.Contains(t, src, "fn py_index(i: i64, len: usize) -> usize {")
	assert.NotContains(t, src, "py_checked_index", "no handler covers the lookup")
}

func TestMutabilityFollowsInsertions(t *testing.T) {
	grown := generate(t, `
name: grown
body:
  - def:
      name: build
      params: [{name: k, type: str}]
      returns: "dict[str, int]"
      body:
        - assign: {target: {name: d}, value: {dict: {}}}
        - assign: {target: {subscript: {value: {name: d}, index: {name: k}}}, value: {int: 1}}
        - return: {value: {name: d}}
`)
	assert.Contains(t, grown, "let mut d")
	assert.Contains(t, grown, "d.insert(")

	fixed := generate(t, `
name: fixed
body:
  - def:
      name: build
      returns: "dict[str, int]"
      body:
        - assign: {target: {name: d}, value: {dict: {entries: [{key: {str: a}, value: {int: 1}}]}}}
        - return: {value: {name: d}}
`)
	assert.Contains(t, fixed, "let d")
	assert.NotContains(t, fixed, "let mut")
}
