package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  *Type
		want string
	}{
		{Int, "int"},
		{SeqOf(Str), "list[str]"},
		{MapOf(Str, SeqOf(Int)), "dict[str, list[int]]"},
		{OptionalOf(Float), "Optional[float]"},
		{FallibleOf(Unit), "Result[None, Exception]"},
		{TupleOf(Int, Str), "tuple[int, str]"},
		{NoneType(), "Optional[?]"},
		{Dyn, "Any"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.String())
	}
}

func TestTypeKnownAndCopy(t *testing.T) {
	assert.True(t, MapOf(Str, Int).Known())
	assert.False(t, SeqOf(Unknown).Known())
	assert.False(t, NoneType().Known())

	assert.True(t, Int.IsCopy())
	assert.True(t, TupleOf(Int, Bool).IsCopy())
	assert.False(t, TupleOf(Int, Str).IsCopy())
	assert.True(t, OptionalOf(Int).IsCopy())
	assert.False(t, Str.IsCopy())
	assert.False(t, SeqOf(Int).IsCopy())
}

func TestFillHoles(t *testing.T) {
	tests := []struct {
		typ  *Type
		want string
	}{
		{MapOf(Unknown, Unknown), "dict[str, Any]"},
		{SeqOf(Unknown), "list[Any]"},
		{SetOf(Unknown), "set[str]"},
		{MapOf(Str, SeqOf(Unknown)), "dict[str, list[Any]]"},
		{TupleOf(Int, Unknown), "tuple[int, Any]"},
		{MapOf(Int, Bool), "dict[int, bool]"},
		{Unknown, "?"},
	}
	for _, tt := range tests {
		got := FillHoles(tt.typ)
		assert.Equal(t, tt.want, got.String())
	}
	known := MapOf(Str, Int)
	assert.Same(t, known, FillHoles(known))
}

func TestJoin(t *testing.T) {
	tests := []struct {
		name string
		a, b *Type
		want *Type
		ok   bool
	}{
		{"equal", Int, Int, Int, true},
		{"fill unknown", SeqOf(Unknown), SeqOf(Str), SeqOf(Str), true},
		{"none then value", NoneType(), Str, OptionalOf(Str), true},
		{"value then none", MapOf(Str, Int), NoneType(), OptionalOf(MapOf(Str, Int)), true},
		{"optional with inner", OptionalOf(Int), Int, OptionalOf(Int), true},
		{"int float strict", Int, Float, nil, false},
		{"map vs str", MapOf(Str, Int), Str, nil, false},
		{"dyn absorbs", Dyn, Int, Dyn, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Join(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}

	got, ok := JoinNumeric(Int, Float)
	require.True(t, ok)
	assert.Equal(t, Float, got)
}

func TestOps(t *testing.T) {
	op, ok := ParseCompareOp("not in")
	require.True(t, ok)
	assert.Equal(t, OpNotIn, op)
	assert.True(t, op.IsCompare())
	assert.Equal(t, "not in", op.String())

	op, ok = ParseBinaryOp("//")
	require.True(t, ok)
	assert.True(t, op.IsArith())

	_, ok = ParseBoolOp("xor")
	assert.False(t, ok)
}

func TestArenaAndWalk(t *testing.T) {
	m := NewModule("unit")
	a := m.NewExpr(Expr{Kind: ExprVar, Name: "a"})
	b := m.NewExpr(Expr{Kind: ExprVar, Name: "b"})
	sum := m.NewExpr(Expr{Kind: ExprBinary, Op: OpAdd, X: a, Y: b, Type: Int})
	call := m.NewExpr(Expr{Kind: ExprCall, Name: "f", Args: []ExprID{sum, a}})

	assert.Nil(t, m.Expr(NoExpr))
	assert.Equal(t, Unknown, m.TypeOf(a), "new nodes default to Unknown")
	assert.Equal(t, Int, m.TypeOf(sum))
	assert.Equal(t, []string{"a", "b", "a"}, m.VarsRead(call))

	ret := m.NewStmt(Stmt{Kind: StmtReturn, Value: call})
	inner := m.NewStmt(Stmt{Kind: StmtExpr, Value: b})
	iff := m.NewStmt(Stmt{Kind: StmtIf, Cond: a, Body: []StmtID{inner}, Else: []StmtID{ret}})

	var kinds []StmtKind
	m.WalkStmts([]StmtID{iff}, func(_ StmtID, s *Stmt) bool {
		kinds = append(kinds, s.Kind)
		return true
	})
	assert.Equal(t, []StmtKind{StmtIf, StmtExpr, StmtReturn}, kinds)
}

func TestDump(t *testing.T) {
	m := NewModule("unit")
	zero := m.NewExpr(Expr{Kind: ExprLit, Lit: Literal{Kind: LitInt}, Type: Int})
	target := m.NewExpr(Expr{Kind: ExprVar, Name: "acc", Type: Int})
	assign := m.NewStmt(Stmt{Kind: StmtAssign, Target: target, Value: zero, Declares: true})
	read := m.NewExpr(Expr{Kind: ExprVar, Name: "acc", Type: Int, Use: UseCopy})
	ret := m.NewStmt(Stmt{Kind: StmtReturn, Value: read})
	m.Functions = append(m.Functions, &Function{
		Name:   "zero",
		Return: Int,
		Body:   []StmtID{assign, ret},
		Bindings: map[string]*Binding{
			"acc": {Name: "acc", Type: Int, Own: Owned},
		},
	})

	want := `module unit
fn zero() -> int
  local acc: int owned
  let (var acc):int = (lit 0):int
  return (var acc copy):int
`
	assert.Equal(t, want, Dump(m))
}
