package intrinsic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/ir"
)

func TestBuiltinTypes(t *testing.T) {
	tests := []struct {
		name string
		args []*ir.Type
		want *ir.Type
	}{
		{"len", []*ir.Type{ir.Str}, ir.Int},
		{"range", []*ir.Type{ir.Int, ir.Int}, ir.SeqOf(ir.Int)},
		{"enumerate", []*ir.Type{ir.SeqOf(ir.Str)}, ir.SeqOf(ir.TupleOf(ir.Int, ir.Str))},
		{"zip", []*ir.Type{ir.SeqOf(ir.Int), ir.MapOf(ir.Str, ir.Int)}, ir.SeqOf(ir.TupleOf(ir.Int, ir.Str))},
		{"sum", []*ir.Type{ir.SeqOf(ir.Float)}, ir.Float},
		{"max", []*ir.Type{ir.Int, ir.Float}, ir.Float},
		{"max", []*ir.Type{ir.SeqOf(ir.Int)}, ir.Int},
		{"int", []*ir.Type{ir.Str}, ir.Int},
		{"sorted", []*ir.Type{ir.SetOf(ir.Str)}, ir.SeqOf(ir.Str)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := Builtin(tt.name)
			require.True(t, ok)
			require.NoError(t, spec.CheckArity(len(tt.args)))
			got, err := spec.Type(nil, tt.args)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestBuiltinTypeErrors(t *testing.T) {
	spec, _ := Builtin("len")
	_, err := spec.Type(nil, []*ir.Type{ir.Int})
	assert.Error(t, err)

	spec, _ = Builtin("sum")
	_, err = spec.Type(nil, []*ir.Type{ir.SeqOf(ir.Str)})
	assert.Error(t, err)

	spec, _ = Builtin("zip")
	assert.Error(t, spec.CheckArity(3))
}

func TestRaisesDependsOnArgumentType(t *testing.T) {
	spec, _ := Builtin("int")
	assert.Equal(t, "ValueError", spec.RaisesFor(nil, []*ir.Type{ir.Str}))
	assert.Equal(t, "", spec.RaisesFor(nil, []*ir.Type{ir.Float}))

	spec, _ = Builtin("len")
	assert.Equal(t, "", spec.RaisesFor(nil, []*ir.Type{ir.Str}))
}

func TestEffects(t *testing.T) {
	p, _ := Builtin("print")
	assert.False(t, p.Pure())
	l, _ := Builtin("len")
	assert.True(t, l.Pure())

	app, ok := Method(ir.SeqOf(ir.Int), "append")
	require.True(t, ok)
	assert.True(t, app.Mutates)
	assert.Equal(t, Move, app.ModeAt(0))

	get, ok := Method(ir.MapOf(ir.Str, ir.Int), "get")
	require.True(t, ok)
	assert.True(t, get.Pure())

	_, ok = Method(ir.Int, "append")
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	l, _ := Builtin("len")
	assert.Equal(t, "(xs.len() as i64)", l.Render(Emit{Args: []string{"xs"}, Types: []*ir.Type{ir.SeqOf(ir.Int)}}))
	assert.Equal(t, "(s.chars().count() as i64)", l.Render(Emit{Args: []string{"s"}, Types: []*ir.Type{ir.Str}}))

	p, _ := Builtin("print")
	got := p.Render(Emit{Args: []string{"name", "xs"}, Types: []*ir.Type{ir.Str, ir.SeqOf(ir.Int)}})
	assert.Equal(t, `println!("{} {:?}", name, xs)`, got)

	r, _ := Builtin("range")
	assert.Equal(t, "(0..n)", r.RenderIter(Emit{Args: []string{"n"}}))
	assert.Equal(t, "(a..b).collect::<Vec<i64>>()", r.Render(Emit{Args: []string{"a", "b"}}))

	get, _ := Method(ir.MapOf(ir.Str, ir.Int), "get")
	assert.Equal(t, "m.get(&k).cloned().unwrap_or(0)", get.Render(Emit{Recv: "m", Args: []string{"k", "0"}, Refs: []string{"&k", "&0"}}))

	discard, _ := Method(ir.SetOf(ir.Str), "discard")
	assert.Equal(t, `seen.remove("a")`, discard.Render(Emit{Recv: "seen", Args: []string{`"a"`}, Refs: []string{`"a"`}}))

	sort, _ := Method(ir.SeqOf(ir.Float), "sort")
	assert.Equal(t, "v.sort_by(|a, b| a.partial_cmp(b).unwrap())",
		sort.Render(Emit{Recv: "v", RecvType: ir.SeqOf(ir.Float)}))
}

func TestFormatSpec(t *testing.T) {
	assert.Equal(t, "{}", FormatSpec(ir.Int, false))
	assert.Equal(t, "{:?}", FormatSpec(ir.SeqOf(ir.Int), false))
	assert.Equal(t, "{}", FormatSpec(ir.Dyn, false))
	assert.Equal(t, "{:?}", FormatSpec(ir.Dyn, true))
}

func TestExceptionHierarchy(t *testing.T) {
	assert.True(t, IsException("KeyError"))
	assert.False(t, IsException("Whatever"))
	assert.True(t, Subsumes("LookupError", "KeyError"))
	assert.True(t, Subsumes("Exception", "FileNotFoundError"))
	assert.False(t, Subsumes("KeyError", "LookupError"))
	assert.False(t, Subsumes("OSError", "ValueError"))

	kinds := ExceptionKinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, [2]string{"Exception", ""}, kinds[0])
	assert.Len(t, kinds, len(exceptionParents))
}
