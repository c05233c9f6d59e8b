package srctree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTree = `
name: sample
body:
  - line: 1
    def:
      name: total
      params:
        - name: xs
          type: list[int]
      returns: int
      body:
        - line: 2
          assign:
            target: {name: acc}
            value: {int: 0}
        - line: 3
          for:
            target: {name: x}
            iter: {name: xs}
            body:
              - aug_assign:
                  target: {name: acc}
                  op: "+"
                  value: {name: x}
        - return:
            value: {name: acc}
`

func TestDecodeSample(t *testing.T) {
	m, err := Decode([]byte(sampleTree))
	require.NoError(t, err)

	assert.Equal(t, "sample", m.Name)
	require.Len(t, m.Body, 1)
	def := m.Body[0].Def
	require.NotNil(t, def)
	assert.Equal(t, "total", def.Name)
	require.Len(t, def.Params, 1)
	assert.Equal(t, "list", def.Params[0].Type.Name)
	assert.Equal(t, "int", def.Params[0].Type.Args[0].Name)
	assert.Equal(t, "int", def.Returns.Name)
	assert.Equal(t, 2, def.Body[0].Line)
	assert.Equal(t, "for", def.Body[1].Kind())
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte(`
name: bad
body:
  - retrun: {}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrun")
}

func TestDecodeRejectsAmbiguousNode(t *testing.T) {
	_, err := Decode([]byte(`
name: bad
body:
  - line: 4
    expr: {int: 1, str: "x"}
`))
	require.Error(t, err)
	var shape *ShapeError
	require.ErrorAs(t, err, &shape)
	assert.Equal(t, "expression", shape.Node)
	assert.ElementsMatch(t, []string{"int", "str"}, shape.Kinds)
}

func TestDecodeRejectsEmptyStatement(t *testing.T) {
	_, err := Decode([]byte(`
name: bad
body:
  - line: 7
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 7")
	assert.Contains(t, err.Error(), "sets no kind")
}

func TestParseTypeRef(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"int", "int"},
		{"list[int]", "list[int]"},
		{"dict[str, list[int]]", "dict[str, list[int]]"},
		{"int | None", "Optional[int]"},
		{"Optional[str]", "Optional[str]"},
		{"int | str", "Union[int, str]"},
		{"typing.List[str]", "typing.List[str]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := ParseTypeRef(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.String())
		})
	}
}

func TestParseTypeRefErrors(t *testing.T) {
	for _, in := range []string{"", "list[int", "dict[str,]", "int]"} {
		_, err := ParseTypeRef(in)
		assert.Error(t, err, in)
	}
}

func TestTypeRefStructuredYAML(t *testing.T) {
	m, err := Decode([]byte(`
name: s
body:
  - assign:
      target: {name: m}
      type: {name: dict, args: [{name: str}, {name: int}]}
      value: {dict: {}}
`))
	require.NoError(t, err)
	assert.Equal(t, "dict[str, int]", m.Body[0].Assign.Type.String())
}

func TestLoadFileDefaultsName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("body: [{pass: true}]\n"), 0644))

	m, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "walker", m.Name)
	assert.Equal(t, path, m.Path)
}

func TestUnitHashDeterministic(t *testing.T) {
	a, err := Decode([]byte(sampleTree))
	require.NoError(t, err)
	b, err := Decode([]byte(sampleTree))
	require.NoError(t, err)
	b.Path = "/elsewhere/sample.yaml"

	h1, err := UnitHash(a, "catalog-1")
	require.NoError(t, err)
	h2, err := UnitHash(b, "catalog-1")
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "path must not affect identity")
	assert.Len(t, h1, 64)

	h3, err := UnitHash(a, "catalog-2")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "salt must affect identity")
}

func TestMarshalCanonicalOrderingAndNormalization(t *testing.T) {
	// "e" + combining acute (NFD) must hash like the precomposed form (NFC).
	data, err := MarshalCanonical(map[string]any{"b": 1, "a": "e\u0301", "c": 1.5})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"\u00e9\",\"b\":1,\"c\":1.5}", string(data))
}

func TestChildrenEvaluationOrder(t *testing.T) {
	one, two := int64(1), int64(2)
	e := &Expr{BinOp: &BinOp{Op: "+", Left: Expr{Int: &one}, Right: Expr{Int: &two}}}
	kids := Children(e)
	require.Len(t, kids, 2)
	assert.Equal(t, int64(1), *kids[0].Int)
	assert.Equal(t, int64(2), *kids[1].Int)
}
