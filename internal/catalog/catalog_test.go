package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.cue"), []byte(src), 0644))
	return dir
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	sqrt, ok := c.Lookup("math", "sqrt")
	require.True(t, ok)
	assert.Equal(t, NamedStaticMethod, sqrt.Shape)
	assert.Equal(t, "f64", sqrt.Path)
	assert.Equal(t, "sqrt", sqrt.Method)
	assert.Equal(t, "float", sqrt.Returns.String())
	assert.False(t, sqrt.SideEffecting)
	require.Len(t, sqrt.ArgTypes, 1)
	assert.Equal(t, "float", sqrt.ArgTypes[0].String())

	remove, ok := c.Lookup("os", "remove")
	require.True(t, ok)
	assert.Equal(t, FallibleCall, remove.Shape)
	assert.Equal(t, "OSError", remove.Raises)
	assert.True(t, remove.SideEffecting)
	assert.Equal(t, "None", remove.Returns.String())

	deque, ok := c.Lookup("collections", "deque")
	require.True(t, ok)
	assert.Equal(t, StaticConstructor, deque.Shape)
	assert.Empty(t, deque.Args)

	_, ok = c.Lookup("math", "nope")
	assert.False(t, ok)
	assert.True(t, c.KnowsLibrary("math"))
	assert.True(t, c.KnowsLibrary("sys"), "constant-only library")
	assert.False(t, c.KnowsLibrary("numpy"))

	pi, ok := c.LookupConst("math", "pi")
	require.True(t, ok)
	assert.Equal(t, "std::f64::consts::PI", pi.Path)

	target, ok := c.TargetType("Pattern")
	require.True(t, ok)
	assert.Equal(t, "regex::Regex", target)
	assert.Len(t, c.Fingerprint(), 64)
}

func TestEntriesSorted(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	entries := c.Entries()
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Key().String(), entries[i].Key().String())
	}
}

func TestRequiredCrates(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	compile, _ := c.Lookup("re", "compile")
	sqrt, _ := c.Lookup("math", "sqrt")
	od, _ := c.Lookup("collections", "OrderedDict")

	crates, err := c.RequiredCrates([]*Entry{compile, sqrt, od, compile})
	require.NoError(t, err)
	require.Len(t, crates, 2)
	assert.Equal(t, "indexmap", crates[0].Name)
	assert.Equal(t, "regex 1.11.1", crates[1].String())
}

func TestArgShapeAt(t *testing.T) {
	e := &Entry{Args: []ArgShape{ArgCopy, ArgBorrow}}
	assert.Equal(t, ArgCopy, e.ArgShapeAt(0))
	assert.Equal(t, ArgBorrow, e.ArgShapeAt(1))
	assert.Equal(t, ArgBorrow, e.ArgShapeAt(5))
	assert.Equal(t, ArgBorrow, (&Entry{}).ArgShapeAt(0))
}

func TestArgTypeAt(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	hypot, ok := c.Lookup("math", "hypot")
	require.True(t, ok)
	for i := 0; i < 3; i++ {
		ref, ok := hypot.ArgTypeAt(i)
		require.True(t, ok)
		assert.Equal(t, "float", ref.String())
	}

	compile, ok := c.Lookup("re", "compile")
	require.True(t, ok)
	_, ok = compile.ArgTypeAt(0)
	assert.False(t, ok, "no declared argument types")
}

func TestLoadRejectsMalformedArgType(t *testing.T) {
	dir := writeCUE(t, `package catalog

libraries: statistics: mean: {
	path:      "py_mean"
	shape:     "bare_call"
	args: ["borrow"]
	arg_types: ["list[float"]
	returns:   "float"
}
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libraries.statistics.mean.arg_types")
}

func TestLoadUserCatalogAddsEntries(t *testing.T) {
	dir := writeCUE(t, `package catalog

libraries: shutil: rmtree: {
	path:           "std::fs::remove_dir_all"
	shape:          "fallible_call"
	args: ["borrow"]
	raises:         "OSError"
	side_effecting: true
}
`)
	c, err := Load(dir)
	require.NoError(t, err)

	e, ok := c.Lookup("shutil", "rmtree")
	require.True(t, ok)
	assert.Equal(t, FallibleCall, e.Shape)
	_, ok = c.Lookup("math", "sqrt")
	assert.True(t, ok, "defaults remain")

	def, err := Default()
	require.NoError(t, err)
	assert.NotEqual(t, def.Fingerprint(), c.Fingerprint())
}

func TestLoadRejectsUnsatisfiedRequirement(t *testing.T) {
	dir := writeCUE(t, `package catalog

libraries: re: fullmatch: {
	path:     "regex::Regex::is_match"
	shape:    "bare_call"
	crate:    "regex"
	requires: "^2.0"
}
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not satisfy ^2.0")
}

func TestLoadRejectsUnknownShape(t *testing.T) {
	dir := writeCUE(t, `package catalog

libraries: foo: bar: {path: "foo::bar", shape: "method_call"}
`)
	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsFallibleWithoutRaises(t *testing.T) {
	dir := writeCUE(t, `package catalog

libraries: foo: bar: {path: "foo::bar", shape: "fallible_call"}
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallible_call requires raises")
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	var cerr *Error
	assert.ErrorAs(t, err, &cerr)
}

func TestParseShapes(t *testing.T) {
	for shape, name := range shapeNames {
		got, err := ParseCallShape(name)
		require.NoError(t, err)
		assert.Equal(t, shape, got)
	}
	_, err := ParseCallShape("bare")
	assert.Error(t, err)

	for shape, name := range argNames {
		got, err := ParseArgShape(name)
		require.NoError(t, err)
		assert.Equal(t, shape, got)
	}
}
