package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTreesSortsAndNamesUnits(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "z/good.yaml", goodTree)
	writeTree(t, dir, "a/bad.yml", badTree)
	writeTree(t, dir, "notes.txt", "ignored")

	res, errs := LoadTrees([]string{dir}, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Equal(t, 2, res.FileCount)
	require.Len(t, res.Trees, 2)
	assert.Equal(t, "bad", res.Trees[0].Name)
	assert.Equal(t, "good", res.Trees[1].Name)
	assert.Equal(t, filepath.Join(dir, "z", "good.yaml"), res.Trees[1].Path)
}

func TestLoadTreesAcceptsFiles(t *testing.T) {
	path := writeTree(t, t.TempDir(), "good.yaml", goodTree)
	res, errs := LoadTrees([]string{path}, LoadModeFailFast)
	require.Empty(t, errs)
	require.Len(t, res.Trees, 1)
}

func TestLoadTreesErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		code string
	}{
		{"missing path", func(*testing.T) string { return "/nonexistent/trees" }, ErrCodeNotFound},
		{"empty directory", func(t *testing.T) string { return t.TempDir() }, ErrCodeNoFiles},
		{"undecodable file", func(t *testing.T) string {
			return writeTree(t, t.TempDir(), "broken.yaml", "body: [{pass: true, break: true}]")
		}, ErrCodeDecodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := LoadTrees([]string{tt.path(t)}, LoadModeFailFast)
			require.NotEmpty(t, errs)
			var loadErr *LoadError
			require.True(t, errors.As(errs[0], &loadErr))
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}
}

func TestLoadTreesCollectAll(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "a.yaml", "body: [{pass: true, break: true}]")
	writeTree(t, dir, "b.yaml", "body: [{pass: true, continue: true}]")
	writeTree(t, dir, "good.yaml", goodTree)

	res, errs := LoadTrees([]string{dir}, LoadModeCollectAll)
	assert.Len(t, errs, 2)
	require.Len(t, res.Trees, 1)

	_, errs = LoadTrees([]string{dir}, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestIsTreeFile(t *testing.T) {
	assert.True(t, IsTreeFile("a.yaml"))
	assert.True(t, IsTreeFile("a.yml"))
	assert.True(t, IsTreeFile("a.json"))
	assert.False(t, IsTreeFile("a.py"))
	assert.False(t, IsTreeFile("yaml"))
}
