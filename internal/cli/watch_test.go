package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ferrule/internal/catalog"
	"github.com/roach88/ferrule/internal/config"
	"github.com/roach88/ferrule/internal/pipeline"
)

func newTestWatcher(t *testing.T) (*watcher, *bytes.Buffer) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(logs, nil))
	return &watcher{
		tr:       pipeline.New(cat, config.Default(), pipeline.WithLogger(log)),
		log:      log,
		outDir:   t.TempDir(),
		debounce: 10 * time.Millisecond,
	}, logs
}

func TestWatcherInitialPass(t *testing.T) {
	w, logs := newTestWatcher(t)
	dir := t.TempDir()
	writeTree(t, dir, "good.yaml", goodTree)
	writeTree(t, dir, "nested/bad.yaml", badTree)

	require.NoError(t, w.initial(context.Background(), []string{dir}))

	_, err := os.Stat(filepath.Join(w.outDir, "good.rs"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(w.outDir, "bad.rs"))
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, logs.String(), "translated")
	assert.Contains(t, logs.String(), "diagnostic")
}

func TestWatcherRemovesStaleOutput(t *testing.T) {
	w, _ := newTestWatcher(t)
	path := writeTree(t, t.TempDir(), "good.yaml", goodTree)
	out := filepath.Join(w.outDir, "good.rs")

	require.NoError(t, w.handle(context.Background(), path))
	_, err := os.Stat(out)
	require.NoError(t, err)

	// Same unit name, now untranslatable.
	writeTree(t, filepath.Dir(path), "good.yaml", `
name: good
body:
  - def:
      name: fetch
      async: true
      body:
        - pass: true
`)
	require.NoError(t, w.handle(context.Background(), path))
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestWatcherSkipsUndecodableFile(t *testing.T) {
	w, logs := newTestWatcher(t)
	path := writeTree(t, t.TempDir(), "broken.yaml", "body: [{pass: true, break: true}]")

	require.NoError(t, w.handle(context.Background(), path))
	assert.Contains(t, logs.String(), "tree not decoded")
}

func TestWatcherTranslatesChanges(t *testing.T) {
	w, _ := newTestWatcher(t)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.watch(ctx, []string{dir}) }()

	out := filepath.Join(w.outDir, "good.rs")
	require.Eventually(t, func() bool {
		// Rewrite until the watcher has registered the directory.
		_ = os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(goodTree), 0o644)
		_, err := os.Stat(out)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDue(t *testing.T) {
	now := time.Now()
	pending := map[string]time.Time{
		"b.yaml": now.Add(-time.Second),
		"a.yaml": now.Add(-time.Second),
		"c.yaml": now,
	}
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, due(pending, now, 100*time.Millisecond))
}
