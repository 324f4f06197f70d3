package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTrigger(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire")
	}
}

func TestLogWatcherFiresOnLogWrite(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "-work-api")
	require.NoError(t, os.MkdirAll(project, 0o755))

	triggered := make(chan struct{}, 8)
	w, err := NewLogWatcher(root, func() { triggered <- struct{}{} })
	require.NoError(t, err)
	defer w.Stop()
	go w.Start()

	require.NoError(t, os.WriteFile(
		filepath.Join(project, "11111111-1111-1111-1111-111111111111.jsonl"),
		[]byte("{}\n"), 0o644))
	waitTrigger(t, triggered)
}

func TestLogWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "-work-api")
	require.NoError(t, os.MkdirAll(project, 0o755))

	triggered := make(chan struct{}, 8)
	w, err := NewLogWatcher(root, func() { triggered <- struct{}{} })
	require.NoError(t, err)
	defer w.Stop()
	go w.Start()

	require.NoError(t, os.WriteFile(filepath.Join(project, "notes.txt"), []byte("x"), 0o644))

	select {
	case <-triggered:
		t.Fatal("non-log write must not trigger a refresh")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestLogWatcherPicksUpNewProjectDirs(t *testing.T) {
	root := t.TempDir()

	triggered := make(chan struct{}, 8)
	w, err := NewLogWatcher(root, func() { triggered <- struct{}{} })
	require.NoError(t, err)
	defer w.Stop()
	go w.Start()

	project := filepath.Join(root, "-work-new")
	require.NoError(t, os.MkdirAll(project, 0o755))
	// Give the watcher a beat to add the new directory
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(
		filepath.Join(project, "22222222-2222-2222-2222-222222222222.jsonl"),
		[]byte("{}\n"), 0o644))
	waitTrigger(t, triggered)
}

func TestLogWatcherMissingRoot(t *testing.T) {
	w, err := NewLogWatcher(filepath.Join(t.TempDir(), "absent"), func() {})
	require.NoError(t, err)
	assert.NotPanics(t, w.Stop)
}
