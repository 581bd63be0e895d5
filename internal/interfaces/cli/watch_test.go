package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Protonate/internal/testutil"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

func TestDirWatcher_Accepts(t *testing.T) {
	w := NewDirWatcher("/data", "_h", time.Millisecond, nil)
	assert.True(t, w.Accepts("/data/1abc.pdb"))
	assert.True(t, w.Accepts("/data/1ABC.PDB"))
	assert.True(t, w.Accepts("/data/pdb1abc.ent"))
	assert.False(t, w.Accepts("/data/1abc_h.pdb"))
	assert.False(t, w.Accepts("/data/.1abc.pdb"))
	assert.False(t, w.Accepts("/data/1abc.cif"))
}

func TestDirWatcher_ReportsSettledFiles(t *testing.T) {
	dir := t.TempDir()
	logger := testutil.NewMockLogger()
	w := NewDirWatcher(dir, "_h", 50*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(p string) { ready <- p }) }()

	require.Eventually(t, func() bool { return logger.HasMessage("info", "watching directory") },
		2*time.Second, 10*time.Millisecond)

	target := filepath.Join(dir, "1abc.pdb")
	require.NoError(t, os.WriteFile(target, []byte(testPDB), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1abc_h.pdb"), []byte(testPDB), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case got := <-ready:
		assert.Equal(t, target, got)
	case <-time.After(3 * time.Second):
		t.Fatal("settled file was not reported")
	}

	select {
	case got := <-ready:
		t.Fatalf("unexpected report %q", got)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestDirWatcher_MissingDirectory(t *testing.T) {
	w := NewDirWatcher(filepath.Join(t.TempDir(), "absent"), "_h", time.Millisecond, nil)
	err := w.Run(context.Background(), func(string) {})
	assert.True(t, errors.IsValidation(err))
}

func TestWatch_Validation(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.execute(t, "watch", filepath.Join(t.TempDir(), "absent"))
	assert.True(t, errors.IsValidation(err))

	_, _, err = h.execute(t, "watch", "--suffix", "", "--out-dir", t.TempDir(), t.TempDir())
	assert.True(t, errors.IsValidation(err))

	_, _, err = h.execute(t, "watch", "--debounce", "0s", t.TempDir())
	assert.True(t, errors.IsValidation(err))
}

//Personal.AI order the ending
