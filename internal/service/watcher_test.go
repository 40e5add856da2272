package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_SyncsOnFileEvents(t *testing.T) {
	e := newTestEnv(t)
	alice := e.technician(t, "alice", true)
	bob := e.technician(t, "bob", true)
	require.NoError(t, os.MkdirAll(filepath.Join(e.root, "alice"), 0o750))

	w := NewWatcher(e.tree, e.rec, 30*time.Millisecond, testLogger())
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)

	// Файл в уже наблюдаемой папке
	e.writeFile(t, "alice", "photo.jpg", []byte("jpeg"))
	assert.Eventually(t, func() bool {
		return len(e.media(t, alice.ID())) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// Новая папка ставится на наблюдение и синхронизируется
	e.writeFile(t, "bob", "clip.mp4", []byte("mp4"))
	assert.Eventually(t, func() bool {
		return len(e.media(t, bob.ID())) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

// Неподдерживаемые файлы не запускают синхронизацию.
func TestWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	e := newTestEnv(t)
	alice := e.technician(t, "alice", true)
	require.NoError(t, os.MkdirAll(filepath.Join(e.root, "alice"), 0o750))

	w := NewWatcher(e.tree, e.rec, 10*time.Millisecond, testLogger())
	require.NoError(t, w.Start(context.Background()))

	e.writeFile(t, "alice", "notes.txt", []byte("txt"))
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	rec, err := e.store.FindByID("technicians", alice.ID())
	require.NoError(t, err)
	assert.Equal(t, alice.String("updatedAt"), rec.String("updatedAt"))
}

// Старт создаёт отсутствующий корень дерева.
func TestWatcher_CreatesRoot(t *testing.T) {
	e := newTestEnv(t)

	w := NewWatcher(e.tree, e.rec, 10*time.Millisecond, testLogger())
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()

	assert.True(t, fileExists(e.root))
}
