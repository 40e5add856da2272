package service

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/cache"
	"github.com/bigkaa/techdir/internal/storage/codec"
	"github.com/bigkaa/techdir/internal/storage/docstore"
	"github.com/bigkaa/techdir/internal/storage/journal"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
	"github.com/bigkaa/techdir/internal/storage/thumbnail"
)

const testPrefix = "/uploads/technicians"

// testEnv — хранилище, дерево загрузок и сервис сверки во временной директории.
type testEnv struct {
	dataDir string
	root    string
	store   *docstore.Store
	tree    *mediafs.Tree
	thumbs  *thumbnail.Synthesizer
	journal *journal.Journal
	rec     *Reconciler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	e := &testEnv{
		dataDir: filepath.Join(base, "data"),
		root:    filepath.Join(base, "public", "uploads", "technicians"),
	}

	c, err := cache.New(8)
	require.NoError(t, err)
	e.store = docstore.New(codec.New(e.dataDir), c, testLogger())
	e.tree = mediafs.New(e.root, testPrefix)
	e.thumbs = thumbnail.New(thumbnail.NamingUnique, testLogger())
	e.journal, err = journal.New(e.dataDir, testLogger())
	require.NoError(t, err)
	e.rec = NewReconciler(e.store, e.tree, e.thumbs, e.journal, 0, testLogger())
	return e
}

// technician создаёт запись техника с пустым media.
func (e *testEnv) technician(t *testing.T, nickname string, active bool) model.Record {
	t.Helper()
	rec, err := e.store.Create(model.CollectionTechnicians, map[string]any{
		"nickname": nickname,
		"age":      30,
		"cities":   []any{"shanghai"},
		"isActive": active,
		"media":    []any{},
	})
	require.NoError(t, err)
	return rec
}

// writeFile создаёт файл в папке сущности (rel может указывать в thumbnails/).
func (e *testEnv) writeFile(t *testing.T, folder, rel string, data []byte) string {
	t.Helper()
	p := filepath.Join(e.root, folder, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, data, 0o640))
	return p
}

// media возвращает media записи техника.
func (e *testEnv) media(t *testing.T, id string) []model.MediaItem {
	t.Helper()
	rec, err := e.store.FindByID(model.CollectionTechnicians, id)
	require.NoError(t, err)
	items, err := model.MediaOf(rec)
	require.NoError(t, err)
	return items
}

// setMedia записывает media напрямую, минуя сверку.
func (e *testEnv) setMedia(t *testing.T, id string, items []model.MediaItem) {
	t.Helper()
	_, err := e.store.Modify(model.CollectionTechnicians, id, func(rec model.Record) (bool, error) {
		rec.SetMedia(items)
		return true, nil
	})
	require.NoError(t, err)
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
