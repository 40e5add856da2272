package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/techdir/internal/config"
	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/service"
	"github.com/bigkaa/techdir/internal/storage/cache"
	"github.com/bigkaa/techdir/internal/storage/codec"
	"github.com/bigkaa/techdir/internal/storage/docstore"
	"github.com/bigkaa/techdir/internal/storage/journal"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
	"github.com/bigkaa/techdir/internal/storage/thumbnail"
)

// apiEnv — полный набор обработчиков поверх временной директории.
type apiEnv struct {
	cfg    *config.Config
	store  *docstore.Store
	tree   *mediafs.Tree
	rec    *service.Reconciler
	router http.Handler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newAPIEnv(t *testing.T, adminMW ...func(http.Handler) http.Handler) *apiEnv {
	t.Helper()
	base := t.TempDir()
	cfg := &config.Config{
		ServiceID:       "techdir-test",
		DataDir:         filepath.Join(base, "data"),
		UploadsDir:      filepath.Join(base, "public", "uploads"),
		PublicPrefix:    "/uploads",
		EntityFolder:    "technicians",
		MaxFileSize:     1024,
		MaxImageSize:    512,
		ThumbnailNaming: config.ThumbnailNamingUnique,
	}
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o750))
	logger := testLogger()

	c, err := cache.New(8)
	require.NoError(t, err)
	store := docstore.New(codec.New(cfg.DataDir), c, logger)
	tree := mediafs.New(cfg.EntityRoot(), cfg.EntityPublicPrefix())
	uploadsTree := mediafs.New(cfg.UploadsDir, cfg.PublicPrefix)
	thumbs := thumbnail.New(cfg.ThumbnailNaming, logger)
	jr, err := journal.New(filepath.Join(cfg.DataDir, "journal"), logger)
	require.NoError(t, err)
	rec := service.NewReconciler(store, tree, thumbs, jr, 0, logger)
	gc := service.NewGCService(store, tree, rec, 0, logger)

	api := New(Deps{
		Config:     cfg,
		Store:      store,
		Reconciler: rec,
		Uploads:    service.NewUploadService(cfg, tree, thumbs, rec, logger),
		Stats:      service.NewStatsService(store, tree),
		Download:   service.NewDownloadService(uploadsTree, logger),
		Views:      service.NewViewsService(store, logger),
		QRCodes:    service.NewQRCodeService(store, uploadsTree, logger),
		Pruner:     gc,
		DiskUsage: func(string) (DiskUsage, error) {
			return DiskUsage{TotalBytes: 100, UsedBytes: 40, AvailableBytes: 60}, nil
		},
		Logger:           logger,
		AdminMiddlewares: adminMW,
	})
	r := chi.NewRouter()
	api.Routes(r)

	return &apiEnv{cfg: cfg, store: store, tree: tree, rec: rec, router: r}
}

// do выполняет запрос с JSON-телом (body == nil — без тела).
func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// technician создаёт запись техника напрямую в хранилище.
func (e *apiEnv) technician(t *testing.T, nickname string, fields map[string]any) model.Record {
	t.Helper()
	f := map[string]any{
		"nickname": nickname,
		"age":      25,
		"cities":   []any{"shanghai"},
		"isActive": true,
		"media":    []any{},
	}
	for k, v := range fields {
		f[k] = v
	}
	rec, err := e.store.Create(model.CollectionTechnicians, f)
	require.NoError(t, err)
	return rec
}

// writeMedia создаёт файл в папке техника.
func (e *apiEnv) writeMedia(t *testing.T, folder, rel string, data []byte) string {
	t.Helper()
	p := filepath.Join(e.cfg.EntityRoot(), folder, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, data, 0o640))
	return p
}

// decode разбирает JSON-ответ.
func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// errorCode возвращает error.code из тела ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	code, _ := errObj["code"].(string)
	return code
}
