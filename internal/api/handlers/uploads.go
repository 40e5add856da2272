// uploads.go — раздача файлов дерева загрузок (GET/HEAD <prefix>/*).
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/techdir/internal/api/errors"
	"github.com/bigkaa/techdir/internal/service"
)

// UploadsHandler — раздача медиафайлов.
type UploadsHandler struct {
	prefix   string
	download *service.DownloadService
	logger   *slog.Logger
}

// NewUploadsHandler создаёт обработчик раздачи файлов под prefix.
func NewUploadsHandler(prefix string, download *service.DownloadService, logger *slog.Logger) *UploadsHandler {
	return &UploadsHandler{
		prefix:   "/" + strings.Trim(prefix, "/"),
		download: download,
		logger:   logger.With(slog.String("component", "handler_uploads")),
	}
}

// Routes регистрирует GET и HEAD для всех путей под prefix.
func (h *UploadsHandler) Routes(r chi.Router) {
	r.Get(h.prefix+"/*", h.Serve)
	r.Head(h.prefix+"/*", h.Serve)
}

// Serve отдаёт файл. Пути вне дерева сущностей неотличимы от отсутствующих.
func (h *UploadsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	err := h.download.Serve(w, r, r.URL.Path)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidPath), errors.Is(err, service.ErrFileNotFound):
		apierrors.NotFound(w, "Файл не найден")
	default:
		writeError(w, h.logger, err)
	}
}
