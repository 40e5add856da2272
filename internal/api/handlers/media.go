// media.go — административные операции с медиафайлами техников:
// синхронизация, обзор папок, удаление, загрузка, статистика.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/techdir/internal/service"
)

// multipartMemory — часть multipart-формы, удерживаемая в памяти.
const multipartMemory = 8 << 20

// MediaHandler — обработчик операций с медиафайлами.
type MediaHandler struct {
	reconciler  *service.Reconciler
	uploads     *service.UploadService
	stats       *service.StatsService
	maxBodySize int64
	logger      *slog.Logger
}

// NewMediaHandler создаёт обработчик медиа. maxFileSize — лимит файла
// загрузки; тело запроса ограничивается им с запасом на поля формы.
func NewMediaHandler(
	reconciler *service.Reconciler,
	uploads *service.UploadService,
	stats *service.StatsService,
	maxFileSize int64,
	logger *slog.Logger,
) *MediaHandler {
	return &MediaHandler{
		reconciler:  reconciler,
		uploads:     uploads,
		stats:       stats,
		maxBodySize: maxFileSize + 1<<20,
		logger:      logger.With(slog.String("component", "handler_media")),
	}
}

// Routes регистрирует маршруты на административном роутере.
func (h *MediaHandler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/system/media-stats", h.MediaStats)
}

// TechnicianRoutes регистрирует маршруты на роутере /technicians.
func (h *MediaHandler) TechnicianRoutes(r chi.Router) {
	r.Post("/sync-media", h.SyncMedia)
	r.Get("/sync-media", h.ListFolders)
	r.Post("/delete-media", h.DeleteMedia)
}

// SyncMedia обрабатывает POST /technicians/sync-media: полный проход сверки.
func (h *MediaHandler) SyncMedia(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.SyncAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, result,
		fmt.Sprintf("Медиа синхронизированы: обновлено техников %d", result.UpdatedTechnicians))
}

// ListFolders обрабатывает GET /technicians/sync-media: обзор папок.
func (h *MediaHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.reconciler.Folders(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, folders, "")
}

// deleteMediaRequest — тело POST /technicians/delete-media.
type deleteMediaRequest struct {
	TechnicianID string `json:"technicianId" validate:"required"`
	MediaPath    string `json:"mediaPath" validate:"required"`
}

// DeleteMedia обрабатывает POST /technicians/delete-media.
func (h *MediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	var req deleteMediaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.reconciler.DeleteMedia(r.Context(), req.TechnicianID, req.MediaPath); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, nil, "Медиафайл удалён")
}

// Upload обрабатывает POST /upload (multipart: file, nickname, sync).
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, h.logger, fmt.Errorf("%w: максимум %d байт", service.ErrFileTooLarge, mbe.Limit))
			return
		}
		writeError(w, h.logger, newValidationError("ожидается multipart/form-data"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, newValidationError("отсутствует файл (поле file)"))
		return
	}
	defer file.Close()

	nickname := strings.TrimSpace(r.FormValue("nickname"))
	if nickname == "" {
		writeError(w, h.logger, newValidationError("отсутствует nickname"))
		return
	}

	result, err := h.uploads.Upload(r.Context(), service.UploadParams{
		Nickname: nickname,
		FileName: header.Filename,
		Reader:   file,
		Sync:     r.FormValue("sync") == "true",
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, result, "Файл загружен")
}

// MediaStats обрабатывает GET /system/media-stats.
func (h *MediaHandler) MediaStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Collect(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, stats, "")
}
