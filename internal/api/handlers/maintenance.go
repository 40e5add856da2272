// maintenance.go — обработчики обслуживания: очистка миниатюр-сирот
// и сброс кэша коллекций.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/techdir/internal/service"
)

// ThumbnailPruner — интерфейс очистки миниатюр-сирот.
// Позволяет тестировать handler без полного GCService.
type ThumbnailPruner interface {
	RunOnce(ctx context.Context, dryRun bool) (*service.GCResult, error)
}

// CacheClearer — интерфейс сброса кэша коллекций.
type CacheClearer interface {
	ClearCache()
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	pruner ThumbnailPruner
	cache  CacheClearer
	logger *slog.Logger
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(pruner ThumbnailPruner, cache CacheClearer, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		pruner: pruner,
		cache:  cache,
		logger: logger.With(slog.String("component", "handler_maintenance")),
	}
}

// Routes регистрирует маршруты на административном роутере.
func (h *MaintenanceHandler) Routes(r chi.Router) {
	r.Post("/maintenance/prune-thumbnails", h.PruneThumbnails)
	r.Post("/maintenance/clear-cache", h.ClearCache)
}

// PruneThumbnails обрабатывает POST /maintenance/prune-thumbnails[?dryRun=true].
// Если очистка или синхронизация уже выполняется — ждёт её завершения.
func (h *MaintenanceHandler) PruneThumbnails(w http.ResponseWriter, r *http.Request) {
	var dryRun *bool
	if err := bindQuery(r.URL.Query(), "dryRun", &dryRun); err != nil {
		writeError(w, h.logger, err)
		return
	}
	result, err := h.pruner.RunOnce(r.Context(), dryRun != nil && *dryRun)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	msg := fmt.Sprintf("Удалено миниатюр: %d", result.RemovedCount)
	if result.DryRun {
		msg = fmt.Sprintf("Найдено миниатюр-сирот: %d", len(result.Orphans))
	}
	writeData(w, http.StatusOK, result, msg)
}

// ClearCache обрабатывает POST /maintenance/clear-cache.
// Нужен после ручной правки файлов коллекций.
func (h *MaintenanceHandler) ClearCache(w http.ResponseWriter, _ *http.Request) {
	h.cache.ClearCache()
	writeData(w, http.StatusOK, nil, "Кэш коллекций очищен")
}
