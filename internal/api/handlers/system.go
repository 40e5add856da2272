// system.go — обработчик GET /api/v1/info (информация о сервисе).
// Публичный endpoint (без аутентификации) для мониторинга.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/techdir/internal/config"
	"github.com/bigkaa/techdir/internal/storage/docstore"
)

// DiskUsage — ёмкость файловой системы в байтах.
type DiskUsage struct {
	TotalBytes     int64 `json:"totalBytes"`
	UsedBytes      int64 `json:"usedBytes"`
	AvailableBytes int64 `json:"availableBytes"`
}

// DiskUsageFunc возвращает ёмкость файловой системы, содержащей path.
type DiskUsageFunc func(path string) (DiskUsage, error)

// SyncStatus — интерфейс для проверки, идёт ли синхронизация медиа.
type SyncStatus interface {
	IsInProgress() bool
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg       *config.Config
	store     *docstore.Store
	sync      SyncStatus
	diskUsage DiskUsageFunc
	logger    *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
// diskUsage может быть nil — тогда сведения о диске не выводятся.
func NewSystemHandler(
	cfg *config.Config,
	store *docstore.Store,
	sync SyncStatus,
	diskUsage DiskUsageFunc,
	logger *slog.Logger,
) *SystemHandler {
	return &SystemHandler{
		cfg:       cfg,
		store:     store,
		sync:      sync,
		diskUsage: diskUsage,
		logger:    logger.With(slog.String("component", "handler_system")),
	}
}

// Routes регистрирует /info на роутере API.
func (h *SystemHandler) Routes(r chi.Router) {
	r.Get("/info", h.GetInfo)
}

// infoResponse — ответ GET /api/v1/info.
type infoResponse struct {
	Service        string               `json:"service"`
	ServiceID      string               `json:"serviceId"`
	Version        string               `json:"version"`
	Collections    map[string]int       `json:"collections"`
	SyncInProgress bool                 `json:"syncInProgress"`
	Disk           map[string]DiskUsage `json:"disk,omitempty"`
}

// GetInfo обрабатывает GET /api/v1/info: версия, число записей
// в коллекциях на диске и ёмкость дисков данных и загрузок.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	keys, err := h.store.Collections()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	counts := make(map[string]int, len(keys))
	for _, key := range keys {
		n, err := h.store.Count(key, nil)
		if err != nil {
			// Повреждённая коллекция не должна ломать информационный endpoint
			h.logger.Warn("Коллекция недоступна",
				slog.String("collection", key),
				slog.String("error", err.Error()),
			)
			n = -1
		}
		counts[key] = n
	}

	resp := infoResponse{
		Service:        serviceName,
		ServiceID:      h.cfg.ServiceID,
		Version:        config.Version,
		Collections:    counts,
		SyncInProgress: h.sync.IsInProgress(),
	}

	if h.diskUsage != nil {
		resp.Disk = make(map[string]DiskUsage, 2)
		for name, dir := range map[string]string{"data": h.cfg.DataDir, "uploads": h.cfg.UploadsDir} {
			usage, err := h.diskUsage(dir)
			if err != nil {
				h.logger.Debug("Ёмкость диска недоступна",
					slog.String("disk", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			resp.Disk[name] = usage
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
