// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/techdir/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// serviceName — имя сервиса в ответах health и info.
const serviceName = "techdir"

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dataDir — директория файлов коллекций (должна быть доступна на запись)
	dataDir string
	// uploadsDir — корень дерева загрузок (должен существовать)
	uploadsDir string
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(dataDir, uploadsDir string) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		dataDir:    dataDir,
		uploadsDir: uploadsDir,
	}
}

// Routes регистрирует /health/live и /health/ready.
func (h *HealthHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: директория данных доступна на запись, дерево загрузок существует.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	dataCheck := h.checkDataDir()
	if dataCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	// Без дерева загрузок каталог работает, но без медиа
	uploadsCheck := h.checkUploadsDir()
	if uploadsCheck["status"] != "ok" && overallStatus != statusFail {
		overallStatus = "degraded"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks": map[string]any{
			"data_dir":    dataCheck,
			"uploads_dir": uploadsCheck,
		},
	})
}

// checkDataDir проверяет доступность директории данных на запись.
func (h *HealthHandler) checkDataDir() map[string]any {
	testFile := filepath.Join(h.dataDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория данных недоступна для записи",
		}
	}
	_ = os.Remove(testFile)
	return map[string]any{"status": "ok"}
}

// checkUploadsDir проверяет, что корень дерева загрузок — существующая директория.
func (h *HealthHandler) checkUploadsDir() map[string]any {
	info, err := os.Stat(h.uploadsDir)
	if err != nil || !info.IsDir() {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория загрузок отсутствует",
		}
	}
	return map[string]any{"status": "ok"}
}
