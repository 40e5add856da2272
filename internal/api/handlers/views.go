// views.go — просмотры карточек техников: учёт (публично) и отчёт (админ).
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/techdir/internal/service"
)

// ViewsHandler — обработчик просмотров.
type ViewsHandler struct {
	views  *service.ViewsService
	logger *slog.Logger
}

// NewViewsHandler создаёт обработчик просмотров.
func NewViewsHandler(views *service.ViewsService, logger *slog.Logger) *ViewsHandler {
	return &ViewsHandler{
		views:  views,
		logger: logger.With(slog.String("component", "handler_views")),
	}
}

// Routes регистрирует публичный маршрут учёта просмотра.
func (h *ViewsHandler) Routes(r chi.Router) {
	r.Post("/technician-views", h.Record)
}

// AdminRoutes регистрирует отчёт на административном роутере.
func (h *ViewsHandler) AdminRoutes(r chi.Router) {
	r.Get("/technician-views", h.Report)
}

type recordViewRequest struct {
	TechnicianID string `json:"technicianId" validate:"required"`
}

// Record обрабатывает POST /technician-views {technicianId}.
func (h *ViewsHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordViewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.views.Record(r.Context(), req.TechnicianID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, nil, "")
}

// Report обрабатывает GET /technician-views?period=day|week|month.
func (h *ViewsHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.views.Report(r.Context(), service.ParseViewPeriod(r.URL.Query().Get("period")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, report, "")
}
