// directory.go — публичный каталог: техники, объявления, контакты поддержки.
// Без аутентификации; отдаются только активные записи.
package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/docstore"
)

const (
	// publicTechniciansLimit — размер страницы публичного списка техников.
	publicTechniciansLimit = 12
	// publicAnnouncementsLimit — число объявлений по умолчанию.
	publicAnnouncementsLimit = 10
)

// DirectoryHandler — обработчик публичного каталога.
type DirectoryHandler struct {
	store  *docstore.Store
	logger *slog.Logger
}

// NewDirectoryHandler создаёт обработчик публичного каталога.
func NewDirectoryHandler(store *docstore.Store, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		store:  store,
		logger: logger.With(slog.String("component", "handler_directory")),
	}
}

// Routes регистрирует публичные маршруты каталога.
func (h *DirectoryHandler) Routes(r chi.Router) {
	r.Get("/technicians", h.ListTechnicians)
	r.Get("/technicians/{id}", h.GetTechnician)
	r.Get("/announcements", h.ListAnnouncements)
	r.Get("/customer-service", h.ListCustomerService)
}

// ListTechnicians обрабатывает GET /api/v1/technicians.
// Фильтры: city, isNew=true, isRecommended=true, search (подстрока nickname
// без учёта регистра). isNew=false и isRecommended=false не фильтруют.
func (h *DirectoryHandler) ListTechnicians(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, err := pagination(q, publicTechniciansLimit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	filter, err := publicTechnicianFilter(q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	result, err := h.store.FindWithPagination(model.CollectionTechnicians, page, limit, filter.Predicate())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func publicTechnicianFilter(q url.Values) (model.TechnicianFilter, error) {
	active := true
	f := model.TechnicianFilter{
		City:     q.Get("city"),
		Search:   q.Get("search"),
		IsActive: &active,
	}
	var isNew, isRecommended *bool
	if err := bindQuery(q, "isNew", &isNew); err != nil {
		return f, err
	}
	if err := bindQuery(q, "isRecommended", &isRecommended); err != nil {
		return f, err
	}
	if isNew != nil && *isNew {
		f.IsNew = isNew
	}
	if isRecommended != nil && *isRecommended {
		f.IsRecommended = isRecommended
	}
	return f, nil
}

// adminTechnicianFilter — фильтры административного списка: city,
// isActive (точное совпадение), search.
func adminTechnicianFilter(q url.Values) (model.Predicate, error) {
	f := model.TechnicianFilter{
		City:   q.Get("city"),
		Search: q.Get("search"),
	}
	if err := bindQuery(q, "isActive", &f.IsActive); err != nil {
		return nil, err
	}
	return f.Predicate(), nil
}

// GetTechnician обрабатывает GET /api/v1/technicians/{id}.
// Неактивный техник для публичного API не существует.
func (h *DirectoryHandler) GetTechnician(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.FindByID(model.CollectionTechnicians, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !rec.Bool("isActive") {
		writeError(w, h.logger, docstore.ErrNotFound)
		return
	}
	writeData(w, http.StatusOK, rec, "")
}

// ListAnnouncements обрабатывает GET /api/v1/announcements:
// активные объявления по возрастанию priority, не больше limit.
func (h *DirectoryHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	var pLimit *int
	if err := bindQuery(r.URL.Query(), "limit", &pLimit); err != nil {
		writeError(w, h.logger, err)
		return
	}
	limit := publicAnnouncementsLimit
	if pLimit != nil && *pLimit > 0 {
		limit = *pLimit
	}

	items, err := h.store.FindAll(model.CollectionAnnouncements, func(rec model.Record) bool {
		return rec.Bool("isActive")
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	slices.SortStableFunc(items, func(a, b model.Record) int {
		pa, _ := a.Number("priority")
		pb, _ := b.Number("priority")
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return 0
	})
	if len(items) > limit {
		items = items[:limit]
	}
	writeData(w, http.StatusOK, items, "")
}

// ListCustomerService обрабатывает GET /api/v1/customer-service?city=:
// активные контакты, обслуживающие город (или все активные).
func (h *DirectoryHandler) ListCustomerService(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.FindAll(model.CollectionCustomerService, model.CustomerServiceForCity(r.URL.Query().Get("city")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, items, "")
}
