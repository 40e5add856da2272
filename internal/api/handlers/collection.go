// collection.go — административный CRUD коллекции поверх docstore.
//
// Один обобщённый обработчик обслуживает technicians, announcements
// и customer-service: C — тело создания, P — тело частичного изменения.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/docstore"
)

// Payload — тело запроса, преобразуемое в поля записи.
type Payload interface {
	Fields() (map[string]any, error)
}

// ListFilter строит предикат списка из query-параметров.
type ListFilter func(q url.Values) (model.Predicate, error)

// CollectionHandler — CRUD-обработчик одной коллекции.
type CollectionHandler[C Payload, P Payload] struct {
	store        *docstore.Store
	key          string
	title        string
	defaultLimit int
	filter       ListFilter
	deleteFn     func(ctx context.Context, id string) error
	logger       *slog.Logger
}

// NewCollectionHandler создаёт CRUD-обработчик коллекции key.
// title используется в сообщениях ответов.
func NewCollectionHandler[C Payload, P Payload](store *docstore.Store, key, title string, logger *slog.Logger) *CollectionHandler[C, P] {
	return &CollectionHandler[C, P]{
		store:        store,
		key:          key,
		title:        title,
		defaultLimit: docstore.DefaultPageSize,
		logger:       logger.With(slog.String("component", "handler_"+key)),
	}
}

// WithFilter задаёт фильтр списка.
func (h *CollectionHandler[C, P]) WithFilter(f ListFilter) *CollectionHandler[C, P] {
	h.filter = f
	return h
}

// WithDelete подменяет удаление записи (например, удаление вместе с медиа).
func (h *CollectionHandler[C, P]) WithDelete(fn func(ctx context.Context, id string) error) *CollectionHandler[C, P] {
	h.deleteFn = fn
	return h
}

// Routes регистрирует маршруты коллекции на r.
func (h *CollectionHandler[C, P]) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// List обрабатывает GET: постраничный список с фильтрами.
func (h *CollectionHandler[C, P]) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, err := pagination(q, h.defaultLimit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var pred model.Predicate
	if h.filter != nil {
		if pred, err = h.filter(q); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	result, err := h.store.FindWithPagination(h.key, page, limit, pred)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get обрабатывает GET /{id}.
func (h *CollectionHandler[C, P]) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.FindByID(h.key, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, rec, "")
}

// Create обрабатывает POST: проверка тела и создание записи.
func (h *CollectionHandler[C, P]) Create(w http.ResponseWriter, r *http.Request) {
	var body C
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	fields, err := body.Fields()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	rec, err := h.store.Create(h.key, fields)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("Запись создана", slog.String("id", rec.ID()))
	writeData(w, http.StatusCreated, rec, h.title+": запись создана")
}

// Update обрабатывает PUT/PATCH /{id}: частичное изменение переданных полей.
func (h *CollectionHandler[C, P]) Update(w http.ResponseWriter, r *http.Request) {
	var body P
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	fields, err := body.Fields()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	rec, err := h.store.Update(h.key, chi.URLParam(r, "id"), fields)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, rec, h.title+": запись обновлена")
}

// Delete обрабатывает DELETE /{id}.
func (h *CollectionHandler[C, P]) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	if h.deleteFn != nil {
		err = h.deleteFn(r.Context(), id)
	} else {
		err = h.store.Delete(h.key, id)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("Запись удалена", slog.String("id", id))
	writeData(w, http.StatusOK, nil, h.title+": запись удалена")
}

// pagination разбирает page и limit. Значения меньше 1 нормализует
// хранилище, здесь отсекаются только нечисловые.
func pagination(q url.Values, defaultLimit int) (page, limit int, err error) {
	var pPage, pLimit *int
	if err := bindQuery(q, "page", &pPage); err != nil {
		return 0, 0, err
	}
	if err := bindQuery(q, "limit", &pLimit); err != nil {
		return 0, 0, err
	}
	page, limit = 1, defaultLimit
	if pPage != nil {
		page = *pPage
	}
	if pLimit != nil {
		limit = *pLimit
	}
	return page, limit, nil
}
