// respond.go — общие функции ответа и разбора запросов.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/techdir/internal/api/errors"
	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/service"
	"github.com/bigkaa/techdir/internal/storage/docstore"
)

// maxJSONBody — максимальный размер JSON-тела запроса.
const maxJSONBody = 1 << 20

// envelope — формат успешного ответа.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeJSON записывает v как JSON с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData записывает успешный ответ в конверте {success, data, message}.
func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

// decodeJSON разбирает JSON-тело запроса (числа — json.Number)
// и проверяет его по тегам validate.
func decodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if err != nil {
		return newValidationError("ошибка чтения тела запроса")
	}
	if len(data) > maxJSONBody {
		return fmt.Errorf("%w: тело запроса больше %d байт", service.ErrFileTooLarge, maxJSONBody)
	}
	if len(data) == 0 {
		return newValidationError("пустое тело запроса")
	}
	if err := model.DecodeJSON(data, v); err != nil {
		return newValidationError("некорректный JSON: " + err.Error())
	}
	return model.Validate(v)
}

// badRequest — ошибка входных данных, не связанная с тегами validate.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func newValidationError(msg string) error { return &badRequest{msg: msg} }

// bindQuery разбирает необязательный query-параметр name в dest
// (указатель на указатель) в стиле form/explode.
func bindQuery(q url.Values, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
		return newValidationError(fmt.Sprintf("некорректный параметр %s", name))
	}
	return nil
}

// writeError отображает ошибку сервисного слоя на HTTP-ответ.
// Сообщения ошибок хранилища не содержат путей файловой системы.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *model.ValidationError
	var breq *badRequest

	switch {
	case errors.As(err, &verr):
		apierrors.ValidationError(w, verr.Error())
	case errors.As(err, &breq):
		apierrors.ValidationError(w, breq.Error())
	case errors.Is(err, service.ErrInvalidPath):
		apierrors.ValidationError(w, "Некорректный путь медиафайла")
	case errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, service.ErrEntityNotFound),
		errors.Is(err, service.ErrFileNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrSyncInProgress):
		apierrors.SyncInProgress(w, "Синхронизация медиа уже выполняется")
	case errors.Is(err, docstore.ErrConflict):
		apierrors.Conflict(w, "Конфликт записи")
	case errors.Is(err, service.ErrFileTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrUnsupportedMedia):
		apierrors.UnsupportedMedia(w, "Неподдерживаемый тип файла")
	case errors.Is(err, docstore.ErrMalformed),
		errors.Is(err, docstore.ErrIO),
		errors.Is(err, service.ErrIOFailure):
		logger.Error("Ошибка хранилища", slog.String("error", err.Error()))
		apierrors.StorageError(w, "Ошибка хранилища данных")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Запрос прерван", slog.String("error", err.Error()))
		apierrors.WriteError(w, http.StatusServiceUnavailable, apierrors.CodeInternalError, "Запрос прерван")
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
