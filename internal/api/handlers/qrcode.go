// qrcode.go — загрузка QR-кода контакта поддержки.
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

// QRCodeHandler — обработчик загрузки QR-кодов.
type QRCodeHandler struct {
	qrcodes *service.QRCodeService
	logger  *slog.Logger
}

// NewQRCodeHandler создаёт обработчик загрузки QR-кодов.
func NewQRCodeHandler(qrcodes *service.QRCodeService, logger *slog.Logger) *QRCodeHandler {
	return &QRCodeHandler{
		qrcodes: qrcodes,
		logger:  logger.With(slog.String("component", "handler_qrcode")),
	}
}

// Routes регистрирует маршрут на административном роутере.
func (h *QRCodeHandler) Routes(r chi.Router) {
	r.Post("/customer-service-upload", h.Upload)
}

// Upload обрабатывает POST /customer-service-upload (multipart: file, customerId).
func (h *QRCodeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxQRCodeSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, h.logger, fmt.Errorf("%w: максимум %d байт", service.ErrFileTooLarge, service.MaxQRCodeSize))
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

	customerID := strings.TrimSpace(r.FormValue("customerId"))
	if customerID == "" {
		writeError(w, h.logger, newValidationError("отсутствует customerId"))
		return
	}

	result, err := h.qrcodes.Upload(r.Context(), customerID, header.Filename, file)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, result, "QR-код загружен")
}
