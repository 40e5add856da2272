// qrcode.go — загрузка QR-кодов контактов поддержки.
//
// Файл сохраняется в <uploads>/customer-service/ под именем
// <city>_<wechatId>_<unix ms>.png, путь записывается в qrCodePath
// контакта. Предыдущий QR-код контакта удаляется без гарантии.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/docstore"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
)

const (
	// QRCodeFolder — папка QR-кодов в корне дерева загрузок.
	QRCodeFolder = "customer-service"
	// MaxQRCodeSize — максимальный размер файла QR-кода.
	MaxQRCodeSize = 2 << 20
)

// qrUploadsTotal — количество загрузок QR-кодов по результату.
var qrUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "td_qrcode_uploads_total",
	Help: "Общее количество загрузок QR-кодов контактов поддержки",
}, []string{"status"})

// QRCodeResult — результат загрузки QR-кода.
type QRCodeResult struct {
	QRCodePath      string       `json:"qrCodePath"`
	CustomerService model.Record `json:"customerService"`
}

// QRCodeService — сервис QR-кодов контактов поддержки.
type QRCodeService struct {
	store  *docstore.Store
	tree   *mediafs.Tree
	now    func() time.Time
	logger *slog.Logger
}

// NewQRCodeService создаёт сервис QR-кодов. tree — корень дерева
// загрузок (не дерево папок техников).
func NewQRCodeService(store *docstore.Store, tree *mediafs.Tree, logger *slog.Logger) *QRCodeService {
	return &QRCodeService{
		store:  store,
		tree:   tree,
		now:    time.Now,
		logger: logger.With(slog.String("component", "qrcode_service")),
	}
}

// WithClock подменяет источник времени.
func (s *QRCodeService) WithClock(now func() time.Time) *QRCodeService {
	s.now = now
	return s
}

// Upload сохраняет изображение QR-кода контакта contactID и обновляет
// его qrCodePath. Допускаются только изображения до MaxQRCodeSize.
func (s *QRCodeService) Upload(ctx context.Context, contactID, fileName string, r io.Reader) (*QRCodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mediaType, ok := model.ClassifyFile(fileName); !ok || mediaType != model.MediaImage {
		qrUploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, fileName)
	}

	contact, err := s.store.FindByID(model.CollectionCustomerService, contactID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrEntityNotFound, err)
		}
		return nil, err
	}

	name := fmt.Sprintf("%s_%s_%d.png",
		contact.String("city"), contact.String("wechatId"), s.now().UnixMilli())
	saved, err := s.tree.SaveUpload(QRCodeFolder, name, r, MaxQRCodeSize)
	if err != nil {
		if errors.Is(err, mediafs.ErrTooLarge) {
			qrUploadsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: максимум %d байт", ErrFileTooLarge, MaxQRCodeSize)
		}
		qrUploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	var previous string
	updated, err := s.store.Modify(model.CollectionCustomerService, contactID, func(rec model.Record) (bool, error) {
		previous = rec.String("qrCodePath")
		rec["qrCodePath"] = saved.PublicPath
		return true, nil
	})
	if err != nil {
		// Запись не обновлена: новый файл никому не нужен
		if rmErr := s.tree.RemoveFile(saved.AbsolutePath); rmErr != nil {
			s.logger.Warn("Не удалось удалить QR-код", slog.String("file", saved.FileName), slog.String("error", rmErr.Error()))
		}
		qrUploadsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrEntityNotFound, err)
		}
		return nil, err
	}

	if previous != "" && previous != saved.PublicPath {
		s.removePrevious(previous)
	}

	qrUploadsTotal.WithLabelValues("success").Inc()
	s.logger.Info("QR-код загружен",
		slog.String("contact_id", contactID),
		slog.String("file", saved.FileName),
		slog.Int64("size", saved.Size),
	)
	return &QRCodeResult{QRCodePath: saved.PublicPath, CustomerService: updated}, nil
}

// removePrevious удаляет прежний QR-код, если он лежит в папке QR-кодов.
func (s *QRCodeService) removePrevious(public string) {
	loc, err := s.tree.ResolvePublic(public)
	if err != nil || loc.Folder != QRCodeFolder || path.Dir(loc.Rel) != "." {
		return
	}
	if err := s.tree.RemoveFile(loc.Abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Не удалось удалить прежний QR-код",
			slog.String("path", public),
			slog.String("error", err.Error()),
		)
	}
}
