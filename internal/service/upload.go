// upload.go — сервис загрузки медиафайлов техников.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/techdir/internal/config"
	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
	"github.com/bigkaa/techdir/internal/storage/thumbnail"
)

// Prometheus метрики загрузки
var (
	// uploadsTotal — количество загрузок по типу и результату.
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "td_uploads_total",
		Help: "Общее количество загрузок медиафайлов",
	}, []string{"type", "status"})

	// uploadBytesTotal — объём загруженных данных.
	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "td_upload_bytes_total",
		Help: "Общий объём загруженных медиафайлов в байтах",
	})
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Nickname — nickname техника, он же имя папки
	Nickname string
	// FileName — исходное имя файла
	FileName string
	// Reader — поток данных файла
	Reader io.Reader
	// Sync — после загрузки синхронизировать папку с записью техника
	Sync bool
}

// UploadResult — результат загрузки файла.
type UploadResult struct {
	FileName     string          `json:"fileName"`
	FileURL      string          `json:"fileUrl"`
	ThumbnailURL string          `json:"thumbnailUrl"`
	Size         int64           `json:"size"`
	Type         model.MediaType `json:"type"`
	Checksum     string          `json:"checksum"`
	Synced       bool            `json:"synced"`
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	tree         *mediafs.Tree
	thumbs       *thumbnail.Synthesizer
	reconciler   *Reconciler
	maxFileSize  int64
	maxImageSize int64
	logger       *slog.Logger
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(
	cfg *config.Config,
	tree *mediafs.Tree,
	thumbs *thumbnail.Synthesizer,
	reconciler *Reconciler,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		tree:         tree,
		thumbs:       thumbs,
		reconciler:   reconciler,
		maxFileSize:  cfg.MaxFileSize,
		maxImageSize: cfg.MaxImageSize,
		logger:       logger.With(slog.String("component", "upload_service")),
	}
}

// Upload сохраняет файл в папку техника и создаёт миниатюру.
//
// Порядок:
//  1. Проверка имени папки и типа файла по расширению
//  2. Потоковая запись с лимитом размера (для изображений — свой лимит)
//  3. Миниатюра: для изображения — уменьшенная копия thumb_<имя файла>,
//     для видео — заглушка; при ошибке используется путь оригинала
//  4. При Sync — синхронизация папки с записью техника
func (s *UploadService) Upload(ctx context.Context, p UploadParams) (*UploadResult, error) {
	if !model.IsValidFolderName(p.Nickname) {
		return nil, fmt.Errorf("%w: имя папки %q", ErrInvalidPath, p.Nickname)
	}
	mediaType, ok := model.ClassifyFile(p.FileName)
	if !ok {
		uploadsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, p.FileName)
	}

	limit := s.maxFileSize
	if mediaType == model.MediaImage && s.maxImageSize > 0 && (limit <= 0 || s.maxImageSize < limit) {
		limit = s.maxImageSize
	}

	saved, err := s.tree.SaveUpload(p.Nickname, p.FileName, p.Reader, limit)
	if err != nil {
		switch {
		case errors.Is(err, mediafs.ErrTooLarge):
			uploadsTotal.WithLabelValues(string(mediaType), "rejected").Inc()
			return nil, fmt.Errorf("%w: максимум %d байт", ErrFileTooLarge, limit)
		case errors.Is(err, mediafs.ErrInvalidFolder):
			return nil, fmt.Errorf("%w: %w", ErrInvalidPath, err)
		default:
			uploadsTotal.WithLabelValues(string(mediaType), "error").Inc()
			return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
	}

	result := &UploadResult{
		FileName:     saved.FileName,
		FileURL:      saved.PublicPath,
		ThumbnailURL: saved.PublicPath,
		Size:         saved.Size,
		Type:         mediaType,
		Checksum:     saved.Checksum,
	}

	var thumbName string
	if mediaType == model.MediaImage {
		thumbName, err = s.thumbs.SynthesizeImage(saved.AbsolutePath)
	} else {
		thumbName, err = s.thumbs.SynthesizeVideo(saved.AbsolutePath)
	}
	if err != nil {
		s.logger.Warn("Не удалось создать миниатюру, используется оригинал",
			slog.String("file", saved.FileName),
			slog.String("error", err.Error()),
		)
	} else {
		result.ThumbnailURL = s.tree.ThumbnailPublicPath(p.Nickname, thumbName)
	}

	uploadsTotal.WithLabelValues(string(mediaType), "success").Inc()
	uploadBytesTotal.Add(float64(saved.Size))

	s.logger.Info("Файл загружен",
		slog.String("folder", p.Nickname),
		slog.String("file", saved.FileName),
		slog.String("type", string(mediaType)),
		slog.Int64("size", saved.Size),
	)

	if p.Sync {
		if _, err := s.reconciler.SyncFolder(ctx, p.Nickname); err != nil {
			// Файл сохранён; запись будет обновлена следующей синхронизацией
			s.logger.Warn("Синхронизация после загрузки не выполнена",
				slog.String("folder", p.Nickname),
				slog.String("error", err.Error()),
			)
		} else {
			result.Synced = true
		}
	}

	return result, nil
}
