// download.go — раздача файлов дерева загрузок.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/techdir/internal/storage/mediafs"
)

// downloadsTotal — количество отданных файлов по результату.
var downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "td_downloads_total",
	Help: "Общее количество запросов файлов дерева загрузок",
}, []string{"status"})

// DownloadService — сервис раздачи медиафайлов и миниатюр.
type DownloadService struct {
	tree   *mediafs.Tree
	logger *slog.Logger
}

// NewDownloadService создаёт сервис раздачи файлов.
func NewDownloadService(tree *mediafs.Tree, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		tree:   tree,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт файл по публичному пути (например,
// /uploads/technicians/alice/photo.jpg) через http.ServeContent:
// Range, If-Modified-Since и Content-Length обрабатываются автоматически.
// Каталоги не отдаются.
//
// Возвращает ErrInvalidPath для путей вне дерева и ErrFileNotFound
// для отсутствующих файлов; ответ в этих случаях не записывается.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, publicPath string) error {
	loc, err := s.tree.ResolvePublic(publicPath)
	if err != nil {
		downloadsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}

	file, err := os.Open(loc.Abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			downloadsTotal.WithLabelValues("not_found").Inc()
			return fmt.Errorf("%w: %s", ErrFileNotFound, publicPath)
		}
		downloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if !stat.Mode().IsRegular() {
		downloadsTotal.WithLabelValues("not_found").Inc()
		return fmt.Errorf("%w: %s", ErrFileNotFound, publicPath)
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)

	downloadsTotal.WithLabelValues("success").Inc()
	s.logger.Debug("Файл отдан",
		slog.String("folder", loc.Folder),
		slog.String("file", loc.Rel),
		slog.Int64("size", stat.Size()),
	)
	return nil
}
