// gc.go — фоновая очистка осиротевших миниатюр.
//
// Миниатюра считается осиротевшей, если в папке нет медиафайла, которому
// она подходит по имени (thumb_<base>...), и ни одна запись техника
// не ссылается на неё. Запускается периодически (TD_GC_INTERVAL)
// и вручную через API или команду prune-thumbnails.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/docstore"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
)

// Prometheus метрики GC
var (
	// gcRunsTotal — количество запусков GC.
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "td_gc_runs_total",
		Help: "Общее количество запусков очистки миниатюр",
	})

	// gcThumbnailsRemovedTotal — количество удалённых миниатюр.
	gcThumbnailsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "td_gc_thumbnails_removed_total",
		Help: "Общее количество удалённых осиротевших миниатюр",
	})

	// gcDurationSeconds — длительность выполнения GC.
	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "td_gc_duration_seconds",
		Help:    "Длительность очистки миниатюр в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// GCResult — результат одного запуска GC.
type GCResult struct {
	// ScannedFolders — количество просмотренных папок
	ScannedFolders int `json:"scannedFolders"`
	// Orphans — публичные пути найденных осиротевших миниатюр
	Orphans []string `json:"orphans"`
	// RemovedCount — количество удалённых миниатюр (0 при DryRun)
	RemovedCount int `json:"removedCount"`
	// Errors — количество ошибок при обработке
	Errors int `json:"errors"`
	// DryRun — только поиск, без удаления
	DryRun bool `json:"dryRun"`
	// Duration — длительность выполнения
	Duration time.Duration `json:"-"`
}

// GCService — сервис очистки осиротевших миниатюр.
type GCService struct {
	store      *docstore.Store
	tree       *mediafs.Tree
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewGCService создаёт сервис GC. Проходы GC сериализуются с проходами
// сверки reconciler: сверка может ссылаться на только что созданные миниатюры.
func NewGCService(
	store *docstore.Store,
	tree *mediafs.Tree,
	reconciler *Reconciler,
	interval time.Duration,
	logger *slog.Logger,
) *GCService {
	return &GCService{
		store:      store,
		tree:       tree,
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.With(slog.String("component", "gc")),
	}
}

// Start запускает фоновую горутину GC с периодическим тикером.
// При interval <= 0 фоновая очистка выключена.
func (gc *GCService) Start(ctx context.Context) {
	if gc.interval <= 0 {
		gc.logger.Info("Фоновая очистка миниатюр выключена")
		return
	}
	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel
	gc.done = make(chan struct{})

	go gc.run(gcCtx)

	gc.logger.Info("GC запущен",
		slog.String("interval", gc.interval.String()),
	)
}

// Stop останавливает фоновый процесс GC и дожидается его завершения.
func (gc *GCService) Stop() {
	if gc.cancel == nil {
		return
	}
	gc.cancel()
	<-gc.done
	gc.cancel = nil
	gc.logger.Info("GC остановлен")
}

// run — основной цикл фоновой горутины.
func (gc *GCService) run(ctx context.Context) {
	defer close(gc.done)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := gc.RunOnce(ctx, false); err != nil && !errors.Is(err, context.Canceled) {
				gc.logger.Error("GC: ошибка прохода", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один проход GC. При dryRun миниатюры только
// перечисляются. Ошибки отдельных файлов учитываются в Errors
// и не прерывают проход.
func (gc *GCService) RunOnce(ctx context.Context, dryRun bool) (*GCResult, error) {
	gc.reconciler.passMu.Lock()
	defer gc.reconciler.passMu.Unlock()

	start := time.Now()
	result := &GCResult{Orphans: []string{}, DryRun: dryRun}

	referenced, err := gc.referencedThumbnails()
	if err != nil {
		return nil, err
	}
	folders, err := gc.tree.Folders()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.ScannedFolders++

		orphans, err := gc.folderOrphans(folder, referenced)
		if err != nil {
			gc.logger.Error("GC: ошибка чтения папки",
				slog.String("folder", folder),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		for _, thumb := range orphans {
			public := gc.tree.ThumbnailPublicPath(folder, thumb)
			result.Orphans = append(result.Orphans, public)
			if dryRun {
				continue
			}
			dir, _ := gc.tree.ThumbnailsPath(folder)
			if err := gc.tree.RemoveFile(filepath.Join(dir, thumb)); err != nil && !errors.Is(err, os.ErrNotExist) {
				gc.logger.Error("GC: ошибка удаления миниатюры",
					slog.String("thumbnail", public),
					slog.String("error", err.Error()),
				)
				result.Errors++
				continue
			}
			gc.logger.Debug("GC: миниатюра удалена", slog.String("thumbnail", public))
			result.RemovedCount++
		}
	}

	result.Duration = time.Since(start)

	gcRunsTotal.Inc()
	gcThumbnailsRemovedTotal.Add(float64(result.RemovedCount))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	gc.logger.Info("GC завершён",
		slog.Int("folders", result.ScannedFolders),
		slog.Int("orphans", len(result.Orphans)),
		slog.Int("removed", result.RemovedCount),
		slog.Int("errors", result.Errors),
		slog.Bool("dry_run", dryRun),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// folderOrphans возвращает имена осиротевших миниатюр папки.
func (gc *GCService) folderOrphans(folder string, referenced map[string]bool) ([]string, error) {
	thumbs, err := gc.tree.Thumbnails(folder)
	if err != nil || len(thumbs) == 0 {
		return nil, err
	}
	descs, err := gc.tree.ScanFolder(folder)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(descs))
	for _, d := range descs {
		files = append(files, d.FileName)
	}

	var orphans []string
	for _, thumb := range thumbs {
		if referenced[gc.tree.ThumbnailPublicPath(folder, thumb)] {
			continue
		}
		if mediafs.IsOrphanThumbnail(thumb, files) {
			orphans = append(orphans, thumb)
		}
	}
	return orphans, nil
}

// referencedThumbnails собирает миниатюры, на которые ссылаются записи техников.
func (gc *GCService) referencedThumbnails() (map[string]bool, error) {
	techs, err := gc.store.FindAll(model.CollectionTechnicians, nil)
	if err != nil {
		return nil, err
	}
	refs := make(map[string]bool)
	for _, t := range techs {
		items, err := model.MediaOf(t)
		if err != nil {
			continue
		}
		for _, item := range items {
			if item.Thumbnail != "" {
				refs[item.Thumbnail] = true
			}
		}
	}
	return refs, nil
}
