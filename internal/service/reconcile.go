// reconcile.go — сверка папок медиафайлов с записями техников.
//
// Проход синхронизации для каждой папки сущности:
//  1. Поиск записи техника, у которой nickname совпадает с именем папки
//     (нет записи — папка пропускается)
//  2. Сканирование медиафайлов папки
//  3. Подбор миниатюр: для видео без миниатюры рисуется заглушка,
//     изображение без миниатюры ссылается само на себя
//  4. Сборка нового списка media в порядке сканирования, sortOrder 1..N
//  5. Запись списка в запись техника (пустой список запись не трогает)
//
// Удаление медиафайла и удаление сущности фиксируются в журнале.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/docstore"
	"github.com/bigkaa/techdir/internal/storage/journal"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
	"github.com/bigkaa/techdir/internal/storage/thumbnail"
)

// Prometheus метрики сверки
var (
	// reconcileRunsTotal — количество полных проходов синхронизации.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "td_reconcile_runs_total",
		Help: "Общее количество проходов синхронизации медиафайлов",
	})

	// reconcileUpdatedTotal — количество обновлённых записей техников.
	reconcileUpdatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "td_reconcile_updated_total",
		Help: "Общее количество записей, обновлённых синхронизацией",
	})

	// reconcileFailuresTotal — ошибки по этапам.
	reconcileFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "td_reconcile_failures_total",
		Help: "Общее количество ошибок синхронизации и удаления по этапам",
	}, []string{"stage"})

	// reconcileDurationSeconds — длительность прохода синхронизации.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "td_reconcile_duration_seconds",
		Help:    "Длительность прохода синхронизации в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	// thumbnailsSynthesizedTotal — количество нарисованных заглушек видео.
	thumbnailsSynthesizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "td_thumbnails_synthesized_total",
		Help: "Общее количество созданных миниатюр-заглушек видео",
	})
)

// Этапы сверки для метрик и отчёта.
const (
	stageScan      = "scan"
	stageThumbnail = "thumbnail"
	stageWrite     = "write"
	stageRemove    = "remove"
	stageJournal   = "journal"
)

// SyncFailure — ошибка обработки одной папки.
type SyncFailure struct {
	Folder  string `json:"folder"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// SyncResult — итог прохода синхронизации.
type SyncResult struct {
	// ScannedFolders — количество просмотренных папок сущностей
	ScannedFolders int `json:"scannedFolders"`
	// UpdatedTechnicians — количество записей с перезаписанным media
	UpdatedTechnicians int `json:"updatedTechnicians"`
	// SkippedFolders — папки без соответствующей записи
	SkippedFolders []string `json:"skippedFolders"`
	// Failures — ошибки отдельных папок; проход при них продолжается
	Failures []SyncFailure `json:"failures"`
}

// FolderResult — итог синхронизации одной папки.
type FolderResult struct {
	Folder       string            `json:"folder"`
	TechnicianID string            `json:"technicianId"`
	Updated      bool              `json:"updated"`
	Media        []model.MediaItem `json:"media"`
}

// FolderInfo — обзор папки сущности.
type FolderInfo struct {
	FolderName string   `json:"folderName"`
	MediaCount int      `json:"mediaCount"`
	Files      []string `json:"files"`
}

// Reconciler — сервис сверки дерева загрузок с записями техников.
type Reconciler struct {
	store    *docstore.Store
	tree     *mediafs.Tree
	thumbs   *thumbnail.Synthesizer
	journal  *journal.Journal
	interval time.Duration
	logger   *slog.Logger

	// passMu сериализует проходы сверки, удаления и GC
	passMu sync.Mutex
	// inProcess — флаг запущенного полного прохода
	inProcess atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconciler создаёт сервис сверки. interval > 0 включает
// периодическую синхронизацию после Start.
func NewReconciler(
	store *docstore.Store,
	tree *mediafs.Tree,
	thumbs *thumbnail.Synthesizer,
	jr *journal.Journal,
	interval time.Duration,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		tree:     tree,
		thumbs:   thumbs,
		journal:  jr,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает периодическую синхронизацию, если задан интервал.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	rCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(rCtx)

	r.logger.Info("Периодическая синхронизация запущена",
		slog.String("interval", r.interval.String()),
	)
}

// Stop останавливает периодическую синхронизацию и дожидается
// завершения текущего прохода.
func (r *Reconciler) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.logger.Info("Периодическая синхронизация остановлена")
}

// IsInProgress возвращает true, если выполняется полный проход.
func (r *Reconciler) IsInProgress() bool {
	return r.inProcess.Load()
}

// run — основной цикл фоновой горутины.
func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SyncAll(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) && ctx.Err() == nil {
				r.logger.Error("Ошибка периодической синхронизации", slog.String("error", err.Error()))
			}
		}
	}
}

// SyncAll выполняет полный проход синхронизации по всем папкам.
// Параллельный полный проход возвращает ErrSyncInProgress; идущие
// удаление или GC проход дожидается. Ошибки отдельных папок попадают
// в SyncResult.Failures и не прерывают проход; отмена ctx проверяется
// между папками.
func (r *Reconciler) SyncAll(ctx context.Context) (*SyncResult, error) {
	if !r.inProcess.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer r.inProcess.Store(false)
	r.passMu.Lock()
	defer r.passMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &SyncResult{SkippedFolders: []string{}, Failures: []SyncFailure{}}
	r.logger.Info("Синхронизация медиафайлов начата")

	folders, err := r.tree.Folders()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	owners, err := r.ownersByFolder()
	if err != nil {
		return nil, err
	}

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.ScannedFolders++

		owner, ok := owners[folder]
		if !ok {
			r.logger.Info("Нет техника для папки, пропуск", slog.String("folder", folder))
			result.SkippedFolders = append(result.SkippedFolders, folder)
			continue
		}

		fr, stage, err := r.syncFolder(folder, owner)
		if err != nil {
			reconcileFailuresTotal.WithLabelValues(stage).Inc()
			r.logger.Error("Ошибка синхронизации папки",
				slog.String("folder", folder),
				slog.String("stage", stage),
				slog.String("error", err.Error()),
			)
			result.Failures = append(result.Failures, SyncFailure{
				Folder:  folder,
				Stage:   stage,
				Message: failureMessage(err),
			})
			continue
		}
		if fr.Updated {
			result.UpdatedTechnicians++
		}
	}

	duration := time.Since(start)
	reconcileRunsTotal.Inc()
	reconcileUpdatedTotal.Add(float64(result.UpdatedTechnicians))
	reconcileDurationSeconds.Observe(duration.Seconds())

	r.logger.Info("Синхронизация медиафайлов завершена",
		slog.Int("scanned_folders", result.ScannedFolders),
		slog.Int("updated", result.UpdatedTechnicians),
		slog.Int("skipped", len(result.SkippedFolders)),
		slog.Int("failures", len(result.Failures)),
		slog.Duration("duration", duration),
	)
	return result, nil
}

// SyncFolder синхронизирует одну папку. Ждёт завершения текущего прохода.
// Папка без соответствующей записи — ErrEntityNotFound.
func (r *Reconciler) SyncFolder(ctx context.Context, folder string) (*FolderResult, error) {
	if !model.IsValidFolderName(folder) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, folder)
	}
	r.passMu.Lock()
	defer r.passMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	owners, err := r.ownersByFolder()
	if err != nil {
		return nil, err
	}
	owner, ok := owners[folder]
	if !ok {
		return nil, fmt.Errorf("%w: нет техника для папки %q", ErrEntityNotFound, folder)
	}

	fr, stage, err := r.syncFolder(folder, owner)
	if err != nil {
		reconcileFailuresTotal.WithLabelValues(stage).Inc()
		return nil, err
	}
	if fr.Updated {
		reconcileUpdatedTotal.Inc()
	}
	return fr, nil
}

// ownersByFolder сопоставляет имя папки с записью техника.
// При совпадающих nickname выбирается первая запись в порядке вставки.
func (r *Reconciler) ownersByFolder() (map[string]model.Record, error) {
	techs, err := r.store.FindAll(model.CollectionTechnicians, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения техников: %w", err)
	}
	owners := make(map[string]model.Record, len(techs))
	for _, t := range techs {
		name := t.String(model.TechnicianNameField)
		if name == "" {
			continue
		}
		if _, dup := owners[name]; !dup {
			owners[name] = t
		}
	}
	return owners, nil
}

// syncFolder пересобирает media записи owner по содержимому папки.
// Возвращает этап, на котором произошла ошибка.
func (r *Reconciler) syncFolder(folder string, owner model.Record) (*FolderResult, string, error) {
	descs, err := r.tree.ScanFolder(folder)
	if err != nil {
		return nil, stageScan, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	name := owner.String(model.TechnicianNameField)
	items := make([]model.MediaItem, 0, len(descs))
	for _, d := range descs {
		mediaPath := r.tree.PublicPath(folder, d.FileName)
		items = append(items, model.MediaItem{
			Type:        d.Type,
			Path:        mediaPath,
			Thumbnail:   r.resolveThumbnail(d, mediaPath),
			Description: model.MediaDescription(name, d.Type),
		})
	}
	model.Resequence(items)

	fr := &FolderResult{Folder: folder, TechnicianID: owner.ID(), Media: items}
	// Пустое сканирование не стирает существующие media
	if len(items) == 0 {
		r.logger.Debug("Папка без медиафайлов, запись не изменяется", slog.String("folder", folder))
		return fr, "", nil
	}

	_, err = r.store.Modify(model.CollectionTechnicians, owner.ID(), func(rec model.Record) (bool, error) {
		rec.SetMedia(items)
		return true, nil
	})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, stageWrite, fmt.Errorf("%w: %w", ErrEntityNotFound, err)
		}
		return nil, stageWrite, err
	}
	fr.Updated = true

	r.logger.Debug("Медиафайлы техника обновлены",
		slog.String("folder", folder),
		slog.String("technician_id", owner.ID()),
		slog.Int("media", len(items)),
	)
	return fr, "", nil
}

// resolveThumbnail возвращает публичный путь миниатюры файла.
// Ошибка создания заглушки не прерывает сверку: используется путь оригинала.
func (r *Reconciler) resolveThumbnail(d mediafs.Descriptor, mediaPath string) string {
	if d.Thumbnail != "" {
		return r.tree.ThumbnailPublicPath(d.OwnerFolder, d.Thumbnail)
	}
	if d.Type != model.MediaVideo {
		return mediaPath
	}
	name, err := r.thumbs.SynthesizeVideo(d.AbsolutePath)
	if err != nil {
		reconcileFailuresTotal.WithLabelValues(stageThumbnail).Inc()
		r.logger.Warn("Не удалось создать миниатюру видео, используется оригинал",
			slog.String("folder", d.OwnerFolder),
			slog.String("file", d.FileName),
			slog.String("error", err.Error()),
		)
		return mediaPath
	}
	thumbnailsSynthesizedTotal.Inc()
	return r.tree.ThumbnailPublicPath(d.OwnerFolder, name)
}

// Folders возвращает обзор папок сущностей: имена медиафайлов и их число.
func (r *Reconciler) Folders(ctx context.Context) ([]FolderInfo, error) {
	folders, err := r.tree.Folders()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	out := make([]FolderInfo, 0, len(folders))
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		descs, err := r.tree.ScanFolder(folder)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		files := make([]string, 0, len(descs))
		for _, d := range descs {
			files = append(files, d.FileName)
		}
		out = append(out, FolderInfo{FolderName: folder, MediaCount: len(files), Files: files})
	}
	return out, nil
}

// DeleteMedia удаляет медиафайл storedPath техника entityID, его миниатюры
// и соответствующий элемент media (сопоставление по path), после чего
// переназначает sortOrder. Путь вне папки техника — ErrInvalidPath.
// Отсутствующий файл не считается ошибкой, поэтому повторный вызов успешен.
func (r *Reconciler) DeleteMedia(ctx context.Context, entityID, storedPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := r.tree.ResolvePublic(storedPath)
	if err != nil || strings.Contains(loc.Rel, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, storedPath)
	}

	r.passMu.Lock()
	defer r.passMu.Unlock()

	rec, err := r.store.FindByID(model.CollectionTechnicians, entityID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrEntityNotFound, err)
		}
		return err
	}
	// Файл должен лежать в папке этого техника
	if loc.Folder != rec.String(model.TechnicianNameField) {
		return fmt.Errorf("%w: %q вне папки техника", ErrInvalidPath, storedPath)
	}
	items, err := model.MediaOf(rec)
	if err != nil {
		return err
	}

	tx, err := r.journal.Start(journal.OpMediaDelete, entityID, storedPath)
	if err != nil {
		reconcileFailuresTotal.WithLabelValues(stageJournal).Inc()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	if err := r.tree.RemoveFile(loc.Abs); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			reconcileFailuresTotal.WithLabelValues(stageRemove).Inc()
			r.rollback(tx.TransactionID, err)
			return fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		r.logger.Debug("Медиафайл уже удалён", slog.String("path", storedPath))
	}
	r.removeThumbnails(loc, storedPath, items)

	_, err = r.store.Modify(model.CollectionTechnicians, entityID, func(rec model.Record) (bool, error) {
		current, err := model.MediaOf(rec)
		if err != nil {
			return false, err
		}
		kept := make([]model.MediaItem, 0, len(current))
		for _, item := range current {
			if item.Path != storedPath {
				kept = append(kept, item)
			}
		}
		if len(kept) == len(current) && model.IsContiguous(current) {
			return false, nil
		}
		rec.SetMedia(model.Resequence(kept))
		return true, nil
	})
	if err != nil {
		reconcileFailuresTotal.WithLabelValues(stageWrite).Inc()
		r.rollback(tx.TransactionID, err)
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrEntityNotFound, err)
		}
		return err
	}

	r.commit(tx.TransactionID)
	r.logger.Info("Медиафайл удалён",
		slog.String("technician_id", entityID),
		slog.String("path", storedPath),
	)
	return nil
}

// removeThumbnails удаляет миниатюры удалённого файла: найденные по префиксу
// и сохранённую в записи, если на неё не ссылаются другие элементы media.
// Ошибки только логируются.
func (r *Reconciler) removeThumbnails(loc mediafs.Location, storedPath string, items []model.MediaItem) {
	thumbs, err := r.tree.Thumbnails(loc.Folder)
	if err != nil {
		r.logger.Warn("Не удалось прочитать миниатюры", slog.String("folder", loc.Folder), slog.String("error", err.Error()))
		return
	}

	var siblings []string
	if descs, err := r.tree.ScanFolder(loc.Folder); err == nil {
		for _, d := range descs {
			if d.FileName != loc.Rel {
				siblings = append(siblings, d.FileName)
			}
		}
	}
	targets := mediafs.OwnedThumbnails(thumbs, loc.Rel, siblings)

	// Миниатюра, сохранённая в записи
	referenced := make(map[string]bool)
	var stored string
	for _, item := range items {
		if item.Path == storedPath {
			stored = item.Thumbnail
		} else {
			referenced[item.Thumbnail] = true
		}
	}
	if stored != "" && stored != storedPath && !referenced[stored] {
		if tl, err := r.tree.ResolvePublic(stored); err == nil && tl.Folder == loc.Folder &&
			path.Dir(tl.Rel) == mediafs.ThumbnailsDir {
			if name := path.Base(tl.Rel); !slices.Contains(targets, name) {
				targets = append(targets, name)
			}
		}
	}

	dir, err := r.tree.ThumbnailsPath(loc.Folder)
	if err != nil {
		return
	}
	for _, name := range targets {
		if err := r.tree.RemoveFile(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			reconcileFailuresTotal.WithLabelValues(stageRemove).Inc()
			r.logger.Warn("Не удалось удалить миниатюру",
				slog.String("folder", loc.Folder),
				slog.String("thumbnail", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// DeleteEntity удаляет папку техника (без гарантии: ошибка файловой
// системы только логируется) и его запись. Папка сохраняется, если
// на неё претендует другой техник с тем же nickname.
func (r *Reconciler) DeleteEntity(ctx context.Context, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.passMu.Lock()
	defer r.passMu.Unlock()

	rec, err := r.store.FindByID(model.CollectionTechnicians, entityID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrEntityNotFound, err)
		}
		return err
	}
	folder := rec.String(model.TechnicianNameField)

	tx, err := r.journal.Start(journal.OpEntityDelete, entityID, folder)
	if err != nil {
		reconcileFailuresTotal.WithLabelValues(stageJournal).Inc()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	if folder != "" {
		r.removeEntityFolder(entityID, folder)
	}

	if err := r.store.Delete(model.CollectionTechnicians, entityID); err != nil {
		reconcileFailuresTotal.WithLabelValues(stageWrite).Inc()
		r.rollback(tx.TransactionID, err)
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrEntityNotFound, err)
		}
		return err
	}

	r.commit(tx.TransactionID)
	r.logger.Info("Техник удалён",
		slog.String("technician_id", entityID),
		slog.String("folder", folder),
	)
	return nil
}

func (r *Reconciler) removeEntityFolder(entityID, folder string) {
	shared, err := r.store.Count(model.CollectionTechnicians, func(rec model.Record) bool {
		return rec.ID() != entityID && rec.String(model.TechnicianNameField) == folder
	})
	if err == nil && shared > 0 {
		r.logger.Warn("Папка используется другим техником, не удаляется", slog.String("folder", folder))
		return
	}

	existed, err := r.tree.RemoveFolder(folder)
	if err != nil {
		reconcileFailuresTotal.WithLabelValues(stageRemove).Inc()
		r.logger.Warn("Не удалось удалить папку техника, запись удаляется",
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)
		return
	}
	if !existed {
		r.logger.Debug("Папки техника нет на диске", slog.String("folder", folder))
	}
}

// RecoverJournal откатывает транзакции, прерванные перезапуском,
// и сжимает журнал. Возвращает число откаченных транзакций.
func (r *Reconciler) RecoverJournal() (int, error) {
	pending, err := r.journal.RecoverPending()
	if err != nil {
		return 0, err
	}
	for _, e := range pending {
		if err := r.journal.Rollback(e.TransactionID, "прервано перезапуском"); err != nil {
			return 0, err
		}
	}
	if _, err := r.journal.Compact(); err != nil {
		return len(pending), err
	}
	return len(pending), nil
}

func (r *Reconciler) commit(txID string) {
	if err := r.journal.Commit(txID); err != nil {
		reconcileFailuresTotal.WithLabelValues(stageJournal).Inc()
		r.logger.Error("Ошибка фиксации транзакции журнала",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Reconciler) rollback(txID string, cause error) {
	if err := r.journal.Rollback(txID, cause.Error()); err != nil {
		reconcileFailuresTotal.WithLabelValues(stageJournal).Inc()
		r.logger.Error("Ошибка отката транзакции журнала",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

// failureMessage формирует сообщение для отчёта без путей файловой системы.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrEntityNotFound):
		return ErrEntityNotFound.Error()
	case errors.Is(err, ErrIOFailure):
		return ErrIOFailure.Error()
	case errors.Is(err, docstore.ErrMalformed):
		return "повреждённые данные коллекции"
	default:
		return "внутренняя ошибка хранилища"
	}
}
