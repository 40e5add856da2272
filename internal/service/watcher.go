// watcher.go — наблюдение за деревом загрузок через fsnotify.
//
// Изменения файлов в папке сущности запускают синхронизацию этой папки
// после паузы debounce: серия событий (копирование нескольких файлов)
// приводит к одной синхронизации.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
)

// Watcher — наблюдатель за папками сущностей.
type Watcher struct {
	tree       *mediafs.Tree
	reconciler *Reconciler
	debounce   time.Duration
	logger     *slog.Logger

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	timers   map[string]*time.Timer
	inflight sync.WaitGroup
}

// NewWatcher создаёт наблюдатель. Start начинает наблюдение.
func NewWatcher(tree *mediafs.Tree, reconciler *Reconciler, debounce time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		tree:       tree,
		reconciler: reconciler,
		debounce:   debounce,
		logger:     logger.With(slog.String("component", "watcher")),
		timers:     make(map[string]*time.Timer),
	}
}

// Start создаёт корень дерева при необходимости и подписывается
// на события корня и всех папок сущностей.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.tree.Root(), 0o755); err != nil {
		return fmt.Errorf("ошибка создания корня загрузок: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ошибка создания fsnotify: %w", err)
	}
	if err := fsw.Add(w.tree.Root()); err != nil {
		fsw.Close()
		return fmt.Errorf("ошибка подписки на корень загрузок: %w", err)
	}
	folders, err := w.tree.Folders()
	if err != nil {
		fsw.Close()
		return err
	}
	for _, folder := range folders {
		w.watchFolder(fsw, folder)
	}

	wCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(wCtx)

	w.logger.Info("Наблюдение за деревом загрузок запущено",
		slog.Int("folders", len(folders)),
		slog.String("debounce", w.debounce.String()),
	)
	return nil
}

// Stop прекращает наблюдение, отменяет отложенные синхронизации
// и дожидается уже начатых.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done

	w.mu.Lock()
	for folder, t := range w.timers {
		if t.Stop() {
			w.inflight.Done()
		}
		delete(w.timers, folder)
	}
	w.mu.Unlock()
	w.inflight.Wait()

	w.fsw.Close()
	w.cancel = nil
	w.logger.Info("Наблюдение за деревом загрузок остановлено")
}

// run — основной цикл обработки событий.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Ошибка fsnotify", slog.String("error", err.Error()))
		}
	}
}

// handle разбирает событие: новая папка в корне ставится на наблюдение,
// изменение медиафайла в папке планирует её синхронизацию.
// События в thumbnails/ и временные файлы загрузки игнорируются.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.tree.Root(), ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	switch len(parts) {
	case 1:
		folder := parts[0]
		if !ev.Has(fsnotify.Create) || !model.IsValidFolderName(folder) {
			return
		}
		if info, err := os.Stat(ev.Name); err != nil || !info.IsDir() {
			return
		}
		w.watchFolder(w.fsw, folder)
		// Файлы могли появиться до подписки
		w.schedule(ctx, folder)
	case 2:
		folder, name := parts[0], parts[1]
		if name == mediafs.ThumbnailsDir || strings.HasPrefix(name, ".") {
			return
		}
		if _, ok := model.ClassifyFile(name); !ok {
			return
		}
		if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
			return
		}
		w.schedule(ctx, folder)
	}
}

// watchFolder подписывается на события папки сущности.
func (w *Watcher) watchFolder(fsw *fsnotify.Watcher, folder string) {
	dir, err := w.tree.FolderPath(folder)
	if err != nil {
		return
	}
	if err := fsw.Add(dir); err != nil {
		w.logger.Warn("Не удалось подписаться на папку",
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)
	}
}

// schedule откладывает синхронизацию папки на debounce; повторное
// событие до срабатывания сдвигает срок.
func (w *Watcher) schedule(ctx context.Context, folder string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[folder]; ok {
		// Сработавший таймер после Reset вызовет функцию ещё раз
		if !t.Reset(w.debounce) {
			w.inflight.Add(1)
		}
		return
	}
	w.inflight.Add(1)
	w.timers[folder] = time.AfterFunc(w.debounce, func() {
		defer w.inflight.Done()
		w.mu.Lock()
		delete(w.timers, folder)
		w.mu.Unlock()
		w.syncFolder(ctx, folder)
	})
}

// syncFolder синхронизирует папку; папка без записи техника — не ошибка.
func (w *Watcher) syncFolder(ctx context.Context, folder string) {
	if ctx.Err() != nil {
		return
	}
	res, err := w.reconciler.SyncFolder(ctx, folder)
	switch {
	case errors.Is(err, ErrEntityNotFound):
		w.logger.Debug("Папка без записи техника", slog.String("folder", folder))
	case err != nil:
		w.logger.Error("Ошибка синхронизации по событию",
			slog.String("folder", folder),
			slog.String("error", err.Error()),
		)
	default:
		w.logger.Debug("Папка синхронизирована по событию",
			slog.String("folder", folder),
			slog.Bool("updated", res.Updated),
			slog.Int("media", len(res.Media)),
		)
	}
}
