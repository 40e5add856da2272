package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/techdir/internal/config"
	"github.com/bigkaa/techdir/internal/service"
	"github.com/bigkaa/techdir/internal/storage/cache"
	"github.com/bigkaa/techdir/internal/storage/codec"
	"github.com/bigkaa/techdir/internal/storage/docstore"
	"github.com/bigkaa/techdir/internal/storage/journal"
	"github.com/bigkaa/techdir/internal/storage/lock"
	"github.com/bigkaa/techdir/internal/storage/mediafs"
	"github.com/bigkaa/techdir/internal/storage/thumbnail"
)

// app — компоненты хранилища, общие для всех подкоманд.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	lock       *lock.Lock
	store      *docstore.Store
	tree       *mediafs.Tree
	uploads    *mediafs.Tree
	thumbs     *thumbnail.Synthesizer
	reconciler *service.Reconciler
	gc         *service.GCService
	admin      *service.AdminService
}

// openApp захватывает директорию данных и собирает компоненты.
// owner попадает в lock-файл и виден конкурирующим процессам.
func openApp(cfg *config.Config, logger *slog.Logger, owner string) (*app, error) {
	l, err := lock.Acquire(cfg.DataDir, owner, logger)
	if err != nil {
		return nil, err
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		l.Release()
		return nil, err
	}
	a.lock = l
	return a, nil
}

func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	// 1. Кэш коллекций и документное хранилище
	c, err := cache.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации кэша: %w", err)
	}
	store := docstore.New(codec.New(cfg.DataDir), c, logger)

	// 2. Дерево медиафайлов
	if err := os.MkdirAll(cfg.EntityRoot(), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать %s: %w", cfg.EntityRoot(), err)
	}
	tree := mediafs.New(cfg.EntityRoot(), cfg.EntityPublicPrefix())
	// Корень загрузок: QR-коды контактов и раздача всех файлов
	uploads := mediafs.New(cfg.UploadsDir, cfg.PublicPrefix)
	thumbs := thumbnail.New(cfg.ThumbnailNaming, logger)

	// 3. Журнал операций удаления
	jr, err := journal.New(filepath.Join(cfg.DataDir, "journal"), logger)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации журнала: %w", err)
	}

	// 4. Сервисы
	rec := service.NewReconciler(store, tree, thumbs, jr, cfg.SyncInterval, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		tree:       tree,
		uploads:    uploads,
		thumbs:     thumbs,
		reconciler: rec,
		gc:         service.NewGCService(store, tree, rec, cfg.GCInterval, logger),
		admin:      service.NewAdminService(store, logger),
	}, nil
}

// close освобождает директорию данных.
func (a *app) close() {
	if a.lock != nil {
		a.lock.Release()
	}
}
