package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/techdir/internal/api/handlers"
	"github.com/bigkaa/techdir/internal/api/middleware"
	"github.com/bigkaa/techdir/internal/config"
	"github.com/bigkaa/techdir/internal/server"
	"github.com/bigkaa/techdir/internal/service"
)

func newServeCmd(deps *cmdDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "запустить HTTP API каталога",
		Long: `Запускает HTTP API: публичный каталог /api/v1/*, административный API
/api/v1/admin/*, раздачу загрузок, health-пробы и /metrics.

Перед стартом откатываются незавершённые операции удаления медиа.
Завершается по SIGINT/SIGTERM с graceful shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), deps.cfg, deps.logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("techdir запускается",
		slog.String("service_id", cfg.ServiceID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("uploads_dir", cfg.UploadsDir),
	)

	// --- Инициализация компонентов ---

	a, err := openApp(cfg, logger, fmt.Sprintf("serve :%d", cfg.Port))
	if err != nil {
		return err
	}
	defer a.close()

	// Незавершённые удаления медиа откатываются до приёма запросов
	recovered, err := a.reconciler.RecoverJournal()
	if err != nil {
		return fmt.Errorf("ошибка восстановления журнала: %w", err)
	}
	if recovered > 0 {
		logger.Warn("Незавершённые операции откачены", slog.Int("count", recovered))
	}

	// --- Фоновые процессы ---

	a.reconciler.Start(ctx)
	defer a.reconciler.Stop()

	a.gc.Start(ctx)
	defer a.gc.Stop()

	if cfg.WatchUploads {
		w := service.NewWatcher(a.tree, a.reconciler, cfg.WatchDebounce, logger)
		if err := w.Start(ctx); err != nil {
			logger.Warn("Наблюдение за папками медиа недоступно",
				slog.String("error", err.Error()),
			)
		} else {
			defer w.Stop()
		}
	}

	adminMW, err := adminMiddlewares(cfg, a.admin, logger)
	if err != nil {
		return err
	}

	if cfg.JWKSUrl != "" {
		if dh := startDephealth(ctx, cfg, logger); dh != nil {
			defer dh.Stop()
		}
	}

	// --- HTTP ---

	api := handlers.New(handlers.Deps{
		Config:           cfg,
		Store:            a.store,
		Reconciler:       a.reconciler,
		Uploads:          service.NewUploadService(cfg, a.tree, a.thumbs, a.reconciler, logger),
		Stats:            service.NewStatsService(a.store, a.tree),
		Download:         service.NewDownloadService(a.uploads, logger),
		Views:            service.NewViewsService(a.store, logger),
		QRCodes:          service.NewQRCodeService(a.store, a.uploads, logger),
		Pruner:           a.gc,
		DiskUsage:        getDiskUsage,
		Logger:           logger,
		AdminMiddlewares: adminMW,
	})

	srv := server.New(cfg, logger, api)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("techdir остановлен")
	return nil
}

// adminMiddlewares выбирает аутентификацию административного API:
// JWT (TD_JWKS_URL), иначе HTTP Basic по паролю администратора из
// коллекции admin, иначе API открыт.
func adminMiddlewares(cfg *config.Config, admin *service.AdminService, logger *slog.Logger) ([]func(http.Handler) http.Handler, error) {
	if cfg.JWKSUrl != "" {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации JWT: %w", err)
		}
		logger.Info("Административный API: JWT", slog.String("scope", cfg.AdminScope))
		return []func(http.Handler) http.Handler{
			jwtAuth.Middleware(),
			middleware.RequireScope(cfg.AdminScope),
		}, nil
	}

	hasPassword, err := admin.HasPassword()
	if err != nil {
		return nil, err
	}
	if hasPassword {
		logger.Info("Административный API: HTTP Basic")
		return []func(http.Handler) http.Handler{
			middleware.BasicAuth(admin, cfg.AdminScope, logger),
			middleware.RequireScope(cfg.AdminScope),
		}, nil
	}

	logger.Warn("Административный API открыт: не задан TD_JWKS_URL и пароль администратора")
	return nil, nil
}

// startDephealth запускает мониторинг JWKS. Ошибки не фатальны.
func startDephealth(ctx context.Context, cfg *config.Config, logger *slog.Logger) *service.DephealthService {
	dh, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:     cfg.ServiceID,
		Group:         cfg.DephealthGroup,
		DepName:       cfg.DephealthDepName,
		JWKSURL:       cfg.JWKSUrl,
		CheckInterval: cfg.DephealthCheckInterval,
		IsEntry:       true,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := dh.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("jwks_url", cfg.JWKSUrl),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return dh
}
