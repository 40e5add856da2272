package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// allKeys — все переменные TD_*, читаемые Load.
var allKeys = []string{
	"TD_ENV_FILE", "TD_PORT", "TD_SERVICE_ID", "TD_DATA_DIR", "TD_UPLOADS_DIR",
	"TD_PUBLIC_PREFIX", "TD_ENTITY_FOLDER", "TD_CACHE_SIZE",
	"TD_MAX_FILE_SIZE", "TD_MAX_IMAGE_SIZE", "TD_THUMBNAIL_NAMING",
	"TD_SYNC_INTERVAL", "TD_GC_INTERVAL", "TD_WATCH_UPLOADS", "TD_WATCH_DEBOUNCE",
	"TD_JWKS_URL", "TD_JWT_ADMIN_SCOPE", "TD_JWKS_REFRESH_INTERVAL",
	"TD_JWKS_CLIENT_TIMEOUT", "TD_JWT_LEEWAY", "TD_TLS_CERT", "TD_TLS_KEY",
	"TD_HTTP_READ_TIMEOUT", "TD_HTTP_WRITE_TIMEOUT", "TD_HTTP_IDLE_TIMEOUT",
	"TD_SHUTDOWN_TIMEOUT", "TD_LOG_LEVEL", "TD_LOG_FORMAT", "TD_LOG_FILE",
	"TD_LOG_MAX_SIZE_MB", "TD_LOG_MAX_BACKUPS", "TD_LOG_MAX_AGE_DAYS",
	"TD_DEPHEALTH_CHECK_INTERVAL", "TD_DEPHEALTH_GROUP", "TD_DEPHEALTH_DEP_NAME",
}

// clearAllTDEnvVars очищает все переменные TD_* на время теста.
// Пустое значение равносильно отсутствию переменной.
func clearAllTDEnvVars(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
	// .env из рабочей директории пакета не должен влиять на тесты
	t.Setenv("TD_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoad_DefaultValues(t *testing.T) {
	clearAllTDEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидалось 8080", cfg.Port)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, ожидалось ./data", cfg.DataDir)
	}
	if cfg.EntityRoot() != filepath.Join("./public/uploads", "technicians") {
		t.Errorf("EntityRoot() = %q", cfg.EntityRoot())
	}
	if cfg.EntityPublicPrefix() != "/uploads/technicians" {
		t.Errorf("EntityPublicPrefix() = %q", cfg.EntityPublicPrefix())
	}
	if cfg.CacheSize != 16 {
		t.Errorf("CacheSize = %d, ожидалось 16", cfg.CacheSize)
	}
	if cfg.MaxFileSize != 10*1024*1024 {
		t.Errorf("MaxFileSize = %d", cfg.MaxFileSize)
	}
	if cfg.MaxImageSize != 2*1024*1024 {
		t.Errorf("MaxImageSize = %d", cfg.MaxImageSize)
	}
	if cfg.ThumbnailNaming != ThumbnailNamingUnique {
		t.Errorf("ThumbnailNaming = %q", cfg.ThumbnailNaming)
	}
	if cfg.SyncInterval != 0 || cfg.GCInterval != 0 {
		t.Errorf("периодические задачи должны быть выключены по умолчанию")
	}
	if cfg.WatchUploads {
		t.Error("WatchUploads должен быть выключен по умолчанию")
	}
	if cfg.JWKSUrl != "" {
		t.Errorf("JWKSUrl = %q, ожидалась пустая строка", cfg.JWKSUrl)
	}
	if cfg.AdminScope != "techdir:admin" {
		t.Errorf("AdminScope = %q", cfg.AdminScope)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestLoad_AllCustomValues(t *testing.T) {
	clearAllTDEnvVars(t)
	vars := map[string]string{
		"TD_PORT":             "9090",
		"TD_DATA_DIR":         "/srv/data",
		"TD_UPLOADS_DIR":      "/srv/public/uploads",
		"TD_PUBLIC_PREFIX":    "/media/",
		"TD_ENTITY_FOLDER":    "masters",
		"TD_CACHE_SIZE":       "4",
		"TD_MAX_FILE_SIZE":    "2048",
		"TD_MAX_IMAGE_SIZE":   "1024",
		"TD_THUMBNAIL_NAMING": "stable",
		"TD_SYNC_INTERVAL":    "10m",
		"TD_GC_INTERVAL":      "1h",
		"TD_WATCH_UPLOADS":    "true",
		"TD_WATCH_DEBOUNCE":   "500ms",
		"TD_JWKS_URL":         "https://auth.local/jwks",
		"TD_TLS_CERT":         "/tls/cert.pem",
		"TD_TLS_KEY":          "/tls/key.pem",
		"TD_LOG_LEVEL":        "debug",
		"TD_LOG_FORMAT":       "text",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.EntityRoot() != filepath.Join("/srv/public/uploads", "masters") {
		t.Errorf("EntityRoot() = %q", cfg.EntityRoot())
	}
	if cfg.EntityPublicPrefix() != "/media/masters" {
		t.Errorf("EntityPublicPrefix() = %q", cfg.EntityPublicPrefix())
	}
	if cfg.CacheSize != 4 || cfg.MaxFileSize != 2048 || cfg.MaxImageSize != 1024 {
		t.Errorf("размеры: cache=%d file=%d image=%d", cfg.CacheSize, cfg.MaxFileSize, cfg.MaxImageSize)
	}
	if cfg.ThumbnailNaming != ThumbnailNamingStable {
		t.Errorf("ThumbnailNaming = %q", cfg.ThumbnailNaming)
	}
	if cfg.SyncInterval != 10*time.Minute || cfg.GCInterval != time.Hour {
		t.Errorf("интервалы: sync=%v gc=%v", cfg.SyncInterval, cfg.GCInterval)
	}
	if !cfg.WatchUploads || cfg.WatchDebounce != 500*time.Millisecond {
		t.Errorf("watcher: %v %v", cfg.WatchUploads, cfg.WatchDebounce)
	}
	if cfg.JWKSUrl != "https://auth.local/jwks" {
		t.Errorf("JWKSUrl = %q", cfg.JWKSUrl)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
		t.Errorf("логирование: %v %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"порт вне диапазона", "TD_PORT", "70000"},
		{"порт не число", "TD_PORT", "abc"},
		{"префикс без слэша", "TD_PUBLIC_PREFIX", "uploads"},
		{"папка сущностей с разделителем", "TD_ENTITY_FOLDER", "a/b"},
		{"нулевой кэш", "TD_CACHE_SIZE", "0"},
		{"отрицательный размер файла", "TD_MAX_FILE_SIZE", "-1"},
		{"изображение больше файла", "TD_MAX_IMAGE_SIZE", "20971520"},
		{"неизвестное именование", "TD_THUMBNAIL_NAMING", "hash"},
		{"некорректный интервал", "TD_SYNC_INTERVAL", "soon"},
		{"отрицательный интервал", "TD_GC_INTERVAL", "-1m"},
		{"некорректный bool", "TD_WATCH_UPLOADS", "maybe"},
		{"сертификат без ключа", "TD_TLS_CERT", "/tls/cert.pem"},
		{"уровень логов", "TD_LOG_LEVEL", "verbose"},
		{"формат логов", "TD_LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAllTDEnvVars(t)
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearAllTDEnvVars(t)

	envPath := filepath.Join(t.TempDir(), "test.env")
	content := "TD_PORT=9191\nTD_DATA_DIR=/from/env/file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("ошибка записи .env: %v", err)
	}
	t.Setenv("TD_ENV_FILE", envPath)
	// godotenv не перекрывает существующие переменные, даже пустые
	os.Unsetenv("TD_PORT")
	// Явно заданная переменная окружения имеет приоритет над .env
	t.Setenv("TD_DATA_DIR", "/from/process")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, ожидалось 9191 из .env", cfg.Port)
	}
	if cfg.DataDir != "/from/process" {
		t.Errorf("DataDir = %q, ожидалось значение окружения процесса", cfg.DataDir)
	}
}

func TestLoad_ValidLogLevels(t *testing.T) {
	levels := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}
	for in, want := range levels {
		got, err := parseLogLevel(in)
		if err != nil {
			t.Errorf("parseLogLevel(%q): неожиданная ошибка %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseLogLevel(%q) = %v, ожидалось %v", in, got, want)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		cfg := &Config{LogLevel: slog.LevelWarn, LogFormat: format}
		logger := SetupLogger(cfg)
		if logger == nil {
			t.Fatalf("SetupLogger(%s) вернул nil", format)
		}
		if logger.Enabled(t.Context(), slog.LevelInfo) {
			t.Errorf("уровень INFO не должен быть включён при LevelWarn (%s)", format)
		}
	}
}

func TestSetupLogger_WithFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "techdir.log")
	cfg := &Config{
		LogLevel:      slog.LevelInfo,
		LogFormat:     "json",
		LogFile:       logPath,
		LogMaxSizeMB:  1,
		LogMaxBackups: 1,
		LogMaxAgeDays: 1,
	}
	logger := SetupLogger(cfg)
	logger.Info("проверка записи в файл")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("файл логов не создан: %v", err)
	}
	if len(data) == 0 {
		t.Error("файл логов пуст")
	}
}
