// Пакет config — загрузка и валидация конфигурации techdir
// из переменных окружения (префикс TD_) и необязательного .env файла.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Режимы именования сгенерированных миниатюр.
const (
	ThumbnailNamingUnique = "unique"
	ThumbnailNamingStable = "stable"
)

// Config содержит все параметры конфигурации techdir.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Идентификатор экземпляра для метрик topologymetrics
	ServiceID string
	// Директория файлов коллекций (*.json)
	DataDir string
	// Корень публичного дерева загрузок
	UploadsDir string
	// URL-префикс, под которым раздаётся UploadsDir
	PublicPrefix string
	// Подпапка сущностей с медиа внутри UploadsDir
	EntityFolder string
	// Максимальное число коллекций в кэше
	CacheSize int
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Максимальный размер загружаемого изображения в байтах
	MaxImageSize int64
	// Именование миниатюр: unique или stable
	ThumbnailNaming string
	// Интервал периодической синхронизации медиа (0 — выключено)
	SyncInterval time.Duration
	// Интервал очистки осиротевших миниатюр (0 — выключено)
	GCInterval time.Duration
	// Наблюдение за деревом загрузок через fsnotify
	WatchUploads bool
	// Задержка перед синхронизацией папки после последнего события
	WatchDebounce time.Duration

	// URL JWKS endpoint для проверки JWT администратора (пусто — без аутентификации)
	JWKSUrl string
	// Scope, необходимый для административных маршрутов
	AdminScope string
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Файл логов с ротацией (опционально, дополнительно к stdout)
	LogFile string
	// Параметры ротации файла логов
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости (JWKS) в метриках topologymetrics
	DephealthDepName string
}

// EntityRoot возвращает путь к дереву папок сущностей.
func (c *Config) EntityRoot() string {
	return filepath.Join(c.UploadsDir, c.EntityFolder)
}

// EntityPublicPrefix возвращает URL-префикс дерева папок сущностей.
func (c *Config) EntityPublicPrefix() string {
	return strings.TrimRight(c.PublicPrefix, "/") + "/" + c.EntityFolder
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
// Перед чтением переменных подгружается .env (TD_ENV_FILE), если он существует.
// Уже заданные переменные окружения .env не перекрывает.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("TD_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	port, err := getEnvInt("TD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("TD_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("TD_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	cfg.ServiceID = getEnvDefault("TD_SERVICE_ID", "techdir")
	cfg.DataDir = getEnvDefault("TD_DATA_DIR", "./data")
	cfg.UploadsDir = getEnvDefault("TD_UPLOADS_DIR", "./public/uploads")

	// TD_PUBLIC_PREFIX — URL-префикс дерева загрузок (по умолчанию /uploads)
	cfg.PublicPrefix = getEnvDefault("TD_PUBLIC_PREFIX", "/uploads")
	if !strings.HasPrefix(cfg.PublicPrefix, "/") {
		return nil, fmt.Errorf("TD_PUBLIC_PREFIX: значение %q должно начинаться с /", cfg.PublicPrefix)
	}

	cfg.EntityFolder = getEnvDefault("TD_ENTITY_FOLDER", "technicians")
	if strings.ContainsAny(cfg.EntityFolder, `/\`) || cfg.EntityFolder == "." || cfg.EntityFolder == ".." {
		return nil, fmt.Errorf("TD_ENTITY_FOLDER: недопустимое имя папки %q", cfg.EntityFolder)
	}

	cfg.CacheSize, err = getEnvInt("TD_CACHE_SIZE", 16)
	if err != nil {
		return nil, fmt.Errorf("TD_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("TD_CACHE_SIZE: значение должно быть положительным")
	}

	// TD_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 10 MB)
	cfg.MaxFileSize, err = getEnvInt64("TD_MAX_FILE_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("TD_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("TD_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// TD_MAX_IMAGE_SIZE — максимальный размер изображения (по умолчанию 2 MB)
	cfg.MaxImageSize, err = getEnvInt64("TD_MAX_IMAGE_SIZE", 2*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("TD_MAX_IMAGE_SIZE: %w", err)
	}
	if cfg.MaxImageSize <= 0 || cfg.MaxImageSize > cfg.MaxFileSize {
		return nil, fmt.Errorf("TD_MAX_IMAGE_SIZE: значение %d должно быть в диапазоне 1..TD_MAX_FILE_SIZE (%d)",
			cfg.MaxImageSize, cfg.MaxFileSize)
	}

	cfg.ThumbnailNaming = getEnvDefault("TD_THUMBNAIL_NAMING", ThumbnailNamingUnique)
	if cfg.ThumbnailNaming != ThumbnailNamingUnique && cfg.ThumbnailNaming != ThumbnailNamingStable {
		return nil, fmt.Errorf("TD_THUMBNAIL_NAMING: недопустимое значение %q, допустимые: unique, stable", cfg.ThumbnailNaming)
	}

	cfg.SyncInterval, err = getEnvDuration("TD_SYNC_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("TD_SYNC_INTERVAL: %w", err)
	}
	cfg.GCInterval, err = getEnvDuration("TD_GC_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("TD_GC_INTERVAL: %w", err)
	}
	if cfg.SyncInterval < 0 || cfg.GCInterval < 0 {
		return nil, fmt.Errorf("TD_SYNC_INTERVAL/TD_GC_INTERVAL: значение не может быть отрицательным")
	}

	cfg.WatchUploads, err = getEnvBool("TD_WATCH_UPLOADS", false)
	if err != nil {
		return nil, fmt.Errorf("TD_WATCH_UPLOADS: %w", err)
	}
	cfg.WatchDebounce, err = getEnvDuration("TD_WATCH_DEBOUNCE", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TD_WATCH_DEBOUNCE: %w", err)
	}

	// TD_JWKS_URL — опционально; без него административный API открыт
	cfg.JWKSUrl = getEnvDefault("TD_JWKS_URL", "")
	cfg.AdminScope = getEnvDefault("TD_JWT_ADMIN_SCOPE", "techdir:admin")

	cfg.JWKSRefreshInterval, err = getEnvDuration("TD_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("TD_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("TD_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TD_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("TD_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TD_JWT_LEEWAY: %w", err)
	}

	// TD_TLS_CERT / TD_TLS_KEY — задаются только парой
	cfg.TLSCert = getEnvDefault("TD_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("TD_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("TD_TLS_CERT и TD_TLS_KEY должны задаваться вместе")
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("TD_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TD_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("TD_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TD_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("TD_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TD_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("TD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TD_SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TD_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("TD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}
	cfg.LogFile = getEnvDefault("TD_LOG_FILE", "")
	if cfg.LogMaxSizeMB, err = getEnvInt("TD_LOG_MAX_SIZE_MB", 100); err != nil {
		return nil, fmt.Errorf("TD_LOG_MAX_SIZE_MB: %w", err)
	}
	if cfg.LogMaxBackups, err = getEnvInt("TD_LOG_MAX_BACKUPS", 5); err != nil {
		return nil, fmt.Errorf("TD_LOG_MAX_BACKUPS: %w", err)
	}
	if cfg.LogMaxAgeDays, err = getEnvInt("TD_LOG_MAX_AGE_DAYS", 30); err != nil {
		return nil, fmt.Errorf("TD_LOG_MAX_AGE_DAYS: %w", err)
	}

	cfg.DephealthCheckInterval, err = getEnvDuration("TD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("TD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("TD_DEPHEALTH_GROUP", "techdir")
	cfg.DephealthDepName = getEnvDefault("TD_DEPHEALTH_DEP_NAME", "admin-jwks")

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// При заданном TD_LOG_FILE записи дублируются в файл с ротацией.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает переменные из .env файла. Отсутствие файла не ошибка.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("TD_ENV_FILE: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("TD_ENV_FILE: ошибка разбора %s: %w", path, err)
	}
	return nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
