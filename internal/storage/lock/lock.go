// Пакет lock — эксклюзивная блокировка директории данных через flock().
//
// Каталог рассчитан на один обслуживающий процесс: документное хранилище
// держит кэш коллекций в памяти и не видит записи других процессов.
// Процесс, захвативший {dataDir}/.techdir.lock, записывает в файл
// блокировки сведения о себе; остальные получают ErrLocked с этими
// сведениями.
package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FileName — имя файла блокировки в директории данных.
const FileName = ".techdir.lock"

// ErrLocked — директория данных уже занята другим процессом.
var ErrLocked = errors.New("директория данных занята другим процессом")

// Lock — захваченная блокировка директории данных.
type Lock struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// Acquire пытается захватить блокировку без ожидания.
// owner — описание владельца (например, "serve :8080"), записывается
// в файл блокировки вместе с hostname, pid и временем захвата.
func Acquire(dataDir, owner string, logger *slog.Logger) (*Lock, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	lockPath := filepath.Join(dataDir, FileName)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть lock-файл %s: %w", lockPath, err)
	}

	// Неблокирующая попытка захватить эксклюзивную блокировку
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			holder := Holder(dataDir)
			if holder == "" {
				return nil, ErrLocked
			}
			return nil, fmt.Errorf("%w: %s", ErrLocked, holder)
		}
		return nil, fmt.Errorf("ошибка flock %s: %w", lockPath, err)
	}

	l := &Lock{
		path:   lockPath,
		logger: logger.With(slog.String("component", "lock")),
		file:   f,
	}
	if err := l.writeInfo(owner); err != nil {
		l.logger.Warn("Не удалось записать сведения о владельце блокировки",
			slog.String("error", err.Error()),
		)
	}
	l.logger.Info("Блокировка директории данных получена", slog.String("path", lockPath))
	return l, nil
}

// Release снимает блокировку. Повторный вызов безопасен.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	_ = l.file.Truncate(0)
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
	l.logger.Info("Блокировка директории данных освобождена")
}

// Path возвращает путь к файлу блокировки.
func (l *Lock) Path() string {
	return l.path
}

// Holder возвращает сведения о текущем владельце блокировки
// или пустую строку, если они недоступны.
func Holder(dataDir string) string {
	data, err := os.ReadFile(filepath.Join(dataDir, FileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// writeInfo записывает сведения о владельце в сам файл блокировки.
// Файл не переименовывается: flock привязан к его inode.
func (l *Lock) writeInfo(owner string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	info := fmt.Sprintf("%s host=%s pid=%d since=%s",
		owner, hostname, os.Getpid(), time.Now().UTC().Format(time.RFC3339))

	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("ошибка очистки lock-файла: %w", err)
	}
	if _, err := l.file.WriteAt([]byte(info), 0); err != nil {
		return fmt.Errorf("ошибка записи lock-файла: %w", err)
	}
	return l.file.Sync()
}
