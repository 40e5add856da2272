package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownTransaction — в журнале нет транзакции с таким id.
var ErrUnknownTransaction = errors.New("транзакция журнала не найдена")

// Journal — append-only журнал операций.
// Сначала в журнал добавляется строка pending, затем выполняется
// операция, затем добавляется строка committed или rolled_back.
// Pending транзакции, найденные при старте, означают прерванную операцию.
type Journal struct {
	// dir — директория журнала
	dir string
	// mu сериализует запись и чтение файла журнала
	mu sync.Mutex
	// logger — логгер
	logger *slog.Logger
	// now — источник времени
	now func() time.Time
}

// New создаёт журнал. Проверяет и создаёт директорию,
// если она не существует.
func New(dir string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию журнала %s: %w", dir, err)
	}

	// Проверяем доступность на запись через temp файл
	testFile := filepath.Join(dir, ".journal_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория журнала %s недоступна для записи: %w", dir, err)
	}
	os.Remove(testFile)

	return &Journal{
		dir:    dir,
		logger: logger.With(slog.String("component", "journal")),
		now:    time.Now,
	}, nil
}

// Path возвращает путь к файлу журнала.
func (j *Journal) Path() string {
	return filepath.Join(j.dir, FileName)
}

// Start добавляет в журнал новую транзакцию со статусом pending.
func (j *Journal) Start(op OperationType, entityID, target string) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := &Entry{
		TransactionID: uuid.New().String(),
		Operation:     op,
		Status:        StatusPending,
		EntityID:      entityID,
		Target:        target,
		StartedAt:     j.now().UTC(),
	}
	if err := j.appendEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось начать транзакцию журнала: %w", err)
	}

	j.logger.Debug("Транзакция журнала начата",
		slog.String("tx_id", entry.TransactionID),
		slog.String("operation", string(op)),
		slog.String("entity_id", entityID),
	)
	return entry, nil
}

// Commit завершает транзакцию.
func (j *Journal) Commit(txID string) error {
	return j.finish(txID, StatusCommitted, "")
}

// Rollback отменяет транзакцию с указанием причины.
func (j *Journal) Rollback(txID, reason string) error {
	return j.finish(txID, StatusRolledBack, reason)
}

func (j *Journal) finish(txID string, status TransactionStatus, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, err := j.load()
	if err != nil {
		return err
	}
	entry, ok := state[txID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, txID)
	}
	if entry.Status != StatusPending {
		return fmt.Errorf("транзакция журнала %s имеет статус %s, ожидается %s", txID, entry.Status, StatusPending)
	}

	now := j.now().UTC()
	entry.Status = status
	entry.CompletedAt = &now
	entry.Reason = reason
	if err := j.appendEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить транзакцию журнала %s: %w", txID, err)
	}

	j.logger.Debug("Транзакция журнала завершена",
		slog.String("tx_id", txID),
		slog.String("status", string(status)),
		slog.Duration("duration", now.Sub(entry.StartedAt)),
	)
	return nil
}

// Get возвращает актуальное состояние транзакции.
func (j *Journal) Get(txID string) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, err := j.load()
	if err != nil {
		return nil, err
	}
	entry, ok := state[txID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, txID)
	}
	return entry, nil
}

// RecoverPending возвращает транзакции, оставшиеся в статусе pending,
// в порядке их начала. Вызывается при старте сервиса.
func (j *Journal) RecoverPending() ([]*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, order, err := j.loadOrdered()
	if err != nil {
		return nil, err
	}
	var pending []*Entry
	for _, id := range order {
		entry := state[id]
		if entry.Status != StatusPending {
			continue
		}
		pending = append(pending, entry)
		j.logger.Warn("Обнаружена незавершённая транзакция журнала",
			slog.String("tx_id", entry.TransactionID),
			slog.String("operation", string(entry.Operation)),
			slog.String("entity_id", entry.EntityID),
			slog.String("target", entry.Target),
			slog.Time("started_at", entry.StartedAt),
		)
	}
	return pending, nil
}

// Compact переписывает журнал, оставляя только pending транзакции.
// Возвращает число удалённых завершённых транзакций.
func (j *Journal) Compact() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, order, err := j.loadOrdered()
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	cleaned := 0
	for _, id := range order {
		entry := state[id]
		if entry.Status != StatusPending {
			cleaned++
			continue
		}
		line, err := json.Marshal(entry)
		if err != nil {
			return 0, fmt.Errorf("ошибка сериализации: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if cleaned == 0 {
		return 0, nil
	}

	if err := writeAtomic(j.Path(), buf.Bytes()); err != nil {
		return 0, err
	}
	j.logger.Info("Сжатие журнала завершено", slog.Int("cleaned", cleaned))
	return cleaned, nil
}

// appendEntry дописывает строку в журнал с fsync.
func (j *Journal) appendEntry(entry *Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}
	f, err := os.OpenFile(j.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка открытия журнала: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	return f.Close()
}

func (j *Journal) load() (map[string]*Entry, error) {
	state, _, err := j.loadOrdered()
	return state, err
}

// loadOrdered воспроизводит журнал: последнее состояние каждой транзакции
// и порядок первого появления. Повреждённые строки (например, недописанная
// последняя строка после сбоя) пропускаются с предупреждением.
func (j *Journal) loadOrdered() (map[string]*Entry, []string, error) {
	state := make(map[string]*Entry)
	var order []string

	f, err := os.Open(j.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil, nil
		}
		return nil, nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.TransactionID == "" {
			j.logger.Warn("Пропущена повреждённая строка журнала", slog.Int("line", lineNo))
			continue
		}
		if _, seen := state[entry.TransactionID]; !seen {
			order = append(order, entry.TransactionID)
		}
		state[entry.TransactionID] = &entry
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	return state, order, nil
}

// writeAtomic записывает файл атомарно.
// Паттерн: temp файл → fsync → atomic rename.
func writeAtomic(targetPath string, data []byte) error {
	tmpPath := targetPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Dir возвращает путь к директории журнала.
func (j *Journal) Dir() string {
	return j.dir
}
