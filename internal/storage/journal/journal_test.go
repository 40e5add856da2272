package journal

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(filepath.Join(t.TempDir(), "journal"), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания журнала: %v", err)
	}
	return j
}

// countLines возвращает число строк в файле журнала.
func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0
		}
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

// TestNew_CreatesDirectory проверяет, что New создаёт директорию журнала.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "journal")

	j, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("ожидалось успешное создание журнала, получена ошибка: %v", err)
	}
	if j.Dir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, j.Dir())
	}
	if j.Path() != filepath.Join(dir, FileName) {
		t.Errorf("неверный путь файла журнала: %s", j.Path())
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("директория журнала не создана: %v", err)
	}
}

// TestNew_ReadOnlyDir проверяет ошибку при недоступной для записи директории.
func TestNew_ReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root игнорирует права доступа")
	}
	dir := filepath.Join(t.TempDir(), "journal")
	if err := os.MkdirAll(dir, 0o550); err != nil {
		t.Fatalf("не удалось создать директорию: %v", err)
	}

	if _, err := New(dir, testLogger()); err == nil {
		t.Fatal("ожидалась ошибка при недоступной для записи директории")
	}
}

// TestStart проверяет создание новой транзакции.
func TestStart(t *testing.T) {
	j := newTestJournal(t)

	entry, err := j.Start(OpMediaDelete, "tech-1", "/uploads/technicians/Ana/a.jpg")
	if err != nil {
		t.Fatalf("ошибка создания транзакции: %v", err)
	}
	if entry.TransactionID == "" {
		t.Error("TransactionID не должен быть пустым")
	}
	if entry.Operation != OpMediaDelete || entry.Status != StatusPending {
		t.Errorf("неверные поля: %+v", entry)
	}
	if entry.EntityID != "tech-1" || entry.Target != "/uploads/technicians/Ana/a.jpg" {
		t.Errorf("неверные EntityID/Target: %+v", entry)
	}
	if entry.StartedAt.IsZero() || entry.CompletedAt != nil {
		t.Errorf("неверные времена: %+v", entry)
	}
	if n := countLines(t, j.Path()); n != 1 {
		t.Errorf("ожидалась 1 строка в журнале, получено %d", n)
	}
}

// TestCommit проверяет завершение транзакции: добавляется новая строка.
func TestCommit(t *testing.T) {
	j := newTestJournal(t)
	entry, err := j.Start(OpEntityDelete, "tech-1", "Ana")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := j.Commit(entry.TransactionID); err != nil {
		t.Fatalf("ошибка коммита: %v", err)
	}

	got, err := j.Get(entry.TransactionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCommitted {
		t.Errorf("ожидался статус %s, получен %s", StatusCommitted, got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt должен быть установлен")
	}
	if got.Target != "Ana" || got.Operation != OpEntityDelete {
		t.Errorf("поля транзакции потеряны: %+v", got)
	}
	if n := countLines(t, j.Path()); n != 2 {
		t.Errorf("ожидалось 2 строки в журнале, получено %d", n)
	}
}

// TestRollback проверяет отмену транзакции с причиной.
func TestRollback(t *testing.T) {
	j := newTestJournal(t)
	entry, _ := j.Start(OpMediaDelete, "tech-1", "/uploads/technicians/Ana/a.jpg")

	if err := j.Rollback(entry.TransactionID, "файл не найден"); err != nil {
		t.Fatalf("ошибка отката: %v", err)
	}
	got, err := j.Get(entry.TransactionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusRolledBack || got.Reason != "файл не найден" {
		t.Errorf("неверное состояние после отката: %+v", got)
	}
}

// TestFinish_NonPending проверяет, что завершённую транзакцию нельзя завершить повторно.
func TestFinish_NonPending(t *testing.T) {
	j := newTestJournal(t)
	entry, _ := j.Start(OpMediaDelete, "tech-1", "x")
	if err := j.Commit(entry.TransactionID); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := j.Commit(entry.TransactionID); err == nil {
		t.Error("ожидалась ошибка при повторном коммите")
	}
	if err := j.Rollback(entry.TransactionID, ""); err == nil {
		t.Error("ожидалась ошибка при откате завершённой транзакции")
	}
}

// TestUnknownTransaction проверяет ошибку для несуществующей транзакции.
func TestUnknownTransaction(t *testing.T) {
	j := newTestJournal(t)

	if _, err := j.Get("missing"); !errors.Is(err, ErrUnknownTransaction) {
		t.Errorf("Get: ожидалась ErrUnknownTransaction, получено %v", err)
	}
	if err := j.Commit("missing"); !errors.Is(err, ErrUnknownTransaction) {
		t.Errorf("Commit: ожидалась ErrUnknownTransaction, получено %v", err)
	}
}

// TestRecoverPending проверяет поиск незавершённых транзакций после рестарта.
func TestRecoverPending(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	j, err := New(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	first, _ := j.Start(OpMediaDelete, "tech-1", "a")
	done, _ := j.Start(OpMediaDelete, "tech-2", "b")
	second, _ := j.Start(OpEntityDelete, "tech-3", "C")
	if err := j.Commit(done.TransactionID); err != nil {
		t.Fatal(err)
	}

	// Новый экземпляр читает тот же файл
	j2, err := New(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	pending, err := j2.RecoverPending()
	if err != nil {
		t.Fatalf("RecoverPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("ожидалось 2 pending транзакции, получено %d", len(pending))
	}
	if pending[0].TransactionID != first.TransactionID || pending[1].TransactionID != second.TransactionID {
		t.Errorf("неверный порядок pending транзакций")
	}
}

// TestRecoverPending_Empty проверяет пустой журнал.
func TestRecoverPending_Empty(t *testing.T) {
	j := newTestJournal(t)

	pending, err := j.RecoverPending()
	if err != nil {
		t.Fatalf("RecoverPending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("ожидалось 0 pending, получено %d", len(pending))
	}
}

// TestRecoverPending_SkipsCorruptLine проверяет пропуск недописанной строки.
func TestRecoverPending_SkipsCorruptLine(t *testing.T) {
	j := newTestJournal(t)
	entry, _ := j.Start(OpMediaDelete, "tech-1", "a")

	f, err := os.OpenFile(j.Path(), os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"transaction_id":"broken","stat` + "\n")
	f.Close()

	pending, err := j.RecoverPending()
	if err != nil {
		t.Fatalf("RecoverPending: %v", err)
	}
	if len(pending) != 1 || pending[0].TransactionID != entry.TransactionID {
		t.Errorf("ожидалась одна pending транзакция %s, получено %+v", entry.TransactionID, pending)
	}
}

// TestCompact проверяет удаление завершённых транзакций из файла.
func TestCompact(t *testing.T) {
	j := newTestJournal(t)

	keep, _ := j.Start(OpMediaDelete, "tech-1", "a")
	c1, _ := j.Start(OpMediaDelete, "tech-2", "b")
	c2, _ := j.Start(OpEntityDelete, "tech-3", "C")
	j.Commit(c1.TransactionID)
	j.Rollback(c2.TransactionID, "ошибка")

	cleaned, err := j.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("ожидалось удаление 2 транзакций, получено %d", cleaned)
	}
	if n := countLines(t, j.Path()); n != 1 {
		t.Errorf("после сжатия ожидалась 1 строка, получено %d", n)
	}
	if _, err := j.Get(keep.TransactionID); err != nil {
		t.Errorf("pending транзакция потеряна: %v", err)
	}
	if _, err := os.Stat(j.Path() + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Error("временный файл не должен оставаться")
	}

	// Повторное сжатие ничего не меняет
	cleaned, err = j.Compact()
	if err != nil || cleaned != 0 {
		t.Errorf("повторный Compact = %d, %v", cleaned, err)
	}
}

// TestConcurrentAccess проверяет параллельную работу с журналом.
func TestConcurrentAccess(t *testing.T) {
	j := newTestJournal(t)

	const n = 30
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := j.Start(OpMediaDelete, "tech", "x")
			if err != nil {
				errs <- err
				return
			}
			if err := j.Commit(entry.TransactionID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("ошибка в горутине: %v", err)
	}

	if n2 := countLines(t, j.Path()); n2 != 2*n {
		t.Errorf("ожидалось %d строк, получено %d", 2*n, n2)
	}
	pending, _ := j.RecoverPending()
	if len(pending) != 0 {
		t.Errorf("ожидалось 0 pending, получено %d", len(pending))
	}
}
