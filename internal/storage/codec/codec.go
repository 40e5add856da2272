// Пакет codec — чтение и запись файлов коллекций (<key>.json).
// Файл коллекции — JSON-объект с полем, содержащим массив записей
// (или один объект для singleton-коллекций).
// Все операции записи выполняются атомарно: temp → fsync → rename.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bigkaa/techdir/internal/domain/model"
)

// FileSuffix — расширение файла коллекции.
const FileSuffix = ".json"

var (
	// ErrMalformed — содержимое файла коллекции не удалось разобрать.
	ErrMalformed = errors.New("содержимое коллекции повреждено")
	// ErrIO — ошибка файловой системы при чтении или записи коллекции.
	ErrIO = errors.New("ошибка ввода-вывода коллекции")
)

// Codec читает и пишет контейнеры коллекций в директории dir.
type Codec struct {
	dir string
	now func() time.Time
}

// New создаёт Codec для директории коллекций.
func New(dir string) *Codec {
	return &Codec{dir: dir, now: time.Now}
}

// WithClock задаёт источник времени (для меток в контейнерах по умолчанию).
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Dir возвращает директорию коллекций.
func (c *Codec) Dir() string {
	return c.dir
}

// Path возвращает путь к файлу коллекции.
// Пример: "technicians" → "<dir>/technicians.json"
func (c *Codec) Path(key string) string {
	return filepath.Join(c.dir, model.NormalizeKey(key)+FileSuffix)
}

// Read загружает контейнер коллекции.
// Отсутствующий файл не ошибка: контейнер по умолчанию записывается
// на диск и возвращается. Невалидное содержимое — ErrMalformed,
// файл при этом не перезаписывается.
func (c *Codec) Read(key string) (*model.Container, error) {
	path := c.Path(key)
	schema := model.SchemaFor(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			def := model.DefaultContainer(schema.Key, c.now())
			if err := c.Write(schema.Key, def); err != nil {
				return nil, err
			}
			return def, nil
		}
		return nil, fmt.Errorf("%w: чтение %s: %w", ErrIO, filepath.Base(path), err)
	}

	container, err := Decode(schema, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return container, nil
}

// Write атомарно записывает контейнер коллекции.
// Паттерн: JSON → temp файл → fsync → atomic rename.
func (c *Codec) Write(key string, container *model.Container) error {
	data, err := Encode(container)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return fmt.Errorf("%w: не удалось создать директорию %s: %w", ErrIO, c.dir, err)
	}

	path := c.Path(key)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: ошибка создания временного файла: %w", ErrIO, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка записи: %w", ErrIO, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка fsync: %w", ErrIO, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка закрытия файла: %w", ErrIO, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: ошибка атомарного переименования: %w", ErrIO, err)
	}

	return nil
}

// Keys возвращает ключи коллекций, файлы которых существуют на диске.
// Отсутствующая директория — пустой список.
func (c *Codec) Keys() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: ошибка чтения директории %s: %w", ErrIO, c.dir, err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileSuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), FileSuffix))
	}
	sort.Strings(keys)
	return keys, nil
}

// Encode сериализует контейнер. Дополнительные поля верхнего уровня
// сохраняются рядом с полем записей.
func Encode(container *model.Container) ([]byte, error) {
	top := make(map[string]any, len(container.Extra)+1)
	for k, v := range container.Extra {
		top[k] = v
	}

	schema := container.Schema
	switch {
	case schema.Singleton && len(container.Records) == 0:
		top[schema.Field] = nil
	case schema.Singleton:
		top[schema.Field] = container.Records[0]
	default:
		records := container.Records
		if records == nil {
			records = []model.Record{}
		}
		top[schema.Field] = records
	}

	data, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации коллекции %s: %w", schema.Key, err)
	}
	return data, nil
}

// Decode разбирает содержимое файла коллекции по схеме.
// Отсутствующее поле записей трактуется как пустая коллекция;
// поле неверного типа — ErrMalformed.
func Decode(schema model.Schema, data []byte) (*model.Container, error) {
	var top map[string]json.RawMessage
	if err := model.DecodeJSON(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: ожидался JSON-объект", ErrMalformed)
	}

	container := &model.Container{Schema: schema, Records: []model.Record{}}
	raw, ok := top[schema.Field]
	delete(top, schema.Field)
	if len(top) > 0 {
		container.Extra = top
	}
	if !ok || string(raw) == "null" {
		return container, nil
	}

	if schema.Singleton {
		var rec model.Record
		if err := model.DecodeJSON(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: поле %q: %w", ErrMalformed, schema.Field, err)
		}
		container.Records = append(container.Records, rec)
		return container, nil
	}

	var records []model.Record
	if err := model.DecodeJSON(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: поле %q: %w", ErrMalformed, schema.Field, err)
	}
	for i, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("%w: поле %q: элемент %d не объект", ErrMalformed, schema.Field, i)
		}
	}
	container.Records = records
	return container, nil
}
