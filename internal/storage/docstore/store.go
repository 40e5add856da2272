// Пакет docstore — встроенное хранилище документов поверх JSON-файлов коллекций.
//
// Каждая коллекция — один файл (<key>.json) и один элемент кэша.
// Запись выполняется синхронно: файл → кэш, до возврата из метода
// (read-your-writes внутри процесса). Изменения одной коллекции
// сериализуются мьютексом коллекции, что исключает потерю обновлений
// при конкурентных read-modify-write.
//
// Межпроцессной координации нет: каталог данных должен обслуживаться
// одним процессом (см. пакет lock).
package docstore

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/techdir/internal/domain/model"
	"github.com/bigkaa/techdir/internal/storage/cache"
	"github.com/bigkaa/techdir/internal/storage/codec"
)

// DefaultPageSize — размер страницы при некорректном limit.
const DefaultPageSize = 10

// Prometheus-метрики хранилища.
var storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "td_docstore_operations_total",
	Help: "Количество операций хранилища документов.",
}, []string{"collection", "operation", "status"})

// Store — хранилище документов.
type Store struct {
	codec  *codec.Codec
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

// New создаёт хранилище поверх codec с кэшем c.
func New(cd *codec.Codec, c *cache.Cache, logger *slog.Logger) *Store {
	return &Store{
		codec:  cd,
		cache:  c,
		logger: logger.With(slog.String("component", "docstore")),
		now:    time.Now,
		locks:  make(map[string]*sync.RWMutex),
	}
}

// WithClock задаёт источник времени для меток и идентификаторов.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// lockFor возвращает мьютекс коллекции.
func (s *Store) lockFor(key string) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[key] = l
	}
	return l
}

// load возвращает контейнер из кэша или с диска.
// Вызывается под эксклюзивной блокировкой коллекции.
func (s *Store) load(key string) (*model.Container, error) {
	if c, ok := s.cache.Get(key); ok {
		return c, nil
	}
	c, err := s.codec.Read(key)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, c)
	return c, nil
}

// snapshot возвращает текущий неизменяемый контейнер коллекции.
// Результат нельзя модифицировать: записи копируются при выдаче.
func (s *Store) snapshot(key string) (*model.Container, error) {
	l := s.lockFor(key)
	l.RLock()
	if c, ok := s.cache.Get(key); ok {
		l.RUnlock()
		return c, nil
	}
	l.RUnlock()

	l.Lock()
	defer l.Unlock()
	return s.load(key)
}

// mutate выполняет read-modify-write коллекции под эксклюзивной блокировкой.
// fn получает копию контейнера; changed=false — запись на диск не нужна.
// Кэш заменяется только после успешной записи файла.
func (s *Store) mutate(key, op string, fn func(c *model.Container) (bool, error)) error {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()

	current, err := s.load(key)
	if err != nil {
		s.observe(key, op, err)
		return err
	}

	next := current.Clone()
	changed, err := fn(next)
	if err != nil || !changed {
		s.observe(key, op, err)
		return err
	}

	if err := s.codec.Write(key, next); err != nil {
		// Состояние файла неизвестно — следующее чтение перечитает диск
		s.cache.Invalidate(key)
		s.observe(key, op, err)
		return fmt.Errorf("ошибка сохранения коллекции %s: %w", key, err)
	}
	s.cache.Set(key, next)
	s.observe(key, op, nil)
	return nil
}

func (s *Store) observe(key, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeOpsTotal.WithLabelValues(key, op, status).Inc()
}

// Create добавляет запись в коллекцию.
// Присваивает id (если не задан) и метки createdAt/updatedAt.
// Возвращает сохранённую запись.
func (s *Store) Create(key string, fields map[string]any) (model.Record, error) {
	key = model.NormalizeKey(key)
	rec, err := model.NormalizeFields(fields)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if rec.ID() == "" {
		rec[model.FieldID] = newID(now)
	}
	ts := model.FormatTime(now)
	rec[model.FieldCreatedAt] = ts
	rec[model.FieldUpdatedAt] = ts

	err = s.mutate(key, "create", func(c *model.Container) (bool, error) {
		if c.Schema.Singleton && len(c.Records) > 0 {
			return false, fmt.Errorf("%w: коллекция %s допускает одну запись", ErrConflict, key)
		}
		if c.IndexOf(rec.ID()) >= 0 {
			return false, fmt.Errorf("%w: id %s уже существует в %s", ErrConflict, rec.ID(), key)
		}
		c.Records = append(c.Records, rec)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Запись создана",
		slog.String("collection", key),
		slog.String("id", rec.ID()),
	)
	return rec.Clone(), nil
}

// FindByID возвращает копию записи по id или ErrNotFound.
func (s *Store) FindByID(key, id string) (model.Record, error) {
	key = model.NormalizeKey(key)
	c, err := s.snapshot(key)
	if err != nil {
		return nil, err
	}
	idx := c.IndexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, key, id)
	}
	return c.Records[idx].Clone(), nil
}

// FindAll возвращает копии записей, удовлетворяющих предикату
// (nil — все записи), в порядке вставки.
func (s *Store) FindAll(key string, pred model.Predicate) ([]model.Record, error) {
	key = model.NormalizeKey(key)
	c, err := s.snapshot(key)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(c.Records))
	for _, r := range c.Records {
		if pred == nil || pred(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// FindWithPagination применяет предикат, считает total по отфильтрованному
// набору и возвращает страницу [(page-1)*limit, page*limit).
// Страницы нумеруются с 1; page < 1 трактуется как 1, limit < 1 — DefaultPageSize.
// Страница за пределами набора — пустой Data с корректным Total.
func (s *Store) FindWithPagination(key string, page, limit int, pred model.Predicate) (*model.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	all, err := s.FindAll(key, pred)
	if err != nil {
		return nil, err
	}

	result := &model.Page{Data: []model.Record{}, Total: len(all), Page: page, Limit: limit}
	// Номер последней страницы сравнивается до умножения: (page-1)*limit
	// переполняется при больших page и limit
	if len(all) == 0 || page-1 > (len(all)-1)/limit {
		return result, nil
	}
	start := (page - 1) * limit
	end := len(all)
	if limit < end-start {
		end = start + limit
	}
	result.Data = all[start:end]
	return result, nil
}

// Count возвращает число записей, удовлетворяющих предикату.
func (s *Store) Count(key string, pred model.Predicate) (int, error) {
	key = model.NormalizeKey(key)
	c, err := s.snapshot(key)
	if err != nil {
		return 0, err
	}
	if pred == nil {
		return len(c.Records), nil
	}
	n := 0
	for _, r := range c.Records {
		if pred(r) {
			n++
		}
	}
	return n, nil
}

// Update сливает partial в запись (замена полей верхнего уровня),
// обновляет updatedAt и сохраняет коллекцию.
// Поля id и createdAt в partial игнорируются.
func (s *Store) Update(key, id string, partial map[string]any) (model.Record, error) {
	key = model.NormalizeKey(key)
	patch, err := model.NormalizeFields(partial)
	if err != nil {
		return nil, err
	}
	delete(patch, model.FieldID)
	delete(patch, model.FieldCreatedAt)
	delete(patch, model.FieldUpdatedAt)

	return s.Modify(key, id, func(rec model.Record) (bool, error) {
		for k, v := range patch {
			rec[k] = v
		}
		return true, nil
	})
}

// Modify выполняет атомарное изменение одной записи под блокировкой коллекции.
// fn изменяет переданную копию записи на месте и сообщает, было ли изменение;
// без изменений файл не перезаписывается. Попытки изменить id или createdAt
// отменяются. Возвращает итоговую запись.
func (s *Store) Modify(key, id string, fn func(rec model.Record) (bool, error)) (model.Record, error) {
	key = model.NormalizeKey(key)
	var result model.Record

	err := s.mutate(key, "update", func(c *model.Container) (bool, error) {
		idx := c.IndexOf(id)
		if idx < 0 {
			return false, fmt.Errorf("%w: %s/%s", ErrNotFound, key, id)
		}
		rec := c.Records[idx]
		createdAt := rec[model.FieldCreatedAt]
		prevUpdated := rec.String(model.FieldUpdatedAt)

		changed, err := fn(rec)
		if err != nil {
			return false, err
		}
		if !changed {
			result = rec.Clone()
			return false, nil
		}

		normalized, err := model.NormalizeFields(rec)
		if err != nil {
			return false, err
		}
		normalized[model.FieldID] = id
		if createdAt != nil {
			normalized[model.FieldCreatedAt] = createdAt
		}
		// updatedAt не убывает даже при откате часов
		ts := model.FormatTime(s.now())
		if prevUpdated > ts {
			ts = prevUpdated
		}
		normalized[model.FieldUpdatedAt] = ts

		c.Records[idx] = normalized
		result = normalized.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete удаляет запись по id или возвращает ErrNotFound.
func (s *Store) Delete(key, id string) error {
	key = model.NormalizeKey(key)
	err := s.mutate(key, "delete", func(c *model.Container) (bool, error) {
		idx := c.IndexOf(id)
		if idx < 0 {
			return false, fmt.Errorf("%w: %s/%s", ErrNotFound, key, id)
		}
		c.Records = append(c.Records[:idx], c.Records[idx+1:]...)
		return true, nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("Запись удалена",
		slog.String("collection", key),
		slog.String("id", id),
	)
	return nil
}

// Invalidate сбрасывает кэш одной коллекции (например, после ручной
// правки файла). Следующее чтение загрузит файл с диска.
func (s *Store) Invalidate(key string) {
	key = model.NormalizeKey(key)
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()
	s.cache.Invalidate(key)
}

// ClearCache сбрасывает кэш всех коллекций.
func (s *Store) ClearCache() {
	s.cache.Clear()
	s.logger.Info("Кэш коллекций очищен")
}

// Collections возвращает ключи коллекций, существующих на диске.
func (s *Store) Collections() ([]string, error) {
	return s.codec.Keys()
}

// newID формирует id записи: время в миллисекундах (base36) + случайный суффикс.
func newID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36) + uuid.New().String()[:8]
}
