// Пакет cache — in-memory кэш контейнеров коллекций.
// Один элемент на ключ коллекции. Экземпляр создаётся явно
// и передаётся в хранилище документов, глобального состояния нет.
// Обёртка над hashicorp/golang-lru/v2.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/techdir/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "td_cache_hits_total",
		Help: "Общее количество попаданий в кэш коллекций.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "td_cache_misses_total",
		Help: "Общее количество промахов кэша коллекций.",
	})
)

// Cache — LRU-кэш контейнеров коллекций.
// Контейнеры в кэше не изменяются на месте: изменение — это замена
// элемента новым контейнером через Set.
type Cache struct {
	lru *lru.Cache[string, *model.Container]
}

// New создаёт кэш на size коллекций.
func New(size int) (*Cache, error) {
	l, err := lru.New[string, *model.Container](size)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания кэша коллекций: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Get возвращает контейнер коллекции.
// Возвращает (контейнер, true) при hit или (nil, false) при miss.
func (c *Cache) Get(key string) (*model.Container, bool) {
	val, ok := c.lru.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или заменяет контейнер коллекции.
func (c *Cache) Set(key string, container *model.Container) {
	c.lru.Add(key, container)
}

// Invalidate удаляет контейнер коллекции из кэша.
func (c *Cache) Invalidate(key string) {
	c.lru.Remove(key)
}

// Clear очищает кэш полностью.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len возвращает число закэшированных коллекций.
func (c *Cache) Len() int {
	return c.lru.Len()
}
