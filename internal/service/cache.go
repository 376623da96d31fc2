// cache.go — LRU-кэш разрешения uid → локальная сущность на приёмном
// пути. Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_cache_hits_total",
		Help: "Количество попаданий в LRU-кэш разрешения uid.",
	}, []string{"cache"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_cache_misses_total",
		Help: "Количество промахов LRU-кэша разрешения uid.",
	}, []string{"cache"})
)

// ResolveCache — per-instance кэш разрешения журналов и пользователей
// по uid. Приёмный путь разрешает одни и те же uid на каждой записи
// пакета, кэш срезает повторные обращения к БД.
type ResolveCache struct {
	journals *expirable.LRU[string, *model.Journal]
	users    *expirable.LRU[string, *model.User]
}

// NewResolveCache создаёт кэш с указанным размером и TTL на каждую
// из двух таблиц.
func NewResolveCache(maxSize int, ttl time.Duration) *ResolveCache {
	return &ResolveCache{
		journals: expirable.NewLRU[string, *model.Journal](maxSize, nil, ttl),
		users:    expirable.NewLRU[string, *model.User](maxSize, nil, ttl),
	}
}

// GetJournal возвращает журнал из кэша по uid.
func (c *ResolveCache) GetJournal(uid string) (*model.Journal, bool) {
	j, ok := c.journals.Get(uid)
	count("journal", ok)
	return j, ok
}

// SetJournal добавляет журнал в кэш.
func (c *ResolveCache) SetJournal(j *model.Journal) {
	c.journals.Add(j.UID, j)
}

// GetUser возвращает пользователя из кэша по uid.
func (c *ResolveCache) GetUser(uid string) (*model.User, bool) {
	u, ok := c.users.Get(uid)
	count("user", ok)
	return u, ok
}

// SetUser добавляет пользователя в кэш.
func (c *ResolveCache) SetUser(u *model.User) {
	c.users.Add(u.UID, u)
}

func count(cache string, hit bool) {
	if hit {
		cacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		cacheMissesTotal.WithLabelValues(cache).Inc()
	}
}
