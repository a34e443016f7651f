// wikiset_cache.go — кэш принадлежности сайта к наборам сайтов.
// Обёртка над hashicorp/golang-lru/v2/expirable поверх wikiset.InScope.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/centralauth/internal/domain/model"
	"github.com/bigkaa/centralauth/internal/domain/wikiset"
)

// Prometheus-метрики кэша наборов.
var (
	wikisetCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ca_wikiset_cache_hits_total",
		Help: "Общее количество попаданий в кэш принадлежности сайта к наборам.",
	})
	wikisetCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ca_wikiset_cache_misses_total",
		Help: "Общее количество промахов кэша принадлежности сайта к наборам.",
	})
)

// wikisetKey — ключ кэша: набор и сайт.
type wikisetKey struct {
	wikisetID int64
	siteID    string
}

// WikisetCache — LRU-кэш результатов wikiset.InScope с автоматическим TTL.
// TTL ограничивает время, в течение которого изменение списка сайтов
// набора может быть не видно.
type WikisetCache struct {
	cache *expirable.LRU[wikisetKey, bool]
}

// NewWikisetCache создаёт кэш с указанным максимальным размером и TTL.
func NewWikisetCache(maxSize int, ttl time.Duration) *WikisetCache {
	return &WikisetCache{cache: expirable.NewLRU[wikisetKey, bool](maxSize, nil, ttl)}
}

// InScope возвращает принадлежность сайта набору, вычисляя её при промахе.
func (c *WikisetCache) InScope(policy *model.Wikiset, siteID string) bool {
	if policy == nil {
		return false
	}
	key := wikisetKey{wikisetID: policy.ID, siteID: siteID}
	if val, ok := c.cache.Get(key); ok {
		wikisetCacheHitsTotal.Inc()
		return val
	}
	wikisetCacheMissesTotal.Inc()

	val := wikiset.InScope(policy, siteID)
	c.cache.Add(key, val)
	return val
}

// Len возвращает количество записей в кэше.
func (c *WikisetCache) Len() int {
	return c.cache.Len()
}

// Purge очищает кэш.
func (c *WikisetCache) Purge() {
	c.cache.Purge()
}
