// student_cache.go — LRU-кэш страниц списка студентов с TTL.
//
// Ключ записи включает версию кэша. Invalidate увеличивает версию и
// очищает LRU: страница, загруженная параллельно с инвалидацией, будет
// сохранена под старой версией и больше не будет найдена.
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/student-registry/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	listCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sr_list_cache_hits_total",
		Help: "Общее количество попаданий в кэш списка студентов.",
	})
	listCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sr_list_cache_misses_total",
		Help: "Общее количество промахов кэша списка студентов.",
	})
)

// StudentListQuery — параметры страницы списка студентов.
type StudentListQuery struct {
	Page     int
	PageSize int
	Name     string
	Email    string
}

// StudentListPage — страница списка студентов.
type StudentListPage struct {
	Items    []*model.Student `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// StudentListLoader загружает страницу из хранилища при промахе.
type StudentListLoader func(ctx context.Context, q StudentListQuery) (*StudentListPage, error)

// StudentListCache — кэш страниц списка студентов.
type StudentListCache struct {
	cache   *expirable.LRU[string, *StudentListPage]
	version atomic.Uint64
}

// NewStudentListCache создаёт кэш на maxSize страниц с временем жизни ttl.
func NewStudentListCache(maxSize int, ttl time.Duration) *StudentListCache {
	return &StudentListCache{
		cache: expirable.NewLRU[string, *StudentListPage](maxSize, nil, ttl),
	}
}

// GetOrLoad возвращает страницу из кэша или загружает её через load.
// Ошибки загрузки не кэшируются.
func (c *StudentListCache) GetOrLoad(ctx context.Context, q StudentListQuery, load StudentListLoader) (*StudentListPage, error) {
	key := c.key(q)
	if page, ok := c.cache.Get(key); ok {
		listCacheHitsTotal.Inc()
		return page, nil
	}
	listCacheMissesTotal.Inc()

	page, err := load(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, page)
	return page, nil
}

// Invalidate делает все закэшированные страницы недействительными.
func (c *StudentListCache) Invalidate() {
	c.version.Add(1)
	c.cache.Purge()
}

// Version возвращает текущую версию кэша.
func (c *StudentListCache) Version() uint64 {
	return c.version.Load()
}

// Len возвращает количество закэшированных страниц.
func (c *StudentListCache) Len() int {
	return c.cache.Len()
}

func (c *StudentListCache) key(q StudentListQuery) string {
	return fmt.Sprintf("v%d|%d|%d|%s|%s", c.version.Load(), q.Page, q.PageSize, q.Name, q.Email)
}
