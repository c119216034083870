// Пакет index — индекс кэша: fingerprint → запись о закэшированном исходнике.
//
// Индекс только хранит записи с TTL и не проверяет файловую систему:
// наличие слота на диске проверяет вызывающий код, запись без файла
// считается промахом.
//
// Реализации:
//   - MemoryIndex — in-memory LRU с TTL, переживает рестарт через attr.json
//   - RedisIndex — хэши aview:file:<fingerprint> в Redis
package index

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/docview/internal/domain/model"
)

// Prometheus-метрики индекса.
var (
	indexHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_cache_index_hits_total",
		Help: "Общее количество попаданий в индекс кэша.",
	}, []string{"backend"})
	indexMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_cache_index_misses_total",
		Help: "Общее количество промахов индекса кэша.",
	}, []string{"backend"})
	indexErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_cache_index_errors_total",
		Help: "Общее количество ошибок обращения к индексу кэша.",
	}, []string{"backend", "op"})
)

// Index — хранилище записей кэша с TTL. Последняя запись побеждает.
type Index interface {
	// Get возвращает запись по fingerprint. ok=false, если записи нет или TTL истёк.
	Get(ctx context.Context, fingerprint string) (entry *model.CacheEntry, ok bool, err error)
	// Put сохраняет запись с указанным TTL.
	Put(ctx context.Context, entry *model.CacheEntry, ttl time.Duration) error
	// Delete удаляет запись. Отсутствие записи — не ошибка.
	Delete(ctx context.Context, fingerprint string) error
	// Ping проверяет доступность хранилища индекса.
	Ping(ctx context.Context) error
	// Backend — имя реализации для логов и health.
	Backend() string
}
