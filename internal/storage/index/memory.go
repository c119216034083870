package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/storage/attr"
)

// MemoryIndex — in-memory индекс на expirable LRU.
//
// LRU ограничивает число записей и вытесняет их по maxTTL, точный срок
// каждой записи хранится в CacheEntry.ExpiresAt и проверяется в Get.
// Каждая запись дублируется в attr.json рядом со слотом кэша, при старте
// индекс восстанавливается через BuildFromDir.
type MemoryIndex struct {
	cache   *expirable.LRU[string, *model.CacheEntry]
	persist bool
	now     func() time.Time

	mu     sync.RWMutex
	ready  bool
	logger *slog.Logger
}

// NewMemoryIndex создаёт индекс.
// maxEntries — максимальное количество записей, maxTTL — верхняя граница TTL.
// persist=true включает запись attr.json рядом со слотом.
func NewMemoryIndex(maxEntries int, maxTTL time.Duration, persist bool, logger *slog.Logger) *MemoryIndex {
	return &MemoryIndex{
		cache:   expirable.NewLRU[string, *model.CacheEntry](maxEntries, nil, maxTTL),
		persist: persist,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "index")),
	}
}

// BuildFromDir заполняет индекс из attr.json файлов в директории кэша.
// Истёкшие записи пропускаются, их attr.json удаляются.
func (idx *MemoryIndex) BuildFromDir(cacheDir string) error {
	entries, err := attr.ScanDir(cacheDir)
	if err != nil {
		return fmt.Errorf("ошибка сканирования директории %s: %w", cacheDir, err)
	}

	now := idx.now()
	loaded, expired := 0, 0
	for _, e := range entries {
		if e.IsExpired(now) {
			expired++
			_ = attr.Delete(attr.AttrFilePath(e.LocalPath))
			continue
		}
		idx.cache.Add(e.Fingerprint, e)
		loaded++
	}

	idx.mu.Lock()
	idx.ready = true
	idx.mu.Unlock()

	idx.logger.Info("Индекс кэша построен",
		slog.Int("entries", loaded),
		slog.Int("expired", expired),
		slog.String("cache_dir", cacheDir),
	)
	return nil
}

// IsReady возвращает true после BuildFromDir.
func (idx *MemoryIndex) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

// Get возвращает копию записи.
func (idx *MemoryIndex) Get(_ context.Context, fingerprint string) (*model.CacheEntry, bool, error) {
	e, ok := idx.cache.Get(fingerprint)
	if !ok || e.IsExpired(idx.now()) {
		if ok {
			idx.cache.Remove(fingerprint)
		}
		indexMissesTotal.WithLabelValues(idx.Backend()).Inc()
		return nil, false, nil
	}
	indexHitsTotal.WithLabelValues(idx.Backend()).Inc()
	copied := *e
	return &copied, true, nil
}

// Put сохраняет копию записи со сроком now+ttl.
func (idx *MemoryIndex) Put(_ context.Context, entry *model.CacheEntry, ttl time.Duration) error {
	copied := *entry
	expiresAt := idx.now().Add(ttl).UTC()
	copied.ExpiresAt = &expiresAt

	if idx.persist && copied.LocalPath != "" {
		if err := attr.Write(attr.AttrFilePath(copied.LocalPath), &copied); err != nil {
			indexErrorsTotal.WithLabelValues(idx.Backend(), "put").Inc()
			return fmt.Errorf("ошибка записи attr.json для %s: %w", filepath.Base(copied.LocalPath), err)
		}
	}
	idx.cache.Add(copied.Fingerprint, &copied)
	return nil
}

// Delete удаляет запись и её attr.json.
func (idx *MemoryIndex) Delete(_ context.Context, fingerprint string) error {
	e, ok := idx.cache.Peek(fingerprint)
	idx.cache.Remove(fingerprint)
	if ok && idx.persist && e.LocalPath != "" {
		if err := attr.Delete(attr.AttrFilePath(e.LocalPath)); err != nil {
			indexErrorsTotal.WithLabelValues(idx.Backend(), "delete").Inc()
			return err
		}
	}
	return nil
}

// Ping — in-memory индекс всегда доступен.
func (idx *MemoryIndex) Ping(context.Context) error { return nil }

// Backend — "memory".
func (idx *MemoryIndex) Backend() string { return "memory" }

// Len — текущее количество записей.
func (idx *MemoryIndex) Len() int { return idx.cache.Len() }
