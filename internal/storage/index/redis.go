package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goartstore/docview/internal/domain/model"
)

// Поля хэша записи в Redis.
const (
	fieldPath      = "path"
	fieldFilename  = "filename"
	fieldURL       = "url"
	fieldSize      = "size"
	fieldExt       = "ext"
	fieldCreatedAt = "created_at"
)

// RedisIndex — индекс кэша в Redis. Запись — хэш по ключу aview:file:<fingerprint>
// с EXPIRE, равным TTL.
type RedisIndex struct {
	rdb    redis.UniversalClient
	logger *slog.Logger
}

// NewRedisIndex создаёт индекс поверх готового клиента.
func NewRedisIndex(rdb redis.UniversalClient, logger *slog.Logger) *RedisIndex {
	return &RedisIndex{
		rdb:    rdb,
		logger: logger.With(slog.String("component", "index")),
	}
}

// NewRedisClient создаёт клиента Redis по адресу, паролю и номеру базы.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Get читает хэш записи. Пустой хэш — промах.
func (idx *RedisIndex) Get(ctx context.Context, fingerprint string) (*model.CacheEntry, bool, error) {
	fields, err := idx.rdb.HGetAll(ctx, model.CacheKey(fingerprint)).Result()
	if err != nil {
		indexErrorsTotal.WithLabelValues(idx.Backend(), "get").Inc()
		return nil, false, fmt.Errorf("ошибка чтения индекса из Redis: %w", err)
	}
	if len(fields) == 0 || fields[fieldPath] == "" {
		indexMissesTotal.WithLabelValues(idx.Backend()).Inc()
		return nil, false, nil
	}

	entry := &model.CacheEntry{
		Fingerprint:      fingerprint,
		LocalPath:        fields[fieldPath],
		OriginalFilename: fields[fieldFilename],
		Extension:        fields[fieldExt],
		SourceValue:      fields[fieldURL],
	}
	if size, err := strconv.ParseInt(fields[fieldSize], 10, 64); err == nil {
		entry.SizeBytes = size
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err == nil {
		entry.CreatedAt = ts
	}

	indexHitsTotal.WithLabelValues(idx.Backend()).Inc()
	return entry, true, nil
}

// Put записывает хэш и TTL одной транзакцией.
func (idx *RedisIndex) Put(ctx context.Context, entry *model.CacheEntry, ttl time.Duration) error {
	key := model.CacheKey(entry.Fingerprint)
	_, err := idx.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			fieldPath:      entry.LocalPath,
			fieldFilename:  entry.OriginalFilename,
			fieldURL:       entry.SourceValue,
			fieldSize:      strconv.FormatInt(entry.SizeBytes, 10),
			fieldExt:       entry.Extension,
			fieldCreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		indexErrorsTotal.WithLabelValues(idx.Backend(), "put").Inc()
		return fmt.Errorf("ошибка записи индекса в Redis: %w", err)
	}
	return nil
}

// Delete удаляет ключ записи.
func (idx *RedisIndex) Delete(ctx context.Context, fingerprint string) error {
	if err := idx.rdb.Del(ctx, model.CacheKey(fingerprint)).Err(); err != nil {
		indexErrorsTotal.WithLabelValues(idx.Backend(), "delete").Inc()
		return fmt.Errorf("ошибка удаления записи индекса из Redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis.
func (idx *RedisIndex) Ping(ctx context.Context) error {
	return idx.rdb.Ping(ctx).Err()
}

// Backend — "redis".
func (idx *RedisIndex) Backend() string { return "redis" }
