// Пакет stats — журнал использования: конвертации, ошибки,
// дневные агрегаты и отчёты для дашборда. Хранилище — SQLite.
package stats

import (
	"context"
	"time"
)

// ConversionRecord — одна успешная операция resolve+convert.
type ConversionRecord struct {
	// SourceKind — "url" или "path"
	SourceKind  string
	SourceValue string
	// FileName — имя выходного файла
	FileName string
	// FileType — расширение выходного файла без точки
	FileType string
	// FileSize — размер выходного файла в байтах
	FileSize     int64
	OutputFormat string
	// ConversionTime — длительность операции целиком
	ConversionTime time.Duration
	CacheHit       bool
}

// UsageRecorder — приёмник событий использования.
// Ошибки записи не должны влиять на обработку запроса: вызывающий код
// только логирует их.
type UsageRecorder interface {
	LogConversion(ctx context.Context, rec ConversionRecord) error
	LogError(ctx context.Context, sourceKind, sourceValue, message string) error
}

// NopRecorder — UsageRecorder, который ничего не записывает.
type NopRecorder struct{}

// LogConversion ничего не делает.
func (NopRecorder) LogConversion(context.Context, ConversionRecord) error { return nil }

// LogError ничего не делает.
func (NopRecorder) LogError(context.Context, string, string, string) error { return nil }
