package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/stats"
)

// SourceResolver — получение исходника в кэш.
type SourceResolver interface {
	Resolve(ctx context.Context, src model.SourceDescriptor) (*model.CacheEntry, bool, error)
}

// ConversionEngine — конвертация записи кэша в формат вывода.
type ConversionEngine interface {
	Convert(ctx context.Context, entry *model.CacheEntry, format model.OutputFormat) (*model.ConversionOutput, error)
}

// Result — результат ResolveAndConvert.
type Result struct {
	// OutputPath — файл для отдачи клиенту
	OutputPath string
	// OriginalFilename — имя исходного файла для отображения
	OriginalFilename string
	// CacheHit — исходник уже был в кэше
	CacheHit bool
	Entry    *model.CacheEntry
	Output   *model.ConversionOutput
	// Elapsed — длительность операции целиком
	Elapsed time.Duration
}

// OutputName — имя файла результата без директории.
func (r *Result) OutputName() string {
	return filepath.Base(r.OutputPath)
}

// Gateway — единая точка входа для HTTP-слоя: resolve → convert → журнал.
type Gateway struct {
	resolver SourceResolver
	engine   ConversionEngine
	recorder stats.UsageRecorder
	logger   *slog.Logger
}

// NewGateway создаёт gateway.
func NewGateway(resolver SourceResolver, engine ConversionEngine, recorder stats.UsageRecorder, logger *slog.Logger) *Gateway {
	if recorder == nil {
		recorder = stats.NopRecorder{}
	}
	return &Gateway{
		resolver: resolver,
		engine:   engine,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "gateway")),
	}
}

// ResolveAndConvert получает исходник и возвращает результат конвертации.
// Ошибки уже записаны в журнал использования resolver-ом или движком.
func (g *Gateway) ResolveAndConvert(ctx context.Context, src model.SourceDescriptor, format model.OutputFormat) (*Result, error) {
	start := time.Now()

	entry, hit, err := g.resolver.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}

	out, err := g.engine.Convert(ctx, entry, format)
	if err != nil {
		return nil, err
	}

	res := &Result{
		OutputPath:       out.OutputPath,
		OriginalFilename: entry.OriginalFilename,
		CacheHit:         hit,
		Entry:            entry,
		Output:           out,
		Elapsed:          time.Since(start),
	}

	// Размер результата; если файл уже исчез (очистка), — размер исходника
	outSize := entry.SizeBytes
	if info, err := os.Stat(out.OutputPath); err == nil {
		outSize = info.Size()
	}

	rec := stats.ConversionRecord{
		SourceKind:     string(src.Kind),
		SourceValue:    src.Value,
		FileName:       res.OutputName(),
		FileType:       strings.TrimPrefix(filepath.Ext(res.OutputPath), "."),
		FileSize:       outSize,
		OutputFormat:   string(format),
		ConversionTime: res.Elapsed,
		CacheHit:       hit,
	}
	if err := g.recorder.LogConversion(ctx, rec); err != nil {
		g.logger.Warn("Не удалось записать конвертацию в журнал использования",
			slog.String("error", err.Error()),
		)
	}

	g.logger.Debug("Документ готов",
		slog.String("fingerprint", entry.Fingerprint),
		slog.String("format", string(format)),
		slog.Bool("cache_hit", hit),
		slog.Bool("reused", out.Reused),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}
