// Пакет convert — конвертация закэшированных исходников в PDF или HTML.
//
// Результат детерминированно лежит в {converted_dir}/{fingerprint}.{format}.
// Наличие этого файла и есть мемоизация: повторная конвертация не выполняется.
// Результат сначала пишется во временный файл и атомарно переименовывается,
// поэтому по итоговому пути никогда не лежит частичный файл.
//
// HTML для текста, Markdown, CSV, изображений и PDF строится встроенными
// рендерами, всё остальное (и любой PDF-результат) — внешним конвертером.
package convert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/stats"
	"github.com/bigkaa/goartstore/docview/internal/storage/filestore"
)

// Prometheus-метрики конвертации.
var (
	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_conversions_total",
		Help: "Общее количество запросов конвертации по виду файла, формату и результату.",
	}, []string{"kind", "format", "result"})
	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dv_render_duration_seconds",
		Help:    "Длительность встроенного рендера HTML.",
		Buckets: prometheus.DefBuckets,
	})
	converterDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dv_converter_duration_seconds",
		Help:    "Длительность запуска внешнего конвертера.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})
)

// workDirPrefix — префикс рабочих директорий внешнего конвертера.
const workDirPrefix = ".work-"

// Converter — внешний конвертер документов.
type Converter interface {
	// Convert пишет результат в workDir и возвращает путь к основному файлу.
	Convert(ctx context.Context, inputPath string, format model.OutputFormat, workDir string) (string, error)
}

// EngineConfig — параметры движка конвертации.
type EngineConfig struct {
	// RenderWorkers — число одновременных встроенных рендеров
	RenderWorkers int
	// SourceURLPrefix — URL-префикс, по которому отдаются файлы кэша
	// (для встраивания изображений и PDF в страницы просмотра)
	SourceURLPrefix string
}

// Engine — конвертация с мемоизацией.
type Engine struct {
	out       *filestore.FileStore
	converter Converter
	renderers map[model.FileKind]Renderer
	recorder  stats.UsageRecorder
	cfg       EngineConfig
	sem       *semaphore.Weighted
	group     singleflight.Group
	logger    *slog.Logger
}

// NewEngine создаёт движок. out — директория результатов.
func NewEngine(out *filestore.FileStore, converter Converter, recorder stats.UsageRecorder, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.RenderWorkers < 1 {
		cfg.RenderWorkers = 1
	}
	if recorder == nil {
		recorder = stats.NopRecorder{}
	}
	return &Engine{
		out:       out,
		converter: converter,
		renderers: defaultRenderers(),
		recorder:  recorder,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.RenderWorkers)),
		logger:    logger.With(slog.String("component", "convert")),
	}
}

// RegisterRenderer заменяет встроенный рендер для вида файла.
// Вызывать до начала обработки запросов.
func (e *Engine) RegisterRenderer(kind model.FileKind, r Renderer) {
	e.renderers[kind] = r
}

// Renderer возвращает текущий рендер для вида файла.
func (e *Engine) Renderer(kind model.FileKind) (Renderer, bool) {
	r, ok := e.renderers[kind]
	return r, ok
}

// OutputDir возвращает директорию результатов.
func (e *Engine) OutputDir() string {
	return e.out.Dir()
}

// Convert возвращает результат конвертации записи кэша в format.
// Ошибки отправляются в журнал использования.
func (e *Engine) Convert(ctx context.Context, entry *model.CacheEntry, format model.OutputFormat) (*model.ConversionOutput, error) {
	out, err := e.convert(ctx, entry, format)
	if err != nil {
		if rerr := e.recorder.LogError(ctx, sourceKindOf(entry), entry.SourceValue, err.Error()); rerr != nil {
			e.logger.Warn("Не удалось записать ошибку в журнал использования",
				slog.String("error", rerr.Error()),
			)
		}
	}
	return out, err
}

func (e *Engine) convert(ctx context.Context, entry *model.CacheEntry, format model.OutputFormat) (*model.ConversionOutput, error) {
	kind, err := entry.Kind()
	if err != nil {
		conversionsTotal.WithLabelValues("unknown", string(format), "error").Inc()
		return nil, err
	}

	if isPassthrough(kind, format) {
		conversionsTotal.WithLabelValues(kind.String(), string(format), "passthrough").Inc()
		return &model.ConversionOutput{
			Fingerprint: entry.Fingerprint,
			Format:      format,
			OutputPath:  entry.LocalPath,
			GeneratedAt: entry.CreatedAt,
			Passthrough: true,
		}, nil
	}

	name := entry.Fingerprint + format.Ext()
	if out, ok := e.reuse(entry, format, name); ok {
		conversionsTotal.WithLabelValues(kind.String(), string(format), "reused").Inc()
		return out, nil
	}

	v, err, _ := e.group.Do(name, func() (any, error) {
		if out, ok := e.reuse(entry, format, name); ok {
			return out, nil
		}
		// Результат общий для всех ожидающих: отмена одного запроса его не прерывает
		return e.produce(context.WithoutCancel(ctx), entry, kind, format, name)
	})
	if err != nil {
		conversionsTotal.WithLabelValues(kind.String(), string(format), "error").Inc()
		return nil, err
	}
	conversionsTotal.WithLabelValues(kind.String(), string(format), "converted").Inc()

	out := *v.(*model.ConversionOutput)
	return &out, nil
}

// reuse — результат уже существует на диске.
func (e *Engine) reuse(entry *model.CacheEntry, format model.OutputFormat, name string) (*model.ConversionOutput, bool) {
	info, ok := e.out.Stat(name)
	if !ok {
		return nil, false
	}
	return &model.ConversionOutput{
		Fingerprint: entry.Fingerprint,
		Format:      format,
		OutputPath:  e.out.FullPath(name),
		GeneratedAt: info.ModTime(),
		Reused:      true,
	}, true
}

// produce выбирает способ конвертации по виду файла и формату.
func (e *Engine) produce(ctx context.Context, entry *model.CacheEntry, kind model.FileKind, format model.OutputFormat, name string) (*model.ConversionOutput, error) {
	var path string
	var err error

	switch format {
	case model.FormatPDF:
		path, err = e.external(ctx, entry, format, name)
	case model.FormatHTML:
		path, err = e.produceHTML(ctx, entry, kind, name)
	default:
		err = fmt.Errorf("неизвестный формат вывода %q", format)
	}
	if err != nil {
		return nil, err
	}

	return &model.ConversionOutput{
		Fingerprint: entry.Fingerprint,
		Format:      format,
		OutputPath:  path,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (e *Engine) produceHTML(ctx context.Context, entry *model.CacheEntry, kind model.FileKind, name string) (string, error) {
	switch kind {
	case model.KindText, model.KindMarkdown, model.KindCSV, model.KindImage, model.KindPDF:
		path, renderErr := e.render(ctx, entry, kind, name)
		if renderErr == nil {
			return path, nil
		}
		if !hasFallback(kind) {
			return "", renderErr
		}
		e.logger.Warn("Встроенный рендер не справился, используем внешний конвертер",
			slog.String("fingerprint", entry.Fingerprint),
			slog.String("kind", kind.String()),
			slog.String("error", renderErr.Error()),
		)
		path, fallbackErr := e.external(ctx, entry, model.FormatHTML, name)
		if fallbackErr != nil {
			return "", errors.Join(renderErr, fallbackErr)
		}
		return path, nil
	case model.KindOffice, model.KindHTML:
		return e.external(ctx, entry, model.FormatHTML, name)
	default:
		return "", fmt.Errorf("неизвестный вид файла %v", kind)
	}
}

// render выполняет встроенный рендер во временный файл и публикует его.
func (e *Engine) render(ctx context.Context, entry *model.CacheEntry, kind model.FileKind, name string) (string, error) {
	r, ok := e.renderers[kind]
	if !ok {
		return "", fmt.Errorf("нет рендера для вида %s", kind)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.sem.Release(1)

	start := time.Now()
	tmpPath := e.out.TempPath(name)
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	bw := bufio.NewWriter(f)
	in := RenderInput{Entry: entry, SourceURL: e.sourceURL(entry)}
	if err := r.Render(ctx, in, bw); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка записи результата: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка закрытия результата: %w", err)
	}

	path, err := e.out.Publish(tmpPath, name)
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	renderDuration.Observe(time.Since(start).Seconds())
	return path, nil
}

// external запускает внешний конвертер в рабочей директории внутри
// директории результатов и публикует результат. Вспомогательные файлы
// (картинки HTML-экспорта) публикуются раньше основного.
func (e *Engine) external(ctx context.Context, entry *model.CacheEntry, format model.OutputFormat, name string) (string, error) {
	if e.converter == nil {
		return "", fmt.Errorf("%w: внешний конвертер не настроен", apperr.ErrConverterUnavailable)
	}

	workDir, err := os.MkdirTemp(e.out.Dir(), workDirPrefix+entry.Fingerprint+"-")
	if err != nil {
		return "", fmt.Errorf("ошибка создания рабочей директории: %w", err)
	}
	defer os.RemoveAll(workDir)

	produced, err := e.converter.Convert(ctx, entry.LocalPath, format, workDir)
	if err != nil {
		return "", err
	}

	files, err := os.ReadDir(workDir)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения рабочей директории: %w", err)
	}
	for _, f := range files {
		p := filepath.Join(workDir, f.Name())
		if p == produced || !f.Type().IsRegular() {
			continue
		}
		if _, err := e.out.Publish(p, f.Name()); err != nil {
			e.logger.Warn("Не удалось опубликовать вспомогательный файл",
				slog.String("file", f.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	return e.out.Publish(produced, name)
}

// sourceURL — адрес исходника для встраивания в страницу.
func (e *Engine) sourceURL(entry *model.CacheEntry) string {
	return strings.TrimRight(e.cfg.SourceURLPrefix, "/") + "/" + filepath.Base(entry.LocalPath)
}

// isPassthrough — исходник уже в целевом формате.
func isPassthrough(kind model.FileKind, format model.OutputFormat) bool {
	return (kind == model.KindPDF && format == model.FormatPDF) ||
		(kind == model.KindHTML && format == model.FormatHTML)
}

// sourceKindOf восстанавливает вид источника по записи кэша.
func sourceKindOf(entry *model.CacheEntry) string {
	v := strings.ToLower(entry.SourceValue)
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return string(model.SourceURL)
	}
	return string(model.SourcePath)
}
