// resolver.go — получение исходного документа в локальный кэш.
//
// Источник (URL или локальный путь) превращается в слот кэша
// {cache_dir}/{fingerprint}{ext}. Попадание требует и записи в индексе,
// и существующего файла; запись без файла считается промахом.
// Одновременные промахи по одному fingerprint объединяются (singleflight).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/stats"
	"github.com/bigkaa/goartstore/docview/internal/storage/filestore"
	"github.com/bigkaa/goartstore/docview/internal/storage/index"
)

// DefaultFilename — имя файла, если его не удалось определить.
const DefaultFilename = "downloaded_file"

// Prometheus-метрики resolver.
var (
	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_resolve_total",
		Help: "Общее количество запросов получения исходника по типу источника и результату.",
	}, []string{"source", "result"})
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dv_fetch_duration_seconds",
		Help:    "Длительность загрузки/копирования исходника в кэш.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
)

// contentDispositionRe — запасной разбор заголовка, если mime.ParseMediaType не справился.
var contentDispositionRe = regexp.MustCompile(`(?i)filename\*?=([^;]+)`)

// ResolverConfig — параметры resolver.
type ResolverConfig struct {
	// TTL записи индекса
	TTL time.Duration
	// Таймаут HTTP-загрузки
	HTTPTimeout time.Duration
	// Максимальный размер загружаемого документа
	MaxDownloadSize int64
}

// Resolver — получение исходников в кэш.
type Resolver struct {
	index    index.Index
	store    *filestore.FileStore
	policy   *model.ExtensionPolicy
	recorder stats.UsageRecorder
	client   *http.Client
	cfg      ResolverConfig
	group    singleflight.Group
	now      func() time.Time
	logger   *slog.Logger
}

// NewResolver создаёт resolver. store — директория кэша исходников.
func NewResolver(
	idx index.Index,
	store *filestore.FileStore,
	policy *model.ExtensionPolicy,
	recorder stats.UsageRecorder,
	cfg ResolverConfig,
	logger *slog.Logger,
) *Resolver {
	if recorder == nil {
		recorder = stats.NopRecorder{}
	}
	return &Resolver{
		index:    idx,
		store:    store,
		policy:   policy,
		recorder: recorder,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// resolveResult — результат общего вызова singleflight.
type resolveResult struct {
	entry *model.CacheEntry
	hit   bool
}

// Resolve гарантирует наличие исходника в кэше и возвращает его запись.
// cacheHit=true, если исходник уже был в кэше.
// Любая ошибка отправляется в журнал использования.
func (r *Resolver) Resolve(ctx context.Context, src model.SourceDescriptor) (*model.CacheEntry, bool, error) {
	entry, hit, err := r.resolve(ctx, src)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
		r.reportError(ctx, src, err)
	case hit:
		result = "hit"
	}
	resolveTotal.WithLabelValues(string(src.Kind), result).Inc()

	return entry, hit, err
}

func (r *Resolver) resolve(ctx context.Context, src model.SourceDescriptor) (*model.CacheEntry, bool, error) {
	var remote *url.URL
	if src.IsRemote() {
		u, err := parseRemoteURL(src.Value)
		if err != nil {
			return nil, false, err
		}
		remote = u
	}

	canonical, err := src.Canonical()
	if err != nil {
		return nil, false, err
	}
	fp := model.Fingerprint(canonical)

	if entry, ok := r.lookup(ctx, fp); ok {
		return entry, true, nil
	}

	v, err, _ := r.group.Do(fp, func() (any, error) {
		// Параллельный вызов мог уже заполнить кэш
		if entry, ok := r.lookup(ctx, fp); ok {
			return resolveResult{entry: entry, hit: true}, nil
		}

		// Загрузка общая для всех ожидающих: отмена одного клиента её не прерывает
		fetchCtx := context.WithoutCancel(ctx)
		start := time.Now()
		var entry *model.CacheEntry
		var ferr error
		if remote != nil {
			entry, ferr = r.fetchRemote(fetchCtx, remote, src.Value, fp)
		} else {
			entry, ferr = r.copyLocal(src.Value, canonical, fp)
		}
		fetchDuration.WithLabelValues(string(src.Kind)).Observe(time.Since(start).Seconds())
		if ferr != nil {
			return nil, ferr
		}

		if err := r.index.Put(fetchCtx, entry, r.cfg.TTL); err != nil {
			// Слот на диске готов, без записи индекса следующий запрос просто повторит получение
			r.logger.Warn("Не удалось записать индекс кэша",
				slog.String("fingerprint", fp),
				slog.String("error", err.Error()),
			)
		}
		return resolveResult{entry: entry}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(resolveResult)
	copied := *res.entry
	return &copied, res.hit, nil
}

// lookup — попадание только при наличии записи и обычного файла на диске.
// Устаревшая запись удаляется из индекса.
func (r *Resolver) lookup(ctx context.Context, fp string) (*model.CacheEntry, bool) {
	entry, ok, err := r.index.Get(ctx, fp)
	if err != nil {
		r.logger.Warn("Индекс кэша недоступен, считаем промахом",
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	info, err := os.Stat(entry.LocalPath)
	if err != nil || !info.Mode().IsRegular() {
		r.logger.Debug("Запись индекса без файла, считаем промахом",
			slog.String("fingerprint", fp),
			slog.String("path", entry.LocalPath),
		)
		_ = r.index.Delete(ctx, fp)
		return nil, false
	}
	return entry, true
}

// fetchRemote скачивает документ по HTTP(S) в слот кэша.
func (r *Resolver) fetchRemote(ctx context.Context, u *url.URL, rawURL, fp string) (*model.CacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidSource, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос %s: %v", apperr.ErrNetwork, u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s вернул HTTP %d", apperr.ErrNetwork, u.Redacted(), resp.StatusCode)
	}

	filename := FilenameFromResponse(resp.Header.Get("Content-Disposition"), u)

	// Расширение проверяется до записи первого байта
	ext, err := r.policy.Validate(filename)
	if err != nil {
		return nil, err
	}

	if r.cfg.MaxDownloadSize > 0 && resp.ContentLength > r.cfg.MaxDownloadSize {
		return nil, fmt.Errorf("%w: размер документа %d превышает лимит %d",
			apperr.ErrInvalidSource, resp.ContentLength, r.cfg.MaxDownloadSize)
	}

	saved, err := r.store.SaveFile(resp.Body, fp+ext, r.cfg.MaxDownloadSize)
	if err != nil {
		switch {
		case errors.Is(err, filestore.ErrSourceRead):
			return nil, fmt.Errorf("%w: чтение ответа %s: %v", apperr.ErrNetwork, u.Redacted(), err)
		case errors.Is(err, filestore.ErrTooLarge):
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidSource, err)
		default:
			return nil, fmt.Errorf("%w: %v", apperr.ErrStorage, err)
		}
	}

	r.logger.Info("Документ загружен в кэш",
		slog.String("fingerprint", fp),
		slog.String("filename", filename),
		slog.Int64("size", saved.Size),
	)

	return &model.CacheEntry{
		Fingerprint:      fp,
		LocalPath:        saved.FullPath,
		OriginalFilename: filename,
		Extension:        ext,
		SizeBytes:        saved.Size,
		CreatedAt:        r.now().UTC(),
		SourceValue:      rawURL,
	}, nil
}

// copyLocal копирует локальный файл в слот кэша.
func (r *Resolver) copyLocal(rawPath, canonical, fp string) (*model.CacheEntry, error) {
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, rawPath)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s не является обычным файлом", apperr.ErrNotFound, rawPath)
	}

	filename := filepath.Base(rawPath)
	ext, err := r.policy.Validate(filename)
	if err != nil {
		return nil, err
	}

	saved, err := r.store.CopyFile(canonical, fp+ext)
	if err != nil {
		if errors.Is(err, filestore.ErrSourceRead) {
			if _, statErr := os.Stat(canonical); os.IsNotExist(statErr) {
				return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, rawPath)
			}
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}

	r.logger.Info("Локальный файл скопирован в кэш",
		slog.String("fingerprint", fp),
		slog.String("filename", filename),
		slog.Int64("size", saved.Size),
	)

	return &model.CacheEntry{
		Fingerprint:      fp,
		LocalPath:        saved.FullPath,
		OriginalFilename: filename,
		Extension:        ext,
		SizeBytes:        saved.Size,
		CreatedAt:        r.now().UTC(),
		SourceValue:      rawPath,
	}, nil
}

// reportError отправляет ошибку в журнал использования.
func (r *Resolver) reportError(ctx context.Context, src model.SourceDescriptor, err error) {
	if rerr := r.recorder.LogError(ctx, string(src.Kind), src.Value, err.Error()); rerr != nil {
		r.logger.Warn("Не удалось записать ошибку в журнал использования",
			slog.String("error", rerr.Error()),
		)
	}
}

// parseRemoteURL принимает только абсолютные http(s) URL.
func parseRemoteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: некорректный URL: %v", apperr.ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: URL должен начинаться с http:// или https://", apperr.ErrInvalidSource)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: в URL отсутствует хост", apperr.ErrInvalidSource)
	}
	return u, nil
}

// FilenameFromResponse определяет имя файла: Content-Disposition
// (включая filename* по RFC 5987), затем последний сегмент пути URL,
// затем DefaultFilename.
func FilenameFromResponse(contentDisposition string, u *url.URL) string {
	if name := filenameFromDisposition(contentDisposition); name != "" {
		return name
	}
	if u != nil {
		seg := path.Base(u.EscapedPath())
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		if name := safeBaseName(seg); name != "" {
			return name
		}
	}
	return DefaultFilename
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := safeBaseName(params["filename"]); name != "" {
			return name
		}
	}

	m := contentDispositionRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	value := strings.Trim(strings.TrimSpace(m[1]), `"'`)
	// Форма RFC 5987: charset'lang'percent-encoded
	if i := strings.Index(value, "''"); i >= 0 {
		value = value[i+2:]
	}
	if unescaped, err := url.PathUnescape(value); err == nil {
		value = unescaped
	}
	return safeBaseName(value)
}

// safeBaseName отбрасывает каталоги из имени; "", ".", "/" дают пустую строку.
func safeBaseName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
