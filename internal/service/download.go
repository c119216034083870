// download.go — отдача результатов конвертации и исходников из кэша.
package service

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goartstore/docview/internal/api/errors"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/storage/attr"
	"github.com/bigkaa/goartstore/docview/internal/storage/filestore"
)

var downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dv_downloads_total",
	Help: "Общее количество запросов отдачи файлов по типу и результату.",
}, []string{"kind", "result"})

// DownloadService — отдача файлов из директорий кэша.
type DownloadService struct {
	cache     *filestore.FileStore
	converted *filestore.FileStore
	logger    *slog.Logger
}

// NewDownloadService создаёт сервис отдачи файлов.
func NewDownloadService(cache, converted *filestore.FileStore, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		cache:     cache,
		converted: converted,
		logger:    logger.With(slog.String("component", "download_service")),
	}
}

// DownloadError — ошибка отдачи с HTTP-кодом.
type DownloadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ServeResult отдаёт результат в формате format. Сначала ищется в директории
// результатов, затем в кэше (исходник, уже бывший в нужном формате).
// Для PDF имя обязано иметь расширение .pdf. Для HTML допускаются и
// вспомогательные файлы страницы (картинки внешнего конвертера).
func (s *DownloadService) ServeResult(w http.ResponseWriter, r *http.Request, format model.OutputFormat, name string) *DownloadError {
	if derr := validateName(name); derr != nil {
		downloadsTotal.WithLabelValues(string(format), "invalid").Inc()
		return derr
	}
	if format == model.FormatPDF && !strings.EqualFold(filepath.Ext(name), format.Ext()) {
		downloadsTotal.WithLabelValues(string(format), "invalid").Inc()
		return &DownloadError{
			StatusCode: http.StatusNotFound,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("PDF файл %s не найден", name),
		}
	}
	return s.serve(w, r, string(format), name, s.converted, s.cache)
}

// ServeSource отдаёт исходник из кэша (для встраивания в страницы просмотра).
func (s *DownloadService) ServeSource(w http.ResponseWriter, r *http.Request, name string) *DownloadError {
	if derr := validateName(name); derr != nil {
		downloadsTotal.WithLabelValues("cache", "invalid").Inc()
		return derr
	}
	return s.serve(w, r, "cache", name, s.cache)
}

// serve отдаёт первый найденный файл через http.ServeContent.
// Поддерживает Range requests (206 Partial Content) и ETag (If-None-Match).
func (s *DownloadService) serve(w http.ResponseWriter, r *http.Request, kind, name string, stores ...*filestore.FileStore) *DownloadError {
	for _, store := range stores {
		file, err := store.ReadFile(name)
		if err != nil {
			continue
		}
		defer file.Close()

		stat, err := file.Stat()
		if err != nil {
			s.logger.Error("Ошибка получения stat файла",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			downloadsTotal.WithLabelValues(kind, "error").Inc()
			return &DownloadError{
				StatusCode: http.StatusInternalServerError,
				Code:       apierrors.CodeInternalError,
				Message:    "Ошибка чтения файла",
			}
		}

		w.Header().Set("Content-Type", contentTypeOf(name))
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", name))
		w.Header().Set("ETag", fmt.Sprintf("\"%x-%x\"", stat.ModTime().UnixNano(), stat.Size()))
		w.Header().Set("Accept-Ranges", "bytes")

		http.ServeContent(w, r, name, stat.ModTime(), file)
		downloadsTotal.WithLabelValues(kind, "success").Inc()

		s.logger.Debug("Файл отдан",
			slog.String("kind", kind),
			slog.String("file", name),
			slog.Int64("size", stat.Size()),
		)
		return nil
	}

	downloadsTotal.WithLabelValues(kind, "not_found").Inc()
	return &DownloadError{
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf("Файл %s не найден", name),
	}
}

// validateName допускает только простое имя файла внутри директории:
// без разделителей пути, без служебных и временных файлов.
func validateName(name string) *DownloadError {
	invalid := name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") ||
		filestore.IsTempFile(name) || attr.IsAttrFile(name)
	if invalid {
		return &DownloadError{
			StatusCode: http.StatusNotFound,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("Файл %s не найден", name),
		}
	}
	return nil
}

// contentTypeOf — MIME-тип по расширению, для HTML и текста с кодировкой.
func contentTypeOf(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
