package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
)

// CacheEntry — запись о закэшированном исходнике. Неизменяема после создания.
// Соответствует содержимому attr.json и полям хэша в Redis.
type CacheEntry struct {
	// Fingerprint — md5 канонического идентификатора источника
	Fingerprint string `json:"fingerprint"`

	// LocalPath — абсолютный путь к слоту кэша: {cache_root}/{fingerprint}{ext}
	LocalPath string `json:"path"`

	// OriginalFilename — имя файла, полученное от источника
	OriginalFilename string `json:"filename"`

	// Extension — расширение в нижнем регистре с точкой (".docx")
	Extension string `json:"ext"`

	// SizeBytes — размер закэшированного файла
	SizeBytes int64 `json:"size"`

	// CreatedAt — момент записи в кэш (UTC)
	CreatedAt time.Time `json:"created_at"`

	// SourceValue — исходный URL или путь
	SourceValue string `json:"url"`

	// ExpiresAt — момент истечения записи индекса (только для attr.json)
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsExpired проверяет, истёк ли срок жизни записи.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return now.After(*e.ExpiresAt)
}

// Kind возвращает вид файла по расширению записи.
func (e *CacheEntry) Kind() (FileKind, error) {
	return KindOf(e.Extension)
}

// OutputFormat — целевой формат конвертации.
type OutputFormat string

const (
	// FormatPDF — документ PDF
	FormatPDF OutputFormat = "pdf"
	// FormatHTML — HTML-страница просмотра
	FormatHTML OutputFormat = "html"
)

// ParseOutputFormat разбирает формат; пустая строка означает html.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: недопустимый формат вывода %q, допустимые: pdf, html", apperr.ErrInvalidSource, s)
	}
}

// Ext — расширение выходного файла с точкой.
func (f OutputFormat) Ext() string {
	return "." + string(f)
}

// ConversionOutput — результат конвертации.
type ConversionOutput struct {
	Fingerprint string
	Format      OutputFormat
	// OutputPath — путь к результату; для passthrough совпадает с LocalPath записи
	OutputPath  string
	GeneratedAt time.Time
	// Passthrough — исходник уже в целевом формате, конвертация не выполнялась
	Passthrough bool
	// Reused — результат взят из ранее сгенерированного файла
	Reused bool
}
