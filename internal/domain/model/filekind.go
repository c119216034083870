package model

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
)

// FileKind — категория исходного файла, определяет способ конвертации.
type FileKind int

const (
	KindText FileKind = iota + 1
	KindMarkdown
	KindCSV
	KindImage
	KindPDF
	KindHTML
	KindOffice
)

// String — имя категории для логов и метрик.
func (k FileKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMarkdown:
		return "markdown"
	case KindCSV:
		return "csv"
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	case KindHTML:
		return "html"
	case KindOffice:
		return "office"
	default:
		return "unknown"
	}
}

// DefaultAllowedExtensions — список допустимых расширений по умолчанию.
var DefaultAllowedExtensions = []string{
	".txt", ".md",
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".webp",
	".doc", ".docx", ".odt", ".rtf",
	".xls", ".xlsx", ".ods",
	".ppt", ".pptx", ".odp",
	".pdf", ".csv",
}

// KindOf определяет категорию по расширению (регистр не важен).
func KindOf(ext string) (FileKind, error) {
	switch strings.ToLower(ext) {
	case ".txt":
		return KindText, nil
	case ".md", ".markdown":
		return KindMarkdown, nil
	case ".csv":
		return KindCSV, nil
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".tif", ".webp":
		return KindImage, nil
	case ".pdf":
		return KindPDF, nil
	case ".html", ".htm":
		return KindHTML, nil
	case ".doc", ".docx", ".odt", ".rtf",
		".xls", ".xlsx", ".ods",
		".ppt", ".pptx", ".odp":
		return KindOffice, nil
	default:
		return 0, fmt.Errorf("%w: %q", apperr.ErrUnsupportedFormat, ext)
	}
}

// ExtensionPolicy — список допустимых расширений.
type ExtensionPolicy struct {
	allowed map[string]struct{}
}

// NewExtensionPolicy создаёт политику из списка расширений.
// Расширения нормализуются к нижнему регистру с ведущей точкой.
func NewExtensionPolicy(exts []string) *ExtensionPolicy {
	p := &ExtensionPolicy{allowed: make(map[string]struct{}, len(exts))}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		p.allowed[e] = struct{}{}
	}
	return p
}

// Validate возвращает нормализованное расширение имени файла или
// ErrUnsupportedFormat, если расширение не в списке или неизвестно.
func (p *ExtensionPolicy) Validate(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "", fmt.Errorf("%w: у файла %q нет расширения", apperr.ErrUnsupportedFormat, filename)
	}
	if _, ok := p.allowed[ext]; !ok {
		return "", fmt.Errorf("%w: расширение %s не поддерживается", apperr.ErrUnsupportedFormat, ext)
	}
	if _, err := KindOf(ext); err != nil {
		return "", err
	}
	return ext, nil
}
