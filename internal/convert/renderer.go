package convert

import (
	"context"
	"io"

	"github.com/bigkaa/goartstore/docview/internal/domain/model"
)

// RenderInput — данные для встроенного рендера HTML-страницы.
type RenderInput struct {
	Entry *model.CacheEntry
	// SourceURL — адрес исходника для встраивания в страницу (изображение, PDF)
	SourceURL string
}

// Renderer — встроенный рендер HTML-страницы просмотра.
type Renderer interface {
	Render(ctx context.Context, in RenderInput, w io.Writer) error
}

// RendererFunc — адаптер функции к Renderer.
type RendererFunc func(ctx context.Context, in RenderInput, w io.Writer) error

// Render вызывает f.
func (f RendererFunc) Render(ctx context.Context, in RenderInput, w io.Writer) error {
	return f(ctx, in, w)
}

// defaultRenderers — встроенные рендеры по видам файлов.
func defaultRenderers() map[model.FileKind]Renderer {
	return map[model.FileKind]Renderer{
		model.KindText:     RendererFunc(renderText),
		model.KindMarkdown: RendererFunc(renderMarkdown),
		model.KindCSV:      RendererFunc(renderCSV),
		model.KindImage:    RendererFunc(renderImage),
		model.KindPDF:      RendererFunc(renderPDF),
	}
}

// hasFallback — при ошибке рендера этих видов используется внешний конвертер.
// Страницы просмотра изображений и PDF без рендера не имеют смысла.
func hasFallback(kind model.FileKind) bool {
	switch kind {
	case model.KindText, model.KindMarkdown, model.KindCSV:
		return true
	default:
		return false
	}
}
