package convert

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// markdownEngine — GFM (таблицы, зачёркивание, автоссылки, списки задач),
// якоря заголовков, переносы строк как <br>. Сырой HTML не пропускается.
var markdownEngine = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

type tocItem struct {
	Level  int
	Indent int
	ID     string
	Text   string
}

type markdownPage struct {
	pageBase
	TOC  []tocItem
	Body template.HTML
}

// renderMarkdown — страница просмотра Markdown с оглавлением.
func renderMarkdown(_ context.Context, in RenderInput, w io.Writer) error {
	data, err := os.ReadFile(in.Entry.LocalPath)
	if err != nil {
		return fmt.Errorf("ошибка чтения %s: %w", in.Entry.LocalPath, err)
	}
	src, enc, err := DecodeText(data)
	if err != nil {
		return err
	}

	body, toc, err := MarkdownToHTML([]byte(src))
	if err != nil {
		return err
	}

	return executePage(w, "markdown", markdownPage{
		pageBase: pageBase{Filename: in.Entry.OriginalFilename, Meta: enc},
		TOC:      toc,
		Body:     template.HTML(body), //nolint:gosec // goldmark без WithUnsafe экранирует сырой HTML
	})
}

// MarkdownToHTML преобразует Markdown в HTML и собирает оглавление по заголовкам.
func MarkdownToHTML(src []byte) (string, []tocItem, error) {
	doc := markdownEngine.Parser().Parse(text.NewReader(src))

	var toc []tocItem
	minLevel := 6
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		item := tocItem{Level: h.Level, Text: headingText(h, src)}
		if id, ok := h.AttributeString("id"); ok {
			if b, ok := id.([]byte); ok {
				item.ID = string(b)
			}
		}
		if h.Level < minLevel {
			minLevel = h.Level
		}
		toc = append(toc, item)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("ошибка разбора markdown: %w", err)
	}
	for i := range toc {
		toc[i].Indent = toc[i].Level - minLevel
	}

	var buf bytes.Buffer
	if err := markdownEngine.Renderer().Render(&buf, src, doc); err != nil {
		return "", nil, fmt.Errorf("ошибка рендера markdown: %w", err)
	}
	return buf.String(), toc, nil
}

// headingText собирает текст заголовка из текстовых узлов.
func headingText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
