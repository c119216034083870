package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Простое сканирование структуры PDF без полного разбора:
// объекты страниц и строки Info-словаря.
var (
	pdfPageRe   = regexp.MustCompile(`/Type\s*/Page\b`)
	pdfTitleRe  = regexp.MustCompile(`/Title\s*\(((?:\\.|[^\\)])*)\)`)
	pdfAuthorRe = regexp.MustCompile(`/Author\s*\(((?:\\.|[^\\)])*)\)`)
)

type pdfPage struct {
	pageBase
	SourceURL string
	Props     []prop
}

// PDFInfo — свойства PDF для страницы просмотра.
type PDFInfo struct {
	Pages  int
	Title  string
	Author string
}

// renderPDF — страница просмотра PDF со встроенным просмотрщиком браузера.
func renderPDF(_ context.Context, in RenderInput, w io.Writer) error {
	info, err := ReadPDFInfo(in.Entry.LocalPath)
	if err != nil {
		return err
	}

	pages := unknownValue
	if info.Pages > 0 {
		pages = strconv.Itoa(info.Pages)
	}
	return executePage(w, "pdf", pdfPage{
		pageBase:  pageBase{Filename: in.Entry.OriginalFilename, Meta: humanSize(in.Entry.SizeBytes)},
		SourceURL: in.SourceURL,
		Props: []prop{
			{Name: "Страниц", Value: pages},
			{Name: "Заголовок", Value: info.Title},
			{Name: "Автор", Value: info.Author},
		},
	})
}

// ReadPDFInfo считает страницы и извлекает Title/Author.
// Недоступные поля получают значение Unknown.
func ReadPDFInfo(path string) (PDFInfo, error) {
	info := PDFInfo{Title: unknownValue, Author: unknownValue}

	data, err := os.ReadFile(path)
	if err != nil {
		return info, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}

	info.Pages = len(pdfPageRe.FindAllIndex(data, -1))
	if m := pdfTitleRe.FindSubmatch(data); m != nil {
		if s := unescapePDFString(string(m[1])); s != "" {
			info.Title = s
		}
	}
	if m := pdfAuthorRe.FindSubmatch(data); m != nil {
		if s := unescapePDFString(string(m[1])); s != "" {
			info.Author = s
		}
	}
	return info, nil
}

// unescapePDFString снимает экранирование литеральной строки PDF.
func unescapePDFString(s string) string {
	r := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, " ", `\r`, " ", `\t`, " ")
	return strings.TrimSpace(r.Replace(s))
}
