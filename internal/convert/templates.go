package convert

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templatesFS embed.FS

// pages — шаблоны страниц просмотра, разбираются один раз при старте.
var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// pageBase — общие поля всех страниц (заголовок и строка метаданных).
type pageBase struct {
	Filename string
	Meta     string
}

// prop — строка таблицы свойств файла.
type prop struct {
	Name  string
	Value string
}

func executePage(w io.Writer, name string, data any) error {
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("ошибка рендера шаблона %s: %w", name, err)
	}
	return nil
}
