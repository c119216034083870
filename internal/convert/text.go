package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

type textPage struct {
	pageBase
	Content   string
	LineCount int
	CharCount int
}

// renderText — страница просмотра текстового файла.
func renderText(_ context.Context, in RenderInput, w io.Writer) error {
	data, err := os.ReadFile(in.Entry.LocalPath)
	if err != nil {
		return fmt.Errorf("ошибка чтения %s: %w", in.Entry.LocalPath, err)
	}
	text, enc, err := DecodeText(data)
	if err != nil {
		return err
	}

	lines := countLines(text)
	chars := utf8.RuneCountInString(text)
	return executePage(w, "text", textPage{
		pageBase: pageBase{
			Filename: in.Entry.OriginalFilename,
			Meta:     fmt.Sprintf("%s · строк: %d · символов: %d", enc, lines, chars),
		},
		Content:   text,
		LineCount: lines,
		CharCount: chars,
	})
}

// countLines — число строк; завершающий перевод строки не добавляет строку.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
