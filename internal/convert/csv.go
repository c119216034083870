package convert

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type csvPage struct {
	pageBase
	Headers  []string
	Rows     [][]string
	RowCount int
	ColCount int
}

// errEmptyCSV — в файле нет ни одной строки.
var errEmptyCSV = errors.New("CSV не содержит данных")

// renderCSV — таблица; первая строка — заголовки.
func renderCSV(_ context.Context, in RenderInput, w io.Writer) error {
	data, err := os.ReadFile(in.Entry.LocalPath)
	if err != nil {
		return fmt.Errorf("ошибка чтения %s: %w", in.Entry.LocalPath, err)
	}
	src, enc, err := DecodeText(data)
	if err != nil {
		return err
	}

	headers, rows, err := ParseCSV(src)
	if err != nil {
		return err
	}

	return executePage(w, "csv", csvPage{
		pageBase: pageBase{
			Filename: in.Entry.OriginalFilename,
			Meta:     fmt.Sprintf("%s · строк: %d · столбцов: %d", enc, len(rows), len(headers)),
		},
		Headers:  headers,
		Rows:     rows,
		RowCount: len(rows),
		ColCount: len(headers),
	})
}

// ParseCSV разбирает CSV с нестрогими кавычками и переменным числом полей.
// Возвращает заголовки (первая строка) и строки данных.
func ParseCSV(src string) ([]string, [][]string, error) {
	r := csv.NewReader(strings.NewReader(src))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка разбора CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, errEmptyCSV
	}
	return records[0], records[1:], nil
}
