package convert

import (
	"errors"
	"testing"
)

func TestParseCSV(t *testing.T) {
	headers, rows, err := ParseCSV("name,age\n\"Kim, J\",30\nLee,25,extra\n")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(headers) != 2 || headers[0] != "name" {
		t.Errorf("заголовки: получено %v", headers)
	}
	if len(rows) != 2 {
		t.Fatalf("строки: ожидалось 2, получено %d", len(rows))
	}
	if rows[0][0] != "Kim, J" {
		t.Errorf("кавычки: получено %q", rows[0][0])
	}
	if len(rows[1]) != 3 {
		t.Errorf("переменное число полей должно допускаться, получено %v", rows[1])
	}
}

func TestParseCSV_Empty(t *testing.T) {
	if _, _, err := ParseCSV(""); !errors.Is(err, errEmptyCSV) {
		t.Errorf("ожидалась errEmptyCSV, получено %v", err)
	}
}
