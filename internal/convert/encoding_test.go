package convert

import (
	"errors"
	"testing"

	"golang.org/x/text/encoding/korean"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
)

func TestDecodeText(t *testing.T) {
	cp949, err := korean.EUCKR.NewEncoder().Bytes([]byte("안녕하세요, 문서"))
	if err != nil {
		t.Fatalf("ошибка подготовки CP949: %v", err)
	}

	tests := []struct {
		name     string
		input    []byte
		wantText string
		wantEnc  string
	}{
		{"utf-8", []byte("привет, world"), "привет, world", "utf-8"},
		{"utf-8 с BOM", append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...), "hello", "utf-8-sig"},
		{"cp949", cp949, "안녕하세요, 문서", "cp949"},
		{"пустой файл", nil, "", "utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, enc, err := DecodeText(tt.input)
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if text != tt.wantText {
				t.Errorf("текст: ожидалось %q, получено %q", tt.wantText, text)
			}
			if enc != tt.wantEnc {
				t.Errorf("кодировка: ожидалось %q, получено %q", tt.wantEnc, enc)
			}
		})
	}
}

func TestDecodeText_NoEncoding(t *testing.T) {
	_, _, err := DecodeText([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if !errors.Is(err, apperr.ErrEncoding) {
		t.Fatalf("ожидалась ErrEncoding, получено %v", err)
	}
}
