package convert

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// legacyEncoding — кодировка-кандидат для текста не в UTF-8.
type legacyEncoding struct {
	name string
	enc  encoding.Encoding
}

// legacyEncodings — порядок перебора после UTF-8.
// korean.EUCKR в x/text — это CP949 (надмножество EUC-KR).
// Однобайтовые кодировки (latin-1) не перебираются: они принимают любой
// вход и скрыли бы ошибку определения кодировки.
var legacyEncodings = []legacyEncoding{
	{name: "cp949", enc: korean.EUCKR},
	{name: "shift_jis", enc: japanese.ShiftJIS},
	{name: "euc-jp", enc: japanese.EUCJP},
	{name: "gbk", enc: simplifiedchinese.GBK},
	{name: "big5", enc: traditionalchinese.Big5},
}

// DecodeText декодирует текстовый файл в строку UTF-8.
// Порядок: UTF-8 с BOM (только при наличии BOM), UTF-8, затем legacyEncodings.
// Декодирование, давшее U+FFFD, считается неудачным.
// Возвращает текст и имя подошедшей кодировки.
func DecodeText(data []byte) (string, string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		rest := data[len(utf8BOM):]
		if utf8.Valid(rest) {
			return string(rest), "utf-8-sig", nil
		}
	}
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	for _, le := range legacyEncodings {
		out, err := le.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), le.name, nil
	}

	return "", "", fmt.Errorf("%w: ни одна из кодировок не подошла (utf-8, cp949, shift_jis, euc-jp, gbk, big5)", apperr.ErrEncoding)
}
