// Пакет apperr — таксономия ошибок docview.
// Подробности оборачиваются через fmt.Errorf("%w: ...", ErrX),
// поэтому errors.Is работает на всех уровнях.
package apperr

import "errors"

var (
	// ErrInvalidSource — некорректный источник (нет url/path, оба сразу, плохой URL).
	ErrInvalidSource = errors.New("некорректный источник")
	// ErrUnsupportedFormat — расширение не поддерживается. Частный случай ErrInvalidSource.
	ErrUnsupportedFormat error = &wrapped{msg: "неподдерживаемый формат файла", parent: ErrInvalidSource}
	// ErrNotFound — локальный файл не найден или не является обычным файлом.
	ErrNotFound = errors.New("файл не найден")
	// ErrNetwork — ошибка загрузки удалённого документа.
	ErrNetwork = errors.New("ошибка сети")
	// ErrStorage — ошибка записи в кэш.
	ErrStorage = errors.New("ошибка хранилища")
	// ErrConverterUnavailable — внешний конвертер не найден.
	ErrConverterUnavailable = errors.New("конвертер недоступен")
	// ErrConversionFailed — конвертер завершился с ошибкой или не создал результат.
	ErrConversionFailed = errors.New("ошибка конвертации")
	// ErrConversionTimeout — конвертер не уложился в таймаут.
	ErrConversionTimeout = errors.New("таймаут конвертации")
	// ErrEncoding — ни одна из поддерживаемых кодировок не подошла.
	ErrEncoding = errors.New("не удалось определить кодировку")
)

// wrapped — sentinel, который сам оборачивает родительский sentinel.
type wrapped struct {
	msg    string
	parent error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.parent }

// Коды ошибок для логов, метрик и журнала использования.
const (
	CodeInvalidSource        = "INVALID_SOURCE"
	CodeUnsupportedFormat    = "UNSUPPORTED_FORMAT"
	CodeNotFound             = "NOT_FOUND"
	CodeNetwork              = "NETWORK_ERROR"
	CodeStorage              = "STORAGE_ERROR"
	CodeConverterUnavailable = "CONVERTER_UNAVAILABLE"
	CodeConversionFailed     = "CONVERSION_FAILED"
	CodeConversionTimeout    = "CONVERSION_TIMEOUT"
	CodeEncoding             = "ENCODING_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
)

// Kind возвращает стабильный код ошибки. Более частные sentinel
// проверяются раньше общих.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, ErrInvalidSource):
		return CodeInvalidSource
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNetwork):
		return CodeNetwork
	case errors.Is(err, ErrStorage):
		return CodeStorage
	case errors.Is(err, ErrConverterUnavailable):
		return CodeConverterUnavailable
	case errors.Is(err, ErrConversionTimeout):
		return CodeConversionTimeout
	case errors.Is(err, ErrConversionFailed):
		return CodeConversionFailed
	case errors.Is(err, ErrEncoding):
		return CodeEncoding
	default:
		return CodeInternal
	}
}
