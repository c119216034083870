// Пакет errors — конструкторы стандартных ошибок docview.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/goartstore/docview/internal/domain/apperr"
)

// Коды ошибок HTTP-слоя. Коды ошибок конвертации берутся из apperr.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// FromError отвечает ошибкой конвейера конвертации, выбирая статус по её виду.
func FromError(w http.ResponseWriter, err error) {
	code := apperr.Kind(err)
	WriteError(w, StatusOf(code), code, err.Error())
}

// StatusOf — HTTP статус для кода apperr.
func StatusOf(code string) int {
	switch code {
	case apperr.CodeInvalidSource, apperr.CodeUnsupportedFormat:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeNetwork:
		return http.StatusBadGateway
	case apperr.CodeStorage:
		return http.StatusInsufficientStorage
	case apperr.CodeConverterUnavailable:
		return http.StatusServiceUnavailable
	case apperr.CodeConversionTimeout:
		return http.StatusGatewayTimeout
	case apperr.CodeConversionFailed, apperr.CodeEncoding:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// BadGateway — 502 не удалось загрузить удалённый документ.
func BadGateway(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, apperr.CodeNetwork, message)
}

// ConverterUnavailable — 503 внешний конвертер не найден.
func ConverterUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, apperr.CodeConverterUnavailable, message)
}

// GatewayTimeout — 504 конвертер не уложился в таймаут.
func GatewayTimeout(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGatewayTimeout, apperr.CodeConversionTimeout, message)
}

// UnprocessableEntity — 422 документ не удалось сконвертировать.
func UnprocessableEntity(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, apperr.CodeConversionFailed, message)
}

// InsufficientStorage — 507 ошибка записи в кэш.
func InsufficientStorage(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInsufficientStorage, apperr.CodeStorage, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
