// Пакет openapi — встроенный OpenAPI контракт docview и middleware
// валидации входящих запросов по нему.
package openapi

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/bigkaa/goartstore/docview/internal/api/errors"
)

//go:embed openapi.yaml
var spec []byte

// Spec возвращает исходный текст контракта (для GET /openapi.yaml).
func Spec() []byte {
	return spec
}

// Load разбирает и валидирует встроенный контракт.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("некорректный OpenAPI контракт: %w", err)
	}
	return doc, nil
}

// Validator возвращает middleware, проверяющий параметры запроса по контракту.
// Запросы к путям, которых нет в контракте, пропускаются без проверки:
// на них ответит роутер.
func Validator(doc *openapi3.T, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка построения роутера OpenAPI: %w", err)
	}
	log := logger.With(slog.String("component", "openapi_validator"))

	opts := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         false,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
					log.Debug("Маршрут не найден в контракте", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    opts,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.ValidationError(w, validationMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// validationMessage — короткое описание ошибки валидации без дампа схемы.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			reason := reqErr.Reason
			var schemaErr *openapi3.SchemaError
			switch {
			case errors.As(reqErr.Err, &schemaErr):
				reason = schemaErr.Reason
			case reason == "" && reqErr.Err != nil:
				reason = reqErr.Err.Error()
			}
			return fmt.Sprintf("Некорректный параметр %s: %s", reqErr.Parameter.Name, reason)
		}
		return reqErr.Error()
	}
	return err.Error()
}
