// Package generated — типы параметров и chi-роутер для контракта
// internal/api/openapi/openapi.yaml в формате oapi-codegen chi-server.
// Перегенерация: go generate ./internal/api/generated
// (конфигурация internal/api/openapi/oapi-codegen.yaml).
package generated

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Defines values for ConvertParamsOutput.
const (
	ConvertParamsOutputHtml ConvertParamsOutput = "html"
	ConvertParamsOutputPdf  ConvertParamsOutput = "pdf"
)

// Defines values for ConvertResponseOutputFormat.
const (
	ConvertResponseOutputFormatHtml ConvertResponseOutputFormat = "html"
	ConvertResponseOutputFormatPdf  ConvertResponseOutputFormat = "pdf"
)

// Defines values for ExportStatsParamsFormat.
const (
	ExportStatsParamsFormatCsv  ExportStatsParamsFormat = "csv"
	ExportStatsParamsFormatJson ExportStatsParamsFormat = "json"
)

// CacheStats defines model for CacheStats.
type CacheStats struct {
	Cache       DirStats   `json:"cache"`
	Converted   DirStats   `json:"converted"`
	Disk        *DiskStats `json:"disk,omitempty"`
	TotalSizeMb float64    `json:"total_size_mb"`
}

// CleanupResponse defines model for CleanupResponse.
type CleanupResponse struct {
	DeletedBytes int64  `json:"deleted_bytes"`
	DeletedCount int    `json:"deleted_count"`
	FailedCount  int    `json:"failed_count"`
	MaxAgeHours  int    `json:"max_age_hours"`
	Status       string `json:"status"`
	TimedOut     bool   `json:"timed_out"`
}

// ConvertResponse defines model for ConvertResponse.
type ConvertResponse struct {
	CacheHit bool `json:"cache_hit"`

	// ConversionTime Длительность в секундах
	ConversionTime   float64                     `json:"conversion_time"`
	OriginalFilename string                      `json:"original_filename"`
	OutputFormat     ConvertResponseOutputFormat `json:"output_format"`
	Url              string                      `json:"url"`
}

// ConvertResponseOutputFormat defines model for ConvertResponse.OutputFormat.
type ConvertResponseOutputFormat string

// DirStats defines model for DirStats.
type DirStats struct {
	Files  int     `json:"files"`
	SizeMb float64 `json:"size_mb"`
}

// DiskStats defines model for DiskStats.
type DiskStats struct {
	AvailableMb float64 `json:"available_mb"`
	TotalMb     float64 `json:"total_mb"`
	UsedMb      float64 `json:"used_mb"`
}

// Filename defines model for Filename.
type Filename = string

// SourcePath defines model for SourcePath.
type SourcePath = string

// SourceURL defines model for SourceURL.
type SourceURL = string

// ConvertParams defines parameters for Convert.
type ConvertParams struct {
	// Url URL удалённого документа (http/https)
	Url *SourceURL `form:"url,omitempty" json:"url,omitempty"`

	// Path Путь к локальному документу
	Path   *SourcePath          `form:"path,omitempty" json:"path,omitempty"`
	Output *ConvertParamsOutput `form:"output,omitempty" json:"output,omitempty"`
}

// ConvertParamsOutput defines parameters for Convert.
type ConvertParamsOutput string

// ViewParams defines parameters for View.
type ViewParams struct {
	// Url URL удалённого документа (http/https)
	Url *SourceURL `form:"url,omitempty" json:"url,omitempty"`

	// Path Путь к локальному документу
	Path *SourcePath `form:"path,omitempty" json:"path,omitempty"`
}

// CleanupCacheParams defines parameters for CleanupCache.
type CleanupCacheParams struct {
	MaxAgeHours *int `form:"max_age_hours,omitempty" json:"max_age_hours,omitempty"`
}

// GetStatsDashboardParams defines parameters for GetStatsDashboard.
type GetStatsDashboardParams struct {
	Days *int `form:"days,omitempty" json:"days,omitempty"`
}

// ExportStatsParams defines parameters for ExportStats.
type ExportStatsParams struct {
	StartDate openapi_types.Date       `form:"start_date" json:"start_date"`
	EndDate   openapi_types.Date       `form:"end_date" json:"end_date"`
	Format    *ExportStatsParamsFormat `form:"format,omitempty" json:"format,omitempty"`
}

// ExportStatsParamsFormat defines parameters for ExportStats.
type ExportStatsParamsFormat string

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Конвертация документа
	// (GET /aview/convert)
	Convert(w http.ResponseWriter, r *http.Request, params ConvertParams)
	// Отдача исходника из кэша
	// (GET /aview/cache/{filename})
	ServeCache(w http.ResponseWriter, r *http.Request, filename Filename)
	// Отдача HTML-результата
	// (GET /aview/html/{filename})
	ServeHTML(w http.ResponseWriter, r *http.Request, filename Filename)
	// Отдача PDF-результата
	// (GET /aview/pdf/{filename})
	ServePDF(w http.ResponseWriter, r *http.Request, filename Filename)
	// Просмотр документа (редирект на HTML-страницу)
	// (GET /aview/view)
	View(w http.ResponseWriter, r *http.Request, params ViewParams)
	// Очистка устаревших файлов кэша
	// (POST /api/cache/cleanup)
	CleanupCache(w http.ResponseWriter, r *http.Request, params CleanupCacheParams)
	// Объём кэша и результатов
	// (GET /api/cache/stats)
	GetCacheStats(w http.ResponseWriter, r *http.Request)
	// Liveness probe
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// Readiness probe
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// Prometheus метрики
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// Этот документ
	// (GET /openapi.yaml)
	GetOpenAPISpec(w http.ResponseWriter, r *http.Request)
	// Статистика за день
	// (GET /stats/daily/{date})
	GetDailyStats(w http.ResponseWriter, r *http.Request, date openapi_types.Date)
	// Сводка использования за период
	// (GET /stats/dashboard)
	GetStatsDashboard(w http.ResponseWriter, r *http.Request, params GetStatsDashboardParams)
	// Выгрузка дневных агрегатов за период
	// (GET /stats/export)
	ExportStats(w http.ResponseWriter, r *http.Request, params ExportStatsParams)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

// Convert operation middleware
func (siw *ServerInterfaceWrapper) Convert(w http.ResponseWriter, r *http.Request) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params ConvertParams

	// ------------- Optional query parameter "url" -------------

	err = runtime.BindQueryParameter("form", true, false, "url", r.URL.Query(), &params.Url)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "url", Err: err})
		return
	}

	// ------------- Optional query parameter "path" -------------

	err = runtime.BindQueryParameter("form", true, false, "path", r.URL.Query(), &params.Path)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "path", Err: err})
		return
	}

	// ------------- Optional query parameter "output" -------------

	err = runtime.BindQueryParameter("form", true, false, "output", r.URL.Query(), &params.Output)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "output", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.Convert(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// ServeCache operation middleware
func (siw *ServerInterfaceWrapper) ServeCache(w http.ResponseWriter, r *http.Request) {
	filename, ok := siw.bindFilename(w, r)
	if !ok {
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ServeCache(w, r, filename)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// ServeHTML operation middleware
func (siw *ServerInterfaceWrapper) ServeHTML(w http.ResponseWriter, r *http.Request) {
	filename, ok := siw.bindFilename(w, r)
	if !ok {
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ServeHTML(w, r, filename)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// ServePDF operation middleware
func (siw *ServerInterfaceWrapper) ServePDF(w http.ResponseWriter, r *http.Request) {
	filename, ok := siw.bindFilename(w, r)
	if !ok {
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ServePDF(w, r, filename)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// bindFilename — path-параметр "filename".
func (siw *ServerInterfaceWrapper) bindFilename(w http.ResponseWriter, r *http.Request) (Filename, bool) {
	var filename Filename

	err := runtime.BindStyledParameterWithOptions("simple", "filename", chi.URLParam(r, "filename"), &filename, runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "filename", Err: err})
		return "", false
	}
	return filename, true
}

// View operation middleware
func (siw *ServerInterfaceWrapper) View(w http.ResponseWriter, r *http.Request) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params ViewParams

	// ------------- Optional query parameter "url" -------------

	err = runtime.BindQueryParameter("form", true, false, "url", r.URL.Query(), &params.Url)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "url", Err: err})
		return
	}

	// ------------- Optional query parameter "path" -------------

	err = runtime.BindQueryParameter("form", true, false, "path", r.URL.Query(), &params.Path)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "path", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.View(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// CleanupCache operation middleware
func (siw *ServerInterfaceWrapper) CleanupCache(w http.ResponseWriter, r *http.Request) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params CleanupCacheParams

	// ------------- Optional query parameter "max_age_hours" -------------

	err = runtime.BindQueryParameter("form", true, false, "max_age_hours", r.URL.Query(), &params.MaxAgeHours)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "max_age_hours", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.CleanupCache(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// GetCacheStats operation middleware
func (siw *ServerInterfaceWrapper) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetCacheStats(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// HealthLive operation middleware
func (siw *ServerInterfaceWrapper) HealthLive(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.HealthLive(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// HealthReady operation middleware
func (siw *ServerInterfaceWrapper) HealthReady(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.HealthReady(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// GetMetrics operation middleware
func (siw *ServerInterfaceWrapper) GetMetrics(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetMetrics(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// GetOpenAPISpec operation middleware
func (siw *ServerInterfaceWrapper) GetOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetOpenAPISpec(w, r)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// GetDailyStats operation middleware
func (siw *ServerInterfaceWrapper) GetDailyStats(w http.ResponseWriter, r *http.Request) {
	var err error

	// ------------- Path parameter "date" -------------
	var date openapi_types.Date

	err = runtime.BindStyledParameterWithOptions("simple", "date", chi.URLParam(r, "date"), &date, runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "date", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetDailyStats(w, r, date)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// GetStatsDashboard operation middleware
func (siw *ServerInterfaceWrapper) GetStatsDashboard(w http.ResponseWriter, r *http.Request) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params GetStatsDashboardParams

	// ------------- Optional query parameter "days" -------------

	err = runtime.BindQueryParameter("form", true, false, "days", r.URL.Query(), &params.Days)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "days", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetStatsDashboard(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

// ExportStats operation middleware
func (siw *ServerInterfaceWrapper) ExportStats(w http.ResponseWriter, r *http.Request) {
	var err error

	// Parameter object where we will unmarshal all parameters from the context
	var params ExportStatsParams

	// ------------- Required query parameter "start_date" -------------

	if paramValue := r.URL.Query().Get("start_date"); paramValue == "" {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "start_date"})
		return
	}

	err = runtime.BindQueryParameter("form", true, true, "start_date", r.URL.Query(), &params.StartDate)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "start_date", Err: err})
		return
	}

	// ------------- Required query parameter "end_date" -------------

	if paramValue := r.URL.Query().Get("end_date"); paramValue == "" {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "end_date"})
		return
	}

	err = runtime.BindQueryParameter("form", true, true, "end_date", r.URL.Query(), &params.EndDate)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "end_date", Err: err})
		return
	}

	// ------------- Optional query parameter "format" -------------

	err = runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &params.Format)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "format", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ExportStats(w, r, params)
	}))

	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}

	handler.ServeHTTP(w, r)
}

type RequiredParamError struct {
	ParamName string
}

func (e *RequiredParamError) Error() string {
	return fmt.Sprintf("Query argument %s is required, but not found", e.ParamName)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// Handler creates http.Handler with routing matching OpenAPI spec.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux creates http.Handler with routing matching OpenAPI spec based on the provided mux.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{
		BaseRouter: r,
	})
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/aview/convert", wrapper.Convert)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/aview/cache/{filename}", wrapper.ServeCache)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/aview/html/{filename}", wrapper.ServeHTML)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/aview/pdf/{filename}", wrapper.ServePDF)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/aview/view", wrapper.View)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/api/cache/cleanup", wrapper.CleanupCache)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/api/cache/stats", wrapper.GetCacheStats)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health/live", wrapper.HealthLive)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health/ready", wrapper.HealthReady)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/metrics", wrapper.GetMetrics)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/openapi.yaml", wrapper.GetOpenAPISpec)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/stats/daily/{date}", wrapper.GetDailyStats)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/stats/dashboard", wrapper.GetStatsDashboard)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/stats/export", wrapper.ExportStats)
	})

	return r
}
