// handler.go — APIHandler реализует generated.ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/goartstore/docview/internal/api/generated"
	"github.com/bigkaa/goartstore/docview/internal/server"
)

// APIHandler — единая реализация ServerInterface, собирающая
// все доменные handlers в один объект.
type APIHandler struct {
	files       *FilesHandler
	system      *SystemHandler
	maintenance *MaintenanceHandler
	stats       *StatsHandler
	health      *HealthHandler
	metrics     *server.MetricsHandler
	// spec — исходный текст OpenAPI контракта
	spec []byte
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	files *FilesHandler,
	system *SystemHandler,
	maintenance *MaintenanceHandler,
	stats *StatsHandler,
	health *HealthHandler,
	metrics *server.MetricsHandler,
	spec []byte,
) *APIHandler {
	return &APIHandler{
		files:       files,
		system:      system,
		maintenance: maintenance,
		stats:       stats,
		health:      health,
		metrics:     metrics,
		spec:        spec,
	}
}

// --- Конвертация и просмотр ---

func (h *APIHandler) Convert(w http.ResponseWriter, r *http.Request, params generated.ConvertParams) {
	h.files.Convert(w, r, params)
}

func (h *APIHandler) View(w http.ResponseWriter, r *http.Request, params generated.ViewParams) {
	h.files.View(w, r, params)
}

func (h *APIHandler) ServePDF(w http.ResponseWriter, r *http.Request, filename generated.Filename) {
	h.files.ServePDF(w, r, filename)
}

func (h *APIHandler) ServeHTML(w http.ResponseWriter, r *http.Request, filename generated.Filename) {
	h.files.ServeHTML(w, r, filename)
}

func (h *APIHandler) ServeCache(w http.ResponseWriter, r *http.Request, filename generated.Filename) {
	h.files.ServeCache(w, r, filename)
}

// --- Кэш ---

func (h *APIHandler) CleanupCache(w http.ResponseWriter, r *http.Request, params generated.CleanupCacheParams) {
	h.maintenance.CleanupCache(w, r, params)
}

func (h *APIHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	h.system.GetCacheStats(w, r)
}

// --- Статистика ---

func (h *APIHandler) GetStatsDashboard(w http.ResponseWriter, r *http.Request, params generated.GetStatsDashboardParams) {
	h.stats.GetStatsDashboard(w, r, params)
}

func (h *APIHandler) GetDailyStats(w http.ResponseWriter, r *http.Request, date openapi_types.Date) {
	h.stats.GetDailyStats(w, r, date)
}

func (h *APIHandler) ExportStats(w http.ResponseWriter, r *http.Request, params generated.ExportStatsParams) {
	h.stats.ExportStats(w, r, params)
}

// --- Health ---

func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// --- Metrics ---

func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.GetMetrics(w, r)
}

// --- OpenAPI ---

func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.spec)
}

// Проверка на этапе компиляции
var _ generated.ServerInterface = (*APIHandler)(nil)
