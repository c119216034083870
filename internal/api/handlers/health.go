// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// readyCheckTimeout — предельное время одной проверки зависимости.
const readyCheckTimeout = 2 * time.Second

// IndexChecker — проверка доступности индекса кэша.
type IndexChecker interface {
	Ping(ctx context.Context) error
	Backend() string
}

// IndexReadinessChecker — индекс, который восстанавливается при старте.
type IndexReadinessChecker interface {
	IsReady() bool
}

// ConverterProber — поиск исполняемого файла внешнего конвертера.
type ConverterProber interface {
	Binary() (string, error)
}

// Pinger — проверка доступности базы статистики.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dirs — директории, которые должны быть доступны на запись
	dirs      []string
	idx       IndexChecker
	converter ConverterProber
	statsDB   Pinger
}

// NewHealthHandler создаёт обработчик health endpoints.
// Любая из зависимостей может быть nil: проверка пропускается.
func NewHealthHandler(dirs []string, idx IndexChecker, converter ConverterProber, statsDB Pinger) *HealthHandler {
	return &HealthHandler{
		version:   config.Version,
		dirs:      dirs,
		idx:       idx,
		converter: converter,
		statsDB:   statsDB,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "docview",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Файловая система и индекс обязательны (fail → 503).
// Недоступные конвертер и база статистики дают статус degraded:
// встроенные рендеры и конвертация продолжают работать.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fail := func() {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}
	degrade := func() {
		if overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		fail()
	}

	indexCheck := h.checkIndex(r.Context())
	if indexCheck["status"] != "ok" {
		fail()
	}

	converterCheck := h.checkConverter()
	if converterCheck["status"] != "ok" {
		degrade()
	}

	statsCheck := h.checkStats(r.Context())
	if statsCheck["status"] != "ok" {
		degrade()
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "docview",
		"checks": map[string]any{
			"filesystem": fsCheck,
			"index":      indexCheck,
			"converter":  converterCheck,
			"stats_db":   statsCheck,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// checkFilesystem проверяет доступность директорий кэша на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if len(h.dirs) == 0 {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	for _, dir := range h.dirs {
		testFile := filepath.Join(dir, ".health_check")
		if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
			return map[string]any{
				"status":  statusFail,
				"message": "Директория недоступна для записи: " + err.Error(),
			}
		}
		_ = os.Remove(testFile)
	}

	return map[string]any{
		"status": "ok",
	}
}

// checkIndex проверяет готовность и доступность индекса кэша.
func (h *HealthHandler) checkIndex(ctx context.Context) map[string]any {
	if h.idx == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	if rc, ok := h.idx.(IndexReadinessChecker); ok && !rc.IsReady() {
		return map[string]any{
			"status":  statusFail,
			"backend": h.idx.Backend(),
			"message": "Индекс ещё не восстановлен",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
	defer cancel()
	if err := h.idx.Ping(ctx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"backend": h.idx.Backend(),
			"message": "Индекс недоступен: " + err.Error(),
		}
	}

	return map[string]any{
		"status":  "ok",
		"backend": h.idx.Backend(),
	}
}

// checkConverter проверяет, что исполняемый файл конвертера найден.
func (h *HealthHandler) checkConverter() map[string]any {
	if h.converter == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	bin, err := h.converter.Binary()
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": err.Error(),
		}
	}

	return map[string]any{
		"status": "ok",
		"binary": bin,
	}
}

// checkStats проверяет доступность базы статистики.
func (h *HealthHandler) checkStats(ctx context.Context) map[string]any {
	if h.statsDB == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
	defer cancel()
	if err := h.statsDB.Ping(ctx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "База статистики недоступна: " + err.Error(),
		}
	}

	return map[string]any{
		"status": "ok",
	}
}
