// maintenance.go — обработчик POST /api/cache/cleanup.
// Делегирует очистку в Sweeper.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goartstore/docview/internal/api/errors"
	"github.com/bigkaa/goartstore/docview/internal/api/generated"
	"github.com/bigkaa/goartstore/docview/internal/service"
)

const (
	// defaultMaxAgeHours — возраст по умолчанию для ручной очистки.
	defaultMaxAgeHours = 24
	// maxMaxAgeHours — верхняя граница max_age_hours (10 лет), совпадает с openapi.yaml.
	// Большие значения переполняют time.Duration.
	maxMaxAgeHours = 87600
)

// CacheSweeper — интерфейс очистки кэша.
// Позволяет тестировать handler без реальных директорий.
type CacheSweeper interface {
	Sweep(maxAge, timeout time.Duration) service.SweepResult
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	sweeper CacheSweeper
	// timeout — бюджет времени одного прохода
	timeout time.Duration
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(sweeper CacheSweeper, timeout time.Duration) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper: sweeper,
		timeout: timeout,
	}
}

// CleanupCache обрабатывает POST /api/cache/cleanup.
// Синхронно удаляет файлы старше max_age_hours и возвращает итог.
func (h *MaintenanceHandler) CleanupCache(w http.ResponseWriter, _ *http.Request, params generated.CleanupCacheParams) {
	hours := defaultMaxAgeHours
	if params.MaxAgeHours != nil {
		hours = *params.MaxAgeHours
	}
	if hours < 0 {
		apierrors.ValidationError(w, fmt.Sprintf("max_age_hours не может быть отрицательным: %d", hours))
		return
	}
	if hours > maxMaxAgeHours {
		apierrors.ValidationError(w, fmt.Sprintf("max_age_hours: значение %d больше допустимого %d", hours, maxMaxAgeHours))
		return
	}

	result := h.sweeper.Sweep(time.Duration(hours)*time.Hour, h.timeout)

	status := "success"
	if result.TimedOut {
		status = "partial"
	}
	resp := generated.CleanupResponse{
		Status:       status,
		MaxAgeHours:  hours,
		DeletedCount: result.DeletedCount,
		DeletedBytes: result.DeletedBytes,
		FailedCount:  result.FailedCount,
		TimedOut:     result.TimedOut,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
