// system.go — обработчик GET /api/cache/stats (объём кэша и результатов).
package handlers

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/docview/internal/api/errors"
	"github.com/bigkaa/goartstore/docview/internal/api/generated"
	"github.com/bigkaa/goartstore/docview/internal/storage/attr"
	"github.com/bigkaa/goartstore/docview/internal/storage/filestore"
)

const bytesPerMB = 1024 * 1024

// DiskUsageFunc — ёмкость файловой системы: total, used, available в байтах.
type DiskUsageFunc func() (total, used, available int64, err error)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cache     *filestore.FileStore
	converted *filestore.FileStore
	// diskUsage — может быть nil (платформа без statfs)
	diskUsage DiskUsageFunc
	logger    *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cache, converted *filestore.FileStore, diskUsage DiskUsageFunc, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		cache:     cache,
		converted: converted,
		diskUsage: diskUsage,
		logger:    logger.With(slog.String("component", "system_handler")),
	}
}

// GetCacheStats обрабатывает GET /api/cache/stats.
// Файлы метаданных (attr.json) и временные файлы не учитываются.
func (h *SystemHandler) GetCacheStats(w http.ResponseWriter, _ *http.Request) {
	cacheFiles, cacheBytes, err := h.cache.Usage(attr.IsAttrFile)
	if err != nil {
		h.logger.Error("Ошибка подсчёта кэша", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения статистики кэша")
		return
	}
	convFiles, convBytes, err := h.converted.Usage(attr.IsAttrFile)
	if err != nil {
		h.logger.Error("Ошибка подсчёта результатов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения статистики кэша")
		return
	}

	resp := generated.CacheStats{
		Cache:       generated.DirStats{Files: cacheFiles, SizeMb: toMB(cacheBytes)},
		Converted:   generated.DirStats{Files: convFiles, SizeMb: toMB(convBytes)},
		TotalSizeMb: toMB(cacheBytes + convBytes),
	}

	if h.diskUsage != nil {
		total, used, available, err := h.diskUsage()
		if err != nil {
			h.logger.Warn("Не удалось получить ёмкость диска", slog.String("error", err.Error()))
		} else {
			resp.Disk = &generated.DiskStats{
				TotalMb:     toMB(total),
				UsedMb:      toMB(used),
				AvailableMb: toMB(available),
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// toMB переводит байты в мегабайты с округлением до сотых.
func toMB(b int64) float64 {
	return math.Round(float64(b)/bytesPerMB*100) / 100
}
