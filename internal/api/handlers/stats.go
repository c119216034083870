// stats.go — обработчики статистики использования: сводка, день, выгрузка.
package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/docview/internal/api/errors"
	"github.com/bigkaa/goartstore/docview/internal/api/generated"
	"github.com/bigkaa/goartstore/docview/internal/stats"
)

const (
	defaultDashboardDays = 7
	maxDashboardDays     = 365
)

// StatsReader — чтение статистики использования.
type StatsReader interface {
	Dashboard(ctx context.Context, days int) (*stats.Dashboard, error)
	DailyStats(ctx context.Context, day time.Time) (*stats.DailyStats, error)
	PeriodStats(ctx context.Context, from, to time.Time) ([]stats.DailyStats, error)
}

// StatsHandler — обработчик endpoints /stats.
type StatsHandler struct {
	store  StatsReader
	logger *slog.Logger
}

// NewStatsHandler создаёт обработчик статистики.
func NewStatsHandler(store StatsReader, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		store:  store,
		logger: logger.With(slog.String("component", "stats_handler")),
	}
}

// GetStatsDashboard обрабатывает GET /stats/dashboard?days=N (1..365).
func (h *StatsHandler) GetStatsDashboard(w http.ResponseWriter, r *http.Request, params generated.GetStatsDashboardParams) {
	days := defaultDashboardDays
	if params.Days != nil {
		days = *params.Days
	}
	if days < 1 || days > maxDashboardDays {
		apierrors.ValidationError(w, fmt.Sprintf("days должен быть в диапазоне 1-%d", maxDashboardDays))
		return
	}

	d, err := h.store.Dashboard(r.Context(), days)
	if err != nil {
		h.logger.Error("Ошибка построения сводки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения статистики")
		return
	}
	writeJSON(w, d)
}

// GetDailyStats обрабатывает GET /stats/daily/{date}.
func (h *StatsHandler) GetDailyStats(w http.ResponseWriter, r *http.Request, date openapi_types.Date) {
	d, err := h.store.DailyStats(r.Context(), date.Time)
	if errors.Is(err, stats.ErrNoData) {
		apierrors.NotFound(w, fmt.Sprintf("Нет данных за %s", date.Format(openapi_types.DateFormat)))
		return
	}
	if err != nil {
		h.logger.Error("Ошибка получения дневной статистики",
			slog.String("date", date.String()),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка получения статистики")
		return
	}
	writeJSON(w, d)
}

// ExportStats обрабатывает GET /stats/export?start_date&end_date&format=json|csv.
func (h *StatsHandler) ExportStats(w http.ResponseWriter, r *http.Request, params generated.ExportStatsParams) {
	from, to := params.StartDate.Time, params.EndDate.Time
	if to.Before(from) {
		apierrors.ValidationError(w, "end_date не может быть раньше start_date")
		return
	}

	format := generated.ExportStatsParamsFormatJson
	if params.Format != nil {
		format = *params.Format
	}
	if format != generated.ExportStatsParamsFormatJson && format != generated.ExportStatsParamsFormatCsv {
		apierrors.ValidationError(w, fmt.Sprintf("недопустимый формат %q, допустимые: json, csv", format))
		return
	}

	period, err := h.store.PeriodStats(r.Context(), from, to)
	if err != nil {
		h.logger.Error("Ошибка выгрузки статистики", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка получения статистики")
		return
	}

	if format == generated.ExportStatsParamsFormatJson {
		if period == nil {
			period = []stats.DailyStats{}
		}
		writeJSON(w, period)
		return
	}

	filename := fmt.Sprintf("stats_%s_%s.csv",
		from.Format(openapi_types.DateFormat), to.Format(openapi_types.DateFormat))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	if err := writeCSV(w, period); err != nil {
		h.logger.Warn("Ошибка записи CSV", slog.String("error", err.Error()))
	}
}

// csvHeader — столбцы выгрузки, совпадают с JSON-полями DailyStats.
var csvHeader = []string{
	"date", "total_conversions", "total_size_mb", "unique_files",
	"cache_hit_rate", "avg_conversion_time", "error_count", "by_type", "updated_at",
}

// writeCSV пишет дневные агрегаты в CSV. Пустой период — пустое тело.
func writeCSV(w http.ResponseWriter, period []stats.DailyStats) error {
	if len(period) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range period {
		byType, err := json.Marshal(d.ByType)
		if err != nil {
			return err
		}
		row := []string{
			d.Date,
			strconv.Itoa(d.TotalConversions),
			strconv.FormatFloat(d.TotalSizeMB, 'f', -1, 64),
			strconv.Itoa(d.UniqueFiles),
			strconv.FormatFloat(d.CacheHitRate, 'f', -1, 64),
			strconv.FormatFloat(d.AvgConversionTime, 'f', -1, 64),
			strconv.Itoa(d.ErrorCount),
			string(byType),
			d.UpdatedAt,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
