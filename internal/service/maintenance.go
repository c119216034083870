package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/config"
)

// StatsMaintainer — операции журнала использования, нужные плановым задачам.
type StatsMaintainer interface {
	RecalculateDailyStats(ctx context.Context, day time.Time) error
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// DailyMaintenanceJob — ежедневная задача: пересчёт статистики за вчера,
// затем очистка кэша и результатов старше retention.
// Ошибка пересчёта не отменяет очистку.
func DailyMaintenanceJob(
	at config.ClockTime,
	st StatsMaintainer,
	sweeper *Sweeper,
	retention, budget time.Duration,
	logger *slog.Logger,
) Job {
	return Job{
		Name: "daily-maintenance",
		At:   at,
		Run: func(ctx context.Context, now time.Time) error {
			// Статистика ведётся по дням UTC
			yesterday := now.UTC().AddDate(0, 0, -1)
			var statsErr error
			if st != nil {
				if err := st.RecalculateDailyStats(ctx, yesterday); err != nil {
					statsErr = fmt.Errorf("пересчёт статистики за %s: %w", yesterday.Format(time.DateOnly), err)
					logger.Error("Ошибка пересчёта дневной статистики",
						slog.String("date", yesterday.Format(time.DateOnly)),
						slog.String("error", err.Error()),
					)
				}
			}

			res := sweeper.SafeSweep(retention, budget)
			logger.Info("Плановая очистка выполнена",
				slog.Int("deleted", res.DeletedCount),
				slog.Int64("deleted_bytes", res.DeletedBytes),
				slog.Int("failed", res.FailedCount),
				slog.Bool("timed_out", res.TimedOut),
			)
			return statsErr
		},
	}
}

// WeeklyMaintenanceJob — еженедельная (воскресенье) задача: удаление записей
// журнала старше keepDays дней.
func WeeklyMaintenanceJob(at config.ClockTime, st StatsMaintainer, keepDays int, logger *slog.Logger) Job {
	sunday := time.Sunday
	return Job{
		Name:    "weekly-maintenance",
		At:      at,
		Weekday: &sunday,
		Run: func(ctx context.Context, _ time.Time) error {
			deleted, err := st.PruneOlderThan(ctx, keepDays)
			if err != nil {
				return fmt.Errorf("очистка журнала использования: %w", err)
			}
			logger.Info("Старые записи журнала удалены",
				slog.Int64("deleted", deleted),
				slog.Int("keep_days", keepDays),
			)
			return nil
		},
	}
}
