// sweeper.go — фоновая очистка кэша и результатов конвертации по возрасту.
//
// Sweeper обходит каждую корневую директорию (кэш исходников и результаты)
// независимо и удаляет обычные файлы с mtime строго старше maxAge.
// Перед каждым файлом проверяется бюджет времени: при превышении обход
// прекращается, оставшиеся файлы достаются следующему запуску.
// Ошибка удаления одного файла не прерывает обход.
package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики очистки
var (
	// sweepRunsTotal — количество запусков очистки.
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dv_sweep_runs_total",
		Help: "Общее количество запусков очистки по результату",
	}, []string{"result"})

	// sweepFilesDeletedTotal — количество удалённых файлов.
	sweepFilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_sweep_files_deleted_total",
		Help: "Общее количество файлов, удалённых очисткой",
	})

	// sweepBytesDeletedTotal — объём удалённых файлов.
	sweepBytesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_sweep_bytes_deleted_total",
		Help: "Общий объём файлов, удалённых очисткой, в байтах",
	})

	// sweepFailuresTotal — количество ошибок удаления.
	sweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dv_sweep_failures_total",
		Help: "Общее количество файлов, которые не удалось удалить",
	})

	// sweepDurationSeconds — длительность очистки.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dv_sweep_duration_seconds",
		Help:    "Длительность выполнения очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// errSweepBudget — внутренний сигнал остановки обхода.
var errSweepBudget = errors.New("бюджет времени очистки исчерпан")

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// DeletedCount — количество удалённых файлов
	DeletedCount int `json:"deleted_count"`
	// DeletedBytes — суммарный размер удалённых файлов
	DeletedBytes int64 `json:"deleted_bytes"`
	// FailedCount — количество файлов, которые не удалось удалить
	FailedCount int `json:"failed_count"`
	// TimedOut — обход остановлен по бюджету времени
	TimedOut bool `json:"timed_out"`
	// Duration — длительность выполнения
	Duration time.Duration `json:"-"`
}

// Sweeper — очистка директорий по возрасту файлов.
type Sweeper struct {
	roots  []string
	logger *slog.Logger

	// now и remove подменяются в тестах
	now    func() time.Time
	remove func(string) error

	mu sync.Mutex // защита от параллельного запуска Sweep
}

// NewSweeper создаёт сервис очистки для набора корневых директорий.
// Директория, вложенная в другую корневую, обходится только как своя.
func NewSweeper(roots []string, logger *slog.Logger) *Sweeper {
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			clean = append(clean, abs)
		}
	}
	return &Sweeper{
		roots:  clean,
		logger: logger.With(slog.String("component", "sweeper")),
		now:    time.Now,
		remove: os.Remove,
	}
}

// Sweep удаляет файлы старше maxAge во всех корневых директориях.
// timeout <= 0 снимает ограничение по времени.
// Потокобезопасен: параллельные вызовы выполняются по очереди.
func (s *Sweeper) Sweep(maxAge, timeout time.Duration) SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	cutoff := start.Add(-maxAge)
	var result SweepResult

	s.logger.Debug("Очистка начата",
		slog.Duration("max_age", maxAge),
		slog.Duration("timeout", timeout),
	)

	for _, root := range s.roots {
		if err := s.sweepRoot(root, cutoff, start, timeout, &result); err != nil {
			if errors.Is(err, errSweepBudget) {
				result.TimedOut = true
				break
			}
			s.logger.Warn("Ошибка обхода директории",
				slog.String("root", root),
				slog.String("error", err.Error()),
			)
		}
	}

	result.Duration = s.now().Sub(start)

	status := "ok"
	if result.TimedOut {
		status = "timeout"
	}
	sweepRunsTotal.WithLabelValues(status).Inc()
	sweepFilesDeletedTotal.Add(float64(result.DeletedCount))
	sweepBytesDeletedTotal.Add(float64(result.DeletedBytes))
	sweepFailuresTotal.Add(float64(result.FailedCount))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Очистка завершена",
		slog.Int("deleted", result.DeletedCount),
		slog.Int64("deleted_bytes", result.DeletedBytes),
		slog.Int("failed", result.FailedCount),
		slog.Bool("timed_out", result.TimedOut),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// SafeSweep — Sweep, который не пропускает panic наружу.
// При panic возвращается нулевой результат.
func (s *Sweeper) SafeSweep(maxAge, timeout time.Duration) (result SweepResult) {
	defer func() {
		if rec := recover(); rec != nil {
			sweepRunsTotal.WithLabelValues("panic").Inc()
			s.logger.Error("Паника при очистке",
				slog.String("panic", fmt.Sprint(rec)),
			)
			result = SweepResult{}
		}
	}()
	return s.Sweep(maxAge, timeout)
}

// sweepRoot обходит одну корневую директорию.
func (s *Sweeper) sweepRoot(root string, cutoff, start time.Time, timeout time.Duration, result *SweepResult) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("Ошибка чтения при очистке",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && s.isRoot(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if timeout > 0 && s.now().Sub(start) > timeout {
			return errSweepBudget
		}

		info, err := d.Info()
		if err != nil {
			// Файл исчез между чтением директории и stat
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}

		if err := s.remove(path); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			result.FailedCount++
			s.logger.Warn("Не удалось удалить файл",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return nil
		}

		result.DeletedCount++
		result.DeletedBytes += info.Size()
		s.logger.Debug("Файл удалён",
			slog.String("path", path),
			slog.Time("mtime", info.ModTime()),
		)
		return nil
	})
}

func (s *Sweeper) isRoot(path string) bool {
	for _, r := range s.roots {
		if r == path {
			return true
		}
	}
	return false
}
