// scheduler.go — внутрипроцессный планировщик фоновых задач.
//
// Одна горутина раз в тик (по умолчанию минута) проверяет, не наступило ли
// время задачи. Задача запускается, если её время суток попало в интервал
// (предыдущая проверка, текущая проверка], и не чаще раза в календарный день.
// Рассчитан на одиночный экземпляр сервиса, координации между экземплярами нет.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/docview/internal/config"
)

// schedulerJobRunsTotal — запуски задач планировщика.
var schedulerJobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dv_scheduler_job_runs_total",
	Help: "Общее количество запусков задач планировщика по задаче и результату",
}, []string{"job", "result"})

// Job — задача планировщика.
type Job struct {
	// Name — имя задачи для логов и метрик
	Name string
	// At — время суток запуска
	At config.ClockTime
	// Weekday — день недели для еженедельной задачи; nil — ежедневно
	Weekday *time.Weekday
	// Run — тело задачи; now — момент срабатывания по часам планировщика
	Run func(ctx context.Context, now time.Time) error
}

// Scheduler — планировщик с опросом по тику.
type Scheduler struct {
	jobs   []Job
	tick   time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	last    time.Time         // момент предыдущей проверки
	lastRun map[string]string // задача → дата последнего запуска (YYYY-MM-DD)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler создаёт планировщик.
func NewScheduler(tick time.Duration, logger *slog.Logger, jobs ...Job) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		jobs:    jobs,
		tick:    tick,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "scheduler")),
		lastRun: make(map[string]string),
	}
}

// Start запускает фоновую горутину планировщика.
// Вызывается один раз при старте приложения.
func (s *Scheduler) Start(ctx context.Context) {
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	s.last = s.now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(schedCtx)

	for _, j := range s.jobs {
		s.logger.Info("Задача запланирована",
			slog.String("job", j.Name),
			slog.String("at", j.At.String()),
			slog.String("weekday", weekdayName(j.Weekday)),
		)
	}
	s.logger.Info("Планировщик запущен", slog.String("tick", s.tick.String()))
}

// Stop останавливает планировщик и ждёт завершения текущей задачи.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Планировщик остановлен")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunPending(ctx)
		}
	}
}

// RunPending запускает задачи, время которых наступило с предыдущей проверки.
// Возвращает имена запущенных задач.
func (s *Scheduler) RunPending(ctx context.Context) []string {
	s.mu.Lock()
	now := s.now()
	prev := s.last
	if prev.IsZero() {
		prev = now.Add(-s.tick)
	}
	s.last = now

	var due []Job
	for _, j := range s.jobs {
		if !s.isDue(j, prev, now) {
			continue
		}
		s.lastRun[j.Name] = now.Format(time.DateOnly)
		due = append(due, j)
	}
	s.mu.Unlock()

	ran := make([]string, 0, len(due))
	for _, j := range due {
		s.runJob(ctx, j, now)
		ran = append(ran, j.Name)
	}
	return ran
}

// isDue — время задачи на сегодня попало в (prev, now] и сегодня она ещё не запускалась.
func (s *Scheduler) isDue(j Job, prev, now time.Time) bool {
	if j.Weekday != nil && now.Weekday() != *j.Weekday {
		return false
	}
	if s.lastRun[j.Name] == now.Format(time.DateOnly) {
		return false
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), j.At.Hour, j.At.Minute, 0, 0, now.Location())
	return at.After(prev) && !at.After(now)
}

// runJob выполняет задачу. Паника и ошибка задачи логируются и не
// останавливают планировщик.
func (s *Scheduler) runJob(ctx context.Context, j Job, now time.Time) {
	start := time.Now()
	result := "ok"

	defer func() {
		if rec := recover(); rec != nil {
			result = "panic"
			s.logger.Error("Паника в задаче планировщика",
				slog.String("job", j.Name),
				slog.String("panic", fmt.Sprint(rec)),
			)
		}
		schedulerJobRunsTotal.WithLabelValues(j.Name, result).Inc()
	}()

	s.logger.Info("Задача запущена", slog.String("job", j.Name))

	if err := j.Run(ctx, now); err != nil {
		result = "error"
		s.logger.Error("Задача завершилась с ошибкой",
			slog.String("job", j.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("Задача выполнена",
		slog.String("job", j.Name),
		slog.Duration("duration", time.Since(start)),
	)
}

func weekdayName(d *time.Weekday) string {
	if d == nil {
		return "daily"
	}
	return d.String()
}
