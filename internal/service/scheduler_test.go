package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/config"
)

// fakeClock — управляемые часы планировщика.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// newTestScheduler — планировщик с управляемыми часами, начальная проверка в start.
func newTestScheduler(start time.Time, jobs ...Job) (*Scheduler, *fakeClock) {
	clock := &fakeClock{t: start}
	s := NewScheduler(time.Minute, discardLogger(), jobs...)
	s.now = clock.Now
	s.last = start
	return s, clock
}

func countingJob(name string, at config.ClockTime, counter *int) Job {
	return Job{
		Name: name,
		At:   at,
		Run: func(context.Context, time.Time) error {
			*counter++
			return nil
		},
	}
}

func TestScheduler_DailyRunsOncePerDay(t *testing.T) {
	var runs int
	start := time.Date(2025, 6, 2, 2, 58, 0, 0, time.UTC)
	s, clock := newTestScheduler(start, countingJob("daily", config.ClockTime{Hour: 3}, &runs))
	ctx := context.Background()

	// Проверки каждую минуту с 02:59 до 03:05
	for m := 1; m <= 7; m++ {
		clock.Set(start.Add(time.Duration(m) * time.Minute))
		s.RunPending(ctx)
	}
	if runs != 1 {
		t.Fatalf("ожидался 1 запуск, выполнено %d", runs)
	}

	// Следующий день
	clock.Set(time.Date(2025, 6, 3, 3, 0, 30, 0, time.UTC))
	s.RunPending(ctx)
	if runs != 2 {
		t.Errorf("на следующий день ожидался второй запуск, выполнено %d", runs)
	}
}

// TestScheduler_MissedTickStillRuns — пропущенная минута (задержка тика) не теряет запуск.
func TestScheduler_MissedTickStillRuns(t *testing.T) {
	var runs int
	start := time.Date(2025, 6, 2, 2, 59, 0, 0, time.UTC)
	s, clock := newTestScheduler(start, countingJob("daily", config.ClockTime{Hour: 3}, &runs))

	clock.Set(start.Add(2*time.Minute + 10*time.Second))
	s.RunPending(context.Background())
	if runs != 1 {
		t.Errorf("ожидался 1 запуск, выполнено %d", runs)
	}
}

// TestScheduler_NoRunAfterStartPastTime — старт после времени задачи не запускает её сразу.
func TestScheduler_NoRunAfterStartPastTime(t *testing.T) {
	var runs int
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	s, clock := newTestScheduler(start, countingJob("daily", config.ClockTime{Hour: 3}, &runs))

	clock.Set(start.Add(time.Minute))
	s.RunPending(context.Background())
	if runs != 0 {
		t.Errorf("задача не должна запускаться, выполнено %d", runs)
	}
}

func TestScheduler_WeeklyOnlyOnSunday(t *testing.T) {
	var runs int
	sunday := time.Sunday
	job := countingJob("weekly", config.ClockTime{Hour: 2}, &runs)
	job.Weekday = &sunday

	// 2025-06-07 — суббота, 2025-06-08 — воскресенье
	sat := time.Date(2025, 6, 7, 1, 59, 0, 0, time.UTC)
	s, clock := newTestScheduler(sat, job)
	ctx := context.Background()

	clock.Set(sat.Add(time.Minute))
	s.RunPending(ctx)
	if runs != 0 {
		t.Fatalf("в субботу запуска быть не должно, выполнено %d", runs)
	}

	sun := time.Date(2025, 6, 8, 1, 59, 30, 0, time.UTC)
	clock.Set(sun)
	s.RunPending(ctx)
	clock.Set(sun.Add(time.Minute))
	s.RunPending(ctx)
	if runs != 1 {
		t.Errorf("в воскресенье ожидался 1 запуск, выполнено %d", runs)
	}
}

// TestScheduler_PanicContained — паника задачи не мешает остальным задачам.
func TestScheduler_PanicContained(t *testing.T) {
	var runs int
	start := time.Date(2025, 6, 2, 2, 59, 0, 0, time.UTC)
	panicking := Job{
		Name: "broken",
		At:   config.ClockTime{Hour: 3},
		Run:  func(context.Context, time.Time) error { panic("boom") },
	}
	failing := Job{
		Name: "failing",
		At:   config.ClockTime{Hour: 3},
		Run:  func(context.Context, time.Time) error { return errors.New("fail") },
	}
	s, clock := newTestScheduler(start, panicking, failing, countingJob("ok", config.ClockTime{Hour: 3}, &runs))

	clock.Set(start.Add(time.Minute))
	ran := s.RunPending(context.Background())

	if len(ran) != 3 {
		t.Errorf("ожидался запуск 3 задач, запущено %v", ran)
	}
	if runs != 1 {
		t.Errorf("рабочая задача должна выполниться, выполнено %d", runs)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, discardLogger())
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}

// fakeStats — StatsMaintainer для проверки плановых задач.
type fakeStats struct {
	recalculated []time.Time
	prunedDays   int
	recalcErr    error
}

func (f *fakeStats) RecalculateDailyStats(_ context.Context, day time.Time) error {
	f.recalculated = append(f.recalculated, day)
	return f.recalcErr
}

func (f *fakeStats) PruneOlderThan(_ context.Context, days int) (int64, error) {
	f.prunedDays = days
	return 5, nil
}

func TestDailyMaintenanceJob(t *testing.T) {
	env := setupSweeper(t)
	old := filepath.Join(env.cacheDir, "old.docx")
	writeAged(t, old, 4, env.now, 48*time.Hour)

	st := &fakeStats{recalcErr: errors.New("db locked")}
	job := DailyMaintenanceJob(config.ClockTime{Hour: 3}, st, env.sweeper, 24*time.Hour, time.Minute, discardLogger())

	err := job.Run(context.Background(), env.now)
	if err == nil {
		t.Error("ошибка пересчёта должна вернуться из задачи")
	}
	if len(st.recalculated) != 1 || st.recalculated[0].Format(time.DateOnly) != "2025-05-31" {
		t.Errorf("ожидался пересчёт за вчера (2025-05-31), получено %v", st.recalculated)
	}
	if exists(old) {
		t.Error("очистка должна выполниться несмотря на ошибку пересчёта")
	}
}

func TestDailyMaintenanceJob_RecalculatesUTCDay(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("нет базы часовых поясов: %v", err)
	}
	env := setupSweeper(t)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		// 00:30 BST = 23:30 UTC предыдущих суток, сутки назад по местным часам — ещё GMT
		{"после перехода на летнее время", time.Date(2025, 3, 31, 0, 30, 0, 0, london), "2025-03-29"},
		{"UTC", time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC), "2025-06-01"},
		{"восточнее UTC", time.Date(2025, 6, 2, 3, 0, 0, 0, time.FixedZone("KST", 9*3600)), "2025-05-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStats{}
			job := DailyMaintenanceJob(config.ClockTime{Hour: 3}, st, env.sweeper, 24*time.Hour, time.Minute, discardLogger())
			if err := job.Run(context.Background(), tt.now); err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if len(st.recalculated) != 1 {
				t.Fatalf("ожидался один пересчёт, получено %d", len(st.recalculated))
			}
			if got := st.recalculated[0].UTC().Format(time.DateOnly); got != tt.want {
				t.Errorf("день пересчёта: получено %s, ожидалось %s", got, tt.want)
			}
		})
	}
}

func TestWeeklyMaintenanceJob(t *testing.T) {
	st := &fakeStats{}
	job := WeeklyMaintenanceJob(config.ClockTime{Hour: 2}, st, 90, discardLogger())

	if job.Weekday == nil || *job.Weekday != time.Sunday {
		t.Fatal("еженедельная задача должна выполняться в воскресенье")
	}
	if err := job.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if st.prunedDays != 90 {
		t.Errorf("keepDays: ожидалось 90, получено %d", st.prunedDays)
	}
}
