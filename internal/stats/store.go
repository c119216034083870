package stats

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timestampLayout — формат created_at/updated_at (как CURRENT_TIMESTAMP в SQLite).
const timestampLayout = "2006-01-02 15:04:05"

// bytesPerMB — делитель для размеров в мегабайтах.
const bytesPerMB = 1048576.0

// ErrNoData — за запрошенную дату нет ни агрегата, ни записей.
var ErrNoData = errors.New("нет данных за период")

// TypeStats — агрегат по типу файла за день.
type TypeStats struct {
	Count  int     `json:"count"`
	SizeMB float64 `json:"size_mb"`
}

// DailyStats — дневной агрегат.
type DailyStats struct {
	Date              string               `json:"date"`
	TotalConversions  int                  `json:"total_conversions"`
	TotalSizeMB       float64              `json:"total_size_mb"`
	UniqueFiles       int                  `json:"unique_files"`
	CacheHitRate      float64              `json:"cache_hit_rate"`
	AvgConversionTime float64              `json:"avg_conversion_time"`
	ErrorCount        int                  `json:"error_count"`
	ByType            map[string]TypeStats `json:"by_type"`
	UpdatedAt         string               `json:"updated_at,omitempty"`
}

// FileTypeStats — статистика по типу файла за период.
type FileTypeStats struct {
	Count        int     `json:"count"`
	SizeMB       float64 `json:"size_mb"`
	AvgTime      float64 `json:"avg_time"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	ErrorCount   int     `json:"error_count"`
}

// TopFile — часто конвертируемый источник.
type TopFile struct {
	SourceValue     string `json:"source_value"`
	FileName        string `json:"file_name"`
	FileType        string `json:"file_type"`
	ConversionCount int    `json:"conversion_count"`
	LastConverted   string `json:"last_converted"`
}

// CacheEffectiveness — эффективность кэша за период.
type CacheEffectiveness struct {
	TotalRequests    int     `json:"total_requests"`
	CacheHits        int     `json:"cache_hits"`
	HitRate          float64 `json:"hit_rate"`
	TimeSaved        float64 `json:"time_saved"`
	BandwidthSavedMB float64 `json:"bandwidth_saved_mb"`
}

// ErrorStat — сгруппированные ошибки.
type ErrorStat struct {
	Date         string `json:"date"`
	ErrorMessage string `json:"error_message"`
	FileType     string `json:"file_type"`
	Count        int    `json:"count"`
}

// Dashboard — сводка для дашборда.
type Dashboard struct {
	Period             int                      `json:"period"`
	FileTypes          map[string]FileTypeStats `json:"file_types"`
	TopFiles           []TopFile                `json:"top_files"`
	HourlyDistribution map[int]int              `json:"hourly_distribution"`
	CacheEffectiveness CacheEffectiveness       `json:"cache_effectiveness"`
	Errors             []ErrorStat              `json:"errors"`
}

// topFilesLimit — размер списка часто конвертируемых файлов.
const topFilesLimit = 10

// Store — журнал использования в SQLite. Реализует UsageRecorder.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

var _ UsageRecorder = (*Store)(nil)

// Open открывает (создаёт) базу, применяет миграции.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории базы: %w", err)
	}

	if err := Migrate(path, logger); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы статистики: %w", err)
	}
	// SQLite: один писатель, пул из одного соединения исключает SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("база статистики недоступна: %w", err)
	}

	logger.Info("База статистики открыта", slog.String("path", path))

	return &Store{
		db:     db,
		now:    time.Now,
		logger: logger.With(slog.String("component", "stats")),
	}, nil
}

// Migrate применяет SQL-миграции из embedded FS к базе path.
func Migrate(path string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+path)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции статистики применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// Close закрывает базу.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LogConversion записывает успешную операцию и пересчитывает агрегат за сегодня.
func (s *Store) LogConversion(ctx context.Context, rec ConversionRecord) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversions (
			source_type, source_value, file_name, file_type, file_size,
			output_format, conversion_time, cache_hit, created_at, success
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		rec.SourceKind, rec.SourceValue, rec.FileName, rec.FileType, rec.FileSize,
		rec.OutputFormat, rec.ConversionTime.Seconds(), rec.CacheHit, now.Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("ошибка записи конвертации: %w", err)
	}
	return s.RecalculateDailyStats(ctx, now)
}

// LogError записывает неуспешную операцию.
func (s *Store) LogError(ctx context.Context, sourceKind, sourceValue, message string) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversions (source_type, source_value, created_at, success, error_message)
		VALUES (?, ?, ?, 0, ?)`,
		sourceKind, sourceValue, now.Format(timestampLayout), message,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи ошибки конвертации: %w", err)
	}
	return s.RecalculateDailyStats(ctx, now)
}

// RecalculateDailyStats пересчитывает агрегат за день day (UTC) и сохраняет его.
func (s *Store) RecalculateDailyStats(ctx context.Context, day time.Time) error {
	date := day.UTC().Format(time.DateOnly)

	st, err := s.calculate(ctx, date)
	if err != nil {
		return err
	}

	byType, err := json.Marshal(map[string]any{"by_type": st.ByType})
	if err != nil {
		return fmt.Errorf("ошибка сериализации статистики: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_stats (
			date, total_conversions, total_size_mb, unique_files,
			cache_hit_rate, avg_conversion_time, error_count, stats_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		date, st.TotalConversions, st.TotalSizeMB, st.UniqueFiles,
		st.CacheHitRate, st.AvgConversionTime, st.ErrorCount, string(byType),
		s.now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения дневной статистики: %w", err)
	}
	return nil
}

// calculate считает агрегат по таблице conversions.
func (s *Store) calculate(ctx context.Context, date string) (*DailyStats, error) {
	st := &DailyStats{Date: date, ByType: map[string]TypeStats{}}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(file_size), 0) / ?,
			COUNT(DISTINCT source_value),
			COALESCE(AVG(CASE WHEN cache_hit THEN 100.0 ELSE 0.0 END), 0),
			COALESCE(AVG(conversion_time), 0),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		FROM conversions
		WHERE DATE(created_at) = ?`, bytesPerMB, date)
	if err := row.Scan(&st.TotalConversions, &st.TotalSizeMB, &st.UniqueFiles,
		&st.CacheHitRate, &st.AvgConversionTime, &st.ErrorCount); err != nil {
		return nil, fmt.Errorf("ошибка расчёта дневной статистики: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(file_type, ''), COUNT(*), COALESCE(SUM(file_size), 0) / ?
		FROM conversions
		WHERE DATE(created_at) = ? AND success = 1
		GROUP BY file_type`, bytesPerMB, date)
	if err != nil {
		return nil, fmt.Errorf("ошибка расчёта статистики по типам: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ft string
		var ts TypeStats
		if err := rows.Scan(&ft, &ts.Count, &ts.SizeMB); err != nil {
			return nil, fmt.Errorf("ошибка чтения статистики по типам: %w", err)
		}
		st.ByType[ft] = ts
	}
	return st, rows.Err()
}

// DailyStats возвращает сохранённый агрегат за день, а если его нет —
// считает на лету. ErrNoData, если за день нет записей.
func (s *Store) DailyStats(ctx context.Context, day time.Time) (*DailyStats, error) {
	date := day.UTC().Format(time.DateOnly)

	st, err := s.scanDaily(s.db.QueryRowContext(ctx, dailySelect+` WHERE date = ?`, date))
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	st, err = s.calculate(ctx, date)
	if err != nil {
		return nil, err
	}
	if st.TotalConversions == 0 {
		return nil, ErrNoData
	}
	return st, nil
}

// PeriodStats возвращает сохранённые агрегаты за [from, to], новые первыми.
func (s *Store) PeriodStats(ctx context.Context, from, to time.Time) ([]DailyStats, error) {
	rows, err := s.db.QueryContext(ctx, dailySelect+` WHERE date BETWEEN ? AND ? ORDER BY date DESC`,
		from.UTC().Format(time.DateOnly), to.UTC().Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения статистики за период: %w", err)
	}
	defer rows.Close()

	result := make([]DailyStats, 0)
	for rows.Next() {
		st, err := s.scanDaily(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	return result, rows.Err()
}

const dailySelect = `
	SELECT date, total_conversions, total_size_mb, unique_files, cache_hit_rate,
		avg_conversion_time, error_count, stats_json, updated_at
	FROM daily_stats`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanDaily(row rowScanner) (*DailyStats, error) {
	var st DailyStats
	var raw string
	err := row.Scan(&st.Date, &st.TotalConversions, &st.TotalSizeMB, &st.UniqueFiles,
		&st.CacheHitRate, &st.AvgConversionTime, &st.ErrorCount, &raw, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ошибка чтения дневной статистики: %w", err)
	}

	var decoded struct {
		ByType map[string]TypeStats `json:"by_type"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		s.logger.Warn("Повреждённый stats_json",
			slog.String("date", st.Date),
			slog.String("error", err.Error()),
		)
	}
	st.ByType = decoded.ByType
	if st.ByType == nil {
		st.ByType = map[string]TypeStats{}
	}
	return &st, nil
}

// Dashboard собирает сводку за последние days дней.
func (s *Store) Dashboard(ctx context.Context, days int) (*Dashboard, error) {
	since := s.now().UTC().AddDate(0, 0, -days).Format(timestampLayout)
	d := &Dashboard{
		Period:             days,
		FileTypes:          map[string]FileTypeStats{},
		TopFiles:           []TopFile{},
		HourlyDistribution: map[int]int{},
		Errors:             []ErrorStat{},
	}

	if err := s.fileTypeStats(ctx, since, d); err != nil {
		return nil, err
	}
	if err := s.topFiles(ctx, since, d); err != nil {
		return nil, err
	}
	if err := s.hourly(ctx, since, d); err != nil {
		return nil, err
	}
	if err := s.cacheEffectiveness(ctx, since, d); err != nil {
		return nil, err
	}
	if err := s.errorStats(ctx, since, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) fileTypeStats(ctx context.Context, since string, d *Dashboard) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			file_type,
			COUNT(*),
			COALESCE(SUM(file_size), 0) / ?,
			COALESCE(AVG(conversion_time), 0),
			SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END) * 100.0 / COUNT(*),
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM conversions
		WHERE created_at >= ? AND file_type IS NOT NULL
		GROUP BY file_type
		ORDER BY COUNT(*) DESC`, bytesPerMB, since)
	if err != nil {
		return fmt.Errorf("ошибка статистики по типам: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ft string
		var v FileTypeStats
		if err := rows.Scan(&ft, &v.Count, &v.SizeMB, &v.AvgTime, &v.CacheHitRate, &v.ErrorCount); err != nil {
			return fmt.Errorf("ошибка чтения статистики по типам: %w", err)
		}
		v.SizeMB = round(v.SizeMB, 2)
		v.AvgTime = round(v.AvgTime, 2)
		v.CacheHitRate = round(v.CacheHitRate, 1)
		d.FileTypes[ft] = v
	}
	return rows.Err()
}

func (s *Store) topFiles(ctx context.Context, since string, d *Dashboard) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_value, COALESCE(MAX(file_name), ''), COALESCE(MAX(file_type), ''),
			COUNT(*), MAX(created_at)
		FROM conversions
		WHERE created_at >= ? AND success = 1
		GROUP BY source_value
		ORDER BY COUNT(*) DESC, MAX(created_at) DESC
		LIMIT ?`, since, topFilesLimit)
	if err != nil {
		return fmt.Errorf("ошибка выборки популярных файлов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f TopFile
		if err := rows.Scan(&f.SourceValue, &f.FileName, &f.FileType, &f.ConversionCount, &f.LastConverted); err != nil {
			return fmt.Errorf("ошибка чтения популярных файлов: %w", err)
		}
		d.TopFiles = append(d.TopFiles, f)
	}
	return rows.Err()
}

func (s *Store) hourly(ctx context.Context, since string, d *Dashboard) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(strftime('%H', created_at) AS INTEGER) AS hour, COUNT(*)
		FROM conversions
		WHERE created_at >= ?
		GROUP BY hour
		ORDER BY hour`, since)
	if err != nil {
		return fmt.Errorf("ошибка распределения по часам: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hour, count int
		if err := rows.Scan(&hour, &count); err != nil {
			return fmt.Errorf("ошибка чтения распределения по часам: %w", err)
		}
		d.HourlyDistribution[hour] = count
	}
	return rows.Err()
}

func (s *Store) cacheEffectiveness(ctx context.Context, since string, d *Dashboard) error {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN cache_hit THEN 0 ELSE conversion_time END), 0),
			COALESCE(SUM(CASE WHEN cache_hit THEN 0 ELSE file_size END), 0) / ?
		FROM conversions
		WHERE created_at >= ? AND success = 1`, bytesPerMB, since)

	c := &d.CacheEffectiveness
	if err := row.Scan(&c.TotalRequests, &c.CacheHits, &c.TimeSaved, &c.BandwidthSavedMB); err != nil {
		return fmt.Errorf("ошибка расчёта эффективности кэша: %w", err)
	}
	if c.TotalRequests > 0 {
		c.HitRate = round(float64(c.CacheHits)*100/float64(c.TotalRequests), 1)
	}
	c.TimeSaved = round(c.TimeSaved, 2)
	c.BandwidthSavedMB = round(c.BandwidthSavedMB, 2)
	return nil
}

func (s *Store) errorStats(ctx context.Context, since string, d *Dashboard) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DATE(created_at) AS day, COALESCE(error_message, ''), COALESCE(file_type, ''), COUNT(*)
		FROM conversions
		WHERE success = 0 AND created_at >= ?
		GROUP BY day, error_message, file_type
		ORDER BY day DESC, COUNT(*) DESC`, since)
	if err != nil {
		return fmt.Errorf("ошибка статистики ошибок: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ErrorStat
		if err := rows.Scan(&e.Date, &e.ErrorMessage, &e.FileType, &e.Count); err != nil {
			return fmt.Errorf("ошибка чтения статистики ошибок: %w", err)
		}
		d.Errors = append(d.Errors, e)
	}
	return rows.Err()
}

// PruneOlderThan удаляет записи журнала старше days дней и сжимает базу.
// Дневные агрегаты сохраняются.
func (s *Store) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days).Format(timestampLayout)

	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления старых записей: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		s.logger.Warn("VACUUM не выполнен", slog.String("error", err.Error()))
	}

	s.logger.Info("Старые записи журнала удалены",
		slog.Int64("deleted", deleted),
		slog.String("cutoff", cutoff),
	)
	return deleted, nil
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
