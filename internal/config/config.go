// Пакет config — загрузка и валидация конфигурации docview
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/docview/internal/domain/model"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// ClockTime — время суток для планировщика (часы и минуты).
type ClockTime struct {
	Hour   int
	Minute int
}

// String — формат HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Config содержит все параметры конфигурации docview.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Внешний базовый URL сервиса, используется в ссылках на результаты
	PublicURL string

	// Базовая директория данных
	BaseDir string
	// Директория кэша исходных документов
	CacheDir string
	// Директория результатов конвертации
	ConvertedDir string
	// Корень профилей внешнего конвертера (по одному на слот)
	ProfileDir string
	// Путь к SQLite базе статистики
	StatsDBPath string

	// Бэкенд индекса кэша: memory или redis
	CacheBackend string
	// Максимум записей in-memory индекса
	CacheMaxEntries int
	// Адрес Redis (host:port)
	RedisAddr string
	// Пароль Redis (опционально)
	RedisPassword string
	// Номер базы Redis
	RedisDB int
	// TTL записи индекса
	CacheTTL time.Duration

	// Таймаут загрузки удалённого документа
	HTTPTimeout time.Duration
	// Максимальный размер загружаемого документа в байтах
	MaxDownloadSize int64
	// Допустимые расширения исходников
	AllowedExtensions []string

	// Явный путь к исполняемому файлу конвертера (иначе поиск в PATH)
	ConverterPath string
	// Таймаут одного запуска конвертера
	ConverterTimeout time.Duration
	// Число одновременных запусков конвертера (слотов профиля)
	ConverterSlots int
	// Число одновременных встроенных рендеров
	RenderWorkers int

	// Возраст файлов, удаляемых очисткой
	Retention time.Duration
	// Бюджет времени одного прохода очистки
	SweepTimeout time.Duration
	// Время ежедневной задачи (пересчёт статистики + очистка)
	DailyAt ClockTime
	// Время еженедельной задачи (воскресенье, удаление старой статистики)
	WeeklyAt ClockTime
	// Срок хранения записей статистики в днях
	StatsRetentionDays int
	// Период опроса планировщика
	SchedulerTick time.Duration

	// Путь к TLS сертификату (опционально, вместе с TLSKey)
	TLSCert string
	// Путь к TLS приватному ключу
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (DV_DEPHEALTH_GROUP)
	DephealthGroup string
	// Имя вершины графа topologymetrics (DV_DEPHEALTH_NAME), пусто — по имени пода
	DephealthName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// DV_PORT — порт HTTP-сервера (по умолчанию 8003)
	port, err := getEnvInt("DV_PORT", 8003)
	if err != nil {
		return nil, fmt.Errorf("DV_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("DV_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// DV_PUBLIC_URL — внешний URL (по умолчанию http://localhost:<port>)
	cfg.PublicURL = strings.TrimRight(getEnvDefault("DV_PUBLIC_URL", fmt.Sprintf("http://localhost:%d", port)), "/")

	// Директории: все производные от DV_BASE_DIR, если не заданы явно
	cfg.BaseDir = getEnvDefault("DV_BASE_DIR", "/aview/data")
	cfg.CacheDir = getEnvDefault("DV_CACHE_DIR", filepath.Join(cfg.BaseDir, "cache"))
	cfg.ConvertedDir = getEnvDefault("DV_CONVERTED_DIR", filepath.Join(cfg.CacheDir, "converted"))
	cfg.ProfileDir = getEnvDefault("DV_PROFILE_DIR", filepath.Join(cfg.BaseDir, "lo_profile"))
	cfg.StatsDBPath = getEnvDefault("DV_STATS_DB_PATH", filepath.Join(cfg.BaseDir, "db", "aview_stats.db"))
	if filepath.Clean(cfg.CacheDir) == filepath.Clean(cfg.ConvertedDir) {
		return nil, fmt.Errorf("DV_CONVERTED_DIR: не может совпадать с DV_CACHE_DIR (%s)", cfg.CacheDir)
	}

	// DV_CACHE_BACKEND — memory (по умолчанию) или redis
	cfg.CacheBackend = getEnvDefault("DV_CACHE_BACKEND", "memory")
	if cfg.CacheBackend != "memory" && cfg.CacheBackend != "redis" {
		return nil, fmt.Errorf("DV_CACHE_BACKEND: недопустимое значение %q, допустимые: memory, redis", cfg.CacheBackend)
	}

	cfg.CacheMaxEntries, err = getEnvInt("DV_CACHE_MAX_ENTRIES", 10000)
	if err != nil {
		return nil, fmt.Errorf("DV_CACHE_MAX_ENTRIES: %w", err)
	}
	if cfg.CacheMaxEntries <= 0 {
		return nil, fmt.Errorf("DV_CACHE_MAX_ENTRIES: значение должно быть положительным")
	}

	// DV_REDIS_ADDR — обязательный для backend=redis
	cfg.RedisAddr = getEnvDefault("DV_REDIS_ADDR", "")
	if cfg.CacheBackend == "redis" {
		cfg.RedisAddr, err = getEnvRequired("DV_REDIS_ADDR")
		if err != nil {
			return nil, err
		}
	}
	cfg.RedisPassword = getEnvDefault("DV_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("DV_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("DV_REDIS_DB: %w", err)
	}

	// DV_CACHE_TTL — время жизни записи индекса (по умолчанию 24h)
	cfg.CacheTTL, err = getEnvPositiveDuration("DV_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	// DV_HTTP_TIMEOUT — таймаут загрузки удалённого документа (по умолчанию 30s)
	cfg.HTTPTimeout, err = getEnvPositiveDuration("DV_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	// DV_MAX_DOWNLOAD_SIZE — максимальный размер загрузки (по умолчанию 100 MB)
	cfg.MaxDownloadSize, err = getEnvInt64("DV_MAX_DOWNLOAD_SIZE", 100*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("DV_MAX_DOWNLOAD_SIZE: %w", err)
	}
	if cfg.MaxDownloadSize <= 0 {
		return nil, fmt.Errorf("DV_MAX_DOWNLOAD_SIZE: значение должно быть положительным")
	}

	// DV_ALLOWED_EXTENSIONS — список через запятую
	cfg.AllowedExtensions = getEnvList("DV_ALLOWED_EXTENSIONS", model.DefaultAllowedExtensions)

	cfg.ConverterPath = getEnvDefault("DV_CONVERTER_PATH", "")

	// DV_CONVERTER_TIMEOUT — таймаут конвертера (по умолчанию 60s)
	cfg.ConverterTimeout, err = getEnvPositiveDuration("DV_CONVERTER_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.ConverterSlots, err = getEnvInt("DV_CONVERTER_SLOTS", 2)
	if err != nil {
		return nil, fmt.Errorf("DV_CONVERTER_SLOTS: %w", err)
	}
	if cfg.ConverterSlots < 1 {
		return nil, fmt.Errorf("DV_CONVERTER_SLOTS: значение должно быть >= 1")
	}

	cfg.RenderWorkers, err = getEnvInt("DV_RENDER_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("DV_RENDER_WORKERS: %w", err)
	}
	if cfg.RenderWorkers < 1 {
		return nil, fmt.Errorf("DV_RENDER_WORKERS: значение должно быть >= 1")
	}

	// Очистка и планировщик
	cfg.Retention, err = getEnvPositiveDuration("DV_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.SweepTimeout, err = getEnvPositiveDuration("DV_SWEEP_TIMEOUT", 300*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.DailyAt, err = parseClock(getEnvDefault("DV_DAILY_AT", "03:00"))
	if err != nil {
		return nil, fmt.Errorf("DV_DAILY_AT: %w", err)
	}
	cfg.WeeklyAt, err = parseClock(getEnvDefault("DV_WEEKLY_AT", "02:00"))
	if err != nil {
		return nil, fmt.Errorf("DV_WEEKLY_AT: %w", err)
	}
	cfg.StatsRetentionDays, err = getEnvInt("DV_STATS_RETENTION_DAYS", 90)
	if err != nil {
		return nil, fmt.Errorf("DV_STATS_RETENTION_DAYS: %w", err)
	}
	if cfg.StatsRetentionDays < 1 {
		return nil, fmt.Errorf("DV_STATS_RETENTION_DAYS: значение должно быть >= 1")
	}
	cfg.SchedulerTick, err = getEnvPositiveDuration("DV_SCHEDULER_TICK", time.Minute)
	if err != nil {
		return nil, err
	}

	// TLS — опционально, но только парой
	cfg.TLSCert = getEnvDefault("DV_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("DV_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("DV_TLS_CERT и DV_TLS_KEY должны задаваться вместе")
	}

	// DV_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DV_LOG_LEVEL: %w", err)
	}

	// DV_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvPositiveDuration("DV_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	// DV_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("DV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.DephealthGroup = getEnvDefault("DV_DEPHEALTH_GROUP", "docview")
	cfg.DephealthName = getEnvDefault("DV_DEPHEALTH_NAME", "")

	return cfg, nil
}

// TLSEnabled — true, если заданы сертификат и ключ.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// EnsureDirs создаёт рабочие директории, если их нет.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.CacheDir, c.ConvertedDir, c.ProfileDir, filepath.Dir(c.StatsDBPath)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
		}
	}
	return nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — getEnvDuration с проверкой d > 0.
// Ошибка уже содержит имя переменной.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным", key)
	}
	return d, nil
}

// getEnvList разбирает список через запятую; пустые элементы отбрасываются.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseClock разбирает время суток в формате HH:MM.
func parseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return ClockTime{}, fmt.Errorf("некорректное время %q (формат HH:MM)", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
