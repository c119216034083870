// Точка входа docview — шлюза конвертации и просмотра документов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goartstore/docview/internal/api/handlers"
	"github.com/bigkaa/goartstore/docview/internal/api/middleware"
	"github.com/bigkaa/goartstore/docview/internal/api/openapi"
	"github.com/bigkaa/goartstore/docview/internal/config"
	"github.com/bigkaa/goartstore/docview/internal/convert"
	"github.com/bigkaa/goartstore/docview/internal/domain/model"
	"github.com/bigkaa/goartstore/docview/internal/server"
	"github.com/bigkaa/goartstore/docview/internal/service"
	"github.com/bigkaa/goartstore/docview/internal/stats"
	"github.com/bigkaa/goartstore/docview/internal/storage/filestore"
	"github.com/bigkaa/goartstore/docview/internal/storage/index"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("docview запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("cache_dir", cfg.CacheDir),
		slog.String("cache_backend", cfg.CacheBackend),
	)

	if err := cfg.EnsureDirs(); err != nil {
		logger.Error("Ошибка создания рабочих директорий", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. Файловые хранилища: исходники и результаты
	cacheStore, err := filestore.New(cfg.CacheDir)
	if err != nil {
		logger.Error("Ошибка инициализации кэша", slog.String("error", err.Error()))
		os.Exit(1)
	}
	convertedStore, err := filestore.New(cfg.ConvertedDir)
	if err != nil {
		logger.Error("Ошибка инициализации директории результатов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Индекс кэша: в памяти или Redis
	var (
		idx          index.Index
		rdb          *redis.Client
		dephealthSvc *service.DephealthService
	)
	switch cfg.CacheBackend {
	case "redis":
		rdb = index.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		idx = index.NewRedisIndex(rdb, logger)

		// topologymetrics — мониторинг Redis
		var dhErr error
		dephealthSvc, dhErr = service.NewDephealthService(
			dephealthName(cfg),
			cfg.DephealthGroup,
			rdb,
			cfg.RedisAddr,
			cfg.DephealthCheckInterval,
			logger,
		)
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
			dephealthSvc = nil
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		}
	default:
		memIdx := index.NewMemoryIndex(cfg.CacheMaxEntries, cfg.CacheTTL, true, logger)
		if err := memIdx.BuildFromDir(cfg.CacheDir); err != nil {
			logger.Error("Ошибка построения индекса", slog.String("error", err.Error()))
			os.Exit(1)
		}
		idx = memIdx
	}
	logger.Info("Индекс кэша готов", slog.String("backend", idx.Backend()))

	// 3. База статистики использования
	st, err := stats.Open(ctx, cfg.StatsDBPath, logger)
	if err != nil {
		logger.Error("Ошибка открытия базы статистики", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Внешний конвертер
	runner, err := convert.NewSofficeRunner(convert.SofficeConfig{
		BinaryPath:  cfg.ConverterPath,
		ProfileRoot: cfg.ProfileDir,
		Slots:       cfg.ConverterSlots,
		Timeout:     cfg.ConverterTimeout,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации конвертера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if version, vErr := runner.Version(ctx); vErr != nil {
		// Без конвертера работают встроенные рендеры
		logger.Warn("Конвертер недоступен", slog.String("error", vErr.Error()))
	} else {
		logger.Info("Конвертер найден", slog.String("version", version))
	}

	// 5. Сервисы
	resolver := service.NewResolver(idx, cacheStore, model.NewExtensionPolicy(cfg.AllowedExtensions), st,
		service.ResolverConfig{
			TTL:             cfg.CacheTTL,
			HTTPTimeout:     cfg.HTTPTimeout,
			MaxDownloadSize: cfg.MaxDownloadSize,
		}, logger)
	engine := convert.NewEngine(convertedStore, runner, st, convert.EngineConfig{
		RenderWorkers:   cfg.RenderWorkers,
		SourceURLPrefix: "/aview/cache",
	}, logger)
	gateway := service.NewGateway(resolver, engine, st, logger)
	downloadSvc := service.NewDownloadService(cacheStore, convertedStore, logger)

	// 6. Фоновые процессы: очистка и обслуживание статистики

	sweeper := service.NewSweeper([]string{cfg.CacheDir, cfg.ConvertedDir}, logger)
	scheduler := service.NewScheduler(cfg.SchedulerTick, logger,
		service.DailyMaintenanceJob(cfg.DailyAt, st, sweeper, cfg.Retention, cfg.SweepTimeout, logger),
		service.WeeklyMaintenanceJob(cfg.WeeklyAt, st, cfg.StatsRetentionDays, logger),
	)
	scheduler.Start(ctx)

	// 7. Handlers
	filesHandler := handlers.NewFilesHandler(gateway, downloadSvc, cfg.PublicURL)
	systemHandler := handlers.NewSystemHandler(cacheStore, convertedStore, diskUsageFn(cfg.CacheDir), logger)
	maintenanceHandler := handlers.NewMaintenanceHandler(sweeper, cfg.SweepTimeout)
	statsHandler := handlers.NewStatsHandler(st, logger)
	healthHandler := handlers.NewHealthHandler([]string{cfg.CacheDir, cfg.ConvertedDir}, idx, runner, st)
	metricsHandler := server.NewMetricsHandler()

	// Единый API handler
	apiHandler := handlers.NewAPIHandler(
		filesHandler,
		systemHandler,
		maintenanceHandler,
		statsHandler,
		healthHandler,
		metricsHandler,
		openapi.Spec(),
	)

	// 8. Валидация запросов по OpenAPI контракту
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := openapi.Validator(doc, logger)
	if err != nil {
		logger.Error("Ошибка инициализации валидатора", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
		validator,
	)

	runErr := srv.Run()

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	scheduler.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if err := st.Close(); err != nil {
		logger.Warn("Ошибка закрытия базы статистики", slog.String("error", err.Error()))
	}
	if rdb != nil {
		_ = rdb.Close()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("docview остановлен")
}

// diskUsageFn возвращает функцию для получения информации об ёмкости диска.
func diskUsageFn(dir string) handlers.DiskUsageFunc {
	return func() (int64, int64, int64, error) {
		return getDiskUsage(dir)
	}
}
