package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/quarantine-module/api"
	"github.com/bigkaa/goartstore/quarantine-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/quarantine-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/quarantine-module/internal/config"
	"github.com/bigkaa/goartstore/quarantine-module/internal/database"
	"github.com/bigkaa/goartstore/quarantine-module/internal/repository"
	"github.com/bigkaa/goartstore/quarantine-module/internal/server"
	"github.com/bigkaa/goartstore/quarantine-module/internal/service"
	"github.com/bigkaa/goartstore/quarantine-module/internal/storage/filestore"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и конвейер сканирования",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts.cfg)
		},
	}
}

// serve загружает зависимости, применяет миграции, поднимает конвейер
// и HTTP-сервер. Возвращается после graceful shutdown.
func serve(cfg *config.Config) error {
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}

	// 1. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("Quarantine Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("QR_DEPHEALTH_GROUP") == "" {
		logger.Warn("QR_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// Контракт API разбирается до подключения к БД: ошибка в нём фатальна.
	validateRequests, err := middleware.OpenAPIValidator(api.Spec())
	if err != nil {
		return fmt.Errorf("контракт API: %w", err)
	}

	// 2. Миграции и подключение к PostgreSQL
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
	// через тот же пул, исчерпание пула видно в метриках.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 3. Хранилище файлов и этапы
	files, err := filestore.New(cfg.DataDir)
	if err != nil {
		return err
	}
	deps := buildStages(cfg, files, logger)

	// 4. Сервисы
	store := repository.NewStore(pool)
	configSvc := service.NewConfigService(store, logger)
	pipeline := service.NewPipeline(store, files, configSvc, deps.stages, cfg.ScanWorkers, cfg.MaxUploadSize, logger)
	if err := pipeline.SetScanRoot(cfg.ScanRoot); err != nil {
		return err
	}
	if cfg.ScanRoot == "" {
		logger.Info("QR_SCAN_ROOT не задан, сканирование по пути выключено")
	}
	jobCache := service.NewJobCache(cfg.JobCacheSize, cfg.JobCacheTTL)
	querySvc := service.NewQueryService(store, jobCache, logger)
	reviewSvc := service.NewReviewService(store, files, jobCache, logger)
	signatureSvc := service.NewSignatureService(deps.daemon, deps.blacklist, logger)
	signatureSvc.SetYARARulesDir(cfg.YARARulesDir)

	// 5. Повторный запуск заданий, прерванных прошлой остановкой
	if cfg.RecoverOnStart {
		n, recErr := pipeline.Recover(ctx)
		if recErr != nil {
			logger.Warn("Ошибка восстановления незавершённых заданий",
				slog.String("error", recErr.Error()),
			)
		} else if n > 0 {
			logger.Info("Незавершённые задания перезапущены", slog.Int("jobs", n))
		}
	}

	// 6. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, dephealthErr := service.NewDephealthService(
		handlers.ServiceName,
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 7. HTTP API
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), files)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		pipeline,
		querySvc,
		reviewSvc,
		configSvc,
		signatureSvc,
		logger,
	)

	srv := server.New(cfg, logger, apiHandler, validateRequests)
	runErr := srv.Run()

	// 8. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := pipeline.Stop(stopCtx); err != nil {
		logger.Warn("Конвейер не остановился вовремя", slog.String("error", err.Error()))
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Quarantine Module остановлен")
	return runErr
}
