// Точка входа central-auth — HTTP API каталога глобальных аккаунтов.
// Загружает конфигурацию, применяет миграции, подключается к primary и
// реплике PostgreSQL, собирает сервисный слой и API handlers, запускает
// мониторинг зависимостей и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/centralauth/internal/api/handlers"
	"github.com/bigkaa/centralauth/internal/api/middleware"
	"github.com/bigkaa/centralauth/internal/config"
	"github.com/bigkaa/centralauth/internal/database"
	"github.com/bigkaa/centralauth/internal/i18n"
	"github.com/bigkaa/centralauth/internal/repository"
	"github.com/bigkaa/centralauth/internal/server"
	"github.com/bigkaa/centralauth/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("central-auth запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("site", cfg.SiteID),
	)

	if cfg.SiteID == "" {
		logger.Error("CA_SITE_ID обязателен для каталога: по нему оцениваются наборы сайтов")
		os.Exit(1)
	}
	if os.Getenv("CA_DEPHEALTH_GROUP") == "" {
		logger.Warn("CA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Применение миграций БД
	if cfg.DBMigrateOnStart {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 4. Подключение к primary и реплике
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	replicaPool := pool
	if cfg.HasReplica() {
		replicaPool, err = database.ConnectReplica(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к реплике PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer replicaPool.Close()
	}

	// 5. Repositories: каталог читает с реплики
	directoryRepo := repository.NewDirectoryRepository(replicaPool)
	wikisetRepo := repository.NewWikisetRepository(replicaPool)
	userPageRepo := repository.NewUserPageRepository(replicaPool)

	// 6. Services
	bundle, err := i18n.NewDefaultBundle(logger)
	if err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	scopeCache := service.NewWikisetCache(cfg.WikisetCacheSize, cfg.WikisetCacheTTL)
	pager := service.NewDirectoryPager(
		directoryRepo, wikisetRepo, userPageRepo,
		scopeCache, bundle,
		cfg.DirectoryDefaultLimit, cfg.DirectoryMaxLimit,
		logger,
	)

	// 7. topologymetrics — мониторинг primary и реплики
	dephealthSvc := startDephealth(ctx, cfg, pool, replicaPool, logger)
	if dephealthSvc != nil {
		defer dephealthSvc.Stop()
	}

	// 8. Health и API handlers
	checkers := []handlers.ReadinessChecker{database.NewReadinessChecker("postgresql", pool)}
	if cfg.HasReplica() {
		checkers = append(checkers, database.NewReadinessChecker("postgresql-replica", replicaPool))
	}
	healthHandler := handlers.NewHealthHandler(checkers...)
	apiHandler := handlers.NewAPIHandler(healthHandler, pager, bundle, cfg.SiteID, logger)

	// 9. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
		i18n.Middleware(),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("central-auth остановлен")
}

// startDephealth запускает мониторинг зависимостей.
// Ошибки не фатальны: сервис работает без метрик зависимостей.
func startDephealth(ctx context.Context, cfg *config.Config, pool, replicaPool *pgxpool.Pool, logger *slog.Logger) *service.DephealthService {
	primary := service.DatabaseTarget{DB: stdlib.OpenDBFromPool(pool), URL: cfg.DatabaseURL()}
	var replica *service.DatabaseTarget
	if cfg.HasReplica() {
		replica = &service.DatabaseTarget{DB: stdlib.OpenDBFromPool(replicaPool), URL: cfg.ReplicaURL()}
	}

	dephealthSvc, err := service.NewDephealthService(
		"central-auth",
		cfg.DephealthGroup,
		primary,
		replica,
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("group", cfg.DephealthGroup),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return dephealthSvc
}
