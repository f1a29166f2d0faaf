// Точка входа Auth Module — модуль аутентификации Report Store.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует клиент Google OIDC, сервисный слой и API handlers,
// запускает мониторинг зависимостей (topologymetrics) и HTTP-сервер
// с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/avkuzmin/reportstore/auth-module/internal/api/handlers"
	"github.com/avkuzmin/reportstore/auth-module/internal/api/middleware"
	"github.com/avkuzmin/reportstore/auth-module/internal/auth"
	"github.com/avkuzmin/reportstore/auth-module/internal/config"
	"github.com/avkuzmin/reportstore/auth-module/internal/database"
	"github.com/avkuzmin/reportstore/auth-module/internal/idp"
	"github.com/avkuzmin/reportstore/auth-module/internal/repository"
	"github.com/avkuzmin/reportstore/auth-module/internal/server"
	"github.com/avkuzmin/reportstore/auth-module/internal/service"
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
	logger.Info("Auth Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("AU_DEPHEALTH_GROUP") == "" {
		logger.Warn("AU_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Клиент Google OIDC и Verifier id_token
	idpClient := idp.NewClient(idp.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		DiscoveryURL: cfg.GoogleDiscoveryURL,
		DiscoveryTTL: cfg.DiscoveryCacheTTL,
		Timeout:      cfg.IDPTimeout,
	}, logger)
	verifier := idp.NewVerifier(idpClient, logger)
	logger.Info("Клиент провайдера удостоверений создан",
		slog.String("discovery_url", cfg.GoogleDiscoveryURL),
	)

	// 6. Repositories
	userRepo := repository.NewUserRepository(pool)
	reportRepo := repository.NewReportRepository(pool)
	ledgerRepo := repository.NewLedgerAccountRepository(pool)

	// 7. Кодек session-токенов и сервисы
	codec := auth.NewTokenCodec(cfg.JWTSecret, cfg.TokenLifetime)
	authSvc := service.NewAuthService(userRepo, codec, logger)
	reportSvc := service.NewReportService(reportRepo, userRepo, logger)
	ledgerSvc := service.NewLedgerService(ledgerRepo, logger)

	// 7.1 Стартовый план счетов для пустой базы
	if err := ledgerSvc.Seed(ctx); err != nil {
		logger.Error("Ошибка загрузки стартового плана счетов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Readiness checker (PostgreSQL)
	pgChecker := database.NewReadinessChecker(pool)

	// 9. API handlers
	h := server.Handlers{
		Health: handlers.NewHealthHandler(pgChecker),
		Auth: handlers.NewAuthHandler(
			authSvc, userRepo, idpClient, verifier,
			cfg.GoogleRedirectURI(), cfg.FrontendURL,
			logger,
		),
		Report: handlers.NewReportHandler(reportSvc, logger),
		Ledger: handlers.NewLedgerHandler(ledgerSvc, logger),
	}

	// 10. Session middleware
	gate := middleware.NewSessionAuth(codec, logger)

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + Google OIDC)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"auth-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.GoogleDiscoveryURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, gate,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Auth Module остановлен")
}
