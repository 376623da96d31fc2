// Точка входа Sync Module — модуль синхронизации журналов GoJournal.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// инициализирует файловое хранилище и peer-клиент, создаёт сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/gojournal/sync-module/internal/api/handlers"
	"github.com/bigkaa/gojournal/sync-module/internal/api/middleware"
	"github.com/bigkaa/gojournal/sync-module/internal/config"
	"github.com/bigkaa/gojournal/sync-module/internal/database"
	"github.com/bigkaa/gojournal/sync-module/internal/filestore"
	"github.com/bigkaa/gojournal/sync-module/internal/peerclient"
	"github.com/bigkaa/gojournal/sync-module/internal/server"
	"github.com/bigkaa/gojournal/sync-module/internal/service"
)

// peerAuthLeeway — допустимое отклонение часов при проверке входящих peer-токенов.
const peerAuthLeeway = 30 * time.Second

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Sync Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("server_name", cfg.ServerName),
	)

	if os.Getenv("SM_DEPHEALTH_GROUP") == "" {
		logger.Warn("SM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
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
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Файловое хранилище содержимого вложений
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации файлового хранилища",
			slog.String("data_dir", cfg.DataDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Файловое хранилище инициализировано", slog.String("data_dir", cfg.DataDir))

	// 6. HTTP-клиент удалённых серверов
	peerClient, err := peerclient.New(cfg.PeerCACertPath, cfg.PeerTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания peer-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Кэш резолвинга журналов и пользователей по UID
	cache := service.NewResolveCache(cfg.CacheSize, cfg.CacheTTL)

	// 8. Сервисный слой
	entrySyncSvc := service.NewEntrySyncService(pool, peerClient, store, cfg.ServerName, logger)
	receiveSvc := service.NewReceiveService(pool, cache, store, logger)

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL)
	dephealthSvc, err := service.NewDephealthService(
		"sync-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания dephealth-сервиса", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска dephealth-сервиса", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dephealthSvc.Stop()

	// 10. API handlers
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker)
	apiHandler := handlers.NewAPIHandler(healthHandler, entrySyncSvc, receiveSvc, logger)

	// 11. Middleware аутентификации удалённых серверов
	peerAuth := middleware.NewPeerAuth(cfg.PeerJWTSecret, peerAuthLeeway, logger)

	// 12. HTTP-сервер с graceful shutdown
	srv := server.New(cfg, logger, apiHandler, peerAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Дожидаемся фоновых запусков синхронизации перед выходом
	logger.Info("Ожидание завершения фоновых запусков синхронизации...")
	entrySyncSvc.Wait()

	logger.Info("Sync Module остановлен")
}
