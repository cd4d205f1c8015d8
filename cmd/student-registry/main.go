// Точка входа Student Registry — сервис регистрации студентов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// запускает очередь сжатия медиафайлов, очистку просроченных черновиков,
// мониторинг зависимостей и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/student-registry/internal/api/handlers"
	"github.com/bigkaa/student-registry/internal/api/middleware"
	"github.com/bigkaa/student-registry/internal/compress"
	"github.com/bigkaa/student-registry/internal/config"
	"github.com/bigkaa/student-registry/internal/database"
	"github.com/bigkaa/student-registry/internal/mail"
	"github.com/bigkaa/student-registry/internal/repository"
	"github.com/bigkaa/student-registry/internal/server"
	"github.com/bigkaa/student-registry/internal/service"
	"github.com/bigkaa/student-registry/internal/storage/mediastore"
)

func main() {
	// 0. Локальный запуск: переменные из .env, если файл есть.
	// Уже заданные переменные окружения не перезаписываются.
	dotenvErr := godotenv.Load()

	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("Student Registry запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)
	switch {
	case dotenvErr == nil:
		logger.Info("Переменные окружения дополнены из .env")
	case !errors.Is(dotenvErr, fs.ErrNotExist):
		logger.Warn("Ошибка чтения .env", slog.String("error", dotenvErr.Error()))
	}

	// 3. Миграции БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Очередь сжатия медиафайлов
	if path, err := compress.LocateFFmpeg(cfg.FFmpegPath); err != nil {
		logger.Warn("ffmpeg не найден, видео будут храниться без сжатия",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("ffmpeg найден", slog.String("path", path))
	}

	compressionQueue := service.NewCompressionQueue(
		&compress.ImageCompressor{
			MaxWidth:    cfg.ImageMaxWidth,
			MaxHeight:   cfg.ImageMaxHeight,
			JPEGQuality: cfg.JPEGQuality,
		},
		&compress.VideoCompressor{
			FFmpegPath: cfg.FFmpegPath,
			CRF:        cfg.VideoCRF,
		},
		logger,
	)
	compressionQueue.Start(ctx)

	// 6. Файловое хранилище
	store, err := mediastore.New(cfg.ContentRoot, compressionQueue, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища медиафайлов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Почта (опционально)
	var mailer service.Mailer
	smtpSender, err := mail.NewSMTPSender(cfg, logger)
	switch {
	case errors.Is(err, mail.ErrNotConfigured):
		logger.Info("SR_SMTP_HOST не задан, учётные данные будут показываться пользователю")
	case err != nil:
		logger.Error("Ошибка настройки SMTP", slog.String("error", err.Error()))
		os.Exit(1)
	default:
		mailer = smtpSender
		logger.Info("Отправка писем включена", slog.String("smtp_host", cfg.SMTPHost))
	}

	// 8. Репозитории и сервисы
	draftRepo := repository.NewDraftRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)

	listCache := service.NewStudentListCache(cfg.ListCacheSize, cfg.ListCacheTTL)
	draftSvc := service.NewDraftService(draftRepo, store, logger)
	studentSvc := service.NewStudentService(studentRepo, store, listCache, logger)
	registrationSvc := service.NewRegistrationService(
		draftRepo,
		studentRepo,
		store,
		listCache,
		mailer,
		cfg.PasswordLength,
		logger,
	)

	// 9. Очистка просроченных черновиков
	sweeper := service.NewDraftSweeper(draftSvc, store, cfg.DraftExpiryMinutes, cfg.SweepInterval, logger)
	sweeper.Start(ctx)

	// 10. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, err := service.NewDephealthService(serviceName(), cfg, pgDB, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		dephealthSvc = nil
	}

	// 11. HTTP-сервер
	srv := server.New(cfg, logger, server.Handlers{
		Health:        handlers.NewHealthHandler(database.NewReadinessChecker(pool), store.UploadsRoot()),
		Drafts:        handlers.NewDraftsHandler(draftSvc, store, sweeper, cfg.UploadMaxBytes, logger),
		Registrations: handlers.NewRegistrationsHandler(registrationSvc, logger),
		Students:      handlers.NewStudentsHandler(studentSvc, cfg.UploadMaxBytes, logger),
		UploadsDir:    store.UploadsRoot(),
	},
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
	}

	// 12. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	sweeper.Stop()
	compressionQueue.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		os.Exit(1)
	}
	logger.Info("Student Registry остановлен")
}
