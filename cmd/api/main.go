package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/mail"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/storage"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	emailLogRepo := repository.NewEmailLogRepository(pool)
	analyticsRepo := repository.NewAnalyticsRepository(pool)
	commentRepo := repository.NewTicketCommentRepository(pool)

	history := service.NewHistoryRecorder(historyRepo, logger)
	notifier := service.NewNotificationService(service.NotificationDependencies{
		Renderer:  mail.NewRenderer(cfg.App.FrontendURL),
		Sender:    mail.NewSender(cfg.SMTP, logger),
		EmailLogs: emailLogRepo,
		History:   history,
		Metrics:   metrics,
		Logger:    logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      ticketRepo,
		DepartmentRepo:  departmentRepo,
		UserRepo:        userRepo,
		History:         history,
		Notifier:        notifier,
		Logger:          logger,
		DefaultDeadline: cfg.Ticket.DefaultDeadline(),
	})
	overdueService := service.NewOverdueService(service.OverdueDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Notifier:   notifier,
		Config:     cfg.Sweep,
		Metrics:    metrics,
		Logger:     logger,
	})
	authService := service.NewAuthService(cfg.Auth, userRepo)
	directoryService := service.NewDirectoryService(departmentRepo, userRepo, cfg.Auth.BcryptCost)
	analyticsService := service.NewAnalyticsService(analyticsRepo, emailLogRepo, nil)
	commentService := service.NewCommentService(commentRepo, ticketRepo)

	images, err := storage.NewImageStore(cfg.Uploads.Dir, cfg.Uploads.MaxBytes())
	if err != nil {
		logger.Fatal("failed to prepare uploads", zap.Error(err))
	}

	sweeper := worker.NewOverdueSweeper(overdueService, redis, cfg.Sweep.Interval(), cfg.Sweep.LockTTL(), logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(directoryService),
		Departments:    handlers.NewDepartmentsHandler(directoryService),
		Tickets:        handlers.NewTicketsHandler(ticketService, images),
		Comments:       handlers.NewCommentsHandler(commentService, images),
		Analytics:      handlers.NewAnalyticsHandler(analyticsService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), userRepo),
		Metrics:        adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		UploadDir:      images.Dir(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	sweeper.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
