package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/routing-engine/internal/api/http"
	"github.com/spec-kit/routing-engine/internal/api/http/handlers"
	"github.com/spec-kit/routing-engine/internal/broker"
	"github.com/spec-kit/routing-engine/internal/classify"
	"github.com/spec-kit/routing-engine/internal/config"
	"github.com/spec-kit/routing-engine/internal/dedup"
	"github.com/spec-kit/routing-engine/internal/events"
	"github.com/spec-kit/routing-engine/internal/observability"
	"github.com/spec-kit/routing-engine/internal/persistence"
	"github.com/spec-kit/routing-engine/internal/queue"
	"github.com/spec-kit/routing-engine/internal/repository"
	"github.com/spec-kit/routing-engine/internal/routing"
	"github.com/spec-kit/routing-engine/internal/scheduler"
	"github.com/spec-kit/routing-engine/internal/service"
	"github.com/spec-kit/routing-engine/internal/worker"
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

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if cfg.Postgres.RunMigrations && pool != nil {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	deadLetterRepo := repository.NewDeadLetterRepository(pool)
	historyRepo := repository.NewRoutingHistoryRepository(pool)

	tickets := repository.NewTicketStore()
	pq := queue.New()
	brk := broker.New(pq, redis.Client, cfg.Broker, deadLetterRepo, logger)

	skillRouter := routing.NewRouter(cfg.Scheduler.HistoryWindow, logger)
	skillRouter.SetArchiver(historyRepo)

	dispatcher := events.NewInMemoryDispatcher()

	sched := scheduler.New(cfg.Scheduler, scheduler.Dependencies{
		Tickets:    tickets,
		Router:     skillRouter,
		Broker:     brk,
		Dispatcher: dispatcher,
	}, logger)

	breaker := classify.NewBreaker("classifier", cfg.Breaker, logger)
	fallback := classify.NewKeywordClassifier()
	var primary classify.Classifier = fallback
	if cfg.Classifier.ModelEndpoint != "" {
		primary = classify.NewModelClassifier(cfg.Classifier.ModelEndpoint)
	} else {
		logger.Warn("CLASSIFIER_MODEL_ENDPOINT not set; running on keyword classifier only")
	}
	pipeline := classify.NewPipeline(primary, fallback, breaker, cfg.Breaker, logger)

	deduplicator := dedup.New(cfg.Dedup)

	ticketService := service.NewTicketService(cfg.Alert, service.TicketDependencies{
		Pipeline:     pipeline,
		Deduplicator: deduplicator,
		Tickets:      tickets,
		Broker:       brk,
		Scheduler:    sched,
		Dispatcher:   dispatcher,
	}, logger)

	alertService := service.NewAlertService(logger)
	alertService.RegisterHandlers(dispatcher)

	workerPool := worker.NewDispatchWorker(cfg.Worker, worker.Dependencies{
		Broker:     brk,
		Scheduler:  sched,
		Tickets:    tickets,
		Dispatcher: dispatcher,
	}, logger)
	workerPool.Start(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets: handlers.NewTicketsHandler(ticketService),
		Agents:  handlers.NewAgentsHandler(skillRouter),
		Stats:   handlers.NewStatsHandler(brk, pipeline, skillRouter, sched, deduplicator, deadLetterRepo, historyRepo),
		Admin:   handlers.NewAdminHandler(breaker),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	workerPool.Wait()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
