package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/core/port"
	"github.com/arklim/approval-gate/internal/infra/config"
	"github.com/arklim/approval-gate/internal/infra/database"
	kafkainfra "github.com/arklim/approval-gate/internal/infra/kafka"
	"github.com/arklim/approval-gate/internal/infra/logger"
	redisinfra "github.com/arklim/approval-gate/internal/infra/redis"
	"github.com/arklim/approval-gate/internal/infra/telegram"
	"github.com/arklim/approval-gate/internal/infra/telemetry"
	postgresrepo "github.com/arklim/approval-gate/internal/repository/postgres"
	redisrepo "github.com/arklim/approval-gate/internal/repository/redis"
	"github.com/arklim/approval-gate/internal/transport/http/middleware"
	"github.com/arklim/approval-gate/internal/transport/http/routes"
	transporttg "github.com/arklim/approval-gate/internal/transport/telegram"
	"github.com/arklim/approval-gate/internal/usecase"
)

// Application owns the wired service graph and its shutdown order.
type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	lifecycle *usecase.LifecycleService
	sweeper   *usecase.Sweeper
	bot       *telegram.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	if err := postgresrepo.Migrate(database.DSN(cfg.Postgres)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)
	requestCache := redisrepo.NewRequestCacheRepository(redisClient.Client(), cfg.Redis.RequestPrefix)

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	bot := telegram.NewClient(cfg.Telegram, log)
	notifier := telegram.NewNotifier(bot, log)

	registryService := usecase.NewRegistryService(repos.Clients, eventPublisher, log)

	lifecycleService := usecase.NewLifecycleService(
		requestCache,
		repos.Requests,
		registryService,
		notifier,
		eventPublisher,
		metrics,
		log,
		usecase.LifecycleConfig{
			RequestTimeout: cfg.Auth.RequestTimeout,
			MaxPending:     cfg.Auth.MaxPendingRequests,
		},
	)

	sweeper := usecase.NewSweeper(
		requestCache,
		repos.Requests,
		eventPublisher,
		metrics,
		log,
		usecase.SweeperConfig{
			Interval:       cfg.Auth.SweepInterval,
			RequestTimeout: cfg.Auth.RequestTimeout,
		},
	)

	webhookHandler := transporttg.NewWebhookHandler(
		registryService,
		lifecycleService,
		bot,
		cfg.Telegram.WebhookSecret,
		log,
	)

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Webhook:  webhookHandler,
		Metrics:  httpMetrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Registry:  registryService,
			Lifecycle: lifecycleService,
		},
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		producer:  producer,
		lifecycle: lifecycleService,
		sweeper:   sweeper,
		bot:       bot,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	if a.cfg.Telegram.WebhookURL != "" {
		if err := a.bot.SetWebhook(ctx, a.cfg.Telegram.WebhookURL, a.cfg.Telegram.WebhookSecret); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		a.logger.Info("telegram webhook registered", zap.String("url", a.cfg.Telegram.WebhookURL))
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go a.sweeper.Run(sweepCtx)
	defer stopSweeper()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting approval API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		stopSweeper()
		// Let trailing audit writes land before the stores close.
		if err := a.lifecycle.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("durable writes not drained", zap.Error(err))
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
