package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/core/port"
	"github.com/canvasvault/auth-service/internal/infra/config"
	"github.com/canvasvault/auth-service/internal/infra/database"
	kafkainfra "github.com/canvasvault/auth-service/internal/infra/kafka"
	"github.com/canvasvault/auth-service/internal/infra/logger"
	redisinfra "github.com/canvasvault/auth-service/internal/infra/redis"
	"github.com/canvasvault/auth-service/internal/infra/security"
	"github.com/canvasvault/auth-service/internal/infra/telemetry"
	"github.com/canvasvault/auth-service/internal/infra/upstream"
	postgresrepo "github.com/canvasvault/auth-service/internal/repository/postgres"
	redisrepo "github.com/canvasvault/auth-service/internal/repository/redis"
	"github.com/canvasvault/auth-service/internal/transport/http/middleware"
	"github.com/canvasvault/auth-service/internal/transport/http/routes"
	"github.com/canvasvault/auth-service/internal/usecase"
)

// Application owns the wired dependency graph and the HTTP server lifecycle.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
	tracer *telemetry.TracerProvider
}

// New wires the full service: infrastructure clients, repositories, usecases and
// the HTTP transport. Construction fails fast on any misconfiguration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.Enabled {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	signer, err := security.NewTokenSigner(cfg.JWT.SigningSecret, cfg.App.Name, cfg.JWT.AccessTokenTTL, cfg.JWT.ClockSkew)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token signer: %w", err)
	}

	hasher := security.NewPasswordHasher(cfg.Argon2)

	users := postgresrepo.NewUserRepository(pool)
	sessions := postgresrepo.NewSessionRepository(pool)
	credits := postgresrepo.NewCreditRepository(pool)
	providerKeys := postgresrepo.NewProviderKeyRepository(pool)

	otps := redisrepo.NewOTPStore(redisClient.Client(), cfg.Redis.OTPPrefix)
	markers := redisrepo.NewSessionMarkerStore(redisClient.Client(), cfg.Redis.MarkerPrefix)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "auth:ratelimit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var publisher interface {
		port.EventPublisher
		port.MailQueue
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			publisher = kafkainfra.NewStubPublisher(log)
		} else {
			publisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		publisher = kafkainfra.NewStubPublisher(log)
	}

	tokenService := usecase.NewTokenService(cfg, signer, sessions, users, markers, publisher, log)
	authService := usecase.NewAuthService(cfg, users, otps, tokenService, hasher, publisher, publisher, log)

	var aiService *usecase.AIProxyService
	if cfg.AI.CipherKey != "" {
		cipher, err := security.NewKeyCipher(cfg.AI.CipherKey)
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init key cipher: %w", err)
		}
		chatClient := upstream.NewClient(cfg.AI, log)
		aiService = usecase.NewAIProxyService(cfg, providerKeys, credits, cipher, chatClient, log)
	} else {
		log.Warn("ai.cipher_key not configured, AI proxy endpoints disabled")
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		CORSOrigins: cfg.App.CORSOrigins,
		Services: routes.ServiceSet{
			Auth:   authService,
			Tokens: tokenService,
			AI:     aiService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
		tracer: tracer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
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
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
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
		return nil
	case err := <-serverErrCh:
		return err
	}
}
