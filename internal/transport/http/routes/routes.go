package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/canvasvault/auth-service/internal/infra/config"
	"github.com/canvasvault/auth-service/internal/transport/http/handlers"
	"github.com/canvasvault/auth-service/internal/transport/http/middleware"
	"github.com/canvasvault/auth-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth   *usecase.AuthService
	Tokens *usecase.TokenService
	AI     *usecase.AIProxyService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Metrics     *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
	CORSOrigins []string
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}
	if len(deps.CORSOrigins) > 0 {
		r.Use(middleware.CORS(deps.CORSOrigins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var authMW gin.HandlerFunc
	if deps.Services.Tokens != nil {
		authMW = middleware.RequireAuth(deps.Services.Tokens, deps.Logger)
	} else {
		authMW = func(c *gin.Context) { c.Next() }
	}

	if deps.Services.Auth != nil {
		userGroup := r.Group("/user")
		userHandler := handlers.NewUserHandler(deps.Config, deps.Services.Auth, deps.Services.Tokens, deps.Logger)
		userHandler.RegisterRoutes(userGroup, authMW, buildRateLimits(deps))
	}

	if deps.Services.AI != nil {
		aiGroup := r.Group("/ai")
		aiHandler := handlers.NewAIHandler(deps.Services.AI, deps.Logger)
		aiHandler.RegisterRoutes(aiGroup, authMW)
	}

	return r
}

// buildRateLimits produces per-endpoint sliding-window middlewares keyed by the
// names UserHandler.RegisterRoutes expects. Missing entries mean no limit.
func buildRateLimits(deps Dependencies) map[string]gin.HandlerFunc {
	limits := make(map[string]gin.HandlerFunc)
	if deps.RateLimiter == nil || deps.Config == nil {
		return limits
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	add := func(key, name string, limit int) {
		if limit <= 0 {
			return
		}
		limits[key] = deps.RateLimiter.RateLimit(middleware.RateLimitRule{
			Name:       name,
			Limit:      limit,
			Window:     window,
			Identifier: middleware.ClientIPIdentifier(),
		})
	}

	add("login", "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts)
	add("signup", "auth_signup_ip", deps.Config.RateLimit.SignupMaxAttempts)
	add("verify", "auth_verify_ip", deps.Config.RateLimit.VerifyMaxAttempts)

	return limits
}
