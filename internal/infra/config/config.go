package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	OTP       OTPSettings       `mapstructure:"otp"`
	Cookie    CookieSettings    `mapstructure:"cookie"`
	AI        AISettings        `mapstructure:"ai"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
}

type AppSettings struct {
	Name        string   `mapstructure:"name"`
	Env         string   `mapstructure:"env"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// IsProduction reports whether the service runs with production hardening.
func (s AppSettings) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the session cache connection and key prefixes.
type RedisSettings struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	DB           int    `mapstructure:"db"`
	Password     string `mapstructure:"password"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"`
	OTPPrefix    string `mapstructure:"otp_prefix"`
	MarkerPrefix string `mapstructure:"marker_prefix"`
}

// KafkaSettings configures the async event/mail producer. Empty brokers fall back to
// the logging stub publisher.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	SigningSecret   string        `mapstructure:"signing_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	ClockSkew       time.Duration `mapstructure:"clock_skew"`
}

type OTPSettings struct {
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// CookieSettings shape the refresh_token cookie. Secure/SameSite harden automatically
// in production via AppSettings.IsProduction.
type CookieSettings struct {
	Name   string `mapstructure:"name"`
	Path   string `mapstructure:"path"`
	Domain string `mapstructure:"domain"`
}

// AISettings configure the credits/BYOK proxy.
type AISettings struct {
	CipherKey              string `mapstructure:"cipher_key"`
	GeminiEndpoint         string `mapstructure:"gemini_endpoint"`
	PerplexityEndpoint     string `mapstructure:"perplexity_endpoint"`
	GeminiSystemKey        string `mapstructure:"gemini_system_key"`
	PerplexitySystemKey    string `mapstructure:"perplexity_system_key"`
	RequestCost            int64  `mapstructure:"request_cost"`
	DefaultGeminiModel     string `mapstructure:"default_gemini_model"`
	DefaultPerplexityModel string `mapstructure:"default_perplexity_model"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Enabled      bool    `mapstructure:"enabled"`
}

// RateLimitSettings configures sliding windows per endpoint class.
type RateLimitSettings struct {
	WindowDuration    time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts  int           `mapstructure:"login_max_attempts"`
	SignupMaxAttempts int           `mapstructure:"signup_max_attempts"`
	VerifyMaxAttempts int           `mapstructure:"verify_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("CV")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.otp_prefix",
		"redis.marker_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.signing_secret",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.clock_skew",
		"otp.ttl",
		"otp.max_attempts",
		"cookie.name",
		"cookie.path",
		"cookie.domain",
		"ai.cipher_key",
		"ai.gemini_endpoint",
		"ai.perplexity_endpoint",
		"ai.gemini_system_key",
		"ai.perplexity_system_key",
		"ai.request_cost",
		"ai.default_gemini_model",
		"ai.default_perplexity_model",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"telemetry.enabled",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.signup_max_attempts",
		"rate_limit.verify_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the fatal startup rules: the process must refuse to boot on a
// missing or malformed signing secret or cipher key rather than degrade silently.
func (c *AppConfig) Validate() error {
	if len(strings.TrimSpace(c.JWT.SigningSecret)) < 32 {
		return fmt.Errorf("jwt.signing_secret is required and must be at least 32 characters")
	}
	if c.Postgres.Host == "" || c.Postgres.Database == "" {
		return fmt.Errorf("postgres connection settings are required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis connection settings are required")
	}
	if key := c.AI.CipherKey; key != "" && len(key) != 32 {
		return fmt.Errorf("ai.cipher_key must be exactly 32 bytes, got %d", len(key))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "canvasvault-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "canvasvault")
	v.SetDefault("postgres.password", "canvasvault")
	v.SetDefault("postgres.database", "canvasvault")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.otp_prefix", "auth:otp")
	v.SetDefault("redis.marker_prefix", "auth:marker")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "canvasvault")

	v.SetDefault("jwt.access_token_ttl", "24h")
	v.SetDefault("jwt.refresh_token_ttl", "720h")
	v.SetDefault("jwt.clock_skew", "30s")

	v.SetDefault("otp.ttl", "300s")
	v.SetDefault("otp.max_attempts", 5)

	v.SetDefault("cookie.name", "refresh_token")
	v.SetDefault("cookie.path", "/")
	v.SetDefault("cookie.domain", "")

	v.SetDefault("ai.gemini_endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("ai.perplexity_endpoint", "https://api.perplexity.ai")
	v.SetDefault("ai.request_cost", 1)
	v.SetDefault("ai.default_gemini_model", "gemini-2.0-flash")
	v.SetDefault("ai.default_perplexity_model", "sonar")

	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "canvasvault-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.signup_max_attempts", 3)
	v.SetDefault("rate_limit.verify_max_attempts", 10)

	v.SetDefault("argon2.memory", 65536)
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "CV_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
