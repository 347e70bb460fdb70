package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	AWS       AWSConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	APIPrefix          string // optional route prefix, e.g. /api
	MetricsEnabled     bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// SessionRole is assumed on every new connection (SET ROLE) so that
	// row-level security applies even when the login role owns the tables.
	SessionRole string
	MaxConns    int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SkipHealth bool
}

// AuthConfig selects between OIDC verification and the insecure dev mode.
type AuthConfig struct {
	OIDCIssuer   string
	OIDCAudience string
	JWKSURL      string
	TenantClaim  string
	RoleClaim    string
	// AllowInsecureTokens accepts unsigned tokens. Only honoured when no
	// issuer or audience is configured.
	AllowInsecureTokens bool
	JWKSFetchTimeoutSec int
	JWKSCacheTTLSec     int

	// Local login token issuance (insecure mode only).
	JWTSecret      string
	JWTExpireHours int
}

// AWSConfig holds AWS credentials and the attachments bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AttachmentsBucket    string
	PresignExpireMinutes int
	MaxAttachmentBytes   int64
}

// RateLimitConfig bounds requests per client per window. Requests <= 0 disables limiting.
type RateLimitConfig struct {
	Requests  int
	WindowSec int
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
}

// OIDCEnabled reports whether production token verification is configured.
func (c AuthConfig) OIDCEnabled() bool {
	return c.OIDCIssuer != "" || c.OIDCAudience != ""
}

// JWKSEndpoint returns the configured key set URL or the issuer's default key path.
func (c AuthConfig) JWKSEndpoint() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return strings.TrimRight(c.OIDCIssuer, "/") + "/discovery/v2.0/keys"
}

// Validate rejects partial or ambiguous auth settings.
func (c AuthConfig) Validate() error {
	if c.OIDCEnabled() {
		if c.OIDCIssuer == "" || c.OIDCAudience == "" {
			return errors.New("OIDC_ISSUER and OIDC_AUDIENCE must be set together")
		}
		return nil
	}
	if !c.AllowInsecureTokens {
		return errors.New("OIDC_ISSUER and OIDC_AUDIENCE are required unless AUTH_ALLOW_INSECURE_TOKENS=true")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	_ = godotenv.Load("env")

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			APIPrefix:          strings.TrimRight(getEnv("API_PREFIX", ""), "/"),
			MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "ticketing"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			SessionRole: getEnv("DB_SESSION_ROLE", ""),
			MaxConns:    getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			SkipHealth: getEnvBool("SKIP_REDIS_HEALTH", false),
		},
		Auth: AuthConfig{
			OIDCIssuer:          getEnv("OIDC_ISSUER", ""),
			OIDCAudience:        getEnv("OIDC_AUDIENCE", ""),
			JWKSURL:             getEnv("OIDC_JWKS_URL", ""),
			TenantClaim:         getEnv("TENANT_CLAIM", "tid"),
			RoleClaim:           getEnv("ROLE_CLAIM", "roles"),
			AllowInsecureTokens: getEnvBool("AUTH_ALLOW_INSECURE_TOKENS", false),
			JWKSFetchTimeoutSec: getEnvInt("JWKS_FETCH_TIMEOUT_SEC", 5),
			JWKSCacheTTLSec:     getEnvInt("JWKS_CACHE_TTL_SEC", 300),
			JWTSecret:           getEnv("JWT_SECRET", "change-me-in-production"),
			JWTExpireHours:      getEnvInt("JWT_EXPIRE_HOURS", 8),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AttachmentsBucket:    getEnv("AWS_S3_ATTACHMENTS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
			MaxAttachmentBytes:   int64(getEnvInt("ATTACHMENT_MAX_BYTES", 25*1024*1024)),
		},
		RateLimit: RateLimitConfig{
			Requests:  getEnvInt("RATE_LIMIT_REQUESTS", 120),
			WindowSec: getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "ticketing-api"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
