package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Overdue idempotency strategies.
const (
	IdempotencyMarker = "marker"
	IdempotencyWindow = "window"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Sweep    SweepConfig
	Ticket   TicketConfig
	Uploads  UploadConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	FrontendURL           string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level          string
	File           string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// SMTPConfig holds outgoing mail settings. An empty Host disables delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SweepConfig drives the overdue detection loop.
type SweepConfig struct {
	IntervalSeconds int
	Idempotency     string
	RenotifyMinutes int
	LockTTLSeconds  int
}

// TicketConfig holds ticket defaults.
type TicketConfig struct {
	DefaultDeadlineHours int
}

// UploadConfig controls comment image storage.
type UploadConfig struct {
	Dir       string
	MaxSizeMB int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	idempotency := strings.ToLower(getEnv("OVERDUE_IDEMPOTENCY", IdempotencyMarker))
	if idempotency != IdempotencyMarker && idempotency != IdempotencyWindow {
		return nil, fmt.Errorf("invalid OVERDUE_IDEMPOTENCY %q", idempotency)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			FrontendURL:           strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:          getEnv("LOG_LEVEL", "info"),
			File:           os.Getenv("LOG_FILE"),
			FileMaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100),
			FileMaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5),
			FileMaxAgeDays: getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 24*60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 10),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "noreply@example.com"),
		},
		Sweep: SweepConfig{
			IntervalSeconds: getEnvAsInt("OVERDUE_SWEEP_INTERVAL_SECONDS", 60),
			Idempotency:     idempotency,
			RenotifyMinutes: getEnvAsInt("OVERDUE_RENOTIFY_MINUTES", 0),
			LockTTLSeconds:  getEnvAsInt("OVERDUE_SWEEP_LOCK_TTL_SECONDS", 55),
		},
		Ticket: TicketConfig{
			DefaultDeadlineHours: getEnvAsInt("TICKET_DEFAULT_DEADLINE_HOURS", 24),
		},
		Uploads: UploadConfig{
			Dir:       getEnv("UPLOAD_DIR", "uploads"),
			MaxSizeMB: getEnvAsInt("UPLOAD_MAX_SIZE_MB", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the JWT lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// MaxBytes returns the largest accepted upload.
func (u UploadConfig) MaxBytes() int64 {
	if u.MaxSizeMB <= 0 {
		return 5 << 20
	}
	return int64(u.MaxSizeMB) << 20
}

// Interval returns the sweep cadence, one minute when unset.
func (s SweepConfig) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Renotify returns how long a notified overdue ticket stays quiet. Zero means forever.
func (s SweepConfig) Renotify() time.Duration {
	if s.RenotifyMinutes <= 0 {
		return 0
	}
	return time.Duration(s.RenotifyMinutes) * time.Minute
}

// LockTTL returns the sweep lock lifetime.
func (s SweepConfig) LockTTL() time.Duration {
	if s.LockTTLSeconds <= 0 {
		return s.Interval()
	}
	return time.Duration(s.LockTTLSeconds) * time.Second
}

// DefaultDeadline returns the offset applied when a ticket is created without a deadline.
func (t TicketConfig) DefaultDeadline() time.Duration {
	if t.DefaultDeadlineHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(t.DefaultDeadlineHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
