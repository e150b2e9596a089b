package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvDevelopment is the only APP_ENV allowed to fall back to the built-in JWT secret.
const EnvDevelopment = "development"

const devJWTSecret = "dev-secret"

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Password     PasswordPolicyConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	PhoneRegion           string
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
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret               string
	AccessTokenTTLMinutes   int
	VerificationTTLMinutes  int
	PasswordResetTTLMinutes int
	BcryptCost              int
}

// PasswordPolicyConfig describes the strength rules applied to new passwords.
type PasswordPolicyConfig struct {
	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
}

// NotificationConfig holds mail transport settings and the URLs embedded in emails.
type NotificationConfig struct {
	EmailFrom            string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	FrontendURL          string
	BackendURL           string
	RequireResetDelivery bool
	SendTimeoutSeconds   int
}

// RateLimitConfig configures the per-IP token bucket on public auth routes.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	env := getEnv("APP_ENV", EnvDevelopment)
	jwtSecret := os.Getenv("AUTH_JWT_SECRET")
	if jwtSecret == "" {
		if env != EnvDevelopment {
			return nil, fmt.Errorf("AUTH_JWT_SECRET must be set when APP_ENV=%s", env)
		}
		jwtSecret = devJWTSecret
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "account-service"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			PhoneRegion:           strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "US")),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:               jwtSecret,
			AccessTokenTTLMinutes:   getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			VerificationTTLMinutes:  getEnvAsInt("AUTH_VERIFICATION_TTL_MINUTES", 30),
			PasswordResetTTLMinutes: getEnvAsInt("AUTH_PASSWORD_RESET_TTL_MINUTES", 30),
			BcryptCost:              getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Password: PasswordPolicyConfig{
			MinLength:     getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
			MaxLength:     getEnvAsInt("PASSWORD_MAX_LENGTH", 128),
			RequireLetter: getEnvAsBool("PASSWORD_REQUIRE_LETTER", true),
			RequireDigit:  getEnvAsBool("PASSWORD_REQUIRE_DIGIT", true),
		},
		Notification: NotificationConfig{
			EmailFrom:            getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SMTPHost:             os.Getenv("SMTP_HOST"),
			SMTPPort:             smtpPort,
			SMTPUsername:         os.Getenv("SMTP_USERNAME"),
			SMTPPassword:         os.Getenv("SMTP_PASSWORD"),
			FrontendURL:          strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			BackendURL:           strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8080"), "/"),
			RequireResetDelivery: getEnvAsBool("NOTIFY_REQUIRE_RESET_DELIVERY", false),
			SendTimeoutSeconds:   getEnvAsInt("NOTIFY_SEND_TIMEOUT_SECONDS", 10),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 5),
			Burst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
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

// VerificationTTL returns the lifetime of email verification tokens.
func (a AuthConfig) VerificationTTL() time.Duration {
	return minutesOr(a.VerificationTTLMinutes, 30)
}

// PasswordResetTTL returns the lifetime of password reset tokens.
func (a AuthConfig) PasswordResetTTL() time.Duration {
	return minutesOr(a.PasswordResetTTLMinutes, 30)
}

// SMTPAddr returns host:port of the mail relay, or "" when mail is not configured.
func (n NotificationConfig) SMTPAddr() string {
	if n.SMTPHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", n.SMTPHost, n.SMTPPort)
}

// SendTimeout bounds a single notification delivery.
func (n NotificationConfig) SendTimeout() time.Duration {
	if n.SendTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.SendTimeoutSeconds) * time.Second
}

func minutesOr(minutes, fallback int) time.Duration {
	if minutes <= 0 {
		minutes = fallback
	}
	return time.Duration(minutes) * time.Minute
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
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
