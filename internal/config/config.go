package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName        = "GATE Tracker"
	defaultAppEnv         = "development"
	defaultPort           = "5000"
	defaultLogLevel       = "info"
	defaultSQLitePath     = "data/tracker.db"
	defaultJWTExpire      = 7 * 24 * time.Hour
	defaultOTPTTL         = 10 * time.Minute
	defaultOTPMaxAttempts = 3
	defaultBcryptCost     = 12
	defaultAuditTopic     = "tracker.audit"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	devJWTSecret          = "dev-only-secret-change-me"

	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Storage backends accepted by DATABASE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Registration modes accepted by REGISTRATION_MODE.
const (
	RegistrationDirect = "direct"
	RegistrationOTP    = "otp"
)

// Audit sinks accepted by AUDIT_SINK.
const (
	AuditSinkLog   = "log"
	AuditSinkKafka = "kafka"
)

var defaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:5174", "http://localhost:3000"}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName          string
	AppEnv           string
	Port             string
	LogLevel         string
	DatabaseDriver   string
	DatabaseURL      string
	SQLitePath       string
	RedisURL         string
	JWTSecret        string
	JWTExpire        time.Duration
	RegistrationMode string
	OTPTTL           time.Duration
	OTPMaxAttempts   int
	BcryptCost       int
	CORSOrigins      []string
	RateLimitEnabled bool
	AuditSink        string
	AuditLogPath     string
	KafkaBrokers     []string
	AuditTopic       string
	ShutdownPeriod   time.Duration
	IdempotencyTTL   time.Duration
}

// Load reads an optional .env file, then populates a Config from the environment.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv populates a Config from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", defaultSQLitePath),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTExpire:        defaultJWTExpire,
		RegistrationMode: strings.ToLower(getEnv("REGISTRATION_MODE", RegistrationDirect)),
		OTPTTL:           defaultOTPTTL,
		OTPMaxAttempts:   defaultOTPMaxAttempts,
		BcryptCost:       defaultBcryptCost,
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", strings.Join(defaultCORSOrigins, ","))),
		AuditSink:        strings.ToLower(getEnv("AUDIT_SINK", AuditSinkLog)),
		AuditLogPath:     os.Getenv("AUDIT_LOG_PATH"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:       getEnv("AUDIT_TOPIC", defaultAuditTopic),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
	}
	cfg.RateLimitEnabled = !cfg.IsDev()

	defaultDriver := DriverPostgres
	if cfg.IsDev() {
		defaultDriver = DriverSQLite
	}
	cfg.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", defaultDriver))

	var err error
	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if cfg.ShutdownPeriod, err = durationEnv(shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.JWTExpire, err = durationEnv("JWT_EXPIRE", cfg.JWTExpire); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = durationEnv("OTP_TTL", cfg.OTPTTL); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTPMaxAttempts, err = intEnv("OTP_MAX_ATTEMPTS", cfg.OTPMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", cfg.BcryptCost); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_ENABLED: %w", err)
		}
		cfg.RateLimitEnabled = enabled
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when DATABASE_DRIVER=%s", DriverPostgres)
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return Config{}, fmt.Errorf("SQLITE_PATH must be set when DATABASE_DRIVER=%s", DriverSQLite)
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("invalid DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	switch cfg.RegistrationMode {
	case RegistrationDirect, RegistrationOTP:
	default:
		return Config{}, fmt.Errorf("invalid REGISTRATION_MODE %q", cfg.RegistrationMode)
	}

	switch cfg.AuditSink {
	case AuditSinkLog:
	case AuditSinkKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, fmt.Errorf("KAFKA_BROKERS must be set when AUDIT_SINK=%s", AuditSinkKafka)
		}
	default:
		return Config{}, fmt.Errorf("invalid AUDIT_SINK %q", cfg.AuditSink)
	}

	if cfg.JWTSecret == "" {
		if !cfg.IsDev() {
			return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		cfg.JWTSecret = devJWTSecret
	}

	if cfg.OTPMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// OTPRegistration reports whether registration withholds tokens until OTP verification.
func (c Config) OTPRegistration() bool {
	return c.RegistrationMode == RegistrationOTP
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
