package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

// Config aggregates every setting the scan service reads from the environment.
type Config struct {
	Port        string
	CORSOrigins string
	JWTSecret   string
	LogLevel    string

	DB    DBConfig
	Redis RedisConfig

	RegistryCacheTTL time.Duration
	IdempotencyTTL   time.Duration

	CameraDeviceGlob        string
	CameraPermissionTimeout time.Duration
	RegistryTimeout         time.Duration
	SettlementTimeout       time.Duration
	ScanDebounce            time.Duration
	SessionIdleTTL          time.Duration
	DefaultCurrency         string
}

// DBConfig holds database connection and pool settings
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// DSN renders the key/value connection string understood by lib/pq.
func (c DBConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" sslmode=" + c.SSLMode
}

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file found: %v", err)
	}
}

// Load reads the full configuration, falling back to development defaults.
func Load() Config {
	return Config{
		Port:        GetEnv("PORT", "3000"),
		CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		JWTSecret:   GetEnv("JWT_SECRET", "your-secret-key"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		DB: DBConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "qrpay"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		RegistryCacheTTL:        GetDurationEnv("REGISTRY_CACHE_TTL", 30*time.Second),
		IdempotencyTTL:          GetDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
		CameraDeviceGlob:        GetEnv("CAMERA_DEVICE_GLOB", "/dev/serial/by-id/*"),
		CameraPermissionTimeout: GetDurationEnv("CAMERA_PERMISSION_TIMEOUT", 30*time.Second),
		RegistryTimeout:         GetDurationEnv("REGISTRY_TIMEOUT", 10*time.Second),
		SettlementTimeout:       GetDurationEnv("SETTLEMENT_TIMEOUT", 30*time.Second),
		ScanDebounce:            GetDurationEnv("SCAN_DEBOUNCE", 2*time.Second),
		SessionIdleTTL:          GetDurationEnv("SESSION_IDLE_TTL", 30*time.Minute),
		DefaultCurrency:         strings.ToUpper(GetEnv("DEFAULT_CURRENCY", "IDR")),
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		log.Warnf("invalid %s, using default: %d", key, defaultVal)
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable (e.g. "30s") or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Warnf("invalid %s, using default: %s", key, defaultVal)
	}
	return defaultVal
}

func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

// ParseLogLevel maps LOG_LEVEL values onto fiber log levels.
func ParseLogLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
