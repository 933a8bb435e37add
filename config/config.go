package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	// Database
	DBDriver       string // "mysql" or "postgres"
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBTablePrefix  string // replaces *PREFIX* in statements, e.g. "oc_"
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBLogSQL       bool

	// Logging
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// HTTP API
	HTTPAddr       string
	JWTSecret      string
	JWTExpireHours int

	// MinIO bucket mirrored into the filecache table
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	MinioStorage   string // storages.id the bucket is registered under

	// Filesystem watcher
	WatchDir     string
	WatchStorage string

	// HomeStorage names a user's own filecache storage; {user} is replaced by
	// the user id.
	HomeStorage string

	// Locale used for natural filename ordering
	CollationLocale string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() does not override variables that are already set.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))
	defaultPort := "3306"
	if driver != "mysql" {
		defaultPort = "5432"
	}

	return &Config{
		DBDriver:       driver,
		DBHost:         getEnv("DB_HOST", "127.0.0.1"),
		DBPort:         getEnv("DB_PORT", defaultPort),
		DBUser:         getEnv("DB_USER", "root"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         getEnv("DB_NAME", "nextcloud"),
		DBTablePrefix:  getEnv("DB_TABLE_PREFIX", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 100),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 10),
		DBLogSQL:       getEnvBool("DB_LOG_SQL", false),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),

		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "music"),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioStorage:   getEnv("MINIO_STORAGE", "object::store:music"),

		WatchDir:     getEnv("WATCH_DIR", ""),
		WatchStorage: getEnv("WATCH_STORAGE", "local::/srv/music/"),

		HomeStorage: getEnv("HOME_STORAGE", "home::{user}"),

		CollationLocale: getEnv("COLLATION_LOCALE", "und"),
	}
}
