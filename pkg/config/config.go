package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Cache      CacheConfig
	Dashboard  DashboardConfig
	Promotions PromotionsConfig
	Directory  DirectoryConfig
	Courses    CoursesConfig
	Learning   LearningConfig
	Audit      AuditConfig
	Bootstrap  BootstrapConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs the shared cache tier.
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
	MemorySize int
}

// DashboardConfig tunes dashboard paging and stats caching.
type DashboardConfig struct {
	PageSize int
	StatsTTL time.Duration
}

// PromotionsConfig toggles the promotion workflow.
type PromotionsConfig struct {
	Enabled         bool
	AllowDuplicates bool
}

// DirectoryConfig bounds program/site CSV imports.
type DirectoryConfig struct {
	MaxImportBytes int64
}

// CoursesConfig controls external course certificate storage & validation.
type CoursesConfig struct {
	StorageDir       string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
}

// LearningConfig points at the learning platform bridge.
type LearningConfig struct {
	Enabled  bool
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// AuditConfig sizes the asynchronous audit writer.
type AuditConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// BootstrapConfig seeds the first administrator account on an empty database.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:    v.GetBool("CACHE_ENABLED"),
		DefaultTTL: parseDuration(v.GetString("CACHE_DEFAULT_TTL"), 10*time.Minute),
		MemorySize: v.GetInt("CACHE_MEMORY_SIZE"),
	}

	pageSize := v.GetInt("DASHBOARD_PAGE_SIZE")
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	cfg.Dashboard = DashboardConfig{
		PageSize: pageSize,
		StatsTTL: parseDuration(v.GetString("DASHBOARD_STATS_TTL"), 5*time.Minute),
	}

	cfg.Promotions = PromotionsConfig{
		Enabled:         v.GetBool("PROMOTIONS_ENABLED"),
		AllowDuplicates: v.GetBool("PROMOTIONS_ALLOW_DUPLICATES"),
	}

	maxImport := v.GetInt64("DIRECTORY_MAX_IMPORT_BYTES")
	if maxImport <= 0 {
		maxImport = 2 * 1024 * 1024
	}
	cfg.Directory = DirectoryConfig{MaxImportBytes: maxImport}

	maxCertificate := v.GetInt64("COURSES_MAX_FILE_SIZE")
	if maxCertificate <= 0 {
		maxCertificate = 5 * 1024 * 1024
	}
	cfg.Courses = CoursesConfig{
		StorageDir:       v.GetString("COURSES_STORAGE_DIR"),
		MaxFileSizeBytes: maxCertificate,
		AllowedMIMEs:     splitAndTrim(v.GetString("COURSES_ALLOWED_MIME_TYPES")),
		SignedURLSecret:  v.GetString("COURSES_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("COURSES_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Learning = LearningConfig{
		Enabled:  v.GetBool("LEARNING_ENABLED"),
		BaseURL:  strings.TrimRight(v.GetString("LEARNING_BASE_URL"), "/"),
		APIToken: v.GetString("LEARNING_API_TOKEN"),
		Timeout:  parseDuration(v.GetString("LEARNING_TIMEOUT"), 3*time.Second),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		MaxRetries: v.GetInt("AUDIT_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("AUDIT_RETRY_DELAY"), time.Second),
	}

	cfg.Bootstrap = BootstrapConfig{
		AdminEmail:    strings.TrimSpace(v.GetString("BOOTSTRAP_ADMIN_EMAIL")),
		AdminPassword: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		AdminName:     v.GetString("BOOTSTRAP_ADMIN_NAME"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "training_roster")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "training-roster-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_DEFAULT_TTL", "10m")
	v.SetDefault("CACHE_MEMORY_SIZE", 2048)

	v.SetDefault("DASHBOARD_PAGE_SIZE", 20)
	v.SetDefault("DASHBOARD_STATS_TTL", "5m")

	v.SetDefault("PROMOTIONS_ENABLED", true)
	v.SetDefault("PROMOTIONS_ALLOW_DUPLICATES", false)

	v.SetDefault("DIRECTORY_MAX_IMPORT_BYTES", 2*1024*1024)

	v.SetDefault("COURSES_STORAGE_DIR", "./certificates")
	v.SetDefault("COURSES_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("COURSES_ALLOWED_MIME_TYPES", "application/pdf,image/png,image/jpeg")
	v.SetDefault("COURSES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("COURSES_SIGNED_URL_TTL", "30m")

	v.SetDefault("LEARNING_ENABLED", false)
	v.SetDefault("LEARNING_BASE_URL", "")
	v.SetDefault("LEARNING_API_TOKEN", "")
	v.SetDefault("LEARNING_TIMEOUT", "3s")

	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_MAX_RETRIES", 3)
	v.SetDefault("AUDIT_RETRY_DELAY", "1s")

	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "")
	v.SetDefault("BOOTSTRAP_ADMIN_NAME", "Administrator")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
