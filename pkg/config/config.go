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

	Backend BackendConfig
	Export  ExportConfig
	Redis   RedisConfig
	CORS    CORSConfig
	Log     LogConfig
}

// BackendConfig points at the course-management REST backend.
type BackendConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
}

// ExportConfig tunes the export pipeline, artifact storage and async workers.
type ExportConfig struct {
	RemoteTimeout     time.Duration
	FetchConcurrency  int
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	ResultTTL         time.Duration
	CleanupInterval   time.Duration
	AsyncEnabled      bool
	WorkerConcurrency int
	WorkerRetries     int
	JobTTL            time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
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

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Backend = BackendConfig{
		BaseURL:        strings.TrimRight(v.GetString("BACKEND_BASE_URL"), "/"),
		Token:          v.GetString("BACKEND_TOKEN"),
		RequestTimeout: parseDuration(v.GetString("BACKEND_REQUEST_TIMEOUT"), 15*time.Second),
	}

	concurrency := v.GetInt("EXPORT_FETCH_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 1
	}
	cfg.Export = ExportConfig{
		RemoteTimeout:     parseDuration(v.GetString("EXPORT_REMOTE_TIMEOUT"), 6*time.Second),
		FetchConcurrency:  concurrency,
		StorageDir:        v.GetString("EXPORT_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORT_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORT_SIGNED_URL_TTL"), 10*time.Minute),
		ResultTTL:         parseDuration(v.GetString("EXPORT_RESULT_TTL"), 15*time.Minute),
		CleanupInterval:   parseDuration(v.GetString("EXPORT_CLEANUP_INTERVAL"), time.Minute),
		AsyncEnabled:      v.GetBool("ENABLE_ASYNC_EXPORTS"),
		WorkerConcurrency: v.GetInt("EXPORT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORT_WORKER_RETRIES"),
		JobTTL:            parseDuration(v.GetString("EXPORT_JOB_TTL"), 24*time.Hour),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("BACKEND_BASE_URL", "http://localhost:8000")
	v.SetDefault("BACKEND_TOKEN", "")
	v.SetDefault("BACKEND_REQUEST_TIMEOUT", "15s")

	v.SetDefault("EXPORT_REMOTE_TIMEOUT", "6s")
	v.SetDefault("EXPORT_FETCH_CONCURRENCY", 4)
	v.SetDefault("EXPORT_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORT_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORT_SIGNED_URL_TTL", "10m")
	v.SetDefault("EXPORT_RESULT_TTL", "15m")
	v.SetDefault("EXPORT_CLEANUP_INTERVAL", "1m")
	v.SetDefault("ENABLE_ASYNC_EXPORTS", false)
	v.SetDefault("EXPORT_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORT_WORKER_RETRIES", 0)
	v.SetDefault("EXPORT_JOB_TTL", "24h")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
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
