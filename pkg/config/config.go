package config

import (
	"errors"
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

	Database     DatabaseConfig
	Redis        RedisConfig
	CORS         CORSConfig
	Log          LogConfig
	Marks        MarksConfig
	Analytics    AnalyticsConfig
	Distribution DistributionConfig
	Exports      ExportsConfig
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

// MarksConfig carries the grading constants used by the distribution engine.
type MarksConfig struct {
	MaxSubjectScore     float64
	AttainmentThreshold float64
}

// AnalyticsConfig governs cache behaviour for the reporting endpoints.
type AnalyticsConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// DistributionConfig tunes the recompute worker queue.
type DistributionConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	RetryDelay        time.Duration
	QueueSize         int
}

// ExportsConfig controls attainment report export storage.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
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
		if !errors.As(err, &notFound) {
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

	maxScore := v.GetFloat64("MARKS_MAX_SUBJECT_SCORE")
	if maxScore <= 0 {
		maxScore = 150
	}
	threshold := v.GetFloat64("MARKS_ATTAINMENT_THRESHOLD")
	if threshold <= 0 {
		threshold = 60
	}
	cfg.Marks = MarksConfig{
		MaxSubjectScore:     maxScore,
		AttainmentThreshold: threshold,
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled:  v.GetBool("ENABLE_ANALYTICS_CACHE"),
		CacheTTL: parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Distribution = DistributionConfig{
		WorkerConcurrency: v.GetInt("DISTRIBUTION_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("DISTRIBUTION_WORKER_RETRIES"),
		RetryDelay:        parseDuration(v.GetString("DISTRIBUTION_RETRY_DELAY"), 5*time.Second),
		QueueSize:         v.GetInt("DISTRIBUTION_QUEUE_SIZE"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
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
	v.SetDefault("DB_NAME", "obe_analytics")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MARKS_MAX_SUBJECT_SCORE", 150)
	v.SetDefault("MARKS_ATTAINMENT_THRESHOLD", 60)

	v.SetDefault("ENABLE_ANALYTICS_CACHE", false)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")

	v.SetDefault("DISTRIBUTION_WORKER_CONCURRENCY", 2)
	v.SetDefault("DISTRIBUTION_WORKER_RETRIES", 3)
	v.SetDefault("DISTRIBUTION_RETRY_DELAY", "5s")
	v.SetDefault("DISTRIBUTION_QUEUE_SIZE", 64)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
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
