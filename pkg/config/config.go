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

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Marketplace  MarketplaceConfig
	Reputation   ReputationConfig
	Certificates CertificatesConfig
	Realtime     RealtimeConfig
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

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MarketplaceConfig tunes the request and quote lifecycle.
type MarketplaceConfig struct {
	SweepInterval      time.Duration
	SweepTimeout       time.Duration
	ExpiringSoonWindow time.Duration
}

// ReputationConfig controls the provider summary cache.
type ReputationConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// CertificatesConfig configures completion certificate rendering and storage.
type CertificatesConfig struct {
	Enabled         bool
	Driver          string
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	PublicBaseURL   string
	Workers         int
	Retries         int
	S3              S3Config
}

// S3Config holds bucket settings for the s3 driver.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	PublicBaseURL   string
}

// RealtimeConfig toggles the lifecycle event websocket.
type RealtimeConfig struct {
	Enabled bool
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
		// A missing .env leaves configuration to the environment.
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Marketplace = MarketplaceConfig{
		SweepInterval:      parseDuration(v.GetString("MARKETPLACE_SWEEP_INTERVAL"), 15*time.Minute),
		SweepTimeout:       parseDuration(v.GetString("MARKETPLACE_SWEEP_TIMEOUT"), 30*time.Second),
		ExpiringSoonWindow: parseDuration(v.GetString("MARKETPLACE_EXPIRING_SOON_WINDOW"), 48*time.Hour),
	}

	cfg.Reputation = ReputationConfig{
		CacheEnabled: v.GetBool("ENABLE_REPUTATION_CACHE"),
		CacheTTL:     parseDuration(v.GetString("REPUTATION_CACHE_TTL"), 5*time.Minute),
	}

	driver := strings.ToLower(strings.TrimSpace(v.GetString("CERTIFICATES_DRIVER")))
	if driver != StorageDriverS3 {
		driver = StorageDriverLocal
	}
	cfg.Certificates = CertificatesConfig{
		Enabled:         v.GetBool("ENABLE_CERTIFICATES"),
		Driver:          driver,
		StorageDir:      v.GetString("CERTIFICATES_STORAGE_DIR"),
		SignedURLSecret: v.GetString("CERTIFICATES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("CERTIFICATES_SIGNED_URL_TTL"), 7*24*time.Hour),
		PublicBaseURL:   v.GetString("PUBLIC_BASE_URL"),
		Workers:         v.GetInt("CERTIFICATES_WORKERS"),
		Retries:         v.GetInt("CERTIFICATES_RETRIES"),
		S3: S3Config{
			Bucket:          v.GetString("S3_BUCKET"),
			Region:          v.GetString("S3_REGION"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			ForcePathStyle:  v.GetBool("S3_FORCE_PATH_STYLE"),
			PublicBaseURL:   v.GetString("S3_PUBLIC_BASE_URL"),
		},
	}

	cfg.Realtime = RealtimeConfig{
		Enabled: v.GetBool("ENABLE_REALTIME"),
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
	v.SetDefault("DB_NAME", "bonyankop")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MARKETPLACE_SWEEP_INTERVAL", "15m")
	v.SetDefault("MARKETPLACE_SWEEP_TIMEOUT", "30s")
	v.SetDefault("MARKETPLACE_EXPIRING_SOON_WINDOW", "48h")

	v.SetDefault("ENABLE_REPUTATION_CACHE", true)
	v.SetDefault("REPUTATION_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_CERTIFICATES", false)
	v.SetDefault("CERTIFICATES_DRIVER", StorageDriverLocal)
	v.SetDefault("CERTIFICATES_STORAGE_DIR", "./certificates")
	v.SetDefault("CERTIFICATES_SIGNED_URL_SECRET", "dev_certificates_secret")
	v.SetDefault("CERTIFICATES_SIGNED_URL_TTL", "168h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("CERTIFICATES_WORKERS", 1)
	v.SetDefault("CERTIFICATES_RETRIES", 3)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_FORCE_PATH_STYLE", false)

	v.SetDefault("ENABLE_REALTIME", true)
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
