package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Env       string
	Port      string
	APIPrefix string
	ClientURL string
	LogLevel  string

	DBDriver    string
	MongoURI    string
	MongoDB     string
	PostgresDSN string

	RedisAddr     string
	RedisPassword string

	JWTSecret string
	JWTExpire time.Duration

	MediaDriver    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MediaPublicURL string
	MediaFolder    string
	MaxUploadBytes int64
	UploadTimeout  time.Duration

	NatsURL      string
	OtelEndpoint string
}

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverMinio    = "minio"
)

func defaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("PORT", "5000")
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("CLIENT_URL", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", DriverMongo)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB", "scrollable")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_EXPIRE", "7d")
	v.SetDefault("MEDIA_DRIVER", DriverMinio)
	v.SetDefault("MINIO_ENDPOINT", "minio:9000")
	v.SetDefault("MINIO_BUCKET", "scrollable-media")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MEDIA_FOLDER", "scrollable")
	v.SetDefault("MAX_UPLOAD_BYTES", 50<<20)
	v.SetDefault("UPLOAD_TIMEOUT", "2m")
}

// Load reads configuration from the environment and, when SCROLLABLE_CONFIG
// points at a file, from that file first.
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path := v.GetString("SCROLLABLE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	jwtExpire, err := ParseDuration(v.GetString("JWT_EXPIRE"))
	if err != nil {
		return nil, fmt.Errorf("JWT_EXPIRE: %w", err)
	}
	uploadTimeout, err := ParseDuration(v.GetString("UPLOAD_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("UPLOAD_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Env:            v.GetString("APP_ENV"),
		Port:           v.GetString("PORT"),
		APIPrefix:      strings.TrimRight(v.GetString("API_PREFIX"), "/"),
		ClientURL:      v.GetString("CLIENT_URL"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		DBDriver:       strings.ToLower(v.GetString("DB_DRIVER")),
		MongoURI:       v.GetString("MONGO_URI"),
		MongoDB:        v.GetString("MONGO_DB"),
		PostgresDSN:    v.GetString("POSTGRES_DSN"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		JWTExpire:      jwtExpire,
		MediaDriver:    strings.ToLower(v.GetString("MEDIA_DRIVER")),
		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),
		MediaPublicURL: v.GetString("MEDIA_PUBLIC_URL"),
		MediaFolder:    v.GetString("MEDIA_FOLDER"),
		MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		UploadTimeout:  uploadTimeout,
		NatsURL:        v.GetString("NATS_URL"),
		OtelEndpoint:   v.GetString("OTEL_ENDPOINT"),
	}
	if cfg.MediaPublicURL == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		cfg.MediaPublicURL = scheme + "://" + cfg.MinioEndpoint
	}
	return cfg, nil
}

// Validate reports missing settings that the selected drivers need.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTExpire <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRE must be positive"))
	}
	switch c.DBDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo driver"))
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	switch c.MediaDriver {
	case DriverMinio:
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown MEDIA_DRIVER %q", c.MediaDriver))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// ParseDuration accepts everything time.ParseDuration does plus a
// whole-day suffix, so "7d" and "1d12h" are valid.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	idx := strings.IndexByte(s, 'd')
	if idx < 0 {
		return time.ParseDuration(s)
	}
	days, err := strconv.Atoi(s[:idx])
	if err != nil || days < 0 {
		return 0, fmt.Errorf("invalid day count in %q", s)
	}
	d := time.Duration(days) * 24 * time.Hour
	if rest := s[idx+1:]; rest != "" {
		extra, err := time.ParseDuration(rest)
		if err != nil {
			return 0, err
		}
		d += extra
	}
	return d, nil
}
