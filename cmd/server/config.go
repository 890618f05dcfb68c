package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"mathtutor/internal/common/cache"
	"mathtutor/internal/common/db"
	"mathtutor/internal/common/http/middleware"
	"mathtutor/internal/common/mq"
	"mathtutor/internal/common/storage"
	"mathtutor/internal/evaluation"
	"mathtutor/internal/evaluation/provider"
	"mathtutor/internal/server"
	submitService "mathtutor/internal/submit/service"
	"mathtutor/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:5000"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 5 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultDatasetPath     = "questions.json"
	defaultStorageRoot     = "uploads"

	storageDriverLocal = "local"
	storageDriverMinIO = "minio"

	providerGemini = "gemini"
	providerOllama = "ollama"
)

// StorageConfig selects where uploaded images live.
type StorageConfig struct {
	Driver         string              `yaml:"driver"`
	LocalRoot      string              `yaml:"localRoot"`
	MinIO          storage.MinIOConfig `yaml:"minio"`
	SolutionPrefix string              `yaml:"solutionPrefix"`
	UploadPrefix   string              `yaml:"uploadPrefix"`
	MaxImageBytes  int64               `yaml:"maxImageBytes"`
}

// KafkaSection enables Kafka for graded events. Disabled, events are
// delivered in process.
type KafkaSection struct {
	Enabled        bool `yaml:"enabled"`
	mq.KafkaConfig `yaml:",inline"`
}

type DatasetConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds credential and token settings.
type AuthConfig struct {
	// LegacyPlaintext defaults to true so accounts created before hashing can
	// still log in and get migrated.
	LegacyPlaintext *bool         `yaml:"legacyPlaintext"`
	JWTSecret       string        `yaml:"jwtSecret"`
	JWTIssuer       string        `yaml:"jwtIssuer"`
	AccessTokenTTL  time.Duration `yaml:"accessTokenTTL"`
	LoginFailLimit  int           `yaml:"loginFailLimit"`
	LoginFailTTL    time.Duration `yaml:"loginFailTTL"`
}

func (c AuthConfig) legacyPlaintext() bool {
	return c.LegacyPlaintext == nil || *c.LegacyPlaintext
}

// ModelConfig selects and tunes the model backend.
type ModelConfig struct {
	Provider string                    `yaml:"provider"`
	Gemini   provider.GeminiConfig     `yaml:"gemini"`
	Ollama   provider.OllamaConfig     `yaml:"ollama"`
	Breaker  provider.BreakerConfig    `yaml:"breaker"`
	Pipeline evaluation.PipelineConfig `yaml:"pipeline"`
}

// AppConfig holds server configuration.
type AppConfig struct {
	Server     server.ServerConfig         `yaml:"server"`
	Logger     logger.Config               `yaml:"logger"`
	Database   db.MySQLConfig              `yaml:"database"`
	Redis      cache.RedisConfig           `yaml:"redis"`
	Storage    StorageConfig               `yaml:"storage"`
	Kafka      KafkaSection                `yaml:"kafka"`
	Dataset    DatasetConfig               `yaml:"dataset"`
	Auth       AuthConfig                  `yaml:"auth"`
	Model      ModelConfig                 `yaml:"model"`
	CORS       middleware.CORSConfig       `yaml:"cors"`
	RateLimits server.RateLimitConfig      `yaml:"rateLimits"`
	Timeouts   submitService.TimeoutConfig `yaml:"timeouts"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets secrets stay out of the config file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("MATHTUTOR_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MATHTUTOR_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if cfg.Model.Gemini.APIKey == "" {
		cfg.Model.Gemini.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Storage.MinIO.SecretKey = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = storageDriverLocal
	}
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	if cfg.Storage.LocalRoot == "" {
		cfg.Storage.LocalRoot = defaultStorageRoot
	}
	if cfg.Storage.MaxImageBytes == 0 {
		cfg.Storage.MaxImageBytes = 10 << 20
	}
	if cfg.Model.Pipeline.MaxImageBytes == 0 {
		cfg.Model.Pipeline.MaxImageBytes = cfg.Storage.MaxImageBytes
	}

	if cfg.Dataset.Path == "" {
		cfg.Dataset.Path = defaultDatasetPath
	}

	if cfg.Auth.AccessTokenTTL == 0 {
		cfg.Auth.AccessTokenTTL = 24 * time.Hour
	}
	if cfg.Auth.JWTIssuer == "" {
		cfg.Auth.JWTIssuer = "mathtutor"
	}

	if cfg.Model.Provider == "" {
		cfg.Model.Provider = providerGemini
	}
	cfg.Model.Provider = strings.ToLower(cfg.Model.Provider)

	if cfg.Timeouts.DB == 0 {
		cfg.Timeouts.DB = 3 * time.Second
	}
	if cfg.Timeouts.MQ == 0 {
		cfg.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Timeouts.Storage == 0 {
		cfg.Timeouts.Storage = 10 * time.Second
	}

	if cfg.RateLimits.Login.Window == 0 && cfg.RateLimits.Login.IPMax == 0 {
		cfg.RateLimits.Login = middleware.RateLimitPolicy{Window: time.Minute, IPMax: 30}
	}
	if cfg.RateLimits.Submit.Window == 0 && cfg.RateLimits.Submit.IPMax == 0 && cfg.RateLimits.Submit.UserMax == 0 {
		cfg.RateLimits.Submit = middleware.RateLimitPolicy{Window: time.Minute, IPMax: 20, UserMax: 10}
	}
}

func validateConfig(cfg *AppConfig) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	switch cfg.Storage.Driver {
	case storageDriverLocal:
	case storageDriverMinIO:
		if cfg.Storage.MinIO.Endpoint == "" || cfg.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("minio endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	switch cfg.Model.Provider {
	case providerGemini:
		if cfg.Model.Gemini.APIKey == "" {
			return fmt.Errorf("gemini api key is required (model.gemini.apiKey or GOOGLE_API_KEY)")
		}
	case providerOllama:
	default:
		return fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	return nil
}
