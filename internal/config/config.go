package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"task-prioritizer/backend/internal/features"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Worker    WorkerConfig    `json:"worker"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Engine    EngineConfig    `json:"engine"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
	CORSOrigins  []string      `json:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WorkerConfig struct {
	Concurrency    int           `json:"concurrency"`
	PollInterval   time.Duration `json:"poll_interval"`
	Queues         []string      `json:"queues"`
	RetrainEvery   time.Duration `json:"retrain_every"`
	JobTimeout     time.Duration `json:"job_timeout"`
	MaxJobAttempts int           `json:"max_job_attempts"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`

	// TrainPermission, when set, is required in the token to train.
	TrainPermission string `json:"train_permission"`
}

type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	RequestsPerMin  int           `json:"requests_per_minute"`
	BurstSize       int           `json:"burst_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// EngineConfig tunes the prioritization engine.
type EngineConfig struct {
	MinTrainingSamples int               `json:"min_training_samples"`
	ModelKind          string            `json:"model_kind"`
	ModelVersion       string            `json:"model_version"`
	MaxDepth           int               `json:"max_depth"`
	RandomSeed         uint64            `json:"random_seed"`
	FeedbackWindow     time.Duration     `json:"feedback_window"`
	ModelCacheTTL      time.Duration     `json:"model_cache_ttl"`
	KeywordsFile       string            `json:"keywords_file"`
	Keywords           features.Keywords `json:"keywords"`
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("HOST", "localhost"),
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
			CORSOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "task_prioritizer"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:    getEnvAsInt("WORKER_CONCURRENCY", 4),
			PollInterval:   getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			Queues:         []string{"retrain"},
			RetrainEvery:   getEnvAsDuration("WORKER_RETRAIN_EVERY", 0),
			JobTimeout:     getEnvAsDuration("WORKER_JOB_TIMEOUT", 30*time.Second),
			MaxJobAttempts: getEnvAsInt("WORKER_MAX_JOB_ATTEMPTS", 3),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),
			Issuer:    getEnv("JWT_ISSUER", "taskify-backend"),

			TrainPermission: getEnv("AUTH_TRAIN_PERMISSION", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin:  getEnvAsInt("RATE_LIMIT_RPM", 100),
			BurstSize:       getEnvAsInt("RATE_LIMIT_BURST", 10),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP", 10*time.Minute),
		},
		Engine: EngineConfig{
			MinTrainingSamples: getEnvAsInt("ENGINE_MIN_TRAINING_SAMPLES", 3),
			ModelKind:          getEnv("ENGINE_MODEL_KIND", "priority_predictor_v3"),
			ModelVersion:       getEnv("ENGINE_MODEL_VERSION", "3.1"),
			MaxDepth:           getEnvAsInt("ENGINE_MAX_DEPTH", 3),
			RandomSeed:         uint64(getEnvAsInt("ENGINE_RANDOM_SEED", 42)),
			FeedbackWindow:     getEnvAsDuration("ENGINE_FEEDBACK_WINDOW", 24*time.Hour),
			ModelCacheTTL:      getEnvAsDuration("ENGINE_MODEL_CACHE_TTL", time.Hour),
			KeywordsFile:       getEnv("ENGINE_KEYWORDS_FILE", ""),
			Keywords:           features.DefaultKeywords(),
		},
	}

	if config.Database.Password == "" && config.Server.Environment == "production" {
		return nil, fmt.Errorf("database password is required in production")
	}

	if config.Auth.JWTSecret == "your-secret-key" && config.Server.Environment == "production" {
		return nil, fmt.Errorf("JWT secret must be set in production")
	}

	if config.Engine.MinTrainingSamples < 3 {
		return nil, fmt.Errorf("ENGINE_MIN_TRAINING_SAMPLES must be at least 3, got %d", config.Engine.MinTrainingSamples)
	}

	if config.Engine.KeywordsFile != "" {
		keywords, err := LoadKeywords(config.Engine.KeywordsFile)
		if err != nil {
			return nil, err
		}
		config.Engine.Keywords = keywords
	}

	return config, nil
}

// LoadKeywords reads keyword overrides from a YAML file. Sets missing from
// the file keep their defaults.
func LoadKeywords(path string) (features.Keywords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return features.Keywords{}, fmt.Errorf("failed to read keywords file %s: %w", path, err)
	}

	var keywords features.Keywords
	if err := yaml.Unmarshal(data, &keywords); err != nil {
		return features.Keywords{}, fmt.Errorf("failed to parse keywords file %s: %w", path, err)
	}

	return keywords.Merge(features.DefaultKeywords()), nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
