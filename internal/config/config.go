package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the RapidResolve server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	AI       AIConfig
	Kafka    KafkaConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// StorageConfig selects and configures the blob storage backend.
type StorageConfig struct {
	Backend   string // "local" or "s3"
	LocalPath string
	S3        S3Config
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	VisionModel     string
	TranscribeModel string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// EngineConfig holds the decision thresholds of the resolution engine.
type EngineConfig struct {
	MaxContextTurns        int
	AutoEscalateThreshold  float64
	LowConfidenceThreshold float64
	MaxFailedAttempts      int
	DefaultPriority        string
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

var validStorageBackends = map[string]bool{
	"local": true,
	"s3":    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("RAPIDRESOLVE_PORT", 8080),
			Env:                envString("RAPIDRESOLVE_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Backend:   envString("STORAGE_BACKEND", "local"),
			LocalPath: envString("STORAGE_LOCAL_PATH", "./uploads"),
			S3: S3Config{
				Endpoint:  os.Getenv("S3_ENDPOINT"),
				AccessKey: os.Getenv("S3_ACCESS_KEY"),
				SecretKey: os.Getenv("S3_SECRET_KEY"),
				Bucket:    os.Getenv("S3_BUCKET"),
				UseSSL:    envBool("S3_USE_SSL", true),
				PublicURL: os.Getenv("S3_PUBLIC_URL"),
			},
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			OpenAI: OpenAIConfig{
				APIKey:          os.Getenv("OPENAI_API_KEY"),
				BaseURL:         envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:           envString("OPENAI_MODEL", "gpt-4-turbo"),
				VisionModel:     envString("OPENAI_VISION_MODEL", "gpt-4-turbo"),
				TranscribeModel: envString("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_TOPIC", "rapidresolve.tickets"),
		},
		Engine: EngineConfig{
			MaxContextTurns:        envInt("ENGINE_MAX_CONTEXT_TURNS", 20),
			AutoEscalateThreshold:  envFloat("ENGINE_AUTO_ESCALATE_THRESHOLD", 0.8),
			LowConfidenceThreshold: envFloat("ENGINE_LOW_CONFIDENCE_THRESHOLD", 0.6),
			MaxFailedAttempts:      envInt("ENGINE_MAX_FAILED_ATTEMPTS", 2),
			DefaultPriority:        envString("ENGINE_DEFAULT_PRIORITY", "medium"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validStorageBackends[c.Storage.Backend] {
		return fmt.Errorf("STORAGE_BACKEND must be one of local, s3; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" {
		if c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when STORAGE_BACKEND is s3")
		}
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND is s3")
		}
		if c.Storage.S3.AccessKey == "" || c.Storage.S3.SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when STORAGE_BACKEND is s3")
		}
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, anthropic, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}

	if c.Engine.MaxContextTurns <= 0 {
		return fmt.Errorf("ENGINE_MAX_CONTEXT_TURNS must be positive, got %d", c.Engine.MaxContextTurns)
	}
	if c.Engine.AutoEscalateThreshold <= 0 || c.Engine.AutoEscalateThreshold > 1 {
		return fmt.Errorf("ENGINE_AUTO_ESCALATE_THRESHOLD must be in (0, 1], got %v", c.Engine.AutoEscalateThreshold)
	}
	if c.Engine.MaxFailedAttempts < 1 {
		return fmt.Errorf("ENGINE_MAX_FAILED_ATTEMPTS must be at least 1, got %d", c.Engine.MaxFailedAttempts)
	}
	switch c.Engine.DefaultPriority {
	case "low", "medium", "high", "urgent":
	default:
		return fmt.Errorf("ENGINE_DEFAULT_PRIORITY must be one of low, medium, high, urgent; got %q", c.Engine.DefaultPriority)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
