package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tickettriage server and workers.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Embedding EmbeddingConfig
	KB        KBConfig
	Triage    TriageConfig
	Queue     QueueConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Temperature      float64
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// EmbeddingConfig selects the embedder. Dimension must match the vector column.
type EmbeddingConfig struct {
	Provider  string
	Dimension int
	BaseURL   string
	Model     string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

type KBConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	EmbedBatchSize int
}

type TriageConfig struct {
	AutoResolveThreshold float64
	MaxRetries           int
	KBTopK               int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
}

type QueueConfig struct {
	Backend     string
	Name        string
	AMQPURL     string
	PollTimeout time.Duration
	Prefetch    int
}

type WorkerConfig struct {
	Concurrency   int
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

var validProviders = map[string]bool{
	"rules":     true,
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

var validEmbeddingProviders = map[string]bool{
	"stub":   true,
	"ollama": true,
}

var validQueueBackends = map[string]bool{
	"redis":    true,
	"rabbitmq": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("TICKETTRIAGE_PORT", 8080),
			Env:               envString("TICKETTRIAGE_ENV", "development"),
			RequestsPerMinute: envInt("TICKETTRIAGE_REQUESTS_PER_MINUTE", 60),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         envString("AI_PROVIDER", "rules"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Temperature:      envFloat("AI_TEMPERATURE", 0.2),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  envString("EMBEDDING_PROVIDER", "stub"),
			Dimension: envInt("EMBEDDING_DIM", 384),
			BaseURL:   envString("EMBEDDING_BASE_URL", "http://localhost:11434"),
			Model:     envString("EMBEDDING_MODEL", "nomic-embed-text"),
			Timeout:   envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
			CacheTTL:  envDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		},
		KB: KBConfig{
			ChunkSize:      envInt("KB_CHUNK_SIZE", 1200),
			ChunkOverlap:   envInt("KB_CHUNK_OVERLAP", 200),
			EmbedBatchSize: envInt("KB_EMBED_BATCH_SIZE", 32),
		},
		Triage: TriageConfig{
			AutoResolveThreshold: envFloat("TRIAGE_AUTO_RESOLVE_THRESHOLD", 0.75),
			MaxRetries:           envInt("TRIAGE_MAX_RETRIES", 3),
			KBTopK:               envInt("TRIAGE_KB_TOP_K", 5),
			RetryBaseDelay:       envDuration("TRIAGE_RETRY_BASE_DELAY", 2*time.Second),
			RetryMaxDelay:        envDuration("TRIAGE_RETRY_MAX_DELAY", time.Minute),
		},
		Queue: QueueConfig{
			Backend:     envString("QUEUE_BACKEND", "redis"),
			Name:        envString("QUEUE_NAME", "tickettriage:tasks"),
			AMQPURL:     os.Getenv("AMQP_URL"),
			PollTimeout: envDuration("QUEUE_POLL_TIMEOUT", 5*time.Second),
			Prefetch:    envInt("QUEUE_PREFETCH", 16),
		},
		Worker: WorkerConfig{
			Concurrency:   envInt("WORKER_CONCURRENCY", 4),
			StaleAfter:    envDuration("WORKER_STALE_AFTER", 10*time.Minute),
			SweepInterval: envDuration("WORKER_SWEEP_INTERVAL", time.Minute),
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

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of rules, ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}

	if !validEmbeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of stub, ollama; got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.Provider == "ollama" &&
		!strings.HasPrefix(c.Embedding.BaseURL, "http://") && !strings.HasPrefix(c.Embedding.BaseURL, "https://") {
		return fmt.Errorf("EMBEDDING_BASE_URL must start with http:// or https://, got %q", c.Embedding.BaseURL)
	}

	if c.KB.ChunkSize <= 0 {
		return fmt.Errorf("KB_CHUNK_SIZE must be positive, got %d", c.KB.ChunkSize)
	}
	if c.KB.ChunkOverlap < 0 {
		return fmt.Errorf("KB_CHUNK_OVERLAP must not be negative, got %d", c.KB.ChunkOverlap)
	}

	if c.Triage.AutoResolveThreshold < 0 || c.Triage.AutoResolveThreshold > 1 {
		return fmt.Errorf("TRIAGE_AUTO_RESOLVE_THRESHOLD must be within [0, 1], got %v", c.Triage.AutoResolveThreshold)
	}
	if c.Triage.MaxRetries < 0 {
		return fmt.Errorf("TRIAGE_MAX_RETRIES must not be negative, got %d", c.Triage.MaxRetries)
	}
	if c.Triage.KBTopK < 1 || c.Triage.KBTopK > 50 {
		return fmt.Errorf("TRIAGE_KB_TOP_K must be within [1, 50], got %d", c.Triage.KBTopK)
	}

	if !validQueueBackends[c.Queue.Backend] {
		return fmt.Errorf("QUEUE_BACKEND must be one of redis, rabbitmq; got %q", c.Queue.Backend)
	}
	if c.Queue.Backend == "rabbitmq" && c.Queue.AMQPURL == "" {
		return fmt.Errorf("AMQP_URL is required when QUEUE_BACKEND is rabbitmq")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.StaleAfter < 0 {
		return fmt.Errorf("WORKER_STALE_AFTER must not be negative, got %s", c.Worker.StaleAfter)
	}
	if c.Worker.StaleAfter > 0 && c.Worker.StaleAfter <= c.AI.InferenceTimeout {
		return fmt.Errorf("WORKER_STALE_AFTER (%s) must exceed AI_INFERENCE_TIMEOUT_SECS (%s)", c.Worker.StaleAfter, c.AI.InferenceTimeout)
	}

	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
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
