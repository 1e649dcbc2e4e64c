package config

import (
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "FINKNOW"

// Vector store backends.
const (
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
	BackendMemory   = "memory"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	VectorBackend string `envconfig:"VECTOR_BACKEND" default:"qdrant"`
	Collection    string `envconfig:"COLLECTION" default:"finknow_chunks"`

	QdrantURL    string `envconfig:"QDRANT_URL"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	// Location of the schema migrations, in golang-migrate source URL form.
	MigrationsSource string `envconfig:"MIGRATIONS" default:"file://migrations"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	MaxTokens           int    `envconfig:"MAX_TOKENS" default:"512"`

	ChunkSize      int    `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap   int    `envconfig:"CHUNK_OVERLAP" default:"150"`
	BatchSize      int    `envconfig:"BATCH_SIZE" default:"128"`
	TopK           int    `envconfig:"TOP_K" default:"5"`
	ScrollPageSize int    `envconfig:"SCROLL_PAGE_SIZE" default:"250"`
	QueryPrefix    string `envconfig:"QUERY_PREFIX" default:"query: "`
	PassagePrefix  string `envconfig:"PASSAGE_PREFIX" default:"passage: "`

	CachePath string `envconfig:"CACHE_PATH" default:"processed_cache.json"`

	EmbedRPS          float64       `envconfig:"EMBED_RPS" default:"0"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"3"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	MaxUploadBytes    int64         `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"0"`

	// Static bearer token for the HTTP API; auth is disabled when empty.
	APIKey string `envconfig:"API_KEY"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"finknow-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	// Lifetime of presigned download links.
	S3DownloadURLExpiry time.Duration `envconfig:"S3_DOWNLOAD_URL_EXPIRY" default:"1h"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return cfg
}

// Validate reports every missing or inconsistent setting in a single configuration error.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateStore checks only the settings needed to reach the vector store and the cache.
func (c *Config) ValidateStore() error {
	return c.validate(false)
}

func (c *Config) validate(needOpenAI bool) error {
	var missing []string
	if needOpenAI && !c.HasOpenAI() {
		missing = append(missing, setting("OPENAI_API_KEY"))
	}
	switch c.VectorBackend {
	case BackendQdrant:
		if c.QdrantURL == "" {
			missing = append(missing, setting("QDRANT_URL"))
		}
	case BackendPgvector:
		if c.DatabaseURL == "" {
			missing = append(missing, setting("DATABASE_URL"))
		}
	case BackendMemory:
	default:
		return domain.ConfigurationError(
			fmt.Sprintf("unknown vector backend %q (want %s, %s or %s)", c.VectorBackend, BackendQdrant, BackendPgvector, BackendMemory),
			setting("VECTOR_BACKEND"),
		)
	}
	if c.Collection == "" {
		missing = append(missing, setting("COLLECTION"))
	}
	if len(missing) > 0 {
		return domain.ConfigurationError("missing required settings", missing...)
	}

	var invalid []string
	if c.EmbeddingDimensions <= 0 {
		invalid = append(invalid, setting("EMBEDDING_DIMENSIONS"))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		invalid = append(invalid, setting("CHUNK_SIZE"), setting("CHUNK_OVERLAP"))
	}
	if c.BatchSize <= 0 {
		invalid = append(invalid, setting("BATCH_SIZE"))
	}
	if c.TopK <= 0 {
		invalid = append(invalid, setting("TOP_K"))
	}
	if c.ScrollPageSize <= 0 {
		invalid = append(invalid, setting("SCROLL_PAGE_SIZE"))
	}
	if c.MaxTokens <= 0 {
		invalid = append(invalid, setting("MAX_TOKENS"))
	}
	if len(invalid) > 0 {
		return domain.ConfigurationError("invalid settings", invalid...)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasAuth() bool {
	return c.APIKey != ""
}

func setting(name string) string {
	return envPrefix + "_" + name
}
