package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/finknow/internal/cache"
	"github.com/cloo-solutions/finknow/internal/config"
	"github.com/cloo-solutions/finknow/internal/database"
	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/cloo-solutions/finknow/internal/extract"
	"github.com/cloo-solutions/finknow/internal/memstore"
	"github.com/cloo-solutions/finknow/internal/openai"
	"github.com/cloo-solutions/finknow/internal/qdrant"
	"github.com/cloo-solutions/finknow/internal/repository"
	"github.com/cloo-solutions/finknow/internal/service"
	"github.com/cloo-solutions/finknow/internal/storage"
	"github.com/cloo-solutions/finknow/internal/telemetry"
	goopenai "github.com/sashabaranov/go-openai"
)

// stack holds the services shared by the daemon commands.
type stack struct {
	cfg       *config.Config
	store     service.VectorStore
	cache     *cache.ContentCache
	archive   *storage.DocumentArchive
	documents *service.DocumentService

	// Built only for commands that embed or generate.
	ingestion *service.IngestionService
	retrieval *service.RetrievalService
	answers   *service.AnswerService

	closers []func()
}

type stackOptions struct {
	needOpenAI bool
	migrate    bool
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func loadConfig(needOpenAI bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if needOpenAI {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateStore()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// initTelemetry starts Sentry when a DSN is configured. Sampling is 10% in production and 100% elsewhere.
func initTelemetry(cfg *config.Config) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}

	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return func() {}
	}
	return shutdown
}

func buildStack(ctx context.Context, cfg *config.Config, opts stackOptions) (*stack, error) {
	s := &stack{cfg: cfg}

	store, err := s.openVectorStore(ctx, opts.migrate)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := store.EnsureCollection(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare collection %q: %w", cfg.Collection, err)
	}
	s.store = store
	log.Printf("vector store: %s (collection %s)", cfg.VectorBackend, cfg.Collection)

	s.cache = cache.Load(cfg.CachePath)
	if cfg.VectorBackend == config.BackendMemory && s.cache.Len() > 0 {
		// A fresh in-memory store holds none of the cached documents.
		log.Printf("warning: memory vector store is empty; clearing %d cache entries", s.cache.Len())
		if err := s.cache.Clear(); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:          cfg.S3Endpoint,
			Region:            cfg.S3Region,
			AccessKeyID:       cfg.S3AccessKey,
			SecretAccessKey:   cfg.S3SecretKey,
			Bucket:            cfg.S3Bucket,
			UsePathStyle:      true,
			DownloadURLExpiry: cfg.S3DownloadURLExpiry,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		s.archive = storage.NewDocumentArchive(s3Client)
	}

	if s.archive != nil {
		s.documents = service.NewDocumentService(store, s.cache, s.archive)
	} else {
		s.documents = service.NewDocumentService(store, s.cache, nil)
	}

	if !opts.needOpenAI {
		return s, nil
	}

	client := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
		Timeout:             cfg.RequestTimeout,
		RequestsPerSecond:   cfg.EmbedRPS,
		MaxRetries:          cfg.MaxRetries,
	})

	chunker, err := service.NewChunker(service.ChunkConfig{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap})
	if err != nil {
		s.Close()
		return nil, err
	}
	embedder := service.NewEmbeddingGateway(client, service.EmbeddingConfig{
		BatchSize:     cfg.BatchSize,
		QueryPrefix:   cfg.QueryPrefix,
		PassagePrefix: cfg.PassagePrefix,
	})

	s.ingestion = service.NewIngestionService(extract.Auto{}, chunker, embedder, store, s.cache, &service.DefaultUUIDGenerator{})
	if s.archive != nil {
		s.ingestion.WithArchive(s.archive)
	}
	s.retrieval = service.NewRetrievalService(embedder, store, cfg.TopK)
	s.answers = service.NewAnswerService(client, s.retrieval, cfg.MaxTokens)

	return s, nil
}

func (s *stack) openVectorStore(ctx context.Context, migrate bool) (service.VectorStore, error) {
	cfg := s.cfg
	switch cfg.VectorBackend {
	case config.BackendQdrant:
		return qdrant.NewStore(qdrant.Config{
			URL:            cfg.QdrantURL,
			APIKey:         cfg.QdrantAPIKey,
			Collection:     cfg.Collection,
			Dimensions:     cfg.EmbeddingDimensions,
			Timeout:        cfg.RequestTimeout,
			ScrollPageSize: cfg.ScrollPageSize,
			MaxRetries:     cfg.MaxRetries,
		})

	case config.BackendPgvector:
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		log.Println("connected to database")

		if migrate {
			if err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsSource); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		return repository.NewChunkStore(pool, cfg.Collection, cfg.EmbeddingDimensions, cfg.ScrollPageSize)

	case config.BackendMemory:
		return memstore.New(cfg.EmbeddingDimensions), nil
	}

	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownVectorBackend, cfg.VectorBackend)
}
