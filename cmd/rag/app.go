package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"multimodal-rag/internal/cache"
	"multimodal-rag/internal/chunker"
	"multimodal-rag/internal/config"
	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/embedding/clip"
	"multimodal-rag/internal/embedding/hashing"
	"multimodal-rag/internal/embedding/openai"
	"multimodal-rag/internal/imaging"
	"multimodal-rag/internal/llm"
	"multimodal-rag/internal/loader"
	"multimodal-rag/internal/logging"
	"multimodal-rag/internal/models"
	"multimodal-rag/internal/retriever"
	"multimodal-rag/internal/service"
	"multimodal-rag/internal/synth"
	"multimodal-rag/internal/vectorstore"
	"multimodal-rag/internal/vectorstore/memory"
	"multimodal-rag/internal/vectorstore/qdrant"
	"multimodal-rag/internal/vision"
)

// app is the assembled pipeline shared by every subcommand.
type app struct {
	cfg      *config.AppConfig
	log      *logrus.Logger
	registry *models.Registry
	cache    *cache.QueryCache
	ingester *service.Ingester
	query    *service.QueryService
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	reg := models.NewRegistry(
		models.WithRetryPolicy(models.RetryPolicy{
			Attempts: cfg.Models.Attempts,
			Initial:  time.Duration(cfg.Models.InitialBackoffMS) * time.Millisecond,
			Factor:   cfg.Models.BackoffFactor,
		}),
		models.WithWarmupWorkers(cfg.Models.WarmupWorkers),
		models.WithLogger(log),
	)
	registerModels(reg, cfg)
	catalog := models.Catalog{Registry: reg}

	store, err := newStorage(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	gw := vectorstore.NewGateway(store,
		vectorstore.WithBatchSize(cfg.VectorStore.BatchSize),
		vectorstore.WithLogger(log),
	)

	seg := chunker.NewSegmenter(
		chunker.Profile{Size: cfg.Chunker.Lead.Size, Overlap: cfg.Chunker.Lead.Overlap},
		chunker.Profile{Size: cfg.Chunker.Remainder.Size, Overlap: cfg.Chunker.Remainder.Overlap},
	)
	ingester := service.NewIngester(
		loader.New(log, loader.WithMaxMemberBytes(int64(cfg.Loader.MaxMemberMB)<<20)),
		seg,
		imaging.NewExtractor(catalog, log),
		catalog,
		gw,
		service.IngestConfig{
			TextIndex:         cfg.VectorStore.TextIndex,
			ImageIndex:        cfg.VectorStore.ImageIndex,
			MetadataTextLimit: cfg.Chunker.MetadataTextLimit,
		},
		log,
	)

	qc := cache.New(cfg.Cache.Capacity)
	query := service.NewQueryService(
		retriever.New(catalog, gw, cfg.VectorStore.TextIndex, cfg.VectorStore.ImageIndex, log),
		synth.New(catalog),
		qc,
		catalog,
		service.QueryConfig{
			TextTopK:  cfg.Query.TextTopK,
			ImageTopK: cfg.Query.ImageTopK,
			Reasoning: cfg.Query.Reasoning,
		},
		log,
	)

	return &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		cache:    qc,
		ingester: ingester,
		query:    query,
	}, nil
}

// registerModels binds every model slot to its adapter constructor. Nothing
// is contacted until a slot is first loaded.
func registerModels(reg *models.Registry, cfg *config.AppConfig) {
	reg.Register(models.Embeddings, models.Constructor(func() (domain.TextEmbedder, error) {
		return newTextEmbedder(cfg.Embedder)
	}))
	reg.Register(models.CLIP, models.Constructor(func() (domain.VisualEmbedder, error) {
		return clip.NewClient(clip.Config{
			BaseURL:   cfg.VisualEmbedder.BaseURL,
			APIKeyEnv: cfg.VisualEmbedder.APIKeyEnv,
			Model:     cfg.VisualEmbedder.Model,
			Timeout:   seconds(cfg.VisualEmbedder.TimeoutSecs),
		})
	}))
	reg.Register(models.BLIP, models.Constructor(func() (*vision.Client, error) {
		return newVision(cfg.Vision, cfg.Vision.CaptionModel)
	}))
	reg.Register(models.OCR, models.Constructor(func() (*vision.Client, error) {
		return newVision(cfg.Vision, cfg.Vision.OCRModel)
	}))
	reg.Register(models.Completion, models.Constructor(func() (domain.Completer, error) {
		return llm.NewClient(llm.Config{
			BaseURL:           cfg.LLM.BaseURL,
			APIKeyEnv:         cfg.LLM.APIKeyEnv,
			Model:             cfg.LLM.Model,
			Timeout:           seconds(cfg.LLM.TimeoutSecs),
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			Temperature:       cfg.LLM.Temperature,
			MaxTokens:         cfg.LLM.MaxTokens,
		})
	}))
	if cfg.Query.Reasoning {
		reg.Register(models.LLaVA, models.Constructor(func() (*vision.Client, error) {
			return newVision(cfg.Vision, cfg.Vision.ReasoningModel)
		}))
	}
}

func newTextEmbedder(cfg config.EmbedderConfig) (domain.TextEmbedder, error) {
	switch cfg.Type {
	case "hashing", "":
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   seconds(cfg.OpenAI.TimeoutSecs),
			Dimension: cfg.OpenAI.Dimension,
			BatchSize: cfg.BatchSize,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newVision(cfg config.VisionConfig, model string) (*vision.Client, error) {
	chat, err := llm.NewClient(llm.Config{
		BaseURL:           cfg.BaseURL,
		APIKeyEnv:         cfg.APIKeyEnv,
		Model:             model,
		Timeout:           seconds(cfg.TimeoutSecs),
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	return vision.New(chat), nil
}

func newStorage(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		var key string
		if cfg.Qdrant.APIKeyEnv != "" {
			key = os.Getenv(cfg.Qdrant.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  key,
			Timeout: seconds(cfg.Qdrant.TimeoutSecs),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
