package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr             string `yaml:"addr"`
	UploadDir        string `yaml:"upload_dir"`
	ShutdownTimeoutS int    `yaml:"shutdown_timeout_secs"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Dimension   int    `yaml:"dimension"`
}

// HashingEmbedderConfig configures the offline hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                 `yaml:"type"`
	BatchSize int                    `yaml:"batch_size"`
	OpenAI    *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing   *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// VisualEmbedderConfig configures the CLIP inference endpoint.
type VisualEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VisionConfig configures captioning, OCR and visual reasoning. All three
// run against one OpenAI-compatible multimodal endpoint.
type VisionConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	CaptionModel      string  `yaml:"caption_model"`
	OCRModel          string  `yaml:"ocr_model"`
	ReasoningModel    string  `yaml:"reasoning_model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// LLMConfig configures answer completion.
type LLMConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
}

// ChunkProfile is one splitter size/overlap pair, in tokens.
type ChunkProfile struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Lead              ChunkProfile `yaml:"lead"`
	Remainder         ChunkProfile `yaml:"remainder"`
	MetadataTextLimit int          `yaml:"metadata_text_limit"`
}

// LoaderConfig bounds document extraction.
type LoaderConfig struct {
	// MaxMemberMB caps the decompressed size of one zip or docx member.
	MaxMemberMB int `yaml:"max_member_mb"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"`
	TextIndex  string        `yaml:"text_index"`
	ImageIndex string        `yaml:"image_index"`
	BatchSize  int           `yaml:"batch_size"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ModelsConfig configures model loading and warmup.
type ModelsConfig struct {
	Attempts         int     `yaml:"attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms"`
	BackoffFactor    float64 `yaml:"backoff_factor"`
	WarmupWorkers    int     `yaml:"warmup_workers"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

// QueryConfig bounds retrieval. Reasoning enables visual reasoning over
// retrieved images for image-oriented questions.
type QueryConfig struct {
	TextTopK  int  `yaml:"text_top_k"`
	ImageTopK int  `yaml:"image_top_k"`
	Reasoning bool `yaml:"reasoning"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Embedder       EmbedderConfig       `yaml:"embedder"`
	VisualEmbedder VisualEmbedderConfig `yaml:"visual_embedder"`
	Vision         VisionConfig         `yaml:"vision"`
	LLM            LLMConfig            `yaml:"llm"`
	Chunker        ChunkerConfig        `yaml:"chunker"`
	Loader         LoaderConfig         `yaml:"loader"`
	VectorStore    VectorStoreConfig    `yaml:"vector_store"`
	Models         ModelsConfig         `yaml:"models"`
	Cache          CacheConfig          `yaml:"cache"`
	Query          QueryConfig          `yaml:"query"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing"},
		VectorStore: VectorStoreConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	setString(&cfg.Server.Addr, ":8000")
	setString(&cfg.Server.UploadDir, filepath.Join("data", "uploads"))
	setInt(&cfg.Server.ShutdownTimeoutS, 5)

	setString(&cfg.Logging.Level, "info")
	setString(&cfg.Logging.Format, "text")

	setString(&cfg.Embedder.Type, "hashing")
	setInt(&cfg.Embedder.BatchSize, 32)
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		setString(&cfg.Embedder.OpenAI.BaseURL, "https://api.openai.com/v1")
		setString(&cfg.Embedder.OpenAI.APIKeyEnv, "OPENAI_API_KEY")
		setString(&cfg.Embedder.OpenAI.Model, "text-embedding-3-small")
		setInt(&cfg.Embedder.OpenAI.TimeoutSecs, 30)
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		setInt(&cfg.Embedder.Hashing.Dimension, 384)
	}

	setString(&cfg.VisualEmbedder.BaseURL, "http://localhost:51000/v1")
	setString(&cfg.VisualEmbedder.Model, "clip-vit-base-patch32")
	setInt(&cfg.VisualEmbedder.TimeoutSecs, 60)

	setString(&cfg.Vision.BaseURL, "https://api.groq.com/openai/v1")
	setString(&cfg.Vision.APIKeyEnv, "GROQ_API_KEY")
	setString(&cfg.Vision.CaptionModel, "meta-llama/llama-4-scout-17b-16e-instruct")
	setString(&cfg.Vision.OCRModel, "meta-llama/llama-4-scout-17b-16e-instruct")
	setString(&cfg.Vision.ReasoningModel, "meta-llama/llama-4-scout-17b-16e-instruct")
	setInt(&cfg.Vision.TimeoutSecs, 120)

	setString(&cfg.LLM.BaseURL, "https://api.groq.com/openai/v1")
	setString(&cfg.LLM.APIKeyEnv, "GROQ_API_KEY")
	setString(&cfg.LLM.Model, "llama-3.1-8b-instant")
	setInt(&cfg.LLM.TimeoutSecs, 120)

	setInt(&cfg.Chunker.Lead.Size, 200)
	setInt(&cfg.Chunker.Lead.Overlap, 20)
	setInt(&cfg.Chunker.Remainder.Size, 480)
	setInt(&cfg.Chunker.Remainder.Overlap, 60)
	setInt(&cfg.Chunker.MetadataTextLimit, 1000)

	setInt(&cfg.Loader.MaxMemberMB, 64)

	setString(&cfg.VectorStore.Type, "memory")
	setString(&cfg.VectorStore.TextIndex, "multimodal-documents")
	setString(&cfg.VectorStore.ImageIndex, "multimodal-image")
	setInt(&cfg.VectorStore.BatchSize, 100)
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		setString(&cfg.VectorStore.Qdrant.URL, "http://localhost:6333")
		setInt(&cfg.VectorStore.Qdrant.TimeoutSecs, 15)
	}

	setInt(&cfg.Models.Attempts, 3)
	setInt(&cfg.Models.InitialBackoffMS, 1000)
	if cfg.Models.BackoffFactor == 0 {
		cfg.Models.BackoffFactor = 2
	}
	setInt(&cfg.Models.WarmupWorkers, 4)

	setInt(&cfg.Cache.Capacity, 100)

	setInt(&cfg.Query.TextTopK, 5)
	setInt(&cfg.Query.ImageTopK, 3)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
