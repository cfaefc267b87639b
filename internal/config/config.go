// Package config loads configuration from environment variables and .env files.
package config

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/IDEA-FinAI/RagLLaVA/internal/dataset"
	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
)

// Config holds all configuration for an evaluation run
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Run selection
	RerankerModel  string  `env:"RERANKER_MODEL" envDefault:"lora_caption"`
	GeneratorModel string  `env:"GENERATOR_MODEL" envDefault:"base_sft"`
	Dataset        string  `env:"DATASET_MODE" envDefault:"val"`
	Filter         float64 `env:"FILTER" envDefault:"0"`
	RerankOff      bool    `env:"RERANK_OFF" envDefault:"false"`
	TopK           int     `env:"CLIP_TOPK" envDefault:"20"`
	RerankKeep     int     `env:"RERANK_KEEP" envDefault:"2"`
	FailFast       bool    `env:"FAIL_FAST" envDefault:"false"`
	ModelCatalog   string  `env:"MODEL_CATALOG"`

	// Inputs. Empty values use the per-mode defaults.
	DataDir      string `env:"DATA_DIR" envDefault:"."`
	DatasetPath  string `env:"DATASET_PATH"`
	IDMapPath    string `env:"ID_MAP_PATH"`
	CaptionsPath string `env:"CAPTIONS_PATH"`
	Collection   string `env:"QDRANT_COLLECTION"`
	ValImageDir  string `env:"VAL_IMAGE_DIR" envDefault:"val_image"`
	TrainImgDir  string `env:"TRAIN_IMAGE_DIR" envDefault:"playground/data/train_img"`

	// Outputs. Empty OutputPath uses the conventional answer file name.
	OutputPath       string `env:"OUTPUT_PATH"`
	HardExamplesPath string `env:"HARD_EXAMPLES_PATH"`
	ProbabilityPath  string `env:"PROBABILITY_PATH"`
	SummaryPath      string `env:"SUMMARY_PATH"`

	// Qdrant
	QdrantGRPCURL string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantAPIKey  string `env:"QDRANT_API_KEY"`

	// Query embedding
	EmbedURL       string `env:"EMBED_URL" envDefault:"http://localhost:11434"`
	EmbedModel     string `env:"EMBED_MODEL" envDefault:"clip-vit-l-14-336"`
	EmbedDimension int    `env:"EMBED_DIMENSION" envDefault:"0"`

	// Model servers
	RerankerURL    string        `env:"RERANKER_URL" envDefault:"http://localhost:8000/v1"`
	GeneratorURL   string        `env:"GENERATOR_URL" envDefault:"http://localhost:8001/v1"`
	OllamaURL      string        `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	TopLogprobs    int           `env:"TOP_LOGPROBS" envDefault:"10"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5m"`

	// Optional run storage in PostgreSQL
	DatabaseURL string `env:"DATABASE_URL"`

	// Optional status server, e.g. ":9100"
	StatusAddr string `env:"STATUS_ADDR"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Mode returns the parsed dataset mode.
func (c *Config) Mode() (dataset.Mode, error) {
	return dataset.ParseMode(c.Dataset)
}

// Validate rejects option values that cannot produce a run.
func (c *Config) Validate() error {
	if _, err := c.Mode(); err != nil {
		return err
	}
	if math.IsNaN(c.Filter) || c.Filter < 0 || c.Filter > 1 {
		return evalerr.Configf("filter must be within [0, 1], got %v", c.Filter)
	}
	if c.TopK < 1 {
		return evalerr.Configf("clip topk must be at least 1, got %d", c.TopK)
	}
	if c.RerankKeep < 1 {
		return evalerr.Configf("rerank keep must be at least 1, got %d", c.RerankKeep)
	}
	if c.TopLogprobs < 1 {
		return evalerr.Configf("top logprobs must be at least 1, got %d", c.TopLogprobs)
	}
	if c.RequestTimeout <= 0 {
		return evalerr.Configf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

// Files returns the input files for the configured mode, with explicit paths
// taking precedence over the per-mode defaults under DataDir.
func (c *Config) Files() (dataset.Files, error) {
	mode, err := c.Mode()
	if err != nil {
		return dataset.Files{}, err
	}
	f := dataset.DefaultFiles(mode)
	f.Dataset = pick(c.DatasetPath, c.DataDir, f.Dataset)
	f.IDMap = pick(c.IDMapPath, c.DataDir, f.IDMap)
	f.Captions = pick(c.CaptionsPath, c.DataDir, f.Captions)
	if c.Collection != "" {
		f.Collection = c.Collection
	}
	return f, nil
}

// Paths returns the image path resolver for the configured mode.
func (c *Config) Paths() (dataset.PathResolver, error) {
	mode, err := c.Mode()
	if err != nil {
		return dataset.PathResolver{}, err
	}
	return dataset.PathResolver{Mode: mode, ValRoot: c.ValImageDir, TrainRoot: c.TrainImgDir}, nil
}
