package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/IDEA-FinAI/RagLLaVA/internal/dataset"
	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "lora_caption", cfg.RerankerModel)
	assert.Equal(t, "base_sft", cfg.GeneratorModel)
	assert.Equal(t, "val", cfg.Dataset)
	assert.Equal(t, 20, cfg.TopK)
	assert.Equal(t, 2, cfg.RerankKeep)
	assert.Equal(t, 5*time.Minute, cfg.RequestTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATASET_MODE", "dev")
	t.Setenv("FILTER", "0.5")
	t.Setenv("RERANK_OFF", "true")
	t.Setenv("CLIP_TOPK", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Filter)
	assert.True(t, cfg.RerankOff)
	assert.Equal(t, 5, cfg.TopK)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, dataset.ModeDev, mode)
}

func validConfig() *Config {
	return &Config{
		Dataset:        "val",
		TopK:           20,
		RerankKeep:     2,
		TopLogprobs:    10,
		RequestTimeout: time.Minute,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"mode":        func(c *Config) { c.Dataset = "test" },
		"filter high": func(c *Config) { c.Filter = 1.01 },
		"filter low":  func(c *Config) { c.Filter = -1 },
		"topk":        func(c *Config) { c.TopK = 0 },
		"rerank keep": func(c *Config) { c.RerankKeep = 0 },
		"logprobs":    func(c *Config) { c.TopLogprobs = 0 },
		"timeout":     func(c *Config) { c.RequestTimeout = 0 },
	} {
		cfg := validConfig()
		mutate(cfg)
		assert.ErrorIs(t, cfg.Validate(), evalerr.ErrConfiguration, name)
	}
}

func TestFiles(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = "/data/webqa"
	cfg.IDMapPath = "custom_map.json"

	f, err := cfg.Files()
	require.NoError(t, err)
	assert.Equal(t, "/data/webqa/WebQA_val_image_objects.json", f.Dataset)
	assert.Equal(t, "custom_map.json", f.IDMap)
	assert.Equal(t, "/data/webqa/WebQA_vanilla_caption_val_image.json", f.Captions)
	assert.Equal(t, "WebQA_val_image_large", f.Collection)

	cfg.Dataset = "train"
	cfg.DataDir = "."
	cfg.Collection = "webqa_train"
	f, err = cfg.Files()
	require.NoError(t, err)
	assert.Equal(t, "WebQA_train_image.json", f.Dataset)
	assert.Equal(t, "webqa_train", f.Collection)
}

func TestPaths(t *testing.T) {
	cfg := validConfig()
	cfg.Dataset = "train"
	cfg.TrainImgDir = "imgs/train"

	r, err := cfg.Paths()
	require.NoError(t, err)
	assert.Equal(t, "imgs/train/42.png", r.Resolve("42"))
}

func TestSlogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARN"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "verbose"}).SlogLevel())
}
