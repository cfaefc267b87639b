package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IDEA-FinAI/RagLLaVA/internal/config"
	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
)

func TestApplyFlags_OnlyChanged(t *testing.T) {
	var f runFlags
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	bindRunFlags(fs, &f)
	require.NoError(t, fs.Parse([]string{"--filter", "0.5", "--rerank-off", "--generator-model", "dino_sft"}))

	cfg := &config.Config{
		RerankerModel:  "lora",
		GeneratorModel: "base",
		Dataset:        "dev",
		TopK:           5,
		RerankKeep:     3,
	}
	applyFlags(fs, f, cfg)

	assert.Equal(t, 0.5, cfg.Filter)
	assert.True(t, cfg.RerankOff)
	assert.Equal(t, "dino_sft", cfg.GeneratorModel)
	// Unset flags keep the environment values, not the flag defaults.
	assert.Equal(t, "lora", cfg.RerankerModel)
	assert.Equal(t, "dev", cfg.Dataset)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 3, cfg.RerankKeep)
}

func TestModelsCmd(t *testing.T) {
	var out bytes.Buffer
	root := buildRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"models"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "KIND")
	assert.Contains(t, text, "qwen_lora_caption")
	assert.Contains(t, text, "(reranker model)")
}

func TestRunEval_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"filter out of range", func(c *config.Config) { c.Filter = 1.5 }},
		{"unknown mode", func(c *config.Config) { c.Dataset = "test" }},
		{"zero topk", func(c *config.Config) { c.TopK = 0 }},
		{"unknown reranker", func(c *config.Config) { c.RerankerModel = "nope" }},
		{"unknown generator", func(c *config.Config) { c.GeneratorModel = "nope" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				RerankerModel:  "lora_caption",
				GeneratorModel: "base_sft",
				Dataset:        "val",
				TopK:           20,
				RerankKeep:     2,
				TopLogprobs:    10,
				RequestTimeout: 1,
			}
			tt.mutate(cfg)
			err := runEval(context.Background(), cfg, io.Discard)
			require.Error(t, err)
			assert.ErrorIs(t, err, evalerr.ErrConfiguration)
		})
	}
}
