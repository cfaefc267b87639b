// Package main provides the rageval CLI, which runs the retrieve, rerank,
// generate and score evaluation over a WebQA split.
//
// # Basic Usage
//
//	rageval run --datasets val --reranker-model lora_caption --generator-model base_sft --filter 0.5
//	rageval run --rerank-off --clip-topk 5
//	rageval models
//
// Every flag has an environment variable default (see internal/config); a
// .env file in the working directory is loaded when present.
package main

import (
	"log/slog"
	"os"
)

func main() {
	// Info until the run command has loaded LOG_LEVEL from the config.
	slog.SetDefault(newLogger(slog.LevelInfo))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("rageval failed", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the JSON logger on stderr; stdout carries the summary report.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
