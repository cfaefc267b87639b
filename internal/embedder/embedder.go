// Package embedder provides interfaces and implementations for query text embedding.
//
// Questions are embedded with the text tower of the same contrastive model that
// produced the image index, so text vectors and image vectors share one space.
package embedder

import "context"

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// ModelConfig holds configuration for a specific embedding model.
type ModelConfig struct {
	Dimension     int // Embedding dimension
	ContextLength int // Max text tokens the text tower accepts
}

// KnownModels maps embedding model names to their configurations.
var KnownModels = map[string]ModelConfig{
	"clip-vit-l-14-336": {
		Dimension:     768,
		ContextLength: 77,
	},
	"clip-vit-b-32": {
		Dimension:     512,
		ContextLength: 77,
	},
	"siglip-so400m": {
		Dimension:     1152,
		ContextLength: 64,
	},
}

// GetModelConfig returns the configuration for a model, or defaults if unknown.
func GetModelConfig(modelName string) ModelConfig {
	if cfg, ok := KnownModels[modelName]; ok {
		return cfg
	}
	return ModelConfig{
		Dimension:     768,
		ContextLength: 77,
	}
}
