// Package llm provides interfaces and implementations for vision-language model clients.
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// GenerateOptions configures a single model call. Values are fixed per call;
// callers build a fresh struct rather than mutating a shared one.
type GenerateOptions struct {
	// Model specifies the model to use. Empty selects the client default.
	Model string

	// SystemPrompt sets the system-level instructions for the model.
	SystemPrompt string

	// Temperature controls randomness in generation. Zero means greedy decoding.
	Temperature float32

	// TopP enables nucleus sampling when > 0.
	TopP float32

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int

	// Seed pins sampling for backends that support it.
	Seed *int

	// Images are image file paths attached to the prompt, in order.
	Images []string
}

// TokenLogprob is one candidate for a generated token with its log-probability.
type TokenLogprob struct {
	Token   string
	Logprob float64
}

// LLM defines the interface for model clients that produce text.
type LLM interface {
	// Generate sends a prompt (with optional images) and returns the complete response.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// LogprobLLM is implemented by clients that expose token log-probabilities.
type LogprobLLM interface {
	// FirstTokenLogprobs returns the topN most likely first tokens of the response.
	FirstTokenLogprobs(ctx context.Context, prompt string, opts GenerateOptions, topN int) ([]TokenLogprob, error)
}

// readImageBase64 loads an image file and returns its base64 encoding.
func readImageBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// imageDataURL returns a data: URL for an image file.
func imageDataURL(path string) (string, error) {
	encoded, err := readImageBase64(path)
	if err != nil {
		return "", err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + encoded, nil
}
