// Package generator produces free-text answers from a question and evidence images.
package generator

import (
	"context"
	"fmt"

	"github.com/IDEA-FinAI/RagLLaVA/internal/llm"
)

// Generator defines the answer generator interface.
type Generator interface {
	// Generate answers question given zero or more image paths, in order.
	Generate(ctx context.Context, question string, imagePaths []string) (string, error)
}

// PromptStyle selects how the question is presented to the model.
type PromptStyle int

const (
	// PromptShortAnswer wraps the question with a brevity instruction.
	PromptShortAnswer PromptStyle = iota
	// PromptRaw passes the question unchanged, for models fine-tuned on the task format.
	PromptRaw
)

// LLMGenerator answers questions with a vision-language model client.
type LLMGenerator struct {
	client    llm.LLM
	model     string
	style     PromptStyle
	maxTokens int
}

// Option configures an LLMGenerator.
type Option func(*LLMGenerator)

// WithPromptStyle sets the prompt style.
func WithPromptStyle(style PromptStyle) Option {
	return func(g *LLMGenerator) {
		g.style = style
	}
}

// WithMaxTokens sets the answer token budget.
func WithMaxTokens(n int) Option {
	return func(g *LLMGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// NewLLMGenerator creates a generator for the given model.
func NewLLMGenerator(client llm.LLM, model string, opts ...Option) *LLMGenerator {
	g := &LLMGenerator{
		client:    client,
		model:     model,
		style:     PromptShortAnswer,
		maxTokens: llm.DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs greedy decoding over the question and images.
func (g *LLMGenerator) Generate(ctx context.Context, question string, imagePaths []string) (string, error) {
	answer, err := g.client.Generate(ctx, BuildPrompt(question, g.style), llm.GenerateOptions{
		Model:       g.model,
		Temperature: 0,
		MaxTokens:   g.maxTokens,
		Images:      imagePaths,
	})
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return answer, nil
}

// BuildPrompt renders the question for the given style.
func BuildPrompt(question string, style PromptStyle) string {
	if style == PromptRaw {
		return question
	}
	return fmt.Sprintf("Question: %s\nAnswer the question with less than eight words based on the provided images.", question)
}

// Ensure LLMGenerator implements Generator.
var _ Generator = (*LLMGenerator)(nil)
