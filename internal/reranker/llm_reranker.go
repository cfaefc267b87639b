package reranker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/IDEA-FinAI/RagLLaVA/internal/llm"
)

var scorePattern = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)

// GenerativeScorer scores relevance from the model's text reply, for backends
// that do not expose log-probabilities. A reply starting with yes scores 1,
// one starting with no scores 0, and a bare number is read as the probability.
type GenerativeScorer struct {
	llmClient llm.LLM
	model     string
}

// NewGenerativeScorer creates a scorer that parses generated replies.
func NewGenerativeScorer(llmClient llm.LLM, model string) *GenerativeScorer {
	return &GenerativeScorer{llmClient: llmClient, model: model}
}

// Score asks the model for a yes/no relevance verdict.
func (s *GenerativeScorer) Score(ctx context.Context, imagePath, prompt string) (float64, error) {
	opts := llm.GenerateOptions{
		Model:       s.model,
		Temperature: 0.0, // Deterministic scoring
		MaxTokens:   8,
		Images:      []string{imagePath},
	}

	response, err := s.llmClient.Generate(ctx, prompt, opts)
	if err != nil {
		return 0, fmt.Errorf("relevance scoring failed: %w", err)
	}

	score, err := parseVerdict(response)
	if err != nil {
		return 0, err
	}
	return score, nil
}

// parseVerdict maps a short model reply to a probability.
func parseVerdict(response string) (float64, error) {
	response = strings.ToLower(strings.TrimSpace(response))
	response = strings.TrimLeft(response, "'\"`*")

	switch {
	case strings.HasPrefix(response, "yes"):
		return 1, nil
	case strings.HasPrefix(response, "no"):
		return 0, nil
	}

	if m := scorePattern.FindString(response); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err == nil {
			return clamp01(v), nil
		}
	}
	return 0, fmt.Errorf("unparseable relevance reply %q", response)
}

// Ensure GenerativeScorer implements Scorer interface.
var _ Scorer = (*GenerativeScorer)(nil)
