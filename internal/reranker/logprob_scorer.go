package reranker

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/IDEA-FinAI/RagLLaVA/internal/llm"
)

// DefaultTopLogprobs is how many first-token alternatives are requested.
const DefaultTopLogprobs = 10

// LogprobScorer derives P(yes) from the model's first-token distribution,
// renormalized over the yes and no tokens.
type LogprobScorer struct {
	client llm.LogprobLLM
	model  string
	topN   int
}

// LogprobScorerOption is a functional option for configuring LogprobScorer.
type LogprobScorerOption func(*LogprobScorer)

// WithModel sets the model to use for scoring.
func WithModel(model string) LogprobScorerOption {
	return func(s *LogprobScorer) {
		s.model = model
	}
}

// WithTopLogprobs sets how many alternatives are requested per call.
func WithTopLogprobs(n int) LogprobScorerOption {
	return func(s *LogprobScorer) {
		if n > 0 {
			s.topN = n
		}
	}
}

// NewLogprobScorer creates a scorer backed by a log-probability capable client.
func NewLogprobScorer(client llm.LogprobLLM, opts ...LogprobScorerOption) *LogprobScorer {
	s := &LogprobScorer{
		client: client,
		topN:   DefaultTopLogprobs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score asks the model whether the image is relevant and returns P(yes).
func (s *LogprobScorer) Score(ctx context.Context, imagePath, prompt string) (float64, error) {
	lps, err := s.client.FirstTokenLogprobs(ctx, prompt, llm.GenerateOptions{
		Model:       s.model,
		Temperature: 0,
		Images:      []string{imagePath},
	}, s.topN)
	if err != nil {
		return 0, fmt.Errorf("relevance scoring failed: %w", err)
	}
	return YesProbability(lps), nil
}

// YesProbability renormalizes the yes/no mass of a first-token distribution.
// It returns 0 when neither answer appears among the alternatives.
func YesProbability(lps []llm.TokenLogprob) float64 {
	var yes, no float64
	for _, lp := range lps {
		switch normalizeToken(lp.Token) {
		case "yes":
			yes += math.Exp(lp.Logprob)
		case "no":
			no += math.Exp(lp.Logprob)
		}
	}
	if yes+no == 0 {
		return 0
	}
	return clamp01(yes / (yes + no))
}

func normalizeToken(tok string) string {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimLeft(tok, "▁Ġ")
	tok = strings.Trim(tok, ".,!'\"")
	return strings.ToLower(tok)
}

// Ensure LogprobScorer implements Scorer.
var _ Scorer = (*LogprobScorer)(nil)
