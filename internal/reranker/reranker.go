// Package reranker scores how relevant a single retrieved image is to a question.
//
// A scorer is called once per retrieved candidate. Candidates are never batched
// into one model call, so a score depends only on its own image and prompt and
// runs are reproducible.
//
// # Trade-offs
//
// Reranking is switched off with the rerank-off option.
//
//   - Latency: one model call per retrieved image (topk calls per question)
//   - Quality: the vision-language model sees the pixels, unlike the text-image embedding search
//   - Cost: dominates the run when topk is large
package reranker

import (
	"context"
	"strings"
)

// Scorer defines the relevance scorer interface.
type Scorer interface {
	// Score returns the probability in [0,1] that the image at imagePath is
	// relevant according to prompt. It must be deterministic for fixed inputs.
	Score(ctx context.Context, imagePath, prompt string) (float64, error)
}

// Prompt builds the relevance question put to the scorer. When withCaption is
// set the image caption is embedded ahead of the question.
func Prompt(question, caption string, withCaption bool) string {
	var sb strings.Builder
	if withCaption {
		sb.WriteString("Image Caption: ")
		sb.WriteString(caption)
		sb.WriteString("\nQuestion: ")
		sb.WriteString(question)
		sb.WriteString("\nBased on the image and its caption, is the image relevant to the question? Answer 'Yes' or 'No'.")
		return sb.String()
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nIs this image relevant to the question? Answer 'Yes' or 'No'.")
	return sb.String()
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
