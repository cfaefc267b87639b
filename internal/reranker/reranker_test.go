package reranker

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/IDEA-FinAI/RagLLaVA/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogprobClient struct {
	lps      []llm.TokenLogprob
	err      error
	lastOpts llm.GenerateOptions
	lastTopN int
}

func (m *mockLogprobClient) FirstTokenLogprobs(ctx context.Context, prompt string, opts llm.GenerateOptions, topN int) ([]llm.TokenLogprob, error) {
	m.lastOpts = opts
	m.lastTopN = topN
	return m.lps, m.err
}

type mockLLM struct {
	response string
	err      error
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return m.response, m.err
}

func TestPrompt(t *testing.T) {
	assert.Equal(t,
		"Question: Is the sky blue?\nIs this image relevant to the question? Answer 'Yes' or 'No'.",
		Prompt("Is the sky blue?", "ignored", false))
	assert.Equal(t,
		"Image Caption: a clear sky\nQuestion: Is the sky blue?\nBased on the image and its caption, is the image relevant to the question? Answer 'Yes' or 'No'.",
		Prompt("Is the sky blue?", "a clear sky", true))
}

func TestYesProbability(t *testing.T) {
	p := YesProbability([]llm.TokenLogprob{
		{Token: "Yes", Logprob: math.Log(0.6)},
		{Token: "▁yes", Logprob: math.Log(0.1)},
		{Token: "No", Logprob: math.Log(0.3)},
		{Token: "Maybe", Logprob: math.Log(0.05)},
	})
	assert.InDelta(t, 0.7, p, 1e-9)

	assert.Equal(t, 0.0, YesProbability([]llm.TokenLogprob{{Token: "The", Logprob: -0.1}}))
	assert.Equal(t, 0.0, YesProbability(nil))
}

func TestLogprobScorer_Score(t *testing.T) {
	client := &mockLogprobClient{lps: []llm.TokenLogprob{
		{Token: "Yes", Logprob: math.Log(0.9)},
		{Token: "No", Logprob: math.Log(0.1)},
	}}
	s := NewLogprobScorer(client, WithModel("reranker-lora"), WithTopLogprobs(4))

	p, err := s.Score(context.Background(), "val_image/1.png", "relevant?")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, p, 1e-9)
	assert.Equal(t, []string{"val_image/1.png"}, client.lastOpts.Images)
	assert.Equal(t, "reranker-lora", client.lastOpts.Model)
	assert.Equal(t, 4, client.lastTopN)
}

func TestLogprobScorer_Error(t *testing.T) {
	s := NewLogprobScorer(&mockLogprobClient{err: errors.New("cuda oom")})
	_, err := s.Score(context.Background(), "x.png", "p")
	assert.ErrorContains(t, err, "cuda oom")
}

func TestGenerativeScorer(t *testing.T) {
	cases := []struct {
		reply string
		want  float64
	}{
		{"Yes", 1},
		{" yes, it shows the fountain", 1},
		{"No.", 0},
		{"0.35", 0.35},
		{"Relevance: 1.7", 1},
	}
	for _, tc := range cases {
		s := NewGenerativeScorer(&mockLLM{response: tc.reply}, "m")
		got, err := s.Score(context.Background(), "a.png", "p")
		require.NoError(t, err, tc.reply)
		assert.InDelta(t, tc.want, got, 1e-9, tc.reply)
	}

	_, err := NewGenerativeScorer(&mockLLM{response: "I cannot tell"}, "m").Score(context.Background(), "a.png", "p")
	assert.ErrorContains(t, err, "unparseable")
}
