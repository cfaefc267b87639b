package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/IDEA-FinAI/RagLLaVA/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLLM struct {
	prompt string
	opts   llm.GenerateOptions
	reply  string
	err    error
}

func (r *recordingLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	r.prompt = prompt
	r.opts = opts
	return r.reply, r.err
}

func TestLLMGenerator_ShortAnswerPrompt(t *testing.T) {
	client := &recordingLLM{reply: "Yes"}
	g := NewLLMGenerator(client, "llava-v1.5-13b")

	answer, err := g.Generate(context.Background(), "Is the sky blue?", []string{"val_image/a.png", "val_image/b.png"})
	require.NoError(t, err)
	assert.Equal(t, "Yes", answer)
	assert.Equal(t, "Question: Is the sky blue?\nAnswer the question with less than eight words based on the provided images.", client.prompt)
	assert.Equal(t, []string{"val_image/a.png", "val_image/b.png"}, client.opts.Images)
	assert.Equal(t, float32(0), client.opts.Temperature)
	assert.Equal(t, llm.DefaultMaxTokens, client.opts.MaxTokens)
	assert.Equal(t, "llava-v1.5-13b", client.opts.Model)
}

func TestLLMGenerator_RawPromptNoImages(t *testing.T) {
	client := &recordingLLM{reply: "blue"}
	g := NewLLMGenerator(client, "webqa-sft", WithPromptStyle(PromptRaw), WithMaxTokens(64))

	_, err := g.Generate(context.Background(), "What color is the sky?", nil)
	require.NoError(t, err)
	assert.Equal(t, "What color is the sky?", client.prompt)
	assert.Empty(t, client.opts.Images)
	assert.Equal(t, 64, client.opts.MaxTokens)
}

func TestLLMGenerator_Error(t *testing.T) {
	g := NewLLMGenerator(&recordingLLM{err: errors.New("timeout")}, "m")
	_, err := g.Generate(context.Background(), "q", nil)
	assert.ErrorContains(t, err, "answer generation failed")
}
