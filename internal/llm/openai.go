package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint, such as
// a vLLM or SGLang server hosting a fine-tuned vision-language checkpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. baseURL may be empty for the public API.
// An optional HTTP client replaces the default transport.
func NewOpenAIClient(apiKey, model, baseURL string, httpClient ...*http.Client) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if len(httpClient) > 0 && httpClient[0] != nil {
		config.HTTPClient = httpClient[0]
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Generate returns the first choice's message content.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	req, err := c.buildRequest(prompt, opts)
	if err != nil {
		return "", err
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// FirstTokenLogprobs requests a single token and returns its top alternatives.
func (c *OpenAIClient) FirstTokenLogprobs(ctx context.Context, prompt string, opts GenerateOptions, topN int) ([]TokenLogprob, error) {
	opts.MaxTokens = 1
	req, err := c.buildRequest(prompt, opts)
	if err != nil {
		return nil, err
	}
	req.LogProbs = true
	req.TopLogProbs = topN

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}
	lp := resp.Choices[0].LogProbs
	if lp == nil || len(lp.Content) == 0 {
		return nil, fmt.Errorf("response carries no logprobs")
	}

	first := lp.Content[0]
	out := make([]TokenLogprob, 0, len(first.TopLogProbs)+1)
	seen := make(map[string]bool, len(first.TopLogProbs)+1)
	for _, alt := range first.TopLogProbs {
		out = append(out, TokenLogprob{Token: alt.Token, Logprob: alt.LogProb})
		seen[alt.Token] = true
	}
	if !seen[first.Token] {
		out = append(out, TokenLogprob{Token: first.Token, Logprob: first.LogProb})
	}
	return out, nil
}

func (c *OpenAIClient) buildRequest(prompt string, opts GenerateOptions) (openai.ChatCompletionRequest, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(opts.Images) == 0 {
		user.Content = prompt
	} else {
		parts := make([]openai.ChatMessagePart, 0, len(opts.Images)+1)
		for _, path := range opts.Images {
			url, err := imageDataURL(path)
			if err != nil {
				return openai.ChatCompletionRequest{}, err
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
			})
		}
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: prompt})
		user.MultiContent = parts
	}
	messages = append(messages, user)

	// A zero temperature is dropped by omitempty and the server would sample at 1.0.
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Seed:        opts.Seed,
	}, nil
}

// Ensure OpenAIClient implements both client interfaces.
var (
	_ LLM        = (*OpenAIClient)(nil)
	_ LogprobLLM = (*OpenAIClient)(nil)
)
