package llm

import (
	"net/http"
	"strings"
	"time"

	"github.com/IDEA-FinAI/RagLLaVA/internal/evalerr"
)

// Backend names a model serving API.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
)

// Endpoint describes where a model is served.
type Endpoint struct {
	Backend Backend
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds one request. Zero keeps the client default.
	Timeout time.Duration
}

// NewClient builds a client for an endpoint.
func NewClient(ep Endpoint) (LLM, error) {
	switch Backend(strings.ToLower(string(ep.Backend))) {
	case BackendOllama, "":
		opts := []OllamaOption{WithModel(ep.Model)}
		if ep.BaseURL != "" {
			opts = append(opts, WithBaseURL(ep.BaseURL))
		}
		if ep.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: ep.Timeout}))
		}
		return NewOllamaClient(opts...), nil

	case BackendOpenAI:
		apiKey := ep.APIKey
		if apiKey == "" {
			apiKey = "EMPTY" // self-hosted servers ignore the key but the client requires one
		}
		var httpClient *http.Client
		if ep.Timeout > 0 {
			httpClient = &http.Client{Timeout: ep.Timeout}
		}
		return NewOpenAIClient(apiKey, ep.Model, ep.BaseURL, httpClient), nil

	default:
		return nil, evalerr.Configf("unsupported model backend %q", ep.Backend)
	}
}
