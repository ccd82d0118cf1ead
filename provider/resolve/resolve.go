// Package resolve builds an embedding provider from provider-agnostic settings.
package resolve

import (
	"fmt"

	"github.com/nevindra/strata"
	"github.com/nevindra/strata/provider/gemini"
	"github.com/nevindra/strata/provider/openaicompat"
)

// EmbeddingConfig holds provider-agnostic configuration for creating an EmbeddingProvider.
type EmbeddingConfig struct {
	Provider   string // "openai", "openrouter", "dashscope", "ollama", "gemini"
	APIKey     string
	Model      string
	BaseURL    string // auto-filled for known providers
	Dimensions int
	TaskType   string // gemini only
}

// dashScopeMaxBatch is the per-request input limit of DashScope's
// compatible-mode embeddings endpoint.
const dashScopeMaxBatch = 10

// EmbeddingProvider creates a strata.EmbeddingProvider from an EmbeddingConfig.
func EmbeddingProvider(cfg EmbeddingConfig) (strata.EmbeddingProvider, error) {
	if cfg.Model == "" {
		return nil, &strata.ValidationError{Field: "embedding model", Reason: "must not be empty"}
	}
	switch cfg.Provider {
	case "gemini":
		var opts []gemini.Option
		if cfg.TaskType != "" {
			opts = append(opts, gemini.WithTaskType(cfg.TaskType))
		}
		return gemini.NewEmbedding(cfg.APIKey, cfg.Model, cfg.Dimensions, opts...), nil
	case "openai", "openrouter", "dashscope", "ollama":
		return openaiCompatEmbedding(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: embedding provider %q not supported", cfg.Provider)
	}
}

func openaiCompatEmbedding(cfg EmbeddingConfig) strata.EmbeddingProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openaicompat.DefaultBaseURL(cfg.Provider)
	}
	opts := []openaicompat.Option{openaicompat.WithName(cfg.Provider)}
	if cfg.Provider == "dashscope" {
		opts = append(opts, openaicompat.WithMaxBatch(dashScopeMaxBatch))
	}
	return openaicompat.NewEmbedding(cfg.APIKey, cfg.Model, baseURL, cfg.Dimensions, opts...)
}
