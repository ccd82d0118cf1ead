package resolve

import (
	"errors"
	"testing"

	"github.com/nevindra/strata"
)

func TestEmbeddingProvider(t *testing.T) {
	for _, name := range []string{"openai", "openrouter", "dashscope", "ollama", "gemini"} {
		t.Run(name, func(t *testing.T) {
			p, err := EmbeddingProvider(EmbeddingConfig{Provider: name, APIKey: "k", Model: "m", Dimensions: 8})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != name {
				t.Errorf("Name() = %q, want %q", p.Name(), name)
			}
			if p.Dimensions() != 8 {
				t.Errorf("Dimensions() = %d, want 8", p.Dimensions())
			}
		})
	}
}

func TestEmbeddingProviderErrors(t *testing.T) {
	if _, err := EmbeddingProvider(EmbeddingConfig{Provider: "cohere", Model: "m"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	_, err := EmbeddingProvider(EmbeddingConfig{Provider: "openai"})
	var ve *strata.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("empty model: error = %v, want *ValidationError", err)
	}
}
