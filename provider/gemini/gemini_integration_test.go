package gemini

import (
	"context"
	"os"
	"testing"
)

func skipIfNoAPIKey(t *testing.T) string {
	t.Helper()
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}
	return key
}

func TestIntegrationEmbed(t *testing.T) {
	key := skipIfNoAPIKey(t)
	e := NewEmbedding(key, "text-embedding-004", 768, WithTaskType(TaskRetrievalDocument))

	vecs, err := e.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 768 {
		t.Fatalf("got %d vectors of %d dims", len(vecs), len(vecs[0]))
	}
}
