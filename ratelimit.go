package strata

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimitEmbedding wraps an EmbeddingProvider with a token bucket.
// Each Embed call waits for one token.
type rateLimitEmbedding struct {
	inner   EmbeddingProvider
	limiter *rate.Limiter
}

// WithEmbeddingRateLimit wraps p so that at most rps Embed calls per second
// start, with bursts of up to burst calls. rps <= 0 returns p unchanged.
// Compose with other wrappers:
//
//	emb = strata.WithEmbeddingRateLimit(strata.WithEmbeddingRetry(provider), 5, 2)
func WithEmbeddingRateLimit(p EmbeddingProvider, rps float64, burst int) EmbeddingProvider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitEmbedding{inner: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimitEmbedding) Name() string    { return r.inner.Name() }
func (r *rateLimitEmbedding) Dimensions() int { return r.inner.Dimensions() }

func (r *rateLimitEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

var _ EmbeddingProvider = (*rateLimitEmbedding)(nil)
