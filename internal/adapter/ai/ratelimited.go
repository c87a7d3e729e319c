package ai

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/service/ratelimiter"
)

// GenerateBucket is the shared bucket key for report generation.
const GenerateBucket = "ai:generate"

// RateLimitedClient waits for a token from a shared bucket before each call.
type RateLimitedClient struct {
	next    domain.AIClient
	limiter ratelimiter.Limiter
	key     string
	maxWait time.Duration
}

// NewRateLimitedClient wraps next. Waiting longer than maxWait in total fails
// with domain.ErrRateLimited so the job can be retried later.
func NewRateLimitedClient(next domain.AIClient, limiter ratelimiter.Limiter, key string, maxWait time.Duration) *RateLimitedClient {
	if maxWait <= 0 {
		maxWait = 2 * time.Minute
	}
	if key == "" {
		key = GenerateBucket
	}
	return &RateLimitedClient{next: next, limiter: limiter, key: key, maxWait: maxWait}
}

// Generate blocks until the bucket admits the call, then delegates.
func (c *RateLimitedClient) Generate(ctx domain.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error) {
	if c.limiter != nil {
		if err := c.wait(ctx); err != nil {
			return "", err
		}
	}
	return c.next.Generate(ctx, prompt, systemPrompt, maxTokens, temperature)
}

func (c *RateLimitedClient) wait(ctx domain.Context) error {
	deadline := time.Now().Add(c.maxWait)
	for {
		allowed, retryAfter, err := c.limiter.Allow(ctx, c.key, 1)
		if err != nil {
			slog.Warn("rate limiter unavailable, proceeding", slog.String("key", c.key), slog.Any("error", err))
			return nil
		}
		if allowed {
			return nil
		}
		if retryAfter < 50*time.Millisecond {
			retryAfter = 50 * time.Millisecond
		}
		if time.Now().Add(retryAfter).After(deadline) {
			return fmt.Errorf("op=ai.RateLimited.Generate: %w: bucket %s exhausted", domain.ErrRateLimited, c.key)
		}
		slog.Debug("waiting for generation slot", slog.String("key", c.key), slog.Duration("retry_after", retryAfter))
		t := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("op=ai.RateLimited.Generate: %w", ctx.Err())
		case <-t.C:
		}
	}
}
