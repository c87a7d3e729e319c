package ai

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// Provider is a named generative backend.
type Provider interface {
	domain.AIClient
	Name() string
}

// FallbackClient tries providers in order, skipping those whose breaker is open.
type FallbackClient struct {
	providers         []Provider
	breakers          []*CircuitBreaker
	rateLimitCooldown time.Duration
}

// NewFallbackClient builds a fallback chain. Rate-limited providers are
// skipped for rateLimitCooldown.
func NewFallbackClient(rateLimitCooldown time.Duration, providers ...Provider) *FallbackClient {
	if rateLimitCooldown <= 0 {
		rateLimitCooldown = time.Minute
	}
	breakers := make([]*CircuitBreaker, len(providers))
	for i, p := range providers {
		breakers[i] = NewCircuitBreaker(p.Name(), 3, 30*time.Second)
	}
	return &FallbackClient{providers: providers, breakers: breakers, rateLimitCooldown: rateLimitCooldown}
}

// Generate returns the first successful completion. When every provider was
// rate limited or skipped the error wraps domain.ErrUpstreamRateLimit.
func (f *FallbackClient) Generate(ctx domain.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error) {
	if len(f.providers) == 0 {
		return "", fmt.Errorf("op=ai.Fallback.Generate: %w: no providers configured", domain.ErrInvalidArgument)
	}
	var lastErr error
	allRateLimited := true
	for i, p := range f.providers {
		cb := f.breakers[i]
		if !cb.Allow() {
			slog.Debug("skipping provider with open circuit", slog.String("provider", p.Name()), slog.Time("open_until", cb.OpenUntil()))
			continue
		}
		out, err := p.Generate(ctx, prompt, systemPrompt, maxTokens, temperature)
		if err == nil {
			cb.RecordSuccess()
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("op=ai.Fallback.Generate: %w", err)
		}
		lastErr = err
		slog.Warn("provider failed, trying next", slog.String("provider", p.Name()), slog.Any("error", err))
		if errors.Is(err, domain.ErrUpstreamRateLimit) {
			cb.Trip(f.rateLimitCooldown)
			continue
		}
		allRateLimited = false
		cb.RecordFailure()
	}
	if lastErr == nil || allRateLimited {
		return "", fmt.Errorf("op=ai.Fallback.Generate: %w: all providers rate limited", domain.ErrUpstreamRateLimit)
	}
	return "", fmt.Errorf("op=ai.Fallback.Generate: all providers failed: %w", lastErr)
}
