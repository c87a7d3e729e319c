// Package openrouter implements domain.AIClient against the OpenRouter
// chat completions API (OpenAI compatible).
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/config"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

const providerName = "openrouter"

// Client calls OpenRouter with pacing and bounded retries.
type Client struct {
	cfg        config.Config
	hc         *http.Client
	pace       *rate.Limiter
	newBackOff func() backoff.BackOff
}

// New constructs a client. Calls are spaced at least cfg.OpenRouterMinInterval apart.
func New(cfg config.Config) *Client {
	timeout := cfg.AIRequestTimeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	limit := rate.Inf
	if cfg.OpenRouterMinInterval > 0 {
		limit = rate.Every(cfg.OpenRouterMinInterval)
	}
	c := &Client{
		cfg: cfg,
		hc: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return "openrouter " + r.URL.Path })),
		},
		pace: rate.NewLimiter(limit, 1),
	}
	c.newBackOff = c.defaultBackOff
	return c
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return providerName }

func (c *Client) defaultBackOff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	expo.Reset()
	return expo
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends one system+user exchange and returns the completion text.
// Exhausted 429s surface as domain.ErrUpstreamRateLimit, deadline hits as
// domain.ErrUpstreamTimeout. Other 4xx responses are not retried.
func (c *Client) Generate(ctx domain.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error) {
	if c.cfg.OpenRouterAPIKey == "" {
		return "", fmt.Errorf("op=openrouter.Generate: %w: OPENROUTER_API_KEY missing", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("op=openrouter.Generate: %w: empty prompt", domain.ErrInvalidArgument)
	}

	msgs := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.OpenRouterModel,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("op=openrouter.Generate: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.OpenRouterBaseURL, "/") + "/chat/completions"
	var out chatResponse
	op := func() error {
		if err := c.pace.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		out = chatResponse{}
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.OpenRouterReferer != "" {
			req.Header.Set("HTTP-Referer", c.cfg.OpenRouterReferer)
		}
		if c.cfg.OpenRouterTitle != "" {
			req.Header.Set("X-Title", c.cfg.OpenRouterTitle)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveAIRequest(providerName, "error", time.Since(start))
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			observability.ObserveAIRequest(providerName, "error", time.Since(start))
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			observability.ObserveAIRequest(providerName, "rate_limited", time.Since(start))
			slog.Warn("ai provider rate limited", slog.String("provider", providerName), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			observability.ObserveAIRequest(providerName, "error", time.Since(start))
			slog.Warn("ai provider 4xx", slog.String("provider", providerName), slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.OpenRouterModel), slog.String("body", snippet(raw, 512)))
			return backoff.Permanent(fmt.Errorf("chat status %d: %s", resp.StatusCode, snippet(raw, 200)))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			observability.ObserveAIRequest(providerName, "error", time.Since(start))
			slog.Error("ai provider non-2xx", slog.String("provider", providerName), slog.Int("status", resp.StatusCode), slog.String("body", snippet(raw, 512)))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}

		if err := json.Unmarshal(raw, &out); err != nil {
			observability.ObserveAIRequest(providerName, "error", time.Since(start))
			return fmt.Errorf("decode chat response: %w", err)
		}
		if out.Error != nil && out.Error.Message != "" {
			observability.ObserveAIRequest(providerName, "error", time.Since(start))
			return fmt.Errorf("provider error: %s", out.Error.Message)
		}
		observability.ObserveAIRequest(providerName, "ok", time.Since(start))
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return "", fmt.Errorf("op=openrouter.Generate: %w: %v", domain.ErrUpstreamTimeout, err)
		}
		return "", fmt.Errorf("op=openrouter.Generate: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("op=openrouter.Generate: empty completion from %s", providerName)
	}
	observability.ObserveTokens(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	if out.Model != "" && out.Model != c.cfg.OpenRouterModel {
		slog.Warn("model substitution detected", slog.String("requested_model", c.cfg.OpenRouterModel), slog.String("actual_model", out.Model))
	}
	slog.Info("openrouter generation complete",
		slog.String("model", c.cfg.OpenRouterModel),
		slog.Int("prompt_tokens", out.Usage.PromptTokens),
		slog.Int("completion_tokens", out.Usage.CompletionTokens),
		slog.String("finish_reason", out.Choices[0].FinishReason))
	return out.Choices[0].Message.Content, nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
