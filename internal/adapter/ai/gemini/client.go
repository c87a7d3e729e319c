// Package gemini implements domain.AIClient on Google's Gemini API. It is the
// secondary backend behind OpenRouter.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

const providerName = "gemini"

// Client wraps a genai client bound to one model name.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini client. The caller owns Close.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("op=gemini.New: %w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	if model == "" {
		model = "gemini-1.5-pro"
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("op=gemini.New: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return providerName }

// Generate runs one generation with the system prompt as the model's system instruction.
func (c *Client) Generate(ctx domain.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("op=gemini.Generate: %w: empty prompt", domain.ErrInvalidArgument)
	}
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(float32(temperature))
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		err = classify(err)
		outcome := "error"
		if errors.Is(err, domain.ErrUpstreamRateLimit) {
			outcome = "rate_limited"
		}
		observability.ObserveAIRequest(providerName, outcome, time.Since(start))
		return "", fmt.Errorf("op=gemini.Generate: %w", err)
	}
	observability.ObserveAIRequest(providerName, "ok", time.Since(start))

	text, err := textFromResponse(resp)
	if err != nil {
		return "", fmt.Errorf("op=gemini.Generate: %w", err)
	}
	if resp.UsageMetadata != nil {
		observability.ObserveTokens(int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	slog.Info("gemini generation complete", slog.String("model", c.model), slog.Int("chars", len(text)))
	return text, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// classify maps provider failures onto domain sentinels.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamRateLimit, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "Error 429") {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamRateLimit, err)
	}
	return err
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response (finish reason %v)", cand.FinishReason)
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text parts in response")
	}
	return b.String(), nil
}
