// Package tika extracts text from uploaded exhibits through an Apache Tika server.
// Plain text and markdown are decoded locally without a round trip.
package tika

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/pkg/textx"
)

// Client is a minimal Apache Tika HTTP client implementing domain.TextExtractor.
// It performs PUT /tika with Accept: text/plain to retrieve extracted text.
// See: https://tika.apache.org/server/ for API details.
type Client struct {
	baseURL    string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// New constructs a Tika client with a default timeout.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9998"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return "tika " + r.Method + " " + r.URL.Path })),
		},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// WithBackOff replaces the retry policy for server errors.
func (c *Client) WithBackOff(newBackOff func() backoff.BackOff) *Client {
	c.newBackOff = newBackOff
	return c
}

// Extract returns cleaned text for data. fileName only hints the content type.
func (c *Client) Extract(ctx context.Context, fileName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("op=tika.Extract: %w: empty document %q", domain.ErrInvalidArgument, fileName)
	}
	if isPlainText(fileName, data) {
		return textx.Clean(string(data)), nil
	}

	var out string
	op := func() error {
		text, err := c.put(ctx, fileName, data)
		if err != nil {
			return err
		}
		out = text
		return nil
	}
	notify := func(err error, d time.Duration) {
		observability.LoggerFromContext(ctx).Warn("tika extract retry",
			slog.String("file", fileName), slog.Any("error", err), slog.Duration("backoff", d))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		return "", fmt.Errorf("op=tika.Extract: %w", err)
	}
	return out, nil
}

func (c *Client) put(ctx context.Context, fileName string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "text/plain")
	if ct := contentType(fileName, data); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
		}
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("tika status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		// unsupported or corrupt input will not improve on retry
		return "", backoff.Permanent(fmt.Errorf("%w: tika status %d", domain.ErrInvalidArgument, resp.StatusCode))
	}
	return textx.Clean(string(b)), nil
}

// Ping checks that the server answers GET /version.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("op=tika.Ping: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("op=tika.Ping: status %d", resp.StatusCode)
	}
	return nil
}

func isPlainText(fileName string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md", ".markdown":
		return true
	case ".pdf", ".docx", ".doc":
		return false
	}
	return mimetype.Detect(data).Is("text/plain")
}

func contentType(fileName string, data []byte) string {
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "":
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return mimetype.Detect(data).String()
}
