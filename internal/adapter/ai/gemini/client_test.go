package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), "", "gemini-1.5-pro")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTextFromResponse(t *testing.T) {
	t.Parallel()
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("## OVERALL "), genai.Text("ASSESSMENT")}},
	}}}
	out, err := textFromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "## OVERALL ASSESSMENT", out)
}

func TestTextFromResponse_Empty(t *testing.T) {
	t.Parallel()
	_, err := textFromResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	_, err = textFromResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	assert.Error(t, err)

	_, err = textFromResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}},
	}}})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, classify(&googleapi.Error{Code: 429}), domain.ErrUpstreamRateLimit)
	assert.ErrorIs(t, classify(errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED")), domain.ErrUpstreamRateLimit)
	assert.ErrorIs(t, classify(fmt.Errorf("call: %w", context.DeadlineExceeded)), domain.ErrUpstreamTimeout)

	plain := errors.New("boom")
	assert.Equal(t, plain, classify(plain))
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Close())
}
