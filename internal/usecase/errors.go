package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// Coarse failure codes stored on failed jobs and returned by the API.
const (
	CodeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	CodeUpstreamRateLimit = "UPSTREAM_RATE_LIMIT"
	CodeSchemaInvalid     = "SCHEMA_INVALID"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL"
)

var knownCodes = []string{
	CodeUpstreamTimeout, CodeUpstreamRateLimit, CodeSchemaInvalid,
	CodeInvalidArgument, CodeNotFound, CodeInternal,
}

// errorCodeFromErr maps an error chain onto a failure code.
func errorCodeFromErr(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeUpstreamTimeout
	case errors.Is(err, domain.ErrUpstreamRateLimit), errors.Is(err, domain.ErrRateLimited):
		return CodeUpstreamRateLimit
	case errors.Is(err, domain.ErrSchemaInvalid):
		return CodeSchemaInvalid
	case errors.Is(err, domain.ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	}
	return CodeInternal
}

// jobErrorMessage is what gets stored on the job row: "<CODE>: <error>".
func jobErrorMessage(err error) string {
	return errorCodeFromErr(err) + ": " + err.Error()
}

// errorCodeFromJobError maps a stored job error message to a stable error code.
// Messages written by jobErrorMessage carry their code; older free-text
// messages are classified by keyword.
func errorCodeFromJobError(msg string) string {
	msg = strings.TrimSpace(msg)
	for _, c := range knownCodes {
		if strings.HasPrefix(msg, c+":") || msg == c {
			return c
		}
	}
	s := strings.ToLower(msg)
	switch {
	case strings.Contains(s, "schema invalid"), strings.Contains(s, "invalid json"):
		return CodeSchemaInvalid
	case strings.Contains(s, "rate limit"):
		return CodeUpstreamRateLimit
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return CodeUpstreamTimeout
	case strings.Contains(s, "not found"):
		return CodeNotFound
	case strings.Contains(s, "invalid argument"):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}

// errorMessageFromJobError strips the stored code prefix.
func errorMessageFromJobError(msg string) string {
	for _, c := range knownCodes {
		if rest, ok := strings.CutPrefix(msg, c+": "); ok {
			return rest
		}
	}
	return msg
}

func ptr(s string) *string { return &s }
