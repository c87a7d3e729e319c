package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/export"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// ResultService provides read access to evaluation results and assembles
// the API response envelope including ETag logic and error mapping.
type ResultService struct {
	Jobs    domain.JobRepository
	Results domain.ResultRepository
}

// NewResultService constructs a ResultService with the given repositories.
func NewResultService(j domain.JobRepository, r domain.ResultRepository) ResultService {
	return ResultService{Jobs: j, Results: r}
}

// Fetch returns the HTTP status code, response body, and ETag for the given job id.
// A matching If-None-Match yields 304 with no body.
func (s ResultService) Fetch(ctx domain.Context, id, ifNoneMatch string) (int, map[string]any, string, error) {
	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return http.StatusNotFound, nil, "", fmt.Errorf("op=usecase.Fetch: %w: job not found", domain.ErrNotFound)
		}
		return http.StatusInternalServerError, nil, "", fmt.Errorf("op=usecase.Fetch: %w", err)
	}

	m := map[string]any{
		"id":        job.ID,
		"status":    string(job.Status),
		"visa_type": job.VisaType,
		"progress":  job.Progress,
	}
	switch job.Status {
	case domain.JobError:
		m["error"] = map[string]any{
			"code":    errorCodeFromJobError(job.Error),
			"message": errorMessageFromJobError(job.Error),
		}
	case domain.JobCompleted:
		res, err := s.Results.GetByJobID(ctx, id)
		if err != nil {
			return http.StatusInternalServerError, nil, "", fmt.Errorf("op=usecase.Fetch: %w", err)
		}
		m["result"] = res.Report
	}

	etag := makeETag(m)
	if ifNoneMatch != "" && ifNoneMatch == etag {
		return http.StatusNotModified, nil, etag, nil
	}
	return http.StatusOK, m, etag, nil
}

// Scorecard renders the XLSX scorecard of a completed job.
func (s ResultService) Scorecard(ctx domain.Context, id string) ([]byte, error) {
	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.Scorecard: %w", err)
	}
	if job.Status != domain.JobCompleted {
		return nil, fmt.Errorf("op=usecase.Scorecard: %w: job is %s", domain.ErrConflict, job.Status)
	}
	res, err := s.Results.GetByJobID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.Scorecard: %w", err)
	}
	return export.Scorecard(res)
}

// makeETag returns a quoted strong validator over the JSON body.
func makeETag(v any) string {
	b, _ := json.Marshal(v)
	s := sha256.Sum256(b)
	return `"` + hex.EncodeToString(s[:16]) + `"`
}
