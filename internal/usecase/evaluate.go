// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/observability"
)

// EvaluateRequest is the validated body of an evaluation request.
type EvaluateRequest struct {
	VisaType    string
	DocumentIDs []string
	NotifyEmail string
}

// EvaluateService orchestrates job creation and queueing for evaluation.
type EvaluateService struct {
	Jobs    domain.JobRepository
	Docs    domain.DocumentRepository
	Queue   domain.Queue
	Catalog domain.VisaCatalog
}

// NewEvaluateService constructs an EvaluateService with its dependencies.
func NewEvaluateService(j domain.JobRepository, d domain.DocumentRepository, q domain.Queue, c domain.VisaCatalog) EvaluateService {
	return EvaluateService{Jobs: j, Docs: d, Queue: q, Catalog: c}
}

// Enqueue validates the request, creates a queued job, and publishes it.
// A known idempotency key returns the existing job unchanged.
func (s EvaluateService) Enqueue(ctx domain.Context, req EvaluateRequest, idemKey string) (domain.Job, error) {
	idemKey = strings.TrimSpace(idemKey)
	if idemKey != "" {
		j, err := s.Jobs.FindByIdempotencyKey(ctx, idemKey)
		if err == nil && j.ID != "" {
			return j, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.Job{}, fmt.Errorf("op=usecase.Enqueue: %w", err)
		}
	}

	visa, err := s.Catalog.Get(req.VisaType)
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=usecase.Enqueue: %w: unknown visa type %q", domain.ErrInvalidArgument, req.VisaType)
	}
	if len(req.DocumentIDs) == 0 || len(req.DocumentIDs) > MaxDocumentsPerRequest {
		return domain.Job{}, fmt.Errorf("op=usecase.Enqueue: %w: between 1 and %d document ids required", domain.ErrInvalidArgument, MaxDocumentsPerRequest)
	}
	seen := make(map[string]bool, len(req.DocumentIDs))
	ids := make([]string, 0, len(req.DocumentIDs))
	for _, id := range req.DocumentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.Docs.Get(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Job{}, fmt.Errorf("op=usecase.Enqueue: %w: document %s not found", domain.ErrInvalidArgument, id)
			}
			return domain.Job{}, fmt.Errorf("op=usecase.Enqueue: %w", err)
		}
		ids = append(ids, id)
	}

	now := time.Now().UTC()
	j := domain.Job{
		Status:      domain.JobQueued,
		VisaType:    visa.Code,
		DocumentIDs: ids,
		NotifyEmail: req.NotifyEmail,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if idemKey != "" {
		j.IdemKey = &idemKey
	}
	j.ID, err = s.Jobs.Create(ctx, j)
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=usecase.Enqueue: %w", err)
	}
	if err := s.publish(ctx, j); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

// Retry re-queues a failed job. Checkpoints are kept so finished steps are skipped.
func (s EvaluateService) Retry(ctx domain.Context, id string) (domain.Job, error) {
	j, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=usecase.Retry: %w", err)
	}
	if j.Status != domain.JobError {
		return domain.Job{}, fmt.Errorf("op=usecase.Retry: %w: job is %s", domain.ErrConflict, j.Status)
	}
	if err := s.Jobs.UpdateStatus(ctx, id, domain.JobQueued, 0, nil); err != nil {
		return domain.Job{}, fmt.Errorf("op=usecase.Retry: %w", err)
	}
	j.Status, j.Progress, j.Error = domain.JobQueued, 0, ""
	if err := s.publish(ctx, j); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

// publish enqueues j; a failed publish leaves the job in error so it can be retried.
func (s EvaluateService) publish(ctx domain.Context, j domain.Job) error {
	if _, err := s.Queue.EnqueueEvaluate(ctx, domain.EvaluateTask{JobID: j.ID, VisaType: j.VisaType}); err != nil {
		msg := CodeInternal + ": enqueue failed: " + err.Error()
		if uerr := s.Jobs.UpdateStatus(ctx, j.ID, domain.JobError, 0, &msg); uerr != nil {
			observability.LoggerFromContext(ctx).Error("failed to mark job after enqueue failure",
				slog.String("job_id", j.ID), slog.Any("error", uerr))
		}
		return fmt.Errorf("op=usecase.publish: %w", err)
	}
	return nil
}
