package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/usecase"
)

// StuckJobSweeper fails jobs that stayed in an in-flight state longer than
// maxProcessingAge, e.g. after a worker crashed mid-run.
type StuckJobSweeper struct {
	jobs             domain.JobRepository
	maxProcessingAge time.Duration
	interval         time.Duration
	now              func() time.Time
}

// NewStuckJobSweeper returns nil when jobs is nil.
func NewStuckJobSweeper(jobs domain.JobRepository, maxProcessingAge, interval time.Duration) *StuckJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 20 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{
		jobs:             jobs,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
		now:              time.Now,
	}
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce returns how many jobs it marked failed.
func (s *StuckJobSweeper) sweepOnce(ctx context.Context) int {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := s.now().Add(-s.maxProcessingAge)
	const pageSize = 100
	checked, marked := 0, 0

	for _, status := range []domain.JobStatus{domain.JobExtracting, domain.JobScoring} {
		var stale []domain.Job
		for offset := 0; ; offset += pageSize {
			page, err := s.jobs.ListByStatus(ctx, status, offset, pageSize)
			if err != nil {
				span.RecordError(err)
				slog.Error("stuck job sweep failed to list jobs", slog.String("status", string(status)), slog.Any("error", err))
				break
			}
			checked += len(page)
			for _, j := range page {
				if j.UpdatedAt.Before(cutoff) {
					stale = append(stale, j)
				}
			}
			if len(page) < pageSize {
				break
			}
		}
		// updated after paging so the offsets above stay stable
		for _, j := range stale {
			msg := fmt.Sprintf("%s: job stayed in %s longer than %v", usecase.CodeUpstreamTimeout, j.Status, s.maxProcessingAge)
			if err := s.jobs.UpdateStatus(ctx, j.ID, domain.JobError, j.Progress, &msg); err != nil {
				span.RecordError(err)
				slog.Error("stuck job sweep failed to update job status", slog.String("job_id", j.ID), slog.Any("error", err))
				continue
			}
			observability.FailJob("evaluate")
			slog.Warn("stuck job marked failed", slog.String("job_id", j.ID), slog.String("status", string(j.Status)))
			marked++
		}
	}

	span.SetAttributes(
		attribute.Int("jobs.total_checked", checked),
		attribute.Int("jobs.total_marked_failed", marked),
	)
	return marked
}
