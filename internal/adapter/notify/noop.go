// Package notify holds notifier implementations that need no provider.
package notify

import (
	"log/slog"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/observability"
)

// Noop logs completions instead of sending them.
type Noop struct{}

func (Noop) EvaluationCompleted(ctx domain.Context, job domain.Job, res domain.Result) error {
	if job.NotifyEmail != "" {
		observability.LoggerFromContext(ctx).Debug("notification skipped, no sender configured",
			slog.String("job_id", job.ID), slog.Int("overall_score", res.Report.OverallScore))
	}
	return nil
}
