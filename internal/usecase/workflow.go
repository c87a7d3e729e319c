package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/config"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-petition-evaluator/internal/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/prompt"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/report"
	"github.com/fairyhunter13/ai-petition-evaluator/pkg/textx"
)

// Progress checkpoints reported at stage boundaries.
const (
	ProgressExtracting = 10
	ProgressScoring    = 40
	ProgressGenerated  = 70
	ProgressCompleted  = 100
)

// ProgressFunc observes stage transitions. It must not block.
type ProgressFunc func(status domain.JobStatus, progress int)

// Truncator caps text to a token budget. Satisfied by *tokencount.Counter.
type Truncator interface {
	Truncate(text, model string, maxTokens int) (string, bool, error)
}

// WorkflowOptions tunes generation.
type WorkflowOptions struct {
	Model           string
	MaxInputTokens  int
	MaxOutputTokens int
	Temperature     float64
	RequestTimeout  time.Duration
	Retry           config.RetryConfig
}

// WorkflowOptionsFromConfig reads generation settings from cfg.
func WorkflowOptionsFromConfig(cfg config.Config) WorkflowOptions {
	return WorkflowOptions{
		Model:           cfg.OpenRouterModel,
		MaxInputTokens:  cfg.AIMaxInputTokens,
		MaxOutputTokens: cfg.AIMaxOutputTokens,
		Temperature:     cfg.AITemperature,
		RequestTimeout:  cfg.AIRequestTimeout,
		Retry:           cfg.GetRetryConfig(),
	}
}

// ScoringWorkflow drives one job from queued to completed. Every transition is
// persisted before the next step starts, and the extracted text and report
// checkpoints make a redelivered job skip finished steps.
type ScoringWorkflow struct {
	Jobs      domain.JobRepository
	Docs      domain.DocumentRepository
	Results   domain.ResultRepository
	Storage   domain.ObjectStorage
	Extractor domain.TextExtractor
	AI        domain.AIClient
	Catalog   domain.VisaCatalog
	Notifier  domain.Notifier
	Tokens    Truncator
	Opts      WorkflowOptions
}

// Run processes jobID. Terminal jobs are left alone. A step failure is
// persisted on the job as status error and returned.
func (w *ScoringWorkflow) Run(ctx context.Context, jobID string, progress ProgressFunc) error {
	ctx, span := otel.Tracer("usecase.workflow").Start(ctx, "ScoringWorkflow.Run")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))
	if progress == nil {
		progress = func(domain.JobStatus, int) {}
	}

	job, err := w.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("op=usecase.Run: %w", err)
	}
	if job.Status.IsTerminal() {
		obsctx.LoggerFromContext(ctx).Info("job already terminal, skipping", slog.String("status", string(job.Status)))
		return nil
	}
	span.SetAttributes(attribute.String("visa.type", job.VisaType))

	if err := w.run(ctx, &job, progress); err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			// shutdown: leave the job where it is for redelivery
			return fmt.Errorf("op=usecase.Run: %w", err)
		}
		return w.fail(ctx, job, err, progress)
	}
	return nil
}

func (w *ScoringWorkflow) run(ctx context.Context, job *domain.Job, progress ProgressFunc) error {
	visa, err := w.Catalog.Get(job.VisaType)
	if err != nil {
		return fmt.Errorf("%w: unknown visa type %q", domain.ErrInvalidArgument, job.VisaType)
	}

	if job.Status == domain.JobQueued || job.Status == domain.JobExtracting {
		if err := w.advance(ctx, job, domain.JobExtracting, ProgressExtracting, progress); err != nil {
			return err
		}
		if job.ExtractedText == "" {
			start := time.Now()
			text, err := w.extract(ctx, job.DocumentIDs)
			if err != nil {
				return err
			}
			if err := w.Jobs.SaveExtractedText(ctx, job.ID, text); err != nil {
				return err
			}
			job.ExtractedText = text
			observability.ObserveStage("extract", time.Since(start))
		}
		if err := w.advance(ctx, job, domain.JobScoring, ProgressScoring, progress); err != nil {
			return err
		}
	}

	if job.ExtractedText == "" {
		return fmt.Errorf("%w: job reached scoring without extracted text", domain.ErrInternal)
	}

	if job.ReportText == "" {
		start := time.Now()
		text, err := w.generate(ctx, visa, job.ExtractedText)
		if err != nil {
			return err
		}
		if err := w.Jobs.SaveReportText(ctx, job.ID, text); err != nil {
			return err
		}
		job.ReportText = text
		observability.ObserveStage("generate", time.Since(start))
		if err := w.advance(ctx, job, domain.JobScoring, ProgressGenerated, progress); err != nil {
			return err
		}
	}

	start := time.Now()
	parsed, src := report.ParseWithSource(job.ReportText, visa.Criteria)
	if err := report.Validate(parsed); err != nil {
		return err
	}
	observability.ObserveStage("parse", time.Since(start))
	observability.ObserveReport(visa.Code, parsed.OverallScore, parsed.OverallRating, string(src))

	res := domain.Result{JobID: job.ID, VisaType: visa.Code, Report: parsed, CreatedAt: time.Now().UTC()}
	if err := w.Results.Upsert(ctx, res); err != nil {
		return err
	}
	if err := w.advance(ctx, job, domain.JobCompleted, ProgressCompleted, progress); err != nil {
		return err
	}
	obsctx.LoggerFromContext(ctx).Info("evaluation completed",
		slog.Int("overall_score", parsed.OverallScore),
		slog.String("overall_rating", parsed.OverallRating),
		slog.String("score_source", string(src)))

	w.notify(ctx, *job, res)
	return nil
}

func (w *ScoringWorkflow) advance(ctx context.Context, job *domain.Job, status domain.JobStatus, pct int, progress ProgressFunc) error {
	if err := w.Jobs.UpdateStatus(ctx, job.ID, status, pct, nil); err != nil {
		return err
	}
	job.Status, job.Progress = status, pct
	progress(status, pct)
	return nil
}

// extract fetches and extracts every document in order.
func (w *ScoringWorkflow) extract(ctx context.Context, ids []string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: job has no documents", domain.ErrInvalidArgument)
	}
	sections := make([]textx.Section, 0, len(ids))
	for _, id := range ids {
		doc, err := w.Docs.Get(ctx, id)
		if err != nil {
			return "", fmt.Errorf("document %s: %w", id, err)
		}
		data, err := w.Storage.Get(ctx, doc.StorageKey)
		if err != nil {
			return "", fmt.Errorf("document %s: %w", id, err)
		}
		text, err := w.Extractor.Extract(ctx, doc.Filename, data)
		if err != nil {
			return "", fmt.Errorf("document %s: %w", id, err)
		}
		sections = append(sections, textx.Section{Title: doc.Filename, Body: textx.Clean(text)})
	}
	joined := textx.JoinSections(sections)
	if joined == "" {
		return "", fmt.Errorf("%w: no text could be extracted", domain.ErrInvalidArgument)
	}
	return joined, nil
}

// generate renders the officer prompt and calls the backend, retrying
// transient failures.
func (w *ScoringWorkflow) generate(ctx context.Context, visa domain.VisaType, record string) (string, error) {
	truncated := false
	if w.Tokens != nil {
		cut, did, err := w.Tokens.Truncate(record, w.Opts.Model, w.Opts.MaxInputTokens)
		if err != nil {
			obsctx.LoggerFromContext(ctx).Warn("token truncation unavailable", slog.Any("error", err))
		} else {
			record, truncated = cut, did
		}
	}
	p, err := prompt.BuildOfficer(visa, record, truncated)
	if err != nil {
		return "", err
	}

	var out string
	op := func() error {
		callCtx := ctx
		if w.Opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, w.Opts.RequestTimeout)
			defer cancel()
		}
		text, err := w.AI.Generate(callCtx, p.User, p.System, w.Opts.MaxOutputTokens, w.Opts.Temperature)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrInvalidArgument) {
				return backoff.Permanent(err)
			}
			if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrUpstreamTimeout) {
				err = fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
			}
			return err
		}
		if len(text) == 0 {
			return fmt.Errorf("%w: empty report", domain.ErrSchemaInvalid)
		}
		out = text
		return nil
	}
	notify := func(err error, d time.Duration) {
		obsctx.LoggerFromContext(ctx).Warn("generation failed, retrying", slog.Any("error", err), slog.Duration("backoff", d))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(w.Opts.Retry.NewBackOff(), ctx), notify); err != nil {
		return "", err
	}
	return out, nil
}

func (w *ScoringWorkflow) fail(ctx context.Context, job domain.Job, cause error, progress ProgressFunc) error {
	msg := jobErrorMessage(cause)
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.Jobs.UpdateStatus(persistCtx, job.ID, domain.JobError, job.Progress, &msg); err != nil {
		obsctx.LoggerFromContext(ctx).Error("failed to persist job error", slog.Any("error", err), slog.Any("cause", cause))
	} else {
		progress(domain.JobError, job.Progress)
	}
	obsctx.LoggerFromContext(ctx).Error("evaluation failed",
		slog.String("code", errorCodeFromErr(cause)), slog.Any("error", cause))
	return fmt.Errorf("op=usecase.Run: %w", cause)
}

func (w *ScoringWorkflow) notify(ctx context.Context, job domain.Job, res domain.Result) {
	if w.Notifier == nil {
		return
	}
	if err := w.Notifier.EvaluationCompleted(ctx, job, res); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("completion notification failed", slog.Any("error", err))
	}
}
