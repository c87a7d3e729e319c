package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// JobRepo persists evaluation jobs and their step checkpoints.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id, status, visa_type, document_ids, progress, error, COALESCE(extracted_text,''), COALESCE(report_text,''), notify_email, idempotency_key, created_at, updated_at`

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	var status string
	err := row.Scan(&j.ID, &status, &j.VisaType, &j.DocumentIDs, &j.Progress, &j.Error,
		&j.ExtractedText, &j.ReportText, &j.NotifyEmail, &j.IdemKey, &j.CreatedAt, &j.UpdatedAt)
	j.Status = domain.JobStatus(status)
	return j, err
}

// Create inserts a new job and returns its id.
func (r *JobRepo) Create(ctx domain.Context, j domain.Job) (string, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := j.Status
	if status == "" {
		status = domain.JobQueued
	}
	now := time.Now().UTC()
	q := `INSERT INTO jobs (id, status, visa_type, document_ids, progress, error, notify_email, idempotency_key, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if _, err := r.Pool.Exec(ctx, q, id, string(status), j.VisaType, j.DocumentIDs, j.Progress, j.Error, j.NotifyEmail, j.IdemKey, now, now); err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return id, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.Get")
	defer span.End()
	j, err := scanJob(r.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// FindByIdempotencyKey loads a job by idempotency key.
func (r *JobRepo) FindByIdempotencyKey(ctx domain.Context, key string) (domain.Job, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.FindByIdempotencyKey")
	defer span.End()
	j, err := scanJob(r.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE idempotency_key=$1 LIMIT 1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.find_idem: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.find_idem: %w", err)
	}
	return j, nil
}

// UpdateStatus moves a job to status inside a row-locked transaction. Illegal
// transitions fail with domain.ErrConflict and leave the row untouched. The
// error column is cleared unless errMsg is set.
func (r *JobRepo) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, progress int, errMsg *string) (err error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id), attribute.String("job.status", string(status)))

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=job.update_status: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current string
	if err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id=$1 FOR UPDATE`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("op=job.update_status: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("op=job.update_status: %w", err)
	}
	if !domain.JobStatus(current).CanTransitionTo(status) {
		return fmt.Errorf("op=job.update_status: %w: %s -> %s", domain.ErrConflict, current, status)
	}

	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}
	if _, err = tx.Exec(ctx, `UPDATE jobs SET status=$2, progress=$3, error=$4, updated_at=$5 WHERE id=$1`,
		id, string(status), progress, errVal, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=job.update_status: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=job.update_status: %w", err)
	}
	return nil
}

// SaveExtractedText checkpoints the sanitized petition record.
func (r *JobRepo) SaveExtractedText(ctx domain.Context, id, text string) error {
	return r.saveCheckpoint(ctx, "jobs.SaveExtractedText", "extracted_text", id, text)
}

// SaveReportText checkpoints the raw officer report.
func (r *JobRepo) SaveReportText(ctx domain.Context, id, text string) error {
	return r.saveCheckpoint(ctx, "jobs.SaveReportText", "report_text", id, text)
}

func (r *JobRepo) saveCheckpoint(ctx domain.Context, spanName, column, id, text string) error {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, spanName)
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `UPDATE jobs SET `+column+`=$2, updated_at=$3 WHERE id=$1`, id, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.save_%s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.save_%s: %w", column, domain.ErrNotFound)
	}
	return nil
}

// ListByStatus returns jobs in status, least recently updated first.
func (r *JobRepo) ListByStatus(ctx domain.Context, status domain.JobStatus, offset, limit int) ([]domain.Job, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.ListByStatus")
	defer span.End()
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status=$1 ORDER BY updated_at ASC OFFSET $2 LIMIT $3`, string(status), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("op=job.list_by_status: %w", err)
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list_by_status: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list_by_status: %w", err)
	}
	return out, nil
}
