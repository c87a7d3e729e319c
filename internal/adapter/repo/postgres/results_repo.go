package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// ResultRepo stores parsed officer reports as JSONB, keyed by job.
type ResultRepo struct{ Pool PgxPool }

// NewResultRepo constructs a ResultRepo with the given pool.
func NewResultRepo(p PgxPool) *ResultRepo { return &ResultRepo{Pool: p} }

// Upsert inserts or replaces the result for res.JobID.
func (r *ResultRepo) Upsert(ctx domain.Context, res domain.Result) error {
	ctx, span := otel.Tracer("repo.results").Start(ctx, "results.Upsert")
	defer span.End()
	body, err := json.Marshal(res.Report)
	if err != nil {
		return fmt.Errorf("op=result.upsert: %w", err)
	}
	q := `INSERT INTO results (job_id, visa_type, overall_score, overall_rating, report, created_at)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (job_id)
	DO UPDATE SET visa_type=EXCLUDED.visa_type, overall_score=EXCLUDED.overall_score, overall_rating=EXCLUDED.overall_rating, report=EXCLUDED.report`
	if _, err := r.Pool.Exec(ctx, q, res.JobID, res.VisaType, res.Report.OverallScore, res.Report.OverallRating, body, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=result.upsert: %w", err)
	}
	return nil
}

// GetByJobID loads the result for a job.
func (r *ResultRepo) GetByJobID(ctx domain.Context, jobID string) (domain.Result, error) {
	ctx, span := otel.Tracer("repo.results").Start(ctx, "results.GetByJobID")
	defer span.End()
	q := `SELECT job_id, visa_type, report, created_at FROM results WHERE job_id=$1`
	var res domain.Result
	var body []byte
	if err := r.Pool.QueryRow(ctx, q, jobID).Scan(&res.JobID, &res.VisaType, &body, &res.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Result{}, fmt.Errorf("op=result.get: %w", domain.ErrNotFound)
		}
		return domain.Result{}, fmt.Errorf("op=result.get: %w", err)
	}
	if err := json.Unmarshal(body, &res.Report); err != nil {
		return domain.Result{}, fmt.Errorf("op=result.get: decode report: %w", err)
	}
	return res, nil
}
