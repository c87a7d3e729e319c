package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// Tx is the part of pgx.Tx the cleanup service needs.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens transactions.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// PoolBeginner adapts a pgx pool to Beginner.
type PoolBeginner struct {
	Pool interface {
		Begin(ctx context.Context) (pgx.Tx, error)
	}
}

// Begin starts a transaction on the wrapped pool.
func (p PoolBeginner) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// CleanupStats reports what one retention pass removed.
type CleanupStats struct {
	Results   int64
	Jobs      int64
	Documents int64
	Objects   int
}

// CleanupService enforces data retention for finished jobs and orphaned documents.
type CleanupService struct {
	DB            Beginner
	Storage       domain.ObjectStorage
	RetentionDays int
}

// NewCleanupService creates a cleanup service. storage may be nil, in which
// case stored objects are left for bucket lifecycle rules.
func NewCleanupService(db Beginner, storage domain.ObjectStorage, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{DB: db, Storage: storage, RetentionDays: retentionDays}
}

// CleanupOldData removes terminal jobs, their results and unreferenced
// documents older than the retention period. Jobs still in flight are kept.
func (s *CleanupService) CleanupOldData(ctx context.Context) (stats CleanupStats, err error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM results WHERE job_id IN (
		SELECT id FROM jobs WHERE created_at < $1 AND status IN ('completed','error'))`, cutoff)
	if err != nil {
		return stats, fmt.Errorf("op=cleanup.results: %w", err)
	}
	stats.Results = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM jobs WHERE created_at < $1 AND status IN ('completed','error')`, cutoff)
	if err != nil {
		return stats, fmt.Errorf("op=cleanup.jobs: %w", err)
	}
	stats.Jobs = tag.RowsAffected()

	rows, err := tx.Query(ctx, `DELETE FROM documents d WHERE d.created_at < $1
		AND NOT EXISTS (SELECT 1 FROM jobs j WHERE d.id = ANY(j.document_ids))
		RETURNING storage_key`, cutoff)
	if err != nil {
		return stats, fmt.Errorf("op=cleanup.documents: %w", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			rows.Close()
			return stats, fmt.Errorf("op=cleanup.documents: %w", err)
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return stats, fmt.Errorf("op=cleanup.documents: %w", err)
	}
	stats.Documents = int64(len(keys))

	if err = tx.Commit(ctx); err != nil {
		return stats, fmt.Errorf("op=cleanup.commit: %w", err)
	}

	if s.Storage != nil {
		for _, k := range keys {
			if k == "" {
				continue
			}
			if derr := s.Storage.Delete(ctx, k); derr != nil {
				slog.Warn("failed to delete stored document", slog.String("key", k), slog.Any("error", derr))
				continue
			}
			stats.Objects++
		}
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_jobs", stats.Jobs),
		slog.Int64("deleted_results", stats.Results),
		slog.Int64("deleted_documents", stats.Documents),
		slog.Int("deleted_objects", stats.Objects),
		slog.Time("cutoff", cutoff))
	return stats, nil
}

// RunPeriodic runs a pass immediately and then every interval until ctx ends.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
