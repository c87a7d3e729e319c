package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

var jobCols = []string{"id", "status", "visa_type", "document_ids", "progress", "error", "extracted_text", "report_text", "notify_email", "idempotency_key", "created_at", "updated_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestJobRepo_Create(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	key := "idem-1"
	m.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "queued", "O-1A", []string{"d1", "d2"}, 0, "", "a@b.c", &key, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec("INSERT INTO jobs").WillReturnError(assert.AnError)

	repo := postgres.NewJobRepo(m)
	id, err := repo.Create(context.Background(), domain.Job{ID: "job-1", VisaType: "O-1A", DocumentIDs: []string{"d1", "d2"}, NotifyEmail: "a@b.c", IdemKey: &key})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	_, err = repo.Create(context.Background(), domain.Job{ID: "job-2", Status: domain.JobQueued})
	assert.ErrorContains(t, err, "op=job.create")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_Get(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	now := time.Now().UTC()
	key := "idem-1"
	m.ExpectQuery("SELECT (.+) FROM jobs WHERE id").WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).
			AddRow("job-1", "scoring", "EB-1A", []string{"d1"}, 40, "", "record", "", "", &key, now, now))
	m.ExpectQuery("SELECT (.+) FROM jobs WHERE id").WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(jobCols))

	repo := postgres.NewJobRepo(m)
	j, err := repo.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobScoring, j.Status)
	assert.Equal(t, "EB-1A", j.VisaType)
	assert.Equal(t, []string{"d1"}, j.DocumentIDs)
	assert.Equal(t, 40, j.Progress)
	assert.Equal(t, "record", j.ExtractedText)
	require.NotNil(t, j.IdemKey)
	assert.Equal(t, "idem-1", *j.IdemKey)

	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_FindByIdempotencyKey_NotFound(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectQuery("FROM jobs WHERE idempotency_key").WithArgs("k").WillReturnRows(pgxmock.NewRows(jobCols))

	_, err := postgres.NewJobRepo(m).FindByIdempotencyKey(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorContains(t, err, "op=job.find_idem")
}

func TestJobRepo_UpdateStatus(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectBegin()
	m.ExpectQuery("SELECT status FROM jobs WHERE id(.+)FOR UPDATE").WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("extracting"))
	m.ExpectExec("UPDATE jobs SET status").
		WithArgs("job-1", "scoring", 40, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectCommit()

	err := postgres.NewJobRepo(m).UpdateStatus(context.Background(), "job-1", domain.JobScoring, 40, nil)
	require.NoError(t, err)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_UpdateStatus_WithError(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	msg := "upstream timeout"
	m.ExpectBegin()
	m.ExpectQuery("SELECT status FROM jobs").WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("scoring"))
	m.ExpectExec("UPDATE jobs SET status").
		WithArgs("job-1", "error", 70, msg, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectCommit()

	require.NoError(t, postgres.NewJobRepo(m).UpdateStatus(context.Background(), "job-1", domain.JobError, 70, &msg))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_UpdateStatus_IllegalTransition(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectBegin()
	m.ExpectQuery("SELECT status FROM jobs").WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("completed"))
	m.ExpectRollback()

	err := postgres.NewJobRepo(m).UpdateStatus(context.Background(), "job-1", domain.JobScoring, 40, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_UpdateStatus_Missing(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectBegin()
	m.ExpectQuery("SELECT status FROM jobs").WithArgs("ghost").WillReturnRows(pgxmock.NewRows([]string{"status"}))
	m.ExpectRollback()

	err := postgres.NewJobRepo(m).UpdateStatus(context.Background(), "ghost", domain.JobError, 0, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_UpdateStatus_BeginError(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectBegin().WillReturnError(assert.AnError)

	err := postgres.NewJobRepo(m).UpdateStatus(context.Background(), "job-1", domain.JobError, 0, nil)
	assert.ErrorContains(t, err, "op=job.update_status")
}

func TestJobRepo_Checkpoints(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectExec("UPDATE jobs SET extracted_text").WithArgs("job-1", "record", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectExec("UPDATE jobs SET report_text").WithArgs("job-1", "# REPORT", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	m.ExpectExec("UPDATE jobs SET report_text").WithArgs("gone", "x", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := postgres.NewJobRepo(m)
	require.NoError(t, repo.SaveExtractedText(context.Background(), "job-1", "record"))
	require.NoError(t, repo.SaveReportText(context.Background(), "job-1", "# REPORT"))
	err := repo.SaveReportText(context.Background(), "gone", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorContains(t, err, "op=job.save_report_text")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_ListByStatus(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	old := time.Now().Add(-time.Hour).UTC()
	key := "k"
	m.ExpectQuery("FROM jobs WHERE status(.+)ORDER BY updated_at").WithArgs("extracting", 0, 100).
		WillReturnRows(pgxmock.NewRows(jobCols).
			AddRow("a", "extracting", "O-1A", []string{"d"}, 10, "", "", "", "", &key, old, old).
			AddRow("b", "extracting", "O-1A", []string{"d"}, 10, "", "", "", "", &key, old, old))

	jobs, err := postgres.NewJobRepo(m).ListByStatus(context.Background(), domain.JobExtracting, -5, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, domain.JobExtracting, jobs[1].Status)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_ListByStatus_QueryError(t *testing.T) {
	t.Parallel()
	m := newMock(t)
	m.ExpectQuery("FROM jobs WHERE status").WillReturnError(assert.AnError)
	_, err := postgres.NewJobRepo(m).ListByStatus(context.Background(), domain.JobScoring, 0, 10)
	assert.ErrorContains(t, err, "op=job.list_by_status")
}
