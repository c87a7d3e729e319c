package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/config"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/usecase"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/visa"
)

type store struct {
	mu      sync.Mutex
	jobs    map[string]domain.Job
	docs    map[string]domain.Document
	results map[string]domain.Result
	objects map[string][]byte
	tasks   []domain.EvaluateTask
}

func newStore() *store {
	return &store{
		jobs:    map[string]domain.Job{},
		docs:    map[string]domain.Document{},
		results: map[string]domain.Result{},
		objects: map[string][]byte{},
	}
}

type jobRepo struct{ *store }

func (r jobRepo) Create(_ context.Context, j domain.Job) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	r.jobs[j.ID] = j
	return j.ID, nil
}

func (r jobRepo) Get(_ context.Context, id string) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (r jobRepo) FindByIdempotencyKey(_ context.Context, key string) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.IdemKey != nil && *j.IdemKey == key {
			return j, nil
		}
	}
	return domain.Job{}, domain.ErrNotFound
}

func (r jobRepo) UpdateStatus(_ context.Context, id string, status domain.JobStatus, progress int, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status, j.Progress, j.Error = status, progress, ""
	if errMsg != nil {
		j.Error = *errMsg
	}
	j.UpdatedAt = time.Now()
	r.jobs[id] = j
	return nil
}

func (r jobRepo) SaveExtractedText(context.Context, string, string) error { return nil }
func (r jobRepo) SaveReportText(context.Context, string, string) error    { return nil }
func (r jobRepo) ListByStatus(context.Context, domain.JobStatus, int, int) ([]domain.Job, error) {
	return nil, nil
}

type docRepo struct{ *store }

func (r docRepo) Create(_ context.Context, d domain.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[d.ID] = d
	return d.ID, nil
}

func (r docRepo) Get(_ context.Context, id string) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return d, nil
}

type resultRepo struct{ *store }

func (r resultRepo) Upsert(_ context.Context, res domain.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[res.JobID] = res
	return nil
}

func (r resultRepo) GetByJobID(_ context.Context, id string) (domain.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	if !ok {
		return domain.Result{}, domain.ErrNotFound
	}
	return res, nil
}

type objectStore struct{ *store }

func (o objectStore) Put(_ context.Context, key, _ string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return nil
}

func (o objectStore) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (o objectStore) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

type queue struct{ *store }

func (q queue) EnqueueEvaluate(_ context.Context, t domain.EvaluateTask) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return t.JobID, nil
}

const (
	testAdminUser     = "ops"
	testAdminPassword = "s3cret-pass"
)

// newTestHandler mounts the API the same way the application router does,
// without the global middleware stack.
func newTestHandler(st *store, adminHash string, checks ...ReadinessCheck) http.Handler {
	cfg := config.Config{MaxUploadMB: 1}
	catalog := visa.Default()
	srv := NewServer(cfg,
		usecase.NewUploadService(docRepo{st}, objectStore{st}),
		usecase.NewEvaluateService(jobRepo{st}, docRepo{st}, queue{st}, catalog),
		usecase.NewResultService(jobRepo{st}, resultRepo{st}),
		catalog,
		checks...,
	)
	r := chi.NewRouter()
	r.Use(RequestID())
	r.Post("/v1/documents", srv.UploadHandler())
	r.Post("/v1/evaluations", srv.EvaluateHandler())
	r.Get("/v1/evaluations/{id}", srv.ResultHandler())
	r.Get("/v1/evaluations/{id}/scorecard.xlsx", srv.ScorecardHandler())
	r.With(BasicAuth(testAdminUser, adminHash)).Post("/v1/evaluations/{id}/retry", srv.RetryHandler())
	r.Get("/v1/visa-types", srv.VisaTypesHandler())
	r.Post("/v1/reports/parse", srv.ParseReportHandler())
	r.Get("/healthz", HealthzHandler)
	r.Get("/readyz", srv.ReadyzHandler())
	return r
}
