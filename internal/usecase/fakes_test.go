package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

type memJobs struct {
	mu      sync.Mutex
	jobs    map[string]domain.Job
	updates []domain.JobStatus
	getErr  error
}

func newMemJobs(jobs ...domain.Job) *memJobs {
	m := &memJobs{jobs: map[string]domain.Job{}}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) Create(_ context.Context, j domain.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = domain.JobQueued
	}
	m.jobs[j.ID] = j
	return j.ID, nil
}

func (m *memJobs) Get(_ context.Context, id string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Job{}, m.getErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
	}
	return j, nil
}

func (m *memJobs) FindByIdempotencyKey(_ context.Context, key string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.IdemKey != nil && *j.IdemKey == key {
			return j, nil
		}
	}
	return domain.Job{}, domain.ErrNotFound
}

func (m *memJobs) UpdateStatus(_ context.Context, id string, status domain.JobStatus, progress int, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !j.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrConflict, j.Status, status)
	}
	j.Status, j.Progress, j.Error = status, progress, ""
	if errMsg != nil {
		j.Error = *errMsg
	}
	j.UpdatedAt = time.Now().UTC()
	m.jobs[id] = j
	m.updates = append(m.updates, status)
	return nil
}

func (m *memJobs) SaveExtractedText(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.ExtractedText = text
	m.jobs[id] = j
	return nil
}

func (m *memJobs) SaveReportText(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.ReportText = text
	m.jobs[id] = j
	return nil
}

func (m *memJobs) ListByStatus(_ context.Context, status domain.JobStatus, _, _ int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memJobs) get(id string) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

type memDocs struct {
	mu   sync.Mutex
	docs map[string]domain.Document
	err  error
}

func newMemDocs(docs ...domain.Document) *memDocs {
	m := &memDocs{docs: map[string]domain.Document{}}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *memDocs) Create(_ context.Context, d domain.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.docs[d.ID] = d
	return d.ID, nil
}

func (m *memDocs) Get(_ context.Context, id string) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("op=document.get: %w", domain.ErrNotFound)
	}
	return d, nil
}

type memResults struct {
	mu      sync.Mutex
	results map[string]domain.Result
}

func newMemResults() *memResults { return &memResults{results: map[string]domain.Result{}} }

func (m *memResults) Upsert(_ context.Context, r domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.JobID] = r
	return nil
}

func (m *memResults) GetByJobID(_ context.Context, jobID string) (domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[jobID]
	if !ok {
		return domain.Result{}, domain.ErrNotFound
	}
	return r, nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStorage() *memStorage { return &memStorage{objects: map[string][]byte{}} }

func (m *memStorage) Put(_ context.Context, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []domain.EvaluateTask
	err   error
}

func (q *fakeQueue) EnqueueEvaluate(_ context.Context, t domain.EvaluateTask) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.tasks = append(q.tasks, t)
	return t.JobID, nil
}

type passthroughExtractor struct {
	calls int
}

func (e *passthroughExtractor) Extract(_ context.Context, _ string, data []byte) (string, error) {
	e.calls++
	return string(data), nil
}

// scriptedAI returns errs in order, then out.
type scriptedAI struct {
	mu    sync.Mutex
	errs  []error
	out   func(prompt string) string
	calls int
}

func (s *scriptedAI) Generate(ctx context.Context, prompt, _ string, _ int, _ float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return s.out(prompt), nil
}

type recordingNotifier struct {
	jobs []string
	err  error
}

func (n *recordingNotifier) EvaluationCompleted(_ context.Context, job domain.Job, _ domain.Result) error {
	n.jobs = append(n.jobs, job.ID)
	return n.err
}

type fakeTruncator struct {
	budget int
}

func (f *fakeTruncator) Truncate(text, _ string, maxTokens int) (string, bool, error) {
	f.budget = maxTokens
	if maxTokens > 0 && len(text) > maxTokens {
		return text[:maxTokens], true, nil
	}
	return text, false, nil
}

var errTransient = errors.New("upstream 503")
