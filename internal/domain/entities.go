// Package domain holds the entities and ports shared by the evaluator's use cases and adapters.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// Document is an uploaded petition exhibit. Raw bytes live in object storage under StorageKey.
type Document struct {
	ID         string
	Filename   string
	MIME       string
	Size       int64
	StorageKey string
	CreatedAt  time.Time
}

// JobStatus is a state of the evaluation state machine.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobExtracting JobStatus = "extracting"
	JobScoring    JobStatus = "scoring"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// IsTerminal reports whether no further work is scheduled for the status.
func (s JobStatus) IsTerminal() bool { return s == JobCompleted || s == JobError }

// CanTransitionTo reports whether moving from s to next is a legal step.
// Re-persisting the current non-terminal state is allowed so a resumed job can
// record progress without advancing.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == next {
		return !s.IsTerminal()
	}
	switch next {
	case JobError:
		return !s.IsTerminal()
	case JobExtracting:
		return s == JobQueued
	case JobScoring:
		return s == JobExtracting
	case JobCompleted:
		return s == JobScoring
	case JobQueued:
		return s == JobError
	}
	return false
}

// Job is one evaluation run. ExtractedText and ReportText are step checkpoints:
// once set, the corresponding step is skipped on re-entry.
type Job struct {
	ID            string
	Status        JobStatus
	VisaType      string
	DocumentIDs   []string
	Progress      int
	Error         string
	ExtractedText string
	ReportText    string
	NotifyEmail   string
	IdemKey       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Result is the persisted outcome of a completed job.
type Result struct {
	JobID     string
	VisaType  string
	Report    ParsedReport
	CreatedAt time.Time
}

// Repositories (ports)

type DocumentRepository interface {
	Create(ctx Context, d Document) (string, error)
	Get(ctx Context, id string) (Document, error)
}

type JobRepository interface {
	Create(ctx Context, j Job) (string, error)
	Get(ctx Context, id string) (Job, error)
	FindByIdempotencyKey(ctx Context, key string) (Job, error)
	UpdateStatus(ctx Context, id string, status JobStatus, progress int, errMsg *string) error
	SaveExtractedText(ctx Context, id, text string) error
	SaveReportText(ctx Context, id, text string) error
	ListByStatus(ctx Context, status JobStatus, offset, limit int) ([]Job, error)
}

type ResultRepository interface {
	Upsert(ctx Context, r Result) error
	GetByJobID(ctx Context, jobID string) (Result, error)
}

// Queue (port)

type Queue interface {
	EnqueueEvaluate(ctx Context, task EvaluateTask) (string, error)
}

// EvaluateTask is the queue payload; the job row carries everything else.
type EvaluateTask struct {
	JobID    string `json:"job_id"`
	VisaType string `json:"visa_type"`
}

// AIClient (port) generates officer reports from a prompt.
type AIClient interface {
	Generate(ctx Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error)
}

// TextExtractor (port) turns document bytes into plain text.
type TextExtractor interface {
	Extract(ctx Context, fileName string, data []byte) (string, error)
}

// ObjectStorage (port) stores raw uploaded documents.
type ObjectStorage interface {
	Put(ctx Context, key, contentType string, data []byte) error
	Get(ctx Context, key string) ([]byte, error)
	Delete(ctx Context, key string) error
}

// Notifier (port) tells the petitioner an evaluation finished.
type Notifier interface {
	EvaluationCompleted(ctx Context, job Job, res Result) error
}

// Context is an alias for context.Context so ports read without the std import.
type Context = context.Context
