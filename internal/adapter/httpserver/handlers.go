package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/export"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/config"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/report"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/usecase"
)

const (
	maxJSONBody   = 1 << 20
	maxReportBody = 4 << 20
	maxIdemKeyLen = 128
)

// ReadinessCheck is one named dependency probe.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg      config.Config
	Uploads  usecase.UploadService
	Evaluate usecase.EvaluateService
	Results  usecase.ResultService
	Catalog  domain.VisaCatalog
	Checks   []ReadinessCheck
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, uploads usecase.UploadService, eval usecase.EvaluateService, results usecase.ResultService, catalog domain.VisaCatalog, checks ...ReadinessCheck) *Server {
	return &Server{Cfg: cfg, Uploads: uploads, Evaluate: eval, Results: results, Catalog: catalog, Checks: checks}
}

var allowedExts = map[string]bool{".pdf": true, ".docx": true, ".txt": true, ".md": true}

func allowedMIMEFor(m, filename string) bool {
	m = strings.ToLower(m)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return strings.HasPrefix(m, "text/")
	case ".pdf":
		return m == "application/pdf"
	case ".docx":
		return m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || m == "application/zip"
	}
	return false
}

// acceptsJSON reports whether the client can take a JSON response.
func acceptsJSON(r *http.Request) bool {
	a := r.Header.Get("Accept")
	return a == "" || strings.Contains(a, "*/*") || strings.Contains(a, "application/json") || strings.Contains(a, "application/*")
}

func notAcceptable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]string{"accept": r.Header.Get("Accept")}}})
}

func unsupportedMedia(w http.ResponseWriter, msg string, details any) {
	writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{Code: "UNSUPPORTED_MEDIA_TYPE", Message: msg, Details: details}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: content-type must be application/json", domain.ErrInvalidArgument)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument)
	}
	return nil
}

type documentView struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MIME     string `json:"mime"`
}

// UploadHandler stores the multipart "files" parts as exhibits.
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(r) {
			notAcceptable(w, r)
			return
		}
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB << 20
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code: "PAYLOAD_TOO_LARGE", Message: "payload too large", Details: map[string]int64{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			writeError(w, r, fmt.Errorf("%w: at least one file required", domain.ErrInvalidArgument), map[string]string{"field": "files"})
			return
		}
		if len(headers) > usecase.MaxDocumentsPerRequest {
			writeError(w, r, fmt.Errorf("%w: at most %d files per request", domain.ErrInvalidArgument, usecase.MaxDocumentsPerRequest), map[string]string{"field": "files"})
			return
		}

		files := make([]usecase.UploadFile, 0, len(headers))
		for _, h := range headers {
			if !allowedExts[strings.ToLower(filepath.Ext(h.Filename))] {
				unsupportedMedia(w, "unsupported file extension", map[string]string{"filename": h.Filename})
				return
			}
			f, err := h.Open()
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, h.Filename, err), nil)
				return
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, h.Filename, err), nil)
				return
			}
			mt := mimetype.Detect(data)
			if !allowedMIMEFor(mt.String(), h.Filename) {
				unsupportedMedia(w, "file content does not match its extension", map[string]string{"filename": h.Filename, "mime": mt.String()})
				return
			}
			files = append(files, usecase.UploadFile{Name: h.Filename, MIME: mt.String(), Data: data})
		}

		docs, err := s.Uploads.Ingest(r.Context(), files)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]documentView, 0, len(docs))
		for _, d := range docs {
			out = append(out, documentView{ID: d.ID, Filename: d.Filename, Size: d.Size, MIME: d.MIME})
		}
		writeJSON(w, http.StatusCreated, map[string]any{"documents": out})
	}
}

type evaluateBody struct {
	VisaType    string   `json:"visa_type" validate:"required,max=32"`
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,max=10,dive,required,max=100"`
	NotifyEmail string   `json:"notify_email" validate:"omitempty,email,max=254"`
}

// EvaluateHandler creates and enqueues an evaluation job.
func (s *Server) EvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(r) {
			notAcceptable(w, r)
			return
		}
		var req evaluateBody
		if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		idem := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if len(idem) > maxIdemKeyLen {
			writeError(w, r, fmt.Errorf("%w: Idempotency-Key too long", domain.ErrInvalidArgument), nil)
			return
		}
		job, err := s.Evaluate.Enqueue(r.Context(), usecase.EvaluateRequest{
			VisaType:    req.VisaType,
			DocumentIDs: req.DocumentIDs,
			NotifyEmail: req.NotifyEmail,
		}, idem)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Location", "/v1/evaluations/"+job.ID)
		writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": string(job.Status)})
	}
}

// ResultHandler returns job status, and the parsed report once completed.
func (s *Server) ResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(r) {
			notAcceptable(w, r)
			return
		}
		id := chi.URLParam(r, "id")
		if !ValidateJobID(id) {
			writeError(w, r, fmt.Errorf("%w: invalid id", domain.ErrInvalidArgument), map[string]string{"field": "id"})
			return
		}
		status, body, etag, err := s.Results.Fetch(r.Context(), id, r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		if status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, body)
	}
}

// RetryHandler re-queues a failed job.
func (s *Server) RetryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !ValidateJobID(id) {
			writeError(w, r, fmt.Errorf("%w: invalid id", domain.ErrInvalidArgument), map[string]string{"field": "id"})
			return
		}
		job, err := s.Evaluate.Retry(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("evaluation re-queued", slog.String("job_id", job.ID))
		writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": string(job.Status)})
	}
}

// ScorecardHandler streams the XLSX scorecard of a completed job.
func (s *Server) ScorecardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !ValidateJobID(id) {
			writeError(w, r, fmt.Errorf("%w: invalid id", domain.ErrInvalidArgument), map[string]string{"field": "id"})
			return
		}
		b, err := s.Results.Scorecard(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", export.ScorecardContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="evaluation-%s.xlsx"`, id))
		w.Header().Set("Content-Length", strconv.Itoa(len(b)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}

// VisaTypesHandler lists the visa catalog.
func (s *Server) VisaTypesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"visa_types": s.Catalog.List()})
	}
}

type parseBody struct {
	VisaType string `json:"visa_type" validate:"required,max=32"`
	Report   string `json:"report" validate:"required"`
}

// ParseReportHandler parses an officer report synchronously.
func (s *Server) ParseReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(r) {
			notAcceptable(w, r)
			return
		}
		var req parseBody
		if err := decodeJSON(w, r, maxReportBody, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		visa, err := s.Catalog.Get(req.VisaType)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: unknown visa type %q", domain.ErrInvalidArgument, req.VisaType), map[string]string{"field": "visa_type"})
			return
		}
		parsed, src := report.ParseWithSource(req.Report, visa.Criteria)
		observability.ObserveReport(visa.Code, parsed.OverallScore, parsed.OverallRating, string(src))
		writeJSON(w, http.StatusOK, parsed)
	}
}

// HealthzHandler reports liveness.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyzHandler runs every readiness check; any failure yields 503.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		st := http.StatusOK
		for _, c := range s.Checks {
			if err := c.Check(ctx); err != nil {
				checks = append(checks, check{Name: c.Name, Details: err.Error()})
				st = http.StatusServiceUnavailable
				continue
			}
			checks = append(checks, check{Name: c.Name, OK: true})
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
