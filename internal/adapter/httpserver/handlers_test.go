package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/adapter/export"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

type part struct {
	name string
	data []byte
}

func multipartRequest(t *testing.T, field string, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	m := decode(t, rec)
	e, ok := m["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return e["code"].(string)
}

func TestUploadHandler(t *testing.T) {
	t.Parallel()
	st := newStore()
	h := newTestHandler(st, "")

	rec := serve(h, multipartRequest(t, "files",
		part{"cv.txt", []byte("Principal engineer, 40 publications")},
		part{"letters.md", []byte("# Letters\n\nExpert letter one")},
	))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	docs := decode(t, rec)["documents"].([]any)
	require.Len(t, docs, 2)
	first := docs[0].(map[string]any)
	assert.Equal(t, "cv.txt", first["filename"])
	assert.Contains(t, first["mime"], "text/plain")
	assert.NotEmpty(t, first["id"])
	assert.Len(t, st.objects, 2)
}

func TestUploadHandler_Rejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   string
	}{
		{
			name:   "unsupported extension",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "files", part{"cv.exe", []byte("MZ")}) },
			status: http.StatusUnsupportedMediaType,
			code:   "UNSUPPORTED_MEDIA_TYPE",
		},
		{
			name: "content does not match extension",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "files", part{"cv.pdf", []byte("plain text")})
			},
			status: http.StatusUnsupportedMediaType,
			code:   "UNSUPPORTED_MEDIA_TYPE",
		},
		{
			name:   "wrong field",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "cv", part{"cv.txt", []byte("text")}) },
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "files", part{"big.txt", bytes.Repeat([]byte("a"), 2<<20)})
			},
			status: http.StatusRequestEntityTooLarge,
			code:   "PAYLOAD_TOO_LARGE",
		},
		{
			name: "not multipart",
			req: func(*testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/v1/documents", `{}`)
			},
			status: http.StatusBadRequest,
			code:   "INVALID_ARGUMENT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(newTestHandler(newStore(), ""), tt.req(t))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestEvaluateHandler(t *testing.T) {
	t.Parallel()
	st := newStore()
	st.docs["d1"] = domain.Document{ID: "d1"}
	h := newTestHandler(st, "")

	req := jsonRequest(http.MethodPost, "/v1/evaluations", `{"visa_type":"O-1A","document_ids":["d1"],"notify_email":"p@example.com"}`)
	req.Header.Set("Idempotency-Key", "abc")
	rec := serve(h, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "queued", body["status"])
	id := body["id"].(string)
	assert.Equal(t, "/v1/evaluations/"+id, rec.Header().Get("Location"))

	req = jsonRequest(http.MethodPost, "/v1/evaluations", `{"visa_type":"O-1A","document_ids":["d1"]}`)
	req.Header.Set("Idempotency-Key", "abc")
	rec = serve(h, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, id, decode(t, rec)["id"])
	assert.Len(t, st.tasks, 1)
}

func TestEvaluateHandler_Validation(t *testing.T) {
	t.Parallel()
	st := newStore()
	st.docs["d1"] = domain.Document{ID: "d1"}
	h := newTestHandler(st, "")

	tests := []struct {
		name    string
		body    string
		details map[string]any
	}{
		{"invalid json", `{`, nil},
		{"missing visa", `{"document_ids":["d1"]}`, map[string]any{"visa_type": "required"}},
		{"no documents", `{"visa_type":"O-1A","document_ids":[]}`, map[string]any{"document_ids": "min"}},
		{"bad email", `{"visa_type":"O-1A","document_ids":["d1"],"notify_email":"nope"}`, map[string]any{"notify_email": "email"}},
		{"unknown visa", `{"visa_type":"H-1B","document_ids":["d1"]}`, nil},
		{"unknown document", `{"visa_type":"O-1A","document_ids":["zzz"]}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, jsonRequest(http.MethodPost, "/v1/evaluations", tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			e := decode(t, rec)["error"].(map[string]any)
			assert.Equal(t, "INVALID_ARGUMENT", e["code"])
			if tt.details != nil {
				assert.Equal(t, tt.details, e["details"])
			}
		})
	}
	assert.Empty(t, st.tasks)
}

func TestEvaluateHandler_NotAcceptable(t *testing.T) {
	t.Parallel()
	req := jsonRequest(http.MethodPost, "/v1/evaluations", `{}`)
	req.Header.Set("Accept", "text/html")
	rec := serve(newTestHandler(newStore(), ""), req)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
}

func TestResultHandler(t *testing.T) {
	t.Parallel()
	st := newStore()
	st.jobs["j1"] = domain.Job{ID: "j1", Status: domain.JobScoring, VisaType: "O-1A", Progress: 40}
	st.jobs["j2"] = domain.Job{ID: "j2", Status: domain.JobError, VisaType: "O-1A", Error: "UPSTREAM_TIMEOUT: deadline exceeded"}
	h := newTestHandler(st, "")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/evaluations/j1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "scoring", body["status"])
	assert.Equal(t, float64(40), body["progress"])
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/v1/evaluations/j1", nil)
	req.Header.Set("If-None-Match", etag)
	rec = serve(h, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/evaluations/j2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	e := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "UPSTREAM_TIMEOUT", e["code"])
	assert.Equal(t, "deadline exceeded", e["message"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/evaluations/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/evaluations/bad$id", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultHandler_Completed(t *testing.T) {
	t.Parallel()
	st := newStore()
	st.jobs["j1"] = domain.Job{ID: "j1", Status: domain.JobCompleted, VisaType: "EB-1A", Progress: 100}
	st.results["j1"] = domain.Result{JobID: "j1", VisaType: "EB-1A", Report: domain.ParsedReport{OverallScore: 82, OverallRating: domain.RatingApprove}}
	h := newTestHandler(st, "")

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/evaluations/j1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)["result"].(map[string]any)
	assert.Equal(t, float64(82), res["overallScore"])
	assert.Equal(t, "Approve", res["overallRating"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/evaluations/j1/scorecard.xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ScorecardContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "evaluation-j1.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestScorecardHandler_NotCompleted(t *testing.T) {
	t.Parallel()
	st := newStore()
	st.jobs["j1"] = domain.Job{ID: "j1", Status: domain.JobQueued}
	rec := serve(newTestHandler(st, ""), httptest.NewRequest(http.MethodGet, "/v1/evaluations/j1/scorecard.xlsx", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, rec))
}

func TestRetryHandler(t *testing.T) {
	t.Parallel()
	hash, err := HashPassword(testAdminPassword)
	require.NoError(t, err)
	st := newStore()
	st.jobs["failed"] = domain.Job{ID: "failed", Status: domain.JobError, VisaType: "O-1A", Error: "INTERNAL: x"}
	st.jobs["done"] = domain.Job{ID: "done", Status: domain.JobCompleted, VisaType: "O-1A"}
	h := newTestHandler(st, hash)

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/v1/evaluations/failed/retry", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluations/failed/retry", nil)
	req.SetBasicAuth(testAdminUser, "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/evaluations/failed/retry", nil)
	req.SetBasicAuth(testAdminUser, testAdminPassword)
	rec = serve(h, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "queued", decode(t, rec)["status"])
	assert.Equal(t, domain.JobQueued, st.jobs["failed"].Status)
	require.Len(t, st.tasks, 1)

	req = httptest.NewRequest(http.MethodPost, "/v1/evaluations/done/retry", nil)
	req.SetBasicAuth(testAdminUser, testAdminPassword)
	assert.Equal(t, http.StatusConflict, serve(h, req).Code)
}

func TestRetryHandler_DisabledWithoutCredentials(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluations/x/retry", nil)
	req.SetBasicAuth(testAdminUser, testAdminPassword)
	rec := serve(newTestHandler(newStore(), ""), req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVisaTypesHandler(t *testing.T) {
	t.Parallel()
	rec := serve(newTestHandler(newStore(), ""), httptest.NewRequest(http.MethodGet, "/v1/visa-types", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	visas := decode(t, rec)["visa_types"].([]any)
	require.Len(t, visas, 5)
	first := visas[0].(map[string]any)
	assert.Equal(t, "O-1A", first["code"])
	assert.Len(t, first["criteria"], 8)
}

func TestParseReportHandler(t *testing.T) {
	t.Parallel()
	h := newTestHandler(newStore(), "")
	body, _ := json.Marshal(map[string]string{
		"visa_type": "eb-1a",
		"report":    "| **TOTAL** | | **74/100** |\n\nTier 1 | 6\n",
	})
	rec := serve(h, jsonRequest(http.MethodPost, "/v1/reports/parse", string(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(t, rec)
	assert.Equal(t, float64(74), m["overallScore"])
	assert.Equal(t, "Approve", m["overallRating"])
	assert.Len(t, m["criteriaScores"], 10)

	rec = serve(h, jsonRequest(http.MethodPost, "/v1/reports/parse", `{"visa_type":"H-1B","report":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(h, jsonRequest(http.MethodPost, "/v1/reports/parse", `{"visa_type":"O-1A"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()
	ok := ReadinessCheck{Name: "db", Check: func(context.Context) error { return nil }}
	bad := ReadinessCheck{Name: "tika", Check: func(context.Context) error { return errors.New("connection refused") }}

	rec := serve(newTestHandler(newStore(), ""), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newTestHandler(newStore(), "", ok), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newTestHandler(newStore(), "", ok, bad), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks := decode(t, rec)["checks"].([]any)
	require.Len(t, checks, 2)
	assert.Equal(t, map[string]any{"name": "tika", "ok": false, "details": "connection refused"}, checks[1])
}
