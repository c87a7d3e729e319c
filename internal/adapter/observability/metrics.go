package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		},
		[]string{"provider"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Estimated prompt and completion tokens sent to generative backends",
		},
		[]string{"kind"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"type"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"type"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"type"},
	)
	JobStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_stage_duration_seconds",
			Help:    "Time spent in each scoring workflow stage",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// Officer report outcomes
	ReportScoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_overall_score",
			Help:    "Distribution of parsed overall scores (0-100) by visa type",
			Buckets: []float64{10, 20, 30, 40, 50, 55, 60, 70, 80, 85, 90, 100},
		},
		[]string{"visa_type"},
	)
	ReportScoreSourceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_score_source_total",
			Help: "Which extraction rule produced the overall score",
		},
		[]string{"source"},
	)
	ReportRatingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_rating_total",
			Help: "Overall ratings assigned to parsed reports",
		},
		[]string{"visa_type", "rating"},
	)
)

var registerOnce sync.Once

// InitMetrics registers collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AITokensTotal,
			JobsEnqueuedTotal,
			JobsProcessing,
			JobsCompletedTotal,
			JobsFailedTotal,
			JobStageDuration,
			ReportScoreHistogram,
			ReportScoreSourceTotal,
			ReportRatingTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one generative call. outcome is "ok", "rate_limited" or "error".
func ObserveAIRequest(provider, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveTokens records estimated token usage for one generation.
func ObserveTokens(prompt, completion int) {
	if prompt > 0 {
		AITokensTotal.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		AITokensTotal.WithLabelValues("completion").Add(float64(completion))
	}
}

func EnqueueJob(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

func StartProcessingJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Inc()
}

func CompleteJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsCompletedTotal.WithLabelValues(jobType).Inc()
}

func FailJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsFailedTotal.WithLabelValues(jobType).Inc()
}

// ObserveStage records how long a workflow stage (extract, generate, parse) took.
func ObserveStage(stage string, d time.Duration) {
	JobStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveReport records the parsed outcome of an officer report.
func ObserveReport(visaType string, score int, rating, source string) {
	if score >= 0 && score <= 100 {
		ReportScoreHistogram.WithLabelValues(visaType).Observe(float64(score))
	}
	if rating != "" {
		ReportRatingTotal.WithLabelValues(visaType, rating).Inc()
	}
	if source != "" {
		ReportScoreSourceTotal.WithLabelValues(source).Inc()
	}
}
