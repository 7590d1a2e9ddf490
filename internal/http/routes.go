package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// DefaultArtifactPath is the URL path artifacts are served under.
const DefaultArtifactPath = "/reports"

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Reports ReportService // Required

	// ArtifactDir enables GET <ArtifactPath>/{file} when set.
	ArtifactDir  string
	ArtifactPath string

	// SubmitLimiter throttles POST /api/reports (optional).
	SubmitLimiter *rate.Limiter
	Readiness     []ReadinessCheck
	Logger        *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	registerReportRoutes(mux, &ReportHandlers{Svc: services.Reports}, services.SubmitLimiter)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Readiness))

	if services.ArtifactDir != "" {
		base := strings.TrimRight(services.ArtifactPath, "/")
		if base == "" {
			base = DefaultArtifactPath
		}
		mux.Handle("GET "+base+"/{file}", artifactHandler(services.ArtifactDir))
	}

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return Chain(mux, Recover(logger), Logging(logger))
}

func registerReportRoutes(mux *http.ServeMux, h *ReportHandlers, limiter *rate.Limiter) {
	mux.Handle("POST /api/reports", RateLimit(limiter)(http.HandlerFunc(h.Submit)))
	mux.HandleFunc("GET /api/reports", h.List)
	mux.HandleFunc("GET /api/reports/stats/summary", h.Stats)
	mux.HandleFunc("GET /api/reports/{id}", h.GetStatus)
	mux.HandleFunc("DELETE /api/reports/{id}", h.Delete)
}
