package httpx

import (
	"log/slog"
	"net/http"

	"github.com/FlashBlank7/ModelsEvalSystem/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Scheduling *service.SchedulingService
	// Optional: live events for long-polling progress
	Events ProgressSubscriber
	// Optional: dependencies reported by /readyz, keyed by name
	Readiness map[string]HealthChecker
	Logger    *slog.Logger
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if services.Scheduling != nil {
		registerEvaluationRoutes(mux, &EvaluationHandlers{
			Svc:    services.Scheduling,
			Events: services.Events,
			Logger: logger.With("component", "http"),
		})
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Readiness))

	return mux
}

func registerEvaluationRoutes(mux *http.ServeMux, h *EvaluationHandlers) {
	mux.HandleFunc("POST /api/evaluations", h.Submit)
	mux.HandleFunc("GET /api/evaluations", h.List)
	mux.HandleFunc("GET /api/evaluations/{id}", h.Get)
	mux.HandleFunc("POST /api/evaluations/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/evaluations/{id}/execute", h.Execute)
	mux.HandleFunc("GET /api/evaluations/{id}/progress", h.Progress)
	mux.HandleFunc("GET /api/evaluations/{id}/records", h.Records)
	mux.HandleFunc("GET /api/batches/history", h.History)
	mux.HandleFunc("GET /api/queue", h.QueueStatus)
	mux.HandleFunc("POST /api/queue/purge", h.Purge)
}
