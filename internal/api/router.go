package api

import (
	"net/http"

	mw "github.com/TariqKichawele/BrightData/internal/api/middleware"
	"github.com/TariqKichawele/BrightData/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc
	// Webhook is mounted outside the API key group; it carries its own secret.
	Webhook http.Handler

	CreateJob     http.HandlerFunc
	ListJobs      http.HandlerFunc
	GetJob        http.HandlerFunc
	GetBySnapshot http.HandlerFunc
	JobEvents     http.HandlerFunc
	Eligibility   http.HandlerFunc
	StartScrape   http.HandlerFunc
	RetryFull     http.HandlerFunc
	RetryAnalysis http.HandlerFunc
	DeleteJob     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	if deps.Webhook != nil {
		r.Method(http.MethodPost, "/api/webhook", deps.Webhook)
		r.Method(http.MethodPost, "/api/v1/webhook", deps.Webhook)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJob))
		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
		r.Get("/api/v1/jobs/by-snapshot/{snapshotID}", orNotImplemented(deps.GetBySnapshot))

		r.Route("/api/v1/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", orNotImplemented(deps.GetJob))
			r.Delete("/", orNotImplemented(deps.DeleteJob))
			r.Get("/events", orNotImplemented(deps.JobEvents))
			r.Get("/retry-eligibility", orNotImplemented(deps.Eligibility))
			r.Post("/start", orNotImplemented(deps.StartScrape))
			r.Post("/retry", orNotImplemented(deps.RetryFull))
			r.Post("/retry-analysis", orNotImplemented(deps.RetryAnalysis))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
