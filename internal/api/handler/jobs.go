package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/TariqKichawele/BrightData/internal/ai"
	mw "github.com/TariqKichawele/BrightData/internal/api/middleware"
	"github.com/TariqKichawele/BrightData/internal/api/response"
	"github.com/TariqKichawele/BrightData/internal/analysis"
	"github.com/TariqKichawele/BrightData/internal/jobs"
	"github.com/TariqKichawele/BrightData/internal/scraper"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxPromptBytes   = 8 << 10
)

// JobService is the lifecycle surface the job endpoints depend on.
type JobService interface {
	Create(ctx context.Context, ownerID, prompt string) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetBySnapshotID(ctx context.Context, snapshotID, ownerID string) (*models.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ScraperEnabled() bool
	StartScrape(ctx context.Context, id uuid.UUID) (*models.Job, error)
	RetryFull(ctx context.Context, id uuid.UUID) (*models.Job, error)
	RetryAnalysis(ctx context.Context, id uuid.UUID) (analysis.Outcome, error)
	Eligibility(ctx context.Context, id uuid.UUID) (models.SmartRetryEligibility, error)
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// With "start": true the scrape is triggered right away.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := mw.GetOwnerID(r)
		if !ok {
			response.ProblemMissingOwner.Write(w, nil)
			return
		}

		var req struct {
			OriginalPrompt string `json:"original_prompt"`
			Start          bool   `json:"start"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.OriginalPrompt) > maxPromptBytes {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "original_prompt is too long", nil)
			return
		}

		job, err := svc.Create(r.Context(), owner, req.OriginalPrompt)
		if err != nil {
			writeJobError(w, err)
			return
		}

		if req.Start && svc.ScraperEnabled() {
			started, err := svc.StartScrape(r.Context(), job.ID)
			if err != nil {
				writeJobError(w, err)
				return
			}
			job = started
		}

		response.Created(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := mw.GetOwnerID(r)
		if !ok {
			response.ProblemMissingOwner.Write(w, nil)
			return
		}

		page, limit, err := parsePage(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}

		all, err := svc.ListByOwner(r.Context(), owner)
		if err != nil {
			writeJobError(w, err)
			return
		}

		items, meta := response.Paginate(all, page, limit)
		response.Collection(w, items, meta)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadOwnedJob(w, r, svc)
		if !ok {
			return
		}
		response.JSON(w, job)
	}
}

// NewGetBySnapshotHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/by-snapshot/{snapshotID}.
func NewGetBySnapshotHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := mw.GetOwnerID(r)
		if !ok {
			response.ProblemMissingOwner.Write(w, nil)
			return
		}
		snapshotID := strings.TrimSpace(chi.URLParam(r, "snapshotID"))
		if snapshotID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "snapshot id is required", nil)
			return
		}

		job, err := svc.GetBySnapshotID(r.Context(), snapshotID, owner)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewEligibilityHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/retry-eligibility. Unknown or foreign jobs report
// every flag false.
func NewEligibilityHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := mw.GetOwnerID(r)
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.JSON(w, models.SmartRetryEligibility{})
			return
		}

		job, err := svc.Get(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.JSON(w, models.SmartRetryEligibility{})
			return
		case err != nil:
			writeJobError(w, err)
			return
		case job.OwnerID != owner:
			response.JSON(w, models.SmartRetryEligibility{})
			return
		}

		elig, err := svc.Eligibility(r.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, elig)
	}
}

// NewStartScrapeHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/start.
func NewStartScrapeHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !svc.ScraperEnabled() {
			writeJobError(w, jobs.ErrScraperDisabled)
			return
		}
		job, ok := loadOwnedJob(w, r, svc)
		if !ok {
			return
		}
		started, err := svc.StartScrape(r.Context(), job.ID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Accepted(w, started)
	}
}

// NewRetryHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/retry.
// The job is reset to pending and, when a scraper is configured, re-triggered.
func NewRetryHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadOwnedJob(w, r, svc)
		if !ok {
			return
		}
		reset, err := svc.RetryFull(r.Context(), job.ID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		if !svc.ScraperEnabled() {
			response.Accepted(w, reset)
			return
		}
		started, err := svc.StartScrape(r.Context(), job.ID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Accepted(w, started)
	}
}

// NewRetryAnalysisHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/retry-analysis. It blocks until the analysis ends.
func NewRetryAnalysisHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := loadOwnedJob(w, r, svc)
		if !ok {
			return
		}

		out, err := svc.RetryAnalysis(r.Context(), job.ID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		if !out.OK() {
			writeOutcomeError(w, out)
			return
		}

		updated, err := svc.Get(r.Context(), job.ID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, updated)
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
// Deleting a missing job succeeds.
func NewDeleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := mw.GetOwnerID(r)
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.ProblemInvalidJobID.Write(w, nil)
			return
		}

		job, err := svc.Get(r.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.NoContent(w)
			return
		case err != nil:
			writeJobError(w, err)
			return
		case job.OwnerID != owner:
			response.ProblemNotFound.Write(w, nil)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			writeJobError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// loadOwnedJob resolves {jobID} and hides jobs of other owners behind a 404.
func loadOwnedJob(w http.ResponseWriter, r *http.Request, svc JobService) (*models.Job, bool) {
	owner, ok := mw.GetOwnerID(r)
	if !ok {
		response.ProblemMissingOwner.Write(w, nil)
		return nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.ProblemInvalidJobID.Write(w, nil)
		return nil, false
	}

	job, err := svc.Get(r.Context(), id)
	if err != nil {
		writeJobError(w, err)
		return nil, false
	}
	if job.OwnerID != owner {
		response.ProblemNotFound.Write(w, nil)
		return nil, false
	}
	return job, true
}

func parsePage(r *http.Request) (int, int, error) {
	page, limit := 1, defaultPageLimit
	if v := r.URL.Query().Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		limit = min(l, maxPageLimit)
	}
	return page, limit, nil
}

// writeJobError maps lifecycle errors to HTTP responses.
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.ProblemNotFound.Write(w, nil)
	case errors.Is(err, store.ErrCorruptReport):
		slog.Error("stored report failed validation", "error", err)
		response.Error(w, http.StatusInternalServerError, "CORRUPT_REPORT",
			"Stored report failed validation", nil)
	case errors.Is(err, jobs.ErrOwnerRequired):
		response.Error(w, http.StatusBadRequest, "MISSING_OWNER_ID", err.Error(), nil)
	case errors.Is(err, jobs.ErrPromptRequired):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "original_prompt is required", nil)
	case errors.Is(err, jobs.ErrSmartRetryIneligible):
		response.Error(w, http.StatusConflict, "SMART_RETRY_INELIGIBLE",
			"Job has no scraped data or analysis prompt; use a full retry", nil)
	case errors.Is(err, jobs.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, jobs.ErrScraperDisabled):
		response.Error(w, http.StatusNotImplemented, "SCRAPER_DISABLED", "No scraper is configured", nil)
	case errors.Is(err, scraper.ErrScraperUnreachable):
		response.Error(w, http.StatusBadGateway, "SCRAPER_UNAVAILABLE", "The scraper is not reachable", nil)
	case errors.Is(err, scraper.ErrTriggerRejected):
		response.Error(w, http.StatusBadGateway, "SCRAPE_REJECTED", "The scraper rejected the request", nil)
	default:
		slog.Error("job request failed", "error", err)
		response.ProblemInternal.Write(w, nil)
	}
}

// writeOutcomeError maps a failed analysis run to an HTTP response. The job
// itself already records the failure.
func writeOutcomeError(w http.ResponseWriter, out analysis.Outcome) {
	details := map[string]string{"detail": out.Detail, "outcome": out.Kind.String()}
	switch out.Kind {
	case analysis.OutcomeNotFound:
		response.ProblemNotFound.Write(w, nil)
	case analysis.OutcomeMissingResults:
		response.Error(w, http.StatusConflict, "NO_RESULTS", "Job has no scraped results", details)
	case analysis.OutcomeValidationFailed:
		response.Error(w, http.StatusBadGateway, "SCHEMA_VALIDATION_FAILED",
			"AI output did not match the report schema", details)
	case analysis.OutcomeExternalCallFailed:
		switch {
		case errors.Is(out.Err, ai.ErrInferenceTimeout):
			response.Error(w, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT",
				"AI analysis took too long and was cancelled", details)
		case errors.Is(out.Err, ai.ErrProviderUnavailable):
			response.Error(w, http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE",
				"The AI provider is not available", details)
		default:
			response.Error(w, http.StatusBadGateway, "ANALYSIS_FAILED", "AI analysis failed", details)
		}
	default:
		response.ProblemInternal.Write(w, details)
	}
}
