// Package analysis turns a job's raw scraper results into a validated report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TariqKichawele/BrightData/internal/cache"
	"github.com/TariqKichawele/BrightData/internal/report"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
)

// MsgNoResults is recorded on jobs that reach analysis without scraper data.
const MsgNoResults = "no results found for job"

// recordTimeout bounds the best-effort failure write after the run context may be gone.
const recordTimeout = 10 * time.Second

// Engine runs the analysis step for one job at a time. It is safe for concurrent use.
type Engine struct {
	store     store.Store
	provider  models.AIProvider
	validator *report.Validator
	events    cache.Publisher
	timeout   time.Duration
	now       func() time.Time
}

// NewEngine creates a new Engine. timeout bounds each AI call.
func NewEngine(st store.Store, provider models.AIProvider, v *report.Validator, events cache.Publisher, timeout time.Duration) *Engine {
	if events == nil {
		events = cache.NopPublisher{}
	}
	return &Engine{
		store:     st,
		provider:  provider,
		validator: v,
		events:    events,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run analyzes the stored raw results of job id and records the report.
// Every failure after the job is found leaves it failed with completedAt set.
func (e *Engine) Run(ctx context.Context, id uuid.UUID) Outcome {
	log := slog.With("job_id", id, "provider", e.provider.Name())
	start := time.Now()

	job, err := e.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("analysis.job_not_found")
		return Outcome{Kind: OutcomeNotFound, Detail: "job not found", Err: err}
	}
	if err != nil {
		return e.failed(ctx, log, id, OutcomeStoreFailed, "failed to load job", err)
	}

	if len(job.Results) == 0 {
		return e.failed(ctx, log, id, OutcomeMissingResults, MsgNoResults, nil)
	}

	if err := e.store.PatchJob(ctx, id, store.WithStatus(models.JobStatusAnalyzing), store.ClearError()); err != nil {
		return e.failed(ctx, log, id, OutcomeStoreFailed, "failed to mark job analyzing", err)
	}
	e.publish(ctx, log, id, models.JobStatusAnalyzing, "")

	prompt := BuildPrompt(job.Results)
	if err := e.store.PatchJob(ctx, id, store.WithAnalysisPrompt(prompt)); err != nil {
		return e.failed(ctx, log, id, OutcomeStoreFailed, "failed to save analysis prompt", err)
	}

	aiCtx, cancel := context.WithTimeout(ctx, e.timeout)
	raw, err := e.provider.GenerateReport(aiCtx, models.ReportRequest{
		SystemPrompt: SystemPrompt(),
		Prompt:       prompt,
	})
	cancel()
	if err != nil {
		return e.failed(ctx, log, id, OutcomeExternalCallFailed, "analysis failed: "+err.Error(), err)
	}

	r, err := e.validator.ValidateJSON(raw)
	if err != nil {
		detail := err.Error()
		var verr *report.ValidationError
		if errors.As(err, &verr) {
			detail = verr.Detail
		}
		log.Error("analysis.schema_validation_failed", "detail", detail, "bytes", len(raw))
		return e.failed(ctx, log, id, OutcomeValidationFailed, "schema validation failed: "+detail, err)
	}

	if err := e.store.PatchJob(ctx, id,
		store.WithReport(r),
		store.WithStatus(models.JobStatusCompleted),
		store.WithCompletedAt(e.now()),
		store.ClearError(),
	); err != nil {
		return e.failed(ctx, log, id, OutcomeStoreFailed, "failed to save report", err)
	}
	e.publish(ctx, log, id, models.JobStatusCompleted, "")

	log.Info("analysis.completed",
		"results", len(job.Results),
		"recommendations", len(r.Recommendations),
		"elapsed_ms", time.Since(start).Milliseconds())
	return Outcome{Kind: OutcomeOK, Report: r}
}

// failed records the failure on the job. A failure to record is logged and
// attached to the outcome without replacing the original cause.
func (e *Engine) failed(ctx context.Context, log *slog.Logger, id uuid.UUID, kind Kind, detail string, cause error) Outcome {
	out := Outcome{Kind: kind, Detail: detail, Err: cause}
	if out.Err == nil {
		out.Err = errors.New(detail)
	}
	log.Error("analysis.failed", "outcome", kind.String(), "detail", detail, "error", cause)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := e.store.PatchJob(rctx, id,
		store.WithStatus(models.JobStatusFailed),
		store.WithError(detail),
		store.WithCompletedAt(e.now()),
	); err != nil {
		out.RecordErr = fmt.Errorf("record failure: %w", err)
		log.Error("analysis.record_failure_failed", "error", err, "original_error", detail)
		return out
	}
	e.publish(rctx, log, id, models.JobStatusFailed, detail)
	return out
}

func (e *Engine) publish(ctx context.Context, log *slog.Logger, id uuid.UUID, status models.JobStatus, msg string) {
	err := e.events.PublishJobEvent(ctx, cache.JobEvent{JobID: id, Status: status, Error: msg, At: e.now()})
	if err != nil {
		log.Warn("analysis.publish_failed", "status", status, "error", err)
	}
}
