// Package jobs owns the scrape-and-analyze job lifecycle.
//
// Transitions:
//
//	create                  -> pending
//	pending   + scrape      -> running
//	running   + results     -> analyzing (analysis dispatched)
//	analyzing + run         -> completed | failed
//	any       + full retry  -> pending
//	eligible  + smart retry -> analyzing (analysis run inline)
//
// Concurrent triggers against one job are not serialized; the store is
// last-write-wins per column.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TariqKichawele/BrightData/internal/analysis"
	"github.com/TariqKichawele/BrightData/internal/cache"
	"github.com/TariqKichawele/BrightData/internal/scraper"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
)

var (
	ErrOwnerRequired        = errors.New("owner id is required")
	ErrPromptRequired       = errors.New("original prompt is required")
	ErrSmartRetryIneligible = errors.New("job is not eligible for analysis-only retry")
	ErrInvalidTransition    = errors.New("invalid job status transition")
	ErrScraperDisabled      = errors.New("scraper is not configured")
)

// Analyzer runs the analysis step synchronously.
type Analyzer interface {
	Run(ctx context.Context, id uuid.UUID) analysis.Outcome
}

// Dispatcher schedules an analysis run without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) error
}

// Controller applies lifecycle transitions. Every operation re-reads the job
// from the store.
type Controller struct {
	store      store.Store
	analyzer   Analyzer
	dispatcher Dispatcher
	scraper    scraper.Client
	events     cache.Publisher
	now        func() time.Time
}

// NewController wires the lifecycle. sc may be nil when outbound scraping is
// disabled; events may be nil.
func NewController(st store.Store, analyzer Analyzer, d Dispatcher, sc scraper.Client, events cache.Publisher) *Controller {
	if events == nil {
		events = cache.NopPublisher{}
	}
	return &Controller{
		store:      st,
		analyzer:   analyzer,
		dispatcher: d,
		scraper:    sc,
		events:     events,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ScraperEnabled reports whether StartScrape can reach a scraper.
func (c *Controller) ScraperEnabled() bool {
	return c.scraper != nil
}

// Create records a new pending job.
func (c *Controller) Create(ctx context.Context, ownerID, prompt string) (*models.Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrPromptRequired
	}

	now := c.now()
	job := &models.Job{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		OriginalPrompt: prompt,
		Status:         models.JobStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	slog.Info("job.created", "job_id", job.ID, "owner_id", ownerID)
	c.publish(ctx, job.ID, models.JobStatusPending, "")
	return job, nil
}

func (c *Controller) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return c.store.GetJob(ctx, id)
}

func (c *Controller) GetBySnapshotID(ctx context.Context, snapshotID, ownerID string) (*models.Job, error) {
	return c.store.GetJobBySnapshotID(ctx, snapshotID, ownerID)
}

func (c *Controller) ListByOwner(ctx context.Context, ownerID string) ([]*models.Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrOwnerRequired
	}
	return c.store.ListJobsByOwner(ctx, ownerID)
}

// Delete removes the job regardless of status. Missing jobs are not an error.
func (c *Controller) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	slog.Info("job.deleted", "job_id", id)
	return nil
}

// MarkRunning records that the scraper accepted the job.
func (c *Controller) MarkRunning(ctx context.Context, id uuid.UUID, snapshotID string) error {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, models.JobStatusRunning)
	}
	if err := c.store.PatchJob(ctx, id,
		store.WithStatus(models.JobStatusRunning),
		store.WithSnapshotID(snapshotID),
		store.ClearError(),
	); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	slog.Info("job.running", "job_id", id, "snapshot_id", snapshotID)
	c.publish(ctx, id, models.JobStatusRunning, "")
	return nil
}

// StartScrape triggers the scraper for a pending job and marks it running.
// A rejected trigger fails the job.
func (c *Controller) StartScrape(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if c.scraper == nil {
		return nil, ErrScraperDisabled
	}
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, models.JobStatusRunning)
	}

	snapshotID, err := c.scraper.Trigger(ctx, id, job.OriginalPrompt)
	if err != nil {
		c.recordFailure(ctx, id, "scrape trigger failed: "+err.Error(), err)
		return nil, fmt.Errorf("start scrape: %w", err)
	}
	err = c.MarkRunning(ctx, id, snapshotID)
	switch {
	case errors.Is(err, ErrInvalidTransition):
		// The webhook beat the trigger response; the job already moved on.
		if err := c.store.PatchJob(ctx, id, store.WithSnapshotID(snapshotID)); err != nil {
			return nil, fmt.Errorf("record snapshot id: %w", err)
		}
		slog.Warn("job.scrape_start_late", "job_id", id, "snapshot_id", snapshotID, "reason", err.Error())
	case err != nil:
		c.recordFailure(ctx, id, "failed to record scrape start: "+err.Error(), err)
		return nil, err
	}
	return c.store.GetJob(ctx, id)
}

// AcceptResults stores scraper output, moves the job to analyzing and hands
// the analysis off to the dispatcher. It returns once the hand-off succeeded.
func (c *Controller) AcceptResults(ctx context.Context, id uuid.UUID, results []json.RawMessage) error {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusRunning {
		slog.Warn("job.results_out_of_order", "job_id", id, "status", job.Status)
	}
	if results == nil {
		results = []json.RawMessage{}
	}

	if err := c.store.PatchJob(ctx, id,
		store.WithResults(results),
		store.WithStatus(models.JobStatusAnalyzing),
		store.ClearError(),
	); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	slog.Info("job.results_received", "job_id", id, "records", len(results))
	c.publish(ctx, id, models.JobStatusAnalyzing, "")

	if err := c.dispatcher.Dispatch(ctx, id); err != nil {
		return fmt.Errorf("dispatch analysis: %w", err)
	}
	return nil
}

// RetryFull resets the job to pending and drops everything derived from the
// previous scrape. The analysis prompt is kept; it is overwritten on the next run.
func (c *Controller) RetryFull(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.store.PatchJob(ctx, id,
		store.WithStatus(models.JobStatusPending),
		store.ClearResults(),
		store.ClearReport(),
		store.ClearError(),
		store.ClearCompletedAt(),
		store.ClearSnapshotID(),
	); err != nil {
		return nil, fmt.Errorf("full retry: %w", err)
	}
	slog.Info("job.retry_full", "job_id", id, "from", job.Status)
	c.publish(ctx, id, models.JobStatusPending, "")
	return c.store.GetJob(ctx, id)
}

// RetryAnalysis re-runs only the analysis step against the stored results and
// waits for it. The error covers the gate and the reset; the run itself is
// reported through the outcome.
func (c *Controller) RetryAnalysis(ctx context.Context, id uuid.UUID) (analysis.Outcome, error) {
	job, err := c.store.GetJob(ctx, id)
	if err != nil {
		return analysis.Outcome{}, err
	}
	elig := job.SmartRetry()
	if !elig.CanRetryAnalysisOnly {
		slog.Info("job.retry_analysis_rejected", "job_id", id,
			"has_scraping_data", elig.HasScrapingData, "has_analysis_prompt", elig.HasAnalysisPrompt)
		return analysis.Outcome{}, ErrSmartRetryIneligible
	}

	if err := c.store.PatchJob(ctx, id,
		store.WithStatus(models.JobStatusAnalyzing),
		store.ClearError(),
		store.ClearCompletedAt(),
		store.ClearReport(),
	); err != nil {
		return analysis.Outcome{}, fmt.Errorf("reset for analysis retry: %w", err)
	}
	slog.Info("job.retry_analysis", "job_id", id, "from", job.Status)
	c.publish(ctx, id, models.JobStatusAnalyzing, "")

	return c.analyzer.Run(ctx, id), nil
}

// Eligibility derives the smart-retry gate. A missing job is not eligible.
func (c *Controller) Eligibility(ctx context.Context, id uuid.UUID) (models.SmartRetryEligibility, error) {
	job, err := c.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.SmartRetryEligibility{}, nil
	}
	if err != nil {
		return models.SmartRetryEligibility{}, err
	}
	return job.SmartRetry(), nil
}

// Fail marks the job failed with msg and sets completedAt.
func (c *Controller) Fail(ctx context.Context, id uuid.UUID, msg string) error {
	if err := c.store.PatchJob(ctx, id,
		store.WithStatus(models.JobStatusFailed),
		store.WithError(msg),
		store.WithCompletedAt(c.now()),
	); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	slog.Warn("job.failed", "job_id", id, "error", msg)
	c.publish(ctx, id, models.JobStatusFailed, msg)
	return nil
}

// recordFailure is Fail for error paths: the write is detached from ctx and a
// failure to record is only logged.
func (c *Controller) recordFailure(ctx context.Context, id uuid.UUID, msg string, cause error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.Fail(rctx, id, msg); err != nil {
		slog.Error("job.record_failure_failed", "job_id", id, "error", err, "original_error", cause)
	}
}

func (c *Controller) publish(ctx context.Context, id uuid.UUID, status models.JobStatus, msg string) {
	err := c.events.PublishJobEvent(ctx, cache.JobEvent{JobID: id, Status: status, Error: msg, At: c.now()})
	if err != nil {
		slog.Warn("job.publish_failed", "job_id", id, "status", status, "error", err)
	}
}
