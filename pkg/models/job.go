package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a scraping job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusAnalyzing JobStatus = "analyzing"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid reports whether s is one of the five known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusAnalyzing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends the default flow.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks one scrape-and-analyze request. The client creates it, the scraper
// webhook attaches raw results, and the analysis engine attaches the report.
// Clients poll GET /api/v1/jobs/{job_id} until status is completed or failed.
type Job struct {
	ID             uuid.UUID         `db:"id"              json:"id"`
	OwnerID        string            `db:"owner_id"        json:"owner_id"`
	OriginalPrompt string            `db:"original_prompt" json:"original_prompt"`
	AnalysisPrompt *string           `db:"analysis_prompt" json:"analysis_prompt,omitempty"`
	SnapshotID     *string           `db:"snapshot_id"     json:"snapshot_id,omitempty"`
	Status         JobStatus         `db:"status"          json:"status"`
	Results        []json.RawMessage `db:"results"         json:"results,omitempty"`
	Report         *Report           `db:"report"          json:"report,omitempty"`
	Error          *string           `db:"error"           json:"error,omitempty"`
	CreatedAt      time.Time         `db:"created_at"      json:"created_at"`
	CompletedAt    *time.Time        `db:"completed_at"    json:"completed_at,omitempty"`
	UpdatedAt      time.Time         `db:"updated_at"      json:"updated_at"`
}

// SmartRetryEligibility says whether a job can re-run only the analysis step.
type SmartRetryEligibility struct {
	CanRetryAnalysisOnly bool `json:"can_retry_analysis_only"`
	HasScrapingData      bool `json:"has_scraping_data"`
	HasAnalysisPrompt    bool `json:"has_analysis_prompt"`
}

// SmartRetry derives the analysis-only retry gate. It is computed on every call
// and never persisted.
func (j *Job) SmartRetry() SmartRetryEligibility {
	if j == nil {
		return SmartRetryEligibility{}
	}
	hasData := len(j.Results) > 0
	hasPrompt := j.AnalysisPrompt != nil && *j.AnalysisPrompt != ""
	return SmartRetryEligibility{
		CanRetryAnalysisOnly: hasData && hasPrompt,
		HasScrapingData:      hasData,
		HasAnalysisPrompt:    hasPrompt,
	}
}
