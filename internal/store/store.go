package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrCorruptReport is returned by reads whose stored report no longer passes validation.
var ErrCorruptReport = errors.New("stored report failed validation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetJobBySnapshotID(ctx context.Context, snapshotID, ownerID string) (*models.Job, error)
	PatchJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error
	ListJobsByOwner(ctx context.Context, ownerID string) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

// JobUpdate is a partial update. Only fields touched by an option are written;
// everything else keeps its stored value.
type JobUpdate struct {
	status         *models.JobStatus
	analysisPrompt *string
	snapshotID     *string
	results        *[]json.RawMessage
	report         *models.Report
	errMsg         *string
	completedAt    *time.Time

	clearSnapshotID  bool
	clearResults     bool
	clearReport      bool
	clearError       bool
	clearCompletedAt bool
}

type JobUpdateOption func(*JobUpdate)

// NewJobUpdate folds opts in order; a later option on the same field wins.
func NewJobUpdate(opts ...JobUpdateOption) *JobUpdate {
	u := &JobUpdate{}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func WithStatus(s models.JobStatus) JobUpdateOption {
	return func(u *JobUpdate) {
		u.status = &s
	}
}

func WithAnalysisPrompt(prompt string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.analysisPrompt = &prompt
	}
}

func WithSnapshotID(id string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.snapshotID = &id
		u.clearSnapshotID = false
	}
}

func WithResults(results []json.RawMessage) JobUpdateOption {
	return func(u *JobUpdate) {
		cp := make([]json.RawMessage, len(results))
		copy(cp, results)
		u.results = &cp
		u.clearResults = false
	}
}

func WithReport(r *models.Report) JobUpdateOption {
	return func(u *JobUpdate) {
		u.report = r
		u.clearReport = r == nil
	}
}

func WithError(msg string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.errMsg = &msg
		u.clearError = false
	}
}

func WithCompletedAt(t time.Time) JobUpdateOption {
	return func(u *JobUpdate) {
		u.completedAt = &t
		u.clearCompletedAt = false
	}
}

func ClearSnapshotID() JobUpdateOption {
	return func(u *JobUpdate) {
		u.snapshotID = nil
		u.clearSnapshotID = true
	}
}

func ClearResults() JobUpdateOption {
	return func(u *JobUpdate) {
		u.results = nil
		u.clearResults = true
	}
}

func ClearReport() JobUpdateOption {
	return func(u *JobUpdate) {
		u.report = nil
		u.clearReport = true
	}
}

func ClearError() JobUpdateOption {
	return func(u *JobUpdate) {
		u.errMsg = nil
		u.clearError = true
	}
}

func ClearCompletedAt() JobUpdateOption {
	return func(u *JobUpdate) {
		u.completedAt = nil
		u.clearCompletedAt = true
	}
}

// Empty reports whether the update touches no field.
func (u *JobUpdate) Empty() bool {
	return u.status == nil && u.analysisPrompt == nil && u.snapshotID == nil &&
		u.results == nil && u.report == nil && u.errMsg == nil && u.completedAt == nil &&
		!u.clearSnapshotID && !u.clearResults && !u.clearReport && !u.clearError && !u.clearCompletedAt
}

// Status returns the target status, if the update sets one.
func (u *JobUpdate) Status() (models.JobStatus, bool) {
	if u.status == nil {
		return "", false
	}
	return *u.status, true
}

// Apply performs the update on an in-memory job with the same semantics as PatchJob.
func (u *JobUpdate) Apply(j *models.Job) {
	if u.status != nil {
		j.Status = *u.status
	}
	if u.analysisPrompt != nil {
		p := *u.analysisPrompt
		j.AnalysisPrompt = &p
	}
	switch {
	case u.snapshotID != nil:
		s := *u.snapshotID
		j.SnapshotID = &s
	case u.clearSnapshotID:
		j.SnapshotID = nil
	}
	switch {
	case u.results != nil:
		j.Results = append([]json.RawMessage{}, (*u.results)...)
	case u.clearResults:
		j.Results = nil
	}
	switch {
	case u.report != nil:
		r := *u.report
		j.Report = &r
	case u.clearReport:
		j.Report = nil
	}
	switch {
	case u.errMsg != nil:
		e := *u.errMsg
		j.Error = &e
	case u.clearError:
		j.Error = nil
	}
	switch {
	case u.completedAt != nil:
		t := *u.completedAt
		j.CompletedAt = &t
	case u.clearCompletedAt:
		j.CompletedAt = nil
	}
	j.UpdatedAt = time.Now().UTC()
}
