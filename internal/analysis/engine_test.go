package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TariqKichawele/BrightData/internal/ai"
	"github.com/TariqKichawele/BrightData/internal/ai/mock"
	"github.com/TariqKichawele/BrightData/internal/cache"
	"github.com/TariqKichawele/BrightData/internal/report"
	"github.com/TariqKichawele/BrightData/internal/report/reporttest"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/internal/store/storetest"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher captures published job events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []cache.JobEvent
	err    error
}

func (p *recordingPublisher) PublishJobEvent(_ context.Context, ev cache.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) statuses() []models.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.JobStatus
	for _, ev := range p.events {
		out = append(out, ev.Status)
	}
	return out
}

func seedJob(st *storetest.MemoryStore, status models.JobStatus, results ...string) *models.Job {
	j := &models.Job{
		ID:             uuid.New(),
		OwnerID:        "user_1",
		OriginalPrompt: "how visible is acme?",
		Status:         status,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, r := range results {
		j.Results = append(j.Results, json.RawMessage(r))
	}
	st.Put(j)
	return j
}

const sampleRecord = `{"url":"https://chatgpt.com/","prompt":"how visible is acme?","answer_text":"Acme is a company.","citations":[{"url":"https://news.example.com/acme","title":"Acme news","domain":"news.example.com"}]}`

func newTestEngine(st store.Store, p models.AIProvider, pub cache.Publisher) *Engine {
	return NewEngine(st, p, report.MustNewValidator(), pub, time.Second)
}

func TestRun_Success(t *testing.T) {
	st := storetest.New()
	pub := &recordingPublisher{}
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)

	var seen models.ReportRequest
	provider := &mock.MockProvider{Name_: "spy", GenerateReportFunc: func(_ context.Context, req models.ReportRequest) (json.RawMessage, error) {
		seen = req
		return json.RawMessage(reporttest.ValidJSON), nil
	}}

	out := newTestEngine(st, provider, pub).Run(context.Background(), job.ID)
	require.True(t, out.OK(), "outcome: %s %s", out.Kind, out.Detail)
	require.NotNil(t, out.Report)
	assert.NoError(t, out.RecordErr)

	got := st.Job(job.ID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, out.Report, got.Report)
	assert.Nil(t, got.Error)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.AnalysisPrompt)
	assert.Equal(t, *got.AnalysisPrompt, seen.Prompt)
	assert.Contains(t, seen.Prompt, "Acme is a company.")
	assert.Contains(t, seen.SystemPrompt, "JSON Schema")

	assert.Equal(t, []models.JobStatus{models.JobStatusAnalyzing, models.JobStatusCompleted}, st.Statuses())
	assert.Equal(t, []models.JobStatus{models.JobStatusAnalyzing, models.JobStatusCompleted}, pub.statuses())
}

func TestRun_ReportAndCompletionWrittenTogether(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)

	newTestEngine(st, mock.NewMockProvider(), nil).Run(context.Background(), job.ID)

	patches := st.Patches()
	last := patches[len(patches)-1].Update
	probe := &models.Job{}
	last.Apply(probe)
	assert.Equal(t, models.JobStatusCompleted, probe.Status)
	assert.NotNil(t, probe.Report)
	assert.NotNil(t, probe.CompletedAt)
}

func TestRun_NotFound(t *testing.T) {
	st := storetest.New()
	provider := mock.NewFailingProvider(errors.New("must not be called"))

	out := newTestEngine(st, provider, nil).Run(context.Background(), uuid.New())
	assert.Equal(t, OutcomeNotFound, out.Kind)
	assert.ErrorIs(t, out.Err, store.ErrNotFound)
	assert.Empty(t, st.Patches())
}

func TestRun_MissingResults(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusAnalyzing)

	called := false
	provider := &mock.MockProvider{Name_: "spy", GenerateReportFunc: func(context.Context, models.ReportRequest) (json.RawMessage, error) {
		called = true
		return nil, nil
	}}

	out := newTestEngine(st, provider, nil).Run(context.Background(), job.ID)
	assert.Equal(t, OutcomeMissingResults, out.Kind)
	assert.False(t, called)

	got := st.Job(job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, MsgNoResults, *got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestRun_ProviderFailure(t *testing.T) {
	st := storetest.New()
	pub := &recordingPublisher{}
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)

	out := newTestEngine(st, mock.NewFailingProvider(ai.ErrProviderUnavailable), pub).Run(context.Background(), job.ID)
	assert.Equal(t, OutcomeExternalCallFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ai.ErrProviderUnavailable)

	got := st.Job(job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.True(t, strings.HasPrefix(*got.Error, "analysis failed:"))
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Report)
	// The prompt is persisted before the AI call, so smart retry stays possible.
	assert.True(t, got.SmartRetry().CanRetryAnalysisOnly)
	assert.Equal(t, models.JobStatusFailed, pub.statuses()[len(pub.statuses())-1])
}

func TestRun_Timeout(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)

	e := NewEngine(st, mock.NewTimeoutProvider(), report.MustNewValidator(), nil, 20*time.Millisecond)
	start := time.Now()
	out := e.Run(context.Background(), job.ID)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, OutcomeExternalCallFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ai.ErrInferenceTimeout)
	assert.Equal(t, models.JobStatusFailed, st.Job(job.ID).Status)
}

func TestRun_ValidationFailure(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)

	out := newTestEngine(st, mock.NewMalformedProvider(), nil).Run(context.Background(), job.ID)
	assert.Equal(t, OutcomeValidationFailed, out.Kind)
	assert.ErrorIs(t, out.Err, report.ErrInvalidReport)
	assert.Nil(t, out.Report)

	got := st.Job(job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.True(t, strings.HasPrefix(*got.Error, "schema validation failed:"))
	assert.Nil(t, got.Report)
}

func TestRun_RecordFailureDoesNotMaskCause(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)
	dbDown := errors.New("connection reset")
	st.PatchHook = func(_ uuid.UUID, u *store.JobUpdate) error {
		if s, ok := u.Status(); ok && s == models.JobStatusFailed {
			return dbDown
		}
		return nil
	}

	out := newTestEngine(st, mock.NewFailingProvider(ai.ErrProviderUnavailable), nil).Run(context.Background(), job.ID)
	assert.Equal(t, OutcomeExternalCallFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ai.ErrProviderUnavailable)
	assert.ErrorIs(t, out.RecordErr, dbDown)
	assert.NotErrorIs(t, out.Err, dbDown)
}

func TestRun_StoreFailureMarkingAnalyzing(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusRunning, sampleRecord)
	st.PatchHook = func(_ uuid.UUID, u *store.JobUpdate) error {
		if s, ok := u.Status(); ok && s == models.JobStatusAnalyzing {
			return errors.New("write failed")
		}
		return nil
	}

	out := newTestEngine(st, mock.NewMockProvider(), nil).Run(context.Background(), job.ID)
	assert.Equal(t, OutcomeStoreFailed, out.Kind)
	assert.Equal(t, models.JobStatusFailed, st.Job(job.ID).Status)
}

func TestRun_StoreReadFailure(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)
	st.GetJobErr = errors.New("pool exhausted")

	out := newTestEngine(st, mock.NewMockProvider(), nil).Run(context.Background(), job.ID)
	assert.Equal(t, OutcomeStoreFailed, out.Kind)

	st.GetJobErr = nil
	assert.Equal(t, models.JobStatusFailed, st.Job(job.ID).Status)
}

func TestRun_OverwritesAnalysisPrompt(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)
	old := "stale prompt"
	job.AnalysisPrompt = &old
	st.Put(job)

	newTestEngine(st, mock.NewMockProvider(), nil).Run(context.Background(), job.ID)

	got := st.Job(job.ID)
	require.NotNil(t, got.AnalysisPrompt)
	assert.NotEqual(t, old, *got.AnalysisPrompt)
	assert.Equal(t, BuildPrompt(job.Results), *got.AnalysisPrompt)
}

func TestRun_PublishFailureIgnored(t *testing.T) {
	st := storetest.New()
	job := seedJob(st, models.JobStatusAnalyzing, sampleRecord)
	pub := &recordingPublisher{err: errors.New("redis down")}

	out := newTestEngine(st, mock.NewMockProvider(), pub).Run(context.Background(), job.ID)
	assert.True(t, out.OK())
	assert.Equal(t, models.JobStatusCompleted, st.Job(job.ID).Status)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ok", OutcomeOK.String())
	assert.Equal(t, "validation_failed", OutcomeValidationFailed.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
