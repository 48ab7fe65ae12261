package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TariqKichawele/BrightData/internal/ai/mock"
	"github.com/TariqKichawele/BrightData/internal/analysis"
	"github.com/TariqKichawele/BrightData/internal/cache"
	"github.com/TariqKichawele/BrightData/internal/jobs"
	"github.com/TariqKichawele/BrightData/internal/report"
	"github.com/TariqKichawele/BrightData/internal/scraper"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/internal/store/storetest"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

type fakeScraper struct {
	snapshot string
	err      error
	prompts  []string
	// onTrigger runs before Trigger returns.
	onTrigger func(id uuid.UUID)
}

func (s *fakeScraper) Trigger(_ context.Context, id uuid.UUID, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.onTrigger != nil {
		s.onTrigger(id)
	}
	return s.snapshot, s.err
}

// inlineDispatcher runs the analysis before Dispatch returns.
type inlineDispatcher struct {
	engine *analysis.Engine
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	d.engine.Run(ctx, id)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []cache.JobEvent
}

func (l *eventLog) PublishJobEvent(_ context.Context, ev cache.JobEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) statuses() []models.JobStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.JobStatus
	for _, ev := range l.events {
		out = append(out, ev.Status)
	}
	return out
}

type harness struct {
	store      *storetest.MemoryStore
	provider   *mock.MockProvider
	engine     *analysis.Engine
	dispatcher *recordingDispatcher
	scraper    *fakeScraper
	events     *eventLog
	ctrl       *jobs.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:      storetest.New(),
		provider:   mock.NewMockProvider(),
		dispatcher: &recordingDispatcher{},
		scraper:    &fakeScraper{snapshot: "s_m1a2b3"},
		events:     &eventLog{},
	}
	h.engine = analysis.NewEngine(h.store, h.provider, report.MustNewValidator(), h.events, time.Second)
	h.ctrl = jobs.NewController(h.store, h.engine, h.dispatcher, h.scraper, h.events)
	return h
}

// checkInvariants asserts the job-level invariants that must hold after every transition.
func checkInvariants(t *testing.T, j *models.Job) {
	t.Helper()
	require.NotNil(t, j)
	if j.Report != nil {
		_, err := report.MustNewValidator().Validate(j.Report)
		assert.NoError(t, err, "stored report must validate")
	}
	if j.Status == models.JobStatusCompleted {
		assert.NotNil(t, j.Report, "completed job has a report")
		assert.Nil(t, j.Error, "completed job has no error")
	}
	if j.Status == models.JobStatusFailed {
		assert.NotNil(t, j.CompletedAt, "failed job has completedAt")
	}
	if j.Status == models.JobStatusPending || j.Status == models.JobStatusRunning {
		assert.Nil(t, j.Results, "no raw results while %s", j.Status)
	}
}

func acmeResults() []json.RawMessage {
	return []json.RawMessage{json.RawMessage(`{"url":"acme.com","html":"<html/>"}`)}
}

// driveToAnalyzing creates a job and walks it through running into analyzing.
func (h *harness) driveToAnalyzing(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "analyze acme.com")
	require.NoError(t, err)
	require.NoError(t, h.ctrl.MarkRunning(ctx, job.ID, "s_1"))
	require.NoError(t, h.ctrl.AcceptResults(ctx, job.ID, acmeResults()))
	return job.ID
}

// --- lifecycle ---

func TestLifecycle_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	job, err := h.ctrl.Create(ctx, "user_1", "analyze acme.com")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, h.store.Job(job.ID).Status)
	checkInvariants(t, h.store.Job(job.ID))

	require.NoError(t, h.ctrl.MarkRunning(ctx, job.ID, "s_1"))
	running := h.store.Job(job.ID)
	assert.Equal(t, models.JobStatusRunning, running.Status)
	require.NotNil(t, running.SnapshotID)
	assert.Equal(t, "s_1", *running.SnapshotID)
	checkInvariants(t, running)

	require.NoError(t, h.ctrl.AcceptResults(ctx, job.ID, acmeResults()))
	analyzing := h.store.Job(job.ID)
	assert.Equal(t, models.JobStatusAnalyzing, analyzing.Status)
	assert.Len(t, analyzing.Results, 1)
	assert.Equal(t, []uuid.UUID{job.ID}, h.dispatcher.ids)
	checkInvariants(t, analyzing)

	out := h.engine.Run(ctx, job.ID)
	require.True(t, out.OK(), "outcome: %v", out.Err)

	done := h.store.Job(job.ID)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.NotNil(t, done.Report)
	assert.NotNil(t, done.CompletedAt)
	checkInvariants(t, done)

	assert.Equal(t, []models.JobStatus{
		models.JobStatusPending,
		models.JobStatusRunning,
		models.JobStatusAnalyzing,
		models.JobStatusAnalyzing,
		models.JobStatusCompleted,
	}, h.events.statuses())
}

func TestLifecycle_AnalysisFails(t *testing.T) {
	h := newHarness(t)
	h.provider.GenerateReportFunc = func(context.Context, models.ReportRequest) (json.RawMessage, error) {
		return nil, errors.New("model overloaded")
	}
	id := h.driveToAnalyzing(t)

	out := h.engine.Run(context.Background(), id)
	assert.Equal(t, analysis.OutcomeExternalCallFailed, out.Kind)

	j := h.store.Job(id)
	assert.Equal(t, models.JobStatusFailed, j.Status)
	require.NotNil(t, j.Error)
	assert.Contains(t, *j.Error, "model overloaded")
	assert.NotNil(t, j.CompletedAt)
	assert.Nil(t, j.Report)
	checkInvariants(t, j)
}

func TestRetryAnalysis_AfterProviderFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.provider.GenerateReportFunc = func(context.Context, models.ReportRequest) (json.RawMessage, error) {
		return nil, errors.New("model overloaded")
	}
	id := h.driveToAnalyzing(t)
	require.False(t, h.engine.Run(ctx, id).OK())

	elig, err := h.ctrl.Eligibility(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SmartRetryEligibility{
		CanRetryAnalysisOnly: true,
		HasScrapingData:      true,
		HasAnalysisPrompt:    true,
	}, elig)

	var during *models.Job
	h.provider.GenerateReportFunc = func(context.Context, models.ReportRequest) (json.RawMessage, error) {
		during = h.store.Job(id)
		return mock.NewMockProvider().GenerateReport(ctx, models.ReportRequest{})
	}

	out, err := h.ctrl.RetryAnalysis(ctx, id)
	require.NoError(t, err)
	require.True(t, out.OK(), "outcome: %v", out.Err)

	require.NotNil(t, during)
	assert.Equal(t, models.JobStatusAnalyzing, during.Status)
	assert.Nil(t, during.Error)
	assert.Nil(t, during.CompletedAt)
	assert.Len(t, during.Results, 1)

	j := h.store.Job(id)
	assert.Equal(t, models.JobStatusCompleted, j.Status)
	assert.NotNil(t, j.Report)
	assert.Nil(t, j.Error)
	checkInvariants(t, j)
}

func TestRetryAnalysis_IneligibleLeavesJobUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "analyze acme.com")
	require.NoError(t, err)
	before := h.store.Job(job.ID)

	elig, err := h.ctrl.Eligibility(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, elig.CanRetryAnalysisOnly)

	_, err = h.ctrl.RetryAnalysis(ctx, job.ID)
	assert.ErrorIs(t, err, jobs.ErrSmartRetryIneligible)
	assert.Empty(t, h.store.Patches())
	assert.Equal(t, before, h.store.Job(job.ID))
}

// --- properties ---

func TestInvariants_HoldAcrossLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	failing := true
	h.provider.GenerateReportFunc = func(context.Context, models.ReportRequest) (json.RawMessage, error) {
		if failing {
			return json.RawMessage(`{"meta":{}}`), nil
		}
		return mock.NewMockProvider().GenerateReport(ctx, models.ReportRequest{})
	}

	id := h.driveToAnalyzing(t)
	checkInvariants(t, h.store.Job(id))

	out := h.engine.Run(ctx, id)
	assert.Equal(t, analysis.OutcomeValidationFailed, out.Kind)
	checkInvariants(t, h.store.Job(id))

	failing = false
	_, err := h.ctrl.RetryAnalysis(ctx, id)
	require.NoError(t, err)
	checkInvariants(t, h.store.Job(id))

	_, err = h.ctrl.RetryFull(ctx, id)
	require.NoError(t, err)
	checkInvariants(t, h.store.Job(id))

	_, err = h.ctrl.StartScrape(ctx, id)
	require.NoError(t, err)
	checkInvariants(t, h.store.Job(id))
}

func TestEligibility_DerivedForEveryStatus(t *testing.T) {
	prompt := "analysis prompt"
	empty := ""
	statuses := []models.JobStatus{
		models.JobStatusPending, models.JobStatusRunning, models.JobStatusAnalyzing,
		models.JobStatusCompleted, models.JobStatusFailed,
	}
	cases := []struct {
		name    string
		results []json.RawMessage
		prompt  *string
		want    bool
	}{
		{"results and prompt", acmeResults(), &prompt, true},
		{"no results", nil, &prompt, false},
		{"empty results", []json.RawMessage{}, &prompt, false},
		{"no prompt", acmeResults(), nil, false},
		{"blank prompt", acmeResults(), &empty, false},
	}

	for _, status := range statuses {
		for _, tc := range cases {
			t.Run(string(status)+"/"+tc.name, func(t *testing.T) {
				h := newHarness(t)
				id := uuid.New()
				h.store.Put(&models.Job{
					ID: id, OwnerID: "user_1", OriginalPrompt: "p", Status: status,
					Results: tc.results, AnalysisPrompt: tc.prompt, CreatedAt: time.Now(),
				})
				elig, err := h.ctrl.Eligibility(context.Background(), id)
				require.NoError(t, err)
				assert.Equal(t, tc.want, elig.CanRetryAnalysisOnly)
			})
		}
	}
}

func TestEligibility_MissingJob(t *testing.T) {
	h := newHarness(t)
	elig, err := h.ctrl.Eligibility(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.SmartRetryEligibility{}, elig)
}

func TestRetryFull_ResetsFromAnyStatus(t *testing.T) {
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusRunning, models.JobStatusAnalyzing,
		models.JobStatusCompleted, models.JobStatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			prompt := "kept"
			snap := "s_old"
			msg := "old error"
			done := time.Now().UTC()
			r, err := report.MustNewValidator().ValidateJSON([]byte(mockReport(t)))
			require.NoError(t, err)

			id := uuid.New()
			h.store.Put(&models.Job{
				ID: id, OwnerID: "user_1", OriginalPrompt: "p", Status: status,
				AnalysisPrompt: &prompt, SnapshotID: &snap, Results: acmeResults(),
				Report: r, Error: &msg, CompletedAt: &done, CreatedAt: done,
			})

			got, err := h.ctrl.RetryFull(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusPending, got.Status)
			assert.Nil(t, got.Results)
			assert.Nil(t, got.Report)
			assert.Nil(t, got.Error)
			assert.Nil(t, got.CompletedAt)
			assert.Nil(t, got.SnapshotID)
			require.NotNil(t, got.AnalysisPrompt)
			assert.Equal(t, "kept", *got.AnalysisPrompt)
			checkInvariants(t, got)
		})
	}
}

func mockReport(t *testing.T) string {
	t.Helper()
	raw, err := mock.NewMockProvider().GenerateReport(context.Background(), models.ReportRequest{})
	require.NoError(t, err)
	return string(raw)
}

// --- operations ---

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.Create(ctx, "", "prompt")
	assert.ErrorIs(t, err, jobs.ErrOwnerRequired)

	_, err = h.ctrl.Create(ctx, "user_1", "   ")
	assert.ErrorIs(t, err, jobs.ErrPromptRequired)

	job, err := h.ctrl.Create(ctx, "user_1", "analyze acme.com")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, "analyze acme.com", job.OriginalPrompt)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestMarkRunning_OnlyFromPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.driveToAnalyzing(t)

	err := h.ctrl.MarkRunning(ctx, id, "s_2")
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
	assert.Equal(t, models.JobStatusAnalyzing, h.store.Job(id).Status)

	assert.ErrorIs(t, h.ctrl.MarkRunning(ctx, uuid.New(), "s"), store.ErrNotFound)
}

func TestMarkRunning_ClearsError(t *testing.T) {
	h := newHarness(t)
	msg := "previous trigger failed"
	id := uuid.New()
	h.store.Put(&models.Job{ID: id, OwnerID: "u", OriginalPrompt: "p", Status: models.JobStatusPending, Error: &msg})

	require.NoError(t, h.ctrl.MarkRunning(context.Background(), id, "s_1"))
	assert.Nil(t, h.store.Job(id).Error)
}

func TestStartScrape_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "analyze acme.com")
	require.NoError(t, err)

	got, err := h.ctrl.StartScrape(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	require.NotNil(t, got.SnapshotID)
	assert.Equal(t, "s_m1a2b3", *got.SnapshotID)
	assert.Equal(t, []string{"analyze acme.com"}, h.scraper.prompts)
}

func TestStartScrape_TriggerFailureFailsJob(t *testing.T) {
	h := newHarness(t)
	h.scraper.err = scraper.ErrTriggerRejected
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "analyze acme.com")
	require.NoError(t, err)

	_, err = h.ctrl.StartScrape(ctx, job.ID)
	assert.ErrorIs(t, err, scraper.ErrTriggerRejected)

	j := h.store.Job(job.ID)
	assert.Equal(t, models.JobStatusFailed, j.Status)
	require.NotNil(t, j.Error)
	assert.Contains(t, *j.Error, "scrape trigger failed")
	assert.NotNil(t, j.CompletedAt)
	assert.Nil(t, j.SnapshotID)
}

func TestStartScrape_ResultsBeforeTriggerReturns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ctrl := jobs.NewController(h.store, h.engine, &inlineDispatcher{engine: h.engine}, h.scraper, h.events)
	h.scraper.onTrigger = func(id uuid.UUID) {
		// Webhook delivery racing ahead of the trigger response.
		require.NoError(t, h.store.PatchJob(ctx, id, store.WithStatus(models.JobStatusRunning)))
		require.NoError(t, ctrl.AcceptResults(ctx, id, acmeResults()))
	}
	job, err := ctrl.Create(ctx, "user_1", "analyze acme.com")
	require.NoError(t, err)

	got, err := ctrl.StartScrape(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.Report)
	assert.Nil(t, got.Error)
	require.NotNil(t, got.SnapshotID)
	assert.Equal(t, "s_m1a2b3", *got.SnapshotID)
	checkInvariants(t, h.store.Job(job.ID))
	assert.NotContains(t, h.store.Statuses(), models.JobStatusFailed)
}

func TestStartScrape_MarkRunningStoreFailureFailsJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "analyze acme.com")
	require.NoError(t, err)
	h.store.PatchHook = func(_ uuid.UUID, u *store.JobUpdate) error {
		if s, ok := u.Status(); ok && s == models.JobStatusRunning {
			return errors.New("write failed")
		}
		return nil
	}

	_, err = h.ctrl.StartScrape(ctx, job.ID)
	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, h.store.Job(job.ID).Status)
}

func TestStartScrape_RequiresPending(t *testing.T) {
	h := newHarness(t)
	id := h.driveToAnalyzing(t)

	_, err := h.ctrl.StartScrape(context.Background(), id)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
	assert.Empty(t, h.scraper.prompts)
}

func TestStartScrape_Disabled(t *testing.T) {
	st := storetest.New()
	ctrl := jobs.NewController(st, nil, &recordingDispatcher{}, nil, nil)
	assert.False(t, ctrl.ScraperEnabled())

	_, err := ctrl.StartScrape(context.Background(), uuid.New())
	assert.ErrorIs(t, err, jobs.ErrScraperDisabled)
}

func TestAcceptResults_DispatchFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = errors.New("queue full")
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "p")
	require.NoError(t, err)
	require.NoError(t, h.ctrl.MarkRunning(ctx, job.ID, "s"))

	err = h.ctrl.AcceptResults(ctx, job.ID, acmeResults())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
	// Results are already stored; the caller records the failure.
	assert.Equal(t, models.JobStatusAnalyzing, h.store.Job(job.ID).Status)
}

func TestAcceptResults_StoreFailureSkipsDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "p")
	require.NoError(t, err)
	h.store.PatchHook = func(uuid.UUID, *store.JobUpdate) error { return errors.New("db down") }

	err = h.ctrl.AcceptResults(ctx, job.ID, acmeResults())
	require.Error(t, err)
	assert.Empty(t, h.dispatcher.ids)
}

func TestAcceptResults_ClearsPreviousError(t *testing.T) {
	h := newHarness(t)
	msg := "stale"
	id := uuid.New()
	h.store.Put(&models.Job{ID: id, OwnerID: "u", OriginalPrompt: "p", Status: models.JobStatusRunning, Error: &msg})

	require.NoError(t, h.ctrl.AcceptResults(context.Background(), id, acmeResults()))
	assert.Nil(t, h.store.Job(id).Error)
}

func TestRetryAnalysis_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.RetryAnalysis(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFail_SetsCompletedAt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "p")
	require.NoError(t, err)

	require.NoError(t, h.ctrl.Fail(ctx, job.ID, "boom"))
	j := h.store.Job(job.ID)
	assert.Equal(t, models.JobStatusFailed, j.Status)
	assert.Equal(t, "boom", *j.Error)
	checkInvariants(t, j)

	assert.ErrorIs(t, h.ctrl.Fail(ctx, uuid.New(), "x"), store.ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.ctrl.Create(ctx, "user_1", "first")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	b, err := h.ctrl.Create(ctx, "user_1", "second")
	require.NoError(t, err)
	_, err = h.ctrl.Create(ctx, "user_2", "other")
	require.NoError(t, err)

	list, err := h.ctrl.ListByOwner(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	_, err = h.ctrl.ListByOwner(ctx, "")
	assert.ErrorIs(t, err, jobs.ErrOwnerRequired)

	require.NoError(t, h.ctrl.Delete(ctx, a.ID))
	require.NoError(t, h.ctrl.Delete(ctx, a.ID))
	_, err = h.ctrl.Get(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetBySnapshotID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job, err := h.ctrl.Create(ctx, "user_1", "p")
	require.NoError(t, err)
	require.NoError(t, h.ctrl.MarkRunning(ctx, job.ID, "s_find_me"))

	got, err := h.ctrl.GetBySnapshotID(ctx, "s_find_me", "user_1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = h.ctrl.GetBySnapshotID(ctx, "s_find_me", "user_2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
