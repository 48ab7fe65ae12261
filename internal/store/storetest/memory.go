// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore implements store.Store on a map. Patches use the same
// semantics as the Postgres store via store.JobUpdate.Apply.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job

	// GetJobErr, when set, is returned by GetJob and GetJobBySnapshotID.
	GetJobErr error
	// PatchHook runs before each patch is applied; a non-nil error aborts it.
	PatchHook func(id uuid.UUID, u *store.JobUpdate) error

	patches []Patch
}

// Patch records one PatchJob call.
type Patch struct {
	ID     uuid.UUID
	Update *store.JobUpdate
}

func New() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]*models.Job)}
}

// Put seeds or replaces a job.
func (m *MemoryStore) Put(j *models.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = clone(j)
}

// Job returns a copy of the stored job, or nil.
func (m *MemoryStore) Job(id uuid.UUID) *models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	return clone(j)
}

// Patches returns every patch attempted so far, including failed ones.
func (m *MemoryStore) Patches() []Patch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Patch(nil), m.patches...)
}

// Statuses returns the target status of every patch that set one, in order.
func (m *MemoryStore) Statuses() []models.JobStatus {
	var out []models.JobStatus
	for _, p := range m.Patches() {
		if s, ok := p.Update.Status(); ok {
			out = append(out, s)
		}
	}
	return out
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateJob(_ context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return store.ErrDuplicateKey
	}
	m.jobs[j.ID] = clone(j)
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetJobErr != nil {
		return nil, m.GetJobErr
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(j), nil
}

func (m *MemoryStore) GetJobBySnapshotID(_ context.Context, snapshotID, ownerID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetJobErr != nil {
		return nil, m.GetJobErr
	}
	var found *models.Job
	for _, j := range m.jobs {
		if j.SnapshotID != nil && *j.SnapshotID == snapshotID && j.OwnerID == ownerID {
			if found == nil || j.CreatedAt.After(found.CreatedAt) {
				found = j
			}
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return clone(found), nil
}

func (m *MemoryStore) PatchJob(_ context.Context, id uuid.UUID, opts ...store.JobUpdateOption) error {
	u := store.NewJobUpdate(opts...)

	m.mu.Lock()
	m.patches = append(m.patches, Patch{ID: id, Update: u})
	hook := m.PatchHook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(id, u); err != nil {
			return err
		}
	}

	if u.Empty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Apply(j)
	return nil
}

func (m *MemoryStore) ListJobsByOwner(_ context.Context, ownerID string) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Job{}
	for _, j := range m.jobs {
		if j.OwnerID == ownerID {
			out = append(out, clone(j))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func clone(j *models.Job) *models.Job {
	c := *j
	if j.Results != nil {
		c.Results = append([]json.RawMessage{}, j.Results...)
	}
	if j.Report != nil {
		r := *j.Report
		c.Report = &r
	}
	if j.AnalysisPrompt != nil {
		p := *j.AnalysisPrompt
		c.AnalysisPrompt = &p
	}
	if j.SnapshotID != nil {
		s := *j.SnapshotID
		c.SnapshotID = &s
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

var _ store.Store = (*MemoryStore)(nil)
