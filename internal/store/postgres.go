package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TariqKichawele/BrightData/internal/report"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, owner_id, original_prompt, analysis_prompt, snapshot_id, status,
	results, report, error, created_at, completed_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool      *pgxpool.Pool
	validator *report.Validator
}

// NewPostgresStore creates a new PostgresStore. Stored reports are re-validated
// on every read and write with v.
func NewPostgresStore(pool *pgxpool.Pool, v *report.Validator) *PostgresStore {
	return &PostgresStore{pool: pool, validator: v}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	results, err := encodeResults(job.Results)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	var reportJSON []byte
	if job.Report != nil {
		if reportJSON, err = s.encodeReport(job.Report); err != nil {
			return fmt.Errorf("create job: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scraping_jobs (id, owner_id, original_prompt, analysis_prompt, snapshot_id, status,
		   results, report, error, created_at, completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.OwnerID, job.OriginalPrompt, job.AnalysisPrompt, job.SnapshotID, string(job.Status),
		results, reportJSON, job.Error, job.CreatedAt, job.CompletedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scraping_jobs WHERE id = $1`, id)
	j, err := s.scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetJobBySnapshotID(ctx context.Context, snapshotID, ownerID string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM scraping_jobs
		 WHERE snapshot_id = $1 AND owner_id = $2
		 ORDER BY created_at DESC LIMIT 1`, snapshotID, ownerID)
	j, err := s.scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by snapshot: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobsByOwner(ctx context.Context, ownerID string) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM scraping_jobs WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// PatchJob writes only the fields named by opts and bumps updated_at. An
// update touching no field is a no-op. Concurrent patches are last-write-wins
// per column.
func (s *PostgresStore) PatchJob(ctx context.Context, id uuid.UUID, opts ...JobUpdateOption) error {
	u := NewJobUpdate(opts...)
	if u.Empty() {
		return nil
	}
	if u.report != nil {
		if _, err := s.validator.Validate(u.report); err != nil {
			return fmt.Errorf("patch job: %w", err)
		}
	}

	query, args, err := buildPatchQuery(id, u, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("patch job: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("patch job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteJob removes the job. Deleting a missing job is not an error.
func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scraping_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// buildPatchQuery renders the UPDATE for u. $1 is always the job id.
func buildPatchQuery(id uuid.UUID, u *JobUpdate, now time.Time) (string, []any, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, now}
	argIdx := 3

	set := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, v)
		argIdx++
	}
	null := func(col string) {
		sets = append(sets, col+" = NULL")
	}

	if u.status != nil {
		if !u.status.Valid() {
			return "", nil, fmt.Errorf("invalid status %q", *u.status)
		}
		set("status", string(*u.status))
	}
	if u.analysisPrompt != nil {
		set("analysis_prompt", *u.analysisPrompt)
	}
	switch {
	case u.snapshotID != nil:
		set("snapshot_id", *u.snapshotID)
	case u.clearSnapshotID:
		null("snapshot_id")
	}
	switch {
	case u.results != nil:
		b, err := encodeResults(*u.results)
		if err != nil {
			return "", nil, err
		}
		set("results", b)
	case u.clearResults:
		null("results")
	}
	switch {
	case u.report != nil:
		b, err := json.Marshal(u.report)
		if err != nil {
			return "", nil, fmt.Errorf("encode report: %w", err)
		}
		set("report", b)
	case u.clearReport:
		null("report")
	}
	switch {
	case u.errMsg != nil:
		set("error", *u.errMsg)
	case u.clearError:
		null("error")
	}
	switch {
	case u.completedAt != nil:
		set("completed_at", *u.completedAt)
	case u.clearCompletedAt:
		null("completed_at")
	}

	query := "UPDATE scraping_jobs SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	return query, args, nil
}

func (s *PostgresStore) scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j          models.Job
		status     string
		resultsRaw []byte
		reportRaw  []byte
	)
	if err := row.Scan(&j.ID, &j.OwnerID, &j.OriginalPrompt, &j.AnalysisPrompt, &j.SnapshotID, &status,
		&resultsRaw, &reportRaw, &j.Error, &j.CreatedAt, &j.CompletedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)

	results, err := decodeResults(resultsRaw)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	j.Results = results

	r, err := decodeReport(s.validator, reportRaw)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	j.Report = r
	return &j, nil
}

func (s *PostgresStore) encodeReport(r *models.Report) ([]byte, error) {
	if _, err := s.validator.Validate(r); err != nil {
		return nil, err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return b, nil
}

// encodeResults returns nil for absent results so the column stays NULL.
func encodeResults(results []json.RawMessage) ([]byte, error) {
	if results == nil {
		return nil, nil
	}
	b, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return b, nil
}

func decodeResults(raw []byte) ([]json.RawMessage, error) {
	if raw == nil {
		return nil, nil
	}
	var results []json.RawMessage
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if results == nil {
		results = []json.RawMessage{}
	}
	return results, nil
}

// decodeReport validates a stored report. A failure is never swallowed.
func decodeReport(v *report.Validator, raw []byte) (*models.Report, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	r, err := v.ValidateJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptReport, err)
	}
	return r, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
