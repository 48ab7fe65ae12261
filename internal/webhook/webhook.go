// Package webhook receives scraper deliveries.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TariqKichawele/BrightData/internal/api/response"
	"github.com/TariqKichawele/BrightData/internal/store"
	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
)

// maxBodyBytes caps a single delivery.
const maxBodyBytes = 32 << 20

// Lifecycle is the part of the job controller the receiver drives.
type Lifecycle interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	AcceptResults(ctx context.Context, id uuid.UUID, results []json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, msg string) error
}

// Handler serves POST /api/webhook?jobId=<uuid>.
type Handler struct {
	jobs   Lifecycle
	secret string
}

// NewHandler creates a receiver. When secret is non-empty every delivery must
// carry "Authorization: Bearer <secret>".
func NewHandler(jobs Lifecycle, secret string) *Handler {
	return &Handler{jobs: jobs, secret: secret}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && !h.authorized(r) {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid webhook credentials", nil)
		return
	}

	rawID := strings.TrimSpace(r.URL.Query().Get("jobId"))
	if rawID == "" {
		response.Error(w, http.StatusBadRequest, "MISSING_JOB_ID", "jobId query parameter is required", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body", nil)
		return
	}
	results, err := Normalize(body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be valid JSON", nil)
		return
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return
	}

	log := slog.With("job_id", id)
	ctx := r.Context()

	if _, err := h.jobs.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("webhook.unknown_job")
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			return
		}
		log.Error("webhook.lookup_failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
		return
	}

	if err := h.jobs.AcceptResults(ctx, id, results); err != nil {
		log.Error("webhook.accept_failed", "error", err)
		h.recordFailure(ctx, log, id, fmt.Sprintf("webhook processing failed: %v", err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process webhook", nil)
		return
	}

	log.Info("webhook.accepted", "records", len(results), "bytes", len(body))
	response.JSON(w, map[string]any{
		"success": true,
		"job_id":  id,
		"records": len(results),
	})
}

// recordFailure marks the job failed. The caller already has an error to
// report, so a failure here is only logged.
func (h *Handler) recordFailure(ctx context.Context, log *slog.Logger, id uuid.UUID, msg string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := h.jobs.Fail(rctx, id, msg); err != nil {
		log.Error("webhook.record_failure_failed", "error", err, "original_error", msg)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

// Normalize turns a delivery body into raw result records. An array yields its
// elements; any other JSON value becomes a single record.
func Normalize(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, errors.New("body is not valid JSON")
	}
	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		if records == nil {
			records = []json.RawMessage{}
		}
		return records, nil
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}
