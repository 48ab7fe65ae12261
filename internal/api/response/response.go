// Package response writes the JSON envelope shared by every endpoint.
//
// Success bodies are {"data": ...}, optionally with "meta" for pages.
// Failures are {"error": {"code", "message", "details"}}.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	Data any             `json:"data"`
	Meta *PaginationMeta `json:"meta,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// PaginationMeta describes one page of a job listing.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// Problem is a reusable error response: status, machine code and message.
type Problem struct {
	Status  int
	Code    string
	Message string
}

// Write sends p with optional details.
func (p Problem) Write(w http.ResponseWriter, details any) {
	Error(w, p.Status, p.Code, p.Message, details)
}

// Problems shared across handlers.
var (
	ProblemNotFound     = Problem{http.StatusNotFound, "NOT_FOUND", "Job not found"}
	ProblemMissingOwner = Problem{http.StatusBadRequest, "MISSING_OWNER_ID", "X-Owner-ID header is required"}
	ProblemInvalidJobID = Problem{http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id"}
	ProblemInternal     = Problem{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
)

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

// Accepted is used when the job moved on but work continues out of band.
func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	writeJSON(w, http.StatusOK, envelope{Data: data, Meta: &meta})
}

// Paginate cuts page (1-based) of size limit out of items. Pages past the end
// are empty, never nil.
func Paginate[T any](items []T, page, limit int) ([]T, PaginationMeta) {
	start := min((page-1)*limit, len(items))
	end := min(start+limit, len(items))
	out := make([]T, 0, end-start)
	out = append(out, items[start:end]...)
	return out, PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   len(items),
		HasNext: end < len(items),
	}
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "status", status, "error", err)
	}
}
