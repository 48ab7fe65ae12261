// Package models contains shared data models used across the service.
package models

import (
	"context"
	"encoding/json"
)

// AIProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly; inject this interface.
type AIProvider interface {
	// GenerateReport turns an analysis prompt into a JSON document that should
	// match the report schema. Callers must validate the result.
	GenerateReport(ctx context.Context, req ReportRequest) (json.RawMessage, error)
	// Name returns the provider identifier (e.g., "openai", "gemini").
	Name() string
}

// ReportRequest is the input to a report generation call.
type ReportRequest struct {
	SystemPrompt string
	Prompt       string
}
