package mock

import (
	"context"
	"encoding/json"

	"github.com/TariqKichawele/BrightData/internal/ai"
	"github.com/TariqKichawele/BrightData/internal/report/reporttest"
	"github.com/TariqKichawele/BrightData/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_              string
	GenerateReportFunc func(ctx context.Context, req models.ReportRequest) (json.RawMessage, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) GenerateReport(ctx context.Context, req models.ReportRequest) (json.RawMessage, error) {
	if m.GenerateReportFunc != nil {
		return m.GenerateReportFunc(ctx, req)
	}
	return json.RawMessage(reporttest.ValidJSON), nil
}

// NewMockProvider returns a MockProvider that answers with a schema-valid report.
func NewMockProvider() *MockProvider {
	return &MockProvider{Name_: "mock"}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateReportFunc: func(_ context.Context, _ models.ReportRequest) (json.RawMessage, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateReportFunc: func(ctx context.Context, _ models.ReportRequest) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ai.ErrInferenceTimeout
		},
	}
}

// NewMalformedProvider returns well-formed JSON that does not match the report schema.
func NewMalformedProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-malformed",
		GenerateReportFunc: func(_ context.Context, _ models.ReportRequest) (json.RawMessage, error) {
			return json.RawMessage(reporttest.InvalidJSON), nil
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
