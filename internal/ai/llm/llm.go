// Package llm holds helpers shared by the report-generating providers.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// maxErrBody caps how much of an upstream error body ends up in error messages.
const maxErrBody = 512

// ExtractJSON strips markdown code fences from model output and checks that
// what remains is a single JSON document.
func ExtractJSON(content string) (json.RawMessage, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("%w: content is not valid JSON", ErrInvalidResponse)
	}
	return json.RawMessage(s), nil
}

// ClassifyTransportError maps a failed call into the provider error taxonomy.
func ClassifyTransportError(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrInferenceTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, provider, err)
}

// StatusError describes a non-2xx upstream response.
func StatusError(provider string, status int, body []byte) error {
	if len(body) > maxErrBody {
		body = body[:maxErrBody]
	}
	return fmt.Errorf("%w: %s status %d: %s", ErrProviderUnavailable, provider, status, strings.TrimSpace(string(body)))
}
