// Package scraper triggers the external scraping provider.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/TariqKichawele/BrightData/internal/config"
	"github.com/google/uuid"
)

// Sentinel errors for scraper trigger failures.
var (
	ErrScraperUnreachable = errors.New("scraper unreachable")
	ErrTriggerRejected    = errors.New("scrape trigger rejected")
)

// TargetURL is the chat surface the dataset scrapes.
const TargetURL = "https://chatgpt.com/"

// Client starts scrapes. Results arrive later on the webhook.
type Client interface {
	Trigger(ctx context.Context, jobID uuid.UUID, prompt string) (snapshotID string, err error)
}

// HTTPClient implements Client using the Bright Data dataset trigger API.
type HTTPClient struct {
	baseURL       string
	token         string
	datasetID     string
	publicURL     string
	webhookSecret string
	client        *http.Client
}

// NewHTTPClient creates a trigger client. publicURL is this service's externally
// reachable base URL; the webhook endpoint is derived from it.
func NewHTTPClient(cfg config.ScraperConfig, publicURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:       cfg.BaseURL,
		token:         cfg.APIToken,
		datasetID:     cfg.DatasetID,
		publicURL:     publicURL,
		webhookSecret: cfg.WebhookSecret,
		client:        &http.Client{Timeout: cfg.Timeout},
	}
}

type triggerInput struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

func (c *HTTPClient) Trigger(ctx context.Context, jobID uuid.UUID, prompt string) (string, error) {
	body, err := json.Marshal([]triggerInput{{URL: TargetURL, Prompt: prompt}})
	if err != nil {
		return "", fmt.Errorf("encoding trigger body: %w", err)
	}

	params := url.Values{
		"dataset_id":           {c.datasetID},
		"endpoint":             {WebhookURL(c.publicURL, jobID)},
		"format":               {"json"},
		"uncompressed_webhook": {"true"},
		"include_errors":       {"true"},
	}
	if c.webhookSecret != "" {
		params.Set("auth_header", "Bearer "+c.webhookSecret)
	}
	u := fmt.Sprintf("%s/datasets/v3/trigger?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrTriggerRejected, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var tr triggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: decoding trigger response: %v", ErrTriggerRejected, err)
	}
	if tr.SnapshotID == "" {
		return "", fmt.Errorf("%w: response has no snapshot_id", ErrTriggerRejected)
	}
	return tr.SnapshotID, nil
}

// WebhookURL is the delivery endpoint the scraper posts results for jobID to.
func WebhookURL(publicURL string, jobID uuid.UUID) string {
	return publicURL + "/api/webhook?" + url.Values{"jobId": {jobID.String()}}.Encode()
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrScraperUnreachable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout: %v", ErrScraperUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrScraperUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
