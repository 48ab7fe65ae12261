package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TariqKichawele/BrightData/internal/ai/llm"
	"github.com/TariqKichawele/BrightData/internal/config"
	"github.com/TariqKichawele/BrightData/pkg/models"
)

// Provider implements models.AIProvider using Ollama's /api/generate endpoint.
type Provider struct {
	cfg        config.OllamaConfig
	httpClient *http.Client
}

func NewProvider(cfg config.OllamaConfig) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, httpClient: &http.Client{}}
}

func (p *Provider) Name() string { return "ollama" }

type generateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (p *Provider) GenerateReport(ctx context.Context, req models.ReportRequest) (json.RawMessage, error) {
	start := time.Now()
	b, err := json.Marshal(generateRequest{
		Model:   p.cfg.Model,
		System:  req.SystemPrompt,
		Prompt:  req.Prompt,
		Stream:  false,
		Format:  "json",
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, llm.ClassifyTransportError(ctx, p.Name(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.ClassifyTransportError(ctx, p.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, llm.StatusError(p.Name(), resp.StatusCode, data)
	}

	var gr generateResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %v", llm.ErrInvalidResponse, err)
	}
	if !gr.Done {
		return nil, fmt.Errorf("%w: ollama response truncated", llm.ErrInvalidResponse)
	}

	out, err := llm.ExtractJSON(gr.Response)
	if err != nil {
		return nil, err
	}
	slog.Info("llm.report.ok", "provider", p.Name(), "model", p.cfg.Model,
		"bytes", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

var _ models.AIProvider = (*Provider)(nil)
