package openai

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

// Provider implements models.AIProvider against any OpenAI-compatible
// chat/completions endpoint. vLLM is served through the same code.
type Provider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

// NewProvider targets the OpenAI API.
func NewProvider(cfg config.OpenAIConfig) *Provider {
	return newProvider("openai", cfg.BaseURL, cfg.APIKey, cfg.Model)
}

// NewVLLMProvider targets a vLLM server's OpenAI-compatible API.
func NewVLLMProvider(cfg config.VLLMConfig) *Provider {
	return newProvider("vllm", cfg.BaseURL, "", cfg.Model)
}

func newProvider(name, baseURL, apiKey, model string) *Provider {
	return &Provider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		log:        slog.Default().With("provider", name),
	}
}

func (p *Provider) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
	Messages       []chatMessage     `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Provider) GenerateReport(ctx context.Context, req models.ReportRequest) (json.RawMessage, error) {
	start := time.Now()
	body := chatRequest{
		Model:          p.model,
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Prompt + "\n\nReturn ONLY JSON that matches the provided schema."},
		},
	}

	raw, err := p.post(ctx, p.baseURL+"/chat/completions", body)
	if err != nil {
		p.log.Error("llm.report.http_error", "model", p.model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", llm.ErrInvalidResponse, p.name, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in %s response", llm.ErrInvalidResponse, p.name)
	}

	out, err := llm.ExtractJSON(cc.Choices[0].Message.Content)
	if err != nil {
		p.log.Error("llm.report.bad_content", "model", p.model, "error", err,
			"finish_reason", cc.Choices[0].FinishReason)
		return nil, err
	}

	p.log.Info("llm.report.ok", "model", p.model, "bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (p *Provider) post(ctx context.Context, url string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, llm.ClassifyTransportError(ctx, p.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.ClassifyTransportError(ctx, p.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, llm.StatusError(p.name, resp.StatusCode, data)
	}
	return data, nil
}

var _ models.AIProvider = (*Provider)(nil)
