// Package gemini generates reports with Google Gemini through the eino chat model abstraction.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TariqKichawele/BrightData/internal/ai/llm"
	"github.com/TariqKichawele/BrightData/internal/config"
	"github.com/TariqKichawele/BrightData/pkg/models"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Provider implements models.AIProvider on top of an eino chat model.
type Provider struct {
	modelName string
	chat      model.BaseChatModel
}

// NewProvider builds the Gemini client and wraps it in eino's chat model component.
func NewProvider(ctx context.Context, cfg config.GeminiConfig) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	chat, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}
	return NewProviderWithModel(cfg.Model, chat), nil
}

// NewProviderWithModel wraps a pre-configured chat model.
func NewProviderWithModel(modelName string, chat model.BaseChatModel) *Provider {
	return &Provider{modelName: modelName, chat: chat}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) GenerateReport(ctx context.Context, req models.ReportRequest) (json.RawMessage, error) {
	start := time.Now()
	messages := []*schema.Message{
		schema.SystemMessage(req.SystemPrompt),
		schema.UserMessage(req.Prompt + "\n\nReturn ONLY JSON that matches the provided schema."),
	}

	resp, err := p.chat.Generate(ctx, messages, model.WithTemperature(0))
	if err != nil {
		return nil, llm.ClassifyTransportError(ctx, p.Name(), err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: gemini returned no message", llm.ErrInvalidResponse)
	}

	out, err := llm.ExtractJSON(resp.Content)
	if err != nil {
		return nil, err
	}
	slog.Info("llm.report.ok", "provider", p.Name(), "model", p.modelName,
		"bytes", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

var _ models.AIProvider = (*Provider)(nil)
