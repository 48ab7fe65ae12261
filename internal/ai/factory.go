package ai

import (
	"context"
	"fmt"

	"github.com/TariqKichawele/BrightData/internal/ai/gemini"
	"github.com/TariqKichawele/BrightData/internal/ai/ollama"
	"github.com/TariqKichawele/BrightData/internal/ai/openai"
	"github.com/TariqKichawele/BrightData/internal/config"
	"github.com/TariqKichawele/BrightData/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return openai.NewVLLMProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "gemini":
		return gemini.NewProvider(ctx, cfg.Gemini)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, gemini", cfg.Provider)
	}
}
