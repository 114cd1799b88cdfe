package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/familiar/internal/config"
	familiarErrors "github.com/harunnryd/familiar/internal/errors"
	anthropicProvider "github.com/harunnryd/familiar/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/familiar/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/familiar/internal/model/providers/openai"
)

// New builds the backend selected by cfg.Provider and wraps it with
// logging and error mapping.
func New(ctx context.Context, cfg config.ModelConfig) (*InstrumentedBackend, error) {
	timeout, err := config.DurationOrDefault(cfg.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return nil, familiarErrors.Config(fmt.Sprintf("invalid model.request_timeout: %v", err))
	}

	backend, err := createBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("Backend initialized", "provider", cfg.Provider, "model", cfg.Name, "tools_mode", cfg.ToolsMode)
	return &InstrumentedBackend{backend: backend, model: cfg.Name, timeout: timeout}, nil
}

func createBackend(ctx context.Context, cfg config.ModelConfig) (Backend, error) {
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, familiarErrors.Config("API key required for Anthropic provider (set ANTHROPIC_API_KEY)")
		}
		return anthropicProvider.New(cfg.APIKey, cfg.BaseURL, cfg.Name, cfg.ThinkingBudget), nil

	case config.ProviderOpenAI:
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, familiarErrors.Config("API key required for OpenAI provider (set OPENAI_API_KEY)")
		}
		return openaiProvider.New(openaiProvider.Options{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Name,
			ToolsMode:      cfg.ToolsMode,
			EmbeddingModel: cfg.EmbeddingModel,
		}), nil

	case config.ProviderGemini:
		if cfg.APIKey == "" {
			return nil, familiarErrors.Config("API key required for Gemini provider (set GEMINI_API_KEY)")
		}
		provider, err := geminiProvider.New(ctx, geminiProvider.Options{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Name,
			EmbeddingModel: cfg.EmbeddingModel,
			ThinkingBudget: cfg.ThinkingBudget,
		})
		if err != nil {
			return nil, familiarErrors.Wrap(err, "failed to create Gemini provider")
		}
		return provider, nil

	default:
		return nil, familiarErrors.Config(fmt.Sprintf("unknown provider type: %s", cfg.Provider))
	}
}
