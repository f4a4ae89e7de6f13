// Package ai selects and constructs the configured AI provider.
package ai

import (
	"fmt"

	"github.com/rapidresolve/engine/internal/ai/anthropic"
	"github.com/rapidresolve/engine/internal/ai/mock"
	"github.com/rapidresolve/engine/internal/ai/openai"
	"github.com/rapidresolve/engine/internal/config"
	"github.com/rapidresolve/engine/pkg/models"
)

// NewProvider builds the AI provider named in cfg.Provider.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "mock":
		return &mock.MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q (valid: openai, anthropic, mock)", cfg.Provider)
	}
}
