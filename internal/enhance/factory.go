package enhance

import (
	"context"
	"fmt"
	"strings"

	"github.com/tonalworks/sonata-api/internal/config"
	"github.com/tonalworks/sonata-api/internal/metrics"
)

// NewFromConfig builds the enhancer selected by configuration. It
// returns (nil, nil) when enhancement is disabled, so callers can treat
// a nil Enhancer as "core result only". cw may be nil.
func NewFromConfig(ctx context.Context, cfg *config.Config, cw *metrics.Client) (Enhancer, error) {
	if !cfg.EnhancementEnabled {
		return nil, nil
	}

	modelLower := strings.ToLower(cfg.EnhancementModel)
	switch {
	case strings.HasPrefix(modelLower, "gemini-"):
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key not configured")
		}
		return NewGeminiEnhancer(ctx, cfg.GeminiAPIKey, cfg.EnhancementModel, cw)

	case strings.HasPrefix(modelLower, "gpt-"):
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		return NewOpenAIEnhancer(cfg.OpenAIAPIKey, cfg.EnhancementModel, cw), nil

	default:
		// Unknown models go to OpenAI, same as the rest of the stack.
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai API key not configured (default provider)")
		}
		return NewOpenAIEnhancer(cfg.OpenAIAPIKey, cfg.EnhancementModel, cw), nil
	}
}
