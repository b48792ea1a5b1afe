// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// NewClient builds the tier router from configuration. Tiers that name the same
// model share one client.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (*LLMRouter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	built := make(map[string]schemas.LLMClient, 2)
	get := func(name string) (schemas.LLMClient, error) {
		if c, ok := built[name]; ok {
			return c, nil
		}
		c, err := NewModelClient(ctx, cfg.Models[name], logger)
		if err != nil {
			return nil, fmt.Errorf("model '%s': %w", name, err)
		}
		built[name] = c
		return c, nil
	}

	fast, err := get(cfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerful, err := get(cfg.DefaultPowerfulModel)
	if err != nil {
		_ = fast.Close()
		return nil, err
	}

	router, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}
	router.SetRateLimit(cfg.RequestsPerMinute)
	return router, nil
}

// NewModelClient creates the provider client for a single model entry.
func NewModelClient(ctx context.Context, mc config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch mc.Provider {
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, mc, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderAnthropic:
		c, err := NewAnthropicClient(mc, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			mc.Provider, config.ProviderGemini, config.ProviderAnthropic)
	}
}
