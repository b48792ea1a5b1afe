// internal/llmclient/anthropic_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// jsonOnlyInstruction stands in for a JSON response mode, which the Messages API lacks.
const jsonOnlyInstruction = "Respond with a single valid JSON value and nothing else."

type messageFunc func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)

// AnthropicClient implements schemas.LLMClient on the Anthropic Messages API.
type AnthropicClient struct {
	model  string
	config config.LLMModelConfig
	logger *zap.Logger

	newMessage     messageFunc
	backoffFactory func() backoff.BackOff
}

var _ schemas.LLMClient = (*AnthropicClient)(nil)

func NewAnthropicClient(cfg config.LLMModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("anthropic model name is required")
	}

	// Retries are handled here with backoff, so the SDK's own are disabled.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicClient{
		model:  cfg.Model,
		config: cfg,
		logger: logger.Named("llm_client.anthropic"),
		newMessage: func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
			return client.Messages.New(ctx, params)
		},
		backoffFactory: defaultBackoff,
	}, nil
}

func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := c.buildParams(req)

	var out string
	operation := func() error {
		callCtx, cancel := callContext(ctx, c.config.APITimeout)
		defer cancel()

		start := time.Now()
		msg, err := c.newMessage(callCtx, params)
		if err != nil {
			return c.classify(err)
		}

		var b strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			return fmt.Errorf("anthropic API returned empty content (stop reason: %s)", msg.StopReason)
		}

		c.logger.Info("LLM generation complete (Anthropic).",
			zap.String("model", c.model),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("prompt_tokens", msg.Usage.InputTokens),
			zap.Int64("completion_tokens", msg.Usage.OutputTokens),
		)
		out = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", fmt.Errorf("anthropic generation failed: %w", err)
	}
	return out, nil
}

func (c *AnthropicClient) buildParams(req schemas.GenerationRequest) anthropic.MessageNewParams {
	maxTokens := c.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Temperature: anthropic.Float(temperature(req.Options.Temperature, float64(c.config.Temperature))),
	}

	system := req.SystemPrompt
	if req.Options.ForceJSONFormat {
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if topP := req.Options.TopP; topP > 0 {
		params.TopP = anthropic.Float(topP)
	} else if c.config.TopP > 0 {
		params.TopP = anthropic.Float(float64(c.config.TopP))
	}
	if topK := req.Options.TopK; topK > 0 {
		params.TopK = anthropic.Int(int64(topK))
	} else if c.config.TopK > 0 {
		params.TopK = anthropic.Int(int64(c.config.TopK))
	}
	return params
}

func (c *AnthropicClient) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		c.logger.Error("Anthropic API returned error status.", zap.Int("status", apiErr.StatusCode))
		if transientStatus(apiErr.StatusCode) {
			return err
		}
		return backoff.Permanent(err)
	}
	c.logger.Warn("Network error during LLM request, retrying.", zap.Error(err))
	return err
}

func (c *AnthropicClient) Close() error {
	return nil
}
