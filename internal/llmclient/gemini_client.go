// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiClient implements schemas.LLMClient on the Google GenAI SDK.
type GeminiClient struct {
	model  string
	config config.LLMModelConfig
	logger *zap.Logger

	generate       generateFunc
	backoffFactory func() backoff.BackOff
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient initializes the client. No request is made until Generate.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{
		model:          cfg.Model,
		config:         cfg,
		logger:         logger.Named("llm_client.gemini"),
		generate:       client.Models.GenerateContent,
		backoffFactory: defaultBackoff,
	}, nil
}

// Generate sends the prompts to Gemini, retrying transient failures.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := genai.Text(req.UserPrompt)
	genCfg := c.buildConfig(req)

	var out string
	operation := func() error {
		callCtx, cancel := callContext(ctx, c.config.APITimeout)
		defer cancel()

		start := time.Now()
		resp, err := c.generate(callCtx, c.model, contents, genCfg)
		if err != nil {
			return c.classify(err)
		}
		text, err := responseText(resp)
		if err != nil {
			return err
		}

		fields := []zap.Field{zap.String("model", c.model), zap.Duration("duration", time.Since(start))}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount),
			)
		}
		c.logger.Info("LLM generation complete (Gemini).", fields...)
		out = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return out, nil
}

func (c *GeminiClient) buildConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: ptr(float32(temperature(req.Options.Temperature, float64(c.config.Temperature)))),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Options.ForceJSONFormat {
		cfg.ResponseMIMEType = "application/json"
	}

	topP := float32(req.Options.TopP)
	if topP <= 0 {
		topP = c.config.TopP
	}
	if topP > 0 {
		cfg.TopP = ptr(topP)
	}
	topK := req.Options.TopK
	if topK <= 0 {
		topK = c.config.TopK
	}
	if topK > 0 {
		cfg.TopK = ptr(float32(topK))
	}
	if c.config.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.config.MaxTokens)
	}
	return cfg
}

// classify marks API errors as permanent unless the status is transient.
// Anything else is treated as a network failure and retried.
func (c *GeminiClient) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("Gemini API returned error status.",
			zap.Int("status", apiErr.Code),
			zap.String("message", apiErr.Message),
		)
		if transientStatus(apiErr.Code) {
			return err
		}
		return backoff.Permanent(err)
	}
	c.logger.Warn("Network error during LLM request, retrying.", zap.Error(err))
	return err
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
	}
	cand := resp.Candidates[0]
	reason := string(cand.FinishReason)

	var b strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
	}
	if text := strings.TrimSpace(b.String()); text != "" {
		return text, nil
	}

	switch reason {
	case "SAFETY", "BLOCKLIST", "PROHIBITED_CONTENT":
		return "", backoff.Permanent(fmt.Errorf("gemini API blocked the request (reason: %s)", reason))
	default:
		return "", fmt.Errorf("gemini API returned empty content (reason: %s)", reason)
	}
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (c *GeminiClient) Close() error {
	return nil
}
