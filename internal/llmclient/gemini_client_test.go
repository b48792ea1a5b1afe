package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/genai"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// setupGeminiClient builds a client whose SDK call is replaced by generate.
func setupGeminiClient(t *testing.T, generate generateFunc) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()
	logger, logs := setupTestLogger(t)
	client, err := NewGeminiClient(context.Background(), getValidLLMConfig(config.ProviderGemini), logger)
	require.NoError(t, err)
	client.generate = generate
	client.backoffFactory = fastBackoff
	return client, logs
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReason("STOP"),
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 3,
			TotalTokenCount:      15,
		},
	}
}

func TestNewGeminiClient_Validation(t *testing.T) {
	logger := zap.NewNop()

	cfg := getValidLLMConfig(config.ProviderGemini)
	cfg.APIKey = " "
	_, err := NewGeminiClient(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "API key is required")

	cfg = getValidLLMConfig(config.ProviderGemini)
	cfg.Model = ""
	_, err = NewGeminiClient(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "model name is required")
}

func TestGeminiBuildConfig(t *testing.T) {
	client, _ := setupGeminiClient(t, nil)

	t.Run("request values win", func(t *testing.T) {
		req := createTestRequest()
		req.Options.TopP = 0.5
		req.Options.TopK = 8

		cfg := client.buildConfig(req)
		require.NotNil(t, cfg.Temperature)
		assert.InDelta(t, 0.2, *cfg.Temperature, 1e-6)
		assert.InDelta(t, 0.5, *cfg.TopP, 1e-6)
		assert.InDelta(t, 8, *cfg.TopK, 1e-6)
		assert.Equal(t, "application/json", cfg.ResponseMIMEType)
		assert.Equal(t, int32(1024), cfg.MaxOutputTokens)
		require.NotNil(t, cfg.SystemInstruction)
		assert.Equal(t, "System prompt instructions.", cfg.SystemInstruction.Parts[0].Text)
	})

	t.Run("model defaults fill the gaps", func(t *testing.T) {
		cfg := client.buildConfig(schemas.GenerationRequest{UserPrompt: "hi"})
		assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6)
		assert.InDelta(t, 0.9, *cfg.TopP, 1e-6)
		assert.InDelta(t, 40, *cfg.TopK, 1e-6)
		assert.Empty(t, cfg.ResponseMIMEType)
		assert.Nil(t, cfg.SystemInstruction)
	})
}

func TestGeminiGenerate_Success(t *testing.T) {
	var gotModel, gotPrompt string
	client, logs := setupGeminiClient(t, func(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotModel = model
		gotPrompt = contents[0].Parts[0].Text
		return textResponse(`  {"fields": []}  `), nil
	})

	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"fields": []}`, out)
	assert.Equal(t, "test-model", gotModel)
	assert.Equal(t, "User query.", gotPrompt)

	info := logs.FilterMessage("LLM generation complete (Gemini).")
	require.Equal(t, 1, info.Len())
	assert.Equal(t, int32(15), info.All()[0].ContextMap()["total_tokens"])
}

func TestGeminiGenerate_SkipsThoughtParts(t *testing.T) {
	client, _ := setupGeminiClient(t, func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "thinking...", Thought: true}, {Text: "answer"}}},
		}}}, nil
	})
	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
}

func TestGeminiGenerate_RetryOnTransientErrors(t *testing.T) {
	attempts := 0
	client, logs := setupGeminiClient(t, func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		attempts++
		if attempts < 3 {
			return nil, genai.APIError{Code: 503, Message: "overloaded"}
		}
		return textResponse("Success after retry"), nil
	})

	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "Success after retry", out)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, logs.FilterLevelExact(zap.ErrorLevel).Len())
}

func TestGeminiGenerate_RetryOnNetworkError(t *testing.T) {
	attempts := 0
	client, logs := setupGeminiClient(t, func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return textResponse("ok"), nil
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	warn := logs.FilterLevelExact(zap.WarnLevel)
	require.Equal(t, 1, warn.Len())
	assert.Equal(t, "Network error during LLM request, retrying.", warn.All()[0].Message)
}

func TestGeminiGenerate_NoRetryOnPermanentErrors(t *testing.T) {
	attempts := 0
	client, _ := setupGeminiClient(t, func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		attempts++
		return nil, genai.APIError{Code: 400, Message: "API key not valid"}
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	var apiErr genai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
}

func TestGeminiGenerate_Blocked(t *testing.T) {
	attempts := 0
	client, _ := setupGeminiClient(t, func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		attempts++
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReason("SAFETY")}}}, nil
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	assert.ErrorContains(t, err, "blocked the request (reason: SAFETY)")
	assert.Equal(t, 1, attempts)
}

func TestGeminiGenerate_NoCandidates(t *testing.T) {
	client, _ := setupGeminiClient(t, func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{}, nil
	})
	_, err := client.Generate(context.Background(), createTestRequest())
	assert.ErrorContains(t, err, "no candidates")
}

func TestGeminiGenerate_EmptyContentIsRetried(t *testing.T) {
	attempts := 0
	client, _ := setupGeminiClient(t, func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		attempts++
		if attempts == 1 {
			return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReason("MAX_TOKENS")}}}, nil
		}
		return textResponse("second time"), nil
	})
	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "second time", out)
}

func TestGeminiGenerate_ContextCancellation(t *testing.T) {
	client, _ := setupGeminiClient(t, func(ctx context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	client.backoffFactory = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Generate(ctx, createTestRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
