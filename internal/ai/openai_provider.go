package ai

import (
	"context"
	"fmt"
	"math"
	"strings"

	"resumetailor/internal/config"
	apperrors "resumetailor/internal/errors"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// OpenAIProvider implements Provider for the OpenAI chat completions API
// and compatible endpoints reached through BaseURL.
type OpenAIProvider struct {
	client         *openai.Client
	config         *config.OperationAIConfig
	operation      string
	retry          retryPolicy
	circuitBreaker *AICircuitBreaker
	modelBreaker   *ModelCircuitBreaker
	logger         *apperrors.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates an OpenAI provider for one operation
func NewOpenAIProvider(cfg *config.OperationAIConfig, operation string, logger *apperrors.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeMissingAPIKey,
			"OpenAI API key is required", nil).WithContext("operation", operation)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientConfig),
		config:         cfg,
		operation:      operation,
		retry:          newRetryPolicy(*cfg.MaxRetries, *cfg.Timeout),
		circuitBreaker: NewAICircuitBreaker(operation, cfg, logger),
		modelBreaker:   NewModelCircuitBreaker(operation, cfg, logger),
		logger:         logger,
	}, nil
}

func (o *OpenAIProvider) Name() string { return config.ProviderOpenAI }

// Generate sends one chat completion. Schema requests force a single function call
// and return its arguments.
func (o *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	tracer := otel.Tracer("resumetailor.ai.openai")
	ctx, span := tracer.Start(ctx, "openai."+req.Operation)
	defer span.End()

	temperature := o.temperature(req)
	span.SetAttributes(
		attribute.String("ai.provider", config.ProviderOpenAI),
		attribute.String("ai.model", o.config.Model),
		attribute.Float64("ai.temperature", float64(temperature)),
		attribute.Bool("ai.structured", req.Schema != nil),
	)

	chatReq := openai.ChatCompletionRequest{
		Model:       o.config.Model,
		Messages:    openaiMessages(req.Messages),
		Temperature: openaiTemperature(temperature),
	}
	if req.Schema != nil {
		chatReq.Tools = []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Parameters:  req.Schema.Parameters,
			},
		}}
		chatReq.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.Schema.Name},
		}
	}

	result, err := o.circuitBreaker.Execute(func() (*Response, error) {
		return executeWithRetry(ctx, req.Operation, o.retry, o.logger, func(ctx context.Context) (*Response, error) {
			resp, err := o.client.CreateChatCompletion(ctx, chatReq)
			if err != nil {
				return nil, err
			}
			return openaiResponse(resp, req.Schema != nil)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed,
			"Failed to generate content for "+req.Operation, err)
	}

	span.SetAttributes(
		attribute.Bool("success", true),
		attribute.Int("output.length", len(result.Text)),
	)
	return result, nil
}

func (o *OpenAIProvider) temperature(req Request) float32 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return *o.config.Temperature
}

// openaiTemperature keeps an explicit zero on the wire; the client drops
// zero values as unset.
func openaiTemperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func openaiMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func openaiResponse(resp openai.ChatCompletionResponse, structured bool) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	msg := resp.Choices[0].Message

	text := msg.Content
	if structured {
		if len(msg.ToolCalls) == 0 {
			return nil, fmt.Errorf("%w: no function call in response", ErrEmptyResponse)
		}
		text = msg.ToolCalls[0].Function.Arguments
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text: text,
		Usage: &TokenUsage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:  int64(resp.Usage.TotalTokens),
		},
	}, nil
}

// GetModelInfo checks the readiness and availability of the configured model
func (o *OpenAIProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	checkCtx, cancel := withModelCheckTimeout(ctx)
	defer cancel()

	info, err := o.modelBreaker.ExecuteModel(func() (*ModelInfo, error) {
		model, err := o.client.GetModel(checkCtx, o.config.Model)
		if err != nil {
			return nil, err
		}
		return &ModelInfo{
			Name:        o.config.Model,
			Provider:    config.ProviderOpenAI,
			DisplayName: model.ID,
			Version:     model.OwnedBy,
			Available:   true,
		}, nil
	})
	if err != nil {
		o.logger.Warn("Model availability check failed",
			"model", o.config.Model,
			"provider", config.ProviderOpenAI,
			"error", err.Error())
		return &ModelInfo{
			Name:     o.config.Model,
			Provider: config.ProviderOpenAI,
			Error:    fmt.Sprintf("Failed to get model info: %v", err),
		}
	}
	return info
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (o *OpenAIProvider) GetCircuitBreakerStats() map[string]any {
	return breakerStats(o.circuitBreaker, o.modelBreaker)
}

func (o *OpenAIProvider) Close() error {
	return nil
}
