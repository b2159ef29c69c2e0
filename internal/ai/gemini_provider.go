package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"resumetailor/internal/config"
	apperrors "resumetailor/internal/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

// GeminiProvider implements Provider for Google Gemini
type GeminiProvider struct {
	client         *genai.Client
	config         *config.OperationAIConfig
	operation      string
	retry          retryPolicy
	circuitBreaker *AICircuitBreaker
	modelBreaker   *ModelCircuitBreaker
	logger         *apperrors.Logger
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini provider for one operation
func NewGeminiProvider(cfg *config.OperationAIConfig, operation string, logger *apperrors.Logger) (*GeminiProvider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	return &GeminiProvider{
		client:         client,
		config:         cfg,
		operation:      operation,
		retry:          newRetryPolicy(*cfg.MaxRetries, *cfg.Timeout),
		circuitBreaker: NewAICircuitBreaker(operation, cfg, logger),
		modelBreaker:   NewModelCircuitBreaker(operation, cfg, logger),
		logger:         logger,
	}, nil
}

func (g *GeminiProvider) Name() string { return config.ProviderGemini }

// Generate sends one request. System messages become the system instruction.
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	tracer := otel.Tracer("resumetailor.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini."+req.Operation)
	defer span.End()

	temperature := g.temperature(req)
	span.SetAttributes(
		attribute.String("ai.provider", config.ProviderGemini),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(temperature)),
		attribute.Bool("ai.structured", req.Schema != nil),
	)

	genaiConfig := &genai.GenerateContentConfig{Temperature: &temperature}
	system, contents := geminiContents(req.Messages)
	if system != "" {
		genaiConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Schema != nil {
		schema, err := geminiSchema(req.Schema.Parameters)
		if err != nil {
			span.RecordError(err)
			return nil, apperrors.NewAIError(apperrors.ErrCodeInvalidRequest,
				"Invalid response schema for "+req.Operation, err)
		}
		genaiConfig.ResponseMIMEType = "application/json"
		genaiConfig.ResponseSchema = schema
	}

	result, err := g.circuitBreaker.Execute(func() (*Response, error) {
		return executeWithRetry(ctx, req.Operation, g.retry, g.logger, func(ctx context.Context) (*Response, error) {
			out, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, genaiConfig)
			if err != nil {
				return nil, err
			}
			text := out.Text()
			if strings.TrimSpace(text) == "" {
				return nil, ErrEmptyResponse
			}
			return &Response{Text: text, Usage: geminiTokenUsage(out)}, nil
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

func (g *GeminiProvider) temperature(req Request) float32 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return *g.config.Temperature
}

// geminiContents folds system messages into one instruction. A request made
// only of system messages sends its last one as the user turn.
func geminiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(contents) == 0 && len(system) > 0 {
		last := system[len(system)-1]
		system = system[:len(system)-1]
		contents = append(contents, genai.NewContentFromText(last, genai.RoleUser))
	}

	return strings.Join(system, "\n\n"), contents
}

// jsonSchema is the subset of JSON Schema that maps onto genai.Schema
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Required    []string               `json:"required"`
	Items       *jsonSchema            `json:"items"`
	Enum        []string               `json:"enum"`
}

func geminiSchema(raw json.RawMessage) (*genai.Schema, error) {
	var s jsonSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode JSON schema: %w", err)
	}
	return s.toGenai()
}

func (s *jsonSchema) toGenai() (*genai.Schema, error) {
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}

	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		return nil, fmt.Errorf("unsupported schema type %q", s.Type)
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			converted, err := prop.toGenai()
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			out.Properties[name] = converted
		}
	}
	if s.Items != nil {
		items, err := s.Items.toGenai()
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		out.Items = items
	}
	return out, nil
}

func geminiTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}
	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	checkCtx, cancel := withModelCheckTimeout(ctx)
	defer cancel()

	info, err := g.modelBreaker.ExecuteModel(func() (*ModelInfo, error) {
		model, err := g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
		if err != nil {
			return nil, err
		}
		return &ModelInfo{
			Name:        g.config.Model,
			Provider:    config.ProviderGemini,
			DisplayName: model.DisplayName,
			Version:     model.Version,
			Available:   true,
		}, nil
	})
	if err != nil {
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"provider", config.ProviderGemini,
			"error", err.Error())
		return &ModelInfo{
			Name:     g.config.Model,
			Provider: config.ProviderGemini,
			Error:    fmt.Sprintf("Failed to get model info: %v", err),
		}
	}

	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"display_name", info.DisplayName,
		"version", info.Version)
	return info
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (g *GeminiProvider) GetCircuitBreakerStats() map[string]any {
	return breakerStats(g.circuitBreaker, g.modelBreaker)
}

// Close is a no-op; the Gemini client holds no connections between calls.
func (g *GeminiProvider) Close() error {
	return nil
}
