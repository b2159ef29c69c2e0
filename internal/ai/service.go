package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"resumetailor/internal/config"
	apperrors "resumetailor/internal/errors"
	"resumetailor/internal/observability"
)

// ErrEmptyResponse reports a model reply without usable content
var ErrEmptyResponse = errors.New("model returned an empty response")

const defaultModelCheckTimeout = 10 * time.Second

// withModelCheckTimeout bounds a model lookup unless the caller already set a deadline
func withModelCheckTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, defaultModelCheckTimeout)
}

// Service runs the four model calls of a conversation, each on its own provider
type Service struct {
	providers map[string]Provider
	prompts   *config.PromptStore
	om        *observability.ObservabilityManager
	logger    *apperrors.Logger
}

// NewService builds one provider per operation from cfg
func NewService(cfg *config.Config, om *observability.ObservabilityManager, logger *apperrors.Logger) (*Service, error) {
	providers := make(map[string]Provider, len(config.Operations))

	for _, op := range config.Operations {
		opCfg := cfg.ForOperation(op)

		logger.Debug("Initializing AI provider",
			"operation", op,
			"provider", opCfg.Provider,
			"model", opCfg.Model,
			"temperature", *opCfg.Temperature,
			"timeout", *opCfg.Timeout,
			"max_retries", *opCfg.MaxRetries)

		provider, err := newProvider(&opCfg, op, logger)
		if err != nil {
			for _, p := range providers {
				_ = p.Close()
			}
			return nil, err
		}
		providers[op] = provider
	}

	return &Service{
		providers: providers,
		prompts:   cfg.Prompts(),
		om:        om,
		logger:    logger,
	}, nil
}

// NewServiceWithProviders wires prebuilt providers; missing operations fail at call time.
func NewServiceWithProviders(providers map[string]Provider, prompts *config.PromptStore, om *observability.ObservabilityManager, logger *apperrors.Logger) *Service {
	if prompts == nil {
		prompts = config.NewPromptStore()
	}
	return &Service{
		providers: providers,
		prompts:   prompts,
		om:        om,
		logger:    logger,
	}
}

func newProvider(cfg *config.OperationAIConfig, operation string, logger *apperrors.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiProvider(cfg, operation, logger)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg, operation, logger)
	default:
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.Provider), nil)
	}
}

// ExtractMetadata asks for an extract_metadata function call over schema and
// returns its raw JSON arguments.
func (s *Service) ExtractMetadata(ctx context.Context, posting string, schema json.RawMessage) (json.RawMessage, error) {
	prompts := s.prompts.Get(config.OperationExtract)
	messages := buildExtractMessages(
		resolvePrompt(prompts.System, DefaultExtractSystem),
		resolvePrompt(prompts.User, DefaultExtractUser),
		posting,
	)

	resp, err := s.generate(ctx, Request{
		Operation: config.OperationExtract,
		Messages:  messages,
		Schema: &Schema{
			Name:        MetadataFunctionName,
			Description: MetadataFunctionDescription,
			Parameters:  schema,
		},
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Text), nil
}

// TailorResume reorders and rewords resume for posting
func (s *Service) TailorResume(ctx context.Context, resume, posting string) (string, error) {
	prompts := s.prompts.Get(config.OperationTailor)
	return s.generateText(ctx, config.OperationTailor, buildTailorMessages(
		s.persona(),
		resolvePrompt(prompts.System, DefaultTailorInstruction),
		resume,
		posting,
	))
}

// ExplainTailoring describes which items were highlighted and why
func (s *Service) ExplainTailoring(ctx context.Context, tailored, posting string) (string, error) {
	prompts := s.prompts.Get(config.OperationExplain)
	return s.generateText(ctx, config.OperationExplain, buildExplainMessages(
		s.persona(),
		resolvePrompt(prompts.System, DefaultExplainInstruction),
		tailored,
		posting,
	))
}

// EditResume applies a free-form instruction to the tailored resume
func (s *Service) EditResume(ctx context.Context, tailored, instruction string) (string, error) {
	prompts := s.prompts.Get(config.OperationEdit)
	return s.generateText(ctx, config.OperationEdit, buildEditMessages(
		s.persona(),
		resolvePrompt(prompts.System, DefaultEditInstruction),
		tailored,
		instruction,
	))
}

func (s *Service) persona() string {
	return resolvePrompt(s.prompts.Persona(), DefaultPersona)
}

func (s *Service) generateText(ctx context.Context, operation string, messages []Message) (string, error) {
	resp, err := s.generate(ctx, Request{Operation: operation, Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (s *Service) generate(ctx context.Context, req Request) (*Response, error) {
	provider, ok := s.providers[req.Operation]
	if !ok {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			"no AI provider configured for "+req.Operation, nil)
	}

	var resp *Response
	err := s.om.GetMetrics().TrackAIOperationWithTokens(ctx, req.Operation, func(ctx context.Context) *observability.AIOperationResult {
		var err error
		resp, err = provider.Generate(ctx, req)
		result := &observability.AIOperationResult{Error: err}
		if resp != nil && resp.Usage != nil {
			result.TokenUsage = &observability.TokenUsage{
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			}
		}
		return result
	}, s.om)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeAI) || apperrors.IsType(err, apperrors.ErrorTypeConfig) {
			return nil, err
		}
		return nil, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed,
			"Failed to generate content for "+req.Operation, err)
	}
	return resp, nil
}

// GetModelInfo reports availability of each operation's model
func (s *Service) GetModelInfo(ctx context.Context) map[string]*ModelInfo {
	out := make(map[string]*ModelInfo, len(s.providers))
	for op, p := range s.providers {
		out[op] = p.GetModelInfo(ctx)
	}
	return out
}

// GetCircuitBreakerStats returns breaker statistics per operation
func (s *Service) GetCircuitBreakerStats() map[string]any {
	out := make(map[string]any, len(s.providers))
	for op, p := range s.providers {
		out[op] = p.GetCircuitBreakerStats()
	}
	return out
}

// Close releases every provider
func (s *Service) Close() error {
	var errs []error
	for _, p := range s.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
