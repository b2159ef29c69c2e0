package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Conversation event types accepted by RecordConversationEvent.
const (
	EventSessionCreated = "session_created"
	EventResumeTailored = "resume_tailored"
	EventResumeEdited   = "resume_edited"
	EventExport         = "export"
	EventReset          = "reset"
	EventRateLimitHit   = "rate_limit_hit"
)

// Metrics holds all custom metrics of the service
type Metrics struct {
	// Model call metrics
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	// Conversation metrics
	TurnsTotal      metric.Int64Counter
	SessionsCreated metric.Int64Counter
	ResumesTailored metric.Int64Counter
	ResumesEdited   metric.Int64Counter
	ExportsTotal    metric.Int64Counter
	SessionResets   metric.Int64Counter

	// Rate limiting metrics
	RateLimitHits metric.Int64Counter
}

// AIOperationResult holds the result of a model call including token usage
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// TokenUsage represents token usage information from model responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// initCustomMetrics creates all custom metrics
func (om *ObservabilityManager) initCustomMetrics() error {
	meter := om.meterProvider.Meter(om.config.ServiceName)
	om.metrics = &Metrics{}

	if err := om.createAIMetrics(meter); err != nil {
		return err
	}
	if err := om.createConversationMetrics(meter); err != nil {
		return err
	}
	return om.createRateLimitMetrics(meter)
}

func (om *ObservabilityManager) createAIMetrics(meter metric.Meter) error {
	var err error

	om.metrics.AIProcessingTime, err = meter.Float64Histogram(
		"resumetailor_ai_processing_duration_seconds",
		metric.WithDescription("Time spent in model calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI processing time metric: %w", err)
	}

	om.metrics.AIRequestCount, err = meter.Int64Counter(
		"resumetailor_ai_requests_total",
		metric.WithDescription("Total number of model calls"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI request count metric: %w", err)
	}

	om.metrics.AIErrorCount, err = meter.Int64Counter(
		"resumetailor_ai_errors_total",
		metric.WithDescription("Total number of failed model calls"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI error count metric: %w", err)
	}

	om.metrics.AITokenUsage, err = meter.Int64Histogram(
		"resumetailor_ai_token_usage_total",
		metric.WithDescription("Token usage for model calls (input, output, total)"),
		metric.WithUnit("tokens"),
	)
	if err != nil {
		return fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	return nil
}

func (om *ObservabilityManager) createConversationMetrics(meter metric.Meter) error {
	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&om.metrics.TurnsTotal, "resumetailor_turns_total", "Total number of user inputs handled, by step"},
		{&om.metrics.SessionsCreated, "resumetailor_sessions_created_total", "Total number of sessions created"},
		{&om.metrics.ResumesTailored, "resumetailor_resumes_tailored_total", "Total number of tailoring turns"},
		{&om.metrics.ResumesEdited, "resumetailor_resumes_edited_total", "Total number of edit turns"},
		{&om.metrics.ExportsTotal, "resumetailor_exports_total", "Total number of document exports"},
		{&om.metrics.SessionResets, "resumetailor_session_resets_total", "Total number of conversation resets"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return fmt.Errorf("failed to create %s metric: %w", c.name, err)
		}
		*c.target = counter
	}
	return nil
}

func (om *ObservabilityManager) createRateLimitMetrics(meter metric.Meter) error {
	var err error
	om.metrics.RateLimitHits, err = meter.Int64Counter(
		"resumetailor_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}
	return nil
}

// TrackAIOperationWithTokens instruments a model call with tracing, metrics, and token usage
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult, om *ObservabilityManager) error {
	if m.AIProcessingTime == nil {
		// Metrics not initialized, just run the function
		result := fn(ctx)
		if result != nil {
			return result.Error
		}
		return nil
	}

	tracer := otel.Tracer("resumetailor.ai")
	ctx, span := tracer.Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	duration := time.Since(start).Seconds()

	var err error
	if result != nil {
		err = result.Error
	}

	if om.aiMetricsEnabled() {
		m.recordAIMetrics(ctx, operation, err, duration, result, om, span)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}

	return err
}

func (m *Metrics) recordAIMetrics(ctx context.Context, operation string, err error, duration float64, result *AIOperationResult, om *ObservabilityManager, span oteltrace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}

	if om.fullConfig == nil || om.fullConfig.Observability.CustomMetrics.AIOperations.TrackDuration {
		m.AIProcessingTime.Record(ctx, duration, metric.WithAttributes(attrs...))
	}
	m.AIRequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.AIErrorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	m.recordTokenUsage(ctx, result, attrs, om, span)

	span.SetAttributes(attrs...)
}

func (m *Metrics) recordTokenUsage(ctx context.Context, result *AIOperationResult, attrs []attribute.KeyValue, om *ObservabilityManager, span oteltrace.Span) {
	if result == nil || result.TokenUsage == nil || m.AITokenUsage == nil {
		return
	}

	if om.fullConfig == nil || om.fullConfig.Observability.CustomMetrics.AIOperations.TrackTokenUsage {
		usage := result.TokenUsage
		for tokenType, value := range map[string]int64{
			"input":  usage.InputTokens,
			"output": usage.OutputTokens,
			"total":  usage.TotalTokens,
		} {
			tokenAttrs := append(append([]attribute.KeyValue(nil), attrs...), attribute.String("token_type", tokenType))
			m.AITokenUsage.Record(ctx, value, metric.WithAttributes(tokenAttrs...))
		}
	}

	span.SetAttributes(
		attribute.Int64("ai.tokens.input", result.TokenUsage.InputTokens),
		attribute.Int64("ai.tokens.output", result.TokenUsage.OutputTokens),
		attribute.Int64("ai.tokens.total", result.TokenUsage.TotalTokens),
	)
}

// RecordTurn counts one handled user input at the given step
func (m *Metrics) RecordTurn(ctx context.Context, step string, om *ObservabilityManager) {
	if m.TurnsTotal == nil || !om.conversationMetricsEnabled() {
		return
	}
	m.TurnsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}

// RecordConversationEvent records one of the Event* types
func (m *Metrics) RecordConversationEvent(ctx context.Context, eventType string, success bool, om *ObservabilityManager, attributes ...attribute.KeyValue) {
	attrs := append([]attribute.KeyValue{attribute.Bool("success", success)}, attributes...)

	if eventType == EventRateLimitHit {
		// Rate limiting is an infrastructure metric
		if om != nil && om.fullConfig != nil && !om.fullConfig.Observability.CustomMetrics.Infrastructure.TrackRateLimits {
			return
		}
		addIfSet(ctx, m.RateLimitHits, attrs)
		return
	}

	if !om.conversationMetricsEnabled() {
		return
	}

	switch eventType {
	case EventSessionCreated:
		addIfSet(ctx, m.SessionsCreated, attrs)
	case EventResumeTailored:
		addIfSet(ctx, m.ResumesTailored, attrs)
	case EventResumeEdited:
		addIfSet(ctx, m.ResumesEdited, attrs)
	case EventExport:
		addIfSet(ctx, m.ExportsTotal, attrs)
	case EventReset:
		addIfSet(ctx, m.SessionResets, attrs)
	}
}

func addIfSet(ctx context.Context, counter metric.Int64Counter, attrs []attribute.KeyValue) {
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (om *ObservabilityManager) aiMetricsEnabled() bool {
	if om == nil || om.fullConfig == nil {
		return true
	}
	return om.fullConfig.Observability.CustomMetrics.AIOperations.Enabled
}

func (om *ObservabilityManager) conversationMetricsEnabled() bool {
	if om == nil || om.fullConfig == nil {
		return true
	}
	return om.fullConfig.Observability.CustomMetrics.Conversation.Enabled
}
