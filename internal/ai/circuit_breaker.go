package ai

import (
	"fmt"

	"resumetailor/internal/config"
	"resumetailor/internal/errors"

	"github.com/sony/gobreaker/v2"
)

// AICircuitBreaker guards model calls of a single operation
type AICircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[*Response]
}

// ModelCircuitBreaker guards model availability lookups
type ModelCircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[*ModelInfo]
}

// NewAICircuitBreaker creates a circuit breaker configured for one operation.
// It returns nil when the breaker is disabled; a nil breaker passes calls through.
func NewAICircuitBreaker(operation string, cfg *config.OperationAIConfig, logger *errors.Logger) *AICircuitBreaker {
	if !cfg.CircuitBreaker.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("AI-%s", operation),
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
		Interval:    cfg.CircuitBreaker.Interval,
		Timeout:     cfg.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.CircuitBreaker.MinRequests &&
				failureRatio >= cfg.CircuitBreaker.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Info("Circuit breaker state changed",
				"name", name,
				"operation", operation,
				"from", from.String(),
				"to", to.String(),
				"max_requests", cfg.CircuitBreaker.MaxRequests,
				"failure_threshold", cfg.CircuitBreaker.FailureThreshold)
		},
	}

	return &AICircuitBreaker{
		cb: gobreaker.NewCircuitBreaker[*Response](settings),
	}
}

// NewModelCircuitBreaker creates a model lookup breaker for one operation
func NewModelCircuitBreaker(operation string, cfg *config.OperationAIConfig, logger *errors.Logger) *ModelCircuitBreaker {
	if !cfg.CircuitBreaker.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("AI-Model-%s", operation),
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
		Interval:    cfg.CircuitBreaker.Interval,
		Timeout:     cfg.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Health lookups trip later than generation.
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.8
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Info("Circuit breaker state changed",
				"name", name,
				"operation", operation,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &ModelCircuitBreaker{
		cb: gobreaker.NewCircuitBreaker[*ModelInfo](settings),
	}
}

// Execute runs fn under the breaker
func (cb *AICircuitBreaker) Execute(fn func() (*Response, error)) (*Response, error) {
	if cb == nil || cb.cb == nil {
		return fn()
	}
	return cb.cb.Execute(fn)
}

// ExecuteModel runs fn under the breaker
func (cb *ModelCircuitBreaker) ExecuteModel(fn func() (*ModelInfo, error)) (*ModelInfo, error) {
	if cb == nil || cb.cb == nil {
		return fn()
	}
	return cb.cb.Execute(fn)
}

// GetStats returns circuit breaker statistics
func (cb *AICircuitBreaker) GetStats() map[string]any {
	if cb == nil || cb.cb == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"name":    cb.cb.Name(),
		"state":   cb.cb.State().String(),
		"counts":  cb.cb.Counts(),
		"enabled": true,
	}
}

// GetModelStats returns model circuit breaker statistics
func (cb *ModelCircuitBreaker) GetModelStats() map[string]any {
	if cb == nil || cb.cb == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"name":    cb.cb.Name(),
		"state":   cb.cb.State().String(),
		"counts":  cb.cb.Counts(),
		"enabled": true,
	}
}

// IsHealthy reports whether the breaker is closed. A nil breaker is healthy.
func (cb *AICircuitBreaker) IsHealthy() bool {
	if cb == nil || cb.cb == nil {
		return true
	}
	return cb.cb.State() == gobreaker.StateClosed
}

// IsModelHealthy reports whether the breaker is closed
func (cb *ModelCircuitBreaker) IsModelHealthy() bool {
	if cb == nil || cb.cb == nil {
		return true
	}
	return cb.cb.State() == gobreaker.StateClosed
}

func breakerStats(ai *AICircuitBreaker, model *ModelCircuitBreaker) map[string]any {
	return map[string]any{
		"ai_operations":    ai.GetStats(),
		"model_operations": model.GetModelStats(),
		"overall_healthy":  ai.IsHealthy() && model.IsModelHealthy(),
	}
}
