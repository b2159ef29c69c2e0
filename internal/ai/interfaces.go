package ai

import (
	"context"
	"encoding/json"
)

// Role tags a message in a model request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged chunk of a request.
type Message struct {
	Role    Role
	Content string
}

// Schema asks the provider for a JSON object matching Parameters instead of free text.
type Schema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request is a single model call. Messages are sent in order.
type Request struct {
	Operation   string
	Messages    []Message
	Schema      *Schema
	Temperature *float32
}

// Response carries the model text, or the JSON arguments when a Schema was requested.
type Response struct {
	Text  string
	Usage *TokenUsage
}

// TokenUsage represents token consumption reported by the provider
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// Provider is the transport to one hosted model
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	GetCircuitBreakerStats() map[string]any
	Name() string
	Close() error
}
