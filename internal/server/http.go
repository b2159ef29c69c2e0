package server

import (
	"context"
	"iter"
	"time"

	"resumetailor/internal/ai"
	"resumetailor/internal/config"
	"resumetailor/internal/conversation"
	apperrors "resumetailor/internal/errors"
	"resumetailor/internal/observability"
	"resumetailor/internal/session"
)

// Engine runs conversation turns against a locked session.
type Engine interface {
	Start(s *session.Session) iter.Seq[conversation.Event]
	Handle(ctx context.Context, s *session.Session, input string) iter.Seq[conversation.Event]
	Discard(s *session.Session)
}

// ModelChecker reports the health of the configured models.
type ModelChecker interface {
	GetModelInfo(ctx context.Context) map[string]*ai.ModelInfo
	GetCircuitBreakerStats() map[string]any
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string
	BotName string

	// Full application configuration
	AppConfig *config.Config

	// API Authentication
	APIKeys map[string]bool

	// Timeout configurations
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size limit
	MaxRequestSize int64

	// Rate limiting
	RateLimit   *config.RateLimitConfig
	RateLimiter *RateLimiter

	Engine        Engine
	Models        ModelChecker
	Sessions      *session.Store
	Observability *observability.ObservabilityManager

	Logger *apperrors.Logger

	startedAt time.Time
}

// ServerConfig holds configuration for creating a Server instance
type ServerConfig struct {
	Host           string
	Port           string
	Version        string
	BotName        string
	APIKeys        []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	RateLimit      *config.RateLimitConfig
	Sessions       config.SessionConfig
}

// Dependencies are the collaborators a Server drives.
type Dependencies struct {
	Engine        Engine
	Models        ModelChecker
	Observability *observability.ObservabilityManager
}

// NewServer creates a new Server instance from a ServerConfig struct
func NewServer(appCfg *config.Config, cfg ServerConfig, deps Dependencies, logger *apperrors.Logger) *Server {
	// Convert API keys slice to map for O(1) lookup
	apiKeyMap := make(map[string]bool)
	for _, key := range cfg.APIKeys {
		if key != "" {
			apiKeyMap[key] = true
		}
	}

	var rateLimiter *RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstCapacity, logger)
	}

	om := deps.Observability
	if om == nil {
		om = observability.NewNoopManager()
	}

	sessions := session.NewStore(cfg.Sessions.TTL, cfg.Sessions.CleanupInterval, cfg.Sessions.MaxSessions, logger)
	if deps.Engine != nil {
		sessions.OnRemove(deps.Engine.Discard)
	}

	return &Server{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Version:        cfg.Version,
		BotName:        cfg.BotName,
		AppConfig:      appCfg,
		APIKeys:        apiKeyMap,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxRequestSize: cfg.MaxRequestSize,
		RateLimit:      cfg.RateLimit,
		RateLimiter:    rateLimiter,
		Engine:         deps.Engine,
		Models:         deps.Models,
		Sessions:       sessions,
		Observability:  om,
		Logger:         logger,
		startedAt:      time.Now(),
	}
}
