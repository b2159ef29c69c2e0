package cli

import (
	"context"
	"fmt"
	"time"

	"resumetailor/internal/ai"
	"resumetailor/internal/config"
	"resumetailor/internal/conversation"
	"resumetailor/internal/errors"
	"resumetailor/internal/export"
	"resumetailor/internal/extract"
	"resumetailor/internal/observability"
)

// app holds the collaborators every command builds the conversation engine from.
type app struct {
	cfg     *config.Config
	logger  *errors.Logger
	om      *observability.ObservabilityManager
	ai      *ai.Service
	engine  *conversation.Engine
	watcher *config.PromptWatcher
}

// newApp wires the model service, extractor and exporter into an engine.
// Telemetry is only exported when withTelemetry is set.
func newApp(cfg *config.Config, logger *errors.Logger, withTelemetry bool, opts ...conversation.Option) (*app, error) {
	om := observability.NewNoopManager()
	if withTelemetry {
		var err error
		om, err = observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, Version), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize observability: %w", err)
		}
	}

	aiService, err := ai.NewService(cfg, om, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI service: %w", err)
	}

	metadata, err := extract.NewMetadataExtractor(aiService, logger)
	if err != nil {
		_ = aiService.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		om:     om,
		ai:     aiService,
		engine: conversation.NewEngine(metadata, aiService, export.NewDocxRenderer(cfg.App.ExportDir), om, logger, opts...),
	}

	if cfg.App.WatchPrompts {
		a.watcher = config.NewPromptWatcher(cfg, 0, logger)
		if err := a.watcher.Start(); err != nil {
			logger.LogError(err, "Prompt hot reload disabled")
			a.watcher = nil
		}
	}

	return a, nil
}

// Close releases the model clients and flushes telemetry.
func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.LogError(err, "Failed to stop prompt watcher")
		}
	}
	if err := a.ai.Close(); err != nil {
		a.logger.LogError(err, "Failed to close AI service")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.om.Shutdown(ctx); err != nil {
		a.logger.LogError(err, "Failed to shutdown observability")
	}
}
