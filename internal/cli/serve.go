package cli

import (
	"resumetailor/internal/conversation"
	"resumetailor/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server hosting resume tailoring conversations",
	Long: `Start an HTTP server that hosts conversations in memory.

Available endpoints:
- POST   /sessions: Start a conversation and receive the greeting
- POST   /sessions/{id}/messages: Send one input ({"text": "..."}); responds with
         the turn's events as JSON, or as Server-Sent Events when the request
         has "Accept: text/event-stream"
- GET    /sessions/{id}: Session state and transcript (?format=json|text|markdown)
- GET    /sessions/{id}/download: Latest exported Word document
- DELETE /sessions/{id}: End a conversation
- GET    /health: Health check including model availability
- GET    /stats: Server statistics and rate limiting info`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}

	// Documents are only reachable through the session that produced them.
	a, err := newApp(cfg, logger, true, conversation.WithEphemeralExports())
	if err != nil {
		return err
	}
	defer a.Close()

	writeTimeout := cfg.EffectiveWriteTimeout()
	if writeTimeout != cfg.Server.WriteTimeout {
		logger.Warn("Raising server write timeout to cover a job posting turn",
			"configured", cfg.Server.WriteTimeout.String(),
			"effective", writeTimeout.String())
	}

	serverCfg := server.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        Version,
		BotName:        cfg.App.BotName,
		APIKeys:        cfg.Server.APIKeys,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: cfg.App.MaxFileSize,
		RateLimit:      &cfg.Server.RateLimit,
		Sessions:       cfg.Server.Sessions,
	}
	deps := server.Dependencies{Engine: a.engine, Models: a.ai, Observability: a.om}
	return server.NewServer(cfg, serverCfg, deps, logger).Start(cmd.Context())
}
