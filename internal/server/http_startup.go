package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const shutdownTimeout = 30 * time.Second

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%s", s.Host, s.Port))
	if err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve runs the server on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := s.setupHTTPServer()

	s.Sessions.Start(ctx)
	s.displayServerInfo()

	serverErrors := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting HTTP server", "address", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		s.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.Logger.Info("Received shutdown signal, starting graceful shutdown")
		return s.performGracefulShutdown(httpServer)
	}
}

// setupHTTPServer creates and configures the HTTP server
func (s *Server) setupHTTPServer() *http.Server {
	return &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}
}

// performGracefulShutdown handles the graceful shutdown process
func (s *Server) performGracefulShutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.Logger.Info("Shutting down HTTP server...")
	err := server.Shutdown(shutdownCtx)
	s.cleanup()
	if err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return server.Close()
	}

	s.Logger.Info("Server shutdown completed successfully")
	return nil
}

// cleanup stops the session evictor, drops the remaining sessions and stops the rate limiter
func (s *Server) cleanup() {
	s.Sessions.Close()
	if n := s.Sessions.DeleteAll(); n > 0 {
		s.Logger.Info("Discarded remaining sessions", "count", n)
	}
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
		s.Logger.Info("Rate limiter cleaned up")
	}
}
