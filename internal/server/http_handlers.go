package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	apperrors "resumetailor/internal/errors"
	"resumetailor/internal/types"
)

const defaultHealthCheckTimeout = 15 * time.Second

// getHealthCheckTimeout returns the configured health check timeout
func (s *Server) getHealthCheckTimeout() time.Duration {
	if s.AppConfig == nil || s.AppConfig.Observability.HealthCheck.Timeout <= 0 {
		return defaultHealthCheckTimeout
	}
	return s.AppConfig.Observability.HealthCheck.Timeout
}

// healthHandler reports service health including model availability
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := types.HealthResponse{
		Status:    "healthy",
		Version:   s.Version,
		Timestamp: time.Now().UTC(),
	}

	if s.Models != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.getHealthCheckTimeout())
		defer cancel()

		response.Models = make(map[string]types.ModelStatus)
		for op, info := range s.Models.GetModelInfo(ctx) {
			if info == nil {
				continue
			}
			response.Models[op] = types.ModelStatus{
				Name:      info.Name,
				Provider:  info.Provider,
				Available: info.Available,
				Error:     info.Error,
			}
			if !info.Available {
				response.Status = "degraded"
			}
		}
		response.Breakers = s.Models.GetCircuitBreakerStats()
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := types.StatsResponse{
		Version:        s.Version,
		Uptime:         time.Since(s.startedAt).Round(time.Second).String(),
		ActiveSessions: s.Sessions.Len(),
		MaxRequestSize: s.MaxRequestSize,
		RateLimiting:   map[string]any{"enabled": false},
	}
	if s.AppConfig != nil {
		response.MaxSessions = s.AppConfig.Server.Sessions.MaxSessions
		response.SessionTTL = s.AppConfig.Server.Sessions.TTL.String()
	}
	if s.RateLimiter != nil {
		response.RateLimiting = s.RateLimiter.GetStats()
	}

	writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !isJSONContentType(ct) {
		return fmt.Errorf("content-type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && mediaType == "application/json"
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSON(w, statusCode, types.ErrorResponse{Error: error, Message: message})
}

// writeAppError maps an application error to its HTTP status
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeSessionNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeSessionLimit:
		status = http.StatusServiceUnavailable
	case apperrors.ErrCodeInvalidRequest, apperrors.ErrCodeInvalidFormat:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.Logger.LogError(err, "Request failed")
	}

	message := err.Error()
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, status, types.ErrorResponse{Error: http.StatusText(status), Message: message, Code: code})
}
