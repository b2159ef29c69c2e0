package server

import (
	"net/http"
	"strings"
)

// Handler returns the routed and instrumented handler of the server.
func (s *Server) Handler() http.Handler {
	return s.Observability.HTTPMiddleware()(s.setupRoutes())
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	rateLimit := s.rateLimitMiddleware()
	requestLimit := s.requestSizeLimitMiddleware()
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return rateLimit(s.authMiddleware(requestLimit(h)))
	}

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)

	mux.HandleFunc("POST /sessions", protect(s.createSessionHandler))
	mux.HandleFunc("GET /sessions/{id}", protect(s.getSessionHandler))
	mux.HandleFunc("DELETE /sessions/{id}", protect(s.deleteSessionHandler))
	mux.HandleFunc("POST /sessions/{id}/messages", protect(s.messageHandler))
	mux.HandleFunc("GET /sessions/{id}/download", protect(s.downloadHandler))

	return mux
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if len(s.APIKeys) == 0 {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.APIKeys[apiKey] {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
			}
			next(w, r)
		}
	}
}

// requestAPIKey reads X-API-Key, falling back to an Authorization Bearer token
func requestAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
