package server

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"resumetailor/internal/errors"
	"resumetailor/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const limiterIdleEviction = 10 * time.Minute

// LimiterManager manages a collection of rate limiters for different keys (IPs, API keys).
type LimiterManager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	done     chan struct{}
	once     sync.Once
	logger   *errors.Logger
}

// RateLimiter is the limiter the server wires into its middleware chain
type RateLimiter = LimiterManager

// NewRateLimiter creates a token bucket per key refilling at requestsPerMin
// with burstCapacity tokens.
func NewRateLimiter(requestsPerMin, burstCapacity int, logger *errors.Logger) *LimiterManager {
	m := &LimiterManager{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burstCapacity,
		done:     make(chan struct{}),
		logger:   logger,
	}

	go m.cleanupRoutine(limiterIdleEviction)
	return m
}

// GetLimiter retrieves or creates a limiter for a given key.
func (m *LimiterManager) GetLimiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, exists := m.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = limiter
	}
	m.lastSeen[key] = time.Now()

	return limiter
}

// Allow checks if a request should be allowed for the given key
func (m *LimiterManager) Allow(key string) bool {
	return m.GetLimiter(key).Allow()
}

// retryAfter is the whole seconds a drained bucket needs to regain one token.
func (m *LimiterManager) retryAfter() int {
	if m.rate <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(m.rate)))
}

// GetStats returns current rate limiter statistics
func (m *LimiterManager) GetStats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"enabled":         true,
		"active_limiters": len(m.limiters),
		"rate_per_second": float64(m.rate),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
	}
}

// cleanupRoutine periodically removes inactive limiters
func (m *LimiterManager) cleanupRoutine(cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(time.Now(), cleanupInterval)
		case <-m.done:
			return
		}
	}
}

// cleanup removes limiters that haven't been used for evictionAge
func (m *LimiterManager) cleanup(now time.Time, evictionAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, lastSeen := range m.lastSeen {
		if now.Sub(lastSeen) > evictionAge {
			delete(m.limiters, key)
			delete(m.lastSeen, key)
		}
	}

	if m.logger != nil {
		m.logger.Debug("Rate limiter cleanup completed",
			"remaining_limiters", len(m.limiters))
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (m *LimiterManager) Close() {
	m.once.Do(func() { close(m.done) })
}

// rateLimitMiddleware rejects requests over the per-key budget with 429.
func (s *Server) rateLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	if s.RateLimiter == nil {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rateLimitKey := getRateLimitKey(r, s.RateLimit.ByAPIKey, s.RateLimit.ByIP)
			if rateLimitKey == "" {
				next(w, r)
				return
			}

			if !s.RateLimiter.Allow(rateLimitKey) {
				keyType, _, _ := strings.Cut(rateLimitKey, ":")
				s.Observability.GetMetrics().RecordConversationEvent(r.Context(), observability.EventRateLimitHit, false,
					s.Observability, attribute.String("key_type", keyType), attribute.String("endpoint", r.Pattern))
				s.Logger.Info("Rate limit exceeded",
					"key_type", keyType,
					"endpoint", r.URL.Path,
					"client_ip", getClientIP(r))
				w.Header().Set("Retry-After", strconv.Itoa(s.RateLimiter.retryAfter()))
				writeErrorResponse(w, "Rate limit exceeded", "Too many requests", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}

// Helper to consolidate key extraction logic
func getRateLimitKey(r *http.Request, byAPIKey, byIP bool) string {
	if byAPIKey {
		if apiKey := requestAPIKey(r); apiKey != "" {
			return "api:" + apiKey
		}
	}

	if byIP {
		return "ip:" + getClientIP(r)
	}

	return ""
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (for proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseFirstIP parses the first valid IP from a comma-separated list
func parseFirstIP(ips string) string {
	for ip := range strings.SplitSeq(ips, ",") {
		ip = strings.TrimSpace(ip)
		if parsed := net.ParseIP(ip); parsed != nil {
			return ip
		}
	}
	return ""
}
