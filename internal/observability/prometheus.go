package observability

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"resumetailor/internal/config"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusConfig holds Prometheus-specific configuration
type PrometheusConfig struct {
	Enabled  bool
	Endpoint string
	Port     string
}

// newPrometheusReader returns a metric reader registered on its own registry
// and a handler exposing that registry at cfg.Endpoint.
func newPrometheusReader(cfg PrometheusConfig) (sdkmetric.Reader, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return exporter, mux, nil
}

// servePrometheus serves handler on port in the background
func servePrometheus(handler http.Handler, port string) *http.Server {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Starting Prometheus metrics server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Prometheus server error: %v", err)
		}
	}()
	return server
}

// GetPrometheusConfig creates Prometheus configuration from provided config
func GetPrometheusConfig(cfg *config.Config) PrometheusConfig {
	if cfg == nil {
		return PrometheusConfig{Endpoint: "/metrics", Port: "9090"}
	}
	return PrometheusConfig{
		Enabled:  cfg.Observability.Prometheus.Enabled,
		Endpoint: cfg.Observability.Prometheus.Endpoint,
		Port:     cfg.Observability.Prometheus.Port,
	}
}
