package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"resumetailor/internal/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ObservabilityConfig holds configuration for observability
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	ConsoleOutput  bool
	PrettyPrint    bool
	SampleRate     float64
	Prometheus     PrometheusConfig
}

// ObservabilityManager manages OpenTelemetry setup
type ObservabilityManager struct {
	config           ObservabilityConfig
	fullConfig       *config.Config
	resource         *resource.Resource
	tracerProvider   *trace.TracerProvider
	meterProvider    *sdkmetric.MeterProvider
	manualReader     *sdkmetric.ManualReader
	metrics          *Metrics
	shutdownFuncs    []func(context.Context) error
	prometheusServer *http.Server
}

// NewObservabilityManager creates a new observability manager
func NewObservabilityManager(obsConfig ObservabilityConfig, fullConfig *config.Config) (*ObservabilityManager, error) {
	if !obsConfig.Enabled {
		return &ObservabilityManager{config: obsConfig, fullConfig: fullConfig}, nil
	}

	om := &ObservabilityManager{
		config:        obsConfig,
		fullConfig:    fullConfig,
		shutdownFuncs: make([]func(context.Context) error, 0),
	}

	if err := om.initResource(); err != nil {
		return nil, fmt.Errorf("failed to initialize resource: %w", err)
	}

	if err := om.initTracing(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := om.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return om, nil
}

// NewNoopManager returns a disabled manager. Tracking calls still run their functions.
func NewNoopManager() *ObservabilityManager {
	return &ObservabilityManager{}
}

// initResource builds the resource shared by traces and metrics
func (om *ObservabilityManager) initResource() error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(om.config.ServiceName),
			semconv.ServiceVersion(om.config.ServiceVersion),
			attribute.String("service.instance.id", om.getServiceInstanceID()),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	om.resource = res
	return nil
}

// initTracing sets up OpenTelemetry tracing
func (om *ObservabilityManager) initTracing() error {
	var exporter trace.SpanExporter
	var err error

	switch {
	case om.config.ConsoleOutput:
		opts := []stdouttrace.Option{}
		if om.config.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exporter, err = stdouttrace.New(opts...)
	case om.fullConfig != nil && om.fullConfig.Observability.OTLP.Enabled:
		exporter, err = om.createOTLPExporter()
	default:
		exporter = &noOpSpanExporter{}
	}
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(om.resource),
		trace.WithSampler(trace.TraceIDRatioBased(om.config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	om.tracerProvider = tp
	om.shutdownFuncs = append(om.shutdownFuncs, tp.Shutdown)

	return nil
}

// initMetrics sets up OpenTelemetry metrics
func (om *ObservabilityManager) initMetrics() error {
	readers, err := om.setupMetricReaders()
	if err != nil {
		return err
	}

	meterProviderOptions := []sdkmetric.Option{
		sdkmetric.WithResource(om.resource),
	}
	for _, reader := range readers {
		meterProviderOptions = append(meterProviderOptions, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(meterProviderOptions...)

	otel.SetMeterProvider(mp)
	om.meterProvider = mp
	om.shutdownFuncs = append(om.shutdownFuncs, mp.Shutdown)

	return om.initCustomMetrics()
}

// setupMetricReaders sets up all metric readers based on configuration
func (om *ObservabilityManager) setupMetricReaders() ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader

	if err := om.setupConsoleReader(&readers); err != nil {
		return nil, err
	}
	if err := om.setupOTLPReader(&readers); err != nil {
		return nil, err
	}
	if err := om.setupPrometheusReader(&readers); err != nil {
		return nil, err
	}

	// Keep instruments live even without an exporter.
	if len(readers) == 0 {
		om.manualReader = sdkmetric.NewManualReader()
		readers = append(readers, om.manualReader)
	}

	return readers, nil
}

// setupConsoleReader sets up console metric reader if enabled
func (om *ObservabilityManager) setupConsoleReader(readers *[]sdkmetric.Reader) error {
	if !om.config.ConsoleOutput {
		return nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return fmt.Errorf("failed to create console metric exporter: %w", err)
	}

	interval := om.getMetricsCollectionInterval()
	*readers = append(*readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	return nil
}

// setupOTLPReader sets up OTLP metric reader if enabled
func (om *ObservabilityManager) setupOTLPReader(readers *[]sdkmetric.Reader) error {
	if om.fullConfig == nil || !om.fullConfig.Observability.OTLP.Enabled {
		return nil
	}

	otlpReader, err := om.createOTLPMetricsReader()
	if err != nil {
		return fmt.Errorf("failed to create OTLP metrics reader: %w", err)
	}
	*readers = append(*readers, otlpReader)
	return nil
}

// setupPrometheusReader sets up Prometheus metric reader if enabled
func (om *ObservabilityManager) setupPrometheusReader(readers *[]sdkmetric.Reader) error {
	if !om.config.Prometheus.Enabled {
		return nil
	}

	reader, handler, err := newPrometheusReader(om.config.Prometheus)
	if err != nil {
		return err
	}
	*readers = append(*readers, reader)

	server := servePrometheus(handler, om.config.Prometheus.Port)
	om.prometheusServer = server
	om.shutdownFuncs = append(om.shutdownFuncs, server.Shutdown)
	return nil
}

// GetMetrics returns the metrics instance
func (om *ObservabilityManager) GetMetrics() *Metrics {
	if om == nil || om.metrics == nil {
		return &Metrics{}
	}
	return om.metrics
}

// HTTPMiddleware returns HTTP middleware with OpenTelemetry instrumentation
func (om *ObservabilityManager) HTTPMiddleware() func(http.Handler) http.Handler {
	if !om.config.Enabled {
		return func(h http.Handler) http.Handler { return h }
	}

	return otelhttp.NewMiddleware(
		om.config.ServiceName,
		otelhttp.WithTracerProvider(om.tracerProvider),
		otelhttp.WithMeterProvider(om.meterProvider),
	)
}

// Tracer returns a tracer for the service
func (om *ObservabilityManager) Tracer(name string) oteltrace.Tracer {
	if om == nil || !om.config.Enabled {
		return noop.NewTracerProvider().Tracer(name)
	}
	return otel.Tracer(name)
}

// Shutdown gracefully shuts down all observability components
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	if om == nil {
		return nil
	}
	for _, shutdown := range om.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// noOpSpanExporter drops spans when no exporter is configured
type noOpSpanExporter struct{}

func (n *noOpSpanExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (n *noOpSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

// createOTLPExporter creates an OTLP HTTP trace exporter
func (om *ObservabilityManager) createOTLPExporter() (trace.SpanExporter, error) {
	otlpConfig := om.fullConfig.Observability.OTLP

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return exporter, nil
}

// createOTLPMetricsReader creates an OTLP HTTP metrics reader
func (om *ObservabilityManager) createOTLPMetricsReader() (sdkmetric.Reader, error) {
	otlpConfig := om.fullConfig.Observability.OTLP

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}

	interval := om.getMetricsCollectionInterval()
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
}

func (om *ObservabilityManager) getServiceInstanceID() string {
	if om.fullConfig != nil && om.fullConfig.Observability.ServiceInstance != "" {
		return om.fullConfig.Observability.ServiceInstance
	}
	return "resumetailor-1"
}

func (om *ObservabilityManager) getMetricsCollectionInterval() time.Duration {
	if om.fullConfig != nil && om.fullConfig.Observability.Metrics.CollectionInterval > 0 {
		return om.fullConfig.Observability.Metrics.CollectionInterval
	}
	return 15 * time.Second
}
