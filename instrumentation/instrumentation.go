package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceVersion is used when the caller does not set one.
const DefaultServiceVersion = "unknown"

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName names the service in exported telemetry.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false, no-op
	// providers are installed and recording costs nothing.
	Enabled bool

	// Resource allows custom resource attributes. If nil, a default resource
	// is built from ServiceName and ServiceVersion.
	Resource *resource.Resource
}

// Instrumentation bundles the meter and tracer providers together with the
// pre-built metric instruments.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	// registered during New only; not safe to mutate afterwards
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates an instrumentation instance. Exporters are the caller's
// responsibility; an instance created here wires providers and instruments
// only.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "oauthprovider"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	// No-op providers either way for now; callers that need exporters swap
	// the providers in through the otel globals.
	inst.meterProvider = noop.NewMeterProvider()
	inst.tracerProvider = tracenoop.NewTracerProvider()

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Shutdown flushes and stops all registered providers. Safe to call more
// than once.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope ("http", "server",
// "storage", "security").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter("github.com/authokit/oauthprovider/" + scope)
}

// Tracer returns a named tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer("github.com/authokit/oauthprovider/" + scope)
}

// Metrics returns the metric instruments for recording.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// EntityCountCallback reports the current number of stored entities of one
// kind.
type EntityCountCallback func() int64

// RegisterStorageSizeCallbacks registers observable gauges for storage entity
// counts. Store implementations call this once after instrumentation is set.
func (i *Instrumentation) RegisterStorageSizeCallbacks(
	clients, codes, accessTokens, refreshTokens EntityCountCallback,
) error {
	if i.meterProvider == nil {
		return fmt.Errorf("meter provider not initialized")
	}

	meter := i.Meter("storage")

	gauge, err := meter.Int64ObservableGauge(
		"storage.size",
		metric.WithDescription("Current number of stored entities by type"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create storage.size gauge: %w", err)
	}

	observe := func(observer metric.Observer, cb EntityCountCallback, entityType string) {
		if cb != nil {
			observer.ObserveInt64(gauge, cb(), metric.WithAttributes(
				attribute.String("type", entityType),
			))
		}
	}

	_, err = meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observe(observer, clients, "clients")
			observe(observer, codes, "authorization_codes")
			observe(observer, accessTokens, "access_tokens")
			observe(observer, refreshTokens, "refresh_tokens")
			return nil
		},
		gauge,
	)
	if err != nil {
		return fmt.Errorf("failed to register storage size callback: %w", err)
	}

	return nil
}
