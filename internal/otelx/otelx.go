// Package otelx installs the global tracer provider. Spans are exported
// over OTLP/gRPC to a local collector.
package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"

	"github.com/devint-cl/devint-web/internal/xerrors"
)

// DefaultDialTimeout bounds exporter construction.
const DefaultDialTimeout = 3 * time.Second

type Options struct {
	Enabled  bool
	Endpoint string
	Insecure bool

	// Headers are sent with every export, e.g. a collector auth token
	Headers map[string]string

	// Sample is the root sampling ratio, clamped to [0,1]
	Sample float64

	Service     string
	Component   string
	Version     string
	Environment string

	DialTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Service == "" {
		o.Service = "devint-web"
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	switch {
	case o.Sample < 0:
		o.Sample = 0
	case o.Sample > 1:
		o.Sample = 1
	}
}

func (o *Options) validate() error {
	if o.Endpoint == "" {
		return xerrors.New("otelx: tracing enabled without an endpoint")
	}
	return nil
}

// serviceName is service.component, or just service.
func (o *Options) serviceName() string {
	if o.Component == "" {
		return o.Service
	}
	return o.Service + "." + o.Component
}

func setPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
}

// Init installs the tracer provider and propagator and returns its
// shutdown func. When disabled an SDK provider without exporters is still
// installed so trace ids exist for log correlation.
func Init(ctx context.Context, o Options) (func(context.Context) error, error) {
	if !o.Enabled {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		setPropagator()
		return func(context.Context) error { return nil }, nil
	}

	o.setDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(o.Endpoint),
		otlptracegrpc.WithCompressor("gzip"),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(o.serviceName() + "/" + o.Version)),
	}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(o.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(o.Headers))
	}

	dialCtx, cancel := context.WithTimeout(ctx, o.DialTimeout)
	defer cancel()
	exp, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "otelx: create exporter for %s", o.Endpoint)
	}

	attrs := []resource.Option{
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(o.serviceName()),
			semconv.ServiceVersionKey.String(o.Version),
		),
	}
	if o.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironmentKey.String(o.Environment)))
	}
	// partial resources are still usable, detector errors are not fatal
	res, _ := resource.New(ctx, attrs...)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.Sample))),
		sdktrace.WithBatcher(exp,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	setPropagator()
	return tp.Shutdown, nil
}
