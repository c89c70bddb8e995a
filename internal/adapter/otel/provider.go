package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/neomorfeo/procura/internal/config"
)

// Providers owns the process-wide tracer and meter providers.
type Providers struct {
	tracer *trace.TracerProvider
	meter  *metric.MeterProvider
}

// Setup builds tracer and meter providers for the configured exporter and
// registers them globally, together with a W3C propagator and an error
// handler that reports SDK failures through logger. Shutdown must be called
// on exit to flush pending telemetry.
func Setup(ctx context.Context, cfg config.OTelConfig, logger *zap.Logger) (*Providers, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otel resource: %w", err)
	}

	exp, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tracerOpts := []trace.TracerProviderOption{trace.WithResource(res)}
	meterOpts := []metric.Option{metric.WithResource(res)}
	if exp.spans != nil {
		tracerOpts = append(tracerOpts, trace.WithBatcher(exp.spans))
	}
	if exp.metrics != nil {
		meterOpts = append(meterOpts, metric.WithReader(metric.NewPeriodicReader(exp.metrics)))
	}

	p := &Providers{
		tracer: trace.NewTracerProvider(tracerOpts...),
		meter:  metric.NewMeterProvider(meterOpts...),
	}

	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("telemetry export failed", zap.Error(err))
	}))

	logger.Info("telemetry configured",
		zap.String("exporter", cfg.Exporter),
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
	)
	return p, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if err := p.meter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// exporters pairs the span and metric exporters of one backend. Both are nil
// when telemetry is recorded but not exported.
type exporters struct {
	spans   trace.SpanExporter
	metrics metric.Exporter
}

func newExporters(ctx context.Context, cfg config.OTelConfig) (exporters, error) {
	var (
		exp exporters
		err error
	)
	switch cfg.Exporter {
	case "none":
		return exp, nil
	case "stdout":
		if exp.spans, err = stdouttrace.New(stdouttrace.WithPrettyPrint()); err != nil {
			return exp, fmt.Errorf("creating stdout span exporter: %w", err)
		}
		if exp.metrics, err = stdoutmetric.New(); err != nil {
			return exp, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
	case "otlp":
		var (
			traceOpts  []otlptracehttp.Option
			metricOpts []otlpmetrichttp.Option
		)
		if cfg.Insecure() {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		if exp.spans, err = otlptracehttp.New(ctx, traceOpts...); err != nil {
			return exp, fmt.Errorf("creating otlp span exporter: %w", err)
		}
		if exp.metrics, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
			return exp, fmt.Errorf("creating otlp metric exporter: %w", err)
		}
	default:
		return exp, fmt.Errorf("unsupported exporter: %q (use \"stdout\", \"otlp\" or \"none\")", cfg.Exporter)
	}
	return exp, nil
}
