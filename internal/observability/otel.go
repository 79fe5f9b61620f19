package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"taskmesh/internal/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// InitOTel wires a TracerProvider/MeterProvider pair. When obs.Enabled is
// false the OTLP exporters are skipped but the Prometheus reader is still
// attached, so spec.md §6's literal /metrics text endpoint keeps working
// with no collector configured. Returns a shutdown func and the Prometheus
// scrape handler for httpapi to mount.
func InitOTel(ctx context.Context, obs config.ObsConfig) (shutdown func(context.Context) error, metricsHandler http.Handler, err error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithAttributes(
			semconv.ServiceName(obs.ServiceName),
			semconv.ServiceVersion(obs.ServiceVersion),
			attribute.String("deployment.environment", obs.Environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("init resource: %w", err)
	}

	promExp, err := otelprom.New()
	if err != nil {
		return nil, nil, fmt.Errorf("init prometheus exporter: %w", err)
	}
	readerOpts := []metric.Option{metric.WithReader(promExp), metric.WithResource(res)}

	var tp *sdktrace.TracerProvider
	var lp *sdklog.LoggerProvider
	if obs.Enabled && obs.OTLP != "" {
		trExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(obs.OTLP), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("init trace exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(trExp), sdktrace.WithResource(res))

		metricsExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(obs.OTLP), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("init metrics exporter: %w", err)
		}
		readerOpts = append(readerOpts, metric.WithReader(metric.NewPeriodicReader(metricsExp, metric.WithInterval(10*time.Second))))

		logExp, err := otlploghttp.New(ctx, otlploghttp.WithEndpoint(obs.OTLP), otlploghttp.WithInsecure())
		if err != nil {
			return nil, nil, fmt.Errorf("init log exporter: %w", err)
		}
		lp = sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)), sdklog.WithResource(res))
		global.SetLoggerProvider(lp)
		AttachOTelWriter(obs.ServiceName)
	} else {
		tp = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	}

	mp := metric.NewMeterProvider(readerOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if err := host.Start(host.WithMeterProvider(mp)); err != nil {
		return nil, nil, fmt.Errorf("start host metrics: %w", err)
	}

	handler := promhttp.Handler()

	shutdown = func(ctx context.Context) error {
		var first error
		if err := mp.Shutdown(ctx); err != nil {
			first = err
		}
		if err := tp.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
		if lp != nil {
			if err := lp.Shutdown(ctx); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return shutdown, handler, nil
}
