package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-translate/internal/config"
	"github.com/loqalabs/loqa-translate/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-translate/pipeline"

func setupTelemetry(cfg config.Config, logger *slog.Logger) (func(context.Context) error, http.Handler, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	traceProvider, traceShutdown, err := initTracer(ctx, cfg, res, logger)
	if err != nil {
		return nil, nil, err
	}
	otel.SetTracerProvider(traceProvider)

	meterProvider, metricHandler, err := initMetrics(res, logger)
	if err != nil {
		return nil, nil, err
	}
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		var errs []error
		if err := meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := traceShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return shutdown, metricHandler, nil
}

func initTracer(ctx context.Context, cfg config.Config, res *resource.Resource, logger *slog.Logger) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	if endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Telemetry.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		logger.Info("telemetry initialized", slog.String("exporter", "otlp"), slog.String("endpoint", endpoint))
		return tp, tp.Shutdown, nil
	}

	if !cfg.Telemetry.TraceStdout {
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		logger.Info("telemetry initialized", slog.String("exporter", "none"))
		return tp, tp.Shutdown, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	logger.Info("telemetry initialized", slog.String("exporter", "stdout"))
	return tp, tp.Shutdown, nil
}

func initMetrics(res *resource.Resource, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		return meter, nil, nil
	}
	meter := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	return meter, promhttp.Handler(), nil
}

// telemetryObserver turns pipeline transitions into one span per run with a
// child span per stage, and records run counts and stage latency.
type telemetryObserver struct {
	tracer       trace.Tracer
	runs         metric.Int64Counter
	failures     metric.Int64Counter
	stageLatency metric.Float64Histogram

	mu    sync.Mutex
	spans map[string]*runSpans
}

type runSpans struct {
	ctx   context.Context
	run   trace.Span
	stage trace.Span
}

func newTelemetryObserver(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetryObserver, error) {
	meter := mp.Meter(instrumentationName)
	runs, err := meter.Int64Counter("pipeline.runs",
		metric.WithDescription("Pipeline runs started"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("pipeline.failures",
		metric.WithDescription("Pipeline runs that ended in failure, by stage"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("pipeline.stage.duration",
		metric.WithDescription("Time spent in each pipeline stage"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &telemetryObserver{
		tracer:       tp.Tracer(instrumentationName),
		runs:         runs,
		failures:     failures,
		stageLatency: latency,
		spans:        make(map[string]*runSpans),
	}, nil
}

func (o *telemetryObserver) Observe(ctx context.Context, t pipeline.Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rs := o.spans[t.SessionID]
	if t.From == pipeline.StateIdle {
		runCtx, span := o.tracer.Start(ctx, "pipeline.run",
			trace.WithTimestamp(t.At.Add(-t.Elapsed)),
			trace.WithAttributes(
				attribute.String("session.id", t.SessionID),
				attribute.String("language.source", t.Request.SourceLanguage),
				attribute.String("language.target", t.Request.TargetLanguage),
			))
		rs = &runSpans{ctx: runCtx, run: span}
		o.spans[t.SessionID] = rs
		o.runs.Add(ctx, 1)
	}
	if rs == nil {
		return
	}

	if rs.stage != nil {
		if t.Err != nil {
			rs.stage.RecordError(t.Err)
			rs.stage.SetStatus(codes.Error, t.Err.Error())
		}
		rs.stage.End(trace.WithTimestamp(t.At))
		rs.stage = nil
	}
	if t.From != pipeline.StateIdle {
		o.stageLatency.Record(ctx, t.Elapsed.Seconds(),
			metric.WithAttributes(attribute.String("stage", string(t.From))))
	}

	if t.To.Terminal() {
		if t.To == pipeline.StateFailed {
			o.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(t.From))))
			if t.Err != nil {
				rs.run.SetStatus(codes.Error, t.Err.Error())
			}
		}
		rs.run.End(trace.WithTimestamp(t.At))
		delete(o.spans, t.SessionID)
		return
	}

	_, rs.stage = o.tracer.Start(rs.ctx, "pipeline."+string(t.To), trace.WithTimestamp(t.At))
}
