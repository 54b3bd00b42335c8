package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/logger"
)

// Config for OTEL setup
type Config struct {
	ServiceName string            // e.g., "invoice-client"
	Exporter    string            // "stdout", "otlp" or "none"
	Endpoint    string            // OTLP endpoint, e.g., "localhost:4317" (required for "otlp")
	Protocol    string            // "grpc" or "http" (default "grpc" for "otlp")
	Insecure    bool              // Disable TLS for OTLP (development only)
	Headers     map[string]string // Custom headers for OTLP, e.g., for auth
	LogFile     string            // Path for JSON logs
	LogLevel    string            // "debug", "info", "warn", "error" (default "info")
	Version     string
}

type exporters struct {
	trace  sdktrace.SpanExporter
	log    log.Exporter
	metric sdkmetric.Exporter
}

// InitOTEL sets up providers, tracer, meter, and returns them + bridged logger.
// With the "none" exporter the providers record nothing and the logger only
// writes to LogFile and stderr.
func InitOTEL(
	cfg Config,
) (trace.Tracer, metric.Meter, *zap.SugaredLogger, func(context.Context) error, error) {
	ctx := context.Background()

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	exp, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	logOpts := []log.LoggerProviderOption{log.WithResource(res)}
	if exp.trace != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp.trace))
	}
	if exp.metric != nil {
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metric)))
	}
	if exp.log != nil {
		logOpts = append(logOpts, log.WithProcessor(log.NewBatchProcessor(exp.log)))
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tp)
	mp := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetMeterProvider(mp)
	lp := log.NewLoggerProvider(logOpts...)
	global.SetLoggerProvider(lp)

	tracer := otel.Tracer(cfg.ServiceName)
	meter := otel.Meter(cfg.ServiceName)

	var zapLogger *zap.Logger
	if exp.log == nil {
		zapLogger = logger.NewLogger(cfg.LogFile, cfg.LogLevel).Desugar()
	} else {
		level := logger.ParseLevel(cfg.LogLevel)
		var cores []zapcore.Core
		if cfg.LogFile != "" {
			cores = append(cores, logger.FileCore(cfg.LogFile, level))
		}
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		cores = append(cores, otelzap.NewCore(
			cfg.ServiceName,
			otelzap.WithLoggerProvider(global.GetLoggerProvider()),
			otelzap.WithVersion(version),
		))
		zapLogger = zap.New(zapcore.NewTee(cores...))
	}

	shutdown := func(ctx context.Context) error {
		err := errors.Join(
			tp.Shutdown(ctx),
			lp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
		_ = zapLogger.Sync()
		return err
	}

	return tracer, meter, zapLogger.Sugar(), shutdown, nil
}

func newExporters(ctx context.Context, cfg Config) (exporters, error) {
	switch cfg.Exporter {
	case "", "none":
		return exporters{}, nil
	case "stdout":
		return newStdoutExporters()
	case "otlp":
		if cfg.Endpoint == "" {
			return exporters{}, fmt.Errorf("OTLP endpoint required")
		}
		switch cfg.Protocol {
		case "", "grpc":
			return newGRPCExporters(ctx, cfg)
		case "http":
			return newHTTPExporters(ctx, cfg)
		default:
			return exporters{}, fmt.Errorf("invalid protocol: %s", cfg.Protocol)
		}
	default:
		return exporters{}, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

func newStdoutExporters() (exporters, error) {
	var exp exporters
	var err error
	if exp.trace, err = stdouttrace.New(stdouttrace.WithPrettyPrint()); err != nil {
		return exporters{}, err
	}
	if exp.log, err = stdoutlog.New(); err != nil {
		return exporters{}, err
	}
	if exp.metric, err = stdoutmetric.New(stdoutmetric.WithPrettyPrint()); err != nil {
		return exporters{}, err
	}
	return exp, nil
}

func newGRPCExporters(ctx context.Context, cfg Config) (exporters, error) {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		traceOpts = append(traceOpts, otlptracegrpc.WithHeaders(cfg.Headers))
		logOpts = append(logOpts, otlploggrpc.WithHeaders(cfg.Headers))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithHeaders(cfg.Headers))
	}

	var exp exporters
	var err error
	if exp.trace, err = otlptrace.New(ctx, otlptracegrpc.NewClient(traceOpts...)); err != nil {
		return exporters{}, err
	}
	if exp.log, err = otlploggrpc.New(ctx, logOpts...); err != nil {
		return exporters{}, err
	}
	if exp.metric, err = otlpmetricgrpc.New(ctx, metricOpts...); err != nil {
		return exporters{}, err
	}
	return exp, nil
}

func newHTTPExporters(ctx context.Context, cfg Config) (exporters, error) {
	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	logOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		logOpts = append(logOpts, otlploghttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		traceOpts = append(traceOpts, otlptracehttp.WithHeaders(cfg.Headers))
		logOpts = append(logOpts, otlploghttp.WithHeaders(cfg.Headers))
		metricOpts = append(metricOpts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}

	var exp exporters
	var err error
	if exp.trace, err = otlptrace.New(ctx, otlptracehttp.NewClient(traceOpts...)); err != nil {
		return exporters{}, err
	}
	if exp.log, err = otlploghttp.New(ctx, logOpts...); err != nil {
		return exporters{}, err
	}
	if exp.metric, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
		return exporters{}, err
	}
	return exp, nil
}
