// Package telemetry sets up OpenTelemetry tracing and Sentry error reporting.
// Both are optional and stay disabled unless configured.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/shyim/lighthouse-report/internal/failure"
)

const flushTimeout = 2 * time.Second

type Settings struct {
	ServiceName string
	Version     string
	Environment string
	// OTLPEndpoint enables trace export to the collector at this URL. A URL
	// without a path gets the default /v1/traces path. Headers and timeouts
	// come from the standard OTEL_EXPORTER_OTLP_* variables.
	OTLPEndpoint string
	SentryDSN    string
}

// Shutdown flushes and stops whatever Setup enabled.
type Shutdown func(context.Context) error

func tracesURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid otlp endpoint %q", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/traces"
	}
	return u.String(), nil
}

func Setup(ctx context.Context, s Settings, logger *log.Logger) (Shutdown, error) {
	var shutdowns []Shutdown

	if s.OTLPEndpoint != "" {
		endpoint, err := tracesURL(s.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resource.NewSchemaless(
				attribute.String("service.name", s.ServiceName),
				attribute.String("service.version", s.Version),
			)),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdowns = append(shutdowns, tp.Shutdown)
		logger.Debug("tracing enabled", "endpoint", endpoint)
	}

	if s.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         s.SentryDSN,
			Release:     s.ServiceName + "@" + s.Version,
			Environment: s.Environment,
		})
		if err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		shutdowns = append(shutdowns, func(context.Context) error {
			sentry.Flush(flushTimeout)
			return nil
		})
		logger.Debug("sentry enabled")
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

// CaptureFailure reports a classified failure with its kind as a tag.
// It is a no-op when Sentry is not initialised.
func CaptureFailure(err *failure.Error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", string(err.Kind))
		if err.Op != "" {
			scope.SetTag("op", err.Op)
		}
		if err.Resource != "" {
			scope.SetExtra("resource", err.Resource)
		}
		sentry.CaptureException(err)
	})
}

// CaptureError reports an unclassified error.
func CaptureError(err error) {
	if err == nil {
		return
	}
	var fe *failure.Error
	if errors.As(err, &fe) {
		CaptureFailure(fe)
		return
	}
	sentry.CaptureException(err)
}
