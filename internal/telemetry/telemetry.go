package telemetry

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

const MeterName = "github.com/satriahrh/interview-coach"

// Telemetry owns the meter provider and the scrape handler
type Telemetry struct {
	provider metric.MeterProvider
	handler  http.Handler
	shutdown func(context.Context) error
}

// Setup creates a meter provider backed by a Prometheus exporter. When
// disabled, a no-op provider is returned and Handler is nil.
func Setup(ctx context.Context, serviceName string, enabled bool, logger *zap.Logger) (*Telemetry, error) {
	if !enabled {
		logger.Info("Metrics disabled")
		return &Telemetry{
			provider: noop.NewMeterProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		logger.Warn("Failed to initialize prometheus exporter", zap.Error(err))
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		return &Telemetry{provider: provider, shutdown: provider.Shutdown}, nil
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	logger.Info("Telemetry initialized", zap.String("exporter", "prometheus"))

	return &Telemetry{
		provider: provider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		shutdown: provider.Shutdown,
	}, nil
}

// Meter returns the service meter
func (t *Telemetry) Meter() metric.Meter {
	return t.provider.Meter(MeterName)
}

// Handler serves the Prometheus scrape endpoint, or nil when metrics are disabled
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
