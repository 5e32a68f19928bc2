package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector
	registry      *promclient.Registry

	// OTel meters and instruments
	meter              metric.Meter
	statusCountGauge   metric.Int64ObservableGauge
	deliveriesCounter  metric.Int64Counter
	deliveryDuration   metric.Float64Histogram
}

// ExporterOption configures an OTelExporter
type ExporterOption func(*OTelExporter)

// WithRegistry registers the exporter on a dedicated Prometheus registry
// instead of the default one
func WithRegistry(registry *promclient.Registry) ExporterOption {
	return func(oe *OTelExporter) {
		oe.registry = registry
	}
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(collector Collector, opts ...ExporterOption) (*OTelExporter, error) {
	oe := &OTelExporter{collector: collector}
	for _, opt := range opts {
		opt(oe)
	}

	var exporterOpts []prometheus.Option
	if oe.registry != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(oe.registry))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	oe.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(oe.meterProvider)

	oe.meter = oe.meterProvider.Meter(
		"priorauth-notify",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.statusCountGauge, err = oe.meter.Int64ObservableGauge(
		"subscription.status.count",
		metric.WithDescription("Number of subscriptions by status"),
		metric.WithUnit("{subscriptions}"),
		metric.WithInt64Callback(oe.observeStatusCounts),
	)
	if err != nil {
		return fmt.Errorf("creating status count gauge: %w", err)
	}

	oe.deliveriesCounter, err = oe.meter.Int64Counter(
		"notification.deliveries",
		metric.WithDescription("Number of notification deliveries by type and outcome"),
		metric.WithUnit("{deliveries}"),
	)
	if err != nil {
		return fmt.Errorf("creating deliveries counter: %w", err)
	}

	oe.deliveryDuration, err = oe.meter.Float64Histogram(
		"notification.delivery.duration",
		metric.WithDescription("Duration of a delivery including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating delivery duration histogram: %w", err)
	}

	return nil
}

// observeStatusCounts is a callback that reports subscription counts by status
func (oe *OTelExporter) observeStatusCounts(ctx context.Context, observer metric.Int64Observer) error {
	statusCounts, err := oe.collector.GetStatusCounts(ctx)
	if err != nil {
		return err
	}

	for status, count := range statusCounts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("subscription.status", status),
		))
	}

	return nil
}

// RecordDelivery counts one delivery and records its duration
func (oe *OTelExporter) RecordDelivery(ctx context.Context, notificationType string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("notification.type", notificationType),
		attribute.String("delivery.outcome", Outcome(success)),
	)
	oe.deliveriesCounter.Add(ctx, 1, attrs)
	oe.deliveryDuration.Record(ctx, duration.Seconds(), attrs)
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	if oe.registry != nil {
		return promhttp.HandlerFor(oe.registry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
