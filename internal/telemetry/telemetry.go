// Package telemetry provides the OTEL meter and tracer for cortexd.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the metric instruments and tracer. Tests pass a manual
// reader to observe recorded values; production wiring passes nil and
// exports through whatever reader the deployment registers.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	tracer        trace.Tracer

	// SessionsStarted counts sessions opened.
	SessionsStarted metric.Int64Counter

	// RequestsProcessed counts completed Process calls.
	RequestsProcessed metric.Int64Counter

	// CyclesCompleted counts archived feedback cycles.
	CyclesCompleted metric.Int64Counter

	// AlertsRaised counts monitor alerts observed.
	AlertsRaised metric.Int64Counter
}

// NewProvider builds the provider. reader may be nil.
func NewProvider(serviceName string, reader sdkmetric.Reader) (*Provider, error) {
	res := resource.NewWithAttributes(
		resource.Default().SchemaURL(),
		attribute.String("service.name", serviceName),
	)

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	meter := mp.Meter(serviceName)

	p := &Provider{
		meterProvider: mp,
		tracer:        otel.Tracer(serviceName),
	}

	var err error
	if p.SessionsStarted, err = meter.Int64Counter("cortexd.sessions.started"); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if p.RequestsProcessed, err = meter.Int64Counter("cortexd.requests.processed"); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if p.CyclesCompleted, err = meter.Int64Counter("cortexd.cycles.completed"); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if p.AlertsRaised, err = meter.Int64Counter("cortexd.alerts.raised"); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	return p, nil
}

// Tracer returns the tracer for pipeline spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}
