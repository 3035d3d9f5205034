package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestProviderRecordsCounters(t *testing.T) {
	reader := metric.NewManualReader()
	p, err := NewProvider("cortexd-test", reader)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx := context.Background()
	p.SessionsStarted.Add(ctx, 1)
	p.RequestsProcessed.Add(ctx, 2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["cortexd.sessions.started"])
	assert.Equal(t, int64(2), sums["cortexd.requests.processed"])
}

func TestProviderTracer(t *testing.T) {
	p, err := NewProvider("cortexd-test", nil)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	_, span := p.Tracer().Start(context.Background(), "process")
	span.End()
	assert.NotNil(t, p.Tracer())
}
