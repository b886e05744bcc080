package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestControllerRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctrl, factory, _ := newTestController(t, Options{Meter: provider.Meter("test")})

	_, err := ctrl.Start(context.Background(), Config{Language: "en-US", PartialResults: true})
	require.NoError(t, err)
	factory.deliver(0, PartialResults{Matches: []string{"a"}})
	factory.deliver(0, PartialResults{Matches: []string{"a"}})
	factory.deliver(0, EngineFailure{Code: CodeAudio})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				totals[m.Name] += point.Value
			}
		}
	}

	require.Equal(t, int64(1), totals["hark.sessions.started"])
	require.Equal(t, int64(1), totals["hark.partials.emitted"])
	require.Equal(t, int64(1), totals["hark.partials.suppressed"])
	require.Equal(t, int64(1), totals["hark.engine.errors"])
	require.Equal(t, int64(1), totals["hark.recognizer.created"])
	require.Equal(t, int64(1), totals["hark.recognizer.destroyed"])
}
