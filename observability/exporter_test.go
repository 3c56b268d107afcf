package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/benz9527/xcoll/lib/tree"
)

func fillTreeMap(t *testing.T, name string) tree.TreeMap[int, string] {
	m := tree.NewOrderedTreeMap[int, string](tree.WithTreeMapStats[int, string](name, nil))
	for i := 0; i < 8; i++ {
		added, err := m.Add(i, "v")
		require.NoError(t, err)
		require.True(t, added)
	}
	return m
}

func TestConsoleMetricsExporter(t *testing.T) {
	buf := &bytes.Buffer{}
	shutdown, err := NewConsoleMetricsExporter(time.Hour, time.Second, stdoutmetric.WithWriter(buf))
	require.NoError(t, err)

	m := fillTreeMap(t, "console")
	require.Equal(t, int64(8), m.Len())

	// The periodic reader flushes on shutdown.
	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "treemap.size")
	require.Contains(t, buf.String(), tree.TreeMapStatsName+"/console")
}

func TestPrometheusMetricsExporter(t *testing.T) {
	reg := promclient.NewRegistry()
	shutdown, err := NewPrometheusMetricsExporter(prometheus.WithRegisterer(reg))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, shutdown(context.Background()))
	}()

	m := fillTreeMap(t, "prometheus")
	_, ok := m.RemoveMin()
	require.True(t, ok)

	families, err := reg.Gather()
	require.NoError(t, err)
	var size float64
	found := false
	for _, f := range families {
		if f.GetName() != "treemap_size" {
			continue
		}
		found = true
		for _, metric := range f.GetMetric() {
			size += metric.GetGauge().GetValue()
		}
	}
	require.True(t, found)
	require.Equal(t, float64(7), size)
}

func TestWaitForShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	called := false
	res := WaitForShutdown(ctx, func(ctx context.Context) error {
		called = true
		return errors.New("shutdown")
	})
	cancel()
	select {
	case err := <-res:
		require.EqualError(t, err, "shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback is not called")
	}
	require.True(t, called)

	_, ok := <-WaitForShutdown(context.Background(), nil)
	require.False(t, ok)
}

func TestInitAppStats(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		require.NoError(t, mp.Shutdown(context.Background()))
	}()
	require.NoError(t, InitAppStats("test", mp))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != AppStatsName+"/test" {
			continue
		}
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				names[m.Name] += dp.Value
			}
		}
	}
	require.Positive(t, names["app.core.goroutines"])
	require.Positive(t, names["app.core.processes"])
}
