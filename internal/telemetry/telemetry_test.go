package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 8)
	c.Collect(ch)
	close(ch)
	var total float64
	for m := range ch {
		var d dto.Metric
		require.NoError(t, m.Write(&d))
		if d.Counter != nil {
			total += d.Counter.GetValue()
		}
	}
	return total
}

func TestCollector_ObserveRunIncrementsOutcomeCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveRun(50*time.Millisecond, true)
	c.ObserveRun(10*time.Millisecond, false)

	assert := require.New(t)
	assert.Equal(float64(1), counterValue(t, c.runsTotal.WithLabelValues("success")))
	assert.Equal(float64(1), counterValue(t, c.runsTotal.WithLabelValues("failure")))
}

func TestCollector_OrderCountersIncrementPerLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.OrderSubmitted("SPY", "BUY")
	c.OrderRejected("QQQ", "missing_price")
	c.BreakerTripped("broker-connectivity")

	require.Equal(t, float64(1), counterValue(t, c.ordersSubmitted.WithLabelValues("SPY", "BUY")))
	require.Equal(t, float64(1), counterValue(t, c.ordersRejected.WithLabelValues("QQQ", "missing_price")))
	require.Equal(t, float64(1), counterValue(t, c.breakerTrips.WithLabelValues("broker-connectivity")))
}
