package telemetry

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObservePoll(t *testing.T) {
	ok := testutil.ToFloat64(pollsTotal.WithLabelValues("ok"))
	crc := testutil.ToFloat64(pollsTotal.WithLabelValues("integrity"))
	timeout := testutil.ToFloat64(pollsTotal.WithLabelValues("timeout"))

	ObservePoll(nil)
	ObservePoll(&pzem.CRCError{Calculated: 1, Received: 2})
	ObservePoll(fmt.Errorf("cycle: %w", pzem.ErrShortResponse))

	require.Equal(t, ok+1, testutil.ToFloat64(pollsTotal.WithLabelValues("ok")))
	require.Equal(t, crc+1, testutil.ToFloat64(pollsTotal.WithLabelValues("integrity")))
	require.Equal(t, timeout+1, testutil.ToFloat64(pollsTotal.WithLabelValues("timeout")))
}

func TestObserveAverage(t *testing.T) {
	ObserveAverage(pzem.Measurement{Voltage: 230.5, Power: 120, Alarms: 0x3}, 7)

	require.Equal(t, 7.0, testutil.ToFloat64(averageSamples))
	require.Equal(t, 230.5, testutil.ToFloat64(average.WithLabelValues("voltage_v")))
	require.Equal(t, 120.0, testutil.ToFloat64(average.WithLabelValues("power_w")))
	require.Equal(t, 3.0, testutil.ToFloat64(alarms))
}

func TestHandler(t *testing.T) {
	ObservePoll(nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "pzem_polls_total"))
}

func TestCollectorsRegistered(t *testing.T) {
	for _, c := range []prometheus.Collector{pollsTotal, averageSamples, average, alarms} {
		var are prometheus.AlreadyRegisteredError
		require.ErrorAs(t, prometheus.Register(c), &are)
		require.Same(t, c, are.ExistingCollector)
	}
}
