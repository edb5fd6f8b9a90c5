// Package telemetry exports poll outcomes and the rolling average to Prometheus.
package telemetry

import (
	"net/http"

	"github.com/NotCoffee418/pzem_monitor/pkg/pzem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pzem_polls_total",
		Help: "Poll cycles by result code.",
	}, []string{"result"})

	averageSamples = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pzem_average_samples",
		Help: "Samples in the rolling average window.",
	})

	average = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pzem_average",
		Help: "Rolling average of each measured quantity.",
	}, []string{"quantity"})

	alarms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pzem_alarms",
		Help: "Alarm bits seen in the current window.",
	})
)

func init() {
	prometheus.MustRegister(
		pollsTotal,
		averageSamples,
		average,
		alarms,
	)
}

// ObservePoll counts one poll cycle, nil err meaning success.
func ObservePoll(err error) {
	pollsTotal.WithLabelValues(pzem.ErrorCode(err).String()).Inc()
}

func ObserveAverage(avg pzem.Measurement, count int) {
	averageSamples.Set(float64(count))
	average.WithLabelValues("voltage_v").Set(avg.Voltage)
	average.WithLabelValues("current_a").Set(avg.Current)
	average.WithLabelValues("power_w").Set(avg.Power)
	average.WithLabelValues("energy_kwh").Set(avg.Energy)
	average.WithLabelValues("frequency_hz").Set(avg.Frequency)
	average.WithLabelValues("power_factor").Set(avg.PowerFactor)
	alarms.Set(float64(avg.Alarms))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
