package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors fed from the sensor topics.
type Metrics struct {
	Temperature *prometheus.GaugeVec
	Humidity    *prometheus.GaugeVec
	Events      *prometheus.CounterVec
	LinkUp      *prometheus.GaugeVec
	Sequence    *prometheus.GaugeVec
}

// NewMetrics builds the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshsense_temperature_centi_celsius",
			Help: "Last decoded temperature in hundredths of a degree Celsius.",
		}, []string{"sensor"}),
		Humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshsense_humidity_percent",
			Help: "Last decoded relative humidity, whole percent.",
		}, []string{"sensor"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshsense_cycle_events_total",
			Help: "Acquisition cycle outcomes.",
		}, []string{"sensor", "outcome"}),
		LinkUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshsense_link_up",
			Help: "1 when the last cycle read a valid frame.",
		}, []string{"sensor"}),
		Sequence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meshsense_mesh_tid",
			Help: "Transaction id of the last mesh publish attempt.",
		}, []string{"sensor"}),
	}
	reg.MustRegister(m.Temperature, m.Humidity, m.Events, m.LinkUp, m.Sequence)
	return m
}
