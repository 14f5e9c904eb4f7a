package replication

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts replication traffic.
type Metrics struct {
	pushes  *prometheus.CounterVec
	pulls   *prometheus.CounterVec
	applies *prometheus.CounterVec
	enabled prometheus.Gauge
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avicontrol",
			Subsystem: "replication",
			Name:      "pushes_total",
			Help:      "Collection snapshots pushed to the mirror.",
		}, []string{"collection", "result"}),
		pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avicontrol",
			Subsystem: "replication",
			Name:      "pulls_total",
			Help:      "Collection snapshots pulled from the mirror on activation.",
		}, []string{"collection", "result"}),
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avicontrol",
			Subsystem: "replication",
			Name:      "remote_applies_total",
			Help:      "Remote change notifications applied to the local store.",
		}, []string{"collection", "result"}),
		enabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "avicontrol",
			Subsystem: "replication",
			Name:      "enabled",
			Help:      "1 while replication is enabled.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.pushes, m.pulls, m.applies, m.enabled)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
