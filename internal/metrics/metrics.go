// Package metrics exports scheduler activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/timeline"
)

// Metrics is a copilot.Observer that counts marks and windows.
type Metrics struct {
	reg *prometheus.Registry

	marks       *prometheus.CounterVec
	windows     *prometheus.CounterVec
	slotResults *prometheus.CounterVec
	haveLock    prometheus.Gauge
	lastWindow  prometheus.Gauge
}

// New registers the copilot collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Name:      "marks_total",
			Help:      "Marks recorded, by name.",
		}, []string{"mark"}),
		windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Name:      "windows_total",
			Help:      "Finished windows, by whether they had a position lock.",
		}, []string{"gps_lock"}),
		slotResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Name:      "slot_dispositions_total",
			Help:      "Slot outcomes at window end.",
		}, []string{"slot", "disposition", "script_ok"}),
		haveLock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "copilot",
			Name:      "gps_lock",
			Help:      "1 if the last window was scheduled from a position lock.",
		}),
		lastWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "copilot",
			Name:      "last_window_marks",
			Help:      "Marks recorded in the last finished window.",
		}),
	}
	m.reg.MustRegister(m.marks, m.windows, m.slotResults, m.haveLock, m.lastWindow)
	m.reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// OnMark counts a mark.
func (m *Metrics) OnMark(_ string, e timeline.Entry) {
	m.marks.WithLabelValues(e.Name).Inc()
}

// OnWindowReport records a finished window.
func (m *Metrics) OnWindowReport(r copilot.Report) {
	lock := "false"
	m.haveLock.Set(0)
	if r.HaveGpsLock {
		lock = "true"
		m.haveLock.Set(1)
	}
	m.windows.WithLabelValues(lock).Inc()
	m.lastWindow.Set(float64(len(r.Marks)))
	for _, s := range r.Slots {
		ok := "false"
		if s.ScriptRanOk {
			ok = "true"
		}
		m.slotResults.WithLabelValues(s.Slot, s.Disposition, ok).Inc()
	}
}
