// Package metricsvc exposes attendance and scan counters to Prometheus.
package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attendify/attendify/core/attendance"
	"github.com/attendify/attendify/core/scan"
)

const namespace = "attendify"

// Metrics is an attendance.Listener counting writes and closures.
type Metrics struct {
	registry     *prometheus.Registry
	records      *prometheus.CounterVec
	closures     prometheus.Counter
	closedCounts *prometheus.GaugeVec
	scans        *prometheus.CounterVec
	scanSessions prometheus.Gauge
}

var _ attendance.Listener = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_records_written_total",
			Help:      "Attendance records written, by status.",
		}, []string{"status"}),
		closures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_days_closed_total",
			Help:      "Days closed.",
		}),
		closedCounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attendance_last_closed_students",
			Help:      "Students per status on the last closed day.",
		}, []string{"status"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_sessions_finished_total",
			Help:      "Finished scan sessions, by terminal state and reason.",
		}, []string{"state", "reason"}),
		scanSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_sessions_open",
			Help:      "Scan sessions held in memory.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.records, m.closures, m.closedCounts, m.scans, m.scanSessions,
	)
	return m
}

func (m *Metrics) RecordUpdated(rec attendance.Record) {
	m.records.WithLabelValues(string(rec.Status)).Inc()
}

func (m *Metrics) DayClosed(ledger attendance.Ledger, _ attendance.Closure) {
	m.closures.Inc()
	m.closedCounts.WithLabelValues(string(attendance.StatusPresent)).Set(float64(ledger.Count(attendance.StatusPresent)))
	m.closedCounts.WithLabelValues(string(attendance.StatusAbsent)).Set(float64(ledger.Count(attendance.StatusAbsent)))
}

// ScanFinished counts a session that reached a terminal state.
// Free text reasons are counted as scan.ReasonOther.
func (m *Metrics) ScanFinished(view scan.View) {
	if !view.State.Terminal() {
		return
	}
	m.scans.WithLabelValues(string(view.State), scan.KnownReason(view.Reason)).Inc()
}

func (m *Metrics) SetOpenScanSessions(n int) {
	m.scanSessions.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
