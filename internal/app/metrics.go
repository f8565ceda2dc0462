package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"alertgroups/internal/view"
)

// Metrics holds Prometheus metrics for fetching, pushing and regrouping.
type Metrics struct {
	FetchesTotal      *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	SnapshotAlerts    *prometheus.GaugeVec
	PushesTotal       *prometheus.CounterVec
	RegroupDuration   *prometheus.HistogramVec
	RegroupGroups     *prometheus.HistogramVec
	SessionsActive    prometheus.Gauge
	SessionsEvicted   prometheus.Counter
	SourceStaleStatus *prometheus.GaugeVec
}

// NewMetrics registers and returns service metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertgroups_fetches_total",
			Help: "Total poll cycles by source and result.",
		}, []string{"source", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alertgroups_fetch_duration_seconds",
			Help:    "Duration of poll cycles including retries.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"source"}),
		SnapshotAlerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertgroups_snapshot_alerts",
			Help: "Alerts in the latest snapshot of each source.",
		}, []string{"source"}),
		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertgroups_pushes_total",
			Help: "Total pushed snapshots by source and result.",
		}, []string{"source", "result"}),
		RegroupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alertgroups_regroup_duration_seconds",
			Help:    "Duration of session regroup computations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us .. ~1.6s
		}, []string{"source"}),
		RegroupGroups: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alertgroups_regroup_groups",
			Help:    "Display groups produced per regroup computation.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7), // 1 .. 4096
		}, []string{"source"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertgroups_sessions_active",
			Help: "Live operator sessions.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertgroups_sessions_evicted_total",
			Help: "Sessions removed after the idle timeout.",
		}),
		SourceStaleStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alertgroups_source_stale",
			Help: "1 when the last fetch of a source failed.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.FetchesTotal,
		m.FetchDuration,
		m.SnapshotAlerts,
		m.PushesTotal,
		m.RegroupDuration,
		m.RegroupGroups,
		m.SessionsActive,
		m.SessionsEvicted,
		m.SourceStaleStatus,
	)

	return m
}

// RegroupObserver returns a session hook that records regroup timing.
func (m *Metrics) RegroupObserver() view.RegroupObserver {
	return func(source string, took time.Duration, groups int) {
		m.RegroupDuration.WithLabelValues(source).Observe(took.Seconds())
		m.RegroupGroups.WithLabelValues(source).Observe(float64(groups))
	}
}

func (m *Metrics) observeFetch(source string, took time.Duration, err error, alerts int) {
	result := "success"
	stale := 0.0
	if err != nil {
		result = "error"
		stale = 1
	} else {
		m.SnapshotAlerts.WithLabelValues(source).Set(float64(alerts))
	}
	m.FetchesTotal.WithLabelValues(source, result).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(took.Seconds())
	m.SourceStaleStatus.WithLabelValues(source).Set(stale)
}

func (m *Metrics) observePush(source string, err error, alerts int) {
	result := "success"
	if err != nil {
		result = "error"
	} else {
		m.SnapshotAlerts.WithLabelValues(source).Set(float64(alerts))
	}
	m.PushesTotal.WithLabelValues(source, result).Inc()
}
