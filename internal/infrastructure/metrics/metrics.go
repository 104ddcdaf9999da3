package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/semmidev/backupkeeper/internal/domain"
)

type PrometheusMetrics struct {
	registry          prometheus.Registerer
	backupsTotal      *prometheus.CounterVec
	backupDuration    *prometheus.HistogramVec
	retentionDeletes  *prometheus.CounterVec
	activeTimers      prometheus.Gauge
	lastSuccessMetric *prometheus.GaugeVec
}

func New(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		registry: reg,
		backupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "Scheduled backups by kind and result",
			},
			[]string{"kind", "result"},
		),
		backupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backup_duration_seconds",
				Help:      "Duration of scheduled backup creation",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"kind"},
		),
		retentionDeletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retention_deletions_total",
				Help:      "Backups removed by retention, by kind and result",
			},
			[]string{"kind", "result"},
		),
		activeTimers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_timers",
				Help:      "Number of live named backup timers",
			},
		),
		lastSuccessMetric: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful scheduled backup",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.backupsTotal,
		m.backupDuration,
		m.retentionDeletes,
		m.activeTimers,
		m.lastSuccessMetric,
	)

	return m
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *PrometheusMetrics) BackupFinished(kind domain.BackupKind, err error, took time.Duration) {
	m.backupsTotal.WithLabelValues(string(kind), result(err)).Inc()
	m.backupDuration.WithLabelValues(string(kind)).Observe(took.Seconds())
	if err == nil {
		m.lastSuccessMetric.WithLabelValues(string(kind)).SetToCurrentTime()
	}
}

func (m *PrometheusMetrics) RetentionDeleted(kind domain.BackupKind, err error) {
	m.retentionDeletes.WithLabelValues(string(kind), result(err)).Inc()
}

func (m *PrometheusMetrics) ActiveTimers(n int) {
	m.activeTimers.Set(float64(n))
}
