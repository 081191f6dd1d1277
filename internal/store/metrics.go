package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds one store's collectors. A nil *metrics records nothing.
type metrics struct {
	saves        *prometheus.CounterVec
	saveDuration prometheus.Histogram
	mutations    *prometheus.CounterVec
	records      prometheus.Gauge
	recoveries   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &metrics{
		// saves counts snapshot saves by result
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionstore_saves_total",
			Help: "Total dataset saves by result",
		}, []string{"result"}),

		// saveDuration tracks the time to write both snapshots
		saveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sessionstore_save_duration_seconds",
			Help:    "Time to write both snapshots in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),

		// mutations counts add and update calls by result
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionstore_mutations_total",
			Help: "Total record mutations by operation and result",
		}, []string{"op", "result"}),

		records: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sessionstore_records",
			Help: "Number of records in the dataset",
		}),

		recoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionstore_recoveries_total",
			Help: "Total recovery attempts by result",
		}, []string{"result"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *metrics) observeSave(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(result(err)).Inc()
	m.saveDuration.Observe(d.Seconds())
}

func (m *metrics) observeMutation(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, result(err)).Inc()
}

func (m *metrics) setRecords(n int) {
	if m == nil {
		return
	}
	m.records.Set(float64(n))
}

func (m *metrics) observeRecovery(err error) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(result(err)).Inc()
}
