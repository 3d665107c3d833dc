package service

import (
	"strings"
	"time"

	"residence-data/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 分配相关指标；nil 接收者安全
type Metrics struct {
	operations *prometheus.CounterVec
	retries    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics reg 为 nil 时指标不注册（测试用）
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "residence",
			Subsystem: "allocation",
			Name:      "operations_total",
			Help:      "Housing write operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "residence",
			Subsystem: "allocation",
			Name:      "tx_retries_total",
			Help:      "Transactions retried after deadlock, serialization failure or timeout.",
		}, []string{"operation"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "residence",
			Subsystem: "allocation",
			Name:      "operation_duration_seconds",
			Help:      "Latency of housing write operations including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if k := domain.KindOf(err); k != "" {
		return strings.ToLower(string(k))
	}
	return "error"
}
