// Package metrics exports session usage and store write outcomes to prometheus.
package metrics

import (
	"net/http"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricSessionsUsed      = "lsc_sessions_used"
	MetricSessionsRemaining = "lsc_sessions_remaining"
	MetricStoreWritesTotal  = "lsc_store_writes_total"
)

// Recorder keeps its own registry so repeated construction in tests never collides.
type Recorder struct {
	registry    *prometheus.Registry
	used        *prometheus.GaugeVec
	remaining   *prometheus.GaugeVec
	storeWrites *prometheus.CounterVec
}

var _ ports.UsageRecorder = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		used: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricSessionsUsed,
			Help: "Sessions started in the current billing window.",
		}, []string{"account"}),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricSessionsRemaining,
			Help: "Sessions left in the current billing window. Negative when over quota.",
		}, []string{"account"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStoreWritesTotal,
			Help: "Store writes by operation and result.",
		}, []string{"op", "result"}),
	}
	r.registry.MustRegister(r.used, r.remaining, r.storeWrites)
	return r
}

func (r *Recorder) RecordWrite(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.storeWrites.WithLabelValues(op, result).Inc()
}

func (r *Recorder) RecordUsage(account domain.Account, summary domain.UsageSummary) {
	r.used.WithLabelValues(string(account.ID)).Set(float64(summary.Used))
	r.remaining.WithLabelValues(string(account.ID)).Set(float64(summary.Remaining))
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
