package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ScriptLoadTotal counts vendor script load outcomes (ok, unregistered, error).
	ScriptLoadTotal *prometheus.CounterVec
	// PaymentSessionTotal counts settled payment sessions by terminal outcome.
	PaymentSessionTotal *prometheus.CounterVec
	// PaymentSessionDuration records session duration from start to settlement.
	PaymentSessionDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers the payment gateway
// collectors. Safe to call more than once.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ScriptLoadTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_script_load_total",
			Help:      "Count of checkout script load outcomes.",
		}, []string{"result"}))
		PaymentSessionTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_payment_session_total",
			Help:      "Count of settled payment sessions by terminal outcome.",
		}, []string{"outcome"}))
		PaymentSessionDuration = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_payment_session_duration_ms",
			Help:      "Payment session duration from start to settlement in milliseconds.",
			Buckets:   []float64{50, 250, 1000, 5000, 15000, 60000, 180000, 300000},
		}, []string{"outcome"}))
	})
}

// CountScriptLoad records a script load outcome. No-op until metrics are registered.
func CountScriptLoad(result string) {
	if ScriptLoadTotal != nil {
		ScriptLoadTotal.WithLabelValues(result).Inc()
	}
}

// CountSession records a settled session. No-op until metrics are registered.
func CountSession(outcome string, elapsed time.Duration) {
	if PaymentSessionTotal != nil {
		PaymentSessionTotal.WithLabelValues(outcome).Inc()
	}
	if PaymentSessionDuration != nil {
		PaymentSessionDuration.WithLabelValues(outcome).Observe(DurationMillis(elapsed))
	}
}
