// Package metrics maintains the prometheus metrics exposed by the node.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_errors_total",
		Help: "Total requests that failed with an error.",
	})

	panicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_panics_total",
		Help: "Total requests that panicked.",
	})

	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_submitted_total",
		Help: "Total transactions submitted by result.",
	}, []string{"result"})

	blocksMinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_blocks_mined_total",
		Help: "Total blocks mined on request.",
	})

	miningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_mining_duration_seconds",
		Help:    "Time spent solving the proof of work puzzle.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_chain_validations_total",
		Help: "Total full chain validations by result.",
	}, []string{"result"})
)

// Ledger represents the behavior needed to report the size of the ledger.
type Ledger interface {
	Length() int
	PendingCount() int
}

// RegisterLedger registers gauges that read the chain length and the
// number of pending transactions when scraped. It must be called once.
func RegisterLedger(ldg Ledger) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ledger_chain_length",
		Help: "Number of blocks in the chain.",
	}, func() float64 { return float64(ldg.Length()) })

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ledger_pending_transactions",
		Help: "Number of transactions waiting to be mined.",
	}, func() float64 { return float64(ldg.PendingCount()) })
}

// Handler returns the handler that serves the metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// =============================================================================

// RecordRequest records a completed request.
func RecordRequest(method string, path string, status int, duration time.Duration) {
	requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError records a request that failed.
func RecordError() {
	errorsTotal.Inc()
}

// RecordPanic records a request that panicked.
func RecordPanic() {
	panicsTotal.Inc()
}

// RecordTransaction records a submitted transaction and whether it was
// accepted into the pending pool.
func RecordTransaction(accepted bool) {
	transactionsTotal.WithLabelValues(result(accepted)).Inc()
}

// RecordBlockMined records a mined block and the time spent mining it.
func RecordBlockMined(duration time.Duration) {
	blocksMinedTotal.Inc()
	miningDuration.Observe(duration.Seconds())
}

// RecordValidation records a full chain validation.
func RecordValidation(valid bool) {
	validationsTotal.WithLabelValues(result(valid)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
