package provenance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crate_ledger_operations_total",
		Help: "Ledger operations by operation and outcome kind",
	}, []string{"operation", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crate_ledger_operation_duration_seconds",
		Help:    "Time spent in a ledger operation including its store transaction",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
	}, []string{"operation"})
)

// Operation names used as metric labels and log fields.
const (
	opCreate         = "create_crate"
	opTransfer       = "transfer_ownership"
	opMix            = "mix_crates"
	opSplit          = "split_crate"
	opUpdateChildren = "update_parent_children"
	opUpdateParent   = "update_child_parent"
)

func observe(op string, start time.Time, err error) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = Classify(err).String()
	}
	operationTotal.WithLabelValues(op, result).Inc()
}
