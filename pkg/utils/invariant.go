// Invariants are conditions in code that must always hold; a violation means there is a bug in twine itself,
// e.g. a non-empty list without a head node or a keyspace entry of an unknown type.
// Raising an invariant records an error log and bumps a monitoring counter instead of crashing the server.
// The caller still has to handle the erroneous case, usually with an early return.
//
// Do not raise invariants for conditions caused by clients, e.g. an out of range index in a command;
// those are ordinary errors returned to the client.
// Test builds (-ldflags "-X ...utils.TestMode=true") panic on violations so tests can't silently pass over them.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "twine",
	Name:      "invariants_total",
	Help:      "The total number of invariant violations",
}, []string{
	"module", // The module in which this invariant occurred.
	"type",   // The type of the invariant that occurred.
})

// RaiseInvariant reports a violated invariant of `invariantType` inside `module`.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.With("invariant", invariantType, "module", module).Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetMetricValue returns how many times the invariant `invariantType` of `module` has been raised.
func GetMetricValue(module, invariantType string) int {
	var metric = &promclient.Metric{}
	if err := invariantsMetric.WithLabelValues(module, invariantType).Write(metric); err != nil {
		slog.Error(err.Error())
		return 0
	}
	return int(metric.Counter.GetValue())
}
