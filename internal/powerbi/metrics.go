package powerbi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client-side instrumentation, registered on the default registry.
// The monitor command exposes these via promhttp when --metrics-addr is set.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pbirest",
		Subsystem: "session",
		Name:      "requests_total",
		Help:      "Outbound API requests by method and HTTP status.",
	}, []string{"method", "status"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pbirest",
		Subsystem: "session",
		Name:      "retries_total",
		Help:      "Retry waits taken, by policy.",
	}, []string{"policy"})

	tokenExchangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pbirest",
		Subsystem: "auth",
		Name:      "token_exchanges_total",
		Help:      "Credential exchanges performed against the token endpoint.",
	})
)
