package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pbirest",
	Subsystem: "refresh",
	Name:      "outcomes_total",
	Help:      "Refresh start outcomes by kind.",
}, []string{"outcome"})
