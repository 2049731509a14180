package asemantic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "asemantic",
		Subsystem: "validator",
		Name:      "validations_total",
		Help:      "Total count of validation attempts by outcome.",
	}, []string{"result"})

	comparisonsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asemantic",
		Subsystem: "validator",
		Name:      "comparisons_total",
		Help:      "Total count of window positions recomputed and compared.",
	})

	commitFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asemantic",
		Subsystem: "validator",
		Name:      "commit_failures_total",
		Help:      "Total count of accepted fragments whose state commit failed.",
	})
)
