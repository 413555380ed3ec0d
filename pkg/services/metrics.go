package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agriviewer_turns_total",
			Help: "Number of handled chat turns by reply kind",
		},
		[]string{"kind"},
	)

	turnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agriviewer_turn_duration_seconds",
			Help:    "Duration of a chat turn",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	followUpRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agriviewer_follow_up_rounds_total",
			Help: "Number of extra fetch rounds requested by the model",
		},
	)

	dataSourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agriviewer_data_source_errors_total",
			Help: "Number of analysis data source failures",
		},
		[]string{"source"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agriviewer_active_sessions",
			Help: "Number of sessions currently held in memory",
		},
	)
)
