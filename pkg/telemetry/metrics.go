package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messengerdb_messages_sent_total",
		Help: "Messages durably written to the conversation log",
	})

	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messengerdb_idempotent_replays_total",
		Help: "Sends collapsed onto a previously applied client token",
	})

	PartialFanouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messengerdb_partial_fanouts_total",
		Help: "Sends whose summary fanout failed after the log write and were handed to repair",
	})

	RepairRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messengerdb_repair_runs_total",
		Help: "Conversation reconciliation passes completed",
	})

	RepairPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "messengerdb_repair_pending",
		Help: "Repair tasks persisted and not yet acked",
	})

	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messengerdb_conversations_created_total",
		Help: "Conversations created",
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messengerdb_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "messengerdb_http_request_duration_seconds",
		Help:    "HTTP request duration",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"method", "path"},
	)
)
