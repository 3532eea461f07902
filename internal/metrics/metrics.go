// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TerminalsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductord_terminals_created_total",
		Help: "Terminals spawned, by provider kind.",
	}, []string{"provider"})

	TerminalCreateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductord_terminal_create_failures_total",
		Help: "Terminal spawns that failed, by provider kind.",
	}, []string{"provider"})

	InboxDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductord_inbox_delivered_total",
		Help: "Inbox messages delivered to terminals.",
	})

	InboxFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductord_inbox_failed_total",
		Help: "Inbox messages whose delivery failed.",
	})

	ApprovalsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductord_approvals_decided_total",
		Help: "Approval requests decided, by outcome.",
	}, []string{"outcome"})

	PromptsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductord_prompts_forwarded_total",
		Help: "Interactive prompts escalated to supervisors.",
	})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conductord_sweep_duration_seconds",
		Help:    "Duration of periodic sweeps, by sweep name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sweep"})
)
