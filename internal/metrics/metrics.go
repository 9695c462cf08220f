// Package metrics exposes Prometheus counters for the event pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts successfully published events per topic.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_pipeline_events_published_total",
		Help: "Number of events successfully published, by topic.",
	}, []string{"topic"})

	// PublishFailures counts sends that exhausted their retry budget.
	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_pipeline_publish_failures_total",
		Help: "Number of publishes that exhausted retries, by topic.",
	}, []string{"topic"})

	// EventsConsumed counts messages applied by consumers per topic.
	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_pipeline_events_consumed_total",
		Help: "Number of messages applied by consumers, by topic.",
	}, []string{"topic"})

	// DuplicateEvents counts redeliveries dropped by the dedup store.
	DuplicateEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_pipeline_duplicate_events_total",
		Help: "Number of redelivered messages dropped by the dedup gate, by topic.",
	}, []string{"topic"})

	// HandlerFailures counts handler errors that trigger redelivery.
	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_pipeline_handler_failures_total",
		Help: "Number of handler failures leading to redelivery, by topic.",
	}, []string{"topic"})
)
