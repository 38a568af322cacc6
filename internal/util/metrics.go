package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_create_rejected_total",
		Help: "Total number of order creation requests rejected by business rules",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of committed order status transitions",
	}, []string{"from", "to"})

	NegotiationsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiations_created_total",
		Help: "Total number of negotiation offers appended to a ledger",
	}, []string{"proposed_by"})

	NegotiationsRefusedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiations_refused_total",
		Help: "Total number of negotiation offers refused by the turn or round rules",
	}, []string{"reason"})

	NegotiationResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "negotiation_responses_total",
		Help: "Total number of responses to negotiation offers",
	}, []string{"status"})

	NegotiationRoundsAtAcceptance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "negotiation_rounds_at_acceptance",
		Help:    "Round number of the offer that closed a negotiation",
		Buckets: []float64{1, 2, 3, 4, 5, 6},
	})

	CommissionAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_amount_total",
		Help: "Sum of platform commission assessed on accepted orders",
	})

	OrderLockWaitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_lock_wait_seconds",
		Help:    "Time spent waiting for a per-order lock",
		Buckets: prometheus.DefBuckets,
	})

	ProduceCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "produce_cache_requests_total",
		Help: "Produce cache lookups by result",
	}, []string{"result"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of marketplace events written to Kafka",
	}, []string{"type", "result"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Total number of marketplace events handled by workers",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
