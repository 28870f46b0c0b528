package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrecon_events_received_total",
		Help: "Total webhook events received, labelled by event type.",
	}, []string{"type"})

	EventsDeduped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrecon_events_deduped_total",
		Help: "Total duplicate deliveries short-circuited, labelled by dedup source.",
	}, []string{"source"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrecon_events_processed_total",
		Help: "Total events fully processed, labelled by outcome.",
	}, []string{"outcome"})

	IllegalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrecon_illegal_transitions_total",
		Help: "Total webhook transitions rejected by the state machine, labelled by from and to status.",
	}, []string{"from", "to"})

	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payrecon_orders_created_total",
		Help: "Total orders created through checkout.",
	})

	CheckoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrecon_checkout_failures_total",
		Help: "Total failed checkouts, labelled by reason.",
	}, []string{"reason"})

	StockDecrements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payrecon_stock_decrements_total",
		Help: "Total atomic stock decrements applied.",
	})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrecon_emails_sent_total",
		Help: "Total mail jobs queued, labelled by kind.",
	}, []string{"kind"})

	EmailsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payrecon_emails_suppressed_total",
		Help: "Total confirmation emails suppressed by the order-level dedup key.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payrecon_http_request_duration_seconds",
		Help:    "HTTP request latency by handler and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler", "method"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrecon_http_requests_total",
		Help: "Total HTTP requests by handler, method and status.",
	}, []string{"handler", "method", "status"})
)
