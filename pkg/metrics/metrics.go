// Package metrics provides Prometheus metrics for the bellflower service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal tracks dispatched notifications by subject and outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of notifications dispatched by subject and outcome",
		},
		[]string{"subject", "outcome"},
	)

	// DeliveriesTotal tracks external delivery attempts by channel and outcome
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total number of external delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// DeliveryDuration tracks external delivery latency
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bellflower",
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Duration of external delivery calls in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bellflower",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// HTTPServerRequestsTotal tracks inbound HTTP requests by route
	HTTPServerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "http_server",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPServerRequestDuration tracks inbound HTTP request duration
	HTTPServerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bellflower",
			Subsystem: "http_server",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ChatSubscribers tracks live chat sockets across all channels
	ChatSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bellflower",
			Subsystem: "chat",
			Name:      "subscribers",
			Help:      "Number of attached chat subscribers",
		},
	)

	// ChatChannels tracks channels with at least one subscriber
	ChatChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bellflower",
			Subsystem: "chat",
			Name:      "channels",
			Help:      "Number of live chat channels",
		},
	)

	// ChatEvictionsTotal tracks subscribers evicted for not keeping up
	ChatEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "chat",
			Name:      "evictions_total",
			Help:      "Total number of slow chat subscribers evicted during broadcast",
		},
	)

	// ChatMessagesTotal tracks chat messages accepted by source (rest or socket)
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total number of chat messages persisted",
		},
		[]string{"source"},
	)

	// ImportanceFlipsTotal tracks rows toggled by the importance scheduler
	ImportanceFlipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "scheduler",
			Name:      "importance_flips_total",
			Help:      "Total number of notifications whose importance was flipped",
		},
	)

	// SchedulerRunsTotal tracks scheduler ticks by status
	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduler ticks by status",
		},
		[]string{"status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// RateLimitedTotal tracks requests rejected by the rate limiter
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bellflower",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of inbound requests rejected by the rate limiter",
		},
	)
)

// RecordNotification records a dispatched notification
func RecordNotification(subject, outcome string) {
	NotificationsTotal.WithLabelValues(subject, outcome).Inc()
}

// RecordDelivery records an external delivery attempt
func RecordDelivery(channel, outcome string, durationSeconds float64) {
	DeliveriesTotal.WithLabelValues(channel, outcome).Inc()
	DeliveryDuration.WithLabelValues(channel).Observe(durationSeconds)
}

// RecordHTTPRequest records an outbound HTTP request
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordHTTPServerRequest records an inbound HTTP request
func RecordHTTPServerRequest(method, route, statusCode string, durationSeconds float64) {
	HTTPServerRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPServerRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordChatMessage records a persisted chat message
func RecordChatMessage(source string) {
	ChatMessagesTotal.WithLabelValues(source).Inc()
}

// RecordSchedulerRun records a scheduler tick and the rows it flipped
func RecordSchedulerRun(status string, flipped int64) {
	SchedulerRunsTotal.WithLabelValues(status).Inc()
	if flipped > 0 {
		ImportanceFlipsTotal.Add(float64(flipped))
	}
}

// RecordKafkaPublish records a Kafka publish
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
