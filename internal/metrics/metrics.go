package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, path and status
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletlink_http_requests_total",
		Help: "HTTP requests processed, by method, path template and status",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration observes request latency by path
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "walletlink_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// MailboxPublished counts mailbox messages by channel kind
	MailboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletlink_mailbox_messages_total",
		Help: "Messages published to recipient mailboxes",
	}, []string{"channel"})

	// ActiveRelaySubscriptions tracks open webrtc relay subscriptions
	ActiveRelaySubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "walletlink_relay_subscriptions_active",
		Help: "Currently authenticated webrtc relay subscriptions",
	})

	// ActiveLinks tracks the in-memory active link cache size
	ActiveLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "walletlink_links_active",
		Help: "Active session-wallet links held in the registry cache",
	})
)
