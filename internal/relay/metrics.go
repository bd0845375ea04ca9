package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	published = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_published_total",
			Help: "Relay events published, by channel kind.",
		},
		[]string{"kind"},
	)

	received = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_received_total",
			Help: "Relay events received from the broker, by channel kind.",
		},
		[]string{"kind"},
	)

	failed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_failed_total",
			Help: "Relay events that failed, by channel kind and stage (encode, publish, decode, deliver).",
		},
		[]string{"kind", "stage"},
	)
)
