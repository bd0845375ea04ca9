package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_sessions",
		Help: "Connected STOMP sessions on this instance.",
	})

	handshakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_handshakes_total",
			Help: "CONNECT handshakes, by result (ok, unauthorized, protocol, timeout).",
		},
		[]string{"result"},
	)

	framesIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_frames_received_total",
			Help: "Client frames processed, by STOMP command.",
		},
		[]string{"command"},
	)

	delivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_messages_delivered_total",
		Help: "MESSAGE frames queued to local sessions.",
	})

	dropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_dropped_total",
			Help: "Frames dropped, by reason (queue_full, forbidden, rate_limited, invalid, timeout).",
		},
		[]string{"reason"},
	)
)
