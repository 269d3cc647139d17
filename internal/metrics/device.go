package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TelemetryMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "telemetry_messages_total",
		Namespace: EcobinNamespace,
		Help:      "MQTT telemetry messages by outcome (accepted, invalid, dropped, failed).",
	}, []string{"outcome"})

	TelemetryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "telemetry_queue_depth",
		Namespace: EcobinNamespace,
		Help:      "Current number of telemetry messages waiting for a worker.",
	})

	DeviceEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "device_events_total",
		Namespace: EcobinNamespace,
		Help:      "Device events consumed from Kafka by type.",
	}, []string{"type"})

	DeviceEventErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "device_event_errors_total",
		Namespace: EcobinNamespace,
		Help:      "Device events that could not be decoded or handled.",
	})

	DeviceHealthScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "device_health_score",
		Namespace: EcobinNamespace,
		Help:      "Latest composite health score (0-40) per device.",
	}, []string{"device_id"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "websocket_clients",
		Namespace: EcobinNamespace,
		Help:      "Currently connected websocket clients.",
	})

	WebsocketDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "websocket_dropped_total",
		Namespace: EcobinNamespace,
		Help:      "Messages dropped because a websocket client was too slow.",
	})
)
