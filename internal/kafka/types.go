// Package kafka consumes device events from per-device Kafka topics.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

// EventSink receives every decoded device event.
type EventSink interface {
	HandleEvent(ctx context.Context, ev types.SensorEvent) error
}

type Watcher struct {
	brokers     []string
	groupID     string
	prefix      string
	interval    time.Duration
	sink        EventSink
	knownTopics map[string]bool
	logger      zerolog.Logger
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	prefix string
	sink   EventSink
	logger zerolog.Logger
}

var _ sarama.ConsumerGroupHandler = (*groupHandler)(nil)
