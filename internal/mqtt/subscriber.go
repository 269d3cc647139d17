package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ntentasd/ecobin-api/internal/metrics"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

const DefaultQueueSize = 1000

// ReadingSink receives every decoded telemetry reading.
type ReadingSink interface {
	HandleReading(ctx context.Context, r types.SensorReading) error
}

type message struct {
	topic   string
	payload []byte
}

// Subscriber decouples paho's delivery goroutine from reading processing
// through a bounded queue drained by a worker pool.
type Subscriber struct {
	queue   chan message
	workers int
	sink    ReadingSink
	logger  zerolog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	dropLogAt atomic.Int64
}

func NewSubscriber(workers, queueSize int, sink ReadingSink, logger zerolog.Logger) *Subscriber {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Subscriber{
		queue:   make(chan message, queueSize),
		workers: workers,
		sink:    sink,
		logger:  logger.With().Str("component", "mqtt").Logger(),
	}
}

// Handler is the paho callback. It must not block: payloads are copied and
// enqueued, and dropped when the queue is full.
func (s *Subscriber) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		s.enqueue(msg.Topic(), msg.Payload())
	}
}

func (s *Subscriber) enqueue(topic string, payload []byte) {
	data := make([]byte, len(payload))
	copy(data, payload)

	select {
	case s.queue <- message{topic: topic, payload: data}:
		metrics.TelemetryQueueDepth.Inc()
	default:
		metrics.TelemetryMessagesTotal.WithLabelValues("dropped").Inc()
		s.logDropRateLimited()
	}
}

func (s *Subscriber) logDropRateLimited() {
	now := time.Now().UnixNano()
	last := s.dropLogAt.Load()
	if now-last >= int64(time.Second) && s.dropLogAt.CompareAndSwap(last, now) {
		s.logger.Warn().Msg("telemetry queue full, message dropped")
	}
}

// Start launches the workers. They exit once Stop has been called and the
// queue is drained.
func (s *Subscriber) Start(ctx context.Context) {
	for range s.workers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for msg := range s.queue {
				metrics.TelemetryQueueDepth.Dec()
				s.process(ctx, msg)
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight readings. Disconnect the
// paho client first so no handler enqueues after the close.
func (s *Subscriber) Stop() {
	s.closeOnce.Do(func() { close(s.queue) })
	s.wg.Wait()
}

func (s *Subscriber) process(ctx context.Context, msg message) {
	r, err := decodeReading(msg.topic, msg.payload, time.Now().UTC())
	if err != nil {
		metrics.TelemetryMessagesTotal.WithLabelValues("invalid").Inc()
		s.logger.Warn().Err(err).Str("topic", msg.topic).Msg("failed to decode telemetry")
		return
	}

	if err := s.sink.HandleReading(ctx, r); err != nil {
		if errors.Is(err, types.ErrInvalidReading) {
			metrics.TelemetryMessagesTotal.WithLabelValues("invalid").Inc()
			s.logger.Warn().Err(err).Str("device_id", r.DeviceID).Msg("invalid telemetry reading")
			return
		}
		metrics.TelemetryMessagesTotal.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("device_id", r.DeviceID).Msg("failed to record reading")
		return
	}

	metrics.TelemetryMessagesTotal.WithLabelValues("accepted").Inc()
}

// TelemetryTopic is the topic a device publishes readings on.
func TelemetryTopic(deviceID string) string {
	return "ecobin/" + types.CanonicalDeviceID(deviceID) + "/telemetry"
}

// CommandTopic is the topic a device listens on for commands.
func CommandTopic(deviceID string) string {
	return "ecobin/" + types.CanonicalDeviceID(deviceID) + "/command"
}

// deviceFromTopic extracts <id> from "ecobin/<id>/telemetry".
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[2] != "telemetry" {
		return ""
	}
	return parts[1]
}

// decodeReading fills a missing device id from the topic and a missing
// timestamp with the receive time.
func decodeReading(topic string, payload []byte, received time.Time) (types.SensorReading, error) {
	var r types.SensorReading
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, fmt.Errorf("invalid payload: %w", err)
	}

	fromTopic := deviceFromTopic(topic)
	switch {
	case r.DeviceID == "":
		r.DeviceID = fromTopic
	case fromTopic != "" && types.CanonicalDeviceID(r.DeviceID) != types.CanonicalDeviceID(fromTopic):
		return r, fmt.Errorf("device_id %q does not match topic %s", r.DeviceID, topic)
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = received
	}
	return r, nil
}
