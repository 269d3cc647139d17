package kafka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	"github.com/ntentasd/ecobin-api/internal/metrics"
	"github.com/rs/zerolog"
)

const defaultDiscoveryInterval = 30 * time.Second

func NewWatcher(brokers []string, groupID, prefix string, sink EventSink, logger zerolog.Logger) *Watcher {
	return &Watcher{
		brokers:     brokers,
		groupID:     groupID,
		prefix:      prefix,
		interval:    defaultDiscoveryInterval,
		sink:        sink,
		knownTopics: make(map[string]bool),
		logger:      logger.With().Str("component", "kafka").Logger(),
	}
}

func newConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}
	return cfg
}

// Run consumes every topic matching the prefix until ctx is cancelled. New
// topics are picked up by the discovery loop, which restarts the group
// session with the wider topic set.
func (w *Watcher) Run(ctx context.Context) error {
	client, err := sarama.NewClient(w.brokers, newConfig())
	if err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	defer client.Close()

	group, err := sarama.NewConsumerGroupFromClient(w.groupID, client)
	if err != nil {
		return fmt.Errorf("kafka consumer group: %w", err)
	}
	defer group.Close()

	handler := &groupHandler{prefix: w.prefix, sink: w.sink, logger: w.logger}

	for {
		topics, err := w.discover(client)
		if err != nil {
			w.logger.Warn().Err(err).Msg("list topics failed")
		}

		if len(topics) > 0 {
			w.consume(ctx, client, group, handler, topics)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.interval):
		}
	}
}

// consume runs the group session over topics until ctx ends or discovery
// reports a different topic set.
func (w *Watcher) consume(ctx context.Context, client sarama.Client, group sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler, topics []string) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for sessCtx.Err() == nil {
			if err := group.Consume(sessCtx, topics, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				w.logger.Error().Err(err).Msg("consume failed")
				select {
				case <-sessCtx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			cancel()
			<-done
			return
		case <-ticker.C:
			if err := client.RefreshMetadata(); err != nil {
				w.logger.Warn().Err(err).Msg("metadata refresh failed")
				continue
			}
			next, err := w.discover(client)
			if err != nil {
				w.logger.Warn().Err(err).Msg("list topics failed")
				continue
			}
			if !slices.Equal(next, topics) {
				cancel()
				<-done
				return
			}
		}
	}
}

// discover returns the current managed topic set and logs newly seen topics.
func (w *Watcher) discover(client sarama.Client) ([]string, error) {
	all, err := client.Topics()
	if err != nil {
		return nil, err
	}
	topics := managedTopics(all, w.prefix)
	for _, topic := range topics {
		if !w.knownTopics[topic] {
			w.logger.Info().Str("topic", topic).Msg("new topic detected")
			w.knownTopics[topic] = true
		}
	}
	return topics, nil
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks every message it is done with. When the sink fails
// the message stays unmarked and the claim ends, so the session restarts
// from the last committed offset and the event is delivered again.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(sess.Context(), msg); err != nil {
				return err
			}
			sess.MarkMessage(msg, "")
		}
	}
}

// handle skips undecodable events and returns only sink failures.
func (h *groupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ev, err := decodeEvent(msg.Topic, h.prefix, msg.Value)
	if err != nil {
		metrics.DeviceEventErrorsTotal.Inc()
		h.logger.Warn().Err(err).
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Msg("dropping malformed event")
		return nil
	}

	if err := h.sink.HandleEvent(ctx, ev); err != nil {
		metrics.DeviceEventErrorsTotal.Inc()
		h.logger.Error().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Str("device_id", ev.DeviceID).
			Str("event_id", ev.EventID).
			Msg("failed to handle event, offset left uncommitted")
		return fmt.Errorf("event %s at %s/%d/%d: %w", ev.EventID, msg.Topic, msg.Partition, msg.Offset, err)
	}
	return nil
}
