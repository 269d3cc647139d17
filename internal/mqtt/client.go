// Package mqtt ingests appliance telemetry and sends appliance commands
// over the MQTT broker.
package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	TelemetryQoS   byte = 1
	CommandQoS     byte = 1
	connectTimeout      = 10 * time.Second
)

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// Topic and Handler are (re)subscribed on every connect.
	Topic   string
	Handler paho.MessageHandler
}

// Connect dials the broker. The subscription lives in the connect handler
// so it survives reconnects.
func Connect(opts Options, logger zerolog.Logger) (paho.Client, error) {
	logger = logger.With().Str("component", "mqtt").Logger()

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			logger.Info().Str("broker", opts.Broker).Msg("connected to MQTT broker")
			if opts.Topic == "" || opts.Handler == nil {
				return
			}
			tok := c.Subscribe(opts.Topic, TelemetryQoS, opts.Handler)
			if ok := tok.WaitTimeout(connectTimeout); !ok {
				logger.Warn().Str("topic", opts.Topic).Msg("subscribe timed out")
				return
			}
			if err := tok.Error(); err != nil {
				logger.Error().Err(err).Str("topic", opts.Topic).Msg("subscribe failed")
				return
			}
			logger.Info().Str("topic", opts.Topic).Msg("subscribed")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn().Err(err).Msg("MQTT connection lost, will reconnect")
		})

	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	client := paho.NewClient(co)
	tok := client.Connect()
	if ok := tok.WaitTimeout(connectTimeout); !ok {
		return nil, fmt.Errorf("MQTT connect timed out")
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect: %w", err)
	}
	return client, nil
}
