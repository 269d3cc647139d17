package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ntentasd/ecobin-api/pkg/types"
)

var ErrEmptyCommand = errors.New("empty command")

type CommandPayload struct {
	Command  string    `json:"command"`
	IssuedAt time.Time `json:"issued_at"`
}

type Publisher struct {
	client paho.Client
}

func NewPublisher(client paho.Client) *Publisher {
	return &Publisher{client}
}

// PublishCommand sends command to a device and waits for the broker to
// acknowledge it.
func (p *Publisher) PublishCommand(ctx context.Context, deviceID, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return ErrEmptyCommand
	}
	if types.CanonicalDeviceID(deviceID) == "" {
		return errors.New("device_id is required")
	}

	payload, err := json.Marshal(CommandPayload{
		Command:  command,
		IssuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	tok := p.client.Publish(CommandTopic(deviceID), CommandQoS, false, payload)
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("failed to publish command: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
