package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

func TestDecodeReading(t *testing.T) {
	t.Parallel()

	received := time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		topic      string
		payload    string
		wantDevice string
		wantTime   time.Time
		wantErr    string
	}{
		{
			name:       "device from topic",
			topic:      "ecobin/dev-1/telemetry",
			payload:    `{"timestamp":"2025-05-05T07:59:00Z","temperature":24,"humidity":50,"gas":120,"weight":0.8}`,
			wantDevice: "dev-1",
			wantTime:   time.Date(2025, 5, 5, 7, 59, 0, 0, time.UTC),
		},
		{
			name:       "missing timestamp uses receive time",
			topic:      "ecobin/dev-1/telemetry",
			payload:    `{"device_id":"DEV-1","temperature":24}`,
			wantDevice: "DEV-1",
			wantTime:   received,
		},
		{
			name:    "device mismatch",
			topic:   "ecobin/dev-1/telemetry",
			payload: `{"device_id":"dev-2"}`,
			wantErr: "does not match topic",
		},
		{
			name:    "not json",
			topic:   "ecobin/dev-1/telemetry",
			payload: `temperature=24`,
			wantErr: "invalid payload",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, err := decodeReading(tc.topic, []byte(tc.payload), received)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.DeviceID != tc.wantDevice || !r.Timestamp.Equal(tc.wantTime) {
				t.Fatalf("got %+v", r)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	if got := TelemetryTopic(" Dev-1 "); got != "ecobin/dev-1/telemetry" {
		t.Fatalf("TelemetryTopic = %q", got)
	}
	if got := CommandTopic("dev-1"); got != "ecobin/dev-1/command" {
		t.Fatalf("CommandTopic = %q", got)
	}
	if got := deviceFromTopic("ecobin/dev-1/command"); got != "" {
		t.Fatalf("deviceFromTopic accepted a command topic: %q", got)
	}
}

type fakeSink struct {
	mu       sync.Mutex
	readings []types.SensorReading
	err      error
}

func (s *fakeSink) HandleReading(_ context.Context, r types.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.readings = append(s.readings, r)
	return nil
}

func TestSubscriberDrainsQueueOnStop(t *testing.T) {
	sink := &fakeSink{}
	s := NewSubscriber(3, 16, sink, zerolog.Nop())
	s.Start(context.Background())

	for i := range 10 {
		payload, _ := json.Marshal(types.SensorReading{
			Timestamp:   time.Unix(int64(i), 0).UTC(),
			Temperature: 22,
		})
		s.enqueue("ecobin/dev-1/telemetry", payload)
	}
	s.enqueue("ecobin/dev-1/telemetry", []byte("garbage"))
	s.Stop()
	s.Stop()

	if len(sink.readings) != 10 {
		t.Fatalf("sink received %d readings, want 10", len(sink.readings))
	}
}

func TestSubscriberDropsWhenFull(t *testing.T) {
	sink := &fakeSink{}
	s := NewSubscriber(1, 2, sink, zerolog.Nop())

	for range 5 {
		s.enqueue("ecobin/dev-1/telemetry", []byte(`{}`))
	}
	if got := len(s.queue); got != 2 {
		t.Fatalf("queue holds %d messages, want 2", got)
	}

	s.Start(context.Background())
	s.Stop()
	if len(sink.readings) != 2 {
		t.Fatalf("sink received %d readings, want 2", len(sink.readings))
	}
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeClient struct {
	paho.Client
	topic   string
	qos     byte
	payload []byte
	token   *fakeToken
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) paho.Token {
	c.topic, c.qos = topic, qos
	c.payload, _ = payload.([]byte)
	return c.token
}

func completedToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{done: done, err: err}
}

func TestPublishCommand(t *testing.T) {
	client := &fakeClient{token: completedToken(nil)}
	p := NewPublisher(client)

	if err := p.PublishCommand(context.Background(), "DEV-1", " start "); err != nil {
		t.Fatalf("PublishCommand: %v", err)
	}
	if client.topic != "ecobin/dev-1/command" || client.qos != CommandQoS {
		t.Fatalf("published to %s qos %d", client.topic, client.qos)
	}
	var payload CommandPayload
	if err := json.Unmarshal(client.payload, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Command != "start" || payload.IssuedAt.IsZero() {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestPublishCommandErrors(t *testing.T) {
	brokerErr := errors.New("not connected")

	tests := []struct {
		name    string
		token   *fakeToken
		ctx     func() context.Context
		command string
		wantErr error
	}{
		{
			name:    "empty",
			token:   completedToken(nil),
			command: "  ",
			wantErr: ErrEmptyCommand,
		},
		{
			name:    "broker error",
			token:   completedToken(brokerErr),
			command: "stop",
			wantErr: brokerErr,
		},
		{
			name:  "context cancelled",
			token: &fakeToken{done: make(chan struct{})},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			command: "stop",
			wantErr: context.Canceled,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.ctx != nil {
				ctx = tc.ctx()
			}
			p := NewPublisher(&fakeClient{token: tc.token})
			err := p.PublishCommand(ctx, "dev-1", tc.command)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
