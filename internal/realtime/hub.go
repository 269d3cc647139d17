// Package realtime pushes cache invalidations and device snapshots to
// websocket clients and accepts appliance commands from them.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ntentasd/ecobin-api/internal/metrics"
	"github.com/ntentasd/ecobin-api/internal/state"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/rs/zerolog"
)

const (
	TypeInvalidate = "invalidate"
	TypeSnapshot   = "snapshot"
	TypeCommand    = "command"
	TypeCommandAck = "command_ack"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeError      = "error"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 32
	commandTimeout = 5 * time.Second
)

var ErrUnknownDevice = errors.New("command has no device_id")

// Message is the envelope of every frame in both directions.
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type Invalidation struct {
	DeviceID string   `json:"device_id"`
	Keys     []string `json:"keys"`
}

type Command struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
}

// CommandPublisher delivers a command to an appliance.
type CommandPublisher interface {
	PublishCommand(ctx context.Context, deviceID, command string) error
}

type client struct {
	id       string
	deviceID string
	send     chan Message
}

type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*client
	publisher CommandPublisher
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// NewHub builds a Hub. publisher may be nil, in which case commands are
// rejected.
func NewHub(publisher CommandPublisher, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]*client),
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

func newMessage(typ string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Data: raw}, nil
}

// ServeHTTP upgrades to a websocket. The optional device_id query parameter
// limits pushed messages to that device.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:       uuid.New().String(),
		deviceID: types.CanonicalDeviceID(r.URL.Query().Get("device_id")),
		send:     make(chan Message, sendBuffer),
	}
	h.register(c)

	go c.writePump(conn)
	h.readPump(conn, c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(n))
	h.logger.Debug().Str("client", c.id).Str("device_id", c.deviceID).Msg("client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClients.Set(float64(n))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()

	metrics.WebsocketClients.Set(0)
}

// broadcast enqueues msg for every client interested in deviceID. Slow
// clients lose the message instead of blocking the caller.
func (h *Hub) broadcast(deviceID string, msg Message) {
	deviceID = types.CanonicalDeviceID(deviceID)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.deviceID != "" && c.deviceID != deviceID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			metrics.WebsocketDroppedTotal.Inc()
		}
	}
}

func (h *Hub) NotifyInvalidation(deviceID string, keys []string) {
	msg, err := newMessage(TypeInvalidate, Invalidation{DeviceID: types.CanonicalDeviceID(deviceID), Keys: keys})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode invalidation")
		return
	}
	h.broadcast(deviceID, msg)
}

func (h *Hub) PublishSnapshot(snap types.DeviceSnapshot) {
	msg, err := newMessage(TypeSnapshot, snap)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode snapshot")
		return
	}
	h.broadcast(snap.DeviceID, msg)
}

// Follow pushes every snapshot written to store until the returned function
// is called.
func (h *Hub) Follow(store *state.Store[string, types.DeviceSnapshot]) (stop func()) {
	return store.Subscribe(func(_ string, snap types.DeviceSnapshot, deleted bool) {
		if deleted {
			return
		}
		h.PublishSnapshot(snap)
	})
}

func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer h.unregister(c)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("websocket read failed")
			}
			return
		}
		h.handleMessage(c, msg)
	}
}

func (h *Hub) handleMessage(c *client, msg Message) {
	switch msg.Type {
	case TypePing:
		h.reply(c, Message{Type: TypePong})
	case TypeCommand:
		cmd, err := h.runCommand(c, msg.Data)
		if err != nil {
			h.reply(c, Message{Type: TypeError, Message: err.Error()})
			return
		}
		ack, err := newMessage(TypeCommandAck, cmd)
		if err != nil {
			return
		}
		h.reply(c, ack)
	default:
		h.reply(c, Message{Type: TypeError, Message: "unknown message type"})
	}
}

func (h *Hub) runCommand(c *client, data json.RawMessage) (Command, error) {
	var cmd Command
	if len(data) == 0 {
		return cmd, errors.New("missing command data")
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, errors.New("invalid command data")
	}
	cmd.DeviceID = types.CanonicalDeviceID(cmd.DeviceID)
	if cmd.DeviceID == "" {
		cmd.DeviceID = c.deviceID
	}
	if cmd.DeviceID == "" {
		return cmd, ErrUnknownDevice
	}
	if strings.TrimSpace(cmd.Command) == "" {
		return cmd, errors.New("missing command")
	}
	if h.publisher == nil {
		return cmd, errors.New("commands are disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := h.publisher.PublishCommand(ctx, cmd.DeviceID, cmd.Command); err != nil {
		h.logger.Error().Err(err).Str("device_id", cmd.DeviceID).Msg("command publish failed")
		return cmd, errors.New("command could not be delivered")
	}
	return cmd, nil
}

// reply enqueues a direct response; it never blocks the read loop.
func (h *Hub) reply(c *client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		metrics.WebsocketDroppedTotal.Inc()
	}
}

func (c *client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
