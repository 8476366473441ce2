package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/cliqr-core/internal/hardware"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/config"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
	"github.com/nerrad567/cliqr-core/internal/recording"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsSendBufferSize is the per-client outbound buffer. Readings arrive at
// the acquisition rate, so the buffer absorbs short stalls; a client that
// falls further behind loses messages instead of stalling the hub.
const wsSendBufferSize = 256

// Broadcast channels clients can subscribe to.
const (
	// ChannelStatus carries the full status snapshot on every change.
	ChannelStatus = "status"

	// ChannelEvents carries recording events (session/cycle edges, faults).
	ChannelEvents = "event"

	// ChannelReadings carries live sensor readings at the sampling rate.
	// Appending ".<sensor-id>" narrows the stream to one sensor, which is
	// what a UI plotting a single trace wants.
	ChannelReadings = "sensor.reading"
)

// WSMessage is the server-to-client frame. Inbound frames are decoded as
// wsInbound instead so the payload can stay raw until the type is known.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsInbound is the client-to-server frame.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSReading is the live-reading payload broadcast on ChannelReadings.
type WSReading struct {
	Sensor     int       `json:"sensor"`
	Value      uint16    `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
}

// wsTimings holds the keepalive schedule, converted from config once so
// the pumps do not repeat the arithmetic.
type wsTimings struct {
	ping     time.Duration // interval between protocol-level pings
	deadline time.Duration // read deadline: one ping interval plus the pong grace
	write    time.Duration // budget for a single outbound write
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return wsTimings{
		ping:     ping,
		deadline: ping + pong,
		write:    pong,
	}
}

// Hub fans engine updates out to WebSocket clients.
//
// The engine's callbacks run on its actor goroutine, so every broadcast
// path is non-blocking: a slow client drops messages, it never applies
// backpressure to the engine.
type Hub struct {
	logger    *logging.Logger
	timings   wsTimings
	readLimit int64

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	status  func() recording.Snapshot // subscribe-time snapshot source
}

// WSClient is one connected WebSocket client and its subscription set.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin policy is enforced by the CORS middleware.
		return true
	},
}

// NewHub creates an empty hub. Wire a status source with SetStatusSource
// before serving connections if subscribers should receive the current
// snapshot immediately.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		logger:    logger,
		timings:   newWSTimings(cfg),
		readLimit: int64(cfg.MaxMessageSize),
		clients:   make(map[*WSClient]struct{}),
	}
}

// SetStatusSource registers the function that produces the current status
// snapshot, sent to a client the moment it subscribes to ChannelStatus.
// Mirrors the retained status message on the MQTT side: a client never has
// to wait for the next state change to learn where the system stands.
func (h *Hub) SetStatusSource(fn func() recording.Snapshot) {
	h.mu.Lock()
	h.status = fn
	h.mu.Unlock()
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the broadcast set.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. The send channel is closed only by the
// goroutine that actually removed the client from the set, so a concurrent
// shutdown cannot close it twice.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// BroadcastStatus sends a status snapshot to clients on ChannelStatus.
func (h *Hub) BroadcastStatus(snap recording.Snapshot) {
	h.broadcast(ChannelStatus, snap, ChannelStatus)
}

// BroadcastEvent sends a recording event to clients on ChannelEvents.
func (h *Hub) BroadcastEvent(ev recording.Event) {
	h.broadcast(ChannelEvents, ev, ChannelEvents)
}

// BroadcastReading sends one live reading to clients on the firehose
// channel and the reading's per-sensor channel. The frame is marshalled
// once; a client subscribed to both still receives a single copy.
func (h *Hub) BroadcastReading(r hardware.Reading) {
	payload := WSReading{
		Sensor:     r.Sensor,
		Value:      r.Value,
		CapturedAt: r.Timestamp,
	}
	h.broadcast(ChannelReadings, payload, ChannelReadings, readingChannel(r.Sensor))
}

// Broadcast sends an arbitrary payload to subscribers of one channel.
func (h *Hub) Broadcast(channel string, payload any) {
	h.broadcast(channel, payload, channel)
}

// broadcast marshals payload once and delivers it to every client
// subscribed to at least one of the given channels.
func (h *Hub) broadcast(eventType string, payload any, channels ...string) {
	// Readings arrive continuously; skip the marshal when nobody is
	// connected at all.
	if h.ClientCount() == 0 {
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "event_type", eventType, "error", err)
		return
	}

	// Snapshot the client set, then deliver without the hub lock so a
	// stuck subscription check cannot serialise registration.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.subscribedToAny(channels) {
			client.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// currentStatus returns the subscribe-time snapshot, if a source is wired.
func (h *Hub) currentStatus() (recording.Snapshot, bool) {
	h.mu.RLock()
	fn := h.status
	h.mu.RUnlock()
	if fn == nil {
		return recording.Snapshot{}, false
	}
	return fn(), true
}

// closeAll tears down every client so the write pumps can exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// readingChannel names the per-sensor readings channel, e.g.
// "sensor.reading.12".
func readingChannel(sensor int) string {
	return ChannelReadings + "." + strconv.Itoa(sensor)
}

// validChannel reports whether clients may subscribe to ch.
func validChannel(ch string) bool {
	switch ch {
	case ChannelStatus, ChannelEvents, ChannelReadings:
		return true
	}
	if id, ok := strings.CutPrefix(ch, ChannelReadings+"."); ok {
		n, err := strconv.Atoi(id)
		return err == nil && n > 0
	}
	return false
}

// handleWebSocket upgrades the connection and starts the client pumps.
// A fresh client is subscribed to nothing; it picks channels explicitly.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}

	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// readPump consumes inbound frames until the connection drops. Any inbound
// traffic resets the read deadline, so a client that talks but never
// answers protocol pings stays connected.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	t := c.hub.timings
	c.conn.SetReadLimit(c.hub.readLimit)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(t.deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(t.deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(t.deadline))
		c.handleMessage(message)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with protocol pings. It owns all writes to the connection.
func (c *WSClient) writePump() {
	t := c.hub.timings
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel; say goodbye properly.
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(t.write))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(t.write))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame.
func (c *WSClient) handleMessage(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.editSubscriptions(msg, true)
	case WSTypeUnsubscribe:
		c.editSubscriptions(msg, false)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// editSubscriptions applies one subscribe or unsubscribe request.
//
// Subscribe requests are validated as a unit: one unknown channel rejects
// the whole request, so a typo cannot half-apply. Subscribing to
// ChannelStatus pushes the current snapshot right after the
// acknowledgement.
func (c *WSClient) editSubscriptions(msg wsInbound, add bool) {
	if len(msg.Payload) == 0 {
		c.sendError(msg.ID, "missing payload")
		return
	}

	var req WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		c.sendError(msg.ID, "invalid channels payload")
		return
	}

	if add {
		for _, ch := range req.Channels {
			if !validChannel(ch) {
				c.sendError(msg.ID, "unknown channel: "+ch)
				return
			}
		}
	}

	c.mu.Lock()
	for _, ch := range req.Channels {
		if add {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	if add {
		c.hub.logger.Info("websocket client subscribed", "channels", req.Channels)
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"subscribed": req.Channels})
		c.pushStatusIfSubscribed(req.Channels)
		return
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": req.Channels})
}

// pushStatusIfSubscribed queues the current snapshot when the request
// included ChannelStatus. The ack is already in the send queue, so the
// client sees acknowledgement first, snapshot second.
func (c *WSClient) pushStatusIfSubscribed(channels []string) {
	subscribed := false
	for _, ch := range channels {
		if ch == ChannelStatus {
			subscribed = true
			break
		}
	}
	if !subscribed {
		return
	}

	snap, ok := c.hub.currentStatus()
	if !ok {
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ChannelStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   snap,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues data for the client without ever blocking. A full buffer
// drops the message; a channel closed by a concurrent unregister is
// absorbed by the recover.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

// subscribedToAny reports whether the client subscribed to at least one of
// the given channels.
func (c *WSClient) subscribedToAny(channels []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range channels {
		if _, ok := c.subscriptions[ch]; ok {
			return true
		}
	}
	return false
}

// sendResponse queues a direct reply to the client.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError queues an error reply to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
