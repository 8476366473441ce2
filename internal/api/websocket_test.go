package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/cliqr-core/internal/hardware"
	"github.com/nerrad567/cliqr-core/internal/recording"
)

// wsDial opens a WebSocket connection to the test server's /ws endpoint.
func wsDial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// wsSend writes one message to the connection.
func wsSend(t *testing.T, conn *websocket.Conn, msg WSMessage) {
	t.Helper()

	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("websocket write: %v", err)
	}
}

// wsRead reads one message, failing the test after two seconds.
func wsRead(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()

	//nolint:errcheck // Best-effort deadline; read error reported below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("websocket read: %v", err)
	}
	return msg
}

// decodePayload remarshals a message payload into out.
func decodePayload(t *testing.T, msg WSMessage, out any) {
	t.Helper()

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
}

// subscribe sends a subscribe message and waits for the acknowledgement.
func subscribe(t *testing.T, conn *websocket.Conn, channels ...string) {
	t.Helper()

	wsSend(t, conn, WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	})
	resp := wsRead(t, conn)
	if resp.Type != WSTypeResponse {
		t.Fatalf("subscribe response type = %q, want %q", resp.Type, WSTypeResponse)
	}
}

func TestWebSocket_SnapshotOnSubscribe(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)
	subscribe(t, conn, ChannelStatus)

	// The current snapshot arrives without any broadcast being triggered.
	msg := wsRead(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelStatus {
		t.Fatalf("message = %q/%q, want event on %q", msg.Type, msg.EventType, ChannelStatus)
	}

	var snap recording.Snapshot
	decodePayload(t, msg, &snap)
	if snap.Session.State != recording.SessionIdle {
		t.Errorf("subscribe-time session state = %q, want idle", snap.Session.State)
	}
	if len(snap.Sensors) != 6 {
		t.Errorf("subscribe-time sensors = %d, want 6", len(snap.Sensors))
	}
}

func TestWebSocket_StatusBroadcast(t *testing.T) {
	srv, eng := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)
	subscribe(t, conn, ChannelStatus)
	wsRead(t, conn) // drain the subscribe-time snapshot

	srv.hub.BroadcastStatus(eng.Snapshot())

	msg := wsRead(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelStatus {
		t.Fatalf("message = %q/%q, want event on %q", msg.Type, msg.EventType, ChannelStatus)
	}

	var snap recording.Snapshot
	decodePayload(t, msg, &snap)
	if snap.Session.State != recording.SessionIdle {
		t.Errorf("broadcast session state = %q, want idle", snap.Session.State)
	}
	if len(snap.Sensors) != 6 {
		t.Errorf("broadcast sensors = %d, want 6", len(snap.Sensors))
	}
}

func TestWebSocket_EventBroadcast(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)
	subscribe(t, conn, ChannelEvents)

	occurred := time.Date(2026, 5, 2, 16, 4, 0, 0, time.UTC)
	srv.hub.BroadcastEvent(recording.Event{OccurredAt: occurred, Kind: recording.EventCycleStopped, Sensor: 3})

	msg := wsRead(t, conn)
	if msg.EventType != ChannelEvents {
		t.Fatalf("event_type = %q, want %q", msg.EventType, ChannelEvents)
	}

	var ev recording.Event
	decodePayload(t, msg, &ev)
	if ev.Kind != recording.EventCycleStopped || ev.Sensor != 3 || !ev.OccurredAt.Equal(occurred) {
		t.Errorf("event = %+v, want cycle_stopped for sensor 3", ev)
	}
}

func TestWebSocket_ReadingBroadcast(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)
	subscribe(t, conn, ChannelReadings)

	ts0 := time.Now().UTC().Truncate(time.Millisecond)
	srv.hub.BroadcastReading(hardware.Reading{Sensor: 12, Channel: 4, Value: 640, Timestamp: ts0})

	msg := wsRead(t, conn)
	var reading WSReading
	decodePayload(t, msg, &reading)
	if reading.Sensor != 12 || reading.Value != 640 {
		t.Errorf("reading = %+v, want sensor 12 value 640", reading)
	}
	if !reading.CapturedAt.Equal(ts0) {
		t.Errorf("captured_at = %v, want %v", reading.CapturedAt, ts0)
	}
}

func TestWebSocket_PerSensorReadings(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)
	subscribe(t, conn, "sensor.reading.12")

	// Another sensor's reading must not reach this client.
	srv.hub.BroadcastReading(hardware.Reading{Sensor: 7, Channel: 1, Value: 100, Timestamp: time.Now()})
	srv.hub.BroadcastReading(hardware.Reading{Sensor: 12, Channel: 4, Value: 640, Timestamp: time.Now()})

	msg := wsRead(t, conn)
	var reading WSReading
	decodePayload(t, msg, &reading)
	if reading.Sensor != 12 {
		t.Errorf("reading sensor = %d, want only sensor 12 traffic", reading.Sensor)
	}
}

func TestWebSocket_UnknownChannelRejected(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)

	wsSend(t, conn, WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-bad",
		Payload: WSSubscribePayload{Channels: []string{ChannelStatus, "sensor.reading.zero"}},
	})
	resp := wsRead(t, conn)
	if resp.Type != WSTypeError {
		t.Fatalf("response type = %q, want %q", resp.Type, WSTypeError)
	}

	// The valid channel in the same request must not have been applied.
	srv.hub.BroadcastStatus(recording.Snapshot{})
	//nolint:errcheck // Deadline is the mechanism under test
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received a broadcast after a rejected subscribe")
	}
}

func TestWebSocket_UnsubscribedChannelIsSilent(t *testing.T) {
	srv, eng := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)
	subscribe(t, conn, ChannelEvents)

	// Status broadcasts must not reach a client subscribed to events only.
	srv.hub.BroadcastStatus(eng.Snapshot())

	//nolint:errcheck // Deadline is the mechanism under test
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received a broadcast for an unsubscribed channel")
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	srv, eng := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)
	subscribe(t, conn, ChannelStatus)
	wsRead(t, conn) // drain the subscribe-time snapshot

	wsSend(t, conn, WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelStatus}},
	})
	resp := wsRead(t, conn)
	if resp.Type != WSTypeResponse {
		t.Fatalf("unsubscribe response type = %q, want %q", resp.Type, WSTypeResponse)
	}

	srv.hub.BroadcastStatus(eng.Snapshot())

	//nolint:errcheck // Deadline is the mechanism under test
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received a broadcast after unsubscribing")
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)

	wsSend(t, conn, WSMessage{Type: WSTypePing, ID: "42"})
	resp := wsRead(t, conn)
	if resp.Type != WSTypePong || resp.ID != "42" {
		t.Errorf("response = %q id %q, want pong id 42", resp.Type, resp.ID)
	}
}

func TestWebSocket_UnknownTypeRejected(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	conn := wsDial(t, ts)

	wsSend(t, conn, WSMessage{Type: "bogus", ID: "9"})
	resp := wsRead(t, conn)
	if resp.Type != WSTypeError {
		t.Errorf("response type = %q, want %q", resp.Type, WSTypeError)
	}
}

func TestHub_ClientCount(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	if n := srv.hub.ClientCount(); n != 0 {
		t.Fatalf("initial clients = %d, want 0", n)
	}

	conn := wsDial(t, ts)
	subscribe(t, conn, ChannelStatus) // round trip proves registration completed

	if n := srv.hub.ClientCount(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered after close")
		}
		time.Sleep(time.Millisecond)
	}
}
