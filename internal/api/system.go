package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/cliqr-core/internal/hardware"
	"github.com/nerrad567/cliqr-core/internal/recording"
)

// SystemInfo is the system info response: a one-call overview of the rig.
type SystemInfo struct {
	SiteID          string                     `json:"site_id"`
	SiteName        string                     `json:"site_name,omitempty"`
	Version         string                     `json:"version"`
	UptimeSeconds   int64                      `json:"uptime_seconds"`
	SessionState    recording.SessionState     `json:"session_state"`
	SessionID       string                     `json:"session_id,omitempty"`
	SessionFile     string                     `json:"session_file,omitempty"`
	WriteFault      string                     `json:"write_fault,omitempty"`
	Boards          map[string]hardware.Status `json:"boards"`
	BoardsConnected int                        `json:"boards_connected"`
	MQTTConnected   bool                       `json:"mqtt_connected"`
}

// SystemMetrics is the metrics payload, scraped into the bench
// dashboard next to the sample stream.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Boards        BoardMetrics   `json:"boards"`
	Sensors       SensorMetrics  `json:"sensors"`
}

// RuntimeMetrics is the Go process itself; a goroutine count creeping
// upward across a long session is the first sign of a leak.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics counts live stream subscribers.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics reports the broker link.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// BoardMetrics summarises rack connectivity.
type BoardMetrics struct {
	Total     int            `json:"total"`
	Connected int            `json:"connected"`
	ByStatus  map[string]int `json:"by_status"`
}

// SensorMetrics summarises the sensor population and buffer pressure.
type SensorMetrics struct {
	Total     int            `json:"total"`
	ByState   map[string]int `json:"by_state"`
	Buffered  int            `json:"buffered_samples"`
	Recording int            `json:"recording"`
}

// handleSystemInfo returns a compact overview of the rig: version,
// session state, board connectivity, broker reachability.
func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()

	info := SystemInfo{
		SiteID:          s.site.ID,
		SiteName:        s.site.Name,
		Version:         s.version,
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
		SessionState:    snap.Session.State,
		SessionID:       snap.Session.ID,
		SessionFile:     snap.Session.File,
		WriteFault:      snap.Session.WriteFault,
		Boards:          s.hardware.Statuses(),
		BoardsConnected: s.hardware.ConnectedCount(),
	}
	if s.broker != nil {
		info.MQTTConnected = s.broker.IsConnected()
	}

	writeJSON(w, http.StatusOK, info)
}

// handleMetrics reports process and rig health in one payload.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       collectRuntimeMetrics(),
		WebSocket:     WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Boards:        collectBoardMetrics(snap),
		Sensors:       collectSensorMetrics(snap),
	}
	if s.broker != nil {
		metrics.MQTT = MQTTMetrics{Connected: s.broker.IsConnected()}
	}

	writeJSON(w, http.StatusOK, metrics)
}

func collectRuntimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	const mb = 1 << 20
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(mem.Alloc) / mb,
		MemoryTotalMB: float64(mem.TotalAlloc) / mb,
		NumGC:         mem.NumGC,
	}
}

func collectBoardMetrics(snap recording.Snapshot) BoardMetrics {
	bm := BoardMetrics{Total: len(snap.Boards), ByStatus: make(map[string]int)}
	for _, b := range snap.Boards {
		bm.ByStatus[string(b.Status)]++
		if b.Status == hardware.StatusConnected {
			bm.Connected++
		}
	}
	return bm
}

func collectSensorMetrics(snap recording.Snapshot) SensorMetrics {
	sm := SensorMetrics{Total: len(snap.Sensors), ByState: make(map[string]int)}
	for _, sn := range snap.Sensors {
		sm.ByState[string(sn.State)]++
		sm.Buffered += sn.Buffered
		if sn.State == recording.SensorRecording {
			sm.Recording++
		}
	}
	return sm
}
