package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/config"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/influxdb"
)

// testConfig matches the dev instance from docker-compose.yml.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "cliqr-dev-token",
		Org:           "cliqr",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the dev InfluxDB, skipping the test when
// none is running. Most of this package only exercises against a live
// server.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// captureWriteErrors registers an error callback and returns a getter
// for the last asynchronous write failure.
func captureWriteErrors(client *influxdb.Client) func() error {
	var mu sync.Mutex
	var last error
	client.SetOnError(func(err error) {
		mu.Lock()
		last = err
		mu.Unlock()
	})
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

// flushAndCheck flushes the client and reports any write error that
// surfaced on the async channel.
func flushAndCheck(t *testing.T, client *influxdb.Client, lastErr func() error) {
	t.Helper()

	client.Flush()
	time.Sleep(100 * time.Millisecond) // let the error relay run
	if err := lastErr(); err != nil {
		t.Errorf("asynchronous write error = %v", err)
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnectZeroBatchSettings(t *testing.T) {
	connectOrSkip(t)

	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() with zero batch settings error = %v", err)
	}
	client.Close()
}

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteCapacitance(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := captureWriteErrors(client)

	client.WriteCapacitance(12, "board2", 512, time.Now())
	flushAndCheck(t, client, lastErr)
}

func TestWriteBoardStatus(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := captureWriteErrors(client)

	client.WriteBoardStatus("board0", "error")
	client.WriteBoardStatus("board0", "connected")
	flushAndCheck(t, client, lastErr)
}

func TestWriteRecordingEvent(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := captureWriteErrors(client)

	// Session-scope event without sensor or board tags.
	client.WriteRecordingEvent("session_started", "", 0, "", time.Now())
	// Cycle event pinned to a sensor.
	client.WriteRecordingEvent("cycle_started", "cycle 3", 7, "board1", time.Now())
	flushAndCheck(t, client, lastErr)
}

func TestClose(t *testing.T) {
	cfg := testConfig()
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}

	client.WriteCapacitance(1, "board0", 400, time.Now())

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Flush after Close must be a harmless no-op.
	client.Flush()
}
