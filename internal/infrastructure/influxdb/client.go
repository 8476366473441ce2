package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	// Batching fallbacks for when the config leaves them unset. A
	// hundred points is two seconds of one sensor at the 50Hz cadence,
	// a fair trade between dashboard lag and request overhead.
	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client mirrors live rig telemetry into InfluxDB for Grafana.
//
// The mirror is strictly best-effort. The session file is the record;
// this client batches points in memory, ships them asynchronously, and
// surfaces failed batches through an error callback rather than
// blocking the sample path. A dead InfluxDB slows nothing down and
// loses no session data.
//
// All methods are safe for concurrent use.
type Client struct {
	influx influxdb2.Client
	writes api.WriteAPI
	cfg    config.InfluxDBConfig

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect builds the client, verifies the server answers a ping, and
// starts the asynchronous write pipeline.
//
// Parameters:
//   - cfg: InfluxDB section of the rig configuration
//
// Returns:
//   - *Client: ready client with batching configured
//   - error: ErrDisabled when the mirror is switched off,
//     ErrConnectionFailed when the server cannot be reached
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, batchOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		influx:    influx,
		writes:    influx.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
	}
	go c.relayWriteErrors(c.writes.Errors())

	return c, nil
}

// batchOptions maps the config onto the client library's batching
// knobs, flooring unset values to the defaults.
func batchOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// The library takes the flush interval in milliseconds.
	// #nosec G115 -- both values floored to positive above
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000)
}

// ping asks the server whether it is up and healthy.
func ping(ctx context.Context, influx influxdb2.Client) error {
	ok, err := influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !ok {
		return errors.New("server reports unhealthy")
	}
	return nil
}

// relayWriteErrors drains the write API's asynchronous error channel
// into the optional callback. The channel closes with the client, which
// ends this goroutine.
func (c *Client) relayWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		hook := c.onError
		c.mu.RUnlock()
		if hook != nil {
			hook(err)
		}
	}
}

// Close flushes pending points and shuts the connection down. Safe to
// call on a zero client.
func (c *Client) Close() error {
	if c.influx == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writes.Flush()
	c.influx.Close()

	return nil
}

// HealthCheck pings the server. The daemon runs it once at startup;
// afterwards the health endpoint exposes it to operators.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(pingCtx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports the last known connection state. It does not
// touch the network; HealthCheck does.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers a callback for failed batches. Writes are
// asynchronous, so this is the only place write failures surface; the
// daemon logs them and moves on.
func (c *Client) SetOnError(hook func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = hook
}

// Flush pushes buffered points out immediately instead of waiting for
// the batch interval. No-op on a closed client.
func (c *Client) Flush() {
	if c.writes == nil || !c.IsConnected() {
		return
	}
	c.writes.Flush()
}
